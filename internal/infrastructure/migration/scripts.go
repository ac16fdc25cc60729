package migration

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Script is one versioned migration with its up and down files
type Script struct {
	Version  uint64
	Name     string
	UpFile   string
	DownFile string
}

// List returns the scripts in fsys ordered by version. Every version must
// have both an up and a down file.
func List(fsys fs.FS) ([]Script, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	byVersion := make(map[uint64]*Script)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		file := entry.Name()
		var base string
		var up bool
		switch {
		case strings.HasSuffix(file, ".up.sql"):
			base, up = strings.TrimSuffix(file, ".up.sql"), true
		case strings.HasSuffix(file, ".down.sql"):
			base = strings.TrimSuffix(file, ".down.sql")
		default:
			continue
		}
		versionPart, name, ok := strings.Cut(base, "_")
		if !ok {
			return nil, fmt.Errorf("migration %q has no name", file)
		}
		version, err := strconv.ParseUint(versionPart, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migration %q has an invalid version: %w", file, err)
		}
		s, exists := byVersion[version]
		if !exists {
			s = &Script{Version: version, Name: name}
			byVersion[version] = s
		} else if s.Name != name {
			return nil, fmt.Errorf("migration version %d is used by %q and %q", version, s.Name, name)
		}
		if up {
			s.UpFile = file
		} else {
			s.DownFile = file
		}
	}

	scripts := make([]Script, 0, len(byVersion))
	for _, s := range byVersion {
		if s.UpFile == "" || s.DownFile == "" {
			return nil, fmt.Errorf("migration %d_%s is missing its up or down file", s.Version, s.Name)
		}
		scripts = append(scripts, *s)
	}
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].Version < scripts[j].Version })
	return scripts, nil
}

// Create writes an empty script pair numbered after the highest existing version
func Create(dir, name string) (*Script, error) {
	clean := sanitizeName(name)
	if clean == "" {
		return nil, fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create migrations directory: %w", err)
	}
	existing, err := List(os.DirFS(dir))
	if err != nil {
		return nil, err
	}
	var next uint64 = 1
	if n := len(existing); n > 0 {
		next = existing[n-1].Version + 1
	}

	base := fmt.Sprintf("%06d_%s", next, clean)
	s := &Script{Version: next, Name: clean, UpFile: base + ".up.sql", DownFile: base + ".down.sql"}
	header := fmt.Sprintf("-- %s\n\n", strings.ReplaceAll(clean, "_", " "))
	if err := os.WriteFile(filepath.Join(dir, s.UpFile), []byte(header), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", s.UpFile, err)
	}
	if err := os.WriteFile(filepath.Join(dir, s.DownFile), []byte(header), 0o644); err != nil {
		_ = os.Remove(filepath.Join(dir, s.UpFile))
		return nil, fmt.Errorf("failed to write %s: %w", s.DownFile, err)
	}
	return s, nil
}

// sanitizeName lowercases name and joins words with single underscores
func sanitizeName(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			pendingSep = true
		}
	}
	return b.String()
}
