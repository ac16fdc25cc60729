package numbering

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/erp/docflow/internal/domain/shared"
)

// DefaultTenant is the tenant used when none is given. It is left out of prefixes.
const DefaultTenant = "default"

// DefaultWidth is the zero-padded width of the counter
const DefaultWidth = 5

// ErrCounterPersistence is returned when an increment cannot be made durable
var ErrCounterPersistence = shared.NewDomainError("COUNTER_PERSISTENCE_FAILURE", "Number series could not be persisted")

// ErrCounterRegression rejects moving a counter below numbers already issued
var ErrCounterRegression = shared.NewDomainError("COUNTER_REGRESSION", "Counter value is below numbers already issued")

// Key identifies one counter. Year is nil for series that never reset.
type Key struct {
	Domain   string
	TenantID string
	Year     *int
}

// NewKey normalizes the domain and tenant of a key
func NewKey(domain, tenantID string, year *int) (Key, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return Key{}, shared.NewDomainError("INVALID_INPUT", "numbering domain cannot be empty")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		tenantID = DefaultTenant
	}
	return Key{Domain: domain, TenantID: tenantID, Year: year}, nil
}

// YearValue returns the year or 0 for non-resetting series
func (k Key) YearValue() int {
	if k.Year == nil {
		return 0
	}
	return *k.Year
}

// String returns "domain:tenant:year" with "-" for no year
func (k Key) String() string {
	year := "-"
	if k.Year != nil {
		year = strconv.Itoa(*k.Year)
	}
	return k.Domain + ":" + k.TenantID + ":" + year
}

// Policy controls how a domain's numbers are formatted and scoped
type Policy struct {
	Width       int
	YearlyReset bool
}

// Prefix builds DOMAIN[-TENANT][-YEAR]-. The tenant is included only in
// multi-tenant mode and never for the default tenant.
func Prefix(k Key, multiTenant bool) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(k.Domain))
	if multiTenant && k.TenantID != DefaultTenant {
		b.WriteString("-")
		b.WriteString(k.TenantID)
	}
	if k.Year != nil {
		b.WriteString("-")
		b.WriteString(strconv.Itoa(*k.Year))
	}
	b.WriteString("-")
	return b.String()
}

// Format renders a counter value
func Format(prefix string, counter int64, width int) string {
	if width < 1 {
		width = DefaultWidth
	}
	return fmt.Sprintf("%s%0*d", prefix, width, counter)
}

// Series is the persisted state of one counter
type Series struct {
	Key     Key
	Prefix  string
	Counter int64
	Width   int
}

// Current renders the last issued number, or "" if none was issued
func (s Series) Current() string {
	if s.Counter == 0 {
		return ""
	}
	return Format(s.Prefix, s.Counter, s.Width)
}

// NextPreview renders the number the next increment would return
func (s Series) NextPreview() string {
	return Format(s.Prefix, s.Counter+1, s.Width)
}

// CounterStore persists counters. Increment must be atomic per key across all
// callers sharing the store. Once an increment returns a value, that value is
// consumed even if the caller later fails.
type CounterStore interface {
	Increment(ctx context.Context, key Key, prefix string, width int) (int64, error)
	// Get returns the series, found=false if the key was never incremented.
	Get(ctx context.Context, key Key) (series Series, found bool, err error)
	// Reset sets the counter to value. Used only by administrators.
	Reset(ctx context.Context, key Key, value int64) error
}
