// Package models contains the GORM persistence models behind the workflow,
// approval and numbering repositories. Domain types stay free of ORM tags;
// each model converts with ToDomain and a From* constructor.
package models
