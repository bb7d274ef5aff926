package models

import "time"

// File is the logical attachment entity: a named file on a page. Its
// content lives in the object store, addressed by the digest recorded on
// each revision. The row itself is never removed; soft deletion sets
// DeletedAt.
type File struct {
	ID        int64
	SiteID    int64
	PageID    int64
	Name      string
	CreatedAt time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
}

// Deleted reports whether the file is currently tombstoned.
func (f *File) Deleted() bool {
	return f.DeletedAt != nil
}
