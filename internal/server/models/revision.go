package models

import (
	"time"

	"github.com/pagekeep/pagekeep/internal/hashx"
)

// RevisionType labels the state transition a revision records.
type RevisionType string

const (
	RevisionFirst        RevisionType = "first"
	RevisionRegular      RevisionType = "regular"
	RevisionMove         RevisionType = "move"
	RevisionRollback     RevisionType = "rollback"
	RevisionTombstone    RevisionType = "tombstone"
	RevisionResurrection RevisionType = "resurrection"
)

// Field names recorded in FileRevision.Changes and FileRevision.Hidden.
const (
	FieldName = "name"
	FieldBlob = "blob"
	FieldPage = "page"
)

// FileRevision is one immutable snapshot in a file's append-only history.
// Revision numbers per file form a gapless ascending sequence starting at 1;
// the row with the highest number is the latest and serves as the
// optimistic-concurrency token for mutations.
type FileRevision struct {
	RevisionID     int64
	RevisionType   RevisionType
	CreatedAt      time.Time
	RevisionNumber int
	FileID         int64
	PageID         int64
	SiteID         int64
	UserID         int64

	Name   string
	Digest hashx.Hash
	Mime   string
	Size   int64

	Comments string
	// Changes lists which fields this revision modified.
	Changes []string
	// Hidden lists fields redacted after the fact, e.g. "blob" once the
	// digest has been erased by a hard deletion.
	Hidden []string
}
