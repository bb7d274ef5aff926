// Package models defines server-side data models persisted in the database.
package models

import "time"

// PendingUpload is the durable record of an in-flight upload: a short-lived,
// ownership-scoped handle between presign issuance and finalization.
type PendingUpload struct {
	// Ticket is the opaque identifier handed to the uploader.
	Ticket string
	// TempPath is the temporary object-store key under the upload prefix.
	TempPath string
	// ExpectedLength is the byte length the uploader promised.
	ExpectedLength int64
	// CreatedBy is the uploader; every later operation on the ticket must
	// come from the same user.
	CreatedBy int64

	CreatedAt time.Time
	ExpiresAt time.Time

	// ResolvedDigest is set once finalization has moved the bytes into
	// permanent storage. A second finalize call sees it and skips the
	// temporary location entirely. Nil until then.
	ResolvedDigest []byte
}

// Expired reports whether the pending upload is past its expiry at now.
func (p *PendingUpload) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}
