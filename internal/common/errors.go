// Package common defines shared constants and sentinel errors used across
// the attachment service. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Upload / blob errors.
	ErrBlobTooBig       = errors.New("blob exceeds maximum size")
	ErrBlobNotFound     = errors.New("blob not found")
	ErrBlobWrongUser    = errors.New("pending upload belongs to another user")
	ErrBlobNotUploaded  = errors.New("blob not uploaded")
	ErrBlobSizeMismatch = errors.New("blob size mismatch")
	ErrBlobBlacklisted  = errors.New("blob digest is blacklisted")

	// Object-store errors (unexpected backend responses; message is logged,
	// never surfaced verbatim).
	ErrBackendStorage = errors.New("backend storage error")

	// File / revision errors.
	ErrFileNotFound          = errors.New("file not found")
	ErrFileExists            = errors.New("file with this name already exists")
	ErrFileNotDeleted        = errors.New("file is not deleted")
	ErrRevisionNotFound      = errors.New("revision not found")
	ErrNotLatestRevision     = errors.New("supplied revision id is not the latest")
	ErrNameEmpty             = errors.New("file name is empty")
	ErrNameTooLong           = errors.New("file name too long")
	ErrNameInvalidCharacters = errors.New("file name contains invalid characters")

	// Structurally invalid input (e.g. hard-deleting the empty blob).
	ErrBadRequest = errors.New("bad request")

	// Repository-level errors.
	ErrNotFound = errors.New("not found")
)
