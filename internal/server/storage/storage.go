// Package storage provides the gateway to the external content-addressable
// object store. It issues presigned upload URLs and performs key-level
// operations; retry policy belongs to callers.
package storage

import (
	"context"
	"time"
)

// ObjectMeta describes an object without fetching its bytes.
type ObjectMeta struct {
	Size         int64
	Mime         string
	LastModified time.Time
}

// ObjectStore is the narrow interface the services consume. Absence of a
// key is a distinct non-error outcome; any unexpected backend response
// surfaces as common.ErrBackendStorage with the raw message logged, never
// returned verbatim.
type ObjectStore interface {
	// PresignPut returns a URL that allows a direct PUT of raw bytes to key
	// until ttl elapses.
	PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Head returns object metadata, or nil if the key is absent.
	Head(ctx context.Context, key string) (*ObjectMeta, error)

	// Get returns the object bytes. The boolean is false if the key is
	// absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores data under key with the given MIME type.
	Put(ctx context.Context, key string, data []byte, mime string) error

	// Delete removes the object at key. Deleting an absent key succeeds.
	Delete(ctx context.Context, key string) error
}
