package models

import "time"

// BlobMetadata describes a stored blob without its bytes. For ordinary
// blobs the values come from a HEAD on the permanent key; for the virtual
// empty blob they are fixed constants.
type BlobMetadata struct {
	Mime      string
	Size      int64
	CreatedAt time.Time
}
