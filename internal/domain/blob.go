package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver moves deals from the primary store to cold storage. It returns
// the object path written.
type Archiver interface {
	ArchiveDeals(ctx context.Context, deals []Deal, day time.Time) (string, error)
}
