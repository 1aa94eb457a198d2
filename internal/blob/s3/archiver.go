package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/dealscout/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"
	// multipartThreshold switches large archives to the multipart uploader.
	multipartThreshold = 8 * 1024 * 1024
	maxPathAttempts    = 100
)

// ObjectChecker reports whether an object already exists.
type ObjectChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// ArchiveImpl implements domain.Archiver. Deals are written as JSONL to
// deals/archive/<date>.jsonl; later batches of the same day get a numeric
// suffix so earlier archives are never overwritten. Removing the archived
// deals from the primary store is the caller's job.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	checker ObjectChecker
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, checker ObjectChecker) *ArchiveImpl {
	return &ArchiveImpl{writer: writer, checker: checker}
}

// ArchiveDeals uploads deals and returns the object path written. An empty
// batch writes nothing and returns "".
func (a *ArchiveImpl) ArchiveDeals(ctx context.Context, deals []domain.Deal, day time.Time) (string, error) {
	if len(deals) == 0 {
		return "", nil
	}

	buf, err := marshalJSONL(deals)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive deals marshal: %w", err)
	}

	path, err := a.freePath(ctx, day)
	if err != nil {
		return "", err
	}

	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive deals upload: %w", err)
	}
	return path, nil
}

func (a *ArchiveImpl) freePath(ctx context.Context, day time.Time) (string, error) {
	for i := range maxPathAttempts {
		path := archivePath(day, i)
		exists, err := a.checker.Exists(ctx, path)
		if err != nil {
			return "", fmt.Errorf("s3blob: archive deals path: %w", err)
		}
		if !exists {
			return path, nil
		}
	}
	return "", fmt.Errorf("s3blob: archive deals path: no free name for %s", day.Format(time.DateOnly))
}

// archivePath builds the object key for the n-th archive of a day.
//
//	deals/archive/2026-01-02.jsonl
//	deals/archive/2026-01-02-1.jsonl
func archivePath(day time.Time, n int) string {
	date := day.UTC().Format(time.DateOnly)
	if n == 0 {
		return fmt.Sprintf("deals/archive/%s.jsonl", date)
	}
	return fmt.Sprintf("deals/archive/%s-%d.jsonl", date, n)
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*ArchiveImpl)(nil)
