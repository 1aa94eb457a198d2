package s3blob_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	s3blob "github.com/alanyoungcy/dealscout/internal/blob/s3"
	"github.com/alanyoungcy/dealscout/internal/domain"
)

type memBlobs struct {
	objects map[string][]byte
}

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

func TestArchiveDeals(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	blobs := &memBlobs{objects: map[string][]byte{}}
	a := s3blob.NewArchiver(blobs, blobs)
	day := time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)

	path, err := a.ArchiveDeals(ctx, nil, day)
	rq.NoError(err)
	rq.Empty(path)
	rq.Empty(blobs.objects)

	deals := []domain.Deal{{ID: "a", Title: "One"}, {ID: "b", Title: "Two"}}
	path, err = a.ArchiveDeals(ctx, deals, day)
	rq.NoError(err)
	rq.Equal("deals/archive/2026-01-02.jsonl", path)

	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(blobs.objects[path]))
	for sc.Scan() {
		var d domain.Deal
		rq.NoError(json.Unmarshal(sc.Bytes(), &d))
		ids = append(ids, d.ID)
	}
	rq.Equal([]string{"a", "b"}, ids)

	path, err = a.ArchiveDeals(ctx, deals[:1], day)
	rq.NoError(err)
	rq.Equal("deals/archive/2026-01-02-1.jsonl", path)
	rq.Len(blobs.objects, 2)
}
