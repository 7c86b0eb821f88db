package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alanyoungcy/creditpool/internal/domain"
)

// RunArchiveStore is the slice of domain.RunStore the archiver needs.
type RunArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.RunRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ArchiveImpl implements domain.Archiver. Runs older than the cutoff are
// written as JSONL to one object per calendar month, merged with whatever
// that month's object already holds, and then removed from the database.
type ArchiveImpl struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	runs   RunArchiveStore
	audit  domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, runs RunArchiveStore, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{writer: writer, reader: reader, runs: runs, audit: audit}
}

// ArchiveRuns moves runs created before the cutoff into
// archive/runs/YYYY-MM.jsonl and returns how many were archived. Rows are
// deleted only after every month uploaded.
func (a *ArchiveImpl) ArchiveRuns(ctx context.Context, before time.Time) (int64, error) {
	runs, err := a.runs.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive runs query: %w", err)
	}
	if len(runs) == 0 {
		return 0, nil
	}

	byMonth := make(map[string][]domain.RunRecord)
	for _, r := range runs {
		path := archivePath("runs", r.CreatedAt)
		byMonth[path] = append(byMonth[path], r)
	}
	paths := make([]string, 0, len(byMonth))
	for p := range byMonth {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := a.appendMonth(ctx, path, byMonth[path]); err != nil {
			return 0, err
		}
	}

	deleted, err := a.runs.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive runs delete: %w", err)
	}

	count := int64(len(runs))
	if err := a.audit.Log(ctx, domain.AuditRunsArchived, map[string]any{
		"paths":   paths,
		"count":   count,
		"deleted": deleted,
		"before":  before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive runs audit log: %w", err)
	}
	return count, nil
}

// appendMonth merges records into the month object, skipping ids already
// archived by an earlier pass.
func (a *ArchiveImpl) appendMonth(ctx context.Context, path string, records []domain.RunRecord) error {
	existing, err := a.readArchive(ctx, path)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(existing))
	for _, r := range existing {
		seen[r.ID] = true
	}
	merged := existing
	for _, r := range records {
		if !seen[r.ID] {
			merged = append(merged, r)
		}
	}

	buf, err := marshalJSONL(merged)
	if err != nil {
		return fmt.Errorf("s3blob: archive runs marshal: %w", err)
	}
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), contentTypeJSONL); err != nil {
		return fmt.Errorf("s3blob: archive runs upload %s: %w", path, err)
	}
	return nil
}

func (a *ArchiveImpl) readArchive(ctx context.Context, path string) ([]domain.RunRecord, error) {
	body, err := a.reader.Get(ctx, path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("s3blob: archive runs read %s: %w", path, err)
	}
	defer body.Close()
	recs, err := unmarshalJSONL[domain.RunRecord](body)
	if err != nil {
		return nil, fmt.Errorf("s3blob: archive runs decode %s: %w", path, err)
	}
	return recs, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of t.
//
//	archive/runs/2025-01.jsonl
func archivePath(kind string, t time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, t.UTC().Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
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

// unmarshalJSONL reads newline-delimited JSON, ignoring blank lines.
func unmarshalJSONL[T any](r io.Reader) ([]T, error) {
	var out []T
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for line := 1; sc.Scan(); line++ {
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("jsonl decode line %d: %w", line, err)
		}
		out = append(out, v)
	}
	return out, sc.Err()
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
