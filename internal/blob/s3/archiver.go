package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// multipartThreshold is the payload size above which uploads switch to the
// multipart manager.
const multipartThreshold = 8 * 1024 * 1024

// FlowArchiveStore is the slice of the detection store the archiver needs.
type FlowArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.FlowRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ArchiveImpl implements domain.Archiver. Rows older than the cutoff are
// grouped by the month of their timestamp and written as one JSONL object
// per month. Rows are deleted from the database only when purge is enabled
// and every object has been confirmed present in the bucket.
type ArchiveImpl struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	store  FlowArchiveStore
	audit  domain.AuditStore
	purge  bool
}

// NewArchiver creates a new ArchiveImpl. reader may be nil, in which case
// purge is disabled since uploads cannot be verified.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	store FlowArchiveStore,
	audit domain.AuditStore,
	purge bool,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		reader: reader,
		store:  store,
		audit:  audit,
		purge:  purge && reader != nil,
	}
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// ArchiveDetections exports every order_flow row before the cutoff and
// returns how many rows were written.
func (a *ArchiveImpl) ArchiveDetections(ctx context.Context, before time.Time) (int64, error) {
	records, err := a.store.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive detections query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	parts := partitionByMonth(records)
	paths := make([]string, 0, len(parts))
	for _, month := range sortedKeys(parts) {
		buf, err := marshalJSONL(parts[month])
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive detections marshal %s: %w", month, err)
		}
		path := archivePath("order_flow", month, before)
		if err := a.upload(ctx, path, buf); err != nil {
			return 0, fmt.Errorf("s3blob: archive detections upload: %w", err)
		}
		paths = append(paths, path)
	}

	count := int64(len(records))
	var purged int64
	if a.purge {
		for _, path := range paths {
			ok, err := a.reader.Exists(ctx, path)
			if err != nil {
				return count, fmt.Errorf("s3blob: archive detections verify: %w", err)
			}
			if !ok {
				return count, fmt.Errorf("s3blob: archive detections verify %s: %w", path, domain.ErrNotFound)
			}
		}
		purged, err = a.store.DeleteBefore(ctx, before)
		if err != nil {
			return count, fmt.Errorf("s3blob: archive detections purge: %w", err)
		}
	}

	if err := a.audit.Log(ctx, "archive.order_flow", map[string]any{
		"paths":  paths,
		"count":  count,
		"purged": purged,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive detections audit log: %w", err)
	}

	return count, nil
}

func (a *ArchiveImpl) upload(ctx context.Context, path string, buf []byte) error {
	if len(buf) > multipartThreshold {
		return a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
}

// partitionByMonth groups records by the UTC year-month of their timestamp.
func partitionByMonth(records []domain.FlowRecord) map[string][]domain.FlowRecord {
	parts := make(map[string][]domain.FlowRecord)
	for _, r := range records {
		month := r.Timestamp.UTC().Format("2006-01")
		parts[month] = append(parts[month], r)
	}
	return parts
}

func sortedKeys(m map[string][]domain.FlowRecord) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// archivePath builds the object key for one monthly part. The cutoff is
// part of the name so repeated runs never overwrite earlier exports.
//
//	archive/order_flow/2025-01/part-20250215T000000Z.jsonl
func archivePath(kind, month string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s/part-%s.jsonl", kind, month, before.UTC().Format("20060102T150405Z"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
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
