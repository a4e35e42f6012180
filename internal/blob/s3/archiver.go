package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adcal/slotmarket/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// SaleArchiveStore is the slice of the sale store the archiver reads from.
type SaleArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Sale, error)
}

// AuditArchiveStore is the slice of the audit store the archiver reads from.
type AuditArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error)
}

// AuditLogger records the archival event itself.
type AuditLogger interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}

// Archive implements domain.Archiver: it drains old sales and audit entries
// into month-partitioned JSONL objects under archive/ in the bucket. The
// archived rows stay in Postgres; pruning them is a separate operator action
// once the upload has been checked.
type Archive struct {
	writer domain.BlobWriter
	sales  SaleArchiveStore
	audit  AuditArchiveStore
	logger AuditLogger
}

// NewArchiver wires the archive against a blob writer and the two stores it
// drains. The logger receives one audit event per completed upload.
func NewArchiver(writer domain.BlobWriter, sales SaleArchiveStore, audit AuditArchiveStore, logger AuditLogger) *Archive {
	return &Archive{writer: writer, sales: sales, audit: audit, logger: logger}
}

// ArchiveSales uploads every sale recorded before the cutoff to
// archive/sales/YYYY-MM.jsonl and returns how many rows went out.
func (a *Archive) ArchiveSales(ctx context.Context, before time.Time) (int64, error) {
	sales, err := a.sales.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive sales query: %w", err)
	}
	return a.upload(ctx, "sales", before, encodeJSONL(sales))
}

// ArchiveAuditLog uploads every audit entry recorded before the cutoff to
// archive/audit/YYYY-MM.jsonl and returns how many rows went out.
func (a *Archive) ArchiveAuditLog(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit log query: %w", err)
	}
	return a.upload(ctx, "audit", before, encodeJSONL(entries))
}

// upload writes an encoded batch to its archive key and records the audit
// event. Empty batches are skipped without touching the bucket.
func (a *Archive) upload(ctx context.Context, kind string, before time.Time, batch batch) (int64, error) {
	if batch.err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, batch.err)
	}
	if batch.count == 0 {
		return 0, nil
	}

	// Keys are partitioned by the cutoff's year-month, e.g.
	// archive/sales/2026-08.jsonl.
	path := fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
	if err := a.writer.Put(ctx, path, bytes.NewReader(batch.data), jsonlContentType); err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	if err := a.logger.Log(ctx, "archive."+kind, map[string]any{
		"path":   path,
		"count":  batch.count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return batch.count, fmt.Errorf("s3blob: archive %s audit log: %w", kind, err)
	}
	return batch.count, nil
}

type batch struct {
	data  []byte
	count int64
	err   error
}

// encodeJSONL renders records as newline-delimited JSON, one compact object
// per line.
func encodeJSONL[T any](records []T) batch {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return batch{err: fmt.Errorf("record %d: %w", i, err)}
		}
	}
	return batch{data: buf.Bytes(), count: int64(len(records))}
}

var _ domain.Archiver = (*Archive)(nil)
