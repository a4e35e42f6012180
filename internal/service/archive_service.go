package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/adcal/slotmarket/internal/domain"
)

// ArchiveService periodically moves old sales and audit entries to cold
// storage.
type ArchiveService struct {
	archiver  domain.Archiver
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
}

// NewArchiveService creates an ArchiveService that runs every interval and
// archives records older than the retention window.
func NewArchiveService(archiver domain.Archiver, interval, retention time.Duration, logger *slog.Logger) *ArchiveService {
	return &ArchiveService{
		archiver:  archiver,
		interval:  interval,
		retention: retention,
		logger:    logger.With(slog.String("component", "archive_service")),
	}
}

// Run blocks until the context is cancelled, archiving on each tick.
func (s *ArchiveService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "archive service started",
		slog.Duration("interval", s.interval),
		slog.Duration("retention", s.retention),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce performs a single archival pass.
func (s *ArchiveService) runOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.retention)

	salesCount, err := s.archiver.ArchiveSales(ctx, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "sales archive failed",
			slog.String("error", err.Error()),
		)
	}

	auditCount, err := s.archiver.ArchiveAuditLog(ctx, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "audit archive failed",
			slog.String("error", err.Error()),
		)
	}

	if salesCount > 0 || auditCount > 0 {
		s.logger.InfoContext(ctx, "archive pass complete",
			slog.Int64("sales", salesCount),
			slog.Int64("audit_entries", auditCount),
			slog.Time("cutoff", cutoff),
		)
	}
}
