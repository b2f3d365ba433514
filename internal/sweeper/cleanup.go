package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/clock"
	"github.com/opsdeskhq/opsdesk/internal/platform/blob"
	"github.com/opsdeskhq/opsdesk/internal/store"
)

// CleanupSweeper enforces retention: it deletes the blob artifacts of
// expired import and export jobs and prunes the webhook log table to the
// configured age window and row ceiling.
type CleanupSweeper struct {
	imports store.ImportJobStore
	exports store.ExportJobStore
	logs    store.WebhookLogStore
	blobs   blob.Store
	clock   clock.Clock

	retention time.Duration
	ceiling   int
	batchSize int
	logger    *slog.Logger
}

// NewCleanupSweeper creates a CleanupSweeper.
func NewCleanupSweeper(
	imports store.ImportJobStore,
	exports store.ExportJobStore,
	logs store.WebhookLogStore,
	blobs blob.Store,
	clk clock.Clock,
	retention time.Duration,
	ceiling int,
	batchSize int,
	logger *slog.Logger,
) *CleanupSweeper {
	return &CleanupSweeper{
		imports:   imports,
		exports:   exports,
		logs:      logs,
		blobs:     blobs,
		clock:     clk,
		retention: retention,
		ceiling:   ceiling,
		batchSize: batchSize,
		logger:    logger.With("sweeper", "cleanup"),
	}
}

// Name implements Sweeper.
func (s *CleanupSweeper) Name() string { return "cleanup" }

// Sweep runs one retention pass over jobs and webhook logs. The three
// concerns are independent: a failure in one is reported but does not stop
// the others.
func (s *CleanupSweeper) Sweep(ctx context.Context) error {
	now := s.clock.Now()

	var firstErr error
	if err := s.cleanImportJobs(ctx, now); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.cleanExportJobs(ctx, now); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.pruneWebhookLogs(ctx, now); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (s *CleanupSweeper) cleanImportJobs(ctx context.Context, now time.Time) error {
	expired, err := s.imports.ListExpired(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list expired import jobs: %w", err)
	}

	var firstErr error
	for _, job := range expired {
		if err := s.cleanJobArtifacts(ctx, job.ID.String(), job.SourceKey, job.ErrorFileKey); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		// The flag is only set after every artifact is gone, so a partial
		// failure retries the whole job next pass. Deletes are idempotent.
		if err := s.imports.MarkCleanedUp(ctx, job.ID); err != nil {
			s.logger.Error("failed to mark import job cleaned up", "job_id", job.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *CleanupSweeper) cleanExportJobs(ctx context.Context, now time.Time) error {
	expired, err := s.exports.ListExpired(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list expired export jobs: %w", err)
	}

	var firstErr error
	for _, job := range expired {
		if err := s.cleanJobArtifacts(ctx, job.ID.String(), job.OutputKey); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := s.exports.MarkCleanedUp(ctx, job.ID); err != nil {
			s.logger.Error("failed to mark export job cleaned up", "job_id", job.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *CleanupSweeper) cleanJobArtifacts(ctx context.Context, jobID string, keys ...string) error {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, key); err != nil {
			s.logger.Error("failed to delete job artifact",
				"job_id", jobID,
				"key", key,
				"error", err)
			return err
		}
	}
	s.logger.Info("job artifacts cleaned up", "job_id", jobID)
	return nil
}

// pruneWebhookLogs applies the age window first, then enforces the absolute
// row ceiling by deleting the oldest surplus.
func (s *CleanupSweeper) pruneWebhookLogs(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-s.retention)
	aged, err := s.logs.DeleteOlderThan(ctx, cutoff, s.batchSize)
	if err != nil {
		return fmt.Errorf("failed to prune aged webhook logs: %w", err)
	}

	total, err := s.logs.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count webhook logs: %w", err)
	}

	trimmed := 0
	if surplus := total - s.ceiling; surplus > 0 {
		if surplus > s.batchSize {
			surplus = s.batchSize
		}
		trimmed, err = s.logs.DeleteOldest(ctx, surplus)
		if err != nil {
			return fmt.Errorf("failed to trim webhook logs to ceiling: %w", err)
		}
	}

	if aged > 0 || trimmed > 0 {
		s.logger.Info("webhook logs pruned", "aged", aged, "trimmed", trimmed)
	}
	return nil
}

var _ Sweeper = (*CleanupSweeper)(nil)
