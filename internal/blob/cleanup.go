package blob

import (
	"context"
	"log/slog"
	"time"

	"relay/internal/db"
)

const (
	DefaultCleanupInterval = 1 * time.Hour
	DefaultCleanupBatch    = 100
)

// CleanupService sweeps attachment blobs whose owning message row is gone
// (deleted channel, failed upload finalize) — an operator-triggered/periodic
// orphan GC, since spec leaves the policy undefined beyond exposing the
// query.
type CleanupService struct {
	attachments *db.AttachmentRepository
	blobs       *Service
	interval    time.Duration
	batchSize   int
}

func NewCleanupService(attachments *db.AttachmentRepository, blobs *Service) *CleanupService {
	return &CleanupService{
		attachments: attachments,
		blobs:       blobs,
		interval:    DefaultCleanupInterval,
		batchSize:   DefaultCleanupBatch,
	}
}

func (s *CleanupService) Start(ctx context.Context) {
	slog.Info("starting blob cleanup service", "component", "blob_cleanup", "interval", s.interval)

	s.runCleanup(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping blob cleanup service", "component", "blob_cleanup")
			return
		case <-ticker.C:
			s.runCleanup(ctx)
		}
	}
}

func (s *CleanupService) runCleanup(_ context.Context) {
	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	blobIDs, err := s.attachments.OrphanedCreatedBefore(cutoff, s.batchSize)
	if err != nil {
		slog.Error("error listing orphaned chat attachments", "component", "blob_cleanup", "error", err)
		return
	}

	for _, blobID := range blobIDs {
		relPath := blobRelativePath(KindChatAttachment, blobID)
		if err := s.blobs.Delete(relPath); err != nil {
			slog.Warn("error deleting orphaned chat attachment", "component", "blob_cleanup", "error", err, "blob_id", blobID)
			continue
		}
		if err := s.blobs.Delete(ChatAttachmentPreviewRelativePath(blobID)); err != nil {
			slog.Warn("error deleting orphaned chat attachment preview", "component", "blob_cleanup", "error", err, "blob_id", blobID)
		}
	}

	if len(blobIDs) > 0 {
		slog.Info("deleted orphaned chat attachments", "component", "blob_cleanup", "count", len(blobIDs))
	}
}
