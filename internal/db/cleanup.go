package db

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultCleanupInterval = 1 * time.Hour
)

// CleanupService periodically sweeps rows whose expiry is a simple time
// comparison rather than a state machine transition (refresh tokens). Ban
// and mute expiry stay lazy (evaluated at authorization-check time) and are
// not part of this sweep.
type CleanupService struct {
	refreshTokens *RefreshTokenRepository
	interval      time.Duration
}

func NewCleanupService(refreshTokens *RefreshTokenRepository) *CleanupService {
	return &CleanupService{
		refreshTokens: refreshTokens,
		interval:      DefaultCleanupInterval,
	}
}

func (s *CleanupService) Start(ctx context.Context) {
	slog.Info("starting token cleanup service", "component", "db_cleanup", "interval", s.interval)

	s.runCleanup()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping token cleanup service", "component", "db_cleanup")
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

func (s *CleanupService) runCleanup() {
	refreshDeleted, err := s.refreshTokens.DeleteExpired()
	if err != nil {
		slog.Error("error deleting expired refresh tokens", "component", "db_cleanup", "error", err)
	} else if refreshDeleted > 0 {
		slog.Info("deleted expired refresh tokens", "component", "db_cleanup", "count", refreshDeleted)
	}
}
