package repository

import (
	"context"
	"sync/atomic"
	"time"

	"hostelcart/internal/domain"
	"hostelcart/internal/models"

	"github.com/rs/zerolog"
)

type FailoverSnapshotRepository struct {
	primary   domain.SnapshotRepository
	fallback  domain.SnapshotRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck time.Time
}

func NewFailoverSnapshotRepository(primary, fallback domain.SnapshotRepository, logger *zerolog.Logger) *FailoverSnapshotRepository {
	return &FailoverSnapshotRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverSnapshotRepository) GetSnapshot(ctx context.Context, sessionID string) (*models.CartSnapshot, error) {
	if !r.isDown.Load() {
		snapshot, err := r.primary.GetSnapshot(ctx, sessionID)
		if err == nil {
			return snapshot, nil
		}
		r.logger.Error().Err(err).Msg("Primary snapshot repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	// Try to recover after 1 minute
	if r.isDown.Load() && time.Since(r.lastCheck) > time.Minute {
		snapshot, err := r.primary.GetSnapshot(ctx, sessionID)
		if err == nil {
			r.isDown.Store(false)
			return snapshot, nil
		}
		r.lastCheck = time.Now()
	}

	return r.fallback.GetSnapshot(ctx, sessionID)
}

func (r *FailoverSnapshotRepository) SaveSnapshot(ctx context.Context, snapshot *models.CartSnapshot) error {
	if !r.isDown.Load() {
		err := r.primary.SaveSnapshot(ctx, snapshot)
		if err == nil {
			return nil
		}
		r.logger.Error().Err(err).Msg("Primary snapshot repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	return r.fallback.SaveSnapshot(ctx, snapshot)
}

func (r *FailoverSnapshotRepository) DeleteSnapshot(ctx context.Context, sessionID string) error {
	if !r.isDown.Load() {
		err := r.primary.DeleteSnapshot(ctx, sessionID)
		if err == nil {
			return nil
		}
		r.logger.Error().Err(err).Msg("Primary snapshot repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	return r.fallback.DeleteSnapshot(ctx, sessionID)
}
