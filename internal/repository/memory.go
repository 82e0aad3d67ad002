package repository

import (
	"context"
	"sync"

	"hostelcart/internal/models"
)

type MemorySnapshotRepository struct {
	snapshots sync.Map
}

func NewMemorySnapshotRepository() *MemorySnapshotRepository {
	return &MemorySnapshotRepository{}
}

func (r *MemorySnapshotRepository) GetSnapshot(ctx context.Context, sessionID string) (*models.CartSnapshot, error) {
	val, ok := r.snapshots.Load(sessionID)
	if !ok {
		return nil, nil
	}
	return val.(*models.CartSnapshot), nil
}

func (r *MemorySnapshotRepository) SaveSnapshot(ctx context.Context, snapshot *models.CartSnapshot) error {
	r.snapshots.Store(snapshot.SessionID, snapshot)
	return nil
}

func (r *MemorySnapshotRepository) DeleteSnapshot(ctx context.Context, sessionID string) error {
	r.snapshots.Delete(sessionID)
	return nil
}
