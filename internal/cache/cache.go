package cache

import (
	"context"
	"time"

	"mechshop/backend/internal/domain"
)

// DashboardCache holds a recently computed dashboard summary. Entries are
// TTL-only; mutations do not invalidate, so the summary may lag by up to
// the configured TTL.
type DashboardCache interface {
	Get(ctx context.Context, key string) (*domain.DashboardStats, bool, error)
	Set(ctx context.Context, key string, value *domain.DashboardStats, ttl time.Duration) error
}

type NoopDashboardCache struct{}

func (NoopDashboardCache) Get(_ context.Context, _ string) (*domain.DashboardStats, bool, error) {
	return nil, false, nil
}

func (NoopDashboardCache) Set(_ context.Context, _ string, _ *domain.DashboardStats, _ time.Duration) error {
	return nil
}
