package repository

import (
	"context"

	"lm-identity/internal/telemetry/domain"
)

// Repository defines persistence for telemetry events. The worker saves
// consumed events here so they are queryable after their Loki retention.
type Repository interface {
	Save(ctx context.Context, e *domain.Event) error
	ListByOrg(ctx context.Context, orgID string, limit, offset int) ([]*domain.Event, error)
}
