package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"lm-identity/internal/telemetry/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a telemetry repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Save persists the event and fills in its assigned id.
func (r *PostgresRepository) Save(ctx context.Context, e *domain.Event) error {
	var meta any
	if len(e.Metadata) > 0 {
		meta = []byte(e.Metadata)
	}
	return r.db.QueryRowContext(ctx,
		`INSERT INTO telemetry (org_id, user_id, event_type, source, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		e.OrgID, nullStr(e.UserID), e.EventType, e.Source, meta, e.CreatedAt,
	).Scan(&e.ID)
}

// ListByOrg returns events for the org, newest first, paginated by limit and offset.
func (r *PostgresRepository) ListByOrg(ctx context.Context, orgID string, limit, offset int) ([]*domain.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, org_id, user_id, event_type, source, metadata, created_at
		 FROM telemetry
		 WHERE org_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		orgID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Event
	for rows.Next() {
		var (
			e      domain.Event
			userID sql.NullString
			meta   []byte
		)
		if err := rows.Scan(&e.ID, &e.OrgID, &userID, &e.EventType, &e.Source, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.UserID = userID.String
		if len(meta) > 0 {
			e.Metadata = json.RawMessage(meta)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
