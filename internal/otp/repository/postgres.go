package repository

import (
	"context"
	"database/sql"
	"errors"

	"lm-identity/internal/otp/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an OTP repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FunctionalityByName returns the policy for name, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) FunctionalityByName(ctx context.Context, name string) (*domain.Functionality, error) {
	var f domain.Functionality
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, time_to_live, attempt_limit FROM otp_functionality WHERE name = $1`,
		name,
	).Scan(&f.ID, &f.Name, &f.TimeToLive, &f.AttemptLimit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &f, nil
}

// CreateFunctionality persists the policy. The policy must have ID set.
func (r *PostgresRepository) CreateFunctionality(ctx context.Context, f *domain.Functionality) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO otp_functionality (id, name, time_to_live, attempt_limit) VALUES ($1, $2, $3, $4)`,
		f.ID, f.Name, f.TimeToLive, f.AttemptLimit,
	)
	return err
}

// ReplaceActive deactivates all active challenges for c.Email and inserts c in
// one transaction, so the one-active-challenge-per-email invariant holds even
// against concurrent verifies.
func (r *PostgresRepository) ReplaceActive(ctx context.Context, c *domain.Challenge) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE otp SET active = FALSE WHERE email = $1 AND active = TRUE`,
		c.Email,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO otp (id, code, passphrase, payload, hash_object, attempt, active, status, email, functionality_id, created)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.Code, c.Passphrase, c.Payload, c.PayloadHash, c.Attempt, c.Active, c.Status, c.Email, c.FunctionalityID, c.CreatedAt,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// LatestActiveByHash returns the newest active challenge for the payload hash, or nil if none.
func (r *PostgresRepository) LatestActiveByHash(ctx context.Context, hash string) (*domain.Challenge, error) {
	var c domain.Challenge
	err := r.db.QueryRowContext(ctx,
		`SELECT id, code, passphrase, payload, hash_object, attempt, active, status, email, functionality_id, created
		 FROM otp
		 WHERE hash_object = $1 AND active = TRUE
		 ORDER BY created DESC
		 LIMIT 1`,
		hash,
	).Scan(&c.ID, &c.Code, &c.Passphrase, &c.Payload, &c.PayloadHash, &c.Attempt, &c.Active, &c.Status, &c.Email, &c.FunctionalityID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// IncrementAttempt bumps the attempt counter in a single UPDATE and returns the
// new count. The increment is committed even if the surrounding verify fails later.
func (r *PostgresRepository) IncrementAttempt(ctx context.Context, id string) (int, error) {
	var attempt int
	err := r.db.QueryRowContext(ctx,
		`UPDATE otp SET attempt = attempt + 1 WHERE id = $1 RETURNING attempt`,
		id,
	).Scan(&attempt)
	if err != nil {
		return 0, err
	}
	return attempt, nil
}

// Finish marks the challenge with a terminal status and deactivates it.
func (r *PostgresRepository) Finish(ctx context.Context, id string, status domain.Status) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE otp SET status = $2, active = FALSE WHERE id = $1`,
		id, status,
	)
	return err
}
