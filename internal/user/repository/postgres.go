package repository

import (
	"context"
	"database/sql"
	"errors"

	"lm-identity/internal/user/domain"
)

const userColumns = `id, email, first_name, last_name, google_id, picture, role, organization_id, password_hash, registered, created_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByIDAndOrganization returns the user only when it belongs to orgID, or nil.
func (r *PostgresRepository) GetByIDAndOrganization(ctx context.Context, id, orgID string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 AND organization_id = $2`, id, orgID)
}

// GetByEmail returns the user for email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// ExistsByID reports whether a user with the id exists.
func (r *PostgresRepository) ExistsByID(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id,
	).Scan(&exists)
	return exists, err
}

// ExistsByEmail reports whether a user with the email exists.
func (r *PostgresRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email,
	).Scan(&exists)
	return exists, err
}

// Create persists the user. The user must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, first_name, last_name, google_id, picture, role, organization_id, password_hash, registered, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		u.ID, u.Email, nullStr(u.FirstName), nullStr(u.LastName), nullStr(u.GoogleID), nullStr(u.Picture),
		nullStr(u.Role), nullStr(u.OrganizationID), nullStr(u.PasswordHash), u.Registered, u.CreatedAt,
	)
	return err
}

// CompleteRegistration sets name and password hash and flips registered to true.
func (r *PostgresRepository) CompleteRegistration(ctx context.Context, id, firstName, lastName, passwordHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET first_name = $2, last_name = $3, password_hash = $4, registered = TRUE WHERE id = $1`,
		id, nullStr(firstName), nullStr(lastName), passwordHash,
	)
	return err
}

// LinkGoogle stores the google id and picture and flips registered to true.
func (r *PostgresRepository) LinkGoogle(ctx context.Context, id, googleID, picture string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET google_id = $2, picture = $3, registered = TRUE WHERE id = $1`,
		id, googleID, nullStr(picture),
	)
	return err
}

// UpdateRole sets the user's role.
func (r *PostgresRepository) UpdateRole(ctx context.Context, id, role string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET role = $2 WHERE id = $1`,
		id, role,
	)
	return err
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var (
		u                                                        domain.User
		firstName, lastName, googleID, picture, role, orgID, pwd sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Email, &firstName, &lastName, &googleID, &picture, &role, &orgID, &pwd, &u.Registered, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.FirstName = firstName.String
	u.LastName = lastName.String
	u.GoogleID = googleID.String
	u.Picture = picture.String
	u.Role = role.String
	u.OrganizationID = orgID.String
	u.PasswordHash = pwd.String
	return &u, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
