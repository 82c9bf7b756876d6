package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository is the Postgres-backed [Store] implementation, driven through
// the pgx stdlib adapter.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `
	id, identifier, email, country_code, phone_number, name, password_hash,
	role, status, verified, two_factor_enabled, created_at, updated_at
`

func (r *Repository) scanUser(row *sql.Row) (*User, error) {
	var user User
	err := row.Scan(
		&user.ID, &user.Identifier, &user.Email, &user.CountryCode,
		&user.PhoneNumber, &user.Name, &user.PasswordHash,
		&user.Role, &user.Status, &user.Verified, &user.TwoFactorEnabled,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &user, nil
}

func (r *Repository) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE identifier = $1
	`, identifier))
}

func (r *Repository) FindByID(ctx context.Context, id int64) (*User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id))
}

// Create inserts a new profile row. A row whose account was deleted does not
// block re-registration: the conflict clause reclaims it in place, resetting
// it to the fresh signup state. A live row under the identifier yields
// ErrDuplicate.
func (r *Repository) Create(ctx context.Context, input CreateInput) (*User, error) {
	now := time.Now().UTC()
	user, err := r.scanUser(r.db.QueryRowContext(ctx, `
		INSERT INTO users (
			identifier, email, country_code, phone_number, name, password_hash,
			role, status, verified, two_factor_enabled, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, 'normal', $7, false, false, $8, $8)
		ON CONFLICT (identifier) DO UPDATE
			SET email = EXCLUDED.email,
			    country_code = EXCLUDED.country_code,
			    phone_number = EXCLUDED.phone_number,
			    name = EXCLUDED.name,
			    password_hash = EXCLUDED.password_hash,
			    role = 'normal',
			    status = EXCLUDED.status,
			    verified = false,
			    two_factor_enabled = false,
			    updated_at = EXCLUDED.updated_at
			WHERE users.status = $9
		RETURNING `+userColumns+`
	`, input.Identifier, input.Email, input.CountryCode, input.PhoneNumber,
		input.Name, input.PasswordHash, input.Status, now, StatusDeleted))
	if err != nil {
		// No row back means the conflict row is live.
		if errors.Is(err, ErrNotFound) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return user, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET status = $2, updated_at = $3 WHERE id = $1
	`, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1
	`, id, hash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) FindOrCreateExternal(ctx context.Context, provider, subject, email, name string) (*User, error) {
	user, err := r.scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE external_provider = $1 AND external_subject = $2
	`, provider, subject))
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// Social accounts arrive pre-verified by the provider, so they are
	// created active.
	now := time.Now().UTC()
	return r.scanUser(r.db.QueryRowContext(ctx, `
		INSERT INTO users (
			identifier, email, name, password_hash,
			role, status, verified, two_factor_enabled,
			external_provider, external_subject, created_at, updated_at
		)
		VALUES ($1, $1, $2, '', 'normal', $3, false, false, $4, $5, $6, $6)
		ON CONFLICT (identifier) DO UPDATE
			SET external_provider = EXCLUDED.external_provider,
			    external_subject = EXCLUDED.external_subject,
			    updated_at = EXCLUDED.updated_at
		RETURNING `+userColumns+`
	`, email, name, StatusActive, provider, subject, now))
}
