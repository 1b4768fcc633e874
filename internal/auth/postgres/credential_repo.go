// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

// Package postgres implements auth.CredentialStore on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/trailhead/trailhead/internal/auth"
)

// emailConstraint is the unique index on users.email.
const emailConstraint = "users_email_key"

const credentialColumns = `id, email, password_hash, role, password_changed_at,
	reset_token_hash, reset_expires_at, active, failed_logins, locked_until,
	version, created_at, updated_at`

// poolIface is the subset of *pgxpool.Pool used by the repository.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CredentialRepository implements auth.CredentialStore using PostgreSQL.
type CredentialRepository struct {
	pool poolIface
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(pool poolIface) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

// FindByID retrieves a credential by ID.
func (r *CredentialRepository) FindByID(ctx context.Context, id ulid.ULID) (*auth.UserCredential, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+credentialColumns+` FROM users WHERE id = $1`, id.String())
	return r.findOne(row, "id", id.String())
}

// FindByEmail retrieves a credential by normalized email.
func (r *CredentialRepository) FindByEmail(ctx context.Context, email string) (*auth.UserCredential, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+credentialColumns+` FROM users WHERE email = $1`, email)
	return r.findOne(row, "email", email)
}

// FindByResetTokenHash retrieves the credential holding a pending reset digest.
func (r *CredentialRepository) FindByResetTokenHash(ctx context.Context, tokenHash string) (*auth.UserCredential, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+credentialColumns+` FROM users WHERE reset_token_hash = $1`, tokenHash)
	return r.findOne(row, "lookup", "reset_token_hash")
}

func (r *CredentialRepository) findOne(row pgx.Row, key, value string) (*auth.UserCredential, error) {
	cred, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("CREDENTIAL_NOT_FOUND").
			With(key, value).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("CREDENTIAL_GET_FAILED").
			With("operation", "get credential by "+key).
			With(key, value).
			Wrap(err)
	}
	return cred, nil
}

// Insert stores a new credential.
func (r *CredentialRepository) Insert(ctx context.Context, cred *auth.UserCredential) error {
	var resetHash *string
	var resetExpires *time.Time
	if cred.PendingReset != nil {
		resetHash = &cred.PendingReset.TokenHash
		resetExpires = &cred.PendingReset.ExpiresAt
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (`+credentialColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		cred.ID.String(),
		cred.Email,
		cred.PasswordHash,
		string(cred.Role),
		cred.PasswordChangedAt,
		resetHash,
		resetExpires,
		cred.Active,
		cred.FailedLogins,
		cred.LockedUntil,
		cred.Version,
		cred.CreatedAt,
		cred.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == emailConstraint {
			return oops.Code("CREDENTIAL_DUPLICATE_EMAIL").
				With("email", cred.Email).
				Wrap(auth.ErrDuplicateEmail)
		}
		return oops.Code("CREDENTIAL_INSERT_FAILED").
			With("operation", "insert credential").
			With("id", cred.ID.String()).
			Wrap(err)
	}
	return nil
}

// Update applies update in a single conditional statement. The precondition
// is part of the WHERE clause, so concurrent updates serialize on the row lock.
func (r *CredentialRepository) Update(
	ctx context.Context,
	id ulid.ULID,
	update auth.CredentialUpdate,
	pre auth.Precondition,
) error {
	query, args := buildUpdate(id, update, pre)

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return oops.Code("CREDENTIAL_UPDATE_FAILED").
			With("operation", "update credential").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if pre == (auth.Precondition{}) {
		return errCredentialNotFound(id)
	}

	// Zero rows: either the record is gone or the precondition failed.
	var exists bool
	err = r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id.String()).Scan(&exists)
	if err != nil {
		return oops.Code("CREDENTIAL_UPDATE_FAILED").
			With("operation", "check credential exists").
			With("id", id.String()).
			Wrap(err)
	}
	if !exists {
		return errCredentialNotFound(id)
	}
	return oops.Code("CREDENTIAL_CONFLICT").
		With("id", id.String()).
		Wrap(auth.ErrConcurrentModification)
}

// PurgeExpiredResets clears every pending reset that expired at or before now.
func (r *CredentialRepository) PurgeExpiredResets(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET
			reset_token_hash = NULL,
			reset_expires_at = NULL,
			version = version + 1,
			updated_at = now()
		WHERE reset_expires_at <= $1
	`, now)
	if err != nil {
		return 0, oops.Code("CREDENTIAL_PURGE_FAILED").
			With("operation", "purge expired resets").
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// buildUpdate renders the UPDATE statement for a CredentialUpdate.
// $1 is always the credential ID.
func buildUpdate(id ulid.ULID, u auth.CredentialUpdate, pre auth.Precondition) (string, []any) {
	args := []any{id.String()}
	var sets []string
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if u.PasswordHash != nil {
		set("password_hash", *u.PasswordHash)
	}
	if u.PasswordChangedAt != nil {
		set("password_changed_at", *u.PasswordChangedAt)
	}
	if u.Role != nil {
		set("role", string(*u.Role))
	}
	if u.Active != nil {
		set("active", *u.Active)
	}
	switch {
	case u.SetReset != nil:
		set("reset_token_hash", u.SetReset.TokenHash)
		set("reset_expires_at", u.SetReset.ExpiresAt)
	case u.ClearReset:
		sets = append(sets, "reset_token_hash = NULL", "reset_expires_at = NULL")
	}
	if u.LoginFailures != nil {
		set("failed_logins", u.LoginFailures.Count)
		set("locked_until", u.LoginFailures.LockedUntil)
	}
	sets = append(sets, "version = version + 1", "updated_at = now()")

	where := []string{"id = $1"}
	if pre.Version != 0 {
		args = append(args, pre.Version)
		where = append(where, fmt.Sprintf("version = $%d", len(args)))
	}
	if pre.ResetTokenHash != "" {
		args = append(args, pre.ResetTokenHash)
		where = append(where, fmt.Sprintf("reset_token_hash = $%d", len(args)))
	}

	query := "UPDATE users SET " + strings.Join(sets, ", ") + " WHERE " + strings.Join(where, " AND ")
	return query, args
}

func errCredentialNotFound(id ulid.ULID) error {
	return oops.Code("CREDENTIAL_NOT_FOUND").
		With("id", id.String()).
		Wrap(auth.ErrNotFound)
}

// scanCredential scans a single row into a UserCredential.
// Callers are responsible for handling pgx.ErrNoRows.
func scanCredential(row pgx.Row) (*auth.UserCredential, error) {
	var (
		idStr        string
		email        string
		passwordHash string
		role         string
		changedAt    *time.Time
		resetHash    *string
		resetExpires *time.Time
		active       bool
		failedLogins int
		lockedUntil  *time.Time
		version      int64
		createdAt    time.Time
		updatedAt    time.Time
	)

	err := row.Scan(
		&idStr,
		&email,
		&passwordHash,
		&role,
		&changedAt,
		&resetHash,
		&resetExpires,
		&active,
		&failedLogins,
		&lockedUntil,
		&version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with lookup context
		}
		return nil, oops.Code("CREDENTIAL_SCAN_FAILED").
			With("operation", "scan credential").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("CREDENTIAL_INVALID_ID").
			With("id", idStr).
			Wrap(err)
	}

	cred := &auth.UserCredential{
		ID:           id,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         auth.Role(role),
		Active:       active,
		FailedLogins: failedLogins,
		Version:      version,
		CreatedAt:    createdAt.UTC(),
		UpdatedAt:    updatedAt.UTC(),
	}
	cred.PasswordChangedAt = utcPtr(changedAt)
	cred.LockedUntil = utcPtr(lockedUntil)
	if resetHash != nil && resetExpires != nil {
		cred.PendingReset = &auth.PendingReset{TokenHash: *resetHash, ExpiresAt: resetExpires.UTC()}
	}
	return cred, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// Compile-time interface check.
var _ auth.CredentialStore = (*CredentialRepository)(nil)
