// Package repository provides persistence implementations for the
// authentication and mission services against a PostgreSQL database.
// Encrypted columns pass through the field codec on every read and write;
// nothing above this layer ever sees the encoded form.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/crypto"
	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/models"
)

// PostgresUserRepository implements user persistence using a PostgreSQL
// database.
type PostgresUserRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
	// Codec decrypts the user's data column.
	Codec *crypto.Codec
}

// NewPostgresUserRepository creates a new PostgresUserRepository with the
// given database connection and field codec.
func NewPostgresUserRepository(db *sql.DB, codec *crypto.Codec) *PostgresUserRepository {
	return &PostgresUserRepository{DB: db, Codec: codec}
}

const userColumns = `"ID", "UID", "OID", data, COALESCE(token, ''), token_expiration_date, "aktiveEID"`

// FindByUsernameHash looks up a user by the sha256 hex digest of
// "<organization id>-<username>". Returns (nil, nil) when no user matches.
func (r *PostgresUserRepository) FindByUsernameHash(ctx context.Context, usernameHash string) (*models.User, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM "user" WHERE username = $1`,
		usernameHash,
	)
	return r.scanUser(row)
}

// FindByTokenHash looks up a user by the sha256 hex digest of a bearer
// token. Returns (nil, nil) when no user matches.
func (r *PostgresUserRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*models.User, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM "user" WHERE token = $1`,
		tokenHash,
	)
	return r.scanUser(row)
}

// SaveToken stores the digest and expiry of a freshly issued session token,
// replacing any previous session of the user.
func (r *PostgresUserRepository) SaveToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE "user" SET token = $1, token_expiration_date = $2 WHERE "ID" = $3`,
		tokenHash, expiresAt, userID,
	)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// ClearToken nulls the token columns, revoking the user's session. The
// active mission selection is kept; validation cleanup must not unselect a
// mission.
func (r *PostgresUserRepository) ClearToken(ctx context.Context, userID int64) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE "user" SET token = NULL, token_expiration_date = NULL WHERE "ID" = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

// ClearSession nulls the token columns and the active mission selection.
// Used on logout; repeated calls are no-ops.
func (r *PostgresUserRepository) ClearSession(ctx context.Context, userID int64) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE "user" SET token = NULL, token_expiration_date = NULL, "aktiveEID" = NULL WHERE "ID" = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// SetActiveMission records the mission the user joined.
func (r *PostgresUserRepository) SetActiveMission(ctx context.Context, userID int64, eid int64) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE "user" SET "aktiveEID" = $1 WHERE "ID" = $2`,
		eid, userID,
	)
	if err != nil {
		return fmt.Errorf("set active mission: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) scanUser(row *sql.Row) (*models.User, error) {
	var (
		user      models.User
		data      string
		expiresAt sql.NullTime
		activeEID sql.NullInt64
	)
	err := row.Scan(&user.ID, &user.UID, &user.OID, &data, &user.TokenHash, &expiresAt, &activeEID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		user.TokenExpiresAt = &t
	}
	if activeEID.Valid {
		eid := activeEID.Int64
		user.ActiveMissionID = &eid
	}

	// The data column decrypts to a single-element array of field maps.
	var records []map[string]any
	if err := r.Codec.DecryptJSON(data, &records); err != nil {
		return nil, fmt.Errorf("decrypt user data: %w", err)
	}
	if len(records) > 0 {
		user.Data = records[0]
	} else {
		user.Data = map[string]any{}
	}
	return &user, nil
}
