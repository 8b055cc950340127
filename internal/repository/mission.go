package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/apperr"
	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/crypto"
	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/models"
)

// maxMutateAttempts bounds the retries of a document mutation that lost a
// lock race (serialization failure or deadlock).
const maxMutateAttempts = 3

// PostgresMissionRepository implements mission persistence using a
// PostgreSQL database. The roster and POI documents live in encrypted
// columns of the settings table and are mutated read-modify-write under the
// mission's row lock, so two concurrent updates can never overwrite each
// other.
type PostgresMissionRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
	// Codec translates the encrypted document columns.
	Codec *crypto.Codec
}

// NewPostgresMissionRepository creates a new PostgresMissionRepository with
// the given database connection and field codec.
func NewPostgresMissionRepository(db *sql.DB, codec *crypto.Codec) *PostgresMissionRepository {
	return &PostgresMissionRepository{DB: db, Codec: codec}
}

// GetByEID fetches a mission's core record. Returns apperr.ErrNotFound when
// the mission does not exist.
func (r *PostgresMissionRepository) GetByEID(ctx context.Context, eid int64) (*models.Mission, error) {
	var (
		mission models.Mission
		data    string
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT "EID", typ, data FROM settings WHERE "EID" = $1`,
		eid,
	).Scan(&mission.EID, &mission.Type, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mission %d: %w", eid, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get mission: %w", err)
	}
	if err := r.decryptRecord(data, &mission.Data); err != nil {
		return nil, fmt.Errorf("decrypt mission data: %w", err)
	}
	return &mission, nil
}

// ListAll returns all missions ordered by EID descending (newest first),
// with their decrypted data records.
func (r *PostgresMissionRepository) ListAll(ctx context.Context) ([]models.Mission, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT "EID", typ, data FROM settings ORDER BY "EID" DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	defer rows.Close()

	var missions []models.Mission
	for rows.Next() {
		var (
			mission models.Mission
			data    string
		)
		if err := rows.Scan(&mission.EID, &mission.Type, &data); err != nil {
			return nil, fmt.Errorf("scan mission: %w", err)
		}
		if err := r.decryptRecord(data, &mission.Data); err != nil {
			return nil, fmt.Errorf("decrypt mission data: %w", err)
		}
		missions = append(missions, mission)
	}
	return missions, rows.Err()
}

// GetWanted returns the decrypted target-person record of a mission, or an
// empty map when none is stored.
func (r *PostgresMissionRepository) GetWanted(ctx context.Context, eid int64) (map[string]any, error) {
	stored, err := r.getColumn(ctx, `gesucht`, eid)
	if err != nil {
		return nil, err
	}
	var wanted map[string]any
	if err := r.decryptRecord(stored, &wanted); err != nil {
		return nil, fmt.Errorf("decrypt wanted record: %w", err)
	}
	if wanted == nil {
		wanted = map[string]any{}
	}
	return wanted, nil
}

// GetSearchAreas returns the decrypted search-area GeoJSON document of a
// mission, or an empty document when none is stored.
func (r *PostgresMissionRepository) GetSearchAreas(ctx context.Context, eid int64) (map[string]any, error) {
	stored, err := r.getColumn(ctx, `suchgebiete`, eid)
	if err != nil {
		return nil, err
	}
	var areas map[string]any
	if err := r.Codec.DecryptJSON(stored, &areas); err != nil {
		return nil, fmt.Errorf("decrypt search areas: %w", err)
	}
	if areas == nil {
		areas = map[string]any{}
	}
	return areas, nil
}

// MutateRoster applies fn to the mission's roster document inside a
// transaction that holds the mission's row lock, then persists the result.
// Concurrent mutations of the same mission serialize on the lock; a call
// that keeps losing the race fails with apperr.ErrConflict after bounded
// retries.
func (r *PostgresMissionRepository) MutateRoster(ctx context.Context, eid int64, fn func([]models.Participant) ([]models.Participant, error)) error {
	return r.mutateColumn(ctx, `personen_im_einsatz`, eid, func(stored string) (string, error) {
		var participants []models.Participant
		if err := r.Codec.DecryptJSON(stored, &participants); err != nil {
			return "", fmt.Errorf("decrypt roster: %w", err)
		}
		updated, err := fn(participants)
		if err != nil {
			return "", err
		}
		return r.Codec.EncryptJSON(updated)
	})
}

// MutatePOIs applies fn to the mission's point-of-interest GeoJSON document
// under the same locking discipline as MutateRoster.
func (r *PostgresMissionRepository) MutatePOIs(ctx context.Context, eid int64, fn func(map[string]any) (map[string]any, error)) error {
	return r.mutateColumn(ctx, `pois`, eid, func(stored string) (string, error) {
		var pois map[string]any
		if err := r.Codec.DecryptJSON(stored, &pois); err != nil {
			return "", fmt.Errorf("decrypt pois: %w", err)
		}
		if pois == nil {
			pois = map[string]any{"type": "FeatureCollection", "features": []any{}}
		}
		updated, err := fn(pois)
		if err != nil {
			return "", err
		}
		return r.Codec.EncryptJSON(updated)
	})
}

// mutateColumn runs a read-modify-write cycle on one encrypted document
// column of the settings table. The SELECT ... FOR UPDATE takes the mission
// row lock for the duration of the transaction; this is what makes the
// cycle safe against lost updates, including against other processes
// sharing the database.
func (r *PostgresMissionRepository) mutateColumn(ctx context.Context, column string, eid int64, transform func(string) (string, error)) error {
	var lastErr error
	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		lastErr = r.tryMutateColumn(ctx, column, eid, transform)
		if lastErr == nil {
			return nil
		}
		if !retryableTxError(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("%w: mutating %s of mission %d: %v", apperr.ErrConflict, column, eid, lastErr)
}

func (r *PostgresMissionRepository) tryMutateColumn(ctx context.Context, column string, eid int64, transform func(string) (string, error)) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var stored sql.NullString
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM settings WHERE "EID" = $1 FOR UPDATE`, column),
		eid,
	).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("mission %d: %w", eid, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock mission row: %w", err)
	}

	updated, err := transform(stored.String)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE settings SET %s = $1 WHERE "EID" = $2`, column),
		updated, eid,
	); err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// retryableTxError reports whether err is a serialization failure (40001)
// or deadlock (40P01) worth retrying.
func retryableTxError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}

func (r *PostgresMissionRepository) getColumn(ctx context.Context, column string, eid int64) (string, error) {
	var stored sql.NullString
	err := r.DB.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM settings WHERE "EID" = $1`, column),
		eid,
	).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("mission %d: %w", eid, apperr.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get mission %s: %w", column, err)
	}
	return stored.String, nil
}

// decryptRecord decrypts a column holding a single-element array of field
// maps and stores the first element in target.
func (r *PostgresMissionRepository) decryptRecord(stored string, target *map[string]any) error {
	var records []map[string]any
	if err := r.Codec.DecryptJSON(stored, &records); err != nil {
		return err
	}
	if len(records) > 0 {
		*target = records[0]
	} else {
		*target = map[string]any{}
	}
	return nil
}
