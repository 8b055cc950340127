package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/models"
)

// PostgresLocationRepository writes location fixes into the tracking table
// read by the web interface's track rendering.
type PostgresLocationRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
}

// NewPostgresLocationRepository creates a new PostgresLocationRepository
// with the given database connection.
func NewPostgresLocationRepository(db *sql.DB) *PostgresLocationRepository {
	return &PostgresLocationRepository{DB: db}
}

// InsertBatch stores a batch of track points within a single transaction;
// either the whole batch lands or none of it does.
func (r *PostgresLocationRepository) InsertBatch(ctx context.Context, points []models.TrackPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, p := range points {
		var eid sql.NullInt64
		if p.EID != nil {
			eid = sql.NullInt64{Int64: *p.EID, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tracking ("EID", "OID", "UID", lat, lon, timestamp, hdop, altitude, speed, herkunft, oidmitglied)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, eid, p.OID, p.UID, p.Lat, p.Lon, p.Timestamp, p.HDOP, p.Altitude, p.Speed, p.Origin, p.MemberOID)
		if err != nil {
			return fmt.Errorf("insert track point: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
