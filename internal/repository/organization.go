package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/apperr"
	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/crypto"
	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/models"
)

// PostgresOrganizationRepository implements read-only organization lookups
// using a PostgreSQL database. The organisation table is owned by the web
// interface; this server never writes to it.
type PostgresOrganizationRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
	// Codec decrypts the organization's data column.
	Codec *crypto.Codec
}

// NewPostgresOrganizationRepository creates a new
// PostgresOrganizationRepository with the given database connection and
// field codec.
func NewPostgresOrganizationRepository(db *sql.DB, codec *crypto.Codec) *PostgresOrganizationRepository {
	return &PostgresOrganizationRepository{DB: db, Codec: codec}
}

// ListActive returns all enabled organizations with their decrypted data
// records, ordered by OID.
func (r *PostgresOrganizationRepository) ListActive(ctx context.Context) ([]models.Organization, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT "ID", "OID", token, aktiv, data, status, funktionen, appsettings
		  FROM organisation WHERE aktiv = 1 ORDER BY "OID"
	`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []models.Organization
	for rows.Next() {
		org, err := r.scanOrganization(rows.Scan)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, *org)
	}
	return orgs, rows.Err()
}

// GetByOID fetches a single organization. Returns apperr.ErrNotFound when
// the organization does not exist or is disabled.
func (r *PostgresOrganizationRepository) GetByOID(ctx context.Context, oid string) (*models.Organization, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT "ID", "OID", token, aktiv, data, status, funktionen, appsettings
		  FROM organisation WHERE "OID" = $1 AND aktiv = 1
	`, oid)
	org, err := r.scanOrganization(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("organization %s: %w", oid, apperr.ErrNotFound)
	}
	return org, err
}

func (r *PostgresOrganizationRepository) scanOrganization(scan func(...any) error) (*models.Organization, error) {
	var (
		org         models.Organization
		active      int
		data        string
		status      sql.NullString
		functions   sql.NullString
		appSettings sql.NullString
	)
	if err := scan(&org.ID, &org.OID, &org.Token, &active, &data, &status, &functions, &appSettings); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan organization: %w", err)
	}
	org.Active = active == 1

	// The data column decrypts to a single-element array of field maps;
	// status, funktionen and appsettings are stored as plain JSON.
	var records []map[string]any
	if err := r.Codec.DecryptJSON(data, &records); err != nil {
		return nil, fmt.Errorf("decrypt organization data: %w", err)
	}
	if len(records) > 0 {
		org.Data = records[0]
	} else {
		org.Data = map[string]any{}
	}

	if status.Valid && status.String != "" {
		if err := json.Unmarshal([]byte(status.String), &org.Status); err != nil {
			return nil, fmt.Errorf("parse organization status: %w", err)
		}
	}
	if functions.Valid && functions.String != "" {
		if err := json.Unmarshal([]byte(functions.String), &org.Functions); err != nil {
			return nil, fmt.Errorf("parse organization functions: %w", err)
		}
	}
	if appSettings.Valid && appSettings.String != "" {
		if err := json.Unmarshal([]byte(appSettings.String), &org.AppSettings); err != nil {
			return nil, fmt.Errorf("parse organization app settings: %w", err)
		}
	}
	return &org, nil
}
