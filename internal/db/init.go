package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// The schema mirrors the tables of the web interface this server shares its
// database with. Mixed-case identifiers and German column names are part of
// that contract. Columns marked "encrypted" hold field-codec values
// ("base64(iv):base64(ciphertext)"), never plaintext JSON.
const schema = `
CREATE TABLE IF NOT EXISTS "user" (
    "ID" BIGSERIAL PRIMARY KEY,
    "UID" TEXT NOT NULL,
    "OID" TEXT NOT NULL,
    username TEXT NOT NULL UNIQUE,
    data TEXT NOT NULL DEFAULT '',
    token TEXT,
    token_expiration_date TIMESTAMPTZ,
    "aktiveEID" BIGINT
);

CREATE TABLE IF NOT EXISTS organisation (
    "ID" BIGSERIAL PRIMARY KEY,
    "OID" TEXT NOT NULL UNIQUE,
    aktiv INTEGER NOT NULL DEFAULT 1,
    token TEXT NOT NULL DEFAULT '',
    data TEXT NOT NULL DEFAULT '',
    status JSONB,
    funktionen JSONB,
    appsettings JSONB
);

CREATE TABLE IF NOT EXISTS settings (
    "EID" BIGSERIAL PRIMARY KEY,
    typ TEXT NOT NULL DEFAULT '',
    data TEXT NOT NULL DEFAULT '',
    personen_im_einsatz TEXT,
    gesucht TEXT,
    pois TEXT,
    suchgebiete TEXT
);

CREATE TABLE IF NOT EXISTS tracking (
    "ID" BIGSERIAL PRIMARY KEY,
    "EID" BIGINT,
    "OID" TEXT NOT NULL DEFAULT '',
    "UID" TEXT NOT NULL DEFAULT '',
    "TAN" TEXT NOT NULL DEFAULT '',
    gruppe TEXT NOT NULL DEFAULT '',
    nummer TEXT NOT NULL DEFAULT '',
    lat DOUBLE PRECISION,
    lon DOUBLE PRECISION,
    timestamp TEXT,
    hdop DOUBLE PRECISION,
    altitude DOUBLE PRECISION,
    speed DOUBLE PRECISION,
    herkunft TEXT,
    oidmitglied TEXT
);
`

func InitPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return db, nil
}
