// Package database is the pgx-backed storage layer for the club-points
// mirror tables. All SQL lives here; the syncers and services above it only
// see typed rows.
package database

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAlreadyExists surfaces a unique-key violation on an operator-driven
// insert (person, registration table). Batch mirror inserts never return it;
// they use ON CONFLICT DO NOTHING.
var ErrAlreadyExists = errors.New("record already exists")

// AttendanceCategory is the fixed point bucket credited for committee and
// event attendance.
const AttendanceCategory = "Посещаемость"

type Database struct {
	dsn  string
	pool *pgxpool.Pool
}

func NewDatabase(dsn string) *Database {
	return &Database{dsn: dsn}
}

// Connect adds a connection pool against the configured DSN.
func (db *Database) Connect(ctx context.Context) error {
	pool, err := pgxpool.New(ctx, db.dsn)
	if err != nil {
		return fmt.Errorf("unable to connect: %w", err)
	}
	db.pool = pool
	return nil
}

func (db *Database) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

func rollbackOrCommit(ctx context.Context, tx pgx.Tx, err *error) {
	if *err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Printf("transaction rollback failed: %v (original error: %v)", rbErr, *err)
		}
		return
	}
	if cmErr := tx.Commit(ctx); cmErr != nil {
		*err = fmt.Errorf("commit failed: %w", cmErr)
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const createTablesSQL = `
	CREATE TABLE IF NOT EXISTS persons (
		id BIGSERIAL PRIMARY KEY,
		first_name VARCHAR(255) NOT NULL,
		last_name VARCHAR(255) NOT NULL,
		vk_id BIGINT UNIQUE
	);

	CREATE TABLE IF NOT EXISTS committees (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		protocols_document_id VARCHAR(255)
	);

	CREATE TABLE IF NOT EXISTS committee_membership (
		person_id BIGINT REFERENCES persons(id) ON DELETE CASCADE,
		committee_id BIGINT REFERENCES committees(id) ON DELETE CASCADE,
		PRIMARY KEY (person_id, committee_id)
	);

	CREATE TABLE IF NOT EXISTS categories (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS person_points (
		person_id BIGINT REFERENCES persons(id) ON DELETE CASCADE,
		category_id BIGINT REFERENCES categories(id) ON DELETE CASCADE,
		points_value INT NOT NULL DEFAULT 0,
		PRIMARY KEY (person_id, category_id)
	);

	CREATE TABLE IF NOT EXISTS protocols (
		id BIGSERIAL PRIMARY KEY,
		number INT NOT NULL,
		date DATE NOT NULL,
		committee_id BIGINT NOT NULL REFERENCES committees(id) ON DELETE CASCADE,
		UNIQUE (number, date, committee_id)
	);

	CREATE TABLE IF NOT EXISTS protocol_persons (
		id BIGSERIAL PRIMARY KEY,
		full_name VARCHAR(255) NOT NULL,
		matched_person_id BIGINT REFERENCES persons(id) ON DELETE SET NULL,
		points_added BOOLEAN NOT NULL DEFAULT FALSE,
		protocol_id BIGINT NOT NULL REFERENCES protocols(id) ON DELETE CASCADE,
		UNIQUE (full_name, protocol_id)
	);

	CREATE TABLE IF NOT EXISTS event_types (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL UNIQUE,
		points INT NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS event_registration_tables (
		id BIGSERIAL PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		table_url VARCHAR(1024) NOT NULL UNIQUE,
		event_type_id BIGINT NOT NULL REFERENCES event_types(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS event_registration_table_persons (
		id BIGSERIAL PRIMARY KEY,
		full_name VARCHAR(255) NOT NULL,
		matched_person_id BIGINT REFERENCES persons(id) ON DELETE SET NULL,
		points_added BOOLEAN NOT NULL DEFAULT FALSE,
		table_id BIGINT NOT NULL REFERENCES event_registration_tables(id) ON DELETE CASCADE,
		UNIQUE (full_name, table_id)
	);

	CREATE TABLE IF NOT EXISTS audit_logs (
		id UUID PRIMARY KEY,
		action_type VARCHAR(255) NOT NULL,
		changed_by VARCHAR(100) NOT NULL,
		person_id BIGINT,
		old_data JSONB,
		new_data JSONB,
		comment TEXT,
		changed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
`

// InitializeSchema creates the mirror tables when they do not exist yet.
func (db *Database) InitializeSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, createTablesSQL); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}
