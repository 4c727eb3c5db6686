package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

func (db *Database) GetRegistrationTables(ctx context.Context) ([]RegistrationTable, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT t.id, t.title, t.table_url, t.event_type_id, e.points
		FROM event_registration_tables t
		JOIN event_types e ON e.id = t.event_type_id
		ORDER BY t.id
	`)
	if err != nil {
		return nil, fmt.Errorf("select registration tables: %w", err)
	}
	defer rows.Close()

	var tables []RegistrationTable
	for rows.Next() {
		var t RegistrationTable
		if err := rows.Scan(&t.ID, &t.Title, &t.TableURL, &t.EventTypeID, &t.EventPoints); err != nil {
			return nil, fmt.Errorf("scan registration table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (db *Database) GetRegistrationTable(ctx context.Context, tableID int64) (*RegistrationTable, error) {
	var t RegistrationTable
	err := db.pool.QueryRow(ctx, `
		SELECT t.id, t.title, t.table_url, t.event_type_id, e.points
		FROM event_registration_tables t
		JOIN event_types e ON e.id = t.event_type_id
		WHERE t.id = $1
	`, tableID).Scan(&t.ID, &t.Title, &t.TableURL, &t.EventTypeID, &t.EventPoints)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select registration table %d: %w", tableID, err)
	}
	return &t, nil
}

func (db *Database) InsertRegistrationTable(ctx context.Context, title, tableURL string, eventTypeID int64) (*RegistrationTable, error) {
	t := RegistrationTable{Title: title, TableURL: tableURL, EventTypeID: eventTypeID}
	err := db.pool.QueryRow(ctx, `
		INSERT INTO event_registration_tables (title, table_url, event_type_id)
		VALUES ($1, $2, $3)
		RETURNING id
	`, title, tableURL, eventTypeID).Scan(&t.ID)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("registration table %s: %w", tableURL, ErrAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("insert registration table: %w", err)
	}
	return &t, nil
}

// DeleteRegistrationTable removes a table mirror and all its person rows.
// Used when the upstream spreadsheet disappears or access is revoked. No
// point reversal happens for this cascade.
func (db *Database) DeleteRegistrationTable(ctx context.Context, tableID int64) (err error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollbackOrCommit(ctx, tx, &err)

	if _, err = tx.Exec(ctx, `DELETE FROM event_registration_table_persons WHERE table_id = $1`, tableID); err != nil {
		return fmt.Errorf("delete registration table persons: %w", err)
	}
	if _, err = tx.Exec(ctx, `DELETE FROM event_registration_tables WHERE id = $1`, tableID); err != nil {
		return fmt.Errorf("delete registration table %d: %w", tableID, err)
	}
	return nil
}

func (db *Database) GetTablePersons(ctx context.Context, tableID int64) ([]TablePerson, error) {
	return db.selectTablePersons(ctx, `
		SELECT id, full_name, matched_person_id, points_added, table_id
		FROM event_registration_table_persons
		WHERE table_id = $1
		ORDER BY id
	`, tableID)
}

func (db *Database) GetUncreditedTablePersons(ctx context.Context, tableID int64) ([]TablePerson, error) {
	return db.selectTablePersons(ctx, `
		SELECT id, full_name, matched_person_id, points_added, table_id
		FROM event_registration_table_persons
		WHERE table_id = $1 AND points_added = FALSE
		ORDER BY id
	`, tableID)
}

func (db *Database) selectTablePersons(ctx context.Context, query string, tableID int64) ([]TablePerson, error) {
	rows, err := db.pool.Query(ctx, query, tableID)
	if err != nil {
		return nil, fmt.Errorf("select table persons: %w", err)
	}
	defer rows.Close()

	var persons []TablePerson
	for rows.Next() {
		var p TablePerson
		if err := rows.Scan(&p.ID, &p.FullName, &p.MatchedPersonID, &p.PointsAdded, &p.TableID); err != nil {
			return nil, fmt.Errorf("scan table person: %w", err)
		}
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

func (db *Database) BatchInsertTablePersons(ctx context.Context, persons []NewTablePerson) (err error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollbackOrCommit(ctx, tx, &err)

	for _, p := range persons {
		_, err = tx.Exec(ctx, `
			INSERT INTO event_registration_table_persons (full_name, matched_person_id, table_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (full_name, table_id) DO NOTHING
		`, p.FullName, p.MatchedPersonID, p.TableID)
		if err != nil {
			return fmt.Errorf("insert table person %q: %w", p.FullName, err)
		}
	}
	return nil
}

// BatchUpdateTablePersonMatches mirrors the protocol variant, with the
// event type's configured point value instead of the committee-attendance
// amount.
func (db *Database) BatchUpdateTablePersonMatches(ctx context.Context, updates []MatchUpdate, eventPoints int) (err error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollbackOrCommit(ctx, tx, &err)

	categoryID, err := getCategoryIDTx(ctx, tx, AttendanceCategory)
	if err != nil {
		return err
	}

	for _, update := range updates {
		if err = applyMatchUpdate(ctx, tx, matchUpdateTarget{
			table:      "event_registration_table_persons",
			rowID:      update.RowID,
			newMatch:   update.MatchedPersonID,
			categoryID: categoryID,
			points:     eventPoints,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (db *Database) GetEventTypes(ctx context.Context) ([]EventType, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, name, points FROM event_types ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select event types: %w", err)
	}
	defer rows.Close()

	var types []EventType
	for rows.Next() {
		var e EventType
		if err := rows.Scan(&e.ID, &e.Name, &e.Points); err != nil {
			return nil, fmt.Errorf("scan event type: %w", err)
		}
		types = append(types, e)
	}
	return types, rows.Err()
}
