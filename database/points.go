package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// The balance is clamped at zero: a decrement that would go negative
// saturates instead. This makes reversal lossy under interleaving, a known
// limitation of the ledger.
const updatePersonPointsQuery = `
	UPDATE person_points
	SET points_value = GREATEST(0, points_value + $3)
	WHERE person_id = $1 AND category_id = $2
`

// UpdatePersonPoints applies one signed increment to a person's balance in
// a category. A missing balance row is a programming invariant violation
// and propagates as an error.
func (db *Database) UpdatePersonPoints(ctx context.Context, personID, categoryID int64, delta int) error {
	tag, err := db.pool.Exec(ctx, updatePersonPointsQuery, personID, categoryID, delta)
	if err != nil {
		return fmt.Errorf("update person points: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("person_points row for person %d in category %d not found", personID, categoryID)
	}
	return nil
}

func updatePersonPointsTx(ctx context.Context, tx pgx.Tx, personID, categoryID int64, delta int) error {
	tag, err := tx.Exec(ctx, updatePersonPointsQuery, personID, categoryID, delta)
	if err != nil {
		return fmt.Errorf("update person points: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("person_points row for person %d in category %d not found", personID, categoryID)
	}
	return nil
}

// creditAttendanceRow awards points for one mirror attendee row and flags
// it points_added in the same transaction, so a failure on either side
// leaves no partial state and a retry cannot credit twice. Returns false
// without mutating anything when the row is gone, already credited, or
// unmatched.
func (db *Database) creditAttendanceRow(ctx context.Context, table string, rowID, categoryID int64, points int) (credited bool, err error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer rollbackOrCommit(ctx, tx, &err)

	var (
		matched     *int64
		pointsAdded bool
	)
	err = tx.QueryRow(ctx,
		`SELECT matched_person_id, points_added FROM `+table+` WHERE id = $1 FOR UPDATE`,
		rowID,
	).Scan(&matched, &pointsAdded)
	if errors.Is(err, pgx.ErrNoRows) {
		// Removed by a concurrent sync between listing and crediting.
		err = nil
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select %s row %d: %w", table, rowID, err)
	}
	if pointsAdded || matched == nil {
		return false, nil
	}

	if err = updatePersonPointsTx(ctx, tx, *matched, categoryID, points); err != nil {
		return false, err
	}
	if _, err = tx.Exec(ctx, `UPDATE `+table+` SET points_added = TRUE WHERE id = $1`, rowID); err != nil {
		return false, fmt.Errorf("flag %s row %d: %w", table, rowID, err)
	}
	return true, nil
}

// CreditProtocolPerson credits the committee-attendance amount for one
// protocol attendee row.
func (db *Database) CreditProtocolPerson(ctx context.Context, rowID, categoryID int64, points int) (bool, error) {
	return db.creditAttendanceRow(ctx, "protocol_persons", rowID, categoryID, points)
}

// CreditTablePerson credits the event's point amount for one registration
// table attendee row.
func (db *Database) CreditTablePerson(ctx context.Context, rowID, categoryID int64, points int) (bool, error) {
	return db.creditAttendanceRow(ctx, "event_registration_table_persons", rowID, categoryID, points)
}

func (db *Database) GetPersonPoints(ctx context.Context, personID, categoryID int64) (int, error) {
	var value int
	err := db.pool.QueryRow(ctx, `
		SELECT points_value FROM person_points
		WHERE person_id = $1 AND category_id = $2
	`, personID, categoryID).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("select person points: %w", err)
	}
	return value, nil
}

func (db *Database) GetCategoryID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := db.pool.QueryRow(ctx, `SELECT id FROM categories WHERE name = $1`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("category %q does not exist", name)
	}
	if err != nil {
		return 0, fmt.Errorf("select category %q: %w", name, err)
	}
	return id, nil
}

func getCategoryIDTx(ctx context.Context, tx pgx.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM categories WHERE name = $1`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("category %q does not exist", name)
	}
	if err != nil {
		return 0, fmt.Errorf("select category %q: %w", name, err)
	}
	return id, nil
}
