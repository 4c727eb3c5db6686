package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

func (db *Database) GetProtocolNumbers(ctx context.Context, committeeID int64) ([]int, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT number FROM protocols
		WHERE committee_id = $1
		ORDER BY number
	`, committeeID)
	if err != nil {
		return nil, fmt.Errorf("select protocol numbers: %w", err)
	}
	defer rows.Close()

	var numbers []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan protocol number: %w", err)
		}
		numbers = append(numbers, n)
	}
	return numbers, rows.Err()
}

func (db *Database) GetProtocolByNumber(ctx context.Context, committeeID int64, number int) (*Protocol, error) {
	var p Protocol
	err := db.pool.QueryRow(ctx, `
		SELECT id, number, date, committee_id FROM protocols
		WHERE committee_id = $1 AND number = $2
	`, committeeID, number).Scan(&p.ID, &p.Number, &p.Date, &p.CommitteeID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select protocol committee=%d number=%d: %w", committeeID, number, err)
	}
	return &p, nil
}

func (db *Database) GetProtocol(ctx context.Context, protocolID int64) (*Protocol, error) {
	var p Protocol
	err := db.pool.QueryRow(ctx, `
		SELECT id, number, date, committee_id FROM protocols
		WHERE id = $1
	`, protocolID).Scan(&p.ID, &p.Number, &p.Date, &p.CommitteeID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select protocol %d: %w", protocolID, err)
	}
	return &p, nil
}

func (db *Database) GetCommitteeProtocols(ctx context.Context, committeeID int64) ([]Protocol, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT id, number, date, committee_id FROM protocols
		WHERE committee_id = $1
		ORDER BY number
	`, committeeID)
	if err != nil {
		return nil, fmt.Errorf("select committee protocols: %w", err)
	}
	defer rows.Close()

	var protocols []Protocol
	for rows.Next() {
		var p Protocol
		if err := rows.Scan(&p.ID, &p.Number, &p.Date, &p.CommitteeID); err != nil {
			return nil, fmt.Errorf("scan protocol: %w", err)
		}
		protocols = append(protocols, p)
	}
	return protocols, rows.Err()
}

func (db *Database) InsertProtocol(ctx context.Context, committeeID int64, number int, date time.Time) (*Protocol, error) {
	p := Protocol{Number: number, Date: date, CommitteeID: committeeID}
	err := db.pool.QueryRow(ctx, `
		INSERT INTO protocols (number, date, committee_id)
		VALUES ($1, $2, $3)
		RETURNING id
	`, number, date, committeeID).Scan(&p.ID)
	if err != nil {
		return nil, fmt.Errorf("insert protocol committee=%d number=%d: %w", committeeID, number, err)
	}
	return &p, nil
}

// DeleteProtocolByNumber removes a mirror protocol addressed by its
// document number, with the same cascade as DeleteProtocol. Deleting a
// number that has no mirror row is a no-op.
func (db *Database) DeleteProtocolByNumber(ctx context.Context, committeeID int64, number, reversalPoints int) error {
	protocol, err := db.GetProtocolByNumber(ctx, committeeID, number)
	if err != nil {
		return err
	}
	if protocol == nil {
		return nil
	}
	return db.DeleteProtocol(ctx, protocol.ID, reversalPoints)
}

// DeleteProtocol removes a mirror protocol and all its attendee rows. Every
// matched attendee gets the committee-attendance amount reversed from the
// attendance category, regardless of the points_added flag.
func (db *Database) DeleteProtocol(ctx context.Context, protocolID int64, reversalPoints int) (err error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollbackOrCommit(ctx, tx, &err)

	categoryID, err := getCategoryIDTx(ctx, tx, AttendanceCategory)
	if err != nil {
		return err
	}

	rows, err := tx.Query(ctx, `
		SELECT matched_person_id FROM protocol_persons
		WHERE protocol_id = $1 AND matched_person_id IS NOT NULL
	`, protocolID)
	if err != nil {
		return fmt.Errorf("select matched protocol persons: %w", err)
	}
	var matchedIDs []int64
	for rows.Next() {
		var personID int64
		if err = rows.Scan(&personID); err != nil {
			rows.Close()
			return fmt.Errorf("scan matched person id: %w", err)
		}
		matchedIDs = append(matchedIDs, personID)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return fmt.Errorf("iterate matched protocol persons: %w", err)
	}

	for _, personID := range matchedIDs {
		if err = updatePersonPointsTx(ctx, tx, personID, categoryID, -reversalPoints); err != nil {
			return err
		}
	}

	if _, err = tx.Exec(ctx, `DELETE FROM protocol_persons WHERE protocol_id = $1`, protocolID); err != nil {
		return fmt.Errorf("delete protocol persons: %w", err)
	}
	if _, err = tx.Exec(ctx, `DELETE FROM protocols WHERE id = $1`, protocolID); err != nil {
		return fmt.Errorf("delete protocol %d: %w", protocolID, err)
	}
	return nil
}

func (db *Database) GetProtocolPersons(ctx context.Context, protocolID int64) ([]ProtocolPerson, error) {
	return db.selectProtocolPersons(ctx, `
		SELECT id, full_name, matched_person_id, points_added, protocol_id
		FROM protocol_persons
		WHERE protocol_id = $1
		ORDER BY id
	`, protocolID)
}

// GetUncreditedProtocolPersons returns attendee rows still waiting for the
// operator to confirm crediting.
func (db *Database) GetUncreditedProtocolPersons(ctx context.Context, protocolID int64) ([]ProtocolPerson, error) {
	return db.selectProtocolPersons(ctx, `
		SELECT id, full_name, matched_person_id, points_added, protocol_id
		FROM protocol_persons
		WHERE protocol_id = $1 AND points_added = FALSE
		ORDER BY id
	`, protocolID)
}

func (db *Database) selectProtocolPersons(ctx context.Context, query string, protocolID int64) ([]ProtocolPerson, error) {
	rows, err := db.pool.Query(ctx, query, protocolID)
	if err != nil {
		return nil, fmt.Errorf("select protocol persons: %w", err)
	}
	defer rows.Close()

	var persons []ProtocolPerson
	for rows.Next() {
		var p ProtocolPerson
		if err := rows.Scan(&p.ID, &p.FullName, &p.MatchedPersonID, &p.PointsAdded, &p.ProtocolID); err != nil {
			return nil, fmt.Errorf("scan protocol person: %w", err)
		}
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

// BatchInsertProtocolPersons inserts attendee rows with ignore-on-conflict
// semantics: a concurrent duplicate on (full_name, protocol_id) is silently
// dropped.
func (db *Database) BatchInsertProtocolPersons(ctx context.Context, persons []NewProtocolPerson) (err error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollbackOrCommit(ctx, tx, &err)

	for _, p := range persons {
		_, err = tx.Exec(ctx, `
			INSERT INTO protocol_persons (full_name, matched_person_id, protocol_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (full_name, protocol_id) DO NOTHING
		`, p.FullName, p.MatchedPersonID, p.ProtocolID)
		if err != nil {
			return fmt.Errorf("insert protocol person %q: %w", p.FullName, err)
		}
	}
	return nil
}

// BatchUpdateProtocolPersonMatches re-points attendee rows at corrected
// matches. When a row was already credited, the attendance amount moves with
// it: reversed from the previous match, awarded to the new one.
func (db *Database) BatchUpdateProtocolPersonMatches(ctx context.Context, updates []MatchUpdate, attendancePoints int) (err error) {
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
			table:      "protocol_persons",
			rowID:      update.RowID,
			newMatch:   update.MatchedPersonID,
			categoryID: categoryID,
			points:     attendancePoints,
		}); err != nil {
			return err
		}
	}
	return nil
}

type matchUpdateTarget struct {
	table      string
	rowID      int64
	newMatch   int64
	categoryID int64
	points     int
}

func applyMatchUpdate(ctx context.Context, tx pgx.Tx, target matchUpdateTarget) error {
	var (
		oldMatch    *int64
		pointsAdded bool
	)
	err := tx.QueryRow(ctx,
		`SELECT matched_person_id, points_added FROM `+target.table+` WHERE id = $1`,
		target.rowID,
	).Scan(&oldMatch, &pointsAdded)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s row %d disappeared during update", target.table, target.rowID)
	}
	if err != nil {
		return fmt.Errorf("select %s row %d: %w", target.table, target.rowID, err)
	}

	// An already-credited row whose match changes carries its credit over to
	// the corrected person.
	if pointsAdded && (oldMatch == nil || *oldMatch != target.newMatch) {
		if oldMatch != nil {
			if err := updatePersonPointsTx(ctx, tx, *oldMatch, target.categoryID, -target.points); err != nil {
				return err
			}
		}
		if err := updatePersonPointsTx(ctx, tx, target.newMatch, target.categoryID, target.points); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE `+target.table+` SET matched_person_id = $2 WHERE id = $1`,
		target.rowID, target.newMatch,
	)
	if err != nil {
		return fmt.Errorf("update %s row %d: %w", target.table, target.rowID, err)
	}
	return nil
}

// BatchDeleteProtocolPersons removes attendee rows dropped by the per-
// protocol diff. No point reversal happens on this path; reversal is only
// triggered by whole-protocol deletion.
func (db *Database) BatchDeleteProtocolPersons(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.pool.Exec(ctx, `DELETE FROM protocol_persons WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("delete protocol persons: %w", err)
	}
	return nil
}
