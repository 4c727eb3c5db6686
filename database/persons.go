package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/NeF2le/guss-points/matching"
	"github.com/jackc/pgx/v5"
)

// GetPersonFullNames rebuilds the name registry for a reconciliation pass.
// One entry per person, in insertion order, straight from the current table
// state; never cached between passes.
func (db *Database) GetPersonFullNames(ctx context.Context) ([]matching.Entry, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT id, first_name || ' ' || last_name
		FROM persons
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("select person full names: %w", err)
	}
	defer rows.Close()

	var registry []matching.Entry
	for rows.Next() {
		var entry matching.Entry
		if err := rows.Scan(&entry.ID, &entry.FullName); err != nil {
			return nil, fmt.Errorf("scan person full name: %w", err)
		}
		registry = append(registry, entry)
	}
	return registry, rows.Err()
}

func (db *Database) GetPerson(ctx context.Context, personID int64) (*Person, error) {
	var person Person
	err := db.pool.QueryRow(ctx, `
		SELECT id, first_name, last_name, COALESCE(vk_id, 0)
		FROM persons
		WHERE id = $1
	`, personID).Scan(&person.ID, &person.FirstName, &person.LastName, &person.VkID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select person %d: %w", personID, err)
	}
	return &person, nil
}

// InsertPerson creates a person together with a zero points row in every
// category.
func (db *Database) InsertPerson(ctx context.Context, firstName, lastName string, vkID int64) (person *Person, err error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer rollbackOrCommit(ctx, tx, &err)

	person = &Person{FirstName: firstName, LastName: lastName, VkID: vkID}
	err = tx.QueryRow(ctx, `
		INSERT INTO persons (first_name, last_name, vk_id)
		VALUES ($1, $2, $3)
		RETURNING id
	`, firstName, lastName, vkID).Scan(&person.ID)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("person %s %s (vk_id=%d): %w", firstName, lastName, vkID, ErrAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("insert person: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO person_points (person_id, category_id)
		SELECT $1, id FROM categories
	`, person.ID)
	if err != nil {
		return nil, fmt.Errorf("seed person points: %w", err)
	}
	return person, nil
}

// DeletePerson removes a person. Memberships and point rows cascade; mirror
// rows that match this person fall back to unmatched via ON DELETE SET NULL.
func (db *Database) DeletePerson(ctx context.Context, personID int64) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM persons WHERE id = $1`, personID)
	if err != nil {
		return fmt.Errorf("delete person %d: %w", personID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("person %d does not exist", personID)
	}
	return nil
}

func (db *Database) UpdatePersonFirstName(ctx context.Context, personID int64, firstName string) error {
	return db.updatePersonColumn(ctx, personID, "first_name", firstName)
}

func (db *Database) UpdatePersonLastName(ctx context.Context, personID int64, lastName string) error {
	return db.updatePersonColumn(ctx, personID, "last_name", lastName)
}

func (db *Database) updatePersonColumn(ctx context.Context, personID int64, column, value string) error {
	tag, err := db.pool.Exec(ctx, `UPDATE persons SET `+column+` = $2 WHERE id = $1`, personID, value)
	if err != nil {
		return fmt.Errorf("update person %d %s: %w", personID, column, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("person %d does not exist", personID)
	}
	return nil
}

func (db *Database) GetCommittees(ctx context.Context) ([]Committee, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT id, name, COALESCE(protocols_document_id, '')
		FROM committees
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("select committees: %w", err)
	}
	defer rows.Close()

	var committees []Committee
	for rows.Next() {
		var c Committee
		if err := rows.Scan(&c.ID, &c.Name, &c.ProtocolsDocumentID); err != nil {
			return nil, fmt.Errorf("scan committee: %w", err)
		}
		committees = append(committees, c)
	}
	return committees, rows.Err()
}

func (db *Database) GetCommittee(ctx context.Context, committeeID int64) (*Committee, error) {
	var c Committee
	err := db.pool.QueryRow(ctx, `
		SELECT id, name, COALESCE(protocols_document_id, '')
		FROM committees
		WHERE id = $1
	`, committeeID).Scan(&c.ID, &c.Name, &c.ProtocolsDocumentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select committee %d: %w", committeeID, err)
	}
	return &c, nil
}

// CheckMembership reports whether a person belongs to a committee. Protocol
// matching only accepts committee members as match targets.
func (db *Database) CheckMembership(ctx context.Context, committeeID, personID int64) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM committee_membership
			WHERE committee_id = $1 AND person_id = $2
		)
	`, committeeID, personID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

func (db *Database) AddMembership(ctx context.Context, personID, committeeID int64) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO committee_membership (person_id, committee_id)
		VALUES ($1, $2)
	`, personID, committeeID)
	if isUniqueViolation(err) {
		return fmt.Errorf("membership person=%d committee=%d: %w", personID, committeeID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

func (db *Database) DeleteMembership(ctx context.Context, personID, committeeID int64) error {
	tag, err := db.pool.Exec(ctx, `
		DELETE FROM committee_membership
		WHERE person_id = $1 AND committee_id = $2
	`, personID, committeeID)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("person %d is not a member of committee %d", personID, committeeID)
	}
	return nil
}
