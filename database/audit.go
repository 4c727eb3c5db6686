package database

import (
	"context"
	"fmt"
)

// GetPersonSnapshot loads a person's full state (name, committees, points
// per category) in one call, for the before/after pair around an audited
// mutation. No lazy loading: every related entity is joined up front.
func (db *Database) GetPersonSnapshot(ctx context.Context, personID int64) (*PersonSnapshot, error) {
	person, err := db.GetPerson(ctx, personID)
	if err != nil {
		return nil, err
	}
	if person == nil {
		return nil, fmt.Errorf("person %d does not exist", personID)
	}

	snapshot := &PersonSnapshot{
		FirstName: person.FirstName,
		LastName:  person.LastName,
		Points:    map[string]int{},
	}

	committees, err := db.pool.Query(ctx, `
		SELECT c.name
		FROM committees c
		JOIN committee_membership m ON m.committee_id = c.id
		WHERE m.person_id = $1
		ORDER BY c.id
	`, personID)
	if err != nil {
		return nil, fmt.Errorf("select person committees: %w", err)
	}
	defer committees.Close()
	for committees.Next() {
		var name string
		if err := committees.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan committee name: %w", err)
		}
		snapshot.Committees = append(snapshot.Committees, name)
	}
	if err := committees.Err(); err != nil {
		return nil, err
	}

	points, err := db.pool.Query(ctx, `
		SELECT c.name, p.points_value
		FROM person_points p
		JOIN categories c ON c.id = p.category_id
		WHERE p.person_id = $1
	`, personID)
	if err != nil {
		return nil, fmt.Errorf("select person points: %w", err)
	}
	defer points.Close()
	for points.Next() {
		var (
			category string
			value    int
		)
		if err := points.Scan(&category, &value); err != nil {
			return nil, fmt.Errorf("scan person points: %w", err)
		}
		snapshot.Points[category] = value
	}
	return snapshot, points.Err()
}

func (db *Database) InsertAuditLog(ctx context.Context, record AuditRecord) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, action_type, changed_by, person_id, old_data, new_data, comment, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, record.ID, record.ActionType, record.ChangedBy, record.PersonID,
		record.OldData, record.NewData, record.Comment, record.ChangedAt)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (db *Database) ListAuditLogs(ctx context.Context, limit int) ([]AuditRecord, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT id, action_type, changed_by, person_id, old_data, new_data, COALESCE(comment, ''), changed_at
		FROM audit_logs
		ORDER BY changed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("select audit logs: %w", err)
	}
	defer rows.Close()

	var records []AuditRecord
	for rows.Next() {
		var r AuditRecord
		if err := rows.Scan(&r.ID, &r.ActionType, &r.ChangedBy, &r.PersonID,
			&r.OldData, &r.NewData, &r.Comment, &r.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
