// Package audit wraps person mutations with before/after snapshots and an
// immutable log entry.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/NeF2le/guss-points/database"
	"github.com/google/uuid"
)

// ActionType labels an audit entry. The labels are the operator-facing
// Russian strings shown in the action log.
type ActionType string

const (
	ActionInsertPerson       ActionType = "Добавление человека"
	ActionDeletePerson       ActionType = "Удаление человека"
	ActionInsertMembership   ActionType = "Добавление комитета"
	ActionUpdateMembership   ActionType = "Изменение комитета"
	ActionDeleteMembership   ActionType = "Удаление комитета"
	ActionUpdatePersonPoints ActionType = "Изменение баллов"
	ActionUpdateFirstName    ActionType = "Изменение имени"
	ActionUpdateLastName     ActionType = "Изменение фамилии"
)

type Store interface {
	GetPersonSnapshot(ctx context.Context, personID int64) (*database.PersonSnapshot, error)
	InsertAuditLog(ctx context.Context, record database.AuditRecord) error
}

type Recorder struct {
	store Store
	log   *slog.Logger
}

func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, log: logger}
}

// WithAudit runs op and persists an audit record around it. When a person id
// accompanies the operation, the person's full state is captured before and
// after. If op fails, no audit record is written: each storage mutation is
// its own transaction, so a failed op leaves nothing behind to describe.
func (r *Recorder) WithAudit(ctx context.Context, action ActionType, username string, personID *int64, comment string, op func(context.Context) error) error {
	var oldData []byte
	if personID != nil {
		data, err := r.snapshot(ctx, *personID)
		if err != nil {
			return fmt.Errorf("snapshot before %s: %w", action, err)
		}
		oldData = data
	}

	if err := op(ctx); err != nil {
		return err
	}

	var newData []byte
	if personID != nil {
		// The after snapshot is absent when the operation removed the
		// person.
		if data, err := r.snapshot(ctx, *personID); err == nil {
			newData = data
		}
	}

	record := database.AuditRecord{
		ID:         uuid.New(),
		ActionType: string(action),
		ChangedBy:  username,
		PersonID:   personID,
		OldData:    oldData,
		NewData:    newData,
		Comment:    comment,
		ChangedAt:  time.Now(),
	}
	if err := r.store.InsertAuditLog(ctx, record); err != nil {
		return fmt.Errorf("write audit record for %s: %w", action, err)
	}

	r.log.Info("action logged",
		slog.String("action", string(action)),
		slog.String("changed_by", username),
	)
	return nil
}

// RecordCreation writes an audit entry for a person that did not exist
// before the operation, capturing only the after state.
func (r *Recorder) RecordCreation(ctx context.Context, action ActionType, username string, personID int64, comment string) error {
	newData, err := r.snapshot(ctx, personID)
	if err != nil {
		return fmt.Errorf("snapshot after %s: %w", action, err)
	}

	record := database.AuditRecord{
		ID:         uuid.New(),
		ActionType: string(action),
		ChangedBy:  username,
		PersonID:   &personID,
		NewData:    newData,
		Comment:    comment,
		ChangedAt:  time.Now(),
	}
	if err := r.store.InsertAuditLog(ctx, record); err != nil {
		return fmt.Errorf("write audit record for %s: %w", action, err)
	}
	return nil
}

func (r *Recorder) snapshot(ctx context.Context, personID int64) ([]byte, error) {
	snap, err := r.store.GetPersonSnapshot(ctx, personID)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}
