// Package points credits attendance. The balance lives in the person_points
// table; every credit is a single signed increment clamped at a floor of
// zero, applied together with the mirror row's points_added flag in one
// storage transaction.
package points

import (
	"context"
	"errors"
	"fmt"

	"github.com/NeF2le/guss-points/audit"
	"github.com/NeF2le/guss-points/database"
)

// ServiceStore is the storage surface the crediting service needs. The
// Credit methods award and flag atomically and report false, without
// mutating anything, when the row is gone, unmatched, or already credited.
type ServiceStore interface {
	GetCategoryID(ctx context.Context, name string) (int64, error)

	GetProtocol(ctx context.Context, protocolID int64) (*database.Protocol, error)
	GetCommittee(ctx context.Context, committeeID int64) (*database.Committee, error)
	GetUncreditedProtocolPersons(ctx context.Context, protocolID int64) ([]database.ProtocolPerson, error)
	CreditProtocolPerson(ctx context.Context, rowID, categoryID int64, points int) (bool, error)

	GetRegistrationTable(ctx context.Context, tableID int64) (*database.RegistrationTable, error)
	GetUncreditedTablePersons(ctx context.Context, tableID int64) ([]database.TablePerson, error)
	CreditTablePerson(ctx context.Context, rowID, categoryID int64, points int) (bool, error)
}

// errNotCredited aborts the audit wrapper without surfacing an error: the
// row was credited or removed concurrently, so there is no mutation to log.
var errNotCredited = errors.New("row not credited")

// Service credits attendance for whole protocols and registration tables.
// Crediting is explicit and operator-driven; syncing alone never awards
// anything. Credited rows are flagged in the same transaction as the
// balance change, so a repeated award command is a no-op.
type Service struct {
	store    ServiceStore
	recorder *audit.Recorder

	attendancePoints int
}

func NewService(store ServiceStore, recorder *audit.Recorder, attendancePoints int) *Service {
	return &Service{
		store:            store,
		recorder:         recorder,
		attendancePoints: attendancePoints,
	}
}

// AwardProtocolPoints credits every matched, not-yet-credited attendee of a
// protocol and returns how many people were credited.
func (s *Service) AwardProtocolPoints(ctx context.Context, protocolID int64, username string) (int, error) {
	protocol, err := s.store.GetProtocol(ctx, protocolID)
	if err != nil {
		return 0, err
	}
	if protocol == nil {
		return 0, fmt.Errorf("protocol %d not found", protocolID)
	}
	committee, err := s.store.GetCommittee(ctx, protocol.CommitteeID)
	if err != nil {
		return 0, err
	}
	if committee == nil {
		return 0, fmt.Errorf("committee %d not found", protocol.CommitteeID)
	}

	comment := fmt.Sprintf("Посещение %s за %s", committee.Name, protocol.Date.Format("02.01.2006"))
	rows, err := s.store.GetUncreditedProtocolPersons(ctx, protocolID)
	if err != nil {
		return 0, err
	}
	return s.creditRows(ctx, protocolRows(rows), s.store.CreditProtocolPerson, s.attendancePoints, username, comment)
}

// AwardTablePoints credits every matched, not-yet-credited attendee of a
// registration table with the table's event points.
func (s *Service) AwardTablePoints(ctx context.Context, tableID int64, username string) (int, error) {
	table, err := s.store.GetRegistrationTable(ctx, tableID)
	if err != nil {
		return 0, err
	}
	if table == nil {
		return 0, fmt.Errorf("registration table %d not found", tableID)
	}

	rows, err := s.store.GetUncreditedTablePersons(ctx, tableID)
	if err != nil {
		return 0, err
	}
	return s.creditRows(ctx, tableRows(rows), s.store.CreditTablePerson, table.EventPoints, username, "Посещение "+table.Title)
}

// creditRow identifies one uncredited mirror row and its matched person.
type creditRow struct {
	id       int64
	personID *int64
}

func protocolRows(rows []database.ProtocolPerson) []creditRow {
	out := make([]creditRow, len(rows))
	for i, row := range rows {
		out[i] = creditRow{id: row.ID, personID: row.MatchedPersonID}
	}
	return out
}

func tableRows(rows []database.TablePerson) []creditRow {
	out := make([]creditRow, len(rows))
	for i, row := range rows {
		out[i] = creditRow{id: row.ID, personID: row.MatchedPersonID}
	}
	return out
}

func (s *Service) creditRows(
	ctx context.Context,
	rows []creditRow,
	credit func(ctx context.Context, rowID, categoryID int64, points int) (bool, error),
	points int,
	username, comment string,
) (int, error) {
	categoryID, err := s.store.GetCategoryID(ctx, database.AttendanceCategory)
	if err != nil {
		return 0, err
	}

	credited := 0
	for _, row := range rows {
		if row.personID == nil {
			continue
		}
		rowID := row.id
		err := s.recorder.WithAudit(ctx, audit.ActionUpdatePersonPoints, username, row.personID, comment,
			func(ctx context.Context) error {
				ok, err := credit(ctx, rowID, categoryID, points)
				if err != nil {
					return err
				}
				if !ok {
					return errNotCredited
				}
				return nil
			})
		if errors.Is(err, errNotCredited) {
			continue
		}
		if err != nil {
			return credited, err
		}
		credited++
	}
	return credited, nil
}
