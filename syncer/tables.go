package syncer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/NeF2le/guss-points/database"
	"github.com/NeF2le/guss-points/googleapi"
	"github.com/NeF2le/guss-points/matching"
)

// TableSyncer mirrors event-registration spreadsheets. Unlike protocols the
// mirror is append-only: a name removed from the sheet keeps its row, and an
// unreachable or revoked sheet removes the whole table.
type TableSyncer struct {
	sheets SheetSource
	store  TableStore

	matchThreshold int
	log            *slog.Logger
}

func NewTableSyncer(sheets SheetSource, store TableStore, matchThreshold int, logger *slog.Logger) *TableSyncer {
	return &TableSyncer{
		sheets:         sheets,
		store:          store,
		matchThreshold: matchThreshold,
		log:            logger,
	}
}

// SyncAll reconciles every registered table. Tables whose sheet is gone or
// no longer readable are dropped from the mirror; transient fetch errors
// leave the mirror untouched.
func (s *TableSyncer) SyncAll(ctx context.Context) error {
	tables, err := s.store.GetRegistrationTables(ctx)
	if err != nil {
		return err
	}

	registry, err := s.store.GetPersonFullNames(ctx)
	if err != nil {
		return err
	}

	for _, table := range tables {
		rows, err := s.sheets.FetchRegistrationRows(ctx, table.TableURL)
		if err != nil {
			if errors.Is(err, googleapi.ErrNotFound) || errors.Is(err, googleapi.ErrPermissionDenied) {
				if err := s.store.DeleteRegistrationTable(ctx, table.ID); err != nil {
					return err
				}
				s.log.Info("deleted unreachable registration table",
					slog.Int64("table_id", table.ID), slog.String("title", table.Title))
				continue
			}
			s.log.Warn("registration table fetch failed",
				slog.Int64("table_id", table.ID),
				slog.String("title", table.Title),
				slog.Any("error", err),
			)
			continue
		}

		if err := s.syncRoster(ctx, table, rows, registry); err != nil {
			return err
		}
	}
	return nil
}

func (s *TableSyncer) syncRoster(ctx context.Context, table database.RegistrationTable, rows []googleapi.RosterRow, registry []matching.Entry) error {
	existing, err := s.store.GetTablePersons(ctx, table.ID)
	if err != nil {
		return err
	}
	existingByName := make(map[string]database.TablePerson, len(existing))
	for _, row := range existing {
		existingByName[row.FullName] = row
	}

	var (
		toInsert []database.NewTablePerson
		toUpdate []database.MatchUpdate
	)
	for _, row := range rows {
		if !row.Attended {
			continue
		}

		personID, score, ok := matching.BestMatch(row.FullName, registry)
		if !ok || score < s.matchThreshold {
			if _, exists := existingByName[row.FullName]; !exists {
				toInsert = append(toInsert, database.NewTablePerson{
					TableID:  table.ID,
					FullName: row.FullName,
				})
			}
			continue
		}

		if mirror, exists := existingByName[row.FullName]; exists {
			if mirror.MatchedPersonID != nil && *mirror.MatchedPersonID == personID {
				continue
			}
			toUpdate = append(toUpdate, database.MatchUpdate{RowID: mirror.ID, MatchedPersonID: personID})
		} else {
			matched := personID
			toInsert = append(toInsert, database.NewTablePerson{
				TableID:         table.ID,
				FullName:        row.FullName,
				MatchedPersonID: &matched,
			})
		}
	}

	if len(toInsert) > 0 {
		if err := s.store.BatchInsertTablePersons(ctx, toInsert); err != nil {
			return err
		}
	}
	if len(toUpdate) > 0 {
		if err := s.store.BatchUpdateTablePersonMatches(ctx, toUpdate, table.EventPoints); err != nil {
			return err
		}
	}
	return nil
}
