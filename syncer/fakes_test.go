package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/NeF2le/guss-points/database"
	"github.com/NeF2le/guss-points/googleapi"
	"github.com/NeF2le/guss-points/matching"
)

type fakeDocs struct {
	records map[string][]googleapi.ProtocolRecord
	err     error
}

func (d *fakeDocs) FetchProtocols(_ context.Context, documentID string) ([]googleapi.ProtocolRecord, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.records[documentID], nil
}

type fakeSheets struct {
	rows map[string][]googleapi.RosterRow
	errs map[string]error
}

func (s *fakeSheets) FetchRegistrationRows(_ context.Context, tableURL string) ([]googleapi.RosterRow, error) {
	if err := s.errs[tableURL]; err != nil {
		return nil, err
	}
	return s.rows[tableURL], nil
}

// mutations counts the write traffic a sync pass produced, so tests can
// assert that a repeated pass touches nothing.
type mutations struct {
	protocolInserts int
	protocolDeletes int
	rowInserts      int
	rowUpdates      int
	rowDeletes      int
}

func (m mutations) total() int {
	return m.protocolInserts + m.protocolDeletes + m.rowInserts + m.rowUpdates + m.rowDeletes
}

type fakeProtocolStore struct {
	registry   []matching.Entry
	committees []database.Committee
	members    map[int64]map[int64]bool

	protocols map[int64]*database.Protocol
	rows      map[int64]database.ProtocolPerson
	nextID    int64

	muts      mutations
	reversals []int64
}

func newFakeProtocolStore() *fakeProtocolStore {
	return &fakeProtocolStore{
		members:   map[int64]map[int64]bool{},
		protocols: map[int64]*database.Protocol{},
		rows:      map[int64]database.ProtocolPerson{},
	}
}

func (f *fakeProtocolStore) addMember(committeeID, personID int64) {
	if f.members[committeeID] == nil {
		f.members[committeeID] = map[int64]bool{}
	}
	f.members[committeeID][personID] = true
}

func (f *fakeProtocolStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeProtocolStore) GetPersonFullNames(context.Context) ([]matching.Entry, error) {
	return f.registry, nil
}

func (f *fakeProtocolStore) GetCommittees(context.Context) ([]database.Committee, error) {
	return f.committees, nil
}

func (f *fakeProtocolStore) CheckMembership(_ context.Context, committeeID, personID int64) (bool, error) {
	return f.members[committeeID][personID], nil
}

func (f *fakeProtocolStore) GetProtocolNumbers(_ context.Context, committeeID int64) ([]int, error) {
	var numbers []int
	for _, p := range f.protocols {
		if p.CommitteeID == committeeID {
			numbers = append(numbers, p.Number)
		}
	}
	return numbers, nil
}

func (f *fakeProtocolStore) GetProtocolByNumber(_ context.Context, committeeID int64, number int) (*database.Protocol, error) {
	for _, p := range f.protocols {
		if p.CommitteeID == committeeID && p.Number == number {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeProtocolStore) InsertProtocol(_ context.Context, committeeID int64, number int, date time.Time) (*database.Protocol, error) {
	p := &database.Protocol{ID: f.id(), Number: number, Date: date, CommitteeID: committeeID}
	f.protocols[p.ID] = p
	f.muts.protocolInserts++
	copied := *p
	return &copied, nil
}

func (f *fakeProtocolStore) DeleteProtocol(_ context.Context, protocolID int64, _ int) error {
	if _, ok := f.protocols[protocolID]; !ok {
		return fmt.Errorf("protocol %d not found", protocolID)
	}
	for id, row := range f.rows {
		if row.ProtocolID != protocolID {
			continue
		}
		if row.MatchedPersonID != nil {
			f.reversals = append(f.reversals, *row.MatchedPersonID)
		}
		delete(f.rows, id)
	}
	delete(f.protocols, protocolID)
	f.muts.protocolDeletes++
	return nil
}

func (f *fakeProtocolStore) DeleteProtocolByNumber(ctx context.Context, committeeID int64, number, reversalPoints int) error {
	p, err := f.GetProtocolByNumber(ctx, committeeID, number)
	if err != nil || p == nil {
		return err
	}
	return f.DeleteProtocol(ctx, p.ID, reversalPoints)
}

func (f *fakeProtocolStore) GetProtocolPersons(_ context.Context, protocolID int64) ([]database.ProtocolPerson, error) {
	var rows []database.ProtocolPerson
	for _, row := range f.rows {
		if row.ProtocolID == protocolID {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (f *fakeProtocolStore) BatchInsertProtocolPersons(_ context.Context, persons []database.NewProtocolPerson) error {
	for _, p := range persons {
		row := database.ProtocolPerson{
			ID:              f.id(),
			FullName:        p.FullName,
			MatchedPersonID: p.MatchedPersonID,
			ProtocolID:      p.ProtocolID,
		}
		f.rows[row.ID] = row
		f.muts.rowInserts++
	}
	return nil
}

func (f *fakeProtocolStore) BatchUpdateProtocolPersonMatches(_ context.Context, updates []database.MatchUpdate, _ int) error {
	for _, u := range updates {
		row, ok := f.rows[u.RowID]
		if !ok {
			return fmt.Errorf("row %d not found", u.RowID)
		}
		matched := u.MatchedPersonID
		row.MatchedPersonID = &matched
		f.rows[u.RowID] = row
		f.muts.rowUpdates++
	}
	return nil
}

func (f *fakeProtocolStore) BatchDeleteProtocolPersons(_ context.Context, ids []int64) error {
	for _, id := range ids {
		delete(f.rows, id)
		f.muts.rowDeletes++
	}
	return nil
}

type fakeTableStore struct {
	registry []matching.Entry
	tables   []database.RegistrationTable
	rows     map[int64]database.TablePerson
	nextID   int64

	muts          mutations
	deletedTables []int64
}

func newFakeTableStore() *fakeTableStore {
	return &fakeTableStore{rows: map[int64]database.TablePerson{}}
}

func (f *fakeTableStore) GetPersonFullNames(context.Context) ([]matching.Entry, error) {
	return f.registry, nil
}

func (f *fakeTableStore) GetRegistrationTables(context.Context) ([]database.RegistrationTable, error) {
	return f.tables, nil
}

func (f *fakeTableStore) DeleteRegistrationTable(_ context.Context, tableID int64) error {
	kept := f.tables[:0]
	for _, t := range f.tables {
		if t.ID != tableID {
			kept = append(kept, t)
		}
	}
	f.tables = kept
	for id, row := range f.rows {
		if row.TableID == tableID {
			delete(f.rows, id)
		}
	}
	f.deletedTables = append(f.deletedTables, tableID)
	return nil
}

func (f *fakeTableStore) GetTablePersons(_ context.Context, tableID int64) ([]database.TablePerson, error) {
	var rows []database.TablePerson
	for _, row := range f.rows {
		if row.TableID == tableID {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (f *fakeTableStore) BatchInsertTablePersons(_ context.Context, persons []database.NewTablePerson) error {
	for _, p := range persons {
		f.nextID++
		f.rows[f.nextID] = database.TablePerson{
			ID:              f.nextID,
			FullName:        p.FullName,
			MatchedPersonID: p.MatchedPersonID,
			TableID:         p.TableID,
		}
		f.muts.rowInserts++
	}
	return nil
}

func (f *fakeTableStore) BatchUpdateTablePersonMatches(_ context.Context, updates []database.MatchUpdate, _ int) error {
	for _, u := range updates {
		row, ok := f.rows[u.RowID]
		if !ok {
			return fmt.Errorf("row %d not found", u.RowID)
		}
		matched := u.MatchedPersonID
		row.MatchedPersonID = &matched
		f.rows[u.RowID] = row
		f.muts.rowUpdates++
	}
	return nil
}
