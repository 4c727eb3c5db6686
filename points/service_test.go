package points

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeF2le/guss-points/audit"
	"github.com/NeF2le/guss-points/database"
)

type fakeStore struct {
	protocols map[int64]database.Protocol
	committee database.Committee
	tables    map[int64]database.RegistrationTable

	protocolRows map[int64][]database.ProtocolPerson
	tableRows    map[int64][]database.TablePerson

	// points[personID] is the running attendance balance, floored at zero
	// like the real ledger.
	points map[int64]int

	// failCredits makes the next N credit calls fail before mutating
	// anything, like a rolled-back transaction. skipCredits makes them
	// report not-credited instead, like a row flagged or removed between
	// listing and crediting.
	failCredits int
	skipCredits int

	auditRecords []database.AuditRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		protocols:    map[int64]database.Protocol{},
		tables:       map[int64]database.RegistrationTable{},
		protocolRows: map[int64][]database.ProtocolPerson{},
		tableRows:    map[int64][]database.TablePerson{},
		points:       map[int64]int{},
	}
}

func (f *fakeStore) GetCategoryID(_ context.Context, name string) (int64, error) {
	if name != database.AttendanceCategory {
		return 0, fmt.Errorf("category %q not found", name)
	}
	return 7, nil
}

func (f *fakeStore) GetProtocol(_ context.Context, protocolID int64) (*database.Protocol, error) {
	p, ok := f.protocols[protocolID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeStore) GetCommittee(_ context.Context, committeeID int64) (*database.Committee, error) {
	if committeeID != f.committee.ID {
		return nil, nil
	}
	c := f.committee
	return &c, nil
}

func (f *fakeStore) GetUncreditedProtocolPersons(_ context.Context, protocolID int64) ([]database.ProtocolPerson, error) {
	var rows []database.ProtocolPerson
	for _, row := range f.protocolRows[protocolID] {
		if !row.PointsAdded {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (f *fakeStore) CreditProtocolPerson(_ context.Context, rowID, categoryID int64, points int) (bool, error) {
	if categoryID != 7 {
		return false, fmt.Errorf("unexpected category %d", categoryID)
	}
	if f.failCredits > 0 {
		f.failCredits--
		return false, errors.New("storage down")
	}
	if f.skipCredits > 0 {
		f.skipCredits--
		return false, nil
	}
	for protocolID, rows := range f.protocolRows {
		for i, row := range rows {
			if row.ID != rowID {
				continue
			}
			if row.PointsAdded || row.MatchedPersonID == nil {
				return false, nil
			}
			f.points[*row.MatchedPersonID] += points
			f.protocolRows[protocolID][i].PointsAdded = true
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) GetRegistrationTable(_ context.Context, tableID int64) (*database.RegistrationTable, error) {
	t, ok := f.tables[tableID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeStore) GetUncreditedTablePersons(_ context.Context, tableID int64) ([]database.TablePerson, error) {
	var rows []database.TablePerson
	for _, row := range f.tableRows[tableID] {
		if !row.PointsAdded {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (f *fakeStore) CreditTablePerson(_ context.Context, rowID, categoryID int64, points int) (bool, error) {
	if categoryID != 7 {
		return false, fmt.Errorf("unexpected category %d", categoryID)
	}
	for tableID, rows := range f.tableRows {
		for i, row := range rows {
			if row.ID != rowID {
				continue
			}
			if row.PointsAdded || row.MatchedPersonID == nil {
				return false, nil
			}
			f.points[*row.MatchedPersonID] += points
			f.tableRows[tableID][i].PointsAdded = true
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) GetPersonSnapshot(_ context.Context, personID int64) (*database.PersonSnapshot, error) {
	return &database.PersonSnapshot{
		Points: map[string]int{database.AttendanceCategory: f.points[personID]},
	}, nil
}

func (f *fakeStore) InsertAuditLog(_ context.Context, record database.AuditRecord) error {
	f.auditRecords = append(f.auditRecords, record)
	return nil
}

func pid(v int64) *int64 { return &v }

func newService(store *fakeStore) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, audit.NewRecorder(store, logger), 2)
}

func TestAwardProtocolPoints(t *testing.T) {
	store := newFakeStore()
	store.committee = database.Committee{ID: 1, Name: "Культмасс"}
	store.protocols[5] = database.Protocol{
		ID: 5, Number: 3, CommitteeID: 1,
		Date: time.Date(2024, time.March, 12, 0, 0, 0, 0, time.UTC),
	}
	store.protocolRows[5] = []database.ProtocolPerson{
		{ID: 1, FullName: "Иван Петров", MatchedPersonID: pid(10), ProtocolID: 5},
		{ID: 2, FullName: "Глеб Неизвестный", ProtocolID: 5},
		{ID: 3, FullName: "Мария Сидорова", MatchedPersonID: pid(11), ProtocolID: 5, PointsAdded: true},
	}
	store.points[11] = 2

	credited, err := newService(store).AwardProtocolPoints(context.Background(), 5, "admin")
	require.NoError(t, err)

	assert.Equal(t, 1, credited, "unmatched and already-credited rows are skipped")
	assert.Equal(t, 2, store.points[10])
	assert.Equal(t, 2, store.points[11], "already-credited attendee keeps the old balance")

	require.Len(t, store.auditRecords, 1)
	record := store.auditRecords[0]
	assert.Equal(t, string(audit.ActionUpdatePersonPoints), record.ActionType)
	assert.Equal(t, "admin", record.ChangedBy)
	assert.Equal(t, "Посещение Культмасс за 12.03.2024", record.Comment)
	require.NotNil(t, record.PersonID)
	assert.Equal(t, int64(10), *record.PersonID)
}

func TestAwardProtocolPointsTwiceCreditsOnce(t *testing.T) {
	store := newFakeStore()
	store.committee = database.Committee{ID: 1, Name: "Культмасс"}
	store.protocols[5] = database.Protocol{ID: 5, CommitteeID: 1, Date: time.Now()}
	store.protocolRows[5] = []database.ProtocolPerson{
		{ID: 1, FullName: "Иван Петров", MatchedPersonID: pid(10), ProtocolID: 5},
	}
	service := newService(store)

	_, err := service.AwardProtocolPoints(context.Background(), 5, "admin")
	require.NoError(t, err)
	credited, err := service.AwardProtocolPoints(context.Background(), 5, "admin")
	require.NoError(t, err)

	assert.Zero(t, credited)
	assert.Equal(t, 2, store.points[10])
}

func TestAwardProtocolPointsFailedCreditLeavesNoPartialState(t *testing.T) {
	store := newFakeStore()
	store.committee = database.Committee{ID: 1, Name: "Культмасс"}
	store.protocols[5] = database.Protocol{ID: 5, CommitteeID: 1, Date: time.Now()}
	store.protocolRows[5] = []database.ProtocolPerson{
		{ID: 1, FullName: "Иван Петров", MatchedPersonID: pid(10), ProtocolID: 5},
	}
	store.failCredits = 1
	service := newService(store)

	_, err := service.AwardProtocolPoints(context.Background(), 5, "admin")
	require.Error(t, err)
	assert.Zero(t, store.points[10], "a failed credit must not move the balance")
	assert.Empty(t, store.auditRecords, "a failed credit must not be logged")

	// The retry credits exactly once.
	credited, err := service.AwardProtocolPoints(context.Background(), 5, "admin")
	require.NoError(t, err)
	assert.Equal(t, 1, credited)
	assert.Equal(t, 2, store.points[10])
	assert.Len(t, store.auditRecords, 1)
}

func TestAwardProtocolPointsSkipsConcurrentlyCreditedRow(t *testing.T) {
	// The row is listed as uncredited but flagged or removed before the
	// credit lands; the award is a silent no-op without an audit record.
	store := newFakeStore()
	store.committee = database.Committee{ID: 1, Name: "Культмасс"}
	store.protocols[5] = database.Protocol{ID: 5, CommitteeID: 1, Date: time.Now()}
	store.protocolRows[5] = []database.ProtocolPerson{
		{ID: 1, FullName: "Иван Петров", MatchedPersonID: pid(10), ProtocolID: 5},
	}
	store.skipCredits = 1

	credited, err := newService(store).AwardProtocolPoints(context.Background(), 5, "admin")
	require.NoError(t, err)
	assert.Zero(t, credited)
	assert.Zero(t, store.points[10])
	assert.Empty(t, store.auditRecords)
}

func TestAwardProtocolPointsUnknownProtocol(t *testing.T) {
	store := newFakeStore()
	_, err := newService(store).AwardProtocolPoints(context.Background(), 99, "admin")
	assert.ErrorContains(t, err, "protocol 99 not found")
}

func TestAwardTablePoints(t *testing.T) {
	store := newFakeStore()
	store.tables[4] = database.RegistrationTable{ID: 4, Title: "Квиз", EventPoints: 3}
	store.tableRows[4] = []database.TablePerson{
		{ID: 1, FullName: "Иван Петров", MatchedPersonID: pid(10), TableID: 4},
		{ID: 2, FullName: "Глеб Неизвестный", TableID: 4},
	}

	credited, err := newService(store).AwardTablePoints(context.Background(), 4, "admin")
	require.NoError(t, err)

	assert.Equal(t, 1, credited)
	assert.Equal(t, 3, store.points[10], "table rows credit the event's own points")
	require.Len(t, store.auditRecords, 1)
	assert.Equal(t, "Посещение Квиз", store.auditRecords[0].Comment)
}
