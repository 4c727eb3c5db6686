package syncer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeF2le/guss-points/database"
	"github.com/NeF2le/guss-points/googleapi"
	"github.com/NeF2le/guss-points/matching"
)

const testTableURL = "https://docs.google.com/spreadsheets/d/sheet-quiz/edit"

func newTableFixture(rows ...googleapi.RosterRow) (*TableSyncer, *fakeTableStore, *fakeSheets) {
	store := newFakeTableStore()
	store.registry = []matching.Entry{
		{ID: 10, FullName: "Иван Петров"},
		{ID: 11, FullName: "Мария Сидорова"},
	}
	store.tables = []database.RegistrationTable{
		{ID: 1, Title: "Квиз", TableURL: testTableURL, EventTypeID: 3, EventPoints: 1},
	}
	sheets := &fakeSheets{
		rows: map[string][]googleapi.RosterRow{testTableURL: rows},
		errs: map[string]error{},
	}
	return NewTableSyncer(sheets, store, testThreshold, discardLogger()), store, sheets
}

func TestTableSyncInsertsAttendedRows(t *testing.T) {
	s, store, _ := newTableFixture(
		googleapi.RosterRow{FullName: "Иван Петров", Attended: true},
		googleapi.RosterRow{FullName: "Мария Сидорова", Attended: false},
		googleapi.RosterRow{FullName: "Глеб Неизвестный", Attended: true},
	)

	require.NoError(t, s.SyncAll(context.Background()))

	require.Len(t, store.rows, 2, "unattended rows are not mirrored")
	matchedBy := map[string]*int64{}
	for _, row := range store.rows {
		matchedBy[row.FullName] = row.MatchedPersonID
	}
	require.NotNil(t, matchedBy["Иван Петров"])
	assert.Equal(t, int64(10), *matchedBy["Иван Петров"])
	assert.Nil(t, matchedBy["Глеб Неизвестный"])
}

func TestTableSyncIsAppendOnly(t *testing.T) {
	s, store, sheets := newTableFixture(
		googleapi.RosterRow{FullName: "Иван Петров", Attended: true},
		googleapi.RosterRow{FullName: "Мария Сидорова", Attended: true},
	)
	require.NoError(t, s.SyncAll(context.Background()))
	require.Len(t, store.rows, 2)

	// The sheet shrinks; mirrored rows survive.
	sheets.rows[testTableURL] = []googleapi.RosterRow{
		{FullName: "Иван Петров", Attended: true},
	}
	store.muts = mutations{}
	require.NoError(t, s.SyncAll(context.Background()))

	assert.Len(t, store.rows, 2)
	assert.Zero(t, store.muts.total())
}

func TestTableSyncSecondPassIsNoop(t *testing.T) {
	s, store, _ := newTableFixture(
		googleapi.RosterRow{FullName: "Иван Петров", Attended: true},
		googleapi.RosterRow{FullName: "Глеб Неизвестный", Attended: true},
	)
	require.NoError(t, s.SyncAll(context.Background()))
	store.muts = mutations{}

	require.NoError(t, s.SyncAll(context.Background()))
	assert.Zero(t, store.muts.total())
}

func TestTableSyncDeletesUnreachableTable(t *testing.T) {
	for _, fetchErr := range []error{googleapi.ErrNotFound, googleapi.ErrPermissionDenied} {
		s, store, sheets := newTableFixture()
		sheets.errs[testTableURL] = fetchErr

		require.NoError(t, s.SyncAll(context.Background()))
		assert.Equal(t, []int64{1}, store.deletedTables)
		assert.Empty(t, store.tables)
	}
}

func TestTableSyncKeepsTableOnTransientError(t *testing.T) {
	s, store, sheets := newTableFixture()
	sheets.errs[testTableURL] = &googleapi.APIError{StatusCode: 503, URL: testTableURL}

	require.NoError(t, s.SyncAll(context.Background()))
	assert.Empty(t, store.deletedTables)
	assert.Len(t, store.tables, 1)
}

func TestTableSyncCorrectsMatchForNewPerson(t *testing.T) {
	// The name was mirrored unmatched before Мария joined the club; the
	// next pass picks up the registry entry and repairs the row.
	s, store, _ := newTableFixture(googleapi.RosterRow{FullName: "Мария Сидорова", Attended: true})
	store.registry = []matching.Entry{{ID: 10, FullName: "Иван Петров"}}
	require.NoError(t, s.SyncAll(context.Background()))
	for _, row := range store.rows {
		require.Nil(t, row.MatchedPersonID)
	}

	store.registry = append(store.registry, matching.Entry{ID: 11, FullName: "Мария Сидорова"})
	store.muts = mutations{}
	require.NoError(t, s.SyncAll(context.Background()))

	assert.Equal(t, 1, store.muts.rowUpdates)
	for _, row := range store.rows {
		require.NotNil(t, row.MatchedPersonID)
		assert.Equal(t, int64(11), *row.MatchedPersonID)
	}
}
