// Package syncer reconciles externally-authored attendance lists against
// the persistent mirror tables. Each pass pulls the current external data,
// the current mirror and a fresh person-name registry, computes an
// insert/update/delete plan with fuzzy name matching and applies it through
// storage.
package syncer

import (
	"context"
	"time"

	"github.com/NeF2le/guss-points/database"
	"github.com/NeF2le/guss-points/googleapi"
	"github.com/NeF2le/guss-points/matching"
)

// DocumentSource reads a committee's protocol document.
type DocumentSource interface {
	FetchProtocols(ctx context.Context, documentID string) ([]googleapi.ProtocolRecord, error)
}

// SheetSource reads an event-registration roster.
type SheetSource interface {
	FetchRegistrationRows(ctx context.Context, tableURL string) ([]googleapi.RosterRow, error)
}

// ProtocolStore is the storage surface the protocol reconciler needs.
type ProtocolStore interface {
	GetPersonFullNames(ctx context.Context) ([]matching.Entry, error)
	GetCommittees(ctx context.Context) ([]database.Committee, error)
	CheckMembership(ctx context.Context, committeeID, personID int64) (bool, error)

	GetProtocolNumbers(ctx context.Context, committeeID int64) ([]int, error)
	GetProtocolByNumber(ctx context.Context, committeeID int64, number int) (*database.Protocol, error)
	InsertProtocol(ctx context.Context, committeeID int64, number int, date time.Time) (*database.Protocol, error)
	DeleteProtocol(ctx context.Context, protocolID int64, reversalPoints int) error
	DeleteProtocolByNumber(ctx context.Context, committeeID int64, number, reversalPoints int) error

	GetProtocolPersons(ctx context.Context, protocolID int64) ([]database.ProtocolPerson, error)
	BatchInsertProtocolPersons(ctx context.Context, persons []database.NewProtocolPerson) error
	BatchUpdateProtocolPersonMatches(ctx context.Context, updates []database.MatchUpdate, attendancePoints int) error
	BatchDeleteProtocolPersons(ctx context.Context, ids []int64) error
}

// TableStore is the storage surface the registration-table reconciler needs.
type TableStore interface {
	GetPersonFullNames(ctx context.Context) ([]matching.Entry, error)

	GetRegistrationTables(ctx context.Context) ([]database.RegistrationTable, error)
	DeleteRegistrationTable(ctx context.Context, tableID int64) error

	GetTablePersons(ctx context.Context, tableID int64) ([]database.TablePerson, error)
	BatchInsertTablePersons(ctx context.Context, persons []database.NewTablePerson) error
	BatchUpdateTablePersonMatches(ctx context.Context, updates []database.MatchUpdate, eventPoints int) error
}
