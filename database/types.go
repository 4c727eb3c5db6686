package database

import (
	"time"

	"github.com/google/uuid"
)

type Person struct {
	ID        int64
	FirstName string
	LastName  string
	VkID      int64
}

func (p Person) FullName() string {
	return p.FirstName + " " + p.LastName
}

type Committee struct {
	ID                  int64
	Name                string
	ProtocolsDocumentID string
}

type Category struct {
	ID   int64
	Name string
}

type EventType struct {
	ID     int64
	Name   string
	Points int
}

// Protocol is the mirror row for one meeting protocol owned by a committee.
type Protocol struct {
	ID          int64
	Number      int
	Date        time.Time
	CommitteeID int64
}

// ProtocolPerson is one attendee row under a mirror protocol. FullName keeps
// the spelling seen in the source document at insertion time and is never
// renamed afterwards.
type ProtocolPerson struct {
	ID              int64
	FullName        string
	MatchedPersonID *int64
	PointsAdded     bool
	ProtocolID      int64
}

type NewProtocolPerson struct {
	ProtocolID      int64
	FullName        string
	MatchedPersonID *int64
}

// MatchUpdate re-points an existing mirror row at a corrected person match.
type MatchUpdate struct {
	RowID           int64
	MatchedPersonID int64
}

type RegistrationTable struct {
	ID          int64
	Title       string
	TableURL    string
	EventTypeID int64
	EventPoints int
}

type TablePerson struct {
	ID              int64
	FullName        string
	MatchedPersonID *int64
	PointsAdded     bool
	TableID         int64
}

type NewTablePerson struct {
	TableID         int64
	FullName        string
	MatchedPersonID *int64
}

// PersonSnapshot is the full person state captured before and after an
// audited mutation.
type PersonSnapshot struct {
	FirstName  string         `json:"first_name"`
	LastName   string         `json:"last_name"`
	Committees []string       `json:"committees"`
	Points     map[string]int `json:"points"`
}

type AuditRecord struct {
	ID         uuid.UUID
	ActionType string
	ChangedBy  string
	PersonID   *int64
	OldData    []byte
	NewData    []byte
	Comment    string
	ChangedAt  time.Time
}
