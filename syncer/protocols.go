package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/NeF2le/guss-points/database"
	"github.com/NeF2le/guss-points/matching"
)

// ProtocolSyncer keeps one committee's mirror protocols in step with its
// protocol document.
type ProtocolSyncer struct {
	docs  DocumentSource
	store ProtocolStore

	matchThreshold   int
	attendancePoints int
	log              *slog.Logger
}

func NewProtocolSyncer(docs DocumentSource, store ProtocolStore, matchThreshold, attendancePoints int, logger *slog.Logger) *ProtocolSyncer {
	return &ProtocolSyncer{
		docs:             docs,
		store:            store,
		matchThreshold:   matchThreshold,
		attendancePoints: attendancePoints,
		log:              logger,
	}
}

// SyncAll reconciles every committee that has a protocol document. A failure
// against one committee's document is logged and does not abort the rest of
// the batch.
func (s *ProtocolSyncer) SyncAll(ctx context.Context) error {
	committees, err := s.store.GetCommittees(ctx)
	if err != nil {
		return err
	}

	for _, committee := range committees {
		if committee.ProtocolsDocumentID == "" {
			continue
		}
		if err := s.SyncCommittee(ctx, committee.ID, committee.ProtocolsDocumentID); err != nil {
			s.log.Warn("committee protocol sync failed",
				slog.Int64("committee_id", committee.ID),
				slog.String("committee", committee.Name),
				slog.Any("error", err),
			)
		}
	}
	return nil
}

// SyncCommittee runs one full reconciliation pass for a committee:
// protocols missing upstream are deleted, protocols whose date changed are
// replaced wholesale, and every valid protocol gets its attendee list
// diffed against the mirror.
func (s *ProtocolSyncer) SyncCommittee(ctx context.Context, committeeID int64, documentID string) error {
	records, err := s.docs.FetchProtocols(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch protocols for committee %d: %w", committeeID, err)
	}

	// Delete mirror protocols whose number no longer appears in the
	// document at all.
	present := make(map[int]bool, len(records))
	for _, record := range records {
		if record.Number > 0 {
			present[record.Number] = true
		}
	}
	mirrorNumbers, err := s.store.GetProtocolNumbers(ctx, committeeID)
	if err != nil {
		return err
	}
	for _, number := range mirrorNumbers {
		if present[number] {
			continue
		}
		if err := s.store.DeleteProtocolByNumber(ctx, committeeID, number, s.attendancePoints); err != nil {
			return err
		}
		s.log.Info("deleted protocol missing upstream",
			slog.Int64("committee_id", committeeID), slog.Int("number", number))
	}

	for _, record := range records {
		if !record.Valid() {
			// An invalid record that still names a number invalidates the
			// mirror protocol holding that number. Without a number there
			// is nothing to address; skip.
			if record.Number > 0 {
				if err := s.store.DeleteProtocolByNumber(ctx, committeeID, record.Number, s.attendancePoints); err != nil {
					return err
				}
			}
			continue
		}

		protocol, err := s.store.GetProtocolByNumber(ctx, committeeID, record.Number)
		if err != nil {
			return err
		}

		// A changed date invalidates the stored attendee diff baseline, so
		// the protocol is replaced wholesale rather than updated in place.
		if protocol != nil && !sameDay(protocol.Date, *record.Date) {
			if err := s.store.DeleteProtocol(ctx, protocol.ID, s.attendancePoints); err != nil {
				return err
			}
			protocol = nil
		}
		if protocol == nil {
			protocol, err = s.store.InsertProtocol(ctx, committeeID, record.Number, *record.Date)
			if err != nil {
				return err
			}
		}

		if err := s.syncAttendees(ctx, committeeID, protocol.ID, record.Persons); err != nil {
			return err
		}
	}
	return nil
}

// syncAttendees diffs one protocol's fetched attendee names against its
// mirror rows.
func (s *ProtocolSyncer) syncAttendees(ctx context.Context, committeeID, protocolID int64, fetched []string) error {
	existing, err := s.store.GetProtocolPersons(ctx, protocolID)
	if err != nil {
		return err
	}
	registry, err := s.store.GetPersonFullNames(ctx)
	if err != nil {
		return err
	}

	fetchedEntries := make([]matching.Entry, len(fetched))
	for i, name := range fetched {
		fetchedEntries[i] = matching.Entry{ID: int64(i), FullName: name}
	}
	existingEntries := make([]matching.Entry, len(existing))
	existingByName := make(map[string]database.ProtocolPerson, len(existing))
	for i, row := range existing {
		existingEntries[i] = matching.Entry{ID: row.ID, FullName: row.FullName}
		existingByName[row.FullName] = row
	}

	// Deletion pass: drop mirror rows that no longer appear in the fetched
	// list, match it too weakly, or match a name with a different word
	// count (an abbreviated or expanded name must not silently reuse the
	// old row).
	var toDelete []int64
	for _, row := range existing {
		idx, score, ok := matching.BestMatch(row.FullName, fetchedEntries)
		remove := !ok || score < s.matchThreshold
		if ok && wordCount(fetched[idx]) != wordCount(row.FullName) {
			remove = true
		}
		if remove {
			toDelete = append(toDelete, row.ID)
		}
	}

	var (
		toInsert []database.NewProtocolPerson
		toUpdate []database.MatchUpdate
	)
	for _, name := range fetched {
		// A fetched name whose words merely changed order is the same
		// person; its row stays untouched.
		if _, score, ok := matching.BestMatch(name, existingEntries); ok && score == matching.WordOrderScore {
			continue
		}

		personID, score, ok := matching.BestMatch(name, registry)
		member := false
		if ok {
			member, err = s.store.CheckMembership(ctx, committeeID, personID)
			if err != nil {
				return err
			}
		}

		// Non-members are not eligible matches however well the strings
		// agree; the row is kept as unmatched.
		if !ok || score < s.matchThreshold || !member {
			if _, exists := existingByName[name]; !exists {
				toInsert = append(toInsert, database.NewProtocolPerson{
					ProtocolID: protocolID,
					FullName:   name,
				})
			}
			continue
		}

		if row, exists := existingByName[name]; exists {
			if row.MatchedPersonID != nil && *row.MatchedPersonID == personID {
				continue
			}
			toUpdate = append(toUpdate, database.MatchUpdate{RowID: row.ID, MatchedPersonID: personID})
		} else {
			matched := personID
			toInsert = append(toInsert, database.NewProtocolPerson{
				ProtocolID:      protocolID,
				FullName:        name,
				MatchedPersonID: &matched,
			})
		}
	}

	if len(toInsert) > 0 {
		if err := s.store.BatchInsertProtocolPersons(ctx, toInsert); err != nil {
			return err
		}
	}
	if len(toUpdate) > 0 {
		if err := s.store.BatchUpdateProtocolPersonMatches(ctx, toUpdate, s.attendancePoints); err != nil {
			return err
		}
	}
	if len(toDelete) > 0 {
		if err := s.store.BatchDeleteProtocolPersons(ctx, toDelete); err != nil {
			return err
		}
	}
	return nil
}

func wordCount(name string) int {
	return len(strings.Fields(name))
}

// sameDay compares calendar days only; the stored timestamp may carry a
// timezone the document date never had.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
