// Package matching maps externally-authored person names onto the internal
// person roster using fuzzy string similarity.
package matching

import (
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// Entry is one candidate in a name registry. Registries are ordered slices
// rebuilt from the database at the start of every reconciliation pass; they
// are never cached across passes.
type Entry struct {
	ID       int64
	FullName string
}

// WordOrderScore is the similarity the weighted ratio assigns to two names
// that contain the same words in a different order ("Женя Корнилов" vs
// "Корнилов Женя"). The protocol syncer treats it as "same person, word
// order changed".
const WordOrderScore = 95

// BestMatch scores fullName against every registry entry with a weighted
// ratio and returns the entry with the highest score together with that
// score. ok is false when the registry is empty or nothing scored above
// zero. Ties keep the first entry seen; callers must not rely on tie order.
func BestMatch(fullName string, registry []Entry) (bestID int64, score int, ok bool) {
	highest := 0
	for _, entry := range registry {
		// UWRatio, not WRatio: the latter strips non-ASCII runes before
		// scoring, which reduces every Cyrillic name to the empty string.
		ratio := fuzzy.UWRatio(entry.FullName, fullName)
		if ratio > highest {
			highest = ratio
			bestID = entry.ID
			ok = true
		}
	}
	return bestID, highest, ok
}
