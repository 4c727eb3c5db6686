package matching

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrInvalidName is returned for names that cannot be reduced to a
	// "Фамилия Имя" pair of Cyrillic words.
	ErrInvalidName = errors.New("invalid person name")

	cyrillicName = regexp.MustCompile(`^[А-Яа-яЁё\s]+$`)
	cyrillicWord = regexp.MustCompile(`^[а-яА-Я]+$`)
)

// ValidName reports whether a single name token is usable for matching:
// at least two letters, purely Cyrillic.
func ValidName(name string) bool {
	if utf8.RuneCountInString(name) <= 1 {
		return false
	}
	return cyrillicWord.MatchString(name)
}

// FormatPersonName title-cases every token of a raw name and folds ё into е,
// so that document spellings like "варя ЗОЛОТАРЁВА" match the roster entry
// "Варя Золотарева". Similarity is computed over the formatted strings; the
// matcher itself does no normalization.
func FormatPersonName(name string) string {
	parts := strings.Fields(name)
	formatted := make([]string, len(parts))
	for i, part := range parts {
		formatted[i] = strings.ReplaceAll(capitalize(part), "ё", "е")
		formatted[i] = strings.ReplaceAll(formatted[i], "Ё", "Е")
	}
	return strings.Join(formatted, " ")
}

func capitalize(word string) string {
	lower := strings.ToLower(word)
	r, size := utf8.DecodeRuneInString(lower)
	if r == utf8.RuneError {
		return lower
	}
	return string(unicode.ToUpper(r)) + lower[size:]
}

// ParseProtocolName normalizes a bullet-point name from a meeting protocol.
// Protocol attendees are recorded as exactly two words.
func ParseProtocolName(raw string) (string, error) {
	name := FormatPersonName(raw)
	if !cyrillicName.MatchString(name) {
		return "", ErrInvalidName
	}
	if len(strings.Fields(name)) != 2 {
		return "", ErrInvalidName
	}
	return name, nil
}

// ParseRosterName normalizes a full name from an event-registration
// spreadsheet. Rosters often carry a patronymic; a three-word name keeps its
// first two words, a two-word name is kept as is, anything else is invalid.
func ParseRosterName(raw string) (string, error) {
	name := FormatPersonName(raw)
	parts := strings.Fields(name)
	switch len(parts) {
	case 3:
		return parts[0] + " " + parts[1], nil
	case 2:
		return name, nil
	default:
		return "", ErrInvalidName
	}
}
