package googleapi

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the document or spreadsheet no longer exists.
	ErrNotFound = errors.New("document not found")

	// ErrPermissionDenied means access to the document was revoked.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrBadTableLayout means a registration spreadsheet lacks the required
	// "ФИО"/"Отметка" columns.
	ErrBadTableLayout = errors.New("registration table is missing required columns")
)

// APIError is any other non-success answer from the Google API. Syncers skip
// the affected item for the current cycle and leave its mirror unchanged.
type APIError struct {
	StatusCode int
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("google api error: status %d for %s", e.StatusCode, e.URL)
}
