package googleapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/NeF2le/guss-points/matching"
	"github.com/xuri/excelize/v2"
)

// RosterRow is one attendee row from an event-registration spreadsheet.
type RosterRow struct {
	FullName string
	Attended bool
}

const (
	fullNameColumn = "ФИО"
	markColumn     = "Отметка"
	attendedMark   = "TRUE"
)

var spreadsheetIDPattern = regexp.MustCompile(`spreadsheets/d/([a-zA-Z0-9_-]+)`)

// FetchRegistrationRows downloads a registration spreadsheet as its xlsx
// export and reads the attendee rows from its first worksheet. Rows with
// names that cannot be normalized are dropped.
func (c *Client) FetchRegistrationRows(ctx context.Context, tableURL string) ([]RosterRow, error) {
	rows, _, err := c.fetchWorksheet(ctx, tableURL)
	return rows, err
}

// VerifyRegistrationTable checks a spreadsheet is reachable and carries the
// required columns, and returns its title. Used when an operator registers
// a new table.
func (c *Client) VerifyRegistrationTable(ctx context.Context, tableURL string) (string, error) {
	_, header, err := c.fetchWorksheet(ctx, tableURL)
	if err != nil {
		return "", err
	}
	if header.fullName < 0 || header.mark < 0 {
		return "", fmt.Errorf("%s: %w", tableURL, ErrBadTableLayout)
	}
	return c.fetchSpreadsheetTitle(ctx, tableURL)
}

type headerIndex struct {
	fullName int
	mark     int
}

func (c *Client) fetchWorksheet(ctx context.Context, tableURL string) ([]RosterRow, headerIndex, error) {
	header := headerIndex{fullName: -1, mark: -1}

	id, err := spreadsheetIDFromURL(tableURL)
	if err != nil {
		return nil, header, err
	}

	url := fmt.Sprintf("%s/spreadsheets/d/%s/export?format=xlsx", c.ExportBaseURL, id)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, header, err
	}

	book, err := excelize.OpenReader(bytes.NewReader(body))
	if err != nil {
		return nil, header, fmt.Errorf("open spreadsheet export: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, header, fmt.Errorf("%s: %w", tableURL, ErrBadTableLayout)
	}

	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, header, fmt.Errorf("read worksheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, header, nil
	}

	for i, column := range rows[0] {
		switch column {
		case fullNameColumn:
			header.fullName = i
		case markColumn:
			header.mark = i
		}
	}
	if header.fullName < 0 || header.mark < 0 {
		return nil, header, nil
	}

	var roster []RosterRow
	for _, row := range rows[1:] {
		rawName := rowCell(row, header.fullName)
		mark := rowCell(row, header.mark)
		if rawName == "" || mark == "" {
			continue
		}

		name, err := matching.ParseRosterName(rawName)
		if err != nil {
			continue
		}
		roster = append(roster, RosterRow{FullName: name, Attended: mark == attendedMark})
	}
	return roster, header, nil
}

func (c *Client) fetchSpreadsheetTitle(ctx context.Context, tableURL string) (string, error) {
	id, err := spreadsheetIDFromURL(tableURL)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v4/spreadsheets/%s?fields=properties.title", c.SheetsBaseURL, id)
	body, err := c.get(ctx, url)
	if err != nil {
		return "", err
	}

	var meta struct {
		Properties struct {
			Title string `json:"title"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return "", fmt.Errorf("decode spreadsheet metadata: %w", err)
	}
	return meta.Properties.Title, nil
}

func spreadsheetIDFromURL(tableURL string) (string, error) {
	match := spreadsheetIDPattern.FindStringSubmatch(tableURL)
	if match == nil {
		return "", fmt.Errorf("%s: %w", tableURL, ErrNotFound)
	}
	return match[1], nil
}

func rowCell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return row[i]
}
