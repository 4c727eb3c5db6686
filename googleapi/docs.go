package googleapi

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/NeF2le/guss-points/matching"
)

// ProtocolRecord is one table block parsed from a committee's protocol
// document. Fields the document author filled in badly degrade to their
// zero value instead of failing the whole fetch.
type ProtocolRecord struct {
	Status  bool       // the "проверено" mark
	Number  int        // 0 when the cell is not a positive integer
	Date    *time.Time // nil when the cell does not parse as dd.mm.yyyy
	Persons []string   // normalized attendee names from the bullet list
}

// Valid reports whether the record is complete enough to mirror. Invalid
// records that still carry a positive number trigger deletion of the mirror
// protocol with that number.
func (r ProtocolRecord) Valid() bool {
	return r.Status && r.Number > 0 && r.Date != nil && len(r.Persons) > 0
}

const protocolDateLayout = "02.01.2006"

var checkedStatus = regexp.MustCompile(`(?i)^проверено$`)

// Protocol documents follow a fixed table layout: the status text sits in
// row 0 cell 0, the protocol number in row 2 cell 1, the date in row 3
// cell 1 and the bulleted attendee list in row 5 cell 1.
const (
	statusRow, statusCell   = 0, 0
	numberRow, numberCell   = 2, 1
	dateRow, dateCell       = 3, 1
	personsRow, personsCell = 5, 1
)

// FetchProtocols pulls a protocol document and parses every table block in
// document order.
func (c *Client) FetchProtocols(ctx context.Context, documentID string) ([]ProtocolRecord, error) {
	url := fmt.Sprintf("%s/v1/documents/%s", c.DocsBaseURL, documentID)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	return parseProtocolDocument(body)
}

func parseProtocolDocument(body []byte) ([]ProtocolRecord, error) {
	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode protocol document: %w", err)
	}

	var protocols []ProtocolRecord
	for _, block := range doc.Body.Content {
		// Protocols live in table blocks; skip everything else.
		if block.Table == nil {
			continue
		}
		protocols = append(protocols, parseProtocolTable(block.Table))
	}
	return protocols, nil
}

func parseProtocolTable(t *table) ProtocolRecord {
	record := ProtocolRecord{
		Status: checkedStatus.MatchString(strings.TrimSpace(cellText(t, statusRow, statusCell))),
		Number: parseProtocolNumber(cellText(t, numberRow, numberCell)),
	}

	// An unchecked protocol is read only for its number; the date and
	// attendee list are not trusted yet.
	if !record.Status {
		return record
	}

	if date, err := time.Parse(protocolDateLayout, cellText(t, dateRow, dateCell)); err == nil {
		record.Date = &date
	}
	record.Persons = parseProtocolPersons(t, personsRow, personsCell)
	return record
}

func parseProtocolNumber(text string) int {
	if text == "" {
		return 0
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return 0
		}
	}
	number, err := strconv.Atoi(text)
	if err != nil || number <= 0 {
		return 0
	}
	return number
}

func parseProtocolPersons(t *table, row, cell int) []string {
	content := cellContent(t, row, cell)

	var persons []string
	for _, element := range content {
		p := element.Paragraph
		if p == nil || p.Bullet == nil || len(p.Elements) == 0 || p.Elements[0].TextRun == nil {
			continue
		}

		name, err := matching.ParseProtocolName(strings.TrimSpace(p.Elements[0].TextRun.Content))
		if err != nil {
			continue
		}
		persons = append(persons, name)
	}
	return persons
}

// Minimal mirror of the Docs API document shape, just deep enough to reach
// table cell text runs.
type document struct {
	Body struct {
		Content []structuralElement `json:"content"`
	} `json:"body"`
}

type structuralElement struct {
	Table *table `json:"table"`
}

type table struct {
	TableRows []tableRow `json:"tableRows"`
}

type tableRow struct {
	TableCells []tableCell `json:"tableCells"`
}

type tableCell struct {
	Content []cellElement `json:"content"`
}

type cellElement struct {
	Paragraph *paragraph `json:"paragraph"`
}

type paragraph struct {
	Elements []paragraphElement `json:"elements"`
	Bullet   *json.RawMessage   `json:"bullet"`
}

type paragraphElement struct {
	TextRun *textRun `json:"textRun"`
}

type textRun struct {
	Content string `json:"content"`
}

func cellContent(t *table, row, cell int) []cellElement {
	if row >= len(t.TableRows) || cell >= len(t.TableRows[row].TableCells) {
		return nil
	}
	return t.TableRows[row].TableCells[cell].Content
}

func cellText(t *table, row, cell int) string {
	content := cellContent(t, row, cell)
	if len(content) == 0 || content[0].Paragraph == nil {
		return ""
	}
	elements := content[0].Paragraph.Elements
	if len(elements) == 0 || elements[0].TextRun == nil {
		return ""
	}
	return strings.TrimSpace(elements[0].TextRun.Content)
}
