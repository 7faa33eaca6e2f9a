package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultCityName is used for CSV rows that do not name a city.
const DefaultCityName = "Unknown"

// ListingColumns describes the accepted CSV header.
var ListingColumns = []FieldSpec{
	{Name: "title", Required: true},
	{Name: "price", Required: true},
	{Name: "city"},
	{Name: "url"},
	{Name: "description"},
	{Name: "district", Aliases: []string{"address"}},
	{Name: "rooms"},
	{Name: "created_at"},
	{Name: "publication_date"},
	{Name: "user_email"},
	{Name: "user_first_name"},
	{Name: "user_last_name"},
	{Name: "user_middle_name"},
}

// CsvIngestor turns an uploaded CSV document into listing candidates.
//
// The header is strict: a missing required column rejects the document.
// Optional fields are lenient: an unparseable date or room count is dropped
// and the row is kept. Price is left for the validator, which rejects it.
type CsvIngestor struct {
	DefaultCity string
}

// NewCsvIngestor creates an ingestor. An empty defaultCity falls back to
// DefaultCityName.
func NewCsvIngestor(defaultCity string) *CsvIngestor {
	if strings.TrimSpace(defaultCity) == "" {
		defaultCity = DefaultCityName
	}
	return &CsvIngestor{DefaultCity: defaultCity}
}

// Parse reads the whole document. It fails with ErrEmptyDocument when there
// is no data row and with *MissingColumnsError for a bad header.
func (c *CsvIngestor) Parse(r io.Reader) ([]CSVRow, error) {
	// Strips a UTF-8 BOM, decodes UTF-16 when a BOM says so and replaces
	// invalid UTF-8 with U+FFFD.
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyDocument
	}
	if err != nil {
		return nil, csvSyntaxError(err)
	}

	type dataLine struct {
		line   int
		record []string
	}
	var data []dataLine
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, csvSyntaxError(err)
		}
		if isEmptyRow(record) {
			continue
		}
		line, _ := reader.FieldPos(0)
		data = append(data, dataLine{line: line, record: record})
	}

	// A document without data rows is empty whatever its header says.
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}

	idx, err := ValidateHeaders(header, ListingColumns)
	if err != nil {
		return nil, err
	}
	cols := resolveColumns(idx)

	rows := make([]CSVRow, 0, len(data))
	for _, d := range data {
		rows = append(rows, CSVRow{Line: d.line, Listing: c.buildRow(d.record, cols)})
	}
	return rows, nil
}

// columnPositions maps canonical column names to record positions.
type columnPositions map[string]int

func resolveColumns(idx HeaderIndex) columnPositions {
	cols := make(columnPositions, len(ListingColumns))
	for _, col := range ListingColumns {
		if pos, ok := lookupColumn(idx, col); ok {
			cols[col.Name] = pos
		}
	}
	return cols
}

func (p columnPositions) get(record []string, name string) string {
	pos, ok := p[name]
	if !ok || pos >= len(record) {
		return ""
	}
	return CleanCell(record[pos])
}

func (c *CsvIngestor) buildRow(record []string, cols columnPositions) RawListing {
	listingURL := cols.get(record, "url")
	sourceName, sourceURL := SourceForListingURL(listingURL)

	city := cols.get(record, "city")
	if city == "" {
		city = c.DefaultCity
	}

	raw := RawListing{
		Title:       cols.get(record, "title"),
		Price:       cols.get(record, "price"),
		Description: cols.get(record, "description"),
		District:    cols.get(record, "district"),
		CityName:    city,
		SourceName:  sourceName,
		SourceURL:   sourceURL,
		URL:         listingURL,
	}

	if rooms := cols.get(record, "rooms"); rooms != "" {
		if _, err := ParseRooms(rooms); err == nil {
			raw.Rooms = rooms
		}
	}
	if v := cols.get(record, "publication_date"); v != "" {
		if _, ok := ParseTimestamp(v); ok {
			raw.PublicationDate = v
		}
	}
	if v := cols.get(record, "created_at"); v != "" {
		if _, ok := ParseTimestamp(v); ok {
			raw.CreatedAt = v
		}
	}

	if email := cols.get(record, "user_email"); email != "" {
		raw.Owner = &UserRef{
			Email:      strings.ToLower(email),
			FirstName:  cols.get(record, "user_first_name"),
			LastName:   cols.get(record, "user_last_name"),
			MiddleName: cols.get(record, "user_middle_name"),
		}
	}

	return raw
}

// isEmptyRow reports whether every cell is blank.
func isEmptyRow(record []string) bool {
	for _, cell := range record {
		if CleanCell(cell) != "" {
			return false
		}
	}
	return true
}

func csvSyntaxError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &ValidationError{Field: "csv", Line: pe.Line, Message: pe.Err.Error(), Err: err}
	}
	return &ValidationError{Field: "csv", Message: fmt.Sprintf("unreadable document: %v", err), Err: err}
}
