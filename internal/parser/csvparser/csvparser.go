// Package csvparser decodes city lists from delimited text with a header row.
//
// The header names the columns in any order; matching is case-insensitive:
//
//	id,name,country,lat,lon
//	707860,Hurzuf,UA,44.549999,34.283333
//
// Accepted aliases are _id for id, latitude for lat and longitude for lon.
// Extra columns are ignored. Rows are read one at a time.
package csvparser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/JonMunkholm/geoimport/internal/core"
)

// Registry names of the formats this package provides.
const (
	FormatName    = "csv"
	TSVFormatName = "tsv"
)

func init() {
	core.RegisterFormat(core.Format{
		Name:       FormatName,
		Extensions: []string{".csv"},
		New:        func() core.Parser { return New() },
	})
	core.RegisterFormat(core.Format{
		Name:       TSVFormatName,
		Extensions: []string{".tsv", ".tab"},
		New:        func() core.Parser { return New(WithComma('\t')) },
	})
}

// Column keys, in Record field order.
const (
	colID = iota
	colName
	colCountry
	colLat
	colLon
	numCols
)

var columnNames = [numCols]string{"id", "name", "country", "lat", "lon"}

// headerAliases maps normalised header text to a column key.
var headerAliases = map[string]int{
	"id":        colID,
	"_id":       colID,
	"name":      colName,
	"country":   colCountry,
	"lat":       colLat,
	"latitude":  colLat,
	"lon":       colLon,
	"lng":       colLon,
	"longitude": colLon,
}

// Option configures a Parser.
type Option func(*Parser)

// WithComma sets the field delimiter. The default is ','.
func WithComma(r rune) Option {
	return func(p *Parser) { p.comma = r }
}

// Parser implements core.Parser for delimited city lists.
type Parser struct {
	comma rune
}

// New creates a CSV parser.
func New(opts ...Option) *Parser {
	p := &Parser{comma: ','}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse implements core.Parser.
func (p *Parser) Parse(r io.Reader, deliver core.DeliverFunc) error {
	cr := csv.NewReader(core.WrapText(r))
	cr.Comma = p.comma
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return wrap(1, err)
	}
	index, err := buildIndex(header)
	if err != nil {
		line, _ := cr.FieldPos(0)
		return &core.ParseError{Record: 1, Line: line, Err: err}
	}

	n := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return wrap(n+1, err)
		}
		if blank(row) {
			continue
		}
		n++

		rec, err := toRecord(row, index)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return &core.ParseError{Record: n, Line: line, Err: err}
		}
		if err := deliver(rec); err != nil {
			return err
		}
	}
}

// buildIndex maps each column key to its position in the header.
func buildIndex(header []string) ([numCols]int, error) {
	var index [numCols]int
	for i := range index {
		index[i] = -1
	}
	for pos, h := range header {
		key, ok := headerAliases[strings.ToLower(strings.TrimSpace(h))]
		if ok && index[key] < 0 {
			index[key] = pos
		}
	}

	var missing []string
	for key, pos := range index {
		if pos < 0 {
			missing = append(missing, columnNames[key])
		}
	}
	if len(missing) > 0 {
		return index, fmt.Errorf("missing required column: %s", strings.Join(missing, ", "))
	}
	return index, nil
}

func toRecord(row []string, index [numCols]int) (core.Record, error) {
	field := func(key int) (string, error) {
		pos := index[key]
		if pos >= len(row) {
			return "", fmt.Errorf("column %s: row has %d fields", columnNames[key], len(row))
		}
		return strings.TrimSpace(row[pos]), nil
	}

	var (
		rec  core.Record
		errs []error
	)
	if v, err := field(colID); err != nil {
		errs = append(errs, err)
	} else if rec.ID, err = strconv.ParseInt(v, 10, 64); err != nil {
		errs = append(errs, fmt.Errorf("column id: invalid number %q", v))
	}
	if v, err := field(colName); err != nil {
		errs = append(errs, err)
	} else {
		rec.Name = v
	}
	if v, err := field(colCountry); err != nil {
		errs = append(errs, err)
	} else {
		rec.Country = v
	}
	if v, err := field(colLat); err != nil {
		errs = append(errs, err)
	} else if rec.Latitude, err = strconv.ParseFloat(v, 64); err != nil {
		errs = append(errs, fmt.Errorf("column lat: invalid number %q", v))
	}
	if v, err := field(colLon); err != nil {
		errs = append(errs, err)
	} else if rec.Longitude, err = strconv.ParseFloat(v, 64); err != nil {
		errs = append(errs, fmt.Errorf("column lon: invalid number %q", v))
	}
	return rec, errors.Join(errs...)
}

func blank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// wrap turns csv syntax errors into *core.ParseError and passes reader
// errors through unchanged.
func wrap(record int, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &core.ParseError{Record: record, Line: pe.StartLine, Err: pe.Err}
	}
	return err
}
