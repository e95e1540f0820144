// Package jsonparser decodes city lists in the OpenWeatherMap JSON shape:
//
//	[{"_id": 707860, "name": "Hurzuf", "country": "UA", "coord": {"lon": 34.28, "lat": 44.55}}, ...]
//
// Both a top-level array and a stream of concatenated (or newline-delimited)
// objects are accepted. Objects are decoded one at a time, so memory use does
// not grow with the size of the list.
package jsonparser

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/JonMunkholm/geoimport/internal/core"
)

// FormatName is the registry name of this format.
const FormatName = "json"

func init() {
	core.RegisterFormat(core.Format{
		Name:       FormatName,
		Extensions: []string{".json", ".ndjson", ".jsonl"},
		New:        func() core.Parser { return New() },
	})
}

// Parser implements core.Parser for JSON city lists.
type Parser struct{}

// New creates a JSON parser.
func New() *Parser { return &Parser{} }

type city struct {
	ID      *int64 `json:"_id"`
	AltID   *int64 `json:"id"`
	Name    string `json:"name"`
	Country string `json:"country"`
	Coord   *coord `json:"coord"`
}

type coord struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

func (c *city) record() (core.Record, error) {
	id := c.ID
	if id == nil {
		id = c.AltID
	}
	if id == nil {
		return core.Record{}, errors.New("missing _id")
	}
	if c.Coord == nil || c.Coord.Lat == nil || c.Coord.Lon == nil {
		return core.Record{}, fmt.Errorf("city %d: missing coord.lat or coord.lon", *id)
	}
	return core.Record{
		ID:        *id,
		Name:      c.Name,
		Country:   c.Country,
		Latitude:  *c.Coord.Lat,
		Longitude: *c.Coord.Lon,
	}, nil
}

// Parse implements core.Parser.
func (p *Parser) Parse(r io.Reader, deliver core.DeliverFunc) error {
	br := bufio.NewReader(core.WrapText(r))

	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}

	s := &stream{dec: json.NewDecoder(br), deliver: deliver}
	switch first {
	case '[':
		return s.array()
	case '{':
		return s.objects()
	default:
		return &core.ParseError{Record: 1, Err: fmt.Errorf("unexpected %q at start of input, want '[' or '{'", first)}
	}
}

type stream struct {
	dec     *json.Decoder
	deliver core.DeliverFunc
	n       int // records started
}

func (s *stream) array() error {
	if _, err := s.dec.Token(); err != nil {
		return s.wrap(err)
	}
	for s.dec.More() {
		if err := s.next(); err != nil {
			return err
		}
	}
	if _, err := s.dec.Token(); err != nil {
		return s.wrap(err)
	}

	tok, err := s.dec.Token()
	switch {
	case err == io.EOF:
		return nil
	case err != nil:
		return s.wrap(err)
	default:
		return s.fail(fmt.Errorf("unexpected %v after closing ']'", tok))
	}
}

func (s *stream) objects() error {
	for {
		if !s.dec.More() {
			// More reports false at EOF and at a stray closing delimiter.
			if _, err := s.dec.Token(); err != io.EOF {
				if err == nil {
					err = errors.New("unexpected closing delimiter")
				}
				return s.wrap(err)
			}
			return nil
		}
		if err := s.next(); err != nil {
			return err
		}
	}
}

// next decodes and delivers one object. Errors from deliver are returned
// unchanged.
func (s *stream) next() error {
	s.n++
	var c city
	if err := s.dec.Decode(&c); err != nil {
		return s.wrap(err)
	}
	rec, err := c.record()
	if err != nil {
		return s.fail(err)
	}
	return s.deliver(rec)
}

// wrap turns decoder syntax errors into *core.ParseError. Errors from the
// underlying reader pass through so the caller can tell a corrupt stream
// from malformed JSON.
func (s *stream) wrap(err error) error {
	var (
		syn *json.SyntaxError
		typ *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &syn), errors.As(err, &typ), err == io.ErrUnexpectedEOF:
		return s.fail(err)
	case err == io.EOF:
		return s.fail(io.ErrUnexpectedEOF)
	default:
		return err
	}
}

func (s *stream) fail(err error) error {
	n := s.n
	if n == 0 {
		n = 1
	}
	return &core.ParseError{Record: n, Offset: s.dec.InputOffset(), Err: err}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
