package csvparser

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/geoimport/internal/core"
)

func collect(t *testing.T, p *Parser, input string) ([]core.Record, error) {
	t.Helper()
	var got []core.Record
	err := p.Parse(strings.NewReader(input), func(r core.Record) error {
		got = append(got, r)
		return nil
	})
	return got, err
}

func TestParse_Basic(t *testing.T) {
	input := "id,name,country,lat,lon\n" +
		"707860,Hurzuf,UA,44.549999,34.283333\n" +
		"519188,Novinki,RU,55.683334,37.666668\n"

	got, err := collect(t, New(), input)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, core.Record{
		ID:        707860,
		Name:      "Hurzuf",
		Country:   "UA",
		Latitude:  44.549999,
		Longitude: 34.283333,
	}, got[0])
	assert.Equal(t, int64(519188), got[1].ID)
}

func TestParse_HeaderAliasesAndOrder(t *testing.T) {
	input := "Longitude, Country ,_ID,Population,NAME,Latitude\r\n" +
		"8.5,CH,1,400000,\"Zürich, City\",47.3\r\n"

	got, err := collect(t, New(), input)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, core.Record{ID: 1, Name: "Zürich, City", Country: "CH", Latitude: 47.3, Longitude: 8.5}, got[0])
}

func TestParse_BlankRowsAndBOM(t *testing.T) {
	input := "\xEF\xBB\xBFid,name,country,lat,lon\n\n1,A,AA,1,2\n,,,,\n\n2,B,BB,3,4\n"

	got, err := collect(t, New(), input)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[1].ID)
}

func TestParse_Empty(t *testing.T) {
	for _, input := range []string{"", "\n\n", "id,name,country,lat,lon\n"} {
		got, err := collect(t, New(), input)
		assert.NoError(t, err, "input %q", input)
		assert.Empty(t, got, "input %q", input)
	}
}

func TestParse_TSV(t *testing.T) {
	input := "id\tname\tcountry\tlat\tlon\n3\tOslo\tNO\t59.9\t10.7\n"

	got, err := collect(t, New(WithComma('\t')), input)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Oslo", got[0].Name)
}

func TestParse_Errors(t *testing.T) {
	header := "id,name,country,lat,lon\n"

	tests := []struct {
		name       string
		input      string
		wantRecord int
		wantLine   int
		wantText   string
		delivered  int
	}{
		{
			name:       "missing column",
			input:      "id,name,lat,lon\n1,A,1,2\n",
			wantRecord: 1,
			wantLine:   1,
			wantText:   "missing required column: country",
		},
		{
			name:       "bad id",
			input:      header + "1,A,AA,1,2\nx7,B,BB,1,2\n",
			wantRecord: 2,
			wantLine:   3,
			wantText:   `column id: invalid number "x7"`,
			delivered:  1,
		},
		{
			name:       "bad latitude",
			input:      header + "1,A,AA,north,2\n",
			wantRecord: 1,
			wantLine:   2,
			wantText:   "column lat",
		},
		{
			name:       "short row",
			input:      header + "1,A,AA\n",
			wantRecord: 1,
			wantLine:   2,
			wantText:   "row has 3 fields",
		},
		{
			name:       "unterminated quote",
			input:      header + "1,\"A,AA,1,2\n",
			wantRecord: 1,
			wantLine:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := collect(t, New(), tt.input)
			require.Error(t, err)

			var pe *core.ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.wantRecord, pe.Record)
			assert.Equal(t, tt.wantLine, pe.Line)
			if tt.wantText != "" {
				assert.Contains(t, err.Error(), tt.wantText)
			}
			assert.Len(t, got, tt.delivered)
		})
	}
}

func TestParse_DeliverErrorStops(t *testing.T) {
	stop := errors.New("store failed")
	input := "id,name,country,lat,lon\n1,A,AA,1,2\n2,B,BB,3,4\n"

	calls := 0
	err := New().Parse(strings.NewReader(input), func(core.Record) error {
		calls++
		return stop
	})

	assert.Same(t, stop, err)
	assert.Equal(t, 1, calls)
}

func TestParse_ReaderErrorPassesThrough(t *testing.T) {
	boom := &core.DecodeError{Err: errors.New("flate: corrupt input")}
	r := io.MultiReader(strings.NewReader("id,name,country,lat,lon\n1,A,AA,1,2\n"), iotest.ErrReader(boom))

	err := New().Parse(r, func(core.Record) error { return nil })
	require.Error(t, err)

	var pe *core.ParseError
	assert.False(t, errors.As(err, &pe))
	var de *core.DecodeError
	assert.ErrorAs(t, err, &de)
}

func TestRegistered(t *testing.T) {
	f, ok := core.LookupFormat("CSV")
	require.True(t, ok)
	assert.Equal(t, FormatName, f.Name)

	f, ok = core.DetectFormat("cities.tsv.gz")
	require.True(t, ok)
	assert.Equal(t, TSVFormatName, f.Name)
	assert.Equal(t, '\t', f.New().(*Parser).comma)
}
