package jsonparser

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

func collect(t *testing.T, input string) ([]core.Record, error) {
	t.Helper()
	var got []core.Record
	err := New().Parse(strings.NewReader(input), func(r core.Record) error {
		got = append(got, r)
		return nil
	})
	return got, err
}

func TestParse_Array(t *testing.T) {
	input := `[
		{"_id": 707860, "name": "Hurzuf", "country": "UA", "coord": {"lon": 34.283333, "lat": 44.549999}},
		{"_id": 519188, "name": "Novinki", "country": "RU", "coord": {"lon": 37.666668, "lat": 55.683334}, "extra": [1,2]}
	]`

	got, err := collect(t, input)
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
	assert.Equal(t, "Novinki", got[1].Name)
}

func TestParse_ConcatenatedObjects(t *testing.T) {
	input := `{"_id": 1, "name": "A", "country": "AA", "coord": {"lat": 1, "lon": 2}}
{"id": 2, "name": "B", "country": "BB", "coord": {"lat": 3, "lon": 4}}{"_id": 3, "name": "C", "country": "CC", "coord": {"lat": 5, "lon": 6}}
`
	got, err := collect(t, input)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{got[0].ID, got[1].ID, got[2].ID})
}

func TestParse_IDAliasPreference(t *testing.T) {
	got, err := collect(t, `[{"_id": 10, "id": 20, "coord": {"lat": 0, "lon": 0}}]`)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(10), got[0].ID, "_id wins over id")
}

func TestParse_Empty(t *testing.T) {
	for _, input := range []string{"", "   \n\t", "[]", " [ ] \n"} {
		got, err := collect(t, input)
		assert.NoError(t, err, "input %q", input)
		assert.Empty(t, got, "input %q", input)
	}
}

func TestParse_BOM(t *testing.T) {
	input := "\xEF\xBB\xBF" + `[{"_id": 1, "name": "Zürich", "country": "CH", "coord": {"lat": 47.3, "lon": 8.5}}]`
	got, err := collect(t, input)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Zürich", got[0].Name)
}

func TestParse_Malformed(t *testing.T) {
	valid := `{"_id": 1, "name": "A", "country": "AA", "coord": {"lat": 1, "lon": 2}}`

	tests := []struct {
		name       string
		input      string
		wantRecord int
		wantErr    error
		delivered  int
	}{
		{
			name:       "truncated array",
			input:      `[` + valid + `, {"_id": 2, "name": "B`,
			wantRecord: 2,
			wantErr:    io.ErrUnexpectedEOF,
			delivered:  1,
		},
		{
			name:       "missing closing bracket",
			input:      `[` + valid,
			wantRecord: 1,
			wantErr:    io.ErrUnexpectedEOF,
			delivered:  1,
		},
		{
			name:       "syntax error",
			input:      `[` + valid + `, {"_id": 2,, }]`,
			wantRecord: 2,
			delivered:  1,
		},
		{
			name:       "missing id",
			input:      `[{"name": "A", "coord": {"lat": 1, "lon": 2}}]`,
			wantRecord: 1,
		},
		{
			name:       "missing coord",
			input:      `[` + valid + `, {"_id": 2, "name": "B"}]`,
			wantRecord: 2,
			delivered:  1,
		},
		{
			name:       "wrong type",
			input:      `[{"_id": "x", "coord": {"lat": 1, "lon": 2}}]`,
			wantRecord: 1,
		},
		{
			name:       "trailing data after array",
			input:      `[` + valid + `] {"_id": 9}`,
			wantRecord: 1,
			delivered:  1,
		},
		{
			name:       "not JSON",
			input:      `id,name,country`,
			wantRecord: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := collect(t, tt.input)
			require.Error(t, err)

			var pe *core.ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.wantRecord, pe.Record)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Len(t, got, tt.delivered)
		})
	}
}

func TestParse_DeliverErrorStops(t *testing.T) {
	stop := errors.New("store failed")
	input := `[{"_id": 1, "coord": {"lat": 0, "lon": 0}}, {"_id": 2, "coord": {"lat": 0, "lon": 0}}]`

	calls := 0
	err := New().Parse(strings.NewReader(input), func(core.Record) error {
		calls++
		return stop
	})

	assert.Same(t, stop, err, "deliver errors are returned unchanged")
	assert.Equal(t, 1, calls)
}

func TestParse_ReaderErrorPassesThrough(t *testing.T) {
	boom := &core.DecodeError{Err: errors.New("flate: corrupt input")}
	r := io.MultiReader(strings.NewReader(`[{"_id": 1, "coord": {"lat": 0,`), iotest.ErrReader(boom))

	err := New().Parse(r, func(core.Record) error { return nil })
	require.Error(t, err)

	var pe *core.ParseError
	assert.False(t, errors.As(err, &pe), "stream faults must not be reported as parse errors")
	var de *core.DecodeError
	assert.ErrorAs(t, err, &de)
}

func TestRegistered(t *testing.T) {
	f, ok := core.LookupFormat(FormatName)
	require.True(t, ok)
	assert.IsType(t, &Parser{}, f.New())

	f, ok = core.DetectFormat("/data/city_list.json.gz")
	require.True(t, ok)
	assert.Equal(t, FormatName, f.Name)
}
