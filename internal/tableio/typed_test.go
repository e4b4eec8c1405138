package tableio

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ID    string   `csv:"id"`
	Count int      `csv:"count"`
	Rate  *float64 `csv:"rate"`
}

func TestWriteReadCSV(t *testing.T) {
	rate := 0.25
	rows := []sample{{ID: "a", Count: 1, Rate: &rate}, {ID: "b", Count: 2}}
	path := filepath.Join(t.TempDir(), "nested", "out.csv")

	require.NoError(t, WriteCSV(path, rows))

	got, err := ReadCSV[sample](path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	require.NotNil(t, got[0].Rate)
	assert.InDelta(t, 0.25, *got[0].Rate, 1e-12)
	assert.Nil(t, got[1].Rate)
}

func TestEncodeCSV_EmptyWritesHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeCSV[sample](&buf, nil))
	assert.Equal(t, "id,count,rate\n", buf.String())
}

func TestDecodeCSV_Empty(t *testing.T) {
	got, err := DecodeCSV[sample](bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCached(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.csv")
	calls := 0
	compute := func() ([]sample, error) {
		calls++
		return []sample{{ID: "x", Count: calls}}, nil
	}

	first, err := Cached(path, true, compute)
	require.NoError(t, err)
	second, err := Cached(path, true, compute)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)

	// Disabled cache always recomputes.
	third, err := Cached(path, false, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, third[0].Count)
}

func TestCached_ComputeError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.csv")
	_, err := Cached(path, true, func() ([]sample, error) { return nil, errors.New("boom") })
	assert.Error(t, err)
	assert.NoFileExists(t, path)
}

func TestWriteRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.csv")
	require.NoError(t, WriteRecords(path, []string{"a", "b"}, [][]string{{"1", "2"}}))

	tbl, err := ReadTable(t.Context(), path, TableOptions{})
	require.NoError(t, err)
	assert.Equal(t, "2", tbl.Get(0, "b"))
}
