package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captions.csv")
	content := "ID,Title_DE,Caption_DE\n1,Hallo,Welt\n2,Morgen,\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	table, err := NewReader().Read(path)

	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "Title_DE", "Caption_DE"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "Hallo", table.Rows[0]["Title_DE"])
	assert.Equal(t, "", table.Rows[1]["Caption_DE"])
}

func TestReadCSVRaggedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ragged.csv")
	content := "A,B,C\n1,2\n1,2,3,4\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	table, err := NewReader().Read(path)

	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	// short rows read missing cells as empty, long rows drop the overhang
	assert.Equal(t, "", table.Rows[0]["C"])
	assert.Equal(t, "3", table.Rows[1]["C"])
}

func TestReadUnsupportedFormat(t *testing.T) {
	_, err := NewReader().Read("data.parquet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}

func TestWriteReadCSVRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	table := &Table{
		Columns: []string{"Title_DE", "Title_EN"},
		Rows: []Row{
			{"Title_DE": "Hallo", "Title_EN": "Hello"},
			{"Title_DE": "Welt", "Title_EN": "World"},
		},
	}

	require.NoError(t, NewWriter().Write(path, table))

	got, err := NewReader().Read(path)
	require.NoError(t, err)
	assert.Equal(t, table.Columns, got.Columns)
	assert.Equal(t, table.Rows, got.Rows)
}

func TestWriteReadExcelRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	table := &Table{
		Columns: []string{"ID", "Caption_DE", "Caption_EN"},
		Rows: []Row{
			{"ID": "1", "Caption_DE": "Guten Morgen", "Caption_EN": "Good morning"},
			{"ID": "2", "Caption_DE": "Bis später", "Caption_EN": "See you later"},
		},
	}

	require.NoError(t, NewWriter().Write(path, table))

	got, err := NewReader().Read(path)
	require.NoError(t, err)
	assert.Equal(t, table.Columns, got.Columns)
	assert.Equal(t, table.Rows, got.Rows)
}

func TestWriteNilTable(t *testing.T) {
	assert.Error(t, NewWriter().Write("out.csv", nil))
}

func TestTableFromCellsTrimsHeader(t *testing.T) {
	table, err := tableFromCells("x.csv", [][]string{
		{" Title_DE ", "ID"},
		{"Hallo", "1"},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"Title_DE", "ID"}, table.Columns)
	assert.Equal(t, "Hallo", table.Rows[0]["Title_DE"])
}

func TestAddColumnIdempotent(t *testing.T) {
	table := &Table{Columns: []string{"A"}}
	table.AddColumn("B")
	table.AddColumn("B")
	assert.Equal(t, []string{"A", "B"}, table.Columns)
}
