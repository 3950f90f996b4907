package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord() *Record {
	return &Record{
		Timestamp:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		ProcessedRows: 2,
		Translations:  map[string]string{"Hallo": "Hello", "Welt": ""},
		TotalRows:     3,
		SourceFile:    "captions.xlsx",
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Save("/data/captions.xlsx", testRecord()))

	loaded, err := store.Load("/data/captions.xlsx")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, testRecord(), loaded)
}

func TestKeyedByBaseName(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Save("/old/location/captions.xlsx", testRecord()))

	// the same file moved elsewhere still finds its checkpoint
	loaded, err := store.Load("/new/location/captions.xlsx")
	require.NoError(t, err)
	assert.NotNil(t, loaded)
}

func TestLoadMissingIsNil(t *testing.T) {
	store := NewStore(t.TempDir())

	loaded, err := store.Load("never-saved.xlsx")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestLoadCorruptIsNil(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	path := store.PathFor("captions.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	loaded, err := store.Load("captions.xlsx")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSaveReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	require.NoError(t, store.Save("captions.xlsx", testRecord()))

	second := testRecord()
	second.ProcessedRows = 3
	require.NoError(t, store.Save("captions.xlsx", second))

	// no temp file is left behind
	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	loaded, err := store.Load("captions.xlsx")
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.ProcessedRows)
}

func TestCrashBeforeRenameKeepsPreviousCheckpoint(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	require.NoError(t, store.Save("captions.xlsx", testRecord()))

	// simulate a writer that died between temp write and rename
	tmp := store.PathFor("captions.xlsx") + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte("torn wri"), 0o644))

	loaded, err := store.Load("captions.xlsx")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 2, loaded.ProcessedRows)
}

func TestDelete(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Save("captions.xlsx", testRecord()))
	require.NoError(t, store.Delete("captions.xlsx"))

	loaded, err := store.Load("captions.xlsx")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// deleting again is not an error
	assert.NoError(t, store.Delete("captions.xlsx"))
}

func TestSaveNilRecord(t *testing.T) {
	store := NewStore(t.TempDir())
	assert.Error(t, store.Save("captions.xlsx", nil))
}
