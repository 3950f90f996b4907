package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndLoadTranslations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.SaveTranslations(ctx, "de", "en", map[string]string{
		"Hallo": "Hello",
		"Welt":  "World",
	})
	require.NoError(t, err)

	got, err := store.LoadTranslations(ctx, "de", "en")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Hallo": "Hello", "Welt": "World"}, got)
}

func TestTranslationsAreKeyedByLanguagePair(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTranslations(ctx, "de", "en", map[string]string{"Hallo": "Hello"}))
	require.NoError(t, store.SaveTranslations(ctx, "de", "fr", map[string]string{"Hallo": "Bonjour"}))

	en, err := store.LoadTranslations(ctx, "de", "en")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Hallo": "Hello"}, en)

	fr, err := store.LoadTranslations(ctx, "de", "fr")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Hallo": "Bonjour"}, fr)
}

func TestSaveUpsertsExistingEntries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTranslations(ctx, "de", "en", map[string]string{"Hallo": "Hello"}))
	require.NoError(t, store.SaveTranslations(ctx, "de", "en", map[string]string{"Hallo": "Hi"}))

	got, err := store.LoadTranslations(ctx, "de", "en")
	require.NoError(t, err)
	assert.Equal(t, "Hi", got["Hallo"])

	n, err := store.Count(ctx, "de", "en")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSaveSkipsEmptyValues(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTranslations(ctx, "de", "en", map[string]string{
		"Hallo": "Hello",
		"Leer":  "",
		"":      "orphan",
	}))

	n, err := store.Count(ctx, "de", "en")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLoadEmptyStore(t *testing.T) {
	store := newTestStore(t)

	got, err := store.LoadTranslations(context.Background(), "de", "en")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveTranslations(ctx, "de", "en", map[string]string{"Hallo": "Hello"}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.LoadTranslations(ctx, "de", "en")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Hallo": "Hello"}, got)
}

func TestRequiresPath(t *testing.T) {
	_, err := NewSQLiteStore("  ")
	assert.Error(t, err)
}

func TestCloseNil(t *testing.T) {
	var store *SQLiteStore
	assert.NoError(t, store.Close())
}
