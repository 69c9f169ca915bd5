package history

import (
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gooseworks/goose/pkg/models"
)

func newTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	store, err := NewStore(dir, slog.Default())
	require.NoError(t, err)
	return store
}

func result(name, errText string) models.TestResult {
	module, fn, _ := models.SplitQualifiedName(name)
	return models.TestResult{
		QualifiedName: name,
		Module:        module,
		Name:          fn,
		Passed:        errText == "",
		ErrorText:     errText,
		Prompt:        "ping",
		Expectations:  []string{"replies with pong"},
	}
}

func TestAppendListRoundTrip(t *testing.T) {
	store := newTestStore(t, t.TempDir())

	r := result("test_mod::test_ping", "")
	require.NoError(t, store.Append(r))

	records := store.List("test_mod::test_ping")
	require.Len(t, records, 1)
	assert.Equal(t, r, records[0])

	latest, ok := store.Latest("test_mod::test_ping")
	require.True(t, ok)
	assert.Equal(t, r, latest)
}

func TestListUnknownTestIsEmpty(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	assert.Empty(t, store.List("never::seen"))
	_, ok := store.Latest("never::seen")
	assert.False(t, ok)
}

func TestDeleteAtShiftsIndices(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	name := "test_mod::test_ping"

	require.NoError(t, store.Append(result(name, "A")))
	require.NoError(t, store.Append(result(name, "B")))
	require.NoError(t, store.Append(result(name, "C")))

	require.NoError(t, store.DeleteAt(name, 1))
	records := store.List(name)
	require.Len(t, records, 2)
	assert.Equal(t, "A", records[0].ErrorText)
	assert.Equal(t, "C", records[1].ErrorText)

	require.NoError(t, store.DeleteAt(name, 1))
	records = store.List(name)
	require.Len(t, records, 1)
	assert.Equal(t, "A", records[0].ErrorText)

	assert.ErrorIs(t, store.DeleteAt(name, 5), ErrIndexOutOfRange)
	assert.ErrorIs(t, store.DeleteAt(name, -1), ErrIndexOutOfRange)
	assert.ErrorIs(t, store.DeleteAt("never::seen", 0), ErrIndexOutOfRange)
}

func TestStoreSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t, dir)

	require.NoError(t, store.Append(result("test_a::test_one", "")))
	require.NoError(t, store.Append(result("test_a::test_one", "boom")))
	require.NoError(t, store.Append(result("test_b::test_two", "")))

	reopened := newTestStore(t, dir)
	assert.Len(t, reopened.List("test_a::test_one"), 2)
	assert.Len(t, reopened.List("test_b::test_two"), 1)

	latest := reopened.LatestAll()
	require.Len(t, latest, 2)
	assert.Equal(t, "boom", latest["test_a::test_one"].ErrorText)
	assert.Equal(t, []string{"test_a::test_one", "test_b::test_two"}, reopened.Names())
}

func TestTornTrailingLineIsDropped(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t, dir)
	name := "test_mod::test_ping"

	require.NoError(t, store.Append(result(name, "")))
	require.NoError(t, store.Append(result(name, "second")))

	// Simulate a crash mid-append: garbage after the last complete record.
	path := filepath.Join(dir, url.PathEscape(name)+".jsonl")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"qualified_name":"test_mod::te`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened := newTestStore(t, dir)
	records := reopened.List(name)
	require.Len(t, records, 2)
	assert.Equal(t, "second", records[1].ErrorText)
}

func TestTruncate(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	require.NoError(t, store.Append(result("test_a::test_one", "")))
	require.NoError(t, store.Append(result("test_b::test_two", "")))

	require.NoError(t, store.Truncate("test_a::test_one"))
	assert.Empty(t, store.List("test_a::test_one"))
	assert.Len(t, store.List("test_b::test_two"), 1)

	// Truncating an unknown test is a no-op.
	require.NoError(t, store.Truncate("never::seen"))

	require.NoError(t, store.TruncateAll())
	assert.Empty(t, store.List("test_b::test_two"))
	assert.Empty(t, store.LatestAll())
}

func TestQualifiedNamesEscapedOnDisk(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t, dir)
	name := "pkg/sub::test_weird name"

	require.NoError(t, store.Append(result(name, "")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Name(), "/")

	reopened := newTestStore(t, dir)
	assert.Len(t, reopened.List(name), 1)
}
