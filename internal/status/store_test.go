package status

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	t.Run("write then read round-trips the record", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "status.json")
		store := NewFileStore(path)

		rec := NewRecord("batmobile", "Hot Wheels Batmobile", "https://example.com/p/1", StatusAvailable, 7, map[string]any{"title": "Hot Wheels Batmobile"})
		rec.Location = "Home"
		require.NoError(t, store.Write(rec))

		got, ok, err := store.Read()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "batmobile", got.ProductID)
		assert.Equal(t, StatusAvailable, got.Status)
		assert.Equal(t, 7, got.QueryCount)
		assert.Equal(t, "Home", got.Location)
		assert.True(t, got.ActionNeeded)
		assert.WithinDuration(t, rec.Timestamp, got.Timestamp, time.Second)
	})

	t.Run("missing file reads as not-ok, not error", func(t *testing.T) {
		store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))
		rec, ok, err := store.Read()
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, rec)
	})

	t.Run("write replaces the previous record in full", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "status.json")
		store := NewFileStore(path)

		first := NewRecord("p", "n", "u", StatusComingSoon, 1, map[string]any{"leftover": "field"})
		require.NoError(t, store.Write(first))
		second := NewRecord("p", "n", "u", StatusMonitoring, 2, nil)
		require.NoError(t, store.Write(second))

		got, ok, err := store.Read()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, StatusMonitoring, got.Status)
		assert.NotContains(t, got.Details, "leftover")
	})

	t.Run("no temp file is left behind", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileStore(filepath.Join(dir, "status.json"))
		require.NoError(t, store.Write(NewRecord("p", "n", "u", StatusMonitoring, 1, nil)))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "status.json", entries[0].Name())
	})
}

func TestStatusDecoding(t *testing.T) {
	t.Run("unknown status string decodes to unknown", func(t *testing.T) {
		var rec Record
		raw := `{"product_id":"p","status":"half_available","timestamp":"2026-08-29T10:00:00Z","details":{}}`
		require.NoError(t, json.Unmarshal([]byte(raw), &rec))
		assert.Equal(t, StatusUnknown, rec.Status)
	})

	t.Run("known statuses decode unchanged", func(t *testing.T) {
		var rec Record
		raw := `{"product_id":"p","status":"coming_soon","timestamp":"2026-08-29T10:00:00Z","details":{}}`
		require.NoError(t, json.Unmarshal([]byte(raw), &rec))
		assert.Equal(t, StatusComingSoon, rec.Status)
	})
}

func TestNewRecord(t *testing.T) {
	t.Run("action needed tracks availability exactly", func(t *testing.T) {
		for _, st := range []Status{StatusMonitoring, StatusComingSoon, StatusOutOfStock, StatusUnknown, StatusError, StatusStopped, StatusPurchased} {
			rec := NewRecord("p", "n", "u", st, 1, nil)
			assert.False(t, rec.ActionNeeded, "status %s", st)
		}
		rec := NewRecord("p", "n", "u", StatusAvailable, 1, nil)
		assert.True(t, rec.ActionNeeded)
	})

	t.Run("nil details become an empty map", func(t *testing.T) {
		rec := NewRecord("p", "n", "u", StatusMonitoring, 1, nil)
		assert.NotNil(t, rec.Details)
	})
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusPurchased.Terminal())
	assert.True(t, StatusStopped.Terminal())
	assert.False(t, StatusError.Terminal())
	assert.False(t, StatusAvailable.Terminal())
	assert.False(t, StatusMonitoring.Terminal())
}
