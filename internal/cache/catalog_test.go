package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepRemovesOnlyPastGraceTombstones(t *testing.T) {
	dir := t.TempDir()
	catalog, err := OpenCatalog(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	defer catalog.Close()

	old := filepath.Join(dir, "old.jar")
	recent := filepath.Join(dir, "recent.jar")
	os.WriteFile(old, []byte("x"), 0o644)
	os.WriteFile(recent, []byte("x"), 0o644)

	now := time.Now()
	require.NoError(t, catalog.RecordTombstone(old, now.Add(-time.Hour)))
	require.NoError(t, catalog.RecordTombstone(recent, now))

	removed, err := catalog.Sweep(now, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err), "old tombstoned artifact should have been removed")

	_, err = os.Stat(recent)
	assert.NoError(t, err, "recent tombstoned artifact should survive the grace period")
}
