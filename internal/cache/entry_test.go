package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryStoreAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.entry")

	e := &Entry{
		RemoteContentLength:   42,
		OriginalContentLength: 10,
		LastModified:          "Wed, 21 Oct 2015 07:28:00 GMT",
		DeleteFlag:            false,
	}
	require.NoError(t, e.Store(path))

	loaded, err := LoadEntry(path)
	require.NoError(t, err)
	assert.EqualValues(t, 42, loaded.RemoteContentLength)
	assert.EqualValues(t, 10, loaded.OriginalContentLength)
	assert.Equal(t, e.LastModified, loaded.LastModified)
}

func TestEntryForMissingSidecarIsZeroValue(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, "missing.jar")

	e, err := EntryFor(artifact)
	require.NoError(t, err, "EntryFor on missing sidecar should not error")
	assert.False(t, e.DeleteFlag)
	assert.Empty(t, e.LastModified)
}

func TestMarkForDeleteIsSoftTombstone(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, "artifact.jar")

	e := &Entry{LastModified: "T0"}
	e.MarkForDelete()
	require.NoError(t, e.StoreFor(artifact, time.Now()))

	loaded, err := EntryFor(artifact)
	require.NoError(t, err)
	assert.True(t, loaded.DeleteFlag, "delete flag should survive a store/load round trip")
}
