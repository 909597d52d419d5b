package metadb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfs-fs/wolfs/internal/inodetr"
	"github.com/wolfs-fs/wolfs/internal/vfs"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.db")
	db, err := Open(path)
	require.NoError(t, err)

	entries := []Entry{
		{Ino: 1, Path: "/", IsDir: true, Attr: vfs.Attr{Mode: 0o755}, Children: []inodetr.Inode{2, 3}},
	}
	require.NoError(t, db.SaveAll(entries))
	require.NoError(t, db.Close())

	db2, err := Open(path)
	require.NoError(t, err)
	defer db2.Close()

	loaded, err := db2.LoadAll()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "/", loaded[0].Path)
	assert.True(t, loaded[0].IsDir)
}

func TestLoadEmptyDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	entries, err := db.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
