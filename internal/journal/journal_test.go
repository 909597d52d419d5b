package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfs-fs/wolfs/internal/cache"
	"github.com/wolfs-fs/wolfs/internal/inodetr"
	"github.com/wolfs-fs/wolfs/internal/pathtr"
	"github.com/wolfs-fs/wolfs/internal/vfs"
)

func newTestJournal(t *testing.T) (*Journal, *pathtr.Translator, *vfs.VFS) {
	t.Helper()
	src := t.TempDir()
	cch := t.TempDir()
	mnt := t.TempDir()

	tr, err := pathtr.New(pathtr.Roots{Source: src, Cache: cch, Mount: mnt})
	require.NoError(t, err)

	it := inodetr.New()
	d, err := cache.New(tr, it, 10, true, 0.99)
	require.NoError(t, err)

	v := vfs.New(vfs.Attr{})

	j, err := New(tr, v, d, it, src)
	require.NoError(t, err)
	return j, tr, v
}

func TestLogWriteMarksDirty(t *testing.T) {
	j, _, _ := newTestJournal(t)

	assert.False(t, j.IsDirty(42))
	j.LogWrite(42, "/a.txt", 0, 10)
	assert.True(t, j.IsDirty(42))
	assert.False(t, j.IsCompletelyClean())
}

func TestGetDirtyPaths(t *testing.T) {
	j, _, _ := newTestJournal(t)
	j.LogWrite(1, "/a.txt", 0, 4)
	j.LogWrite(1, "/a.txt", 4, 6)

	paths, reserved := j.GetDirtyPaths()
	assert.Len(t, paths, 2)
	assert.Equal(t, int64(10), reserved)
}

func TestFlushReplaysWrite(t *testing.T) {
	j, tr, _ := newTestJournal(t)

	cachePath := filepath.Join(tr.Cache(), "a.txt")
	srcPath := filepath.Join(tr.Source(), "a.txt")

	require.NoError(t, os.WriteFile(srcPath, []byte("xxxxxxxxxx"), 0o644))
	require.NoError(t, os.WriteFile(cachePath, []byte("hello world"), 0o644))

	j.LogWrite(1, "/a.txt", 0, 11)

	require.NoError(t, j.FlushCompleteJournal())

	data, err := os.ReadFile(srcPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "hello world"))
	assert.True(t, j.IsCompletelyClean())
}

func TestFlushCompactsToTerminalUnlink(t *testing.T) {
	j, tr, v := newTestJournal(t)

	srcPath := filepath.Join(tr.Source(), "a.txt")
	require.NoError(t, os.WriteFile(srcPath, []byte("data"), 0o644))

	rec := &vfs.Record{Ino: 7}
	require.NoError(t, v.AddChild(inodetr.RootInode, rec))

	j.LogCreate(7, "/a.txt", 0)
	j.LogWrite(7, "/a.txt", 0, 4)
	require.NoError(t, j.LogUnlink(inodetr.RootInode, 7, "/a.txt"))

	require.NoError(t, j.FlushCompleteJournal())

	_, err := os.Stat(srcPath)
	assert.True(t, os.IsNotExist(err))
}
