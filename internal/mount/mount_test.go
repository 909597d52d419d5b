package mount

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfs-fs/wolfs/cfg"
	"github.com/wolfs-fs/wolfs/internal/cache"
	"github.com/wolfs-fs/wolfs/internal/inodetr"
	"github.com/wolfs-fs/wolfs/internal/pathtr"
	"github.com/wolfs-fs/wolfs/internal/vfs"
)

func TestParentOf(t *testing.T) {
	assert.Equal(t, "/a", parentOf("/a/b.txt"))
	assert.Equal(t, "/", parentOf("/a.txt"))
	assert.Equal(t, "/a/b", parentOf("/a/b/c.txt"))
}

func TestWolfsPath(t *testing.T) {
	assert.Equal(t, "/a/b.txt", wolfsPath("a/b.txt"))
	assert.Equal(t, "/a.txt", wolfsPath("a.txt"))
}

func newTestLayers(t *testing.T) (*pathtr.Translator, *inodetr.Translator, *vfs.VFS, *cache.Disk) {
	t.Helper()

	base := t.TempDir()
	srcDir := filepath.Join(base, "src")
	cacheDir := filepath.Join(base, "cache")
	mountDir := filepath.Join(base, "mount")
	require.NoError(t, os.Mkdir(srcDir, 0o755))
	require.NoError(t, os.Mkdir(cacheDir, 0o755))
	require.NoError(t, os.Mkdir(mountDir, 0o755))

	require.NoError(t, os.Mkdir(filepath.Join(srcDir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "sub", "b.txt"), []byte("world"), 0o644))

	tr, err := pathtr.New(pathtr.Roots{Source: srcDir, Cache: cacheDir, Mount: mountDir})
	require.NoError(t, err)

	inotr := inodetr.New()
	disk, err := cache.New(tr, inotr, 64, false, 0.9)
	require.NoError(t, err)

	rootInfo, err := os.Stat(srcDir)
	require.NoError(t, err)
	v := vfs.New(attrFromFileInfo(rootInfo))

	return tr, inotr, v, disk
}

func TestIndexTreeFindsAllEntries(t *testing.T) {
	tr, inotr, v, _ := newTestLayers(t)

	_, err := indexTree(tr, inotr, v)
	require.NoError(t, err)

	aIno, ok := inotr.Lookup("/a.txt")
	require.True(t, ok)
	aRec, ok := v.Get(aIno)
	require.True(t, ok)
	assert.False(t, aRec.IsDir)
	assert.Equal(t, uint64(5), aRec.Attr.Size)

	subIno, ok := inotr.Lookup("/sub")
	require.True(t, ok)
	subRec, ok := v.Get(subIno)
	require.True(t, ok)
	assert.True(t, subRec.IsDir)

	bIno, ok := inotr.Lookup("/sub/b.txt")
	require.True(t, ok)
	assert.Contains(t, subRec.Children(), bIno)

	rootRec, ok := v.Get(inodetr.RootInode)
	require.True(t, ok)
	assert.Contains(t, rootRec.Children(), aIno)
	assert.Contains(t, rootRec.Children(), subIno)
}

func TestIndexTreeDoesNotTrackFilesInCache(t *testing.T) {
	tr, inotr, v, disk := newTestLayers(t)
	_, err := indexTree(tr, inotr, v)
	require.NoError(t, err)

	assert.Empty(t, disk.TrackedPaths())
}

func TestIndexTreeQueuesPlainFilesOnly(t *testing.T) {
	tr, inotr, v, _ := newTestLayers(t)
	q, err := indexTree(tr, inotr, v)
	require.NoError(t, err)

	var paths []string
	for !q.Empty() {
		item, ok := q.Pop()
		require.True(t, ok)
		paths = append(paths, item.Path)
	}
	assert.ElementsMatch(t, []string{"/a.txt", "/sub/b.txt"}, paths)
}

func TestWarmCacheTracksQueuedFiles(t *testing.T) {
	tr, inotr, v, disk := newTestLayers(t)
	q, err := indexTree(tr, inotr, v)
	require.NoError(t, err)

	warmCache(disk, tr, q)

	paths := disk.TrackedPaths()
	assert.Contains(t, paths, tr.ToSrc("/a.txt"))
	assert.Contains(t, paths, tr.ToSrc("/sub/b.txt"))
}

func TestFuseMountConfigDefaults(t *testing.T) {
	mc := fuseMountConfig(cfg.Config{})
	assert.Equal(t, "wolfs", mc.FSName)
	assert.True(t, mc.EnableParallelDirOps)
	assert.Nil(t, mc.DebugLogger)

	mc = fuseMountConfig(cfg.Config{Debug: cfg.DebugConfig{FUSE: true}})
	assert.NotNil(t, mc.DebugLogger)
}
