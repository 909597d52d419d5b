package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfs-fs/wolfs/cfg"
	"github.com/wolfs-fs/wolfs/internal/cache"
	"github.com/wolfs-fs/wolfs/internal/inodetr"
	"github.com/wolfs-fs/wolfs/internal/journal"
	"github.com/wolfs-fs/wolfs/internal/pathtr"
	"github.com/wolfs-fs/wolfs/internal/remote"
	"github.com/wolfs-fs/wolfs/internal/vfs"
)

func newTestFS(t *testing.T) *FS {
	t.Helper()

	base := t.TempDir()
	srcDir := filepath.Join(base, "src")
	cacheDir := filepath.Join(base, "cache")
	mountDir := filepath.Join(base, "mount")
	require.NoError(t, os.Mkdir(srcDir, 0o755))
	require.NoError(t, os.Mkdir(cacheDir, 0o755))
	require.NoError(t, os.Mkdir(mountDir, 0o755))

	tr, err := pathtr.New(pathtr.Roots{Source: srcDir, Cache: cacheDir, Mount: mountDir})
	require.NoError(t, err)

	inotr := inodetr.New()
	disk, err := cache.New(tr, inotr, 64, false, 0.9)
	require.NoError(t, err)
	v := vfs.New(vfs.Attr{Mode: 0o755 | uint32(os.ModeDir)})
	jrnl, err := journal.New(tr, v, disk, inotr, srcDir)
	require.NoError(t, err)

	c := cfg.Config{Debug: cfg.DebugConfig{ExitOnInvariantViolation: true}}
	return New(c, tr, inotr, v, disk, jrnl, remote.NoopCollaborator{})
}

func TestMkDirAndLookUp(t *testing.T) {
	fsys := newTestFS(t)

	mk := &fuseops.MkDirOp{Parent: fuseops.InodeID(inodetr.RootInode), Name: "sub", Mode: os.ModeDir | 0o755}
	require.NoError(t, fsys.MkDir(mk))
	assert.NotZero(t, mk.Entry.Child)

	look := &fuseops.LookUpInodeOp{Parent: fuseops.InodeID(inodetr.RootInode), Name: "sub"}
	require.NoError(t, fsys.LookUpInode(look))
	assert.Equal(t, mk.Entry.Child, look.Entry.Child)
}

func TestMkDirRejectsDuplicate(t *testing.T) {
	fsys := newTestFS(t)

	mk := &fuseops.MkDirOp{Parent: fuseops.InodeID(inodetr.RootInode), Name: "sub", Mode: os.ModeDir | 0o755}
	require.NoError(t, fsys.MkDir(mk))

	mk2 := &fuseops.MkDirOp{Parent: fuseops.InodeID(inodetr.RootInode), Name: "sub", Mode: os.ModeDir | 0o755}
	assert.Error(t, fsys.MkDir(mk2))
}

func TestCreateWriteReadFile(t *testing.T) {
	fsys := newTestFS(t)

	create := &fuseops.CreateFileOp{Parent: fuseops.InodeID(inodetr.RootInode), Name: "f.txt", Mode: 0o644}
	require.NoError(t, fsys.CreateFile(create))
	require.NotZero(t, create.Handle)

	write := &fuseops.WriteFileOp{Handle: create.Handle, Data: []byte("hello"), Offset: 0}
	require.NoError(t, fsys.WriteFile(write))

	read := &fuseops.ReadFileOp{Handle: create.Handle, Offset: 0, Size: 16}
	require.NoError(t, fsys.ReadFile(read))
	assert.Equal(t, "hello", string(read.Data))

	release := &fuseops.ReleaseFileHandleOp{Handle: create.Handle}
	require.NoError(t, fsys.ReleaseFileHandle(release))
}

func TestUnlinkRemovesChild(t *testing.T) {
	fsys := newTestFS(t)

	create := &fuseops.CreateFileOp{Parent: fuseops.InodeID(inodetr.RootInode), Name: "gone.txt", Mode: 0o644}
	require.NoError(t, fsys.CreateFile(create))
	require.NoError(t, fsys.ReleaseFileHandle(&fuseops.ReleaseFileHandleOp{Handle: create.Handle}))

	unlink := &fuseops.UnlinkOp{Parent: fuseops.InodeID(inodetr.RootInode), Name: "gone.txt"}
	require.NoError(t, fsys.Unlink(unlink))

	look := &fuseops.LookUpInodeOp{Parent: fuseops.InodeID(inodetr.RootInode), Name: "gone.txt"}
	assert.Error(t, fsys.LookUpInode(look))
}

func TestRenameMovesAcrossDirectories(t *testing.T) {
	fsys := newTestFS(t)

	mkA := &fuseops.MkDirOp{Parent: fuseops.InodeID(inodetr.RootInode), Name: "a", Mode: os.ModeDir | 0o755}
	require.NoError(t, fsys.MkDir(mkA))
	mkB := &fuseops.MkDirOp{Parent: fuseops.InodeID(inodetr.RootInode), Name: "b", Mode: os.ModeDir | 0o755}
	require.NoError(t, fsys.MkDir(mkB))

	create := &fuseops.CreateFileOp{Parent: mkA.Entry.Child, Name: "f.txt", Mode: 0o644}
	require.NoError(t, fsys.CreateFile(create))
	require.NoError(t, fsys.ReleaseFileHandle(&fuseops.ReleaseFileHandleOp{Handle: create.Handle}))

	rename := &fuseops.RenameOp{
		OldParent: mkA.Entry.Child,
		OldName:   "f.txt",
		NewParent: mkB.Entry.Child,
		NewName:   "g.txt",
	}
	require.NoError(t, fsys.Rename(rename))

	lookOld := &fuseops.LookUpInodeOp{Parent: mkA.Entry.Child, Name: "f.txt"}
	assert.Error(t, fsys.LookUpInode(lookOld))

	lookNew := &fuseops.LookUpInodeOp{Parent: mkB.Entry.Child, Name: "g.txt"}
	require.NoError(t, fsys.LookUpInode(lookNew))
	assert.Equal(t, create.Entry.Child, lookNew.Entry.Child)
}

func TestRenameRejectsNonZeroFlags(t *testing.T) {
	fsys := newTestFS(t)
	create := &fuseops.CreateFileOp{Parent: fuseops.InodeID(inodetr.RootInode), Name: "f.txt", Mode: 0o644}
	require.NoError(t, fsys.CreateFile(create))
	require.NoError(t, fsys.ReleaseFileHandle(&fuseops.ReleaseFileHandleOp{Handle: create.Handle}))

	rename := &fuseops.RenameOp{
		OldParent: fuseops.InodeID(inodetr.RootInode),
		OldName:   "f.txt",
		NewParent: fuseops.InodeID(inodetr.RootInode),
		NewName:   "g.txt",
		Flags:     1,
	}
	assert.Error(t, fsys.Rename(rename))
}

func TestRmDirRejectsNonEmpty(t *testing.T) {
	fsys := newTestFS(t)

	mk := &fuseops.MkDirOp{Parent: fuseops.InodeID(inodetr.RootInode), Name: "d", Mode: os.ModeDir | 0o755}
	require.NoError(t, fsys.MkDir(mk))

	create := &fuseops.CreateFileOp{Parent: mk.Entry.Child, Name: "f.txt", Mode: 0o644}
	require.NoError(t, fsys.CreateFile(create))
	require.NoError(t, fsys.ReleaseFileHandle(&fuseops.ReleaseFileHandleOp{Handle: create.Handle}))

	rmdir := &fuseops.RmDirOp{Parent: fuseops.InodeID(inodetr.RootInode), Name: "d"}
	assert.Error(t, fsys.RmDir(rmdir))

	unlink := &fuseops.UnlinkOp{Parent: mk.Entry.Child, Name: "f.txt"}
	require.NoError(t, fsys.Unlink(unlink))

	rmdir2 := &fuseops.RmDirOp{Parent: fuseops.InodeID(inodetr.RootInode), Name: "d"}
	assert.NoError(t, fsys.RmDir(rmdir2))
}

func TestGetAndSetInodeAttributes(t *testing.T) {
	fsys := newTestFS(t)

	create := &fuseops.CreateFileOp{Parent: fuseops.InodeID(inodetr.RootInode), Name: "attrs.txt", Mode: 0o644}
	require.NoError(t, fsys.CreateFile(create))
	require.NoError(t, fsys.ReleaseFileHandle(&fuseops.ReleaseFileHandleOp{Handle: create.Handle}))

	get := &fuseops.GetInodeAttributesOp{Inode: create.Entry.Child}
	require.NoError(t, fsys.GetInodeAttributes(get))
	assert.Equal(t, uint64(0), get.Attributes.Size)

	size := uint64(42)
	set := &fuseops.SetInodeAttributesOp{Inode: create.Entry.Child, Size: &size}
	require.NoError(t, fsys.SetInodeAttributes(set))
	assert.Equal(t, size, set.Attributes.Size)
}

func TestForgetInodeRemovesRecordAtZero(t *testing.T) {
	fsys := newTestFS(t)

	mk := &fuseops.MkDirOp{Parent: fuseops.InodeID(inodetr.RootInode), Name: "sub2", Mode: os.ModeDir | 0o755}
	require.NoError(t, fsys.MkDir(mk))

	_, ok := fsys.vfs.Get(inodetr.Inode(mk.Entry.Child))
	require.True(t, ok)

	forget := &fuseops.ForgetInodeOp{Inode: mk.Entry.Child, N: 1}
	require.NoError(t, fsys.ForgetInode(forget))

	_, ok = fsys.vfs.Get(inodetr.Inode(mk.Entry.Child))
	assert.False(t, ok)
}

func TestForgetInodeWaitsForOpenHandleToClose(t *testing.T) {
	fsys := newTestFS(t)

	create := &fuseops.CreateFileOp{Parent: fuseops.InodeID(inodetr.RootInode), Name: "held.txt", Mode: 0o644}
	require.NoError(t, fsys.CreateFile(create))

	forget := &fuseops.ForgetInodeOp{Inode: create.Entry.Child, N: 1}
	require.NoError(t, fsys.ForgetInode(forget))

	// The record must survive: the kernel's lookup count reached zero, but
	// the fd opened by CreateFile is still outstanding.
	_, ok := fsys.vfs.Get(inodetr.Inode(create.Entry.Child))
	assert.True(t, ok)

	require.NoError(t, fsys.ReleaseFileHandle(&fuseops.ReleaseFileHandleOp{Handle: create.Handle}))

	// Releasing the last fd replays the deferred forget.
	_, ok = fsys.vfs.Get(inodetr.Inode(create.Entry.Child))
	assert.False(t, ok)
}

func TestOpenDirReadDirListsChildren(t *testing.T) {
	fsys := newTestFS(t)

	create := &fuseops.CreateFileOp{Parent: fuseops.InodeID(inodetr.RootInode), Name: "listed.txt", Mode: 0o644}
	require.NoError(t, fsys.CreateFile(create))
	require.NoError(t, fsys.ReleaseFileHandle(&fuseops.ReleaseFileHandleOp{Handle: create.Handle}))

	open := &fuseops.OpenDirOp{Inode: fuseops.InodeID(inodetr.RootInode)}
	require.NoError(t, fsys.OpenDir(open))

	buf := make([]byte, 4096)
	read := &fuseops.ReadDirOp{Handle: open.Handle, Offset: 0, Dst: buf}
	require.NoError(t, fsys.ReadDir(read))
	assert.Greater(t, read.BytesRead, 0)

	require.NoError(t, fsys.ReleaseDirHandle(&fuseops.ReleaseDirHandleOp{Handle: open.Handle}))
}

func TestStatFS(t *testing.T) {
	fsys := newTestFS(t)

	statfs := &fuseops.StatFSOp{}
	require.NoError(t, fsys.StatFS(statfs))
	assert.Greater(t, statfs.Blocks, uint64(0))
}
