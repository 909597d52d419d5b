// Package fs is wolfs' FUSE operation dispatcher: it implements
// fuseutil.FileSystem by wiring together the path translator, inode
// translator, VFS and cache/journal layers behind one coarse lock.
//
// Grounded on gcsfuse's fs/fs.go: the same per-operation method shape
// (func (fs *FS) Op(op *fuseops.OpOp) (err error) { ...; return }), the same
// LOCK ORDERING discipline, and fuseutil.NotImplementedFileSystem embedding
// for the operations wolfs doesn't support (symlinks, xattrs, hardlinks).
package fs

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"golang.org/x/net/context"
	"golang.org/x/sys/unix"

	"github.com/wolfs-fs/wolfs/cfg"
	"github.com/wolfs-fs/wolfs/internal/cache"
	"github.com/wolfs-fs/wolfs/internal/inodetr"
	"github.com/wolfs-fs/wolfs/internal/journal"
	"github.com/wolfs-fs/wolfs/internal/logger"
	"github.com/wolfs-fs/wolfs/internal/pathtr"
	"github.com/wolfs-fs/wolfs/internal/remote"
	"github.com/wolfs-fs/wolfs/internal/vfs"
)

// LOCK ORDERING
//
// fs.mu guards every mutation of the translator, VFS, cache and journal
// layers. It is the only lock this package takes: spec §5 describes a
// single-threaded cooperative scheduler where state between two I/O
// suspension points is observed atomically, and gcsfuse's legacy fs/fs.go
// gets the same property with a per-inode lock plus fs.mu taken last. wolfs
// disclaims concurrent mutating clients (spec §5 "shared resources"), so
// the per-inode lock buys nothing here: fs.mu is held for the entire
// duration of every operation instead, which is simpler and exactly as
// correct for the workloads the spec targets. It is released around
// blocking remote-wake calls only (see withRemoteWake) so a slow wake
// doesn't stall unrelated inodes forever; re-acquired before resuming.
type FS struct {
	mu sync.Mutex

	cfg   cfg.Config
	tr    *pathtr.Translator
	inotr *inodetr.Translator
	vfs   *vfs.VFS
	disk  *cache.Disk
	jrnl  *journal.Journal
	rmt   remote.Collaborator

	dirHandles  map[fuseops.HandleID]*dirHandle
	fileHandles map[fuseops.HandleID]*fileHandle
	openFiles   map[inodetr.Inode]*openFile
	nextHandle  fuseops.HandleID

	// pendingForget holds lookup-count decrements that arrived while an
	// inode still had an open fd. Spec §9/§4.3 require a record to survive
	// until both its lookup count and its open-fd count reach zero, so
	// ForgetInode defers the vfs.Forget call here and releaseOpenFile
	// replays it once the last fd closes.
	pendingForget map[inodetr.Inode]uint64

	uid, gid uint32

	fuseutil.NotImplementedFileSystem
}

// New constructs the dispatcher from its already-wired core layers. The
// root inode's ownership is the mounting process's own uid/gid, matching a
// normal passthrough mount rather than gcsfuse's configurable Uid/Gid
// (wolfs has no single bucket owner to assign).
func New(c cfg.Config, tr *pathtr.Translator, inotr *inodetr.Translator, v *vfs.VFS, disk *cache.Disk, jrnl *journal.Journal, rmt remote.Collaborator) *FS {
	return &FS{
		cfg:           c,
		tr:            tr,
		inotr:         inotr,
		vfs:           v,
		disk:          disk,
		jrnl:          jrnl,
		rmt:           rmt,
		dirHandles:    make(map[fuseops.HandleID]*dirHandle),
		fileHandles:   make(map[fuseops.HandleID]*fileHandle),
		openFiles:     make(map[inodetr.Inode]*openFile),
		pendingForget: make(map[inodetr.Inode]uint64),
		uid:           uint32(os.Getuid()),
		gid:           uint32(os.Getgid()),
	}
}

var _ fuseutil.FileSystem = (*FS)(nil)

// joinChild builds the root-relative path of name within parent, parent
// already being root-relative ("/" for the mount root).
func joinChild(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

// checkInvariants walks the live VFS tree and panics on the first violated
// invariant (spec §8's quantified invariants 2 and 3). Run only when
// Config.Debug.ExitOnInvariantViolation is set: gcsfuse's checkInvariants
// runs on every single lock/unlock via syncutil.InvariantMutex, which for
// wolfs would mean an O(n) tree walk per op in production. SPEC_FULL.md
// calls that cost unwarranted outside of debug runs, so this is invoked
// explicitly by the handful of operations that mutate the tree shape
// instead.
func (fs *FS) checkInvariants() {
	if !fs.cfg.Debug.ExitOnInvariantViolation {
		return
	}
	fs.walkInvariants(inodetr.RootInode, make(map[inodetr.Inode]bool))
}

func (fs *FS) walkInvariants(ino inodetr.Inode, seen map[inodetr.Inode]bool) {
	if seen[ino] {
		panic(fmt.Sprintf("fs: cycle detected revisiting ino %d", ino))
	}
	seen[ino] = true

	rec, ok := fs.vfs.Get(ino)
	if !ok {
		return
	}
	if rec.Ino != ino {
		panic(fmt.Sprintf("fs: record stored under ino %d reports ino %d", ino, rec.Ino))
	}
	children := rec.Children()
	for i := 1; i < len(children); i++ {
		if children[i] <= children[i-1] {
			panic(fmt.Sprintf("fs: children of ino %d are not strictly sorted at index %d", ino, i))
		}
	}
	for _, child := range children {
		fs.walkInvariants(child, seen)
	}
}

// withRemoteWake releases fs.mu, asks the remote collaborator to become
// available, then reacquires fs.mu before returning. A WakeupError
// surfaces to the caller as EIO per spec §7's propagation policy.
func (fs *FS) withRemoteWake(ctx context.Context) error {
	fs.mu.Unlock()
	defer fs.mu.Lock()

	if fs.rmt.IsOnline() {
		return nil
	}
	if err := fs.rmt.MakeAvailable(ctx); err != nil {
		logger.Warnf("fs: remote wake failed: %v", err)
		return fuse.Errno(syscall.EIO)
	}
	return nil
}

// ensureCached makes sure rpath (root-relative) has a resident copy under
// the cache tree, fetching it from the source (waking the remote
// collaborator first if needed) when it's missing. force controls whether
// Cp2Cache is allowed to evict other entries to make room.
func (fs *FS) ensureCached(ctx context.Context, rpath string, force bool) error {
	tmpPath := fs.tr.ToTmp(rpath)
	if _, err := os.Stat(tmpPath); err == nil {
		return nil
	}

	srcPath := fs.tr.ToSrc(rpath)
	if _, err := os.Stat(srcPath); err != nil {
		if os.IsNotExist(err) {
			return fuse.ENOENT
		}
		return err
	}

	if ok, err := fs.disk.CanStore(srcPath); err != nil {
		return err
	} else if !ok && !force {
		if werr := fs.withRemoteWake(ctx); werr != nil {
			return werr
		}
	}

	var openPaths map[string]bool
	if fs.jrnl != nil {
		paths, _ := fs.jrnl.GetDirtyPaths()
		openPaths = make(map[string]bool, len(paths))
		for _, p := range paths {
			openPaths[p] = true
		}
	}

	_, err := fs.disk.Cp2Cache(srcPath, force, openPaths)
	return err
}

// resolveChild returns the inode and VFS record for the root-relative path
// rpath, minting and indexing a fresh record from disk if this is the
// first time the dispatcher has seen it. Returns fuse.ENOENT if rpath
// exists in neither the source nor the cache tree.
func (fs *FS) resolveChild(rpath string) (inodetr.Inode, *vfs.Record, error) {
	if ino, ok := fs.inotr.Lookup(rpath); ok {
		rec, ok := fs.vfs.Get(ino)
		if !ok {
			return 0, nil, fmt.Errorf("fs: ino %d known to translator but missing from vfs", ino)
		}
		return ino, rec, nil
	}

	fi, err := os.Lstat(fs.tr.ToSrc(rpath))
	if err != nil {
		fi, err = os.Lstat(fs.tr.ToTmp(rpath))
	}
	if err != nil {
		return 0, nil, fuse.ENOENT
	}

	ino, err := fs.inotr.PathToIno(rpath, 0)
	if err != nil {
		return 0, nil, err
	}
	rec := &vfs.Record{Ino: ino, Attr: attrFromStat(fi), IsDir: fi.IsDir()}
	fs.vfs.Insert(rec)
	return ino, rec, nil
}

// isChildOf reports whether childIno is already spliced into parentIno's
// children list, to distinguish a repeat LookUpInode (bump lookup count)
// from the first one (splice + bump).
func (fs *FS) isChildOf(parentIno, childIno inodetr.Inode) bool {
	parent, ok := fs.vfs.Get(parentIno)
	if !ok {
		return false
	}
	children := parent.Children()
	idx := sort.Search(len(children), func(i int) bool { return children[i] >= childIno })
	return idx < len(children) && children[idx] == childIno
}

func (fs *FS) Init(op *fuseops.InitOp) (err error) {
	return
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *FS) LookUpInode(op *fuseops.LookUpInodeOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentPath := fs.inotr.InoToPath(inodetr.Inode(op.Parent))
	childPath := joinChild(parentPath, op.Name)

	ino, rec, err := fs.resolveChild(childPath)
	if err != nil {
		return
	}

	if fs.isChildOf(inodetr.Inode(op.Parent), ino) {
		fs.vfs.IncLookup(ino)
	} else if err = fs.vfs.AddChild(inodetr.Inode(op.Parent), rec); err != nil {
		return
	}

	op.Entry.Child = fuseops.InodeID(ino)
	op.Entry.Attributes = attrFromVFS(rec.Attr)
	return
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *FS) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	rec, ok := fs.vfs.Get(inodetr.Inode(op.Inode))
	if !ok {
		err = fuse.ENOENT
		return
	}
	op.Attributes = attrFromVFS(rec.Attr)
	return
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *FS) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	rec, ok := fs.vfs.Get(inodetr.Inode(op.Inode))
	if !ok {
		err = fuse.ENOENT
		return
	}

	rpath := fs.inotr.InoToPath(inodetr.Inode(op.Inode))
	if !rec.IsDir {
		if err = fs.ensureCached(op.Context(), rpath, false); err != nil {
			return
		}
	}
	tmpPath := fs.tr.ToTmp(rpath)

	if op.Size != nil {
		if err = os.Truncate(tmpPath, int64(*op.Size)); err != nil {
			return
		}
		rec.Attr.Size = *op.Size
		fs.jrnl.LogWrite(inodetr.Inode(op.Inode), rpath, int64(*op.Size), 0)
	}
	if op.Mode != nil {
		if err = os.Chmod(tmpPath, *op.Mode); err != nil {
			return
		}
		rec.Attr.Mode = (rec.Attr.Mode &^ 0o7777) | uint32(op.Mode.Perm())
	}
	if op.Atime != nil || op.Mtime != nil {
		atime, mtime := rec.Attr.Atime, rec.Attr.Mtime
		if op.Atime != nil {
			atime = *op.Atime
		}
		if op.Mtime != nil {
			mtime = *op.Mtime
		}
		if err = os.Chtimes(tmpPath, atime, mtime); err != nil {
			return
		}
		rec.Attr.Atime, rec.Attr.Mtime = atime, mtime
	}

	op.Attributes = attrFromVFS(rec.Attr)
	return
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *FS) ForgetInode(op *fuseops.ForgetInodeOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ino := inodetr.Inode(op.Inode)
	if _, open := fs.openFiles[ino]; open {
		fs.pendingForget[ino] += uint64(op.N)
		return
	}
	fs.vfs.Forget(ino, uint64(op.N))
	return
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *FS) MkDir(op *fuseops.MkDirOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentPath := fs.inotr.InoToPath(inodetr.Inode(op.Parent))
	childPath := joinChild(parentPath, op.Name)

	if _, ok := fs.inotr.Lookup(childPath); ok {
		err = fuse.EEXIST
		return
	}
	if _, statErr := os.Lstat(fs.tr.ToSrc(childPath)); statErr == nil {
		err = fuse.EEXIST
		return
	}
	if _, statErr := os.Lstat(fs.tr.ToTmp(childPath)); statErr == nil {
		err = fuse.EEXIST
		return
	}

	if !fs.disk.CanReserve(minDirSizeEstimate) {
		if werr := fs.withRemoteWake(op.Context()); werr != nil {
			err = werr
			return
		}
		if fs.jrnl != nil && !fs.jrnl.IsCompletelyClean() {
			if ferr := fs.jrnl.FlushCompleteJournal(); ferr != nil {
				logger.Warnf("fs: mkdir: flushing journal to free cache room: %v", ferr)
			}
		}
		if !fs.disk.CanReserve(minDirSizeEstimate) {
			err = fuse.Errno(syscall.EDQUOT)
			return
		}
	}

	tmpPath := fs.tr.ToTmp(childPath)
	if err = os.Mkdir(tmpPath, op.Mode.Perm()); err != nil {
		if os.IsExist(err) {
			err = fuse.EEXIST
		}
		return
	}

	ino, err := fs.inotr.PathToIno(childPath, 0)
	if err != nil {
		return
	}
	fi, statErr := os.Lstat(tmpPath)
	if statErr != nil {
		err = statErr
		return
	}
	attr := attrFromStat(fi)
	rec := &vfs.Record{Ino: ino, Attr: attr, IsDir: true}
	fs.vfs.Insert(rec)
	if err = fs.vfs.AddChild(inodetr.Inode(op.Parent), rec); err != nil {
		return
	}

	if _, terr := fs.disk.Track(childPath, 0); terr != nil {
		logger.Warnf("fs: mkdir: tracking %s: %v", childPath, terr)
	}
	fs.jrnl.LogMkdir(inodetr.Inode(op.Parent), ino, childPath, uint32(op.Mode.Perm()))

	op.Entry.Child = fuseops.InodeID(ino)
	op.Entry.Attributes = attrFromVFS(attr)
	fs.checkInvariants()
	return
}

// minDirSizeEstimate approximates the MIN_DIR_SIZE probe internal/cache
// performs at construction for the single extra directory entry mkdir is
// about to create; internal/cache's own probe value is unexported, so this
// conservative constant (most filesystems report 4KiB directory blocks)
// stands in for the pre-creation admission check.
const minDirSizeEstimate = 4096

// LOCKS_EXCLUDED(fs.mu)
func (fs *FS) CreateFile(op *fuseops.CreateFileOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentPath := fs.inotr.InoToPath(inodetr.Inode(op.Parent))
	childPath := joinChild(parentPath, op.Name)

	if _, ok := fs.inotr.Lookup(childPath); ok {
		err = fuse.EEXIST
		return
	}

	tmpPath := fs.tr.ToTmp(childPath)
	flags := int(op.Flags) | os.O_CREATE | os.O_EXCL
	fd, err := os.OpenFile(tmpPath, flags, 0o644)
	if err != nil {
		if os.IsExist(err) {
			err = fuse.EEXIST
		}
		return
	}

	ino, err := fs.inotr.PathToIno(childPath, 0)
	if err != nil {
		fd.Close()
		return
	}
	fi, statErr := fd.Stat()
	if statErr != nil {
		fd.Close()
		err = statErr
		return
	}
	attr := attrFromStat(fi)
	rec := &vfs.Record{Ino: ino, Attr: attr, IsDir: false}
	fs.vfs.Insert(rec)
	if err = fs.vfs.AddChild(inodetr.Inode(op.Parent), rec); err != nil {
		fd.Close()
		return
	}

	if _, terr := fs.disk.Track(childPath, 0); terr != nil {
		logger.Warnf("fs: create: tracking %s: %v", childPath, terr)
	}
	fs.jrnl.LogCreate(ino, childPath, int(op.Flags))

	op.Handle = fs.registerOpenHandle(ino, fd)
	op.Entry.Child = fuseops.InodeID(ino)
	op.Entry.Attributes = attrFromVFS(attr)
	fs.checkInvariants()
	return
}

// LOCKS_EXCLUDED(fs.mu)
//
// MkNode is authored in the dispatcher's idiom without a literal teacher
// counterpart (absent from both the teacher and the stale example's
// FileSystem interface). Unlike CreateFile it does not open the new node:
// mknod(2) only has to create the directory entry, the kernel issues a
// separate Open afterward if the caller actually reads or writes it.
func (fs *FS) MkNode(op *fuseops.MkNodeOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentPath := fs.inotr.InoToPath(inodetr.Inode(op.Parent))
	childPath := joinChild(parentPath, op.Name)

	if _, ok := fs.inotr.Lookup(childPath); ok {
		err = fuse.EEXIST
		return
	}

	tmpPath := fs.tr.ToTmp(childPath)
	fd, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, op.Mode.Perm())
	if err != nil {
		if os.IsExist(err) {
			err = fuse.EEXIST
		}
		return
	}
	defer fd.Close()

	ino, err := fs.inotr.PathToIno(childPath, 0)
	if err != nil {
		return
	}
	fi, statErr := fd.Stat()
	if statErr != nil {
		err = statErr
		return
	}
	attr := attrFromStat(fi)
	rec := &vfs.Record{Ino: ino, Attr: attr, IsDir: false}
	fs.vfs.Insert(rec)
	if err = fs.vfs.AddChild(inodetr.Inode(op.Parent), rec); err != nil {
		return
	}

	if _, terr := fs.disk.Track(childPath, 0); terr != nil {
		logger.Warnf("fs: mknod: tracking %s: %v", childPath, terr)
	}
	fs.jrnl.LogCreate(ino, childPath, os.O_WRONLY)

	op.Entry.Child = fuseops.InodeID(ino)
	op.Entry.Attributes = attrFromVFS(attr)
	fs.checkInvariants()
	return
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *FS) RmDir(op *fuseops.RmDirOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentPath := fs.inotr.InoToPath(inodetr.Inode(op.Parent))
	childPath := joinChild(parentPath, op.Name)

	ino, ok := fs.inotr.Lookup(childPath)
	if !ok {
		err = fuse.ENOENT
		return
	}
	rec, ok := fs.vfs.Get(ino)
	if !ok || !rec.IsDir {
		err = fuse.ENOTDIR
		return
	}
	if len(rec.Children()) > 0 {
		err = fuse.Errno(syscall.ENOTEMPTY)
		return
	}
	if entries, derr := os.ReadDir(fs.tr.ToTmp(childPath)); derr == nil && len(entries) > 0 {
		err = fuse.Errno(syscall.ENOTEMPTY)
		return
	}
	if entries, derr := os.ReadDir(fs.tr.ToSrc(childPath)); derr == nil && len(entries) > 0 {
		err = fuse.Errno(syscall.ENOTEMPTY)
		return
	}

	if _, statErr := os.Lstat(fs.tr.ToTmp(childPath)); statErr == nil {
		if rerr := os.Remove(fs.tr.ToTmp(childPath)); rerr != nil {
			err = rerr
			return
		}
	}

	if err = fs.jrnl.LogRmdir(inodetr.Inode(op.Parent), ino, childPath); err != nil {
		return
	}
	fs.checkInvariants()
	return
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *FS) Unlink(op *fuseops.UnlinkOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentPath := fs.inotr.InoToPath(inodetr.Inode(op.Parent))
	childPath := joinChild(parentPath, op.Name)

	ino, ok := fs.inotr.Lookup(childPath)
	if !ok {
		err = fuse.ENOENT
		return
	}

	if _, statErr := os.Lstat(fs.tr.ToTmp(childPath)); statErr == nil {
		if rerr := os.Remove(fs.tr.ToTmp(childPath)); rerr != nil {
			err = rerr
			return
		}
	}

	if err = fs.jrnl.LogUnlink(inodetr.Inode(op.Parent), ino, childPath); err != nil {
		return
	}
	if err = fs.inotr.Remove(ino, childPath); err != nil {
		return
	}
	fs.checkInvariants()
	return
}

// LOCKS_EXCLUDED(fs.mu)
//
// Rename is authored in the dispatcher's idiom without a literal teacher
// counterpart: gcsfuse's legacy fs/fs.go never implements RenameOp (GCS
// objects are immutable and gcsfuse's newer generation handles renames
// elsewhere), but spec.md §4.6 requires it.
func (fs *FS) Rename(op *fuseops.RenameOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if op.Flags != 0 {
		err = fuse.Errno(syscall.EINVAL)
		return
	}

	oldParentPath := fs.inotr.InoToPath(inodetr.Inode(op.OldParent))
	oldPath := joinChild(oldParentPath, op.OldName)
	newParentPath := fs.inotr.InoToPath(inodetr.Inode(op.NewParent))
	newPath := joinChild(newParentPath, op.NewName)

	ino, ok := fs.inotr.Lookup(oldPath)
	if !ok {
		err = fuse.ENOENT
		return
	}
	rec, ok := fs.vfs.Get(ino)
	if !ok {
		err = fuse.ENOENT
		return
	}

	if !rec.IsDir {
		if err = fs.ensureCached(op.Context(), oldPath, false); err != nil {
			return
		}
	}

	oldTmp, newTmp := fs.tr.ToTmp(oldPath), fs.tr.ToTmp(newPath)
	if _, statErr := os.Lstat(oldTmp); statErr == nil {
		if rerr := os.Rename(oldTmp, newTmp); rerr != nil {
			err = rerr
			return
		}
	}

	if err = fs.vfs.RemoveChild(inodetr.Inode(op.OldParent), ino); err != nil {
		return
	}
	if err = fs.inotr.Remove(ino, oldPath); err != nil {
		return
	}
	if _, err = fs.inotr.PathToIno(newPath, ino); err != nil {
		return
	}
	if err = fs.vfs.AddChild(inodetr.Inode(op.NewParent), rec); err != nil {
		return
	}
	// AddChild bumped the lookup count as though this were a fresh
	// LookUpInode; rename doesn't mint a new kernel reference, so undo it.
	fs.vfs.Forget(ino, 1)

	if rec.IsDir {
		fs.remapDescendants(oldPath, newPath, ino)
	}

	if uerr := fs.disk.Untrack(oldPath); uerr != nil {
		logger.Warnf("fs: rename: untracking %s: %v", oldPath, uerr)
	}
	if _, terr := fs.disk.Track(newPath, 0); terr != nil {
		logger.Warnf("fs: rename: tracking %s: %v", newPath, terr)
	}

	fs.jrnl.LogRename(ino, oldPath, newPath)
	fs.checkInvariants()
	return
}

// remapDescendants recursively rewrites the inode translator's path
// entries for every descendant of a renamed directory, replacing the
// oldPrefix each carries with newPrefix. Grounded on spec.md §4.6's
// "recursively the cached TMP path field of every descendant" note.
func (fs *FS) remapDescendants(oldPrefix, newPrefix string, parent inodetr.Inode) {
	rec, ok := fs.vfs.Get(parent)
	if !ok {
		return
	}
	for _, child := range rec.Children() {
		oldChildPath := fs.inotr.InoToPath(child)
		newChildPath := newPrefix + strings.TrimPrefix(oldChildPath, oldPrefix)

		if err := fs.inotr.Remove(child, oldChildPath); err != nil {
			logger.Warnf("fs: rename: remapping %s: %v", oldChildPath, err)
			continue
		}
		if _, err := fs.inotr.PathToIno(newChildPath, child); err != nil {
			logger.Warnf("fs: rename: remapping %s: %v", newChildPath, err)
			continue
		}
		fs.remapDescendants(oldPrefix, newPrefix, child)
	}
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *FS) StatFS(op *fuseops.StatFSOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var stat unix.Statfs_t
	if err = unix.Statfs(fs.tr.Cache(), &stat); err != nil {
		return
	}

	op.BlockSize = uint32(stat.Bsize)
	op.Blocks = stat.Blocks
	op.BlocksFree = stat.Bfree
	op.BlocksAvailable = stat.Bavail
	op.IoSize = uint32(stat.Bsize)
	op.Inodes = stat.Files
	op.InodesFree = stat.Ffree

	// fuseops.StatFSOp has no f_namemax field to populate; the dispatcher
	// can't report the TMP-prefix-shortened value the kernel vfs.txt
	// describes through this op, so it's logged at trace level instead of
	// silently dropped.
	namemax := 255 - len(fs.tr.Cache())
	logger.Tracef("fs: statfs: reporting namemax=%d (unexposed by StatFSOp)", namemax)

	if fs.jrnl != nil && !fs.jrnl.IsCompletelyClean() {
		if ferr := fs.jrnl.FlushCompleteJournal(); ferr != nil {
			logger.Warnf("fs: statfs: opportunistic journal flush failed: %v", ferr)
		}
	}
	return
}
