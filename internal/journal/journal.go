// Package journal records filesystem-mutating operations performed against
// cached (not-yet-synced) files and replays them against the source tree
// once the mount decides to flush.
//
// Grounded on the Python prototype's libwolfs/journal.py: the same
// CREATE/WRITE/UNLINK/RENAME/MKDIR log-entry shape, the same
// compact-before-replay strategy (collapsing every entry for an
// eventually-unlinked inode down to its terminal UNLINK), the same greedy
// consumption of consecutive same-path WRITE entries into one
// fsync-with-remote pass reusing a single cached/remote fd pair, and the
// same per-inode "original size before first mutation" dirty bookkeeping.
package journal

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/wolfs-fs/wolfs/internal/cache"
	"github.com/wolfs-fs/wolfs/internal/inodetr"
	"github.com/wolfs-fs/wolfs/internal/vfs"
)

// Op identifies the kind of mutation a LogEntry records.
type Op int

const (
	OpCreate Op = iota
	OpWrite
	OpUnlink
	OpRename
	OpMkdir
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "CREATE"
	case OpWrite:
		return "WRITE"
	case OpUnlink:
		return "UNLINK"
	case OpRename:
		return "RENAME"
	case OpMkdir:
		return "MKDIR"
	default:
		return "UNKNOWN"
	}
}

// writeOp is one (offset, length) span written to a file.
type writeOp struct {
	offset int64
	length int64
}

// LogEntry is one recorded mutation, replayed in order (after compaction)
// against the source tree by FlushCompleteJournal.
type LogEntry struct {
	Op      Op
	Inode   inodetr.Inode
	Path    string
	Write   writeOp
	Flags   int
	Mode    uint32
	PathNew string
}

// Journal accumulates LogEntries for one mount and replays them against the
// source tree on flush. It holds no lock of its own: internal/fs's single
// fs.mu serializes every call.
type Journal struct {
	tr    translator
	vfs   *vfs.VFS
	disk  *cache.Disk
	inotr *inodetr.Translator

	srcBytesAvail  int64
	bytesUnwritten int64

	history  []LogEntry
	dirtyMap map[inodetr.Inode]int64 // inode -> size before its first mutation

	lastRemotePath string
	lastFDCache    int
	lastFDRemote   int
	fdsOpen        bool
}

// translator is the subset of *pathtr.Translator the journal needs; kept as
// an interface so tests can swap in a fake without a real three-tree mount.
type translator interface {
	ToSrc(path string) string
	ToTmp(path string) string
}

// New constructs a Journal for sourceDir, statting it with statvfs the way
// the prototype's __init__ does to learn how much space remains on the
// backing filesystem.
func New(tr translator, v *vfs.VFS, disk *cache.Disk, inotr *inodetr.Translator, sourceDir string) (*Journal, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(sourceDir, &stat); err != nil {
		return nil, fmt.Errorf("journal: statfs %s: %w", sourceDir, err)
	}
	if stat.Bsize == 0 {
		return nil, fmt.Errorf("journal: statfs %s: unknown filesystem (bsize == 0)", sourceDir)
	}

	return &Journal{
		tr:            tr,
		vfs:           v,
		disk:          disk,
		inotr:         inotr,
		srcBytesAvail: int64(stat.Bavail) * stat.Bsize,
		dirtyMap:      make(map[inodetr.Inode]int64),
	}, nil
}

func (j *Journal) markDirty(inode inodetr.Inode) {
	if j.IsDirty(inode) {
		return
	}
	size := int64(0)
	if rec, ok := j.vfs.Get(inode); ok {
		size = int64(rec.Attr.Size)
	}
	j.dirtyMap[inode] = size
}

// IsDirty reports whether inode has any recorded-but-unflushed mutation.
func (j *Journal) IsDirty(inode inodetr.Inode) bool {
	_, ok := j.dirtyMap[inode]
	return ok
}

// IsCompletelyClean reports whether nothing is pending flush at all.
func (j *Journal) IsCompletelyClean() bool {
	return len(j.dirtyMap) == 0
}

// LogCreate records that a new cache-resident file was created at path
// (root-relative) for inode, with the open flags it was created with.
func (j *Journal) LogCreate(inode inodetr.Inode, path string, flags int) {
	j.markDirty(inode)
	j.history = append(j.history, LogEntry{
		Op:    OpCreate,
		Inode: inode,
		Path:  j.tr.ToTmp(path),
		Flags: flags,
	})
}

// LogWrite records a single write of length bytesWritten at offset into
// inode's cache-resident file at path.
func (j *Journal) LogWrite(inode inodetr.Inode, path string, offset, bytesWritten int64) {
	j.markDirty(inode)
	j.history = append(j.history, LogEntry{
		Op:    OpWrite,
		Inode: inode,
		Path:  j.tr.ToTmp(path),
		Write: writeOp{offset: offset, length: bytesWritten},
	})
	j.bytesUnwritten += bytesWritten
}

// LogRename records that inode moved from pathOld to pathNew.
func (j *Journal) LogRename(inode inodetr.Inode, pathOld, pathNew string) {
	j.markDirty(inode)
	j.history = append(j.history, LogEntry{
		Op:      OpRename,
		Inode:   inode,
		Path:    pathOld,
		PathNew: pathNew,
	})
}

// LogUnlink records that inode was removed from parentIno's directory at
// path, splicing it out of the live VFS tree and untracking it from the
// cache immediately (unlike the other ops, the in-memory side effect isn't
// deferred to flush time — only the on-disk source-tree removal is).
func (j *Journal) LogUnlink(parentIno, inode inodetr.Inode, path string) error {
	if err := j.vfs.RemoveChild(parentIno, inode); err != nil {
		return err
	}
	if err := j.disk.Untrack(path); err != nil {
		return err
	}

	j.markDirty(inode)
	j.markDirty(parentIno)
	j.history = append(j.history, LogEntry{Op: OpUnlink, Inode: inode, Path: path})
	return nil
}

// LogRmdir is log-equivalent to LogUnlink: a non-empty directory would
// already have been rejected by the caller, so an rmdir is just an unlink
// of an empty directory entry.
func (j *Journal) LogRmdir(parentIno, inode inodetr.Inode, path string) error {
	return j.LogUnlink(parentIno, inode, path)
}

// LogMkdir records a new directory created at path under parentIno.
func (j *Journal) LogMkdir(parentIno, inode inodetr.Inode, path string, mode uint32) {
	j.markDirty(inode)
	j.markDirty(parentIno)
	j.history = append(j.history, LogEntry{Op: OpMkdir, Inode: inode, Path: path, Mode: mode})
}

// GetDirtyPaths returns the path of every pending WRITE entry (once per
// entry) and the total bytes reserved for those writes; the dispatcher uses
// the paths to keep their cached copies from being evicted.
func (j *Journal) GetDirtyPaths() ([]string, int64) {
	var paths []string
	var reserved int64
	for _, e := range j.history {
		if e.Op != OpWrite {
			continue
		}
		paths = append(paths, e.Path)
		reserved += e.Write.length
	}
	return paths, reserved
}

// FlushCompleteJournal compacts the history (collapsing every entry for an
// inode that is eventually unlinked down to just that terminal UNLINK) and
// replays it against the source tree in order, then clears all buffers.
func (j *Journal) FlushCompleteJournal() error {
	compacted := j.compact()

	for i := 0; i < len(compacted); {
		entry := compacted[i]
		srcPath := j.tr.ToSrc(entry.Path)
		next, err := j.replay(entry, srcPath, compacted, i)
		if err != nil {
			return err
		}
		i = next
	}

	j.closeFDs()
	j.history = nil
	j.dirtyMap = make(map[inodetr.Inode]int64)
	j.lastRemotePath = ""
	j.bytesUnwritten = 0
	return nil
}

func (j *Journal) compact() []LogEntry {
	unlinkByInode := make(map[inodetr.Inode]LogEntry)
	for _, e := range j.history {
		if e.Op == OpUnlink {
			unlinkByInode[e.Inode] = e
		}
	}

	seen := make(map[inodetr.Inode]bool)
	compacted := make([]LogEntry, 0, len(j.history))
	for _, e := range j.history {
		if unlinkEntry, isUnlinked := unlinkByInode[e.Inode]; isUnlinked {
			if seen[e.Inode] {
				continue
			}
			seen[e.Inode] = true
			compacted = append(compacted, unlinkEntry)
			continue
		}
		compacted = append(compacted, e)
	}
	return compacted
}

func (j *Journal) replay(entry LogEntry, srcPath string, history []LogEntry, i int) (int, error) {
	switch entry.Op {
	case OpCreate:
		fd, err := unix.Open(srcPath, entry.Flags, 0o644)
		if err != nil {
			return 0, fmt.Errorf("journal: replay create %s: %w", srcPath, err)
		}
		unix.Close(fd)
		return i + 1, nil

	case OpMkdir:
		if err := os.Mkdir(srcPath, os.FileMode(entry.Mode)); err != nil && !os.IsExist(err) {
			return 0, fmt.Errorf("journal: replay mkdir %s: %w", srcPath, err)
		}
		return i + 1, nil

	case OpUnlink:
		if err := os.Remove(srcPath); err != nil && !os.IsNotExist(err) {
			return 0, fmt.Errorf("journal: replay unlink %s: %w", srcPath, err)
		}
		return i + 1, nil

	case OpRename:
		newSrc := j.tr.ToSrc(entry.PathNew)
		if err := os.Rename(srcPath, newSrc); err != nil {
			return 0, fmt.Errorf("journal: replay rename %s -> %s: %w", srcPath, newSrc, err)
		}
		return i + 1, nil

	case OpWrite:
		writes := []writeOp{entry.Write}
		filePath := entry.Path
		j2 := i + 1
		for j2 < len(history) {
			next := history[j2]
			if next.Op != OpWrite || next.Path != filePath {
				break
			}
			writes = append(writes, next.Write)
			j2++
		}
		if err := j.fsyncWithRemote(entry.Path, writes); err != nil {
			return 0, err
		}
		return j2, nil

	default:
		return 0, fmt.Errorf("journal: unsupported op %v", entry.Op)
	}
}

// fsyncWithRemote applies writes (in cache-file-relative offsets) to the
// corresponding source-tree file, reusing the previous fd pair when the
// remote path hasn't changed since the last call (exactly the prototype's
// __last_fds/__last_remote_path reuse, avoiding an open/close pair per
// write run).
func (j *Journal) fsyncWithRemote(cacheFile string, writes []writeOp) error {
	remote := j.tr.ToSrc(cacheFile)
	if _, err := os.Stat(remote); err != nil {
		return fmt.Errorf("journal: writing before file was created: %w", err)
	}

	if j.lastRemotePath != remote {
		j.closeFDs()

		fdCache, err := unix.Open(cacheFile, unix.O_RDONLY|unix.O_NOATIME, 0)
		if err != nil {
			return fmt.Errorf("journal: open cache file %s: %w", cacheFile, err)
		}
		fdRemote, err := unix.Open(remote, unix.O_RDWR|unix.O_NOATIME, 0)
		if err != nil {
			unix.Close(fdCache)
			return fmt.Errorf("journal: open remote file %s: %w", remote, err)
		}
		j.lastFDCache, j.lastFDRemote = fdCache, fdRemote
		j.fdsOpen = true
		j.lastRemotePath = remote
	}

	for _, w := range writes {
		buf := make([]byte, w.length)
		n, err := unix.Pread(j.lastFDCache, buf, w.offset)
		if err != nil {
			return fmt.Errorf("journal: pread %s: %w", cacheFile, err)
		}
		if _, err := unix.Pwrite(j.lastFDRemote, buf[:n], w.offset); err != nil {
			return fmt.Errorf("journal: pwrite %s: %w", remote, err)
		}
	}

	return cache.CopyStat(cacheFile, remote)
}

func (j *Journal) closeFDs() {
	if !j.fdsOpen {
		return
	}
	unix.Fsync(j.lastFDRemote)
	unix.Close(j.lastFDCache)
	unix.Close(j.lastFDRemote)
	j.fdsOpen = false
}
