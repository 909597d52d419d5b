// Package cache is the size-bounded on-disk cache manager: it tracks which
// source-tree paths currently have a local copy under the cache directory,
// evicts the least-recently-used entries when space runs short, and copies
// files/directories in from the source tree on demand.
//
// Grounded on the Python prototype's libwolfs/disk.py (the Cache/Disk
// classes). The prototype orders entries for eviction with a
// sortedcontainers.SortedDict keyed by an access-time-in-seconds timestamp,
// coalescing same-second entries into a list. Go has no sorted-map in the
// standard library with efficient arbitrary removal, so this is reimagined
// as a container/heap min-heap ordered by timestamp with index-tracked
// entries, which gives the same "evict oldest" semantics plus O(log n)
// removal-by-path for untrack — a structure already used the same way by
// internal/prioq for the mount-time cache warm.
package cache

import (
	"container/heap"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/wolfs-fs/wolfs/internal/inodetr"
	"github.com/wolfs-fs/wolfs/internal/pathtr"
	"github.com/wolfs-fs/wolfs/internal/wolfserr"
)

const megabyte = 1024 * 1024

// ErrQuotaExceeded is returned when every evictable (non-open) cache entry
// has been removed and there is still not enough room for the incoming
// path. Mirrors the prototype raising FUSEError(errno.EDQUOT).
var ErrQuotaExceeded = fmt.Errorf("cache: quota exceeded, no evictable entries left")

// entry is one tracked cache residency: a source-relative path, its size in
// bytes, and the timestamp (seconds) it was last touched by.
type entry struct {
	path      string
	size      int64
	timestamp int64
	index     int
}

// byTime is a container/heap min-heap ordered by timestamp, giving O(log n)
// "evict the oldest" and, via heap.Fix/heap.Remove with a tracked index,
// O(log n) removal of an arbitrary tracked path.
type byTime []*entry

func (h byTime) Len() int            { return len(h) }
func (h byTime) Less(i, j int) bool  { return h[i].timestamp < h[j].timestamp }
func (h byTime) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *byTime) Push(x interface{}) { e := x.(*entry); e.index = len(*h); *h = append(*h, e) }
func (h *byTime) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Disk is the cache manager for one wolfs mount.
type Disk struct {
	tr  *pathtr.Translator
	ino *inodetr.Translator

	maxCacheSize   int64
	minDirSize     int64
	cacheThreshold float64
	useMtime       bool // true: time_attr is st_mtime, matching noatime mounts

	current    int64
	heap       byTime
	byPath     map[string]*entry
	cachedInos map[inodetr.Inode]bool
}

// New constructs a Disk cache manager. maxCacheSizeMB is the soft cap in
// megabytes; noatime should match whether the remote/source mount disables
// atime updates (the prototype falls back to mtime in that case, since atime
// would otherwise never change). A probe directory is created and removed
// under the cache directory to measure the filesystem's minimum directory
// allocation size, mirroring the prototype's MIN_DIR_SIZE probe.
func New(tr *pathtr.Translator, ino *inodetr.Translator, maxCacheSizeMB int64, noatime bool, cacheThreshold float64) (*Disk, error) {
	probe := filepath.Join(tr.Cache(), "wolfs_tmp_directory")
	if err := os.Mkdir(probe, 0o755); err != nil {
		return nil, fmt.Errorf("cache: probing min dir size: %w", err)
	}
	info, err := os.Stat(probe)
	if err != nil {
		os.Remove(probe)
		return nil, fmt.Errorf("cache: probing min dir size: %w", err)
	}
	minDirSize := info.Size()
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("cache: removing probe dir: %w", err)
	}

	return &Disk{
		tr:             tr,
		ino:            ino,
		maxCacheSize:   maxCacheSizeMB * megabyte,
		minDirSize:     minDirSize,
		cacheThreshold: cacheThreshold,
		useMtime:       noatime,
		byPath:         make(map[string]*entry),
		cachedInos:     make(map[inodetr.Inode]bool),
	}, nil
}

// CanReserve reports whether size more bytes fit under the cap without
// evicting anything.
func (d *Disk) CanReserve(size int64) bool {
	return size+d.current < d.maxCacheSize
}

// CanStore reports whether srcPath (a path rooted in the source tree) would
// fit in the cache right now, accounting for any ancestor directories under
// the cache tree that don't exist yet and would need to be created.
func (d *Disk) CanStore(srcPath string) (bool, error) {
	fi, err := os.Lstat(srcPath)
	if err != nil {
		return false, err
	}
	if fi.Mode()&fs.ModeSymlink != 0 {
		return false, wolfserr.ErrSoftlinkDisabled
	}

	cpath := d.tr.ToTmp(srcPath)
	var inBetween int64
	for {
		parent := filepath.Dir(cpath)
		if _, err := os.Stat(parent); err == nil {
			break
		}
		inBetween += d.minDirSize
		cpath = parent
		if parent == "/" || parent == "." {
			break
		}
	}

	size := inBetween + fi.Size() + d.current
	return size <= d.maxCacheSize, nil
}

// IsFilledBy reports whether current usage is at or above percent (in
// [0,1]) of the cap.
func (d *Disk) IsFilledBy(percent float64) bool {
	if percent < 0 || percent > 1 {
		panic("cache: IsFilledBy percent must be within [0,1]")
	}
	return float64(d.current)/float64(d.maxCacheSize) >= percent
}

// IsFull reports whether the cache is completely full, or past its eviction
// threshold when useThreshold is set.
func (d *Disk) IsFull(useThreshold bool) bool {
	percent := 1.0
	if useThreshold {
		percent = d.cacheThreshold
	}
	return d.IsFilledBy(percent)
}

func (d *Disk) timestampOf(fi os.FileInfo) int64 {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0
	}
	if d.useMtime {
		return st.Mtim.Sec
	}
	return st.Atim.Sec
}

// Track registers path as resident in the cache (its data may live in
// either the source tree, for newly tracked reads, or the cache tree, for a
// freshly created file) and reserves its size against the cap. reuseIno, if
// non-zero, is forwarded to the inode translator for a rename.
func (d *Disk) Track(path string, reuseIno inodetr.Inode) (inodetr.Inode, error) {
	candidate := d.tr.ToSrc(path)
	if _, err := os.Stat(candidate); err != nil {
		candidate = d.tr.ToTmp(path)
	}
	fi, err := os.Stat(candidate)
	if err != nil {
		return 0, err
	}

	srcPath := d.tr.ToSrc(path)
	ino, err := d.ino.PathToIno(d.tr.ToRoot(srcPath), reuseIno)
	if err != nil {
		return 0, err
	}

	ts := d.timestampOf(fi)
	size := fi.Size()

	if existing, ok := d.byPath[srcPath]; ok {
		d.current += size - existing.size
		existing.timestamp = ts
		existing.size = size
		heap.Fix(&d.heap, existing.index)
	} else {
		e := &entry{path: srcPath, size: size, timestamp: ts}
		d.byPath[srcPath] = e
		d.pushHeap(e)
		d.current += size
	}

	d.cachedInos[ino] = true
	return ino, nil
}

// Untrack removes path's residency bookkeeping, freeing its reserved size.
// It is a no-op if path is not currently tracked, mirroring the prototype's
// early return when path_timestamp has no entry.
func (d *Disk) Untrack(path string) error {
	srcPath := d.tr.ToSrc(path)
	e, ok := d.byPath[srcPath]
	if !ok {
		return nil
	}

	d.removeHeap(e)
	delete(d.byPath, srcPath)
	d.current -= e.size

	if ino, ok := d.ino.Lookup(d.tr.ToRoot(srcPath)); ok {
		delete(d.cachedInos, ino)
	}
	return nil
}

func (d *Disk) pushHeap(e *entry) {
	heap.Push(&d.heap, e)
}

func (d *Disk) removeHeap(e *entry) {
	heap.Remove(&d.heap, e.index)
}

// Cp2Cache copies path (rooted in the source tree) into the cache tree,
// evicting least-recently-used entries first when force is set. openPaths
// holds paths that eviction skips; the dispatcher passes the paths with
// pending journaled writes, whose cached copies can't be dropped before
// they are flushed.
func (d *Disk) Cp2Cache(srcPath string, force bool, openPaths map[string]bool) (string, error) {
	if err := d.makeRoomFor(force, srcPath, openPaths); err != nil {
		return "", err
	}

	ok, err := d.CanStore(srcPath)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &wolfserr.NotEnoughSpaceError{Path: srcPath, Capacity: d.maxCacheSize}
	}

	dest := d.tr.ToTmp(srcPath)
	_, addedFolders, err := d.cpPath(srcPath, dest)
	if err != nil {
		return "", err
	}

	for _, folder := range addedFolders {
		if _, err := d.Track(folder, 0); err != nil {
			return "", err
		}
	}
	if _, err := d.Track(srcPath, 0); err != nil {
		return "", err
	}
	return dest, nil
}

func (d *Disk) makeRoomFor(force bool, srcPath string, openPaths map[string]bool) error {
	if openPaths == nil {
		openPaths = map[string]bool{}
	}
	for force {
		ok, err := d.CanStore(srcPath)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if len(d.heap) == 0 {
			return ErrQuotaExceeded
		}

		oldest := d.heap[0]
		victimSize := oldest.size
		if err := d.Untrack(oldest.path); err != nil {
			return err
		}

		cpath := d.tr.ToTmp(oldest.path)
		if openPaths[cpath] {
			continue
		}

		fi, statErr := os.Stat(cpath)
		if statErr != nil {
			continue
		}
		if fi.IsDir() {
			if err := os.Remove(cpath); err != nil {
				// not empty, or otherwise couldn't be removed: restore the
				// bookkeeping so current size stays accurate.
				d.current += victimSize
			}
		} else {
			os.Remove(cpath)
		}
	}
	return nil
}

func (d *Disk) cpPath(src, dst string) (int64, []string, error) {
	if src == dst {
		return 0, nil, nil
	}

	fi, err := os.Stat(src)
	if err != nil {
		return 0, nil, err
	}

	var addedSize int64
	var addedFolders []string

	switch {
	case fi.IsDir():
		addedSize, addedFolders, err = d.mkdirP(src)
		if err != nil {
			return 0, nil, err
		}
	case fi.Mode().IsRegular():
		if _, err := os.Stat(filepath.Dir(dst)); err != nil {
			addedSize, addedFolders, err = d.mkdirP(filepath.Dir(src))
			if err != nil {
				return 0, nil, err
			}
		}
		if err := copyFile(src, dst); err != nil {
			return 0, nil, err
		}
	default:
		return 0, nil, fmt.Errorf("cache: unrecognized file type: %s", src)
	}

	if err := CopyStat(src, dst); err != nil {
		return 0, nil, err
	}
	return addedSize, addedFolders, nil
}

// mkdirP recreates the ancestor chain of src under the cache tree,
// mirroring the source tree's mode bits at each level, and reports the
// total size added (ancestor directory sizes plus each directory's own
// reported size) along with every source path it had to create.
func (d *Disk) mkdirP(src string) (int64, []string, error) {
	dst := d.tr.ToTmp(src)
	if _, err := os.Stat(dst); err == nil {
		CopyStat(src, dst)
		return 0, nil, nil
	}

	var added int64
	var folders []string

	parent := filepath.Dir(src)
	if _, err := os.Stat(d.tr.ToTmp(parent)); err != nil {
		parentAdded, parentFolders, err := d.mkdirP(parent)
		if err != nil {
			return 0, nil, err
		}
		added += parentAdded
		folders = append(folders, parentFolders...)
	}

	folders = append(folders, src)
	st, err := os.Stat(src)
	if err != nil {
		return 0, nil, err
	}
	added += st.Size()
	if err := os.Mkdir(dst, st.Mode().Perm()); err != nil && !os.IsExist(err) {
		return 0, nil, err
	}
	CopyStat(src, dst)
	return added, folders, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// CopyStat mirrors shutil.copystat's scope: mode bits and mtime/atime. It
// does not attempt extended attributes or ACLs.
func CopyStat(src, dst string) error {
	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.Chmod(dst, fi.Mode().Perm()); err != nil {
		return err
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}
	atime := time.Unix(st.Atim.Sec, st.Atim.Nsec)
	mtime := time.Unix(st.Mtim.Sec, st.Mtim.Nsec)
	return os.Chtimes(dst, atime, mtime)
}

// GetSummary renders a one-line human-readable usage summary, mirroring
// the prototype's getSummary debug helper.
func (d *Disk) GetSummary() string {
	pct := 100 * float64(d.current) / float64(d.maxCacheSize)
	return fmt.Sprintf("cache holds %d entries, %.2f%% full (%d / %d bytes)",
		len(d.byPath), pct, d.current, d.maxCacheSize)
}

// TrackedPaths returns every source-rooted path currently tracked, sorted,
// for diagnostics and tests.
func (d *Disk) TrackedPaths() []string {
	out := make([]string, 0, len(d.byPath))
	for p := range d.byPath {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
