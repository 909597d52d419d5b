// Package mount wires wolfs' on-disk layers together and hands the result
// to github.com/jacobsa/fuse.
//
// Grounded on gcsfuse's cmd/mount.go: mountWithStorageHandle resolves
// configuration into a fs.ServerConfig, builds an fs.Server, and calls
// fuse.Mount with a MountConfig built by getFuseMountConfig. Mount below
// plays the same role for wolfs' layers (pathtr, inodetr, vfs, cache,
// journal) instead of gcsfuse's GCS bucket manager.
package mount

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/wolfs-fs/wolfs/cfg"
	wolfsfs "github.com/wolfs-fs/wolfs/internal/fs"
	"github.com/wolfs-fs/wolfs/internal/cache"
	"github.com/wolfs-fs/wolfs/internal/inodetr"
	"github.com/wolfs-fs/wolfs/internal/journal"
	"github.com/wolfs-fs/wolfs/internal/logger"
	"github.com/wolfs-fs/wolfs/internal/metadb"
	"github.com/wolfs-fs/wolfs/internal/pathtr"
	"github.com/wolfs-fs/wolfs/internal/prioq"
	"github.com/wolfs-fs/wolfs/internal/remote"
	"github.com/wolfs-fs/wolfs/internal/vfs"
	"github.com/wolfs-fs/wolfs/internal/wolfserr"
)

// Mount resolves c's three directories, constructs the cache/journal/vfs
// layers plus the FUSE dispatcher, and mounts the result at c.Mount. The
// returned MountedFileSystem must be joined by the caller to wait for
// unmount.
func Mount(ctx context.Context, c cfg.Config) (*fuse.MountedFileSystem, error) {
	tr, err := pathtr.New(pathtr.Roots{
		Source: string(c.Source),
		Cache:  string(c.Cache.Dir),
		Mount:  string(c.Mount),
	})
	if err != nil {
		return nil, &wolfserr.MountError{Dir: string(c.Mount), Err: fmt.Errorf("resolve roots: %w", err)}
	}

	inotr := inodetr.New()
	disk, err := cache.New(tr, inotr, c.Cache.MaxSizeMB, c.Cache.NoAtime, c.Cache.Threshold)
	if err != nil {
		return nil, &wolfserr.MountError{Dir: string(c.Mount), Err: fmt.Errorf("open cache: %w", err)}
	}

	rootInfo, err := os.Stat(tr.Source())
	if err != nil {
		return nil, &wolfserr.MountError{Dir: string(c.Mount), Err: fmt.Errorf("stat source root: %w", err)}
	}
	v := vfs.New(attrFromFileInfo(rootInfo))

	jrnl, err := journal.New(tr, v, disk, inotr, tr.Source())
	if err != nil {
		return nil, &wolfserr.MountError{Dir: string(c.Mount), Err: fmt.Errorf("open journal: %w", err)}
	}

	if err := restoreOrIndex(c, tr, inotr, v, disk); err != nil {
		return nil, &wolfserr.MountError{Dir: string(c.Mount), Err: fmt.Errorf("index source tree: %w", err)}
	}

	var rmt remote.Collaborator = remote.NoopCollaborator{}
	if c.Remote.Enabled {
		logger.Warnf("mount: remote.host %q configured but no wake-capable collaborator is wired in; falling back to NoopCollaborator", c.Remote.Host)
	}

	server := wolfsfs.New(c, tr, inotr, v, disk, jrnl, rmt)

	logger.Infof("mount: mounting %s at %s", tr.Source(), tr.Mount())
	mfs, err := fuse.Mount(tr.Mount(), fuseutil.NewFileSystemServer(server), fuseMountConfig(c))
	if err != nil {
		return nil, &wolfserr.MountError{Dir: string(c.Mount), Err: fmt.Errorf("fuse.Mount: %w", err)}
	}
	return mfs, nil
}

// fuseMountConfig mirrors gcsfuse's getFuseMountConfig: name the mount,
// wire jacobsa/fuse's loggers to wolfs' own, and turn on parallel
// directory operations since wolfs' single fs.mu already serializes the
// state mutations that matter.
func fuseMountConfig(c cfg.Config) *fuse.MountConfig {
	mc := &fuse.MountConfig{
		FSName:               "wolfs",
		Subtype:              "wolfs",
		VolumeName:           "wolfs",
		EnableParallelDirOps: true,
	}
	if c.Debug.FUSE {
		mc.ErrorLogger = logger.NewStdErrorLogger("fuse: ")
		mc.DebugLogger = logger.NewStdDebugLogger("fuse_debug: ")
	} else {
		mc.ErrorLogger = logger.NewStdErrorLogger("fuse: ")
	}
	return mc
}

// restoreOrIndex loads a persisted inode table from c.MetaDB.Path if one
// exists and looks usable, falling back to a fresh filesystem walk of the
// source tree. Grounded on the Python prototype's fsops.py
// populateInodeMaps: a missing or corrupt snapshot is not fatal, it just
// means mount pays the cost of re-indexing.
func restoreOrIndex(c cfg.Config, tr *pathtr.Translator, inotr *inodetr.Translator, v *vfs.VFS, disk *cache.Disk) error {
	if c.MetaDB.Path != "" {
		if entries, err := loadSnapshot(string(c.MetaDB.Path)); err == nil {
			q := restoreFromSnapshot(entries, inotr, v)
			if c.Cache.WarmOnMount {
				warmCache(disk, tr, q)
			}
			return nil
		} else {
			logger.Warnf("mount: snapshot unusable (%v), re-indexing %s", err, tr.Source())
		}
	}

	q, err := indexTree(tr, inotr, v)
	if err != nil {
		return err
	}
	if c.Cache.WarmOnMount {
		warmCache(disk, tr, q)
	}
	return nil
}

func loadSnapshot(path string) ([]metadb.Entry, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := metadb.Open(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return db.LoadAll()
}

// restoreFromSnapshot rebuilds the inode table and VFS tree from a persisted
// snapshot and returns a warm-pass candidate queue of every plain file it
// restored. It never marks anything cache-resident itself: a path only
// belongs in cachedInos once Cp2Cache (or Track on an actual copy) has put
// bytes under the cache tree, matching fsops.py's populateInodeMaps, which
// only path_to_ino's/addFilePath's during restore and leaves track() to the
// warm pass proper.
func restoreFromSnapshot(entries []metadb.Entry, inotr *inodetr.Translator, v *vfs.VFS) *prioq.Queue {
	q := prioq.New()
	for _, e := range entries {
		if e.Ino == inodetr.RootInode {
			continue
		}
		if _, err := inotr.PathToIno(e.Path, e.Ino); err != nil {
			logger.Warnf("mount: restoring inode %d (%s): %v", e.Ino, e.Path, err)
			continue
		}
		rec := &vfs.Record{Ino: e.Ino, Attr: e.Attr, IsDir: e.IsDir}
		v.Insert(rec)
		if !e.IsDir {
			q.Push(&prioq.Item{Path: e.Path, Timestamp: e.Attr.Mtime.Unix(), Size: int64(e.Attr.Size)})
		}
	}
	for _, e := range entries {
		if e.Ino == inodetr.RootInode {
			continue
		}
		parentPath := parentOf(e.Path)
		parentIno, ok := inotr.Lookup(parentPath)
		if !ok {
			continue
		}
		rec, ok := v.Get(e.Ino)
		if !ok {
			continue
		}
		if err := v.AddChild(parentIno, rec); err != nil {
			logger.Warnf("mount: linking %s under %s: %v", e.Path, parentPath, err)
		}
	}
	return q
}

// parentOf returns the wolfs-style ("/"-rooted) path of p's parent
// directory: parentOf("/a/b.txt") is "/a", parentOf("/a.txt") is "/".
func parentOf(p string) string {
	dir := filepath.Dir(filepath.ToSlash(p))
	if dir == "." {
		return "/"
	}
	return dir
}

// wolfsPath converts a filepath.Rel-relative path (no leading slash, "."
// for the root itself) into wolfs' "/"-rooted path convention.
func wolfsPath(rel string) string {
	return "/" + filepath.ToSlash(rel)
}

// indexTree walks the source tree, populating inotr/v for every entry found,
// and returns a warm-pass candidate queue of every plain file it saw.
// Mirrors fsops.py's populateInodeMaps: indexing only mints inodes and
// addFilePath's the VFS tree plus the transfer queue, it never calls
// track() — that happens later, only for files an actual copy lands for
// (cp2Cache) or a rebuild-from-TMP walk finds already resident.
func indexTree(tr *pathtr.Translator, inotr *inodetr.Translator, v *vfs.VFS) (*prioq.Queue, error) {
	root := tr.Source()
	q := prioq.New()
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		wp := wolfsPath(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		ino, err := inotr.PathToIno(wp, 0)
		if err != nil {
			return fmt.Errorf("indexing %s: %w", wp, err)
		}

		attr := attrFromFileInfo(info)
		rec := &vfs.Record{Ino: ino, Attr: attr, IsDir: d.IsDir()}
		v.Insert(rec)

		parentIno, ok := inotr.Lookup(parentOf(wp))
		if !ok {
			parentIno = inodetr.RootInode
		}
		if err := v.AddChild(parentIno, rec); err != nil {
			return fmt.Errorf("linking %s: %w", wp, err)
		}

		if !d.IsDir() {
			q.Push(&prioq.Item{Path: wp, Timestamp: attr.Mtime.Unix(), Size: int64(attr.Size)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// warmCache copies the most-recently-used files named in q into the cache
// until it reaches capacity, most-recent first. Grounded on fsops.py's
// copyRecentFilesIntoCache. q's paths are root-relative; Cp2Cache wants a
// path rooted in the source tree, so each is translated through tr.ToSrc
// before the copy.
func warmCache(disk *cache.Disk, tr *pathtr.Translator, q *prioq.Queue) {
	for !q.Empty() {
		if disk.IsFilledBy(1.0) {
			break
		}
		item, ok := q.Pop()
		if !ok {
			break
		}
		if _, err := disk.Cp2Cache(tr.ToSrc(item.Path), false, nil); err != nil {
			logger.Warnf("mount: warming %s: %v", item.Path, err)
		}
	}
}

func attrFromFileInfo(fi os.FileInfo) vfs.Attr {
	a := vfs.Attr{
		Size:  uint64(fi.Size()),
		Mode:  uint32(fi.Mode().Perm()),
		Mtime: fi.ModTime(),
		Atime: fi.ModTime(),
		Ctime: fi.ModTime(),
	}
	if fi.IsDir() {
		a.Mode |= 0o040000 // S_IFDIR
	} else {
		a.Mode |= 0o100000 // S_IFREG
	}
	return a
}
