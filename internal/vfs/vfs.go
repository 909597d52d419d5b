// Package vfs is the in-memory directory and attribute store: the kernel's
// view of which inodes exist, their stat-like attributes, their children,
// and their FUSE lookup counts.
//
// Grounded on the Python prototype's libwolfs/vfs.py (VFS class) and
// libwolfs/fileInfo.py (FileInfo/DirInfo), with the lookup-count bookkeeping
// adapted from the teacher's fs/inode/lookup_count.go helper. VFS carries no
// internal lock of its own: internal/fs's single fs.mu serializes every
// call, matching the single-threaded-cooperative model both the prototype
// and spec §5 describe.
package vfs

import (
	"fmt"
	"sort"
	"time"

	"github.com/wolfs-fs/wolfs/internal/inodetr"
)

// Attr holds the stat-like attributes FUSE needs for GetInodeAttributes and
// directory entries. It deliberately avoids depending on fuseops types so
// this package stays usable outside a FUSE dispatch context (e.g. by the
// mount-time indexer); internal/fs converts to/from fuseops.InodeAttributes.
type Attr struct {
	Size  uint64
	Mode  uint32 // unix mode bits, including file-type bits
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
	UID   uint32
	GID   uint32
}

// dirData holds the fields only meaningful for a directory record.
type dirData struct {
	children []inodetr.Inode // always kept sorted by inode number
}

// lookupCount mirrors the teacher's fs/inode/lookup_count.go helper:
// destroy is invoked once the kernel's lookup references all drop to zero.
type lookupCount struct {
	count   uint64
	destroy func()
}

func (lc *lookupCount) inc() { lc.count++ }

func (lc *lookupCount) dec(n uint64) (destroyed bool) {
	if n > lc.count {
		panic(fmt.Sprintf("vfs: forget count %d exceeds lookup count %d", n, lc.count))
	}
	lc.count -= n
	if lc.count == 0 {
		lc.destroy()
		destroyed = true
	}
	return
}

// Record is the VFS's per-inode entry: a file's or directory's attributes,
// plus directory-only children when IsDir is true.
type Record struct {
	Ino   inodetr.Inode
	Attr  Attr
	IsDir bool

	dir *dirData
	lc  lookupCount
}

// Children returns the sorted child inode list of a directory record, or
// nil for a file record.
func (r *Record) Children() []inodetr.Inode {
	if r.dir == nil {
		return nil
	}
	return r.dir.children
}

// VFS is the live inode table.
type VFS struct {
	records map[inodetr.Inode]*Record
}

// New returns a VFS seeded with the root directory record.
func New(rootAttr Attr) *VFS {
	v := &VFS{records: make(map[inodetr.Inode]*Record)}
	root := &Record{
		Ino:   inodetr.RootInode,
		Attr:  rootAttr,
		IsDir: true,
		dir:   &dirData{},
	}
	v.records[inodetr.RootInode] = root
	return v
}

// Get returns the record for ino, if any.
func (v *VFS) Get(ino inodetr.Inode) (*Record, bool) {
	r, ok := v.records[ino]
	return r, ok
}

// Insert adds a brand-new record to the table without touching its lookup
// count; callers follow up with IncLookup once the kernel is actually
// handed the entry (mirrors vfs.py's add_path/_add_Directory sequence,
// which is invoked once per lookup reply).
func (v *VFS) Insert(rec *Record) {
	if rec.IsDir && rec.dir == nil {
		rec.dir = &dirData{}
	}
	v.records[rec.Ino] = rec
}

// IncLookup increments ino's FUSE lookup count by one.
func (v *VFS) IncLookup(ino inodetr.Inode) {
	r, ok := v.records[ino]
	if !ok {
		panic(fmt.Sprintf("vfs: IncLookup on unknown ino %d", ino))
	}
	r.lc.inc()
}

// Forget decrements ino's lookup count by n, removing the record from the
// table once the count reaches zero (the prototype's vfs.py forget coroutine,
// minus the asyncio wrapper — internal/fs awaits nothing here since VFS work
// never blocks).
func (v *VFS) Forget(ino inodetr.Inode, n uint64) (destroyed bool) {
	r, ok := v.records[ino]
	if !ok {
		return false
	}
	r.lc.destroy = func() { delete(v.records, ino) }
	return r.lc.dec(n)
}

// AddChild registers rec under parentIno's directory, inserting rec into
// the table if it is new and inc-ing its lookup count exactly once, then
// splicing rec.Ino into the parent's sorted children list. If rec.Ino is
// already among the parent's children it returns an error, after the
// lookup count has been bumped. Mirrors vfs.py's add_Child / _add_Directory.
func (v *VFS) AddChild(parentIno inodetr.Inode, rec *Record) error {
	if parentIno == rec.Ino {
		return fmt.Errorf("vfs: inode %d cannot be its own parent", rec.Ino)
	}
	parent, ok := v.records[parentIno]
	if !ok || !parent.IsDir {
		return fmt.Errorf("vfs: parent ino %d is not a known directory", parentIno)
	}

	if _, exists := v.records[rec.Ino]; !exists {
		v.Insert(rec)
	}
	v.IncLookup(rec.Ino)

	children := parent.dir.children
	idx := sort.Search(len(children), func(i int) bool { return children[i] >= rec.Ino })
	if idx < len(children) && children[idx] == rec.Ino {
		return fmt.Errorf("vfs: ino %d is already a child of %d", rec.Ino, parentIno)
	}
	children = append(children, 0)
	copy(children[idx+1:], children[idx:])
	children[idx] = rec.Ino
	parent.dir.children = children
	return nil
}

// RemoveChild splices childIno out of parentIno's children list. It does
// not touch the lookup count: the kernel still owns a reference until it
// sends Forget, matching FUSE unlink/rmdir semantics.
func (v *VFS) RemoveChild(parentIno, childIno inodetr.Inode) error {
	parent, ok := v.records[parentIno]
	if !ok || !parent.IsDir {
		return fmt.Errorf("vfs: parent ino %d is not a known directory", parentIno)
	}
	children := parent.dir.children
	idx := sort.Search(len(children), func(i int) bool { return children[i] >= childIno })
	if idx >= len(children) || children[idx] != childIno {
		return fmt.Errorf("vfs: ino %d is not a child of %d", childIno, parentIno)
	}
	parent.dir.children = append(children[:idx], children[idx+1:]...)
	return nil
}
