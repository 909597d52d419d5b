// Package inodetr assigns and reclaims inode numbers for root-relative
// paths. Grounded on the Python prototype's libwolfs/translator.py
// InodeTranslator: a bijective path<->inode map, a free-list of retired
// inode numbers available for reuse (rename relies on this), and a
// path-set per inode to model the hardlink case even though wolfs
// currently refuses to create hardlinks (ErrHardlinkDisabled).
//
// Translator has no internal lock: the single fs.mu held by internal/fs
// around every operation serializes all access, mirroring the
// single-threaded-cooperative model of the original implementation.
package inodetr

import (
	"fmt"

	"github.com/wolfs-fs/wolfs/internal/wolfserr"
)

// Inode is a FUSE inode number.
type Inode uint64

// RootInode is the fixed inode number of the mount's root directory,
// matching both the Python prototype's DiskBase.ROOT_INODE and
// fuseops.RootInodeID.
const RootInode Inode = 1

// Translator is a bijective map between root-relative paths and inode
// numbers, widened to a path set per inode to accommodate hardlinks.
type Translator struct {
	pathToIno map[string]Inode
	inoToPath map[Inode]map[string]struct{}
	freed     map[Inode]struct{}
	lastIno   Inode
}

// New returns a Translator with only the root path mapped to RootInode.
func New() *Translator {
	t := &Translator{
		pathToIno: make(map[string]Inode),
		inoToPath: make(map[Inode]map[string]struct{}),
		freed:     make(map[Inode]struct{}),
		lastIno:   RootInode,
	}
	t.pathToIno["/"] = RootInode
	t.inoToPath[RootInode] = map[string]struct{}{"/": {}}
	return t
}

// PathToIno returns the inode for path, minting a new one if path is
// unseen. If reuseIno is non-zero the caller (a rename) requests that
// specific, previously-freed inode number be reassigned to path instead of
// minting a fresh one.
func (t *Translator) PathToIno(path string, reuseIno Inode) (Inode, error) {
	if ino, ok := t.pathToIno[path]; ok {
		return ino, nil
	}

	var ino Inode
	switch {
	case reuseIno != 0:
		if reuseIno > t.lastIno {
			return 0, fmt.Errorf("reused ino %d is larger than largest minted ino %d", reuseIno, t.lastIno)
		}
		if _, ok := t.freed[reuseIno]; !ok {
			return 0, fmt.Errorf("reused ino %d is not in the freed set", reuseIno)
		}
		ino = reuseIno
		delete(t.freed, reuseIno)
	default:
		t.lastIno++
		ino = t.lastIno
	}

	t.pathToIno[path] = ino
	if t.inoToPath[ino] == nil {
		t.inoToPath[ino] = make(map[string]struct{})
	}
	t.inoToPath[ino][path] = struct{}{}
	return ino, nil
}

// Lookup returns the inode already mapped to path, without minting one if
// absent.
func (t *Translator) Lookup(path string) (Inode, bool) {
	ino, ok := t.pathToIno[path]
	return ino, ok
}

// InoToPath returns one of the paths backing ino, for the common
// single-path case. It panics if ino is unknown, mirroring the prototype's
// assertion that ino_to_rpath is never called on a stale inode.
func (t *Translator) InoToPath(ino Inode) string {
	paths, ok := t.inoToPath[ino]
	if !ok || len(paths) == 0 {
		panic(fmt.Sprintf("inodetr: ino %d has no known path", ino))
	}
	for p := range paths {
		return p
	}
	panic("unreachable")
}

// Paths returns every root-relative path currently mapped to ino.
func (t *Translator) Paths(ino Inode) map[string]struct{} {
	return t.inoToPath[ino]
}

// Remove unlinks path from ino's path set. When that was the last path for
// ino, the inode number itself is retired into the freed set for later
// reuse by a rename.
func (t *Translator) Remove(ino Inode, path string) error {
	got, ok := t.pathToIno[path]
	if !ok || got != ino {
		return fmt.Errorf("inodetr: path %q is not mapped to ino %d", path, ino)
	}

	delete(t.pathToIno, path)
	paths := t.inoToPath[ino]
	delete(paths, path)
	if len(paths) == 0 {
		delete(t.inoToPath, ino)
		t.freed[ino] = struct{}{}
	}
	return nil
}

// AddHardlink would widen ino's path set to include a second path. Disabled:
// wolfs models the multi-path shape in its data structures but does not
// support creating additional hardlinks yet.
func (t *Translator) AddHardlink(ino Inode, path string) error {
	return wolfserr.ErrHardlinkDisabled
}

// AddSoftlink would mint a new inode for a symlink entry. Disabled: wolfs
// does not currently assign inodes to synthetic softlinks.
func (t *Translator) AddSoftlink(linkPath, target string) (Inode, error) {
	return 0, wolfserr.ErrSoftlinkDisabled
}
