package fs

import (
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/wolfs-fs/wolfs/internal/inodetr"
)

// dirHandle snapshots a directory's children at OpenDir time, mirroring
// gcsfuse's dirHandle: readdir(2) and friends expect a stable listing for
// the duration of one open/read/release cycle even if the tree mutates
// concurrently.
type dirHandle struct {
	inode   inodetr.Inode
	entries []fuseops.Dirent
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *FS) OpenDir(op *fuseops.OpenDirOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	rec, ok := fs.vfs.Get(inodetr.Inode(op.Inode))
	if !ok {
		err = fuse.ENOENT
		return
	}
	if !rec.IsDir {
		err = fuse.ENOTDIR
		return
	}

	entries := make([]fuseops.Dirent, 0, len(rec.Children())+2)
	entries = append(entries,
		fuseops.Dirent{Offset: 1, Inode: op.Inode, Name: ".", Type: fuseutil.DT_Directory},
		fuseops.Dirent{Offset: 2, Inode: fuseops.InodeID(inodetr.RootInode), Name: "..", Type: fuseutil.DT_Directory},
	)
	for i, child := range rec.Children() {
		childRec, ok := fs.vfs.Get(child)
		if !ok {
			continue
		}
		dtype := fuseutil.DT_File
		if childRec.IsDir {
			dtype = fuseutil.DT_Directory
		}
		path := fs.inotr.InoToPath(child)
		name := path[lastSlash(path)+1:]
		entries = append(entries, fuseops.Dirent{
			Offset: fuseops.DirOffset(i + 3),
			Inode:  fuseops.InodeID(child),
			Name:   name,
			Type:   dtype,
		})
	}

	h := &dirHandle{inode: inodetr.Inode(op.Inode), entries: entries}
	fs.nextHandle++
	op.Handle = fs.nextHandle
	fs.dirHandles[op.Handle] = h
	return
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *FS) ReadDir(op *fuseops.ReadDirOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	h, ok := fs.dirHandles[op.Handle]
	if !ok {
		err = fuse.EIO
		return
	}

	n := 0
	for _, d := range h.entries {
		if int(d.Offset) <= int(op.Offset) {
			continue
		}
		written := fuseutil.WriteDirent(op.Dst[n:], d)
		if written == 0 {
			break
		}
		n += written
	}
	op.BytesRead = n
	return
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *FS) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	delete(fs.dirHandles, op.Handle)
	return
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}
