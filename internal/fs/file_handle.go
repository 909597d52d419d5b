package fs

import (
	"os"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"

	"github.com/wolfs-fs/wolfs/internal/inodetr"
	"github.com/wolfs-fs/wolfs/internal/logger"
)

// openFile is the refcounted entry behind every inode with at least one
// open fd. Spec §5 requires that two opens of the same inode share one
// descriptor rather than each OpenFile call doing its own os.Open, so the
// table here is keyed by inode instead of by handle: fileHandle below is
// the per-handle view kernel handles address, openFile is the underlying
// shared descriptor.
type openFile struct {
	fd       *os.File
	refcount int
}

type fileHandle struct {
	inode inodetr.Inode
}

// acquireOpenFile opens (or reuses) the shared descriptor for ino backed
// by path, bumping its refcount.
func (fs *FS) acquireOpenFile(ino inodetr.Inode, path string, flags int) (*os.File, error) {
	if of, ok := fs.openFiles[ino]; ok {
		of.refcount++
		return of.fd, nil
	}

	fd, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, err
	}
	fs.openFiles[ino] = &openFile{fd: fd, refcount: 1}
	return fd, nil
}

// registerOpenHandle mints a new kernel handle for an already-open fd
// (used by CreateFile, which both creates and opens in one op) and records
// the shared openFile entry for it.
func (fs *FS) registerOpenHandle(ino inodetr.Inode, fd *os.File) fuseops.HandleID {
	fs.openFiles[ino] = &openFile{fd: fd, refcount: 1}
	fs.nextHandle++
	handle := fs.nextHandle
	fs.fileHandles[handle] = &fileHandle{inode: ino}
	return handle
}

// releaseOpenFile drops one reference on ino's shared descriptor, closing
// it once the last handle referencing it is released. A Forget that arrived
// while the fd was still open was stashed in pendingForget rather than
// applied immediately (spec §9/§4.3: a record survives until both its
// lookup count and its open-fd count reach zero); once the fd count drops
// to zero that deferred decrement is finally applied here.
func (fs *FS) releaseOpenFile(ino inodetr.Inode) {
	of, ok := fs.openFiles[ino]
	if !ok {
		return
	}
	of.refcount--
	if of.refcount <= 0 {
		if err := of.fd.Close(); err != nil {
			logger.Warnf("fs: closing fd for ino %d: %v", ino, err)
		}
		delete(fs.openFiles, ino)

		if n, pending := fs.pendingForget[ino]; pending {
			delete(fs.pendingForget, ino)
			fs.vfs.Forget(ino, n)
		}
	}
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *FS) OpenFile(op *fuseops.OpenFileOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	rpath := fs.inotr.InoToPath(inodetr.Inode(op.Inode))
	if err = fs.ensureCached(op.Context(), rpath, false); err != nil {
		return
	}

	if _, err = fs.acquireOpenFile(inodetr.Inode(op.Inode), fs.tr.ToTmp(rpath), os.O_RDWR); err != nil {
		return
	}

	fs.nextHandle++
	op.Handle = fs.nextHandle
	fs.fileHandles[op.Handle] = &fileHandle{inode: inodetr.Inode(op.Inode)}
	return
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *FS) ReadFile(op *fuseops.ReadFileOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	h, ok := fs.fileHandles[op.Handle]
	if !ok {
		err = fuse.EIO
		return
	}
	of, ok := fs.openFiles[h.inode]
	if !ok {
		err = fuse.EIO
		return
	}

	buf := make([]byte, op.Size)
	n, rerr := of.fd.ReadAt(buf, op.Offset)
	// A short read below the requested size signals EOF to the kernel; an
	// error is only reported when nothing at all could be read.
	if rerr != nil && n == 0 {
		err = rerr
		return
	}
	op.Data = buf[:n]
	return
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *FS) WriteFile(op *fuseops.WriteFileOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	h, ok := fs.fileHandles[op.Handle]
	if !ok {
		err = fuse.EIO
		return
	}
	of, ok := fs.openFiles[h.inode]
	if !ok {
		err = fuse.EIO
		return
	}

	n, werr := of.fd.WriteAt(op.Data, op.Offset)
	if werr != nil {
		err = werr
		return
	}

	rpath := fs.inotr.InoToPath(h.inode)
	if rec, ok := fs.vfs.Get(h.inode); ok {
		end := uint64(op.Offset) + uint64(n)
		if end > rec.Attr.Size {
			rec.Attr.Size = end
		}
	}
	fs.jrnl.LogWrite(h.inode, rpath, op.Offset, int64(n))
	return
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *FS) FlushFile(op *fuseops.FlushFileOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.syncHandle(op.Handle)
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *FS) SyncFile(op *fuseops.SyncFileOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.syncHandle(op.Handle)
}

// syncHandle fsyncs a handle's shared descriptor. Shared between
// FlushFile and SyncFile, mirroring gcsfuse's fs.syncFile being the common
// path behind both legacy ops.
func (fs *FS) syncHandle(handle fuseops.HandleID) error {
	h, ok := fs.fileHandles[handle]
	if !ok {
		return fuse.EIO
	}
	of, ok := fs.openFiles[h.inode]
	if !ok {
		return fuse.EIO
	}
	return of.fd.Sync()
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *FS) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	h, ok := fs.fileHandles[op.Handle]
	if !ok {
		return
	}
	fs.releaseOpenFile(h.inode)
	delete(fs.fileHandles, op.Handle)
	return
}
