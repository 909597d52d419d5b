package fs

import (
	"os"
	"syscall"
	"time"

	"github.com/jacobsa/fuse/fuseops"

	"github.com/wolfs-fs/wolfs/internal/vfs"
)

// attrFromVFS converts a vfs.Attr (raw unix mode bits) into the
// fuseops.InodeAttributes shape the kernel expects (an os.FileMode, whose
// type bits don't share numeric values with S_IFDIR/S_IFLNK).
func attrFromVFS(a vfs.Attr) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:  a.Size,
		Nlink: 1,
		Mode:  unixModeToFileMode(a.Mode),
		Atime: a.Atime,
		Mtime: a.Mtime,
		Ctime: a.Ctime,
		Uid:   a.UID,
		Gid:   a.GID,
	}
}

// attrFromStat builds a vfs.Attr from a freshly lstat'd file, the form used
// whenever the dispatcher indexes a path it hasn't seen before.
func attrFromStat(fi os.FileInfo) vfs.Attr {
	a := vfs.Attr{
		Size:  uint64(fi.Size()),
		Mode:  uint32(fi.Mode().Perm()),
		Mtime: fi.ModTime(),
	}
	if fi.IsDir() {
		a.Mode |= syscall.S_IFDIR
	} else {
		a.Mode |= syscall.S_IFREG
	}

	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		a.UID = st.Uid
		a.GID = st.Gid
		a.Atime = time.Unix(st.Atim.Sec, st.Atim.Nsec)
		a.Mtime = time.Unix(st.Mtim.Sec, st.Mtim.Nsec)
		a.Ctime = time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
	}
	return a
}

// unixModeToFileMode translates raw unix mode bits (as stored in vfs.Attr
// and returned by syscall.Stat_t.Mode) into the os.FileMode type fuseops
// wants, since the two don't share a numeric encoding for the file-type
// bits.
func unixModeToFileMode(m uint32) os.FileMode {
	mode := os.FileMode(m & 0o7777)
	switch m & syscall.S_IFMT {
	case syscall.S_IFDIR:
		mode |= os.ModeDir
	case syscall.S_IFLNK:
		mode |= os.ModeSymlink
	}
	return mode
}
