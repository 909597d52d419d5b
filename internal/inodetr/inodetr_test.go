package inodetr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootSeeded(t *testing.T) {
	tr := New()
	ino, err := tr.PathToIno("/", 0)
	require.NoError(t, err)
	assert.Equal(t, RootInode, ino)
	assert.Equal(t, "/", tr.InoToPath(RootInode))
}

func TestMintsIncreasingInodes(t *testing.T) {
	tr := New()
	a, err := tr.PathToIno("/a", 0)
	require.NoError(t, err)
	b, err := tr.PathToIno("/b", 0)
	require.NoError(t, err)
	assert.Greater(t, b, a)

	again, err := tr.PathToIno("/a", 0)
	require.NoError(t, err)
	assert.Equal(t, a, again)
}

func TestRemoveFreesInoForReuse(t *testing.T) {
	tr := New()
	a, err := tr.PathToIno("/a", 0)
	require.NoError(t, err)

	require.NoError(t, tr.Remove(a, "/a"))

	reused, err := tr.PathToIno("/renamed", a)
	require.NoError(t, err)
	assert.Equal(t, a, reused)
}

func TestReuseRejectsUnfreedIno(t *testing.T) {
	tr := New()
	a, err := tr.PathToIno("/a", 0)
	require.NoError(t, err)

	_, err = tr.PathToIno("/other", a)
	assert.Error(t, err)
}

func TestReuseRejectsInoLargerThanLast(t *testing.T) {
	tr := New()
	_, err := tr.PathToIno("/x", Inode(999))
	assert.Error(t, err)
}

func TestLookupDoesNotMint(t *testing.T) {
	tr := New()
	_, ok := tr.Lookup("/missing")
	assert.False(t, ok)

	a, err := tr.PathToIno("/a", 0)
	require.NoError(t, err)
	found, ok := tr.Lookup("/a")
	require.True(t, ok)
	assert.Equal(t, a, found)
}

func TestHardlinkAndSoftlinkDisabled(t *testing.T) {
	tr := New()
	err := tr.AddHardlink(RootInode, "/link")
	assert.Error(t, err)

	_, err = tr.AddSoftlink("/link", "/target")
	assert.Error(t, err)
}
