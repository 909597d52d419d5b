package pathtr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_MissingDirFails(t *testing.T) {
	dir := t.TempDir()
	_, err := New(Roots{Source: dir, Cache: dir, Mount: dir + "/does-not-exist"})
	require.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	src := t.TempDir()
	cache := t.TempDir()
	mnt := t.TempDir()

	tr, err := New(Roots{Source: src, Cache: cache, Mount: mnt})
	require.NoError(t, err)

	assert.Equal(t, "/", tr.ToRoot(src))
	assert.Equal(t, "/a/b", tr.ToRoot(src+"/a/b"))
	assert.Equal(t, "/a/b", tr.ToRoot(cache+"/a/b"))
	assert.Equal(t, "/a/b", tr.ToRoot(mnt+"/a/b"))

	assert.Equal(t, src+"/a/b", tr.ToSrc(mnt+"/a/b"))
	assert.Equal(t, cache+"/a/b", tr.ToTmp(mnt+"/a/b"))
	assert.Equal(t, mnt+"/a/b", tr.ToMount(src+"/a/b"))
}

func TestParent(t *testing.T) {
	src := t.TempDir()
	cache := t.TempDir()
	mnt := t.TempDir()
	tr, err := New(Roots{Source: src, Cache: cache, Mount: mnt})
	require.NoError(t, err)

	assert.Equal(t, "/", tr.Parent(mnt+"/top.txt"))
	assert.Equal(t, "/a", tr.Parent(mnt+"/a/b.txt"))
}
