package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfs-fs/wolfs/internal/inodetr"
)

func TestAddChildSortsAndRejectsDup(t *testing.T) {
	v := New(Attr{Mode: 0755})

	c1 := &Record{Ino: 3}
	c2 := &Record{Ino: 2}
	require.NoError(t, v.AddChild(inodetr.RootInode, c1))
	require.NoError(t, v.AddChild(inodetr.RootInode, c2))

	root, ok := v.Get(inodetr.RootInode)
	require.True(t, ok)
	assert.Equal(t, []inodetr.Inode{2, 3}, root.Children())

	err := v.AddChild(inodetr.RootInode, &Record{Ino: 2})
	assert.Error(t, err)
}

func TestAddChildRejectsSelfParent(t *testing.T) {
	v := New(Attr{})
	err := v.AddChild(inodetr.RootInode, &Record{Ino: inodetr.RootInode})
	assert.Error(t, err)
}

func TestForgetRemovesOnZero(t *testing.T) {
	v := New(Attr{})
	rec := &Record{Ino: 5}
	require.NoError(t, v.AddChild(inodetr.RootInode, rec))
	v.IncLookup(5)

	assert.False(t, v.Forget(5, 1))
	_, ok := v.Get(5)
	assert.True(t, ok)

	assert.True(t, v.Forget(5, 1))
	_, ok = v.Get(5)
	assert.False(t, ok)
}

func TestRemoveChild(t *testing.T) {
	v := New(Attr{})
	rec := &Record{Ino: 5}
	require.NoError(t, v.AddChild(inodetr.RootInode, rec))

	require.NoError(t, v.RemoveChild(inodetr.RootInode, 5))
	root, _ := v.Get(inodetr.RootInode)
	assert.Empty(t, root.Children())

	err := v.RemoveChild(inodetr.RootInode, 5)
	assert.Error(t, err)
}
