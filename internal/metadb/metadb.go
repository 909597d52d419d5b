// Package metadb persists a snapshot of the inode table so a remount can
// skip re-indexing the source tree.
//
// Grounded on the Python prototype's src/fsops/fsops.py save_obj/load_obj
// (pickle.dump/pickle.load of vfs.inode_path_map) and
// save_internal_state/load_internal_state, falling back to an empty table
// on a missing or corrupt file. The storage backend is adapted from
// _examples/moby-moby's boltdb-backed metadata store idiom: a single
// embedded KV file (one bucket, inode number -> gob-encoded record) instead
// of a raw pickle blob, so a crash mid-write can't corrupt the whole table.
package metadb

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/wolfs-fs/wolfs/internal/inodetr"
	"github.com/wolfs-fs/wolfs/internal/vfs"
)

var bucketName = []byte("inodes")

// Entry is the serializable form of one vfs.Record: vfs.Record itself
// can't round-trip through gob because its directory/lookup-count fields
// are unexported on purpose (external packages have no business mutating
// them directly).
type Entry struct {
	Ino      inodetr.Inode
	Path     string
	IsDir    bool
	Attr     vfs.Attr
	Children []inodetr.Inode
}

// DB is a persisted inode-table snapshot store.
type DB struct {
	bolt *bbolt.DB
}

// Open opens (creating if necessary) the bbolt file at path.
func Open(path string) (*DB, error) {
	bdb, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("metadb: open %s: %w", path, err)
	}
	err = bdb.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("metadb: create bucket: %w", err)
	}
	return &DB{bolt: bdb}, nil
}

// Close releases the underlying file.
func (db *DB) Close() error {
	return db.bolt.Close()
}

func inoKey(ino inodetr.Inode) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(ino))
	return b
}

// SaveAll replaces the entire persisted snapshot with entries.
func (db *DB) SaveAll(entries []Entry) error {
	return db.bolt.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if err := tx.DeleteBucket(bucketName); err != nil {
			return err
		}
		bucket, err := tx.CreateBucket(bucketName)
		if err != nil {
			return err
		}
		for _, e := range entries {
			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(e); err != nil {
				return fmt.Errorf("metadb: encode ino %d: %w", e.Ino, err)
			}
			if err := bucket.Put(inoKey(e.Ino), buf.Bytes()); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadAll returns every persisted entry. A missing or empty database
// returns an empty, non-nil slice rather than an error, mirroring the
// prototype's load_internal_state falling back to {} on
// FileNotFoundError/EOFError.
func (db *DB) LoadAll() ([]Entry, error) {
	entries := []Entry{}
	err := db.bolt.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var e Entry
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&e); err != nil {
				return fmt.Errorf("metadb: decode ino key %x: %w", k, err)
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
