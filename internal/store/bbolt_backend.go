package store

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/reifydb/reifydb/internal/encoding"
)

// BoltBackend is a durable SingleVersionStore implementation backed by
// go.etcd.io/bbolt, played the way the teacher's DiskBackend
// (internal/storage/backend_disk.go) plays a durable alternative to the
// default in-memory mode: opt-in, same read/write contract, persisted
// across process restarts. Every key lives in a single bucket; bbolt
// already keeps keys in byte-lexicographic order, which matches
// EncodedKey's own ordering (spec.md §3.2) so range/prefix scans translate
// directly to bbolt cursor seeks.
type BoltBackend struct {
	db     *bolt.DB
	bucket []byte
}

var defaultBucket = []byte("reifydb")

// OpenBoltBackend opens (creating if necessary) a bbolt-backed store at path.
func OpenBoltBackend(path string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open bbolt backend: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(defaultBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init bbolt bucket: %w", err)
	}
	return &BoltBackend{db: db, bucket: defaultBucket}, nil
}

func (b *BoltBackend) Close() error { return b.db.Close() }

func (b *BoltBackend) Get(key encoding.EncodedKey) ([]byte, bool) {
	var out []byte
	_ = b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(b.bucket).Get(key.Bytes())
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, out != nil
}

func (b *BoltBackend) Set(key encoding.EncodedKey, val []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Put(key.Bytes(), val)
	})
}

func (b *BoltBackend) Remove(key encoding.EncodedKey) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Delete(key.Bytes())
	})
}

// Range yields entries with start <= key < end in ascending order via a
// bbolt cursor, mirroring SingleVersionStore.Range's contract.
func (b *BoltBackend) Range(start, end encoding.EncodedKey, yield func(Entry) bool) error {
	return b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(b.bucket).Cursor()
		var k, v []byte
		if start == nil {
			k, v = c.First()
		} else {
			k, v = c.Seek(start.Bytes())
		}
		for ; k != nil; k, v = c.Next() {
			if end != nil && encoding.Compare(k, end) >= 0 {
				break
			}
			kk := append(encoding.EncodedKey(nil), k...)
			vv := append([]byte(nil), v...)
			if !yield(Entry{Key: kk, Value: vv}) {
				break
			}
		}
		return nil
	})
}

// Prefix yields every entry whose key starts with prefix.
func (b *BoltBackend) Prefix(prefix encoding.EncodedKey, yield func(Entry) bool) error {
	return b.Range(prefix, prefixUpperBound(prefix), yield)
}
