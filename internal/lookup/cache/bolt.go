package cache

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var boltBucket = []byte("fetches")

// Bolt is a file-backed Cache for the CLI, so repeated verifications of the
// same documents can run without network access.
type Bolt struct {
	db  *bbolt.DB
	now func() time.Time
}

// OpenBolt opens (or creates) the cache file at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache bucket: %w", err)
	}
	return &Bolt{db: db, now: time.Now}, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

// Entries are stored as an 8-byte big-endian unix-nano expiry (0 = never)
// followed by the value.
func (b *Bolt) Get(_ context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var found bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(boltBucket).Get([]byte(key))
		if len(raw) < 8 {
			return nil
		}
		exp := int64(binary.BigEndian.Uint64(raw[:8]))
		if exp != 0 && b.now().UnixNano() >= exp {
			return nil
		}
		value = append([]byte(nil), raw[8:]...)
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, found, nil
}

func (b *Bolt) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	raw := make([]byte, 8+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(raw[:8], uint64(b.now().Add(ttl).UnixNano()))
	}
	copy(raw[8:], value)
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(key), raw)
	})
}
