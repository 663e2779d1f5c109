package cache

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var resultsBucket = []byte("results")

// BoltCache stores entries in a bbolt database with a per-entry expiry.
// Values are prefixed with an 8-byte big-endian unix-nano deadline; expired
// entries read as absent and are deleted lazily. Runtime errors degrade to
// absent rather than surfacing to the caller.
type BoltCache struct {
	db     *bolt.DB
	logger *zap.Logger
	now    func() time.Time
}

// OpenBolt opens or creates the cache database at path. The caller decides
// what to do when opening fails; the usual choice is falling back to Noop so
// queries proceed uncached.
func OpenBolt(path string, logger *zap.Logger) (*BoltCache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(resultsBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltCache{db: db, logger: logger, now: time.Now}, nil
}

// Get returns the cached value for key, or absent when the key is missing,
// expired, or the backend errors.
func (c *BoltCache) Get(ctx context.Context, key string) ([]byte, bool) {
	var value []byte
	var expired bool
	err := c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(resultsBucket).Get([]byte(key))
		if raw == nil || len(raw) < 8 {
			return nil
		}
		deadline := int64(binary.BigEndian.Uint64(raw[:8]))
		if c.now().UnixNano() >= deadline {
			expired = true
			return nil
		}
		value = append([]byte(nil), raw[8:]...)
		return nil
	})
	if err != nil {
		c.logger.Warn("cache get failed, treating as miss", zap.Error(err))
		return nil, false
	}
	if expired {
		// Lazy delete; a failure here only leaves a dead entry behind.
		_ = c.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(resultsBucket).Delete([]byte(key))
		})
		return nil, false
	}
	if value == nil {
		return nil, false
	}
	return value, true
}

// Set stores value under key for ttl. Errors are logged and swallowed; a
// failed write only costs a recomputation later.
func (c *BoltCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	deadline := c.now().Add(ttl).UnixNano()
	raw := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(raw[:8], uint64(deadline))
	copy(raw[8:], value)
	if err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(resultsBucket).Put([]byte(key), raw)
	}); err != nil {
		c.logger.Warn("cache set failed", zap.Error(err))
	}
}

// Close closes the underlying database.
func (c *BoltCache) Close() error { return c.db.Close() }
