package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const cacheBucket = "embeddings"

// BoltCache memoizes embeddings on disk, keyed by model and text, so re-indexing
// unchanged symbols does not pay for the same vector twice
type BoltCache struct {
	db    *bolt.DB
	model string
	inner Embedder
}

// OpenBoltCache opens (creating if needed) the cache file at path
func OpenBoltCache(path, model string, inner Embedder) (*BoltCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(cacheBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}
	return &BoltCache{db: db, model: model, inner: inner}, nil
}

// Close closes the cache file
func (c *BoltCache) Close() error {
	return c.db.Close()
}

func (c *BoltCache) key(text string) []byte {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return []byte(hex.EncodeToString(sum[:]))
}

// Embed returns the cached vector for text or computes and stores it
func (c *BoltCache) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if vec, ok := c.get(key); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.put(key, vec); err != nil {
		return nil, fmt.Errorf("store embedding: %w", err)
	}
	return vec, nil
}

func (c *BoltCache) get(key []byte) ([]float32, bool) {
	var vec []float32
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(cacheBucket)).Get(key)
		if data == nil {
			return bolt.ErrBucketNotFound
		}
		return json.Unmarshal(data, &vec)
	})
	return vec, err == nil
}

func (c *BoltCache) put(key []byte, vec []float32) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(vec)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(cacheBucket)).Put(key, data)
	})
}
