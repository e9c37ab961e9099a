package git

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/rohankatakam/defectset/internal/errors"
	"github.com/rohankatakam/defectset/internal/models"
)

var (
	filesBucket   = []byte("files")
	changesBucket = []byte("changes")
	linesBucket   = []byte("lines")
)

// CachedMiner memoises the per-commit answers of another miner in a bbolt
// file. Commit contents never change, so entries never expire. Ticket
// lookups depend on the current history and always go to the inner miner.
type CachedMiner struct {
	inner Miner
	db    *bolt.DB
}

// NewCachedMiner opens or creates the cache at path
func NewCachedMiner(inner Miner, path string) (*CachedMiner, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.FileSystemErrorf(err, "create cache directory")
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, errors.FileSystemErrorf(err, "open miner cache %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{filesBucket, changesBucket, linesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.FileSystemErrorf(err, "initialise miner cache")
	}
	return &CachedMiner{inner: inner, db: db}, nil
}

// Close releases the cache file
func (m *CachedMiner) Close() error {
	return m.db.Close()
}

func (m *CachedMiner) ListFiles(ctx context.Context, hash string) ([]string, error) {
	var files []string
	if m.get(filesBucket, []byte(hash), &files) {
		return files, nil
	}
	files, err := m.inner.ListFiles(ctx, hash)
	if err != nil {
		return nil, err
	}
	m.put(filesBucket, []byte(hash), files)
	return files, nil
}

func (m *CachedMiner) ChangedFiles(ctx context.Context, hash string) ([]models.ChangedFile, error) {
	var changed []models.ChangedFile
	if m.get(changesBucket, []byte(hash), &changed) {
		return changed, nil
	}
	changed, err := m.inner.ChangedFiles(ctx, hash)
	if err != nil {
		return nil, err
	}
	m.put(changesBucket, []byte(hash), changed)
	return changed, nil
}

func (m *CachedMiner) CommitsForTicket(ctx context.Context, key string, until time.Time) ([]models.Commit, error) {
	return m.inner.CommitsForTicket(ctx, key, until)
}

func (m *CachedMiner) FileLines(ctx context.Context, hash, path string) (int, error) {
	k := []byte(hash + ":" + path)
	var lines int
	if m.get(linesBucket, k, &lines) {
		return lines, nil
	}
	lines, err := m.inner.FileLines(ctx, hash, path)
	if err != nil {
		return 0, err
	}
	m.put(linesBucket, k, lines)
	return lines, nil
}

// get decodes a cached value into v. A miss or an undecodable entry reports false.
func (m *CachedMiner) get(bucket, key []byte, v interface{}) bool {
	found := false
	_ = m.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return bolt.ErrBucketNotFound
		}
		data := b.Get(key)
		if data == nil {
			return nil
		}
		found = json.Unmarshal(data, v) == nil
		return nil
	})
	return found
}

// put stores v. Write failures are ignored.
func (m *CachedMiner) put(bucket, key []byte, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, data)
	})
}

// Stats returns the number of cached entries per bucket
func (m *CachedMiner) Stats() map[string]int {
	out := make(map[string]int)
	_ = m.db.View(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{filesBucket, changesBucket, linesBucket} {
			out[string(name)] = tx.Bucket(name).Stats().KeyN
		}
		return nil
	})
	return out
}
