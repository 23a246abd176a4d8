package collector

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"bakery/internal/common"
	"bakery/internal/models"
)

const itemsBucket = "work_items"

// Cache records every assembled work item in a local bbolt database so
// repeat fetches can be inspected without hitting the API.
type Cache struct {
	db *bolt.DB
}

// CachedItem wraps an assembled record with fetch bookkeeping
type CachedItem struct {
	ID           int              `json:"id"`
	Title        string           `json:"title"`
	State        string           `json:"state"`
	FetchCount   int              `json:"fetch_count"`
	FirstFetched time.Time        `json:"first_fetched"`
	LastFetched  time.Time        `json:"last_fetched"`
	Item         *models.WorkItem `json:"item"`
}

func OpenCache(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, common.NewStorageError("failed to create cache directory").WithCause(err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, common.NewStorageError(fmt.Sprintf("failed to open cache at %s", path)).WithCause(err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(itemsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, common.NewStorageError("failed to create cache bucket").WithCause(err)
	}

	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Put stores an assembled item, bumping the fetch counter and preserving
// the first-fetched timestamp on re-fetches.
func (c *Cache) Put(item *models.WorkItem) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(itemsBucket))
		key := cacheKey(item.ID)
		now := time.Now().UTC()

		cached := CachedItem{
			ID:           item.ID,
			Title:        item.Title,
			State:        item.State,
			FetchCount:   1,
			FirstFetched: now,
			LastFetched:  now,
			Item:         item,
		}

		if existing := bucket.Get(key); existing != nil {
			var previous CachedItem
			if err := json.Unmarshal(existing, &previous); err == nil {
				cached.FetchCount = previous.FetchCount + 1
				cached.FirstFetched = previous.FirstFetched
			}
		}

		data, err := json.Marshal(cached)
		if err != nil {
			return fmt.Errorf("failed to marshal work item %d: %w", item.ID, err)
		}
		return bucket.Put(key, data)
	})
}

// Get returns the cached record for one ticket id, or nil when absent
func (c *Cache) Get(id int) (*CachedItem, error) {
	var cached *CachedItem

	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(itemsBucket)).Get(cacheKey(id))
		if data == nil {
			return nil
		}
		var item CachedItem
		if err := json.Unmarshal(data, &item); err != nil {
			return err
		}
		cached = &item
		return nil
	})

	return cached, err
}

// List returns all cached records ordered by ticket id
func (c *Cache) List() ([]*CachedItem, error) {
	var items []*CachedItem

	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(itemsBucket)).ForEach(func(_, v []byte) error {
			var item CachedItem
			if err := json.Unmarshal(v, &item); err != nil {
				return nil
			}
			items = append(items, &item)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func cacheKey(id int) []byte {
	return []byte(fmt.Sprintf("%010d", id))
}
