package cache

// #region imports
import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// #endregion

// #region entry
// Entry is one cached network-verification payload. TTL is absolute from
// CachedAt; there is no sliding expiry.
type Entry struct {
	Key      string    `json:"key"`
	CachedAt time.Time `json:"cached_at"`
	Payload  string    `json:"payload"`
	TTLDays  int       `json:"ttl_days"`
}

// #endregion entry

// #region cache-struct
// Cache is a file-backed TTL key-value cache for network fetch results.
// One file per key under dir; clearing the directory clears the cache.
// Safe for concurrent reads; writers to the same key serialize on a
// per-key lock so duplicate in-flight fetches do not race.
type Cache struct {
	dir     string
	ttlDays int
	now     func() time.Time

	mu       sync.Mutex
	hits     int64
	misses   int64
	keyLocks map[string]*sync.Mutex
}

// New creates the cache directory if needed and returns a cache whose
// entries expire after ttlDays.
func New(dir string, ttlDays int) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{
		dir:      dir,
		ttlDays:  ttlDays,
		now:      time.Now,
		keyLocks: make(map[string]*sync.Mutex),
	}, nil
}

// #endregion cache-struct

// #region key
// Key hashes a request identity (typically a URL) into a cache key.
func Key(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])
}

// #endregion key

// #region get
// Get returns the cached payload for key if present and unexpired.
// Expired and unreadable entries are deleted and reported as misses;
// corruption is never fatal.
func (c *Cache) Get(key string) (string, bool) {
	path := c.path(key)

	data, err := os.ReadFile(path)
	if err != nil {
		c.count(false)
		return "", false
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		os.Remove(path)
		c.count(false)
		return "", false
	}

	age := c.now().Sub(e.CachedAt)
	if age >= time.Duration(e.TTLDays)*24*time.Hour {
		os.Remove(path)
		c.count(false)
		return "", false
	}

	c.count(true)
	return e.Payload, true
}

// #endregion get

// #region set
// Set stores payload under key, always overwriting.
func (c *Cache) Set(key, payload string) error {
	e := Entry{
		Key:      key,
		CachedAt: c.now(),
		Payload:  payload,
		TTLDays:  c.ttlDays,
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := os.WriteFile(c.path(key), data, 0o644); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// #endregion set

// #region key-lock
// LockKey serializes writers for one key. The returned func releases
// the lock.
func (c *Cache) LockKey(key string) func() {
	c.mu.Lock()
	l, ok := c.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		c.keyLocks[key] = l
	}
	c.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// #endregion key-lock

// #region stats
// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (c *Cache) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// Counts returns the raw hit and miss counters.
func (c *Cache) Counts() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// #endregion stats

// #region clear
// Clear removes every entry file in the cache directory.
func (c *Cache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("read cache dir: %w", err)
	}
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, de.Name())); err != nil {
			return fmt.Errorf("remove cache entry: %w", err)
		}
	}
	return nil
}

// #endregion clear

// #region helpers
func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

func (c *Cache) count(hit bool) {
	c.mu.Lock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()
}

// #endregion helpers
