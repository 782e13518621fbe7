package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func tempCache(t *testing.T, ttlDays int) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), ttlDays)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestSetThenGet(t *testing.T) {
	c := tempCache(t, 7)
	key := Key("https://example.com/page")

	if err := c.Set(key, "payload"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected hit immediately after set")
	}
	if got != "payload" {
		t.Fatalf("expected payload, got %q", got)
	}
}

func TestTTLExpiryDeletesEntry(t *testing.T) {
	c := tempCache(t, 7)
	key := Key("https://example.com/stale")

	if err := c.Set(key, "old"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Advance the clock past ttl_days + 1.
	c.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }

	if _, ok := c.Get(key); ok {
		t.Fatal("expected miss after TTL elapsed")
	}
	if _, err := os.Stat(c.path(key)); !os.IsNotExist(err) {
		t.Fatal("expired entry must be removed from disk")
	}
}

func TestNoSlidingExpiry(t *testing.T) {
	c := tempCache(t, 2)
	key := Key("https://example.com/read-often")
	if err := c.Set(key, "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Repeated reads inside the TTL must not extend it.
	base := time.Now()
	c.now = func() time.Time { return base.Add(40 * time.Hour) }
	if _, ok := c.Get(key); !ok {
		t.Fatal("expected hit inside TTL")
	}
	c.now = func() time.Time { return base.Add(49 * time.Hour) }
	if _, ok := c.Get(key); ok {
		t.Fatal("TTL must be absolute from cached_at, not sliding")
	}
}

func TestCorruptEntryIsMiss(t *testing.T) {
	c := tempCache(t, 7)
	key := Key("https://example.com/corrupt")

	if err := os.WriteFile(c.path(key), []byte("not json"), 0o644); err != nil {
		t.Fatalf("write corrupt entry: %v", err)
	}
	if _, ok := c.Get(key); ok {
		t.Fatal("corrupt entry must read as a miss")
	}
	if _, err := os.Stat(c.path(key)); !os.IsNotExist(err) {
		t.Fatal("corrupt entry must be deleted")
	}
}

func TestSetOverwrites(t *testing.T) {
	c := tempCache(t, 7)
	key := Key("https://example.com/page")
	if err := c.Set(key, "first"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Set(key, "second"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, _ := c.Get(key)
	if got != "second" {
		t.Fatalf("expected overwrite, got %q", got)
	}
}

func TestHitRate(t *testing.T) {
	c := tempCache(t, 7)
	key := Key("https://example.com/page")

	c.Get(key) // miss
	if err := c.Set(key, "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	c.Get(key) // hit

	hits, misses := c.Counts()
	if hits != 1 || misses != 1 {
		t.Fatalf("expected 1 hit 1 miss, got %d/%d", hits, misses)
	}
	if rate := c.HitRate(); rate != 0.5 {
		t.Fatalf("expected hit rate 0.5, got %v", rate)
	}
}

func TestClear(t *testing.T) {
	c := tempCache(t, 7)
	for _, u := range []string{"a", "b", "c"} {
		if err := c.Set(Key(u), u); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty cache dir, found %d entries", len(entries))
	}
	if _, ok := c.Get(Key("a")); ok {
		t.Fatal("expected miss after clear")
	}
}

func TestLockKeySerializesWriters(t *testing.T) {
	c := tempCache(t, 7)
	key := Key("https://example.com/page")

	unlock := c.LockKey(key)
	done := make(chan struct{})
	go func() {
		u := c.LockKey(key)
		u()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second writer acquired the key lock while held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second writer never acquired the lock")
	}
}

func TestKeyIsStable(t *testing.T) {
	if Key("https://example.com") != Key("https://example.com") {
		t.Fatal("key must be deterministic")
	}
	if Key("a") == Key("b") {
		t.Fatal("distinct identities must hash to distinct keys")
	}
	if filepath.Base(Key("a")) != Key("a") {
		t.Fatal("key must be a bare filename component")
	}
}
