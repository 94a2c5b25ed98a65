package ttlcache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type chatMessageKey struct {
	ChatID    int64
	MessageID int64
}

func TestPutContains(t *testing.T) {
	t.Parallel()

	c := New[chatMessageKey]()
	key := chatMessageKey{ChatID: -100123, MessageID: 42}
	if c.Contains(key) {
		t.Fatal("Contains() = true before Put")
	}
	c.Put(key, time.Now())
	if !c.Contains(key) {
		t.Fatal("Contains() = false after Put")
	}
	if c.Contains(chatMessageKey{ChatID: -100123, MessageID: 43}) {
		t.Fatal("Contains() = true for different message id")
	}
}

func TestSweepTTLBoundary(t *testing.T) {
	t.Parallel()

	const ttl = time.Hour
	base := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

	c := New[string]()
	c.Put("txn-555", base)

	// Just inside the TTL: entry survives.
	if removed := c.Sweep(base.Add(ttl-time.Second), ttl); removed != 0 {
		t.Fatalf("Sweep() removed %d before expiry, want 0", removed)
	}
	if !c.Contains("txn-555") {
		t.Fatal("entry evicted before TTL elapsed")
	}

	// Exactly at the TTL: still kept.
	if removed := c.Sweep(base.Add(ttl), ttl); removed != 0 {
		t.Fatalf("Sweep() removed %d at exact TTL, want 0", removed)
	}

	// Past the TTL: gone.
	if removed := c.Sweep(base.Add(ttl+time.Second), ttl); removed != 1 {
		t.Fatalf("Sweep() removed %d after expiry, want 1", removed)
	}
	if c.Contains("txn-555") {
		t.Fatal("entry survived past TTL")
	}
}

func TestSweepMixedAges(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	c := New[int]()
	c.Put(1, base.Add(-25*time.Hour))
	c.Put(2, base.Add(-23*time.Hour))
	c.Put(3, base)

	if removed := c.Sweep(base, 24*time.Hour); removed != 1 {
		t.Fatalf("Sweep() removed %d, want 1", removed)
	}
	if c.Contains(1) {
		t.Fatal("stale entry kept")
	}
	if !c.Contains(2) || !c.Contains(3) {
		t.Fatal("fresh entry evicted")
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
}

func TestPutIfAbsent(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	c := New[string]()

	if !c.PutIfAbsent("txn-555", base) {
		t.Fatal("PutIfAbsent() = false for fresh key")
	}
	if c.PutIfAbsent("txn-555", base.Add(time.Minute)) {
		t.Fatal("PutIfAbsent() = true for present key")
	}

	// The losing call must not refresh the winner's timestamp.
	if removed := c.Sweep(base.Add(time.Hour+time.Second), time.Hour); removed != 1 {
		t.Fatalf("Sweep() removed %d, want 1 (original timestamp kept)", removed)
	}
	if !c.PutIfAbsent("txn-555", base.Add(2*time.Hour)) {
		t.Fatal("PutIfAbsent() = false after the entry was swept")
	}
}

func TestPutIfAbsentSingleWinner(t *testing.T) {
	t.Parallel()

	c := New[string]()
	now := time.Now()

	const goroutines = 32
	var (
		wg   sync.WaitGroup
		wins atomic.Int64
	)
	start := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for round := 0; round < 500; round++ {
				if c.PutIfAbsent("txn-555", now) {
					wins.Add(1)
				}
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("PutIfAbsent() claimed by %d callers, want exactly 1", got)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}

func TestPutRefreshesTimestamp(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	c := New[string]()
	c.Put("a", base.Add(-2*time.Hour))
	c.Put("a", base)

	if removed := c.Sweep(base, time.Hour); removed != 0 {
		t.Fatalf("Sweep() removed %d after refresh, want 0", removed)
	}
}
