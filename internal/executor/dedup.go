package executor

import (
	"sync"
	"time"
)

// Dedup prevents the same order intent from being submitted more than once
// within a configurable time-to-live window. It is safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // action fingerprint -> last seen time
	ttl  time.Duration
	mu   sync.Mutex
}

// NewDedup creates a Dedup instance that considers an intent a duplicate if
// its fingerprint has been seen within the given ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// IsDuplicate returns true if the fingerprint has been seen within the TTL
// window. If it has not been seen (or has expired), it is recorded and false
// is returned.
func (d *Dedup) IsDuplicate(fingerprint string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if lastSeen, ok := d.seen[fingerprint]; ok {
		if now.Sub(lastSeen) < d.ttl {
			return true
		}
	}

	d.seen[fingerprint] = now
	return false
}

// Forget drops a recorded fingerprint so the same intent can be retried
// immediately, typically after the submission it guarded has failed.
func (d *Dedup) Forget(fingerprint string) {
	d.mu.Lock()
	delete(d.seen, fingerprint)
	d.mu.Unlock()
}

// Cleanup removes entries that have expired beyond the TTL. This should be
// called periodically to prevent unbounded memory growth.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for fp, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, fp)
		}
	}
}
