// Package resultcache is a sharded in-memory byte store with TTL expiry,
// used by the serving side to hold operation state and cached results.
package resultcache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Options tunes the store. Zero values pick safe defaults.
type Options struct {
	Shards        int           // shard count, default 64
	MaxBytes      uint64        // hard cap on total value bytes, 0 = unlimited
	SweepInterval time.Duration // expiry sweep period, default 500ms
}

func (o Options) withDefaults() Options {
	if o.Shards <= 0 {
		o.Shards = 64
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 500 * time.Millisecond
	}
	return o
}

type Store struct {
	opts    Options
	shards  []shard
	closeCh chan struct{}
	wg      sync.WaitGroup
	nowFn   func() time.Time

	mKeys    atomic.Uint64
	mBytes   atomic.Uint64
	mHits    atomic.Uint64
	mMisses  atomic.Uint64
	mExpired atomic.Uint64
}

type shard struct {
	mu sync.RWMutex
	m  map[string]entry
}

type entry struct {
	val      []byte
	expireAt int64 // unix nano, 0 = no expiry
}

func New(opts Options) *Store {
	opts = opts.withDefaults()
	s := &Store{
		opts:    opts,
		shards:  make([]shard, opts.Shards),
		closeCh: make(chan struct{}),
		nowFn:   time.Now,
	}
	for i := range s.shards {
		s.shards[i].m = make(map[string]entry)
	}
	s.wg.Add(1)
	go s.sweeper()
	return s
}

// Close stops the expiry sweeper.
func (s *Store) Close() {
	close(s.closeCh)
	s.wg.Wait()
}

func (s *Store) shardFor(key string) *shard {
	// FNV-1a 64
	var h uint64 = 1469598103934665603
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= 1099511628211
	}
	return &s.shards[int(h%uint64(len(s.shards)))]
}

// Set stores a copy of val under key with an optional TTL. Returns false if
// the write would exceed MaxBytes; the previous value, if any, is kept.
func (s *Store) Set(key string, val []byte, ttl time.Duration) bool {
	sh := s.shardFor(key)
	var expireAt int64
	if ttl > 0 {
		expireAt = s.nowFn().Add(ttl).UnixNano()
	}

	sh.mu.Lock()
	old, existed := sh.m[key]
	delta := uint64(len(val))
	if existed {
		delta -= uint64(len(old.val))
	}
	if s.opts.MaxBytes > 0 && s.mBytes.Load()+delta > s.opts.MaxBytes && len(val) > len(old.val) {
		sh.mu.Unlock()
		return false
	}
	cp := make([]byte, len(val))
	copy(cp, val)
	sh.m[key] = entry{val: cp, expireAt: expireAt}
	sh.mu.Unlock()

	if existed {
		s.mBytes.Add(^uint64(len(old.val) - 1))
	} else {
		s.mKeys.Add(1)
	}
	s.mBytes.Add(uint64(len(val)))
	return true
}

// Get returns a copy of the value, or ok=false if absent or expired.
func (s *Store) Get(key string) ([]byte, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.m[key]
	sh.mu.RUnlock()
	if !ok || s.expired(e) {
		s.mMisses.Add(1)
		return nil, false
	}
	s.mHits.Add(1)
	cp := make([]byte, len(e.val))
	copy(cp, e.val)
	return cp, true
}

// GetDel atomically returns and removes the value.
func (s *Store) GetDel(key string) ([]byte, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	e, ok := sh.m[key]
	if ok {
		delete(sh.m, key)
	}
	sh.mu.Unlock()
	if ok {
		s.account(-len(e.val), -1)
	}
	if !ok || s.expired(e) {
		s.mMisses.Add(1)
		return nil, false
	}
	s.mHits.Add(1)
	return e.val, true
}

// Delete removes a key. Returns true if it existed.
func (s *Store) Delete(key string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	e, ok := sh.m[key]
	if ok {
		delete(sh.m, key)
	}
	sh.mu.Unlock()
	if ok {
		s.account(-len(e.val), -1)
	}
	return ok
}

// Exists reports whether a live value is stored under key.
func (s *Store) Exists(key string) bool {
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.m[key]
	sh.mu.RUnlock()
	return ok && !s.expired(e)
}

// TTL returns the remaining lifetime of key, or ok=false if the key is
// absent, expired, or has no expiry.
func (s *Store) TTL(key string) (time.Duration, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.m[key]
	sh.mu.RUnlock()
	if !ok || e.expireAt == 0 || s.expired(e) {
		return 0, false
	}
	return time.Duration(e.expireAt - s.nowFn().UnixNano()), true
}

func (s *Store) expired(e entry) bool {
	return e.expireAt != 0 && s.nowFn().UnixNano() >= e.expireAt
}

func (s *Store) account(bytes, keys int) {
	if bytes < 0 {
		s.mBytes.Add(^uint64(-bytes - 1))
	} else {
		s.mBytes.Add(uint64(bytes))
	}
	if keys < 0 {
		s.mKeys.Add(^uint64(-keys - 1))
	} else if keys > 0 {
		s.mKeys.Add(uint64(keys))
	}
}

func (s *Store) sweeper() {
	defer s.wg.Done()
	t := time.NewTicker(s.opts.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-s.closeCh:
			return
		case <-t.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	now := s.nowFn().UnixNano()
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k, e := range sh.m {
			if e.expireAt != 0 && now >= e.expireAt {
				delete(sh.m, k)
				s.account(-len(e.val), -1)
				s.mExpired.Add(1)
			}
		}
		sh.mu.Unlock()
	}
}

// Metrics is a snapshot of the store counters.
type Metrics struct {
	Keys    uint64
	Bytes   uint64
	Hits    uint64
	Misses  uint64
	Expired uint64
}

func (s *Store) Metrics() Metrics {
	return Metrics{
		Keys:    s.mKeys.Load(),
		Bytes:   s.mBytes.Load(),
		Hits:    s.mHits.Load(),
		Misses:  s.mMisses.Load(),
		Expired: s.mExpired.Load(),
	}
}
