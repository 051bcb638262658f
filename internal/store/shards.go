package store

import (
	"hash/fnv"
	"sync"

	"go.uber.org/atomic"
)

const defaultShards = 16

type entry struct {
	value       []byte
	size        int64
	createdAtMs int64
	expiresAtMs int64
}

type shard struct {
	mu sync.RWMutex
	m  map[string]entry
}

// Options configures a store. CapacityBytes <= 0 means unbounded. Shards is
// rounded up to a power of two.
type Options struct {
	CapacityBytes int64
	Shards        int
	Clock         Clock
}

type shardedStore struct {
	shards   []*shard
	mask     uint32
	capacity int64
	clock    Clock
	total    atomic.Int64
	// evictMu serializes capacity evictions. Inserts that fit and all other
	// key operations never touch it.
	evictMu sync.Mutex
}

// New creates an empty store.
func New(opts Options) Store {
	n := opts.Shards
	if n <= 0 {
		n = defaultShards
	}
	n = nextPowerOfTwo(n)
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{m: make(map[string]entry)}
	}
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}
	return &shardedStore{
		shards:   shards,
		mask:     uint32(n - 1),
		capacity: opts.CapacityBytes,
		clock:    clock,
	}
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (s *shardedStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()&s.mask]
}

func (s *shardedStore) Get(key string) ([]byte, bool) {
	now := s.clock.NowMs()
	sh := s.shardFor(key)
	sh.mu.RLock()
	ent, ok := sh.m[key]
	sh.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if isExpired(ent.expiresAtMs, now) {
		s.reclaim(sh, key, now)
		return nil, false
	}
	out := make([]byte, len(ent.value))
	copy(out, ent.value)
	return out, true
}

func (s *shardedStore) Exists(key string) bool {
	now := s.clock.NowMs()
	sh := s.shardFor(key)
	sh.mu.RLock()
	ent, ok := sh.m[key]
	sh.mu.RUnlock()
	if !ok {
		return false
	}
	if isExpired(ent.expiresAtMs, now) {
		s.reclaim(sh, key, now)
		return false
	}
	return true
}

// reclaim removes key if it is still present and expired. The expiry is
// re-checked under the write lock because a concurrent Set may have replaced
// the entry since the caller observed it.
func (s *shardedStore) reclaim(sh *shard, key string, now int64) {
	sh.mu.Lock()
	if ent, ok := sh.m[key]; ok && isExpired(ent.expiresAtMs, now) {
		delete(sh.m, key)
		s.total.Sub(ent.size)
	}
	sh.mu.Unlock()
}

func (s *shardedStore) Set(key string, value []byte, expiresAtMs int64) error {
	size := int64(len(value))
	if s.capacity > 0 && size > s.capacity {
		return ErrValueTooLarge
	}
	now := s.clock.NowMs()
	buf := make([]byte, len(value))
	copy(buf, value)

	if s.tryInsert(key, buf, size, expiresAtMs, now) {
		return nil
	}

	// Over capacity: evictions are serialized so that concurrent oversized
	// inserts do not fight over the space each of them frees.
	s.evictMu.Lock()
	defer s.evictMu.Unlock()
	for {
		if s.tryInsert(key, buf, size, expiresAtMs, now) {
			return nil
		}
		if !s.evictOne(key, now) {
			return ErrValueTooLarge
		}
	}
}

// tryInsert installs the entry if it fits within capacity. The size counter
// is claimed with a CAS while the shard lock is held so that concurrent
// inserts into other shards cannot jointly overshoot the capacity bound.
func (s *shardedStore) tryInsert(key string, value []byte, size, expiresAtMs, now int64) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	old, ok := sh.m[key]
	delta := size
	createdAt := now
	if ok {
		delta -= old.size
		if !isExpired(old.expiresAtMs, now) {
			createdAt = old.createdAtMs
		}
	}
	if s.capacity > 0 {
		for {
			cur := s.total.Load()
			if cur+delta > s.capacity {
				return false
			}
			if s.total.CAS(cur, cur+delta) {
				break
			}
		}
	} else {
		s.total.Add(delta)
	}
	sh.m[key] = entry{value: value, size: size, createdAtMs: createdAt, expiresAtMs: expiresAtMs}
	return true
}

// evictOne frees space for an insert of skip. Expired entries found during
// the scan are reclaimed outright; if none were, the single best victim is
// removed: nearest expiration first, then oldest created among entries
// without an expiration. Each shard is locked only while it is scanned.
func (s *shardedStore) evictOne(skip string, now int64) bool {
	var (
		victimKey   string
		victimShard *shard
		victim      entry
		found       bool
		reclaimed   bool
	)
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, ent := range sh.m {
			if k == skip {
				continue
			}
			if isExpired(ent.expiresAtMs, now) {
				delete(sh.m, k)
				s.total.Sub(ent.size)
				reclaimed = true
				continue
			}
			if !found || evictBefore(ent, victim) {
				victimKey, victimShard, victim = k, sh, ent
				found = true
			}
		}
		sh.mu.Unlock()
	}
	if reclaimed {
		return true
	}
	if !found {
		return false
	}
	victimShard.mu.Lock()
	if ent, ok := victimShard.m[victimKey]; ok {
		delete(victimShard.m, victimKey)
		s.total.Sub(ent.size)
	}
	victimShard.mu.Unlock()
	return true
}

// evictBefore reports whether a should be evicted before b. Entries with an
// expiration always go before entries without one.
func evictBefore(a, b entry) bool {
	aExpires := a.expiresAtMs > 0
	bExpires := b.expiresAtMs > 0
	if aExpires != bExpires {
		return aExpires
	}
	if aExpires && a.expiresAtMs != b.expiresAtMs {
		return a.expiresAtMs < b.expiresAtMs
	}
	return a.createdAtMs < b.createdAtMs
}

func (s *shardedStore) Delete(key string) bool {
	now := s.clock.NowMs()
	sh := s.shardFor(key)
	sh.mu.Lock()
	ent, ok := sh.m[key]
	if ok {
		delete(sh.m, key)
		s.total.Sub(ent.size)
	}
	sh.mu.Unlock()
	// An expired entry is logically absent already, so removing it does not
	// count as a delete.
	return ok && !isExpired(ent.expiresAtMs, now)
}

func (s *shardedStore) Flush() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, ent := range sh.m {
			delete(sh.m, k)
			s.total.Sub(ent.size)
		}
		sh.mu.Unlock()
	}
}

func (s *shardedStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.m)
		sh.mu.RUnlock()
	}
	return n
}

func (s *shardedStore) Size() int64 {
	return s.total.Load()
}
