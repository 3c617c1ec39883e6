package rxcache

import (
	"math"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/oskarlin/rxcache/internal/rxconfig"
	"github.com/oskarlin/rxcache/internal/rxhash"
)

// patternIndex is the concurrent container behind PatternCache. It
// never decides what to evict on its own; PatternCache's TTL and LRU
// passes are the only eviction authority. Every method that can race
// against eviction (getRef, evictIfUnreferenced) does its refcount
// check and its map mutation under the SAME critical section: a
// lookup that increments refcount, and a sweep that checks refcount
// before deleting, must never interleave, or the sweep could free a
// handle the instant after a caller decided to hand it out.
type patternIndex interface {
	// getRef looks up key and, if present, increments its refcount
	// before releasing the index's internal lock. This is the
	// invariant that makes concurrent GetOrCompile and eviction safe:
	// the refcount bump and the lookup are atomic with respect to the
	// sweep's delete.
	getRef(key rxhash.Key) (*PatternHandle, bool)
	// peek looks a key up without touching refcount, used only by the
	// singleflight double-check where the caller is about to AddRef
	// uniformly for every waiter regardless of who executed the Do.
	peek(key rxhash.Key) (*PatternHandle, bool)
	set(key rxhash.Key, h *PatternHandle)
	// evictIfUnreferenced removes key only if its current refcount is
	// zero, atomically with the check, and reports whether it did.
	evictIfUnreferenced(key rxhash.Key) (*PatternHandle, bool)
	// forceDelete removes key regardless of refcount, used when a TTL
	// pass hands a still-referenced entry off to the deferred tier.
	forceDelete(key rxhash.Key) (*PatternHandle, bool)
	len() int
	// oldestFirst returns every key currently indexed, ordered oldest
	// access first where the flavor can do so cheaply; rwmutexIndex
	// sorts by the handle's own Touch timestamp, lruShardIndex relies
	// on the underlying container's intrinsic order.
	oldestFirst() []rxhash.Key
}

func newPatternIndex(flavor rxconfig.MapFlavor) patternIndex {
	if flavor == rxconfig.MapFlavorLRUShard {
		return newLRUShardIndex()
	}
	return newRWMutexIndex()
}

// rwmutexIndex is the reference flavor: a plain map guarded by a
// RWMutex. Hit-path recency lives on PatternHandle itself, so this
// flavor does no bookkeeping beyond membership.
type rwmutexIndex struct {
	mu sync.RWMutex
	m  map[rxhash.Key]*PatternHandle
}

func newRWMutexIndex() *rwmutexIndex {
	return &rwmutexIndex{m: make(map[rxhash.Key]*PatternHandle)}
}

func (idx *rwmutexIndex) getRef(key rxhash.Key) (*PatternHandle, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	h, ok := idx.m[key]
	if ok {
		h.AddRef()
	}
	return h, ok
}

func (idx *rwmutexIndex) peek(key rxhash.Key) (*PatternHandle, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	h, ok := idx.m[key]
	return h, ok
}

func (idx *rwmutexIndex) set(key rxhash.Key, h *PatternHandle) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.m[key] = h
}

func (idx *rwmutexIndex) evictIfUnreferenced(key rxhash.Key) (*PatternHandle, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	h, ok := idx.m[key]
	if !ok || h.RefCount() != 0 {
		return nil, false
	}
	delete(idx.m, key)
	return h, true
}

func (idx *rwmutexIndex) forceDelete(key rxhash.Key) (*PatternHandle, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	h, ok := idx.m[key]
	if !ok {
		return nil, false
	}
	delete(idx.m, key)
	return h, true
}

func (idx *rwmutexIndex) len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.m)
}

func (idx *rwmutexIndex) oldestFirst() []rxhash.Key {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	type keyedAccess struct {
		key  rxhash.Key
		last int64
	}
	entries := make([]keyedAccess, 0, len(idx.m))
	for k, h := range idx.m {
		entries = append(entries, keyedAccess{key: k, last: h.lastAccess.Load()})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].last < entries[j].last
	})
	keys := make([]rxhash.Key, len(entries))
	for i, e := range entries {
		keys[i] = e.key
	}
	return keys
}

// lruShardIndex delegates container bookkeeping to
// hashicorp/golang-lru's simplelru, sized unbounded so it never
// self-evicts; Get bumps recency internally, and Keys() returns
// oldest-to-newest, which is exactly the order the LRU pass wants
// without PatternCache having to sort handles itself.
type lruShardIndex struct {
	mu sync.Mutex
	l  *lru.LRU[rxhash.Key, *PatternHandle]
}

func newLRUShardIndex() *lruShardIndex {
	l, _ := lru.NewLRU[rxhash.Key, *PatternHandle](math.MaxInt32, nil)
	return &lruShardIndex{l: l}
}

func (idx *lruShardIndex) getRef(key rxhash.Key) (*PatternHandle, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	h, ok := idx.l.Get(key)
	if ok {
		h.AddRef()
	}
	return h, ok
}

func (idx *lruShardIndex) peek(key rxhash.Key) (*PatternHandle, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.l.Peek(key)
}

func (idx *lruShardIndex) set(key rxhash.Key, h *PatternHandle) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.l.Add(key, h)
}

func (idx *lruShardIndex) evictIfUnreferenced(key rxhash.Key) (*PatternHandle, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	h, ok := idx.l.Peek(key)
	if !ok || h.RefCount() != 0 {
		return nil, false
	}
	idx.l.Remove(key)
	return h, true
}

func (idx *lruShardIndex) forceDelete(key rxhash.Key) (*PatternHandle, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	h, ok := idx.l.Peek(key)
	if !ok {
		return nil, false
	}
	idx.l.Remove(key)
	return h, true
}

func (idx *lruShardIndex) len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.l.Len()
}

func (idx *lruShardIndex) oldestFirst() []rxhash.Key {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.l.Keys()
}
