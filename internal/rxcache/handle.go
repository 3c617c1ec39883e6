// Package rxcache implements the three-tier compiled-pattern cache:
// PatternCache holds live handles, DeferredCache holds handles the
// pattern tier has aged out but that are still referenced, and
// ResultCache memoizes boolean match outcomes. CacheManager owns all
// three plus the background EvictionLoop that sweeps them.
package rxcache

import (
	"sync/atomic"
	"time"

	"github.com/oskarlin/rxcache/internal/rxengine"
	"github.com/oskarlin/rxcache/internal/rxhash"
)

// Options is the compile-option bundle a pattern is keyed on, re-used
// directly from rxengine so a single set of fields can't drift between
// the hash key and what actually gets compiled.
type Options = rxengine.Options

// PatternHandle is the unit of reference-counted ownership callers
// hold onto. Its fields past construction are only ever touched
// through atomics: PatternCache.GetOrCompile hands out handles under a
// read lock, and the eviction loop inspects them concurrently without
// taking that lock at all.
type PatternHandle struct {
	Key             rxhash.Key
	PatternText     string
	Options         Options
	Artifact        *rxengine.Artifact
	ApproxSizeBytes int64

	refCount   atomic.Int32
	lastAccess atomic.Int64 // unix nanos
	insertedAt time.Time
}

func newPatternHandle(key rxhash.Key, text string, opts Options, artifact *rxengine.Artifact, now time.Time) *PatternHandle {
	h := &PatternHandle{
		Key:             key,
		PatternText:     text,
		Options:         opts,
		Artifact:        artifact,
		ApproxSizeBytes: int64(rxengine.ProgramSize(artifact)) + int64(len(text)),
		insertedAt:      now,
	}
	h.lastAccess.Store(now.UnixNano())
	return h
}

// AddRef increments the reference count. Callers must pair every
// AddRef (including the implicit one from GetOrCompile) with Release.
func (h *PatternHandle) AddRef() {
	h.refCount.Add(1)
}

// Release decrements the reference count. It never frees anything
// itself: freeing is the eviction loop's job once a handle is both
// unreferenced and has left every tier's index.
func (h *PatternHandle) Release() {
	h.refCount.Add(-1)
}

// RefCount returns the current reference count.
func (h *PatternHandle) RefCount() int32 {
	return h.refCount.Load()
}

// Touch bumps the last-access timestamp, marking the handle as
// recently used for the LRU pass.
func (h *PatternHandle) Touch(now time.Time) {
	h.lastAccess.Store(now.UnixNano())
}

// LastAccess returns the last-access timestamp.
func (h *PatternHandle) LastAccess() time.Time {
	return time.Unix(0, h.lastAccess.Load())
}

// Age returns how long it has been since LastAccess.
func (h *PatternHandle) Age(now time.Time) time.Duration {
	return now.Sub(h.LastAccess())
}
