// Package engine caches lowering and code generation results keyed on the
// alpha-equivalence class of the source function and the target.
package engine

import (
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/seuros/gopher-relay/src/errdefs"
	"github.com/seuros/gopher-relay/src/lowered"
)

// CacheEntry is the cached state of one equivalence class of keys.
type CacheEntry struct {
	CachedFunc *lowered.CachedFunc
	// Artifact is nil until JIT succeeds.
	Artifact lowered.Artifact
	// UseCount counts cache hits; the access that creates the entry is not a hit.
	UseCount int64
}

// Stats are cumulative engine counters.
type Stats struct {
	Hits         int64
	Misses       int64
	Lowerings    int64
	Compilations int64
	Failures     int64
	Clears       int64
}

// errDetached means the slot was dropped by Clear or by a failed lowering
// before the caller's compile could start; the caller probes again.
var errDetached = errors.New("engine: cache slot detached")

// Recorded on the span when a collaborator panics; the panic itself
// propagates to every caller sharing the flight.
var (
	errLowererPanicked = errors.New("lowering pipeline panicked")
	errBackendPanicked = errors.New("backend panicked")
)

// slot holds one equivalence class. Fields other than id and key are
// guarded by CompileEngine.mu.
type slot struct {
	id       uint64
	key      *CacheKey
	entry    CacheEntry
	detached bool
}

// CompileEngine owns the cache. Lookups, insertions and use counts are
// serialized by a single mutex; collaborator calls run outside it, and at
// most one lowering and one code generation per slot run at a time.
type CompileEngine struct {
	lowerer Lowerer
	backend Backend
	logger  Logger
	obs     *observabilityInstruments

	mu     sync.Mutex
	cache  map[uint64][]*slot
	nextID uint64
	stats  Stats

	flights singleflight.Group
}

var (
	globalOnce   sync.Once
	globalEngine *CompileEngine
)

// Global returns the process-wide engine, built with DefaultConfig on
// first use.
func Global() *CompileEngine {
	globalOnce.Do(func() {
		globalEngine = New(DefaultConfig())
	})
	return globalEngine
}

// New creates an independent engine. Unset config fields take their
// DefaultConfig values.
func New(config *Config) *CompileEngine {
	config = config.withDefaults()
	return &CompileEngine{
		lowerer: config.Lowerer,
		backend: config.Backend,
		logger:  config.Logging.Logger,
		obs:     initObservability(config.Observability),
		cache:   make(map[uint64][]*slot),
	}
}

// Lower returns the CachedFunc for key, lowering the source on a miss.
// A failed lowering leaves no entry behind.
func (e *CompileEngine) Lower(key *CacheKey) (*lowered.CachedFunc, error) {
	if key == nil {
		return nil, errdefs.New(errdefs.KindLoweringFailure, "lower", "nil cache key")
	}
	for {
		s, cf, _ := e.probe(key, "lower")
		if cf != nil {
			return cf, nil
		}
		cf, err := e.lowerSlot(s)
		if errors.Is(err, errDetached) {
			continue
		}
		return cf, err
	}
}

// JIT returns the compiled artifact for key, lowering and generating code
// as needed. A code generation failure keeps the lowered entry.
func (e *CompileEngine) JIT(key *CacheKey) (lowered.Artifact, error) {
	if key == nil {
		return nil, errdefs.New(errdefs.KindCodegenFailure, "jit", "nil cache key")
	}
	for {
		s, cf, art := e.probe(key, "jit")
		if art != nil {
			return art, nil
		}
		if cf == nil {
			var err error
			cf, err = e.lowerSlot(s)
			if errors.Is(err, errDetached) {
				continue
			}
			if err != nil {
				return nil, err
			}
		}
		art, err := e.jitSlot(s, cf)
		if errors.Is(err, errDetached) {
			continue
		}
		return art, err
	}
}

// Clear drops every entry. Compiles already in flight still return their
// result to their callers but do not repopulate the cache.
func (e *CompileEngine) Clear() {
	e.mu.Lock()
	live := 0
	for _, bucket := range e.cache {
		for _, s := range bucket {
			s.detached = true
			if s.entry.CachedFunc != nil {
				live++
			}
		}
	}
	e.cache = make(map[uint64][]*slot)
	e.stats.Clears++
	e.mu.Unlock()

	e.obs.recordEntries(-int64(live))
	e.logger.Info("compile cache cleared", "entries", live)
}

// Len returns the number of lowered entries.
func (e *CompileEngine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, bucket := range e.cache {
		for _, s := range bucket {
			if s.entry.CachedFunc != nil {
				n++
			}
		}
	}
	return n
}

// Stats returns a copy of the engine counters.
func (e *CompileEngine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// EntrySnapshot is a point-in-time copy of one cache entry.
type EntrySnapshot struct {
	ID  uint64
	Key *CacheKey
	CacheEntry
}

// Entries returns snapshots of the lowered entries in insertion order.
func (e *CompileEngine) Entries() []EntrySnapshot {
	e.mu.Lock()
	out := make([]EntrySnapshot, 0, len(e.cache))
	for _, bucket := range e.cache {
		for _, s := range bucket {
			if s.entry.CachedFunc != nil {
				out = append(out, EntrySnapshot{ID: s.id, Key: s.key, CacheEntry: s.entry})
			}
		}
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// probe finds or creates the slot for key. On a hit the use count grows
// by one. It returns whatever the slot already holds. Keys are compared
// outside the lock against a copy of the bucket; the bucket is re-checked
// before a hit is counted or a new slot is linked.
func (e *CompileEngine) probe(key *CacheKey, stage string) (*slot, *lowered.CachedFunc, lowered.Artifact) {
	h := key.Hash()

	for {
		e.mu.Lock()
		bucket := append([]*slot(nil), e.cache[h]...)
		e.mu.Unlock()

		var match *slot
		for _, s := range bucket {
			if s.key.Equal(key) {
				match = s
				break
			}
		}

		e.mu.Lock()
		if match != nil {
			if match.detached {
				e.mu.Unlock()
				continue
			}
			match.entry.UseCount++
			e.stats.Hits++
			cf, art, uses := match.entry.CachedFunc, match.entry.Artifact, match.entry.UseCount
			e.mu.Unlock()

			e.obs.recordProbe(stage, true)
			if e.logger.IsDebugEnabled() {
				e.logger.Debug("compile cache hit", "stage", stage, "key", key, "use_count", uses)
			}
			return match, cf, art
		}
		if !sameSlots(bucket, e.cache[h]) {
			e.mu.Unlock()
			continue
		}
		e.nextID++
		s := &slot{id: e.nextID, key: key}
		e.cache[h] = append(e.cache[h], s)
		e.stats.Misses++
		e.mu.Unlock()

		e.obs.recordProbe(stage, false)
		e.logger.Info("compile cache miss", "stage", stage, "key", key)
		return s, nil, nil
	}
}

func sameSlots(a, b []*slot) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// removeLocked unlinks s from the cache. Caller holds e.mu.
func (e *CompileEngine) removeLocked(s *slot) {
	if s.detached {
		return
	}
	s.detached = true
	h := s.key.Hash()
	bucket := e.cache[h]
	for i, other := range bucket {
		if other == s {
			bucket = append(bucket[:i:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(e.cache, h)
	} else {
		e.cache[h] = bucket
	}
}

func flightKey(stage string, id uint64) string {
	return stage + "/" + strconv.FormatUint(id, 10)
}

// lowerSlot runs the lowering pipeline for s unless another caller
// already did, sharing one invocation among concurrent callers.
func (e *CompileEngine) lowerSlot(s *slot) (*lowered.CachedFunc, error) {
	v, err, _ := e.flights.Do(flightKey("lower", s.id), func() (interface{}, error) {
		e.mu.Lock()
		detached, cf := s.detached, s.entry.CachedFunc
		e.mu.Unlock()
		if detached {
			return nil, errDetached
		}
		if cf != nil {
			return cf, nil
		}

		start := time.Now()
		sc := e.obs.startCompileSpan("lower", s.key)
		returned := false
		defer func() {
			if returned {
				return
			}
			e.obs.finishCompileSpan(sc, "", errLowererPanicked)
			e.mu.Lock()
			e.stats.Failures++
			e.removeLocked(s)
			e.mu.Unlock()
			e.logger.Error("lowering panicked", "key", s.key)
		}()
		cf, err := e.lowerer.Lower(s.key.Source(), s.key.Target())
		returned = true
		if err == nil && cf == nil {
			err = errors.New("lowering pipeline returned no function")
		}
		err = errdefs.Wrap(errdefs.KindLoweringFailure, "lower", err)
		name := ""
		if cf != nil {
			name = cf.FuncName
		}
		e.obs.finishCompileSpan(sc, name, err)

		e.mu.Lock()
		if err != nil {
			e.stats.Failures++
			e.removeLocked(s)
			e.mu.Unlock()
			e.logger.Warn("lowering failed", "key", s.key, "error", err)
			return nil, err
		}
		e.stats.Lowerings++
		stored := !s.detached
		if stored {
			s.entry.CachedFunc = cf
		}
		e.mu.Unlock()

		if stored {
			e.obs.recordEntries(1)
		}
		e.logger.Info("lowered function", "key", s.key, "func", cf.FuncName,
			"duration", time.Since(start), "cached", stored)
		return cf, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*lowered.CachedFunc), nil
}

// jitSlot runs the backend for s unless another caller already did.
func (e *CompileEngine) jitSlot(s *slot, cf *lowered.CachedFunc) (lowered.Artifact, error) {
	v, err, _ := e.flights.Do(flightKey("jit", s.id), func() (interface{}, error) {
		e.mu.Lock()
		detached, art := s.detached, s.entry.Artifact
		e.mu.Unlock()
		if detached {
			return nil, errDetached
		}
		if art != nil {
			return art, nil
		}

		start := time.Now()
		sc := e.obs.startCompileSpan("jit", s.key)
		returned := false
		defer func() {
			if returned {
				return
			}
			e.obs.finishCompileSpan(sc, cf.FuncName, errBackendPanicked)
			e.mu.Lock()
			e.stats.Failures++
			e.mu.Unlock()
			e.logger.Error("code generation panicked", "key", s.key, "func", cf.FuncName)
		}()
		art, err := e.backend.Build(cf.Funcs, s.key.Target())
		returned = true
		if err == nil && art == nil {
			err = errors.New("backend returned no artifact")
		}
		err = errdefs.Wrap(errdefs.KindCodegenFailure, "jit", err)
		e.obs.finishCompileSpan(sc, cf.FuncName, err)

		e.mu.Lock()
		if err != nil {
			e.stats.Failures++
			e.mu.Unlock()
			e.logger.Warn("code generation failed", "key", s.key, "func", cf.FuncName, "error", err)
			return nil, err
		}
		e.stats.Compilations++
		stored := !s.detached
		if stored {
			s.entry.Artifact = art
		}
		e.mu.Unlock()

		e.logger.Info("compiled function", "key", s.key, "func", cf.FuncName,
			"duration", time.Since(start), "cached", stored)
		return art, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(lowered.Artifact), nil
}
