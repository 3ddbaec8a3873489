package engine

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/seuros/gopher-relay/internal/testutil"
	"github.com/seuros/gopher-relay/src/codegen"
	"github.com/seuros/gopher-relay/src/errdefs"
	"github.com/seuros/gopher-relay/src/ir"
	"github.com/seuros/gopher-relay/src/lower"
	"github.com/seuros/gopher-relay/src/lowered"
	"github.com/seuros/gopher-relay/src/target"
	"github.com/seuros/gopher-relay/src/tensor"
)

const (
	convSrc        = testutil.ConvSource
	convSrcRenamed = testutil.ConvSourceRenamed
)

var llvm = testutil.Target()

func parse(t testing.TB, src string) *ir.Function {
	return testutil.Parse(t, src)
}

// countingLowerer wraps the reference pipeline. When gate is set every
// call signals entered and waits for gate to close.
type countingLowerer struct {
	calls   atomic.Int32
	fail    atomic.Int32
	entered chan struct{}
	gate    chan struct{}
	inner   *lower.Pipeline
}

func newCountingLowerer() *countingLowerer {
	return &countingLowerer{inner: lower.New(nil)}
}

func (l *countingLowerer) Lower(fn *ir.Function, t target.Target) (*lowered.CachedFunc, error) {
	l.calls.Add(1)
	if l.entered != nil {
		l.entered <- struct{}{}
	}
	if l.gate != nil {
		<-l.gate
	}
	if l.fail.Load() > 0 {
		l.fail.Add(-1)
		return nil, errors.New("no schedule for operator")
	}
	return l.inner.Lower(fn, t)
}

type countingBackend struct {
	calls atomic.Int32
	fail  atomic.Int32
	gate  chan struct{}
	inner *codegen.Interpreter
}

func newCountingBackend() *countingBackend {
	return &countingBackend{inner: codegen.New(nil)}
}

func (b *countingBackend) Build(funcs []*lowered.PrimFunc, t target.Target) (lowered.Artifact, error) {
	b.calls.Add(1)
	if b.gate != nil {
		<-b.gate
	}
	if b.fail.Load() > 0 {
		b.fail.Add(-1)
		return nil, errors.New("missing intrinsic")
	}
	return b.inner.Build(funcs, t)
}

func newEngine(l Lowerer, b Backend) *CompileEngine {
	return New(&Config{Lowerer: l, Backend: b})
}

func TestCacheKeyAlphaEquivalence(t *testing.T) {
	k1 := NewCacheKey(parse(t, convSrc), llvm)
	k2 := NewCacheKey(parse(t, convSrcRenamed), llvm)

	assert.Equal(t, k1.Hash(), k2.Hash())
	assert.True(t, k1.Equal(k2))
	assert.True(t, k2.Equal(k1))
	assert.True(t, k1.Equal(k1))

	other := NewCacheKey(parse(t, convSrc), target.MustParse("c"))
	assert.NotEqual(t, k1.Hash(), other.Hash())
	assert.False(t, k1.Equal(other))

	different := NewCacheKey(parse(t, `fn (%x: Tensor[(3, 3), float32], %w: Tensor[(3, 3), float32]) -> Tensor[(1), float32] {
  let %y = subtract(%x, %w);
  lnsconv.conv3x3(%y, %w)
}`), llvm)
	assert.False(t, k1.Equal(different))

	assert.False(t, k1.Equal(nil))
}

func TestCacheKeyTargetOptionsCanonical(t *testing.T) {
	fn := parse(t, convSrc)
	a := NewCacheKey(fn, target.MustParse("llvm -mcpu=skylake -opt=3"))
	b := NewCacheKey(fn, target.MustParse("llvm  -opt=3 -mcpu=skylake"))
	assert.True(t, a.Equal(b))
}

func TestCacheKeyHashNeverZero(t *testing.T) {
	assert.Equal(t, uint64(1), finalizeHash(0))
	assert.Equal(t, uint64(42), finalizeHash(42))

	k := NewCacheKey(parse(t, convSrc), llvm)
	assert.Zero(t, k.hash.Load(), "hash is computed lazily")
	h := k.Hash()
	assert.NotZero(t, h)
	assert.Equal(t, h, k.hash.Load())
	assert.Equal(t, h, k.Hash())

	empty := NewCacheKey(nil, target.Target{})
	assert.NotZero(t, empty.Hash())
	assert.True(t, empty.Equal(NewCacheKey(nil, target.Target{})))
}

func TestLowerIsIdempotent(t *testing.T) {
	l := newCountingLowerer()
	e := newEngine(l, nil)
	key := NewCacheKey(parse(t, convSrc), llvm)

	first, err := e.Lower(key)
	require.NoError(t, err)
	second, err := e.Lower(NewCacheKey(parse(t, convSrcRenamed), llvm))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, *first, *second)
	assert.Equal(t, int32(1), l.calls.Load())
	assert.Equal(t, 1, e.Len())
}

func TestLowerSingleFlight(t *testing.T) {
	const callers = 16
	l := newCountingLowerer()
	l.gate = make(chan struct{})
	e := newEngine(l, nil)

	results := make([]*lowered.CachedFunc, callers)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		i := i
		src := convSrc
		if i%2 == 1 {
			src = convSrcRenamed
		}
		key := NewCacheKey(parse(t, src), llvm)
		g.Go(func() error {
			cf, err := e.Lower(key)
			results[i] = cf
			return err
		})
	}

	require.Eventually(t, func() bool {
		s := e.Stats()
		return s.Hits+s.Misses == callers
	}, 5*time.Second, time.Millisecond)
	close(l.gate)
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), l.calls.Load())
	for _, cf := range results {
		assert.Same(t, results[0], cf)
	}
	stats := e.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(callers-1), stats.Hits)
	assert.Equal(t, int64(1), stats.Lowerings)
}

func TestJITSingleFlight(t *testing.T) {
	const callers = 12
	l := newCountingLowerer()
	b := newCountingBackend()
	b.gate = make(chan struct{})
	e := newEngine(l, b)

	results := make([]lowered.Artifact, callers)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		i := i
		key := NewCacheKey(parse(t, convSrc), llvm)
		g.Go(func() error {
			art, err := e.JIT(key)
			results[i] = art
			return err
		})
	}

	require.Eventually(t, func() bool {
		s := e.Stats()
		return s.Hits+s.Misses == callers
	}, 5*time.Second, time.Millisecond)
	close(b.gate)
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), l.calls.Load())
	assert.Equal(t, int32(1), b.calls.Load())
	for _, art := range results {
		assert.Same(t, results[0], art)
	}
}

func TestDistinctKeysCompileInParallel(t *testing.T) {
	l := newCountingLowerer()
	l.entered = make(chan struct{}, 2)
	l.gate = make(chan struct{})
	e := newEngine(l, nil)

	var g errgroup.Group
	for _, tgt := range []string{"llvm", "c"} {
		key := NewCacheKey(parse(t, convSrc), target.MustParse(tgt))
		g.Go(func() error {
			_, err := e.Lower(key)
			return err
		})
	}

	// Both lowerings must be running at once before either may finish.
	for i := 0; i < 2; i++ {
		select {
		case <-l.entered:
		case <-time.After(5 * time.Second):
			t.Fatal("unrelated keys were serialized")
		}
	}
	close(l.gate)
	require.NoError(t, g.Wait())
	assert.Equal(t, 2, e.Len())
}

func TestClearForcesRecompile(t *testing.T) {
	l := newCountingLowerer()
	e := newEngine(l, nil)
	key := NewCacheKey(parse(t, convSrc), llvm)

	first, err := e.Lower(key)
	require.NoError(t, err)
	e.Clear()
	assert.Zero(t, e.Len())
	assert.Empty(t, e.Entries())

	second, err := e.Lower(key)
	require.NoError(t, err)
	assert.Equal(t, int32(2), l.calls.Load())
	assert.NotSame(t, first, second)
	assert.Equal(t, int64(1), e.Stats().Clears)
}

func TestClearDuringLowering(t *testing.T) {
	l := newCountingLowerer()
	l.entered = make(chan struct{}, 1)
	l.gate = make(chan struct{})
	e := newEngine(l, nil)
	key := NewCacheKey(parse(t, convSrc), llvm)

	done := make(chan error, 1)
	go func() {
		cf, err := e.Lower(key)
		if err == nil && cf == nil {
			err = errors.New("no function")
		}
		done <- err
	}()

	<-l.entered
	e.Clear()
	close(l.gate)
	require.NoError(t, <-done)
	assert.Zero(t, e.Len(), "a lowering that finishes after Clear is not cached")

	l.entered = nil
	_, err := e.Lower(key)
	require.NoError(t, err)
	assert.Equal(t, int32(2), l.calls.Load())
}

func TestClearDuringJIT(t *testing.T) {
	l := newCountingLowerer()
	b := newCountingBackend()
	b.gate = make(chan struct{})
	e := newEngine(l, b)
	key := NewCacheKey(parse(t, convSrc), llvm)

	done := make(chan error, 1)
	go func() {
		art, err := e.JIT(key)
		if err == nil && art == nil {
			err = errors.New("no artifact")
		}
		done <- err
	}()

	require.Eventually(t, func() bool { return b.calls.Load() == 1 }, 5*time.Second, time.Millisecond)
	e.Clear()
	close(b.gate)
	require.NoError(t, <-done)
	assert.Zero(t, e.Len(), "an artifact that finishes after Clear is not cached")

	_, err := e.JIT(key)
	require.NoError(t, err)
	assert.Equal(t, int32(2), l.calls.Load())
	assert.Equal(t, int32(2), b.calls.Load())
	require.Len(t, e.Entries(), 1)
	assert.NotNil(t, e.Entries()[0].Artifact)
}

func TestConcurrentMissesShareOneSlot(t *testing.T) {
	const callers = 32
	e := newEngine(nil, nil)
	keys := make([]*CacheKey, callers)
	for i := range keys {
		src := convSrc
		if i%2 == 1 {
			src = convSrcRenamed
		}
		keys[i] = NewCacheKey(parse(t, src), llvm)
	}

	var g errgroup.Group
	for _, key := range keys {
		key := key
		g.Go(func() error {
			_, err := e.Lower(key)
			return err
		})
	}
	require.NoError(t, g.Wait())

	e.mu.Lock()
	assert.Len(t, e.cache[keys[0].Hash()], 1)
	e.mu.Unlock()
	stats := e.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(callers-1), stats.Hits)
	assert.Equal(t, int64(callers-1), e.Entries()[0].UseCount)
}

func TestUseCount(t *testing.T) {
	e := newEngine(nil, nil)
	fn := parse(t, convSrc)

	_, err := e.Lower(NewCacheKey(fn, llvm))
	require.NoError(t, err)
	require.Len(t, e.Entries(), 1)
	assert.Equal(t, int64(0), e.Entries()[0].UseCount)

	_, err = e.Lower(NewCacheKey(fn, llvm))
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.Entries()[0].UseCount)

	_, err = e.JIT(NewCacheKey(fn, llvm))
	require.NoError(t, err)
	assert.Equal(t, int64(2), e.Entries()[0].UseCount)

	_, err = e.JIT(NewCacheKey(parse(t, convSrcRenamed), llvm))
	require.NoError(t, err)
	entry := e.Entries()[0]
	assert.Equal(t, int64(3), entry.UseCount)
	assert.NotNil(t, entry.Artifact)
}

func TestJITFromColdCache(t *testing.T) {
	l := newCountingLowerer()
	b := newCountingBackend()
	e := newEngine(l, b)

	art, err := e.JIT(NewCacheKey(parse(t, convSrc), llvm))
	require.NoError(t, err)
	assert.Equal(t, int32(1), l.calls.Load())
	assert.Equal(t, int32(1), b.calls.Load())

	x := tensor.New(tensor.Float32, 3, 3)
	w := tensor.New(tensor.Float32, 3, 3)
	for i := range x.Data {
		x.Data[i] = 1
		w.Data[i] = 2
	}
	out, err := art.Invoke(x, w)
	require.NoError(t, err)
	assert.Equal(t, []float64{54}, out[0].Data)

	entries := e.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(0), entries[0].UseCount)
	assert.Same(t, art, entries[0].Artifact)
}

func TestLowerFailureIsNotCached(t *testing.T) {
	l := newCountingLowerer()
	l.fail.Store(1)
	e := newEngine(l, nil)
	key := NewCacheKey(parse(t, convSrc), llvm)

	_, err := e.Lower(key)
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrLoweringFailure)
	assert.Zero(t, e.Len())
	assert.Empty(t, e.cache, "no slot survives a failed lowering")

	cf, err := e.Lower(key)
	require.NoError(t, err)
	assert.NotNil(t, cf)
	assert.Equal(t, int32(2), l.calls.Load())
	assert.Equal(t, int64(1), e.Stats().Failures)
}

func TestLowerSingleFlightFailure(t *testing.T) {
	const callers = 8
	l := newCountingLowerer()
	l.fail.Store(1)
	l.gate = make(chan struct{})
	e := newEngine(l, nil)

	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		i := i
		key := NewCacheKey(parse(t, convSrc), llvm)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = e.Lower(key)
		}()
	}

	require.Eventually(t, func() bool {
		s := e.Stats()
		return s.Hits+s.Misses == callers
	}, 5*time.Second, time.Millisecond)
	// let every caller reach the shared flight before it fails
	time.Sleep(20 * time.Millisecond)
	close(l.gate)
	wg.Wait()

	assert.Equal(t, int32(1), l.calls.Load())
	for _, err := range errs {
		assert.ErrorIs(t, err, errdefs.ErrLoweringFailure)
	}
	assert.Empty(t, e.cache, "no slot survives a failed lowering")
	assert.Equal(t, int64(1), e.Stats().Failures)

	cf, err := e.Lower(NewCacheKey(parse(t, convSrc), llvm))
	require.NoError(t, err)
	assert.NotNil(t, cf)
	assert.Equal(t, int32(2), l.calls.Load())
	require.Len(t, e.Entries(), 1)
	assert.Equal(t, int64(0), e.Entries()[0].UseCount)
}

func TestPanickingLowererLeavesNoSlot(t *testing.T) {
	var calls atomic.Int32
	inner := lower.New(nil)
	e := newEngine(LowererFunc(func(fn *ir.Function, tgt target.Target) (*lowered.CachedFunc, error) {
		if calls.Add(1) == 1 {
			panic("scheduler bug")
		}
		return inner.Lower(fn, tgt)
	}), nil)
	key := NewCacheKey(parse(t, convSrc), llvm)

	assert.Panics(t, func() { _, _ = e.Lower(key) })
	e.mu.Lock()
	assert.Empty(t, e.cache)
	e.mu.Unlock()
	assert.Equal(t, int64(1), e.Stats().Failures)

	cf, err := e.Lower(key)
	require.NoError(t, err)
	assert.NotNil(t, cf)
	stats := e.Stats()
	assert.Zero(t, stats.Hits, "the panicked attempt is not a cache entry")
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, int64(0), e.Entries()[0].UseCount)
}

func TestEmptyConstantIsALoweringFailure(t *testing.T) {
	e := newEngine(nil, nil)
	key := NewCacheKey(&ir.Function{Body: &ir.Constant{}}, llvm)
	assert.NotZero(t, key.Hash())

	for i := 0; i < 2; i++ {
		_, err := e.Lower(key)
		assert.ErrorIs(t, err, errdefs.ErrLoweringFailure)
	}
	assert.Empty(t, e.cache)
	assert.Zero(t, e.Stats().Hits)
}

func TestPanickingBackendKeepsLoweredEntry(t *testing.T) {
	var calls atomic.Int32
	inner := codegen.New(nil)
	e := newEngine(nil, BackendFunc(func(funcs []*lowered.PrimFunc, tgt target.Target) (lowered.Artifact, error) {
		if calls.Add(1) == 1 {
			panic("intrinsic table corrupted")
		}
		return inner.Build(funcs, tgt)
	}))
	key := NewCacheKey(parse(t, convSrc), llvm)

	assert.Panics(t, func() { _, _ = e.JIT(key) })
	entries := e.Entries()
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].Artifact)
	assert.Equal(t, int64(1), e.Stats().Failures)

	art, err := e.JIT(key)
	require.NoError(t, err)
	assert.NotNil(t, art)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLoweringErrorsKeepTheirKind(t *testing.T) {
	e := newEngine(nil, nil)
	_, err := e.Lower(NewCacheKey(parse(t, `fn [T] (%x: T) -> T { %x }`), llvm))
	assert.ErrorIs(t, err, errdefs.ErrLoweringFailure)

	_, err = e.JIT(NewCacheKey(parse(t, convSrc), target.MustParse("cuda")))
	assert.ErrorIs(t, err, errdefs.ErrCodegenFailure)

	_, err = e.Lower(nil)
	assert.Error(t, err)
}

func TestJITFailureKeepsLoweredEntry(t *testing.T) {
	l := newCountingLowerer()
	b := newCountingBackend()
	b.fail.Store(1)
	e := newEngine(l, b)
	key := NewCacheKey(parse(t, convSrc), llvm)

	_, err := e.JIT(key)
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrCodegenFailure)

	entries := e.Entries()
	require.Len(t, entries, 1)
	assert.NotNil(t, entries[0].CachedFunc)
	assert.Nil(t, entries[0].Artifact)

	art, err := e.JIT(key)
	require.NoError(t, err)
	assert.NotNil(t, art)
	assert.Equal(t, int32(1), l.calls.Load(), "lowering is reused after a codegen failure")
	assert.Equal(t, int32(2), b.calls.Load())
}

func TestNilCollaboratorResults(t *testing.T) {
	e := newEngine(
		LowererFunc(func(*ir.Function, target.Target) (*lowered.CachedFunc, error) { return nil, nil }),
		nil,
	)
	_, err := e.Lower(NewCacheKey(parse(t, convSrc), llvm))
	assert.ErrorIs(t, err, errdefs.ErrLoweringFailure)

	e = newEngine(nil, BackendFunc(func([]*lowered.PrimFunc, target.Target) (lowered.Artifact, error) { return nil, nil }))
	_, err = e.JIT(NewCacheKey(parse(t, convSrc), llvm))
	assert.ErrorIs(t, err, errdefs.ErrCodegenFailure)
}

func TestGlobal(t *testing.T) {
	var g errgroup.Group
	engines := make([]*CompileEngine, 8)
	for i := range engines {
		i := i
		g.Go(func() error {
			engines[i] = Global()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for _, e := range engines {
		assert.Same(t, engines[0], e)
	}
}

func TestConcurrentMixedWorkload(t *testing.T) {
	e := newEngine(nil, nil)
	sources := []string{
		convSrc,
		`fn (%x: Tensor[(4), float32]) { relu(%x) }`,
		`fn (%x: Tensor[(4), float32]) { negative(%x) }`,
	}
	fns := make([]*ir.Function, len(sources))
	for i, src := range sources {
		fns[i] = parse(t, src)
	}

	var wg sync.WaitGroup
	for i := 0; i < 48; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := NewCacheKey(fns[i%len(fns)], llvm)
			if i%5 == 0 {
				_, err := e.JIT(key)
				assert.NoError(t, err)
				return
			}
			_, err := e.Lower(key)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, len(sources), e.Len())
	var uses int64
	for _, entry := range e.Entries() {
		uses += entry.UseCount
	}
	assert.Equal(t, int64(48-len(sources)), uses)
}
