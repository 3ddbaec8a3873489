package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/seuros/gopher-relay/src/ir"
	"github.com/seuros/gopher-relay/src/lowered"
	"github.com/seuros/gopher-relay/src/target"
)

// CacheKey identifies a compile request: a source function and the target
// it is compiled for. The key borrows the function and never modifies it.
type CacheKey struct {
	source *ir.Function
	target target.Target

	// hash is a single-assignment cell; 0 means not yet computed.
	hash atomic.Uint64
}

// NewCacheKey builds a key for fn on t.
func NewCacheKey(fn *ir.Function, t target.Target) *CacheKey {
	return &CacheKey{source: fn, target: t}
}

// Source returns the function the key was built from.
func (k *CacheKey) Source() *ir.Function { return k.source }

// Target returns the target the key was built for.
func (k *CacheKey) Target() target.Target { return k.target }

// Hash returns the structural hash of the source combined with the hash
// of the canonical target string. Alpha-equivalent sources hash equal.
// The value is computed once and is never 0.
func (k *CacheKey) Hash() uint64 {
	if h := k.hash.Load(); h != 0 {
		return h
	}
	var structural uint64
	if k.source != nil {
		structural = ir.StructuralHash(k.source)
	}
	h := finalizeHash(ir.HashCombine(structural, ir.HashString(k.target.String())))
	// Concurrent first calls compute the same value, so losing the race is harmless.
	k.hash.CompareAndSwap(0, h)
	return h
}

// finalizeHash reserves 0 as the "unset" marker.
func finalizeHash(h uint64) uint64 {
	if h == 0 {
		return 1
	}
	return h
}

// Equal reports whether k and other denote the same compile request:
// equal hashes, identical canonical targets and alpha-equivalent sources.
func (k *CacheKey) Equal(other *CacheKey) bool {
	if k == other {
		return true
	}
	if k == nil || other == nil {
		return false
	}
	if k.Hash() != other.Hash() {
		return false
	}
	if k.target.String() != other.target.String() {
		return false
	}
	if k.source == nil || other.source == nil {
		return k.source == other.source
	}
	return ir.AlphaEqual(k.source, other.source)
}

func (k *CacheKey) String() string {
	return fmt.Sprintf("CacheKey(%s, %016x)", k.target, k.Hash())
}

// VisitFields reports the key's fields to v.
func (k *CacheKey) VisitFields(v lowered.FieldVisitor) {
	v.VisitField("target", k.target.String())
	v.VisitField("hash", fmt.Sprintf("%016x", k.Hash()))
	if k.source != nil {
		v.VisitField("source", ir.Print(k.source))
	}
}
