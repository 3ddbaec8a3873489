package ir

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// node tags written ahead of each node so different shapes of tree never
// produce the same byte stream.
const (
	tagVarBound byte = iota + 1
	tagVarFree
	tagConstant
	tagCall
	tagLet
	tagIf
	tagTuple
	tagTupleGetItem
	tagFunction
	tagTensorType
	tagTypeVarBound
	tagTypeVarFree
	tagTupleType
	tagNil
)

// StructuralHash hashes e so that alpha-equivalent expressions hash
// equally. Bound variables and type parameters contribute their binding
// order; free ones contribute only a tag and their annotation.
func StructuralHash(e Expr) uint64 {
	h := newHasher()
	h.expr(e)
	return h.d.Sum64()
}

// TypeHash is StructuralHash for types.
func TypeHash(t Type) uint64 {
	h := newHasher()
	h.typ(t)
	return h.d.Sum64()
}

type hasher struct {
	d     *xxhash.Digest
	vars  map[*Var]uint64
	tvars map[*TypeVar]uint64
	buf   [8]byte
}

func newHasher() *hasher {
	return &hasher{
		d:     xxhash.New(),
		vars:  make(map[*Var]uint64),
		tvars: make(map[*TypeVar]uint64),
	}
}

func (h *hasher) tag(t byte) {
	h.buf[0] = t
	_, _ = h.d.Write(h.buf[:1])
}

func (h *hasher) u64(v uint64) {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	_, _ = h.d.Write(h.buf[:])
}

func (h *hasher) str(s string) {
	h.u64(uint64(len(s)))
	_, _ = h.d.WriteString(s)
}

func (h *hasher) bindVar(v *Var) {
	h.typ(v.Type)
	if _, ok := h.vars[v]; !ok {
		h.vars[v] = uint64(len(h.vars))
	}
}

func (h *hasher) bindTypeVar(t *TypeVar) {
	if _, ok := h.tvars[t]; !ok {
		h.tvars[t] = uint64(len(h.tvars))
	}
}

func (h *hasher) expr(e Expr) {
	if e == nil {
		h.tag(tagNil)
		return
	}
	switch x := e.(type) {
	case *Var:
		if idx, ok := h.vars[x]; ok {
			h.tag(tagVarBound)
			h.u64(idx)
			return
		}
		h.tag(tagVarFree)
		h.typ(x.Type)

	case *Constant:
		h.tag(tagConstant)
		if x.Value == nil {
			h.tag(tagNil)
			return
		}
		h.str(x.Value.DType.String())
		h.u64(uint64(len(x.Value.Shape)))
		for _, d := range x.Value.Shape {
			h.u64(uint64(d))
		}
		h.u64(uint64(len(x.Value.Data)))
		for _, v := range x.Value.Data {
			h.u64(math.Float64bits(v))
		}

	case *Call:
		h.tag(tagCall)
		h.str(x.Op)
		h.u64(uint64(len(x.Args)))
		for _, a := range x.Args {
			h.expr(a)
		}

	case *Let:
		h.tag(tagLet)
		h.expr(x.Value)
		h.bindVar(x.Var)
		h.expr(x.Body)

	case *If:
		h.tag(tagIf)
		h.expr(x.Cond)
		h.expr(x.Then)
		h.expr(x.Else)

	case *Tuple:
		h.tag(tagTuple)
		h.u64(uint64(len(x.Fields)))
		for _, f := range x.Fields {
			h.expr(f)
		}

	case *TupleGetItem:
		h.tag(tagTupleGetItem)
		h.u64(uint64(x.Index))
		h.expr(x.Tuple)

	case *Function:
		h.tag(tagFunction)
		h.u64(uint64(len(x.TypeParams)))
		h.u64(uint64(len(x.Params)))
		for _, tp := range x.TypeParams {
			h.bindTypeVar(tp)
		}
		for _, p := range x.Params {
			h.bindVar(p)
		}
		h.typ(x.RetType)
		h.expr(x.Body)
	}
}

func (h *hasher) typ(t Type) {
	if t == nil {
		h.tag(tagNil)
		return
	}
	switch x := t.(type) {
	case *TensorType:
		h.tag(tagTensorType)
		h.str(x.DType.String())
		h.u64(uint64(len(x.Shape)))
		for _, d := range x.Shape {
			h.u64(uint64(d))
		}

	case *TypeVar:
		if idx, ok := h.tvars[x]; ok {
			h.tag(tagTypeVarBound)
			h.u64(idx)
			return
		}
		h.tag(tagTypeVarFree)

	case *TupleType:
		h.tag(tagTupleType)
		h.u64(uint64(len(x.Fields)))
		for _, f := range x.Fields {
			h.typ(f)
		}
	}
}

// HashCombine mixes v into seed in the boost::hash_combine style.
func HashCombine(seed, v uint64) uint64 {
	return seed ^ (v + 0x9e3779b9 + (seed << 6) + (seed >> 2))
}

// HashString hashes a string with the same function used for trees.
func HashString(s string) uint64 {
	return xxhash.Sum64String(s)
}
