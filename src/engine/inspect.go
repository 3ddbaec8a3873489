package engine

import (
	"github.com/seuros/gopher-relay/src/lowered"
)

// ObjectKind tags the entity held by an Object.
type ObjectKind uint8

const (
	ObjectCachedFunc ObjectKind = iota + 1
	ObjectCacheKey
	ObjectCacheEntry
)

func (k ObjectKind) String() string {
	switch k {
	case ObjectCachedFunc:
		return "CachedFunc"
	case ObjectCacheKey:
		return "CacheKey"
	case ObjectCacheEntry:
		return "CacheEntry"
	default:
		return "Unknown"
	}
}

// Object is a closed variant over the entities inspection tools can see.
type Object struct {
	kind  ObjectKind
	fn    *lowered.CachedFunc
	key   *CacheKey
	entry *EntrySnapshot
}

// Kind returns the tag of the held entity.
func (o Object) Kind() ObjectKind { return o.kind }

// CachedFunc returns the held function when Kind is ObjectCachedFunc.
func (o Object) CachedFunc() (*lowered.CachedFunc, bool) { return o.fn, o.kind == ObjectCachedFunc }

// CacheKey returns the held key when Kind is ObjectCacheKey.
func (o Object) CacheKey() (*CacheKey, bool) { return o.key, o.kind == ObjectCacheKey }

// CacheEntry returns the held entry when Kind is ObjectCacheEntry.
func (o Object) CacheEntry() (*EntrySnapshot, bool) { return o.entry, o.kind == ObjectCacheEntry }

// VisitFields forwards to the held entity.
func (o Object) VisitFields(v lowered.FieldVisitor) {
	switch o.kind {
	case ObjectCachedFunc:
		o.fn.VisitFields(v)
	case ObjectCacheKey:
		o.key.VisitFields(v)
	case ObjectCacheEntry:
		o.entry.VisitFields(v)
	}
}

// VisitFields reports the entry's fields to v. The key and function are
// reported by reference to their own objects.
func (s *EntrySnapshot) VisitFields(v lowered.FieldVisitor) {
	v.VisitField("id", s.ID)
	v.VisitField("key", s.Key.String())
	v.VisitField("func_name", s.CachedFunc.FuncName)
	v.VisitField("use_count", s.UseCount)
	v.VisitField("compiled", s.Artifact != nil)
}

// Objects lists every live entry followed by its key and function, in
// insertion order.
func (e *CompileEngine) Objects() []Object {
	entries := e.Entries()
	out := make([]Object, 0, 3*len(entries))
	for i := range entries {
		entry := &entries[i]
		out = append(out,
			Object{kind: ObjectCacheEntry, entry: entry},
			Object{kind: ObjectCacheKey, key: entry.Key},
			Object{kind: ObjectCachedFunc, fn: entry.CachedFunc},
		)
	}
	return out
}

// Fields collects the fields of an entity in visit order.
func Fields(o interface{ VisitFields(lowered.FieldVisitor) }) []Field {
	var out []Field
	o.VisitFields(lowered.FieldVisitorFunc(func(name string, value interface{}) {
		out = append(out, Field{Name: name, Value: value})
	}))
	return out
}

// Field is one named value reported by VisitFields.
type Field struct {
	Name  string
	Value interface{}
}
