// Package intern canonicalizes strings into stable integer handles so that
// later comparisons are handle comparisons instead of character comparisons.
// The table is the sole authority mapping content to handle: equal handles
// mean byte-identical content, and distinct content yields distinct handles.
package intern

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/fernworks/treelight/internal/model"
)

// Handle identifies one interned string. Handles are append-only and stable
// for the lifetime of the table.
type Handle uint32

// Info is best-effort per-string bookkeeping recorded at intern time.
type Info struct {
	NumLines int
}

// Table is a content-addressed string table. It is not safe for concurrent
// use; the log store serializes access through its own lock.
type Table struct {
	handles map[string]Handle
	strings []string
	info    []Info
}

func NewTable() *Table {
	return &Table{handles: make(map[string]Handle)}
}

// Intern returns the canonical handle for s, allocating one on first sight.
func (t *Table) Intern(s string) Handle {
	if h, ok := t.handles[s]; ok {
		return h
	}
	h := Handle(len(t.strings))
	t.handles[s] = h
	t.strings = append(t.strings, s)
	t.info = append(t.info, Info{NumLines: numLines(s)})
	return h
}

// Lookup returns the content behind h.
func (t *Table) Lookup(h Handle) string {
	return t.strings[h]
}

// Info returns the bookkeeping recorded when h was interned.
func (t *Table) Info(h Handle) Info {
	return t.info[h]
}

// Len returns the number of distinct strings interned so far.
func (t *Table) Len() int {
	return len(t.strings)
}

func numLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

// Value is a field value whose string payload has been interned. Floats are
// held as their bit pattern, so two float values compare equal exactly when
// their encodings match (NaN included, -0.0 distinct from 0.0).
type Value struct {
	Kind  model.Kind
	Str   Handle
	Bool  bool
	Int   int64
	Float uint64
}

// Pair is one interned key/value entry.
type Pair struct {
	Key Handle
	Val Value
}

// Fields is an ordered list of interned pairs. Order and duplicate keys are
// preserved from the source line.
type Fields []Pair

// InternValue interns the string payload of v and passes the other variants
// through unchanged.
func (t *Table) InternValue(v model.Value) Value {
	switch v.Kind {
	case model.KindString:
		return Value{Kind: model.KindString, Str: t.Intern(v.Str)}
	case model.KindBool:
		return Value{Kind: model.KindBool, Bool: v.Bool}
	case model.KindInt:
		return Value{Kind: model.KindInt, Int: v.Int}
	default:
		return Value{Kind: model.KindFloat, Float: math.Float64bits(v.Float)}
	}
}

// InternFields interns every pair of f, preserving order and duplicates.
func (t *Table) InternFields(f model.Fields) Fields {
	out := make(Fields, 0, len(f))
	for _, p := range f {
		out = append(out, Pair{Key: t.Intern(p.Key), Val: t.InternValue(p.Val)})
	}
	return out
}

// Key packs f into a byte string usable as a map key. Each pair encodes as
// its key handle, a kind tag and a fixed-size payload, so two field lists
// produce the same key exactly when they are structurally equal pair by pair:
// same handles, same kinds, same scalar payloads, same order.
func (f Fields) Key() string {
	b := make([]byte, 0, len(f)*13)
	for _, p := range f {
		b = binary.LittleEndian.AppendUint32(b, uint32(p.Key))
		b = append(b, byte(p.Val.Kind))
		switch p.Val.Kind {
		case model.KindString:
			b = binary.LittleEndian.AppendUint32(b, uint32(p.Val.Str))
		case model.KindBool:
			if p.Val.Bool {
				b = append(b, 1)
			} else {
				b = append(b, 0)
			}
		case model.KindInt:
			b = binary.LittleEndian.AppendUint64(b, uint64(p.Val.Int))
		case model.KindFloat:
			b = binary.LittleEndian.AppendUint64(b, p.Val.Float)
		}
	}
	return string(b)
}
