package vm

import (
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Literal: constant values referenced by module code
// ---------------------------------------------------------------------------

// LiteralKind tags the variant held by a Literal.
type LiteralKind uint8

const (
	LitNil LiteralKind = iota
	LitInt
	LitFloat
	LitAtom
	LitBinary
	LitTuple
	LitList
)

// Literal is a constant term from a module's literal pool.
type Literal struct {
	Kind  LiteralKind
	Int   int64
	Float float64
	Atom  Atom
	Bytes []byte
	Elems []Literal
}

func (l Literal) String() string {
	switch l.Kind {
	case LitInt:
		return strconv.FormatInt(l.Int, 10)
	case LitFloat:
		return strconv.FormatFloat(l.Float, 'g', -1, 64)
	case LitAtom:
		return "#" + strconv.FormatUint(uint64(l.Atom), 10)
	case LitBinary:
		return strconv.Quote(string(l.Bytes))
	case LitTuple, LitList:
		parts := make([]string, len(l.Elems))
		for i, e := range l.Elems {
			parts[i] = e.String()
		}
		if l.Kind == LitTuple {
			return "{" + strings.Join(parts, ",") + "}"
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return "nil"
	}
}

// ---------------------------------------------------------------------------
// LiteralHeap: per-module literal arena
// ---------------------------------------------------------------------------

// LiteralHeap is an append-only arena owning the boxed parts of one
// module's literals. Nothing allocated from it is ever mutated, so values
// handed out stay valid for as long as anyone references them.
type LiteralHeap struct {
	bytes []byte
	cells []Literal
	count int
}

// NewLiteralHeap creates an empty arena.
func NewLiteralHeap() *LiteralHeap {
	return &LiteralHeap{}
}

// AllocLiteral copies l, including every nested binary and element, into
// the arena and returns the arena-backed copy.
func (h *LiteralHeap) AllocLiteral(l Literal) Literal {
	out := l
	switch l.Kind {
	case LitBinary:
		start := len(h.bytes)
		h.bytes = append(h.bytes, l.Bytes...)
		end := len(h.bytes)
		out.Bytes = h.bytes[start:end:end]
	case LitTuple, LitList:
		elems := make([]Literal, len(l.Elems))
		for i, e := range l.Elems {
			elems[i] = h.AllocLiteral(e)
		}
		start := len(h.cells)
		h.cells = append(h.cells, elems...)
		end := len(h.cells)
		out.Elems = h.cells[start:end:end]
	default:
		out.Bytes = nil
		out.Elems = nil
	}
	h.count++
	return out
}

// Count returns the number of literals allocated, nested ones included.
func (h *LiteralHeap) Count() int { return h.count }

// Size returns the arena footprint in bytes plus cells.
func (h *LiteralHeap) Size() int { return len(h.bytes) + len(h.cells) }
