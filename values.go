package pdf

import (
	"sort"

	"golang.org/x/exp/maps"
)

// Value is the tagged-variant payload carried by an object slot or by a
// direct Handle. The concrete types below are Null, Bool, Integer, Real,
// Name, String, Array, Dictionary, *StreamValue, plus the two internal
// markers reservedValue and unresolvedValue described in the data model.
//
// This mirrors the teacher's Object interface (objects.go), generalized:
// the teacher's Object also knows how to serialize itself to the PDF file
// format (PDF(w io.Writer) error), but the writer is an explicit
// out-of-scope collaborator here, so Value carries no such method.
type Value interface {
	isValue()
}

// Null represents the PDF null object, and is also the value of an
// indirect slot for which a dangling reference has been repaired.
type Null struct{}

// Bool represents a boolean value.
type Bool bool

// Integer represents an integer constant.
type Integer int64

// Real represents a real number, stored as the decimal string that was
// parsed (or that will be written), so that round-tripping a file never
// perturbs its numeric formatting.
type Real string

// Name represents a PDF name object, without the leading slash.
type Name string

// String represents a raw PDF string, i.e. an uninterpreted byte string;
// the character-set encoding, if any, is determined by context.
type String []byte

// Array represents an ordered sequence of objects. Elements are Handles
// so that an array can hold a mix of direct values and references to
// indirect objects without forcing eager resolution.
type Array []Handle

// Dictionary represents a PDF dictionary: a mapping from unique Name keys
// to Handles. Iteration order is not significant; Keys returns them
// sorted for reproducible output.
type Dictionary map[Name]Handle

// reservedValue is the value of a Reserved slot: a placeholder that
// reserves an ObjGen whose final content is not yet known. It is legal
// as the target of references and illegal to observe outside of a
// transient, in-progress build (see ObjectStore.ReplaceReserved).
type reservedValue struct{}

// unresolvedValue is the value of a slot that has been created from the
// xref index but not yet parsed from the underlying bytes.
type unresolvedValue struct{}

func (Null) isValue()            {}
func (Bool) isValue()            {}
func (Integer) isValue()         {}
func (Real) isValue()            {}
func (Name) isValue()            {}
func (String) isValue()          {}
func (Array) isValue()           {}
func (Dictionary) isValue()      {}
func (reservedValue) isValue()   {}
func (unresolvedValue) isValue() {}

// Keys returns the dictionary's keys in sorted order. Grounded on the
// teacher's data.go, which reaches for golang.org/x/exp/maps for exactly
// this "collect map keys, then sort" idiom rather than a hand-rolled
// loop-and-append.
func (d Dictionary) Keys() []Name {
	keys := maps.Keys(d)
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// isPagesType reports whether a dictionary is a /Type /Pages interior
// node, as opposed to a /Type /Page leaf.
func (d Dictionary) isPagesType() bool {
	name, _ := d["Type"].asDirectValue().(Name)
	return name == "Pages"
}

func (d Dictionary) isPageType() bool {
	name, _ := d["Type"].asDirectValue().(Name)
	return name == "Page"
}

// asDirectValue peeks at h's current value without going through the
// full accessor contract (no type-assertion panics); it is used
// internally for the /Type checks above, which must tolerate any value
// (including an absent key, an unresolved slot, or an indirect
// reference) without failing.
func (h Handle) asDirectValue() Value {
	if h.slot == nil {
		return h.val
	}
	return h.slot.resolve()
}
