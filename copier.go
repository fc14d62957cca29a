// seehuhn.de/go/pdf - a library for reading and writing PDF files
// Copyright (C) 2024  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package pdf

// CopiedStreamDataProvider lazily pulls a copied stream's bytes from the
// document it was copied out of. One instance is shared by every stream
// copied from a given source document (see Document.copyProviderFor),
// grounded on qpdf's QPDF::CopiedStreamDataProvider, which likewise
// keeps only the originating QPDF alive rather than a snapshot per
// stream.
type CopiedStreamDataProvider struct {
	srcDoc *Document
}

// ProvideStreamData implements StreamDataProvider by looking key back up
// in the source document's object store and re-piping its payload.
func (p *CopiedStreamDataProvider) ProvideStreamData(key ObjGen, sink StreamSink) error {
	h := p.srcDoc.store.Get(key)
	sv, ok := h.resolvedValue().(*StreamValue)
	if !ok {
		return sink.Finish()
	}
	switch payload := sv.Payload.(type) {
	case FromBuffer:
		if _, err := sink.Write(payload.Bytes); err != nil {
			_ = sink.Finish()
			return err
		}
		return sink.Finish()
	case FromInput:
		return pipeStreamData(pipeStreamDataArgs{
			Encryption: payload.Encryption,
			Source:     payload.Source,
			Doc:        p.srcDoc,
			Og:         key,
			Offset:     payload.Offset,
			Length:     payload.Length,
			Sink:       sink,
		})
	case FromProvider:
		return payload.Provider.ProvideStreamData(payload.ProviderKey, sink)
	default:
		return sink.Finish()
	}
}

// foreignCopyState is the working state of a single CopyForeignObject
// call: which source objects have already been reserved a destination
// slot, and whether the copy runs in immediate (eager stream
// materialization) mode.
type foreignCopyState struct {
	dstDoc    *Document
	srcDoc    *Document
	objectMap map[ObjGen]Handle
	rewriting map[ObjGen]bool
	finalized map[ObjGen]bool
	immediate bool
}

// CopyForeignObject copies the object graph rooted at foreign -- which
// must be an indirect handle belonging to a document other than d --
// into d, returning a handle to the copy. References are rewritten to
// point at newly allocated objects in d, with two boundaries: a /Type
// /Pages dictionary is never copied at all, whether it is the root of
// the copy or reached only as a child, so that copying a single page of
// a foreign document never drags in its entire page tree; and a /Type
// /Page reached as anything other than foreign itself resolves to an
// indirect Null rather than being copied, so that a page referencing a
// sibling page (through an annotation, a named destination, or any
// other non-tree link) does not drag that sibling's own subgraph along
// with it. Any reference to a Pages node -- foreign's own or a nested
// one -- rewrites to Null the same way. Stream payloads are wired
// lazily by default: the foreign document's bytes are not read until
// the copy is actually serialized or otherwise consumed (see
// CopyForeignObjectImmediate for eager materialization instead).
func (d *Document) CopyForeignObject(foreign Handle) (Handle, error) {
	return d.copyForeignObject(foreign, false)
}

// CopyForeignObjectImmediate behaves like CopyForeignObject, but reads
// every copied stream's bytes into memory immediately rather than
// deferring to a stream data provider. This is useful when the
// source document's input source will be closed before the destination
// document is finalized.
func (d *Document) CopyForeignObjectImmediate(foreign Handle) (Handle, error) {
	return d.copyForeignObject(foreign, true)
}

func (d *Document) copyForeignObject(foreign Handle, immediate bool) (Handle, error) {
	if !foreign.IsIndirect() {
		return Handle{}, logicError(OpCopyDirectHandle, "CopyForeignObject requires an indirect handle")
	}
	if foreign.IsReserved() {
		return Handle{}, logicError(OpCopyReserved, "cannot copy an object that is still a reserved placeholder")
	}
	srcDoc, err := foreign.OwningDocument()
	if err != nil {
		return Handle{}, err
	}
	if srcDoc == d {
		return Handle{}, logicError(OpCopySameDocument, "CopyForeignObject called with an object already owned by the destination document")
	}

	st := &foreignCopyState{
		dstDoc:    d,
		srcDoc:    srcDoc,
		objectMap: map[ObjGen]Handle{},
		rewriting: map[ObjGen]bool{},
		finalized: map[ObjGen]bool{},
		immediate: immediate,
	}
	if err := st.reserve(foreign, true); err != nil {
		return Handle{}, err
	}
	if _, ok := st.objectMap[foreign.ObjGen()]; !ok {
		// foreign is itself a /Type /Pages node: reserve declined to
		// walk it at all, so there is nothing to rewrite. Matches
		// qpdf's copyForeignObject, which performs this same check
		// once the copy is otherwise complete.
		d.warn(d.damaged(DamagedPDF, "unexpected reference to /Pages object while copying foreign object; replacing with null"))
		return NullHandle, nil
	}
	return st.rewrite(foreign)
}

// reserve is copyForeignObject's first pass: it walks h's object graph,
// allocating a reserved destination slot for every indirect object it
// reaches before recursing into that object's own children. Allocating
// the reservation before recursing is what lets a cycle (an object that,
// directly or indirectly, contains a reference back to itself) terminate:
// the second time the cycle comes around, the object is already in
// objectMap and reserve returns immediately.
//
// A /Type /Pages dictionary is a hard boundary: reserve neither
// allocates a slot for it nor recurses into its children, whether it is
// the root of the copy or reached only as a child. This is what stops
// copying a single page from dragging in its entire page tree, and it
// applies uniformly (not just to /Kids) because the whole node -- not
// just its sibling links -- is absent from the destination. Matches
// qpdf's reserveObjects, whose very first check is
// foreign.isPagesObject().
//
// A /Type /Page leaf reached as anything other than the copy's own root
// (top == false) is a softer boundary: it does get a slot, but the slot
// is finalized to Null immediately instead of being left reserved for
// rewrite to fill in, and reserve does not recurse into its children.
// This is what stops copying one page of a document from dragging in a
// sibling page's own subgraph merely because the two pages reference
// each other (e.g. through an annotation, or a custom key), while still
// letting the copy of the requested page itself proceed normally when
// it is the root of the call. Matches qpdf's reserveObjects, which
// erases the object from the to-visit set and maps it straight to a
// finalized indirect null in this situation.
func (st *foreignCopyState) reserve(h Handle, top bool) error {
	if h.IsIndirect() {
		og := h.ObjGen()
		if _, ok := st.objectMap[og]; ok {
			return nil
		}
		if h.isPagesObject() {
			return nil
		}
		if !top && h.isPageObject() {
			st.objectMap[og] = st.dstDoc.MakeIndirect(Null{})
			st.finalized[og] = true
			return nil
		}
		reserved := st.dstDoc.store.NewReserved()
		st.objectMap[og] = reserved
		return st.reserveChildren(h.resolvedValue())
	}
	return st.reserveChildren(h.resolvedValue())
}

// reserveChildren descends into every child of v. Pages-boundary
// handling happens one level up, in reserve: by the time a value's
// children reach reserveChildren, v is guaranteed not to be a Pages
// node itself, so no key needs special-casing here.
func (st *foreignCopyState) reserveChildren(v Value) error {
	switch val := v.(type) {
	case Array:
		for _, item := range val {
			if err := st.reserve(item, false); err != nil {
				return err
			}
		}
	case Dictionary:
		for _, item := range val {
			if err := st.reserve(item, false); err != nil {
				return err
			}
		}
	case *StreamValue:
		for _, item := range val.Dict {
			if err := st.reserve(item, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// rewrite is copyForeignObject's second pass: for every indirect object
// already reserved by reserve, it fills in the reserved slot's final
// contents (deep-copying the structure and swapping in the destination
// handle for every reference along the way) the first time it is
// visited, and simply returns the reserved handle itself on any later
// visit without recursing again. The rewriting set, not the slot's
// reserved-ness, is what marks "already visited" here: a cycle's second
// visit reaches the object while its own rewrite is still on the call
// stack, so the slot is still reserved at that point, and recursing
// again would never terminate.
//
// A reference whose target reserve declined to walk (a /Type /Pages
// node reached as a child) has no entry in objectMap; it rewrites to
// Null silently, since the warning for that case is issued once, by
// copyForeignObject, only when the copy root itself is such a node.
func (st *foreignCopyState) rewrite(h Handle) (Handle, error) {
	if h.IsIndirect() {
		og := h.ObjGen()
		dst, ok := st.objectMap[og]
		if !ok {
			return NullHandle, nil
		}
		if st.finalized[og] {
			// a sibling /Type /Page leaf, already finalized to Null by
			// reserve: nothing left to fill in, and its own children
			// were never walked.
			return dst, nil
		}
		if st.rewriting[og] {
			return dst, nil
		}
		st.rewriting[og] = true
		v := h.resolvedValue()
		newVal, err := st.rewriteValue(v, h)
		if err != nil {
			return Handle{}, err
		}
		if err := st.dstDoc.store.ReplaceReserved(dst, newVal); err != nil {
			return Handle{}, err
		}
		return dst, nil
	}
	newVal, err := st.rewriteValue(h.resolvedValue(), h)
	if err != nil {
		return Handle{}, err
	}
	return NewDirect(newVal), nil
}

func (st *foreignCopyState) rewriteValue(v Value, src Handle) (Value, error) {
	switch val := v.(type) {
	case Array:
		out := make(Array, len(val))
		for i, item := range val {
			rh, err := st.rewrite(item)
			if err != nil {
				return nil, err
			}
			out[i] = rh
		}
		return out, nil
	case Dictionary:
		out := make(Dictionary, len(val))
		for k, item := range val {
			rh, err := st.rewrite(item)
			if err != nil {
				return nil, err
			}
			out[k] = rh
		}
		return out, nil
	case *StreamValue:
		newDict := make(Dictionary, len(val.Dict))
		for k, item := range val.Dict {
			rh, err := st.rewrite(item)
			if err != nil {
				return nil, err
			}
			newDict[k] = rh
		}
		payload, err := st.rewritePayload(val, src)
		if err != nil {
			return nil, err
		}
		return &StreamValue{Dict: newDict, Payload: payload}, nil
	default:
		return v, nil
	}
}

// rewritePayload picks how the copy will eventually read its stream
// bytes. A FromInput payload is rerouted through a ForeignStreamData
// record that holds only the foreign input source, offset, and length
// -- not the source Document -- so that the destination document's
// eventual read of the copied stream does not require keeping the
// whole foreign object graph resident. Any other lazy payload (e.g. one
// already chained through a provider) falls back to the shared
// per-source-document CopiedStreamDataProvider.
func (st *foreignCopyState) rewritePayload(sv *StreamValue, src Handle) (StreamPayload, error) {
	if st.immediate {
		raw, err := readAllPayload(sv.Payload)
		if err != nil {
			return nil, err
		}
		return FromBuffer{Bytes: raw}, nil
	}
	switch payload := sv.Payload.(type) {
	case FromBuffer:
		// already in memory: no need to route it through a provider.
		return payload, nil
	case FromInput:
		fsd := &ForeignStreamData{
			Encryption: payload.Encryption,
			Source:     payload.Source,
			ForeignOg:  src.ObjGen(),
			Offset:     payload.Offset,
			Length:     payload.Length,
		}
		return FromProvider{Provider: fsd, ProviderKey: src.ObjGen()}, nil
	default:
		provider := st.dstDoc.copyProviderFor(st.srcDoc)
		return FromProvider{Provider: provider, ProviderKey: src.ObjGen()}, nil
	}
}
