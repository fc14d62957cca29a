package pdf

// ObjectStore owns every slot belonging to one Document: the map from
// ObjGen to slot, the monotonically increasing id counter used to mint
// fresh indirect objects, and the lazy link back to the xref index and
// parser needed to resolve an unresolvedValue slot on first access.
// Grounded on the teacher's Reader (reader.go), which keeps exactly this
// kind of "objects resolved lazily from an xref table" cache, generalized
// so that slots -- not a Reader -- are the thing callers hold onto.
type ObjectStore struct {
	doc    *Document
	slots  map[uint32]*slot
	nextID uint32

	source InputSource
	xref   *XRefIndex
	parser Parser
}

func newObjectStore(doc *Document) *ObjectStore {
	return &ObjectStore{
		doc:    doc,
		slots:  map[uint32]*slot{},
		nextID: 1, // object 0 is never in use; (0, 0) marks a direct object
	}
}

// getSlot returns the slot for og, creating an unresolved placeholder if
// this is the first time og has been mentioned (e.g. because a forward
// reference to it was seen before its own "N G obj" was parsed).
func (s *ObjectStore) getSlot(og ObjGen) *slot {
	if sl, ok := s.slots[og.ID]; ok {
		return sl
	}
	sl := &slot{store: s, og: og, value: unresolvedValue{}}
	s.slots[og.ID] = sl
	if og.ID >= s.nextID {
		s.nextID = og.ID + 1
	}
	return sl
}

// Get returns a Handle to the indirect object og. Per the "never fails"
// contract for object access (spec 4.D), a missing or malformed object
// resolves to a Null value with a warning recorded on the owning
// document rather than propagating an error. Get never panics: on a
// store with no xref index (an EmptyPDF document, or one not yet
// parsed), a slot that was never populated resolves to Null without a
// warning.
func (s *ObjectStore) Get(og ObjGen) Handle {
	sl := s.getSlot(og)
	return Handle{slot: sl}
}

// resolveSlot parses sl's value from the underlying input source the
// first time it is observed, per the xref entry recorded for its
// object id. Free entries and entries whose parsed object number does
// not match the one requested are treated as dangling (the generation
// number is not compared): the slot becomes Null
// and a DamagedPDF warning is recorded, matching qpdf's
// fixDanglingReferences/reconstruction tolerance rather than a hard
// parse failure.
func (s *ObjectStore) resolveSlot(sl *slot) {
	sl.value = Null{} // fixed point in case of re-entrant resolution (a cycle
	// through resolveSlot itself, not through Get) so a recursive parse of
	// this same object sees Null rather than looping forever.

	if s.xref == nil || s.parser == nil || s.source == nil {
		return
	}
	entry, ok := s.xref.entries[sl.og.ID]
	if !ok || entry.Type == XRefFree {
		s.warnDangling(sl.og, "no such object")
		return
	}

	switch entry.Type {
	case XRefInUse:
		val, gotOg, err := s.parser.Parse(s.source, entry.Offset, sl.og.ID)
		if err != nil {
			s.warnDangling(sl.og, err.Error())
			return
		}
		if gotOg.ID != sl.og.ID {
			s.warnDangling(sl.og, "object id mismatch in xref table")
			return
		}
		sl.value = s.resolveReferences(val)
	case XRefInStream:
		val, err := s.getFromObjectStream(entry)
		if err != nil {
			s.warnDangling(sl.og, err.Error())
			return
		}
		sl.value = s.resolveReferences(val)
	}
}

func (s *ObjectStore) warnDangling(og ObjGen, reason string) {
	if s.doc == nil {
		return
	}
	s.doc.warn(s.doc.damaged(DamagedPDF, "dangling reference to "+og.String()+": "+reason))
}

// resolveReferences walks a freshly parsed value, replacing every
// referenceValue marker left by the tokenizer with a real Handle bound
// to this store's slots.
func (s *ObjectStore) resolveReferences(v Value) Value {
	switch val := v.(type) {
	case Array:
		for i, h := range val {
			val[i] = s.resolveHandleReferences(h)
		}
		return val
	case Dictionary:
		for k, h := range val {
			val[k] = s.resolveHandleReferences(h)
		}
		return val
	case *StreamValue:
		s.resolveReferences(val.Dict)
		if fi, ok := val.Payload.(FromInput); ok && fi.Encryption == nil {
			// wire in this store's default encryption, if any, so that a
			// stream parsed lazily still gets decrypted consistently.
			if enc := s.doc.encryption(); enc != nil {
				fi.Encryption = enc
				val.Payload = fi
			}
		}
		return val
	default:
		return v
	}
}

func (s *ObjectStore) resolveHandleReferences(h Handle) Handle {
	if ref, ok := h.val.(referenceValue); ok {
		return s.Get(ref.og)
	}
	if v, ok := h.val.(Value); ok {
		if arr, isArr := v.(Array); isArr {
			s.resolveReferences(arr)
		} else if dict, isDict := v.(Dictionary); isDict {
			s.resolveReferences(dict)
		}
	}
	return h
}

// getFromObjectStream materializes one entry of a compressed object
// stream (spec 4.G's "object streams" supplement): the object stream
// itself is fetched and decoded like any other stream, then its header
// of (id, offset) pairs is used to slice out the requested object's
// bytes for the same tokenizer that reads regular indirect objects.
func (s *ObjectStore) getFromObjectStream(entry XRefEntry) (Value, error) {
	streamOg := ObjGen{ID: entry.StreamID}
	h := s.Get(streamOg)
	sv, ok := h.resolvedValue().(*StreamValue)
	if !ok {
		return nil, logicError(OpTypeAssertion, "object stream target is not a stream")
	}
	raw, err := readAllPayload(sv.Payload)
	if err != nil {
		return nil, err
	}
	decoded, err := decodeStreamBytes(sv.Dict, raw)
	if err != nil {
		return nil, err
	}

	n, _ := sv.Dict["N"].resolvedValue().(Integer)
	first, _ := sv.Dict["First"].resolvedValue().(Integer)

	src := newBytesSource("object stream", decoded)
	sc := newTokenScanner(src)
	var offset int64 = -1
	for i := int64(0); i < int64(n); i++ {
		sc.skipWhitespace()
		if _, err := sc.readUint(); err != nil { // contained object's id, unused here
			break
		}
		sc.skipWhitespace()
		off, err := sc.readUint()
		if err != nil {
			break
		}
		if i == int64(entry.StreamIdx) {
			offset = int64(first) + int64(off)
			break
		}
	}
	if offset < 0 {
		return nil, logicError(OpTypeAssertion, "object index not found in object stream header")
	}
	sc2 := newTokenScanner(src)
	if _, err := sc2.seek(offset); err != nil {
		return nil, err
	}
	sc2.skipWhitespace()
	return sc2.readValue()
}

// MakeIndirect stores v as a freshly minted indirect object and returns a
// Handle to it.
func (s *ObjectStore) MakeIndirect(v Value) Handle {
	og := ObjGen{ID: s.nextID}
	s.nextID++
	sl := &slot{store: s, og: og, value: v}
	s.slots[og.ID] = sl
	return Handle{slot: sl}
}

// NewReserved allocates a fresh ObjGen holding a reservedValue
// placeholder, per spec 4.D's reserved-slot construction: the returned
// Handle can be embedded into other objects immediately (a cycle can be
// wired before the reserved slot's real content is known), and must
// later be finalized with ReplaceReserved.
func (s *ObjectStore) NewReserved() Handle {
	og := ObjGen{ID: s.nextID}
	s.nextID++
	sl := &slot{store: s, og: og, value: reservedValue{}}
	s.slots[og.ID] = sl
	return Handle{slot: sl}
}

// ReplaceReserved finalizes a reserved handle's content. It is a logic
// error to call it on a handle that is not both indirect and currently
// reserved.
func (s *ObjectStore) ReplaceReserved(h Handle, v Value) error {
	if h.slot == nil {
		return logicError(OpReplaceNonReserved, "handle is direct")
	}
	if _, ok := h.slot.value.(reservedValue); !ok {
		return logicError(OpReplaceNonReserved, "handle is not reserved")
	}
	h.slot.value = v
	return nil
}

// Replace overwrites an already-resolved indirect object's value in
// place, preserving its ObjGen and every existing reference to it.
func (s *ObjectStore) Replace(h Handle, v Value) error {
	if h.slot == nil {
		return logicError(OpCopyDirectHandle, "handle is direct")
	}
	h.slot.value = v
	return nil
}

// Swap exchanges the contents of two indirect slots in place, so that
// every existing reference to a now points at what used to be b's value
// and vice versa, without walking or rewriting the objects that hold
// those references.
func (s *ObjectStore) Swap(a, b Handle) error {
	if a.slot == nil || b.slot == nil {
		return logicError(OpCopyDirectHandle, "swap requires two indirect handles")
	}
	a.slot.value, b.slot.value = b.slot.value, a.slot.value
	return nil
}

// NextID returns (and does not consume) the id that the next call to
// MakeIndirect or NewReserved will assign.
func (s *ObjectStore) NextID() uint32 { return s.nextID }

// All returns every ObjGen currently known to the store, in ascending
// id order. Used by Document.AllObjects.
func (s *ObjectStore) All() []ObjGen {
	out := make([]ObjGen, 0, len(s.slots))
	for id, sl := range s.slots {
		out = append(out, ObjGen{ID: id, Gen: sl.og.Gen})
	}
	sortObjGens(out)
	return out
}

func sortObjGens(gens []ObjGen) {
	for i := 1; i < len(gens); i++ {
		for j := i; j > 0 && gens[j].ID < gens[j-1].ID; j-- {
			gens[j], gens[j-1] = gens[j-1], gens[j]
		}
	}
}

// FixDangling resolves every currently-unresolved slot, converting any
// that turn out to reference nonexistent objects to Null and recording a
// warning for each -- qpdf's fixDanglingReferences pass, run once after
// the whole xref chain has been read (spec 4.D, 4.G's page-tree-boundary
// exception aside: dangling repair is unconditional, unlike the copier's
// boundary rule).
func (s *ObjectStore) FixDangling() {
	for _, sl := range s.slots {
		sl.resolve()
	}
}
