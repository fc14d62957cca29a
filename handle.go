package pdf

// slot is the storage cell shared by every Handle referring to the same
// indirect object. Handles hold a pointer to a slot rather than to a
// value, so replacing or swapping a slot's contents is observed by every
// existing handle -- this is the "reserved-slot trick" the spec builds
// cyclic graphs on top of.
type slot struct {
	store *ObjectStore
	og    ObjGen
	value Value
}

// resolve returns the slot's value, parsing it from the xref-backed
// input source on first access if it is still Unresolved.
func (s *slot) resolve() Value {
	if _, ok := s.value.(unresolvedValue); ok {
		s.store.resolveSlot(s)
	}
	return s.value
}

// Handle is a value-typed reference to either a shared slot (an indirect
// object) or a directly-owned value (a direct object). Handles are cheap
// to copy: copying a Handle never copies the underlying value.
type Handle struct {
	slot *slot
	val  Value
}

// NewDirect wraps a Value as a direct Handle, with no object identity.
func NewDirect(v Value) Handle {
	return Handle{val: v}
}

// NullHandle is a direct Handle to the PDF null object. It is also the
// zero value of Handle.
var NullHandle = Handle{}

func (h Handle) resolvedValue() Value {
	if h.slot != nil {
		return h.slot.resolve()
	}
	if h.val == nil {
		return Null{}
	}
	return h.val
}

// IsIndirect reports whether h refers to a shared slot rather than
// owning a value directly.
func (h Handle) IsIndirect() bool {
	return h.slot != nil
}

// ObjGen returns the identity of the object h refers to, or the zero
// ObjGen if h is direct.
func (h Handle) ObjGen() ObjGen {
	if h.slot == nil {
		return ObjGen{}
	}
	return h.slot.og
}

// OwningDocument returns the document that owns h's slot. It fails for
// direct handles, which have no owning document.
func (h Handle) OwningDocument() (*Document, error) {
	if h.slot == nil {
		return nil, logicError(OpDirectOwner, "handle is direct")
	}
	return h.slot.store.doc, nil
}

func (h Handle) IsNull() bool {
	_, ok := h.resolvedValue().(Null)
	return ok
}

func (h Handle) IsBool() bool {
	_, ok := h.resolvedValue().(Bool)
	return ok
}

func (h Handle) IsInteger() bool {
	_, ok := h.resolvedValue().(Integer)
	return ok
}

func (h Handle) IsReal() bool {
	_, ok := h.resolvedValue().(Real)
	return ok
}

func (h Handle) IsName() bool {
	_, ok := h.resolvedValue().(Name)
	return ok
}

func (h Handle) IsString() bool {
	_, ok := h.resolvedValue().(String)
	return ok
}

func (h Handle) IsArray() bool {
	_, ok := h.resolvedValue().(Array)
	return ok
}

func (h Handle) IsDictionary() bool {
	_, ok := h.resolvedValue().(Dictionary)
	return ok
}

func (h Handle) IsStream() bool {
	_, ok := h.resolvedValue().(*StreamValue)
	return ok
}

func (h Handle) IsReserved() bool {
	_, ok := h.resolvedValue().(reservedValue)
	return ok
}

// isPagesObject reports whether h is (or resolves to) a /Type /Pages
// dictionary, matching qpdf's QPDFObjectHandle::isPagesObject. It is
// deliberately not exported: it is a copier-internal notion, not a
// general property of the data model.
func (h Handle) isPagesObject() bool {
	if d, ok := h.resolvedValue().(Dictionary); ok {
		return d.isPagesType()
	}
	return false
}

// isPageObject reports whether h is a /Type /Page leaf.
func (h Handle) isPageObject() bool {
	if d, ok := h.resolvedValue().(Dictionary); ok {
		return d.isPageType()
	}
	if s, ok := h.resolvedValue().(*StreamValue); ok {
		return s.Dict.isPageType()
	}
	return false
}

func typeAssertion(want string) error {
	return logicError(OpTypeAssertion, "expected "+want)
}

// --- array operations ---

func (h Handle) asArray() (Array, error) {
	a, ok := h.resolvedValue().(Array)
	if !ok {
		return nil, typeAssertion("Array")
	}
	return a, nil
}

func (h Handle) ItemsCount() (int, error) {
	a, err := h.asArray()
	if err != nil {
		return 0, err
	}
	return len(a), nil
}

func (h Handle) ArrayGet(i int) (Handle, error) {
	a, err := h.asArray()
	if err != nil {
		return Handle{}, err
	}
	if i < 0 || i >= len(a) {
		return Handle{}, logicError(OpTypeAssertion, "array index out of range")
	}
	return a[i], nil
}

// Append appends item to the array h refers to and returns the handle to
// use afterwards. If h is indirect the mutation is visible to every
// other handle sharing the slot and the returned handle is h itself; a
// direct handle wraps a slice by value, so appending may reallocate and
// callers must keep using the returned handle, not h.
func (h Handle) Append(item Handle) (Handle, error) {
	a, err := h.asArray()
	if err != nil {
		return Handle{}, err
	}
	a = append(a, item)
	if h.slot != nil {
		h.slot.value = a
		return h, nil
	}
	return NewDirect(a), nil
}

// ArraySet replaces the item at index i. Because it never changes the
// slice's length, this is always observable through h itself, whether h
// is direct or indirect.
func (h Handle) ArraySet(i int, item Handle) error {
	a, err := h.asArray()
	if err != nil {
		return err
	}
	if i < 0 || i >= len(a) {
		return logicError(OpTypeAssertion, "array index out of range")
	}
	a[i] = item
	return nil
}

// --- dictionary operations (also usable on streams, forwarding to the
// stream's Dict, matching qpdf's QPDFObjectHandle where a stream handle
// answers dictionary-shaped accessors directly) ---

func (h Handle) dict() (Dictionary, error) {
	switch v := h.resolvedValue().(type) {
	case Dictionary:
		return v, nil
	case *StreamValue:
		return v.Dict, nil
	default:
		return nil, typeAssertion("Dictionary")
	}
}

func (h Handle) Keys() ([]Name, error) {
	d, err := h.dict()
	if err != nil {
		return nil, err
	}
	return d.Keys(), nil
}

// DictGet returns the value stored under name, or a Null handle if the
// key is absent.
func (h Handle) DictGet(name Name) (Handle, error) {
	d, err := h.dict()
	if err != nil {
		return Handle{}, err
	}
	v, ok := d[name]
	if !ok {
		return NullHandle, nil
	}
	return v, nil
}

func (h Handle) DictSet(name Name, val Handle) error {
	d, err := h.dict()
	if err != nil {
		return err
	}
	d[name] = val
	return nil
}

func (h Handle) DictRemove(name Name) error {
	d, err := h.dict()
	if err != nil {
		return err
	}
	delete(d, name)
	return nil
}

func (h Handle) Has(name Name) (bool, error) {
	d, err := h.dict()
	if err != nil {
		return false, err
	}
	_, ok := d[name]
	return ok, nil
}

// --- stream operations ---

func (h Handle) stream() (*StreamValue, error) {
	s, ok := h.resolvedValue().(*StreamValue)
	if !ok {
		return nil, typeAssertion("Stream")
	}
	return s, nil
}

// StreamDict returns a direct handle sharing the stream's dictionary map,
// so mutations through it are visible on the stream itself.
func (h Handle) StreamDict() (Handle, error) {
	s, err := h.stream()
	if err != nil {
		return Handle{}, err
	}
	return NewDirect(s.Dict), nil
}

// ReplacePayload replaces a stream's payload and updates its /Filter and
// /DecodeParms entries to match.
func (h Handle) ReplacePayload(payload StreamPayload, filter, decodeParms Handle) error {
	s, err := h.stream()
	if err != nil {
		return err
	}
	s.Payload = payload
	if filter.IsNull() {
		delete(s.Dict, "Filter")
	} else {
		s.Dict["Filter"] = filter
	}
	if decodeParms.IsNull() {
		delete(s.Dict, "DecodeParms")
	} else {
		s.Dict["DecodeParms"] = decodeParms
	}
	return nil
}

// RawBytes returns the stream's raw (undecoded) bytes, materializing them
// via the stream data pipeline if necessary.
func (h Handle) RawBytes() ([]byte, error) {
	s, err := h.stream()
	if err != nil {
		return nil, err
	}
	return readAllPayload(s.Payload)
}

func (h Handle) ParsedOffset() (int64, error) {
	s, err := h.stream()
	if err != nil {
		return 0, err
	}
	if fi, ok := s.Payload.(FromInput); ok {
		return fi.Offset, nil
	}
	return 0, nil
}

func (h Handle) Length() (int64, error) {
	s, err := h.stream()
	if err != nil {
		return 0, err
	}
	switch p := s.Payload.(type) {
	case FromInput:
		return p.Length, nil
	case FromBuffer:
		return int64(len(p.Bytes)), nil
	default:
		if n, ok := s.Dict["Length"]; ok {
			if i, ok := n.resolvedValue().(Integer); ok {
				return int64(i), nil
			}
		}
		return 0, nil
	}
}

// DataProvider returns the stream's data provider payload, if any.
func (h Handle) DataProvider() (FromProvider, bool) {
	s, err := h.stream()
	if err != nil {
		return FromProvider{}, false
	}
	p, ok := s.Payload.(FromProvider)
	return p, ok
}

// --- conversions ---

func (h Handle) ToInt() (int64, error) {
	i, ok := h.resolvedValue().(Integer)
	if !ok {
		return 0, typeAssertion("Integer")
	}
	return int64(i), nil
}

func (h Handle) ToString() (string, error) {
	switch v := h.resolvedValue().(type) {
	case String:
		return string(v), nil
	case Name:
		return string(v), nil
	default:
		return "", typeAssertion("String or Name")
	}
}

// MakeDirect returns a copy of h with every indirect reference resolved
// and inlined. It fails if h transitively contains an indirect reference
// that participates in a cycle (and so cannot be flattened to a finite
// direct value) -- this is used when embedding foreign scalars, which by
// construction never legitimately need to preserve sharing.
func (h Handle) MakeDirect() (Handle, error) {
	v, err := makeDirectValue(h, map[ObjGen]bool{})
	if err != nil {
		return Handle{}, err
	}
	return NewDirect(v), nil
}

func makeDirectValue(h Handle, visiting map[ObjGen]bool) (Value, error) {
	if h.slot != nil {
		og := h.slot.og
		if visiting[og] {
			return nil, logicError(OpTypeAssertion, "cannot make direct: reference cycle")
		}
		visiting[og] = true
		defer delete(visiting, og)
	}
	switch v := h.resolvedValue().(type) {
	case Array:
		out := make(Array, len(v))
		for i, item := range v {
			dv, err := makeDirectValue(item, visiting)
			if err != nil {
				return nil, err
			}
			out[i] = NewDirect(dv)
		}
		return out, nil
	case Dictionary:
		out := make(Dictionary, len(v))
		for k, item := range v {
			dv, err := makeDirectValue(item, visiting)
			if err != nil {
				return nil, err
			}
			out[k] = NewDirect(dv)
		}
		return out, nil
	case *StreamValue:
		return nil, logicError(OpTypeAssertion, "cannot make a stream direct")
	default:
		return v, nil
	}
}
