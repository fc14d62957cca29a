package pdf

import (
	"bytes"
	"io"
	"strconv"
)

// XRefEntryType classifies one cross-reference table entry.
type XRefEntryType int

const (
	// XRefFree marks an object id that is not in use.
	XRefFree XRefEntryType = iota
	// XRefInUse marks an object stored at a direct byte offset.
	XRefInUse
	// XRefInStream marks an object compressed inside an object stream,
	// per the PDF 1.5 cross-reference stream extension.
	XRefInStream
)

// XRefEntry is one row of the resolved cross-reference index: either a
// byte offset (XRefInUse) or the id/index of the containing object
// stream (XRefInStream).
type XRefEntry struct {
	Type       XRefEntryType
	Offset     int64
	Generation uint16
	StreamID   uint32
	StreamIdx  int
}

// XRefIndex is the fully-resolved table mapping every object id
// mentioned anywhere in the xref chain (including older, superseded
// sections reachable through /Prev) to its most recent entry. Building
// it is component C of the data model: everything downstream (the
// object store's lazy resolution) treats it as a read-only lookup
// table.
type XRefIndex struct {
	entries map[uint32]XRefEntry
	trailer Dictionary
	// recovered records whether this index was built by the brute-force
	// object scan rather than by walking a well-formed xref chain.
	recovered bool
}

// initializeXRef parses source's cross-reference chain starting from the
// "startxref" trailer, following /Prev (and, for hybrid files, /XRefStm)
// links until the original file's first xref section. Malformed input
// falls back to reconstructScan, matching qpdf's own tolerance for
// unparsable xref tables (a corrupt startxref offset is damage, not a
// fatal condition).
func initializeXRef(source InputSource) (*XRefIndex, error) {
	idx := &XRefIndex{entries: map[uint32]XRefEntry{}}

	startOffset, err := findStartXRef(source)
	if err != nil {
		return reconstructScan(source)
	}

	seen := map[int64]bool{}
	offset := startOffset
	for offset != 0 {
		if seen[offset] {
			break // circular /Prev chain; stop rather than loop forever
		}
		seen[offset] = true

		trailer, prev, xrefStm, err := idx.readSection(source, offset)
		if err != nil {
			if len(idx.entries) == 0 {
				return reconstructScan(source)
			}
			break
		}
		if idx.trailer == nil {
			idx.trailer = trailer
		} else {
			for k, v := range trailer {
				if _, ok := idx.trailer[k]; !ok {
					idx.trailer[k] = v
				}
			}
		}
		if xrefStm != 0 {
			if _, _, _, err := idx.readSection(source, xrefStm); err != nil {
				// a broken hybrid-reference stream is tolerated; the classic
				// section already read still stands.
				_ = err
			}
		}
		offset = prev
	}

	if idx.trailer == nil || idx.trailer["Root"].IsNull() {
		return reconstructScan(source)
	}
	return idx, nil
}

func findStartXRef(source InputSource) (int64, error) {
	// every candidate is rejected so the scan visits all of them; the last
	// one seen belongs to the newest revision at the file tail.
	last := int64(-1)
	_, err := source.FindFirst([]byte("startxref"), 1<<30, 1<<20, func() bool {
		last, _ = source.Tell()
		return false
	})
	if err != nil || last < 0 {
		return 0, logicError(OpTypeAssertion, "startxref not found")
	}
	if _, err := source.Seek(last, io.SeekStart); err != nil {
		return 0, err
	}
	sc := newTokenScanner(source)
	sc.pos = last
	sc.readKeyword() // "startxref"
	sc.skipWhitespace()
	n, err := sc.readUint()
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

// readSection parses one xref section (classic table or xref stream) at
// offset, returning its trailer dictionary, its /Prev offset (0 if
// absent), and its /XRefStm hybrid-reference offset (0 if absent).
// Entries already present in idx.entries are left untouched: the newest
// section is always read first, so an id's first sighting wins.
func (idx *XRefIndex) readSection(source InputSource, offset int64) (Dictionary, int64, int64, error) {
	sc := newTokenScanner(source)
	if _, err := sc.seek(offset); err != nil {
		return nil, 0, 0, err
	}
	sc.skipWhitespace()

	if sc.peekKeyword("xref") {
		return idx.readClassicSection(sc)
	}
	return idx.readStreamSection(source, sc)
}

func (idx *XRefIndex) readClassicSection(sc *tokenScanner) (Dictionary, int64, int64, error) {
	sc.readKeyword() // "xref"
	for {
		sc.skipWhitespace()
		if sc.peekKeyword("trailer") {
			break
		}
		if !isDigitByte(sc.peekAt(0)) {
			break
		}
		start, err := sc.readUint()
		if err != nil {
			return nil, 0, 0, err
		}
		sc.skipWhitespace()
		count, err := sc.readUint()
		if err != nil {
			return nil, 0, 0, err
		}
		for i := uint64(0); i < count; i++ {
			sc.skipWhitespace()
			off, err := sc.readUint()
			if err != nil {
				return nil, 0, 0, err
			}
			sc.skipWhitespace()
			gen, err := sc.readUint()
			if err != nil {
				return nil, 0, 0, err
			}
			sc.skipWhitespace()
			kw := sc.readKeyword()
			id := uint32(start + i)
			if _, exists := idx.entries[id]; !exists && kw == "n" {
				idx.entries[id] = XRefEntry{Type: XRefInUse, Offset: int64(off), Generation: uint16(gen)}
			} else if _, exists := idx.entries[id]; !exists {
				idx.entries[id] = XRefEntry{Type: XRefFree}
			}
		}
	}
	sc.skipWhitespace()
	if err := sc.expectKeyword("trailer"); err != nil {
		return nil, 0, 0, err
	}
	sc.skipWhitespace()
	trailer, err := sc.readDict()
	if err != nil {
		return nil, 0, 0, err
	}
	var prev, xrefStm int64
	if h, ok := trailer["Prev"]; ok {
		if i, ok := h.resolvedValue().(Integer); ok {
			prev = int64(i)
		}
	}
	if h, ok := trailer["XRefStm"]; ok {
		if i, ok := h.resolvedValue().(Integer); ok {
			xrefStm = int64(i)
		}
	}
	return trailer, prev, xrefStm, nil
}

func (idx *XRefIndex) readStreamSection(source InputSource, sc *tokenScanner) (Dictionary, int64, int64, error) {
	p := &defaultParser{}
	startPos, _ := sc.tell()
	val, _, err := p.Parse(source, startPos, 0)
	if err != nil {
		return nil, 0, 0, err
	}
	sv, ok := val.(*StreamValue)
	if !ok {
		return nil, 0, 0, logicError(OpTypeAssertion, "xref stream is not a stream")
	}
	raw, err := readAllPayload(sv.Payload)
	if err != nil {
		return nil, 0, 0, err
	}
	decoded, err := decodeStreamBytes(sv.Dict, raw)
	if err != nil {
		return nil, 0, 0, err
	}

	w := widthsOf(sv.Dict)
	size := dictInt(sv.Dict, "Size", 0)
	index := indexPairsOf(sv.Dict, size)

	rowLen := w[0] + w[1] + w[2]
	pos := 0
	for _, pair := range index {
		start, count := pair[0], pair[1]
		for i := 0; i < count && pos+rowLen <= len(decoded); i++ {
			row := decoded[pos : pos+rowLen]
			pos += rowLen
			id := uint32(start + i)
			if _, exists := idx.entries[id]; exists {
				continue
			}
			f0 := readField(row[:w[0]], 1)
			f1 := readField(row[w[0]:w[0]+w[1]], 0)
			f2 := readField(row[w[0]+w[1]:], 0)
			switch f0 {
			case 0:
				idx.entries[id] = XRefEntry{Type: XRefFree}
			case 1:
				idx.entries[id] = XRefEntry{Type: XRefInUse, Offset: f1, Generation: uint16(f2)}
			case 2:
				idx.entries[id] = XRefEntry{Type: XRefInStream, StreamID: uint32(f1), StreamIdx: int(f2)}
			}
		}
	}

	var prev int64
	if h, ok := sv.Dict["Prev"]; ok {
		if i, ok := h.resolvedValue().(Integer); ok {
			prev = int64(i)
		}
	}
	return sv.Dict, prev, 0, nil
}

func widthsOf(dict Dictionary) [3]int {
	var w [3]int
	if h, ok := dict["W"]; ok {
		if a, ok := h.resolvedValue().(Array); ok {
			for i := 0; i < 3 && i < len(a); i++ {
				if n, ok := a[i].resolvedValue().(Integer); ok {
					w[i] = int(n)
				}
			}
		}
	}
	return w
}

func indexPairsOf(dict Dictionary, size int) [][2]int {
	if h, ok := dict["Index"]; ok {
		if a, ok := h.resolvedValue().(Array); ok {
			var out [][2]int
			for i := 0; i+1 < len(a); i += 2 {
				start, _ := a[i].resolvedValue().(Integer)
				count, _ := a[i+1].resolvedValue().(Integer)
				out = append(out, [2]int{int(start), int(count)})
			}
			return out
		}
	}
	return [][2]int{{0, size}}
}

func readField(b []byte, def int64) int64 {
	if len(b) == 0 {
		return def
	}
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

func isDigitByte(b byte) bool { return b >= '0' && b <= '9' }

// reconstructScan rebuilds an xref index from scratch by scanning the
// whole file for "N G obj" markers, the recovery path a real-world
// reader falls back to when the xref chain itself is unusable -- qpdf's
// QPDF::reconstruct_xref, generalized here to a linear forward scan since
// InputSource has no cheap "read everything" primitive of its own.
func reconstructScan(source InputSource) (*XRefIndex, error) {
	idx := &XRefIndex{entries: map[uint32]XRefEntry{}, recovered: true}

	if _, err := source.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(readerFunc(source.Read))
	if err != nil && len(data) == 0 {
		return nil, err
	}

	var trailerDict Dictionary
	pos := 0
	for pos < len(data) {
		idxObj := bytes.Index(data[pos:], []byte(" obj"))
		if idxObj < 0 {
			break
		}
		objAt := pos + idxObj
		id, gen, headerStart, ok := backscanObjHeader(data, objAt)
		if ok {
			bsrc := newBytesSource(source.Name(), data)
			p := &defaultParser{}
			val, og, perr := p.Parse(bsrc, int64(headerStart), id)
			if perr == nil && og.ID == id {
				idx.entries[id] = XRefEntry{Type: XRefInUse, Offset: int64(headerStart), Generation: gen}
				if d, isDict := val.(Dictionary); isDict {
					if t, ok := d["Type"].resolvedValue().(Name); ok && t == "Catalog" {
						trailerDict = Dictionary{"Root": NewDirect(referenceValue{og: ObjGen{ID: id, Gen: gen}})}
					}
				}
			}
		}
		pos = objAt + 4
	}

	if ti := bytes.LastIndex(data, []byte("trailer")); ti >= 0 {
		bsrc := newBytesSource(source.Name(), data)
		sc := newTokenScanner(bsrc)
		sc.pos = int64(ti)
		sc.readKeyword()
		sc.skipWhitespace()
		if d, err := sc.readDict(); err == nil {
			trailerDict = d
		}
	}
	if trailerDict == nil {
		trailerDict = Dictionary{}
	}
	idx.trailer = trailerDict
	return idx, nil
}

// backscanObjHeader walks backward from the " obj" match at objAt to
// recover the preceding "id gen" header, tolerating the usual
// whitespace variance between them.
func backscanObjHeader(data []byte, objAt int) (id uint32, gen uint16, start int, ok bool) {
	i := objAt
	i = skipBackWhitespace(data, i)
	genEnd := i
	i = skipBackDigits(data, i)
	genStart := i
	if genStart == genEnd {
		return 0, 0, 0, false
	}
	i = skipBackWhitespace(data, i)
	idEnd := i
	i = skipBackDigits(data, i)
	idStart := i
	if idStart == idEnd {
		return 0, 0, 0, false
	}
	idVal, err1 := strconv.ParseUint(string(data[idStart:idEnd]), 10, 32)
	genVal, err2 := strconv.ParseUint(string(data[genStart:genEnd]), 10, 16)
	if err1 != nil || err2 != nil {
		return 0, 0, 0, false
	}
	return uint32(idVal), uint16(genVal), idStart, true
}

func skipBackWhitespace(data []byte, i int) int {
	for i > 0 && isSpaceByte(data[i-1]) {
		i--
	}
	return i
}

func skipBackDigits(data []byte, i int) int {
	for i > 0 && isDigitByte(data[i-1]) {
		i--
	}
	return i
}

// readerFunc adapts a bare Read method to io.Reader.
type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
