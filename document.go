package pdf

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// Document is the facade component D-through-H are assembled behind: a
// single indirect-object graph together with the input source it was
// parsed from (if any), its cross-reference index, its accumulated
// warnings, and its encryption handler. Every Handle obtained from a
// Document is only ever valid for that Document -- copying an object
// across documents requires CopyForeignObject.
type Document struct {
	store   *ObjectStore
	source  InputSource
	xref    *XRefIndex
	trailer Dictionary
	parser  Parser
	crypt   EncryptionParams
	version Version

	cfg      documentConfig
	warnings []error

	filename              string
	lastObjectDescription string
	inParse               bool

	uniqueID      uint64
	copyProviders map[uint64]*CopiedStreamDataProvider
}

// copyProviderFor returns the (singleton, per source document) stream
// data provider used to lazily pull copied streams' bytes from src,
// creating it on first use. Reusing one provider per source document --
// rather than minting one per copied stream -- means a copy that touches
// many streams from the same foreign document keeps only one small
// object alive to serve all of them. Keyed by src's process-wide unique
// id (assigned once, at construction, from the same atomic counter as
// qpdf's QPDF::getUniqueId) rather than by *Document pointer, so the key
// space matches qpdf's own object identity rather than Go's memory
// addresses.
func (d *Document) copyProviderFor(src *Document) *CopiedStreamDataProvider {
	if d.copyProviders == nil {
		d.copyProviders = map[uint64]*CopiedStreamDataProvider{}
	}
	key := src.uniqueID
	p, ok := d.copyProviders[key]
	if !ok {
		p = &CopiedStreamDataProvider{srcDoc: src}
		d.copyProviders[key] = p
	}
	return p
}

// EmptyPDF creates a new Document with no backing input source, ready to
// have objects built up via MakeIndirect/NewStream/NewReserved and later
// populated via CopyForeignObject -- the starting point for programs
// that assemble a PDF rather than edit an existing one.
func EmptyPDF() *Document {
	d := &Document{
		trailer:  Dictionary{},
		source:   newInvalidInputSource("document has no input source"),
		version:  Version{Major: 1, Minor: 3},
		uniqueID: nextUniqueID(),
	}
	d.store = newObjectStore(d)
	root := d.store.MakeIndirect(Dictionary{"Type": NewDirect(Name("Catalog"))})
	d.trailer["Root"] = root
	return d
}

// ProcessFile opens the file at path and parses it as a PDF document.
func ProcessFile(path string, opts *OpenOptions) (*Document, error) {
	src, err := newFileSource(path)
	if err != nil {
		return nil, err
	}
	return newDocumentFromSource(src, path, opts)
}

// ProcessBytes parses an in-memory PDF, identified for diagnostics
// purposes by name.
func ProcessBytes(data []byte, name string, opts *OpenOptions) (*Document, error) {
	src := newBytesSource(name, data)
	return newDocumentFromSource(src, name, opts)
}

func newDocumentFromSource(src InputSource, name string, opts *OpenOptions) (*Document, error) {
	if opts == nil {
		opts = &OpenOptions{}
	}
	d := &Document{
		filename: name,
		uniqueID: nextUniqueID(),
		cfg: documentConfig{
			suppressWarnings: opts.SuppressWarnings,
			maxWarnings:      opts.MaxWarnings,
			checkMode:        opts.CheckMode,
		},
	}
	d.store = newObjectStore(d)

	headerOffset, version, err := scanHeader(src)
	if err != nil {
		// QPDFWriter writes files that usually require at least version
		// 1.2 for /FlateDecode, so that is the fallback qpdf assumes too.
		d.warn(d.damaged(DamagedPDF, "can't find PDF header"))
		version = Version{Major: 1, Minor: 2}
		headerOffset = 0
	}
	d.version = version
	d.source = newOffsetSource(src, headerOffset)

	if err := d.parse(opts); err != nil {
		return nil, err
	}
	return d, nil
}

// scanHeader locates the "%PDF-M.N" header, tolerating arbitrary bytes
// prepended before it (a convention real-world PDF producers rely on and
// real-world readers must honor), and returns its byte offset together
// with the parsed version.
func scanHeader(src InputSource) (int64, Version, error) {
	found, err := src.FindFirst([]byte("%PDF-"), 1024, 1024, func() bool { return true })
	if err != nil || !found {
		return 0, Version{}, logicError(OpTypeAssertion, "missing %PDF- header")
	}
	offset, _ := src.Tell()
	buf := make([]byte, 16)
	n, _ := src.Read(buf)
	buf = buf[:n]
	rest := strings.TrimPrefix(string(buf), "%PDF-")
	end := strings.IndexAny(rest, "\r\n \t")
	if end >= 0 {
		rest = rest[:end]
	}
	v, ok := parseVersion(rest)
	if !ok {
		v = Version{Major: 1, Minor: 4}
	}
	return offset, v, nil
}

// parse builds the document's cross-reference index and wires it (plus
// the default tokenizer and, if a password was supplied, a decryption
// handler) into the object store. Calling it while a parse is already in
// progress on the same Document is a logic error: nothing in the data
// model legitimately re-enters this method.
func (d *Document) parse(opts *OpenOptions) error {
	if d.inParse {
		logicPanic(OpReEntrantParse, "Document.parse called re-entrantly")
	}
	d.inParse = true
	defer func() { d.inParse = false }()

	var xr *XRefIndex
	var err error
	if opts.IgnoreXRefStreams {
		xr, err = reconstructScan(d.source)
	} else {
		xr, err = initializeXRef(d.source)
	}
	if err != nil {
		return err
	}
	d.xref = xr
	d.trailer = xr.trailer
	if d.trailer == nil {
		d.trailer = Dictionary{}
	}

	d.parser = &defaultParser{store: d.store}
	d.store.source = d.source
	d.store.xref = xr
	d.store.parser = d.parser

	if opts.Password != "" {
		key, err := d.deriveFileKey(opts)
		if err != nil {
			d.warn(d.damaged(PasswordError, err.Error()))
		} else {
			d.crypt = NewStandardSecurityHandler(key, d.encryptDictWantsAES())
		}
	}

	d.trailer = d.resolveTrailerReferences(d.trailer)

	if d.trailer["Root"].IsNull() {
		d.warn(d.damaged(DamagedPDF, "trailer has no /Root entry"))
	} else if root := d.trailer["Root"]; len(xr.entries) > 0 && root.IsDictionary() {
		pages, _ := root.DictGet("Pages")
		if !pages.IsDictionary() {
			return d.damaged(DamagedPDF, "unable to find page tree")
		}
	}
	return nil
}

func (d *Document) resolveTrailerReferences(dict Dictionary) Dictionary {
	out := Dictionary{}
	for k, h := range dict {
		if ref, ok := h.val.(referenceValue); ok {
			out[k] = d.store.Get(ref.og)
		} else {
			out[k] = h
		}
	}
	return out
}

func (d *Document) encryptDictWantsAES() bool {
	eh, ok := d.trailer["Encrypt"]
	if !ok {
		return false
	}
	dict, ok := eh.resolvedValue().(Dictionary)
	if !ok {
		return false
	}
	v, _ := dict["V"].resolvedValue().(Integer)
	return v >= 4
}

func (d *Document) deriveFileKey(opts *OpenOptions) ([]byte, error) {
	if opts.PasswordIsHexKey {
		return decodeHexKey(opts.Password)
	}
	return NormalizePassword(opts.Password)
}

func decodeHexKey(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, logicError(OpTypeAssertion, "hex key has odd length")
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		hi := hexVal(s[2*i])
		lo := hexVal(s[2*i+1])
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func (d *Document) encryption() EncryptionParams { return d.crypt }

func (d *Document) name() string {
	if d.filename == "" {
		return "<memory>"
	}
	return d.filename
}

// warn records e as a warning and writes "WARNING: <message>" to
// os.Stderr. Once cfg.maxWarnings warnings (if nonzero) have
// accumulated, a further warning is not recorded; it panics with a
// LogicError rather than being silently dropped, on the theory that a
// file this damaged is no longer safe to keep processing quietly.
func (d *Document) warn(e error) {
	if e == nil || d.cfg.suppressWarnings {
		return
	}
	if d.cfg.maxWarnings > 0 && len(d.warnings) >= d.cfg.maxWarnings {
		logicPanic(OpTypeAssertion, "too many warnings; aborting")
	}
	d.warnings = append(d.warnings, e)
	fmt.Fprintf(os.Stderr, "WARNING: %s\n", e.Error())
}

// GetWarnings returns every warning accumulated so far.
func (d *Document) GetWarnings() []error {
	out := make([]error, len(d.warnings))
	copy(out, d.warnings)
	return out
}

// GetRoot returns the document's /Root catalog handle. A /Root that does
// not resolve to a dictionary is fatal damage -- nothing in the object
// model can proceed without a catalog, matching qpdf's QPDF::getRoot,
// which throws in exactly this situation. In CheckMode, a catalog whose
// /Type is missing or wrong is instead repaired in place (after a
// warning) rather than treated as fatal, again matching qpdf.
func (d *Document) GetRoot() (Handle, error) {
	root := d.trailer["Root"]
	if !root.IsDictionary() {
		return Handle{}, d.damaged(DamagedPDF, "unable to find /Root dictionary")
	}
	if d.cfg.checkMode {
		typ, _ := root.DictGet("Type")
		if name, _ := typ.ToString(); name != "Catalog" {
			d.warn(d.damaged(DamagedPDF, "catalog /Type entry missing or invalid"))
			_ = root.DictSet("Type", NewDirect(Name("Catalog")))
		}
	}
	return root, nil
}

// GetTrailer returns a direct handle sharing the trailer dictionary.
func (d *Document) GetTrailer() Handle {
	return NewDirect(d.trailer)
}

// CloseInputSource releases the document's underlying file (if any) and
// replaces it with an invalid source, so that any later attempt to
// resolve a not-yet-parsed lazy object fails loudly instead of reading
// from a closed file descriptor.
func (d *Document) CloseInputSource() error {
	var err error
	if fs, ok := d.source.(*fileSource); ok {
		err = fs.Close()
	} else if off, ok := d.source.(*offsetSource); ok {
		if fs, ok := off.inner.(*fileSource); ok {
			err = fs.Close()
		}
	}
	d.source = newInvalidInputSource("input source has been closed")
	d.store.source = d.source
	return err
}

// GetXRefTable returns the document's resolved cross-reference index. It
// is a logic error to call this before a document has been parsed (an
// EmptyPDF document never has one).
func (d *Document) GetXRefTable() *XRefIndex {
	if d.xref == nil {
		logicPanic(OpUninitializedXRef, "GetXRefTable called before parsing")
	}
	return d.xref
}

// ShowXRefTable renders the cross-reference table as a human-readable
// report, truncating each entry's line to the width of the
// controlling terminal (falling back to 80 columns when stdout is not a
// terminal), matching the teacher's own terminal-aware CLI formatting.
func (d *Document) ShowXRefTable() string {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	if d.xref == nil {
		return "(no cross-reference table)"
	}
	var b strings.Builder
	ids := make([]uint32, 0, len(d.xref.entries))
	for id := range d.xref.entries {
		ids = append(ids, id)
	}
	sortUint32s(ids)
	for _, id := range ids {
		e := d.xref.entries[id]
		line := formatXRefLine(id, e)
		if len(line) > width {
			line = line[:width]
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func formatXRefLine(id uint32, e XRefEntry) string {
	switch e.Type {
	case XRefFree:
		return fmt.Sprintf("%d: free", id)
	case XRefInUse:
		return fmt.Sprintf("%d: offset %d, generation %d", id, e.Offset, e.Generation)
	case XRefInStream:
		return fmt.Sprintf("%d: in object stream %d at index %d", id, e.StreamID, e.StreamIdx)
	default:
		return fmt.Sprintf("%d: unknown", id)
	}
}

func sortUint32s(xs []uint32) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j] < xs[j-1]; j-- {
			xs[j], xs[j-1] = xs[j-1], xs[j]
		}
	}
}

// GetObjectCount returns the highest object id ever assigned, matching
// qpdf's QPDF::getObjectCount (next_id() - 1) rather than the number of
// slots actually populated -- the two differ whenever an id was skipped,
// e.g. a free entry in the original xref table that nothing filled in.
func (d *Document) GetObjectCount() int {
	return int(d.store.NextID()) - 1
}

// AllObjects returns every ObjGen known to the document, in ascending id
// order -- qpdf's QPDF::getAllObjects.
func (d *Document) AllObjects() []ObjGen {
	return d.store.All()
}

// NewIndirectNull allocates a fresh indirect object holding Null.
func (d *Document) NewIndirectNull() Handle {
	return d.store.MakeIndirect(Null{})
}

// NewReserved allocates a reserved placeholder slot, per the reserved-
// slot cycle-building trick (spec 4.D).
func (d *Document) NewReserved() Handle {
	return d.store.NewReserved()
}

// NewStream allocates a fresh indirect stream object from dict and
// payload.
func (d *Document) NewStream(dict Dictionary, payload StreamPayload) Handle {
	return d.store.MakeIndirect(&StreamValue{Dict: dict, Payload: payload})
}

// MakeIndirect allocates a fresh indirect object holding v.
func (d *Document) MakeIndirect(v Value) Handle {
	return d.store.MakeIndirect(v)
}

// ReplaceReserved finalizes a reserved handle allocated by NewReserved.
func (d *Document) ReplaceReserved(h Handle, v Value) error {
	return d.store.ReplaceReserved(h, v)
}

// SwapObjects exchanges the contents of two indirect objects in place.
func (d *Document) SwapObjects(a, b Handle) error {
	return d.store.Swap(a, b)
}

// RemoveSecurityRestrictions clears the catalog-level restrictions a
// producer can leave behind even in an otherwise unencrypted or
// already-decrypted file: it removes /Root /Perms outright, and if
// /Root /AcroForm /SigFlags is present, resets it to 0 (clearing the
// "this form has signatures" flags that would otherwise make some
// viewers refuse further edits). Matches qpdf's
// QPDF::removeSecurityRestrictions exactly; it does not touch the
// document's decryption handler, which is a separate concern.
func (d *Document) RemoveSecurityRestrictions() error {
	root, err := d.GetRoot()
	if err != nil {
		return err
	}
	if err := root.DictRemove("Perms"); err != nil {
		return err
	}
	acroform, err := root.DictGet("AcroForm")
	if err != nil {
		return err
	}
	if !acroform.IsDictionary() {
		return nil
	}
	sigFlags, err := acroform.DictGet("SigFlags")
	if err != nil {
		return err
	}
	if sigFlags.IsNull() {
		return nil
	}
	return acroform.DictSet("SigFlags", NewDirect(Integer(0)))
}

// GetPDFVersion returns the version recorded (or assumed) for the
// document's header, e.g. "1.7" -- qpdf's QPDF::getPDFVersion.
func (d *Document) GetPDFVersion() string {
	return d.version.String()
}

// PDFVersion is a resolved (major, minor, extension level) triple,
// mirroring qpdf's PDFVersion: the header version plus any Adobe
// extension level declared in /Root/Extensions/ADBE/ExtensionLevel.
type PDFVersion struct {
	Major          int
	Minor          int
	ExtensionLevel int
}

// GetVersionAsPDFVersion returns the document's version as a PDFVersion
// triple, folding in /Root/Extensions/ADBE/ExtensionLevel -- qpdf's
// QPDF::getVersionAsPDFVersion.
func (d *Document) GetVersionAsPDFVersion() PDFVersion {
	return PDFVersion{
		Major:          d.version.Major,
		Minor:          d.version.Minor,
		ExtensionLevel: d.getExtensionLevel(),
	}
}

// getExtensionLevel reads /Root/Extensions/ADBE/ExtensionLevel, defaulting
// to 0 if any step of that path is absent or the wrong type -- qpdf's
// QPDF::getExtensionLevel.
func (d *Document) getExtensionLevel() int {
	root, err := d.GetRoot()
	if err != nil {
		return 0
	}
	ext, err := root.DictGet("Extensions")
	if err != nil || !ext.IsDictionary() {
		return 0
	}
	adbe, err := ext.DictGet("ADBE")
	if err != nil || !adbe.IsDictionary() {
		return 0
	}
	level, err := adbe.DictGet("ExtensionLevel")
	if err != nil || !level.IsInteger() {
		return 0
	}
	n, _ := level.ToInt()
	return int(n)
}
