package pdf

import (
	"bytes"
	"fmt"
	"testing"
)

// buildMinimalPDF assembles a tiny well-formed PDF (one catalog, one Pages
// node, one Page) with a classic cross-reference table, computing every
// xref offset from the bytes actually written -- the same bookkeeping a
// real writer performs, done by hand here since this package's Non-goals
// exclude a writer of its own.
func buildMinimalPDF(prefixJunk []byte) []byte {
	var buf bytes.Buffer
	buf.Write(prefixJunk)
	headerOffset := buf.Len()
	buf.WriteString("%PDF-1.7\n")

	offsets := make([]int, 4) // index 0 unused (object 0 is always free)
	offsets[1] = buf.Len() - headerOffset
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	offsets[2] = buf.Len() - headerOffset
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	offsets[3] = buf.Len() - headerOffset
	buf.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R >>\nendobj\n")

	xrefOffset := buf.Len() - headerOffset
	buf.WriteString("xref\n0 4\n")
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= 3; i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	buf.WriteString("trailer\n<< /Size 4 /Root 1 0 R >>\n")
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)

	return buf.Bytes()
}

func TestProcessBytesParsesMinimalPDF(t *testing.T) {
	data := buildMinimalPDF(nil)
	doc, err := ProcessBytes(data, "minimal.pdf", nil)
	if err != nil {
		t.Fatal(err)
	}
	root, err := doc.GetRoot()
	if err != nil {
		t.Fatal(err)
	}
	if !root.IsDictionary() {
		t.Fatal("root is not a dictionary")
	}
	typ, err := root.DictGet("Type")
	if err != nil {
		t.Fatal(err)
	}
	name, err := typ.ToString()
	if err != nil || name != "Catalog" {
		t.Fatalf("Root/Type = %q, %v; want Catalog, nil", name, err)
	}
}

func TestProcessBytesTolerantOfHeaderOffset(t *testing.T) {
	junk := []byte("garbage-prepended-by-some-mail-transport\r\n")
	data := buildMinimalPDF(junk)
	doc, err := ProcessBytes(data, "offset.pdf", nil)
	if err != nil {
		t.Fatal(err)
	}
	root, err := doc.GetRoot()
	if err != nil {
		t.Fatal(err)
	}
	pages, err := root.DictGet("Pages")
	if err != nil {
		t.Fatal(err)
	}
	count, err := pages.DictGet("Count")
	if err != nil {
		t.Fatal(err)
	}
	n, err := count.ToInt()
	if err != nil || n != 1 {
		t.Fatalf("Pages/Count = %d, %v; want 1, nil", n, err)
	}
}

func TestProcessBytesFallsBackToRecoveryWithoutXRef(t *testing.T) {
	data := buildMinimalPDF(nil)
	// truncate everything from "xref" onward, forcing the recovery scan.
	cut := bytes.Index(data, []byte("\nxref\n"))
	if cut < 0 {
		t.Fatal("test PDF has no xref section to cut")
	}
	broken := append(append([]byte{}, data[:cut]...), []byte("\n%%EOF\n")...)

	doc, err := ProcessBytes(broken, "broken.pdf", nil)
	if err != nil {
		t.Fatal(err)
	}
	root, err := doc.GetRoot()
	if err != nil {
		t.Fatal(err)
	}
	if root.IsNull() {
		t.Fatal("recovery scan should have found /Root via the reconstructed catalog")
	}
	typ, err := root.DictGet("Type")
	if err != nil {
		t.Fatal(err)
	}
	if name, _ := typ.ToString(); name != "Catalog" {
		t.Fatalf("recovered Root/Type = %q, want Catalog", name)
	}
}

func TestEmptyPDFHasCatalogRoot(t *testing.T) {
	doc := EmptyPDF()
	root, err := doc.GetRoot()
	if err != nil {
		t.Fatal(err)
	}
	if !root.IsIndirect() {
		t.Fatal("EmptyPDF's root should be an indirect object")
	}
	typ, err := root.DictGet("Type")
	if err != nil {
		t.Fatal(err)
	}
	if name, _ := typ.ToString(); name != "Catalog" {
		t.Fatalf("EmptyPDF root /Type = %q, want Catalog", name)
	}
}

func TestReEntrantParseIsALogicError(t *testing.T) {
	doc := &Document{store: newObjectStore(nil)}
	doc.store.doc = doc
	doc.inParse = true

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected re-entrant parse to panic with a LogicError")
		}
		if _, ok := r.(*LogicError); !ok {
			t.Fatalf("recovered %T, want *LogicError", r)
		}
	}()
	_ = doc.parse(&OpenOptions{})
}
