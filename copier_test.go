package pdf

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// graphShape flattens a Handle's resolved object graph into a plain,
// identity-free tree of maps/slices/scalars, so that two graphs from
// different documents (with unrelated object numbers) can be compared
// for structural equality with cmp.Diff. It does not attempt to detect
// cycles: none of the fixtures compared with it contain one.
func graphShape(h Handle) any {
	switch val := h.resolvedValue().(type) {
	case Null:
		return nil
	case Bool:
		return bool(val)
	case Integer:
		return int64(val)
	case Real:
		return string(val)
	case Name:
		return "/" + string(val)
	case String:
		return string(val)
	case Array:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = graphShape(item)
		}
		return out
	case Dictionary:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[string(k)] = graphShape(item)
		}
		return out
	case *StreamValue:
		out := make(map[string]any, len(val.Dict))
		for k, item := range val.Dict {
			out[string(k)] = graphShape(item)
		}
		return out
	default:
		return nil
	}
}

// TestCopyForeignObjectGraphIsStructurallyIdentical copies a nested,
// multi-type object graph and asserts that -- object identity aside --
// the copy contains exactly the same dictionaries, arrays, and scalars
// as the source. graphShape strips both sides down to their content
// before cmp.Diff compares them, since the copy's object numbers belong
// to a different document and will never match the source's.
func TestCopyForeignObjectGraphIsStructurallyIdentical(t *testing.T) {
	src := EmptyPDF()
	leaf := src.MakeIndirect(Dictionary{
		"Kind":   NewDirect(Name("Leaf")),
		"Values": NewDirect(Array{NewDirect(Integer(1)), NewDirect(Integer(2)), NewDirect(Real("3.5"))}),
	})
	root := src.MakeIndirect(Dictionary{
		"Title":   NewDirect(String("report")),
		"Enabled": NewDirect(Bool(true)),
		"Child":   leaf,
		"Missing": NewDirect(Null{}),
	})

	dst := EmptyPDF()
	copied, err := dst.CopyForeignObject(root)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(graphShape(root), graphShape(copied)); diff != "" {
		t.Fatalf("copied graph differs from source graph (-want +got):\n%s", diff)
	}
}

func TestCopyForeignObjectStopsAtPagesBoundary(t *testing.T) {
	src := EmptyPDF()
	pages := src.MakeIndirect(Dictionary{"Type": NewDirect(Name("Pages")), "Count": NewDirect(Integer(1))})
	page := src.MakeIndirect(Dictionary{
		"Type":   NewDirect(Name("Page")),
		"Parent": pages,
	})
	if err := pages.DictSet("Kids", NewDirect(Array{page})); err != nil {
		t.Fatal(err)
	}

	dst := EmptyPDF()
	copiedPage, err := dst.CopyForeignObject(page)
	if err != nil {
		t.Fatal(err)
	}

	parent, err := copiedPage.DictGet("Parent")
	if err != nil {
		t.Fatal(err)
	}
	// the page tree boundary is a whole-object cutoff: the Pages node
	// itself is never copied, so the reference to it resolves to Null
	// rather than to a live (if incomplete) copy of the dictionary.
	if !parent.IsNull() {
		t.Fatal("copied page's /Parent should be Null: the foreign Pages node must not be copied at all")
	}
}

func TestCopyForeignObjectStopsAtSiblingPageLeaf(t *testing.T) {
	src := EmptyPDF()
	sibling := src.MakeIndirect(Dictionary{
		"Type":     NewDirect(Name("Page")),
		"Contents": NewDirect(String("sibling page body")),
	})
	page := src.MakeIndirect(Dictionary{
		"Type":    NewDirect(Name("Page")),
		"Related": sibling,
	})

	dst := EmptyPDF()
	copiedPage, err := dst.CopyForeignObject(page)
	if err != nil {
		t.Fatal(err)
	}

	related, err := copiedPage.DictGet("Related")
	if err != nil {
		t.Fatal(err)
	}
	if !related.IsIndirect() {
		t.Fatal("a reference to a sibling page leaf should still be an indirect object")
	}
	if !related.IsNull() {
		t.Fatal("a reference to a sibling page leaf should resolve to Null: its subgraph must not be dragged into the copy")
	}
}

func TestCopyForeignObjectPagesRootBecomesNullWithWarning(t *testing.T) {
	src := EmptyPDF()
	pages := src.MakeIndirect(Dictionary{"Type": NewDirect(Name("Pages")), "Count": NewDirect(Integer(0))})

	dst := EmptyPDF()
	before := len(dst.GetWarnings())
	copied, err := dst.CopyForeignObject(pages)
	if err != nil {
		t.Fatal(err)
	}
	if !copied.IsNull() {
		t.Fatal("copying a /Type /Pages object directly should yield Null")
	}
	warnings := dst.GetWarnings()
	if len(warnings) != before+1 {
		t.Fatalf("got %d warnings, want %d", len(warnings), before+1)
	}
	const want = "unexpected reference to /Pages object while copying foreign object; replacing with null"
	if got := warnings[len(warnings)-1].Error(); !strings.Contains(got, want) {
		t.Fatalf("warning = %q, want it to contain %q", got, want)
	}
}

func TestCopyForeignObjectPreservesCycles(t *testing.T) {
	src := EmptyPDF()
	a := src.NewReserved()
	b := src.MakeIndirect(Dictionary{"Back": a})
	if err := src.ReplaceReserved(a, Dictionary{"Fwd": b}); err != nil {
		t.Fatal(err)
	}

	dst := EmptyPDF()
	copiedA, err := dst.CopyForeignObject(a)
	if err != nil {
		t.Fatal(err)
	}

	fwd, err := copiedA.DictGet("Fwd")
	if err != nil {
		t.Fatal(err)
	}
	back, err := fwd.DictGet("Back")
	if err != nil {
		t.Fatal(err)
	}
	if back.ObjGen() != copiedA.ObjGen() {
		t.Fatalf("cycle not preserved: Fwd/Back = %v, want %v", back.ObjGen(), copiedA.ObjGen())
	}
}

func TestCopyForeignObjectRejectsDirectHandle(t *testing.T) {
	dst := EmptyPDF()
	if _, err := dst.CopyForeignObject(NewDirect(Integer(1))); err == nil {
		t.Fatal("expected an error copying a direct handle")
	}
}

func TestCopyForeignObjectRejectsSameDocument(t *testing.T) {
	doc := EmptyPDF()
	h := doc.MakeIndirect(Integer(1))
	if _, err := doc.CopyForeignObject(h); err == nil {
		t.Fatal("expected an error copying an object into its own document")
	}
}

func TestCopyForeignObjectDeduplicatesSharedChildren(t *testing.T) {
	src := EmptyPDF()
	shared := src.MakeIndirect(Integer(7))
	root := src.MakeIndirect(Dictionary{"A": shared, "B": shared})

	dst := EmptyPDF()
	copied, err := dst.CopyForeignObject(root)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := copied.DictGet("A")
	b, _ := copied.DictGet("B")
	if a.ObjGen() != b.ObjGen() {
		t.Fatalf("A and B both referenced the same foreign object but copied to %v and %v", a.ObjGen(), b.ObjGen())
	}
}

func TestCopyForeignObjectImmediateMaterializesStreamBytes(t *testing.T) {
	src := EmptyPDF()
	stream := src.NewStream(Dictionary{}, FromBuffer{Bytes: []byte("hello")})

	dst := EmptyPDF()
	copied, err := dst.CopyForeignObjectImmediate(stream)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := copied.RawBytes()
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "hello" {
		t.Fatalf("copied stream bytes = %q, want %q", raw, "hello")
	}
}

func TestCopyForeignObjectLazyStreamRoutesThroughProvider(t *testing.T) {
	src := EmptyPDF()
	raw := []byte("lazy bytes read from the source on demand")
	backing := newBytesSource("backing", raw)
	stream := src.NewStream(Dictionary{}, FromInput{Source: backing, Offset: 0, Length: int64(len(raw))})

	dst := EmptyPDF()
	copied, err := dst.CopyForeignObject(stream)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := copied.DataProvider(); !ok {
		t.Fatal("lazily copied stream should be wired through a StreamDataProvider, not eagerly materialized")
	}
	got, err := copied.RawBytes()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(raw) {
		t.Fatalf("copied stream bytes = %q, want %q", got, raw)
	}
}
