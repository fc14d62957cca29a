package pdf

import "testing"

func parseObject(t *testing.T, body string) Value {
	t.Helper()
	src := newBytesSource("t", []byte("1 0 obj\n"+body+"\nendobj\n"))
	p := &defaultParser{}
	val, og, err := p.Parse(src, 0, 1)
	if err != nil {
		t.Fatalf("parsing %q: %v", body, err)
	}
	if og != (ObjGen{ID: 1, Gen: 0}) {
		t.Fatalf("parsed ObjGen = %v, want {1 0}", og)
	}
	return val
}

func TestTokenizerParsesScalars(t *testing.T) {
	if v := parseObject(t, "42"); v != Integer(42) {
		t.Fatalf("got %#v, want Integer(42)", v)
	}
	if v := parseObject(t, "-17"); v != Integer(-17) {
		t.Fatalf("got %#v, want Integer(-17)", v)
	}
	if v := parseObject(t, "3.14"); v != Real("3.14") {
		t.Fatalf("got %#v, want Real(\"3.14\")", v)
	}
	if v := parseObject(t, "true"); v != Bool(true) {
		t.Fatalf("got %#v, want Bool(true)", v)
	}
	if v := parseObject(t, "null"); v != (Null{}) {
		t.Fatalf("got %#v, want Null{}", v)
	}
	if v := parseObject(t, "/SomeName"); v != Name("SomeName") {
		t.Fatalf("got %#v, want Name(\"SomeName\")", v)
	}
}

func TestTokenizerParsesNameWithHexEscape(t *testing.T) {
	v := parseObject(t, "/A#20B")
	if v != Name("A B") {
		t.Fatalf("got %#v, want Name(\"A B\")", v)
	}
}

func TestTokenizerParsesLiteralStringWithEscapes(t *testing.T) {
	v := parseObject(t, `(line one\nline (nested) two)`)
	s, ok := v.(String)
	if !ok {
		t.Fatalf("got %T, want String", v)
	}
	want := "line one\nline (nested) two"
	if string(s) != want {
		t.Fatalf("got %q, want %q", s, want)
	}
}

func TestTokenizerParsesHexString(t *testing.T) {
	v := parseObject(t, "<68656C6C6F>")
	s, ok := v.(String)
	if !ok {
		t.Fatalf("got %T, want String", v)
	}
	if string(s) != "hello" {
		t.Fatalf("got %q, want %q", s, "hello")
	}
}

func TestTokenizerParsesReferenceAsMarker(t *testing.T) {
	v := parseObject(t, "5 0 R")
	ref, ok := v.(referenceValue)
	if !ok {
		t.Fatalf("got %T, want referenceValue", v)
	}
	if ref.og != (ObjGen{ID: 5, Gen: 0}) {
		t.Fatalf("got %v, want {5 0}", ref.og)
	}
}

func TestTokenizerParsesArrayOfMixedItems(t *testing.T) {
	v := parseObject(t, "[1 2 /Name (str) 4 0 R]")
	arr, ok := v.(Array)
	if !ok {
		t.Fatalf("got %T, want Array", v)
	}
	if len(arr) != 5 {
		t.Fatalf("len = %d, want 5", len(arr))
	}
	n, err := arr[0].ToInt()
	if err != nil || n != 1 {
		t.Fatalf("arr[0] = %d, %v; want 1, nil", n, err)
	}
	if _, ok := arr[4].val.(referenceValue); !ok {
		t.Fatalf("arr[4] = %T, want an unresolved referenceValue", arr[4].val)
	}
}

func TestTokenizerParsesNestedDictionary(t *testing.T) {
	v := parseObject(t, "<< /Type /Example /Inner << /X 1 /Y 2 >> >>")
	d, ok := v.(Dictionary)
	if !ok {
		t.Fatalf("got %T, want Dictionary", v)
	}
	inner, ok := d["Inner"].val.(Dictionary)
	if !ok {
		t.Fatalf("Inner = %T, want Dictionary", d["Inner"].val)
	}
	x, err := inner["X"].ToInt()
	if err != nil || x != 1 {
		t.Fatalf("Inner/X = %d, %v; want 1, nil", x, err)
	}
}

func TestTokenizerParsesStreamWithLiteralLength(t *testing.T) {
	payload := "hello stream body"
	body := "<< /Length 17 >>\nstream\n" + payload + "\nendstream"
	src := newBytesSource("t", []byte("1 0 obj\n"+body+"\nendobj\n"))
	p := &defaultParser{}
	val, _, err := p.Parse(src, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	sv, ok := val.(*StreamValue)
	if !ok {
		t.Fatalf("got %T, want *StreamValue", val)
	}
	raw, err := readAllPayload(sv.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != payload {
		t.Fatalf("stream bytes = %q, want %q", raw, payload)
	}
}

func TestScannerSkipsCommentsAsWhitespace(t *testing.T) {
	src := newBytesSource("t", []byte("% a comment\n   42"))
	sc := newTokenScanner(src)
	sc.skipWhitespace()
	n, err := sc.readUint()
	if err != nil || n != 42 {
		t.Fatalf("readUint() = %d, %v; want 42, nil", n, err)
	}
}
