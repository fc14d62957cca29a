package pdf

import (
	"bytes"
	"compress/zlib"
	"encoding/ascii85"
	"io"
	"testing"
)

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecodeStreamBytesFlateDecode(t *testing.T) {
	want := []byte("the quick brown fox jumps over the lazy dog")
	dict := Dictionary{"Filter": NewDirect(Name("FlateDecode"))}
	got, err := decodeStreamBytes(dict, deflate(t, want))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("decoded = %q, want %q", got, want)
	}
}

func TestDecodeStreamBytesFlateDecodeWithUpPredictor(t *testing.T) {
	// two 3-byte rows, predictor tag 2 (Up): row0 raw, row1 delta from row0.
	rows := []byte{
		2, 10, 20, 30, // Up, row 0 (previous row is all zero, so passes through)
		2, 1, 1, 1, // Up, row 1 = row0 + this
	}
	dict := Dictionary{
		"Filter": NewDirect(Name("FlateDecode")),
		"DecodeParms": NewDirect(Dictionary{
			"Predictor": NewDirect(Integer(12)),
			"Colors":    NewDirect(Integer(1)),
			"Columns":   NewDirect(Integer(3)),
		}),
	}
	got, err := decodeStreamBytes(dict, deflate(t, rows))
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{10, 20, 30, 11, 21, 31}
	if !bytes.Equal(got, want) {
		t.Fatalf("decoded = %v, want %v", got, want)
	}
}

func TestDecodeStreamBytesASCIIHexDecode(t *testing.T) {
	dict := Dictionary{"Filter": NewDirect(Name("ASCIIHexDecode"))}
	got, err := decodeStreamBytes(dict, []byte("68656c6c6f>"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("decoded = %q, want %q", got, "hello")
	}
}

func TestDecodeStreamBytesASCII85Decode(t *testing.T) {
	want := []byte("hello, pdf")
	var buf bytes.Buffer
	w := ascii85.NewEncoder(&buf)
	if _, err := w.Write(want); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	dict := Dictionary{"Filter": NewDirect(Name("ASCII85Decode"))}
	got, err := decodeStreamBytes(dict, buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("decoded = %q, want %q", got, want)
	}
}

func TestDecodeStreamBytesFilterChain(t *testing.T) {
	want := []byte("chained filters round-trip")
	dict := Dictionary{
		"Filter": NewDirect(Array{NewDirect(Name("ASCII85Decode")), NewDirect(Name("FlateDecode"))}),
	}
	deflated := deflate(t, want)
	var buf bytes.Buffer
	w := ascii85.NewEncoder(&buf)
	if _, err := w.Write(deflated); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := decodeStreamBytes(dict, buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("decoded = %q, want %q", got, want)
	}
}

func TestDecodeStreamBytesUnknownFilterIsAnError(t *testing.T) {
	dict := Dictionary{"Filter": NewDirect(Name("JBIG2Decode"))}
	if _, err := decodeStreamBytes(dict, []byte("whatever")); err == nil {
		t.Fatal("expected an error for an unregistered filter")
	}
}

func TestRegisterStreamFilterInstallsCustomDecoder(t *testing.T) {
	RegisterStreamFilter("ReverseTest", func(r io.Reader, parms Dictionary) (io.Reader, error) {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		for i, j := 0, len(data)-1; i < j; i, j = i+1, j-1 {
			data[i], data[j] = data[j], data[i]
		}
		return bytes.NewReader(data), nil
	})

	dict := Dictionary{"Filter": NewDirect(Name("ReverseTest"))}
	got, err := decodeStreamBytes(dict, []byte("olleh"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("decoded = %q, want %q", got, "hello")
	}
}
