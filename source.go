package pdf

import (
	"bytes"
	"io"
	"os"
)

// InputSource is a random-access byte stream with a name, matching the
// spec's pinned InputSource contract. FindFirst is used both for the
// initial header scan and for locating "startxref" from the file tail,
// grounded on the teacher's Reader.lastOccurence (xref.go) generalized
// into a reusable "scan for pattern, ask a callback whether to accept
// each candidate" primitive.
type InputSource interface {
	Name() string
	Tell() (int64, error)
	Seek(offset int64, whence int) (int64, error)
	Read(buf []byte) (int, error)
	Unread(b byte) error
	LastOffset() int64

	// FindFirst searches the window bytes that end at start (clipped to
	// the source's bounds) for pattern, invoking callback at each
	// candidate position in ascending order (with the source seeked
	// there). It returns success as soon as a
	// callback call returns true; the source is left positioned at that
	// candidate. If no candidate is accepted, it returns false and the
	// source position is unspecified.
	FindFirst(pattern []byte, start int64, window int64, callback func() bool) (bool, error)
}

// invalidInputSource is installed by Document.CloseInputSource and is the
// input source of a Document built by EmptyPDF. Every operation on it fails with a LogicError describing the
// condition -- a deliberate design pattern (see spec's design notes),
// not a bug: call sites never need to special-case "no source yet",
// they just always dispatch through the (possibly invalid) source.
type invalidInputSource struct {
	reason string
}

func newInvalidInputSource(reason string) *invalidInputSource {
	return &invalidInputSource{reason: reason}
}

func (s *invalidInputSource) Name() string { return s.reason }

func (s *invalidInputSource) fail() error {
	return logicError(OpInvalidSource, s.reason)
}

func (s *invalidInputSource) Tell() (int64, error)         { return 0, s.fail() }
func (s *invalidInputSource) Seek(int64, int) (int64, error) { return 0, s.fail() }
func (s *invalidInputSource) Read([]byte) (int, error)      { return 0, s.fail() }
func (s *invalidInputSource) Unread(byte) error             { return s.fail() }
func (s *invalidInputSource) LastOffset() int64             { return 0 }
func (s *invalidInputSource) FindFirst([]byte, int64, int64, func() bool) (bool, error) {
	return false, s.fail()
}

// fileSource implements InputSource over an *os.File, used by
// Document.ProcessFile when given a path.
type fileSource struct {
	*readerAtSource
	f *os.File
}

func newFileSource(path string) (*fileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileSource{
		readerAtSource: newReaderAtSource(path, f, fi.Size()),
		f:              f,
	}, nil
}

func (s *fileSource) Close() error { return s.f.Close() }

// bytesSource implements InputSource over an in-memory buffer, used by
// ProcessBytes.
func newBytesSource(name string, data []byte) InputSource {
	return newReaderAtSource(name, bytes.NewReader(data), int64(len(data)))
}

// readerAtSource is the shared implementation behind fileSource and
// bytesSource: any io.ReaderAt plus a known size gives us Seek/Read/
// Unread/FindFirst "for free" through a small buffered cursor, matching
// the teacher's own preference (reader.go's Reader, data.go's Data) for
// building the whole reading layer directly on io.ReaderAt rather than
// wrapping a heavier stream abstraction.
type readerAtSource struct {
	name string
	r    io.ReaderAt
	size int64
	pos  int64
	last int64
}

func newReaderAtSource(name string, r io.ReaderAt, size int64) *readerAtSource {
	return &readerAtSource{name: name, r: r, size: size}
}

func (s *readerAtSource) Name() string { return s.name }

func (s *readerAtSource) Tell() (int64, error) { return s.pos, nil }

func (s *readerAtSource) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		s.pos = offset
	case io.SeekCurrent:
		s.pos += offset
	case io.SeekEnd:
		s.pos = s.size + offset
	}
	return s.pos, nil
}

func (s *readerAtSource) Read(buf []byte) (int, error) {
	s.last = s.pos
	if s.pos >= s.size {
		return 0, io.EOF
	}
	n, err := s.r.ReadAt(buf, s.pos)
	s.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (s *readerAtSource) Unread(b byte) error {
	if s.pos == 0 {
		return logicError(OpInvalidSource, "unread before start of source")
	}
	s.pos--
	return nil
}

func (s *readerAtSource) LastOffset() int64 { return s.last }

func (s *readerAtSource) FindFirst(pattern []byte, start int64, window int64, callback func() bool) (bool, error) {
	if start > s.size {
		start = s.size
	}
	low := start - window
	if low < 0 {
		low = 0
	}
	buf := make([]byte, start-low)
	n, err := s.r.ReadAt(buf, low)
	if err != nil && err != io.EOF {
		return false, err
	}
	buf = buf[:n]

	for searchFrom := 0; ; {
		idx := bytes.Index(buf[searchFrom:], pattern)
		if idx < 0 {
			return false, nil
		}
		pos := low + int64(searchFrom+idx)
		s.pos = pos
		if callback() {
			return true, nil
		}
		searchFrom += idx + 1
		if searchFrom >= len(buf) {
			return false, nil
		}
	}
}

// offsetSource wraps an InputSource so that every offset is translated
// relative to a fixed base -- the "observed PDF convention" of tolerating
// arbitrary bytes prepended before the %PDF- header (spec section 4.H).
type offsetSource struct {
	inner InputSource
	base  int64
}

func newOffsetSource(inner InputSource, base int64) InputSource {
	if base == 0 {
		return inner
	}
	return &offsetSource{inner: inner, base: base}
}

func (s *offsetSource) Name() string { return s.inner.Name() }

func (s *offsetSource) Tell() (int64, error) {
	pos, err := s.inner.Tell()
	return pos - s.base, err
}

func (s *offsetSource) Seek(offset int64, whence int) (int64, error) {
	if whence == io.SeekStart {
		offset += s.base
	}
	pos, err := s.inner.Seek(offset, whence)
	return pos - s.base, err
}

func (s *offsetSource) Read(buf []byte) (int, error) { return s.inner.Read(buf) }
func (s *offsetSource) Unread(b byte) error          { return s.inner.Unread(b) }
func (s *offsetSource) LastOffset() int64            { return s.inner.LastOffset() - s.base }

func (s *offsetSource) FindFirst(pattern []byte, start int64, window int64, callback func() bool) (bool, error) {
	return s.inner.FindFirst(pattern, start+s.base, window, callback)
}
