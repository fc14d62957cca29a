package pdf

import "io"

// tokenScanner is a small unbuffered cursor over an InputSource, giving
// the tokenizer byte-at-a-time lookahead without every helper needing to
// juggle Seek/Read itself. Grounded on the teacher's scanner.go, which
// keeps the same kind of one-source-of-truth position plus a short
// lookahead buffer.
type tokenScanner struct {
	src InputSource
	pos int64
}

func newTokenScanner(src InputSource) *tokenScanner {
	return &tokenScanner{src: src}
}

func (s *tokenScanner) seek(offset int64) (int64, error) {
	pos, err := s.src.Seek(offset, io.SeekStart)
	s.pos = pos
	return pos, err
}

func (s *tokenScanner) tell() (int64, error) {
	return s.pos, nil
}

func (s *tokenScanner) readByte() (byte, error) {
	var buf [1]byte
	n, err := s.src.Read(buf[:])
	if n == 1 {
		s.pos++
		return buf[0], nil
	}
	if err == nil {
		err = io.EOF
	}
	return 0, err
}

// peekByte returns the next byte without consuming it.
func (s *tokenScanner) peekByte() (byte, error) {
	b, err := s.readByte()
	if err != nil {
		return 0, err
	}
	s.pos--
	_, _ = s.src.Seek(s.pos, io.SeekStart)
	return b, nil
}

// peekAt returns the byte n positions ahead of the current one, or 0 if
// unavailable.
func (s *tokenScanner) peekAt(n int) byte {
	b, ok := s.peekByteAt(n)
	if !ok {
		return 0
	}
	return b
}

func (s *tokenScanner) peekByteAt(n int) (byte, bool) {
	save := s.pos
	_, _ = s.src.Seek(save, io.SeekStart)
	buf := make([]byte, n+1)
	read, _ := s.src.Read(buf)
	_, _ = s.src.Seek(save, io.SeekStart)
	s.pos = save
	if read <= n {
		return 0, false
	}
	return buf[n], true
}

func (s *tokenScanner) skipWhitespace() {
	for {
		b, err := s.peekByte()
		if err != nil {
			return
		}
		if b == '%' {
			// comment: skip to end of line.
			for {
				b, err := s.readByte()
				if err != nil || b == '\n' || b == '\r' {
					break
				}
			}
			continue
		}
		if !isSpaceByte(b) {
			return
		}
		s.readByte()
	}
}

func (s *tokenScanner) readUint() (uint64, error) {
	str, isInt := s.readNumberString()
	if !isInt {
		return 0, &DamageError{Code: DamagedPDF, Offset: s.pos, Message: "expected integer"}
	}
	var v uint64
	for i := 0; i < len(str); i++ {
		v = v*10 + uint64(str[i]-'0')
	}
	return v, nil
}

// readNumberString consumes a PDF numeric token and reports whether it
// was a plain integer (no '.'; ignoring a leading sign).
func (s *tokenScanner) readNumberString() (string, bool) {
	var buf []byte
	isInt := true
	for {
		b, err := s.peekByte()
		if err != nil {
			break
		}
		if b == '+' || b == '-' {
			if len(buf) > 0 {
				break
			}
			buf = append(buf, b)
			s.readByte()
			continue
		}
		if b == '.' {
			isInt = false
			buf = append(buf, b)
			s.readByte()
			continue
		}
		if b >= '0' && b <= '9' {
			buf = append(buf, b)
			s.readByte()
			continue
		}
		break
	}
	if len(buf) == 0 {
		return "0", true
	}
	return string(buf), isInt
}

// isKeywordByte reports whether b can be part of a bare keyword token
// (an operator or literal name like "obj", "R", "true", "stream").
func isKeywordByte(b byte) bool {
	return !isSpaceByte(b) && !isDelimiterByte(b)
}

func (s *tokenScanner) peekKeywordString() string {
	save := s.pos
	kw := s.readRawKeyword()
	s.pos = save
	_, _ = s.src.Seek(save, io.SeekStart)
	return kw
}

func (s *tokenScanner) readRawKeyword() string {
	var buf []byte
	for {
		b, err := s.peekByte()
		if err != nil || !isKeywordByte(b) {
			break
		}
		buf = append(buf, b)
		s.readByte()
	}
	return string(buf)
}

func (s *tokenScanner) readKeyword() string {
	return s.readRawKeyword()
}

func (s *tokenScanner) peekKeyword(kw string) bool {
	return s.peekKeywordString() == kw
}

func (s *tokenScanner) expectKeyword(kw string) error {
	got := s.readRawKeyword()
	if got != kw {
		return &DamageError{Code: DamagedPDF, Offset: s.pos, Message: "expected keyword " + kw + ", got " + got}
	}
	return nil
}

// skipEOLAfterStreamKeyword consumes the single CRLF or LF that must
// follow the "stream" keyword before raw data begins, per the file
// format. A lone CR is also accepted as the end-of-line marker and is
// consumed.
func (s *tokenScanner) skipEOLAfterStreamKeyword() {
	b, err := s.peekByte()
	if err != nil {
		return
	}
	if b == '\r' {
		s.readByte()
		if nb, err := s.peekByte(); err == nil && nb == '\n' {
			s.readByte()
		}
		return
	}
	if b == '\n' {
		s.readByte()
	}
}
