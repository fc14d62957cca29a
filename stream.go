package pdf

import "io"

// StreamValue is the value held by a stream slot: a dictionary describing
// the stream together with a payload describing where its bytes live.
// StreamValue is always accessed through a Handle; the Handle's Dict/
// stream operations forward to the fields below.
type StreamValue struct {
	Dict    Dictionary
	Payload StreamPayload
}

func (*StreamValue) isValue() {}

// StreamPayload is one of FromInput, FromBuffer, or FromProvider,
// matching the three ways a stream's bytes can be produced described in
// the data model.
type StreamPayload interface {
	isStreamPayload()
}

// FromInput describes a stream whose bytes have not been read yet: they
// live at a byte range in some InputSource and will be parsed (and
// possibly decrypted) lazily, the first time they are piped.
type FromInput struct {
	Source     InputSource
	Offset     int64
	Length     int64
	Encryption EncryptionParams // nil if the stream is not encrypted
}

// FromBuffer describes a stream whose bytes have already been fully
// materialized in memory.
type FromBuffer struct {
	Bytes []byte
}

// FromProvider describes a stream whose bytes are produced on demand by a
// user-supplied (or copier-installed) StreamDataProvider, keyed by
// ProviderKey. This is how the foreign copier wires a local stream to
// pull its bytes from a foreign document without keeping the whole
// foreign object graph alive.
type FromProvider struct {
	Provider    StreamDataProvider
	ProviderKey ObjGen
}

func (FromInput) isStreamPayload()    {}
func (FromBuffer) isStreamPayload()   {}
func (FromProvider) isStreamPayload() {}

// StreamDataProvider streams bytes for a stream identified by key into a
// sink on demand. ProvideStreamData must call sink.Finish() exactly once
// before returning, whether or not it succeeded in writing every byte
// (see pipeStreamData).
type StreamDataProvider interface {
	ProvideStreamData(key ObjGen, sink StreamSink) error
}

// StreamSink receives the (decoded-at-this-layer) bytes of a stream. It
// mirrors the teacher's plain io.Writer sinks (dataStreamWriter in
// data.go), plus the Finish() lifecycle hook pipe_stream_data's contract
// requires: Finish is always attempted exactly once, and errors from a
// cleanup Finish call (one following a short read) are discarded.
type StreamSink interface {
	io.Writer
	Finish() error
}

// readAllPayload materializes a payload's bytes without going through a
// StreamSink, for callers (Handle.RawBytes, immediate_copy_from) that
// want a []byte rather than to pipe into a sink.
func readAllPayload(p StreamPayload) ([]byte, error) {
	switch v := p.(type) {
	case FromBuffer:
		return v.Bytes, nil
	case FromInput:
		buf := &bufferSink{}
		err := pipeStreamData(pipeStreamDataArgs{
			Encryption: v.Encryption,
			Source:     v.Source,
			Offset:     v.Offset,
			Length:     v.Length,
			Sink:       buf,
		})
		if err != nil {
			return nil, err
		}
		return buf.buf, nil
	case FromProvider:
		buf := &bufferSink{}
		err := v.Provider.ProvideStreamData(v.ProviderKey, buf)
		if err != nil {
			return nil, err
		}
		return buf.buf, nil
	default:
		return nil, logicError(OpTypeAssertion, "unknown stream payload")
	}
}

// bufferSink is the simplest StreamSink: it accumulates every byte
// written to it in memory.
type bufferSink struct {
	buf []byte
}

func (s *bufferSink) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	return len(p), nil
}

func (s *bufferSink) Finish() error { return nil }
