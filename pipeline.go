package pdf

import "io"

// pipeStreamDataArgs bundles the parameters of pipe_stream_data (spec
// 4.F). Encryption/Doc/Og are optional: Encryption is nil for
// unencrypted streams, Doc is nil when there is no document to receive
// warnings (e.g. reading raw bytes for immediate_copy_from), Og is the
// zero ObjGen for anonymous reads.
type pipeStreamDataArgs struct {
	Encryption EncryptionParams
	Source     InputSource
	Doc        *Document
	Og         ObjGen
	Offset     int64
	Length     int64
	Sink       StreamSink

	SuppressWarnings bool
	WillRetry        bool
}

// pipeStreamData reads a stream's byte range from Source, optionally
// decrypts it, and writes it to Sink, following the five-step procedure
// spelled out in spec 4.F: seek, read exactly Length bytes, treat a short
// read as a warning (not a write, not a fatal error), and guarantee
// Sink.Finish is attempted exactly once regardless of outcome.
func pipeStreamData(args pipeStreamDataArgs) (err error) {
	finished := false
	finish := func() {
		if !finished {
			finished = true
			_ = args.Sink.Finish() // errors from the cleanup Finish are discarded
		}
	}
	defer func() {
		if r := recover(); r != nil {
			finish()
			if e, ok := r.(error); ok {
				err = e
			} else {
				panic(r)
			}
			return
		}
		finish()
	}()

	if _, serr := args.Source.Seek(args.Offset, io.SeekStart); serr != nil {
		return damageOrWarn(args, "unable to seek to stream data", serr)
	}

	buf := make([]byte, args.Length)
	n, rerr := io.ReadFull(args.Source, buf)
	if rerr != nil && rerr != io.ErrUnexpectedEOF && rerr != io.EOF {
		return damageOrWarn(args, "error reading stream data", rerr)
	}
	if int64(n) < args.Length {
		werr := damageOrWarn(args, "unexpected EOF reading stream data", nil)
		finish()
		if werr != nil {
			return werr
		}
		if args.WillRetry {
			warnRetry(args)
		}
		return nil
	}

	var w io.Writer = args.Sink
	if args.Encryption != nil {
		dec, derr := args.Encryption.DecryptingReader(args.Og, sliceReader(buf))
		if derr != nil {
			return damageOrWarn(args, "unable to decrypt stream data", derr)
		}
		decoded, derr := io.ReadAll(dec)
		if derr != nil {
			return damageOrWarn(args, "unable to decrypt stream data", derr)
		}
		buf = decoded
	}
	if _, werr := w.Write(buf); werr != nil {
		finish()
		return damageOrWarn(args, "error writing stream data", werr)
	}
	finish()
	return nil
}

func sliceReader(b []byte) io.Reader {
	return &byteReader{b: b}
}

// damageOrWarn converts a low-level error into a warning on args.Doc
// (returning nil, since damage is normally accumulated rather than
// propagated) unless there is no document to warn on, in which case the
// error is returned directly.
func damageOrWarn(args pipeStreamDataArgs, message string, cause error) error {
	if cause != nil {
		message = message + ": " + cause.Error()
	}
	if args.Doc == nil {
		if cause != nil {
			return cause
		}
		return &DamageError{Code: DamagedPDF, Offset: args.Offset, Message: message}
	}
	if !args.SuppressWarnings {
		args.Doc.warn(args.Doc.damaged(DamagedPDF, message, withOffset(args.Offset)))
	}
	return nil
}

func warnRetry(args pipeStreamDataArgs) {
	if args.Doc == nil || args.SuppressWarnings {
		return
	}
	args.Doc.warn(args.Doc.damaged(Unsupported,
		"stream will be re-processed without filtering to avoid data loss",
		withOffset(args.Offset)))
}

// ForeignStreamData is a StreamDataProvider that pulls a copied stream's
// bytes straight from the foreign document's own input source, rather
// than from the foreign document itself: it holds only the source,
// offset, length, and encryption parameters needed to reread the
// original byte range. This is what lets a destination document keep a
// copied stream's payload readable after the foreign Document it came
// from has gone out of scope, as long as the underlying InputSource is
// still around.
type ForeignStreamData struct {
	Encryption EncryptionParams
	Source     InputSource
	ForeignOg  ObjGen
	Offset     int64
	Length     int64
}

func (d *ForeignStreamData) ProvideStreamData(key ObjGen, sink StreamSink) error {
	return pipeStreamData(pipeStreamDataArgs{
		Encryption: d.Encryption,
		Source:     d.Source,
		Og:         d.ForeignOg,
		Offset:     d.Offset,
		Length:     d.Length,
		Sink:       sink,
	})
}
