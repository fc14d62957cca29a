package pdf

// OpenOptions configures how Document.ProcessFile/ProcessBytes parses an
// existing PDF. The zero value is the common case: no password, no
// warning suppression, xref streams and recovery both enabled.
type OpenOptions struct {
	// Password, if non-empty, is normalized with NormalizePassword (or,
	// if PasswordIsHexKey is set, decoded as a raw hex file key) and used
	// to build the document's decryption handler.
	Password string
	// PasswordIsHexKey treats Password as an already-derived hex-encoded
	// file encryption key rather than a user password to normalize.
	PasswordIsHexKey bool

	// SuppressWarnings discards warnings that would otherwise accumulate
	// on the document (Document.GetWarnings) instead of recording them.
	// It does not affect LogicErrors, which are never suppressed.
	SuppressWarnings bool
	// MaxWarnings caps how many warnings are accumulated before parsing
	// is aborted with a fatal error, matching the spirit of qpdf's
	// warning-storm protection for badly damaged files. Zero means
	// unlimited.
	MaxWarnings int

	// IgnoreXRefStreams forces reconstruction via a full linear object
	// scan even when a well-formed xref chain is present, useful for
	// testing the recovery path or working around producers known to
	// emit self-inconsistent xref streams.
	IgnoreXRefStreams bool

	// CheckMode enables the extra, non-fatal structural repairs qpdf
	// gates behind its own check mode -- currently, replacing a missing
	// or wrong /Root /Type with /Catalog after a warning instead of
	// leaving it alone.
	CheckMode bool
}

// documentConfig is the resolved, immutable-after-parse configuration a
// Document carries forward from its OpenOptions.
type documentConfig struct {
	suppressWarnings bool
	maxWarnings      int
	checkMode        bool
}
