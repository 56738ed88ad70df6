package protocol

// Error is an immutable string-based error, mirroring how the ambient stack
// represents protocol-level sentinel errors instead of ad hoc fmt.Errorf
// calls on every hot-path rejection.
type Error string

func (e Error) Error() string  { return string(e) }
func (e Error) String() string { return string(e) }

const (
	// ErrEmptyLine is returned for a line that is blank after trimming; the
	// framer silently ignores these rather than surfacing them to callers
	// that only check for non-nil error, so callers should check for this
	// sentinel explicitly when they care about the distinction.
	ErrEmptyLine Error = "protocol: empty line"
	// ErrLineTooLong is returned when a line exceeds MaxLineLength bytes.
	ErrLineTooLong Error = "protocol: line exceeds 512 bytes"
	// ErrTooManyParams is returned when a line carries more than MaxParams
	// parameters.
	ErrTooManyParams Error = "protocol: too many parameters"
	// ErrNoVerb is returned when a line has a prefix but no verb.
	ErrNoVerb Error = "protocol: missing verb"
	// ErrUnknownPrefix names a peer-supplied numnick prefix that does not
	// resolve to a known entity. ParseLine never returns it, since it has no
	// notion of the entity store.
	ErrUnknownPrefix Error = "protocol: unknown numnick prefix"
)
