package codec

import "errors"

var (
	// ErrTruncated means a record extends past the end of the buffer.
	ErrTruncated = errors.New("fit record truncated")
	// ErrUnboundLocal means a data record names a local number with no
	// preceding definition.
	ErrUnboundLocal = errors.New("no definition for local message number")
	// ErrArchitecture means a definition carries an architecture byte other
	// than 0 or 1.
	ErrArchitecture = errors.New("invalid architecture byte")
	// ErrLocalNumberRange means a header cannot address the local number.
	ErrLocalNumberRange = errors.New("local message number out of range")
	// ErrHeader means a file header has a bad size or signature.
	ErrHeader = errors.New("invalid fit file header")
	// ErrTooLarge means the input exceeds the caller's byte budget.
	ErrTooLarge = errors.New("fit input exceeds byte budget")
	// ErrValueRange means an integer value does not fit its field's base
	// type.
	ErrValueRange = errors.New("value out of range for base type")
)
