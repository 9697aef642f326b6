package value

import "errors"

// Sentinel errors for payload encoding.
var (
	// ErrNilValue indicates a nil Value was passed to Marshal.
	ErrNilValue = errors.New("value: value is nil")

	// ErrEncode indicates the payload could not be serialized, for example a
	// pointer to a variant instead of the variant itself.
	ErrEncode = errors.New("value: encode failed")

	// ErrMalformed indicates the bytes are not a valid envelope.
	ErrMalformed = errors.New("value: malformed payload")

	// ErrUnknownKind indicates the envelope type tag is not a known variant.
	ErrUnknownKind = errors.New("value: unknown kind")
)
