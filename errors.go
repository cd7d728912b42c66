package hdrsdr

import (
	"errors"
)

// Kind is an error category.
type Kind int

const (
	KindUnknown Kind = iota
	KindArgument
	KindDecode
	KindColorConversion
	KindTransform
	KindEncode
	KindBackend
)

var (
	// ErrArgument is reported for missing or malformed input at the call boundary.
	ErrArgument = errors.New("invalid argument")
	// ErrDecode is reported when input bytes are not a supported image.
	ErrDecode = errors.New("decode failed")
	// ErrColorConversion is reported when remapping to sRGB fails.
	ErrColorConversion = errors.New("color conversion failed")
	// ErrTransform is reported when the orientation transform fails.
	// Normalize recovers from it and never returns it.
	ErrTransform = errors.New("orientation transform failed")
	// ErrEncode is reported when the JPEG encoder rejects the raster.
	ErrEncode = errors.New("encode failed")
	// ErrNoBackend is reported when no decoder or encoder is available.
	ErrNoBackend = errors.New("no available backend")
)

func (k Kind) sentinel() error {
	switch k {
	case KindArgument:
		return ErrArgument
	case KindDecode:
		return ErrDecode
	case KindColorConversion:
		return ErrColorConversion
	case KindTransform:
		return ErrTransform
	case KindEncode:
		return ErrEncode
	case KindBackend:
		return ErrNoBackend
	default:
		return nil
	}
}

// Code returns a short category code suitable for a method-call error.
func (k Kind) Code() string {
	switch k {
	case KindArgument:
		return "arg"
	case KindDecode:
		return "dec"
	case KindTransform:
		return "xform"
	case KindEncode:
		return "enc"
	case KindBackend:
		return "backend"
	default:
		return "conv"
	}
}

// Error is a categorized failure of a pipeline step.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := "unknown error"
	if s := e.Kind.sentinel(); s != nil {
		msg = s.Error()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel error of the category.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// Code returns the short category code of the error.
func (e *Error) Code() string { return e.Kind.Code() }

// CodeOf returns the category code of err, "conv" for uncategorized errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code()
	}
	return KindUnknown.Code()
}
