package stealth

import (
	"errors"
	"fmt"
)

// Kind classifies a payload failure.
type Kind int

const (
	KindMagicMismatch Kind = iota + 1
	KindTruncatedHeader
	KindTruncatedBody
	KindPayloadTooLarge
	KindDecompression
	KindEncoding
	KindMalformedJSON
	KindInsufficientCapacity
)

var (
	ErrMagicMismatch        = errors.New("stealth: magic mismatch")
	ErrTruncatedHeader      = errors.New("stealth: truncated header")
	ErrTruncatedBody        = errors.New("stealth: truncated body")
	ErrPayloadTooLarge      = errors.New("stealth: payload too large")
	ErrDecompression        = errors.New("stealth: decompression failed")
	ErrEncoding             = errors.New("stealth: invalid utf-8")
	ErrMalformedJSON        = errors.New("stealth: malformed json")
	ErrInsufficientCapacity = errors.New("stealth: insufficient capacity")
)

func (k Kind) String() string {
	switch k {
	case KindMagicMismatch:
		return "magic_mismatch"
	case KindTruncatedHeader:
		return "truncated_header"
	case KindTruncatedBody:
		return "truncated_body"
	case KindPayloadTooLarge:
		return "payload_too_large"
	case KindDecompression:
		return "decompression_error"
	case KindEncoding:
		return "encoding_error"
	case KindMalformedJSON:
		return "malformed_json"
	case KindInsufficientCapacity:
		return "insufficient_capacity"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindMagicMismatch:
		return ErrMagicMismatch
	case KindTruncatedHeader:
		return ErrTruncatedHeader
	case KindTruncatedBody:
		return ErrTruncatedBody
	case KindPayloadTooLarge:
		return ErrPayloadTooLarge
	case KindDecompression:
		return ErrDecompression
	case KindEncoding:
		return ErrEncoding
	case KindMalformedJSON:
		return ErrMalformedJSON
	case KindInsufficientCapacity:
		return ErrInsufficientCapacity
	default:
		return nil
	}
}

// FormatError reports which step of payload handling failed. It matches the
// Kind's sentinel under errors.Is and unwraps to the underlying cause.
type FormatError struct {
	Kind Kind
	Err  error
}

func newError(kind Kind, err error) *FormatError {
	return &FormatError{Kind: kind, Err: err}
}

func (e *FormatError) Error() string {
	msg := "stealth: " + e.Kind.String()
	if sentinel := e.Kind.sentinel(); sentinel != nil {
		msg = sentinel.Error()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error { return e.Err }

func (e *FormatError) Is(target error) bool {
	sentinel := e.Kind.sentinel()
	return sentinel != nil && target == sentinel
}

// KindOf returns the Kind carried by err, or zero when err is not a FormatError.
func KindOf(err error) Kind {
	var fe *FormatError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// IsNotPresent reports whether err means the carrier holds no usable payload:
// the magic did not match, the stream ended inside the header or body, or the
// declared length runs past the end of the stream. A cropped or resized
// image lands in the last group.
func IsNotPresent(err error) bool {
	switch KindOf(err) {
	case KindMagicMismatch, KindTruncatedHeader, KindTruncatedBody, KindPayloadTooLarge:
		return true
	}
	return false
}

// IsCorrupt reports whether err means a complete body was read but could not
// be decoded: gzip, UTF-8 or JSON failed. Length overruns are not corrupt;
// see IsNotPresent.
func IsCorrupt(err error) bool {
	switch KindOf(err) {
	case KindDecompression, KindEncoding, KindMalformedJSON:
		return true
	}
	return false
}
