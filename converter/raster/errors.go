package raster

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a conversion did not produce an output document.
type FailureKind int

const (
	KindUnexpected FailureKind = iota
	KindInputNotFound
	KindDecode
	KindEncode
	KindSerialization
	KindCanceled
)

// Sentinels for errors.Is checks against a *ConversionError.
var (
	ErrUnexpected    = errors.New("unexpected failure")
	ErrInputNotFound = errors.New("input not found")
	ErrDecode        = errors.New("decode failure")
	ErrEncode        = errors.New("encode failure")
	ErrSerialization = errors.New("serialization failure")
	ErrCanceled      = errors.New("conversion canceled")
)

func (k FailureKind) String() string {
	switch k {
	case KindInputNotFound:
		return "input_not_found"
	case KindDecode:
		return "decode"
	case KindEncode:
		return "encode"
	case KindSerialization:
		return "serialization"
	case KindCanceled:
		return "canceled"
	default:
		return "unexpected"
	}
}

func (k FailureKind) sentinel() error {
	switch k {
	case KindInputNotFound:
		return ErrInputNotFound
	case KindDecode:
		return ErrDecode
	case KindEncode:
		return ErrEncode
	case KindSerialization:
		return ErrSerialization
	case KindCanceled:
		return ErrCanceled
	default:
		return ErrUnexpected
	}
}

// ConversionError is the single error type returned by Engine.Convert.
// Page is 1-based and zero when the failure is not tied to a page.
type ConversionError struct {
	Kind FailureKind
	Page int
	Step string
	Err  error
}

func (e *ConversionError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("%s: page %d: %s: %v", e.Kind, e.Page, e.Step, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Step, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

func (e *ConversionError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf reports the failure kind carried by err, or KindUnexpected when err
// is not a *ConversionError.
func KindOf(err error) FailureKind {
	var convErr *ConversionError
	if errors.As(err, &convErr) {
		return convErr.Kind
	}
	return KindUnexpected
}

func failure(kind FailureKind, page int, step string, err error) *ConversionError {
	return &ConversionError{Kind: kind, Page: page, Step: step, Err: err}
}
