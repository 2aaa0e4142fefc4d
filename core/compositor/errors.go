package compositor

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is wrapped by DecodeError when no bytes were provided.
	ErrEmptyInput = errors.New("empty image data")
	// ErrTooLarge is wrapped by DecodeError when the pixel count exceeds the limit.
	ErrTooLarge = errors.New("image dimensions exceed limit")
	// ErrNilImage is wrapped by CompositeError when an input bitmap is missing.
	ErrNilImage = errors.New("nil image")
	// ErrOffsetRange reports an offset component beyond MaxOffset.
	ErrOffsetRange = errors.New("offset out of range")
)

// DecodeError reports that an input is not a readable raster image.
type DecodeError struct {
	// Input names the offending input ("main" or "reference"); may be empty.
	Input string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Input == "" {
		return fmt.Sprintf("decode image: %v", e.Err)
	}
	return fmt.Sprintf("decode %s image: %v", e.Input, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Code is used as err_code in handler logs.
func (e *DecodeError) Code() string { return "decode_failed" }

// CompositeError reports a failure while resizing, pasting, drawing or encoding.
type CompositeError struct {
	Op  string
	Err error
}

func (e *CompositeError) Error() string {
	return fmt.Sprintf("composite %s: %v", e.Op, e.Err)
}

func (e *CompositeError) Unwrap() error { return e.Err }

// Code is used as err_code in handler logs.
func (e *CompositeError) Code() string { return "composite_failed" }
