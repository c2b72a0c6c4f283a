package wire

import (
	"errors"
	"fmt"
)

var (
	ErrBufferSize     = errors.New("wire: buffer size must be a positive multiple of the page size")
	ErrBadMarker      = errors.New("wire: invalid format marker")
	ErrTagMismatch    = errors.New("wire: tag mismatch")
	ErrNoSpace        = errors.New("wire: value does not fit in remaining capacity")
	ErrTruncated      = errors.New("wire: truncated data")
	ErrInvalidLength  = errors.New("wire: invalid length")
	ErrInvalidOption  = errors.New("wire: invalid option presence byte")
	ErrInvalidBool    = errors.New("wire: invalid bool value")
	ErrInvalidUTF8    = errors.New("wire: invalid utf-8 string")
	ErrWriterFinished = errors.New("wire: writer already finished")
	ErrStaleView      = errors.New("wire: view outlived its buffer")
)

// FieldError reports a decode or encode failure at a cursor offset.
type FieldError struct {
	Offset int
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("wire: field at offset %d: %v", e.Offset, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// TagMismatchError indicates a buffer was produced for a different
// operation or direction than the reader expected.
type TagMismatchError struct {
	Want Tag
	Got  Tag
}

func (e *TagMismatchError) Error() string {
	return fmt.Sprintf("wire: tag mismatch: got %q want %q", e.Got.String(), e.Want.String())
}

func (e *TagMismatchError) Is(target error) bool {
	return target == ErrTagMismatch
}
