package pddb

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
)

// Status is the one-byte result code leading every response.
type Status uint8

const (
	StatusUninit        Status = 0
	StatusOK            Status = 1
	StatusBasisLost     Status = 2
	StatusAccessDenied  Status = 3
	StatusUnexpectedEOF Status = 4
	StatusInternalError Status = 5
	StatusDiskFull      Status = 6
	StatusInvalid       Status = 255
)

var (
	ErrUninitialized = errors.New("pddb: remote reported uninitialized result")
	ErrInternal      = errors.New("pddb: remote internal error")
	ErrDiskFull      = errors.New("pddb: disk full")
	ErrInvalidStatus = errors.New("pddb: unrecognized status")
)

// ParseStatus maps a wire byte to a Status; unknown values become StatusInvalid.
func ParseStatus(b uint8) Status {
	s := Status(b)
	if s <= StatusDiskFull {
		return s
	}
	return StatusInvalid
}

func (s Status) String() string {
	switch s {
	case StatusUninit:
		return "uninit"
	case StatusOK:
		return "ok"
	case StatusBasisLost:
		return "basis_lost"
	case StatusAccessDenied:
		return "access_denied"
	case StatusUnexpectedEOF:
		return "unexpected_eof"
	case StatusInternalError:
		return "internal_error"
	case StatusDiskFull:
		return "disk_full"
	default:
		return "invalid"
	}
}

// Err is the error kind a non-OK status maps to, or nil for StatusOK.
func (s Status) Err() error {
	switch s {
	case StatusOK:
		return nil
	case StatusUninit:
		return ErrUninitialized
	case StatusBasisLost:
		return fs.ErrNotExist
	case StatusAccessDenied:
		return fs.ErrPermission
	case StatusUnexpectedEOF:
		return io.ErrUnexpectedEOF
	case StatusInternalError:
		return ErrInternal
	case StatusDiskFull:
		return ErrDiskFull
	default:
		return ErrInvalidStatus
	}
}

// StatusError reports a non-OK response for one operation.
type StatusError struct {
	Op     string
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pddb: %s: remote status %s: %v", e.Op, e.Status, e.Status.Err())
}

func (e *StatusError) Unwrap() error {
	return e.Status.Err()
}
