package pddb

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("pddb: invalid input")
	ErrSeekNegative      = fmt.Errorf("%w: seek before start of stream", ErrInvalidInput)
	ErrSeekOverflow      = fmt.Errorf("%w: seek offset overflows", ErrInvalidInput)
	ErrBufferSize        = fmt.Errorf("%w: buffer size", ErrInvalidInput)
	ErrReleased          = errors.New("pddb: key already released")
	ErrProtocolViolation = errors.New("pddb: protocol violation")
	ErrInvalidEntryKind  = errors.New("pddb: invalid entry kind")
	ErrUnknownOpcode     = errors.New("pddb: unknown opcode")
	ErrListConsumed      = errors.New("pddb: list already iterated")
	ErrListClosed        = errors.New("pddb: list closed")
)

// ProtocolError means the service answered in a way the client cannot
// reconcile. The handle that saw it is unusable afterward.
type ProtocolError struct {
	Op     string
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("pddb: %s: protocol violation: %s", e.Op, e.Detail)
}

func (e *ProtocolError) Unwrap() error {
	return ErrProtocolViolation
}
