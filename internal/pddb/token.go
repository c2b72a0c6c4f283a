package pddb

import (
	"fmt"

	"github.com/danmuck/pddbwire/internal/wire"
)

// Token is the service-assigned handle for one open key.
type Token [3]uint32

func (t Token) AppendTo(w *wire.Writer) error {
	for _, v := range t {
		if err := w.PutU32(v); err != nil {
			return err
		}
	}
	return nil
}

func (t *Token) DecodeFrom(r *wire.Reader) error {
	for i := range t {
		v, err := r.GetU32()
		if err != nil {
			return err
		}
		t[i] = v
	}
	return nil
}

func (t Token) String() string {
	return fmt.Sprintf("%08x-%08x-%08x", t[0], t[1], t[2])
}
