package wire

import "fmt"

// Marker occupies bytes 0..3 of every buffer ("PDW1" little-endian).
const Marker uint32 = 0x31574450

const (
	markerLen = 4
	tagLen    = 4
)

// Tag is a 4-byte ASCII marker naming an operation family and direction.
type Tag [tagLen]byte

// MustTag builds a Tag from a 4-character ASCII string.
func MustTag(s string) Tag {
	var t Tag
	if len(s) != tagLen {
		panic(fmt.Sprintf("wire: tag %q must be %d bytes", s, tagLen))
	}
	for i := 0; i < tagLen; i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			panic(fmt.Sprintf("wire: tag %q must be printable ascii", s))
		}
		t[i] = s[i]
	}
	return t
}

func (t Tag) String() string {
	return string(t[:])
}

// HeaderLen is the number of bytes preceding the first encoded field.
func HeaderLen(tagged bool) int {
	if tagged {
		return markerLen + tagLen
	}
	return markerLen
}
