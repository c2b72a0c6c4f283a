// Package wire owns the page-buffer codec shared by every remote operation.
//
// Ownership boundary:
// - page-aligned Buffer storage and its valid length
// - format marker and direction tag header
// - forward-only Writer/Reader cursors and the type-driven value encoding
// - zero-copy views that borrow from a Buffer
//
// Encoding (all integers little-endian):
//
//	fixed-width   u8 i8 u16 i16 u32 i32 u64 i64
//	option        u8 presence (0 absent, 1 present) then the value
//	string        u32 byte count then UTF-8 bytes, no terminator
//	sequence      u32 element count then each element
//
// A Buffer has exactly one live cursor at a time. Constructing a Writer
// recycles the Buffer, which invalidates every View taken from it.
package wire
