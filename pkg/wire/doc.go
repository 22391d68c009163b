// Package wire defines the binary wire format of the flake protocol.
//
// Every value on the wire is a Property: a 32-bit Tag followed by a
// type-specific payload. Properties travel in a PropArray, which is the
// payload of every Frame. All integers are little-endian.
//
// # Tags
//
// A Tag packs the property id, modifier flags and value type:
//
//	bits 31..16  property id (identity)
//	bits 15..12  ReadOnly / Actionable / Volatile flags
//	bits 11..0   value type, plus the Error and Array modifiers
//
// Ids below 0x200 are base properties shared by every object.
//
// # PropArray Encoding
//
//	u16 count
//	per property:
//	  u32 tag
//	  error:  i8 status
//	  array:  u16 total, u16 n, u16 elemSize, u16 elemType, n*elemSize bytes
//	  string: u16 length, bytes (no terminator)
//	  binary: u16 length, bytes
//	  other:  fixed width scalar (1, 2, 4 or 16 bytes)
//
// An empty PropArray encodes to zero bytes.
//
// # Frames
//
//	u8 type, u16 source, u16 destination, [u16 token], u16 payloadLen, payload
//
// The token is present for requests, control messages, confirmations and
// the indications that expect an answer. A confirmation reuses the type of
// the message it answers with bit 0x80 set and starts its payload with an
// i8 status.
package wire
