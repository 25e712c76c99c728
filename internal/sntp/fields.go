// Package sntp implements the SNTP (RFC 4330) message codec, timestamp
// conversion and the single request/response exchange used by both the
// client and the server.
//
// The 48-byte header is addressed by named fields at arbitrary bit
// offsets:
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|LI | VN  |Mode |    Stratum    |     Poll      |   Precision   |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                          Root Delay                           |
//	|                       Root Dispersion                         |
//	|                     Reference Identifier                      |
//	|                   Reference Timestamp (64)                    |
//	|                   Originate Timestamp (64)                    |
//	|                    Receive Timestamp (64)                     |
//	|                    Transmit Timestamp (64)                    |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
package sntp

// Field names.
const (
	FieldLI                  = "LI"
	FieldVN                  = "VN"
	FieldMode                = "Mode"
	FieldStratum             = "Stratum"
	FieldPoll                = "Poll"
	FieldPrecision           = "Precision"
	FieldRootDelay           = "RootDelay"
	FieldRootDispersion      = "RootDispersion"
	FieldReferenceIdentifier = "ReferenceIdentifier"
	FieldReferenceTimestamp  = "ReferenceTimestamp"
	FieldOriginateTimestamp  = "OriginateTimestamp"
	FieldReceiveTimestamp    = "ReceiveTimestamp"
	FieldTransmitTimestamp   = "TransmitTimestamp"
)

// MessageField describes where a field lives inside the message buffer.
type MessageField struct {
	Name      string
	BitOffset uint
	BitLength uint
}

// Fields is the standard SNTP header without authentication fields,
// in strictly increasing BitOffset order.
var Fields = []MessageField{
	{FieldLI, 0, 2},
	{FieldVN, 2, 3},
	{FieldMode, 5, 3},
	{FieldStratum, 8, 8},
	{FieldPoll, 16, 8},
	{FieldPrecision, 24, 8},
	{FieldRootDelay, 32, 32},
	{FieldRootDispersion, 64, 32},
	{FieldReferenceIdentifier, 96, 32},
	{FieldReferenceTimestamp, 128, 64},
	{FieldOriginateTimestamp, 192, 64},
	{FieldReceiveTimestamp, 256, 64},
	{FieldTransmitTimestamp, 320, 64},
}

// MessageSize is the sum of all field lengths rounded up to whole bytes.
const MessageSize = 48

// legacy spellings that older peers and tooling use for the same field
var fieldAliases = map[string]string{
	"RecieveTimestamp": FieldReceiveTimestamp,
}

var fieldIndex = func() map[string]MessageField {
	m := make(map[string]MessageField, len(Fields)+len(fieldAliases))
	for _, f := range Fields {
		m[f.Name] = f
	}
	for alias, name := range fieldAliases {
		m[alias] = m[name]
	}
	return m
}()

// LookupField returns the table entry for name.
func LookupField(name string) (MessageField, bool) {
	f, ok := fieldIndex[name]
	return f, ok
}

// span is the byte window a field occupies.
//
// Example for a field whose bits are the n's:
//
//	start                      end
//	|                          |
//	xxxnnnnn nnnnnnnn nnnnnnxx
//	startMask = 11100000, endMask = 00000011, shift = 2
type span struct {
	start     int  // first byte touched by the field
	end       int  // one past the last byte touched
	startMask byte // bits of the first byte owned by preceding fields
	endMask   byte // bits of the last byte owned by following fields
	shift     uint // trailing bits in the last byte that belong to following fields
}

// Layout computes the byte window, preservation masks and alignment shift
// for a field at bitOffset with bitLength bits.
func Layout(bitOffset, bitLength uint) span {
	last := bitOffset + bitLength
	s := span{
		start: int(bitOffset / 8),
		end:   int((last + 7) / 8),
		shift: (8 - last%8) & 7,
	}
	s.startMask = byte(0xff << (8 - bitOffset%8))
	s.endMask = byte(0xff >> (8 - s.shift))
	return s
}
