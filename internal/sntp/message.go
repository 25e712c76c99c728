package sntp

import (
	"fmt"
	"net"
)

// Protocol modes carried in the Mode field.
const (
	ModeReserved Mode = iota
	ModeSymmetricActive
	ModeSymmetricPassive
	ModeClient
	ModeServer
	ModeBroadcast
	ModeControl
	ModePrivate
)

// Leap indicator values.
const (
	LeapNone      uint8 = 0
	LeapAddSecond uint8 = 1
	LeapDelSecond uint8 = 2
	LeapNotInSync uint8 = 3
)

const (
	ProtocolVersion uint8 = 4
	MaxStratum      uint8 = 15
	DefaultPort           = 123
)

// Mode is the 3-bit association mode.
type Mode uint8

func (m Mode) String() string {
	switch m {
	case ModeReserved:
		return "reserved"
	case ModeSymmetricActive:
		return "symmetric-active"
	case ModeSymmetricPassive:
		return "symmetric-passive"
	case ModeClient:
		return "client"
	case ModeServer:
		return "server"
	case ModeBroadcast:
		return "broadcast"
	case ModeControl:
		return "control"
	default:
		return "private"
	}
}

// Message is a single SNTP header. It exclusively owns its buffer; the
// source address is an opaque tag supplied by the transport.
type Message struct {
	buf  [MessageSize]byte
	addr net.Addr
}

// NewMessage returns a zero-filled message for outbound construction.
func NewMessage() *Message {
	return &Message{}
}

// ParseMessage copies a received datagram into a new Message.
func ParseMessage(data []byte, addr net.Addr) (*Message, error) {
	if len(data) != MessageSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrMessageSize, len(data), MessageSize)
	}
	m := &Message{addr: addr}
	copy(m.buf[:], data)
	return m, nil
}

// Addr returns the transport source address, or nil for locally built messages.
func (m *Message) Addr() net.Addr {
	return m.addr
}

// SetAddr attaches a transport address.
func (m *Message) SetAddr(addr net.Addr) {
	m.addr = addr
}

// Bytes returns a copy of the wire representation.
func (m *Message) Bytes() []byte {
	out := make([]byte, MessageSize)
	copy(out, m.buf[:])
	return out
}

// Byte returns the raw byte at index. It panics if index is out of range.
func (m *Message) Byte(index int) byte {
	return m.buf[index]
}

// SetByte overwrites the raw byte at index, bypassing field semantics.
func (m *Message) SetByte(index int, value byte) {
	m.buf[index] = value
}

// Get reads the named field.
func (m *Message) Get(name string) (uint64, error) {
	f, ok := LookupField(name)
	if !ok {
		return 0, &FieldError{Field: name, Err: ErrInvalidField}
	}
	s := Layout(f.BitOffset, f.BitLength)

	var v uint64
	for i := s.start; i < s.end; i++ {
		b := m.buf[i]
		if i == s.start {
			b &^= s.startMask
		}
		if i == s.end-1 {
			v = v<<(8-s.shift) | uint64(b>>s.shift)
		} else {
			v = v<<8 | uint64(b)
		}
	}
	return v, nil
}

// Set writes value into the named field, preserving every bit of the
// buffer that belongs to neighbouring fields.
func (m *Message) Set(name string, value uint64) error {
	f, ok := LookupField(name)
	if !ok {
		return &FieldError{Field: name, Value: value, Err: ErrInvalidField}
	}
	if f.BitLength < 64 && value >= 1<<f.BitLength {
		return &FieldError{Field: name, Value: value, Err: ErrValueOutOfRange}
	}
	s := Layout(f.BitOffset, f.BitLength)

	v := value
	for i := s.end - 1; i >= s.start; i-- {
		var b byte
		if i == s.end-1 {
			b = byte(v << s.shift)
			v >>= 8 - s.shift
			b = b&^s.endMask | m.buf[i]&s.endMask
		} else {
			b = byte(v)
			v >>= 8
		}
		if i == s.start {
			b = b&^s.startMask | m.buf[i]&s.startMask
		}
		m.buf[i] = b
	}
	return nil
}

// mustGet is for field names known at compile time.
func (m *Message) mustGet(name string) uint64 {
	v, err := m.Get(name)
	if err != nil {
		panic(err)
	}
	return v
}

func (m *Message) mustSet(name string, value uint64) {
	if err := m.Set(name, value); err != nil {
		panic(err)
	}
}

// Leap returns the leap indicator.
func (m *Message) Leap() uint8 { return uint8(m.mustGet(FieldLI)) }

// Version returns the protocol version number.
func (m *Message) Version() uint8 { return uint8(m.mustGet(FieldVN)) }

// Mode returns the association mode.
func (m *Message) Mode() Mode { return Mode(m.mustGet(FieldMode)) }

// Stratum returns the stratum of the sender.
func (m *Message) Stratum() uint8 { return uint8(m.mustGet(FieldStratum)) }

// Poll returns the signed log2 poll interval.
func (m *Message) Poll() int8 { return int8(m.mustGet(FieldPoll)) }

// Precision returns the signed log2 clock precision.
func (m *Message) Precision() int8 { return int8(m.mustGet(FieldPrecision)) }

// ReferenceID returns the raw reference identifier.
func (m *Message) ReferenceID() uint32 { return uint32(m.mustGet(FieldReferenceIdentifier)) }

// Timestamp reads a 64-bit timestamp field.
func (m *Message) Timestamp(name string) (Timestamp, error) {
	v, err := m.Get(name)
	return Timestamp(v), err
}

// SetTimestamp writes a 64-bit timestamp field.
func (m *Message) SetTimestamp(name string, ts Timestamp) error {
	return m.Set(name, uint64(ts))
}

// Header groups the non-timestamp fields written together when building
// a message.
type Header struct {
	Leap           uint8
	Version        uint8
	Mode           Mode
	Stratum        uint8
	Poll           int8
	Precision      int8
	RootDelay      uint32
	RootDispersion uint32
	ReferenceID    uint32
}

// SetHeader writes all header fields.
func (m *Message) SetHeader(h Header) error {
	values := []struct {
		name  string
		value uint64
	}{
		{FieldLI, uint64(h.Leap)},
		{FieldVN, uint64(h.Version)},
		{FieldMode, uint64(h.Mode)},
		{FieldStratum, uint64(h.Stratum)},
		{FieldPoll, uint64(uint8(h.Poll))},
		{FieldPrecision, uint64(uint8(h.Precision))},
		{FieldRootDelay, uint64(h.RootDelay)},
		{FieldRootDispersion, uint64(h.RootDispersion)},
		{FieldReferenceIdentifier, uint64(h.ReferenceID)},
	}
	for _, v := range values {
		if err := m.Set(v.name, v.value); err != nil {
			return err
		}
	}
	return nil
}

// Fields returns every field value in table order.
func (m *Message) Fields() []FieldValue {
	out := make([]FieldValue, 0, len(Fields))
	for _, f := range Fields {
		out = append(out, FieldValue{MessageField: f, Value: m.mustGet(f.Name)})
	}
	return out
}

// FieldValue pairs a field with its decoded value.
type FieldValue struct {
	MessageField
	Value uint64
}
