package speech

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Volcengine speech services exchange binary frames over WebSocket:
// a 4-byte header, optional sequence and event fields, then a sized payload.

const protocolVersion = 0b0001

// MessageType is the frame kind carried in the header.
type MessageType uint8

const (
	FullClientRequest       MessageType = 0b0001
	AudioOnlyRequest        MessageType = 0b0010
	FullServerResponse      MessageType = 0b1001
	AudioOnlyServerResponse MessageType = 0b1011
	ErrorMessage            MessageType = 0b1111
)

// Flags qualify the fields following the header.
type Flags uint8

const (
	NoSequence       Flags = 0b0000
	PositiveSequence Flags = 0b0001
	LastNoSequence   Flags = 0b0010
	NegativeSequence Flags = 0b0011
	WithEvent        Flags = 0b0100

	sequenceMask Flags = 0b0011
)

// Serialization describes the payload encoding.
type Serialization uint8

const (
	RawSerialization  Serialization = 0b0000
	JSONSerialization Serialization = 0b0001
)

// Compression describes the payload compression.
type Compression uint8

const (
	NoCompression   Compression = 0b0000
	GzipCompression Compression = 0b0001
)

// EventType is the session event attached to frames flagged WithEvent.
type EventType int32

const (
	EventNone               EventType = 0
	EventStartConnection    EventType = 1
	EventFinishConnection   EventType = 2
	EventConnectionStarted  EventType = 50
	EventConnectionFailed   EventType = 51
	EventConnectionFinished EventType = 52
	EventSessionStarted     EventType = 150
	EventSessionFinished    EventType = 152
	EventSessionFailed      EventType = 153
)

var errShortFrame = errors.New("frame truncated")

// Frame is one decoded protocol message.
type Frame struct {
	Type          MessageType
	Flags         Flags
	Serialization Serialization
	Compression   Compression
	Sequence      int32
	Event         EventType
	SessionID     string
	ConnectID     string
	ErrorCode     uint32
	Payload       []byte
}

// Final reports whether the sender marked this frame as the last one.
func (f *Frame) Final() bool {
	switch f.Flags & sequenceMask {
	case LastNoSequence, NegativeSequence:
		return true
	default:
		return false
	}
}

func (f *Frame) hasSequence() bool {
	switch f.Flags & sequenceMask {
	case PositiveSequence, NegativeSequence:
		return true
	default:
		return false
	}
}

func (f *Frame) hasEvent() bool {
	return f.Flags&WithEvent == WithEvent
}

// MarshalBinary encodes the frame for the wire.
func (f *Frame) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(16 + len(f.Payload))

	buf.WriteByte(protocolVersion<<4 | 0b0001)
	buf.WriteByte(uint8(f.Type)<<4 | uint8(f.Flags))
	buf.WriteByte(uint8(f.Serialization)<<4 | uint8(f.Compression))
	buf.WriteByte(0)

	if f.hasSequence() {
		writeUint32(&buf, uint32(f.Sequence))
	}

	if f.hasEvent() {
		writeUint32(&buf, uint32(f.Event))
		if carriesSessionID(f.Event) {
			writeSized(&buf, []byte(f.SessionID))
		}
		if carriesConnectID(f.Event) {
			writeSized(&buf, []byte(f.ConnectID))
		}
	}

	if f.Type == ErrorMessage {
		writeUint32(&buf, f.ErrorCode)
	}
	writeSized(&buf, f.Payload)

	return buf.Bytes(), nil
}

// ParseFrame decodes one frame.
func ParseFrame(data []byte) (*Frame, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("header: %w", errShortFrame)
	}

	version := data[0] >> 4
	if version != protocolVersion {
		return nil, fmt.Errorf("unsupported protocol version %d", version)
	}
	headerSize := int(data[0]&0x0F) * 4
	if headerSize < 4 || len(data) < headerSize {
		return nil, fmt.Errorf("header size %d: %w", headerSize, errShortFrame)
	}

	f := &Frame{
		Type:          MessageType(data[1] >> 4),
		Flags:         Flags(data[1] & 0x0F),
		Serialization: Serialization(data[2] >> 4),
		Compression:   Compression(data[2] & 0x0F),
	}
	r := frameReader{data: data[headerSize:]}

	if f.hasSequence() {
		f.Sequence = int32(r.uint32())
	}

	if f.hasEvent() {
		f.Event = EventType(r.uint32())
		if carriesSessionID(f.Event) {
			f.SessionID = string(r.sized())
		}
		if carriesConnectID(f.Event) {
			f.ConnectID = string(r.sized())
		}
	}

	if f.Type == ErrorMessage {
		f.ErrorCode = r.uint32()
	}
	f.Payload = r.sized()

	if r.err != nil {
		return nil, r.err
	}
	return f, nil
}

// NewClientRequest builds the JSON request frame that opens a session.
func NewClientRequest(payload []byte, compression Compression) *Frame {
	return &Frame{
		Type:          FullClientRequest,
		Flags:         NoSequence,
		Serialization: JSONSerialization,
		Compression:   compression,
		Payload:       payload,
	}
}

// NewAudioFrame builds an audio chunk frame. The last chunk carries the
// negated sequence number, or no sequence when sequence is zero.
func NewAudioFrame(chunk []byte, sequence int32, last bool, compression Compression) *Frame {
	f := &Frame{
		Type:          AudioOnlyRequest,
		Serialization: RawSerialization,
		Compression:   compression,
		Sequence:      sequence,
		Payload:       chunk,
	}

	switch {
	case last && sequence != 0:
		f.Flags = NegativeSequence
		f.Sequence = -sequence
	case last:
		f.Flags = LastNoSequence
	case sequence > 0:
		f.Flags = PositiveSequence
	default:
		f.Flags = NoSequence
	}
	return f
}

func carriesSessionID(event EventType) bool {
	switch event {
	case EventStartConnection, EventFinishConnection,
		EventConnectionStarted, EventConnectionFailed, EventConnectionFinished:
		return false
	default:
		return true
	}
}

func carriesConnectID(event EventType) bool {
	switch event {
	case EventConnectionStarted, EventConnectionFailed, EventConnectionFinished:
		return true
	default:
		return false
	}
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeSized(buf *bytes.Buffer, data []byte) {
	writeUint32(buf, uint32(len(data)))
	buf.Write(data)
}

// frameReader keeps the first error so callers can decode a sequence of
// fields and check once.
type frameReader struct {
	data []byte
	err  error
}

func (r *frameReader) uint32() uint32 {
	if r.err != nil {
		return 0
	}
	if len(r.data) < 4 {
		r.err = errShortFrame
		return 0
	}
	v := binary.BigEndian.Uint32(r.data)
	r.data = r.data[4:]
	return v
}

func (r *frameReader) sized() []byte {
	size := r.uint32()
	if r.err != nil || size == 0 {
		return nil
	}
	if uint64(len(r.data)) < uint64(size) {
		r.err = fmt.Errorf("payload of %d bytes: %w", size, errShortFrame)
		return nil
	}
	out := r.data[:size]
	r.data = r.data[size:]
	return out
}
