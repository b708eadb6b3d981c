package parser

import "fmt"

// Protocol is the Socket.IO protocol revision spoken by this parser.
const Protocol = 5

// DefaultNsp is the root namespace.
const DefaultNsp = "/"

type PacketType int

const (
	CONNECT PacketType = iota
	DISCONNECT
	EVENT
	ACK
	CONNECT_ERROR
	BINARY_EVENT
	BINARY_ACK
)

func (t PacketType) Valid() bool {
	return t >= CONNECT && t <= BINARY_ACK
}

// IsBinary reports whether t is one of the attachment-carrying variants.
func (t PacketType) IsBinary() bool {
	return t == BINARY_EVENT || t == BINARY_ACK
}

func (t PacketType) String() string {
	switch t {
	case CONNECT:
		return "CONNECT"
	case DISCONNECT:
		return "DISCONNECT"
	case EVENT:
		return "EVENT"
	case ACK:
		return "ACK"
	case CONNECT_ERROR:
		return "CONNECT_ERROR"
	case BINARY_EVENT:
		return "BINARY_EVENT"
	case BINARY_ACK:
		return "BINARY_ACK"
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(t))
}

// Packet is one Socket.IO message.
//
// ID is nil when no acknowledgement is requested. Attachments is the number
// of binary blobs extracted on encode; decoded packets always carry -1.
type Packet struct {
	Type        PacketType
	Nsp         string
	Data        interface{}
	ID          *int
	Attachments int
}

// NewPacket returns a packet of the given type on the root namespace.
func NewPacket(t PacketType, data interface{}) *Packet {
	return &Packet{Type: t, Nsp: DefaultNsp, Data: data, Attachments: -1}
}

// HasID reports whether the packet expects an acknowledgement.
func (p *Packet) HasID() bool {
	return p.ID != nil
}

// SetID sets the acknowledgement id.
func (p *Packet) SetID(id int) {
	p.ID = &id
}

// Frame is a single wire frame: either text or a raw binary attachment.
type Frame struct {
	Binary bool
	Data   []byte
}

func TextFrame(s string) Frame {
	return Frame{Data: []byte(s)}
}

func BinaryFrame(b []byte) Frame {
	return Frame{Binary: true, Data: b}
}

// PacketEncoder turns a packet into the ordered frames to transmit.
type PacketEncoder interface {
	Encode(p *Packet) ([]Frame, error)
}

// PacketDecoder accumulates frames and reports every complete packet through
// the callback registered with OnDecoded.
type PacketDecoder interface {
	Add(f Frame) error
	OnDecoded(fn func(p *Packet))
	Destroy()
}

// Parser creates encoders and decoders for one wire format.
type Parser interface {
	Name() string
	NewEncoder() PacketEncoder
	NewDecoder() PacketDecoder
}
