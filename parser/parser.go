package parser

import (
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Default is the standard Socket.IO text parser: one text frame per packet
// followed by one binary frame per attachment.
var Default Parser = textParser{}

type textParser struct{}

func (textParser) Name() string              { return "default" }
func (textParser) NewEncoder() PacketEncoder { return &textEncoder{} }
func (textParser) NewDecoder() PacketDecoder { return &Decoder{} }

type textEncoder struct{}

// Encode returns the frames for packet: a single text frame, or a text header
// followed by the attachments in placeholder order.
func (*textEncoder) Encode(packet *Packet) ([]Frame, error) {
	return Encode(*packet)
}

// Encode is the stateless form of the default encoder. The packet's payload
// is never modified.
func Encode(obj Packet) ([]Frame, error) {
	if obj.Nsp == "" {
		obj.Nsp = DefaultNsp
	}
	switch obj.Type {
	case EVENT, ACK:
		if HasBinary(obj.Data) {
			if obj.Type == EVENT {
				obj.Type = BINARY_EVENT
			} else {
				obj.Type = BINARY_ACK
			}
			return encodeAsBinary(obj)
		}
	case BINARY_EVENT, BINARY_ACK:
		return encodeAsBinary(obj)
	}

	str, err := encodeAsString(obj)
	if err != nil {
		return nil, err
	}
	return []Frame{TextFrame(str)}, nil
}

func encodeAsString(packet Packet) (string, error) {
	var builder strings.Builder

	builder.WriteString(strconv.Itoa(int(packet.Type)))

	if packet.Type.IsBinary() {
		builder.WriteString(strconv.Itoa(packet.Attachments))
		builder.WriteByte('-')
	}

	if packet.Nsp != "" && packet.Nsp != DefaultNsp {
		builder.WriteString(packet.Nsp)
		builder.WriteByte(',')
	}

	if packet.ID != nil {
		builder.WriteString(strconv.Itoa(*packet.ID))
	}

	if packet.Data != nil {
		data, err := json.Marshal(packet.Data)
		if err != nil {
			return "", err
		}
		builder.Write(data)
	}

	return builder.String(), nil
}

func encodeAsBinary(packet Packet) ([]Frame, error) {
	packet, buffers := deconstructPacket(packet)
	encoded, err := encodeAsString(packet)
	if err != nil {
		return nil, err
	}
	frames := make([]Frame, 0, len(buffers)+1)
	frames = append(frames, TextFrame(encoded))
	for _, b := range buffers {
		frames = append(frames, BinaryFrame(b))
	}
	return frames, nil
}

// Decoder is the stateful default decoder. One decoder serves every
// namespace multiplexed on a connection.
type Decoder struct {
	reconstructor *BinaryReconstructor
	emit          func(packet *Packet)
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) OnDecoded(fn func(packet *Packet)) {
	d.emit = fn
}

// Add feeds one frame. A returned error concerns that frame only; any
// partially received packet is dropped.
func (d *Decoder) Add(f Frame) error {
	if !f.Binary {
		if d.reconstructor != nil {
			d.reconstructor = nil
			return decodeError(ErrReconstructing, string(f.Data))
		}
		packet, err := DecodeString(string(f.Data))
		if err != nil {
			return err
		}
		if packet.Type.IsBinary() && packet.Attachments > 0 {
			d.reconstructor = NewBinaryReconstructor(packet)
			return nil
		}
		d.dispatch(packet)
		return nil
	}

	if d.reconstructor == nil {
		return decodeError(ErrUnexpectedBinary, "")
	}
	packet, err := d.reconstructor.takeBinaryData(f.Data)
	if err != nil {
		d.reconstructor = nil
		return err
	}
	if packet != nil {
		d.reconstructor = nil
		d.dispatch(packet)
	}
	return nil
}

// AddString feeds a text frame.
func (d *Decoder) AddString(s string) error {
	return d.Add(TextFrame(s))
}

// AddBytes feeds a binary frame.
func (d *Decoder) AddBytes(b []byte) error {
	return d.Add(BinaryFrame(b))
}

// Destroy drops any partially received packet.
func (d *Decoder) Destroy() {
	if d.reconstructor != nil {
		d.reconstructor.finishedReconstruction()
		d.reconstructor = nil
	}
}

func (d *Decoder) dispatch(packet *Packet) {
	switch packet.Type {
	case BINARY_EVENT:
		packet.Type = EVENT
	case BINARY_ACK:
		packet.Type = ACK
	}
	packet.Attachments = -1
	if d.emit != nil {
		d.emit(packet)
	}
}

// DecodeString parses a text frame. For binary packet types the returned
// packet still holds placeholders and the declared attachment count.
func DecodeString(str string) (*Packet, error) {
	if len(str) == 0 {
		return nil, decodeError(ErrEmptyFrame, "")
	}
	if str[0] < '0' || !PacketType(str[0]-'0').Valid() {
		return nil, decodeError(ErrInvalidPacketType, str)
	}
	packet := &Packet{Type: PacketType(str[0] - '0'), Nsp: DefaultNsp, Attachments: -1}

	i := 1
	if packet.Type.IsBinary() {
		start := i
		for i < len(str) && str[i] != '-' {
			i++
		}
		if i >= len(str) {
			return nil, decodeError(ErrIllegalAttachments, str)
		}
		n, err := strconv.Atoi(str[start:i])
		if err != nil || n < 0 {
			return nil, decodeError(ErrIllegalAttachments, str)
		}
		packet.Attachments = n
		i++
	}

	if i < len(str) && str[i] == '/' {
		start := i
		for i < len(str) && str[i] != ',' {
			i++
		}
		packet.Nsp = str[start:i]
		if i < len(str) {
			i++
		}
	}

	if i < len(str) && isDigit(str[i]) {
		start := i
		for i < len(str) && isDigit(str[i]) {
			i++
		}
		id, err := strconv.Atoi(str[start:i])
		if err != nil {
			return nil, decodeError(ErrInvalidID, str)
		}
		packet.ID = &id
	}

	raw := str[i:]
	if !validPayload(packet.Type, []byte(raw)) {
		return nil, decodeError(ErrInvalidPayload, str)
	}
	if raw != "" {
		var data interface{}
		if err := json.UnmarshalFromString(raw, &data); err != nil {
			return nil, decodeError(ErrInvalidPayload, str)
		}
		packet.Data = data
	}

	return packet, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// BinaryReconstructor collects the attachments of one binary packet.
type BinaryReconstructor struct {
	packet  *Packet
	buffers [][]byte
}

func NewBinaryReconstructor(packet *Packet) *BinaryReconstructor {
	return &BinaryReconstructor{packet: packet}
}

func (br *BinaryReconstructor) takeBinaryData(binData []byte) (*Packet, error) {
	br.buffers = append(br.buffers, binData)
	if len(br.buffers) < br.packet.Attachments {
		return nil, nil
	}
	packet := br.packet
	err := reconstructPacket(packet, br.buffers)
	br.finishedReconstruction()
	if err != nil {
		return nil, decodeError(err, "")
	}
	return packet, nil
}

func (br *BinaryReconstructor) finishedReconstruction() {
	br.buffers = nil
}
