package parser

import (
	"fmt"

	"github.com/vmihailenco/msgpack"
)

// Msgpack is the msgpack wire format. Every packet travels as a single
// binary frame and blobs are carried natively, so there are no attachments.
var Msgpack Parser = msgpackParser{}

type msgpackParser struct{}

func (msgpackParser) Name() string              { return "msgpack" }
func (msgpackParser) NewEncoder() PacketEncoder { return msgpackEncoder{} }
func (msgpackParser) NewDecoder() PacketDecoder { return &msgpackDecoder{} }

type msgPack struct {
	Type PacketType  `msgpack:"type"`
	Nsp  string      `msgpack:"nsp"`
	Data interface{} `msgpack:"data"`
	ID   *int        `msgpack:"id,omitempty"`
}

type msgpackEncoder struct{}

func (msgpackEncoder) Encode(packet *Packet) ([]Frame, error) {
	m := msgPack{Type: packet.Type, Nsp: packet.Nsp, Data: packet.Data, ID: packet.ID}
	switch m.Type {
	case BINARY_EVENT:
		m.Type = EVENT
	case BINARY_ACK:
		m.Type = ACK
	}
	if m.Nsp == "" {
		m.Nsp = DefaultNsp
	}
	b, err := msgpack.Marshal(&m)
	if err != nil {
		return nil, fmt.Errorf("parser: msgpack encode: %w", err)
	}
	return []Frame{BinaryFrame(b)}, nil
}

type msgpackDecoder struct {
	emit func(packet *Packet)
}

func (d *msgpackDecoder) OnDecoded(fn func(packet *Packet)) {
	d.emit = fn
}

func (d *msgpackDecoder) Destroy() {}

func (d *msgpackDecoder) Add(f Frame) error {
	if !f.Binary {
		return decodeError(ErrInvalidPayload, string(f.Data))
	}
	var m msgPack
	if err := msgpack.Unmarshal(f.Data, &m); err != nil {
		return decodeError(ErrInvalidPayload, "")
	}
	if !m.Type.Valid() {
		return decodeError(ErrInvalidPacketType, "")
	}
	switch m.Type {
	case BINARY_EVENT:
		m.Type = EVENT
	case BINARY_ACK:
		m.Type = ACK
	}
	if m.Nsp == "" {
		m.Nsp = DefaultNsp
	}

	packet := &Packet{Type: m.Type, Nsp: m.Nsp, Data: normalizeMsgpack(m.Data), ID: m.ID, Attachments: -1}
	if !validData(packet.Type, packet.Data) {
		return decodeError(ErrInvalidPayload, "")
	}
	if d.emit != nil {
		d.emit(packet)
	}
	return nil
}

// normalizeMsgpack rewrites maps with non-string keys into map[string]interface{}
// so the session layer sees the same tree shapes as with the text parser.
func normalizeMsgpack(v interface{}) interface{} {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalizeMsgpack(val)
		}
		return m
	case map[string]interface{}:
		for k, val := range t {
			t[k] = normalizeMsgpack(val)
		}
		return t
	case []interface{}:
		for i, val := range t {
			t[i] = normalizeMsgpack(val)
		}
		return t
	}
	return v
}

func validData(t PacketType, data interface{}) bool {
	switch t {
	case CONNECT:
		if data == nil {
			return true
		}
		_, ok := data.(map[string]interface{})
		return ok
	case DISCONNECT:
		return data == nil
	case CONNECT_ERROR:
		switch data.(type) {
		case nil, string, map[string]interface{}:
			return true
		}
		return false
	case EVENT:
		args, ok := data.([]interface{})
		if !ok || len(args) == 0 {
			return false
		}
		switch args[0].(type) {
		case string, int8, int16, int32, int64, uint8, uint16, uint32, uint64, float32, float64:
			return true
		}
		return false
	case ACK:
		_, ok := data.([]interface{})
		return ok
	}
	return false
}
