package socketio

import (
	"fmt"

	"github.com/SavvasMohito/go-socket.io-client/parser"
	"go.uber.org/zap"
)

// Lifecycle events raised on a Socket.
const (
	EventConnect      = "connect"
	EventConnectError = "connect_error"
	EventDisconnect   = "disconnect"
	EventMessage      = "message"
)

var reservedEvents = map[string]struct{}{
	EventConnect:      {},
	EventConnectError: {},
	EventDisconnect:   {},
	// used on the server-side
	"disconnecting":  {},
	"newListener":    {},
	"removeListener": {},
}

func isReserved(event string) bool {
	_, ok := reservedEvents[event]
	return ok
}

func (s *Socket) onpacket(p *parser.Packet) {
	if p.Nsp != s.nsp {
		return
	}

	switch p.Type {
	case parser.CONNECT:
		if sid, ok := connectSID(p.Data); ok {
			s.onconnect(sid)
		} else {
			s.events.emit(EventConnectError, &ConnectError{Message: errProtocolMismatch})
		}
	case parser.EVENT, parser.BINARY_EVENT:
		s.onevent(p)
	case parser.ACK, parser.BINARY_ACK:
		s.onack(p)
	case parser.DISCONNECT:
		s.ondisconnect()
	case parser.CONNECT_ERROR:
		s.events.emit(EventConnectError, newConnectError(p.Data))
	}
}

func connectSID(data interface{}) (string, bool) {
	m, ok := data.(map[string]interface{})
	if !ok {
		return "", false
	}
	sid, ok := m["sid"].(string)
	return sid, ok
}

func (s *Socket) onevent(p *parser.Packet) {
	args := toArgs(p.Data)
	s.log.Debug("emitting event", zap.Int("args", len(args)))

	if p.ID != nil {
		s.log.Debug("attaching ack callback to event", zap.Int("id", *p.ID))
		args = append(args, s.ack(*p.ID))
	}

	if s.connected.Load() {
		s.dispatch(args)
	} else {
		s.receiveBuffer = append(s.receiveBuffer, args)
	}
}

func (s *Socket) dispatch(args []interface{}) {
	if len(args) == 0 {
		return
	}
	s.anyIncoming.call(args...)
	s.events.emit(eventName(args[0]), args[1:]...)
}

// ack returns the responder for an inbound event. Only the first call sends
// an acknowledgement.
func (s *Socket) ack(id int) AckFunc {
	sent := false
	return func(args ...interface{}) {
		data := append([]interface{}{}, args...)
		s.loop.Exec(func() {
			if sent {
				return
			}
			sent = true
			s.log.Debug("sending ack", zap.Int("id", id), zap.Int("args", len(data)))

			packet := parser.NewPacket(parser.ACK, data)
			packet.SetID(id)
			s.packet(packet)
		})
	}
}

func (s *Socket) onack(p *parser.Packet) {
	if p.ID == nil {
		s.log.Debug("ack without id")
		return
	}
	entry, ok := s.acks[*p.ID]
	if !ok {
		s.log.Debug("bad ack", zap.Int("id", *p.ID))
		return
	}
	delete(s.acks, *p.ID)
	entry.stop()

	s.log.Debug("calling ack", zap.Int("id", *p.ID))
	entry.ack.Call(toArgs(p.Data)...)
}

func (s *Socket) onconnect(id string) {
	s.connected.Store(true)
	s.id.Store(id)
	s.emitBuffered()
	s.events.emit(EventConnect)
}

func (s *Socket) emitBuffered() {
	for len(s.receiveBuffer) > 0 {
		args := s.receiveBuffer[0]
		s.receiveBuffer = s.receiveBuffer[1:]
		s.dispatch(args)
	}
	s.receiveBuffer = nil

	for len(s.sendBuffer) > 0 {
		packet := s.sendBuffer[0]
		s.sendBuffer = s.sendBuffer[1:]
		s.packet(packet)
	}
	s.sendBuffer = nil
}

func (s *Socket) ondisconnect() {
	s.log.Debug("server disconnect")
	s.destroy()
	s.onclose(ReasonServerDisconnect)
}

func toArgs(data interface{}) []interface{} {
	arr, ok := data.([]interface{})
	if !ok {
		if data == nil {
			return []interface{}{}
		}
		return []interface{}{data}
	}
	return append(make([]interface{}, 0, len(arr)+1), arr...)
}

func eventName(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
