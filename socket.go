package socketio

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/SavvasMohito/go-socket.io-client/parser"
	"go.uber.org/zap"
)

// Disconnect reasons produced by the socket itself. Transport reasons are
// forwarded from the Manager unchanged.
const (
	ReasonClientDisconnect = "io client disconnect"
	ReasonServerDisconnect = "io server disconnect"
)

// Socket is one namespace multiplexed over a Conn. Every method returns
// immediately; results are observed through listeners and ack callbacks.
type Socket struct {
	nsp  string
	io   Conn
	loop *Loop
	auth map[string]string
	log  *zap.Logger

	id        atomic.Value
	connected atomic.Bool
	active    atomic.Bool

	// loop-confined
	ids           int
	acks          map[int]*ackEntry
	subs          []Handle
	receiveBuffer [][]interface{}
	sendBuffer    []*parser.Packet
	events        *emitter
	anyIncoming   listenerList
	anyOutgoing   listenerList
}

func newSocket(io Conn, loop *Loop, nsp string, auth map[string]string, log *zap.Logger) *Socket {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Socket{
		nsp:    nsp,
		io:     io,
		loop:   loop,
		auth:   auth,
		log:    log.With(zap.String("nsp", nsp)),
		acks:   make(map[int]*ackEntry),
		events: newEmitter(),
	}
	s.id.Store("")
	return s
}

// ID is the session id assigned by the server, or "" while disconnected.
func (s *Socket) ID() string {
	return s.id.Load().(string)
}

func (s *Socket) Connected() bool {
	return s.connected.Load()
}

// Active reports whether the socket is subscribed to its connection and
// will therefore reconnect with it.
func (s *Socket) Active() bool {
	return s.active.Load()
}

func (s *Socket) Namespace() string {
	return s.nsp
}

// Conn returns the shared connection the socket runs on.
func (s *Socket) Conn() Conn {
	return s.io
}

func (s *Socket) subEvents() {
	if s.subs != nil {
		return
	}

	s.subs = []Handle{
		s.io.Subscribe(EventOpen, func(args ...interface{}) {
			s.onopen()
		}),
		s.io.Subscribe(EventPacket, func(args ...interface{}) {
			if len(args) > 0 {
				if p, ok := args[0].(*parser.Packet); ok {
					s.onpacket(p)
				}
			}
		}),
		s.io.Subscribe(EventError, func(args ...interface{}) {
			if !s.connected.Load() {
				s.events.emit(EventConnectError, args...)
			}
		}),
		s.io.Subscribe(EventClose, func(args ...interface{}) {
			reason := ""
			if len(args) > 0 {
				reason, _ = args[0].(string)
			}
			s.onclose(reason)
		}),
	}
	s.active.Store(true)
}

// Open connects the socket. It is a no-op while connected or while the
// connection is reconnecting.
func (s *Socket) Open() {
	s.loop.Exec(func() {
		if s.connected.Load() || s.io.Reconnecting() {
			return
		}

		s.subEvents()
		s.io.Open()
		if s.io.ReadyState() == ReadyOpen {
			s.onopen()
		}
	})
}

func (s *Socket) Connect() {
	s.Open()
}

// Send emits a "message" event.
func (s *Socket) Send(args ...interface{}) error {
	return s.Emit(EventMessage, args...)
}

// Emit sends an event. A trailing Ack, Listener or func(...interface{})
// argument is used as the acknowledgement callback. []byte values inside
// slices and string-keyed maps travel as binary attachments; struct fields
// are marshaled as JSON. Reserved event names are rejected
// before anything is queued.
func (s *Socket) Emit(event string, args ...interface{}) error {
	if isReserved(event) {
		return fmt.Errorf("%w: %q", ErrReservedEvent, event)
	}

	var ack Ack
	if n := len(args); n > 0 {
		switch fn := args[n-1].(type) {
		case Ack:
			ack = fn
			args = args[:n-1]
		case func(...interface{}):
			ack = AckFunc(fn)
			args = args[:n-1]
		case Listener:
			ack = AckFunc(fn)
			args = args[:n-1]
		}
	}

	s.emit(event, args, ack)
	return nil
}

// EmitWithAck sends an event with an explicit acknowledgement callback.
func (s *Socket) EmitWithAck(event string, args []interface{}, ack Ack) error {
	if isReserved(event) {
		return fmt.Errorf("%w: %q", ErrReservedEvent, event)
	}
	s.emit(event, args, ack)
	return nil
}

func (s *Socket) emit(event string, args []interface{}, ack Ack) {
	data := make([]interface{}, 0, len(args)+1)
	data = append(data, event)
	data = append(data, args...)

	s.loop.Exec(func() {
		packet := parser.NewPacket(parser.EVENT, data)

		if ack != nil {
			ackID := s.ids
			s.ids++
			s.log.Debug("emitting packet with ack id", zap.Int("id", ackID))

			entry := &ackEntry{ack: ack}
			if t, ok := ack.(timeoutAck); ok && t.deadline() > 0 {
				entry.timer = time.AfterFunc(t.deadline(), func() {
					s.loop.Exec(func() { s.onAckTimeout(ackID, entry) })
				})
			}
			s.acks[ackID] = entry
			packet.SetID(ackID)
		}

		if s.connected.Load() {
			s.packet(packet)
		} else {
			s.sendBuffer = append(s.sendBuffer, packet)
		}
	})
}

func (s *Socket) onAckTimeout(id int, entry *ackEntry) {
	// the ack may already have been answered or torn down
	if s.acks[id] != entry {
		return
	}
	delete(s.acks, id)

	kept := s.sendBuffer[:0]
	for _, p := range s.sendBuffer {
		if p.ID != nil && *p.ID == id {
			continue
		}
		kept = append(kept, p)
	}
	s.sendBuffer = kept

	s.log.Debug("ack timed out", zap.Int("id", id))
	entry.ack.(timeoutAck).timedOut()
}

func (s *Socket) packet(p *parser.Packet) {
	if p.Type == parser.EVENT && len(s.anyOutgoing) > 0 {
		if args, ok := p.Data.([]interface{}); ok {
			s.anyOutgoing.call(append([]interface{}(nil), args...)...)
		}
	}
	p.Nsp = s.nsp
	s.io.Packet(p)
}

func (s *Socket) onopen() {
	s.log.Debug("transport is open - connecting")

	packet := parser.NewPacket(parser.CONNECT, nil)
	if s.auth != nil {
		packet.Data = s.auth
	}
	s.packet(packet)
}

func (s *Socket) onclose(reason string) {
	s.log.Debug("close", zap.String("reason", reason))
	s.connected.Store(false)
	s.id.Store("")
	s.events.emit(EventDisconnect, reason)
}

func (s *Socket) destroy() {
	if s.subs != nil {
		// clean subscriptions to avoid reconnection
		for _, h := range s.subs {
			s.io.Unsubscribe(h)
		}
		s.subs = nil
		s.active.Store(false)
	}

	for id, entry := range s.acks {
		entry.stop()
		delete(s.acks, id)
	}

	s.io.Destroy(s)
}

// Close disconnects the socket, sending a DISCONNECT packet first when
// connected. The disconnect event fires only if the socket was connected.
func (s *Socket) Close() {
	s.loop.Exec(func() {
		wasConnected := s.connected.Load()
		if wasConnected {
			s.log.Debug("performing disconnect")
			s.packet(parser.NewPacket(parser.DISCONNECT, nil))
		}

		s.destroy()

		if wasConnected {
			s.onclose(ReasonClientDisconnect)
		}
	})
}

func (s *Socket) Disconnect() {
	s.Close()
}

// On registers fn for event and returns a handle for Off.
func (s *Socket) On(event string, fn Listener) Handle {
	h := nextHandle()
	s.loop.Exec(func() { s.events.on(event, h, fn, false) })
	return h
}

// Once registers fn for the next occurrence of event only.
func (s *Socket) Once(event string, fn Listener) Handle {
	h := nextHandle()
	s.loop.Exec(func() { s.events.on(event, h, fn, true) })
	return h
}

func (s *Socket) Off(h Handle) {
	s.loop.Exec(func() { s.events.off(h) })
}

// OffAll removes every event listener, including lifecycle listeners.
func (s *Socket) OffAll() {
	s.loop.Exec(func() { s.events.offAll() })
}

// OnAnyIncoming registers fn for every dispatched inbound event. fn receives
// the event name followed by its arguments.
func (s *Socket) OnAnyIncoming(fn Listener) Handle {
	h := nextHandle()
	s.loop.Exec(func() { s.anyIncoming.add(h, fn, false) })
	return h
}

// OffAnyIncoming removes the given listeners, or all of them when called
// without handles.
func (s *Socket) OffAnyIncoming(handles ...Handle) {
	s.loop.Exec(func() { offAny(&s.anyIncoming, handles) })
}

// OnAnyOutgoing registers fn for every transmitted event. fn receives the
// event name followed by its arguments.
func (s *Socket) OnAnyOutgoing(fn Listener) Handle {
	h := nextHandle()
	s.loop.Exec(func() { s.anyOutgoing.add(h, fn, false) })
	return h
}

// OffAnyOutgoing removes the given listeners, or all of them when called
// without handles.
func (s *Socket) OffAnyOutgoing(handles ...Handle) {
	s.loop.Exec(func() { offAny(&s.anyOutgoing, handles) })
}

func offAny(l *listenerList, handles []Handle) {
	if len(handles) == 0 {
		l.clear()
		return
	}
	for _, h := range handles {
		l.remove(h)
	}
}
