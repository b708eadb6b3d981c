package socketio

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/SavvasMohito/go-socket.io-client/parser"
)

// fakeConn records what sockets do to their connection. It is only touched
// from the socket's Loop, or from the test after Loop.Sync.
type fakeConn struct {
	state        ReadyState
	reconnecting bool
	events       *emitter
	sent         []*parser.Packet
	opened       int
	destroyed    int
}

func newFakeConn() *fakeConn {
	return &fakeConn{state: ReadyOpen, events: newEmitter()}
}

func (c *fakeConn) ReadyState() ReadyState  { return c.state }
func (c *fakeConn) Reconnecting() bool      { return c.reconnecting }
func (c *fakeConn) Open()                   { c.opened++ }
func (c *fakeConn) Packet(p *parser.Packet) { c.sent = append(c.sent, p) }
func (c *fakeConn) Destroy(s *Socket)       { c.destroyed++ }
func (c *fakeConn) Unsubscribe(h Handle)    { c.events.off(h) }
func (c *fakeConn) Subscribe(event string, fn Listener) Handle {
	h := nextHandle()
	c.events.on(event, h, fn, false)
	return h
}

func (c *fakeConn) sentOf(t parser.PacketType) []*parser.Packet {
	var out []*parser.Packet
	for _, p := range c.sent {
		if p.Type == t {
			out = append(out, p)
		}
	}
	return out
}

type socketHarness struct {
	t    *testing.T
	loop *Loop
	conn *fakeConn
	s    *Socket
}

func newHarness(t *testing.T, auth map[string]string) *socketHarness {
	loop := NewLoop()
	conn := newFakeConn()
	return &socketHarness{t: t, loop: loop, conn: conn, s: newSocket(conn, loop, "/", auth, nil)}
}

// deliver raises a connection event on the loop and waits for it.
func (h *socketHarness) deliver(event string, args ...interface{}) {
	h.loop.Exec(func() { h.conn.events.emit(event, args...) })
	h.loop.Sync()
}

func (h *socketHarness) packet(p *parser.Packet) {
	h.deliver(EventPacket, p)
}

func (h *socketHarness) connect() {
	h.s.Open()
	h.loop.Sync()
	h.packet(parser.NewPacket(parser.CONNECT, map[string]interface{}{"sid": "sid-1"}))
	if !h.s.Connected() {
		h.t.Fatalf("socket should be connected")
	}
}

func event(id *int, args ...interface{}) *parser.Packet {
	p := parser.NewPacket(parser.EVENT, args)
	p.ID = id
	return p
}

func intPtr(n int) *int {
	return &n
}

func TestOpenSendsConnect(t *testing.T) {
	h := newHarness(t, nil)
	h.s.Open()
	h.loop.Sync()

	if h.conn.opened != 1 {
		t.Fatalf("conn should be opened once, got %d", h.conn.opened)
	}
	if !h.s.Active() {
		t.Fatalf("socket should be active after open")
	}
	connects := h.conn.sentOf(parser.CONNECT)
	if len(connects) != 1 || connects[0].Data != nil || connects[0].Nsp != "/" {
		t.Fatalf("unexpected connect packets %#v", connects)
	}
}

func TestOpenSendsAuth(t *testing.T) {
	auth := map[string]string{"token": "abc"}
	h := newHarness(t, auth)
	h.s.Open()
	h.loop.Sync()

	connects := h.conn.sentOf(parser.CONNECT)
	if len(connects) != 1 {
		t.Fatalf("want one connect, got %d", len(connects))
	}
	if !reflect.DeepEqual(connects[0].Data, auth) {
		t.Fatalf("unexpected auth payload %#v", connects[0].Data)
	}
}

func TestOpenWaitsForTransport(t *testing.T) {
	h := newHarness(t, nil)
	h.conn.state = ReadyOpening
	h.s.Open()
	h.loop.Sync()

	if len(h.conn.sent) != 0 {
		t.Fatalf("nothing should be sent before the transport opens")
	}

	h.deliver(EventOpen)
	if len(h.conn.sentOf(parser.CONNECT)) != 1 {
		t.Fatalf("connect should be sent once the transport opens")
	}
}

func TestOpenWhileReconnecting(t *testing.T) {
	h := newHarness(t, nil)
	h.conn.reconnecting = true
	h.s.Open()
	h.loop.Sync()

	if h.conn.opened != 0 || len(h.conn.sent) != 0 || h.s.Active() {
		t.Fatalf("open should be a no-op while reconnecting")
	}
}

func TestConnect(t *testing.T) {
	h := newHarness(t, nil)
	connected := 0
	h.s.On(EventConnect, func(args ...interface{}) { connected++ })
	h.connect()

	if connected != 1 {
		t.Fatalf("want one connect event, got %d", connected)
	}
	if h.s.ID() != "sid-1" {
		t.Fatalf("unexpected id %q", h.s.ID())
	}

	// a second Open is ignored while connected
	h.s.Open()
	h.loop.Sync()
	if h.conn.opened != 1 {
		t.Fatalf("open while connected should not reopen")
	}
}

func TestConnectWithoutSID(t *testing.T) {
	h := newHarness(t, nil)
	var got []interface{}
	h.s.On(EventConnectError, func(args ...interface{}) { got = args })
	h.s.Open()
	h.loop.Sync()
	h.packet(parser.NewPacket(parser.CONNECT, nil))

	if h.s.Connected() {
		t.Fatalf("socket should not be connected")
	}
	if len(got) != 1 {
		t.Fatalf("want one connect_error argument, got %v", got)
	}
	cerr, ok := got[0].(*ConnectError)
	if !ok || cerr.Message != errProtocolMismatch {
		t.Fatalf("unexpected connect error %#v", got[0])
	}
}

func TestConnectErrorPacket(t *testing.T) {
	h := newHarness(t, nil)
	var got *ConnectError
	h.s.On(EventConnectError, func(args ...interface{}) { got, _ = args[0].(*ConnectError) })
	h.s.Open()
	h.loop.Sync()
	h.packet(parser.NewPacket(parser.CONNECT_ERROR, map[string]interface{}{
		"message": "Not authorized",
		"data":    map[string]interface{}{"code": 401.0},
	}))

	if got == nil || got.Message != "Not authorized" {
		t.Fatalf("unexpected connect error %#v", got)
	}
	if !reflect.DeepEqual(got.Data, map[string]interface{}{"code": 401.0}) {
		t.Fatalf("unexpected connect error data %#v", got.Data)
	}
}

func TestTransportErrorBeforeConnect(t *testing.T) {
	h := newHarness(t, nil)
	boom := errors.New("boom")
	var got []interface{}
	h.s.On(EventConnectError, func(args ...interface{}) { got = args })
	h.s.Open()
	h.loop.Sync()
	h.deliver(EventError, boom)

	if len(got) != 1 || got[0] != boom {
		t.Fatalf("unexpected connect_error args %v", got)
	}
}

func TestEmitReservedEvent(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()
	before := len(h.conn.sent)

	for _, name := range []string{EventConnect, EventConnectError, EventDisconnect, "disconnecting", "newListener", "removeListener"} {
		if err := h.s.Emit(name, 1); !errors.Is(err, ErrReservedEvent) {
			t.Fatalf("%s: want ErrReservedEvent, got %v", name, err)
		}
	}
	h.loop.Sync()

	if len(h.conn.sent) != before || len(h.s.sendBuffer) != 0 {
		t.Fatalf("reserved events should not be queued")
	}
}

func TestEmitWhileConnected(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	if err := h.s.Emit("hello", "world", 1); err != nil {
		t.Fatalf("emit: %v", err)
	}
	h.loop.Sync()

	events := h.conn.sentOf(parser.EVENT)
	if len(events) != 1 {
		t.Fatalf("want one event, got %d", len(events))
	}
	if !reflect.DeepEqual(events[0].Data, []interface{}{"hello", "world", 1}) || events[0].ID != nil {
		t.Fatalf("unexpected packet %#v", events[0])
	}
}

func TestSend(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	if err := h.s.Send("hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	h.loop.Sync()

	events := h.conn.sentOf(parser.EVENT)
	if len(events) != 1 || !reflect.DeepEqual(events[0].Data, []interface{}{"message", "hi"}) {
		t.Fatalf("unexpected packets %#v", events)
	}
}

func TestEmitAckIDs(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	noop := AckFunc(func(args ...interface{}) {})
	h.s.Emit("a", noop)
	h.s.Emit("b", 1, func(args ...interface{}) {})
	h.s.Emit("c")
	h.s.EmitWithAck("d", nil, noop)
	h.loop.Sync()

	events := h.conn.sentOf(parser.EVENT)
	if len(events) != 4 {
		t.Fatalf("want 4 events, got %d", len(events))
	}
	wantIDs := []*int{intPtr(0), intPtr(1), nil, intPtr(2)}
	for i, want := range wantIDs {
		got := events[i].ID
		if (got == nil) != (want == nil) || (got != nil && *got != *want) {
			t.Fatalf("event %d: want id %v, got %v", i, want, got)
		}
	}
	if !reflect.DeepEqual(events[1].Data, []interface{}{"b", 1}) {
		t.Fatalf("trailing callback should be stripped, got %#v", events[1].Data)
	}
}

func TestEmitListenerCallback(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	var got []interface{}
	if err := h.s.Emit("q", "a", Listener(func(args ...interface{}) { got = args })); err != nil {
		t.Fatalf("emit: %v", err)
	}
	h.loop.Sync()

	events := h.conn.sentOf(parser.EVENT)
	if len(events) != 1 {
		t.Fatalf("want one event, got %d", len(events))
	}
	if events[0].ID == nil || *events[0].ID != 0 {
		t.Fatalf("listener callback should request an ack, got id %v", events[0].ID)
	}
	if !reflect.DeepEqual(events[0].Data, []interface{}{"q", "a"}) {
		t.Fatalf("trailing listener should be stripped, got %#v", events[0].Data)
	}
	if _, err := parser.Encode(*events[0]); err != nil {
		t.Fatalf("packet should encode: %v", err)
	}

	ack := parser.NewPacket(parser.ACK, []interface{}{"ok"})
	ack.SetID(0)
	h.packet(ack)
	if !reflect.DeepEqual(got, []interface{}{"ok"}) {
		t.Fatalf("unexpected ack args %v", got)
	}
}

func TestAckResponse(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	var got []interface{}
	h.s.Emit("q", AckFunc(func(args ...interface{}) { got = args }))
	h.loop.Sync()

	ack := parser.NewPacket(parser.ACK, []interface{}{"ok", 2.0})
	ack.SetID(0)
	h.packet(ack)
	if !reflect.DeepEqual(got, []interface{}{"ok", 2.0}) {
		t.Fatalf("unexpected ack args %v", got)
	}

	// a second ack with the same id is ignored
	got = nil
	h.packet(ack)
	if got != nil {
		t.Fatalf("ack should fire once")
	}
}

func TestAckTimeoutDropsBufferedPacket(t *testing.T) {
	h := newHarness(t, nil)
	h.conn.state = ReadyOpening
	h.s.Open()
	h.loop.Sync()

	timeouts := make(chan error, 2)
	acked := false
	h.s.Emit("slow", &AckWithTimeout{
		Timeout:   20 * time.Millisecond,
		OnAck:     func(args ...interface{}) { acked = true },
		OnTimeout: func(err error) { timeouts <- err },
	})

	select {
	case err := <-timeouts:
		if !errors.Is(err, ErrAckTimeout) {
			t.Fatalf("want ErrAckTimeout, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout callback never fired")
	}

	h.deliver(EventOpen)
	h.packet(parser.NewPacket(parser.CONNECT, map[string]interface{}{"sid": "x"}))
	if n := len(h.conn.sentOf(parser.EVENT)); n != 0 {
		t.Fatalf("timed out packet should not be flushed, %d sent", n)
	}

	ack := parser.NewPacket(parser.ACK, []interface{}{})
	ack.SetID(0)
	h.packet(ack)
	if acked {
		t.Fatalf("late ack should be ignored")
	}

	select {
	case <-timeouts:
		t.Fatalf("timeout fired twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAckBeforeTimeout(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	acks := make(chan []interface{}, 1)
	timeouts := make(chan error, 1)
	h.s.Emit("fast", &AckWithTimeout{
		Timeout:   50 * time.Millisecond,
		OnAck:     func(args ...interface{}) { acks <- args },
		OnTimeout: func(err error) { timeouts <- err },
	})
	h.loop.Sync()

	ack := parser.NewPacket(parser.ACK, []interface{}{"done"})
	ack.SetID(0)
	h.packet(ack)

	select {
	case args := <-acks:
		if !reflect.DeepEqual(args, []interface{}{"done"}) {
			t.Fatalf("unexpected ack args %v", args)
		}
	default:
		t.Fatalf("ack callback should have fired")
	}

	select {
	case <-timeouts:
		t.Fatalf("timeout should not fire after the ack")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestInboundAckRespondsOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	var respond Ack
	var payload []interface{}
	h.s.On("ask", func(args ...interface{}) {
		payload = args[:len(args)-1]
		respond, _ = args[len(args)-1].(Ack)
	})
	h.packet(event(intPtr(5), "ask", 1.0))

	if respond == nil {
		t.Fatalf("listener should receive an ack responder")
	}
	if !reflect.DeepEqual(payload, []interface{}{1.0}) {
		t.Fatalf("unexpected payload %v", payload)
	}

	respond.Call("x")
	respond.Call("y")
	h.loop.Sync()

	acks := h.conn.sentOf(parser.ACK)
	if len(acks) != 1 {
		t.Fatalf("want one ack, got %d", len(acks))
	}
	if *acks[0].ID != 5 || !reflect.DeepEqual(acks[0].Data, []interface{}{"x"}) {
		t.Fatalf("unexpected ack %#v", acks[0])
	}
}

func TestBufferedEventsBeforeFlushAndConnect(t *testing.T) {
	h := newHarness(t, nil)
	h.conn.state = ReadyOpening
	h.s.Open()

	var order []string
	sentAt := map[string]int{}
	h.s.On("in", func(args ...interface{}) {
		order = append(order, "in")
		sentAt["in"] = len(h.conn.sentOf(parser.EVENT))
	})
	h.s.On(EventConnect, func(args ...interface{}) {
		order = append(order, "connect")
		sentAt["connect"] = len(h.conn.sentOf(parser.EVENT))
	})
	h.s.Emit("out", 1)
	h.loop.Sync()

	h.packet(event(nil, "in", "early"))
	if len(order) != 0 {
		t.Fatalf("events before connect should be buffered")
	}

	h.deliver(EventOpen)
	h.packet(parser.NewPacket(parser.CONNECT, map[string]interface{}{"sid": "s"}))

	if !reflect.DeepEqual(order, []string{"in", "connect"}) {
		t.Fatalf("unexpected order %v", order)
	}
	if sentAt["in"] != 0 || sentAt["connect"] != 1 {
		t.Fatalf("send buffer flushed at the wrong time: %v", sentAt)
	}
}

func TestOnceAndOff(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	once, on := 0, 0
	h.s.Once("e", func(args ...interface{}) { once++ })
	handle := h.s.On("e", func(args ...interface{}) { on++ })

	h.packet(event(nil, "e"))
	h.s.Off(handle)
	h.packet(event(nil, "e"))

	if once != 1 || on != 1 {
		t.Fatalf("want once=1 on=1, got once=%d on=%d", once, on)
	}
}

func TestOffAll(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	calls := 0
	h.s.On("e", func(args ...interface{}) { calls++ })
	h.s.On(EventDisconnect, func(args ...interface{}) { calls++ })
	h.s.OffAll()
	h.packet(event(nil, "e"))
	h.deliver(EventClose, "transport close")

	if calls != 0 {
		t.Fatalf("no listener should be left, got %d calls", calls)
	}
}

func TestOnAnyIncoming(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	var first, second [][]interface{}
	a := h.s.OnAnyIncoming(func(args ...interface{}) { first = append(first, args) })
	h.s.OnAnyIncoming(func(args ...interface{}) { second = append(second, args) })

	h.packet(event(nil, "a", 1.0))
	h.s.OffAnyIncoming(a)
	h.packet(event(nil, "b"))
	h.s.OffAnyIncoming()
	h.packet(event(nil, "c"))

	if !reflect.DeepEqual(first, [][]interface{}{{"a", 1.0}}) {
		t.Fatalf("unexpected first listener calls %v", first)
	}
	if !reflect.DeepEqual(second, [][]interface{}{{"a", 1.0}, {"b"}}) {
		t.Fatalf("unexpected second listener calls %v", second)
	}
}

func TestOnAnyOutgoing(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	var got [][]interface{}
	handle := h.s.OnAnyOutgoing(func(args ...interface{}) { got = append(got, args) })

	h.s.Emit("b", 2)
	h.s.OffAnyOutgoing(handle)
	h.s.Emit("c")
	h.loop.Sync()

	if !reflect.DeepEqual(got, [][]interface{}{{"b", 2}}) {
		t.Fatalf("unexpected outgoing calls %v", got)
	}
}

func TestIgnoresOtherNamespaces(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	calls := 0
	h.s.On("e", func(args ...interface{}) { calls++ })
	p := event(nil, "e")
	p.Nsp = "/other"
	h.packet(p)

	if calls != 0 {
		t.Fatalf("packets for other namespaces should be ignored")
	}
}

func TestCloseWhileConnected(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	var reasons []interface{}
	h.s.On(EventDisconnect, func(args ...interface{}) { reasons = append(reasons, args...) })
	h.s.Close()
	h.loop.Sync()

	last := h.conn.sent[len(h.conn.sent)-1]
	if last.Type != parser.DISCONNECT {
		t.Fatalf("last packet should be DISCONNECT, got %v", last.Type)
	}
	if !reflect.DeepEqual(reasons, []interface{}{ReasonClientDisconnect}) {
		t.Fatalf("unexpected disconnect reasons %v", reasons)
	}
	if h.s.Connected() || h.s.Active() || h.s.ID() != "" {
		t.Fatalf("socket should be closed and inactive")
	}
	if h.conn.destroyed != 1 || h.conn.events.listenerCount() != 0 {
		t.Fatalf("socket should release its connection")
	}
}

func TestCloseWhileDisconnected(t *testing.T) {
	h := newHarness(t, nil)
	h.conn.state = ReadyOpening
	h.s.Open()

	disconnects := 0
	h.s.On(EventDisconnect, func(args ...interface{}) { disconnects++ })
	h.s.Close()
	h.loop.Sync()

	if disconnects != 0 {
		t.Fatalf("disconnect should not fire for a socket that never connected")
	}
	if len(h.conn.sentOf(parser.DISCONNECT)) != 0 {
		t.Fatalf("no DISCONNECT should be sent")
	}
	if h.conn.destroyed != 1 {
		t.Fatalf("want one destroy, got %d", h.conn.destroyed)
	}
}

func TestCloseStopsAckTimers(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	timeouts := make(chan error, 1)
	h.s.Emit("q", &AckWithTimeout{
		Timeout:   30 * time.Millisecond,
		OnTimeout: func(err error) { timeouts <- err },
	})
	h.s.Close()
	h.loop.Sync()

	if len(h.s.acks) != 0 {
		t.Fatalf("pending acks should be cleared")
	}
	select {
	case <-timeouts:
		t.Fatalf("timeout should not fire after close")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestServerDisconnectPacket(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	var reasons []interface{}
	h.s.On(EventDisconnect, func(args ...interface{}) { reasons = append(reasons, args...) })
	h.packet(parser.NewPacket(parser.DISCONNECT, nil))

	if !reflect.DeepEqual(reasons, []interface{}{ReasonServerDisconnect}) {
		t.Fatalf("unexpected disconnect reasons %v", reasons)
	}
	if h.s.Active() || h.conn.events.listenerCount() != 0 {
		t.Fatalf("socket should unsubscribe from its connection")
	}

	sent := len(h.conn.sent)
	h.deliver(EventOpen)
	if len(h.conn.sent) != sent {
		t.Fatalf("a destroyed socket should not react to the transport reopening")
	}
}

func TestTransportClose(t *testing.T) {
	h := newHarness(t, nil)
	h.connect()

	var reasons []interface{}
	h.s.On(EventDisconnect, func(args ...interface{}) { reasons = append(reasons, args...) })
	h.deliver(EventClose, "transport close")

	if !reflect.DeepEqual(reasons, []interface{}{"transport close"}) {
		t.Fatalf("unexpected disconnect reasons %v", reasons)
	}
	if h.s.Connected() || h.s.ID() != "" {
		t.Fatalf("socket should be disconnected")
	}
	if !h.s.Active() {
		t.Fatalf("socket should stay subscribed after a transport close")
	}
}
