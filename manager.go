package socketio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/SavvasMohito/go-socket.io-client/engineio"
	"github.com/SavvasMohito/go-socket.io-client/parser"
	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// Events raised by a Conn to its sockets.
const (
	EventOpen   = "open"
	EventPacket = "packet"
	EventError  = "error"
	EventClose  = "close"
)

type ReadyState int32

const (
	ReadyClosed ReadyState = iota
	ReadyOpening
	ReadyOpen
)

func (r ReadyState) String() string {
	switch r {
	case ReadyClosed:
		return "closed"
	case ReadyOpening:
		return "opening"
	case ReadyOpen:
		return "open"
	}
	return "unknown"
}

// Conn is the shared connection sockets multiplex over. Except for
// ReadyState and Reconnecting, its methods are called from the connection's
// Loop.
type Conn interface {
	ReadyState() ReadyState
	Reconnecting() bool
	// Open ensures the transport is open or opening.
	Open()
	// Packet transmits a packet.
	Packet(p *parser.Packet)
	// Destroy releases the socket's hold; the transport is closed once no
	// socket is active.
	Destroy(s *Socket)
	Subscribe(event string, fn Listener) Handle
	Unsubscribe(h Handle)
}

// Manager is a Conn over an Engine.IO websocket. It owns its sockets, keyed
// by namespace.
type Manager struct {
	id   uuid.UUID
	key  string
	url  string
	opts Options
	loop *Loop
	log  *zap.Logger

	readyState atomic.Int32

	mu   sync.Mutex
	nsps map[string]*Socket

	// loop-confined
	events     *emitter
	engine     *engineio.Conn
	encoder    parser.PacketEncoder
	decoder    parser.PacketDecoder
	attempt    int
	dialCancel context.CancelFunc
	release    func(*Manager)
}

// NewManager creates a Manager for addr. The transport is not opened until
// one of its sockets is.
func NewManager(addr string, opts ...ClientOption) (*Manager, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.normalize()
	target, err := parseTarget(addr, &o)
	if err != nil {
		return nil, err
	}
	return newManager(target, o)
}

func newManager(target *target, o Options) (*Manager, error) {
	u, err := engineio.URL(target.base, o.Path, target.query)
	if err != nil {
		return nil, err
	}

	id := uuid.Must(uuid.NewV4())
	m := &Manager{
		id:      id,
		key:     target.key,
		url:     u,
		opts:    o,
		loop:    NewLoop(),
		log:     o.Logger.With(zap.String("manager", id.String())),
		nsps:    make(map[string]*Socket),
		events:  newEmitter(),
		encoder: o.Parser.NewEncoder(),
	}
	m.log.Debug("new manager", zap.String("url", u))
	return m, nil
}

func (m *Manager) ID() string {
	return m.id.String()
}

func (m *Manager) ReadyState() ReadyState {
	return ReadyState(m.readyState.Load())
}

// Reconnecting always reports false: the Manager does not reconnect on its
// own, a socket's Open reopens the transport.
func (m *Manager) Reconnecting() bool {
	return false
}

// Socket returns the socket for nsp, creating it on first use.
func (m *Manager) Socket(nsp string, opts ...ClientOption) *Socket {
	o := m.opts
	for _, opt := range opts {
		opt(&o)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.nsps[nsp]; ok {
		return s
	}
	s := newSocket(m, m.loop, nsp, o.Auth, m.log)
	m.nsps[nsp] = s
	return s
}

func (m *Manager) hasNamespace(nsp string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.nsps[nsp]
	return ok
}

func (m *Manager) Subscribe(event string, fn Listener) Handle {
	h := nextHandle()
	m.events.on(event, h, fn, false)
	return h
}

func (m *Manager) Unsubscribe(h Handle) {
	m.events.off(h)
}

// On registers an application listener for a Manager event.
func (m *Manager) On(event string, fn Listener) Handle {
	h := nextHandle()
	m.loop.Exec(func() { m.events.on(event, h, fn, false) })
	return h
}

func (m *Manager) Off(h Handle) {
	m.loop.Exec(func() { m.events.off(h) })
}

func (m *Manager) Open() {
	if m.ReadyState() != ReadyClosed {
		return
	}
	m.readyState.Store(int32(ReadyOpening))
	m.attempt++
	attempt := m.attempt

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if m.opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), m.opts.Timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	m.dialCancel = cancel

	m.log.Debug("opening", zap.String("url", m.url))
	cfg := engineio.Config{Header: m.opts.Header, Dialer: m.opts.Dialer, Logger: m.log}
	go func() {
		defer cancel()
		conn, err := engineio.Dial(ctx, m.url, cfg)
		m.loop.Exec(func() { m.ondial(attempt, conn, err) })
	}()
}

func (m *Manager) ondial(attempt int, conn *engineio.Conn, err error) {
	if attempt != m.attempt {
		// closed while dialing
		if conn != nil {
			conn.Close()
		}
		return
	}
	m.dialCancel = nil

	if err != nil {
		m.log.Debug("connect error", zap.Error(err))
		m.readyState.Store(int32(ReadyClosed))
		m.events.emit(EventError, err)
		return
	}

	m.engine = conn
	m.decoder = m.opts.Parser.NewDecoder()
	m.decoder.OnDecoded(func(p *parser.Packet) {
		m.events.emit(EventPacket, p)
	})
	m.readyState.Store(int32(ReadyOpen))

	conn.Start(
		func(msg engineio.Message) {
			m.loop.Exec(func() { m.ondata(conn, msg) })
		},
		func(reason string) {
			m.loop.Exec(func() { m.onclose(conn, reason) })
		},
	)
	m.log.Debug("open")
	m.events.emit(EventOpen)
}

func (m *Manager) ondata(conn *engineio.Conn, msg engineio.Message) {
	if m.engine != conn {
		return
	}
	if err := m.decoder.Add(parser.Frame{Binary: msg.Binary, Data: msg.Data}); err != nil {
		m.log.Warn("dropping undecodable frame", zap.Error(err))
	}
}

func (m *Manager) Packet(p *parser.Packet) {
	if m.engine == nil {
		m.log.Debug("transport not open, dropping packet", zap.Stringer("type", p.Type))
		return
	}

	frames, err := m.encoder.Encode(p)
	if err != nil {
		m.log.Warn("encode failed", zap.Stringer("type", p.Type), zap.Error(err))
		m.events.emit(EventError, err)
		return
	}

	msgs := make([]engineio.Message, len(frames))
	for i, f := range frames {
		msgs[i] = engineio.Message{Binary: f.Binary, Data: f.Data}
	}
	if err := m.engine.Send(msgs...); err != nil {
		m.log.Warn("send failed", zap.Error(err))
		m.events.emit(EventError, err)
		if errors.Is(err, engineio.ErrSocketOverflood) {
			m.engine.Close()
		}
	}
}

func (m *Manager) onclose(conn *engineio.Conn, reason string) {
	if m.engine != conn {
		return
	}
	m.cleanup()
	m.readyState.Store(int32(ReadyClosed))
	m.log.Debug("close", zap.String("reason", reason))
	m.events.emit(EventClose, reason)
}

func (m *Manager) cleanup() {
	m.engine = nil
	if m.decoder != nil {
		m.decoder.Destroy()
		m.decoder = nil
	}
}

func (m *Manager) Destroy(s *Socket) {
	m.mu.Lock()
	for _, socket := range m.nsps {
		if socket.Active() {
			m.mu.Unlock()
			m.log.Debug("socket still active, keeping transport", zap.String("nsp", socket.Namespace()))
			return
		}
	}
	m.mu.Unlock()

	m.close()
}

// Close tears the transport down regardless of active sockets.
func (m *Manager) Close() {
	m.loop.Exec(m.close)
}

func (m *Manager) close() {
	m.log.Debug("disconnect")
	m.attempt++
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}

	wasOpen := m.ReadyState() != ReadyClosed
	if m.engine != nil {
		m.engine.Close()
	}
	m.cleanup()
	m.readyState.Store(int32(ReadyClosed))

	if m.release != nil {
		m.release(m)
	}
	if wasOpen {
		m.events.emit(EventClose, engineio.ReasonForcedClose)
	}
}
