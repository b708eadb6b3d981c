package engineio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

const (
	queueBufferSize = 500
	writeWait       = 10 * time.Second
	defaultPath     = "/socket.io/"
)

var (
	ErrSocketOverflood = errors.New("engineio: socket overflood")
	ErrClosed          = errors.New("engineio: connection closed")
	ErrHandshake       = errors.New("engineio: invalid open packet")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// URL builds the websocket endpoint for addr. An http(s) scheme is mapped to
// ws(s), path defaults to /socket.io/ and query is merged into the
// Engine.IO handshake parameters.
func URL(addr string, path string, query url.Values) (string, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("engineio: unsupported scheme %q", u.Scheme)
	}

	if path == "" {
		path = defaultPath
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	u.Path = path

	queryParams := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			queryParams.Add(k, v)
		}
	}
	queryParams.Set("EIO", fmt.Sprint(Protocol))
	queryParams.Set("transport", "websocket")
	queryParams.Set("t", time.Now().Format("02150405"))
	u.RawQuery = queryParams.Encode()

	return u.String(), nil
}

// Config carries the optional dial settings.
type Config struct {
	Header http.Header
	Dialer *websocket.Dialer
	Logger *zap.Logger
}

type outFrame struct {
	messageType int
	data        []byte
	final       bool
}

// Conn is an open Engine.IO session. Handlers passed to Start are invoked
// from the connection's read goroutine.
type Conn struct {
	ws        *websocket.Conn
	handshake Handshake
	log       *zap.Logger

	out       chan outFrame
	closing   chan struct{}
	closeOnce sync.Once
	started   atomic.Bool

	onMessage func(Message)
	onClose   func(reason string)
}

// Dial opens the websocket and waits for the Engine.IO open packet. The
// context bounds the whole handshake.
func Dial(ctx context.Context, rawURL string, cfg Config) (*Conn, error) {
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	ws, _, err := dialer.DialContext(ctx, rawURL, cfg.Header)
	if err != nil {
		return nil, fmt.Errorf("engineio: dial: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = ws.SetReadDeadline(deadline)
	}
	mt, data, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("engineio: read open packet: %w", err)
	}
	if mt != websocket.TextMessage || len(data) == 0 || PacketType(data[0]) != PacketOpen {
		ws.Close()
		return nil, ErrHandshake
	}

	c := &Conn{
		ws:      ws,
		log:     log,
		out:     make(chan outFrame, queueBufferSize),
		closing: make(chan struct{}),
	}
	if err := json.Unmarshal(data[1:], &c.handshake); err != nil {
		ws.Close()
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	_ = ws.SetReadDeadline(time.Time{})

	log.Debug("engine.io open",
		zap.String("sid", c.handshake.SID),
		zap.Int("pingInterval", c.handshake.PingInterval),
		zap.Int("pingTimeout", c.handshake.PingTimeout))
	return c, nil
}

func (c *Conn) Handshake() Handshake {
	return c.handshake
}

// Start runs the read and write loops. onClose is called exactly once.
func (c *Conn) Start(onMessage func(Message), onClose func(reason string)) {
	c.onMessage = onMessage
	c.onClose = onClose
	c.started.Store(true)
	go c.readLoop()
	go c.writeLoop()
}

// Send queues messages for transmission in order. It never blocks.
func (c *Conn) Send(msgs ...Message) error {
	for _, m := range msgs {
		var f outFrame
		if m.Binary {
			f = outFrame{messageType: websocket.BinaryMessage, data: m.Data}
		} else {
			data := make([]byte, 0, len(m.Data)+1)
			data = append(data, byte(PacketMessage))
			data = append(data, m.Data...)
			f = outFrame{messageType: websocket.TextMessage, data: data}
		}
		if err := c.enqueue(f); err != nil {
			return err
		}
	}
	return nil
}

// Close sends the close packet and tears the connection down once it has
// been written. A Conn that was never started is torn down immediately.
func (c *Conn) Close() {
	if !c.started.Load() {
		// no write loop to flush the queue
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.ws.WriteMessage(websocket.TextMessage, []byte{byte(PacketClose)})
		c.shutdown(ReasonForcedClose)
		return
	}
	err := c.enqueue(outFrame{messageType: websocket.TextMessage, data: []byte{byte(PacketClose)}, final: true})
	if err != nil {
		c.shutdown(ReasonForcedClose)
	}
}

func (c *Conn) enqueue(f outFrame) error {
	select {
	case <-c.closing:
		return ErrClosed
	default:
	}
	select {
	case c.out <- f:
		return nil
	default:
		return ErrSocketOverflood
	}
}

func (c *Conn) pingDeadline() time.Time {
	d := time.Duration(c.handshake.PingInterval+c.handshake.PingTimeout) * time.Millisecond
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}

func (c *Conn) readLoop() {
	for {
		_ = c.ws.SetReadDeadline(c.pingDeadline())
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			c.shutdown(readErrorReason(err))
			return
		}

		if mt == websocket.BinaryMessage {
			c.onMessage(Message{Binary: true, Data: data})
			continue
		}
		if len(data) == 0 {
			continue
		}

		switch PacketType(data[0]) {
		case PacketPing:
			pong := append([]byte{byte(PacketPong)}, data[1:]...)
			if err := c.enqueue(outFrame{messageType: websocket.TextMessage, data: pong}); err != nil {
				c.log.Debug("pong dropped", zap.Error(err))
			}
		case PacketMessage:
			c.onMessage(Message{Data: data[1:]})
		case PacketClose:
			c.shutdown(ReasonTransportClose)
			return
		case PacketPong, PacketNoop:
		default:
			c.log.Debug("ignoring engine.io packet", zap.Stringer("type", PacketType(data[0])))
		}
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case f := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(f.messageType, f.data); err != nil {
				c.log.Debug("write failed", zap.Error(err))
				c.shutdown(ReasonTransportError)
				return
			}
			if f.final {
				c.shutdown(ReasonForcedClose)
				return
			}
		case <-c.closing:
			return
		}
	}
}

func (c *Conn) shutdown(reason string) {
	c.closeOnce.Do(func() {
		close(c.closing)
		c.ws.Close()
		c.log.Debug("engine.io close", zap.String("reason", reason))
		if c.onClose != nil {
			c.onClose(reason)
		}
	})
}

func readErrorReason(err error) string {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return ReasonTransportClose
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ReasonPingTimeout
	}
	return ReasonTransportError
}
