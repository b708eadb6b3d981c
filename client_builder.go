package socketio

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/SavvasMohito/go-socket.io-client/parser"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type ClientOptions struct {
	Namespace string
	Path      string
	Auth      map[string]string
	Query     url.Values
	Header    http.Header

	// ForceNew skips the connection cache. Multiplex=false has the same
	// effect.
	ForceNew  bool
	Multiplex bool

	Timeout time.Duration
	Parser  parser.Parser
	Dialer  *websocket.Dialer
	Logger  *zap.Logger
}

// Options is the resolved configuration of a Manager.
type Options = ClientOptions

func defaultOptions() Options {
	return Options{
		Multiplex: true,
		Timeout:   20 * time.Second,
		Parser:    parser.Default,
		Logger:    zap.NewNop(),
	}
}

// normalize fills in defaults for options explicitly set to zero values.
func (o *ClientOptions) normalize() {
	if o.Parser == nil {
		o.Parser = parser.Default
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

type ClientOption func(*ClientOptions)

// ClientBuilder builds sockets sharing one connection cache.
type ClientBuilder struct {
	once   sync.Once
	client *Client
}

func (c *ClientBuilder) WithNamespace(v string) ClientOption {
	return func(c *ClientOptions) {
		c.Namespace = v
	}
}

func (c *ClientBuilder) WithPath(v string) ClientOption {
	return func(c *ClientOptions) {
		c.Path = v
	}
}

func (c *ClientBuilder) WithAuth(v map[string]string) ClientOption {
	return func(c *ClientOptions) {
		c.Auth = v
	}
}

func (c *ClientBuilder) WithQuery(v url.Values) ClientOption {
	return func(c *ClientOptions) {
		c.Query = v
	}
}

func (c *ClientBuilder) WithHeader(v http.Header) ClientOption {
	return func(c *ClientOptions) {
		c.Header = v
	}
}

func (c *ClientBuilder) WithForceNew(v bool) ClientOption {
	return func(c *ClientOptions) {
		c.ForceNew = v
	}
}

func (c *ClientBuilder) WithMultiplex(v bool) ClientOption {
	return func(c *ClientOptions) {
		c.Multiplex = v
	}
}

func (c *ClientBuilder) WithTimeout(v time.Duration) ClientOption {
	return func(c *ClientOptions) {
		c.Timeout = v
	}
}

func (c *ClientBuilder) WithParser(v parser.Parser) ClientOption {
	return func(c *ClientOptions) {
		c.Parser = v
	}
}

func (c *ClientBuilder) WithDialer(v *websocket.Dialer) ClientOption {
	return func(c *ClientOptions) {
		c.Dialer = v
	}
}

func (c *ClientBuilder) WithLogger(v *zap.Logger) ClientOption {
	return func(c *ClientOptions) {
		c.Logger = v
	}
}

// Build returns a socket for addr. The namespace is taken from the address
// path unless WithNamespace is given.
func (c *ClientBuilder) Build(addr string, opts ...ClientOption) (*Socket, error) {
	c.once.Do(func() {
		if c.client == nil {
			c.client = NewClient()
		}
	})
	return c.client.Socket(addr, opts...)
}
