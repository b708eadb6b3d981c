package socketio

import (
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const rootNamespace = "/"

// Client caches Managers by connection identity so that sockets for
// different namespaces of the same server share one transport.
type Client struct {
	opts []ClientOption

	mu       sync.Mutex
	managers map[string]*Manager
}

// NewClient returns a client whose sockets default to opts.
func NewClient(opts ...ClientOption) *Client {
	return &Client{
		opts:     opts,
		managers: make(map[string]*Manager),
	}
}

// Socket returns a socket for addr, reusing a cached Manager unless
// ForceNew or Multiplex=false is set, or the cached Manager already has a
// socket for the same namespace.
func (c *Client) Socket(addr string, opts ...ClientOption) (*Socket, error) {
	o := defaultOptions()
	for _, opt := range c.opts {
		opt(&o)
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.normalize()

	target, err := parseTarget(addr, &o)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cached, ok := c.managers[target.key]
	sameNamespace := ok && cached.hasNamespace(target.nsp)
	newConnection := o.ForceNew || !o.Multiplex || sameNamespace

	var m *Manager
	if newConnection {
		o.Logger.Debug("ignoring socket cache", zap.String("key", target.key))
		m, err = newManager(target, o)
		if err != nil {
			return nil, err
		}
	} else if ok {
		m = cached
	} else {
		o.Logger.Debug("new io instance", zap.String("key", target.key))
		m, err = newManager(target, o)
		if err != nil {
			return nil, err
		}
		m.release = c.release
		c.managers[target.key] = m
	}

	return m.Socket(target.nsp, func(so *ClientOptions) { so.Auth = o.Auth }), nil
}

func (c *Client) release(m *Manager) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.managers[m.key] == m {
		delete(c.managers, m.key)
	}
}

type target struct {
	base  string
	nsp   string
	query url.Values
	key   string
}

// parseTarget splits addr into the server origin and the namespace, and
// derives the cache key from every option that changes connection identity.
func parseTarget(addr string, o *Options) (*target, error) {
	if addr == "" {
		return nil, ErrEmptyAddr
	}

	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}

	namespace := fmtNS(u.Path)
	if o.Namespace != "" {
		namespace = fmtNS(o.Namespace)
	}

	query := u.Query()
	for k, vs := range o.Query {
		query.Del(k)
		for _, v := range vs {
			query.Add(k, v)
		}
	}

	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "http", "ws":
			port = "80"
		case "https", "wss":
			port = "443"
		}
	}

	path := o.Path
	if path == "" {
		path = "/socket.io/"
	}

	base := url.URL{Scheme: u.Scheme, Host: u.Host, User: u.User}
	key := strings.Join([]string{
		u.Scheme + "://" + u.Hostname() + ":" + port,
		path,
		query.Encode(),
		o.Parser.Name(),
	}, "|")

	return &target{base: base.String(), nsp: namespace, query: query, key: key}, nil
}

func fmtNS(ns string) string {
	if ns == "" {
		return rootNamespace
	}
	if !strings.HasPrefix(ns, "/") {
		return "/" + ns
	}
	return ns
}
