package netshim

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"bastproxy/internal/capability"
	"bastproxy/internal/logging"
)

// ClientConn is one connected downstream telnet client.
type ClientConn struct {
	ID string

	mu          sync.Mutex
	conn        net.Conn
	reader      *bufio.Reader
	loggedIn    bool
	prelogin    bool
	connectedAt time.Time

	Lines  chan string
	Closed chan struct{}
}

func newClientConn(id string, conn net.Conn) *ClientConn {
	return &ClientConn{
		ID:          id,
		conn:        conn,
		reader:      bufio.NewReader(conn),
		prelogin:    true,
		connectedAt: time.Now(),
		Lines:       make(chan string, 64),
		Closed:      make(chan struct{}),
	}
}

// LoggedIn reports whether the client has completed the preshared
// password challenge.
func (c *ClientConn) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

// MarkLoggedIn flips the client out of prelogin mode.
func (c *ClientConn) MarkLoggedIn() {
	c.mu.Lock()
	c.loggedIn = true
	c.prelogin = false
	c.mu.Unlock()
}

// Prelogin reports whether the client is still gated behind the login
// banner/password prompt.
func (c *ClientConn) Prelogin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prelogin
}

// Send writes line (plus CRLF) to the client.
func (c *ClientConn) Send(line string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("client %s: not connected", c.ID)
	}
	_, err := conn.Write([]byte(line + "\r\n"))
	return err
}

func (c *ClientConn) readLoop() {
	defer close(c.Closed)
	for {
		line, err := c.reader.ReadString('\n')
		if line != "" {
			c.Lines <- strings.TrimRight(line, "\r\n")
		}
		if err != nil {
			return
		}
	}
}

// Close ends the client connection, bounding drain at 1s.
func (c *ClientConn) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	_ = conn.SetDeadline(time.Now().Add(time.Second))
	return conn.Close()
}

// ClientListener accepts downstream telnet connections.
type ClientListener struct {
	addr     string
	banner   string
	password string

	mu       sync.Mutex
	listener net.Listener
	clients  map[string]*ClientConn
	nextID   int

	Accepted chan *ClientConn
}

// NewClientListener builds a listener for addr ("host:port"). banner is
// sent to every client on connect; password (if non-empty) gates the
// prelogin challenge.
func NewClientListener(addr, banner, password string) *ClientListener {
	return &ClientListener{
		addr:     addr,
		banner:   banner,
		password: password,
		clients:  make(map[string]*ClientConn),
		Accepted: make(chan *ClientConn, 16),
	}
}

// Start begins listening and accepting connections until ctx is
// canceled or Stop is called.
func (l *ClientListener) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("netshim: listening on %s: %w", l.addr, err)
	}
	l.mu.Lock()
	l.listener = ln
	l.mu.Unlock()

	go l.acceptLoop(ctx)
	return nil
}

func (l *ClientListener) acceptLoop(ctx context.Context) {
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logging.Warnf("netshim", "accept error: %v", err)
				return
			}
		}

		l.mu.Lock()
		l.nextID++
		id := fmt.Sprintf("client-%d", l.nextID)
		cc := newClientConn(id, conn)
		l.clients[id] = cc
		l.mu.Unlock()

		if l.banner != "" {
			_ = cc.Send(l.banner)
		}
		if l.password != "" {
			_ = cc.Send("Password:")
		} else {
			cc.MarkLoggedIn()
		}

		go cc.readLoop()
		l.Accepted <- cc
	}
}

// Addr returns the listener's bound address, resolved to the actual port
// when addr was given as "host:0". Empty until Start succeeds.
func (l *ClientListener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return ""
	}
	return l.listener.Addr().String()
}

// CheckPassword compares raw against the configured preshared password.
func (l *ClientListener) CheckPassword(raw string) bool {
	return l.password == "" || raw == l.password
}

// Remove drops a disconnected client from the roster.
func (l *ClientListener) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.clients, id)
}

// Broadcast sends line to every logged-in client.
func (l *ClientListener) Broadcast(line string) {
	l.mu.Lock()
	conns := make([]*ClientConn, 0, len(l.clients))
	for _, c := range l.clients {
		conns = append(conns, c)
	}
	l.mu.Unlock()

	for _, c := range conns {
		if c.LoggedIn() {
			_ = c.Send(line)
		}
	}
}

// Count returns the number of currently connected clients.
func (l *ClientListener) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Snapshot returns the currently connected clients, safe to range over
// without holding the listener's lock.
func (l *ClientListener) Snapshot() []*ClientConn {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*ClientConn, 0, len(l.clients))
	for _, c := range l.clients {
		out = append(out, c)
	}
	return out
}

// Send writes line to the client with the given id, if still connected.
func (l *ClientListener) Send(id, line string) error {
	l.mu.Lock()
	c, ok := l.clients[id]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("netshim: client %s not connected", id)
	}
	return c.Send(line)
}

// Stop closes the listener and every connected client.
func (l *ClientListener) Stop() error {
	l.mu.Lock()
	ln := l.listener
	conns := make([]*ClientConn, 0, len(l.clients))
	for _, c := range l.clients {
		conns = append(conns, c)
	}
	l.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	if ln != nil {
		return ln.Close()
	}
	return nil
}

// RegisterStatusCapability exposes "net.client:status" returning the
// connected-client count.
func (l *ClientListener) RegisterStatusCapability(reg *capability.Registry) error {
	return reg.Add("net.client", "status", "netshim", "reports connected client count",
		capability.ScopeProcessWide,
		func(caller string, args ...interface{}) (interface{}, error) {
			return map[string]interface{}{"count": l.Count()}, nil
		}, true)
}
