// Package netshim implements the two network boundaries the proxy
// bridges: the upstream mud connection and downstream client listener.
// Both are thin shims around net.Conn — the single dispatcher goroutine
// owns all protocol logic upstream of here; these types only move bytes
// and lines across the process boundary.
package netshim

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"bastproxy/internal/capability"
	"bastproxy/internal/logging"
)

// MudShim owns the single upstream connection to the mud server,
// reconnecting with exponential backoff on failure.
type MudShim struct {
	addr string

	mu      sync.Mutex
	conn    net.Conn
	reader  *bufio.Reader
	connect time.Time

	Lines  chan string
	Errors chan error
}

// NewMudShim creates a shim targeting addr ("host:port"). Call Connect to
// dial (with retry) before reading.
func NewMudShim(addr string) *MudShim {
	return &MudShim{
		addr:   addr,
		Lines:  make(chan string, 256),
		Errors: make(chan error, 8),
	}
}

// Connect dials addr, retrying with exponential backoff until the
// connection succeeds, ctx is canceled, or the backoff's default maximum
// elapsed time (15 minutes) runs out, in which case it returns an error.
func (m *MudShim) Connect(ctx context.Context) error {
	op := func() error {
		conn, err := net.DialTimeout("tcp", m.addr, 10*time.Second)
		if err != nil {
			return fmt.Errorf("mud: dialing %s: %w", m.addr, err)
		}
		m.mu.Lock()
		m.conn = conn
		m.reader = bufio.NewReader(conn)
		m.connect = time.Now()
		m.mu.Unlock()
		return nil
	}

	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	if err := backoff.RetryNotify(op, bo, func(err error, wait time.Duration) {
		logging.Warnf("netshim", "mud dial failed, retrying in %s: %v", wait, err)
	}); err != nil {
		return err
	}

	go m.readLoop()
	return nil
}

// IsConnected reports whether a live connection is held.
func (m *MudShim) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// ConnectedAt returns when the current connection was established (zero
// if not connected).
func (m *MudShim) ConnectedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connect
}

func (m *MudShim) readLoop() {
	for {
		m.mu.Lock()
		r := m.reader
		m.mu.Unlock()
		if r == nil {
			return
		}

		line, err := r.ReadString('\n')
		if line != "" {
			m.Lines <- strings.TrimRight(line, "\r\n")
		}
		if err != nil {
			m.mu.Lock()
			m.conn = nil
			m.reader = nil
			m.mu.Unlock()
			select {
			case m.Errors <- fmt.Errorf("mud: read: %w", err):
			default:
			}
			return
		}
	}
}

// Send writes a line (plus CRLF) to the mud server.
func (m *MudShim) Send(line string) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("mud: not connected")
	}
	_, err := conn.Write([]byte(line + "\r\n"))
	return err
}

// Close shuts the connection down, bounding the drain at 1s so a stuck
// remote can't hang process shutdown.
func (m *MudShim) Close() error {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.reader = nil
	m.mu.Unlock()
	if conn == nil {
		return nil
	}
	_ = conn.SetDeadline(time.Now().Add(time.Second))
	return conn.Close()
}

// RegisterStatusCapability exposes "net.mud:status" returning connection
// state, so plugins/commands can query it without importing this package.
func (m *MudShim) RegisterStatusCapability(reg *capability.Registry) error {
	return reg.Add("net.mud", "status", "netshim", "reports mud connection status",
		capability.ScopeProcessWide,
		func(caller string, args ...interface{}) (interface{}, error) {
			return map[string]interface{}{
				"connected":  m.IsConnected(),
				"address":    m.addr,
				"connectedAt": m.ConnectedAt(),
			}, nil
		}, true)
}
