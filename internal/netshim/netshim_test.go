package netshim

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bastproxy/internal/capability"
)

func TestMudShimConnectAndReadLine(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte("hello there\r\n"))
	}()

	shim := NewMudShim(ln.Addr().String())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, shim.Connect(ctx))
	defer shim.Close()

	select {
	case line := <-shim.Lines:
		require.Equal(t, "hello there", line)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for line")
	}
}

func TestMudShimRegisterStatusCapability(t *testing.T) {
	shim := NewMudShim("127.0.0.1:1")
	reg := capability.New()
	require.NoError(t, shim.RegisterStatusCapability(reg))
	require.True(t, reg.Has("net.mud:status"))

	fn, err := reg.Get("net.mud:status")
	require.NoError(t, err)
	res, err := fn("tester")
	require.NoError(t, err)
	status := res.(map[string]interface{})
	require.Equal(t, false, status["connected"])
}

func TestClientListenerAcceptsAndSendsBanner(t *testing.T) {
	l := NewClientListener("127.0.0.1:0", "welcome", "")
	require.NoError(t, startOnEphemeralPort(l))
	defer l.Stop()

	conn, err := net.Dial("tcp", l.addr)
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, 64)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Contains(t, string(buf[:n]), "welcome")
}

func TestClientListenerNoPasswordLogsInImmediately(t *testing.T) {
	l := NewClientListener("127.0.0.1:0", "", "")
	require.NoError(t, startOnEphemeralPort(l))
	defer l.Stop()

	_, err := net.Dial("tcp", l.addr)
	require.NoError(t, err)

	select {
	case cc := <-l.Accepted:
		require.True(t, cc.LoggedIn())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accept")
	}
}

func TestClientListenerPasswordGatesLogin(t *testing.T) {
	l := NewClientListener("127.0.0.1:0", "", "secret")
	require.NoError(t, startOnEphemeralPort(l))
	defer l.Stop()

	_, err := net.Dial("tcp", l.addr)
	require.NoError(t, err)

	select {
	case cc := <-l.Accepted:
		require.False(t, cc.LoggedIn())
		require.True(t, l.CheckPassword("secret"))
		require.False(t, l.CheckPassword("wrong"))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accept")
	}
}

func startOnEphemeralPort(l *ClientListener) error {
	ctx := context.Background()
	if err := l.Start(ctx); err != nil {
		return err
	}
	l.addr = l.listener.Addr().String()
	return nil
}
