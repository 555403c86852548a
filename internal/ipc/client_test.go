// Copyright (c) 2025 OpenAgent Terminal
// Licensed under the MIT License. See LICENSE file in the project root for details.

package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	errs "openagent/terminal/internal/errors"
	"openagent/terminal/internal/protocol"
)

// testBackend is a scripted peer on a real unix socket. The handler runs once
// per decoded request; push sends raw lines at any time. Senders wait for the
// accept goroutine to publish a connection, so out-of-band sends right after
// Connect do not race the accept.
type testBackend struct {
	t        *testing.T
	path     string
	ln       net.Listener
	accepted chan struct{}

	mu   sync.Mutex
	conn net.Conn
}

func newTestBackend(t *testing.T, handler func(req *protocol.Request, reply func(msg any))) *testBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backend.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	b := &testBackend{t: t, path: path, ln: ln, accepted: make(chan struct{}, 16)}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			b.mu.Lock()
			b.conn = conn
			b.mu.Unlock()
			b.accepted <- struct{}{}
			go func(conn net.Conn) {
				scanner := bufio.NewScanner(conn)
				scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
				for scanner.Scan() {
					req, err := protocol.DecodeRequest(scanner.Bytes())
					if err != nil {
						continue // notifications and garbage are ignored
					}
					if handler != nil {
						handler(req, func(msg any) { b.send(msg) })
					}
				}
			}(conn)
		}
	}()
	return b
}

func (b *testBackend) send(msg any) {
	line, err := protocol.Encode(msg)
	if err != nil {
		b.t.Errorf("backend encode: %v", err)
		return
	}
	b.sendRaw(line)
}

func (b *testBackend) sendRaw(line []byte) {
	conn := b.current()
	if conn == nil {
		return
	}
	if _, err := conn.Write(line); err != nil {
		b.t.Logf("backend write: %v", err)
	}
}

func (b *testBackend) closeConn() {
	conn := b.current()
	b.mu.Lock()
	b.conn = nil
	b.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// current returns the live connection, waiting out the accept goroutine if it
// has not published one yet.
func (b *testBackend) current() net.Conn {
	deadline := time.After(2 * time.Second)
	for {
		b.mu.Lock()
		conn := b.conn
		b.mu.Unlock()
		if conn != nil {
			return conn
		}
		select {
		case <-b.accepted:
		case <-deadline:
			b.t.Error("backend has no connection")
			return nil
		}
	}
}

// echoOK resolves every request with {"ok":true}.
func echoOK(req *protocol.Request, reply func(msg any)) {
	id, _ := req.ID.Number()
	reply(&protocol.Response{
		JSONRPC: protocol.Version,
		ID:      protocol.NumberID(id),
		Result:  json.RawMessage(`{"ok":true}`),
	})
}

func connectedClient(t *testing.T, b *testBackend, opts Options) *Client {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = discard()
	}
	c := New(opts)
	t.Cleanup(func() { _ = c.Close() })
	if err := c.Connect(context.Background(), b.path); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return c
}

func TestSendRequestResolved(t *testing.T) {
	b := newTestBackend(t, echoOK)
	c := connectedClient(t, b, Options{})

	result, err := c.SendRequest(context.Background(), "ping", map[string]any{})
	if err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}
	var payload struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(result, &payload); err != nil || !payload.OK {
		t.Errorf("result = %s, err = %v", result, err)
	}
	if c.pend.size() != 0 {
		t.Errorf("pending table size = %d after resolution, want 0", c.pend.size())
	}
}

func TestSendRequestRPCError(t *testing.T) {
	b := newTestBackend(t, func(req *protocol.Request, reply func(msg any)) {
		id, _ := req.ID.Number()
		reply(&protocol.Response{
			JSONRPC: protocol.Version,
			ID:      protocol.NumberID(id),
			Error:   &protocol.RPCError{Code: protocol.CodeMethodNotFound, Message: "Method not found: bogus"},
		})
	})
	c := connectedClient(t, b, Options{})

	_, err := c.SendRequest(context.Background(), "bogus", nil)
	var rpcErr *protocol.RPCError
	if !stderrors.As(err, &rpcErr) {
		t.Fatalf("error = %v, want *protocol.RPCError", err)
	}
	if rpcErr.Code != protocol.CodeMethodNotFound {
		t.Errorf("code = %d", rpcErr.Code)
	}
}

func TestSendRequestTimeoutCleansPendingTable(t *testing.T) {
	b := newTestBackend(t, nil) // backend never answers
	c := connectedClient(t, b, Options{RequestTimeout: 60 * time.Millisecond})

	_, err := c.SendRequest(context.Background(), "ping", nil)
	if !errs.Is(err, errs.Timeout) {
		t.Fatalf("error = %v, want timeout", err)
	}
	if c.pend.size() != 0 {
		t.Errorf("pending table size = %d after timeout, want 0", c.pend.size())
	}
}

func TestSendRequestNotConnected(t *testing.T) {
	c := New(Options{Logger: discard()})
	defer c.Close()

	_, err := c.SendRequest(context.Background(), "ping", nil)
	if !errs.Is(err, errs.NotConnected) {
		t.Errorf("error = %v, want not_connected", err)
	}
}

// Connecting with no listener walks Connecting -> Reconnecting(1) ->
// Connecting -> Reconnecting(2) -> ... -> Failed, with growing waits.
func TestConnectRetriesThenFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.sock")
	c := New(Options{
		Logger:      discard(),
		BackoffBase: 10 * time.Millisecond,
		MaxRetries:  2,
		DialTimeout: 100 * time.Millisecond,
	})
	defer c.Close()

	var mu sync.Mutex
	var seen []State
	c.OnStateChange(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	start := time.Now()
	err := c.Connect(context.Background(), path)
	elapsed := time.Since(start)
	if !errs.Is(err, errs.ConnectionRefused) {
		t.Fatalf("error = %v, want connection_refused", err)
	}
	if c.State().Phase != Failed {
		t.Errorf("final phase = %v, want failed", c.State().Phase)
	}
	// Backoff waits: 10ms before attempt 1, 20ms before attempt 2.
	if elapsed < 30*time.Millisecond {
		t.Errorf("connect returned after %v, backoff not applied", elapsed)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []State{
		{Phase: Connecting},
		{Phase: Reconnecting, Attempt: 1},
		{Phase: Connecting},
		{Phase: Reconnecting, Attempt: 2},
		{Phase: Connecting},
		{Phase: Failed},
	}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transition %d = %v, want %v", i, seen[i], want[i])
		}
	}
}

// Concurrent Connect calls must not fail each other; the late one joins the
// attempt already in flight and then reports the real dial outcome.
func TestConnectJoinsInFlightAttempt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.sock")
	c := New(Options{
		Logger:      discard(),
		BackoffBase: 10 * time.Millisecond,
		MaxRetries:  2,
		DialTimeout: 100 * time.Millisecond,
	})
	defer c.Close()

	errCh := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { errCh <- c.Connect(context.Background(), path) }()
	}
	for i := 0; i < 2; i++ {
		select {
		case err := <-errCh:
			if err == nil {
				t.Fatal("connect to an absent socket succeeded")
			}
			if errs.Is(err, errs.Internal) {
				t.Fatalf("concurrent connect failed with %v instead of the dial outcome", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("connect did not return")
		}
	}
}

// A user-driven Reconnect during automatic loss recovery waits the in-flight
// attempt out instead of erroring.
func TestReconnectDuringAutomaticRecovery(t *testing.T) {
	b := newTestBackend(t, echoOK)
	c := connectedClient(t, b, Options{MaxRetries: 5, BackoffBase: 20 * time.Millisecond})

	b.closeConn()
	deadline := time.Now().Add(2 * time.Second)
	for c.State().Phase == Connected && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Reconnect(ctx); err != nil {
		t.Fatalf("reconnect during recovery: %v", err)
	}
	if c.State().Phase != Connected {
		t.Fatalf("phase = %v after reconnect, want connected", c.State().Phase)
	}
	if _, err := c.SendRequest(ctx, "ping", nil); err != nil {
		t.Errorf("request after joined reconnect: %v", err)
	}
}

func TestBackoffMonotonicity(t *testing.T) {
	base := 200 * time.Millisecond
	prev := time.Duration(0)
	for n := 1; n <= 12; n++ {
		d := backoffDelay(base, n)
		if d < prev {
			t.Fatalf("backoff(%d) = %v < backoff(%d) = %v", n, d, n-1, prev)
		}
		prev = d
	}
	if backoffDelay(base, 1) != 200*time.Millisecond {
		t.Errorf("backoff(1) = %v, want 200ms", backoffDelay(base, 1))
	}
	if backoffDelay(base, 2) != 400*time.Millisecond {
		t.Errorf("backoff(2) = %v, want 400ms", backoffDelay(base, 2))
	}
}

func TestConnectIdempotentWhileConnected(t *testing.T) {
	b := newTestBackend(t, echoOK)
	c := connectedClient(t, b, Options{})

	if err := c.Connect(context.Background(), b.path); err != nil {
		t.Errorf("second connect: %v", err)
	}
	if err := c.Reconnect(context.Background()); err != nil {
		t.Errorf("reconnect while connected: %v", err)
	}
}

func TestNotificationsInOrderAndResponsesRouted(t *testing.T) {
	b := newTestBackend(t, echoOK)
	c := connectedClient(t, b, Options{})

	// A stray response must be dropped, never surfaced as a notification.
	b.send(&protocol.Response{JSONRPC: protocol.Version, ID: protocol.NumberID(999), Result: json.RawMessage(`{}`)})
	for i, method := range []string{"stream.token", "stream.token", "stream.complete"} {
		b.send(&protocol.Notification{
			JSONRPC: protocol.Version,
			Method:  method,
			Params:  json.RawMessage([]byte(`{"seq":` + string(rune('0'+i)) + `}`)),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var methods []string
	for i := 0; i < 3; i++ {
		n, err := c.NextNotification(ctx)
		if err != nil {
			t.Fatalf("NextNotification: %v", err)
		}
		methods = append(methods, n.Method)
	}
	want := []string{"stream.token", "stream.token", "stream.complete"}
	for i := range want {
		if methods[i] != want[i] {
			t.Fatalf("notifications = %v, want %v", methods, want)
		}
	}
	if c.notifq.depth() != 0 {
		t.Errorf("queue depth = %d after draining, want 0", c.notifq.depth())
	}
}

func TestDriftObservedOnWire(t *testing.T) {
	b := newTestBackend(t, nil)
	c := connectedClient(t, b, Options{})

	b.sendRaw([]byte(`{"jsonrpc":"2.0","method":"stream.token","params":{"content":"x"},"debug":true}` + "\n"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, err := c.NextNotification(ctx)
	if err != nil {
		t.Fatalf("NextNotification: %v", err)
	}
	if n.Method != "stream.token" {
		t.Errorf("method = %q", n.Method)
	}
}

func TestConnectionLossFailsInFlightRequests(t *testing.T) {
	release := make(chan struct{})
	b := newTestBackend(t, func(req *protocol.Request, reply func(msg any)) {
		<-release // hold the request until the connection is torn down
	})
	c := connectedClient(t, b, Options{MaxRetries: 1, BackoffBase: 10 * time.Millisecond})

	errCh := make(chan error, 1)
	go func() {
		_, err := c.SendRequest(context.Background(), "agent.query", map[string]any{"message": "hi"})
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond) // let the request reach the backend
	b.closeConn()
	close(release)

	select {
	case err := <-errCh:
		if !errs.Is(err, errs.NotConnected) {
			t.Errorf("error = %v, want not_connected", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight request not failed on connection loss")
	}
	if c.pend.size() != 0 {
		t.Errorf("pending table size = %d, want 0", c.pend.size())
	}
}

func TestAutomaticReconnectAfterLoss(t *testing.T) {
	b := newTestBackend(t, echoOK)
	c := connectedClient(t, b, Options{MaxRetries: 5, BackoffBase: 10 * time.Millisecond})

	stateCh := make(chan State, 32)
	c.OnStateChange(func(s State) { stateCh <- s })

	b.closeConn()

	deadline := time.After(3 * time.Second)
	sawReconnecting := false
	for {
		select {
		case s := <-stateCh:
			if s.Phase == Reconnecting {
				sawReconnecting = true
			}
			if s.Phase == Connected {
				if !sawReconnecting {
					t.Error("reached Connected without a Reconnecting transition")
				}
				// The repaired connection must serve requests again.
				if _, err := c.SendRequest(context.Background(), "ping", nil); err != nil {
					t.Errorf("request after reconnect: %v", err)
				}
				return
			}
		case <-deadline:
			t.Fatal("client did not reconnect")
		}
	}
}
