// Copyright (c) 2025 OpenAgent Terminal
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package ipc implements the protocol client for the backend channel: request
// correlation over a partitioned id space, the connection state machine with
// exponential-backoff reconnection, and the facade combining them on top of
// the transport.
//
// One Client instance is shared by every consumer (interactive flow, session
// manager, streaming sessions). All mutable connection state lives behind the
// client's mutex; critical sections never span a wait on I/O or timers, so a
// long-running operation can never block an unrelated request.
package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	errs "openagent/terminal/internal/errors"
	"openagent/terminal/internal/logging"
	"openagent/terminal/internal/protocol"
	"openagent/terminal/internal/transport"
)

// Options configures a Client. Zero values select the defaults.
type Options struct {
	// DialTimeout bounds a single dial attempt. Default 2s.
	DialTimeout time.Duration
	// RequestTimeout bounds the wait for a response. Default 30s.
	RequestTimeout time.Duration
	// BackoffBase is the wait before reconnection attempt 1; attempt n waits
	// base * 2^(n-1). Default 200ms.
	BackoffBase time.Duration
	// MaxRetries is the number of reconnection attempts after a failed dial
	// or a lost connection before entering the Failed state. Default 5.
	MaxRetries int
	// Logger receives drift warnings, reconnection attempts, and state
	// transitions. Defaults to the process logger.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 2 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 200 * time.Millisecond
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.Logger == nil {
		o.Logger = logging.L()
	}
	return o
}

// Client is the protocol client facade. It owns the transport connection and
// the pending-request table exclusively; consumers share one instance.
type Client struct {
	opts Options
	log  *slog.Logger

	states *stateTracker
	pend   *correlator
	notifq *notifyQueue
	parts  partitionSet

	interactive *IDSource

	mu         sync.Mutex // guards the fields below; held only for single operations
	conn       *transport.Conn
	gen        int // connection generation, detects stale read loops
	socketPath string
	dialing    bool
	dialDone   chan struct{} // closed when the in-flight attempt finishes
	closed     bool
	closeCh    chan struct{}
}

// New creates a disconnected client. The interactive id partition is
// registered automatically; further consumers register their own.
func New(opts Options) *Client {
	opts = opts.withDefaults()
	c := &Client{
		opts:    opts,
		log:     opts.Logger,
		states:  &stateTracker{},
		pend:    newCorrelator(opts.Logger),
		notifq:  newNotifyQueue(),
		closeCh: make(chan struct{}),
	}
	ids, err := c.parts.register(PartitionInteractive, c.log)
	if err != nil {
		panic("ipc: built-in partition registration failed: " + err.Error())
	}
	c.interactive = ids
	return c
}

// RegisterPartition reserves a non-overlapping id sub-range for a new
// consumer and returns its id source.
func (c *Client) RegisterPartition(p Partition) (*IDSource, error) {
	return c.parts.register(p, c.log)
}

// NextID issues the next interactive-partition request id.
func (c *Client) NextID() uint64 { return c.interactive.NextID() }

// State returns a snapshot of the connection state.
func (c *Client) State() State { return c.states.current() }

// OnStateChange registers an observer that receives every subsequent state
// transition. Observers are called synchronously and must not block.
func (c *Client) OnStateChange(fn StateObserver) { c.states.observe(fn) }

// Connect dials the backend socket, retrying with exponential backoff until
// connected or retries are exhausted. It is idempotent while connected.
func (c *Client) Connect(ctx context.Context, socketPath string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errs.New(errs.NotConnected, "client is closed")
	}
	c.socketPath = socketPath
	c.mu.Unlock()

	for {
		if c.states.current().Phase == Connected {
			return nil
		}
		held, err := c.acquireDial(ctx)
		if err != nil {
			return err
		}
		if held {
			break
		}
		// Joined an attempt another goroutine was driving; re-check the
		// outcome and dial ourselves only if it did not connect.
	}
	defer c.endDial()
	c.log.Info("connecting to backend", "socket", socketPath)
	return c.connectLoop(ctx, 0)
}

// Reconnect re-establishes the connection after loss or failure. Returns
// immediately while already connected.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	path := c.socketPath
	c.mu.Unlock()
	if path == "" {
		return errs.New(errs.Internal, "no socket path stored for reconnection")
	}
	for {
		if c.states.current().Phase == Connected {
			return nil
		}
		held, err := c.acquireDial(ctx)
		if err != nil {
			return err
		}
		if held {
			break
		}
	}
	defer c.endDial()
	return c.connectLoop(ctx, 0)
}

// Close tears down the connection and fails all pending requests. The client
// transitions to Disconnected and cannot be reused.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.closeCh)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.pend.failAll(errs.New(errs.NotConnected, "client closed"))
	c.states.set(State{Phase: Disconnected})
	c.log.Info("disconnected from backend")
	return nil
}

// SendRequest issues a request on the interactive partition and waits for its
// response, the request timeout, or ctx cancellation.
func (c *Client) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return c.SendRequestWithID(ctx, c.interactive.NextID(), method, params)
}

// SendRequestWithID issues a request with a caller-assigned id, for consumers
// drawing from their own partition. The pending entry is removed exactly
// once: by the matching response, by timeout cleanup, or by connection loss.
func (c *Client) SendRequestWithID(ctx context.Context, id uint64, method string, params any) (json.RawMessage, error) {
	req, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}
	line, err := protocol.Encode(req)
	if err != nil {
		return nil, err
	}

	conn, gen, err := c.liveConn()
	if err != nil {
		return nil, err
	}
	ch, err := c.pend.register(id)
	if err != nil {
		return nil, err
	}
	c.log.Debug("sending request", "id", id, "method", method)
	if err := conn.WriteLine(line); err != nil {
		c.pend.drop(id)
		c.handleLoss(gen, err)
		return nil, err
	}

	timer := time.NewTimer(c.opts.RequestTimeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		if res.resp.Error != nil {
			return nil, res.resp.Error
		}
		return res.resp.Result, nil
	case <-ctx.Done():
		c.pend.drop(id)
		return nil, errs.Wrap(errs.Cancelled, "request abandoned", ctx.Err())
	case <-timer.C:
		c.pend.drop(id)
		c.log.Warn("request timed out, pending entry cleaned up",
			"id", id, "method", method, "timeout", c.opts.RequestTimeout)
		return nil, errs.New(errs.Timeout, fmt.Sprintf("no response to %s within %s", method, c.opts.RequestTimeout))
	}
}

// SendNotification fires a notification at the backend. No response is
// awaited and no pending entry is created; it fails only if the transport
// write fails.
func (c *Client) SendNotification(method string, params any) error {
	n, err := protocol.NewNotification(method, params)
	if err != nil {
		return err
	}
	line, err := protocol.Encode(n)
	if err != nil {
		return err
	}
	conn, gen, err := c.liveConn()
	if err != nil {
		return err
	}
	c.log.Debug("sending notification", "method", method)
	if err := conn.WriteLine(line); err != nil {
		c.handleLoss(gen, err)
		return err
	}
	return nil
}

// NextNotification returns the next server-pushed notification, waiting
// until one arrives or ctx is done. Responses are never delivered here; they
// are routed to their pending entries by the read loop.
func (c *Client) NextNotification(ctx context.Context) (*protocol.Notification, error) {
	return c.notifq.next(ctx)
}

// Initialize performs the handshake after connect, advertising client info
// and terminal capabilities.
func (c *Client) Initialize(ctx context.Context, info ClientInfo) (json.RawMessage, error) {
	return c.SendRequest(ctx, "initialize", map[string]any{
		"protocol_version": "1.0.0",
		"client_info": map[string]any{
			"name":        info.Name,
			"version":     info.Version,
			"instance_id": info.InstanceID,
		},
		"terminal_size": map[string]any{"cols": info.Cols, "rows": info.Rows},
		"capabilities":  []string{"streaming", "blocks"},
	})
}

// ClientInfo identifies this frontend instance in the initialize handshake.
type ClientInfo struct {
	Name       string
	Version    string
	InstanceID string
	Cols       int
	Rows       int
}

// liveConn snapshots the current connection under the lock.
func (c *Client) liveConn() (*transport.Conn, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.closed {
		return nil, 0, errs.New(errs.NotConnected, "not connected to backend")
	}
	return c.conn, c.gen, nil
}

// acquireDial claims the dial slot. When another goroutine already holds it,
// the call waits for that attempt to finish and reports held=false so the
// caller can re-check the connection state before dialing itself.
func (c *Client) acquireDial(ctx context.Context) (held bool, err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, errs.New(errs.NotConnected, "client is closed")
	}
	if !c.dialing {
		c.dialing = true
		c.dialDone = make(chan struct{})
		c.mu.Unlock()
		return true, nil
	}
	done := c.dialDone
	c.mu.Unlock()

	c.log.Debug("joining in-flight connection attempt")
	select {
	case <-done:
		return false, nil
	case <-ctx.Done():
		return false, errs.Wrap(errs.Cancelled, "connection attempt abandoned", ctx.Err())
	case <-c.closeCh:
		return false, errs.New(errs.NotConnected, "client closed")
	}
}

// tryBeginDial claims the dial slot without waiting. Used by automatic loss
// recovery, which yields to any attempt already running.
func (c *Client) tryBeginDial() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dialing || c.closed {
		return false
	}
	c.dialing = true
	c.dialDone = make(chan struct{})
	return true
}

func (c *Client) endDial() {
	c.mu.Lock()
	c.dialing = false
	close(c.dialDone)
	c.mu.Unlock()
}

// connectLoop drives Connecting / Reconnecting(n) / Connected / Failed.
// attempt 0 is the initial dial; attempts 1..MaxRetries wait backoff first.
func (c *Client) connectLoop(ctx context.Context, attempt int) error {
	var lastErr error
	for {
		if attempt > 0 {
			if attempt > c.opts.MaxRetries {
				c.states.set(State{Phase: Failed})
				c.log.Error("reconnection retries exhausted", "attempts", attempt-1)
				if lastErr == nil {
					lastErr = errs.New(errs.ConnectionRefused, "retries exhausted")
				}
				return lastErr
			}
			c.states.set(State{Phase: Reconnecting, Attempt: attempt})
			delay := backoffDelay(c.opts.BackoffBase, attempt)
			c.log.Info("reconnection attempt scheduled", "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				c.states.set(State{Phase: Disconnected})
				return errs.Wrap(errs.Cancelled, "connection attempt abandoned", ctx.Err())
			case <-c.closeCh:
				return errs.New(errs.NotConnected, "client closed")
			case <-time.After(delay):
			}
		}

		c.states.set(State{Phase: Connecting})
		c.mu.Lock()
		path := c.socketPath
		c.mu.Unlock()
		conn, err := transport.Dial(path, c.opts.DialTimeout)
		if err == nil {
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				_ = conn.Close()
				return errs.New(errs.NotConnected, "client closed")
			}
			c.conn = conn
			c.gen++
			gen := c.gen
			c.mu.Unlock()
			c.states.set(State{Phase: Connected})
			c.log.Info("connected to backend", "socket", path)
			go c.readLoop(conn, gen)
			return nil
		}
		lastErr = err
		c.log.Warn("connection attempt failed", "attempt", attempt+1, "err", err)
		attempt++
	}
}

// readLoop continuously reads lines from one connection instance, routing
// responses to the correlator and notifications to the delivery queue. It
// exits on the first transport failure, which drives loss handling.
func (c *Client) readLoop(conn *transport.Conn, gen int) {
	for {
		line, err := conn.ReadLine()
		if err != nil {
			c.handleLoss(gen, err)
			return
		}
		c.log.Debug("received", "line", logging.Wire(line))
		notif, resp, derr := protocol.DecodeIncoming(line, c.observeDrift)
		if derr != nil {
			c.log.Warn("dropping undecodable message", "err", derr, "line", logging.Wire(line))
			continue
		}
		if resp != nil {
			c.pend.resolve(resp)
			continue
		}
		c.notifq.push(notif)
	}
}

// handleLoss reacts to a terminal transport failure on the current
// connection: pending requests fail with not_connected and automatic
// reconnection starts at Reconnecting(1). Stale connection generations are
// ignored so loss is handled exactly once per instance.
func (c *Client) handleLoss(gen int, cause error) {
	c.mu.Lock()
	if c.closed || gen != c.gen || c.conn == nil {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	_ = conn.Close()

	c.log.Warn("connection lost", "cause", cause)
	c.pend.failAll(errs.Wrap(errs.NotConnected, "connection lost", cause))

	go func() {
		if !c.tryBeginDial() {
			return // a connect is already in progress
		}
		defer c.endDial()
		if err := c.connectLoop(context.Background(), 1); err != nil {
			c.log.Error("automatic reconnection failed", "err", err)
		}
	}()
}

func (c *Client) observeDrift(d protocol.Drift) {
	c.log.Warn("protocol drift detected", "method", d.Method, "unknown_fields", d.Fields)
}
