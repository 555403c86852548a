// Copyright (c) 2025 OpenAgent Terminal
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package stream runs one logical multi-event operation: a query whose answer
// arrives as a sequence of notifications ending in a completion or error
// event. The control loop interleaves notification consumption with a shared
// cancellation signal, and embeds an interactive approval step that races the
// same signal, so Ctrl-C-class cancellation works uniformly mid-stream and
// mid-prompt.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"

	errs "openagent/terminal/internal/errors"
	"openagent/terminal/internal/ipc"
	"openagent/terminal/internal/protocol"
)

// Block is a structured content block pushed mid-stream.
type Block struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

// ApprovalRequest asks the user to allow or deny one tool execution.
type ApprovalRequest struct {
	ExecutionID string `json:"execution_id"`
	ToolName    string `json:"tool_name"`
	Description string `json:"description"`
	RiskLevel   string `json:"risk_level"`
	Preview     string `json:"preview"`
}

// Outcome is the terminal result of one streaming session.
type Outcome int

const (
	// OutcomeComplete means the stream finished normally.
	OutcomeComplete Outcome = iota
	// OutcomeCancelled means the cancellation signal stopped the loop. The
	// server-side execution state is unspecified; a best-effort agent.cancel
	// has been fired and not awaited.
	OutcomeCancelled
	// OutcomeError means the stream reported an error event.
	OutcomeError
)

// Events receives dispatched stream notifications. Nil callbacks are skipped.
type Events struct {
	OnToken          func(content string)
	OnBlock          func(b Block)
	OnApprovalPrompt func(req ApprovalRequest)
	OnApprovalResult func(approved bool, result json.RawMessage)
	OnStreamError    func(message string)

	// Decide collects the approval decision. When nil, the keyboard prompt
	// is used. Injected by tests and by non-interactive callers.
	Decide func(ctx context.Context) (bool, error)
}

// Session drives one streaming operation over the shared protocol client.
type Session struct {
	client *ipc.Client
	cancel *Signal
	events Events
	log    *slog.Logger
}

func New(client *ipc.Client, cancel *Signal, events Events, log *slog.Logger) *Session {
	return &Session{client: client, cancel: cancel, events: events, log: log}
}

// Run issues the query and consumes its notification stream until completion,
// error, or cancellation. On every iteration the loop waits on whichever
// comes first: the cancellation signal or the next notification. The client
// lock is never held across the wait, so a concurrent cancel request is
// never blocked behind this loop.
func (s *Session) Run(ctx context.Context, query string) (Outcome, error) {
	result, err := s.client.SendRequest(ctx, "agent.query", map[string]any{
		"message": query,
		"options": map[string]any{"stream": true},
	})
	if err != nil {
		return OutcomeError, err
	}
	var accepted struct {
		QueryID string `json:"query_id"`
	}
	if err := json.Unmarshal(result, &accepted); err != nil {
		return OutcomeError, errs.Wrap(errs.DecodeFailed, "agent.query result", err)
	}
	s.log.Debug("stream started", "query_id", accepted.QueryID)

	wctx, stop := s.cancel.Context(ctx)
	defer stop()
	for {
		n, err := s.client.NextNotification(wctx)
		if err != nil {
			if s.cancel.Cancelled() {
				s.sendCancel(accepted.QueryID)
				return OutcomeCancelled, nil
			}
			return OutcomeError, err
		}
		done, outcome, err := s.dispatch(wctx, n)
		if err != nil {
			s.log.Warn("failed to handle notification", "method", n.Method, "err", err)
		}
		if done {
			return outcome, nil
		}
		if s.cancel.Cancelled() {
			s.sendCancel(accepted.QueryID)
			return OutcomeCancelled, nil
		}
	}
}

// dispatch handles one notification. done is true for terminal events.
func (s *Session) dispatch(ctx context.Context, n *protocol.Notification) (done bool, outcome Outcome, err error) {
	switch n.Method {
	case "stream.token":
		var p struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal(n.Params, &p); err != nil {
			return false, 0, err
		}
		if s.events.OnToken != nil {
			s.events.OnToken(p.Content)
		}
	case "stream.block":
		var b Block
		if err := json.Unmarshal(n.Params, &b); err != nil {
			return false, 0, err
		}
		if s.events.OnBlock != nil {
			s.events.OnBlock(b)
		}
	case "tool.request_approval":
		var req ApprovalRequest
		if err := json.Unmarshal(n.Params, &req); err != nil {
			return false, 0, err
		}
		return false, 0, s.handleApproval(ctx, req)
	case "stream.complete":
		var p struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		_ = json.Unmarshal(n.Params, &p)
		switch p.Status {
		case "error":
			if s.events.OnStreamError != nil {
				s.events.OnStreamError(p.Error)
			}
			return true, OutcomeError, nil
		case "cancelled":
			return true, OutcomeCancelled, nil
		default:
			return true, OutcomeComplete, nil
		}
	case "stream.error":
		var p struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(n.Params, &p)
		if s.events.OnStreamError != nil {
			s.events.OnStreamError(p.Message)
		}
		return true, OutcomeError, nil
	default:
		s.log.Debug("unknown stream notification", "method", n.Method)
	}
	return false, 0, nil
}

// handleApproval runs the embedded yes/no step: prompt, collect a decision
// while racing the cancellation signal, then answer with a tool.approve
// request on the interactive partition.
func (s *Session) handleApproval(ctx context.Context, req ApprovalRequest) error {
	if s.events.OnApprovalPrompt != nil {
		s.events.OnApprovalPrompt(req)
	}
	decide := s.events.Decide
	if decide == nil {
		decide = func(ctx context.Context) (bool, error) { return awaitKeyDecision(ctx, s.cancel) }
	}
	approved, err := decide(ctx)
	if err != nil {
		return err
	}
	if s.cancel.Cancelled() {
		approved = false
	}
	// A denial forced by cancellation must still reach the peer even though
	// the stream context is already dead.
	sendCtx, release := detached(ctx)
	defer release()
	result, err := s.client.SendRequest(sendCtx, "tool.approve", map[string]any{
		"execution_id": req.ExecutionID,
		"approved":     approved,
	})
	if err != nil {
		return err
	}
	if s.events.OnApprovalResult != nil {
		s.events.OnApprovalResult(approved, result)
	}
	return nil
}

// sendCancel fires the best-effort out-of-band cancel. Not awaited; failure
// only logged.
func (s *Session) sendCancel(queryID string) {
	if err := s.client.SendNotification("agent.cancel", map[string]any{"query_id": queryID}); err != nil {
		s.log.Debug("agent.cancel not delivered", "err", err)
	}
}
