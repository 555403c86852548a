// Copyright (c) 2025 OpenAgent Terminal
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package session manages persisted conversation sessions: listing, loading,
// exporting, and deleting them through the backend. Session requests draw ids
// from their own partition so they never collide with interactive traffic.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	errs "openagent/terminal/internal/errors"
	"openagent/terminal/internal/ipc"
)

// Metadata describes one stored session.
type Metadata struct {
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	TotalTokens  int       `json:"total_tokens"`
}

// Message is one conversation turn in a stored session.
type Message struct {
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	TokenCount int       `json:"token_count,omitempty"`
}

// Session is a loaded session: its metadata plus the full message history.
type Session struct {
	Metadata Metadata
	Messages []Message
}

// Manager issues session operations over the shared protocol client.
type Manager struct {
	client *ipc.Client
	ids    *ipc.IDSource
	log    *slog.Logger

	mu      sync.Mutex
	cache   []Metadata
	current string
}

// NewManager registers the session id partition on the client. It fails if
// the partition overlaps one already registered.
func NewManager(client *ipc.Client, log *slog.Logger) (*Manager, error) {
	ids, err := client.RegisterPartition(ipc.PartitionSessions)
	if err != nil {
		return nil, err
	}
	return &Manager{client: client, ids: ids, log: log}, nil
}

// List fetches session metadata from the backend, newest first, and caches it
// so slash commands can refer to sessions by list position. A limit above
// zero caps how many the backend returns.
func (m *Manager) List(ctx context.Context, limit int) ([]Metadata, error) {
	params := map[string]any{}
	if limit > 0 {
		params["limit"] = limit
	}
	result, err := m.send(ctx, "session.list", params)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Sessions []Metadata `json:"sessions"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, errs.Wrap(errs.DecodeFailed, "session.list result", err)
	}
	m.mu.Lock()
	m.cache = payload.Sessions
	m.mu.Unlock()
	return payload.Sessions, nil
}

// Load switches the conversation to a stored session and returns it with its
// full message history. The backend replies with the id and the messages
// only; metadata comes from the listing cache, or is derived from the
// messages when the session was never listed.
func (m *Manager) Load(ctx context.Context, sessionID string) (Session, error) {
	result, err := m.send(ctx, "session.load", map[string]any{"session_id": sessionID})
	if err != nil {
		return Session{}, err
	}
	var payload struct {
		SessionID string    `json:"session_id"`
		Messages  []Message `json:"messages"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return Session{}, errs.Wrap(errs.DecodeFailed, "session.load result", err)
	}
	if payload.SessionID == "" {
		return Session{}, errs.New(errs.DecodeFailed, "session.load result missing session_id")
	}

	meta, ok := m.cached(payload.SessionID)
	if !ok {
		meta = deriveMetadata(payload.SessionID, payload.Messages)
	}

	m.mu.Lock()
	m.current = payload.SessionID
	m.mu.Unlock()
	m.log.Info("session loaded", "session_id", payload.SessionID, "messages", len(payload.Messages))
	return Session{Metadata: meta, Messages: payload.Messages}, nil
}

// Export fetches a session transcript rendered in the given format
// (markdown, json, html) and returns its content.
func (m *Manager) Export(ctx context.Context, sessionID, format string) (string, error) {
	result, err := m.send(ctx, "session.export", map[string]any{
		"session_id": sessionID,
		"format":     format,
	})
	if err != nil {
		return "", err
	}
	var payload struct {
		Content *string `json:"content"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return "", errs.Wrap(errs.DecodeFailed, "session.export result", err)
	}
	if payload.Content == nil {
		return "", errs.New(errs.DecodeFailed, "session.export result missing content")
	}
	return *payload.Content, nil
}

// ExportToFile exports a session and writes the transcript to path. An empty
// path picks <session-id>.<ext> in the working directory. Returns the path
// written.
func (m *Manager) ExportToFile(ctx context.Context, sessionID, format, path string) (string, error) {
	content, err := m.Export(ctx, sessionID, format)
	if err != nil {
		return "", err
	}
	if path == "" {
		path = sessionID + "." + exportExt(format)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	m.log.Info("session exported", "session_id", sessionID, "path", path, "bytes", len(content))
	return path, nil
}

// Delete removes a stored session.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	if _, err := m.send(ctx, "session.delete", map[string]any{"session_id": sessionID}); err != nil {
		return err
	}
	m.mu.Lock()
	if m.current == sessionID {
		m.current = ""
	}
	for i, s := range m.cache {
		if s.SessionID == sessionID {
			m.cache = append(m.cache[:i], m.cache[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	m.log.Info("session deleted", "session_id", sessionID)
	return nil
}

// Resolve maps a slash-command argument to a session id: either a 1-based
// index into the last listing or a literal id.
func (m *Manager) Resolve(arg string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(m.cache) {
		return m.cache[n-1].SessionID, true
	}
	for _, s := range m.cache {
		if s.SessionID == arg {
			return s.SessionID, true
		}
	}
	return arg, arg != ""
}

// CurrentID returns the loaded session id, or empty when the conversation has
// not been attached to a stored session.
func (m *Manager) CurrentID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) cached(sessionID string) (Metadata, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.cache {
		if s.SessionID == sessionID {
			return s, true
		}
	}
	return Metadata{}, false
}

func (m *Manager) send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return m.client.SendRequestWithID(ctx, m.ids.NextID(), method, params)
}

// deriveMetadata reconstructs a summary for a session that was loaded
// without being listed first.
func deriveMetadata(sessionID string, messages []Message) Metadata {
	meta := Metadata{
		SessionID:    sessionID,
		Title:        "Session " + shortID(sessionID),
		MessageCount: len(messages),
	}
	if len(messages) > 0 {
		meta.CreatedAt = messages[0].Timestamp
		meta.UpdatedAt = messages[len(messages)-1].Timestamp
	}
	for _, msg := range messages {
		meta.TotalTokens += msg.TokenCount
	}
	return meta
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func exportExt(format string) string {
	switch format {
	case "json":
		return "json"
	case "html":
		return "html"
	default:
		return "md"
	}
}
