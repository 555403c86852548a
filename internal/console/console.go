// Copyright (c) 2025 OpenAgent Terminal
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package console runs the interactive read-eval loop: plain lines become
// agent queries streamed to the terminal, slash commands operate on stored
// sessions, and Ctrl-C cancels whatever is in flight.
package console

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"

	"openagent/terminal/internal/config"
	"openagent/terminal/internal/ipc"
	"openagent/terminal/internal/logging"
	"openagent/terminal/internal/render"
	"openagent/terminal/internal/session"
	"openagent/terminal/internal/stream"
)

type Console struct {
	client   *ipc.Client
	sessions *session.Manager
	cfg      config.Config
	log      *slog.Logger
	cancel   *stream.Signal
}

func New(client *ipc.Client, sessions *session.Manager, cfg config.Config, log *slog.Logger) *Console {
	return &Console{
		client:   client,
		sessions: sessions,
		cfg:      cfg,
		log:      log,
		cancel:   stream.NewSignal(),
	}
}

// Run drives the loop until /exit, EOF, or context cancellation. SIGINT sets
// the shared cancellation signal instead of killing the process, so a running
// stream unwinds cooperatively.
func (c *Console) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			c.cancel.Set()
		}
	}()

	watchResize(ctx, c.client, c.log)

	c.client.OnStateChange(func(s ipc.State) {
		switch s.Phase {
		case ipc.Reconnecting:
			render.Status(fmt.Sprintf("connection lost, retrying (attempt %d)", s.Attempt))
		case ipc.Connected:
			render.Status("connected")
		case ipc.Failed:
			render.Status("connection failed, use a new query to retry")
		}
	})

	in := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pterm.Print(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("❯ "))
		if !in.Scan() {
			pterm.Println()
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}

		cmd, args := ParseCommand(line)
		switch cmd {
		case CmdQuery:
			c.runQuery(ctx, line)
		case CmdList:
			c.listSessions(ctx)
		case CmdLoad:
			c.loadSession(ctx, args)
		case CmdExport:
			c.exportSession(ctx, args)
		case CmdDelete:
			c.deleteSession(ctx, args)
		case CmdInfo:
			c.showInfo(ctx)
		case CmdHelp:
			pterm.Println(helpText)
		case CmdExit:
			return nil
		case CmdUnknown:
			pterm.Warning.Println("Unknown command, try /help")
		}
	}
}

func (c *Console) runQuery(ctx context.Context, query string) {
	if c.client.State().Phase != ipc.Connected {
		if err := c.client.Reconnect(ctx); err != nil {
			pterm.Error.Println(logging.PresentError("Not connected", err))
			return
		}
	}

	c.cancel.Reset()
	events := stream.Events{
		OnToken:          render.Token,
		OnBlock:          render.Block,
		OnApprovalPrompt: render.Approval,
		OnApprovalResult: func(approved bool, _ json.RawMessage) { render.ApprovalResult(approved) },
		OnStreamError:    render.StreamError,
	}
	if !c.cfg.Agent.RequireApproval {
		events.Decide = func(context.Context) (bool, error) { return true, nil }
	}

	render.StartStream()
	out, err := stream.New(c.client, c.cancel, events, c.log).Run(ctx, query)
	render.EndStream()
	switch {
	case err != nil:
		pterm.Error.Println(logging.PresentError("Query failed", err))
	case out == stream.OutcomeCancelled:
		pterm.Warning.Println("Cancelled")
	}
}

func (c *Console) listSessions(ctx context.Context) {
	sessions, err := c.sessions.List(ctx, 0)
	if err != nil {
		pterm.Error.Println(logging.PresentError("Failed to list sessions", err))
		return
	}
	render.Sessions(sessions)
}

func (c *Console) loadSession(ctx context.Context, args []string) {
	if len(args) != 1 {
		pterm.Warning.Println("Usage: /load <n|id>")
		return
	}
	id, ok := c.sessions.Resolve(args[0])
	if !ok {
		pterm.Warning.Println("No such session, run /list first")
		return
	}
	sess, err := c.sessions.Load(ctx, id)
	if err != nil {
		pterm.Error.Println(logging.PresentError("Failed to load session", err))
		return
	}
	render.SessionInfo(sess.Metadata)
	render.History(sess.Messages)
}

func (c *Console) exportSession(ctx context.Context, args []string) {
	if len(args) < 1 || len(args) > 2 {
		pterm.Warning.Println("Usage: /export <n|id> [markdown|json|html]")
		return
	}
	format := "markdown"
	if len(args) == 2 {
		format = args[1]
	}
	id, ok := c.sessions.Resolve(args[0])
	if !ok {
		pterm.Warning.Println("No such session, run /list first")
		return
	}
	path, err := c.sessions.ExportToFile(ctx, id, format, "")
	if err != nil {
		pterm.Error.Println(logging.PresentError("Failed to export session", err))
		return
	}
	pterm.Success.Println("Exported to " + path)
}

func (c *Console) deleteSession(ctx context.Context, args []string) {
	if len(args) != 1 {
		pterm.Warning.Println("Usage: /delete <n|id>")
		return
	}
	id, ok := c.sessions.Resolve(args[0])
	if !ok {
		pterm.Warning.Println("No such session, run /list first")
		return
	}
	if err := c.sessions.Delete(ctx, id); err != nil {
		pterm.Error.Println(logging.PresentError("Failed to delete session", err))
		return
	}
	pterm.Success.Println("Deleted " + id)
}

func (c *Console) showInfo(ctx context.Context) {
	id := c.sessions.CurrentID()
	if id == "" {
		pterm.Info.Println("No session loaded")
		return
	}
	sess, err := c.sessions.Load(ctx, id)
	if err != nil {
		pterm.Error.Println(logging.PresentError("Failed to fetch session", err))
		return
	}
	render.SessionInfo(sess.Metadata)
}
