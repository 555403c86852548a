// Copyright (c) 2025 OpenAgent Terminal
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package render draws streamed agent output, approval prompts, and session
// listings on the terminal.
package render

import (
	"fmt"
	"strings"
	"time"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"

	"openagent/terminal/internal/session"
	"openagent/terminal/internal/stream"
)

// StartStream prepares the terminal for incremental token output.
func StartStream() {
	cursor.Hide()
	pterm.Println()
}

// EndStream restores the cursor after a stream finishes or is cancelled.
func EndStream() {
	cursor.Show()
	pterm.Println()
}

// Token writes one streamed fragment without a trailing newline.
func Token(content string) {
	pterm.Print(content)
}

// Block renders a structured content block. Code blocks get a titled box,
// diffs get per-line coloring, everything else prints as-is.
func Block(b stream.Block) {
	switch b.Type {
	case "code":
		title := b.Language
		if title == "" {
			title = "code"
		}
		pterm.Println()
		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint(title)).
			Println(strings.TrimRight(b.Content, "\n"))
	case "diff":
		pterm.Println()
		for _, line := range strings.Split(strings.TrimRight(b.Content, "\n"), "\n") {
			switch {
			case strings.HasPrefix(line, "+"):
				pterm.Println(pterm.NewStyle(pterm.FgGreen).Sprint(line))
			case strings.HasPrefix(line, "-"):
				pterm.Println(pterm.NewStyle(pterm.FgRed).Sprint(line))
			default:
				pterm.Println(line)
			}
		}
	default:
		pterm.Println()
		pterm.Println(b.Content)
	}
}

// Approval shows one tool approval prompt with its risk level and preview.
func Approval(req stream.ApprovalRequest) {
	risk := pterm.NewStyle(pterm.FgYellow, pterm.Bold)
	switch strings.ToLower(req.RiskLevel) {
	case "high", "critical":
		risk = pterm.NewStyle(pterm.FgRed, pterm.Bold)
	case "low":
		risk = pterm.NewStyle(pterm.FgGreen)
	}

	pterm.Println()
	body := req.Description
	if req.Preview != "" {
		body += "\n\n" + req.Preview
	}
	pterm.DefaultBox.
		WithTitle(pterm.NewStyle(pterm.FgYellow, pterm.Bold).Sprint("Tool approval: " + req.ToolName)).
		WithTopPadding(1).WithBottomPadding(1).WithLeftPadding(1).WithRightPadding(1).
		Println(body)
	pterm.Println("Risk: " + risk.Sprint(req.RiskLevel))
	pterm.Println("  • Press " + pterm.NewStyle(pterm.FgGreen).Sprint("y") + " or " + pterm.NewStyle(pterm.FgGreen).Sprint("Enter") + " to approve")
	pterm.Println("  • Press " + pterm.NewStyle(pterm.FgRed).Sprint("n") + " or " + pterm.NewStyle(pterm.FgRed).Sprint("Esc") + " to deny")
}

// ApprovalResult reports the decision that was sent.
func ApprovalResult(approved bool) {
	if approved {
		pterm.Success.Println("Tool approved")
	} else {
		pterm.Warning.Println("Tool denied")
	}
}

// Sessions lists stored sessions as a numbered bullet list, newest first.
func Sessions(sessions []session.Metadata) {
	if len(sessions) == 0 {
		pterm.Info.Println("No stored sessions")
		return
	}
	var items []pterm.BulletListItem
	for i, s := range sessions {
		title := s.Title
		if title == "" {
			title = s.SessionID
		}
		text := fmt.Sprintf("%d. %s  (%d messages, %d tokens, %s)",
			i+1,
			pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint(title),
			s.MessageCount,
			s.TotalTokens,
			s.UpdatedAt.Local().Format(time.DateTime),
		)
		items = append(items, pterm.BulletListItem{Level: 0, Text: text})
	}
	_ = pterm.DefaultBulletList.WithItems(items).Render()
}

// History replays a loaded session's messages with role-styled prefixes.
func History(messages []session.Message) {
	if len(messages) == 0 {
		return
	}
	user := pterm.NewStyle(pterm.FgCyan, pterm.Bold)
	assistant := pterm.NewStyle(pterm.FgGreen, pterm.Bold)
	for _, msg := range messages {
		switch msg.Role {
		case "user":
			pterm.Println(user.Sprint("you") + "  " + msg.Content)
		case "assistant":
			pterm.Println(assistant.Sprint("agent") + "  " + msg.Content)
		default:
			pterm.Println(pterm.NewStyle(pterm.FgGray).Sprint(msg.Role) + "  " + msg.Content)
		}
	}
	pterm.Println()
}

// SessionInfo shows one session's metadata in a box.
func SessionInfo(meta session.Metadata) {
	details := fmt.Sprintf("ID:       %s\nTitle:    %s\nCreated:  %s\nUpdated:  %s\nMessages: %d\nTokens:   %d",
		meta.SessionID,
		meta.Title,
		meta.CreatedAt.Local().Format(time.DateTime),
		meta.UpdatedAt.Local().Format(time.DateTime),
		meta.MessageCount,
		meta.TotalTokens,
	)
	pterm.DefaultBox.
		WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Session")).
		WithTopPadding(1).WithBottomPadding(1).WithLeftPadding(1).WithRightPadding(1).
		Println(details)
}

// StreamError reports a stream that ended with an error event.
func StreamError(message string) {
	if message == "" {
		message = "stream failed"
	}
	pterm.Error.Println(message)
}

// Status prints a one-line connection status change.
func Status(text string) {
	pterm.Println(pterm.NewStyle(pterm.FgGray).Sprint(text))
}
