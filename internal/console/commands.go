// Copyright (c) 2025 OpenAgent Terminal
// Licensed under the MIT License. See LICENSE file in the project root for details.

package console

import "strings"

// Command is a parsed slash command.
type Command int

const (
	// CmdQuery means the line is not a command; send it to the agent.
	CmdQuery Command = iota
	CmdList
	CmdLoad
	CmdExport
	CmdDelete
	CmdInfo
	CmdHelp
	CmdExit
	CmdUnknown
)

// ParseCommand splits one input line into a command and its arguments.
// Lines not starting with a slash are queries.
func ParseCommand(line string) (Command, []string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return CmdQuery, nil
	}
	fields := strings.Fields(line)
	args := fields[1:]
	switch strings.ToLower(fields[0]) {
	case "/list", "/sessions":
		return CmdList, args
	case "/load":
		return CmdLoad, args
	case "/export":
		return CmdExport, args
	case "/delete":
		return CmdDelete, args
	case "/info":
		return CmdInfo, args
	case "/help":
		return CmdHelp, args
	case "/exit", "/quit":
		return CmdExit, args
	default:
		return CmdUnknown, args
	}
}

const helpText = `Commands:
  /list                 list stored sessions
  /load <n|id>          load a session by list position or id
  /export <n|id> [fmt]  export a session (markdown, json, html)
  /delete <n|id>        delete a session
  /info                 show the current session
  /help                 show this help
  /exit                 quit

Anything else is sent to the agent. Ctrl-C cancels a running query.`
