// Copyright (c) 2025 OpenAgent Terminal
// Licensed under the MIT License. See LICENSE file in the project root for details.

package stream

import (
	"context"
	"strings"
	"time"

	"atomicgo.dev/keyboard"
	"atomicgo.dev/keyboard/keys"
)

// awaitKeyDecision blocks on a single keypress: y or Enter approves, n or
// Escape denies. Ctrl-C denies and sets the shared cancellation signal so the
// surrounding stream winds down too. A signal set elsewhere unblocks the
// listener with a synthetic Escape.
func awaitKeyDecision(ctx context.Context, cancel *Signal) (bool, error) {
	decCh := make(chan bool, 1)
	go func() {
		_ = keyboard.Listen(func(key keys.Key) (bool, error) {
			switch key.Code {
			case keys.RuneKey:
				switch strings.ToLower(key.String()) {
				case "y":
					decCh <- true
					return true, nil
				case "n":
					decCh <- false
					return true, nil
				}
			case keys.Enter:
				decCh <- true
				return true, nil
			case keys.Escape:
				decCh <- false
				return true, nil
			case keys.CtrlC:
				cancel.Set()
				decCh <- false
				return true, nil
			}
			return false, nil
		})
	}()

	select {
	case approved := <-decCh:
		return approved, nil
	case <-ctx.Done():
		_ = keyboard.SimulateKeyPress(keys.Escape)
		return false, nil
	}
}

// detached returns ctx unless it is already cancelled, in which case a short
// fresh context is returned so a final denial can still reach the peer.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}
	return context.WithTimeout(context.Background(), 5*time.Second)
}
