// Copyright (c) 2025 OpenAgent Terminal
// Licensed under the MIT License. See LICENSE file in the project root for details.

//go:build unix

package console

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"openagent/terminal/internal/ipc"
	"openagent/terminal/internal/terminal"
)

// watchResize forwards terminal size changes to the backend as context.update
// notifications. Delivery is best effort; a disconnected client just drops it.
func watchResize(ctx context.Context, c *ipc.Client, log *slog.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, unix.SIGWINCH)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				cols, rows := terminal.Size()
				err := c.SendNotification("context.update", map[string]any{
					"terminal_size": map[string]int{"cols": cols, "rows": rows},
				})
				if err != nil {
					log.Debug("resize update not delivered", "err", err)
				} else {
					log.Debug("terminal resized", "cols", cols, "rows", rows)
				}
			}
		}
	}()
}
