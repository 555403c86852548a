// Copyright (c) 2025 OpenAgent Terminal
// Licensed under the MIT License. See LICENSE file in the project root for details.

//go:build !unix

package console

import (
	"context"
	"log/slog"

	"openagent/terminal/internal/ipc"
)

// Resize signals are unavailable here; the size sent at initialize stands.
func watchResize(ctx context.Context, c *ipc.Client, log *slog.Logger) {}
