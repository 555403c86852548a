// Copyright (c) 2025 OpenAgent Terminal
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"
)

// maxWireLog caps how much of a wire line is reproduced in the log file.
const maxWireLog = 512

// PresentError formats an error for user display.
func PresentError(context string, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", context, err.Error())
}

// Wire truncates a raw wire line for logging. Streamed payloads can be large
// and the log file must stay readable.
func Wire(line []byte) string {
	if len(line) <= maxWireLog {
		return string(line)
	}
	return fmt.Sprintf("%s... (%d bytes)", line[:maxWireLog], len(line))
}
