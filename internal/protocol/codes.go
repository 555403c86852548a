package protocol

// Version is the protocol version tag carried by every message envelope.
const Version = "2.0"

// Standard error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Implementation-defined error codes (-32000..-32099).
const (
	CodeAgentError       = -32000
	CodeTimeout          = -32001
	CodeCancelled        = -32002
	CodePermissionDenied = -32003
	CodeModelError       = -32004
	CodeToolError        = -32005
)
