// Copyright (c) 2025 OpenAgent Terminal
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package protocol implements the line-delimited message codec used on the
// backend channel. Every message is one line of UTF-8 JSON carrying a fixed
// protocol-version tag and taking one of three shapes: Request, Response, or
// Notification.
//
// Decoding is two-pass: a tolerant pass that accepts unknown envelope fields
// and reports them as protocol drift, then a strict pass that is the source
// of truth for the decoded value. Drift is observational only; a drifted
// message still decodes.
package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// RequestID is the id field of a Request or Response. The wire format allows
// integer or string ids; every id this client assigns is an integer.
type RequestID struct {
	num   uint64
	str   string
	isStr bool
}

// NumberID returns an integer request id.
func NumberID(n uint64) RequestID { return RequestID{num: n} }

// StringID returns a string request id.
func StringID(s string) RequestID { return RequestID{str: s, isStr: true} }

// IsZero reports whether the id is unset. Assigned numeric ids are never
// zero, so a zero id marks a message that carried none.
func (id RequestID) IsZero() bool { return !id.isStr && id.num == 0 }

// Number returns the numeric value of the id and whether it is numeric.
func (id RequestID) Number() (uint64, bool) {
	if id.isStr {
		return 0, false
	}
	return id.num, true
}

func (id RequestID) String() string {
	if id.isStr {
		return id.str
	}
	return strconv.FormatUint(id.num, 10)
}

func (id RequestID) MarshalJSON() ([]byte, error) {
	if id.isStr {
		return json.Marshal(id.str)
	}
	return []byte(strconv.FormatUint(id.num, 10)), nil
}

func (id *RequestID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		id.isStr = true
		return json.Unmarshal(b, &id.str)
	}
	n, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("request id must be an unsigned integer or string: %w", err)
	}
	id.num = n
	id.isStr = false
	return nil
}

// Request is a call expecting exactly one Response with the same id.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response resolves a prior Request. Exactly one of Result or Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Notification is a server-pushed event with no id and no reply.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// RPCError is the error object of a failed Response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error (code %d): %s", e.Code, e.Message)
}

// NewRequest builds a Request with a numeric id, marshalling params.
// A nil params produces a request without a params field.
func NewRequest(id uint64, method string, params any) (*Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Request{JSONRPC: Version, ID: NumberID(id), Method: method, Params: raw}, nil
}

// NewNotification builds a Notification, marshalling params.
func NewNotification(method string, params any) (*Notification, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Notification{JSONRPC: Version, Method: method, Params: raw}, nil
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return raw, nil
}
