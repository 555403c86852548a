// Copyright (c) 2025 OpenAgent Terminal
// Licensed under the MIT License. See LICENSE file in the project root for details.

package protocol

import (
	"bytes"
	"encoding/json"
	"sort"

	errs "openagent/terminal/internal/errors"
)

// envelopeFields are the field names a well-formed envelope may carry.
// Anything else at the top level is protocol drift.
var envelopeFields = map[string]struct{}{
	"jsonrpc": {},
	"id":      {},
	"method":  {},
	"params":  {},
	"result":  {},
	"error":   {},
}

// Drift describes unrecognized top-level fields found on one message.
type Drift struct {
	// Method is the method of the offending message, or "response" when the
	// message carries no method.
	Method string
	// Fields are the unrecognized field names, sorted.
	Fields []string
}

// DriftObserver receives one Drift per offending message. Observers must not
// block; they are called from the connection read path.
type DriftObserver func(Drift)

// DecodeIncoming decodes one received line into either a Notification or a
// Response. Exactly one of the two return values is non-nil on success.
//
// The tolerant pass retains unknown top-level fields and reports them through
// drift (at most once per message); the strict pass then decodes with unknown
// fields rejected, after stripping any drifted fields. A line that fits
// neither shape fails with a decode error.
func DecodeIncoming(line []byte, drift DriftObserver) (*Notification, *Response, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(line, &top); err != nil {
		return nil, nil, errs.Wrap(errs.DecodeFailed, "malformed message", err)
	}

	var version string
	if raw, ok := top["jsonrpc"]; !ok || json.Unmarshal(raw, &version) != nil || version != Version {
		return nil, nil, errs.New(errs.DecodeFailed, "missing or unsupported protocol version tag")
	}

	strict := line
	if unknown := unknownFields(top); len(unknown) > 0 {
		if drift != nil {
			drift(Drift{Method: methodOf(top), Fields: unknown})
		}
		// Strict decoding remains the source of truth: drop the drifted
		// fields and decode the reduced envelope.
		for _, k := range unknown {
			delete(top, k)
		}
		reduced, err := json.Marshal(top)
		if err != nil {
			return nil, nil, errs.Wrap(errs.DecodeFailed, "failed to re-encode envelope", err)
		}
		strict = reduced
	}

	_, hasID := top["id"]
	_, hasMethod := top["method"]
	switch {
	case hasMethod && !hasID:
		var n Notification
		if err := strictUnmarshal(strict, &n); err != nil {
			return nil, nil, errs.Wrap(errs.DecodeFailed, "invalid notification", err)
		}
		return &n, nil, nil
	case hasID && !hasMethod:
		var r Response
		if err := strictUnmarshal(strict, &r); err != nil {
			return nil, nil, errs.Wrap(errs.DecodeFailed, "invalid response", err)
		}
		if r.Result != nil && r.Error != nil {
			return nil, nil, errs.New(errs.DecodeFailed, "response carries both result and error")
		}
		return nil, &r, nil
	default:
		// A request shape (id and method) is never valid on the inbound path
		// of this client, and a line with neither is not an envelope at all.
		return nil, nil, errs.New(errs.DecodeFailed, "message is neither a notification nor a response")
	}
}

// DecodeRequest strictly decodes one line as a Request. Used by test peers
// standing in for the backend.
func DecodeRequest(line []byte) (*Request, error) {
	var r Request
	if err := strictUnmarshal(line, &r); err != nil {
		return nil, errs.Wrap(errs.DecodeFailed, "invalid request", err)
	}
	if r.JSONRPC != Version {
		return nil, errs.New(errs.DecodeFailed, "missing or unsupported protocol version tag")
	}
	return &r, nil
}

// Encode serializes a message as exactly one line, newline terminated.
// JSON string escaping guarantees the payload itself contains no line breaks.
func Encode(msg any) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to encode message", err)
	}
	if bytes.ContainsRune(b, '\n') {
		return nil, errs.New(errs.Internal, "encoded message contains a line break")
	}
	return append(b, '\n'), nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func unknownFields(top map[string]json.RawMessage) []string {
	var unknown []string
	for k := range top {
		if _, ok := envelopeFields[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	return unknown
}

func methodOf(top map[string]json.RawMessage) string {
	raw, ok := top["method"]
	if !ok {
		return "response"
	}
	var m string
	if err := json.Unmarshal(raw, &m); err != nil {
		return "response"
	}
	return m
}
