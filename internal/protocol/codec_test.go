// Copyright (c) 2025 OpenAgent Terminal
// Licensed under the MIT License. See LICENSE file in the project root for details.

package protocol

import (
	"bytes"
	"encoding/json"
	"reflect"
	"testing"

	errs "openagent/terminal/internal/errors"
)

func TestDecodeIncomingNotification(t *testing.T) {
	line := []byte(`{"jsonrpc":"2.0","method":"stream.token","params":{"content":"hi"}}`)

	n, r, err := DecodeIncoming(line, nil)
	if err != nil {
		t.Fatalf("DecodeIncoming() error = %v", err)
	}
	if r != nil {
		t.Fatalf("expected no response, got %+v", r)
	}
	if n.Method != "stream.token" {
		t.Errorf("method = %q, want stream.token", n.Method)
	}
	var params struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(n.Params, &params); err != nil {
		t.Fatalf("params unmarshal: %v", err)
	}
	if params.Content != "hi" {
		t.Errorf("content = %q, want hi", params.Content)
	}
}

func TestDecodeIncomingResponse(t *testing.T) {
	line := []byte(`{"jsonrpc":"2.0","id":42,"result":{"ok":true}}`)

	n, r, err := DecodeIncoming(line, nil)
	if err != nil {
		t.Fatalf("DecodeIncoming() error = %v", err)
	}
	if n != nil {
		t.Fatalf("expected no notification, got %+v", n)
	}
	id, ok := r.ID.Number()
	if !ok || id != 42 {
		t.Errorf("id = %v, want 42", r.ID)
	}
	if r.Error != nil {
		t.Errorf("unexpected error object: %+v", r.Error)
	}
}

func TestDecodeIncomingErrorResponse(t *testing.T) {
	line := []byte(`{"jsonrpc":"2.0","id":7,"error":{"code":-32601,"message":"Method not found: bogus"}}`)

	_, r, err := DecodeIncoming(line, nil)
	if err != nil {
		t.Fatalf("DecodeIncoming() error = %v", err)
	}
	if r.Error == nil {
		t.Fatal("expected error object")
	}
	if r.Error.Code != CodeMethodNotFound {
		t.Errorf("code = %d, want %d", r.Error.Code, CodeMethodNotFound)
	}
}

// A message with an extra unrecognized field still decodes, and the drift
// observer is called exactly once naming the method and the fields.
func TestDecodeIncomingDrift(t *testing.T) {
	line := []byte(`{"jsonrpc":"2.0","method":"stream.token","params":{"content":"x"},"debug":true}`)

	var observed []Drift
	n, _, err := DecodeIncoming(line, func(d Drift) { observed = append(observed, d) })
	if err != nil {
		t.Fatalf("DecodeIncoming() error = %v", err)
	}
	if n == nil || n.Method != "stream.token" {
		t.Fatalf("notification not decoded: %+v", n)
	}
	if len(observed) != 1 {
		t.Fatalf("drift observed %d times, want 1", len(observed))
	}
	if observed[0].Method != "stream.token" {
		t.Errorf("drift method = %q, want stream.token", observed[0].Method)
	}
	if !reflect.DeepEqual(observed[0].Fields, []string{"debug"}) {
		t.Errorf("drift fields = %v, want [debug]", observed[0].Fields)
	}
}

func TestDecodeIncomingDriftOnResponse(t *testing.T) {
	line := []byte(`{"jsonrpc":"2.0","id":1,"result":{},"trace_id":"abc","z":1}`)

	var got Drift
	_, r, err := DecodeIncoming(line, func(d Drift) { got = d })
	if err != nil {
		t.Fatalf("DecodeIncoming() error = %v", err)
	}
	if r == nil {
		t.Fatal("expected response")
	}
	if got.Method != "response" {
		t.Errorf("drift method = %q, want response", got.Method)
	}
	if !reflect.DeepEqual(got.Fields, []string{"trace_id", "z"}) {
		t.Errorf("drift fields = %v", got.Fields)
	}
}

func TestDecodeIncomingRejects(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "not json", line: `{"jsonrpc":`},
		{name: "missing version", line: `{"method":"x"}`},
		{name: "wrong version", line: `{"jsonrpc":"1.0","method":"x"}`},
		{name: "request shape", line: `{"jsonrpc":"2.0","id":1,"method":"x"}`},
		{name: "no shape", line: `{"jsonrpc":"2.0","params":{}}`},
		{name: "result and error", line: `{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":1,"message":"m"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeIncoming([]byte(tt.line), nil)
			if err == nil {
				t.Fatal("expected decode error")
			}
			if !errs.Is(err, errs.DecodeFailed) {
				t.Errorf("error kind = %v, want decode_failed", err)
			}
		})
	}
}

func TestEncodeRequestOneLine(t *testing.T) {
	req, err := NewRequest(1, "agent.query", map[string]any{"message": "multi\nline"})
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	b, err := Encode(req)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if b[len(b)-1] != '\n' {
		t.Error("encoded message is not newline terminated")
	}
	if bytes.Count(b, []byte("\n")) != 1 {
		t.Errorf("encoded message has embedded line breaks: %q", b)
	}

	// Round-trip through the strict request decoder.
	decoded, err := DecodeRequest(bytes.TrimSuffix(b, []byte("\n")))
	if err != nil {
		t.Fatalf("DecodeRequest() error = %v", err)
	}
	if decoded.Method != "agent.query" {
		t.Errorf("method = %q", decoded.Method)
	}
	if id, ok := decoded.ID.Number(); !ok || id != 1 {
		t.Errorf("id = %v, want 1", decoded.ID)
	}
}

func TestRequestIDStringForm(t *testing.T) {
	line := []byte(`{"jsonrpc":"2.0","id":"req-9","result":{}}`)
	_, r, err := DecodeIncoming(line, nil)
	if err != nil {
		t.Fatalf("DecodeIncoming() error = %v", err)
	}
	if _, ok := r.ID.Number(); ok {
		t.Error("string id reported as numeric")
	}
	if r.ID.String() != "req-9" {
		t.Errorf("id = %q, want req-9", r.ID.String())
	}

	b, err := json.Marshal(StringID("req-9"))
	if err != nil || string(b) != `"req-9"` {
		t.Errorf("marshal string id = %s, %v", b, err)
	}
}
