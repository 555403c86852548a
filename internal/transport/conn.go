// Copyright (c) 2025 OpenAgent Terminal
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package transport owns the duplex byte stream to the backend process. It
// dials the unix socket endpoint and splits the stream into an inbound line
// reader and an outbound line writer.
//
// Every failure returned here is terminal for the connection instance: the
// caller must discard the Conn and dial a new one. The read and write paths
// are independent and may be used concurrently by one reader and one writer.
package transport

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	errs "openagent/terminal/internal/errors"
)

// maxLine caps a single inbound line. Streamed payloads are chunked by the
// backend, so a line beyond this indicates a framing bug on the peer.
const maxLine = 8 * 1024 * 1024

// Conn is one connection instance to the backend.
type Conn struct {
	c net.Conn
	r *bufio.Reader

	wmu sync.Mutex
}

// Dial performs a single connection attempt to the unix socket at path.
// It fails with a connection_refused error when no peer is listening.
func Dial(path string, timeout time.Duration) (*Conn, error) {
	c, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return nil, errs.Wrap(errs.ConnectionRefused, "no backend listening at "+path, err)
	}
	return &Conn{c: c, r: bufio.NewReaderSize(c, 64*1024)}, nil
}

// WriteLine writes one encoded line. The payload must already be newline
// terminated by the codec. Any I/O error is a write_failed error and the
// connection must not be reused.
func (c *Conn) WriteLine(line []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.c.Write(line); err != nil {
		return errs.Wrap(errs.WriteFailed, "connection lost on write", err)
	}
	return nil
}

// ReadLine returns the next inbound line without its trailing newline.
// A clean close by the peer yields an end_of_stream error; any other I/O
// failure yields read_failed. Both are terminal for this connection.
func (c *Conn) ReadLine() ([]byte, error) {
	line, err := readLine(c.r, maxLine)
	if err != nil {
		switch {
		case errors.Is(err, errLineTooLong):
			return nil, errs.New(errs.ReadFailed, "inbound line exceeds size limit")
		case errors.Is(err, io.EOF) && len(line) == 0:
			return nil, errs.Wrap(errs.EndOfStream, "connection closed by backend", err)
		default:
			return nil, errs.Wrap(errs.ReadFailed, "connection lost on read", err)
		}
	}
	return bytes.TrimRight(line, "\r\n"), nil
}

var errLineTooLong = errors.New("line exceeds size limit")

// readLine accumulates one newline-terminated line from r, aborting with
// errLineTooLong as soon as the accumulated bytes pass max. The reader buffer
// is drained slice by slice, so an oversized line is never held in memory
// beyond max plus one buffer.
func readLine(r *bufio.Reader, max int) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > max {
			return nil, errLineTooLong
		}
		switch {
		case err == nil:
			return line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return line, err
		}
	}
}

// Close tears down the underlying socket. Safe to call more than once.
func (c *Conn) Close() error {
	return c.c.Close()
}
