// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// MaxFrameSize caps a single frame's payload (64KB). Anything larger is a
// protocol violation and aborts the stream.
const MaxFrameSize = 64 * 1024

// =============================================================================
// FRAME READER
// =============================================================================

// FrameReader extracts "data:" payloads from a chunked response body.
//
// It buffers raw bytes and splits on line boundaries, so a frame whose
// JSON (or whose multi-byte characters) is split across chunk reads is
// assembled and returned exactly once. Blank lines, SSE comments, and
// non-data fields are skipped.
type FrameReader struct {
	reader *bufio.Reader
}

// NewFrameReader creates a frame reader over a response body.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		reader: bufio.NewReaderSize(r, 4096),
	}
}

// Next returns the raw payload of the next data frame. It returns io.EOF
// when the stream ends cleanly with no pending data.
func (fr *FrameReader) Next() ([]byte, error) {
	for {
		line, err := fr.readLine()
		if err != nil {
			if err == io.EOF && len(line) > 0 {
				// Final line without trailing newline still counts.
				if data, ok := framePayload(line); ok {
					return data, nil
				}
			}
			return nil, err
		}

		if data, ok := framePayload(line); ok {
			return data, nil
		}
		// Blank line, comment, or non-data field: keep reading.
	}
}

// readLine reads one full line, enforcing the frame size cap.
func (fr *FrameReader) readLine() ([]byte, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := fr.reader.ReadLine()
		if len(chunk) > 0 {
			buf = append(buf, chunk...)
			if len(buf) > MaxFrameSize {
				return nil, &TransportError{Err: errFrameTooLarge}
			}
		}
		if err != nil {
			return buf, err
		}
		if !isPrefix {
			return buf, nil
		}
	}
}

var errFrameTooLarge = errors.New("frame exceeds maximum size")

// framePayload extracts the JSON payload from a "data:" line. The second
// return value is false for blank lines, comments, and other fields.
func framePayload(line []byte) ([]byte, bool) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 || line[0] == ':' {
		return nil, false
	}
	if !bytes.HasPrefix(line, []byte("data:")) {
		return nil, false
	}
	data := bytes.TrimSpace(line[len("data:"):])
	if len(data) == 0 {
		return nil, false
	}
	return data, true
}
