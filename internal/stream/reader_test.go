// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectFrames(t *testing.T, body string) []string {
	t.Helper()
	fr := NewFrameReader(strings.NewReader(body))
	var out []string
	for {
		data, err := fr.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, string(data))
	}
}

func TestFrameReader_SkipsNonDataLines(t *testing.T) {
	body := ": keepalive comment\n" +
		"\n" +
		"event: message\n" +
		"data: {\"a\":1}\n" +
		"\r\n" +
		"data: {\"b\":2}\r\n"

	frames := collectFrames(t, body)
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, frames)
}

func TestFrameReader_FinalFrameWithoutNewline(t *testing.T) {
	frames := collectFrames(t, "data: {\"a\":1}\ndata: {\"b\":2}")
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, frames)
}

func TestFrameReader_WhitespaceAfterColon(t *testing.T) {
	frames := collectFrames(t, "data:{\"tight\":true}\ndata:   {\"padded\":true}\n")
	assert.Equal(t, []string{`{"tight":true}`, `{"padded":true}`}, frames)
}

func TestFrameReader_OversizeFrame(t *testing.T) {
	body := "data: " + strings.Repeat("x", MaxFrameSize+1) + "\n"
	fr := NewFrameReader(strings.NewReader(body))

	_, err := fr.Next()
	require.Error(t, err)
	var transportErr *TransportError
	assert.True(t, errors.As(err, &transportErr))
}

func TestFrameReader_EmptyBody(t *testing.T) {
	fr := NewFrameReader(strings.NewReader(""))
	_, err := fr.Next()
	assert.Equal(t, io.EOF, err)
}
