package server

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEFrame_Plain(t *testing.T) {
	assert.Equal(t, "data: hello\n\n", sseFrame("hello"))
}

func TestSSEFrame_EscapesNewlines(t *testing.T) {
	// An embedded newline becomes the literal two characters backslash
	// and n, keeping the fragment on one data line.
	assert.Equal(t, `data: line1\nline2`+"\n\n", sseFrame("line1\nline2"))
}

func TestEndFrame(t *testing.T) {
	assert.Equal(t, "data: [end]\n\n", endFrame)
}

func TestWriteFrames(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeFrame(&buf, "first"))
	require.NoError(t, writeFrame(&buf, "second\npart"))
	require.NoError(t, writeEndFrame(&buf))

	assert.Equal(t, "data: first\n\ndata: second\\npart\n\ndata: [end]\n\n", buf.String())
}
