package server

import (
	"io"
	"strings"
)

// endFrame terminates every streaming response.
const endFrame = "data: [end]\n\n"

// sseFrame wraps a fragment in Server-Sent-Events framing. Internal
// newlines are escaped to the two-character sequence \n so each
// fragment stays a single data line; the client unescapes them.
func sseFrame(fragment string) string {
	return "data: " + strings.ReplaceAll(fragment, "\n", `\n`) + "\n\n"
}

func writeFrame(w io.Writer, fragment string) error {
	_, err := io.WriteString(w, sseFrame(fragment))
	return err
}

func writeEndFrame(w io.Writer) error {
	_, err := io.WriteString(w, endFrame)
	return err
}
