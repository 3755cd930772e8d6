// Package flat is the on-disk layout shared by the blob-style registry backends: one entry per
// line, UTF-8, no header and no escaping.
package flat

import (
	"bytes"
	"strings"
)

// Parse splits data into entries, trimming trailing whitespace on every line and dropping
// lines that end up empty.
func Parse(data []byte) []string {
	entries := []string{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, " \t\r\n\v\f")
		if line == "" {
			continue
		}
		entries = append(entries, line)
	}
	return entries
}

// Format writes every entry followed by a newline.
func Format(entries []string) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		buf.WriteString(e)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
