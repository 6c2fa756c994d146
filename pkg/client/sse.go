package client

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"
)

const maxFrameLine = 4 << 20

// Frame is one server-sent event block.
type Frame struct {
	Event    string
	Data     string
	ID       string
	HasID    bool
	Retry    int
	HasRetry bool
	Comments []string
}

// IsEvent reports whether the frame should be dispatched as an event.
// Comment-only blocks are not.
func (f Frame) IsEvent() bool {
	return f.Data != "" || f.Event != "message" || f.HasID
}

// SSEReader splits a text/event-stream body into frames. It accepts LF,
// CRLF and lone CR line endings.
type SSEReader struct {
	scanner *bufio.Scanner
}

func NewSSEReader(r io.Reader) *SSEReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameLine)
	scanner.Split(scanLines)
	return &SSEReader{scanner: scanner}
}

// Next returns the next non-empty frame. A frame still open at EOF is
// returned before io.EOF.
func (r *SSEReader) Next() (Frame, error) {
	var lines []string
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line == "" {
			if len(lines) == 0 {
				continue
			}
			return ParseFrame(lines), nil
		}
		lines = append(lines, line)
	}
	if err := r.scanner.Err(); err != nil {
		return Frame{}, err
	}
	if len(lines) > 0 {
		return ParseFrame(lines), nil
	}
	return Frame{}, io.EOF
}

// ParseFrame interprets the field lines of one block.
func ParseFrame(lines []string) Frame {
	frame := Frame{Event: "message"}
	var data []string

	for _, line := range lines {
		if line == "" {
			continue
		}
		if comment, ok := strings.CutPrefix(line, ":"); ok {
			frame.Comments = append(frame.Comments, comment)
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			frame.Event = value
			if frame.Event == "" {
				frame.Event = "message"
			}
		case "data":
			data = append(data, value)
		case "id":
			frame.ID = value
			frame.HasID = true
		case "retry":
			if n, err := strconv.Atoi(value); err == nil {
				frame.Retry = n
				frame.HasRetry = true
			}
		}
	}

	frame.Data = strings.Join(data, "\n")
	return frame
}

func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		// A CR at the end of the buffer may be the first half of CRLF.
		if i+1 == len(data) && !atEOF {
			return 0, nil, nil
		}
		if i+1 < len(data) && data[i+1] == '\n' {
			return i + 2, data[:i], nil
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
