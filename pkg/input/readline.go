// Package input reads composer lines from a terminal or a pipe.
package input

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
)

type line struct {
	text string
	err  error
}

// Reader reads lines in the background so that ReadLine can give up when
// its context is cancelled without losing buffered input.
type Reader struct {
	lines chan line
	done  chan struct{}
	once  sync.Once
}

func NewReader(rd io.Reader) *Reader {
	r := &Reader{
		lines: make(chan line),
		done:  make(chan struct{}),
	}
	go r.loop(bufio.NewReader(rd))
	return r
}

func (r *Reader) loop(br *bufio.Reader) {
	defer close(r.lines)
	for {
		text, err := br.ReadString('\n')
		if text == "" && err != nil {
			r.send(line{err: err})
			return
		}
		if !r.send(line{text: strings.TrimRight(text, "\r\n")}) {
			return
		}
		if err != nil {
			r.send(line{err: err})
			return
		}
	}
}

func (r *Reader) send(l line) bool {
	select {
	case r.lines <- l:
		return true
	case <-r.done:
		return false
	}
}

// ReadLine returns the next line without its line terminator. It returns
// io.EOF once the input is exhausted.
func (r *Reader) ReadLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l, ok := <-r.lines:
		if !ok {
			return "", io.EOF
		}
		return l.text, l.err
	}
}

// Close stops the background reader once its pending read returns.
func (r *Reader) Close() {
	r.once.Do(func() { close(r.done) })
}
