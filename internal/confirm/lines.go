package confirm

import (
	"bufio"
	"context"
	"io"
	"sync"
)

// Lines serialises line input for every consumer of one reader (the REPL and
// the terminal prompt share stdin). A single goroutine reads; Next waits for
// the next line or ctx.
type Lines struct {
	r    io.Reader
	ch   chan string
	err  error
	once sync.Once
}

// NewLines wraps r.
func NewLines(r io.Reader) *Lines {
	return &Lines{r: r, ch: make(chan string)}
}

func (l *Lines) start() {
	go func() {
		sc := bufio.NewScanner(l.r)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			l.ch <- sc.Text()
		}
		l.err = sc.Err()
		if l.err == nil {
			l.err = io.EOF
		}
		close(l.ch)
	}()
}

// Next returns the next line without its newline. At end of input it
// returns io.EOF, and keeps returning it.
func (l *Lines) Next(ctx context.Context) (string, error) {
	l.once.Do(l.start)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-l.ch:
		if !ok {
			return "", l.err
		}
		return line, nil
	}
}
