package console

import (
	"bufio"
	"context"
	"io"
)

// maxLineBytes bounds a single input line. Longer lines are reported as
// errors rather than split.
const maxLineBytes = 64 * 1024

// Line is one line read from input. Err is set on the final value when
// reading failed; a clean EOF just closes the channel.
type Line struct {
	Text string
	Err  error
}

// ReadLines scans r on its own goroutine and sends each line, without its
// terminator, on the returned channel. The channel is closed at EOF, after a
// read error, or once ctx is done.
//
// The goroutine may stay blocked in Read after ctx is cancelled; that is
// unavoidable for stdin and harmless at process exit.
func ReadLines(ctx context.Context, r io.Reader) <-chan Line {
	ch := make(chan Line)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 4096), maxLineBytes)
		for sc.Scan() {
			select {
			case ch <- Line{Text: sc.Text()}:
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			select {
			case ch <- Line{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return ch
}
