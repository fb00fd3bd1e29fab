package bridge

import (
	"bufio"
	"errors"
	"io"
)

// errStopped is returned by lineReader.Next when the wait was abandoned
var errStopped = errors.New("stop requested")

type readResult struct {
	line []byte
	err  error
}

// lineReader reads stdin one line per request, so nothing past the requested
// line is consumed into the loop. A pending read can be abandoned.
type lineReader struct {
	r       *bufio.Reader
	reqs    chan struct{}
	out     chan readResult
	pending bool
	err     error
}

func newLineReader(in io.Reader) *lineReader {
	lr := &lineReader{
		r:    bufio.NewReader(in),
		reqs: make(chan struct{}),
		out:  make(chan readResult, 1),
	}
	go lr.loop()
	return lr
}

func (lr *lineReader) loop() {
	for range lr.reqs {
		line, err := lr.r.ReadBytes('\n')
		lr.out <- readResult{line: line, err: err}
		if err != nil {
			return
		}
	}
}

// Next returns the next line. A final line without a newline is returned
// before io.EOF. When done closes first, Next returns errStopped and the
// pending read is left to finish on its own.
func (lr *lineReader) Next(done <-chan struct{}) ([]byte, error) {
	if lr.err != nil {
		return nil, lr.err
	}
	if !lr.pending {
		select {
		case lr.reqs <- struct{}{}:
			lr.pending = true
		case <-done:
			return nil, errStopped
		}
	}

	select {
	case res := <-lr.out:
		lr.pending = false
		if res.err != nil {
			lr.err = res.err
			if len(res.line) > 0 {
				return res.line, nil
			}
			return nil, res.err
		}
		return res.line, nil
	case <-done:
		return nil, errStopped
	}
}

// Close lets the read goroutine exit once any pending read returns
func (lr *lineReader) Close() {
	if lr.err == nil {
		lr.err = errStopped
		close(lr.reqs)
	}
}
