package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// writeOp is either a log line or, when ack is set, a flush barrier.
type writeOp struct {
	data []byte
	ack  chan error
}

// asyncWriter fans log lines out to the sinks from a single goroutine so
// handlers never block on a slow file or terminal.
type asyncWriter struct {
	ops  chan writeOp
	done chan struct{}

	// mu guards closed; senders hold it shared so Close cannot close ops under them.
	mu     sync.RWMutex
	closed bool

	errMu sync.Mutex
	err   error

	sinks []*bufio.Writer
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	w := &asyncWriter{
		ops:  make(chan writeOp, 256),
		done: make(chan struct{}),
	}
	for _, out := range writers {
		if out != nil {
			w.sinks = append(w.sinks, bufio.NewWriterSize(out, bufSize))
		}
	}
	go w.loop()
	return w
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for op := range w.ops {
		if op.ack != nil {
			op.ack <- w.flush()
			continue
		}
		for _, sink := range w.sinks {
			if _, err := sink.Write(op.data); err != nil {
				w.fail(err)
				break
			}
			if err := sink.Flush(); err != nil {
				w.fail(err)
				break
			}
		}
	}
	if err := w.flush(); err != nil {
		w.fail(err)
	}
}

// Write queues a copy of p. It blocks only when the queue is full.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.Err(); err != nil {
		return err
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errors.New("logger: writer closed")
	}
	if len(p) == 0 {
		return nil
	}
	w.ops <- writeOp{data: append([]byte(nil), p...)}
	return nil
}

// Flush waits until every line queued before the call reached the sinks.
func (w *asyncWriter) Flush() error {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return w.Err()
	}
	ack := make(chan error, 1)
	w.ops <- writeOp{ack: ack}
	w.mu.RUnlock()
	return <-ack
}

// Close drains the queue and reports the first write error.
func (w *asyncWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.ops)
	}
	w.mu.Unlock()
	<-w.done
	return w.Err()
}

// Err returns the first error a sink reported.
func (w *asyncWriter) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

func (w *asyncWriter) flush() error {
	var errs []error
	for _, sink := range w.sinks {
		if err := sink.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) fail(err error) {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.err == nil {
		w.err = err
	}
}
