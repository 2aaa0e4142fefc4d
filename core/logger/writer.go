package logger

import (
	"io"
	"sync"
)

// asyncWriter batches formatted lines and fans them out to every sink from a
// single goroutine. Callers only append to the pending batch; once it grows
// past limit the caller waits for a drain.
type asyncWriter struct {
	sinks []io.Writer
	limit int

	mu      sync.Mutex
	pending []byte
	err     error

	writeMu sync.Mutex

	wake  chan struct{}
	flush chan chan error
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	w := &asyncWriter{
		limit: bufSize,
		wake:  make(chan struct{}, 1),
		flush: make(chan chan error),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, s := range writers {
		if s != nil {
			w.sinks = append(w.sinks, s)
		}
	}
	go w.loop()
	return w
}

// Write queues one line. It returns the first sink error seen so far.
func (w *asyncWriter) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	w.mu.Lock()
	if w.err != nil {
		err := w.err
		w.mu.Unlock()
		return err
	}
	w.pending = append(w.pending, p...)
	full := len(w.pending) >= w.limit
	w.mu.Unlock()

	if full {
		return w.Flush()
	}
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

// Flush blocks until everything queued so far reached the sinks.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	select {
	case w.flush <- ack:
		return <-ack
	case <-w.done:
		return w.drain()
	}
}

// Close stops the writer goroutine after a final drain.
func (w *asyncWriter) Close() error {
	w.once.Do(func() { close(w.stop) })
	<-w.done
	return w.drain()
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
			w.drain()
		case ack := <-w.flush:
			ack <- w.drain()
		case <-w.stop:
			w.drain()
			return
		}
	}
}

func (w *asyncWriter) drain() error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.mu.Unlock()

	for _, s := range w.sinks {
		if len(batch) == 0 {
			break
		}
		if _, err := s.Write(batch); err != nil {
			w.mu.Lock()
			if w.err == nil {
				w.err = err
			}
			w.mu.Unlock()
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
