package progress

import (
	"errors"
	"io"
	"sync"
)

// EmitFunc receives every snapshot that passed the throttle.
type EmitFunc func(Snapshot)

// Counter accumulates the byte count of one transfer and feeds it to a
// Throttler, forwarding emitted snapshots to an EmitFunc.
//
// The start snapshot is emitted when the counter is created and the final
// snapshot at most once, by the first call to Finish.
type Counter struct {
	throttler *Throttler
	state     *transfer
	emit      EmitFunc

	mu       sync.Mutex
	total    int64
	finished bool
}

// Track starts a transfer and emits its start snapshot.
//
// emit may be nil when nobody listens.
func (t *Throttler) Track(path string, typ TransferType, emit EmitFunc) *Counter {
	if emit == nil {
		emit = func(Snapshot) {}
	}
	state, start := t.begin(path, typ)
	c := &Counter{
		throttler: t,
		state:     state,
		emit:      emit,
	}
	c.emit(start)
	return c
}

// Add records n more transferred bytes.
func (c *Counter) Add(n int) {
	if n <= 0 {
		return
	}

	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return
	}
	c.total += int64(n)
	snap, ok := c.throttler.update(c.state, c.total)
	c.mu.Unlock()

	if ok {
		c.emit(snap)
	}
}

// Total returns the bytes recorded so far.
func (c *Counter) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Finish returns the final snapshot and releases the transfer.
//
// The snapshot is emitted by the first call, unless the last throttled
// update already reported the full total. Later calls return the same
// totals without emitting.
func (c *Counter) Finish() Snapshot {
	c.mu.Lock()
	if c.finished {
		total := c.total
		c.mu.Unlock()
		return Snapshot{Type: c.state.key.typ, Path: c.state.key.path, BytesRead: total}
	}
	c.finished = true
	snap, emit := c.throttler.finish(c.state, c.total)
	c.mu.Unlock()

	if emit {
		c.emit(snap)
	}
	return snap
}

// Cancel abandons the transfer without emitting a final snapshot. It reports whether the transfer was still
// running.
func (c *Counter) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finished {
		return false
	}
	c.finished = true
	c.throttler.release(c.state)
	return true
}

// Reader counts the bytes a consumer drains from an underlying reader.
//
// Reaching EOF or closing the reader finishes the transfer.
type Reader struct {
	r       io.Reader
	counter *Counter
}

// NewReader instruments r with counter.
func NewReader(r io.Reader, counter *Counter) *Reader {
	return &Reader{r: r, counter: counter}
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.counter.Add(n)
	if errors.Is(err, io.EOF) {
		r.counter.Finish()
	}
	return n, err
}

// Close finishes the transfer and closes the underlying reader if it is
// an io.Closer.
func (r *Reader) Close() error {
	r.counter.Finish()
	if c, ok := r.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Writer counts the bytes written through it. The owner finishes the
// transfer once the destination has committed.
type Writer struct {
	w       io.Writer
	counter *Counter
}

// NewWriter instruments w with counter.
func NewWriter(w io.Writer, counter *Counter) *Writer {
	return &Writer{w: w, counter: counter}
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.counter.Add(n)
	return n, err
}
