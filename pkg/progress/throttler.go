// Package progress tracks streamed content transfers and decides when a
// progress notification is worth emitting.
//
// Every transfer is keyed by (path, transfer type). The first and the last
// snapshot of a transfer are always emitted; snapshots in between are
// throttled so that at most one is emitted per delay window.
package progress

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultDelay is the throttle window used when none is configured.
const DefaultDelay = 1000 * time.Millisecond

// TransferType classifies a streamed content operation.
type TransferType string

const (
	TransferCreate TransferType = "create"
	TransferUpdate TransferType = "update"
	TransferRead   TransferType = "read"
)

// Snapshot is one progress notification for a transfer.
type Snapshot struct {
	Type TransferType `json:"transfer_type"`
	Path string       `json:"path"`

	// BytesRead is the cumulative number of bytes moved so far
	BytesRead int64 `json:"read"`

	// Rate is in bytes per millisecond since the transfer started
	Rate int64 `json:"rate"`
}

type key struct {
	path string
	typ  TransferType
}

// transfer is the throttling state of one in-flight transfer. Two
// transfers of the same key (say, two readers of one asset) never share
// it.
type transfer struct {
	key      key
	started  time.Time
	lastEmit time.Time
	last     Snapshot
}

// Throttler decides which snapshots of in-flight transfers are emitted and
// remembers, per (path, type), the last snapshot emitted for it.
//
// Thread Safety:
// Safe for concurrent use. Different transfers update from different
// goroutines; a single transfer's updates arrive sequentially.
type Throttler struct {
	delay time.Duration
	clock clock.Clock

	mu sync.Mutex
	// latest maps each key to the transfer that emitted last for it
	latest map[key]*transfer
	active int
}

// NewThrottler creates a throttler with the given window.
//
// delay <= 0 selects DefaultDelay. clk may be nil to use the wall clock.
func NewThrottler(delay time.Duration, clk clock.Clock) *Throttler {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Throttler{
		delay:  delay,
		clock:  clk,
		latest: make(map[key]*transfer),
	}
}

// Delay returns the throttle window.
func (t *Throttler) Delay() time.Duration {
	return t.delay
}

// begin starts a transfer. Its start snapshot must always be emitted.
func (t *Throttler) begin(path string, typ TransferType) (*transfer, Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	snap := Snapshot{Type: typ, Path: path}
	tr := &transfer{
		key:      key{path, typ},
		started:  now,
		lastEmit: now,
		last:     snap,
	}
	t.latest[tr.key] = tr
	t.active++
	return tr, snap
}

// ShouldEmit reports whether a snapshot for the key would be emitted now.
//
// It is true when force is set, when nothing was emitted yet for the key,
// or when more than the delay window elapsed since the last emission.
func (t *Throttler) ShouldEmit(path string, typ TransferType, force bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shouldEmitLocked(t.latest[key{path, typ}], t.clock.Now(), force)
}

func (t *Throttler) shouldEmitLocked(tr *transfer, now time.Time, force bool) bool {
	if force || tr == nil {
		return true
	}
	return now.Sub(tr.lastEmit) > t.delay
}

// update records that bytesRead bytes have moved in total.
//
// The second result tells whether the snapshot should be emitted. The
// rate is only recomputed when it is; otherwise the snapshot carries a
// zero rate.
func (t *Throttler) update(tr *transfer, bytesRead int64) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	snap := Snapshot{Type: tr.key.typ, Path: tr.key.path, BytesRead: bytesRead}
	if !t.shouldEmitLocked(tr, now, false) {
		return snap, false
	}

	snap.Rate = Rate(bytesRead, now.Sub(tr.started))
	tr.lastEmit = now
	tr.last = snap
	t.latest[tr.key] = tr
	return snap, true
}

// finish ends a transfer and returns its final snapshot.
//
// The final snapshot is emitted unless the transfer already emitted one
// for the same non-zero total, so a transfer reports read=total once.
func (t *Throttler) finish(tr *transfer, bytesRead int64) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.releaseLocked(tr)
	if bytesRead > 0 && tr.last.BytesRead == bytesRead {
		return tr.last, false
	}

	snap := Snapshot{
		Type:      tr.key.typ,
		Path:      tr.key.path,
		BytesRead: bytesRead,
		Rate:      Rate(bytesRead, t.clock.Now().Sub(tr.started)),
	}
	tr.last = snap
	return snap, true
}

// release ends a transfer without a final snapshot.
func (t *Throttler) release(tr *transfer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.releaseLocked(tr)
}

// releaseLocked resets the key, unless a newer transfer of the same key
// emitted since.
func (t *Throttler) releaseLocked(tr *transfer) {
	t.active--
	if t.latest[tr.key] == tr {
		delete(t.latest, tr.key)
	}
}

// Last returns the last snapshot emitted for the key by a transfer still
// in flight.
func (t *Throttler) Last(path string, typ TransferType) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr := t.latest[key{path, typ}]
	if tr == nil {
		return Snapshot{}, false
	}
	return tr.last, true
}

// Active returns the number of transfers in flight.
func (t *Throttler) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Rate computes round(bytes / elapsed milliseconds).
//
// The result is 0 while no time has elapsed and at least 1 afterwards.
func Rate(bytes int64, elapsed time.Duration) int64 {
	if elapsed <= 0 {
		return 0
	}
	ms := float64(elapsed) / float64(time.Millisecond)
	r := int64(math.Round(float64(bytes) / ms))
	if r < 1 {
		return 1
	}
	return r
}
