// Package repository implements the asset repository coordinator.
//
// A Repository validates every operation against the current shape of the
// tree before delegating to a store.Store, streams content through the
// progress throttler, and routes every callback and event through the
// subscription registry.
package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/marmos91/assetrepo/internal/logger"
	"github.com/marmos91/assetrepo/internal/ratelimiter"
	"github.com/marmos91/assetrepo/pkg/pathutil"
	"github.com/marmos91/assetrepo/pkg/progress"
	"github.com/marmos91/assetrepo/pkg/store"
	"github.com/marmos91/assetrepo/pkg/subscription"
)

// Callback receives the outcome of an asynchronous operation. Exactly one
// of value and err is meaningful.
//
// A callback is invoked at most once, on the goroutine that ran the
// operation. It is not invoked at all when the operation's subscriber has
// unsubscribed by the time the result is ready.
type Callback[T any] func(value T, err error)

// Repository is the public-facing orchestrator over a store.Store.
//
// Every operation returns immediately; the work runs on its own goroutine
// and the result is delivered to the operation's callback. Pipeline per
// operation:
//  1. Normalize the options (effective path, correlation id)
//  2. Wait for admission by the rate limiter (if configured)
//  3. Check preconditions with Exists/GetInfo
//  4. Delegate to the store
//  5. Re-fetch fresh info where the operation returns info
//  6. Deliver events and the callback through the subscriber gate
//
// Thread Safety:
// All methods are safe for concurrent use. The repository holds no tree
// state of its own; consistency of concurrent mutations is the store's
// responsibility.
type Repository struct {
	store     store.Store
	registry  *subscription.Registry
	throttler *progress.Throttler
	limiter   *ratelimiter.RateLimiter
	metrics   Metrics
	listeners listenerList

	// mu guards closed against wg.Add racing with Close
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// Config contains the optional collaborators of a Repository.
type Config struct {
	// ThrottleDelay is the progress throttle window
	// (default: progress.DefaultDelay)
	ThrottleDelay time.Duration

	// Limiter admits operations (nil: no limit)
	Limiter *ratelimiter.RateLimiter

	// Metrics receives observations (nil: discarded)
	Metrics Metrics

	// Registry is the subscription registry (nil: a fresh one)
	Registry *subscription.Registry

	// Clock drives progress timing (nil: the real clock)
	Clock clock.Clock
}

// New creates a Repository over s.
//
// The repository takes ownership of s: Close closes it.
func New(s store.Store, config Config) *Repository {
	registry := config.Registry
	if registry == nil {
		registry = subscription.NewRegistry()
	}

	m := config.Metrics
	if m == nil {
		m = noopMetrics{}
	}

	return &Repository{
		store:     s,
		registry:  registry,
		throttler: progress.NewThrottler(config.ThrottleDelay, config.Clock),
		limiter:   config.Limiter,
		metrics:   m,
	}
}

// Store returns the underlying store.
func (r *Repository) Store() store.Store {
	return r.store
}

// ============================================================================
// Subscriptions and Listeners
// ============================================================================

// Subscribe registers id. Operations tagged with id deliver their callbacks
// and events while it stays registered.
func (r *Repository) Subscribe(id string) {
	r.registry.Subscribe(id)
	r.metrics.SetSubscribers(r.registry.Len())
}

// Unsubscribe removes id. In-flight operations tagged with id still
// complete, but their callbacks and events are dropped.
func (r *Repository) Unsubscribe(id string) {
	r.registry.Unsubscribe(id)
	r.metrics.SetSubscribers(r.registry.Len())
}

// IsSubscribed reports whether id is registered.
func (r *Repository) IsSubscribed(id string) bool {
	return r.registry.IsSubscribed(id)
}

// AddListener registers fn for every event that passes the subscriber
// gate. Listeners are called synchronously in registration order.
//
// Returns a function that removes the listener.
func (r *Repository) AddListener(fn Listener) (remove func()) {
	return r.listeners.add(fn)
}

// ============================================================================
// Lifecycle
// ============================================================================

// Wait blocks until every submitted operation has finished, including
// writers handed out by CreateAssetWriter/UpdateAssetWriter that have not
// been closed yet.
func (r *Repository) Wait() {
	r.wg.Wait()
}

// Close rejects new operations, waits for in-flight ones and closes the
// store.
func (r *Repository) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.wg.Wait()
	return r.store.Close()
}

// track registers one unit of in-flight work, unless the repository is
// closed.
func (r *Repository) track() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	r.wg.Add(1)
	return true
}

// ============================================================================
// Operation Pipeline
// ============================================================================

// call is the normalized context of one operation.
type call struct {
	op    string
	opts  Options
	start time.Time

	// deferred is set by operations that hand out a writer; the outcome is
	// observed when the writer finishes
	deferred bool
}

func (c *call) path() string {
	return c.opts.Path
}

func (c *call) fail(code ErrorCode) *Error {
	return newError(code, c.op, c.opts.Path)
}

// submit runs fn on its own goroutine and delivers its result to cb.
//
// When the result is dropped by the gate, dropped (if set) receives it so
// resources such as open readers can be released.
func submit[T any](ctx context.Context, r *Repository, op string, opts Options, cb Callback[T], dropped func(T), fn func(ctx context.Context, c *call) (T, error)) {
	c := &call{op: op, opts: opts.normalize(), start: time.Now()}

	if !r.track() {
		var zero T
		go deliver(r, c, cb, zero, &Error{Code: ErrCodeBackend, Op: op, Path: c.path(), Err: ErrClosed})
		return
	}

	go func() {
		defer r.wg.Done()

		logger.Debug("repository: %s %s [%s]", c.op, c.path(), c.opts.Correlation)

		var value T
		err := r.admit(ctx)
		if err == nil {
			value, err = fn(ctx, c)
		}
		if err != nil {
			err = backendError(c.op, c.path(), err)
		}

		if err != nil || !c.deferred {
			r.observe(c, err)
		}
		if !deliver(r, c, cb, value, err) && err == nil && dropped != nil {
			dropped(value)
		}
	}()
}

// admit waits for the rate limiter.
func (r *Repository) admit(ctx context.Context) error {
	waited, err := r.limiter.Admit(ctx)
	if err != nil {
		return err
	}
	if !r.limiter.Unlimited() {
		r.metrics.ObserveAdmission(waited)
	}
	return nil
}

func (r *Repository) observe(c *call, err error) {
	r.metrics.ObserveOperation(c.op, time.Since(c.start), err)

	if err == nil {
		return
	}
	var e *Error
	if errors.As(err, &e) && e.Code != ErrCodeBackend || errors.Is(err, context.Canceled) {
		logger.Debug("repository: %s %s [%s] failed: %v", c.op, c.path(), c.opts.Correlation, err)
		return
	}
	logger.Warn("repository: %s %s [%s] failed: %v", c.op, c.path(), c.opts.Correlation, err)
}

// deliver passes the result through the gate. It reports whether the
// callback was invoked (a nil callback counts as delivered).
func deliver[T any](r *Repository, c *call, cb Callback[T], value T, err error) bool {
	delivered := r.registry.Gate(c.opts.Subscriber, func() {
		if cb != nil {
			cb(value, err)
		}
	})
	if !delivered {
		r.metrics.RecordSuppressed(c.op)
		logger.Debug("repository: %s %s [%s] result dropped, subscriber %q gone",
			c.op, c.path(), c.opts.Correlation, c.opts.Subscriber)
	}
	return delivered
}

// emit delivers an event to the listeners through the gate.
func (r *Repository) emit(c *call, kind EventKind, info *store.Info, snap *progress.Snapshot) {
	if r.listeners.len() == 0 {
		return
	}
	r.registry.Gate(c.opts.Subscriber, func() {
		r.listeners.notify(Event{
			Kind:          kind,
			Path:          c.path(),
			Info:          info,
			Progress:      snap,
			CorrelationID: c.opts.Correlation,
		})
	})
}

// ============================================================================
// Preconditions
// ============================================================================

// getInfo fetches the info at path, reporting a missing node as
// PathNotFound.
func (r *Repository) getInfo(ctx context.Context, c *call, path string) (*store.Info, error) {
	info, err := r.store.GetInfo(ctx, path)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(ErrCodePathNotFound, c.op, path)
		}
		return nil, backendError(c.op, path, err)
	}
	return info, nil
}

// requireDirectory checks that the target exists and is a directory.
func (r *Repository) requireDirectory(ctx context.Context, c *call) (*store.Info, error) {
	info, err := r.getInfo(ctx, c, c.path())
	if err != nil {
		return nil, err
	}
	if !info.IsDirectory() {
		return nil, c.fail(ErrCodeNotADirectory)
	}
	return info, nil
}

// requireAsset checks that the target exists and is an asset.
func (r *Repository) requireAsset(ctx context.Context, c *call) (*store.Info, error) {
	info, err := r.getInfo(ctx, c, c.path())
	if err != nil {
		return nil, err
	}
	if !info.IsAsset() {
		return nil, c.fail(ErrCodeNotAnAsset)
	}
	return info, nil
}

// requireCreatable checks that the target is not the root, does not exist
// yet and has an existing directory as parent, which it returns.
func (r *Repository) requireCreatable(ctx context.Context, c *call) (*store.Info, error) {
	if pathutil.IsRoot(c.path()) {
		return nil, c.fail(ErrCodeRootOperationForbidden)
	}

	exists, err := r.store.Exists(ctx, c.path())
	if err != nil {
		return nil, backendError(c.op, c.path(), err)
	}
	if exists {
		return nil, c.fail(ErrCodePathAlreadyExists)
	}

	parentPath, ok := pathutil.ParentPath(c.path())
	if !ok {
		parentPath = pathutil.Separator()
	}
	parent, err := r.getInfo(ctx, c, parentPath)
	if err != nil {
		return nil, err
	}
	if !parent.IsDirectory() {
		return nil, newError(ErrCodeParentNotADirectory, c.op, parentPath)
	}
	return parent, nil
}

// refresh re-fetches the info of the target after a successful mutation.
func (r *Repository) refresh(ctx context.Context, c *call) (*store.Info, error) {
	info, err := r.store.GetInfo(ctx, c.path())
	if err != nil {
		return nil, backendError(c.op, c.path(), err)
	}
	return info, nil
}
