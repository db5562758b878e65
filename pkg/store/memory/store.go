// Package memory implements an in-memory asset store.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/marmos91/assetrepo/internal/logger"
	"github.com/marmos91/assetrepo/pkg/pathutil"
	"github.com/marmos91/assetrepo/pkg/store"
)

// MemoryStore implements store.Store on an in-memory tree.
//
// This is the reference backend. It is suitable for:
//   - Testing and development environments
//   - Ephemeral repositories where persistence is not required
//   - Simulating slow backends (see Latency) to exercise callback timing
//
// Thread Safety:
// All tree access is protected by a single read-write mutex (mu). Queries
// take the read lock, structural changes and commits take the write lock.
// The coarse lock serializes concurrent creates and deletes under the same
// parent, which is the only ordering the tree needs.
//
// Ownership:
// Each directory node exclusively owns its children map. Nodes have no
// back-pointers; parents are found by walking down from the root.
//
// Content slices are never mutated in place: a commit swaps in a new slice,
// so open readers keep seeing the revision they started with.
type MemoryStore struct {
	// mu protects root and everything reachable from it
	mu   sync.RWMutex
	root *node

	clock clock.Clock

	// latency delays every operation to simulate a remote backend.
	// The delay is taken outside mu and aborts on context cancellation.
	latency time.Duration

	previewBytes int

	closed bool
}

// MemoryStoreConfig contains configuration for the in-memory store.
type MemoryStoreConfig struct {
	// Latency is an artificial delay applied before every operation
	// 0 disables it
	Latency time.Duration `mapstructure:"latency"`

	// PreviewBytes bounds text previews (default: store.DefaultPreviewBytes)
	PreviewBytes int `mapstructure:"preview_bytes"`

	// Clock overrides the time source (tests)
	Clock clock.Clock `mapstructure:"-"`
}

// NewMemoryStore creates an empty store holding only the root directory.
func NewMemoryStore(config MemoryStoreConfig) *MemoryStore {
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}

	previewBytes := config.PreviewBytes
	if previewBytes <= 0 {
		previewBytes = store.DefaultPreviewBytes
	}

	return &MemoryStore{
		root:         newDirectory("", clk.Now()),
		clock:        clk,
		latency:      config.Latency,
		previewBytes: previewBytes,
	}
}

// Healthcheck verifies the store is usable.
//
// Nothing can be unhealthy in memory, so this only reports a closed store or
// a cancelled context.
func (s *MemoryStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	return nil
}

// Close drops the tree. The store must not be used afterwards.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.root = newDirectory("", s.clock.Now())
	return nil
}

// simulateLatency waits for the configured latency without holding any lock.
func (s *MemoryStore) simulateLatency(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}

	timer := s.clock.Timer(s.latency)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// begin runs the preamble shared by every operation.
func (s *MemoryStore) begin(ctx context.Context, op, path string) error {
	logger.Debug("memory store: %s %s", op, path)
	return s.simulateLatency(ctx)
}

// segments splits a path into its names below the root.
func segments(path string) []string {
	p := pathutil.Normalize(path)
	if pathutil.IsRoot(p) {
		return nil
	}
	return strings.Split(strings.TrimPrefix(p, pathutil.Separator()), pathutil.Separator())
}
