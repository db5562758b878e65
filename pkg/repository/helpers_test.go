package repository

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/marmos91/assetrepo/pkg/store"
	"github.com/marmos91/assetrepo/pkg/store/memory"
	"github.com/stretchr/testify/require"
)

const callbackTimeout = 5 * time.Second

type outcome[T any] struct {
	value T
	err   error
}

// await runs an operation and blocks until its callback fires.
func await[T any](t *testing.T, run func(cb Callback[T])) (T, error) {
	t.Helper()

	ch := make(chan outcome[T], 1)
	run(func(v T, err error) { ch <- outcome[T]{v, err} })

	select {
	case o := <-ch:
		return o.value, o.err
	case <-time.After(callbackTimeout):
		t.Fatal("callback was not invoked")
		var zero T
		return zero, nil
	}
}

// newTestRepository returns a repository over a memory store with a
// frozen throttle clock, so only start and end progress snapshots emit.
func newTestRepository(t *testing.T, cfg memory.MemoryStoreConfig) *Repository {
	t.Helper()

	repo := New(memory.NewMemoryStore(cfg), Config{Clock: clock.NewMock()})
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func mkdir(t *testing.T, repo *Repository, path string) *store.Info {
	t.Helper()
	info, err := await(t, func(cb Callback[*store.Info]) {
		repo.CreateDirectory(context.Background(), Path(path), cb)
	})
	require.NoError(t, err)
	return info
}

func putAsset(t *testing.T, repo *Repository, path string, content []byte) *store.Info {
	t.Helper()
	info, err := await(t, func(cb Callback[*store.Info]) {
		repo.CreateAsset(context.Background(), Path(path), bytes.NewReader(content), cb)
	})
	require.NoError(t, err)
	return info
}

func readAsset(t *testing.T, repo *Repository, path string) []byte {
	t.Helper()
	reader, err := await(t, func(cb Callback[*AssetReader]) {
		repo.GetAsset(context.Background(), Path(path), cb)
	})
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	return data
}

func exists(t *testing.T, repo *Repository, path string) bool {
	t.Helper()
	ok, err := await(t, func(cb Callback[bool]) {
		repo.Exists(context.Background(), Path(path), cb)
	})
	require.NoError(t, err)
	return ok
}

// recorder collects events in arrival order.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) ofKind(kind EventKind) []Event {
	var out []Event
	for _, ev := range r.all() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// failingReader yields data and then fails.
type failingReader struct {
	data []byte
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, f.err
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

// failingStore wraps a store so its write targets fail on Write or Close.
type failingStore struct {
	store.Store
	writeErr error
	closeErr error
}

func (s *failingStore) OpenAssetWrite(ctx context.Context, path string, create bool, info *store.Info) (store.AssetWriter, error) {
	w, err := s.Store.OpenAssetWrite(ctx, path, create, info)
	if err != nil {
		return nil, err
	}
	return &failingWriter{AssetWriter: w, writeErr: s.writeErr, closeErr: s.closeErr}, nil
}

type failingWriter struct {
	store.AssetWriter
	writeErr error
	closeErr error
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.writeErr != nil {
		return 0, w.writeErr
	}
	return w.AssetWriter.Write(p)
}

// Close fails after discarding the content, the way a failed upload leaves
// nothing behind.
func (w *failingWriter) Close() error {
	if w.closeErr != nil {
		_ = w.AssetWriter.Abort(w.closeErr)
		return w.closeErr
	}
	return w.AssetWriter.Close()
}
