package repository

import (
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/marmos91/assetrepo/internal/ratelimiter"
	"github.com/marmos91/assetrepo/pkg/progress"
	"github.com/marmos91/assetrepo/pkg/store"
	"github.com/marmos91/assetrepo/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDirectory_ThenExists(t *testing.T) {
	repo := newTestRepository(t, memory.MemoryStoreConfig{})
	mkdir(t, repo, "/projects")

	tests := []string{"/docs", "/projects/alpha", "projects/beta", "/projects/with space"}
	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			created := mkdir(t, repo, path)
			assert.True(t, created.IsDirectory())

			assert.True(t, exists(t, repo, path))

			info, err := await(t, func(cb Callback[*store.Info]) {
				repo.GetInfo(context.Background(), Path(path), cb)
			})
			require.NoError(t, err)
			assert.Equal(t, store.NodeTypeDirectory, info.Type)
			assert.False(t, info.Created.IsZero())
		})
	}
}

func TestRootOperationsForbidden(t *testing.T) {
	repo := newTestRepository(t, memory.MemoryStoreConfig{})

	for _, path := range []string{"/", ""} {
		_, err := await(t, func(cb Callback[*store.Info]) {
			repo.CreateDirectory(context.Background(), Path(path), cb)
		})
		assert.ErrorIs(t, err, ErrRootOperationForbidden)

		_, err = await(t, func(cb Callback[*store.Info]) {
			repo.DeleteDirectory(context.Background(), Path(path), cb)
		})
		assert.ErrorIs(t, err, ErrRootOperationForbidden)

		_, err = await(t, func(cb Callback[*store.Info]) {
			repo.CreateAsset(context.Background(), Path(path), bytes.NewReader(nil), cb)
		})
		assert.ErrorIs(t, err, ErrRootOperationForbidden)
	}

	assert.True(t, exists(t, repo, "/"))
}

func TestCreateAsset_MissingParent(t *testing.T) {
	repo := newTestRepository(t, memory.MemoryStoreConfig{})

	_, err := await(t, func(cb Callback[*store.Info]) {
		repo.CreateAsset(context.Background(), Path("/missing/file.txt"), bytes.NewReader([]byte("x")), cb)
	})
	require.ErrorIs(t, err, ErrPathNotFound)

	var repoErr *Error
	require.ErrorAs(t, err, &repoErr)
	assert.Equal(t, "/missing", repoErr.Path)
	assert.Equal(t, "create_asset", repoErr.Op)

	assert.False(t, exists(t, repo, "/missing/file.txt"))
	assert.False(t, exists(t, repo, "/missing"))
}

func TestCreate_ParentIsAsset(t *testing.T) {
	repo := newTestRepository(t, memory.MemoryStoreConfig{})
	putAsset(t, repo, "/file.txt", []byte("x"))

	_, err := await(t, func(cb Callback[*store.Info]) {
		repo.CreateDirectory(context.Background(), Path("/file.txt/sub"), cb)
	})
	assert.ErrorIs(t, err, ErrParentNotADirectory)

	_, err = await(t, func(cb Callback[*store.Info]) {
		repo.CreateAsset(context.Background(), Path("/file.txt/child.txt"), bytes.NewReader(nil), cb)
	})
	assert.ErrorIs(t, err, ErrParentNotADirectory)
}

func TestPreconditions(t *testing.T) {
	repo := newTestRepository(t, memory.MemoryStoreConfig{})
	mkdir(t, repo, "/dir")
	putAsset(t, repo, "/dir/a.txt", []byte("hello"))

	ctx := context.Background()
	infoOp := func(run func(cb Callback[*store.Info])) error {
		_, err := await(t, run)
		return err
	}

	tests := []struct {
		name string
		err  error
		want *Error
	}{
		{
			name: "CreateDirectoryExisting",
			err:  infoOp(func(cb Callback[*store.Info]) { repo.CreateDirectory(ctx, Path("/dir"), cb) }),
			want: ErrPathAlreadyExists,
		},
		{
			name: "CreateAssetExisting",
			err: infoOp(func(cb Callback[*store.Info]) {
				repo.CreateAsset(ctx, Path("/dir/a.txt"), bytes.NewReader(nil), cb)
			}),
			want: ErrPathAlreadyExists,
		},
		{
			name: "DeleteDirectoryOnAsset",
			err:  infoOp(func(cb Callback[*store.Info]) { repo.DeleteDirectory(ctx, Path("/dir/a.txt"), cb) }),
			want: ErrNotADirectory,
		},
		{
			name: "DeleteDirectoryMissing",
			err:  infoOp(func(cb Callback[*store.Info]) { repo.DeleteDirectory(ctx, Path("/nope"), cb) }),
			want: ErrPathNotFound,
		},
		{
			name: "DeleteAssetOnDirectory",
			err:  infoOp(func(cb Callback[*store.Info]) { repo.DeleteAsset(ctx, Path("/dir"), cb) }),
			want: ErrNotAnAsset,
		},
		{
			name: "UpdateAssetMissing",
			err: infoOp(func(cb Callback[*store.Info]) {
				repo.UpdateAsset(ctx, Path("/dir/b.txt"), bytes.NewReader(nil), cb)
			}),
			want: ErrPathNotFound,
		},
		{
			name: "UpdateAssetInfoOnDirectory",
			err: infoOp(func(cb Callback[*store.Info]) {
				repo.UpdateAssetInfo(ctx, Path("/dir"), store.InfoPatch{}, cb)
			}),
			want: ErrNotAnAsset,
		},
		{
			name: "GetInfoMissing",
			err:  infoOp(func(cb Callback[*store.Info]) { repo.GetInfo(ctx, Path("/nope"), cb) }),
			want: ErrPathNotFound,
		},
	}

	_, listErr := await(t, func(cb Callback[[]*store.Info]) { repo.List(ctx, Path("/dir/a.txt"), cb) })
	tests = append(tests, struct {
		name string
		err  error
		want *Error
	}{name: "ListOnAsset", err: listErr, want: ErrNotADirectory})

	_, getErr := await(t, func(cb Callback[*AssetReader]) { repo.GetAsset(ctx, Path("/dir"), cb) })
	tests = append(tests, struct {
		name string
		err  error
		want *Error
	}{name: "GetAssetOnDirectory", err: getErr, want: ErrNotAnAsset})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.err)
			assert.ErrorIs(t, tt.err, tt.want)

			code, ok := CodeOf(tt.err)
			require.True(t, ok)
			assert.Equal(t, tt.want.Code, code)
		})
	}

	// Nothing was mutated by the failed operations
	assert.Equal(t, []byte("hello"), readAsset(t, repo, "/dir/a.txt"))
}

func TestAsset_RoundTrip(t *testing.T) {
	repo := newTestRepository(t, memory.MemoryStoreConfig{})

	created := putAsset(t, repo, "/notes.txt", []byte("first version"))
	assert.Equal(t, store.NodeTypeAsset, created.Type)
	assert.Equal(t, int64(13), created.Size)
	assert.Equal(t, []byte("first version"), readAsset(t, repo, "/notes.txt"))

	updated, err := await(t, func(cb Callback[*store.Info]) {
		repo.UpdateAsset(context.Background(), Path("/notes.txt"), bytes.NewReader([]byte("v2")), cb)
	})
	require.NoError(t, err)

	assert.Equal(t, []byte("v2"), readAsset(t, repo, "/notes.txt"))
	assert.Equal(t, int64(2), updated.Size)
	assert.True(t, updated.Modified.After(created.Modified), "modified must strictly increase")
	assert.True(t, updated.Created.Equal(created.Created), "created must not change")
}

func TestExampleScenario(t *testing.T) {
	repo := newTestRepository(t, memory.MemoryStoreConfig{})
	ctx := context.Background()

	mkdir(t, repo, "/a")
	putAsset(t, repo, "/a/b.txt", []byte("hi"))

	children, err := await(t, func(cb Callback[[]*store.Info]) { repo.List(ctx, Path("/a"), cb) })
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "b.txt", children[0].Name)
	assert.Equal(t, store.NodeTypeAsset, children[0].Type)
	assert.Equal(t, int64(2), children[0].Size)

	_, err = await(t, func(cb Callback[*store.Info]) { repo.DeleteAsset(ctx, Path("/a/b.txt"), cb) })
	require.NoError(t, err)
	assert.False(t, exists(t, repo, "/a/b.txt"))

	deleted, err := await(t, func(cb Callback[*store.Info]) { repo.DeleteDirectory(ctx, Path("/a"), cb) })
	require.NoError(t, err)
	assert.Equal(t, "/a", deleted.Path)
	assert.False(t, exists(t, repo, "/a"))
}

func TestDeleteDirectory_RemovesSubtree(t *testing.T) {
	repo := newTestRepository(t, memory.MemoryStoreConfig{})
	mkdir(t, repo, "/a")
	mkdir(t, repo, "/a/b")
	putAsset(t, repo, "/a/b/c.txt", []byte("c"))

	_, err := await(t, func(cb Callback[*store.Info]) {
		repo.DeleteDirectory(context.Background(), Path("/a"), cb)
	})
	require.NoError(t, err)

	assert.False(t, exists(t, repo, "/a/b/c.txt"))
	assert.False(t, exists(t, repo, "/a"))
}

func TestFindAssets(t *testing.T) {
	repo := newTestRepository(t, memory.MemoryStoreConfig{})
	mkdir(t, repo, "/photos")
	mkdir(t, repo, "/photos/report-dir")
	putAsset(t, repo, "/report.txt", []byte("r"))
	putAsset(t, repo, "/photos/img_1.png", []byte("1"))
	putAsset(t, repo, "/photos/img_2.png", []byte("2"))
	putAsset(t, repo, "/photos/report-dir/annual-report.pdf", []byte("p"))

	find := func(opts Options) []string {
		found, err := await(t, func(cb Callback[[]*store.Info]) {
			repo.FindAssets(context.Background(), opts, cb)
		})
		require.NoError(t, err)

		var paths []string
		for _, info := range found {
			assert.Equal(t, store.NodeTypeAsset, info.Type)
			paths = append(paths, info.Path)
		}
		return paths
	}

	t.Run("Literal", func(t *testing.T) {
		assert.Equal(t, []string{"/photos/report-dir/annual-report.pdf", "/report.txt"}, find(Search("report")))
	})

	t.Run("Regex", func(t *testing.T) {
		re := regexp.MustCompile(`^img_\d\.png$`)
		assert.Equal(t, []string{"/photos/img_1.png", "/photos/img_2.png"}, find(Regex(re)))
	})

	t.Run("Under", func(t *testing.T) {
		assert.Equal(t, []string{"/photos/report-dir/annual-report.pdf"}, find(Search("report").Under("/photos")))
	})

	t.Run("Limit", func(t *testing.T) {
		assert.Len(t, find(Search("").WithLimit(3)), 3)
	})

	t.Run("NoMatch", func(t *testing.T) {
		assert.Empty(t, find(Search("nothing-like-this")))
	})
}

func TestProgress_StartAndEnd(t *testing.T) {
	repo := newTestRepository(t, memory.MemoryStoreConfig{})
	events := &recorder{}
	repo.AddListener(events.listen)

	content := bytes.Repeat([]byte("x"), 100*1024)
	putAsset(t, repo, "/big.bin", content)

	snaps := events.ofKind(EventProgress)
	require.Len(t, snaps, 2, "frozen clock: only start and end are emitted")

	start, end := snaps[0], snaps[1]
	assert.Equal(t, progress.TransferCreate, start.Progress.Type)
	assert.Equal(t, int64(0), start.Progress.BytesRead)
	assert.Nil(t, start.Info, "a create has no info until it commits")

	assert.Equal(t, int64(len(content)), end.Progress.BytesRead)
	require.NotNil(t, end.Info)
	assert.Equal(t, int64(len(content)), end.Info.Size)

	created := events.ofKind(EventAssetCreated)
	require.Len(t, created, 1)
	assert.Equal(t, "/big.bin", created[0].Path)

	t.Run("Read", func(t *testing.T) {
		reads := &recorder{}
		remove := repo.AddListener(reads.listen)
		defer remove()

		assert.Equal(t, content, readAsset(t, repo, "/big.bin"))

		snaps := reads.ofKind(EventProgress)
		require.Len(t, snaps, 2)
		assert.Equal(t, progress.TransferRead, snaps[0].Progress.Type)
		assert.Equal(t, int64(0), snaps[0].Progress.BytesRead)
		assert.Equal(t, int64(len(content)), snaps[1].Progress.BytesRead)
		assert.Equal(t, "/big.bin", snaps[1].Info.Path)
	})
}

func TestUnsubscribe_SuppressesDelivery(t *testing.T) {
	repo := newTestRepository(t, memory.MemoryStoreConfig{Latency: 100 * time.Millisecond})
	events := &recorder{}
	repo.AddListener(events.listen)

	repo.Subscribe("ui")
	require.True(t, repo.IsSubscribed("ui"))

	var called atomic.Bool
	repo.CreateDirectory(context.Background(), Path("/late").WithSubscriber("ui"), func(*store.Info, error) {
		called.Store(true)
	})
	repo.Unsubscribe("ui")
	assert.False(t, repo.IsSubscribed("ui"))

	repo.Wait()

	assert.False(t, called.Load(), "callback must be suppressed")
	assert.Empty(t, events.all(), "events must be suppressed")

	// The work itself still completed
	assert.True(t, exists(t, repo, "/late"))
}

func TestSubscriber_DeliversWhileSubscribed(t *testing.T) {
	repo := newTestRepository(t, memory.MemoryStoreConfig{})
	repo.Subscribe("ui")

	info, err := await(t, func(cb Callback[*store.Info]) {
		repo.CreateDirectory(context.Background(), Path("/kept").WithSubscriber("ui"), cb)
	})
	require.NoError(t, err)
	assert.Equal(t, "/kept", info.Path)
}

func TestAssetWriter_Commit(t *testing.T) {
	repo := newTestRepository(t, memory.MemoryStoreConfig{})
	events := &recorder{}
	repo.AddListener(events.listen)

	finished := make(chan outcome[*store.Info], 1)
	w, err := await(t, func(cb Callback[*AssetWriter]) {
		repo.CreateAssetWriter(context.Background(), Path("/stream.txt"), cb, func(info *store.Info, err error) {
			finished <- outcome[*store.Info]{info, err}
		})
	})
	require.NoError(t, err)
	assert.Equal(t, "/stream.txt", w.Path())

	for _, chunk := range []string{"hello ", "streaming ", "world"} {
		_, err := w.Write([]byte(chunk))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	o := <-finished
	require.NoError(t, o.err)
	assert.Equal(t, int64(21), o.value.Size)
	assert.Equal(t, []byte("hello streaming world"), readAsset(t, repo, "/stream.txt"))

	// Second close is rejected and does not fire finished again
	assert.ErrorIs(t, w.Close(), store.ErrClosed)
	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, store.ErrClosed)
	assert.Empty(t, finished)

	kinds := []EventKind{}
	for _, ev := range events.all() {
		if ev.Path == "/stream.txt" && ev.Kind != EventProgress {
			kinds = append(kinds, ev.Kind)
		}
	}
	assert.Equal(t, []EventKind{EventAssetCreated}, kinds)
}

func TestAssetWriter_CloseWithError(t *testing.T) {
	repo := newTestRepository(t, memory.MemoryStoreConfig{})
	cause := errors.New("upload cancelled by user")

	finished := make(chan error, 1)
	w, err := await(t, func(cb Callback[*AssetWriter]) {
		repo.CreateAssetWriter(context.Background(), Path("/partial.bin"), cb, func(_ *store.Info, err error) {
			finished <- err
		})
	})
	require.NoError(t, err)

	_, err = w.Write([]byte("some bytes"))
	require.NoError(t, err)
	require.NoError(t, w.CloseWithError(cause))

	assert.ErrorIs(t, <-finished, cause)
	assert.False(t, exists(t, repo, "/partial.bin"))
}

func TestUpdateAssetWriter(t *testing.T) {
	repo := newTestRepository(t, memory.MemoryStoreConfig{})
	created := putAsset(t, repo, "/doc.txt", []byte("old"))

	finished := make(chan outcome[*store.Info], 1)
	w, err := await(t, func(cb Callback[*AssetWriter]) {
		repo.UpdateAssetWriter(context.Background(), Path("/doc.txt"), cb, func(info *store.Info, err error) {
			finished <- outcome[*store.Info]{info, err}
		})
	})
	require.NoError(t, err)

	_, err = io.Copy(w, bytes.NewReader([]byte("brand new content")))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	o := <-finished
	require.NoError(t, o.err)
	assert.True(t, o.value.Modified.After(created.Modified))
	assert.Equal(t, []byte("brand new content"), readAsset(t, repo, "/doc.txt"))
}

func TestAssetWriter_DroppedOpenAborts(t *testing.T) {
	repo := newTestRepository(t, memory.MemoryStoreConfig{})

	var opened, finished atomic.Bool
	repo.CreateAssetWriter(context.Background(), Path("/ghost.txt").WithSubscriber("gone"),
		func(*AssetWriter, error) { opened.Store(true) },
		func(*store.Info, error) { finished.Store(true) },
	)

	// Wait returns only once the dropped writer was discarded
	repo.Wait()

	assert.False(t, opened.Load())
	assert.False(t, finished.Load())
	assert.False(t, exists(t, repo, "/ghost.txt"))
}

func TestCreateAsset_SourceError(t *testing.T) {
	repo := newTestRepository(t, memory.MemoryStoreConfig{})
	cause := errors.New("disk unplugged")

	_, err := await(t, func(cb Callback[*store.Info]) {
		repo.CreateAsset(context.Background(), Path("/broken.bin"),
			&failingReader{data: []byte("partial"), err: cause}, cb)
	})
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrBackend)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeBackend, code)
	assert.False(t, exists(t, repo, "/broken.bin"))
}

func TestCreateAsset_StoreWriteFails(t *testing.T) {
	cause := errors.New("volume full")

	tests := []struct {
		name  string
		store *failingStore
	}{
		{name: "Write", store: &failingStore{writeErr: cause}},
		{name: "Close", store: &failingStore{closeErr: cause}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.store.Store = memory.NewMemoryStore(memory.MemoryStoreConfig{})
			repo := New(tt.store, Config{Clock: clock.NewMock()})
			t.Cleanup(func() { _ = repo.Close() })
			events := &recorder{}
			repo.AddListener(events.listen)

			_, err := await(t, func(cb Callback[*store.Info]) {
				repo.CreateAsset(context.Background(), Path("/full.bin"), bytes.NewReader([]byte("payload")), cb)
			})
			assert.ErrorIs(t, err, cause)
			code, ok := CodeOf(err)
			require.True(t, ok)
			assert.Equal(t, ErrCodeBackend, code)

			// Only the start snapshot; a failed transfer reports no total
			snaps := events.ofKind(EventProgress)
			require.Len(t, snaps, 1)
			assert.Zero(t, snaps[0].Progress.BytesRead)
			assert.Empty(t, events.ofKind(EventAssetCreated))
			assert.False(t, exists(t, repo, "/full.bin"))
		})
	}
}

func TestAssetWriter_StoreWriteFails(t *testing.T) {
	cause := errors.New("volume full")

	tests := []struct {
		name  string
		store *failingStore
	}{
		{name: "Write", store: &failingStore{writeErr: cause}},
		{name: "Close", store: &failingStore{closeErr: cause}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.store.Store = memory.NewMemoryStore(memory.MemoryStoreConfig{})
			repo := New(tt.store, Config{Clock: clock.NewMock()})
			t.Cleanup(func() { _ = repo.Close() })
			events := &recorder{}
			repo.AddListener(events.listen)

			finished := make(chan error, 1)
			w, err := await(t, func(cb Callback[*AssetWriter]) {
				repo.CreateAssetWriter(context.Background(), Path("/full.bin"), cb, func(_ *store.Info, err error) {
					finished <- err
				})
			})
			require.NoError(t, err)

			_, writeErr := w.Write([]byte("payload"))
			closeErr := w.Close()
			if tt.store.writeErr != nil {
				assert.ErrorIs(t, writeErr, ErrBackend)
			} else {
				assert.NoError(t, writeErr)
			}
			assert.ErrorIs(t, closeErr, cause)
			assert.ErrorIs(t, closeErr, ErrBackend)

			err = <-finished
			assert.ErrorIs(t, err, cause)
			assert.ErrorIs(t, err, ErrBackend)

			snaps := events.ofKind(EventProgress)
			require.Len(t, snaps, 1)
			assert.Zero(t, snaps[0].Progress.BytesRead)
			assert.Empty(t, events.ofKind(EventAssetCreated))
			assert.False(t, exists(t, repo, "/full.bin"))
		})
	}
}

func TestUpdateAssetInfo(t *testing.T) {
	repo := newTestRepository(t, memory.MemoryStoreConfig{})
	putAsset(t, repo, "/design.psd", []byte("layers"))
	events := &recorder{}
	repo.AddListener(events.listen)

	checkedOut := true
	who := "alice"
	info, err := await(t, func(cb Callback[*store.Info]) {
		repo.UpdateAssetInfo(context.Background(), Path("/design.psd"),
			store.InfoPatch{CheckedOut: &checkedOut, CheckedOutBy: &who}, cb)
	})
	require.NoError(t, err)
	assert.True(t, info.CheckedOut)
	assert.Equal(t, "alice", info.CheckedOutBy)
	require.Len(t, events.ofKind(EventAssetInfoUpdated), 1)

	// Checked-out is metadata only; content can still be replaced
	updated, err := await(t, func(cb Callback[*store.Info]) {
		repo.UpdateAsset(context.Background(), Path("/design.psd"), bytes.NewReader([]byte("more layers")), cb)
	})
	require.NoError(t, err)
	assert.True(t, updated.CheckedOut)

	// An empty patch changes nothing and emits nothing
	_, err = await(t, func(cb Callback[*store.Info]) {
		repo.UpdateAssetInfo(context.Background(), Path("/design.psd"), store.InfoPatch{}, cb)
	})
	require.NoError(t, err)
	assert.Len(t, events.ofKind(EventAssetInfoUpdated), 1)
}

func TestRenditions(t *testing.T) {
	repo := newTestRepository(t, memory.MemoryStoreConfig{PreviewBytes: 4})
	png := []byte("\x89PNG\r\n\x1a\nfake-image")
	putAsset(t, repo, "/logo.png", png)
	putAsset(t, repo, "/readme.txt", []byte("abcdefgh"))
	putAsset(t, repo, "/blob.bin", []byte{0, 1, 2})

	thumb, err := await(t, func(cb Callback[*Rendition]) {
		repo.GetAssetThumbnail(context.Background(), Path("/logo.png"), cb)
	})
	require.NoError(t, err)
	data, err := io.ReadAll(thumb)
	require.NoError(t, err)
	require.NoError(t, thumb.Close())
	assert.Equal(t, png, data)
	assert.Equal(t, "image/png", thumb.ContentType)
	assert.Equal(t, "/logo.png", thumb.Info.Path)

	preview, err := await(t, func(cb Callback[*Rendition]) {
		repo.GetAssetPreview(context.Background(), Path("/readme.txt"), cb)
	})
	require.NoError(t, err)
	data, err = io.ReadAll(preview)
	require.NoError(t, err)
	require.NoError(t, preview.Close())
	assert.Equal(t, []byte("abcd"), data)

	_, err = await(t, func(cb Callback[*Rendition]) {
		repo.GetAssetThumbnail(context.Background(), Path("/blob.bin"), cb)
	})
	assert.ErrorIs(t, err, ErrBackend)
	assert.ErrorIs(t, err, store.ErrNotSupported)
}

func TestListeners_OrderAndRemoval(t *testing.T) {
	repo := newTestRepository(t, memory.MemoryStoreConfig{})

	var mu sync.Mutex
	var calls []string
	listener := func(name string) Listener {
		return func(ev Event) {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, name+":"+string(ev.Kind))
		}
	}

	repo.AddListener(listener("first"))
	removeSecond := repo.AddListener(listener("second"))
	repo.AddListener(listener("third"))

	mkdir(t, repo, "/one")
	removeSecond()
	removeSecond()
	mkdir(t, repo, "/two")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"first:directory.created",
		"second:directory.created",
		"third:directory.created",
		"first:directory.created",
		"third:directory.created",
	}, calls)
}

func TestEvents_CorrelationID(t *testing.T) {
	repo := newTestRepository(t, memory.MemoryStoreConfig{})
	events := &recorder{}
	repo.AddListener(events.listen)

	mkdir(t, repo, "/auto")
	_, err := await(t, func(cb Callback[*store.Info]) {
		repo.CreateDirectory(context.Background(), Path("/tagged").WithCorrelation("req-7"), cb)
	})
	require.NoError(t, err)

	all := events.all()
	require.Len(t, all, 2)
	assert.NotEmpty(t, all[0].CorrelationID)
	assert.Equal(t, "req-7", all[1].CorrelationID)
}

func TestRateLimit_ContextCancelled(t *testing.T) {
	repo := New(memory.NewMemoryStore(memory.MemoryStoreConfig{}), Config{
		Limiter: ratelimiter.New(1, 1),
	})
	t.Cleanup(func() { _ = repo.Close() })

	// Takes the only token
	assert.True(t, exists(t, repo, "/"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := await(t, func(cb Callback[bool]) { repo.Exists(ctx, Path("/"), cb) })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrBackend)
}

func TestClose(t *testing.T) {
	repo := New(memory.NewMemoryStore(memory.MemoryStoreConfig{Latency: 20 * time.Millisecond}), Config{})

	var done atomic.Bool
	repo.CreateDirectory(context.Background(), Path("/pending"), func(_ *store.Info, err error) {
		done.Store(err == nil)
	})

	require.NoError(t, repo.Close())
	assert.True(t, done.Load(), "close waits for in-flight operations")
	require.NoError(t, repo.Close())

	_, err := await(t, func(cb Callback[bool]) { repo.Exists(context.Background(), Path("/"), cb) })
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, err, ErrBackend)
}

func TestMetrics(t *testing.T) {
	m := &recordingMetrics{}
	repo := New(memory.NewMemoryStore(memory.MemoryStoreConfig{}), Config{Metrics: m})
	t.Cleanup(func() { _ = repo.Close() })

	repo.Subscribe("ui")
	mkdir(t, repo, "/m")
	putAsset(t, repo, "/m/a.txt", []byte("12345"))
	_, err := await(t, func(cb Callback[*store.Info]) { repo.GetInfo(context.Background(), Path("/nope"), cb) })
	require.Error(t, err)

	repo.Exists(context.Background(), Path("/").WithSubscriber("nobody"), nil)
	repo.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 1, m.subscribers)
	assert.Equal(t, 1, m.ops["create_directory"])
	assert.Equal(t, 1, m.ops["create_asset"])
	assert.Equal(t, 1, m.failed["get_info"])
	assert.Equal(t, int64(5), m.bytes[progress.TransferCreate])
	assert.Equal(t, 1, m.suppressed["exists"])
}

type recordingMetrics struct {
	mu          sync.Mutex
	ops         map[string]int
	failed      map[string]int
	suppressed  map[string]int
	bytes       map[progress.TransferType]int64
	subscribers int
}

func (m *recordingMetrics) init() {
	if m.ops == nil {
		m.ops = map[string]int{}
		m.failed = map[string]int{}
		m.suppressed = map[string]int{}
		m.bytes = map[progress.TransferType]int64{}
	}
}

func (m *recordingMetrics) ObserveOperation(op string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	m.ops[op]++
	if err != nil {
		m.failed[op]++
	}
}

func (m *recordingMetrics) ObserveAdmission(time.Duration) {}

func (m *recordingMetrics) RecordTransfer(typ progress.TransferType, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	m.bytes[typ] += n
}

func (m *recordingMetrics) RecordSuppressed(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	m.suppressed[op]++
}

func (m *recordingMetrics) SetSubscribers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = n
}
