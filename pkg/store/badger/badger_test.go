package badger

import (
	"bytes"
	"context"
	"io"
	"testing"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/assetrepo/pkg/store"
	storetesting "github.com/marmos91/assetrepo/pkg/store/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBadgerStore runs the complete Store contract suite against an
// in-memory BadgerDB.
func TestBadgerStore(t *testing.T) {
	suite := &storetesting.StoreTestSuite{
		NewStore: func(t *testing.T) store.Store {
			s, err := NewBadgerStore(context.Background(), BadgerStoreConfig{InMemory: true})
			require.NoError(t, err)
			return s
		},
	}

	suite.Run(t)
}

func TestBadgerStore_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewBadgerStore(ctx, BadgerStoreConfig{DBPath: dir})
	require.NoError(t, err)

	storetesting.MustCreateDirectory(t, s, "/", "/docs")
	storetesting.MustCreateAsset(t, s, "/docs", "/docs/readme.md", []byte("# hello"))
	before := storetesting.MustGetInfo(t, s, "/docs/readme.md")
	require.NoError(t, s.Close())

	reopened, err := NewBadgerStore(ctx, BadgerStoreConfig{DBPath: dir})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	after := storetesting.MustGetInfo(t, reopened, "/docs/readme.md")
	assert.True(t, before.Created.Equal(after.Created))
	assert.Equal(t, before.Size, after.Size)
	assert.Equal(t, []byte("# hello"), storetesting.MustReadAsset(t, reopened, "/docs/readme.md"))
}

func TestBadgerStore_RequiresPath(t *testing.T) {
	_, err := NewBadgerStore(context.Background(), BadgerStoreConfig{})
	assert.Error(t, err)
}

func TestBadgerStore_DeleteDirectoryKeepsSiblingPrefix(t *testing.T) {
	s, err := NewBadgerStore(context.Background(), BadgerStoreConfig{InMemory: true})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	storetesting.MustCreateDirectory(t, s, "/", "/a")
	storetesting.MustCreateDirectory(t, s, "/", "/ab")
	storetesting.MustCreateAsset(t, s, "/ab", "/ab/x.txt", []byte("x"))

	dir := storetesting.MustGetInfo(t, s, "/a")
	require.NoError(t, s.DeleteDirectory(context.Background(), "/a", dir))

	exists, err := s.Exists(context.Background(), "/ab/x.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	root := storetesting.MustGetInfo(t, s, "/")
	infos, err := s.List(context.Background(), "/", root)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "ab", infos[0].Name)
}

func TestBadgerStore_ClosedStore(t *testing.T) {
	s, err := NewBadgerStore(context.Background(), BadgerStoreConfig{InMemory: true})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Healthcheck(context.Background()), store.ErrClosed)
}

func newInMemoryStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := NewBadgerStore(context.Background(), BadgerStoreConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// countKeys counts the keys under prefix.
func countKeys(t *testing.T, s *BadgerStore, prefix []byte) int {
	t.Helper()
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	require.NoError(t, err)
	return count
}

func TestBadgerStore_ChunkedContent(t *testing.T) {
	s := newInMemoryStore(t)

	data := bytes.Repeat([]byte{0xab}, 3*contentChunkSize+10)
	storetesting.MustCreateAsset(t, s, "/", "/big.bin", data)
	assert.Equal(t, 4, countKeys(t, s, keyContentPrefix("/big.bin")))
	assert.Equal(t, data, storetesting.MustReadAsset(t, s, "/big.bin"))

	storetesting.MustUpdateAsset(t, s, "/big.bin", []byte("small"))
	assert.Equal(t, 1, countKeys(t, s, keyContentPrefix("/big.bin")), "previous revision dropped")

	asset := storetesting.MustGetInfo(t, s, "/big.bin")
	require.NoError(t, s.DeleteAsset(context.Background(), "/big.bin", asset))
	assert.Zero(t, countKeys(t, s, []byte(prefixContent)))
}

func TestBadgerStore_AbortDropsChunks(t *testing.T) {
	s := newInMemoryStore(t)
	root := storetesting.MustGetInfo(t, s, "/")

	w, err := s.OpenAssetWrite(context.Background(), "/partial.bin", true, root)
	require.NoError(t, err)
	_, err = w.Write(make([]byte, 2*contentChunkSize+1))
	require.NoError(t, err)
	require.NoError(t, w.Abort(io.ErrUnexpectedEOF))

	assert.Zero(t, countKeys(t, s, []byte(prefixContent)))
	exists, err := s.Exists(context.Background(), "/partial.bin")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBadgerStore_ReaderKeepsItsRevision(t *testing.T) {
	s := newInMemoryStore(t)

	v1 := bytes.Repeat([]byte("1"), 2*contentChunkSize)
	storetesting.MustCreateAsset(t, s, "/", "/doc.bin", v1)

	asset := storetesting.MustGetInfo(t, s, "/doc.bin")
	r, err := s.GetAssetContent(context.Background(), "/doc.bin", asset)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	storetesting.MustUpdateAsset(t, s, "/doc.bin", []byte("2"))

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, v1, got, "an open reader sees the revision it started on")
	assert.Equal(t, []byte("2"), storetesting.MustReadAsset(t, s, "/doc.bin"))
}

func TestBadgerStore_DeleteDirectoryDropsChunks(t *testing.T) {
	s := newInMemoryStore(t)

	storetesting.MustCreateDirectory(t, s, "/", "/media")
	storetesting.MustCreateAsset(t, s, "/media", "/media/a.bin", make([]byte, contentChunkSize+1))
	storetesting.MustCreateAsset(t, s, "/", "/media.bin", []byte("sibling"))

	dir := storetesting.MustGetInfo(t, s, "/media")
	require.NoError(t, s.DeleteDirectory(context.Background(), "/media", dir))

	assert.Zero(t, countKeys(t, s, keyContentPrefix("/media/a.bin")))
	assert.Equal(t, []byte("sibling"), storetesting.MustReadAsset(t, s, "/media.bin"))
}
