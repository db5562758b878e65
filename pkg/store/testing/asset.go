package testing

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/marmos91/assetrepo/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunAssetTests executes the asset contract tests.
func (suite *StoreTestSuite) RunAssetTests(t *testing.T) {
	t.Run("Create_RoundTrip", suite.testCreateRoundTrip)
	t.Run("Create_Empty", suite.testCreateEmpty)
	t.Run("Create_Large", suite.testCreateLarge)
	t.Run("Create_AlreadyExists", suite.testCreateAlreadyExists)
	t.Run("Create_Abort", suite.testCreateAbort)
	t.Run("Update_ReplacesContent", suite.testUpdateReplacesContent)
	t.Run("Update_Abort", suite.testUpdateAbort)
	t.Run("Update_LargeToSmall", suite.testUpdateLargeToSmall)
	t.Run("Update_AbortLarge", suite.testUpdateAbortLarge)
	t.Run("Writer_DoubleClose", suite.testWriterDoubleClose)
	t.Run("Info_Fields", suite.testAssetInfoFields)
	t.Run("UpdateInfo", suite.testUpdateAssetInfo)
	t.Run("Delete", suite.testDeleteAsset)
	t.Run("Thumbnail", suite.testThumbnail)
	t.Run("Preview", suite.testPreview)
}

func (suite *StoreTestSuite) testCreateRoundTrip(t *testing.T) {
	s := suite.newStore(t)

	data := []byte("Hello, World!")
	MustCreateAsset(t, s, "/", "/hello.txt", data)

	assert.Equal(t, data, MustReadAsset(t, s, "/hello.txt"))
}

func (suite *StoreTestSuite) testCreateEmpty(t *testing.T) {
	s := suite.newStore(t)

	MustCreateAsset(t, s, "/", "/empty.bin", nil)

	info := MustGetInfo(t, s, "/empty.bin")
	assert.True(t, info.IsAsset())
	assert.Equal(t, int64(0), info.Size)
	assert.Empty(t, MustReadAsset(t, s, "/empty.bin"))
}

func (suite *StoreTestSuite) testCreateLarge(t *testing.T) {
	s := suite.newStore(t)

	// Several MB, written in small pieces, so backends that split content
	// into chunks or parts cross their boundaries
	data := largePayload(6 << 20)
	root := MustGetInfo(t, s, "/")
	require.NoError(t, writeInPieces(s, "/large.bin", true, root, data, 64<<10))

	assert.Equal(t, int64(len(data)), MustGetInfo(t, s, "/large.bin").Size)
	assert.Equal(t, data, MustReadAsset(t, s, "/large.bin"))
}

func (suite *StoreTestSuite) testCreateAlreadyExists(t *testing.T) {
	s := suite.newStore(t)

	MustCreateAsset(t, s, "/", "/a.txt", []byte("first"))
	root := MustGetInfo(t, s, "/")

	err := writeAsset(s, "/a.txt", true, root, []byte("second"))
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
	assert.Equal(t, []byte("first"), MustReadAsset(t, s, "/a.txt"))
}

func (suite *StoreTestSuite) testCreateAbort(t *testing.T) {
	s := suite.newStore(t)
	root := MustGetInfo(t, s, "/")

	w, err := s.OpenAssetWrite(testContext(), "/partial.bin", true, root)
	require.NoError(t, err)
	_, err = w.Write([]byte("half"))
	require.NoError(t, err)
	require.NoError(t, w.Abort(errors.New("source failed")))

	exists, err := s.Exists(testContext(), "/partial.bin")
	require.NoError(t, err)
	assert.False(t, exists, "aborted create must not leave an asset behind")
}

func (suite *StoreTestSuite) testUpdateReplacesContent(t *testing.T) {
	s := suite.newStore(t)

	MustCreateAsset(t, s, "/", "/doc.txt", []byte("v1"))
	before := MustGetInfo(t, s, "/doc.txt")

	MustUpdateAsset(t, s, "/doc.txt", []byte("version two"))
	after := MustGetInfo(t, s, "/doc.txt")

	assert.Equal(t, []byte("version two"), MustReadAsset(t, s, "/doc.txt"))
	assert.Equal(t, int64(len("version two")), after.Size)
	assert.True(t, after.Modified.After(before.Modified), "modified must strictly increase")
	assert.True(t, after.Created.Equal(before.Created), "created is immutable")
}

func (suite *StoreTestSuite) testUpdateAbort(t *testing.T) {
	s := suite.newStore(t)

	MustCreateAsset(t, s, "/", "/keep.txt", []byte("original"))
	asset := MustGetInfo(t, s, "/keep.txt")

	w, err := s.OpenAssetWrite(testContext(), "/keep.txt", false, asset)
	require.NoError(t, err)
	_, err = w.Write([]byte("garbage"))
	require.NoError(t, err)
	require.NoError(t, w.Abort(io.ErrUnexpectedEOF))

	assert.Equal(t, []byte("original"), MustReadAsset(t, s, "/keep.txt"))
}

func (suite *StoreTestSuite) testUpdateLargeToSmall(t *testing.T) {
	s := suite.newStore(t)

	MustCreateAsset(t, s, "/", "/video.bin", largePayload(3<<20))
	MustUpdateAsset(t, s, "/video.bin", []byte("tiny"))

	assert.Equal(t, []byte("tiny"), MustReadAsset(t, s, "/video.bin"))
	assert.Equal(t, int64(4), MustGetInfo(t, s, "/video.bin").Size)

	MustUpdateAsset(t, s, "/video.bin", largePayload(2<<20))
	assert.Equal(t, largePayload(2<<20), MustReadAsset(t, s, "/video.bin"))
}

func (suite *StoreTestSuite) testUpdateAbortLarge(t *testing.T) {
	s := suite.newStore(t)

	MustCreateAsset(t, s, "/", "/keep.bin", []byte("original"))
	asset := MustGetInfo(t, s, "/keep.bin")

	w, err := s.OpenAssetWrite(testContext(), "/keep.bin", false, asset)
	require.NoError(t, err)
	_, err = w.Write(largePayload(6 << 20))
	require.NoError(t, err)
	require.NoError(t, w.Abort(io.ErrUnexpectedEOF))

	assert.Equal(t, []byte("original"), MustReadAsset(t, s, "/keep.bin"))
	assert.Equal(t, int64(len("original")), MustGetInfo(t, s, "/keep.bin").Size)
}

func (suite *StoreTestSuite) testWriterDoubleClose(t *testing.T) {
	s := suite.newStore(t)
	root := MustGetInfo(t, s, "/")

	w, err := s.OpenAssetWrite(testContext(), "/once.txt", true, root)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.ErrorIs(t, w.Close(), store.ErrClosed)
	assert.ErrorIs(t, w.Abort(nil), store.ErrClosed)
}

func (suite *StoreTestSuite) testAssetInfoFields(t *testing.T) {
	s := suite.newStore(t)

	start := time.Now().Add(-time.Minute)
	MustCreateDirectory(t, s, "/", "/img")
	MustCreateAsset(t, s, "/img", "/img/logo.png", []byte("not really a png"))

	info := MustGetInfo(t, s, "/img/logo.png")
	assert.Equal(t, "logo.png", info.Name)
	assert.Equal(t, "/img/logo.png", info.Path)
	assert.Equal(t, store.NodeTypeAsset, info.Type)
	assert.Equal(t, "image/png", info.ContentType)
	assert.Equal(t, int64(16), info.Size)
	assert.True(t, info.Created.After(start))
	assert.False(t, info.Modified.Before(info.Created))
	assert.False(t, info.CheckedOut)
	assert.Empty(t, info.CheckedOutBy)
}

func (suite *StoreTestSuite) testUpdateAssetInfo(t *testing.T) {
	s := suite.newStore(t)

	MustCreateAsset(t, s, "/", "/lock.txt", []byte("content"))
	asset := MustGetInfo(t, s, "/lock.txt")

	out := true
	who := "alice"
	require.NoError(t, s.UpdateAssetInfo(testContext(), "/lock.txt", asset, store.InfoPatch{CheckedOut: &out, CheckedOutBy: &who}))

	info := MustGetInfo(t, s, "/lock.txt")
	assert.True(t, info.CheckedOut)
	assert.Equal(t, "alice", info.CheckedOutBy)
	assert.Equal(t, []byte("content"), MustReadAsset(t, s, "/lock.txt"), "metadata update keeps content")

	// Partial patch touches only the selected field
	in := false
	require.NoError(t, s.UpdateAssetInfo(testContext(), "/lock.txt", info, store.InfoPatch{CheckedOut: &in}))
	info = MustGetInfo(t, s, "/lock.txt")
	assert.False(t, info.CheckedOut)
	assert.Equal(t, "alice", info.CheckedOutBy)

	// Checked-out assets can still be written
	require.NoError(t, s.UpdateAssetInfo(testContext(), "/lock.txt", info, store.InfoPatch{CheckedOut: &out}))
	MustUpdateAsset(t, s, "/lock.txt", []byte("changed"))
	info = MustGetInfo(t, s, "/lock.txt")
	assert.True(t, info.CheckedOut, "content update keeps metadata")
	assert.Equal(t, []byte("changed"), MustReadAsset(t, s, "/lock.txt"))
}

func (suite *StoreTestSuite) testDeleteAsset(t *testing.T) {
	s := suite.newStore(t)

	MustCreateDirectory(t, s, "/", "/a")
	MustCreateAsset(t, s, "/a", "/a/b.txt", []byte("hi"))
	asset := MustGetInfo(t, s, "/a/b.txt")

	require.NoError(t, s.DeleteAsset(testContext(), "/a/b.txt", asset))

	exists, err := s.Exists(testContext(), "/a/b.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	dir := MustGetInfo(t, s, "/a")
	infos, err := s.List(testContext(), "/a", dir)
	require.NoError(t, err)
	assert.Empty(t, infos)

	err = s.DeleteAsset(testContext(), "/a/b.txt", asset)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func (suite *StoreTestSuite) testThumbnail(t *testing.T) {
	s := suite.newStore(t)

	img := []byte("\x89PNG\r\n\x1a\nfake image body")
	MustCreateAsset(t, s, "/", "/pic.png", img)
	MustCreateAsset(t, s, "/", "/notes.txt", []byte("text"))

	info := MustGetInfo(t, s, "/pic.png")
	r, contentType, err := s.GetAssetThumbnail(testContext(), "/pic.png", info)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)
	assert.Equal(t, img, data)

	text := MustGetInfo(t, s, "/notes.txt")
	_, _, err = s.GetAssetThumbnail(testContext(), "/notes.txt", text)
	assert.ErrorIs(t, err, store.ErrNotSupported)
}

func (suite *StoreTestSuite) testPreview(t *testing.T) {
	s := suite.newStore(t)

	long := bytes.Repeat([]byte("a"), store.DefaultPreviewBytes+100)
	MustCreateAsset(t, s, "/", "/long.txt", long)
	MustCreateAsset(t, s, "/", "/blob.bin", []byte{0, 1, 2, 3})

	info := MustGetInfo(t, s, "/long.txt")
	r, contentType, err := s.GetAssetPreview(testContext(), "/long.txt", info)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "text/plain; charset=utf-8", contentType)
	assert.Len(t, data, store.DefaultPreviewBytes)

	blob := MustGetInfo(t, s, "/blob.bin")
	_, _, err = s.GetAssetPreview(testContext(), "/blob.bin", blob)
	assert.ErrorIs(t, err, store.ErrNotSupported)
}
