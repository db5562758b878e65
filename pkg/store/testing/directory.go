package testing

import (
	"testing"

	"github.com/marmos91/assetrepo/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunDirectoryTests executes the directory contract tests.
func (suite *StoreTestSuite) RunDirectoryTests(t *testing.T) {
	t.Run("Root_Exists", suite.testRootExists)
	t.Run("CreateDirectory_Basic", suite.testCreateDirectory)
	t.Run("CreateDirectory_Nested", suite.testCreateDirectoryNested)
	t.Run("CreateDirectory_AlreadyExists", suite.testCreateDirectoryAlreadyExists)
	t.Run("CreateDirectory_MissingParent", suite.testCreateDirectoryMissingParent)
	t.Run("List_Children", suite.testListChildren)
	t.Run("DeleteDirectory_Subtree", suite.testDeleteDirectorySubtree)
	t.Run("DeleteDirectory_Root", suite.testDeleteDirectoryRoot)
	t.Run("GetInfo_NotFound", suite.testGetInfoNotFound)
}

func (suite *StoreTestSuite) testRootExists(t *testing.T) {
	s := suite.newStore(t)

	exists, err := s.Exists(testContext(), "/")
	require.NoError(t, err)
	assert.True(t, exists)

	info := MustGetInfo(t, s, "/")
	assert.True(t, info.IsDirectory())
	assert.Equal(t, "/", info.Path)
}

func (suite *StoreTestSuite) testCreateDirectory(t *testing.T) {
	s := suite.newStore(t)

	MustCreateDirectory(t, s, "/", "/docs")

	exists, err := s.Exists(testContext(), "/docs")
	require.NoError(t, err)
	assert.True(t, exists)

	info := MustGetInfo(t, s, "/docs")
	assert.Equal(t, "docs", info.Name)
	assert.Equal(t, "/docs", info.Path)
	assert.Equal(t, store.NodeTypeDirectory, info.Type)
	assert.False(t, info.Created.IsZero())
	assert.True(t, info.Modified.IsZero(), "directories expose created time only")
}

func (suite *StoreTestSuite) testCreateDirectoryNested(t *testing.T) {
	s := suite.newStore(t)

	MustCreateDirectory(t, s, "/", "/a")
	MustCreateDirectory(t, s, "/a", "/a/b")
	MustCreateDirectory(t, s, "/a/b", "/a/b/c")

	info := MustGetInfo(t, s, "/a/b/c")
	assert.Equal(t, "c", info.Name)
	assert.True(t, info.IsDirectory())
}

func (suite *StoreTestSuite) testCreateDirectoryAlreadyExists(t *testing.T) {
	s := suite.newStore(t)

	MustCreateDirectory(t, s, "/", "/dup")
	root := MustGetInfo(t, s, "/")

	err := s.CreateDirectory(testContext(), "/dup", root)
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func (suite *StoreTestSuite) testCreateDirectoryMissingParent(t *testing.T) {
	s := suite.newStore(t)
	root := MustGetInfo(t, s, "/")

	err := s.CreateDirectory(testContext(), "/missing/child", root)
	assert.ErrorIs(t, err, store.ErrNotFound)

	exists, err := s.Exists(testContext(), "/missing/child")
	require.NoError(t, err)
	assert.False(t, exists)
}

func (suite *StoreTestSuite) testListChildren(t *testing.T) {
	s := suite.newStore(t)

	MustCreateDirectory(t, s, "/", "/a")
	MustCreateDirectory(t, s, "/a", "/a/sub")
	MustCreateAsset(t, s, "/a", "/a/b.txt", []byte("hi"))
	MustCreateAsset(t, s, "/a/sub", "/a/sub/deep.txt", []byte("deep"))

	dir := MustGetInfo(t, s, "/a")
	infos, err := s.List(testContext(), "/a", dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sub", "b.txt"}, names(infos))

	for _, info := range infos {
		switch info.Name {
		case "b.txt":
			assert.Equal(t, store.NodeTypeAsset, info.Type)
			assert.Equal(t, int64(2), info.Size)
			assert.Equal(t, "/a/b.txt", info.Path)
		case "sub":
			assert.Equal(t, store.NodeTypeDirectory, info.Type)
			assert.Equal(t, "/a/sub", info.Path)
		}
	}

	empty := MustGetInfo(t, s, "/a/sub")
	infos, err = s.List(testContext(), "/a/sub", empty)
	require.NoError(t, err)
	assert.Equal(t, []string{"deep.txt"}, names(infos))
}

func (suite *StoreTestSuite) testDeleteDirectorySubtree(t *testing.T) {
	s := suite.newStore(t)

	MustCreateDirectory(t, s, "/", "/gone")
	MustCreateDirectory(t, s, "/gone", "/gone/inner")
	MustCreateAsset(t, s, "/gone/inner", "/gone/inner/x.bin", []byte{1, 2, 3})
	MustCreateDirectory(t, s, "/", "/kept")

	dir := MustGetInfo(t, s, "/gone")
	require.NoError(t, s.DeleteDirectory(testContext(), "/gone", dir))

	for _, p := range []string{"/gone", "/gone/inner", "/gone/inner/x.bin"} {
		exists, err := s.Exists(testContext(), p)
		require.NoError(t, err)
		assert.False(t, exists, "%s should be gone", p)
	}

	exists, err := s.Exists(testContext(), "/kept")
	require.NoError(t, err)
	assert.True(t, exists)

	// The name is free again
	MustCreateDirectory(t, s, "/", "/gone")
}

func (suite *StoreTestSuite) testDeleteDirectoryRoot(t *testing.T) {
	s := suite.newStore(t)
	root := MustGetInfo(t, s, "/")

	err := s.DeleteDirectory(testContext(), "/", root)
	assert.ErrorIs(t, err, store.ErrRoot)

	exists, err := s.Exists(testContext(), "/")
	require.NoError(t, err)
	assert.True(t, exists)
}

func (suite *StoreTestSuite) testGetInfoNotFound(t *testing.T) {
	s := suite.newStore(t)

	_, err := s.GetInfo(testContext(), "/nope")
	assert.ErrorIs(t, err, store.ErrNotFound)

	exists, err := s.Exists(testContext(), "/nope")
	require.NoError(t, err)
	assert.False(t, exists)
}
