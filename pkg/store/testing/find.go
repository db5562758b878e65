package testing

import (
	"regexp"
	"testing"

	"github.com/marmos91/assetrepo/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunFindTests executes the FindAssets contract tests.
func (suite *StoreTestSuite) RunFindTests(t *testing.T) {
	t.Run("Literal", suite.testFindLiteral)
	t.Run("Regexp", suite.testFindRegexp)
	t.Run("OnlyAssets", suite.testFindOnlyAssets)
	t.Run("Root", suite.testFindRoot)
	t.Run("Limit", suite.testFindLimit)
}

// seedFindTree builds:
//
//	/report-2023.pdf
//	/photos/img_1.png
//	/photos/img_2.png
//	/photos/report-photos/cover.jpg
//	/docs/report-2024.pdf
func seedFindTree(t *testing.T, s store.Store) {
	t.Helper()
	MustCreateAsset(t, s, "/", "/report-2023.pdf", []byte("a"))
	MustCreateDirectory(t, s, "/", "/photos")
	MustCreateAsset(t, s, "/photos", "/photos/img_1.png", []byte("b"))
	MustCreateAsset(t, s, "/photos", "/photos/img_2.png", []byte("c"))
	MustCreateDirectory(t, s, "/photos", "/photos/report-photos")
	MustCreateAsset(t, s, "/photos/report-photos", "/photos/report-photos/cover.jpg", []byte("d"))
	MustCreateDirectory(t, s, "/", "/docs")
	MustCreateAsset(t, s, "/docs", "/docs/report-2024.pdf", []byte("e"))
}

func paths(infos []*store.Info) []string {
	out := make([]string, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.Path)
	}
	return out
}

func (suite *StoreTestSuite) testFindLiteral(t *testing.T) {
	s := suite.newStore(t)
	seedFindTree(t, s)

	found, err := s.FindAssets(testContext(), store.LiteralPattern("report"), store.FindOptions{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/report-2023.pdf", "/docs/report-2024.pdf"}, paths(found))

	found, err = s.FindAssets(testContext(), store.LiteralPattern("nothing-matches"), store.FindOptions{})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func (suite *StoreTestSuite) testFindRegexp(t *testing.T) {
	s := suite.newStore(t)
	seedFindTree(t, s)

	re := regexp.MustCompile(`^img_\d\.png$`)
	found, err := s.FindAssets(testContext(), store.RegexpPattern(re), store.FindOptions{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/photos/img_1.png", "/photos/img_2.png"}, paths(found))
}

func (suite *StoreTestSuite) testFindOnlyAssets(t *testing.T) {
	s := suite.newStore(t)
	seedFindTree(t, s)

	found, err := s.FindAssets(testContext(), store.LiteralPattern("photos"), store.FindOptions{})
	require.NoError(t, err)
	assert.Empty(t, found, "directories named like the pattern are not results")

	found, err = s.FindAssets(testContext(), store.Pattern{}, store.FindOptions{})
	require.NoError(t, err)
	assert.Len(t, found, 5)
	for _, info := range found {
		assert.True(t, info.IsAsset())
	}
}

func (suite *StoreTestSuite) testFindRoot(t *testing.T) {
	s := suite.newStore(t)
	seedFindTree(t, s)

	found, err := s.FindAssets(testContext(), store.Pattern{}, store.FindOptions{Root: "/photos"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"/photos/img_1.png",
		"/photos/img_2.png",
		"/photos/report-photos/cover.jpg",
	}, paths(found))
}

func (suite *StoreTestSuite) testFindLimit(t *testing.T) {
	s := suite.newStore(t)
	seedFindTree(t, s)

	found, err := s.FindAssets(testContext(), store.Pattern{}, store.FindOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, found, 2)
}
