package testing

import (
	"context"
	"testing"

	"github.com/marmos91/assetrepo/pkg/store"
)

// StoreTestSuite is a contract test suite for store.Store implementations.
// It exercises the interface, not implementation details, so every backend
// (memory, badger, s3) runs the same checks.
//
// Usage:
//
//	func TestMyStore(t *testing.T) {
//	    suite := &storetesting.StoreTestSuite{
//	        NewStore: func(t *testing.T) store.Store {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test.
	NewStore func(t *testing.T) store.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("Directories", suite.RunDirectoryTests)
	t.Run("Assets", suite.RunAssetTests)
	t.Run("Find", suite.RunFindTests)
}

// newStore creates a store and closes it when the test ends.
func (suite *StoreTestSuite) newStore(t *testing.T) store.Store {
	t.Helper()
	s := suite.NewStore(t)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testContext() context.Context {
	return context.Background()
}
