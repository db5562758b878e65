// Package badger implements a persistent asset store on BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/assetrepo/internal/logger"
	"github.com/marmos91/assetrepo/pkg/pathutil"
	"github.com/marmos91/assetrepo/pkg/store"
)

// BadgerStore implements store.Store using BadgerDB for persistence.
//
// It is suitable for:
//   - Single-node deployments where the tree must survive restarts
//   - Repositories too large to keep in memory
//
// Storage Model:
// Keys are namespaced by prefix (see keys.go). Node records, the children
// index and asset content live under separate prefixes, so listings and
// subtree deletes are range scans.
//
// Thread Safety:
// Reads run in BadgerDB read transactions and never block. Mutations are
// serialized by mu: BadgerDB would otherwise abort one of two conflicting
// transactions, and the tree needs structural changes under the same
// parent to be ordered anyway.
type BadgerStore struct {
	db *badger.DB

	// mu serializes read-write transactions
	mu sync.Mutex

	clock        clock.Clock
	previewBytes int
}

// BadgerStoreConfig contains configuration for creating a BadgerDB store.
type BadgerStoreConfig struct {
	// DBPath is the directory where BadgerDB keeps its files
	// Ignored when InMemory is set
	DBPath string `mapstructure:"db_path"`

	// InMemory runs BadgerDB without touching disk (tests, demos)
	InMemory bool `mapstructure:"in_memory"`

	// PreviewBytes bounds text previews (default: store.DefaultPreviewBytes)
	PreviewBytes int `mapstructure:"preview_bytes"`

	// BadgerOptions allows customization of BadgerDB behavior
	// If nil, sensible defaults are used
	BadgerOptions *badger.Options `mapstructure:"-"`

	// Clock overrides the time source (tests)
	Clock clock.Clock `mapstructure:"-"`
}

// NewBadgerStore opens (or creates) the database and makes sure the root
// directory record exists.
//
// Parameters:
//   - ctx: Context for cancellation during initialization
//   - config: Database location and options
//
// Returns:
//   - *BadgerStore: A store ready for use
//   - error: Error if the database cannot be opened or initialized
func NewBadgerStore(ctx context.Context, config BadgerStoreConfig) (*BadgerStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	switch {
	case config.BadgerOptions != nil:
		opts = *config.BadgerOptions
	case config.InMemory:
		opts = badger.DefaultOptions("").WithInMemory(true)
	default:
		if config.DBPath == "" {
			return nil, fmt.Errorf("badger store: db_path is required")
		}
		opts = badger.DefaultOptions(config.DBPath)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}

	previewBytes := config.PreviewBytes
	if previewBytes <= 0 {
		previewBytes = store.DefaultPreviewBytes
	}

	s := &BadgerStore{
		db:           db,
		clock:        clk,
		previewBytes: previewBytes,
	}

	if err := s.initializeRoot(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize root: %w", err)
	}

	return s, nil
}

// initializeRoot writes the root directory record on first open.
func (s *BadgerStore) initializeRoot() error {
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(keyNode(pathutil.Separator()))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return putRecord(txn, pathutil.Separator(), &nodeRecord{
			Type:    store.NodeTypeDirectory,
			Created: s.clock.Now(),
		})
	})
}

// Healthcheck verifies the database accepts read transactions.
func (s *BadgerStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return store.ErrClosed
	}
	return s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(keyNode(pathutil.Separator()))
		return err
	})
}

// Close flushes and closes the database.
func (s *BadgerStore) Close() error {
	if s.db.IsClosed() {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}

// view runs fn in a read transaction, mapping a closed database to
// store.ErrClosed.
func (s *BadgerStore) view(ctx context.Context, op, path string, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.Debug("badger store: %s %s", op, path)
	err := s.db.View(fn)
	if errors.Is(err, badger.ErrDBClosed) {
		return store.ErrClosed
	}
	return err
}

// update runs fn in a serialized read-write transaction.
func (s *BadgerStore) update(ctx context.Context, op, path string, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.Debug("badger store: %s %s", op, path)

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(fn)
	if errors.Is(err, badger.ErrDBClosed) {
		return store.ErrClosed
	}
	return err
}

// getRecord loads the record at path, returning store.ErrNotFound when the
// node does not exist.
func getRecord(txn *badger.Txn, path string) (*nodeRecord, error) {
	item, err := txn.Get(keyNode(path))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s: %w", path, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var record *nodeRecord
	err = item.Value(func(val []byte) error {
		record, err = decodeRecord(val)
		return err
	})
	return record, err
}

func putRecord(txn *badger.Txn, path string, record *nodeRecord) error {
	data, err := encodeRecord(record)
	if err != nil {
		return err
	}
	return txn.Set(keyNode(path), data)
}

// getParentDirectory resolves the directory that would hold path.
func getParentDirectory(txn *badger.Txn, path string) (string, *nodeRecord, error) {
	if pathutil.IsRoot(path) {
		return "", nil, fmt.Errorf("%s: %w", path, store.ErrRoot)
	}
	parentPath, _ := pathutil.ParentPath(path)
	parent, err := getRecord(txn, parentPath)
	if err != nil {
		return "", nil, err
	}
	if !parent.isDirectory() {
		return "", nil, fmt.Errorf("%s: %w", parentPath, store.ErrNotDirectory)
	}
	return parentPath, parent, nil
}

// getAssetRecord loads path and requires it to be an asset.
func getAssetRecord(txn *badger.Txn, path string) (*nodeRecord, error) {
	record, err := getRecord(txn, path)
	if err != nil {
		return nil, err
	}
	if record.isDirectory() {
		return nil, fmt.Errorf("%s: %w", path, store.ErrNotAsset)
	}
	return record, nil
}
