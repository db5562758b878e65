package badger

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/assetrepo/pkg/pathutil"
	"github.com/marmos91/assetrepo/pkg/store"
)

// Exists reports whether a node record exists at path.
func (s *BadgerStore) Exists(ctx context.Context, path string) (bool, error) {
	p := pathutil.Normalize(path)
	found := false

	err := s.view(ctx, "exists", p, func(txn *badger.Txn) error {
		_, err := txn.Get(keyNode(p))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// GetInfo returns the info view of the node at path.
func (s *BadgerStore) GetInfo(ctx context.Context, path string) (*store.Info, error) {
	p := pathutil.Normalize(path)
	var info *store.Info

	err := s.view(ctx, "get info", p, func(txn *badger.Txn) error {
		record, err := getRecord(txn, p)
		if err != nil {
			return err
		}
		info = record.info(p)
		return nil
	})
	return info, err
}

// List scans the children index of the directory at path.
func (s *BadgerStore) List(ctx context.Context, path string, dir *store.Info) ([]*store.Info, error) {
	p := pathutil.Normalize(path)
	var infos []*store.Info

	err := s.view(ctx, "list", p, func(txn *badger.Txn) error {
		record, err := getRecord(txn, p)
		if err != nil {
			return err
		}
		if !record.isDirectory() {
			return fmt.Errorf("list %s: %w", p, store.ErrNotDirectory)
		}

		prefix := keyChildPrefix(p)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			name := string(it.Item().Key()[len(prefix):])
			childPath := pathutil.Join(p, name)

			child, err := getRecord(txn, childPath)
			if errors.Is(err, store.ErrNotFound) {
				// Index entry without a record: skip it
				continue
			}
			if err != nil {
				return err
			}
			infos = append(infos, child.info(childPath))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if infos == nil {
		infos = []*store.Info{}
	}
	return infos, nil
}

// CreateDirectory writes a directory record and its children index entry.
func (s *BadgerStore) CreateDirectory(ctx context.Context, path string, parent *store.Info) error {
	p := pathutil.Normalize(path)

	return s.update(ctx, "create directory", p, func(txn *badger.Txn) error {
		parentPath, _, err := getParentDirectory(txn, p)
		if err != nil {
			return fmt.Errorf("create directory: %w", err)
		}

		_, err = txn.Get(keyNode(p))
		if err == nil {
			return fmt.Errorf("create directory %s: %w", p, store.ErrAlreadyExists)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := putRecord(txn, p, &nodeRecord{
			Type:    store.NodeTypeDirectory,
			Created: s.clock.Now(),
		}); err != nil {
			return err
		}
		return txn.Set(keyChild(parentPath, pathutil.LeafName(p)), []byte{})
	})
}

// DeleteDirectory removes the directory at path and every key of its
// subtree.
func (s *BadgerStore) DeleteDirectory(ctx context.Context, path string, dir *store.Info) error {
	p := pathutil.Normalize(path)

	return s.update(ctx, "delete directory", p, func(txn *badger.Txn) error {
		parentPath, _, err := getParentDirectory(txn, p)
		if err != nil {
			return fmt.Errorf("delete directory: %w", err)
		}

		record, err := getRecord(txn, p)
		if err != nil {
			return fmt.Errorf("delete directory: %w", err)
		}
		if !record.isDirectory() {
			return fmt.Errorf("delete directory %s: %w", p, store.ErrNotDirectory)
		}

		prefixes := [][]byte{
			subtreePrefix(prefixNode, p),
			subtreePrefix(prefixContent, p),
			keyChildPrefix(p),
			subtreePrefix(prefixChild, p),
		}
		for _, prefix := range prefixes {
			if err := deletePrefix(txn, prefix); err != nil {
				return err
			}
		}

		if err := txn.Delete(keyNode(p)); err != nil {
			return err
		}
		return txn.Delete(keyChild(parentPath, pathutil.LeafName(p)))
	})
}

// deletePrefix removes every key starting with prefix.
//
// Keys are collected first: deleting while iterating is not allowed.
func deletePrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	var keys [][]byte
	it := txn.NewIterator(opts)
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}
