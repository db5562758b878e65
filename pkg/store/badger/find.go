package badger

import (
	"context"
	"fmt"
	"sort"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/assetrepo/pkg/pathutil"
	"github.com/marmos91/assetrepo/pkg/store"
)

// FindAssets range-scans the node records below opts.Root and returns the
// matching assets sorted by path.
func (s *BadgerStore) FindAssets(ctx context.Context, pattern store.Pattern, opts store.FindOptions) ([]*store.Info, error) {
	root := pathutil.Normalize(opts.Root)
	var found []*store.Info

	err := s.view(ctx, "find "+pattern.String(), root, func(txn *badger.Txn) error {
		start, err := getRecord(txn, root)
		if err != nil {
			return err
		}
		if !start.isDirectory() {
			return fmt.Errorf("find below %s: %w", root, store.ErrNotDirectory)
		}

		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = subtreePrefix(prefixNode, root)

		it := txn.NewIterator(iterOpts)
		defer it.Close()

		scanned := 0
		for it.Rewind(); it.Valid(); it.Next() {
			scanned++
			if scanned%100 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			item := it.Item()
			path := strings.TrimPrefix(string(item.Key()), prefixNode)
			if !pattern.Match(pathutil.LeafName(path)) {
				continue
			}

			var record *nodeRecord
			if err := item.Value(func(val []byte) error {
				record, err = decodeRecord(val)
				return err
			}); err != nil {
				return err
			}
			if record.isDirectory() {
				continue
			}
			found = append(found, record.info(path))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Path < found[j].Path })
	if opts.Limit > 0 && len(found) > opts.Limit {
		found = found[:opts.Limit]
	}
	return found, nil
}
