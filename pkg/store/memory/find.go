package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/marmos91/assetrepo/pkg/pathutil"
	"github.com/marmos91/assetrepo/pkg/store"
)

// FindAssets walks the tree (or the subtree at opts.Root) depth first and
// collects every asset whose name matches pattern. Results are sorted by
// path.
func (s *MemoryStore) FindAssets(ctx context.Context, pattern store.Pattern, opts store.FindOptions) ([]*store.Info, error) {
	if err := s.begin(ctx, "find "+pattern.String(), opts.Root); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	root := pathutil.Normalize(opts.Root)
	start, err := s.lookup(root)
	if err != nil {
		return nil, err
	}
	if !start.dir {
		return nil, fmt.Errorf("find below %s: %w", root, store.ErrNotDirectory)
	}

	var found []*store.Info
	var walk func(dir *node, dirPath string)
	walk = func(dir *node, dirPath string) {
		for name, child := range dir.children {
			childPath := pathutil.Join(dirPath, name)
			if child.dir {
				walk(child, childPath)
				continue
			}
			if pattern.Match(name) {
				found = append(found, child.info(childPath))
			}
		}
	}
	walk(start, root)

	sort.Slice(found, func(i, j int) bool { return found[i].Path < found[j].Path })
	if opts.Limit > 0 && len(found) > opts.Limit {
		found = found[:opts.Limit]
	}
	return found, nil
}
