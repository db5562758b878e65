package s3

import (
	"context"
	"fmt"

	"github.com/marmos91/assetrepo/pkg/pathutil"
	"github.com/marmos91/assetrepo/pkg/store"
)

// FindAssets lists every object below opts.Root and resolves the ones whose
// name matches. ListObjectsV2 returns keys in lexicographic order, so the
// results come out sorted by path.
func (s *S3Store) FindAssets(ctx context.Context, pattern store.Pattern, opts store.FindOptions) ([]*store.Info, error) {
	root := pathutil.Normalize(opts.Root)
	if err := s.begin(ctx, "find "+pattern.String(), root); err != nil {
		return nil, err
	}
	if _, err := s.requireDirectory(ctx, root); err != nil {
		return nil, fmt.Errorf("find below %s: %w", root, err)
	}

	var matches []string
	err := s.listKeys(ctx, s.dirPrefix(root), "", func(key string, _ bool) bool {
		if isMarker(key) {
			return true
		}
		p := s.pathOf(key)
		if pattern.Match(pathutil.LeafName(p)) {
			matches = append(matches, p)
		}
		return opts.Limit <= 0 || len(matches) < opts.Limit
	})
	if err != nil {
		return nil, err
	}

	found := make([]*store.Info, 0, len(matches))
	for _, p := range matches {
		info, ok, err := s.resolve(ctx, p)
		if err != nil {
			return nil, err
		}
		if ok && info.IsAsset() {
			found = append(found, info)
		}
	}
	return found, nil
}
