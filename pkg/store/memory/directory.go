package memory

import (
	"context"
	"fmt"

	"github.com/marmos91/assetrepo/pkg/pathutil"
	"github.com/marmos91/assetrepo/pkg/store"
)

// Exists reports whether a node exists at path.
func (s *MemoryStore) Exists(ctx context.Context, path string) (bool, error) {
	if err := s.begin(ctx, "exists", path); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, store.ErrClosed
	}
	_, err := s.lookup(path)
	return err == nil, nil
}

// GetInfo returns the info view of the node at path.
func (s *MemoryStore) GetInfo(ctx context.Context, path string) (*store.Info, error) {
	if err := s.begin(ctx, "get info", path); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.lookup(path)
	if err != nil {
		return nil, err
	}
	return n.info(pathutil.Normalize(path)), nil
}

// List returns the info of every child of the directory at path.
func (s *MemoryStore) List(ctx context.Context, path string, dir *store.Info) ([]*store.Info, error) {
	if err := s.begin(ctx, "list", path); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.lookup(path)
	if err != nil {
		return nil, err
	}
	if !n.dir {
		return nil, fmt.Errorf("list %s: %w", path, store.ErrNotDirectory)
	}

	base := pathutil.Normalize(path)
	infos := make([]*store.Info, 0, len(n.children))
	for name, child := range n.children {
		infos = append(infos, child.info(pathutil.Join(base, name)))
	}
	return infos, nil
}

// CreateDirectory adds an empty directory at path.
//
// The parent is re-resolved under the write lock, so a parent removed or a
// sibling created since the caller's checks is reported instead of
// corrupting the tree.
func (s *MemoryStore) CreateDirectory(ctx context.Context, path string, parent *store.Info) error {
	if err := s.begin(ctx, "create directory", path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir, name, err := s.lookupParent(path)
	if err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if _, exists := dir.children[name]; exists {
		return fmt.Errorf("create directory %s: %w", path, store.ErrAlreadyExists)
	}

	dir.children[name] = newDirectory(name, s.clock.Now())
	return nil
}

// DeleteDirectory detaches the directory at path and its whole subtree.
func (s *MemoryStore) DeleteDirectory(ctx context.Context, path string, dir *store.Info) error {
	if err := s.begin(ctx, "delete directory", path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parent, name, err := s.lookupParent(path)
	if err != nil {
		return fmt.Errorf("delete directory: %w", err)
	}
	child, ok := parent.children[name]
	if !ok {
		return fmt.Errorf("delete directory %s: %w", path, store.ErrNotFound)
	}
	if !child.dir {
		return fmt.Errorf("delete directory %s: %w", path, store.ErrNotDirectory)
	}

	delete(parent.children, name)
	return nil
}
