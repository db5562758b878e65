package memory

import (
	"fmt"
	"time"

	"github.com/marmos91/assetrepo/pkg/pathutil"
	"github.com/marmos91/assetrepo/pkg/store"
)

// node is one entry of the tree.
//
// Directories use children; assets use the content and metadata fields.
type node struct {
	name    string
	dir     bool
	created time.Time

	children map[string]*node

	modified     time.Time
	content      []byte
	checkedOut   bool
	checkedOutBy string
}

func newDirectory(name string, now time.Time) *node {
	return &node{
		name:     name,
		dir:      true,
		created:  now,
		children: make(map[string]*node),
	}
}

func newAsset(name string, content []byte, now time.Time) *node {
	return &node{
		name:     name,
		created:  now,
		modified: now,
		content:  content,
	}
}

// sniffLen is how much content is handed to content-type detection.
const sniffLen = 512

// info builds the externally visible view of n at path.
func (n *node) info(path string) *store.Info {
	if n.dir {
		return &store.Info{
			Name:    n.name,
			Path:    path,
			Type:    store.NodeTypeDirectory,
			Created: n.created,
		}
	}

	head := n.content
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}

	return &store.Info{
		Name:         n.name,
		Path:         path,
		Type:         store.NodeTypeAsset,
		Created:      n.created,
		Modified:     n.modified,
		ContentType:  store.ContentType(n.name, head),
		Size:         int64(len(n.content)),
		CheckedOut:   n.checkedOut,
		CheckedOutBy: n.checkedOutBy,
	}
}

// lookup walks from the root to path. Caller must hold mu.
func (s *MemoryStore) lookup(path string) (*node, error) {
	if s.closed {
		return nil, store.ErrClosed
	}

	current := s.root
	for _, name := range segments(path) {
		if !current.dir {
			return nil, fmt.Errorf("%s: %w", path, store.ErrNotFound)
		}
		child, ok := current.children[name]
		if !ok {
			return nil, fmt.Errorf("%s: %w", path, store.ErrNotFound)
		}
		current = child
	}
	return current, nil
}

// lookupParent resolves the directory that holds path and the leaf name
// path would have in it. Caller must hold mu.
func (s *MemoryStore) lookupParent(path string) (*node, string, error) {
	p := pathutil.Normalize(path)
	if pathutil.IsRoot(p) {
		return nil, "", fmt.Errorf("%s: %w", p, store.ErrRoot)
	}

	parentPath, _ := pathutil.ParentPath(p)
	parent, err := s.lookup(parentPath)
	if err != nil {
		return nil, "", err
	}
	if !parent.dir {
		return nil, "", fmt.Errorf("%s: %w", parentPath, store.ErrNotDirectory)
	}
	return parent, pathutil.LeafName(p), nil
}

// lookupAsset resolves path and requires an asset. Caller must hold mu.
func (s *MemoryStore) lookupAsset(path string) (*node, error) {
	n, err := s.lookup(path)
	if err != nil {
		return nil, err
	}
	if n.dir {
		return nil, fmt.Errorf("%s: %w", path, store.ErrNotAsset)
	}
	return n, nil
}
