package store

import "time"

// NodeType distinguishes the two kinds of node in the tree.
type NodeType int

const (
	// NodeTypeDirectory is a branch node holding named children.
	NodeTypeDirectory NodeType = iota

	// NodeTypeAsset is a leaf node holding binary content and metadata.
	NodeTypeAsset
)

// String returns the type tag used in logs and serialized records.
func (t NodeType) String() string {
	switch t {
	case NodeTypeDirectory:
		return "directory"
	case NodeTypeAsset:
		return "asset"
	default:
		return "unknown"
	}
}

// Info is the externally visible projection of a node. It never carries
// raw content.
//
// For directories only Name, Path, Type and Created are meaningful; the
// asset fields are left at their zero values.
type Info struct {
	// Name is the node's leaf name (empty for the root)
	Name string `json:"name"`

	// Path is the normalized absolute path of the node
	Path string `json:"path"`

	Type NodeType `json:"type"`

	// Created is immutable once the node exists
	Created time.Time `json:"created"`

	// Modified advances on every content replacement
	Modified time.Time `json:"modified,omitzero"`

	// ContentType is derived from the asset name when the info is built
	ContentType string `json:"content_type,omitempty"`

	// Size is the content length in bytes
	Size int64 `json:"size"`

	CheckedOut   bool   `json:"checked_out"`
	CheckedOutBy string `json:"checked_out_by,omitempty"`
}

// IsDirectory reports whether the info describes a directory.
func (i *Info) IsDirectory() bool {
	return i != nil && i.Type == NodeTypeDirectory
}

// IsAsset reports whether the info describes an asset.
func (i *Info) IsAsset() bool {
	return i != nil && i.Type == NodeTypeAsset
}

// Clone returns a copy the caller may mutate freely.
func (i *Info) Clone() *Info {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// InfoPatch selects asset metadata fields to update.
//
// Only non-nil fields are applied. The fields are opaque metadata: a
// checked-out asset can still be written.
type InfoPatch struct {
	CheckedOut   *bool   `json:"checked_out,omitempty"`
	CheckedOutBy *string `json:"checked_out_by,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p InfoPatch) Empty() bool {
	return p.CheckedOut == nil && p.CheckedOutBy == nil
}

// Apply writes the selected fields onto info.
func (p InfoPatch) Apply(info *Info) {
	if p.CheckedOut != nil {
		info.CheckedOut = *p.CheckedOut
	}
	if p.CheckedOutBy != nil {
		info.CheckedOutBy = *p.CheckedOutBy
	}
}

// NextModified returns the modification time for a content replacement.
//
// It is now, unless the clock has not moved past prev, in which case the
// result is nudged just after prev so Modified strictly increases.
func NextModified(prev, now time.Time) time.Time {
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}
