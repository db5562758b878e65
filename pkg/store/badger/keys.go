package badger

import (
	"encoding/binary"

	"github.com/marmos91/assetrepo/pkg/pathutil"
)

// Database Key Namespace Design
// ==============================
//
// Nodes are addressed by their normalized path, so every key embeds the path
// it belongs to and subtrees are contiguous key ranges.
//
// Data Type        Prefix   Key Format                   Value Type
// ===================================================================
// Node Record      "n:"     n:<path>                     nodeRecord (JSON)
// Children Index   "c:"     c:<parentPath>\x00<name>     empty
// Asset Content    "d:"     d:<path>\x00<id>\x00<index>   raw bytes (one chunk)
//
// 1. Node Record (n:)
//    - One entry per directory or asset, the root included
//    - All descendants of /a share the prefix "n:/a/"
//
// 2. Children Index (c:)
//    - One entry per child, so List is a single prefix scan
//    - The NUL separator cannot appear in a name, so "c:/a\x00" never
//      matches children of "/ab"
//
// 3. Asset Content (d:)
//    - Kept apart from the record so metadata reads never load content
//    - Split into chunks of at most contentChunkSize bytes, since BadgerDB
//      caps the size of a single value (in-memory mode in particular)
//    - Every committed write gets a fresh content id; the record names the
//      current one, so a replaced or aborted write never shows through
//    - The index is a big-endian uint32, so chunks iterate in order

const (
	prefixNode    = "n:"
	prefixChild   = "c:"
	prefixContent = "d:"

	childSeparator = "\x00"
)

func keyNode(path string) []byte {
	return []byte(prefixNode + path)
}

// contentChunkSize bounds a single content value.
const contentChunkSize = 512 << 10

// keyContentPrefix selects every content chunk of the asset at path.
func keyContentPrefix(path string) []byte {
	return []byte(prefixContent + path + childSeparator)
}

// keyContentGeneration selects the chunks of one write of the asset.
func keyContentGeneration(path, id string) []byte {
	return []byte(prefixContent + path + childSeparator + id + childSeparator)
}

func keyContentChunk(path, id string, index uint32) []byte {
	return binary.BigEndian.AppendUint32(keyContentGeneration(path, id), index)
}

func keyChild(parentPath, name string) []byte {
	return []byte(prefixChild + parentPath + childSeparator + name)
}

// keyChildPrefix selects every child entry of the directory at path.
func keyChildPrefix(path string) []byte {
	return []byte(prefixChild + path + childSeparator)
}

// subtreePrefix returns the prefix shared by every descendant of path under
// the given namespace.
func subtreePrefix(prefix, path string) []byte {
	if pathutil.IsRoot(path) {
		return []byte(prefix + pathutil.Separator())
	}
	return []byte(prefix + path + pathutil.Separator())
}
