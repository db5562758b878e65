package badger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/marmos91/assetrepo/pkg/pathutil"
	"github.com/marmos91/assetrepo/pkg/store"
)

// nodeRecord is the persisted form of a node.
//
// ContentType and Size are fixed when content is committed so building an
// Info never touches the content keys.
type nodeRecord struct {
	Type         store.NodeType `json:"type"`
	Created      time.Time      `json:"created"`
	Modified     time.Time      `json:"modified,omitzero"`
	ContentType  string         `json:"content_type,omitempty"`
	Size         int64          `json:"size"`
	CheckedOut   bool           `json:"checked_out"`
	CheckedOutBy string         `json:"checked_out_by,omitempty"`

	// ContentID names the content chunks of the current revision
	ContentID string `json:"content_id,omitempty"`
}

func (r *nodeRecord) isDirectory() bool {
	return r.Type == store.NodeTypeDirectory
}

func (r *nodeRecord) info(path string) *store.Info {
	return &store.Info{
		Name:         pathutil.LeafName(path),
		Path:         path,
		Type:         r.Type,
		Created:      r.Created,
		Modified:     r.Modified,
		ContentType:  r.ContentType,
		Size:         r.Size,
		CheckedOut:   r.CheckedOut,
		CheckedOutBy: r.CheckedOutBy,
	}
}

func encodeRecord(r *nodeRecord) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode node record: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (*nodeRecord, error) {
	var r nodeRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode node record: %w", err)
	}
	return &r, nil
}
