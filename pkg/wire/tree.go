package wire

import (
	"fmt"

	"github.com/devtree-io/devtree-go/pkg/pathtree"
)

// EncodeTree serializes a path tree for a tree envelope.
func EncodeTree(t *pathtree.Tree) ([]byte, error) {
	records := t.Records()
	if records == nil {
		records = []pathtree.Record{}
	}
	return Marshal(records)
}

// DecodeTree rebuilds a path tree from a tree envelope payload.
func DecodeTree(payload []byte) (*pathtree.Tree, error) {
	var records []pathtree.Record
	if err := Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	return pathtree.FromRecords(records)
}
