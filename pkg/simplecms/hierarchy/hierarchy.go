// Package hierarchy holds the materialized-path primitives used to place,
// query and relocate content nodes. Everything here is pure: callers load
// the nodes, hand them in, and persist the returned placement.
//
// A node's ParentPath is the comma-delimited list of its ancestor ids
// (",A,B,") and is empty for a root node. Ancestors carries the same ids
// in root-to-parent order.
package hierarchy

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNotDescendant is returned by Relocate when the node is not below the moved root.
var ErrNotDescendant = errors.New("node is not a descendant of the moved root")

const separator = ","

// Node is the hierarchy slice of a content node.
type Node struct {
	ID         primitive.ObjectID
	ParentID   *primitive.ObjectID
	ParentPath string
	Ancestors  []primitive.ObjectID
}

// Placement is the set of hierarchy fields a node gets under a parent.
type Placement struct {
	ParentID   *primitive.ObjectID
	ParentPath string
	Ancestors  []primitive.ObjectID
}

// Place computes the placement of a node created or moved under parent.
// A nil parent places the node at the root.
func Place(parent *Node) Placement {
	if parent == nil {
		return Placement{Ancestors: []primitive.ObjectID{}}
	}

	id := parent.ID
	ancestors := make([]primitive.ObjectID, 0, len(parent.Ancestors)+1)
	ancestors = append(ancestors, parent.Ancestors...)
	ancestors = append(ancestors, id)

	return Placement{
		ParentID:   &id,
		ParentPath: SubtreePrefix(*parent),
		Ancestors:  ancestors,
	}
}

// SubtreePrefix is the ParentPath prefix shared by every descendant of n.
func SubtreePrefix(n Node) string {
	path := n.ParentPath
	if path == "" {
		path = separator
	}
	return path + n.ID.Hex() + separator
}

// SubtreePattern returns an anchored regular expression matching the
// ParentPath of every descendant of n.
func SubtreePattern(n Node) string {
	return "^" + regexp.QuoteMeta(SubtreePrefix(n))
}

// IsInSubtree reports whether candidate is n itself or one of its descendants.
func IsInSubtree(n Node, candidate Node) bool {
	if candidate.ID == n.ID {
		return true
	}
	return strings.HasPrefix(candidate.ParentPath, SubtreePrefix(n))
}

// PathOf builds a ParentPath from an ordered ancestor list.
func PathOf(ancestors []primitive.ObjectID) string {
	if len(ancestors) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(separator)
	for _, id := range ancestors {
		b.WriteString(id.Hex())
		b.WriteString(separator)
	}
	return b.String()
}

// ParsePath splits a ParentPath into ordered ancestor ids. Empty segments are skipped.
func ParsePath(path string) ([]primitive.ObjectID, error) {
	segments := strings.Split(path, separator)
	ids := make([]primitive.ObjectID, 0, len(segments))
	for _, s := range segments {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := primitive.ObjectIDFromHex(s)
		if err != nil {
			return nil, fmt.Errorf("invalid path segment %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Relocate recomputes a descendant's placement after its subtree root was
// moved. root must already carry its new placement. The part of the
// descendant's ancestry below root is kept and appended after root's new
// ancestry; the descendant's direct parent does not change.
func Relocate(root Node, desc Node) (Placement, error) {
	idx := -1
	for i, id := range desc.Ancestors {
		if id == root.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Placement{}, fmt.Errorf("%w: %s under %s", ErrNotDescendant, desc.ID.Hex(), root.ID.Hex())
	}

	tail := desc.Ancestors[idx+1:]
	ancestors := make([]primitive.ObjectID, 0, len(root.Ancestors)+1+len(tail))
	ancestors = append(ancestors, root.Ancestors...)
	ancestors = append(ancestors, root.ID)
	ancestors = append(ancestors, tail...)

	var parentID *primitive.ObjectID
	if desc.ParentID != nil {
		p := *desc.ParentID
		parentID = &p
	}

	return Placement{
		ParentID:   parentID,
		ParentPath: PathOf(ancestors),
		Ancestors:  ancestors,
	}, nil
}
