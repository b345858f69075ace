// Package redact strips fields from nested JSON-like records before they are
// exposed to generated computations.
//
// Records are converted into a typed tree (Mapping, Sequence, Scalar) so the
// traversal rules are independent of how the data was decoded. Redaction
// always works on a deep copy: the caller's value is never mutated.
package redact

import (
	"sort"
)

// Kind tags a tree node.
type Kind int

const (
	Scalar Kind = iota
	Mapping
	Sequence
)

func (k Kind) String() string {
	switch k {
	case Mapping:
		return "mapping"
	case Sequence:
		return "sequence"
	default:
		return "scalar"
	}
}

// Node is one element of a record tree. Exactly one of Fields, Items or
// Value is meaningful, depending on Kind.
type Node struct {
	Kind   Kind
	Fields map[string]*Node
	Items  []*Node
	Value  interface{}
}

// FromValue builds a tree from a decoded JSON value. Anything that is not a
// map or a slice becomes a Scalar.
func FromValue(v interface{}) *Node {
	switch t := v.(type) {
	case map[string]interface{}:
		n := &Node{Kind: Mapping, Fields: make(map[string]*Node, len(t))}
		for k, child := range t {
			n.Fields[k] = FromValue(child)
		}
		return n
	case []interface{}:
		n := &Node{Kind: Sequence, Items: make([]*Node, len(t))}
		for i, child := range t {
			n.Items[i] = FromValue(child)
		}
		return n
	case []map[string]interface{}:
		n := &Node{Kind: Sequence, Items: make([]*Node, len(t))}
		for i, child := range t {
			n.Items[i] = FromValue(child)
		}
		return n
	default:
		return &Node{Kind: Scalar, Value: v}
	}
}

// Interface converts the tree back into plain maps and slices.
func (n *Node) Interface() interface{} {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case Mapping:
		out := make(map[string]interface{}, len(n.Fields))
		for k, child := range n.Fields {
			out[k] = child.Interface()
		}
		return out
	case Sequence:
		out := make([]interface{}, len(n.Items))
		for i, child := range n.Items {
			out[i] = child.Interface()
		}
		return out
	default:
		return n.Value
	}
}

// Container reports whether the node can hold children.
func (n *Node) Container() bool {
	return n != nil && n.Kind != Scalar
}

// Keys returns the mapping keys in sorted order.
func (n *Node) Keys() []string {
	keys := make([]string, 0, len(n.Fields))
	for k := range n.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
