package redact

import (
	"strconv"
	"strings"

	"github.com/agentoven/actionrag/pkg/models"
)

// Normalize converts a slash path into its traversal segments.
//
//	"a/b/c"   → [a b c]
//	"#/a/b/c" → [a b c]     (a leading "#." is dropped)
//	"#a/b/c"  → [#a b c]    (the marker stays on the first segment)
//	""        → nil         (no-op)
func Normalize(path string) []string {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	dotted := strings.ReplaceAll(path, "/", ".")
	dotted = strings.TrimPrefix(dotted, "#.")
	return strings.Split(dotted, ".")
}

// Apply returns a copy of tree with each path removed. A path that cannot be
// found is skipped silently. Only the first match of each path is removed;
// redact sibling records one at a time when every record must be cleaned.
func Apply(tree interface{}, paths []string) interface{} {
	root := FromValue(tree)
	for _, p := range paths {
		root.Delete(p)
	}
	return root.Interface()
}

// Delete removes the first match of path from the tree and reports whether
// anything was removed.
func (n *Node) Delete(path string) bool {
	parts := Normalize(path)
	if len(parts) == 0 {
		return false
	}
	return searchAndDelete(n, parts)
}

// searchAndDelete walks the tree depth-first (mapping keys in sorted order)
// until a mapping that holds parts[0] also resolves the remaining segments.
func searchAndDelete(n *Node, parts []string) bool {
	switch n.Kind {
	case Mapping:
		if _, ok := n.Fields[parts[0]]; ok && findAndDelete(n, parts) {
			return true
		}
		for _, k := range n.Keys() {
			child := n.Fields[k]
			if child.Container() && searchAndDelete(child, parts) {
				return true
			}
		}
	case Sequence:
		for _, item := range n.Items {
			if item.Container() && searchAndDelete(item, parts) {
				return true
			}
		}
	}
	return false
}

// findAndDelete resolves parts relative to n and deletes the final segment.
func findAndDelete(n *Node, parts []string) bool {
	key := parts[0]
	last := len(parts) == 1

	switch n.Kind {
	case Mapping:
		child, ok := n.Fields[key]
		if !ok {
			return false
		}
		if last {
			delete(n.Fields, key)
			return true
		}
		return findAndDelete(child, parts[1:])
	case Sequence:
		idx, ok := index(key, len(n.Items))
		if !ok {
			return false
		}
		if last {
			n.Items = append(n.Items[:idx], n.Items[idx+1:]...)
			return true
		}
		return findAndDelete(n.Items[idx], parts[1:])
	}
	return false
}

// index parses an unsigned decimal segment and bounds-checks it.
func index(seg string, length int) (int, bool) {
	if seg == "" {
		return 0, false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	i, err := strconv.Atoi(seg)
	if err != nil || i >= length {
		return 0, false
	}
	return i, true
}

// ── Dataset contract ────────────────────────────────────────

// Retain returns a copy of record holding only the declared fields. Every
// other field is removed at whatever depth it occurs; a declared field keeps
// its whole subtree. Non-mapping records are returned as copies unchanged.
func Retain(record interface{}, fields []models.DatasetField) interface{} {
	root := FromValue(record)
	if root.Kind != Mapping {
		return root.Interface()
	}
	declared := make([][]string, 0, len(fields))
	for _, f := range fields {
		if parts := Normalize(f.Name); len(parts) > 0 {
			declared = append(declared, parts)
		}
	}
	prune(root, nil, declared)
	return root.Interface()
}

// RetainAll applies Retain to each record independently.
func RetainAll(records []interface{}, fields []models.DatasetField) []interface{} {
	out := make([]interface{}, len(records))
	for i, r := range records {
		out[i] = Retain(r, fields)
	}
	return out
}

// prune deletes, in place, every mapping key whose logical path is not
// covered by a declaration. Keys are compared as whole segments, so a key
// containing "." or "/" (or an empty key) never matches a declared path
// unless it is itself declared. Sequence indices are transparent.
func prune(n *Node, logical []string, declared [][]string) {
	switch n.Kind {
	case Mapping:
		for _, k := range n.Keys() {
			lp := append(append([]string(nil), logical...), k)
			switch coverage(lp, declared) {
			case covered:
			case partial:
				prune(n.Fields[k], lp, declared)
			default:
				delete(n.Fields, k)
			}
		}
	case Sequence:
		for _, item := range n.Items {
			prune(item, logical, declared)
		}
	}
}

type cover int

const (
	uncovered cover = iota
	partial
	covered
)

// coverage reports whether path is declared (or lies under a declaration),
// is an ancestor of a declaration, or is outside every declaration.
func coverage(path []string, declared [][]string) cover {
	result := uncovered
	for _, d := range declared {
		switch {
		case hasPrefix(path, d):
			return covered
		case hasPrefix(d, path):
			result = partial
		}
	}
	return result
}

func hasPrefix(s, prefix []string) bool {
	if len(prefix) > len(s) {
		return false
	}
	for i := range prefix {
		if s[i] != prefix[i] {
			return false
		}
	}
	return true
}
