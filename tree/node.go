package tree

import (
	"bytes"
	"sort"

	"github.com/bobg/hlt"
)

// Kind tells whether a tree is a set (keys only)
// or a map (keys with parallel values).
// It is fixed when the tree is created.
type Kind int

const (
	SetKind Kind = iota
	MapKind
)

func (k Kind) String() string {
	switch k {
	case SetKind:
		return "set"
	case MapKind:
		return "map"
	}
	return "unknown"
}

// Node is one B-tree node.
// Once a Node has been stored it is never changed;
// the tree operates on decoded copies and stores the results as new chunks.
type Node struct {
	Kind Kind

	// Keys are strictly increasing under bytes.Compare.
	Keys [][]byte

	// Values parallels Keys in a MapKind node and is empty in a SetKind node.
	Values [][]byte

	// Children is empty in a leaf and has len(Keys)+1 entries otherwise.
	Children []hlt.Ref
}

// Step is the outcome of Node.Follow.
type Step int

const (
	// Found means the key is in this node.
	Found Step = iota

	// Descend means the key, if present, is in the returned child.
	Descend

	// Exhausted means this is a leaf and the key is not in it.
	Exhausted
)

func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

func (n *Node) NumElements() int {
	return len(n.Keys)
}

func (n *Node) search(key []byte) (int, bool) {
	i := sort.Search(len(n.Keys), func(i int) bool {
		return bytes.Compare(n.Keys[i], key) >= 0
	})
	return i, i < len(n.Keys) && bytes.Equal(n.Keys[i], key)
}

// Follow looks for key in n.
func (n *Node) Follow(key []byte) (Step, hlt.Ref) {
	i, found := n.search(key)
	if found {
		return Found, hlt.Zero
	}
	if n.IsLeaf() {
		return Exhausted, hlt.Zero
	}
	return Descend, n.Children[i]
}

func (n *Node) value(i int) []byte {
	if n.Kind == MapKind {
		return n.Values[i]
	}
	return nil
}

// Insert adds key (and value, in a map node) at its sorted position.
// In an internal node,
// rightChild is the new right sibling of the child that was split to produce key,
// and is inserted immediately after it.
// It returns the index of the new key.
func (n *Node) Insert(key, value []byte, rightChild *hlt.Ref) int {
	i, _ := n.search(key)
	n.Keys = insertBytes(n.Keys, i, key)
	if n.Kind == MapKind {
		n.Values = insertBytes(n.Values, i, value)
	}
	if rightChild != nil {
		n.Children = insertRef(n.Children, i+1, *rightChild)
	}
	return i
}

// Split splits n at its median key.
// The lower half stays in n,
// the upper half moves to a new node,
// and the median key and value are returned for promotion to the parent.
func (n *Node) Split() (key, value []byte, right *Node) {
	mid := len(n.Keys) / 2

	right = &Node{Kind: n.Kind}
	right.Keys = append(right.Keys, n.Keys[mid+1:]...)
	key = n.Keys[mid]
	n.Keys = n.Keys[:mid:mid]

	if n.Kind == MapKind {
		right.Values = append(right.Values, n.Values[mid+1:]...)
		value = n.Values[mid]
		n.Values = n.Values[:mid:mid]
	}
	if len(n.Children) > 0 {
		right.Children = append(right.Children, n.Children[mid+1:]...)
		n.Children = n.Children[: mid+1 : mid+1]
	}
	return key, value, right
}

// RemoveAt removes the key at index i from a leaf and returns its value.
func (n *Node) RemoveAt(i int) []byte {
	value := n.value(i)
	n.Keys = removeBytes(n.Keys, i)
	if n.Kind == MapKind {
		n.Values = removeBytes(n.Values, i)
	}
	return value
}

// Replace overwrites the key and value at index i.
func (n *Node) Replace(i int, key, value []byte) {
	n.Keys[i] = key
	if n.Kind == MapKind {
		n.Values[i] = value
	}
}

// PopLeftmost removes the first key and, in an internal node, the first child.
func (n *Node) PopLeftmost() (key, value []byte, child *hlt.Ref) {
	key, value = n.Keys[0], n.value(0)
	n.Keys = removeBytes(n.Keys, 0)
	if n.Kind == MapKind {
		n.Values = removeBytes(n.Values, 0)
	}
	if len(n.Children) > 0 {
		c := n.Children[0]
		child = &c
		n.Children = removeRef(n.Children, 0)
	}
	return key, value, child
}

// PopRightmost removes the last key and, in an internal node, the last child.
func (n *Node) PopRightmost() (key, value []byte, child *hlt.Ref) {
	last := len(n.Keys) - 1
	key, value = n.Keys[last], n.value(last)
	n.Keys = n.Keys[:last:last]
	if n.Kind == MapKind {
		n.Values = n.Values[:last:last]
	}
	if len(n.Children) > 0 {
		c := n.Children[last+1]
		child = &c
		n.Children = n.Children[: last+1 : last+1]
	}
	return key, value, child
}

// PushLeft prepends a key and, if child is non-nil, a first child.
func (n *Node) PushLeft(key, value []byte, child *hlt.Ref) {
	n.Keys = insertBytes(n.Keys, 0, key)
	if n.Kind == MapKind {
		n.Values = insertBytes(n.Values, 0, value)
	}
	if child != nil {
		n.Children = insertRef(n.Children, 0, *child)
	}
}

// PushRight appends a key and, if child is non-nil, a last child.
func (n *Node) PushRight(key, value []byte, child *hlt.Ref) {
	n.Keys = append(n.Keys, key)
	if n.Kind == MapKind {
		n.Values = append(n.Values, value)
	}
	if child != nil {
		n.Children = append(n.Children, *child)
	}
}

// MergeWith appends the separator key from the parent
// and then all of right's keys and children to n.
func (n *Node) MergeWith(right *Node, sepKey, sepValue []byte) {
	n.Keys = append(n.Keys, sepKey)
	n.Keys = append(n.Keys, right.Keys...)
	if n.Kind == MapKind {
		n.Values = append(n.Values, sepValue)
		n.Values = append(n.Values, right.Values...)
	}
	n.Children = append(n.Children, right.Children...)
}

// ChildIndex returns the position of child in n's children, or -1.
func (n *Node) ChildIndex(child hlt.Ref) int {
	for i, c := range n.Children {
		if c == child {
			return i
		}
	}
	return -1
}

// LeftSibling returns the child to the left of the given one
// and the index of the key separating them.
// The boolean is false if child is leftmost or not a child of n.
func (n *Node) LeftSibling(child hlt.Ref) (hlt.Ref, int, bool) {
	i := n.ChildIndex(child)
	if i <= 0 {
		return hlt.Zero, -1, false
	}
	return n.Children[i-1], i - 1, true
}

// RightSibling returns the child to the right of the given one
// and the index of the key separating them.
// The boolean is false if child is rightmost or not a child of n.
func (n *Node) RightSibling(child hlt.Ref) (hlt.Ref, int, bool) {
	i := n.ChildIndex(child)
	if i < 0 || i >= len(n.Children)-1 {
		return hlt.Zero, -1, false
	}
	return n.Children[i+1], i, true
}

// UpdateChildRef replaces the child old with new.
// It reports whether old was found.
func (n *Node) UpdateChildRef(old, new hlt.Ref) bool {
	i := n.ChildIndex(old)
	if i < 0 {
		return false
	}
	n.Children[i] = new
	return true
}

// removeSeparator removes the key at index i and the child to its right,
// which is what a merge around that key leaves behind in the parent.
func (n *Node) removeSeparator(i int) {
	n.Keys = removeBytes(n.Keys, i)
	if n.Kind == MapKind {
		n.Values = removeBytes(n.Values, i)
	}
	n.Children = removeRef(n.Children, i+1)
}

// Clone produces a copy of n that shares no slices with it.
func (n *Node) Clone() *Node {
	out := &Node{Kind: n.Kind}
	out.Keys = append(out.Keys, n.Keys...)
	out.Values = append(out.Values, n.Values...)
	out.Children = append(out.Children, n.Children...)
	return out
}

func insertBytes(s [][]byte, i int, b []byte) [][]byte {
	out := make([][]byte, 0, len(s)+1)
	out = append(out, s[:i]...)
	out = append(out, b)
	return append(out, s[i:]...)
}

func removeBytes(s [][]byte, i int) [][]byte {
	out := make([][]byte, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}

func insertRef(s []hlt.Ref, i int, r hlt.Ref) []hlt.Ref {
	out := make([]hlt.Ref, 0, len(s)+1)
	out = append(out, s[:i]...)
	out = append(out, r)
	return append(out, s[i:]...)
}

func removeRef(s []hlt.Ref, i int) []hlt.Ref {
	out := make([]hlt.Ref, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}
