// Package tree implements a B-tree whose nodes are immutable chunks in a content-addressed store.
//
// A tree's state is a single ref: the hash of its root node.
// Changing the tree never changes a stored node.
// Instead, the path from the root to the affected node is copied,
// modified,
// and written back as new chunks,
// producing a new root ref.
// Any holder of an old root ref continues to see a consistent snapshot.
//
// A tree is either a set (keys only) or a map (keys with values),
// chosen when the tree is created.
// A tree owned by another peer is a read-only view
// whose nodes are fetched from the owner when they are not in the local store.
package tree
