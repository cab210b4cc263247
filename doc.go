// Package hlt is the content-addressed core of a hash-linked tree.
//
// A content-addressed store keeps sequences of bytes,
// or _blobs_,
// and indexes them by their hash,
// which is used as a unique key.
// This key is called the blob's reference, or _ref_.
// This module uses sha2-256.
//
// Because a ref is computed from content,
// identical bytes always have the same ref,
// and any change to some data changes its ref too.
// The tree package builds a B-tree on this property:
// each node is a blob,
// each parent holds the refs of its children,
// and so the root ref alone identifies the entire contents of a tree.
// Mutations never change a stored node;
// they store new nodes along the changed path,
// ending in a new root.
//
// Since a tree's root changes with every mutation,
// the anchor package describes stores that also keep _anchors_:
// names mapped to a timestamped history of refs.
// An anchor gives a tree a stable name.
//
// A chunk whose contents are not in the local store
// may be resolved from the peer that owns it.
// See Resolver, Chunk, and the peer package.
//
// Store implementations are in subpackages of store.
package hlt
