package tree

import "github.com/pkg/errors"

var (
	// ErrReadOnly is the error for a mutation of a tree owned by another peer.
	ErrReadOnly = errors.New("tree is read-only")

	// ErrEmptyTree is the error for removing from an empty tree.
	ErrEmptyTree = errors.New("tree is empty")

	// ErrDuplicateKey is the error for adding a key that is already present.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrCorruptNode is the error for a stored node that violates the tree's shape,
	// or a path whose nodes do not link up.
	ErrCorruptNode = errors.New("corrupt node")

	// ErrWrongKind is the error for supplying a value to a set,
	// or asking a set for a value.
	ErrWrongKind = errors.New("wrong tree kind")
)
