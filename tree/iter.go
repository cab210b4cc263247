package tree

import (
	"context"

	"github.com/bobg/hlt"
)

// Iterator walks a tree's keys in ascending order.
// It holds the root ref that was current when it was created,
// and loads nodes only as it reaches them.
//
// Typical use:
//
//	it := t.Iterator()
//	for it.Next(ctx) {
//	  ... it.Key() ... it.Value() ...
//	}
//	if err := it.Err(); err != nil {
//	  ...
//	}
type Iterator struct {
	ns      *nodes
	root    hlt.Ref
	stack   []*frame
	started bool
	pending *hlt.Ref

	key, value []byte
	err        error
}

type frame struct {
	node *Node
	i    int
}

// Iterator produces an Iterator positioned before the first key.
func (t *Tree) Iterator() *Iterator {
	return &Iterator{ns: t.ns, root: t.root}
}

// Next advances to the next key,
// returning false when there are no more or an error occurs.
func (it *Iterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	if !it.started {
		it.started = true
		if it.root.IsZero() {
			return false
		}
		if it.err = it.descend(ctx, it.root); it.err != nil {
			return false
		}
	} else if it.pending != nil {
		ref := *it.pending
		it.pending = nil
		if it.err = it.descend(ctx, ref); it.err != nil {
			return false
		}
	}

	for len(it.stack) > 0 {
		top := it.stack[len(it.stack)-1]
		if top.i < len(top.node.Keys) {
			it.key, it.value = top.node.Keys[top.i], top.node.value(top.i)
			top.i++
			if !top.node.IsLeaf() {
				// Visit the subtree right of this key before the next key.
				ref := top.node.Children[top.i]
				it.pending = &ref
			}
			return true
		}
		it.stack = it.stack[:len(it.stack)-1]
	}
	it.key, it.value = nil, nil
	return false
}

// descend pushes ref and the leftmost path below it.
func (it *Iterator) descend(ctx context.Context, ref hlt.Ref) error {
	for {
		n, err := it.ns.load(ctx, ref)
		if err != nil {
			return err
		}
		it.stack = append(it.stack, &frame{node: n})
		if n.IsLeaf() {
			return nil
		}
		ref = n.Children[0]
	}
}

// Key is the current key.
func (it *Iterator) Key() []byte { return it.key }

// Value is the current value in a map, nil in a set.
func (it *Iterator) Value() []byte { return it.value }

// Err is the error, if any, that stopped the iteration.
func (it *Iterator) Err() error { return it.err }

// Reset rewinds the iterator to before the first key of the same root.
func (it *Iterator) Reset() {
	*it = Iterator{ns: it.ns, root: it.root}
}
