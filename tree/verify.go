package tree

import (
	"bytes"
	"context"

	"github.com/pkg/errors"

	"github.com/bobg/hlt"
)

// Verify walks every node reachable from the root
// and checks the tree's shape:
// key order within and across nodes,
// child counts,
// the bounds on the number of keys in each non-root node,
// and that all leaves are at the same depth.
// The first violation found is reported as ErrCorruptNode.
func (t *Tree) Verify(ctx context.Context) error {
	if t.root.IsZero() {
		return nil
	}
	v := &verifier{t: t, leafDepth: -1}
	return v.check(ctx, t.root, 0, nil, nil)
}

type verifier struct {
	t         *Tree
	leafDepth int
}

// check verifies the subtree at ref,
// all of whose keys must be strictly between lo and hi (nil meaning unbounded).
func (v *verifier) check(ctx context.Context, ref hlt.Ref, depth int, lo, hi []byte) error {
	n, err := v.t.ns.load(ctx, ref)
	if err != nil {
		return err
	}

	if depth == 0 {
		if n.NumElements() == 0 {
			return errors.Wrapf(ErrCorruptNode, "root %s has no keys", ref)
		}
	} else if n.NumElements() < v.t.minElements() {
		return errors.Wrapf(ErrCorruptNode, "node %s at depth %d has %d keys, fewer than %d", ref, depth, n.NumElements(), v.t.minElements())
	}
	if n.NumElements() > v.t.maxElements() {
		return errors.Wrapf(ErrCorruptNode, "node %s at depth %d has %d keys, more than %d", ref, depth, n.NumElements(), v.t.maxElements())
	}
	if len(n.Keys) > 0 {
		if lo != nil && bytes.Compare(n.Keys[0], lo) <= 0 {
			return errors.Wrapf(ErrCorruptNode, "node %s has key %x not above separator %x", ref, n.Keys[0], lo)
		}
		if hi != nil && bytes.Compare(n.Keys[len(n.Keys)-1], hi) >= 0 {
			return errors.Wrapf(ErrCorruptNode, "node %s has key %x not below separator %x", ref, n.Keys[len(n.Keys)-1], hi)
		}
	}

	if n.IsLeaf() {
		if v.leafDepth < 0 {
			v.leafDepth = depth
		} else if v.leafDepth != depth {
			return errors.Wrapf(ErrCorruptNode, "leaf %s at depth %d, others at depth %d", ref, depth, v.leafDepth)
		}
		return nil
	}

	for i, child := range n.Children {
		clo, chi := lo, hi
		if i > 0 {
			clo = n.Keys[i-1]
		}
		if i < len(n.Keys) {
			chi = n.Keys[i]
		}
		if err := v.check(ctx, child, depth+1, clo, chi); err != nil {
			return err
		}
	}
	return nil
}

// Mirror copies every node reachable from the root into the tree's store,
// so that a read-only view survives its owner going offline.
// Nodes are fetched a level at a time.
// It returns the number of nodes copied that were not already present.
func (t *Tree) Mirror(ctx context.Context) (int, error) {
	if t.root.IsZero() {
		return 0, nil
	}

	var (
		added int
		g     = t.ns.resolver.Getter(t.ns.owner)
		refs  = []hlt.Ref{t.root}
	)
	for len(refs) > 0 {
		blobs, err := hlt.GetMulti(ctx, g, refs)
		if err != nil {
			return added, errors.Wrap(err, "fetching nodes")
		}
		var next []hlt.Ref
		for _, ref := range refs {
			blob := blobs[ref]
			n, err := Decode(blob)
			if err != nil {
				return added, errors.Wrapf(err, "decoding node %s", ref)
			}
			_, wasAdded, err := t.ns.store.Put(ctx, blob)
			if err != nil {
				return added, errors.Wrapf(err, "storing node %s", ref)
			}
			if wasAdded {
				added++
			}
			next = append(next, n.Children...)
		}
		refs = next
	}
	return added, nil
}
