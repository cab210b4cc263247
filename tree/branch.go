package tree

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/hlt"
)

// nodes loads and stores the nodes of one tree.
type nodes struct {
	store    hlt.Store
	resolver *hlt.Resolver
	owner    hlt.PeerID
	kind     Kind

	// Chunks by ref, shared by every Branch and Iterator of the tree.
	// Nil means no reuse.
	chunks *lru.Cache
}

// chunk returns the Chunk for ref,
// reusing one from an earlier load if it is still cached.
func (ns *nodes) chunk(ref hlt.Ref) *hlt.Chunk {
	if ns.chunks == nil {
		return hlt.NewChunk(ref, ns.owner)
	}
	if v, ok := ns.chunks.Get(ref); ok {
		return v.(*hlt.Chunk)
	}
	c := hlt.NewChunk(ref, ns.owner)
	ns.chunks.Add(ref, c)
	return c
}

// load decodes a fresh Node from the chunk at ref.
// Decoded nodes are never shared, since a Branch changes them in place.
func (ns *nodes) load(ctx context.Context, ref hlt.Ref) (*Node, error) {
	c := ns.chunk(ref)
	cached := c.Fetched()
	blob, err := c.Fetch(ctx, ns.resolver)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving node %s", ref)
	}
	switch {
	case cached:
		nodesLoaded.WithLabelValues("cache").Inc()
	case c.Local():
		nodesLoaded.WithLabelValues("local").Inc()
	default:
		nodesLoaded.WithLabelValues("remote").Inc()
	}
	n, err := Decode(blob)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding node %s", ref)
	}
	if n.Kind != ns.kind {
		return nil, errors.Wrapf(ErrCorruptNode, "node %s is a %s node in a %s tree", ref, n.Kind, ns.kind)
	}
	return n, nil
}

func (ns *nodes) save(ctx context.Context, n *Node) (hlt.Ref, error) {
	ref, _, err := ns.store.Put(ctx, n.Encode())
	if err != nil {
		return hlt.Zero, errors.Wrap(err, "storing node")
	}
	nodesStored.Inc()
	return ref, nil
}

// level is one step of a Branch:
// a node and the ref it was loaded from,
// which is also the ref its parent holds for it.
// The node may have been changed since loading.
type level struct {
	ref  hlt.Ref
	node *Node
}

// Branch is the path from a tree's root to the node nearest some key.
// Mutations change the nodes in the path,
// then rewrite them bottom-up into the store,
// relinking each parent to its child's new ref.
// A Branch is good for one mutation.
type Branch struct {
	ns     *nodes
	origin hlt.Ref
	path   []*level

	// ContainsKey is set by OpenToKey when the key was found.
	// The key is then at index KeyIndex of the last node in the path.
	ContainsKey bool
	KeyIndex    int
}

func (ns *nodes) branch(origin hlt.Ref) *Branch {
	return &Branch{ns: ns, origin: origin}
}

// Depth is the number of nodes in the path.
func (b *Branch) Depth() int {
	return len(b.path)
}

// Last is the deepest node in the path.
func (b *Branch) Last() *Node {
	return b.path[len(b.path)-1].node
}

func (b *Branch) push(ctx context.Context, ref hlt.Ref) (*Node, error) {
	n, err := b.ns.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	b.path = append(b.path, &level{ref: ref, node: n})
	return n, nil
}

// OpenToKey descends from the origin toward key.
// It stops at the node containing key,
// or at the leaf where key would be inserted.
func (b *Branch) OpenToKey(ctx context.Context, key []byte) error {
	ref := b.origin
	for {
		n, err := b.push(ctx, ref)
		if err != nil {
			return err
		}
		step, child := n.Follow(key)
		switch step {
		case Found:
			b.ContainsKey = true
			b.KeyIndex, _ = n.search(key)
			return nil
		case Exhausted:
			return nil
		}
		ref = child
	}
}

// OpenToLeftmostLeaf descends from the origin always through the first child.
func (b *Branch) OpenToLeftmostLeaf(ctx context.Context) error {
	return b.openToEdge(ctx, func(n *Node) hlt.Ref { return n.Children[0] })
}

// OpenToRightmostLeaf descends from the origin always through the last child.
func (b *Branch) OpenToRightmostLeaf(ctx context.Context) error {
	return b.openToEdge(ctx, func(n *Node) hlt.Ref { return n.Children[len(n.Children)-1] })
}

func (b *Branch) openToEdge(ctx context.Context, next func(*Node) hlt.Ref) error {
	ref := b.origin
	for {
		n, err := b.push(ctx, ref)
		if err != nil {
			return err
		}
		if n.IsLeaf() {
			return nil
		}
		ref = next(n)
	}
}

// Append extends b with the path of other,
// whose origin must be a child of b's last node.
func (b *Branch) Append(other *Branch) error {
	if len(other.path) == 0 {
		return nil
	}
	if b.Last().ChildIndex(other.path[0].ref) < 0 {
		return errors.Wrapf(ErrCorruptNode, "appended branch at %s is not a child of %s", other.path[0].ref, b.path[len(b.path)-1].ref)
	}
	b.path = append(b.path, other.path...)
	return nil
}

// SplitUpward splits the deepest node if it has more than maxElements,
// storing both halves and promoting the median into the parent,
// then does the same for the parent,
// and so on toward the root.
// If the root splits, a new root is created above it.
// The result is the depth of the shallowest node that changed but has not yet been stored,
// suitable for passing to Commit.
func (b *Branch) SplitUpward(ctx context.Context, maxElements int) (int, error) {
	d := len(b.path) - 1
	for ; d >= 0; d-- {
		lv := b.path[d]
		if lv.node.NumElements() <= maxElements {
			return d, nil
		}

		key, value, right := lv.node.Split()
		splits.Inc()

		leftRef, err := b.ns.save(ctx, lv.node)
		if err != nil {
			return 0, err
		}
		rightRef, err := b.ns.save(ctx, right)
		if err != nil {
			return 0, err
		}

		if d == 0 {
			root := &Node{
				Kind:     lv.node.Kind,
				Keys:     [][]byte{key},
				Children: []hlt.Ref{leftRef, rightRef},
			}
			if root.Kind == MapKind {
				root.Values = [][]byte{value}
			}
			lv.ref = leftRef
			b.path = append([]*level{{node: root}}, b.path...)
			return 0, nil
		}

		parent := b.path[d-1].node
		if !parent.UpdateChildRef(lv.ref, leftRef) {
			return 0, errors.Wrapf(ErrCorruptNode, "parent does not hold child %s", lv.ref)
		}
		lv.ref = leftRef
		parent.Insert(key, value, &rightRef)
	}
	return 0, nil
}

// RebalanceUpward restores the lower bound on the deepest node if it has fewer than minElements,
// borrowing an element from a sibling through the parent when a sibling can spare one,
// or otherwise merging with a sibling and pulling the separator down from the parent,
// then checks the parent the same way.
// A root left with no keys and one child is replaced by that child.
// The result is the depth of the shallowest node that changed but has not yet been stored,
// suitable for passing to Commit.
func (b *Branch) RebalanceUpward(ctx context.Context, minElements int) (int, error) {
	for d := len(b.path) - 1; d > 0; d-- {
		lv := b.path[d]
		if lv.node.NumElements() >= minElements {
			return d, nil
		}

		parent := b.path[d-1].node
		leftRef, li, hasLeft := parent.LeftSibling(lv.ref)
		rightRef, ri, hasRight := parent.RightSibling(lv.ref)
		if !hasLeft && !hasRight {
			return 0, errors.Wrapf(ErrCorruptNode, "node %s has no siblings", lv.ref)
		}

		var left, right *Node
		eg, ectx := errgroup.WithContext(ctx)
		if hasLeft {
			eg.Go(func() (err error) {
				left, err = b.ns.load(ectx, leftRef)
				return errors.Wrap(err, "loading left sibling")
			})
		}
		if hasRight {
			eg.Go(func() (err error) {
				right, err = b.ns.load(ectx, rightRef)
				return errors.Wrap(err, "loading right sibling")
			})
		}
		if err := eg.Wait(); err != nil {
			return 0, err
		}

		leftLends := hasLeft && left.NumElements() > minElements
		rightLends := hasRight && right.NumElements() > minElements

		switch {
		case leftLends && (!rightLends || left.NumElements() >= right.NumElements()):
			k, v, c := left.PopRightmost()
			lv.node.PushLeft(parent.Keys[li], parent.value(li), c)
			parent.Replace(li, k, v)
			rotations.Inc()
			if err := b.relink(ctx, parent, leftRef, left); err != nil {
				return 0, err
			}
			if err := b.relinkLevel(ctx, parent, lv); err != nil {
				return 0, err
			}
			return d - 1, nil

		case rightLends:
			k, v, c := right.PopLeftmost()
			lv.node.PushRight(parent.Keys[ri], parent.value(ri), c)
			parent.Replace(ri, k, v)
			rotations.Inc()
			if err := b.relink(ctx, parent, rightRef, right); err != nil {
				return 0, err
			}
			if err := b.relinkLevel(ctx, parent, lv); err != nil {
				return 0, err
			}
			return d - 1, nil

		case hasLeft:
			left.MergeWith(lv.node, parent.Keys[li], parent.value(li))
			parent.removeSeparator(li)
			merges.Inc()
			b.path[d] = &level{ref: leftRef, node: left}
			if err := b.relinkLevel(ctx, parent, b.path[d]); err != nil {
				return 0, err
			}

		default:
			lv.node.MergeWith(right, parent.Keys[ri], parent.value(ri))
			parent.removeSeparator(ri)
			merges.Inc()
			if err := b.relinkLevel(ctx, parent, lv); err != nil {
				return 0, err
			}
		}
	}

	root := b.path[0].node
	if root.NumElements() == 0 && len(root.Children) == 1 {
		if len(b.path) < 2 || b.path[1].ref != root.Children[0] {
			return 0, errors.Wrap(ErrCorruptNode, "collapsing root without its surviving child")
		}
		b.path = b.path[1:]
	}
	return 0, nil
}

// relink stores n, which parent holds as old,
// and points parent at the stored copy.
func (b *Branch) relink(ctx context.Context, parent *Node, old hlt.Ref, n *Node) error {
	ref, err := b.ns.save(ctx, n)
	if err != nil {
		return err
	}
	if !parent.UpdateChildRef(old, ref) {
		return errors.Wrapf(ErrCorruptNode, "parent does not hold child %s", old)
	}
	return nil
}

func (b *Branch) relinkLevel(ctx context.Context, parent *Node, lv *level) error {
	ref, err := b.ns.save(ctx, lv.node)
	if err != nil {
		return err
	}
	if !parent.UpdateChildRef(lv.ref, ref) {
		return errors.Wrapf(ErrCorruptNode, "parent does not hold child %s", lv.ref)
	}
	lv.ref = ref
	return nil
}

// Commit stores the nodes of the path from depth fromDepth up to the root,
// relinking each parent to its child's new ref.
// Storing an unchanged node again is harmless:
// it produces the same ref.
// The result is the new root ref,
// and a boolean that is true if the tree is now empty,
// in which case the ref is the zero Ref and nothing is stored for the root.
func (b *Branch) Commit(ctx context.Context, fromDepth int) (hlt.Ref, bool, error) {
	if fromDepth >= len(b.path) {
		fromDepth = len(b.path) - 1
	}
	for d := fromDepth; d > 0; d-- {
		if err := b.relinkLevel(ctx, b.path[d-1].node, b.path[d]); err != nil {
			return hlt.Zero, false, err
		}
	}
	root := b.path[0]
	if root.node.IsLeaf() && root.node.NumElements() == 0 {
		return hlt.Zero, true, nil
	}
	ref, err := b.ns.save(ctx, root.node)
	if err != nil {
		return hlt.Zero, false, err
	}
	root.ref = ref
	return ref, false, nil
}
