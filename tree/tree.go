package tree

import (
	"context"
	"log/slog"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/bobg/hlt"
)

const (
	MinDegree = 3
	MaxDegree = 10

	DefaultDegree = 5

	// DefaultChunkCache is the number of node chunks a Tree keeps for reuse
	// when Options.ChunkCache is zero.
	DefaultChunkCache = 1024
)

// Options configure a Tree.
type Options struct {
	// Degree is one more than the maximum number of keys in a node.
	// Zero means DefaultDegree.
	Degree int

	Kind Kind

	// Owner is the peer whose store is authoritative for the tree.
	// An empty Owner, or one equal to Local, makes the tree writable.
	// Any other Owner makes the tree a read-only view
	// whose nodes resolve remotely from Owner when they are not available locally.
	Owner hlt.PeerID

	// Local is the identity of this host.
	Local hlt.PeerID

	// ChunkCache is the number of fetched node chunks kept for reuse across lookups and iterations.
	// Zero means DefaultChunkCache.
	// A negative value turns reuse off,
	// so that every node load goes to the store or the owner.
	ChunkCache int

	Logger *slog.Logger
}

// Tree is a B-tree whose nodes are chunks in a content-addressed store.
// Its entire state is the ref of its root node.
//
// Mutations must be serialized by the caller.
// Reads may run concurrently with each other,
// and an Iterator is unaffected by mutations that happen after it is created.
type Tree struct {
	ns       *nodes
	degree   int
	readOnly bool
	owner    hlt.PeerID
	root     hlt.Ref // zero means empty
	logger   *slog.Logger
}

// New produces an empty Tree.
// Nodes are written to s and read through r.
// If r is nil,
// nodes are read from s alone.
func New(s hlt.Store, r *hlt.Resolver, opts Options) (*Tree, error) {
	degree := opts.Degree
	if degree == 0 {
		degree = DefaultDegree
	}
	if degree < MinDegree || degree > MaxDegree {
		return nil, errors.Wrapf(hlt.ErrInvalidKey, "degree %d outside [%d,%d]", degree, MinDegree, MaxDegree)
	}
	if opts.Kind != SetKind && opts.Kind != MapKind {
		return nil, errors.Wrapf(ErrWrongKind, "unknown kind %d", opts.Kind)
	}
	if r == nil {
		r = &hlt.Resolver{Local: s}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	readOnly := opts.Owner != "" && opts.Owner != opts.Local

	var chunkOwner hlt.PeerID
	if readOnly {
		chunkOwner = opts.Owner
	}

	var chunks *lru.Cache
	if size := opts.ChunkCache; size >= 0 {
		if size == 0 {
			size = DefaultChunkCache
		}
		var err error
		if chunks, err = lru.New(size); err != nil {
			return nil, errors.Wrap(err, "creating chunk cache")
		}
	}

	return &Tree{
		ns: &nodes{
			store:    s,
			resolver: r,
			owner:    chunkOwner,
			kind:     opts.Kind,
			chunks:   chunks,
		},
		degree:   degree,
		readOnly: readOnly,
		owner:    opts.Owner,
		logger:   logger.With("kind", opts.Kind.String(), "degree", degree),
	}, nil
}

func (t *Tree) Degree() int { return t.degree }
func (t *Tree) Kind() Kind { return t.ns.kind }
func (t *Tree) ReadOnly() bool { return t.readOnly }
func (t *Tree) IsEmpty() bool { return t.root.IsZero() }
func (t *Tree) maxElements() int { return t.degree - 1 }
func (t *Tree) minElements() int { return (t.degree - 1) / 2 }

// Root returns the ref of the root node.
// The boolean is false if the tree is empty.
func (t *Tree) Root() (hlt.Ref, bool) {
	return t.root, !t.root.IsZero()
}

// SetRoot points t at an existing root node,
// or empties it if ref is the zero Ref.
// No check is made that the node exists.
func (t *Tree) SetRoot(ref hlt.Ref) {
	t.root = ref
}

// State renders the root ref as a chunk identifier,
// or the empty string for an empty tree.
func (t *Tree) State() string {
	if t.root.IsZero() {
		return ""
	}
	return t.root.Identifier()
}

// SetState is the inverse of State.
// Only the identifier's syntax is checked.
func (t *Tree) SetState(s string) error {
	if s == "" {
		t.root = hlt.Zero
		return nil
	}
	ref, err := hlt.ParseIdentifier(s)
	if err != nil {
		return err
	}
	t.root = ref
	return nil
}

func (t *Tree) setRoot(ref hlt.Ref, op string) {
	t.logger.Debug("new root", "op", op, "old", t.State(), "new", ref.Identifier())
	t.root = ref
}

func (t *Tree) checkWrite(key, value []byte) error {
	if t.readOnly {
		return errors.Wrapf(ErrReadOnly, "tree owned by %s", t.owner)
	}
	if len(key) == 0 {
		return errors.Wrap(hlt.ErrInvalidKey, "empty key")
	}
	if t.ns.kind == SetKind && value != nil {
		return errors.Wrap(ErrWrongKind, "value supplied for a set")
	}
	return nil
}

// Add adds key to a set.
// It is ErrDuplicateKey if key is already present.
func (t *Tree) Add(ctx context.Context, key []byte) error {
	return t.Insert(ctx, key, nil)
}

// AddBlob stores blob and adds its ref to a set.
// It returns the ref.
func (t *Tree) AddBlob(ctx context.Context, blob hlt.Blob) (hlt.Ref, error) {
	if t.readOnly {
		return hlt.Zero, errors.Wrapf(ErrReadOnly, "tree owned by %s", t.owner)
	}
	ref, _, err := t.ns.store.Put(ctx, blob)
	if err != nil {
		return hlt.Zero, errors.Wrap(err, "storing element")
	}
	return ref, t.Add(ctx, ref[:])
}

// Insert adds key, with value in a map, to the tree.
// It is ErrDuplicateKey if key is already present.
func (t *Tree) Insert(ctx context.Context, key, value []byte) error {
	return t.insert(ctx, key, value, false)
}

// Put adds key and value to a map,
// replacing any existing value for key.
func (t *Tree) Put(ctx context.Context, key, value []byte) error {
	if t.ns.kind != MapKind {
		return errors.Wrap(ErrWrongKind, "put on a set")
	}
	return t.insert(ctx, key, value, true)
}

func (t *Tree) insert(ctx context.Context, key, value []byte, replace bool) error {
	if err := t.checkWrite(key, value); err != nil {
		return err
	}
	if t.ns.kind == MapKind && value == nil {
		value = []byte{}
	}

	if t.root.IsZero() {
		n := &Node{Kind: t.ns.kind, Keys: [][]byte{key}}
		if n.Kind == MapKind {
			n.Values = [][]byte{value}
		}
		ref, err := t.ns.save(ctx, n)
		if err != nil {
			return err
		}
		t.setRoot(ref, "insert")
		return nil
	}

	b := t.ns.branch(t.root)
	if err := b.OpenToKey(ctx, key); err != nil {
		return errors.Wrap(err, "finding insertion point")
	}

	var depth int
	if b.ContainsKey {
		if !replace {
			return errors.Wrapf(ErrDuplicateKey, "key %x", key)
		}
		b.Last().Replace(b.KeyIndex, key, value)
		depth = b.Depth() - 1
	} else {
		b.Last().Insert(key, value, nil)
		var err error
		depth, err = b.SplitUpward(ctx, t.maxElements())
		if err != nil {
			return errors.Wrap(err, "splitting")
		}
	}

	ref, _, err := b.Commit(ctx, depth)
	if err != nil {
		return errors.Wrap(err, "committing insert")
	}
	t.setRoot(ref, "insert")
	return nil
}

// Remove removes key from the tree and returns its value (nil in a set).
// It is ErrEmptyTree on an empty tree
// and hlt.ErrNotFound if key is absent.
func (t *Tree) Remove(ctx context.Context, key []byte) ([]byte, error) {
	if t.readOnly {
		return nil, errors.Wrapf(ErrReadOnly, "tree owned by %s", t.owner)
	}
	if t.root.IsZero() {
		return nil, ErrEmptyTree
	}

	b := t.ns.branch(t.root)
	if err := b.OpenToKey(ctx, key); err != nil {
		return nil, errors.Wrap(err, "finding key")
	}
	if !b.ContainsKey {
		return nil, errors.Wrapf(hlt.ErrNotFound, "key %x", key)
	}

	var (
		n     = b.Last()
		i     = b.KeyIndex
		value []byte
	)
	if n.IsLeaf() {
		value = n.RemoveAt(i)
	} else {
		// The key is a separator.
		// Replace it with its in-order predecessor,
		// the rightmost key in the subtree to its left,
		// and continue as if that key had been removed from its leaf.
		value = n.value(i)
		sub := t.ns.branch(n.Children[i])
		if err := sub.OpenToRightmostLeaf(ctx); err != nil {
			return nil, errors.Wrap(err, "finding predecessor")
		}
		pk, pv, _ := sub.Last().PopRightmost()
		n.Replace(i, pk, pv)
		if err := b.Append(sub); err != nil {
			return nil, err
		}
	}

	depth, err := b.RebalanceUpward(ctx, t.minElements())
	if err != nil {
		return nil, errors.Wrap(err, "rebalancing")
	}
	ref, empty, err := b.Commit(ctx, depth)
	if err != nil {
		return nil, errors.Wrap(err, "committing remove")
	}
	if empty {
		t.logger.Debug("tree emptied", "old", t.State())
		t.root = hlt.Zero
	} else {
		t.setRoot(ref, "remove")
	}
	return value, nil
}

// Has tells whether key is in the tree.
func (t *Tree) Has(ctx context.Context, key []byte) (bool, error) {
	_, found, err := t.lookup(ctx, key)
	return found, err
}

// HasBlob tells whether the ref of blob is in the tree.
// The blob need not be stored.
func (t *Tree) HasBlob(ctx context.Context, blob hlt.Blob) (bool, error) {
	ref := blob.Ref()
	return t.Has(ctx, ref[:])
}

// RemoveBlob removes the ref of blob from the tree,
// the counterpart of AddBlob.
// The blob itself stays in the store.
func (t *Tree) RemoveBlob(ctx context.Context, blob hlt.Blob) error {
	ref := blob.Ref()
	_, err := t.Remove(ctx, ref[:])
	return err
}

// Get returns the value for key in a map.
// It is hlt.ErrNotFound if key is absent.
func (t *Tree) Get(ctx context.Context, key []byte) ([]byte, error) {
	if t.ns.kind != MapKind {
		return nil, errors.Wrap(ErrWrongKind, "get on a set")
	}
	value, found, err := t.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrapf(hlt.ErrNotFound, "key %x", key)
	}
	return value, nil
}

func (t *Tree) lookup(ctx context.Context, key []byte) ([]byte, bool, error) {
	ref := t.root
	for !ref.IsZero() {
		n, err := t.ns.load(ctx, ref)
		if err != nil {
			return nil, false, err
		}
		var step Step
		step, ref = n.Follow(key)
		switch step {
		case Found:
			i, _ := n.search(key)
			return n.value(i), true, nil
		case Exhausted:
			return nil, false, nil
		}
	}
	return nil, false, nil
}

// Each calls f on every key (with its value, in a map) in ascending order.
// If f returns an error, Each stops and returns that error.
func (t *Tree) Each(ctx context.Context, f func(key, value []byte) error) error {
	it := t.Iterator()
	for it.Next(ctx) {
		if err := f(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return it.Err()
}

// Len counts the keys in the tree.
func (t *Tree) Len(ctx context.Context) (int, error) {
	var n int
	err := t.Each(ctx, func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}

// Depth is the number of levels in the tree, zero when empty.
func (t *Tree) Depth(ctx context.Context) (int, error) {
	if t.root.IsZero() {
		return 0, nil
	}
	b := t.ns.branch(t.root)
	if err := b.OpenToLeftmostLeaf(ctx); err != nil {
		return 0, err
	}
	return b.Depth(), nil
}
