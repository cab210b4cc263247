package hlt

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Resolver resolves refs to blobs,
// first from a local store and then,
// if that fails and the chunk has an owner,
// from the owner via Remote.
type Resolver struct {
	Local  Getter
	Remote Fetcher

	// Cache, if non-nil, receives copies of remotely fetched blobs.
	Cache Store
}

// Get resolves ref with a local lookup,
// falling back to a remote fetch from owner.
// An empty owner means the lookup is local-only.
func (r *Resolver) Get(ctx context.Context, ref Ref, owner PeerID) (Blob, error) {
	blob, _, err := r.get(ctx, ref, owner)
	return blob, err
}

func (r *Resolver) get(ctx context.Context, ref Ref, owner PeerID) (Blob, bool, error) {
	if r.Local != nil {
		blob, err := r.Local.Get(ctx, ref)
		if err == nil {
			return blob, true, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, errors.Wrapf(err, "getting %s locally", ref)
		}
	}
	if owner == "" {
		return nil, false, errors.Wrapf(ErrNotFound, "chunk %s not found locally, owner unknown", ref)
	}
	if r.Remote == nil {
		return nil, false, errors.Wrapf(ErrNotFound, "chunk %s not found locally, no remote fetcher", ref)
	}
	blob, err := r.Remote.Fetch(ctx, ref, owner)
	if err != nil {
		return nil, false, errors.Wrapf(err, "fetching %s from %s", ref, owner)
	}
	if got := blob.Ref(); got != ref {
		return nil, false, errors.Wrapf(ErrHashMismatch, "peer %s sent %s for %s", owner, got, ref)
	}
	if r.Cache != nil {
		if _, _, err = r.Cache.Put(ctx, blob); err != nil {
			return nil, false, errors.Wrapf(err, "caching %s", ref)
		}
	}
	return blob, false, nil
}

// Getter produces a Getter that resolves through r on behalf of owner.
// Its ListRefs lists only the local store.
func (r *Resolver) Getter(owner PeerID) Getter {
	return ownerGetter{r: r, owner: owner}
}

type ownerGetter struct {
	r     *Resolver
	owner PeerID
}

func (g ownerGetter) Get(ctx context.Context, ref Ref) (Blob, error) {
	return g.r.Get(ctx, ref, g.owner)
}

func (g ownerGetter) ListRefs(ctx context.Context, start Ref, f func(Ref) error) error {
	if g.r.Local == nil {
		return nil
	}
	return g.r.Local.ListRefs(ctx, start, f)
}

// Chunk is a handle to a piece of content-addressed data.
// Its contents are resolved lazily, on the first call to Fetch.
type Chunk struct {
	ID    Ref
	Owner PeerID

	mu    sync.Mutex
	data  Blob
	local bool
}

// NewChunk produces a Chunk for id.
// An empty owner means the chunk resolves only from the local store.
func NewChunk(id Ref, owner PeerID) *Chunk {
	return &Chunk{ID: id, Owner: owner}
}

// Fetch gets the chunk's contents through r.
// The result of the first successful call is kept and returned by later calls.
func (c *Chunk) Fetch(ctx context.Context, r *Resolver) (Blob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data != nil {
		return c.data, nil
	}
	blob, local, err := r.get(ctx, c.ID, c.Owner)
	if err != nil {
		return nil, err
	}
	if blob == nil {
		blob = Blob{}
	}
	c.data, c.local = blob, local
	return blob, nil
}

// Fetched tells whether the chunk's contents are already held.
func (c *Chunk) Fetched() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data != nil
}

// Local tells whether the fetched contents came from the local store.
// It is false before the first successful Fetch.
func (c *Chunk) Local() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

// RefsFunc extracts the chunk references nested in a blob.
type RefsFunc func(Blob) ([]Ref, error)

// Expansion is a chunk with its contents and,
// to some depth,
// the expansions of the chunks it refers to.
type Expansion struct {
	Chunk    *Chunk
	Blob     Blob
	Children []*Expansion
}

// Expand fetches c and follows the references that refs finds in it,
// down to the given depth.
// Depth zero fetches c alone.
// Nested chunks inherit c's owner.
func (c *Chunk) Expand(ctx context.Context, r *Resolver, depth int, refs RefsFunc) (*Expansion, error) {
	blob, err := c.Fetch(ctx, r)
	if err != nil {
		return nil, err
	}
	result := &Expansion{Chunk: c, Blob: blob}
	if depth <= 0 {
		return result, nil
	}
	nested, err := refs(blob)
	if err != nil {
		return nil, errors.Wrapf(err, "finding refs in %s", c.ID)
	}
	for _, ref := range nested {
		sub, err := NewChunk(ref, c.Owner).Expand(ctx, r, depth-1, refs)
		if err != nil {
			return nil, errors.Wrapf(err, "expanding %s", ref)
		}
		result.Children = append(result.Children, sub)
	}
	return result, nil
}
