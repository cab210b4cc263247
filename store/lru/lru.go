// Package lru implements a blob store that acts as a least-recently-used cache for a nested blob store.
package lru

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/bobg/hlt"
	"github.com/bobg/hlt/anchor"
	"github.com/bobg/hlt/store"
)

var _ anchor.Store = &Store{}

// Store implements a memory-based least-recently-used cache for a blob store.
// It caches only blobs, not anchors.
// Writes pass through to the underlying store.
//
// Tree nodes never change once written,
// so a cached node can never be stale.
type Store struct {
	c *lru.Cache // Ref->Blob
	s hlt.Store
}

// New produces a new Store backed by s and caching up to size blobs.
func New(s hlt.Store, size int) (*Store, error) {
	c, err := lru.New(size)
	return &Store{s: s, c: c}, err
}

// Get gets the blob with hash ref.
func (s *Store) Get(ctx context.Context, ref hlt.Ref) (hlt.Blob, error) {
	if got, ok := s.c.Get(ref); ok {
		return got.(hlt.Blob), nil
	}
	blob, err := s.s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	s.c.Add(ref, blob)
	return blob, nil
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b hlt.Blob) (hlt.Ref, bool, error) {
	ref, added, err := s.s.Put(ctx, b)
	if err != nil {
		return ref, added, err
	}
	s.c.Add(ref, append(hlt.Blob{}, b...))
	return ref, added, nil
}

// ListRefs produces all blob refs in the store, in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start hlt.Ref, f func(hlt.Ref) error) error {
	return s.s.ListRefs(ctx, start, f)
}

// Len is the number of blobs in the cache.
func (s *Store) Len() int {
	return s.c.Len()
}

func (s *Store) anchors() (anchor.Store, error) {
	if a, ok := s.s.(anchor.Store); ok {
		return a, nil
	}
	return nil, errors.Errorf("nested store is a %T and not an anchor.Store", s.s)
}

// GetAnchor passes through to the nested store.
func (s *Store) GetAnchor(ctx context.Context, name string, at time.Time) (hlt.Ref, error) {
	a, err := s.anchors()
	if err != nil {
		return hlt.Zero, err
	}
	return a.GetAnchor(ctx, name, at)
}

// PutAnchor passes through to the nested store.
func (s *Store) PutAnchor(ctx context.Context, name string, ref hlt.Ref, at time.Time) error {
	a, err := s.anchors()
	if err != nil {
		return err
	}
	return a.PutAnchor(ctx, name, ref, at)
}

// ListAnchors passes through to the nested store.
func (s *Store) ListAnchors(ctx context.Context, start string, f func(string, hlt.Ref, time.Time) error) error {
	a, err := s.anchors()
	if err != nil {
		return err
	}
	return a.ListAnchors(ctx, start, f)
}

func init() {
	store.Register("lru", func(ctx context.Context, conf map[string]interface{}) (hlt.Store, error) {
		size, ok, err := store.Int(conf, "size")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.New(`missing "size" parameter`)
		}
		nested, err := store.CreateNested(ctx, conf)
		if err != nil {
			return nil, err
		}
		return New(nested, size)
	})
}
