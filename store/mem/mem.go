// Package mem implements an in-memory blob store.
package mem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bobg/hlt"
	"github.com/bobg/hlt/anchor"
	"github.com/bobg/hlt/store"
)

var _ anchor.Store = &Store{}

// Store is a memory-based implementation of a blob store.
type Store struct {
	mu      sync.Mutex
	blobs   map[hlt.Ref]hlt.Blob
	anchors map[string][]hlt.TimeRef
}

// New produces a new Store.
func New() *Store {
	return &Store{
		blobs:   make(map[hlt.Ref]hlt.Blob),
		anchors: make(map[string][]hlt.TimeRef),
	}
}

// Get gets the blob with hash `ref`.
func (s *Store) Get(_ context.Context, ref hlt.Ref) (hlt.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.blobs[ref]; ok {
		return b, nil
	}
	return nil, hlt.ErrNotFound
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(_ context.Context, b hlt.Blob) (hlt.Ref, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added bool

	r := b.Ref()
	if _, ok := s.blobs[r]; !ok {
		s.blobs[r] = append(hlt.Blob{}, b...)
		added = true
	}

	return r, added, nil
}

// Len tells how many blobs are in the store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

// GetAnchor gets the latest blob ref for a given anchor as of a given time.
func (s *Store) GetAnchor(_ context.Context, a string, at time.Time) (hlt.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return hlt.FindAnchor(s.anchors[a], at)
}

// PutAnchor adds a new ref for a given anchor as of a given time.
func (s *Store) PutAnchor(_ context.Context, a string, ref hlt.Ref, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.anchors[a] = append(s.anchors[a], hlt.TimeRef{T: at, R: ref})
	sort.SliceStable(s.anchors[a], func(i, j int) bool {
		return s.anchors[a][i].T.Before(s.anchors[a][j].T)
	})

	return nil
}

// ListRefs produces all blob refs in the store, in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start hlt.Ref, f func(hlt.Ref) error) error {
	s.mu.Lock()
	refs := make([]hlt.Ref, 0, len(s.blobs))
	for ref := range s.blobs {
		refs = append(refs, ref)
	}
	s.mu.Unlock()

	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
	index := sort.Search(len(refs), func(n int) bool {
		return start.Less(refs[n])
	})

	for i := index; i < len(refs); i++ {
		err := f(refs[i])
		if err != nil {
			return err
		}
	}
	return nil
}

// ListAnchors lists all anchors in the store, in lexicographic order.
func (s *Store) ListAnchors(ctx context.Context, start string, f func(string, hlt.Ref, time.Time) error) error {
	s.mu.Lock()
	anchors := make([]string, 0, len(s.anchors))
	for anchor := range s.anchors {
		anchors = append(anchors, anchor)
	}
	s.mu.Unlock()

	sort.Strings(anchors)
	index := sort.Search(len(anchors), func(n int) bool {
		return anchors[n] > start
	})

	for i := index; i < len(anchors); i++ {
		a := anchors[i]
		s.mu.Lock()
		trs := make([]hlt.TimeRef, len(s.anchors[a]))
		copy(trs, s.anchors[a])
		s.mu.Unlock()
		for _, tr := range trs {
			err := f(a, tr.R, tr.T)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func init() {
	store.Register("mem", func(context.Context, map[string]interface{}) (hlt.Store, error) {
		return New(), nil
	})
}
