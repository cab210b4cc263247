// Package transform implements a blob store that can transform blobs into and out of a nested store.
package transform

import (
	"compress/lzw"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/hlt"
	"github.com/bobg/hlt/anchor"
	"github.com/bobg/hlt/store"
	"github.com/bobg/hlt/tree"
)

var _ anchor.Store = &Store{}

// Store is a blob store wrapping a nested anchor.Store and a Transformer.
// Blobs are transformed according to the Transformer on their way in and out of the nested store.
//
// The mapping from each blob's ref to the ref of its transformed form
// is a map tree whose nodes live untransformed in the nested store.
// Its root is saved at a fixed anchor after every Put.
type Store struct {
	s anchor.Store
	x Transformer
	a string // anchor name for the ref map's root

	mu sync.Mutex // protects m
	m  *tree.Tree // untransformed ref -> transformed ref
}

// Transformer tells how to transform a blob on its way into and out of a Store.
// Out should be the inverse of In.
type Transformer interface {
	// In transforms a blob on its way into the store.
	In(context.Context, hlt.Blob) (hlt.Blob, error)

	// Out transforms a blob on its way out of the store.
	Out(context.Context, hlt.Blob) (hlt.Blob, error)
}

// New produces a Store on s.
// If anchor a already exists in s,
// the ref map is reopened from it.
func New(ctx context.Context, s anchor.Store, x Transformer, a string) (*Store, error) {
	m, err := tree.New(s, nil, tree.Options{Kind: tree.MapKind})
	if err != nil {
		return nil, err
	}

	ref, err := s.GetAnchor(ctx, a, time.Now())
	if errors.Is(err, hlt.ErrNotFound) {
		// New, empty map.
	} else if err != nil {
		return nil, errors.Wrapf(err, "getting anchor %s", a)
	} else {
		m.SetRoot(ref)
	}

	return &Store{s: s, x: x, a: a, m: m}, nil
}

// Get gets the blob with hash ref,
// undoing the transformation.
func (s *Store) Get(ctx context.Context, ref hlt.Ref) (hlt.Blob, error) {
	cref, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}

	blob, err := s.s.Get(ctx, cref)
	if err != nil {
		return nil, errors.Wrap(err, "getting transformed blob")
	}

	if ref != cref {
		blob, err = s.x.Out(ctx, blob)
		if err != nil {
			return nil, errors.Wrap(err, "untransforming blob")
		}
	}
	if got := blob.Ref(); got != ref {
		return nil, errors.Wrapf(hlt.ErrHashMismatch, "untransformed %s is %s", ref, got)
	}
	return blob, nil
}

func (s *Store) lookup(ctx context.Context, ref hlt.Ref) (hlt.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	got, err := s.m.Get(ctx, ref[:])
	if err != nil {
		return hlt.Zero, errors.Wrap(err, "consulting ref map")
	}
	if len(got) != len(hlt.Zero) {
		return hlt.Zero, errors.Wrapf(tree.ErrCorruptNode, "ref map has a %d-byte value for %s", len(got), ref)
	}
	return hlt.RefFromBytes(got), nil
}

// Put transforms blob and adds the result to the nested store,
// recording the transformed ref under blob's ref.
func (s *Store) Put(ctx context.Context, blob hlt.Blob) (hlt.Ref, bool, error) {
	ref := blob.Ref()

	s.mu.Lock()
	defer s.mu.Unlock()

	has, err := s.m.Has(ctx, ref[:])
	if err != nil {
		return hlt.Zero, false, errors.Wrap(err, "consulting ref map")
	}
	if has {
		return ref, false, nil
	}

	cblob, err := s.x.In(ctx, blob)
	if err != nil {
		return hlt.Zero, false, errors.Wrap(err, "transforming blob")
	}
	cref, _, err := s.s.Put(ctx, cblob)
	if err != nil {
		return hlt.Zero, false, errors.Wrap(err, "storing transformed blob")
	}

	if err = s.m.Put(ctx, ref[:], cref[:]); err != nil {
		return hlt.Zero, false, errors.Wrap(err, "updating ref map")
	}
	root, _ := s.m.Root()
	err = s.s.PutAnchor(ctx, s.a, root, time.Now())
	return ref, true, errors.Wrap(err, "updating ref map anchor")
}

// ListRefs lists the refs of the untransformed blobs,
// in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start hlt.Ref, f func(hlt.Ref) error) error {
	s.mu.Lock()
	root, _ := s.m.Root()
	s.mu.Unlock()

	snap, err := tree.New(s.s, nil, tree.Options{Kind: tree.MapKind})
	if err != nil {
		return err
	}
	snap.SetRoot(root)

	return snap.Each(ctx, func(k, _ []byte) error {
		ref := hlt.RefFromBytes(k)
		if !start.Less(ref) {
			return nil
		}
		return f(ref)
	})
}

// GetAnchor passes through to the nested store.
func (s *Store) GetAnchor(ctx context.Context, name string, at time.Time) (hlt.Ref, error) {
	return s.s.GetAnchor(ctx, name, at)
}

// PutAnchor passes through to the nested store.
func (s *Store) PutAnchor(ctx context.Context, name string, ref hlt.Ref, at time.Time) error {
	return s.s.PutAnchor(ctx, name, ref, at)
}

// ListAnchors passes through to the nested store.
// The ref map's own anchor is among those listed.
func (s *Store) ListAnchors(ctx context.Context, start string, f func(string, hlt.Ref, time.Time) error) error {
	return s.s.ListAnchors(ctx, start, f)
}

func init() {
	store.Register("transform", func(ctx context.Context, conf map[string]interface{}) (hlt.Store, error) {
		nested, err := store.CreateNested(ctx, conf)
		if err != nil {
			return nil, err
		}
		s, ok := nested.(anchor.Store)
		if !ok {
			return nil, fmt.Errorf("nested %T store is not an anchor.Store", nested)
		}
		a, ok := conf["anchor"].(string)
		if !ok {
			return nil, errors.New(`missing "anchor" parameter`)
		}
		transformer, ok := conf["transformer"].(string)
		if !ok {
			return nil, errors.New(`missing "transformer" parameter`)
		}
		switch transformer {
		case "lzw":
			order := lzw.LSB
			o, _, err := store.Int(conf, "order")
			if err != nil {
				return nil, err
			}
			if lzw.Order(o) == lzw.MSB {
				order = lzw.MSB
			}
			return New(ctx, s, LZW{Order: order}, a)

		case "flate":
			level, ok, err := store.Int(conf, "level")
			if err != nil {
				return nil, err
			}
			if !ok {
				level = -1
			}
			return New(ctx, s, Flate{Level: level}, a)

		default:
			return nil, fmt.Errorf(`unknown transformer "%s"`, transformer)
		}
	})
}
