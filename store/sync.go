package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/hlt"
	"github.com/bobg/hlt/anchor"
)

type cursor struct {
	s    hlt.Store
	ch   chan hlt.Ref
	head *hlt.Ref
	err  error // valid once ch is closed
}

func (c *cursor) advance() error {
	ref, ok := <-c.ch
	if !ok {
		c.head = nil
		return c.err
	}
	c.head = &ref
	return nil
}

// Sync synchronizes two or more stores.
// It runs ListRefs on all input stores in parallel,
// merging their ordered outputs.
// When a ref is found to be in some but not all stores,
// its blob is copied to the stores where it's missing.
func Sync(ctx context.Context, stores []hlt.Store) error {
	if len(stores) < 2 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cursors := make([]*cursor, 0, len(stores))
	for _, s := range stores {
		c := &cursor{s: s, ch: make(chan hlt.Ref)}
		go func() {
			defer close(c.ch)
			c.err = c.s.ListRefs(ctx, hlt.Zero, func(ref hlt.Ref) error {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case c.ch <- ref:
					return nil
				}
			})
		}()
		cursors = append(cursors, c)
	}

	for _, c := range cursors {
		if err := c.advance(); err != nil {
			return errors.Wrap(err, "listing refs")
		}
	}

	for {
		var min *hlt.Ref
		for _, c := range cursors {
			if c.head != nil && (min == nil || c.head.Less(*min)) {
				min = c.head
			}
		}
		if min == nil {
			return nil
		}
		ref := *min

		var (
			haver   hlt.Store
			needers []hlt.Store
		)
		for _, c := range cursors {
			if c.head == nil || *c.head != ref {
				needers = append(needers, c.s)
				continue
			}
			if haver == nil {
				haver = c.s
			}
			if err := c.advance(); err != nil {
				return errors.Wrap(err, "listing refs")
			}
		}
		if len(needers) == 0 {
			continue
		}

		blob, err := haver.Get(ctx, ref)
		if err != nil {
			return errors.Wrapf(err, "getting blob for %s", ref)
		}

		eg, ectx := errgroup.WithContext(ctx)
		for _, s := range needers {
			eg.Go(func() error {
				_, _, err := s.Put(ectx, blob)
				return errors.Wrapf(err, "storing blob for %s", ref)
			})
		}
		if err = eg.Wait(); err != nil {
			return err
		}
	}
}

// SyncAnchors copies anchor entries between two or more anchor stores
// so that each ends up with every name/ref pair any of them has,
// at the time recorded by the first store listing it.
// A pair already present in a store at any time is not copied to it again.
// Blobs are not copied; use Sync for that.
func SyncAnchors(ctx context.Context, stores []anchor.Store) error {
	if len(stores) < 2 {
		return nil
	}

	type pair struct {
		name string
		ref  hlt.Ref
	}
	type entry struct {
		pair
		at time.Time
	}

	entries := make([][]entry, len(stores))

	eg, ectx := errgroup.WithContext(ctx)
	for i, s := range stores {
		eg.Go(func() error {
			err := s.ListAnchors(ectx, "", func(name string, ref hlt.Ref, at time.Time) error {
				entries[i] = append(entries[i], entry{pair: pair{name: name, ref: ref}, at: at})
				return nil
			})
			return errors.Wrap(err, "listing anchors")
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	var (
		all  []entry
		seen = make(map[pair]bool)
	)
	for _, es := range entries {
		for _, e := range es {
			if !seen[e.pair] {
				seen[e.pair] = true
				all = append(all, e)
			}
		}
	}

	eg, ectx = errgroup.WithContext(ctx)
	for i, s := range stores {
		has := make(map[pair]bool, len(entries[i]))
		for _, e := range entries[i] {
			has[e.pair] = true
		}
		eg.Go(func() error {
			for _, e := range all {
				if has[e.pair] {
					continue
				}
				if err := s.PutAnchor(ectx, e.name, e.ref, e.at); err != nil {
					return errors.Wrapf(err, "storing anchor %s", e.name)
				}
			}
			return nil
		})
	}
	return eg.Wait()
}
