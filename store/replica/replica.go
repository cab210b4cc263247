// Package replica implements a store that fans writes out to several nested stores.
package replica

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/hlt"
	"github.com/bobg/hlt/anchor"
	"github.com/bobg/hlt/store"
)

var _ anchor.Store = (*Store)(nil)

// Store is a blob store that delegates reads and writes to two sets of nested stores.
// One set is synchronous:
// writes to all of these must succeed before a call to Put returns,
// and an error from any will cause Put to fail.
// The other set is asynchronous:
// a call to Put queues writes on these stores but does not wait for them to finish.
// If any asynchronous write fails,
// the whole Store is put into an error state and further operations fail.
//
// Anchors are written to every synchronous store that keeps them
// and read from the first.
type Store struct {
	sync   []hlt.Store
	queues []chan<- hlt.Blob
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex // protects err
	err error      // from an async writer, if any
}

// New produces a new Store.
// The set of synchronous stores must be non-empty.
// The set of asynchronous stores may be empty.
// Each asynchronous store gets a goroutine and a queue of length n (at least 1);
// if a queue is full, Put blocks until there is room.
// Canceling ctx, or calling Close, stops the goroutines
// and leaves the Store in an error state.
func New(ctx context.Context, sync, async []hlt.Store, n int) *Store {
	s := &Store{sync: sync, done: make(chan struct{})}
	if len(async) == 0 {
		close(s.done)
		return s
	}
	if n < 1 {
		n = 1
	}

	ctx, s.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range async {
		q := make(chan hlt.Blob, n)
		s.queues = append(s.queues, q)
		g.Go(func() error { return drain(gctx, a, q) })
	}
	go func() {
		err := g.Wait()
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	}()

	return s
}

// drain writes queued blobs to st until ctx is canceled or a write fails.
func drain(ctx context.Context, st hlt.Store, q <-chan hlt.Blob) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case blob := <-q:
			if _, _, err := st.Put(ctx, blob); err != nil {
				return errors.Wrap(err, "async write")
			}
		}
	}
}

// Close stops the asynchronous writers and waits for them to exit.
// Blobs still queued are not written.
func (s *Store) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

func (s *Store) checkErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Wrap(s.err, "in async store")
}

// Put stores the blob in all synchronous stores
// and queues it for the asynchronous ones.
// The added result is true if any synchronous store did not already have the blob.
func (s *Store) Put(ctx context.Context, blob hlt.Blob) (hlt.Ref, bool, error) {
	if err := s.checkErr(); err != nil {
		return hlt.Zero, false, err
	}

	var (
		mu    sync.Mutex
		added bool
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, st := range s.sync {
		g.Go(func() error {
			_, a, err := st.Put(gctx, blob)
			if err != nil {
				return err
			}
			mu.Lock()
			added = added || a
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return hlt.Zero, false, err
	}

	for _, q := range s.queues {
		select {
		case <-ctx.Done():
			return hlt.Zero, false, ctx.Err()
		case <-s.done:
			// The async writers have stopped and nothing will drain q.
			return hlt.Zero, false, s.checkErr()
		case q <- blob:
		}
	}

	return blob.Ref(), added, nil
}

// Get asks all the synchronous stores for ref
// and returns the first successful answer,
// canceling the others.
// If every store fails, one of their errors is returned.
func (s *Store) Get(ctx context.Context, ref hlt.Ref) (hlt.Blob, error) {
	if err := s.checkErr(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		g       errgroup.Group
		results = make(chan hlt.Blob, len(s.sync))
	)
	for _, st := range s.sync {
		g.Go(func() error {
			blob, err := st.Get(ctx, ref)
			if err != nil {
				return err
			}
			results <- blob
			cancel()
			return nil
		})
	}
	err := g.Wait()

	select {
	case blob := <-results:
		return blob, nil
	default:
		return nil, err
	}
}

// ListRefs produces the union of the synchronous stores' refs, in order.
func (s *Store) ListRefs(ctx context.Context, start hlt.Ref, f func(hlt.Ref) error) error {
	if err := s.checkErr(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	chans := make([]chan hlt.Ref, len(s.sync))
	for i, st := range s.sync {
		ch := make(chan hlt.Ref, 1)
		chans[i] = ch
		g.Go(func() error {
			defer close(ch)
			return st.ListRefs(gctx, start, func(ref hlt.Ref) error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case ch <- ref:
					return nil
				}
			})
		})
	}

	// Merge the sorted streams, taking the least head each time
	// and advancing every stream that has it.
	heads := make([]*hlt.Ref, len(chans))
	advance := func(i int) {
		if ref, ok := <-chans[i]; ok {
			heads[i] = &ref
		} else {
			heads[i] = nil
		}
	}
	for i := range chans {
		advance(i)
	}
	for {
		var least *hlt.Ref
		for _, h := range heads {
			if h != nil && (least == nil || h.Less(*least)) {
				least = h
			}
		}
		if least == nil {
			break
		}
		ref := *least
		if err := f(ref); err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		for i, h := range heads {
			if h != nil && *h == ref {
				advance(i)
			}
		}
	}

	return g.Wait()
}

func (s *Store) anchorStores() []anchor.Store {
	var out []anchor.Store
	for _, st := range s.sync {
		if a, ok := st.(anchor.Store); ok {
			out = append(out, a)
		}
	}
	return out
}

// PutAnchor writes the anchor to every synchronous store that keeps anchors.
func (s *Store) PutAnchor(ctx context.Context, name string, ref hlt.Ref, at time.Time) error {
	as := s.anchorStores()
	if len(as) == 0 {
		return errors.New("no synchronous store keeps anchors")
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range as {
		g.Go(func() error { return a.PutAnchor(gctx, name, ref, at) })
	}
	return g.Wait()
}

// GetAnchor reads the anchor from the first synchronous store that keeps anchors.
func (s *Store) GetAnchor(ctx context.Context, name string, at time.Time) (hlt.Ref, error) {
	as := s.anchorStores()
	if len(as) == 0 {
		return hlt.Zero, errors.New("no synchronous store keeps anchors")
	}
	return as[0].GetAnchor(ctx, name, at)
}

// ListAnchors lists the anchors of the first synchronous store that keeps them.
func (s *Store) ListAnchors(ctx context.Context, start string, f func(string, hlt.Ref, time.Time) error) error {
	as := s.anchorStores()
	if len(as) == 0 {
		return errors.New("no synchronous store keeps anchors")
	}
	return as[0].ListAnchors(ctx, start, f)
}

func createAll(ctx context.Context, confs interface{}, what string) ([]hlt.Store, error) {
	items, ok := confs.([]interface{})
	if !ok {
		return nil, nil
	}
	var out []hlt.Store
	for _, item := range items {
		nested, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("%s item is a %T, not an object", what, item)
		}
		nestedType, ok := nested["type"].(string)
		if !ok {
			return nil, errors.Errorf("%s item missing \"type\"", what)
		}
		st, err := store.Create(ctx, nestedType, nested)
		if err != nil {
			return nil, errors.Wrapf(err, "creating nested %s store", what)
		}
		out = append(out, st)
	}
	return out, nil
}

func init() {
	store.Register("replica", func(ctx context.Context, conf map[string]interface{}) (hlt.Store, error) {
		syncStores, err := createAll(ctx, conf["sync"], "sync")
		if err != nil {
			return nil, err
		}
		if len(syncStores) == 0 {
			return nil, errors.New(`missing "sync" parameter`)
		}
		asyncStores, err := createAll(ctx, conf["async"], "async")
		if err != nil {
			return nil, err
		}

		queueLen, ok, err := store.Int(conf, "queuelen")
		if err != nil {
			return nil, err
		}
		if !ok {
			queueLen = 10
		}

		return New(ctx, syncStores, asyncStores, queueLen), nil
	})
}
