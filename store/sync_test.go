package store_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/hlt"
	"github.com/bobg/hlt/anchor"
	. "github.com/bobg/hlt/store"
	"github.com/bobg/hlt/store/mem"
)

func TestSync(t *testing.T) {
	const text = `abc def ghi jkl mno pqr stu`

	var (
		ctx    = context.Background()
		words  = strings.Fields(text)
		stores = make([]hlt.Store, 0, len(words))
	)
	for i := range words {
		s := mem.New()
		stores = append(stores, s)
		for j, word := range words {
			if i == j {
				continue
			}
			if _, _, err := s.Put(ctx, hlt.Blob(word)); err != nil {
				t.Fatal(err)
			}
		}
	}

	if err := Sync(ctx, stores); err != nil {
		t.Fatal(err)
	}

	listRefs := func(s hlt.Store) []hlt.Ref {
		var refs []hlt.Ref
		err := s.ListRefs(ctx, hlt.Zero, func(ref hlt.Ref) error {
			refs = append(refs, ref)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		return refs
	}

	refs := listRefs(stores[0])
	if len(refs) != len(words) {
		t.Fatalf("got %d refs, want %d", len(refs), len(words))
	}
	for i := 1; i < len(stores); i++ {
		if diff := cmp.Diff(refs, listRefs(stores[i])); diff != "" {
			t.Errorf("store %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestSyncAnchors(t *testing.T) {
	var (
		ctx = context.Background()
		a   = mem.New()
		b   = mem.New()
		t0  = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
		r1  = hlt.Blob("one").Ref()
		r2  = hlt.Blob("two").Ref()
	)
	if err := a.PutAnchor(ctx, "x", r1, t0); err != nil {
		t.Fatal(err)
	}
	if err := b.PutAnchor(ctx, "x", r2, t0.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := b.PutAnchor(ctx, "y", r1, t0); err != nil {
		t.Fatal(err)
	}

	if err := SyncAnchors(ctx, []anchor.Store{a, b}); err != nil {
		t.Fatal(err)
	}
	for _, s := range []anchor.Store{a, b} {
		if got, err := s.GetAnchor(ctx, "x", t0.Add(time.Minute)); err != nil {
			t.Fatal(err)
		} else if got != r1 {
			t.Errorf("x at t0+1m is %s, want %s", got, r1)
		}
		if got, err := s.GetAnchor(ctx, "x", t0.Add(2*time.Hour)); err != nil {
			t.Fatal(err)
		} else if got != r2 {
			t.Errorf("x at t0+2h is %s, want %s", got, r2)
		}
		if got, err := s.GetAnchor(ctx, "y", t0); err != nil {
			t.Fatal(err)
		} else if got != r1 {
			t.Errorf("y is %s, want %s", got, r1)
		}
	}
}
