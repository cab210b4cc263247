package testutil

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bobg/hlt"
	"github.com/bobg/hlt/anchor"
)

// Anchors checks that a store keeps the history of several anchors
// and finds the right ref for each at various times.
func Anchors(ctx context.Context, t *testing.T, store anchor.Store) {
	var (
		a1 = "anchor1"
		a2 = "anchor2"
		a3 = "anchor3"

		r1a = hlt.Ref{0x1a}
		r1b = hlt.Ref{0x1b}
		r2  = hlt.Ref{0x2}

		t1 = time.Date(1977, 8, 5, 12, 0, 0, 0, time.FixedZone("UTC-4", -4*60*60))
		t2 = t1.Add(time.Hour)
	)

	if err := store.PutAnchor(ctx, a1, r1a, t1); err != nil {
		t.Fatal(err)
	}
	if err := store.PutAnchor(ctx, a1, r1b, t2); err != nil {
		t.Fatal(err)
	}
	if err := store.PutAnchor(ctx, a2, r2, t1); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		a       string
		tm      time.Time
		want    hlt.Ref
		wantErr error
	}{
		{a: a1, tm: t1, want: r1a},
		{a: a1, tm: t1.Add(time.Minute), want: r1a},
		{a: a1, tm: t2, want: r1b},
		{a: a1, tm: t2.Add(time.Minute), want: r1b},
		{a: a1, tm: t1.Add(-time.Minute), wantErr: hlt.ErrNotFound},
		{a: a1, tm: t2.Add(-time.Minute), want: r1a},

		{a: a2, tm: t1, want: r2},
		{a: a2, tm: t1.Add(time.Minute), want: r2},
		{a: a2, tm: t1.Add(-time.Minute), wantErr: hlt.ErrNotFound},

		{a: a3, tm: t2, wantErr: hlt.ErrNotFound},
	}

	for i, c := range cases {
		t.Run(fmt.Sprintf("case_%02d", i+1), func(t *testing.T) {
			got, err := store.GetAnchor(ctx, c.a, c.tm)
			if c.wantErr != nil {
				if !errors.Is(err, c.wantErr) {
					t.Fatalf("got error %v, want %v", err, c.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != c.want {
				t.Fatalf("got %s, want %s", got, c.want)
			}
		})
	}

	var names []string
	err := store.ListAnchors(ctx, "", func(name string, _ hlt.Ref, _ time.Time) error {
		names = append(names, name)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{a1, a1, a2}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("ListAnchors got %v, want %v", names, want)
	}
}
