package testutil

import (
	"context"
	"sort"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/hlt"
)

// AllRefs writes a random set of random blobs to an empty store
// and makes sure that the right set of refs comes back in a call to ListRefs.
func AllRefs(ctx context.Context, t *testing.T, storeFactory func() hlt.Store) {
	if err := quick.Check(allRefsHelper(ctx, t, storeFactory), &quick.Config{MaxCount: 20}); err != nil {
		t.Error(err)
	}
}

func allRefsHelper(ctx context.Context, t *testing.T, storeFactory func() hlt.Store) func([][]byte) bool {
	return func(blobs [][]byte) bool {
		var (
			store = storeFactory()
			want  []hlt.Ref
		)
		for _, blob := range blobs {
			ref, added, err := store.Put(ctx, blob)
			if err != nil {
				t.Fatal(err)
			}
			if added {
				want = append(want, ref)
			}
		}
		var got []hlt.Ref
		err := store.ListRefs(ctx, hlt.Zero, func(r hlt.Ref) error {
			got = append(got, r)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}

		sort.Slice(want, func(i, j int) bool { return want[i].Less(want[j]) })

		if !sort.SliceIsSorted(got, func(i, j int) bool { return got[i].Less(got[j]) }) {
			t.Log("ListRefs out of order")
			return false
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Logf("mismatch (-want +got):\n%s", diff)
			return false
		}
		return true
	}
}
