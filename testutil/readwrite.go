// Package testutil holds checks shared by the tests of the store implementations.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bobg/hlt"
	"github.com/bobg/hlt/tree"
)

// ReadWrite builds a map tree with n entries in store,
// then reads it back through a second tree opened on the same root
// to make sure the store returns exactly what it was given.
func ReadWrite(ctx context.Context, t *testing.T, store hlt.Store, n int) {
	t1 := time.Now()
	tr, err := tree.New(store, nil, tree.Options{Kind: tree.MapKind})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		if err = tr.Insert(ctx, []byte(fmt.Sprintf("key%05d", i)), []byte(fmt.Sprintf("value%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	t.Logf("wrote %d entries in %s", n, time.Since(t1))

	t2 := time.Now()
	readback, err := tree.New(store, nil, tree.Options{Kind: tree.MapKind})
	if err != nil {
		t.Fatal(err)
	}
	if err = readback.SetState(tr.State()); err != nil {
		t.Fatal(err)
	}
	if err = readback.Verify(ctx); err != nil {
		t.Fatal(err)
	}

	var i int
	err = readback.Each(ctx, func(k, v []byte) error {
		wantK, wantV := fmt.Sprintf("key%05d", i), fmt.Sprintf("value%d", i)
		if string(k) != wantK || string(v) != wantV {
			return fmt.Errorf("entry %d is %s=%s, want %s=%s", i, k, v, wantK, wantV)
		}
		i++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if i != n {
		t.Errorf("read %d entries, want %d", i, n)
	}
	t.Logf("read %d entries in %s", i, time.Since(t2))
}
