package tree

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync/atomic"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/hlt"
	"github.com/bobg/hlt/store/mem"
)

func newTree(t *testing.T, degree int, kind Kind) (*Tree, *mem.Store) {
	t.Helper()
	s := mem.New()
	tr, err := New(s, nil, Options{Degree: degree, Kind: kind})
	if err != nil {
		t.Fatal(err)
	}
	return tr, s
}

func keys(strs ...string) [][]byte {
	var out [][]byte
	for _, s := range strs {
		out = append(out, []byte(s))
	}
	return out
}

func contents(ctx context.Context, t *testing.T, tr *Tree) []string {
	t.Helper()
	var out []string
	err := tr.Each(ctx, func(k, _ []byte) error {
		out = append(out, string(k))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func rootNode(ctx context.Context, t *testing.T, tr *Tree) *Node {
	t.Helper()
	root, ok := tr.Root()
	if !ok {
		t.Fatal("tree is empty")
	}
	n, err := tr.ns.load(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestInsertInOrder(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTree(t, 3, SetKind)

	for i, k := range []string{"1", "2", "3", "4", "5"} {
		if err := tr.Add(ctx, []byte(k)); err != nil {
			t.Fatal(err)
		}
		if err := tr.Verify(ctx); err != nil {
			t.Fatalf("after adding %s: %s", k, err)
		}
		if i == 2 {
			root := rootNode(ctx, t, tr)
			if diff := cmp.Diff(keys("2"), root.Keys); diff != "" {
				t.Errorf("root after third insert mismatch (-want +got):\n%s", diff)
			}
			if len(root.Children) != 2 {
				t.Errorf("got %d children of root, want 2", len(root.Children))
			}
		}
	}

	depth, err := tr.Depth(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if depth != 2 {
		t.Errorf("got depth %d, want 2", depth)
	}
	root := rootNode(ctx, t, tr)
	if diff := cmp.Diff(keys("2", "4"), root.Keys); diff != "" {
		t.Errorf("root mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"1", "2", "3", "4", "5"}, contents(ctx, t, tr)); diff != "" {
		t.Errorf("contents mismatch (-want +got):\n%s", diff)
	}
}

func TestRemoveFromFiveKeys(t *testing.T) {
	ctx := context.Background()

	for _, k := range []string{"1", "2", "3", "4", "5"} {
		t.Run(k, func(t *testing.T) {
			tr, _ := newTree(t, 3, SetKind)
			for _, k := range []string{"1", "2", "3", "4", "5"} {
				if err := tr.Add(ctx, []byte(k)); err != nil {
					t.Fatal(err)
				}
			}

			if _, err := tr.Remove(ctx, []byte(k)); err != nil {
				t.Fatal(err)
			}
			if err := tr.Verify(ctx); err != nil {
				t.Fatal(err)
			}

			var want []string
			for _, other := range []string{"1", "2", "3", "4", "5"} {
				if other != k {
					want = append(want, other)
				}
			}
			if diff := cmp.Diff(want, contents(ctx, t, tr)); diff != "" {
				t.Errorf("contents mismatch (-want +got):\n%s", diff)
			}
			has, err := tr.Has(ctx, []byte(k))
			if err != nil {
				t.Fatal(err)
			}
			if has {
				t.Errorf("removed key %s still present", k)
			}
		})
	}
}

func TestRemoveSeparator(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTree(t, 3, SetKind)
	for i := 1; i <= 7; i++ {
		if err := tr.Add(ctx, []byte(fmt.Sprint(i))); err != nil {
			t.Fatal(err)
		}
	}

	// Seven keys at degree 3 fill two levels below a root holding "4".
	root := rootNode(ctx, t, tr)
	if diff := cmp.Diff(keys("4"), root.Keys); diff != "" {
		t.Fatalf("root mismatch (-want +got):\n%s", diff)
	}

	for _, k := range []string{"4", "2", "6", "3"} {
		if _, err := tr.Remove(ctx, []byte(k)); err != nil {
			t.Fatalf("removing %s: %s", k, err)
		}
		if err := tr.Verify(ctx); err != nil {
			t.Fatalf("after removing %s: %s", k, err)
		}
	}
	if diff := cmp.Diff([]string{"1", "5", "7"}, contents(ctx, t, tr)); diff != "" {
		t.Errorf("contents mismatch (-want +got):\n%s", diff)
	}
}

func TestRemoveAll(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTree(t, 4, SetKind)
	for i := 0; i < 50; i++ {
		if err := tr.Add(ctx, []byte(fmt.Sprintf("%03d", i))); err != nil {
			t.Fatal(err)
		}
	}
	for i := 49; i >= 0; i-- {
		if _, err := tr.Remove(ctx, []byte(fmt.Sprintf("%03d", i))); err != nil {
			t.Fatal(err)
		}
		if err := tr.Verify(ctx); err != nil {
			t.Fatalf("after removing %03d: %s", i, err)
		}
	}
	if !tr.IsEmpty() {
		t.Error("tree not empty after removing everything")
	}
	if tr.State() != "" {
		t.Errorf("got state %q for empty tree", tr.State())
	}
}

func TestRemoveEmpty(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTree(t, 3, SetKind)
	if _, err := tr.Remove(ctx, []byte("x")); !errors.Is(err, ErrEmptyTree) {
		t.Errorf("got error %v, want ErrEmptyTree", err)
	}
}

func TestRemoveMissing(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTree(t, 3, SetKind)
	if err := tr.Add(ctx, []byte("a")); err != nil {
		t.Fatal(err)
	}
	before := tr.State()
	if _, err := tr.Remove(ctx, []byte("b")); !errors.Is(err, hlt.ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}
	if tr.State() != before {
		t.Error("failed remove changed the root")
	}
}

func TestHasMissing(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTree(t, 3, SetKind)

	has, err := tr.Has(ctx, []byte("nonexistent"))
	if err != nil {
		t.Fatal(err)
	}
	if has {
		t.Error("empty tree has a key")
	}

	for _, k := range []string{"a", "b", "c", "d"} {
		if err := tr.Add(ctx, []byte(k)); err != nil {
			t.Fatal(err)
		}
	}
	before := tr.State()
	has, err = tr.Has(ctx, []byte("nonexistent"))
	if err != nil {
		t.Fatal(err)
	}
	if has {
		t.Error("tree has a key that was never added")
	}
	if tr.State() != before {
		t.Error("Has changed the root")
	}
}

func TestDuplicate(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTree(t, 3, SetKind)
	for _, k := range []string{"a", "b", "c", "d"} {
		if err := tr.Add(ctx, []byte(k)); err != nil {
			t.Fatal(err)
		}
	}
	before := tr.State()
	for _, k := range []string{"a", "b", "c", "d"} {
		if err := tr.Add(ctx, []byte(k)); !errors.Is(err, ErrDuplicateKey) {
			t.Errorf("adding %s again: got error %v, want ErrDuplicateKey", k, err)
		}
	}
	if tr.State() != before {
		t.Error("failed add changed the root")
	}
}

func TestReadOnly(t *testing.T) {
	ctx := context.Background()
	s := mem.New()

	owned, err := New(s, nil, Options{Degree: 3, Owner: "b3duZXI=", Local: "b3duZXI="})
	if err != nil {
		t.Fatal(err)
	}
	if owned.ReadOnly() {
		t.Fatal("tree owned by the local host is read-only")
	}
	if err = owned.Add(ctx, []byte("a")); err != nil {
		t.Fatal(err)
	}

	view, err := New(s, nil, Options{Degree: 3, Owner: "b3duZXI=", Local: "bWU="})
	if err != nil {
		t.Fatal(err)
	}
	if !view.ReadOnly() {
		t.Fatal("tree owned by another host is writable")
	}
	if err = view.SetState(owned.State()); err != nil {
		t.Fatal(err)
	}
	before := view.State()

	if err = view.Add(ctx, []byte("b")); !errors.Is(err, ErrReadOnly) {
		t.Errorf("add: got error %v, want ErrReadOnly", err)
	}
	if _, err = view.Remove(ctx, []byte("a")); !errors.Is(err, ErrReadOnly) {
		t.Errorf("remove: got error %v, want ErrReadOnly", err)
	}
	if view.State() != before {
		t.Error("failed mutation changed the root")
	}

	// Reading still works, from the local store.
	has, err := view.Has(ctx, []byte("a"))
	if err != nil {
		t.Fatal(err)
	}
	if !has {
		t.Error("read-only view lost its key")
	}
}

func TestBadOptions(t *testing.T) {
	s := mem.New()
	for _, degree := range []int{-1, 1, 2, 11} {
		if _, err := New(s, nil, Options{Degree: degree}); !errors.Is(err, hlt.ErrInvalidKey) {
			t.Errorf("degree %d: got error %v, want ErrInvalidKey", degree, err)
		}
	}
	if _, err := New(s, nil, Options{Kind: Kind(7)}); !errors.Is(err, ErrWrongKind) {
		t.Errorf("got error %v, want ErrWrongKind", err)
	}
}

func TestBadKeys(t *testing.T) {
	ctx := context.Background()
	set, _ := newTree(t, 3, SetKind)
	if err := set.Add(ctx, nil); !errors.Is(err, hlt.ErrInvalidKey) {
		t.Errorf("empty key: got error %v, want ErrInvalidKey", err)
	}
	if err := set.Insert(ctx, []byte("a"), []byte("v")); !errors.Is(err, ErrWrongKind) {
		t.Errorf("value in a set: got error %v, want ErrWrongKind", err)
	}
	if err := set.Put(ctx, []byte("a"), []byte("v")); !errors.Is(err, ErrWrongKind) {
		t.Errorf("put on a set: got error %v, want ErrWrongKind", err)
	}
}

func TestConvergence(t *testing.T) {
	ctx := context.Background()
	orders := [][]string{
		{"1", "2", "3", "4", "5"},
		{"5", "4", "3", "2", "1"},
		{"3", "1", "5", "2", "4"},
		{"2", "5", "1", "4", "3"},
	}
	var want []string
	for i, order := range orders {
		tr, _ := newTree(t, 3, SetKind)
		for _, k := range order {
			if err := tr.Add(ctx, []byte(k)); err != nil {
				t.Fatal(err)
			}
		}
		got := contents(ctx, t, tr)
		if i == 0 {
			want = got
			continue
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("order %v mismatch (-want +got):\n%s", order, diff)
		}
	}
}

func TestContentAddressing(t *testing.T) {
	ctx := context.Background()

	// The same keys inserted in the same order produce the same root.
	var states []string
	for i := 0; i < 2; i++ {
		tr, _ := newTree(t, 4, SetKind)
		for j := 0; j < 20; j++ {
			if err := tr.Add(ctx, []byte(fmt.Sprintf("%02d", j))); err != nil {
				t.Fatal(err)
			}
		}
		states = append(states, tr.State())
	}
	if states[0] != states[1] {
		t.Errorf("identical trees have roots %s and %s", states[0], states[1])
	}

	// Storing an identical node twice adds nothing.
	s := mem.New()
	n := &Node{Kind: SetKind, Keys: keys("a", "b")}
	ref1, added1, err := s.Put(ctx, n.Encode())
	if err != nil {
		t.Fatal(err)
	}
	ref2, added2, err := s.Put(ctx, n.Clone().Encode())
	if err != nil {
		t.Fatal(err)
	}
	if ref1 != ref2 {
		t.Errorf("identical nodes stored as %s and %s", ref1, ref2)
	}
	if !added1 || added2 {
		t.Errorf("got added %v then %v, want true then false", added1, added2)
	}
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTree(t, 3, SetKind)
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		if err := tr.Add(ctx, []byte(k)); err != nil {
			t.Fatal(err)
		}
	}
	it := tr.Iterator()
	if _, err := tr.Remove(ctx, []byte("c")); err != nil {
		t.Fatal(err)
	}
	if err := tr.Add(ctx, []byte("f")); err != nil {
		t.Fatal(err)
	}

	var got []string
	for it.Next(ctx) {
		got = append(got, string(it.Key()))
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c", "d", "e"}, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestMap(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTree(t, 5, MapKind)

	for i := 0; i < 30; i++ {
		k, v := fmt.Sprintf("k%02d", i), fmt.Sprintf("v%d", i)
		if err := tr.Insert(ctx, []byte(k), []byte(v)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tr.Verify(ctx); err != nil {
		t.Fatal(err)
	}

	got, err := tr.Get(ctx, []byte("k17"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v17" {
		t.Errorf("got %q, want v17", got)
	}

	if err = tr.Insert(ctx, []byte("k17"), []byte("x")); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("got error %v, want ErrDuplicateKey", err)
	}
	if err = tr.Put(ctx, []byte("k17"), []byte("x")); err != nil {
		t.Fatal(err)
	}
	got, err = tr.Get(ctx, []byte("k17"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "x" {
		t.Errorf("after put got %q, want x", got)
	}

	removed, err := tr.Remove(ctx, []byte("k03"))
	if err != nil {
		t.Fatal(err)
	}
	if string(removed) != "v3" {
		t.Errorf("remove returned %q, want v3", removed)
	}
	if _, err = tr.Get(ctx, []byte("k03")); !errors.Is(err, hlt.ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}

	n, err := tr.Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 29 {
		t.Errorf("got %d entries, want 29", n)
	}

	err = tr.Each(ctx, func(k, v []byte) error {
		var i int
		if _, err := fmt.Sscanf(string(k), "k%d", &i); err != nil {
			return err
		}
		want := fmt.Sprintf("v%d", i)
		if i == 17 {
			want = "x"
		}
		if string(v) != want {
			return fmt.Errorf("key %s has value %s, want %s", k, v, want)
		}
		return nil
	})
	if err != nil {
		t.Error(err)
	}
}

func TestAddBlob(t *testing.T) {
	ctx := context.Background()
	tr, s := newTree(t, 3, SetKind)
	ref, err := tr.AddBlob(ctx, hlt.Blob("element"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err = s.Get(ctx, ref); err != nil {
		t.Fatal(err)
	}
	has, err := tr.Has(ctx, ref[:])
	if err != nil {
		t.Fatal(err)
	}
	if !has {
		t.Error("blob ref not in tree")
	}

	if has, err = tr.HasBlob(ctx, hlt.Blob("element")); err != nil || !has {
		t.Errorf("HasBlob: got %v, %v; want true, nil", has, err)
	}
	if has, err = tr.HasBlob(ctx, hlt.Blob("other")); err != nil || has {
		t.Errorf("HasBlob of an absent blob: got %v, %v; want false, nil", has, err)
	}

	if err = tr.RemoveBlob(ctx, hlt.Blob("other")); !errors.Is(err, hlt.ErrNotFound) {
		t.Errorf("RemoveBlob of an absent blob: got error %v, want ErrNotFound", err)
	}
	if err = tr.RemoveBlob(ctx, hlt.Blob("element")); err != nil {
		t.Fatal(err)
	}
	if !tr.IsEmpty() {
		t.Error("tree not empty after removing its only blob")
	}
	if _, err = s.Get(ctx, ref); err != nil {
		t.Errorf("removed blob is gone from the store: %v", err)
	}
}

func TestState(t *testing.T) {
	ctx := context.Background()
	tr, s := newTree(t, 3, SetKind)
	for _, k := range []string{"x", "y", "z"} {
		if err := tr.Add(ctx, []byte(k)); err != nil {
			t.Fatal(err)
		}
	}
	state := tr.State()
	if !hlt.ValidIdentifier(state) {
		t.Fatalf("state %q is not a valid identifier", state)
	}

	other, err := New(s, nil, Options{Degree: 3})
	if err != nil {
		t.Fatal(err)
	}
	if err = other.SetState(state); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"x", "y", "z"}, contents(ctx, t, other)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	if err = other.SetState("d:nope"); !errors.Is(err, hlt.ErrInvalidKey) {
		t.Errorf("got error %v, want ErrInvalidKey", err)
	}
	if err = other.SetState(""); err != nil {
		t.Fatal(err)
	}
	if !other.IsEmpty() {
		t.Error("empty state did not empty the tree")
	}
}

func TestMissingNode(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTree(t, 3, SetKind)
	tr.SetRoot(hlt.Blob("never stored").Ref())

	if _, err := tr.Has(ctx, []byte("a")); !errors.Is(err, hlt.ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}
	before := tr.State()
	if err := tr.Add(ctx, []byte("a")); !errors.Is(err, hlt.ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}
	if tr.State() != before {
		t.Error("failed add changed the root")
	}
}

func TestVerifyDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	tr, s := newTree(t, 3, SetKind)

	// A degree-3 node holds at most two keys.
	ref, _, err := s.Put(ctx, (&Node{Kind: SetKind, Keys: keys("a", "b", "c")}).Encode())
	if err != nil {
		t.Fatal(err)
	}
	tr.SetRoot(ref)
	if err = tr.Verify(ctx); !errors.Is(err, ErrCorruptNode) {
		t.Errorf("got error %v, want ErrCorruptNode", err)
	}

	// A map node in a set tree.
	ref, _, err = s.Put(ctx, (&Node{Kind: MapKind, Keys: keys("a"), Values: keys("1")}).Encode())
	if err != nil {
		t.Fatal(err)
	}
	tr.SetRoot(ref)
	if _, err = tr.Has(ctx, []byte("a")); !errors.Is(err, ErrCorruptNode) {
		t.Errorf("got error %v, want ErrCorruptNode", err)
	}

	// Children out of order with their separator.
	left, _, err := s.Put(ctx, (&Node{Kind: SetKind, Keys: keys("x")}).Encode())
	if err != nil {
		t.Fatal(err)
	}
	right, _, err := s.Put(ctx, (&Node{Kind: SetKind, Keys: keys("z")}).Encode())
	if err != nil {
		t.Fatal(err)
	}
	ref, _, err = s.Put(ctx, (&Node{Kind: SetKind, Keys: keys("m"), Children: []hlt.Ref{left, right}}).Encode())
	if err != nil {
		t.Fatal(err)
	}
	tr.SetRoot(ref)
	if err = tr.Verify(ctx); !errors.Is(err, ErrCorruptNode) {
		t.Errorf("got error %v, want ErrCorruptNode", err)
	}
}

func TestInvariants(t *testing.T) {
	ctx := context.Background()

	f := func(degree uint8, ops []int16) bool {
		d := MinDegree + int(degree)%(MaxDegree-MinDegree+1)
		tr, _ := newTree(t, d, SetKind)
		model := make(map[string]bool)

		for _, op := range ops {
			k := []byte(fmt.Sprintf("%04d", op&0xff))
			if op < 0 {
				_, err := tr.Remove(ctx, k)
				switch {
				case model[string(k)]:
					if err != nil {
						t.Logf("removing %s: %s", k, err)
						return false
					}
					delete(model, string(k))
				case len(model) == 0:
					if !errors.Is(err, ErrEmptyTree) {
						t.Logf("removing %s from empty tree: got %v", k, err)
						return false
					}
				default:
					if !errors.Is(err, hlt.ErrNotFound) {
						t.Logf("removing absent %s: got %v", k, err)
						return false
					}
				}
			} else {
				err := tr.Add(ctx, k)
				if model[string(k)] {
					if !errors.Is(err, ErrDuplicateKey) {
						t.Logf("adding present %s: got %v", k, err)
						return false
					}
				} else {
					if err != nil {
						t.Logf("adding %s: %s", k, err)
						return false
					}
					model[string(k)] = true
				}
			}
			if err := tr.Verify(ctx); err != nil {
				t.Logf("degree %d: %s", d, err)
				return false
			}
		}

		var want []string
		for k := range model {
			want = append(want, k)
		}
		sort.Strings(want)
		got := contents(ctx, t, tr)
		if len(want) == 0 && len(got) == 0 {
			return tr.IsEmpty()
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Logf("contents mismatch (-want +got):\n%s", diff)
			return false
		}
		return true
	}

	if err := quick.Check(f, &quick.Config{MaxCount: 200}); err != nil {
		t.Error(err)
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(1))
	tr, _ := newTree(t, 6, SetKind)

	var inserted [][]byte
	for i := 0; i < 300; i++ {
		k := make([]byte, 1+rng.Intn(8))
		rng.Read(k)
		err := tr.Add(ctx, k)
		if errors.Is(err, ErrDuplicateKey) {
			continue
		}
		if err != nil {
			t.Fatal(err)
		}
		inserted = append(inserted, k)
	}

	var prev []byte
	it := tr.Iterator()
	var count int
	for it.Next(ctx) {
		if prev != nil && bytes.Compare(prev, it.Key()) >= 0 {
			t.Fatalf("keys out of order: %x then %x", prev, it.Key())
		}
		prev = it.Key()
		count++
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}
	if count != len(inserted) {
		t.Errorf("iterated %d keys, inserted %d", count, len(inserted))
	}

	rng.Shuffle(len(inserted), func(i, j int) { inserted[i], inserted[j] = inserted[j], inserted[i] })
	for _, k := range inserted {
		if _, err := tr.Remove(ctx, k); err != nil {
			t.Fatal(err)
		}
		has, err := tr.Has(ctx, k)
		if err != nil {
			t.Fatal(err)
		}
		if has {
			t.Fatalf("%x still present after removal", k)
		}
	}
	if err := tr.Verify(ctx); err != nil {
		t.Fatal(err)
	}
	if !tr.IsEmpty() {
		t.Error("tree not empty after removing everything")
	}
}

// countingGetter counts the Get calls that reach the underlying store.
type countingGetter struct {
	hlt.Getter
	gets atomic.Int64
}

func (g *countingGetter) Get(ctx context.Context, ref hlt.Ref) (hlt.Blob, error) {
	g.gets.Add(1)
	return g.Getter.Get(ctx, ref)
}

func TestChunkReuse(t *testing.T) {
	ctx := context.Background()
	src, s := newTree(t, 3, SetKind)
	for i := 0; i < 30; i++ {
		if err := src.Add(ctx, []byte(fmt.Sprintf("%02d", i))); err != nil {
			t.Fatal(err)
		}
	}

	cases := []struct {
		name      string
		cacheSize int
		reused    bool
	}{
		{name: "default", reused: true},
		{name: "disabled", cacheSize: -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := &countingGetter{Getter: s}
			tr, err := New(s, &hlt.Resolver{Local: g}, Options{Degree: 3, ChunkCache: tc.cacheSize})
			if err != nil {
				t.Fatal(err)
			}
			if err = tr.SetState(src.State()); err != nil {
				t.Fatal(err)
			}

			want := contents(ctx, t, src)
			if diff := cmp.Diff(want, contents(ctx, t, tr)); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
			first := g.gets.Load()
			if first == 0 {
				t.Fatal("first walk read nothing from the store")
			}

			if diff := cmp.Diff(want, contents(ctx, t, tr)); diff != "" {
				t.Fatalf("mismatch on second walk (-want +got):\n%s", diff)
			}
			if has, err := tr.Has(ctx, []byte("17")); err != nil || !has {
				t.Fatalf("got %v, %v; want true, nil", has, err)
			}

			second := g.gets.Load() - first
			switch {
			case tc.reused && second != 0:
				t.Errorf("second walk read %d nodes from the store, want 0", second)
			case !tc.reused && second <= first:
				t.Errorf("second walk and lookup read %d nodes from the store, want more than %d", second, first)
			}
		})
	}
}
