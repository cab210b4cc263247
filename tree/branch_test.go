package tree

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/hlt/store/mem"
)

// build stores a two-level tree with the given root keys and leaves
// and points a fresh tree at it.
func build(ctx context.Context, t *testing.T, degree int, rootKeys []string, leaves ...[]string) *Tree {
	t.Helper()
	s := mem.New()
	tr, err := New(s, nil, Options{Degree: degree})
	if err != nil {
		t.Fatal(err)
	}
	root := &Node{Kind: SetKind, Keys: keys(rootKeys...)}
	for _, leaf := range leaves {
		ref, _, err := s.Put(ctx, (&Node{Kind: SetKind, Keys: keys(leaf...)}).Encode())
		if err != nil {
			t.Fatal(err)
		}
		root.Children = append(root.Children, ref)
	}
	ref, _, err := s.Put(ctx, root.Encode())
	if err != nil {
		t.Fatal(err)
	}
	tr.SetRoot(ref)
	if err = tr.Verify(ctx); err != nil {
		t.Fatal(err)
	}
	return tr
}

// shape returns the keys of the root followed by the keys of each of its children.
func shape(ctx context.Context, t *testing.T, tr *Tree) [][]string {
	t.Helper()
	root := rootNode(ctx, t, tr)
	strs := func(n *Node) []string {
		var out []string
		for _, k := range n.Keys {
			out = append(out, string(k))
		}
		return out
	}
	out := [][]string{strs(root)}
	for _, c := range root.Children {
		n, err := tr.ns.load(ctx, c)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, strs(n))
	}
	return out
}

func TestRebalance(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name     string
		rootKeys []string
		leaves   [][]string
		remove   string
		want     [][]string
	}{{
		name:     "borrow from left",
		rootKeys: []string{"m"},
		leaves:   [][]string{{"a", "b", "c"}, {"x", "y"}},
		remove:   "y",
		want:     [][]string{{"c"}, {"a", "b"}, {"m", "x"}},
	}, {
		name:     "borrow from right",
		rootKeys: []string{"c"},
		leaves:   [][]string{{"a", "b"}, {"d", "e", "f"}},
		remove:   "a",
		want:     [][]string{{"d"}, {"b", "c"}, {"e", "f"}},
	}, {
		name:     "borrow from larger sibling",
		rootKeys: []string{"c", "m"},
		leaves:   [][]string{{"a", "b", "bb"}, {"d", "e"}, {"x", "y", "z", "zz"}},
		remove:   "e",
		want:     [][]string{{"c", "x"}, {"a", "b", "bb"}, {"d", "m"}, {"y", "z", "zz"}},
	}, {
		name:     "borrow tie goes left",
		rootKeys: []string{"c", "m"},
		leaves:   [][]string{{"a", "b", "bb"}, {"d", "e"}, {"x", "y", "z"}},
		remove:   "e",
		want:     [][]string{{"bb", "m"}, {"a", "b"}, {"c", "d"}, {"x", "y", "z"}},
	}, {
		name:     "merge prefers left",
		rootKeys: []string{"c", "m"},
		leaves:   [][]string{{"a", "b"}, {"d", "e"}, {"x", "y"}},
		remove:   "e",
		want:     [][]string{{"m"}, {"a", "b", "c", "d"}, {"x", "y"}},
	}, {
		name:     "merge with right when leftmost",
		rootKeys: []string{"c", "m"},
		leaves:   [][]string{{"a", "b"}, {"d", "e"}, {"x", "y"}},
		remove:   "a",
		want:     [][]string{{"m"}, {"b", "c", "d", "e"}, {"x", "y"}},
	}}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tr := build(ctx, t, 5, c.rootKeys, c.leaves...)
			if _, err := tr.Remove(ctx, []byte(c.remove)); err != nil {
				t.Fatal(err)
			}
			if err := tr.Verify(ctx); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(c.want, shape(ctx, t, tr)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRootCollapse(t *testing.T) {
	ctx := context.Background()
	tr := build(ctx, t, 3, []string{"b"}, []string{"a"}, []string{"c"})
	if _, err := tr.Remove(ctx, []byte("c")); err != nil {
		t.Fatal(err)
	}
	depth, err := tr.Depth(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if depth != 1 {
		t.Errorf("got depth %d, want 1", depth)
	}
	if diff := cmp.Diff(keys("a", "b"), rootNode(ctx, t, tr).Keys); diff != "" {
		t.Errorf("root mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendRejectsStranger(t *testing.T) {
	ctx := context.Background()
	tr := build(ctx, t, 3, []string{"b"}, []string{"a"}, []string{"c"})
	root, _ := tr.Root()

	b := tr.ns.branch(root)
	if err := b.OpenToLeftmostLeaf(ctx); err != nil {
		t.Fatal(err)
	}
	other := tr.ns.branch(root)
	if err := other.OpenToRightmostLeaf(ctx); err != nil {
		t.Fatal(err)
	}
	if err := b.Append(other); err == nil {
		t.Error("appending a branch from the root onto a leaf succeeded")
	}
}

func TestCommitIdempotent(t *testing.T) {
	ctx := context.Background()
	tr := build(ctx, t, 3, []string{"b"}, []string{"a"}, []string{"c"})
	root, _ := tr.Root()

	b := tr.ns.branch(root)
	if err := b.OpenToKey(ctx, []byte("c")); err != nil {
		t.Fatal(err)
	}
	got, empty, err := b.Commit(ctx, b.Depth()-1)
	if err != nil {
		t.Fatal(err)
	}
	if empty || got != root {
		t.Errorf("committing an unchanged branch gave %s (empty %v), want %s", got, empty, root)
	}
}
