package tree

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/hlt"
)

func refs(strs ...string) []hlt.Ref {
	var out []hlt.Ref
	for _, s := range strs {
		out = append(out, hlt.Blob(s).Ref())
	}
	return out
}

func TestFollow(t *testing.T) {
	internal := &Node{Kind: SetKind, Keys: keys("d", "h"), Children: refs("c0", "c1", "c2")}
	leaf := &Node{Kind: SetKind, Keys: keys("d", "h")}

	cases := []struct {
		n        *Node
		key      string
		wantStep Step
		wantRef  hlt.Ref
	}{
		{n: internal, key: "d", wantStep: Found},
		{n: internal, key: "a", wantStep: Descend, wantRef: hlt.Blob("c0").Ref()},
		{n: internal, key: "e", wantStep: Descend, wantRef: hlt.Blob("c1").Ref()},
		{n: internal, key: "z", wantStep: Descend, wantRef: hlt.Blob("c2").Ref()},
		{n: leaf, key: "h", wantStep: Found},
		{n: leaf, key: "e", wantStep: Exhausted},
	}
	for _, c := range cases {
		step, ref := c.n.Follow([]byte(c.key))
		if step != c.wantStep || ref != c.wantRef {
			t.Errorf("follow %s in %v: got %d/%s, want %d/%s", c.key, c.n.Keys, step, ref, c.wantStep, c.wantRef)
		}
	}
}

func TestSplit(t *testing.T) {
	n := &Node{
		Kind:     MapKind,
		Keys:     keys("a", "b", "c", "d"),
		Values:   keys("1", "2", "3", "4"),
		Children: refs("c0", "c1", "c2", "c3", "c4"),
	}
	key, value, right := n.Split()

	if string(key) != "c" || string(value) != "3" {
		t.Errorf("got median %s=%s, want c=3", key, value)
	}
	want := &Node{Kind: MapKind, Keys: keys("a", "b"), Values: keys("1", "2"), Children: refs("c0", "c1", "c2")}
	if diff := cmp.Diff(want, n); diff != "" {
		t.Errorf("left mismatch (-want +got):\n%s", diff)
	}
	want = &Node{Kind: MapKind, Keys: keys("d"), Values: keys("4"), Children: refs("c3", "c4")}
	if diff := cmp.Diff(want, right); diff != "" {
		t.Errorf("right mismatch (-want +got):\n%s", diff)
	}

	// The halves no longer share storage.
	n.Insert([]byte("bb"), []byte("x"), &hlt.Zero)
	if string(right.Keys[0]) != "d" {
		t.Errorf("inserting into left half changed right half to %s", right.Keys[0])
	}
}

func TestRotationPrimitives(t *testing.T) {
	n := &Node{Kind: SetKind, Keys: keys("b", "c"), Children: refs("c0", "c1", "c2")}

	k, _, child := n.PopLeftmost()
	if string(k) != "b" || child == nil || *child != hlt.Blob("c0").Ref() {
		t.Errorf("PopLeftmost got %s, %v", k, child)
	}
	n.PushRight([]byte("d"), nil, child)
	k, _, child = n.PopRightmost()
	if string(k) != "d" || child == nil || *child != hlt.Blob("c0").Ref() {
		t.Errorf("PopRightmost got %s, %v", k, child)
	}
	n.PushLeft([]byte("a"), nil, child)

	want := &Node{Kind: SetKind, Keys: keys("a", "c"), Children: refs("c0", "c1", "c2")}
	if diff := cmp.Diff(want, n); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	leaf := &Node{Kind: SetKind, Keys: keys("x")}
	if _, _, child = leaf.PopRightmost(); child != nil {
		t.Error("leaf yielded a child")
	}
}

func TestMergeWith(t *testing.T) {
	left := &Node{Kind: MapKind, Keys: keys("a"), Values: keys("1"), Children: refs("c0", "c1")}
	right := &Node{Kind: MapKind, Keys: keys("c"), Values: keys("3"), Children: refs("c2", "c3")}
	left.MergeWith(right, []byte("b"), []byte("2"))

	want := &Node{
		Kind:     MapKind,
		Keys:     keys("a", "b", "c"),
		Values:   keys("1", "2", "3"),
		Children: refs("c0", "c1", "c2", "c3"),
	}
	if diff := cmp.Diff(want, left); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSiblings(t *testing.T) {
	cs := refs("c0", "c1", "c2")
	n := &Node{Kind: SetKind, Keys: keys("b", "d"), Children: cs}

	if _, _, ok := n.LeftSibling(cs[0]); ok {
		t.Error("leftmost child has a left sibling")
	}
	if ref, sep, ok := n.LeftSibling(cs[2]); !ok || ref != cs[1] || sep != 1 {
		t.Errorf("left sibling of c2: got %s, %d, %v", ref, sep, ok)
	}
	if ref, sep, ok := n.RightSibling(cs[0]); !ok || ref != cs[1] || sep != 0 {
		t.Errorf("right sibling of c0: got %s, %d, %v", ref, sep, ok)
	}
	if _, _, ok := n.RightSibling(cs[2]); ok {
		t.Error("rightmost child has a right sibling")
	}
	if _, _, ok := n.RightSibling(hlt.Blob("stranger").Ref()); ok {
		t.Error("non-child has a sibling")
	}

	newRef := hlt.Blob("new").Ref()
	if !n.UpdateChildRef(cs[1], newRef) {
		t.Fatal("UpdateChildRef did not find c1")
	}
	if n.ChildIndex(newRef) != 1 {
		t.Error("updated child not at index 1")
	}
	if n.UpdateChildRef(hlt.Blob("stranger").Ref(), newRef) {
		t.Error("UpdateChildRef replaced a non-child")
	}
}

func TestClone(t *testing.T) {
	n := &Node{Kind: SetKind, Keys: keys("a", "c")}
	c := n.Clone()
	c.Insert([]byte("b"), nil, nil)
	if len(n.Keys) != 2 {
		t.Errorf("insert into clone changed original to %d keys", len(n.Keys))
	}
}
