package tasktree

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type item struct {
	name string
	pri  int
}

func newItemTree() *Tree[item] {
	return NewTree(func(a, b *item) bool { return a.pri < b.pri })
}

func addItem(tr *Tree[item], name string, pri int, parent NodeID) NodeID {
	id := tr.Alloc(item{name: name, pri: pri})
	tr.Insert(id, parent)
	return id
}

func childNames(tr *Tree[item], parent NodeID) []string {
	var out []string
	for c := range tr.Children(parent) {
		out = append(out, tr.Value(c).name)
	}
	return out
}

func walkNames(tr *Tree[item]) []string {
	var out []string
	root := tr.Root()
	tr.Walk(root, func(id NodeID) {
		if id != root {
			out = append(out, tr.Value(id).name)
		}
	})
	return out
}

// assertSorted checks that every parent's children are in non-decreasing
// priority order.
func assertSorted(t *testing.T, tr *Tree[item]) {
	t.Helper()
	tr.Walk(tr.Root(), func(id NodeID) {
		prev := -1 << 31
		for c := range tr.Children(id) {
			p := tr.Value(c).pri
			if p < prev {
				t.Errorf("children of %v out of order: %d after %d", id, p, prev)
			}
			prev = p
		}
	})
}

// --- Insert ---

func TestTreeInsertSorted(t *testing.T) {
	tr := newItemTree()
	root := tr.Root()
	addItem(tr, "five", 5, root)
	addItem(tr, "one", 1, root)
	addItem(tr, "three", 3, root)

	want := []string{"one", "three", "five"}
	if diff := cmp.Diff(want, childNames(tr, root)); diff != "" {
		t.Errorf("children mismatch (-want +got):\n%s", diff)
	}
	if tr.Len() != 3 {
		t.Errorf("Len = %d, want 3", tr.Len())
	}
}

func TestTreeInsertEqualPriorityKeepsOrder(t *testing.T) {
	tr := newItemTree()
	root := tr.Root()
	addItem(tr, "a", 2, root)
	addItem(tr, "b", 2, root)
	addItem(tr, "c", 1, root)
	addItem(tr, "d", 2, root)

	want := []string{"c", "a", "b", "d"}
	if diff := cmp.Diff(want, childNames(tr, root)); diff != "" {
		t.Errorf("children mismatch (-want +got):\n%s", diff)
	}
}

func TestTreeInsertZeroParentIsRoot(t *testing.T) {
	tr := newItemTree()
	id := tr.Alloc(item{name: "a"})
	tr.Insert(id, NodeID{})
	if tr.Parent(id) != tr.Root() {
		t.Error("zero parent should insert under root")
	}
}

func TestTreeInsertPanics(t *testing.T) {
	tr := newItemTree()
	a := addItem(tr, "a", 1, tr.Root())
	unlinked := tr.Alloc(item{name: "u"})

	cases := map[string]func(){
		"root":           func() { tr.Insert(tr.Root(), NodeID{}) },
		"already linked": func() { tr.Insert(a, NodeID{}) },
		"zero id":        func() { tr.Insert(NodeID{}, NodeID{}) },
		"unlinked parent": func() {
			tr.Insert(tr.Alloc(item{name: "x"}), unlinked)
		},
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			fn()
		})
	}
}

func TestTreeInsertDuringWalkPanics(t *testing.T) {
	tr := newItemTree()
	addItem(tr, "a", 1, tr.Root())

	defer func() {
		if recover() == nil {
			t.Error("expected panic for Insert during Walk")
		}
	}()
	tr.Walk(tr.Root(), func(NodeID) {
		tr.Insert(tr.Alloc(item{name: "late"}), NodeID{})
	})
}

func TestTreeOnInsertHook(t *testing.T) {
	tr := newItemTree()
	var got []string
	tr.OnInsert = func(id NodeID) { got = append(got, tr.Value(id).name) }
	addItem(tr, "a", 1, tr.Root())
	addItem(tr, "b", 0, tr.Root())
	if diff := cmp.Diff([]string{"a", "b"}, got); diff != "" {
		t.Errorf("OnInsert order (-want +got):\n%s", diff)
	}
}

// --- Reserve ---

func TestTreeReserveDuringWalk(t *testing.T) {
	tr := newItemTree()
	a := addItem(tr, "a", 1, tr.Root())

	var late NodeID
	tr.Walk(tr.Root(), func(id NodeID) {
		if id == a {
			late = tr.Alloc(item{name: "late", pri: 0})
			tr.Reserve(late, a)
		}
	})
	if tr.Len() != 1 {
		t.Errorf("Len = %d before flush, want 1", tr.Len())
	}
	if tr.Exists(late) {
		t.Error("reserved node should not be linked before flush")
	}
	if tr.Reserved() != 1 {
		t.Errorf("Reserved = %d, want 1", tr.Reserved())
	}

	if n := tr.FlushReserved(); n != 1 {
		t.Errorf("FlushReserved = %d, want 1", n)
	}
	if tr.Len() != 2 {
		t.Errorf("Len = %d after flush, want 2", tr.Len())
	}
	if tr.Parent(late) != a {
		t.Error("late should be a child of a")
	}
	if tr.Reserved() != 0 {
		t.Errorf("Reserved = %d after flush, want 0", tr.Reserved())
	}
}

func TestTreeFlushReservedFIFO(t *testing.T) {
	tr := newItemTree()
	parent := tr.Alloc(item{name: "parent", pri: 0})
	child := tr.Alloc(item{name: "child", pri: 0})
	tr.Reserve(parent, NodeID{})
	tr.Reserve(child, parent)
	tr.FlushReserved()

	if tr.Parent(child) != parent {
		t.Error("child reserved after its parent should link under it")
	}
}

func TestTreeFlushReservedParentReservedLater(t *testing.T) {
	tr := newItemTree()
	parent := tr.Alloc(item{name: "parent"})
	child := tr.Alloc(item{name: "child"})
	other := tr.Alloc(item{name: "other"})
	tr.Reserve(child, parent)
	tr.Reserve(other, NodeID{})
	tr.Reserve(parent, NodeID{})

	if n := tr.FlushReserved(); n != 3 {
		t.Errorf("FlushReserved = %d, want 3", n)
	}
	if tr.Parent(child) != parent {
		t.Error("child should wait for its reserved parent")
	}
	if diff := cmp.Diff([]string{"other", "parent"}, childNames(tr, tr.Root())); diff != "" {
		t.Errorf("root children mismatch (-want +got):\n%s", diff)
	}
}

func TestTreeFlushReservedCycleUsesRoot(t *testing.T) {
	tr := newItemTree()
	a := tr.Alloc(item{name: "a"})
	b := tr.Alloc(item{name: "b"})
	tr.Reserve(a, b)
	tr.Reserve(b, a)

	if n := tr.FlushReserved(); n != 2 {
		t.Errorf("FlushReserved = %d, want 2", n)
	}
	if tr.Parent(a) != tr.Root() {
		t.Error("a should fall back to root")
	}
	if tr.Parent(b) != a {
		t.Error("b should link under a")
	}
	if tr.Reserved() != 0 {
		t.Errorf("Reserved = %d, want 0", tr.Reserved())
	}
}

func TestTreeInsertReservedPanics(t *testing.T) {
	tr := newItemTree()
	a := tr.Alloc(item{name: "a"})
	tr.Reserve(a, NodeID{})

	defer func() {
		if recover() == nil {
			t.Error("expected panic when inserting a reserved node")
		}
	}()
	tr.Insert(a, NodeID{})
}

func TestTreeFlushReservedMissingParentUsesRoot(t *testing.T) {
	tr := newItemTree()
	gone := addItem(tr, "gone", 0, tr.Root())
	n := tr.Alloc(item{name: "n"})
	tr.Reserve(n, gone)
	tr.Remove(gone)
	tr.Free(gone)

	tr.FlushReserved()
	if tr.Parent(n) != tr.Root() {
		t.Error("node reserved under a freed parent should link under root")
	}
}

func TestTreeReserveCapacity(t *testing.T) {
	tr := newItemTree()
	tr.SetReserveCap(1)
	tr.Reserve(tr.Alloc(item{name: "a"}), NodeID{})

	defer func() {
		if recover() == nil {
			t.Error("expected panic when reservation capacity is exceeded")
		}
	}()
	tr.Reserve(tr.Alloc(item{name: "b"}), NodeID{})
}

func TestTreeReserveTwicePanics(t *testing.T) {
	tr := newItemTree()
	a := tr.Alloc(item{name: "a"})
	tr.Reserve(a, NodeID{})

	defer func() {
		if recover() == nil {
			t.Error("expected panic for double reservation")
		}
	}()
	tr.Reserve(a, NodeID{})
}

// --- Remove ---

func TestTreeRemoveSplicesChildren(t *testing.T) {
	tr := newItemTree()
	root := tr.Root()
	addItem(tr, "a", 1, root)
	b := addItem(tr, "b", 5, root)
	addItem(tr, "c", 9, root)
	x := addItem(tr, "x", 3, b)
	addItem(tr, "y", 7, b)

	var removed []NodeID
	tr.OnRemove = func(id NodeID) { removed = append(removed, id) }

	if !tr.Remove(b) {
		t.Fatal("Remove returned false")
	}
	want := []string{"a", "x", "y", "c"}
	if diff := cmp.Diff(want, childNames(tr, root)); diff != "" {
		t.Errorf("children mismatch (-want +got):\n%s", diff)
	}
	if tr.Parent(x) != root {
		t.Error("spliced child should be re-parented to root")
	}
	if tr.Exists(b) {
		t.Error("removed node should not exist")
	}
	if !tr.Valid(b) {
		t.Error("removal must not free the node")
	}
	if len(removed) != 1 || removed[0] != b {
		t.Errorf("OnRemove calls = %v, want [b]", removed)
	}
	if tr.Len() != 4 {
		t.Errorf("Len = %d, want 4", tr.Len())
	}
}

func TestTreeRemoveReinsertRoundTrip(t *testing.T) {
	tr := newItemTree()
	root := tr.Root()
	addItem(tr, "a", 1, root)
	b := addItem(tr, "b", 4, root)
	addItem(tr, "c", 4, root)
	addItem(tr, "d", 8, root)

	pris := func() []int {
		var out []int
		for c := range tr.Children(root) {
			out = append(out, tr.Value(c).pri)
		}
		return out
	}
	before := pris()
	tr.Remove(b)
	tr.Insert(b, root)
	if diff := cmp.Diff(before, pris()); diff != "" {
		t.Errorf("priority order changed (-before +after):\n%s", diff)
	}
}

func TestTreeRemoveIfPostOrder(t *testing.T) {
	tr := newItemTree()
	root := tr.Root()
	a := addItem(tr, "a", 0, root)
	b := addItem(tr, "b", 0, a)
	addItem(tr, "c", 0, b)
	addItem(tr, "d", 1, root)

	var tested []string
	n := tr.RemoveIf(func(id NodeID) bool {
		tested = append(tested, tr.Value(id).name)
		return false
	})
	if n != 0 {
		t.Errorf("RemoveIf = %d, want 0", n)
	}
	pos := map[string]int{}
	for i, name := range tested {
		pos[name] = i
	}
	if len(tested) != 4 {
		t.Fatalf("tested %v, want each node once", tested)
	}
	if !(pos["c"] < pos["b"] && pos["b"] < pos["a"]) {
		t.Errorf("descendants should be tested before ancestors: %v", tested)
	}
}

func TestTreeRemoveIfNested(t *testing.T) {
	tr := newItemTree()
	root := tr.Root()
	a := addItem(tr, "a", 5, root)
	b := addItem(tr, "b", 2, a)
	addItem(tr, "c", 9, b)
	addItem(tr, "d", 1, b)
	addItem(tr, "e", 3, root)

	n := tr.RemoveIf(func(id NodeID) bool {
		name := tr.Value(id).name
		return name == "a" || name == "b"
	})
	if n != 2 {
		t.Errorf("RemoveIf = %d, want 2", n)
	}
	want := []string{"d", "e", "c"}
	if diff := cmp.Diff(want, childNames(tr, root)); diff != "" {
		t.Errorf("children mismatch (-want +got):\n%s", diff)
	}
	assertSorted(t, tr)
	if tr.Len() != 3 {
		t.Errorf("Len = %d, want 3", tr.Len())
	}
}

func TestTreeSortInvariant(t *testing.T) {
	tr := newItemTree()
	root := tr.Root()
	pris := []int{7, 3, 9, 1, 5, 3, 8, 2, 6, 4}
	var ids []NodeID
	for i, p := range pris {
		parent := root
		if i >= 3 {
			parent = ids[i%3]
		}
		ids = append(ids, addItem(tr, string(rune('a'+i)), p, parent))
	}
	assertSorted(t, tr)

	tr.RemoveIf(func(id NodeID) bool { return tr.Value(id).pri%3 == 0 })
	assertSorted(t, tr)

	addItem(tr, "late", 4, ids[0])
	assertSorted(t, tr)
}

// --- Walk ---

func TestTreeWalkPreOrder(t *testing.T) {
	tr := newItemTree()
	root := tr.Root()
	a := addItem(tr, "a", 1, root)
	addItem(tr, "b", 2, root)
	addItem(tr, "a2", 2, a)
	addItem(tr, "a1", 1, a)

	want := []string{"a", "a1", "a2", "b"}
	if diff := cmp.Diff(want, walkNames(tr)); diff != "" {
		t.Errorf("walk order (-want +got):\n%s", diff)
	}
}

func TestTreeWalkSubtreeOnly(t *testing.T) {
	tr := newItemTree()
	root := tr.Root()
	a := addItem(tr, "a", 1, root)
	addItem(tr, "b", 2, root)
	addItem(tr, "a1", 1, a)

	var got []string
	tr.Walk(a, func(id NodeID) { got = append(got, tr.Value(id).name) })
	if diff := cmp.Diff([]string{"a", "a1"}, got); diff != "" {
		t.Errorf("subtree walk must not visit siblings (-want +got):\n%s", diff)
	}
}

func TestTreeWalkDepth(t *testing.T) {
	tr := newItemTree()
	root := tr.Root()
	a := addItem(tr, "a", 1, root)
	b := addItem(tr, "b", 1, a)
	addItem(tr, "c", 1, b)

	depths := map[string]int{}
	tr.WalkDepth(root, func(id NodeID, depth int) {
		if id != root {
			depths[tr.Value(id).name] = depth
		}
	})
	want := map[string]int{"a": 1, "b": 2, "c": 3}
	if diff := cmp.Diff(want, depths); diff != "" {
		t.Errorf("depths (-want +got):\n%s", diff)
	}
	if tr.Depth(b) != 2 {
		t.Errorf("Depth(b) = %d, want 2", tr.Depth(b))
	}
}

// --- Queries and arena ---

func TestTreeQueries(t *testing.T) {
	tr := newItemTree()
	if !tr.Empty() {
		t.Error("new tree should be empty")
	}
	root := tr.Root()
	a := addItem(tr, "a", 1, root)
	b := addItem(tr, "b", 2, a)
	c := addItem(tr, "c", 3, root)

	if tr.Empty() {
		t.Error("tree should not be empty")
	}
	if !tr.Contains(a, b) {
		t.Error("a should contain b")
	}
	if tr.Contains(c, b) {
		t.Error("c should not contain b")
	}
	if tr.FirstChild(root) != a {
		t.Error("FirstChild(root) should be a")
	}
	if tr.NextSibling(a) != c {
		t.Error("NextSibling(a) should be c")
	}
	if !tr.NextSibling(c).IsZero() {
		t.Error("last sibling should have no NextSibling")
	}
	if tr.NumChildren(root) != 2 {
		t.Errorf("NumChildren(root) = %d, want 2", tr.NumChildren(root))
	}
}

func TestTreeFreeMakesIDStale(t *testing.T) {
	tr := newItemTree()
	a := addItem(tr, "a", 1, tr.Root())
	tr.Remove(a)
	tr.Free(a)

	if tr.Valid(a) {
		t.Error("freed ID should be stale")
	}
	if tr.Value(a) != nil {
		t.Error("Value of stale ID should be nil")
	}

	b := tr.Alloc(item{name: "b"})
	if b.index != a.index {
		t.Errorf("slot should be reused: got index %d, want %d", b.index, a.index)
	}
	if b == a {
		t.Error("reused slot must have a new generation")
	}
	if tr.Valid(a) {
		t.Error("old ID must stay stale after reuse")
	}
}

func TestTreeFreeLinkedPanics(t *testing.T) {
	tr := newItemTree()
	a := addItem(tr, "a", 1, tr.Root())
	defer func() {
		if recover() == nil {
			t.Error("expected panic freeing a linked node")
		}
	}()
	tr.Free(a)
}
