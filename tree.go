package tasktree

import (
	"iter"
	"math"
	"slices"
)

// NodeID addresses a slot in a Tree. The zero value never refers to a node.
// A NodeID goes stale once its slot is freed; the slot's generation counter
// makes stale IDs detectable instead of aliasing a reused slot.
type NodeID struct {
	index uint32
	gen   uint32
}

// IsZero reports whether id is the zero NodeID.
func (id NodeID) IsZero() bool {
	return id == NodeID{}
}

const (
	rootIndex = 0
	nilIndex  = math.MaxUint32
)

// slot holds one arena entry. parent/child/sibling are indices into
// Tree.slots or nilIndex.
type slot[T any] struct {
	value    T
	gen      uint32
	parent   uint32
	child    uint32
	sibling  uint32
	live     bool
	linked   bool
	reserved bool
}

// insertCmd is a deferred Insert recorded by Reserve.
type insertCmd struct {
	node   NodeID
	parent NodeID
}

type walkEntry struct {
	index uint32
	depth int
}

// Tree is a left-child, right-sibling tree over an arena of slots. Siblings
// are kept in ascending order by the less function; equal siblings keep
// insertion order.
//
// The tree never frees a node on its own. Alloc and Free are the owner's
// responsibility; Insert, Reserve and Remove only change links.
//
// Structural changes are not allowed while a Walk is in progress. Use
// Reserve from inside a walk and FlushReserved once it has finished.
type Tree[T any] struct {
	slots   []slot[T]
	free    []uint32
	pending []insertCmd
	less    func(a, b *T) bool

	linked     int
	walking    int
	reserveCap int

	// OnInsert is called after a node has been linked.
	OnInsert func(id NodeID)
	// OnRemove is called after a node has been unlinked. Its former children
	// are already spliced into its old position.
	OnRemove func(id NodeID)

	order   []uint32
	removed []uint32
	sortBuf []uint32
}

// NewTree creates a tree holding only the root sentinel. less orders
// siblings and must not be nil.
func NewTree[T any](less func(a, b *T) bool) *Tree[T] {
	if less == nil {
		panic("tasktree: NewTree requires a less function")
	}
	t := &Tree[T]{less: less}
	t.slots = append(t.slots, slot[T]{
		gen:     1,
		parent:  nilIndex,
		child:   nilIndex,
		sibling: nilIndex,
		live:    true,
		linked:  true,
	})
	return t
}

// SetReserveCap limits the number of pending reservations. Zero means
// unbounded. Reserve panics once the limit is reached.
func (t *Tree[T]) SetReserveCap(n int) {
	t.reserveCap = n
}

// Root returns the ID of the permanent root sentinel.
func (t *Tree[T]) Root() NodeID {
	return NodeID{index: rootIndex, gen: t.slots[rootIndex].gen}
}

// Alloc stores v in a fresh, unlinked slot and returns its ID.
func (t *Tree[T]) Alloc(v T) NodeID {
	var i uint32
	if n := len(t.free); n > 0 {
		i = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.slots = append(t.slots, slot[T]{gen: 1})
		i = uint32(len(t.slots) - 1)
	}
	s := &t.slots[i]
	s.value = v
	s.parent, s.child, s.sibling = nilIndex, nilIndex, nilIndex
	s.live = true
	return NodeID{index: i, gen: s.gen}
}

// Free returns an unlinked node's slot to the arena. Its ID goes stale.
// Panics if the node is still linked or reserved.
func (t *Tree[T]) Free(id NodeID) {
	if id.index == rootIndex {
		panic("tasktree: cannot free the root")
	}
	if !t.valid(id) {
		return
	}
	s := &t.slots[id.index]
	if s.linked || s.reserved {
		panic("tasktree: cannot free a linked or reserved node")
	}
	var zero T
	s.value = zero
	s.live = false
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	t.free = append(t.free, id.index)
}

// Value returns a pointer to the node's payload, or nil for a stale ID.
// The pointer is invalidated by the next Alloc.
func (t *Tree[T]) Value(id NodeID) *T {
	if !t.valid(id) {
		return nil
	}
	return &t.slots[id.index].value
}

// Valid reports whether id refers to an allocated node.
func (t *Tree[T]) Valid(id NodeID) bool {
	return t.valid(id)
}

func (t *Tree[T]) valid(id NodeID) bool {
	if id.IsZero() || int(id.index) >= len(t.slots) {
		return false
	}
	s := &t.slots[id.index]
	return s.live && s.gen == id.gen
}

// Exists reports whether id is linked into the tree.
func (t *Tree[T]) Exists(id NodeID) bool {
	return t.valid(id) && t.slots[id.index].linked
}

// Contains reports whether id is linked below ancestor.
func (t *Tree[T]) Contains(ancestor, id NodeID) bool {
	if !t.Exists(ancestor) || !t.Exists(id) || ancestor == id {
		return false
	}
	for p := t.slots[id.index].parent; p != nilIndex; p = t.slots[p].parent {
		if p == ancestor.index {
			return true
		}
	}
	return false
}

// Len returns the number of linked nodes, excluding the root.
func (t *Tree[T]) Len() int {
	return t.linked
}

// Empty reports whether the root has no children.
func (t *Tree[T]) Empty() bool {
	return t.slots[rootIndex].child == nilIndex
}

// Reserved returns the number of pending reservations.
func (t *Tree[T]) Reserved() int {
	return len(t.pending)
}

// Parent returns the parent of a linked node. The root and unlinked nodes
// have no parent.
func (t *Tree[T]) Parent(id NodeID) NodeID {
	if !t.Exists(id) {
		return NodeID{}
	}
	return t.idAt(t.slots[id.index].parent)
}

// FirstChild returns the lowest-ordered child of id.
func (t *Tree[T]) FirstChild(id NodeID) NodeID {
	if !t.Exists(id) {
		return NodeID{}
	}
	return t.idAt(t.slots[id.index].child)
}

// NextSibling returns the sibling ordered after id.
func (t *Tree[T]) NextSibling(id NodeID) NodeID {
	if !t.Exists(id) {
		return NodeID{}
	}
	return t.idAt(t.slots[id.index].sibling)
}

// Children iterates the direct children of id in sibling order.
func (t *Tree[T]) Children(id NodeID) iter.Seq[NodeID] {
	return func(yield func(NodeID) bool) {
		if !t.Exists(id) {
			return
		}
		for c := t.slots[id.index].child; c != nilIndex; c = t.slots[c].sibling {
			if !yield(t.idAt(c)) {
				return
			}
		}
	}
}

func (t *Tree[T]) idAt(i uint32) NodeID {
	if i == nilIndex {
		return NodeID{}
	}
	return NodeID{index: i, gen: t.slots[i].gen}
}

// --- Insertion ---

// Insert links id under parent, keeping the sibling chain sorted. A zero
// parent means the root. Panics on the root, a stale or already linked id,
// an unlinked parent, or when called during a Walk.
func (t *Tree[T]) Insert(id, parent NodeID) {
	t.mustMutate("Insert")
	t.checkInsertable(id)
	t.checkNotReserved(id)
	if parent.IsZero() {
		parent = t.Root()
	}
	if !t.Exists(parent) {
		panic("tasktree: insert under a parent that is not in the tree")
	}
	t.link(id.index, parent.index)
}

// Reserve records an insertion of id under parent to be applied by
// FlushReserved. It is safe to call during a Walk.
func (t *Tree[T]) Reserve(id, parent NodeID) {
	t.checkInsertable(id)
	t.checkNotReserved(id)
	s := &t.slots[id.index]
	if t.reserveCap > 0 && len(t.pending) >= t.reserveCap {
		panic("tasktree: reservation capacity exceeded")
	}
	s.reserved = true
	t.pending = append(t.pending, insertCmd{node: id, parent: parent})
}

// FlushReserved applies pending reservations in FIFO order and returns how
// many nodes were linked. Reservations made by OnInsert hooks are applied in
// the same flush. A reservation whose parent is itself still reserved waits
// until that parent is linked. A reservation whose parent is no longer in
// the tree links under the root; one whose node was freed is dropped.
func (t *Tree[T]) FlushReserved() int {
	t.mustMutate("FlushReserved")
	n := 0
	force := false
	for len(t.pending) > 0 {
		batch := t.pending
		t.pending = nil
		var waiting []insertCmd
		linked := 0
		for _, cmd := range batch {
			if !t.valid(cmd.node) {
				continue
			}
			if !force && t.isReserved(cmd.parent) {
				waiting = append(waiting, cmd)
				continue
			}
			t.slots[cmd.node.index].reserved = false
			parent := cmd.parent
			if parent.IsZero() || !t.Exists(parent) {
				parent = t.Root()
			}
			t.link(cmd.node.index, parent.index)
			linked++
		}
		n += linked
		// Parents reserved under their own descendants never resolve.
		force = linked == 0
		t.pending = append(waiting, t.pending...)
	}
	return n
}

func (t *Tree[T]) isReserved(id NodeID) bool {
	return !id.IsZero() && t.valid(id) && t.slots[id.index].reserved
}

func (t *Tree[T]) checkInsertable(id NodeID) {
	if id.index == rootIndex && !id.IsZero() {
		panic("tasktree: cannot insert the root")
	}
	if !t.valid(id) {
		panic("tasktree: insert of an invalid node")
	}
	if t.slots[id.index].linked {
		panic("tasktree: node is already in the tree")
	}
}

func (t *Tree[T]) checkNotReserved(id NodeID) {
	if t.slots[id.index].reserved {
		panic("tasktree: node is already reserved")
	}
}

// link splices i into p's child chain after every sibling not greater than
// it, so equal siblings stay in insertion order.
func (t *Tree[T]) link(i, p uint32) {
	prev := uint32(nilIndex)
	cur := t.slots[p].child
	for cur != nilIndex && !t.less(&t.slots[i].value, &t.slots[cur].value) {
		prev, cur = cur, t.slots[cur].sibling
	}
	s := &t.slots[i]
	s.parent = p
	s.sibling = cur
	s.linked = true
	if prev == nilIndex {
		t.slots[p].child = i
	} else {
		t.slots[prev].sibling = i
	}
	t.linked++
	if t.OnInsert != nil {
		t.OnInsert(t.idAt(i))
	}
}

// --- Removal ---

// Remove unlinks id. Its children take its place among its former siblings.
func (t *Tree[T]) Remove(id NodeID) bool {
	if !t.Exists(id) || id.index == rootIndex {
		return false
	}
	return t.RemoveIf(func(n NodeID) bool { return n == id }) == 1
}

// RemoveIf unlinks every node matching pred and returns how many were
// removed. Descendants are tested before their ancestors, each node exactly
// once. A removed node's children are spliced into its former position and
// the sibling chain is re-sorted. The root is never tested.
func (t *Tree[T]) RemoveIf(pred func(NodeID) bool) int {
	t.mustMutate("RemoveIf")

	// Pre-order listing; walking it backwards visits every parent after all
	// of its descendants.
	order := t.order[:0]
	stack := append(t.sortBuf[:0], rootIndex)
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, i)
		for c := t.slots[i].child; c != nilIndex; c = t.slots[c].sibling {
			stack = append(stack, c)
		}
	}
	t.sortBuf = stack[:0]

	removed := t.removed[:0]
	for k := len(order) - 1; k >= 0; k-- {
		p := order[k]
		if t.slots[p].child == nilIndex {
			continue
		}
		buf := t.sortBuf[:0]
		changed := false
		for c := t.slots[p].child; c != nilIndex; c = t.slots[c].sibling {
			if pred(t.idAt(c)) {
				changed = true
				removed = append(removed, c)
				for g := t.slots[c].child; g != nilIndex; g = t.slots[g].sibling {
					buf = append(buf, g)
				}
				continue
			}
			buf = append(buf, c)
		}
		if changed {
			t.relink(p, buf)
		}
		t.sortBuf = buf[:0]
	}

	for _, i := range removed {
		s := &t.slots[i]
		s.parent, s.child, s.sibling = nilIndex, nilIndex, nilIndex
		s.linked = false
		t.linked--
	}
	n := len(removed)
	if t.OnRemove != nil {
		for _, i := range removed {
			t.OnRemove(NodeID{index: i, gen: t.slots[i].gen})
		}
	}
	clear(order)
	t.order = order[:0]
	t.removed = removed[:0]
	return n
}

// relink rebuilds p's child chain from children, stably sorted.
func (t *Tree[T]) relink(p uint32, children []uint32) {
	slices.SortStableFunc(children, func(a, b uint32) int {
		switch {
		case t.less(&t.slots[a].value, &t.slots[b].value):
			return -1
		case t.less(&t.slots[b].value, &t.slots[a].value):
			return 1
		}
		return 0
	})
	next := uint32(nilIndex)
	for k := len(children) - 1; k >= 0; k-- {
		c := children[k]
		t.slots[c].parent = p
		t.slots[c].sibling = next
		next = c
	}
	t.slots[p].child = next
}

// --- Traversal ---

// Walk visits start and its whole subtree in pre-order: a node, then its
// children in sibling order. A zero start means the root.
func (t *Tree[T]) Walk(start NodeID, fn func(NodeID)) {
	t.WalkDepth(start, func(id NodeID, _ int) { fn(id) })
}

// WalkDepth is Walk with the depth of each node relative to start.
func (t *Tree[T]) WalkDepth(start NodeID, fn func(id NodeID, depth int)) {
	if start.IsZero() {
		start = t.Root()
	}
	if !t.Exists(start) {
		return
	}
	t.walking++
	defer func() { t.walking-- }()

	stack := make([]walkEntry, 1, 16)
	stack[0] = walkEntry{index: start.index}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(t.idAt(e.index), e.depth)
		mark := len(stack)
		for c := t.slots[e.index].child; c != nilIndex; c = t.slots[c].sibling {
			stack = append(stack, walkEntry{index: c, depth: e.depth + 1})
		}
		slices.Reverse(stack[mark:])
	}
}

// Depth returns the number of ancestors of a linked node; the root's
// children have depth 1.
func (t *Tree[T]) Depth(id NodeID) int {
	if !t.Exists(id) {
		return 0
	}
	d := 0
	for p := t.slots[id.index].parent; p != nilIndex; p = t.slots[p].parent {
		d++
	}
	return d
}

// NumChildren returns the number of direct children of id.
func (t *Tree[T]) NumChildren(id NodeID) int {
	n := 0
	for range t.Children(id) {
		n++
	}
	return n
}

func (t *Tree[T]) mustMutate(op string) {
	if t.walking > 0 {
		panic("tasktree: " + op + " during a walk; use Reserve")
	}
}
