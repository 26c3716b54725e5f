package list

type ListNode[T any] struct {
	Prev  *ListNode[T]
	Next  *ListNode[T]
	Value T

	list *List[T]
}

type ListIter[T any] struct {
	Next      *ListNode[T]
	Direction int
}

type List[T any] struct {
	Head   *ListNode[T]
	Tail   *ListNode[T]
	Length int
}

const (
	DirectionHead = iota
	DirectionTail
)

func NewList[T any]() *List[T] {
	return &List[T]{}
}

// Empty unlinks every node
func (l *List[T]) Empty() {
	current := l.Head
	for current != nil {
		next := current.Next
		current.Prev, current.Next, current.list = nil, nil, nil
		current = next
	}
	l.Head, l.Tail = nil, nil
	l.Length = 0
}

// AddNodeTail appends value and returns its node so it can be removed in O(1).
func (l *List[T]) AddNodeTail(value T) *ListNode[T] {
	node := &ListNode[T]{Value: value, list: l}
	if l.Tail == nil {
		l.Head, l.Tail = node, node
	} else {
		node.Prev, l.Tail.Next, l.Tail = l.Tail, node, node
	}
	l.Length++
	return node
}

// RemoveNode unlinks node. It reports false when node does not belong to l,
// which makes a second removal of the same node a no-op.
func (l *List[T]) RemoveNode(node *ListNode[T]) bool {
	if node == nil || node.list != l {
		return false
	}
	if node.Prev != nil {
		node.Prev.Next = node.Next
	} else {
		l.Head = node.Next
	}
	if node.Next != nil {
		node.Next.Prev = node.Prev
	} else {
		l.Tail = node.Prev
	}
	node.Next, node.Prev, node.list = nil, nil, nil
	l.Length--
	return true
}

func (l *List[T]) Len() int {
	return l.Length
}

func (l *List[T]) Iter(direction int) *ListIter[T] {
	it := &ListIter[T]{Direction: direction}
	if direction == DirectionHead {
		it.Next = l.Head
	} else {
		it.Next = l.Tail
	}
	return it
}

// Advance returns the current node and moves on. The returned node may be
// removed before the next call.
func (it *ListIter[T]) Advance() *ListNode[T] {
	current := it.Next
	if current == nil {
		return nil
	}
	if it.Direction == DirectionHead {
		it.Next = current.Next
	} else {
		it.Next = current.Prev
	}
	return current
}

// Values copies the list contents head to tail.
func (l *List[T]) Values() []T {
	out := make([]T, 0, l.Length)
	for n := l.Head; n != nil; n = n.Next {
		out = append(out, n.Value)
	}
	return out
}
