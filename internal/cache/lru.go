package cache

// lruNode is an entry of the recency list. It carries the key so the
// oldest entry can be dropped from the index map in O(1).
type lruNode struct {
	id   uint64
	size int64
	prev *lruNode
	next *lruNode
}

// lruList is a doubly linked recency list: head is the most recently used
// entry, tail the least recently used. Not safe for concurrent use.
type lruList struct {
	head *lruNode
	tail *lruNode
	len  int
}

func (l *lruList) pushFront(n *lruNode) {
	n.prev = nil
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	} else {
		l.tail = n
	}
	l.head = n
	l.len++
}

func (l *lruList) moveToFront(n *lruNode) {
	if n == l.head {
		return
	}
	l.unlink(n)
	l.pushFront(n)
}

func (l *lruList) oldest() *lruNode {
	return l.tail
}

func (l *lruList) unlink(n *lruNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev = nil
	n.next = nil
	l.len--
}
