package pipe

// Item is an entry of a Pipe. Implementations embed Link:
//
//	type drawItem struct {
//	    pipe.Link
//	    ...
//	}
type Item interface {
	pipeLink() *Link
}

// Link is the intrusive queue hook embedded by every Item.
type Link struct {
	prev, next *Link
	owner      *Pipe
	item       Item
}

func (l *Link) pipeLink() *Link { return l }

// Queued reports whether the item is currently in a pipe.
func (l *Link) Queued() bool {
	return l.owner != nil
}

// Pipe is a FIFO of items that also supports insertion directly behind a
// queued item and removal from any position.
type Pipe struct {
	head, tail *Link
	n          int
}

// Len returns the number of queued items.
func (p *Pipe) Len() int {
	return p.n
}

// Push appends it at the back of the queue.
func (p *Pipe) Push(it Item) {
	l := p.adopt(it)
	l.prev = p.tail
	if p.tail != nil {
		p.tail.next = l
	} else {
		p.head = l
	}
	p.tail = l
	p.n++
}

// PushAfter inserts it so that it is popped right after anchor. When anchor
// is not queued on p, it is appended like Push.
func (p *Pipe) PushAfter(anchor, it Item) {
	a := anchor.pipeLink()
	if a.owner != p {
		p.Push(it)
		return
	}
	l := p.adopt(it)
	l.prev = a
	l.next = a.next
	if a.next != nil {
		a.next.prev = l
	} else {
		p.tail = l
	}
	a.next = l
	p.n++
}

// Remove unlinks it. It reports false when it was not queued on p.
func (p *Pipe) Remove(it Item) bool {
	l := it.pipeLink()
	if l.owner != p {
		return false
	}
	if l.prev != nil {
		l.prev.next = l.next
	} else {
		p.head = l.next
	}
	if l.next != nil {
		l.next.prev = l.prev
	} else {
		p.tail = l.prev
	}
	l.prev, l.next, l.owner, l.item = nil, nil, nil, nil
	p.n--
	return true
}

// Front returns the oldest item without removing it.
func (p *Pipe) Front() (Item, bool) {
	if p.head == nil {
		return nil, false
	}
	return p.head.item, true
}

// Pop removes and returns the oldest item.
func (p *Pipe) Pop() (Item, bool) {
	it, ok := p.Front()
	if !ok {
		return nil, false
	}
	p.Remove(it)
	return it, true
}

// Each calls fn for every queued item from oldest to newest. fn must not
// modify the pipe.
func (p *Pipe) Each(fn func(Item)) {
	for l := p.head; l != nil; l = l.next {
		fn(l.item)
	}
}

// Clear empties the pipe, handing every item to release in FIFO order.
// It returns the number of released items.
func (p *Pipe) Clear(release func(Item)) int {
	n := 0
	for {
		it, ok := p.Pop()
		if !ok {
			return n
		}
		release(it)
		n++
	}
}

func (p *Pipe) adopt(it Item) *Link {
	l := it.pipeLink()
	if l.owner != nil {
		panic("pipe: item is already queued")
	}
	l.owner = p
	l.item = it
	return l
}
