package kernel

// waitNode links a thread into the ready queue or into exactly one wait list.
// The zero value is an unlinked node.
type waitNode struct {
	prev, next *waitNode
	t          *Thread
}

func (n *waitNode) linked() bool { return n.next != nil && n.next != n }

func (n *waitNode) unlink() {
	if !n.linked() {
		return
	}
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev, n.next = n, n
}

func (n *waitNode) insertBefore(at *waitNode) {
	n.prev = at.prev
	n.next = at
	at.prev.next = n
	at.prev = n
}

// waitList is a circular, sentinel-terminated list of threads. The zero value
// is an empty list.
type waitList struct {
	head waitNode
}

func (l *waitList) lazyInit() {
	if l.head.next == nil {
		l.head.prev, l.head.next = &l.head, &l.head
	}
}

func (l *waitList) empty() bool {
	return l.head.next == nil || l.head.next == &l.head
}

func (l *waitList) first() *Thread {
	if l.empty() {
		return nil
	}
	return l.head.next.t
}

func (l *waitList) len() int {
	n := 0
	if l.empty() {
		return 0
	}
	for e := l.head.next; e != &l.head; e = e.next {
		n++
	}
	return n
}

func (l *waitList) pushBack(t *Thread) {
	l.lazyInit()
	t.node.insertBefore(&l.head)
}

// insertByPriority places t before the first waiter that is strictly less
// urgent, so equal priorities keep arrival order.
func (l *waitList) insertByPriority(t *Thread) {
	l.lazyInit()
	for e := l.head.next; e != &l.head; e = e.next {
		if t.currPrio < e.t.currPrio {
			t.node.insertBefore(e)
			return
		}
	}
	t.node.insertBefore(&l.head)
}
