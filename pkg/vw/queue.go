package vw

// PendingQueue holds namespaces waiting for the next example line. Each
// namespace is used by exactly one line: building a line drains the queue.
type PendingQueue struct {
	items []*Namespace
}

// Push appends namespaces, preserving order. Nil entries are ignored.
func (q *PendingQueue) Push(ns ...*Namespace) {
	for _, n := range ns {
		if n != nil {
			q.items = append(q.items, n)
		}
	}
}

// Len returns the number of queued namespaces.
func (q *PendingQueue) Len() int { return len(q.items) }

// Items returns a copy of the queued namespaces.
func (q *PendingQueue) Items() []*Namespace {
	out := make([]*Namespace, len(q.items))
	copy(out, q.items)
	return out
}

// Drain returns the queued namespaces and empties the queue.
func (q *PendingQueue) Drain() []*Namespace {
	out := q.items
	q.items = nil
	return out
}
