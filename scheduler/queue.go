package scheduler

// Task is the scheduler's internal record for one submitted callback: its
// callback, effective priority, completion channel, pending host wake,
// and the intrusive doubly-linked-list fields that place it on at most
// one priority queue at a time. Outside code never sees this type;
// PostTask returns only a *Future.
//
// sequence is assigned exactly once, at the task's first push onto a
// queue, and is never reassigned by a later merge: a migrated task keeps
// its original global posting order.
type Task struct {
	prev, next *Task
	sequence   int64

	priority Priority
	signal   AbortSignal

	callback func() (any, error)
	future   *Future

	hostCallback     hostWake
	unsubscribeAbort func()

	settled bool
}

// hostWake is the subset of *hostcallback.Callback the dispatcher needs.
// Keeping it as a local interface lets queue.go stay free of host-wiring
// detail.
type hostWake interface {
	Cancel()
}

// queue is an intrusive FIFO: a doubly-linked list with O(1) push/pop
// and an ordered merge by insertion sequence.
type queue struct {
	head, tail *Task
}

func (q *queue) isEmpty() bool {
	return q.head == nil
}

// push appends t to the tail. t.sequence must already be set by the
// caller (the Scheduler owns the global sequence counter so that it is
// shared across all priority queues).
func (q *queue) push(t *Task) {
	t.prev = q.tail
	t.next = nil
	if q.tail != nil {
		q.tail.next = t
	} else {
		q.head = t
	}
	q.tail = t
}

// takeNextTask unlinks and returns the head, or nil if empty.
func (q *queue) takeNextTask() *Task {
	t := q.head
	if t == nil {
		return nil
	}
	q.head = t.next
	if q.head != nil {
		q.head.prev = nil
	} else {
		q.tail = nil
	}
	t.prev, t.next = nil, nil
	return t
}

// peek returns the head without unlinking it, or nil if empty.
func (q *queue) peek() *Task {
	return q.head
}

// unlink removes t from q. t must currently be linked into q.
func (q *queue) unlink(t *Task) {
	if t.prev != nil {
		t.prev.next = t.next
	} else {
		q.head = t.next
	}
	if t.next != nil {
		t.next.prev = t.prev
	} else {
		q.tail = t.prev
	}
	t.prev, t.next = nil, nil
}

// insertBefore links t into q immediately before mark, or at the tail if
// mark is nil. It does not touch t.sequence.
func (q *queue) insertBefore(t, mark *Task) {
	if mark == nil {
		t.prev = q.tail
		t.next = nil
		if q.tail != nil {
			q.tail.next = t
		} else {
			q.head = t
		}
		q.tail = t
		return
	}
	t.next = mark
	t.prev = mark.prev
	if mark.prev != nil {
		mark.prev.next = t
	} else {
		q.head = t
	}
	mark.prev = t
}

// merge moves every task in source matching selector into q, preserving
// strictly-increasing sequence order in q. It performs a single forward
// pass over source: the scan never rewinds, so the insertion cursor into
// q marches monotonically forward as matching tasks (already increasing
// in sequence, since source is itself sequence-ordered) are processed in
// their original order. Non-matching tasks are left in source, in their
// original relative order. Merging from an empty source is a no-op.
func (q *queue) merge(source *queue, selector func(*Task) bool) {
	cursor := q.head
	cur := source.head
	for cur != nil {
		next := cur.next
		if selector(cur) {
			source.unlink(cur)
			for cursor != nil && cursor.sequence < cur.sequence {
				cursor = cursor.next
			}
			q.insertBefore(cur, cursor)
		}
		cur = next
	}
}
