package uthreads

// readyQueue is the FIFO of runnable tids. Backed by a slice: the queue
// never holds more than MaxThreads entries, so chunked or pooled queue
// machinery buys nothing here.
type readyQueue struct {
	tids []int
}

// pushBack enqueues tid at the tail.
func (q *readyQueue) pushBack(tid int) {
	q.tids = append(q.tids, tid)
}

// popFront dequeues the head, reporting false if the queue is empty.
func (q *readyQueue) popFront() (int, bool) {
	if len(q.tids) == 0 {
		return 0, false
	}
	tid := q.tids[0]
	q.tids = q.tids[1:]
	return tid, true
}

// remove deletes tid from the queue if present, preserving FIFO order among
// the rest.
func (q *readyQueue) remove(tid int) {
	for i, t := range q.tids {
		if t == tid {
			q.tids = append(q.tids[:i], q.tids[i+1:]...)
			return
		}
	}
}

// isEmpty reports whether the queue has no runnable tids.
func (q *readyQueue) isEmpty() bool {
	return len(q.tids) == 0
}

// resetTo replaces the queue's contents with exactly tid. Used only by
// Terminate(0) from a non-zero thread: the ready queue becomes just tid 0
// so that the exit ceremony is guaranteed to run on tid 0's own stack.
func (q *readyQueue) resetTo(tid int) {
	q.tids = q.tids[:0]
	q.tids = append(q.tids, tid)
}
