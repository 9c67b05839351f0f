package task

import "container/heap"

type entry struct {
	id       string
	priority Priority
	seq      uint64
	index    int
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// priorityQueue orders task ids by (priority, sequence). Each push takes a
// fresh sequence number, so a re-pushed id joins the back of its tier.
// It is not safe for concurrent use; the manager guards it.
type priorityQueue struct {
	h     entryHeap
	byID  map[string]*entry
	nextN uint64
}

func newPriorityQueue() *priorityQueue {
	return &priorityQueue{byID: make(map[string]*entry)}
}

func (q *priorityQueue) push(id string, p Priority) {
	if old, ok := q.byID[id]; ok {
		heap.Remove(&q.h, old.index)
	}
	q.nextN++
	e := &entry{id: id, priority: p, seq: q.nextN}
	heap.Push(&q.h, e)
	q.byID[id] = e
}

func (q *priorityQueue) pop() (string, bool) {
	if len(q.h) == 0 {
		return "", false
	}
	e := heap.Pop(&q.h).(*entry)
	delete(q.byID, e.id)
	return e.id, true
}

func (q *priorityQueue) remove(id string) bool {
	e, ok := q.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&q.h, e.index)
	delete(q.byID, id)
	return true
}

func (q *priorityQueue) len() int { return len(q.h) }

// drain empties the queue and returns ids in service order.
func (q *priorityQueue) drain() []string {
	ids := make([]string, 0, len(q.h))
	for {
		id, ok := q.pop()
		if !ok {
			return ids
		}
		ids = append(ids, id)
	}
}
