package facade

import (
	"container/list"
	"sync"

	"github.com/google/uuid"

	"github.com/corenexus/memory-service/internal/model"
)

// recentIndexCapacity bounds how many recently touched memories the facade
// keeps resident for get_memory lookups, oldest evicted first.
const recentIndexCapacity = 4096

// recentIndex is a small bounded LRU of memories the facade has recently
// created or observed, used as a fast path for get_memory: a hit avoids a
// round trip to the primary provider. A miss is never treated as
// not-found — the facade falls through to the primary's GetByID, which is
// the durable source of truth.
type recentIndex struct {
	mu       sync.Mutex
	order    *list.List
	elements map[uuid.UUID]*list.Element
}

type recentEntry struct {
	id  uuid.UUID
	mem model.Memory
}

func newRecentIndex() *recentIndex {
	return &recentIndex{
		order:    list.New(),
		elements: make(map[uuid.UUID]*list.Element),
	}
}

func (r *recentIndex) observe(mem model.Memory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if el, ok := r.elements[mem.ID]; ok {
		el.Value = recentEntry{id: mem.ID, mem: mem}
		r.order.MoveToFront(el)
		return
	}
	el := r.order.PushFront(recentEntry{id: mem.ID, mem: mem})
	r.elements[mem.ID] = el

	if r.order.Len() > recentIndexCapacity {
		oldest := r.order.Back()
		if oldest != nil {
			r.order.Remove(oldest)
			delete(r.elements, oldest.Value.(recentEntry).id)
		}
	}
}

func (r *recentIndex) get(id uuid.UUID) (model.Memory, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	el, ok := r.elements[id]
	if !ok {
		return model.Memory{}, false
	}
	r.order.MoveToFront(el)
	return el.Value.(recentEntry).mem, true
}

func (r *recentIndex) remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if el, ok := r.elements[id]; ok {
		r.order.Remove(el)
		delete(r.elements, id)
	}
}
