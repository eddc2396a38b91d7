package book

import "container/list"

// idSet is an insertion-ordered set with O(1) average add, remove and
// membership. Re-adding a present key keeps its original slot.
type idSet[K comparable] struct {
	elems map[K]*list.Element
	order *list.List
}

func newIDSet[K comparable]() *idSet[K] {
	return &idSet[K]{
		elems: make(map[K]*list.Element),
		order: list.New(),
	}
}

func (s *idSet[K]) add(k K) {
	if _, ok := s.elems[k]; ok {
		return
	}
	s.elems[k] = s.order.PushBack(k)
}

func (s *idSet[K]) remove(k K) bool {
	e, ok := s.elems[k]
	if !ok {
		return false
	}
	s.order.Remove(e)
	delete(s.elems, k)
	return true
}

func (s *idSet[K]) has(k K) bool {
	_, ok := s.elems[k]
	return ok
}

func (s *idSet[K]) len() int {
	return len(s.elems)
}

// keys returns the members oldest first.
func (s *idSet[K]) keys() []K {
	out := make([]K, 0, len(s.elems))
	for e := s.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(K))
	}
	return out
}
