package service

import "sync"

type result struct {
	resp *Response
	err  error
}

// router сопоставляет req_id ожидающим вызовам. Каждый pending
// разрешается ровно один раз и сразу удаляется.
type router struct {
	mu      sync.Mutex
	pending map[int64]chan result
}

func newRouter() *router {
	return &router{pending: make(map[int64]chan result)}
}

func (r *router) register(id int64) <-chan result {
	ch := make(chan result, 1)
	r.mu.Lock()
	r.pending[id] = ch
	r.mu.Unlock()
	return ch
}

// resolve false если id неизвестен (таймаут уже случился или чужой кадр).
func (r *router) resolve(id int64, resp *Response) bool {
	r.mu.Lock()
	ch, ok := r.pending[id]
	delete(r.pending, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	ch <- result{resp: resp}
	return true
}

func (r *router) discard(id int64) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

func (r *router) rejectAll(err error) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.pending)
	for id, ch := range r.pending {
		ch <- result{err: err}
		delete(r.pending, id)
	}
	return n
}

func (r *router) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
