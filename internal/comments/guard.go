package comments

import "sync"

// Guard tracks in-flight submissions per content item so a duplicate submit
// racing the first one never reaches the upstream twice. An entry exists only
// while its submission is on the wire; release always removes it, so the set
// stays bounded by the number of concurrent submits.
type Guard struct {
	mu     sync.Mutex
	active map[int]struct{}
}

// NewGuard creates an empty guard. One guard is shared by every session the
// server creates.
func NewGuard() *Guard {
	return &Guard{active: make(map[int]struct{})}
}

func (g *Guard) acquire(cid int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[cid]; busy {
		return false
	}
	g.active[cid] = struct{}{}
	return true
}

func (g *Guard) release(cid int) {
	g.mu.Lock()
	delete(g.active, cid)
	g.mu.Unlock()
}
