package scan

import "sync"

// flightGuard serializes scan runs per user. Two overlapping runs would read
// the same stale watermark and race on the final user write, so a second
// request for a busy user is rejected instead of raced.
type flightGuard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newFlightGuard() *flightGuard {
	return &flightGuard{active: make(map[string]struct{})}
}

// acquire reserves the user's scan slot; false means a run is in flight.
func (g *flightGuard) acquire(userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[userID]; busy {
		return false
	}
	g.active[userID] = struct{}{}
	return true
}

func (g *flightGuard) release(userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, userID)
}
