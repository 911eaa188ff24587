package scan

import (
	"sync"
	"time"
)

// Gate admits an event only when its item differs from the last admitted
// item. With a positive rearm window, the same item is admitted again once it
// has gone unseen for at least that long.
type Gate struct {
	mu       sync.Mutex
	rearm    time.Duration
	admitted bool
	lastID   int64
	lastSeen time.Time
}

// NewGate constructs a Gate. A zero rearm never re-admits the same item.
func NewGate(rearm time.Duration) *Gate {
	if rearm < 0 {
		rearm = 0
	}
	return &Gate{rearm: rearm}
}

// Admit reports whether evt should be published.
func (g *Gate) Admit(evt Event) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.admitted || evt.ItemID != g.lastID {
		g.admitted = true
		g.lastID = evt.ItemID
		g.lastSeen = evt.ObservedAt
		return true
	}
	if g.rearm > 0 && evt.ObservedAt.Sub(g.lastSeen) >= g.rearm {
		g.lastSeen = evt.ObservedAt
		return true
	}
	g.lastSeen = evt.ObservedAt
	return false
}

// Reset forgets the last admitted item, e.g. after the capture loop restarts.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.admitted = false
	g.lastID = 0
	g.lastSeen = time.Time{}
	g.mu.Unlock()
}
