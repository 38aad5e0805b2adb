package node

import (
	"sync"

	cm "github.com/mosaicnetworks/tablenet/src/common"
	"github.com/mosaicnetworks/tablenet/src/session"
)

// Roster is the list of players at the table, in joining order. On a host,
// each remote player is owned by the handler it authenticated through; the
// host's own player has no handler.
type Roster struct {
	sync.RWMutex
	names  []string
	owners map[string]*session.Handler
}

// NewRoster returns a roster holding the given players.
func NewRoster(names ...string) *Roster {
	r := &Roster{}
	r.Reset(names)
	return r
}

// Add admits name, owned by h. It fails with DuplicatePlayerName if the name is
// taken.
func (r *Roster) Add(name string, h *session.Handler) error {
	r.Lock()
	defer r.Unlock()

	if _, ok := r.owners[name]; ok {
		return cm.NetworkTableErrorf(cm.DuplicatePlayerName, "admit", "player %q is already at the table", name)
	}
	r.owners[name] = h
	r.names = append(r.names, name)
	return nil
}

// Remove removes name if it is owned by h, and reports whether it did.
func (r *Roster) Remove(name string, h *session.Handler) bool {
	r.Lock()
	defer r.Unlock()

	owner, ok := r.owners[name]
	if !ok || owner != h {
		return false
	}
	delete(r.owners, name)
	for i, n := range r.names {
		if n == name {
			r.names = append(r.names[:i], r.names[i+1:]...)
			break
		}
	}
	return true
}

// Reset replaces the whole roster. Players added this way have no owner.
func (r *Roster) Reset(names []string) {
	r.Lock()
	defer r.Unlock()

	r.names = make([]string, 0, len(names))
	r.owners = make(map[string]*session.Handler, len(names))
	for _, n := range names {
		if _, ok := r.owners[n]; ok {
			continue
		}
		r.owners[n] = nil
		r.names = append(r.names, n)
	}
}

// Contains reports whether name is seated.
func (r *Roster) Contains(name string) bool {
	r.RLock()
	defer r.RUnlock()
	_, ok := r.owners[name]
	return ok
}

// Names returns a copy of the player names in joining order.
func (r *Roster) Names() []string {
	r.RLock()
	defer r.RUnlock()
	res := make([]string, len(r.names))
	copy(res, r.names)
	return res
}

// Len ...
func (r *Roster) Len() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.names)
}
