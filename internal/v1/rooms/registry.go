package rooms

import (
	"sync"

	"github.com/thaasbai/coordinator/internal/v1/events"
	"github.com/thaasbai/coordinator/internal/v1/metrics"
)

// Registry holds the two disjoint room namespaces. Lookups take the shared
// lock; creation and deletion take the exclusive one. Individual rooms manage
// their own locks and are opaque to each other.
type Registry struct {
	mu    sync.RWMutex
	rooms map[events.GameType]map[string]*Room
}

// NewRegistry returns an empty registry with both namespaces initialized.
func NewRegistry() *Registry {
	return &Registry{
		rooms: map[events.GameType]map[string]*Room{
			events.GameDhihaEi: {},
			events.GameDigu:    {},
		},
	}
}

// ClampDiguPlayers bounds a requested digu table size to what the game
// supports. Zero means the default of four.
func ClampDiguPlayers(n int) int {
	if n == 0 {
		return 4
	}
	if n < 2 {
		return 2
	}
	if n > 4 {
		return 4
	}
	return n
}

// Create inserts a new room with a freshly generated code, re-rolling on the
// rare collision. Codes are unique within their namespace only.
func (reg *Registry) Create(gt events.GameType, maxPlayers int) *Room {
	if gt == events.GameDhihaEi {
		maxPlayers = 4
	} else {
		maxPlayers = ClampDiguPlayers(maxPlayers)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	code := generateCode()
	for _, taken := reg.rooms[gt][code]; taken; _, taken = reg.rooms[gt][code] {
		code = generateCode()
	}

	room := newRoom(code, gt, maxPlayers)
	reg.rooms[gt][code] = room
	metrics.ActiveRooms.WithLabelValues(string(gt)).Inc()
	return room
}

// Get looks a room up by canonical code within one namespace.
func (reg *Registry) Get(gt events.GameType, code string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[gt][code]
	return room, ok
}

// Find searches both namespaces for a code. Reattach requests carry only the
// room id, not the game type.
func (reg *Registry) Find(code string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	for _, ns := range reg.rooms {
		if room, ok := ns[code]; ok {
			return room, true
		}
	}
	return nil, false
}

// Delete removes a room from its namespace. Idempotent.
func (reg *Registry) Delete(gt events.GameType, code string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.rooms[gt][code]; !ok {
		return
	}
	delete(reg.rooms[gt], code)
	metrics.ActiveRooms.WithLabelValues(string(gt)).Dec()
	metrics.RoomOccupancy.DeleteLabelValues(code)
}

// Count reports open rooms in one namespace.
func (reg *Registry) Count(gt events.GameType) int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms[gt])
}

// All returns a point-in-time slice of every room across both namespaces.
// Callers lock each room individually before touching its state.
func (reg *Registry) All() []*Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	all := make([]*Room, 0, len(reg.rooms[events.GameDhihaEi])+len(reg.rooms[events.GameDigu]))
	for _, ns := range reg.rooms {
		for _, room := range ns {
			all = append(all, room)
		}
	}
	return all
}
