package coordinator

import (
	"time"

	"github.com/thaasbai/coordinator/internal/v1/events"
	"github.com/thaasbai/coordinator/internal/v1/rooms"
	"github.com/thaasbai/coordinator/internal/v1/sessions"
)

// Snapshot is the read-only admin view of the whole coordinator. Rooms omit
// hands and gameState to keep payloads bounded.
type Snapshot struct {
	Rooms         []rooms.View            `json:"rooms"`
	Sessions      []sessions.SessionView  `json:"sessions"`
	Queues        map[string][]QueueEntry `json:"queues"`
	UptimeSeconds float64                 `json:"uptime"`
	Counters      Stats                   `json:"counters"`
}

// QueueEntry is a queue member as rendered in the snapshot.
type QueueEntry struct {
	SID        string    `json:"sid"`
	PlayerName string    `json:"playerName"`
	JoinedAt   time.Time `json:"joinedAt"`
	Target     int       `json:"target"`
}

// SnapshotState assembles the admin snapshot. Each room is locked briefly
// while its view is rendered.
func (c *Coordinator) SnapshotState() Snapshot {
	snap := Snapshot{
		Sessions:      c.sessions.Snapshot(),
		Queues:        make(map[string][]QueueEntry, 2),
		UptimeSeconds: time.Since(c.startedAt).Seconds(),
		Counters:      c.StatsSnapshot(),
	}

	for _, room := range c.rooms.All() {
		room.Lock()
		snap.Rooms = append(snap.Rooms, room.AdminView())
		room.Unlock()
	}

	for _, gt := range []events.GameType{events.GameDhihaEi, events.GameDigu} {
		views := make([]QueueEntry, 0)
		for _, entry := range c.queues.Waiting(gt) {
			views = append(views, QueueEntry{
				SID:        entry.SID,
				PlayerName: entry.PlayerName,
				JoinedAt:   entry.JoinedAt,
				Target:     entry.Target,
			})
		}
		snap.Queues[string(gt)] = views
	}
	return snap
}

// RoomCounts reports open rooms by status for one namespace, used by the
// server-stats endpoint.
func (c *Coordinator) RoomCounts(gt events.GameType) (total, waiting, playing int) {
	for _, room := range c.rooms.All() {
		room.Lock()
		if room.GameType == gt {
			total++
			switch room.Status {
			case rooms.StatusWaiting:
				waiting++
			case rooms.StatusPlaying:
				playing++
			}
		}
		room.Unlock()
	}
	return total, waiting, playing
}

// QueueDepth reports waiting players for one game type.
func (c *Coordinator) QueueDepth(gt events.GameType) int {
	return c.queues.Depth(gt)
}
