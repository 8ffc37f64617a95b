// Package matchmaking implements the per-game-type FIFO queues. The drain
// decision happens inside the queue's critical section, so a session can
// never be handed to two matches.
package matchmaking

import (
	"sync"
	"time"

	"k8s.io/utils/set"

	"github.com/thaasbai/coordinator/internal/v1/events"
	"github.com/thaasbai/coordinator/internal/v1/metrics"
)

// Entry is one waiting player. Target is the table size this entry can seat
// at: always 4 for dhiha-ei, the clamped requested size for digu.
type Entry struct {
	SID        string
	PlayerName string
	JoinedAt   time.Time
	GameType   events.GameType
	Target     int
}

// Ack is the joiner's queue receipt.
type Ack struct {
	Position       int
	PlayersInQueue int
	PlayersNeeded  int
}

// Queues holds both game-type queues behind one lock. Digu entries with
// different requested table sizes wait in the same queue but only count
// toward matches of their own size.
type Queues struct {
	mu      sync.Mutex
	waiting map[events.GameType][]Entry
	members set.Set[string] // sids waiting in any queue
}

// New returns empty queues for both game types.
func New() *Queues {
	return &Queues{
		waiting: map[events.GameType][]Entry{
			events.GameDhihaEi: {},
			events.GameDigu:    {},
		},
		members: set.New[string](),
	}
}

// Join appends a session to a queue and, when enough compatible entries have
// accumulated, pops them in one critical section. The returned entries are
// owned exclusively by this call; the caller synthesizes the room. A session
// already waiting anywhere is first removed, keeping single-queue membership.
func (q *Queues) Join(gt events.GameType, sid, playerName string, target int) (Ack, []Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.removeLocked(sid)

	entry := Entry{
		SID:        sid,
		PlayerName: playerName,
		JoinedAt:   time.Now(),
		GameType:   gt,
		Target:     target,
	}
	q.waiting[gt] = append(q.waiting[gt], entry)
	q.members.Insert(sid)
	q.updateDepthLocked(gt)

	matched := q.drainLocked(gt, target)
	if matched != nil {
		q.updateDepthLocked(gt)
		metrics.MatchesMade.WithLabelValues(string(gt)).Inc()
		return Ack{}, matched
	}

	inQueue, needed := q.countLocked(gt, target)
	return Ack{
		Position:       inQueue,
		PlayersInQueue: inQueue,
		PlayersNeeded:  needed,
	}, nil
}

// Leave removes a session from whichever queue holds it. Best-effort and
// idempotent; the returned entry tells the caller which queue to update.
func (q *Queues) Leave(sid string) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entry, ok := q.removeLocked(sid)
	if ok {
		q.updateDepthLocked(entry.GameType)
	}
	return entry, ok
}

// Contains reports whether a session is waiting in any queue.
func (q *Queues) Contains(sid string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.members.Has(sid)
}

// Waiting returns a snapshot of one queue, oldest first.
func (q *Queues) Waiting(gt events.GameType) []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, len(q.waiting[gt]))
	copy(out, q.waiting[gt])
	return out
}

// Depth reports the number of waiting sessions in one queue.
func (q *Queues) Depth(gt events.GameType) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting[gt])
}

// Needed reports how many more players a given table size is waiting on.
func (q *Queues) Needed(gt events.GameType, target int) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, needed := q.countLocked(gt, target)
	return needed
}

// drainLocked pops the oldest target-compatible entries when enough exist.
func (q *Queues) drainLocked(gt events.GameType, target int) []Entry {
	entries := q.waiting[gt]
	matched := make([]Entry, 0, target)
	for _, e := range entries {
		if e.Target == target {
			matched = append(matched, e)
			if len(matched) == target {
				break
			}
		}
	}
	if len(matched) < target {
		return nil
	}

	taken := set.New[string]()
	for _, e := range matched {
		taken.Insert(e.SID)
		q.members.Delete(e.SID)
	}
	remaining := entries[:0]
	for _, e := range entries {
		if !taken.Has(e.SID) {
			remaining = append(remaining, e)
		}
	}
	q.waiting[gt] = remaining
	return matched
}

func (q *Queues) removeLocked(sid string) (Entry, bool) {
	for gt, entries := range q.waiting {
		for i, e := range entries {
			if e.SID == sid {
				q.waiting[gt] = append(entries[:i], entries[i+1:]...)
				q.members.Delete(sid)
				return e, true
			}
		}
	}
	return Entry{}, false
}

func (q *Queues) countLocked(gt events.GameType, target int) (inQueue, needed int) {
	for _, e := range q.waiting[gt] {
		if e.Target == target {
			inQueue++
		}
	}
	return inQueue, target - inQueue
}

func (q *Queues) updateDepthLocked(gt events.GameType) {
	metrics.QueueDepth.WithLabelValues(string(gt)).Set(float64(len(q.waiting[gt])))
}
