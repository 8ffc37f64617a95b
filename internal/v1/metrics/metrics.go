// Package metrics declares the coordinator's Prometheus collectors in one
// place so the transport, dispatcher, and matchmaker share a single registry
// view without depending on each other.
//
// Naming convention: namespace_subsystem_name
// - namespace: thaasbai (application-level grouping)
// - subsystem: websocket, room, queue (feature-level grouping)
// - name: specific metric (connections_active, events_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, queue depth)
// - Counter: Cumulative events (frames relayed, rejections)
// - Histogram: Latency distributions (handler time)
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks the current number of connected sessions (Gauge - current state)
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "thaasbai",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket sessions",
	})

	// ActiveRooms tracks open rooms per game type (GaugeVec - current state)
	ActiveRooms = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "thaasbai",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of open rooms",
	}, []string{"game_type"})

	// RoomOccupancy tracks occupied seats per room (GaugeVec with room_code label)
	RoomOccupancy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "thaasbai",
		Subsystem: "room",
		Name:      "players_count",
		Help:      "Number of seated players in each room",
	}, []string{"room_code"})

	// WebsocketEvents tracks the total number of inbound events processed (CounterVec - cumulative)
	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thaasbai",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total WebSocket events processed",
	}, []string{"event", "status"})

	// HandlerDuration tracks time spent handling inbound events (HistogramVec - latency distribution)
	HandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "thaasbai",
		Subsystem: "websocket",
		Name:      "handler_seconds",
		Help:      "Time spent handling inbound events",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"event"})

	// AdmissionRejections tracks connections refused before a session was admitted (CounterVec - cumulative)
	AdmissionRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thaasbai",
		Subsystem: "websocket",
		Name:      "rejections_total",
		Help:      "Connections refused at admission",
	}, []string{"reason"})

	// BroadcastFrames counts frames fanned out to room members (Counter - cumulative)
	BroadcastFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "thaasbai",
		Subsystem: "websocket",
		Name:      "broadcast_frames_total",
		Help:      "Frames written to room members by broadcasts",
	})

	// DroppedFrames counts frames dropped because a client's send buffer was full (Counter - cumulative)
	DroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "thaasbai",
		Subsystem: "websocket",
		Name:      "dropped_frames_total",
		Help:      "Frames dropped due to a full client send buffer",
	})

	// QueueDepth tracks waiting players per matchmaking queue (GaugeVec - current state)
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "thaasbai",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Players currently waiting in each matchmaking queue",
	}, []string{"game_type"})

	// MatchesMade counts matches formed from the queues (CounterVec - cumulative)
	MatchesMade = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thaasbai",
		Subsystem: "queue",
		Name:      "matches_total",
		Help:      "Total matches formed from the queues",
	}, []string{"game_type"})
)

// IncConnection records a session attach.
func IncConnection() {
	ActiveConnections.Inc()
}

// DecConnection records a session detach.
func DecConnection() {
	ActiveConnections.Dec()
}
