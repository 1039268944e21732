// Package metrics holds the Prometheus instrumentation for the origin and
// the standalone operational HTTP server that exposes it, separate from the
// player-facing fiber surface.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters and gauges recorded across the orchestrator
// and room hub.
type Metrics struct {
	registry *prometheus.Registry

	activeStreams     prometheus.Gauge
	streamsStarted    prometheus.Counter
	streamsEnded      prometheus.Counter
	streamsFailed     prometheus.Counter
	segmentsCleaned   prometheus.Counter
	cleanupFailures   prometheus.Counter
	activeRooms       prometheus.Gauge
	activeConnections prometheus.Gauge
	chatMessages      prometheus.Counter
	pollsCreated      prometheus.Counter
	pollVotes         prometheus.Counter
	connectionsDropped prometheus.Counter
}

// New creates and registers the Prometheus metrics for the origin.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "liveclass_active_streams",
			Help: "Number of stream keys currently publishing.",
		}),
		streamsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "liveclass_streams_started_total",
			Help: "Total number of postPublish events accepted.",
		}),
		streamsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "liveclass_streams_ended_total",
			Help: "Total number of donePublish events processed.",
		}),
		streamsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "liveclass_streams_failed_total",
			Help: "Total number of streams marked failed after an unexpected transcoder exit.",
		}),
		segmentsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "liveclass_segments_cleaned_total",
			Help: "Total number of HLS files deleted by the cleanup scheduler.",
		}),
		cleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "liveclass_cleanup_failures_total",
			Help: "Total number of cleanup runs that failed to remove a stream's output directory (one per run, not per file).",
		}),
		activeRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "liveclass_active_rooms",
			Help: "Number of rooms currently held in the registry.",
		}),
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "liveclass_active_connections",
			Help: "Number of event-channel connections currently joined to a room, across all rooms.",
		}),
		chatMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "liveclass_chat_messages_total",
			Help: "Total number of chat messages appended across all rooms.",
		}),
		pollsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "liveclass_polls_created_total",
			Help: "Total number of polls created across all rooms.",
		}),
		pollVotes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "liveclass_poll_votes_total",
			Help: "Total number of accepted poll votes.",
		}),
		connectionsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "liveclass_connections_dropped_total",
			Help: "Total number of connections dropped for exceeding their send queue bound.",
		}),
	}

	registry.MustRegister(
		m.activeStreams,
		m.streamsStarted,
		m.streamsEnded,
		m.streamsFailed,
		m.segmentsCleaned,
		m.cleanupFailures,
		m.activeRooms,
		m.activeConnections,
		m.chatMessages,
		m.pollsCreated,
		m.pollVotes,
		m.connectionsDropped,
	)

	return m
}

func (m *Metrics) IncStreamsStarted()          { m.streamsStarted.Inc() }
func (m *Metrics) IncStreamsEnded()            { m.streamsEnded.Inc() }
func (m *Metrics) IncStreamsFailed()           { m.streamsFailed.Inc() }
func (m *Metrics) AddSegmentsCleaned(n int)    { m.segmentsCleaned.Add(float64(n)) }
func (m *Metrics) IncCleanupFailures()         { m.cleanupFailures.Inc() }
func (m *Metrics) SetActiveStreams(n int)      { m.activeStreams.Set(float64(n)) }
func (m *Metrics) SetActiveRooms(n int)        { m.activeRooms.Set(float64(n)) }
func (m *Metrics) SetActiveConnections(n int)  { m.activeConnections.Set(float64(n)) }
func (m *Metrics) IncChatMessages()            { m.chatMessages.Inc() }
func (m *Metrics) IncPollsCreated()            { m.pollsCreated.Inc() }
func (m *Metrics) IncPollVotes()               { m.pollVotes.Inc() }
func (m *Metrics) IncConnectionsDropped()      { m.connectionsDropped.Inc() }

// Handler returns an http.Handler serving the Prometheus exposition format.
// updateGauges, if non-nil, is invoked before each scrape to refresh gauges
// whose value is cheapest to compute on demand.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
