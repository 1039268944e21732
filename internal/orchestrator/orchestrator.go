// Package orchestrator owns the ActiveStream table: one entry per
// currently-publishing stream key, created on a successful RTMP publish
// and torn down on disconnect, unexpected transcoder failure, or cleanup.
// It is the single place that decides "first publisher wins, later ones
// are turned away" and the single place a Room's CodecPolicy gets
// snapshotted at publish start.
package orchestrator

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"liveclass/internal/config"
	"liveclass/internal/errs"
	"liveclass/internal/room"
	"liveclass/internal/transcoder"

	"github.com/pkg/errors"
)

// supervisor is the narrow slice of transcoder.Supervisor the
// Orchestrator depends on, kept as an interface so tests can substitute
// a fake that never spawns ffmpeg.
type supervisor interface {
	Start(input io.Reader) error
	Stop()
}

// orchestratorMetrics is the narrow slice of internal/platform/metrics.Metrics
// this package records, mirroring room.hubMetrics' pattern of an interface
// rather than a concrete dependency so orchestrator_test.go never needs a
// real Prometheus registry.
type orchestratorMetrics interface {
	IncStreamsStarted()
	IncStreamsEnded()
	IncStreamsFailed()
	SetActiveStreams(n int)
	AddSegmentsCleaned(n int)
	IncCleanupFailures()
}

type noopMetrics struct{}

func (noopMetrics) IncStreamsStarted()   {}
func (noopMetrics) IncStreamsEnded()     {}
func (noopMetrics) IncStreamsFailed()    {}
func (noopMetrics) SetActiveStreams(int) {}
func (noopMetrics) AddSegmentsCleaned(int) {}
func (noopMetrics) IncCleanupFailures()    {}

type supervisorFactory func(cfg *config.Config, streamKey string, codec config.Codec, log *slog.Logger, onFailure transcoder.FailureFunc) supervisor

func defaultSupervisorFactory(cfg *config.Config, streamKey string, codec config.Codec, log *slog.Logger, onFailure transcoder.FailureFunc) supervisor {
	return transcoder.NewSupervisor(cfg, streamKey, codec, log, onFailure)
}

// ActiveStream is one currently-publishing stream key's state.
type ActiveStream struct {
	StreamKey     string
	StartedAt     time.Time
	RecordingPath string
	Policy        room.CodecPolicy

	recorder    *os.File
	supervisors map[string]supervisor
}

// Orchestrator implements ingest.PublishCallbacks and drives the
// transcoder supervisors and cleanup scheduler for every active stream.
type Orchestrator struct {
	cfg      *config.Config
	registry *room.Registry
	log      *slog.Logger
	cleanup  *Scheduler
	metrics  orchestratorMetrics

	onArchive func(*ActiveStream, time.Time, string) // optional: internal/history hook

	newSupervisor supervisorFactory

	mu      sync.Mutex
	streams map[string]*ActiveStream
}

// New returns an Orchestrator with no active streams.
func New(cfg *config.Config, registry *room.Registry, log *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		cfg:           cfg,
		registry:      registry,
		log:           log,
		metrics:       noopMetrics{},
		newSupervisor: defaultSupervisorFactory,
		streams:       make(map[string]*ActiveStream),
	}
	o.cleanup = NewScheduler(cfg, log)
	return o
}

// OnArchive registers a callback invoked after a stream ends, so
// internal/history can persist a session record without this package
// importing a datastore.
func (o *Orchestrator) OnArchive(fn func(*ActiveStream, time.Time, string)) {
	o.onArchive = fn
}

// SetMetrics wires a real metrics.Metrics into the Orchestrator. Left
// unset, every recording call is a no-op.
func (o *Orchestrator) SetMetrics(m orchestratorMetrics) {
	o.metrics = m
}

// HasActive implements room.ActiveStreamChecker, letting the room
// Registry consult ActiveStream ownership without duplicating it.
func (o *Orchestrator) HasActive(streamKey string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.streams[streamKey]
	return ok
}

// OnPublishStart implements ingest.PublishCallbacks. It is the only
// place spec.md's stream-key publish race is resolved: the first
// publisher to reach here for a given key wins, and every later one
// until the first disconnects gets rejected.
func (o *Orchestrator) OnPublishStart(streamKey string) (io.Writer, error) {
	o.mu.Lock()
	if _, exists := o.streams[streamKey]; exists {
		o.mu.Unlock()
		return nil, errs.New(errs.KindDuplicate, "OnPublishStart", "stream key already has an active publisher")
	}
	// Reserve the key immediately, inside the same lock that checked it was
	// free, so two concurrent publish attempts for the same key can never
	// both pass the check above before either one finishes setting up.
	o.streams[streamKey] = &ActiveStream{StreamKey: streamKey}
	o.mu.Unlock()
	release := func() {
		o.mu.Lock()
		delete(o.streams, streamKey)
		o.mu.Unlock()
	}

	o.cleanup.Cancel(streamKey)

	if err := os.MkdirAll(o.cfg.RecordingsDir, 0o755); err != nil {
		release()
		return nil, errs.Wrap(errs.KindFatal, "OnPublishStart", err)
	}
	startedAt := time.Now()
	recordingPath := filepath.Join(o.cfg.RecordingsDir, streamKey+"_"+startedAt.Format("20060102T150405")+".flv")
	recorder, err := os.Create(recordingPath)
	if err != nil {
		release()
		return nil, errs.Wrap(errs.KindFatal, "OnPublishStart", err)
	}

	hub := o.registry.GetOrCreate(streamKey)
	policy := hub.Policy()

	active := &ActiveStream{
		StreamKey:     streamKey,
		StartedAt:     startedAt,
		RecordingPath: recordingPath,
		Policy:        policy,
		recorder:      recorder,
		supervisors:   make(map[string]supervisor),
	}

	writers := []io.Writer{recorder}

	primaryWriter, err := o.startCodec(active, o.cfg.PrimaryCodec)
	if err != nil {
		recorder.Close()
		os.Remove(recordingPath)
		o.mu.Lock()
		delete(o.streams, streamKey)
		o.mu.Unlock()
		return nil, err
	}
	writers = append(writers, primaryWriter)

	if policy.SecondaryCodecEnabled && len(o.cfg.SecondaryCodec.Renditions) > 0 {
		secondaryWriter, err := o.startCodec(active, o.cfg.SecondaryCodec)
		if err != nil {
			o.logf(slog.LevelWarn, "secondary codec failed to start, continuing with primary only", "stream_key", streamKey, "err", err)
		} else {
			writers = append(writers, secondaryWriter)
		}
	}

	if err := writeTopLevelPlaylist(o.cfg, streamKey, policy); err != nil {
		o.logf(slog.LevelWarn, "failed to write top-level playlist", "stream_key", streamKey, "err", err)
	}

	o.mu.Lock()
	o.streams[streamKey] = active
	activeCount := len(o.streams)
	o.mu.Unlock()

	o.metrics.IncStreamsStarted()
	o.metrics.SetActiveStreams(activeCount)
	o.logf(slog.LevelInfo, "stream publish accepted", "stream_key", streamKey)
	return io.MultiWriter(writers...), nil
}

// startCodec spins up one codec's Supervisor and returns the pipe
// writer the caller should fold into the connection-wide fanout.
func (o *Orchestrator) startCodec(active *ActiveStream, codec config.Codec) (io.Writer, error) {
	pr, pw := io.Pipe()
	sup := o.newSupervisor(o.cfg, active.StreamKey, codec, o.log, o.onTranscoderFailure)
	if err := sup.Start(pr); err != nil {
		pw.Close()
		return nil, errs.Wrap(errs.KindFatal, "startCodec", err)
	}
	active.supervisors[codec.Name] = sup
	return pw, nil
}

// OnPublishEnd implements ingest.PublishCallbacks.
func (o *Orchestrator) OnPublishEnd(streamKey string) {
	if o.endStream(streamKey, "publisher disconnected") {
		o.metrics.IncStreamsEnded()
	}
}

// onTranscoderFailure is passed to every Supervisor as its FailureFunc.
// A failed rendition ends the whole ActiveStream: spec.md section 4.B
// says the supervisor never auto-restarts, and with one rendition's
// process gone the ladder it belongs to can no longer serve players.
func (o *Orchestrator) onTranscoderFailure(streamKey, codecName, renditionName string, err error) {
	o.logf(slog.LevelError, "transcoder failure ending stream", "stream_key", streamKey, "codec", codecName, "rendition", renditionName, "err", err)
	if hub, ok := o.registry.Get(streamKey); ok {
		hub.PublishSystemEvent(room.Event{
			Type:   room.EvtStreamFailed,
			Target: room.TargetRoom,
			Reason: errors.Wrapf(err, "%s/%s", codecName, renditionName).Error(),
		})
	}
	if o.endStream(streamKey, "transcoder failure") {
		o.metrics.IncStreamsFailed()
	}
}

// endStream tears down streamKey's ActiveStream, if one exists, and
// reports whether it did. A false return means this was a duplicate
// donePublish/failure notice for a key that is already gone.
func (o *Orchestrator) endStream(streamKey, reason string) bool {
	o.mu.Lock()
	active, ok := o.streams[streamKey]
	if ok {
		delete(o.streams, streamKey)
	}
	activeCount := len(o.streams)
	o.mu.Unlock()
	if !ok {
		return false // KindDuplicate: donePublish with no matching active stream
	}
	o.metrics.SetActiveStreams(activeCount)

	for name, sup := range active.supervisors {
		o.logf(slog.LevelDebug, "stopping supervisor", "stream_key", streamKey, "codec", name)
		sup.Stop()
	}
	active.recorder.Close()

	endedAt := time.Now()
	if o.onArchive != nil {
		o.onArchive(active, endedAt, reason)
	}

	o.logf(slog.LevelInfo, "stream ended", "stream_key", streamKey, "reason", reason, "duration", endedAt.Sub(active.StartedAt).String())

	o.cleanup.Schedule(streamKey, o.cfg.CleanupGrace(), func() {
		files := 0
		filepath.WalkDir(filepath.Join(o.cfg.StreamsDir, streamKey), func(_ string, d fs.DirEntry, err error) error {
			if err == nil && !d.IsDir() {
				files++
			}
			return nil
		})
		if err := deleteStreamFiles(o.cfg, streamKey); err != nil {
			o.metrics.IncCleanupFailures()
			o.logf(slog.LevelWarn, "cleanup failed", "stream_key", streamKey, "err", err)
		} else {
			o.metrics.AddSegmentsCleaned(files)
		}
		o.registry.ReapOne(streamKey)
	})
	return true
}

// StreamSummary is a point-in-time view of one ActiveStream, for the
// operational status endpoint. It deliberately exposes nothing about the
// underlying supervisor or recorder.
type StreamSummary struct {
	StreamKey             string
	StartedAt             time.Time
	SecondaryCodecEnabled bool
	Codecs                []string
}

// Snapshot returns a StreamSummary for every currently active stream.
func (o *Orchestrator) Snapshot() []StreamSummary {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]StreamSummary, 0, len(o.streams))
	for _, active := range o.streams {
		if active.supervisors == nil {
			continue // reserved placeholder mid-setup; not yet a real entry
		}
		codecs := make([]string, 0, len(active.supervisors))
		for name := range active.supervisors {
			codecs = append(codecs, name)
		}
		out = append(out, StreamSummary{
			StreamKey:             active.StreamKey,
			StartedAt:             active.StartedAt,
			SecondaryCodecEnabled: active.Policy.SecondaryCodecEnabled,
			Codecs:                codecs,
		})
	}
	return out
}

func (o *Orchestrator) logf(level slog.Level, msg string, args ...any) {
	if o.log == nil {
		return
	}
	o.log.Log(context.Background(), level, msg, args...)
}
