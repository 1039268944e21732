// Package ingest adapts github.com/yutopp/go-rtmp's connection callbacks
// into the two typed publish events (start and end) the Stream Lifecycle
// Orchestrator reacts to; there is no separate pre-publish event. An RTMP connection's state is a grab-bag of optional
// callbacks (OnPublish, OnVideo, OnAudio, OnClose fired in whatever order
// the client behaves); this package normalizes that into explicit,
// named variants instead of letting callers branch on a dynamic object's
// nil fields.
package ingest

import "io"

// FrameKind discriminates an RTMP media message.
type FrameKind int

const (
	FrameVideo FrameKind = iota
	FrameAudio
)

// Frame is one already-demuxed RTMP media message, passed through
// verbatim: go-rtmp delivers video and audio payloads in exactly the
// byte layout an FLV tag body expects, so no transcoding happens here.
type Frame struct {
	Kind      FrameKind
	Timestamp uint32
	Payload   []byte
}

// PublishCallbacks is how the orchestrator plugs itself into the RTMP
// adapter without this package knowing anything about ActiveStream,
// rooms, or codec policy.
type PublishCallbacks struct {
	// OnPublishStart is invoked once per publishing connection, after the
	// client has sent its publish command. Returning a non-nil error
	// rejects the publish attempt — this is how "first publisher for a
	// stream key wins, every later one is turned away" is enforced, by
	// having the orchestrator's implementation return an error for a key
	// that's already active. On success it returns the io.Writer that
	// every subsequent Frame for this connection gets muxed into.
	OnPublishStart func(streamKey string) (io.Writer, error)

	// OnPublishEnd is invoked exactly once per accepted publish, when the
	// connection closes or errors. It is never called for a connection
	// whose OnPublishStart was rejected.
	OnPublishEnd func(streamKey string)
}
