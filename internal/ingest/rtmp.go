package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/pkg/errors"
	"github.com/yutopp/go-rtmp"
	"github.com/yutopp/go-rtmp/message"
)

// Server is the RTMP publish endpoint. One Server handles every
// publishing connection for the process; which stream key a connection
// is for is resolved per-connection from the publish command, the way
// the teacher's RTMPServer/RTMPServerHandler pair does it.
type Server struct {
	port      int
	callbacks PublishCallbacks
	log       *slog.Logger

	server *rtmp.Server
}

// NewServer returns an RTMP Server bound to port, wired to callbacks.
func NewServer(port int, callbacks PublishCallbacks, log *slog.Logger) *Server {
	return &Server{port: port, callbacks: callbacks, log: log}
}

// ListenAndServe blocks, accepting publishing connections until the
// listener errs (including on a deliberate Close from Shutdown).
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return errors.Wrapf(err, "listen on rtmp port %d", s.port)
	}

	cfg := &rtmp.ServerConfig{
		OnConnect: func(conn net.Conn) (io.ReadWriteCloser, *rtmp.ConnConfig) {
			handler := &connHandler{
				callbacks: s.callbacks,
				log:       s.log,
				conn:      conn,
			}
			return conn, &rtmp.ConnConfig{Handler: handler}
		},
	}
	s.server = rtmp.NewServer(cfg)

	s.logf(slog.LevelInfo, "rtmp server listening", "addr", listener.Addr().String())
	return s.server.Serve(listener)
}

// Shutdown stops accepting new RTMP connections. Connections already
// publishing are left to the normal OnClose path.
func (s *Server) Shutdown() {
	if s.server != nil {
		s.server.Close()
	}
}

func (s *Server) logf(level slog.Level, msg string, args ...any) {
	if s.log == nil {
		return
	}
	s.log.Log(context.Background(), level, msg, args...)
}

// connHandler adapts one RTMP connection's lifecycle callbacks into
// Frame/PublishCallbacks calls. It holds no orchestration logic itself:
// every decision (accept or reject a stream key, where frames get
// written) is delegated to the callbacks it was constructed with.
type connHandler struct {
	rtmp.DefaultHandler

	callbacks PublishCallbacks
	log       *slog.Logger
	conn      net.Conn

	streamKey string
	mux       *flvMuxer
}

func (h *connHandler) OnPublish(_ *rtmp.StreamContext, _ uint32, cmd *message.NetStreamPublish) error {
	streamKey := cmd.PublishingName
	if streamKey == "" {
		return errors.New("rtmp: publishing name is required")
	}

	if h.callbacks.OnPublishStart == nil {
		return errors.New("rtmp: no publish handler configured")
	}

	w, err := h.callbacks.OnPublishStart(streamKey)
	if err != nil {
		// Covers spec.md's "second publisher for an already-active key is
		// ignored" rule: the orchestrator's callback returns an error for
		// a key that's already active, and that rejection surfaces here
		// as a rejected publish rather than a silently accepted one.
		h.logf(slog.LevelInfo, "rejected publish", "stream_key", streamKey, "err", err)
		return err
	}

	h.streamKey = streamKey
	h.mux = newFLVMuxer(w)
	h.logf(slog.LevelInfo, "publish accepted", "stream_key", streamKey)
	return nil
}

func (h *connHandler) OnVideo(timestamp uint32, reader io.Reader) error {
	return h.writeFrame(FrameVideo, timestamp, reader)
}

func (h *connHandler) OnAudio(timestamp uint32, reader io.Reader) error {
	return h.writeFrame(FrameAudio, timestamp, reader)
}

func (h *connHandler) writeFrame(kind FrameKind, timestamp uint32, reader io.Reader) error {
	if h.mux == nil {
		return nil // publish not yet accepted, or was rejected
	}
	payload, err := io.ReadAll(reader)
	if err != nil {
		return errors.Wrap(err, "read rtmp media payload")
	}
	return h.mux.WriteFrame(Frame{Kind: kind, Timestamp: timestamp, Payload: payload})
}

func (h *connHandler) OnClose() {
	if h.streamKey == "" {
		return // a connection that never successfully published
	}
	h.logf(slog.LevelInfo, "publisher disconnected", "stream_key", h.streamKey)
	if h.callbacks.OnPublishEnd != nil {
		h.callbacks.OnPublishEnd(h.streamKey)
	}
}

func (h *connHandler) logf(level slog.Level, msg string, args ...any) {
	if h.log == nil {
		return
	}
	h.log.Log(context.Background(), level, msg, args...)
}
