package ingest

import (
	"encoding/binary"
	"io"
	"sync"
)

// flvHeader is the 9-byte FLV file signature plus an empty first
// PreviousTagSize0, declaring both an audio and a video tag stream.
var flvHeader = []byte{'F', 'L', 'V', 1, 0x05, 0, 0, 0, 9, 0, 0, 0, 0}

const (
	tagTypeAudio = 8
	tagTypeVideo = 9
)

// flvMuxer wraps a destination writer (the transcoder's stdin fan-in, the
// pass-through recording file, or both via io.MultiWriter) and serializes
// Frames into it as FLV tags. go-rtmp's video/audio message payloads are
// already in FLV tag-body form, so muxing is just prefixing each payload
// with a tag header and trailing PreviousTagSize.
type flvMuxer struct {
	mu      sync.Mutex
	w       io.Writer
	started bool
}

func newFLVMuxer(w io.Writer) *flvMuxer {
	return &flvMuxer{w: w}
}

func (m *flvMuxer) WriteFrame(f Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		if _, err := m.w.Write(flvHeader); err != nil {
			return err
		}
		m.started = true
	}

	tagType := byte(tagTypeVideo)
	if f.Kind == FrameAudio {
		tagType = tagTypeAudio
	}

	header := make([]byte, 11)
	header[0] = tagType
	putUint24(header[1:4], uint32(len(f.Payload)))
	putUint24(header[4:7], f.Timestamp&0xFFFFFF)
	header[7] = byte(f.Timestamp >> 24)
	// StreamID is always 0 for FLV.

	if _, err := m.w.Write(header); err != nil {
		return err
	}
	if _, err := m.w.Write(f.Payload); err != nil {
		return err
	}

	var prevTagSize [4]byte
	binary.BigEndian.PutUint32(prevTagSize[:], uint32(11+len(f.Payload)))
	_, err := m.w.Write(prevTagSize[:])
	return err
}

func putUint24(dst []byte, v uint32) {
	dst[0] = byte(v >> 16)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v)
}
