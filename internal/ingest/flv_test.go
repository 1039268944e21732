package ingest

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestFLVMuxerWritesHeaderOnceThenTags(t *testing.T) {
	var buf bytes.Buffer
	mux := newFLVMuxer(&buf)

	if err := mux.WriteFrame(Frame{Kind: FrameVideo, Timestamp: 0, Payload: []byte{0xAA, 0xBB}}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if err := mux.WriteFrame(Frame{Kind: FrameAudio, Timestamp: 40, Payload: []byte{0xCC}}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	out := buf.Bytes()
	if !bytes.HasPrefix(out, flvHeader) {
		t.Fatalf("expected output to start with the FLV header")
	}

	rest := out[len(flvHeader):]
	if rest[0] != tagTypeVideo {
		t.Fatalf("expected first tag type video, got %d", rest[0])
	}
	dataSize := uint32(rest[1])<<16 | uint32(rest[2])<<8 | uint32(rest[3])
	if dataSize != 2 {
		t.Fatalf("expected data size 2, got %d", dataSize)
	}

	videoTagLen := 11 + 2 + 4 // header + payload + prev-tag-size
	prevSize := binary.BigEndian.Uint32(rest[11+2 : 11+2+4])
	if prevSize != 13 {
		t.Fatalf("expected previous tag size 13, got %d", prevSize)
	}

	audioTag := rest[videoTagLen:]
	if audioTag[0] != tagTypeAudio {
		t.Fatalf("expected second tag type audio, got %d", audioTag[0])
	}
}

func TestFLVMuxerHeaderWrittenOnlyOnce(t *testing.T) {
	var buf bytes.Buffer
	mux := newFLVMuxer(&buf)

	mux.WriteFrame(Frame{Kind: FrameVideo, Payload: []byte{1}})
	mux.WriteFrame(Frame{Kind: FrameVideo, Payload: []byte{2}})

	if n := bytes.Count(buf.Bytes(), flvHeader); n != 1 {
		t.Fatalf("expected FLV header written exactly once, found %d", n)
	}
}
