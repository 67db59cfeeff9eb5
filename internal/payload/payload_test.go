package payload

import (
	"bytes"
	"context"
	"testing"

	"github.com/postalsys/nbshare/internal/wire"
)

// TestAssembler_HelloWorldChunks exercises the concrete reassembly scenario:
// chunks at offset 0 ("HELLO"), offset 5 (" WORLD"), and an empty
// LAST_CHUNK at offset 11, which must reassemble to "HELLO WORLD" with
// BytesReceived == 11.
func TestAssembler_HelloWorldChunks(t *testing.T) {
	var progressEvents []Progress
	a := NewAssembler(func(p Progress) { progressEvents = append(progressEvents, p) })

	if err := a.OnHeader(&wire.PayloadHeader{ID: 7, Type: wire.PayloadTypeBytes, TotalSize: 11}); err != nil {
		t.Fatalf("OnHeader() error = %v", err)
	}

	complete, _, err := a.OnChunk(&wire.PayloadChunk{PayloadID: 7, Offset: 0, Body: []byte("HELLO")})
	if err != nil {
		t.Fatalf("OnChunk(0) error = %v", err)
	}
	if complete {
		t.Fatal("payload reported complete before LAST_CHUNK")
	}

	complete, _, err = a.OnChunk(&wire.PayloadChunk{PayloadID: 7, Offset: 5, Body: []byte(" WORLD")})
	if err != nil {
		t.Fatalf("OnChunk(5) error = %v", err)
	}
	if complete {
		t.Fatal("payload reported complete before LAST_CHUNK")
	}

	complete, buffered, err := a.OnChunk(&wire.PayloadChunk{
		PayloadID: 7,
		Offset:    11,
		Flags:     int32(wire.ChunkFlagLastChunk),
	})
	if err != nil {
		t.Fatalf("OnChunk(11, LAST_CHUNK) error = %v", err)
	}
	if !complete {
		t.Fatal("payload should be complete after LAST_CHUNK")
	}
	if string(buffered) != "HELLO WORLD" {
		t.Errorf("buffered = %q, want %q", buffered, "HELLO WORLD")
	}
	if got := a.BytesReceived(7); got != 11 {
		t.Errorf("BytesReceived() = %d, want 11", got)
	}

	if len(progressEvents) != 3 {
		t.Fatalf("len(progressEvents) = %d, want 3", len(progressEvents))
	}
	if !progressEvents[2].Complete || progressEvents[2].BytesReceived != 11 {
		t.Errorf("final progress event = %+v", progressEvents[2])
	}
}

func TestAssembler_OffsetMismatchRejected(t *testing.T) {
	a := NewAssembler(nil)
	if err := a.OnHeader(&wire.PayloadHeader{ID: 1, TotalSize: 10}); err != nil {
		t.Fatalf("OnHeader() error = %v", err)
	}
	if _, _, err := a.OnChunk(&wire.PayloadChunk{PayloadID: 1, Offset: 3, Body: []byte("xyz")}); err == nil {
		t.Error("OnChunk with a non-zero initial offset should be rejected")
	}
}

func TestAssembler_ChunkForUnknownPayload(t *testing.T) {
	a := NewAssembler(nil)
	if _, _, err := a.OnChunk(&wire.PayloadChunk{PayloadID: 99, Offset: 0, Body: []byte("x")}); err == nil {
		t.Error("OnChunk for a payload never opened with a header should be rejected")
	}
}

func TestAssembler_ChunkAfterComplete(t *testing.T) {
	a := NewAssembler(nil)
	_ = a.OnHeader(&wire.PayloadHeader{ID: 1, TotalSize: 0})
	if _, _, err := a.OnChunk(&wire.PayloadChunk{PayloadID: 1, Offset: 0, Flags: int32(wire.ChunkFlagLastChunk)}); err != nil {
		t.Fatalf("OnChunk(LAST_CHUNK) error = %v", err)
	}
	if _, _, err := a.OnChunk(&wire.PayloadChunk{PayloadID: 1, Offset: 0, Body: []byte("late")}); err == nil {
		t.Error("OnChunk after completion should be rejected")
	}
}

func TestAssembler_DuplicateHeaderRejected(t *testing.T) {
	a := NewAssembler(nil)
	_ = a.OnHeader(&wire.PayloadHeader{ID: 1})
	if err := a.OnHeader(&wire.PayloadHeader{ID: 1}); err == nil {
		t.Error("duplicate OnHeader for the same payload id should be rejected")
	}
}

func TestAssembler_RegisteredSinkReceivesBytes(t *testing.T) {
	a := NewAssembler(nil)
	var buf bytes.Buffer
	a.RegisterSink(5, &writerSink{Buffer: &buf})

	_ = a.OnHeader(&wire.PayloadHeader{ID: 5, Type: wire.PayloadTypeFile, TotalSize: 4})
	if _, _, err := a.OnChunk(&wire.PayloadChunk{PayloadID: 5, Offset: 0, Body: []byte("data")}); err != nil {
		t.Fatalf("OnChunk() error = %v", err)
	}
	if _, _, err := a.OnChunk(&wire.PayloadChunk{PayloadID: 5, Offset: 4, Flags: int32(wire.ChunkFlagLastChunk)}); err != nil {
		t.Fatalf("OnChunk(LAST_CHUNK) error = %v", err)
	}
	if buf.String() != "data" {
		t.Errorf("sink contents = %q, want %q", buf.String(), "data")
	}
}

func TestAssembler_AbortClosesIncompletePayloads(t *testing.T) {
	a := NewAssembler(nil)
	var buf bytes.Buffer
	sink := &writerSink{Buffer: &buf}
	a.RegisterSink(1, sink)
	_ = a.OnHeader(&wire.PayloadHeader{ID: 1, TotalSize: 100})
	_, _, _ = a.OnChunk(&wire.PayloadChunk{PayloadID: 1, Offset: 0, Body: []byte("partial")})

	if err := a.Abort(); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}
	if !sink.closedIncomplete {
		t.Error("Abort should close incomplete sinks with complete=false")
	}
}

// writerSink adapts a *bytes.Buffer into a Sink for tests.
type writerSink struct {
	*bytes.Buffer
	closedIncomplete bool
}

func (s *writerSink) Close(complete bool) error {
	if !complete {
		s.closedIncomplete = true
	}
	return nil
}

// fakeFrameSink records every offline frame handed to it, for sender tests.
type fakeFrameSink struct {
	frames []*wire.OfflineFrame
}

func (f *fakeFrameSink) SendOfflineFrame(of *wire.OfflineFrame) error {
	f.frames = append(f.frames, of)
	return nil
}

func TestSender_SendBytes_ReassemblesViaAssembler(t *testing.T) {
	sink := &fakeFrameSink{}
	sender := NewSender(sink, 0)

	payload := []byte("a message longer than one chunk would need to be, but here it's short")
	if err := sender.SendBytes(context.Background(), 42, wire.PayloadTypeBytes, payload); err != nil {
		t.Fatalf("SendBytes() error = %v", err)
	}

	a := NewAssembler(nil)
	var reassembled []byte
	for _, f := range sink.frames {
		pt := f.V1.PayloadTransfer
		switch {
		case pt.Header != nil:
			if err := a.OnHeader(pt.Header); err != nil {
				t.Fatalf("OnHeader() error = %v", err)
			}
		case pt.Chunk != nil:
			_, buffered, err := a.OnChunk(pt.Chunk)
			if err != nil {
				t.Fatalf("OnChunk() error = %v", err)
			}
			if buffered != nil {
				reassembled = buffered
			}
		}
	}

	if string(reassembled) != string(payload) {
		t.Errorf("reassembled = %q, want %q", reassembled, payload)
	}
}

func TestSender_SendBytes_EmptyPayload(t *testing.T) {
	sink := &fakeFrameSink{}
	sender := NewSender(sink, 0)
	if err := sender.SendBytes(context.Background(), 1, wire.PayloadTypeBytes, nil); err != nil {
		t.Fatalf("SendBytes() error = %v", err)
	}
	// Header plus exactly one LAST_CHUNK frame, even for an empty payload.
	if len(sink.frames) != 2 {
		t.Fatalf("len(frames) = %d, want 2", len(sink.frames))
	}
	lastChunk := sink.frames[1].V1.PayloadTransfer.Chunk
	if lastChunk.Flags&int32(wire.ChunkFlagLastChunk) == 0 {
		t.Error("second frame should carry the LAST_CHUNK flag")
	}
}
