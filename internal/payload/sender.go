package payload

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/time/rate"

	"github.com/postalsys/nbshare/internal/wire"
)

// ChunkSize is the size of each PayloadChunk body this sender produces.
// 16KiB matches the token-bucket burst size below.
const ChunkSize = 16 * 1024

// FrameSink is the thing a Sender writes offline frames to;
// nearbysocket.Socket satisfies this.
type FrameSink interface {
	SendOfflineFrame(*wire.OfflineFrame) error
}

// Sender streams one payload's bytes out as a PayloadHeader followed by a
// sequence of PayloadChunk frames, optionally throttled by a token-bucket
// rate limiter.
type Sender struct {
	dst            FrameSink
	bytesPerSecond int64
}

// NewSender constructs a Sender. bytesPerSecond <= 0 disables pacing.
func NewSender(dst FrameSink, bytesPerSecond int64) *Sender {
	return &Sender{dst: dst, bytesPerSecond: bytesPerSecond}
}

// Send streams r as payloadID/payloadType, declaring totalSize up front.
// totalSize may be -1 when unknown ahead of time (e.g. a non-seekable
// stream); receivers must not rely on it for anything but progress display.
func (s *Sender) Send(ctx context.Context, payloadID int64, payloadType wire.PayloadType, totalSize int64, r io.Reader) error {
	if err := s.dst.SendOfflineFrame(wire.NewPayloadHeaderOfflineFrame(&wire.PayloadHeader{
		ID:        payloadID,
		Type:      payloadType,
		TotalSize: totalSize,
	})); err != nil {
		return fmt.Errorf("payload: send header: %w", err)
	}

	var limiter *rate.Limiter
	if s.bytesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.bytesPerSecond), ChunkSize)
	}

	buf := make([]byte, ChunkSize)
	var offset int64
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if limiter != nil {
				if err := limiter.WaitN(ctx, n); err != nil {
					return fmt.Errorf("payload: rate limiter: %w", err)
				}
			}
			body := make([]byte, n)
			copy(body, buf[:n])
			if err := s.dst.SendOfflineFrame(wire.NewPayloadChunkOfflineFrame(&wire.PayloadChunk{
				PayloadID: payloadID,
				Offset:    offset,
				Body:      body,
			})); err != nil {
				return fmt.Errorf("payload: send chunk at offset %d: %w", offset, err)
			}
			offset += int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("payload: read source: %w", readErr)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	if err := s.dst.SendOfflineFrame(wire.NewPayloadChunkOfflineFrame(&wire.PayloadChunk{
		PayloadID: payloadID,
		Offset:    offset,
		Flags:     int32(wire.ChunkFlagLastChunk),
	})); err != nil {
		return fmt.Errorf("payload: send last chunk: %w", err)
	}
	return nil
}

// SendBytes is a convenience wrapper around Send for small in-memory
// payloads such as serialized Sharing frames.
func (s *Sender) SendBytes(ctx context.Context, payloadID int64, payloadType wire.PayloadType, data []byte) error {
	return s.Send(ctx, payloadID, payloadType, int64(len(data)), newByteReader(data))
}

type byteReader struct {
	data []byte
	pos  int
}

func newByteReader(data []byte) *byteReader { return &byteReader{data: data} }

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}
