// Package payload reassembles chunked payload transfers carried by the
// NearbySocket connection into complete byte streams or files, mirroring
// the progress/partial-file bookkeeping the file-transfer stack in this
// repo's lineage applies to its own uploads and downloads.
package payload

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/postalsys/nbshare/internal/wire"
)

// ErrUnknownPayload is returned when a chunk or completion event arrives for
// a payload id that was never opened with a header.
var ErrUnknownPayload = errors.New("payload: unknown payload id")

// ErrOffsetMismatch is returned when a chunk's offset does not match the
// number of bytes already written for that payload, per the strict
// in-order delivery invariant NearbySocket guarantees at the transport
// layer.
var ErrOffsetMismatch = errors.New("payload: chunk offset does not match bytes received so far")

// ErrAlreadyComplete is returned when a chunk arrives for a payload already
// marked complete by an earlier LAST_CHUNK.
var ErrAlreadyComplete = errors.New("payload: chunk received after payload was already completed")

// Sink receives the bytes of one payload as they arrive. Callers register a
// Sink before the payload's header reaches OnHeader to control where payload bytes
// land (an in-memory buffer for control frames, an on-disk file for
// attachments).
type Sink interface {
	io.Writer
	// Close is called once, when the payload's LAST_CHUNK chunk is
	// processed successfully, or when the Assembler is torn down with
	// the payload still incomplete (in which case complete is false).
	Close(complete bool) error
}

// Progress describes a payload's reassembly progress, delivered to the
// onProgress callback given to NewAssembler after every chunk.
type Progress struct {
	PayloadID       int64
	BytesReceived   int64
	TotalSize       int64
	Complete        bool
}

// bufferSink is the default Sink used when the caller does not pre-register
// one: it accumulates the payload in memory, suitable for small control
// frames such as Introduction/PairedKeyEncryption/PairedKeyResult.
type bufferSink struct {
	buf []byte
}

func (s *bufferSink) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	return len(p), nil
}

func (s *bufferSink) Close(complete bool) error { return nil }

// pending tracks one in-flight payload.
type pending struct {
	header   *wire.PayloadHeader
	sink     Sink
	received int64
	complete bool
}

// Assembler reassembles PayloadTransferFrame headers and chunks into
// complete payloads, keyed by payload id. Its methods take an internal
// mutex, so it may be called from several goroutines; the session
// controller drives it from the socket's Run loop.
type Assembler struct {
	mu       sync.Mutex
	pending  map[int64]*pending
	sinks    map[int64]Sink // pre-registered sinks, consumed on OnHeader
	onProgress func(Progress)
}

// NewAssembler constructs an empty Assembler. onProgress may be nil.
func NewAssembler(onProgress func(Progress)) *Assembler {
	return &Assembler{
		pending:    make(map[int64]*pending),
		sinks:      make(map[int64]Sink),
		onProgress: onProgress,
	}
}

// RegisterSink pre-registers the Sink a payload id's bytes should be
// written to, overriding the default in-memory buffer. It must be called
// before the corresponding PayloadHeader arrives (typically in reaction to
// an IntroductionFrame naming the payload id as a file attachment).
func (a *Assembler) RegisterSink(payloadID int64, sink Sink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sinks[payloadID] = sink
}

// OnHeader opens a new payload for reassembly.
func (a *Assembler) OnHeader(h *wire.PayloadHeader) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.pending[h.ID]; exists {
		return fmt.Errorf("payload: duplicate header for payload id %d", h.ID)
	}

	sink, ok := a.sinks[h.ID]
	if ok {
		delete(a.sinks, h.ID)
	} else {
		sink = &bufferSink{}
	}

	a.pending[h.ID] = &pending{header: h, sink: sink}
	return nil
}

// OnChunk applies one data chunk to its payload, validating that its offset
// matches the bytes already received (chunks must arrive strictly in
// order), and returns the completed payload's buffered bytes when the
// Sink is the default in-memory one and the chunk was the LAST_CHUNK.
// Callers using a file-backed Sink should ignore the returned bytes.
func (a *Assembler) OnChunk(c *wire.PayloadChunk) (complete bool, buffered []byte, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.pending[c.PayloadID]
	if !ok {
		return false, nil, ErrUnknownPayload
	}
	if p.complete {
		return false, nil, ErrAlreadyComplete
	}
	if c.Offset != p.received {
		return false, nil, fmt.Errorf("%w: payload %d got offset %d, expected %d",
			ErrOffsetMismatch, c.PayloadID, c.Offset, p.received)
	}

	if len(c.Body) > 0 {
		if _, werr := p.sink.Write(c.Body); werr != nil {
			return false, nil, fmt.Errorf("payload: write to sink: %w", werr)
		}
		p.received += int64(len(c.Body))
	}

	last := c.Flags&int32(wire.ChunkFlagLastChunk) != 0
	if last {
		p.complete = true
		if cerr := p.sink.Close(true); cerr != nil {
			return false, nil, fmt.Errorf("payload: close sink: %w", cerr)
		}
	}

	if a.onProgress != nil {
		a.onProgress(Progress{
			PayloadID:     c.PayloadID,
			BytesReceived: p.received,
			TotalSize:     p.header.TotalSize,
			Complete:      last,
		})
	}

	if last {
		if buf, ok := p.sink.(*bufferSink); ok {
			return true, buf.buf, nil
		}
		return true, nil, nil
	}
	return false, nil, nil
}

// BytesReceived reports how many bytes have landed for a payload, or -1 if
// the payload id is unknown.
func (a *Assembler) BytesReceived(payloadID int64) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pending[payloadID]
	if !ok {
		return -1
	}
	return p.received
}

// Abort closes every still-incomplete payload's sink with complete=false,
// for use when a connection fails mid-transfer. Errors from individual
// sinks are collected but do not stop the sweep.
func (a *Assembler) Abort() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	for id, p := range a.pending {
		if p.complete {
			continue
		}
		if err := p.sink.Close(false); err != nil {
			errs = append(errs, fmt.Errorf("payload %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
