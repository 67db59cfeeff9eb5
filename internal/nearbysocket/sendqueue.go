package nearbysocket

import (
	"fmt"
	"sync"

	"github.com/postalsys/nbshare/internal/wireframe"
)

// sendQueue serializes every outgoing packet through a single FIFO so that
// exactly one packet is ever in flight on the transport at a time, and
// signals readyForNextPacket once each write has fully flushed, matching
// the backpressure invariant the payload pump and keep-alive timer both
// rely on.
type sendQueue struct {
	writer *wireframe.Writer

	mu      sync.Mutex
	closed  bool
	drained chan struct{} // replaced each time a send begins; closed when flushed
}

func newSendQueue(writer *wireframe.Writer) *sendQueue {
	q := &sendQueue{writer: writer, drained: make(chan struct{})}
	close(q.drained) // idle: the "previous" write is trivially drained
	return q
}

// Enqueue writes one packet. "Enqueue" and "flush" happen synchronously
// here: a caller first waits for any write already in flight, from another
// goroutine (the payload pump, the keep-alive timer in Run), to finish, then
// writes its own packet before returning.
func (q *sendQueue) Enqueue(body []byte) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("nearbysocket: send queue closed")
	}
	next := make(chan struct{})
	prevDrained := q.drained
	q.drained = next
	q.mu.Unlock()

	<-prevDrained // wait for any in-flight write this call raced with

	err := q.writer.WritePacket(body)
	close(next)
	if err != nil {
		return fmt.Errorf("nearbysocket: write packet: %w", err)
	}
	return nil
}

// Ready returns a channel closed once the queue has no packet in flight,
// the "ready_for_next_packet" signal producers wait on before refilling.
func (q *sendQueue) Ready() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drained
}

func (q *sendQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
