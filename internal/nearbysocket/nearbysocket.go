// Package nearbysocket implements the NearbySocket session state machine:
// the offline ConnectionRequest/ConnectionResponse exchange, the UKEY2
// authenticated key exchange, and the AES-256-CBC+HMAC-SHA256 secure
// message envelope that every PayloadTransfer, KeepAlive and Disconnection
// frame travels inside once the connection is established.
package nearbysocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/postalsys/nbshare/internal/wire"
	"github.com/postalsys/nbshare/internal/wireframe"
)

// State is one step of the NearbySocket handshake/session lifecycle.
type State int

const (
	StateConnectingToPeer State = iota
	StateWaitingForConnectionRequest
	StateWaitingForUkey2ClientInit
	StateWaitingForUkey2ServerInit
	StateWaitingForUkey2ClientFinish
	StateWaitingForConnectionResponse
	StateReady
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateConnectingToPeer:
		return "ConnectingToPeer"
	case StateWaitingForConnectionRequest:
		return "WaitingForConnectionRequest"
	case StateWaitingForUkey2ClientInit:
		return "WaitingForUkey2ClientInit"
	case StateWaitingForUkey2ServerInit:
		return "WaitingForUkey2ServerInit"
	case StateWaitingForUkey2ClientFinish:
		return "WaitingForUkey2ClientFinish"
	case StateWaitingForConnectionResponse:
		return "WaitingForConnectionResponse"
	case StateReady:
		return "Ready"
	case StateClosed:
		return "Closed"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// ErrProtocol reports a fatal, unrecoverable protocol violation: an
// out-of-sequence or unexpected frame type for the current state.
var ErrProtocol = errors.New("nearbysocket: protocol error")

// KeepAliveInterval is the cadence of the Ready-state keep-alive timer.
const KeepAliveInterval = 10 * time.Second

// nextProtocol is the only cipher suite this implementation offers or accepts.
const nextProtocol = "AES_256_CBC-HMAC_SHA256"

// LocalEndpoint describes this side's advertised identity, passed to NewSocket.
type LocalEndpoint struct {
	ID           string
	Name         string
	EndpointInfo []byte
}

// PeerEndpoint describes the remote side's identity, populated once the
// ConnectionRequest has been exchanged.
type PeerEndpoint struct {
	ID           string
	Name         string
	EndpointInfo []byte
}

// Socket drives one NearbySocket connection's handshake and, once Ready,
// its secure-phase traffic. It is driven by a single goroutine calling Run;
// callers interact with it through Send* methods and the callback fields,
// mirroring a single-threaded cooperative event loop.
type Socket struct {
	conn   io.ReadWriteCloser
	reader *wireframe.Reader
	queue  *sendQueue

	isClient bool // true: we dialed and are the UKEY2 client/initiator

	mu    sync.Mutex
	state State

	sendMu sync.Mutex // holds Seal and Enqueue together so sequence numbers reach the wire in order

	local LocalEndpoint
	peer  PeerEndpoint

	keys       *KeySchedule
	secure     *secureChannel
	authString []byte

	keepAliveTimer *time.Timer

	// OnPayloadTransfer is invoked from Run for every secure-phase
	// PayloadTransferFrame received once the socket is Ready.
	OnPayloadTransfer func(*wire.PayloadTransferFrame)

	// OnConnectionResponse is invoked for a secure-phase ConnectionResponse
	// frame: the session controller's own accept/reject exchange, distinct
	// from the plaintext one exchanged to close out the handshake.
	OnConnectionResponse func(*wire.ConnectionResponseFrame)

	// OnDisconnection is invoked when a Disconnection frame is received.
	OnDisconnection func(*wire.DisconnectionFrame)
}

// NewSocket wraps conn (already connected) for a handshake as either the
// dialer (isClient=true) or the listener-side acceptor (isClient=false).
func NewSocket(conn io.ReadWriteCloser, isClient bool, local LocalEndpoint) *Socket {
	state := StateConnectingToPeer
	if !isClient {
		state = StateWaitingForConnectionRequest
	}
	return &Socket{
		conn:     conn,
		reader:   wireframe.NewReader(conn),
		queue:    newSendQueue(wireframe.NewWriter(conn)),
		isClient: isClient,
		state:    state,
		local:    local,
	}
}

// State reports the socket's current lifecycle state.
func (s *Socket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Socket) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Peer returns the identity learned from the peer's ConnectionRequest.
func (s *Socket) Peer() PeerEndpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// AuthString returns the 32-byte auth string derived during the
// handshake, once it has completed. Callers use it to derive a
// human-verifiable PIN.
func (s *Socket) AuthString() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authString
}

// Handshake drives the offline and UKEY2 phases to completion, leaving the
// socket in StateReady (or StateError on failure).
func (s *Socket) Handshake(ctx context.Context) error {
	var err error
	if s.isClient {
		err = s.dialerHandshake(ctx)
	} else {
		err = s.listenerHandshake(ctx)
	}
	if err != nil {
		s.setState(StateError)
		return err
	}
	s.setState(StateReady)
	s.armKeepAlive()
	return nil
}

// readPacket reads and returns the next raw framed packet, respecting ctx
// cancellation.
func (s *Socket) readPacket(ctx context.Context) ([]byte, error) {
	type result struct {
		body []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		body, err := s.reader.ReadPacket()
		ch <- result{body, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.body, r.err
	}
}

func (s *Socket) readOfflineFrame(ctx context.Context) (*wire.OfflineFrame, error) {
	body, err := s.readPacket(ctx)
	if err != nil {
		return nil, fmt.Errorf("nearbysocket: read offline frame: %w", err)
	}
	f, err := wire.UnmarshalOfflineFrame(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return f, nil
}

func (s *Socket) readUkey2Message(ctx context.Context) (*wire.Ukey2Message, []byte, error) {
	body, err := s.readPacket(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("nearbysocket: read ukey2 message: %w", err)
	}
	msg, err := wire.UnmarshalUkey2Message(body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return msg, body, nil
}

func (s *Socket) sendOfflineFrame(f *wire.OfflineFrame) error {
	return s.queue.Enqueue(f.Marshal())
}

func (s *Socket) sendUkey2(typ wire.Ukey2MessageType, data []byte) error {
	msg := wire.NewUkey2Message(typ, data)
	return s.queue.Enqueue(msg.Marshal())
}

// SendOfflineFrame implements payload.FrameSink by routing through the
// secure channel once the socket is Ready. It is not valid before then.
func (s *Socket) SendOfflineFrame(f *wire.OfflineFrame) error {
	s.mu.Lock()
	secure := s.secure
	state := s.state
	s.mu.Unlock()
	if state != StateReady || secure == nil {
		return fmt.Errorf("nearbysocket: cannot send in state %s", state)
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	sealed, err := secure.Seal(f.Marshal())
	if err != nil {
		return err
	}
	return s.queue.Enqueue(sealed)
}

// armKeepAlive (re)starts the 10s keep-alive timer. Run's select loop
// observes its firing through keepAliveTimerChan.
func (s *Socket) armKeepAlive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keepAliveTimer != nil {
		s.keepAliveTimer.Stop()
	}
	s.keepAliveTimer = time.NewTimer(KeepAliveInterval)
}

// packetOrErr is one result of the background reader goroutine Run starts.
type packetOrErr struct {
	body []byte
	err  error
}

// Run reads and dispatches secure-phase frames until ctx is cancelled or the
// connection fails. It must only be called after Handshake has succeeded.
// A single background goroutine owns all reads from the underlying Reader
// for Run's lifetime, so the keep-alive timer can be serviced without ever
// racing two concurrent ReadPacket calls against each other.
func (s *Socket) Run(ctx context.Context) error {
	if s.State() != StateReady {
		return fmt.Errorf("nearbysocket: Run called before handshake completed")
	}

	packets := make(chan packetOrErr, 1)
	go func() {
		for {
			body, err := s.reader.ReadPacket()
			packets <- packetOrErr{body, err}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.keepAliveTimerChan():
			if err := s.sendKeepAlive(false); err != nil {
				return err
			}
			s.armKeepAlive()

		case r := <-packets:
			if r.err != nil {
				return fmt.Errorf("nearbysocket: read packet: %w", r.err)
			}
			inner, err := s.secure.Open(r.body)
			if err != nil {
				return fmt.Errorf("nearbysocket: secure channel: %w", err)
			}
			frame, err := wire.UnmarshalOfflineFrame(inner)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrProtocol, err)
			}
			if err := s.dispatchSecureFrame(frame); err != nil {
				return err
			}
		}
	}
}

func (s *Socket) keepAliveTimerChan() <-chan time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keepAliveTimer == nil {
		return nil
	}
	return s.keepAliveTimer.C
}

func (s *Socket) sendKeepAlive(ack bool) error {
	return s.SendOfflineFrame(wire.NewKeepAliveOfflineFrame(ack))
}

func (s *Socket) dispatchSecureFrame(f *wire.OfflineFrame) error {
	v1 := f.V1
	if v1 == nil {
		return fmt.Errorf("%w: secure offline frame missing v1", ErrProtocol)
	}
	switch v1.Type {
	case wire.FramePayloadTransfer:
		if v1.PayloadTransfer == nil {
			return fmt.Errorf("%w: payload transfer frame missing body", ErrProtocol)
		}
		if s.OnPayloadTransfer != nil {
			s.OnPayloadTransfer(v1.PayloadTransfer)
		}
	case wire.FrameConnectionResp:
		if v1.ConnectionResp == nil {
			return fmt.Errorf("%w: connection response frame missing body", ErrProtocol)
		}
		if s.OnConnectionResponse != nil {
			s.OnConnectionResponse(v1.ConnectionResp)
		}
	case wire.FrameKeepAlive:
		if v1.KeepAlive == nil {
			return fmt.Errorf("%w: keep alive frame missing body", ErrProtocol)
		}
		if !v1.KeepAlive.Ack {
			return s.sendKeepAlive(true)
		}
	case wire.FrameDisconnection:
		if s.OnDisconnection != nil {
			s.OnDisconnection(v1.Disconnection)
		}
		return io.EOF
	default:
		return fmt.Errorf("%w: unexpected secure-phase frame type %v", ErrProtocol, v1.Type)
	}
	return nil
}

// Close tears down the send queue and underlying connection.
func (s *Socket) Close() error {
	s.queue.Close()
	s.mu.Lock()
	if s.keepAliveTimer != nil {
		s.keepAliveTimer.Stop()
	}
	s.mu.Unlock()
	return s.conn.Close()
}
