// Package session implements the session controller: the role-aware
// Paired-Key / Introduction / Response dialogue that rides on top of a
// Ready NearbySocket connection, exposing the user-visible
// NotReady -> WaitingForUserAccept -> Transferring -> Complete|Failed
// state machine and pumping payload chunks for the sending side.
package session

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/postalsys/nbshare/internal/cryptoprim"
	"github.com/postalsys/nbshare/internal/logging"
	"github.com/postalsys/nbshare/internal/nearbysocket"
	"github.com/postalsys/nbshare/internal/payload"
	"github.com/postalsys/nbshare/internal/wire"
)

// State is one step of the session controller's user-visible lifecycle.
type State int

const (
	StateNotReady State = iota
	StateWaitingForUserAccept
	StateTransferring
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotReady:
		return "NotReady"
	case StateWaitingForUserAccept:
		return "WaitingForUserAccept"
	case StateTransferring:
		return "Transferring"
	case StateComplete:
		return "Complete"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// FailedReason classifies a terminal Failed state.
type FailedReason int

const (
	FailedUnspecified FailedReason = iota
	FailedRemoteDeclined
	FailedRemoteOutOfSpace
	FailedRemoteUnsupported
	FailedRemoteTimedOut
	FailedUnknown
)

func (r FailedReason) String() string {
	switch r {
	case FailedUnspecified:
		return "Unspecified"
	case FailedRemoteDeclined:
		return "RemoteDeclined"
	case FailedRemoteOutOfSpace:
		return "RemoteOutOfSpace"
	case FailedRemoteUnsupported:
		return "RemoteUnsupported"
	case FailedRemoteTimedOut:
		return "RemoteTimedOut"
	default:
		return "Unknown"
	}
}

// TransferredFile is one file named in the Introduction dialogue, tracked
// from negotiation through completion.
type TransferredFile struct {
	ID               int64
	Name             string
	Size             int64
	Destination      string
	BytesTransferred int64
	Complete         bool

	payloadID int64
}

// OutgoingFile describes one local file the sender path offers in its
// Introduction. Name and MimeType default from Path and a generic fallback
// respectively when left empty.
type OutgoingFile struct {
	Path     string
	Name     string
	MimeType string

	resolvedPayloadID int64
	resolvedSize      int64
}

// Config holds a Controller's fixed dependencies and callbacks.
type Config struct {
	// DownloadDir is where the receiver path creates destination files.
	DownloadDir string

	// OutgoingFiles is the sender path's file list, used to build the
	// Introduction once the Paired-Key dialogue completes.
	OutgoingFiles []OutgoingFile

	// BytesPerSecond paces the sender's chunk pump; <= 0 disables pacing.
	BytesPerSecond int64

	Logger *slog.Logger

	OnStateChange          func(State)
	OnTransfersChanged     func([]TransferredFile)
	OnNegotiationCompleted func()
}

// Controller drives the Paired-Key/Introduction/Response dialogue atop a
// Ready NearbySocket connection and exposes the accept/reject decision and
// transfer progress to an external caller (a CLI or other UI).
type Controller struct {
	sock     *nearbysocket.Socket
	isSender bool
	cfg      Config
	logger   *slog.Logger

	assembler *payload.Assembler
	sender    *payload.Sender

	mu               sync.Mutex
	ctx              context.Context
	state            State
	failedReason     FailedReason
	files            []*TransferredFile
	filesByPayloadID map[int64]*TransferredFile
	outgoing         []OutgoingFile
}

// NewController wires a Controller to sock's secure-phase callbacks. sock
// must not yet be running its Run loop's callbacks for anything else.
func NewController(sock *nearbysocket.Socket, isSender bool, cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	c := &Controller{
		sock:             sock,
		isSender:         isSender,
		cfg:              cfg,
		logger:           logger,
		assembler:        payload.NewAssembler(nil),
		sender:           payload.NewSender(sock, cfg.BytesPerSecond),
		state:            StateNotReady,
		filesByPayloadID: make(map[int64]*TransferredFile),
		outgoing:         append([]OutgoingFile(nil), cfg.OutgoingFiles...),
	}

	sock.OnPayloadTransfer = c.handlePayloadTransfer
	sock.OnConnectionResponse = c.handleConnectionResponse
	sock.OnDisconnection = c.handleDisconnection

	return c
}

// Start sends this side's PairedKeyEncryption frame, beginning the
// negotiation dialogue. ctx bounds every send this controller performs
// afterwards, including the sender's chunk pump.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	secretIDHash, err := cryptoprim.RandomBytes(6)
	if err != nil {
		return fmt.Errorf("session: generate secret id hash: %w", err)
	}
	signedData, err := cryptoprim.RandomBytes(72)
	if err != nil {
		return fmt.Errorf("session: generate signed data: %w", err)
	}
	return c.sendSharingFrame(ctx, wire.NewPairedKeyEncryptionSharingFrame(secretIDHash, signedData))
}

// State reports the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// FailedReason reports why the controller reached StateFailed. Its value is
// meaningless in any other state.
func (c *Controller) FailedReason() FailedReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failedReason
}

// Pin returns the 4-digit verifier derived from the underlying socket's
// auth string, for the caller to display alongside the peer's name.
func (c *Controller) Pin() string {
	return DerivePIN(c.sock.AuthString())
}

// PeerName returns the remote endpoint's display name.
func (c *Controller) PeerName() string {
	return c.sock.Peer().Name
}

// IsSending reports whether this controller is driving the sender path.
func (c *Controller) IsSending() bool {
	return c.isSender
}

// Transfers returns a snapshot of every file currently known to the
// session, in Introduction order.
func (c *Controller) Transfers() []TransferredFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TransferredFile, len(c.files))
	for i, f := range c.files {
		out[i] = *f
	}
	return out
}

// AcceptTransfer accepts a pending receiver-path negotiation: it opens each
// declared destination file, registers it as the payload sink, then sends
// ConnectionResponse{ACCEPT}. Valid only in WaitingForUserAccept on the
// receiver path.
func (c *Controller) AcceptTransfer() error {
	c.mu.Lock()
	if c.isSender {
		c.mu.Unlock()
		return fmt.Errorf("session: AcceptTransfer is only valid for a receiver")
	}
	if c.state != StateWaitingForUserAccept {
		c.mu.Unlock()
		return fmt.Errorf("session: AcceptTransfer invalid in state %v", c.state)
	}
	files := append([]*TransferredFile(nil), c.files...)
	c.mu.Unlock()

	for _, f := range files {
		out, err := os.Create(f.Destination)
		if err != nil {
			return fmt.Errorf("session: open destination %s: %w", f.Destination, err)
		}
		c.assembler.RegisterSink(f.payloadID, &fileSink{f: out})
	}

	if err := c.sock.SendOfflineFrame(wire.NewConnectionResponseOfflineFrame(wire.StatusAccept)); err != nil {
		return fmt.Errorf("session: send connection response: %w", err)
	}
	c.setState(StateTransferring)
	return nil
}

// RejectTransfer declines a pending receiver-path negotiation, sending
// ConnectionResponse{REJECT} and transitioning to Failed.
func (c *Controller) RejectTransfer() error {
	c.mu.Lock()
	if c.isSender {
		c.mu.Unlock()
		return fmt.Errorf("session: RejectTransfer is only valid for a receiver")
	}
	if c.state != StateWaitingForUserAccept {
		c.mu.Unlock()
		return fmt.Errorf("session: RejectTransfer invalid in state %v", c.state)
	}
	c.mu.Unlock()

	if err := c.sock.SendOfflineFrame(wire.NewConnectionResponseOfflineFrame(wire.StatusReject)); err != nil {
		return fmt.Errorf("session: send connection response: %w", err)
	}
	c.fail(FailedUnspecified, nil)
	return nil
}

func (c *Controller) handlePayloadTransfer(pt *wire.PayloadTransferFrame) {
	switch pt.PacketType {
	case wire.PacketControl:
		if pt.Header == nil {
			return
		}
		if err := c.assembler.OnHeader(pt.Header); err != nil {
			c.fail(FailedUnknown, err)
		}
	case wire.PacketData:
		if pt.Chunk == nil {
			return
		}
		complete, buffered, err := c.assembler.OnChunk(pt.Chunk)
		if err != nil {
			c.fail(FailedUnknown, err)
			return
		}
		if complete && buffered != nil {
			c.handleSharingBytes(buffered)
			return
		}
		c.updateFileProgress(pt.Chunk.PayloadID, complete)
	}
}

func (c *Controller) handleSharingBytes(b []byte) {
	frame, err := wire.UnmarshalSharingFrame(b)
	if err != nil {
		c.fail(FailedUnknown, err)
		return
	}
	if frame.V1 == nil {
		return
	}
	switch frame.V1.Type {
	case wire.SharingFramePairedKeyEncryption:
		c.sendPairedKeyResult()
	case wire.SharingFramePairedKeyResult:
		if c.isSender {
			c.sendIntroduction()
		}
	case wire.SharingFrameIntroduction:
		if !c.isSender {
			c.handleIntroduction(frame.V1.Introduction)
		}
	}
}

func (c *Controller) sendPairedKeyResult() {
	if err := c.sendSharingFrame(c.contextOrBackground(), wire.NewPairedKeyResultSharingFrame(wire.PairedKeyResultUnable)); err != nil {
		c.fail(FailedUnknown, err)
	}
}

func (c *Controller) sendIntroduction() {
	c.mu.Lock()
	metas := make([]*wire.FileMetadata, 0, len(c.outgoing))
	files := make([]*TransferredFile, 0, len(c.outgoing))
	for i := range c.outgoing {
		of := &c.outgoing[i]
		info, err := os.Stat(of.Path)
		if err != nil {
			c.mu.Unlock()
			c.fail(FailedUnknown, fmt.Errorf("session: stat %s: %w", of.Path, err))
			return
		}
		id, err := randomID()
		if err != nil {
			c.mu.Unlock()
			c.fail(FailedUnknown, err)
			return
		}
		payloadID, err := randomID()
		if err != nil {
			c.mu.Unlock()
			c.fail(FailedUnknown, err)
			return
		}
		mimeType := of.MimeType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		name := of.Name
		if name == "" {
			name = filepath.Base(of.Path)
		}
		of.resolvedPayloadID = payloadID
		of.resolvedSize = info.Size()

		metas = append(metas, &wire.FileMetadata{
			ID:        id,
			Name:      name,
			Type:      wire.FileMetadataUnknown,
			PayloadID: payloadID,
			Size:      info.Size(),
			MimeType:  mimeType,
		})
		files = append(files, &TransferredFile{
			ID:          id,
			Name:        name,
			Size:        info.Size(),
			Destination: of.Path,
			payloadID:   payloadID,
		})
	}
	c.files = files
	c.mu.Unlock()

	if err := c.sendSharingFrame(c.contextOrBackground(), wire.NewIntroductionSharingFrame(metas)); err != nil {
		c.fail(FailedUnknown, err)
		return
	}
	c.setState(StateWaitingForUserAccept)
	c.notifyTransfersChanged()
}

func (c *Controller) handleIntroduction(intro *wire.IntroductionFrame) {
	if intro == nil {
		return
	}
	c.mu.Lock()
	files := make([]*TransferredFile, 0, len(intro.FileMetadata))
	byPayload := make(map[int64]*TransferredFile, len(intro.FileMetadata))
	for _, fm := range intro.FileMetadata {
		dest := resolveDestination(c.cfg.DownloadDir, fm.Name)
		tf := &TransferredFile{ID: fm.ID, Name: fm.Name, Size: fm.Size, Destination: dest, payloadID: fm.PayloadID}
		files = append(files, tf)
		byPayload[fm.PayloadID] = tf
	}
	c.files = files
	c.filesByPayloadID = byPayload
	c.mu.Unlock()

	c.setState(StateWaitingForUserAccept)
	if c.cfg.OnNegotiationCompleted != nil {
		c.cfg.OnNegotiationCompleted()
	}
	c.notifyTransfersChanged()
}

func (c *Controller) handleConnectionResponse(resp *wire.ConnectionResponseFrame) {
	if !c.isSender {
		return
	}
	switch resp.Status {
	case wire.StatusAccept:
		c.setState(StateTransferring)
		go c.pumpOutgoingFiles()
	case wire.StatusReject:
		c.fail(FailedRemoteDeclined, nil)
	case wire.StatusNotEnoughSpace:
		c.fail(FailedRemoteOutOfSpace, nil)
	case wire.StatusUnsupportedAttachmentType:
		c.fail(FailedRemoteUnsupported, nil)
	case wire.StatusTimedOut:
		c.fail(FailedRemoteTimedOut, nil)
	default:
		c.fail(FailedUnknown, nil)
	}
}

func (c *Controller) pumpOutgoingFiles() {
	ctx := c.contextOrBackground()
	c.mu.Lock()
	outgoing := append([]OutgoingFile(nil), c.outgoing...)
	c.mu.Unlock()

	for _, of := range outgoing {
		if err := c.sendOneFile(ctx, of); err != nil {
			c.fail(FailedUnknown, err)
			return
		}
	}
	c.setState(StateComplete)
}

func (c *Controller) sendOneFile(ctx context.Context, of OutgoingFile) error {
	f, err := os.Open(of.Path)
	if err != nil {
		return fmt.Errorf("session: open %s: %w", of.Path, err)
	}
	defer f.Close()

	if err := c.sender.Send(ctx, of.resolvedPayloadID, wire.PayloadTypeFile, of.resolvedSize, f); err != nil {
		return fmt.Errorf("session: send %s: %w", of.Path, err)
	}
	c.markFileComplete(of.resolvedPayloadID)
	return nil
}

func (c *Controller) markFileComplete(payloadID int64) {
	c.mu.Lock()
	for _, f := range c.files {
		if f.payloadID == payloadID {
			f.Complete = true
			f.BytesTransferred = f.Size
		}
	}
	c.mu.Unlock()
	c.notifyTransfersChanged()
}

func (c *Controller) updateFileProgress(payloadID int64, complete bool) {
	c.mu.Lock()
	f, ok := c.filesByPayloadID[payloadID]
	if !ok {
		c.mu.Unlock()
		return
	}
	f.BytesTransferred = c.assembler.BytesReceived(payloadID)
	f.Complete = complete
	done := complete && c.allFilesCompleteLocked()
	c.mu.Unlock()

	c.notifyTransfersChanged()
	if done {
		c.setState(StateComplete)
	}
}

// allFilesCompleteLocked must be called with c.mu held.
func (c *Controller) allFilesCompleteLocked() bool {
	if len(c.files) == 0 {
		return false
	}
	for _, f := range c.files {
		if !f.Complete {
			return false
		}
	}
	return true
}

func (c *Controller) handleDisconnection(*wire.DisconnectionFrame) {
	_ = c.assembler.Abort()
	c.fail(FailedUnspecified, nil)
}

func (c *Controller) sendSharingFrame(ctx context.Context, frame *wire.SharingFrame) error {
	id, err := randomID()
	if err != nil {
		return fmt.Errorf("session: generate payload id: %w", err)
	}
	return c.sender.SendBytes(ctx, id, wire.PayloadTypeBytes, frame.Marshal())
}

func (c *Controller) contextOrBackground() context.Context {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(s)
	}
}

func (c *Controller) fail(reason FailedReason, err error) {
	c.mu.Lock()
	if c.state == StateFailed || c.state == StateComplete {
		c.mu.Unlock()
		return
	}
	c.failedReason = reason
	c.state = StateFailed
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("session failed", logging.KeyPhase, "session", logging.KeyError, err, "reason", reason.String())
	}
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(StateFailed)
	}
}

func (c *Controller) notifyTransfersChanged() {
	if c.cfg.OnTransfersChanged == nil {
		return
	}
	c.cfg.OnTransfersChanged(c.Transfers())
}

// fileSink adapts an *os.File to payload.Sink, removing a partially written
// destination file if the transfer never reaches its LAST_CHUNK.
type fileSink struct {
	f *os.File
}

func (s *fileSink) Write(p []byte) (int, error) { return s.f.Write(p) }

func (s *fileSink) Close(complete bool) error {
	err := s.f.Close()
	if !complete {
		_ = os.Remove(s.f.Name())
	}
	return err
}

func randomID() (int64, error) {
	b, err := cryptoprim.RandomBytes(8)
	if err != nil {
		return 0, fmt.Errorf("session: generate random id: %w", err)
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}
