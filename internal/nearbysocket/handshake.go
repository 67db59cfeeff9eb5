package nearbysocket

import (
	"context"
	"crypto/sha512"
	"errors"
	"fmt"

	"github.com/postalsys/nbshare/internal/cryptoprim"
	"github.com/postalsys/nbshare/internal/wire"
)

// ErrCommitmentMismatch is returned when the initiator's revealed
// ClientFinish public key does not hash to the commitment it advertised in
// ClientInit. This implementation enforces the commitment fail-closed.
var ErrCommitmentMismatch = errors.New("nearbysocket: ukey2 commitment mismatch")

func genericPublicKeyBytes(kp *cryptoprim.P256Keypair) []byte {
	x, y := kp.PublicXY()
	gpk := &wire.GenericPublicKey{
		Type:            wire.PublicKeyTypeECP256,
		ECP256PublicKey: &wire.EcP256PublicKey{X: x, Y: y},
	}
	return gpk.Marshal()
}

func decodeGenericPublicKey(raw []byte) (x, y []byte, err error) {
	gpk, err := wire.UnmarshalGenericPublicKey(raw)
	if err != nil {
		return nil, nil, err
	}
	if gpk.ECP256PublicKey == nil {
		return nil, nil, fmt.Errorf("nearbysocket: generic public key missing EC P-256 coordinates")
	}
	return gpk.ECP256PublicKey.X, gpk.ECP256PublicKey.Y, nil
}

// dialerHandshake runs the initiator (UKEY2 client) side of the handshake.
func (s *Socket) dialerHandshake(ctx context.Context) error {
	req := wire.NewConnectionRequestOfflineFrame(s.local.ID, s.local.Name, s.local.EndpointInfo)
	if err := s.sendOfflineFrame(req); err != nil {
		return fmt.Errorf("nearbysocket: send connection request: %w", err)
	}
	s.setState(StateWaitingForUkey2ServerInit)

	keypair, err := cryptoprim.GenerateP256Keypair()
	if err != nil {
		return fmt.Errorf("nearbysocket: generate keypair: %w", err)
	}
	clientFinish := &wire.Ukey2ClientFinished{PublicKey: genericPublicKeyBytes(keypair)}
	clientFinishBytes := clientFinish.Marshal()
	commitment := sha512.Sum512(clientFinishBytes)

	random, err := cryptoprim.RandomBytes(32)
	if err != nil {
		return fmt.Errorf("nearbysocket: generate client random: %w", err)
	}
	clientInit := &wire.Ukey2ClientInit{
		Version: 1,
		Random:  random,
		CipherCommitments: []*wire.CipherCommitment{
			{HandshakeCipher: wire.CipherP256SHA512, Commitment: commitment[:]},
		},
		NextProtocol: nextProtocol,
	}
	clientInitBytes := clientInit.Marshal()
	if err := s.sendUkey2(wire.Ukey2ClientInitMsg, clientInitBytes); err != nil {
		return fmt.Errorf("nearbysocket: send client init: %w", err)
	}

	msg, _, err := s.readUkey2Message(ctx)
	if err != nil {
		return err
	}
	if msg.MessageType == wire.Ukey2MessageAlert {
		alert, _ := wire.UnmarshalUkey2Alert(msg.MessageData)
		return fmt.Errorf("%w: peer sent alert type %v", ErrProtocol, alert.Type)
	}
	if msg.MessageType != wire.Ukey2ServerInitMsg {
		return fmt.Errorf("%w: expected ServerInit, got message type %v", ErrProtocol, msg.MessageType)
	}
	serverInitBytes := msg.MessageData
	serverInit, err := wire.UnmarshalUkey2ServerInit(serverInitBytes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if serverInit.HandshakeCipher != wire.CipherP256SHA512 {
		return fmt.Errorf("%w: server selected unsupported cipher %v", ErrProtocol, serverInit.HandshakeCipher)
	}
	serverX, serverY, err := decodeGenericPublicKey(serverInit.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: server public key: %v", ErrProtocol, err)
	}

	if err := s.sendUkey2(wire.Ukey2ClientFinishMsg, clientFinishBytes); err != nil {
		return fmt.Errorf("nearbysocket: send client finish: %w", err)
	}

	sharedSecret, err := cryptoprim.AgreeECDH(keypair.Private, serverX, serverY)
	if err != nil {
		return fmt.Errorf("nearbysocket: ECDH agreement: %w", err)
	}
	m1m2 := append(append([]byte{}, clientInitBytes...), serverInitBytes...)
	if err := s.finishHandshake(sharedSecret, m1m2); err != nil {
		return err
	}

	s.setState(StateWaitingForConnectionResponse)
	if err := s.sendOfflineFrame(wire.NewConnectionResponseOfflineFrame(wire.StatusAccept)); err != nil {
		return fmt.Errorf("nearbysocket: send connection response: %w", err)
	}

	return s.awaitConnectionResponse(ctx, false)
}

// listenerHandshake runs the responder (UKEY2 server) side of the handshake.
func (s *Socket) listenerHandshake(ctx context.Context) error {
	reqFrame, err := s.readOfflineFrame(ctx)
	if err != nil {
		return err
	}
	if reqFrame.V1 == nil || reqFrame.V1.Type != wire.FrameConnectionRequest || reqFrame.V1.ConnectionRequest == nil {
		return fmt.Errorf("%w: expected ConnectionRequest", ErrProtocol)
	}
	cr := reqFrame.V1.ConnectionRequest
	s.mu.Lock()
	s.peer = PeerEndpoint{ID: cr.EndpointID, Name: cr.EndpointName, EndpointInfo: cr.EndpointInfo}
	s.mu.Unlock()
	s.setState(StateWaitingForUkey2ClientInit)

	msg, _, err := s.readUkey2Message(ctx)
	if err != nil {
		return err
	}
	if msg.MessageType != wire.Ukey2ClientInitMsg {
		return fmt.Errorf("%w: expected ClientInit, got message type %v", ErrProtocol, msg.MessageType)
	}
	clientInitBytes := msg.MessageData
	clientInit, err := wire.UnmarshalUkey2ClientInit(clientInitBytes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if err := validateClientInit(clientInit); err != nil {
		alert := (&wire.Ukey2Alert{Type: err.(alertError).alertType, ErrorMessage: err.Error()}).Marshal()
		_ = s.sendUkey2(wire.Ukey2MessageAlert, alert)
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	var commitment []byte
	for _, cc := range clientInit.CipherCommitments {
		if cc.HandshakeCipher == wire.CipherP256SHA512 {
			commitment = cc.Commitment
			break
		}
	}

	keypair, err := cryptoprim.GenerateP256Keypair()
	if err != nil {
		return fmt.Errorf("nearbysocket: generate keypair: %w", err)
	}
	random, err := cryptoprim.RandomBytes(32)
	if err != nil {
		return fmt.Errorf("nearbysocket: generate server random: %w", err)
	}
	serverInit := &wire.Ukey2ServerInit{
		Version:         1,
		Random:          random,
		HandshakeCipher: wire.CipherP256SHA512,
		PublicKey:       genericPublicKeyBytes(keypair),
	}
	serverInitBytes := serverInit.Marshal()
	if err := s.sendUkey2(wire.Ukey2ServerInitMsg, serverInitBytes); err != nil {
		return fmt.Errorf("nearbysocket: send server init: %w", err)
	}
	s.setState(StateWaitingForUkey2ClientFinish)

	msg, _, err = s.readUkey2Message(ctx)
	if err != nil {
		return err
	}
	if msg.MessageType != wire.Ukey2ClientFinishMsg {
		return fmt.Errorf("%w: expected ClientFinish, got message type %v", ErrProtocol, msg.MessageType)
	}
	clientFinishBytes := msg.MessageData
	clientFinish, err := wire.UnmarshalUkey2ClientFinished(clientFinishBytes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	gotCommitment := sha512.Sum512(clientFinishBytes)
	if len(commitment) != len(gotCommitment) || string(commitment) != string(gotCommitment[:]) {
		alert := (&wire.Ukey2Alert{Type: wire.AlertBadMessageData, ErrorMessage: "commitment mismatch"}).Marshal()
		_ = s.sendUkey2(wire.Ukey2MessageAlert, alert)
		return ErrCommitmentMismatch
	}

	clientX, clientY, err := decodeGenericPublicKey(clientFinish.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: client public key: %v", ErrProtocol, err)
	}
	sharedSecret, err := cryptoprim.AgreeECDH(keypair.Private, clientX, clientY)
	if err != nil {
		return fmt.Errorf("nearbysocket: ECDH agreement: %w", err)
	}
	m1m2 := append(append([]byte{}, clientInitBytes...), serverInitBytes...)
	if err := s.finishHandshake(sharedSecret, m1m2); err != nil {
		return err
	}

	s.setState(StateWaitingForConnectionResponse)
	return s.awaitConnectionResponse(ctx, true)
}

// finishHandshake derives the key schedule and auth string and wires up the
// secure channel, common to both handshake roles.
func (s *Socket) finishHandshake(sharedSecret, m1m2 []byte) error {
	keys, err := DeriveKeySchedule(sharedSecret, m1m2)
	if err != nil {
		return err
	}
	authString, err := AuthString(sharedSecret, m1m2)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.keys = keys
	s.authString = authString
	s.secure = newSecureChannel(keys, s.isClient)
	s.mu.Unlock()
	return nil
}

// awaitConnectionResponse waits for the peer's ConnectionResponse. If
// isResponder, this side echoes its own ConnectionResponse back before
// considering the handshake complete, per the protocol's mutual-accept
// exchange.
func (s *Socket) awaitConnectionResponse(ctx context.Context, isResponder bool) error {
	frame, err := s.readOfflineFrame(ctx)
	if err != nil {
		return err
	}
	if frame.V1 == nil || frame.V1.Type != wire.FrameConnectionResp || frame.V1.ConnectionResp == nil {
		return fmt.Errorf("%w: expected ConnectionResponse", ErrProtocol)
	}
	if frame.V1.ConnectionResp.Status != wire.StatusAccept {
		return fmt.Errorf("nearbysocket: peer rejected connection: status %v", frame.V1.ConnectionResp.Status)
	}
	if isResponder {
		if err := s.sendOfflineFrame(wire.NewConnectionResponseOfflineFrame(wire.StatusAccept)); err != nil {
			return fmt.Errorf("nearbysocket: echo connection response: %w", err)
		}
	}
	return nil
}

// alertError pairs a validation failure with the UKEY2 alert type it maps to.
type alertError struct {
	alertType wire.Ukey2AlertType
	msg       string
}

func (e alertError) Error() string { return e.msg }

func validateClientInit(c *wire.Ukey2ClientInit) error {
	if c.Version != 1 {
		return alertError{wire.AlertBadVersion, fmt.Sprintf("unsupported version %d", c.Version)}
	}
	if len(c.Random) != 32 {
		return alertError{wire.AlertBadRandom, fmt.Sprintf("random must be 32 bytes, got %d", len(c.Random))}
	}
	if c.NextProtocol != nextProtocol {
		return alertError{wire.AlertBadNextProtocol, fmt.Sprintf("unsupported next_protocol %q", c.NextProtocol)}
	}
	for _, cc := range c.CipherCommitments {
		if cc.HandshakeCipher == wire.CipherP256SHA512 {
			return nil
		}
	}
	return alertError{wire.AlertBadHandshakeCipher, "no P256_SHA512 cipher commitment offered"}
}
