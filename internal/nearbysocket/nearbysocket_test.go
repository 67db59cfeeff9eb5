package nearbysocket

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/postalsys/nbshare/internal/wire"
)

// handshakePair runs a dialer and listener Socket's handshake concurrently
// over an in-memory net.Pipe and returns both once Handshake succeeds on
// both sides.
func handshakePair(t *testing.T) (client, server *Socket) {
	t.Helper()

	clientConn, serverConn := net.Pipe()
	client = NewSocket(clientConn, true, LocalEndpoint{ID: "client-1", Name: "Client Laptop"})
	server = NewSocket(serverConn, false, LocalEndpoint{ID: "server-1", Name: "Server Phone"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientErr := make(chan error, 1)
	serverErr := make(chan error, 1)
	go func() { clientErr <- client.Handshake(ctx) }()
	go func() { serverErr <- server.Handshake(ctx) }()

	if err := <-clientErr; err != nil {
		t.Fatalf("client Handshake() error = %v", err)
	}
	if err := <-serverErr; err != nil {
		t.Fatalf("server Handshake() error = %v", err)
	}
	return client, server
}

func TestHandshake_BothSidesReachReady(t *testing.T) {
	client, server := handshakePair(t)
	defer client.Close()
	defer server.Close()

	if client.State() != StateReady {
		t.Errorf("client state = %v, want Ready", client.State())
	}
	if server.State() != StateReady {
		t.Errorf("server state = %v, want Ready", server.State())
	}
	if server.Peer().ID != "client-1" || server.Peer().Name != "Client Laptop" {
		t.Errorf("server's view of peer = %+v", server.Peer())
	}
}

// TestHandshake_AuthStringMatchesAndKeysRoleSwap exercises the fixture
// invariant: both sides derive an identical 32-byte auth_string, and their
// key schedules swap roles such that the client's encrypt key equals the
// server's decrypt key (and vice versa for sign/verify).
func TestHandshake_AuthStringMatchesAndKeysRoleSwap(t *testing.T) {
	client, server := handshakePair(t)
	defer client.Close()
	defer server.Close()

	if len(client.AuthString()) != 32 {
		t.Fatalf("len(client AuthString) = %d, want 32", len(client.AuthString()))
	}
	if !bytes.Equal(client.AuthString(), server.AuthString()) {
		t.Error("client and server auth strings do not match")
	}

	if !bytes.Equal(client.keys.EncryptKey(true), server.keys.DecryptKey(false)) {
		t.Error("client encrypt key should equal server decrypt key")
	}
	if !bytes.Equal(server.keys.EncryptKey(false), client.keys.DecryptKey(true)) {
		t.Error("server encrypt key should equal client decrypt key")
	}
	if !bytes.Equal(client.keys.SignKey(true), server.keys.VerifyKey(false)) {
		t.Error("client sign key should equal server verify key")
	}
}

func TestSecureChannel_RoundTrip(t *testing.T) {
	client, server := handshakePair(t)
	defer client.Close()
	defer server.Close()

	plaintext := []byte("an offline-frame's worth of bytes")
	sealed, err := client.secure.Seal(plaintext)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	opened, err := server.secure.Open(sealed)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("opened = %q, want %q", opened, plaintext)
	}
}

func TestSecureChannel_SequenceGapRejected(t *testing.T) {
	client, server := handshakePair(t)
	defer client.Close()
	defer server.Close()

	sealed1, _ := client.secure.Seal([]byte("first"))
	sealed2, _ := client.secure.Seal([]byte("second"))

	// Deliver only the second message: its sequence number is 2, but the
	// server's receive sequence is still 0, so it expects 1.
	if _, err := server.secure.Open(sealed2); err == nil {
		t.Error("Open() should reject a sequence gap")
	}

	// The in-order message must still be accepted afterwards.
	if _, err := server.secure.Open(sealed1); err != nil {
		t.Errorf("Open() of the in-order message failed: %v", err)
	}
}

func TestSendOfflineFrame_RequiresReadyState(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	s := NewSocket(clientConn, true, LocalEndpoint{ID: "x"})
	if err := s.SendOfflineFrame(wire.NewKeepAliveOfflineFrame(false)); err == nil {
		t.Error("SendOfflineFrame before handshake completion should fail")
	}
}

func TestRun_DispatchesPayloadTransfer(t *testing.T) {
	client, server := handshakePair(t)
	defer client.Close()
	defer server.Close()

	received := make(chan *wire.PayloadTransferFrame, 1)
	server.OnPayloadTransfer = func(pt *wire.PayloadTransferFrame) {
		received <- pt
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- server.Run(ctx) }()

	if err := client.SendOfflineFrame(wire.NewPayloadChunkOfflineFrame(&wire.PayloadChunk{
		PayloadID: 1,
		Offset:    0,
		Body:      []byte("chunk"),
	})); err != nil {
		t.Fatalf("SendOfflineFrame() error = %v", err)
	}

	select {
	case pt := <-received:
		if pt.Chunk == nil || string(pt.Chunk.Body) != "chunk" {
			t.Errorf("received payload transfer = %+v", pt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched payload transfer")
	}

	cancel()
	<-runErr
}
