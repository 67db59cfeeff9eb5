package wire

import "testing"

func TestOfflineFrame_ConnectionRequestRoundTrip(t *testing.T) {
	f := NewConnectionRequestOfflineFrame("endpoint-1", "My Laptop", []byte{0x01, 0x02, 0x03})

	decoded, err := UnmarshalOfflineFrame(f.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalOfflineFrame() error = %v", err)
	}
	if decoded.V1.Type != FrameConnectionRequest {
		t.Fatalf("Type = %v, want FrameConnectionRequest", decoded.V1.Type)
	}
	cr := decoded.V1.ConnectionRequest
	if cr == nil {
		t.Fatal("ConnectionRequest is nil")
	}
	if cr.EndpointID != "endpoint-1" || cr.EndpointName != "My Laptop" {
		t.Errorf("got %+v", cr)
	}
	if string(cr.EndpointInfo) != "\x01\x02\x03" {
		t.Errorf("EndpointInfo = %x", cr.EndpointInfo)
	}
}

func TestOfflineFrame_ConnectionResponseRoundTrip(t *testing.T) {
	f := NewConnectionResponseOfflineFrame(StatusAccept)
	decoded, err := UnmarshalOfflineFrame(f.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalOfflineFrame() error = %v", err)
	}
	if decoded.V1.ConnectionResp.Status != StatusAccept {
		t.Errorf("Status = %v, want StatusAccept", decoded.V1.ConnectionResp.Status)
	}
}

func TestOfflineFrame_PayloadChunkRoundTrip_ZeroOffset(t *testing.T) {
	// Offset 0 must survive the round trip even though it is the varint
	// zero value, which appendVarintField would otherwise omit.
	f := NewPayloadChunkOfflineFrame(&PayloadChunk{PayloadID: 7, Offset: 0, Body: []byte("HELLO")})

	decoded, err := UnmarshalOfflineFrame(f.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalOfflineFrame() error = %v", err)
	}
	chunk := decoded.V1.PayloadTransfer.Chunk
	if chunk == nil {
		t.Fatal("Chunk is nil")
	}
	if chunk.PayloadID != 7 || chunk.Offset != 0 || string(chunk.Body) != "HELLO" {
		t.Errorf("got %+v", chunk)
	}
}

func TestOfflineFrame_PayloadChunkRoundTrip_LastChunk(t *testing.T) {
	f := NewPayloadChunkOfflineFrame(&PayloadChunk{
		PayloadID: 7,
		Offset:    11,
		Flags:     int32(ChunkFlagLastChunk),
		Body:      nil,
	})

	decoded, err := UnmarshalOfflineFrame(f.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalOfflineFrame() error = %v", err)
	}
	chunk := decoded.V1.PayloadTransfer.Chunk
	if chunk.Flags&int32(ChunkFlagLastChunk) == 0 {
		t.Error("LastChunk flag lost in round trip")
	}
	if chunk.Offset != 11 {
		t.Errorf("Offset = %d, want 11", chunk.Offset)
	}
}

func TestOfflineFrame_PayloadHeaderRoundTrip(t *testing.T) {
	f := NewPayloadHeaderOfflineFrame(&PayloadHeader{ID: 42, Type: PayloadTypeFile, TotalSize: 1024})

	decoded, err := UnmarshalOfflineFrame(f.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalOfflineFrame() error = %v", err)
	}
	h := decoded.V1.PayloadTransfer.Header
	if h.ID != 42 || h.Type != PayloadTypeFile || h.TotalSize != 1024 {
		t.Errorf("got %+v", h)
	}
}

func TestOfflineFrame_KeepAliveAndDisconnection(t *testing.T) {
	ka := NewKeepAliveOfflineFrame(true)
	decodedKA, err := UnmarshalOfflineFrame(ka.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalOfflineFrame(keepalive) error = %v", err)
	}
	if !decodedKA.V1.KeepAlive.Ack {
		t.Error("Ack flag lost")
	}

	d := NewDisconnectionOfflineFrame(true)
	decodedD, err := UnmarshalOfflineFrame(d.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalOfflineFrame(disconnection) error = %v", err)
	}
	if !decodedD.V1.Disconnection.RequestSafeToDisconnect {
		t.Error("RequestSafeToDisconnect flag lost")
	}
}

func TestUkey2ClientInit_RoundTrip(t *testing.T) {
	ci := &Ukey2ClientInit{
		Version: 1,
		Random:  []byte("16-bytes-random!"),
		CipherCommitments: []*CipherCommitment{
			{HandshakeCipher: CipherP256SHA512, Commitment: []byte("commitment-hash")},
		},
		NextProtocol: "AES_256_CBC-HMAC_SHA256",
	}

	decoded, err := UnmarshalUkey2ClientInit(ci.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalUkey2ClientInit() error = %v", err)
	}
	if decoded.Version != 1 || string(decoded.Random) != "16-bytes-random!" {
		t.Errorf("got %+v", decoded)
	}
	if len(decoded.CipherCommitments) != 1 || decoded.CipherCommitments[0].HandshakeCipher != CipherP256SHA512 {
		t.Errorf("commitments = %+v", decoded.CipherCommitments)
	}
	if decoded.NextProtocol != ci.NextProtocol {
		t.Errorf("NextProtocol = %q, want %q", decoded.NextProtocol, ci.NextProtocol)
	}
}

func TestUkey2ServerInit_RoundTrip(t *testing.T) {
	si := &Ukey2ServerInit{
		Version:         1,
		Random:          []byte("server-random-16"),
		HandshakeCipher: CipherP256SHA512,
		PublicKey:       []byte("serialized-generic-public-key"),
	}
	decoded, err := UnmarshalUkey2ServerInit(si.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalUkey2ServerInit() error = %v", err)
	}
	if decoded.HandshakeCipher != CipherP256SHA512 || string(decoded.PublicKey) != string(si.PublicKey) {
		t.Errorf("got %+v", decoded)
	}
}

func TestUkey2Message_WrapsClientInit(t *testing.T) {
	ci := &Ukey2ClientInit{Version: 1, Random: []byte("x")}
	msg := NewUkey2Message(Ukey2ClientInitMsg, ci.Marshal())

	decoded, err := UnmarshalUkey2Message(msg.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalUkey2Message() error = %v", err)
	}
	if decoded.MessageType != Ukey2ClientInitMsg {
		t.Errorf("MessageType = %v, want Ukey2ClientInitMsg", decoded.MessageType)
	}
	innerCI, err := UnmarshalUkey2ClientInit(decoded.MessageData)
	if err != nil {
		t.Fatalf("UnmarshalUkey2ClientInit(inner) error = %v", err)
	}
	if string(innerCI.Random) != "x" {
		t.Errorf("inner Random = %q", innerCI.Random)
	}
}

func TestUkey2Alert_RoundTrip(t *testing.T) {
	a := &Ukey2Alert{Type: AlertBadVersion, ErrorMessage: "unsupported version"}
	decoded, err := UnmarshalUkey2Alert(a.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalUkey2Alert() error = %v", err)
	}
	if decoded.Type != AlertBadVersion || decoded.ErrorMessage != "unsupported version" {
		t.Errorf("got %+v", decoded)
	}
}

func TestSecureMessage_RoundTrip(t *testing.T) {
	header := &Header{
		SignatureScheme:  SigSchemeHMACSHA256,
		EncryptionScheme: EncSchemeAES256CBC,
		IV:               []byte("0123456789abcdef"),
	}
	hab := &HeaderAndBody{Header: header, Body: []byte("ciphertext-bytes")}
	sm := &SecureMessage{HeaderAndBody: hab.Marshal(), Signature: []byte("hmac-tag-32-bytes-of-course-ok!")}

	decodedSM, err := UnmarshalSecureMessage(sm.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalSecureMessage() error = %v", err)
	}
	decodedHAB, err := UnmarshalHeaderAndBody(decodedSM.HeaderAndBody)
	if err != nil {
		t.Fatalf("UnmarshalHeaderAndBody() error = %v", err)
	}
	if decodedHAB.Header.EncryptionScheme != EncSchemeAES256CBC {
		t.Errorf("EncryptionScheme = %v", decodedHAB.Header.EncryptionScheme)
	}
	if string(decodedHAB.Header.IV) != "0123456789abcdef" {
		t.Errorf("IV = %q", decodedHAB.Header.IV)
	}
	if string(decodedHAB.Body) != "ciphertext-bytes" {
		t.Errorf("Body = %q", decodedHAB.Body)
	}
}

func TestGenericPublicKey_RoundTrip(t *testing.T) {
	g := &GenericPublicKey{
		Type:            PublicKeyTypeECP256,
		ECP256PublicKey: &EcP256PublicKey{X: make([]byte, 32), Y: make([]byte, 32)},
	}
	g.ECP256PublicKey.X[0] = 0xAB
	g.ECP256PublicKey.Y[31] = 0xCD

	decoded, err := UnmarshalGenericPublicKey(g.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalGenericPublicKey() error = %v", err)
	}
	if decoded.ECP256PublicKey.X[0] != 0xAB || decoded.ECP256PublicKey.Y[31] != 0xCD {
		t.Errorf("got %+v", decoded.ECP256PublicKey)
	}
}

func TestDeviceToDeviceMessage_RoundTrip(t *testing.T) {
	d := &DeviceToDeviceMessage{SequenceNumber: 1, Message: []byte("application-frame-bytes")}
	decoded, err := UnmarshalDeviceToDeviceMessage(d.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalDeviceToDeviceMessage() error = %v", err)
	}
	if decoded.SequenceNumber != 1 || string(decoded.Message) != "application-frame-bytes" {
		t.Errorf("got %+v", decoded)
	}
}

func TestDeviceToDeviceMessage_SequenceZeroSurvives(t *testing.T) {
	d := &DeviceToDeviceMessage{SequenceNumber: 0, Message: []byte("m")}
	decoded, err := UnmarshalDeviceToDeviceMessage(d.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalDeviceToDeviceMessage() error = %v", err)
	}
	if decoded.SequenceNumber != 0 {
		t.Errorf("SequenceNumber = %d, want 0", decoded.SequenceNumber)
	}
}

func TestSharingFrame_IntroductionRoundTrip(t *testing.T) {
	files := []*FileMetadata{
		{ID: 1, Name: "photo.jpg", Type: FileMetadataImage, PayloadID: 100, Size: 2048, MimeType: "image/jpeg"},
		{ID: 2, Name: "doc.pdf", Type: FileMetadataDocument, PayloadID: 101, Size: 4096, MimeType: "application/pdf"},
	}
	f := NewIntroductionSharingFrame(files)

	decoded, err := UnmarshalSharingFrame(f.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalSharingFrame() error = %v", err)
	}
	if decoded.V1.Type != SharingFrameIntroduction {
		t.Fatalf("Type = %v", decoded.V1.Type)
	}
	got := decoded.V1.Introduction.FileMetadata
	if len(got) != 2 {
		t.Fatalf("len(FileMetadata) = %d, want 2", len(got))
	}
	if got[0].Name != "photo.jpg" || got[1].Name != "doc.pdf" {
		t.Errorf("got %+v", got)
	}
	if got[0].Size != 2048 || got[1].PayloadID != 101 {
		t.Errorf("got %+v", got)
	}
}

func TestSharingFrame_PairedKeyDialogueRoundTrip(t *testing.T) {
	enc := NewPairedKeyEncryptionSharingFrame([]byte("secret-id-hash"), []byte("signed-data"))
	decodedEnc, err := UnmarshalSharingFrame(enc.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalSharingFrame(encryption) error = %v", err)
	}
	if string(decodedEnc.V1.PairedKeyEncryption.SecretIDHash) != "secret-id-hash" {
		t.Errorf("got %+v", decodedEnc.V1.PairedKeyEncryption)
	}

	result := NewPairedKeyResultSharingFrame(PairedKeyResultUnable)
	decodedResult, err := UnmarshalSharingFrame(result.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalSharingFrame(result) error = %v", err)
	}
	if decodedResult.V1.PairedKeyResult.Status != PairedKeyResultUnable {
		t.Errorf("Status = %v, want PairedKeyResultUnable", decodedResult.V1.PairedKeyResult.Status)
	}
}

func TestUnmarshalOfflineFrame_MalformedInput(t *testing.T) {
	if _, err := UnmarshalOfflineFrame([]byte{0xFF}); err == nil {
		t.Error("UnmarshalOfflineFrame should reject garbage bytes")
	}
	if _, err := UnmarshalOfflineFrame(nil); err == nil {
		t.Error("UnmarshalOfflineFrame should reject a frame with no v1 payload")
	}
}
