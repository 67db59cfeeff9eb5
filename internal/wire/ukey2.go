package wire

import "google.golang.org/protobuf/encoding/protowire"

// Ukey2MessageType enumerates securegcm.Ukey2Message.Type.
type Ukey2MessageType int32

const (
	Ukey2MessageUnknown Ukey2MessageType = 0
	Ukey2MessageAlert   Ukey2MessageType = 1
	Ukey2ClientInitMsg  Ukey2MessageType = 2
	Ukey2ServerInitMsg  Ukey2MessageType = 3
	Ukey2ClientFinishMsg Ukey2MessageType = 4
)

// Ukey2HandshakeCipher enumerates the supported cipher suites. This
// implementation only ever offers and accepts P256_SHA512.
type Ukey2HandshakeCipher int32

const (
	CipherReserved    Ukey2HandshakeCipher = 0
	CipherP256SHA512  Ukey2HandshakeCipher = 1
	CipherCurve25519SHA512 Ukey2HandshakeCipher = 2
)

// Ukey2AlertType enumerates securegcm.Ukey2Alert.AlertType.
type Ukey2AlertType int32

const (
	AlertBadMessage         Ukey2AlertType = 1
	AlertBadMessageType     Ukey2AlertType = 2
	AlertIncorrectMessage   Ukey2AlertType = 3
	AlertBadMessageData     Ukey2AlertType = 4
	AlertBadVersion         Ukey2AlertType = 5
	AlertBadRandom          Ukey2AlertType = 6
	AlertBadHandshakeCipher Ukey2AlertType = 7
	AlertBadNextProtocol    Ukey2AlertType = 8
	AlertBadPublicKey       Ukey2AlertType = 9
	AlertBadPayload         Ukey2AlertType = 10
	AlertBadSignature       Ukey2AlertType = 11
	AlertInternalError      Ukey2AlertType = 12
)

// Ukey2Message is the outermost handshake envelope: every UKEY2 wire message
// sent over the framed connection is one of these.
type Ukey2Message struct {
	MessageType Ukey2MessageType
	MessageData []byte
}

// CipherCommitment pairs an offered cipher with its SHA-512 commitment hash.
type CipherCommitment struct {
	HandshakeCipher Ukey2HandshakeCipher
	Commitment      []byte
}

// Ukey2ClientInit is the initiator's opening handshake message.
type Ukey2ClientInit struct {
	Version           int32
	Random            []byte
	CipherCommitments []*CipherCommitment
	NextProtocol      string
}

// Ukey2ServerInit is the responder's reply, selecting a cipher and
// revealing its ephemeral public key.
type Ukey2ServerInit struct {
	Version         int32
	Random          []byte
	HandshakeCipher Ukey2HandshakeCipher
	PublicKey       []byte
}

// Ukey2ClientFinished reveals the initiator's ephemeral public key,
// completing the commitment the ClientInit cipher commitment promised.
type Ukey2ClientFinished struct {
	PublicKey []byte
}

// Ukey2Alert aborts the handshake with a reason code.
type Ukey2Alert struct {
	Type         Ukey2AlertType
	ErrorMessage string
}

const (
	tagUMType = protowire.Number(1)
	tagUMData = protowire.Number(2)

	tagCCCipher     = protowire.Number(1)
	tagCCCommitment = protowire.Number(2)

	tagCIVersion      = protowire.Number(1)
	tagCIRandom       = protowire.Number(2)
	tagCICommitments  = protowire.Number(3)
	tagCINextProtocol = protowire.Number(4)

	tagSIVersion = protowire.Number(1)
	tagSIRandom  = protowire.Number(2)
	tagSICipher  = protowire.Number(3)
	tagSIPubKey  = protowire.Number(4)

	tagCFPubKey = protowire.Number(1)

	tagAlertType = protowire.Number(1)
	tagAlertMsg  = protowire.Number(2)
)

// Marshal encodes a Ukey2Message.
func (m *Ukey2Message) Marshal() []byte {
	var buf []byte
	buf = appendVarintField(buf, tagUMType, uint64(m.MessageType))
	buf = appendBytesField(buf, tagUMData, m.MessageData)
	return buf
}

// UnmarshalUkey2Message decodes a Ukey2Message.
func UnmarshalUkey2Message(b []byte) (*Ukey2Message, error) {
	fields, err := parseFields("Ukey2Message", b)
	if err != nil {
		return nil, err
	}
	typ, _ := firstVarint(fields, tagUMType)
	return &Ukey2Message{
		MessageType: Ukey2MessageType(typ),
		MessageData: firstBytes(fields, tagUMData),
	}, nil
}

func (c *CipherCommitment) marshal() []byte {
	var buf []byte
	buf = appendVarintField(buf, tagCCCipher, uint64(c.HandshakeCipher))
	buf = appendBytesField(buf, tagCCCommitment, c.Commitment)
	return buf
}

func unmarshalCipherCommitment(b []byte) (*CipherCommitment, error) {
	fields, err := parseFields("CipherCommitment", b)
	if err != nil {
		return nil, err
	}
	cipher, _ := firstVarint(fields, tagCCCipher)
	return &CipherCommitment{
		HandshakeCipher: Ukey2HandshakeCipher(cipher),
		Commitment:      firstBytes(fields, tagCCCommitment),
	}, nil
}

// Marshal encodes a Ukey2ClientInit.
func (c *Ukey2ClientInit) Marshal() []byte {
	var buf []byte
	buf = appendVarintField(buf, tagCIVersion, uint64(c.Version))
	buf = appendBytesField(buf, tagCIRandom, c.Random)
	for _, cc := range c.CipherCommitments {
		buf = appendBytesField(buf, tagCICommitments, cc.marshal())
	}
	buf = appendStringField(buf, tagCINextProtocol, c.NextProtocol)
	return buf
}

// UnmarshalUkey2ClientInit decodes a Ukey2ClientInit.
func UnmarshalUkey2ClientInit(b []byte) (*Ukey2ClientInit, error) {
	fields, err := parseFields("Ukey2ClientInit", b)
	if err != nil {
		return nil, err
	}
	version, _ := firstVarint(fields, tagCIVersion)
	c := &Ukey2ClientInit{
		Version:      int32(version),
		Random:       firstBytes(fields, tagCIRandom),
		NextProtocol: string(firstBytes(fields, tagCINextProtocol)),
	}
	for _, raw := range allBytes(fields, tagCICommitments) {
		cc, err := unmarshalCipherCommitment(raw)
		if err != nil {
			return nil, err
		}
		c.CipherCommitments = append(c.CipherCommitments, cc)
	}
	return c, nil
}

// Marshal encodes a Ukey2ServerInit.
func (s *Ukey2ServerInit) Marshal() []byte {
	var buf []byte
	buf = appendVarintField(buf, tagSIVersion, uint64(s.Version))
	buf = appendBytesField(buf, tagSIRandom, s.Random)
	buf = appendVarintField(buf, tagSICipher, uint64(s.HandshakeCipher))
	buf = appendBytesField(buf, tagSIPubKey, s.PublicKey)
	return buf
}

// UnmarshalUkey2ServerInit decodes a Ukey2ServerInit.
func UnmarshalUkey2ServerInit(b []byte) (*Ukey2ServerInit, error) {
	fields, err := parseFields("Ukey2ServerInit", b)
	if err != nil {
		return nil, err
	}
	version, _ := firstVarint(fields, tagSIVersion)
	cipher, _ := firstVarint(fields, tagSICipher)
	return &Ukey2ServerInit{
		Version:         int32(version),
		Random:          firstBytes(fields, tagSIRandom),
		HandshakeCipher: Ukey2HandshakeCipher(cipher),
		PublicKey:       firstBytes(fields, tagSIPubKey),
	}, nil
}

// Marshal encodes a Ukey2ClientFinished.
func (c *Ukey2ClientFinished) Marshal() []byte {
	var buf []byte
	buf = appendBytesField(buf, tagCFPubKey, c.PublicKey)
	return buf
}

// UnmarshalUkey2ClientFinished decodes a Ukey2ClientFinished.
func UnmarshalUkey2ClientFinished(b []byte) (*Ukey2ClientFinished, error) {
	fields, err := parseFields("Ukey2ClientFinished", b)
	if err != nil {
		return nil, err
	}
	return &Ukey2ClientFinished{PublicKey: firstBytes(fields, tagCFPubKey)}, nil
}

// Marshal encodes a Ukey2Alert.
func (a *Ukey2Alert) Marshal() []byte {
	var buf []byte
	buf = appendVarintField(buf, tagAlertType, uint64(a.Type))
	buf = appendStringField(buf, tagAlertMsg, a.ErrorMessage)
	return buf
}

// UnmarshalUkey2Alert decodes a Ukey2Alert.
func UnmarshalUkey2Alert(b []byte) (*Ukey2Alert, error) {
	fields, err := parseFields("Ukey2Alert", b)
	if err != nil {
		return nil, err
	}
	typ, _ := firstVarint(fields, tagAlertType)
	return &Ukey2Alert{
		Type:         Ukey2AlertType(typ),
		ErrorMessage: string(firstBytes(fields, tagAlertMsg)),
	}, nil
}

// NewUkey2Message wraps a typed handshake payload's marshaled bytes in its
// Ukey2Message envelope, ready to pass to the framing writer.
func NewUkey2Message(typ Ukey2MessageType, data []byte) *Ukey2Message {
	return &Ukey2Message{MessageType: typ, MessageData: data}
}
