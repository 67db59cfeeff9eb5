package wire

import "google.golang.org/protobuf/encoding/protowire"

// SigScheme enumerates securemessage.Header.SignatureScheme. This
// implementation only produces and accepts HMAC_SHA256.
type SigScheme int32

const (
	SigSchemeHMACSHA256 SigScheme = 1
)

// EncScheme enumerates securemessage.Header.EncryptionScheme.
type EncScheme int32

const (
	EncSchemeNone     EncScheme = 1
	EncSchemeAES256CBC EncScheme = 2
)

// PublicKeyType enumerates securemessage.GenericPublicKey.Type.
type PublicKeyType int32

const (
	PublicKeyTypeECP256 PublicKeyType = 1
)

// GcmMetadataType enumerates securegcm.GcmMetadata.Type.
type GcmMetadataType int32

const (
	GcmMetadataDeviceToDeviceMessage GcmMetadataType = 1
)

// SecureMessage is the outermost authenticated envelope: a serialized
// HeaderAndBody plus its HMAC-SHA256 signature over those same bytes.
type SecureMessage struct {
	HeaderAndBody []byte
	Signature     []byte
}

// HeaderAndBody pairs a cleartext Header describing how Body is protected
// with Body itself (typically an encrypted DeviceToDeviceMessage).
type HeaderAndBody struct {
	Header *Header
	Body   []byte
}

// Header describes the encryption and signature scheme used to protect a
// HeaderAndBody's Body, plus the IV used for CBC decryption.
type Header struct {
	SignatureScheme  SigScheme
	EncryptionScheme EncScheme
	IV               []byte
	PublicMetadata   []byte
}

// GenericPublicKey wraps one of several possible public key encodings; this
// implementation only ever populates ECP256PublicKey.
type GenericPublicKey struct {
	Type           PublicKeyType
	ECP256PublicKey *EcP256PublicKey
}

// EcP256PublicKey holds a P-256 public key as its raw affine coordinates.
type EcP256PublicKey struct {
	X, Y []byte
}

// GcmMetadata tags a DeviceToDeviceMessage's role in the Google Secure
// Channel protocol family.
type GcmMetadata struct {
	Type    GcmMetadataType
	Version int32
}

// DeviceToDeviceMessage is the plaintext enclosed by a SecureMessage once
// decrypted: a monotonic sequence number plus an application payload.
type DeviceToDeviceMessage struct {
	SequenceNumber int32
	Message        []byte
}

const (
	tagSMHeaderAndBody = protowire.Number(1)
	tagSMSignature     = protowire.Number(2)

	tagHABHeader = protowire.Number(1)
	tagHABBody   = protowire.Number(2)

	tagHSigScheme  = protowire.Number(1)
	tagHEncScheme  = protowire.Number(2)
	tagHVerifyKeyID = protowire.Number(3)
	tagHDecryptKeyID = protowire.Number(4)
	tagHIV          = protowire.Number(5)
	tagHPublicMeta  = protowire.Number(6)

	tagGPKType  = protowire.Number(1)
	tagGPKECP256 = protowire.Number(2)

	tagECPX = protowire.Number(1)
	tagECPY = protowire.Number(2)

	tagGMType    = protowire.Number(1)
	tagGMVersion = protowire.Number(2)

	tagD2DSeq = protowire.Number(1)
	tagD2DMsg = protowire.Number(2)
)

// Marshal encodes a SecureMessage.
func (s *SecureMessage) Marshal() []byte {
	var buf []byte
	buf = appendBytesField(buf, tagSMHeaderAndBody, s.HeaderAndBody)
	buf = appendBytesField(buf, tagSMSignature, s.Signature)
	return buf
}

// UnmarshalSecureMessage decodes a SecureMessage.
func UnmarshalSecureMessage(b []byte) (*SecureMessage, error) {
	fields, err := parseFields("SecureMessage", b)
	if err != nil {
		return nil, err
	}
	s := &SecureMessage{
		HeaderAndBody: firstBytes(fields, tagSMHeaderAndBody),
		Signature:     firstBytes(fields, tagSMSignature),
	}
	if s.HeaderAndBody == nil || s.Signature == nil {
		return nil, malformed("SecureMessage", "missing header_and_body or signature")
	}
	return s, nil
}

// Marshal encodes a HeaderAndBody.
func (h *HeaderAndBody) Marshal() []byte {
	var buf []byte
	if h.Header != nil {
		buf = appendBytesField(buf, tagHABHeader, h.Header.marshal())
	}
	buf = appendBytesField(buf, tagHABBody, h.Body)
	return buf
}

// UnmarshalHeaderAndBody decodes a HeaderAndBody.
func UnmarshalHeaderAndBody(b []byte) (*HeaderAndBody, error) {
	fields, err := parseFields("HeaderAndBody", b)
	if err != nil {
		return nil, err
	}
	hab := &HeaderAndBody{Body: firstBytes(fields, tagHABBody)}
	raw := firstBytes(fields, tagHABHeader)
	if raw == nil {
		return nil, malformed("HeaderAndBody", "missing header")
	}
	header, err := unmarshalHeader(raw)
	if err != nil {
		return nil, err
	}
	hab.Header = header
	return hab, nil
}

func (h *Header) marshal() []byte {
	var buf []byte
	buf = appendVarintField(buf, tagHSigScheme, uint64(h.SignatureScheme))
	buf = appendVarintField(buf, tagHEncScheme, uint64(h.EncryptionScheme))
	buf = appendBytesField(buf, tagHIV, h.IV)
	buf = appendBytesField(buf, tagHPublicMeta, h.PublicMetadata)
	return buf
}

func unmarshalHeader(b []byte) (*Header, error) {
	fields, err := parseFields("Header", b)
	if err != nil {
		return nil, err
	}
	sig, _ := firstVarint(fields, tagHSigScheme)
	enc, _ := firstVarint(fields, tagHEncScheme)
	return &Header{
		SignatureScheme:  SigScheme(sig),
		EncryptionScheme: EncScheme(enc),
		IV:               firstBytes(fields, tagHIV),
		PublicMetadata:   firstBytes(fields, tagHPublicMeta),
	}, nil
}

// Marshal encodes a GenericPublicKey.
func (g *GenericPublicKey) Marshal() []byte {
	var buf []byte
	buf = appendVarintField(buf, tagGPKType, uint64(g.Type))
	if g.ECP256PublicKey != nil {
		buf = appendBytesField(buf, tagGPKECP256, g.ECP256PublicKey.marshal())
	}
	return buf
}

// UnmarshalGenericPublicKey decodes a GenericPublicKey.
func UnmarshalGenericPublicKey(b []byte) (*GenericPublicKey, error) {
	fields, err := parseFields("GenericPublicKey", b)
	if err != nil {
		return nil, err
	}
	typ, _ := firstVarint(fields, tagGPKType)
	g := &GenericPublicKey{Type: PublicKeyType(typ)}
	if raw := firstBytes(fields, tagGPKECP256); raw != nil {
		ec, err := unmarshalEcP256PublicKey(raw)
		if err != nil {
			return nil, err
		}
		g.ECP256PublicKey = ec
	}
	return g, nil
}

func (e *EcP256PublicKey) marshal() []byte {
	var buf []byte
	buf = appendBytesField(buf, tagECPX, e.X)
	buf = appendBytesField(buf, tagECPY, e.Y)
	return buf
}

func unmarshalEcP256PublicKey(b []byte) (*EcP256PublicKey, error) {
	fields, err := parseFields("EcP256PublicKey", b)
	if err != nil {
		return nil, err
	}
	x := firstBytes(fields, tagECPX)
	y := firstBytes(fields, tagECPY)
	if x == nil || y == nil {
		return nil, malformed("EcP256PublicKey", "missing x or y")
	}
	return &EcP256PublicKey{X: x, Y: y}, nil
}

// Marshal encodes a GcmMetadata.
func (g *GcmMetadata) Marshal() []byte {
	var buf []byte
	buf = appendVarintField(buf, tagGMType, uint64(g.Type))
	buf = appendVarintField(buf, tagGMVersion, uint64(g.Version))
	return buf
}

// UnmarshalGcmMetadata decodes a GcmMetadata.
func UnmarshalGcmMetadata(b []byte) (*GcmMetadata, error) {
	fields, err := parseFields("GcmMetadata", b)
	if err != nil {
		return nil, err
	}
	typ, _ := firstVarint(fields, tagGMType)
	version, _ := firstVarint(fields, tagGMVersion)
	return &GcmMetadata{Type: GcmMetadataType(typ), Version: int32(version)}, nil
}

// Marshal encodes a DeviceToDeviceMessage.
func (d *DeviceToDeviceMessage) Marshal() []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, tagD2DSeq, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(uint32(d.SequenceNumber)))
	buf = appendBytesField(buf, tagD2DMsg, d.Message)
	return buf
}

// UnmarshalDeviceToDeviceMessage decodes a DeviceToDeviceMessage.
func UnmarshalDeviceToDeviceMessage(b []byte) (*DeviceToDeviceMessage, error) {
	fields, err := parseFields("DeviceToDeviceMessage", b)
	if err != nil {
		return nil, err
	}
	seq, _ := firstVarint(fields, tagD2DSeq)
	return &DeviceToDeviceMessage{
		SequenceNumber: int32(uint32(seq)),
		Message:        firstBytes(fields, tagD2DMsg),
	}, nil
}
