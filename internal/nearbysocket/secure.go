package nearbysocket

import (
	"errors"
	"fmt"

	"github.com/postalsys/nbshare/internal/cryptoprim"
	"github.com/postalsys/nbshare/internal/wire"
)

// ErrSequenceGap is returned when an incoming secure message's sequence
// number is not exactly one greater than the last one accepted. Per the
// strict-enforcement resolution of this protocol's sequencing invariant, a
// gap is a fatal protocol error, not something to tolerate or resync.
var ErrSequenceGap = errors.New("nearbysocket: secure message sequence gap")

// ErrBadSignature is returned when a SecureMessage's HMAC tag does not
// verify under the expected key.
var ErrBadSignature = errors.New("nearbysocket: secure message signature verification failed")

// secureChannel encrypts and decrypts DeviceToDeviceMessages under the D2D
// key schedule, enforcing strictly monotonic sequence numbers in each
// direction independently.
type secureChannel struct {
	keys     *KeySchedule
	isClient bool

	sendSeq int32
	recvSeq int32
}

func newSecureChannel(keys *KeySchedule, isClient bool) *secureChannel {
	return &secureChannel{keys: keys, isClient: isClient}
}

// Seal encrypts message as the next outgoing DeviceToDeviceMessage and
// returns the serialized SecureMessage ready to pass to the framing writer.
func (c *secureChannel) Seal(message []byte) ([]byte, error) {
	c.sendSeq++

	d2d := &wire.DeviceToDeviceMessage{SequenceNumber: c.sendSeq, Message: message}
	plaintext := d2d.Marshal()

	iv, err := cryptoprim.RandomBytes(cryptoprim.AESBlockSize)
	if err != nil {
		return nil, fmt.Errorf("nearbysocket: generate IV: %w", err)
	}

	ciphertext, err := cryptoprim.AESCBCEncrypt(plaintext, c.keys.EncryptKey(c.isClient), iv)
	if err != nil {
		return nil, fmt.Errorf("nearbysocket: encrypt message: %w", err)
	}

	metadata := &wire.GcmMetadata{Type: wire.GcmMetadataDeviceToDeviceMessage, Version: 1}

	header := &wire.Header{
		SignatureScheme:  wire.SigSchemeHMACSHA256,
		EncryptionScheme: wire.EncSchemeAES256CBC,
		IV:               iv,
		PublicMetadata:   metadata.Marshal(),
	}
	hab := &wire.HeaderAndBody{Header: header, Body: ciphertext}
	habBytes := hab.Marshal()

	sig := cryptoprim.HMACSHA256(habBytes, c.keys.SignKey(c.isClient))

	sm := &wire.SecureMessage{HeaderAndBody: habBytes, Signature: sig}
	return sm.Marshal(), nil
}

// Open verifies and decrypts a serialized SecureMessage, enforcing that its
// sequence number is exactly one more than the last message accepted in
// this direction.
func (c *secureChannel) Open(raw []byte) ([]byte, error) {
	sm, err := wire.UnmarshalSecureMessage(raw)
	if err != nil {
		return nil, fmt.Errorf("nearbysocket: parse secure message: %w", err)
	}

	if !cryptoprim.VerifyHMACSHA256(sm.HeaderAndBody, c.keys.VerifyKey(c.isClient), sm.Signature) {
		return nil, ErrBadSignature
	}

	hab, err := wire.UnmarshalHeaderAndBody(sm.HeaderAndBody)
	if err != nil {
		return nil, fmt.Errorf("nearbysocket: parse header_and_body: %w", err)
	}
	if hab.Header.EncryptionScheme != wire.EncSchemeAES256CBC {
		return nil, fmt.Errorf("nearbysocket: unsupported encryption scheme %v", hab.Header.EncryptionScheme)
	}

	plaintext, err := cryptoprim.AESCBCDecrypt(hab.Body, c.keys.DecryptKey(c.isClient), hab.Header.IV)
	if err != nil {
		return nil, fmt.Errorf("nearbysocket: decrypt message: %w", err)
	}

	d2d, err := wire.UnmarshalDeviceToDeviceMessage(plaintext)
	if err != nil {
		return nil, fmt.Errorf("nearbysocket: parse device-to-device message: %w", err)
	}

	want := c.recvSeq + 1
	if d2d.SequenceNumber != want {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSequenceGap, d2d.SequenceNumber, want)
	}
	c.recvSeq = d2d.SequenceNumber

	return d2d.Message, nil
}
