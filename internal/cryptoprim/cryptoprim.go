// Package cryptoprim provides the cryptographic primitives the UKEY2
// handshake and secure-message envelope are built from: ECDH on P-256,
// HKDF-SHA256, AES-256-CBC with PKCS#7 padding, and HMAC-SHA256.
package cryptoprim

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/crypto/hkdf"
)

const (
	// CoordSize is the zero-padded width of a P-256 affine coordinate.
	CoordSize = 32

	// AESKeySize is the key size required by AES-256-CBC.
	AESKeySize = 32

	// AESBlockSize is the CBC block size (and IV size) for AES.
	AESBlockSize = aes.BlockSize

	// HMACSize is the output size of HMAC-SHA256.
	HMACSize = sha256.Size
)

var (
	// ErrInvalidPadding is returned when PKCS#7 padding fails to validate.
	ErrInvalidPadding = errors.New("cryptoprim: invalid PKCS#7 padding")

	// ErrCiphertextLength is returned when ciphertext is not a multiple of the block size.
	ErrCiphertextLength = errors.New("cryptoprim: ciphertext length is not a multiple of the block size")
)

// RandomBytes returns n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("random bytes: %w", err)
	}
	return b, nil
}

// P256Keypair holds an ECDH key pair on the P-256 curve.
type P256Keypair struct {
	Private *ecdh.PrivateKey
	X, Y    *big.Int
}

// GenerateP256Keypair generates a P-256 ECDH key pair whose affine X and Y
// both encode as non-negative signed big-endian integers. Google's UKEY2
// peers validate the sign of these coordinates, so a keypair that would
// encode negative is discarded and regenerated.
func GenerateP256Keypair() (*P256Keypair, error) {
	curve := ecdh.P256()
	for {
		priv, err := curve.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate P-256 key: %w", err)
		}
		x, y, err := decodeUncompressedPoint(priv.PublicKey().Bytes())
		if err != nil {
			return nil, err
		}
		if isNonNegativeSigned(x, CoordSize) && isNonNegativeSigned(y, CoordSize) {
			return &P256Keypair{Private: priv, X: x, Y: y}, nil
		}
		// Sign bit set in at least one coordinate: regenerate.
	}
}

// decodeUncompressedPoint splits an uncompressed SEC1 point (0x04 || X || Y)
// into its two raw big-endian coordinates.
func decodeUncompressedPoint(b []byte) (x, y *big.Int, err error) {
	if len(b) != 1+2*CoordSize || b[0] != 0x04 {
		return nil, nil, fmt.Errorf("cryptoprim: malformed uncompressed point")
	}
	x = new(big.Int).SetBytes(b[1 : 1+CoordSize])
	y = new(big.Int).SetBytes(b[1+CoordSize:])
	return x, y, nil
}

// isNonNegativeSigned reports whether a value's fixed-width, zero-padded
// big-endian encoding would be interpreted as non-negative by a reader that
// treats the encoding as a signed two's-complement integer (i.e. the high
// bit of the first byte is clear).
func isNonNegativeSigned(v *big.Int, width int) bool {
	b := PublicXYBytes(v, width)
	return b[0]&0x80 == 0
}

// PublicXYBytes zero-pads v on the left to width bytes, as a signed
// big-endian integer encoding (the caller is responsible for verifying the
// sign bit separately when that matters).
func PublicXYBytes(v *big.Int, width int) []byte {
	raw := v.Bytes()
	if len(raw) >= width {
		return raw[len(raw)-width:]
	}
	out := make([]byte, width)
	copy(out[width-len(raw):], raw)
	return out
}

// PublicXY returns the keypair's affine X and Y as signed big-endian
// integers, zero-padded to CoordSize bytes.
func (kp *P256Keypair) PublicXY() (x, y []byte) {
	return PublicXYBytes(kp.X, CoordSize), PublicXYBytes(kp.Y, CoordSize)
}

// AgreeECDH derives the raw ECDH shared secret Z from our private key and
// the peer's affine coordinates.
func AgreeECDH(ours *ecdh.PrivateKey, peerX, peerY []byte) ([]byte, error) {
	point := make([]byte, 1+2*CoordSize)
	point[0] = 0x04
	if len(peerX) > CoordSize || len(peerY) > CoordSize {
		return nil, fmt.Errorf("cryptoprim: peer coordinate too large")
	}
	copy(point[1+CoordSize-len(peerX):1+CoordSize], peerX)
	copy(point[1+2*CoordSize-len(peerY):], peerY)

	peerPub, err := ecdh.P256().NewPublicKey(point)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: invalid peer public key: %w", err)
	}

	secret, err := ours.ECDH(peerPub)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: ECDH agreement failed: %w", err)
	}
	return secret, nil
}

// HKDFSHA256 performs RFC 5869 extract-and-expand with SHA-256 and returns
// length bytes of output key material.
func HKDFSHA256(salt, ikm, info []byte, length int) ([]byte, error) {
	reader := hkdf.New(sha256.New, ikm, salt, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return out, nil
}

// pkcs7Pad appends PKCS#7 padding to data so its length becomes a multiple
// of blockSize (1..blockSize bytes of padding are always added).
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

// pkcs7Unpad validates and strips PKCS#7 padding.
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidPadding
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, ErrInvalidPadding
	}
	if !bytes.Equal(data[len(data)-padLen:], bytes.Repeat([]byte{byte(padLen)}, padLen)) {
		return nil, ErrInvalidPadding
	}
	return data[:len(data)-padLen], nil
}

// AESCBCEncrypt encrypts data with AES-256-CBC under key/iv, PKCS#7-padding
// the plaintext first. key must be 32 bytes, iv must be 16 bytes.
func AESCBCEncrypt(data, key, iv []byte) ([]byte, error) {
	if len(key) != AESKeySize {
		return nil, fmt.Errorf("cryptoprim: AES-256 key must be %d bytes, got %d", AESKeySize, len(key))
	}
	if len(iv) != AESBlockSize {
		return nil, fmt.Errorf("cryptoprim: AES IV must be %d bytes, got %d", AESBlockSize, len(iv))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: new AES cipher: %w", err)
	}

	padded := pkcs7Pad(data, AESBlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

// AESCBCDecrypt decrypts ciphertext with AES-256-CBC under key/iv and
// strips PKCS#7 padding.
func AESCBCDecrypt(ciphertext, key, iv []byte) ([]byte, error) {
	if len(key) != AESKeySize {
		return nil, fmt.Errorf("cryptoprim: AES-256 key must be %d bytes, got %d", AESKeySize, len(key))
	}
	if len(iv) != AESBlockSize {
		return nil, fmt.Errorf("cryptoprim: AES IV must be %d bytes, got %d", AESBlockSize, len(iv))
	}
	if len(ciphertext)%AESBlockSize != 0 {
		return nil, ErrCiphertextLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: new AES cipher: %w", err)
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	return pkcs7Unpad(padded, AESBlockSize)
}

// HMACSHA256 computes the HMAC-SHA256 tag of data under key.
func HMACSHA256(data, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// VerifyHMACSHA256 reports whether tag is the valid HMAC-SHA256 of data
// under key, using a constant-time comparison.
func VerifyHMACSHA256(data, key, tag []byte) bool {
	expected := HMACSHA256(data, key)
	return hmac.Equal(expected, tag)
}
