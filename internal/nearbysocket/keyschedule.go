package nearbysocket

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/postalsys/nbshare/internal/cryptoprim"
)

// saltD2DHex and saltKeyHex are the fixed HKDF salts the D2D key schedule is
// anchored to. They are public constants of the protocol, not secrets.
const (
	saltD2DHex = "82AA55A0D397F88346CA1CEE8D3909B95F13FA7DEB1D4AB38376B8256DA85510"
	saltKeyHex = "BF9D2A53C63616D75DB0A7165B91C1EF73E537F2427405FA23610A4BE657642E"
)

// KeySchedule holds the four derived D2D traffic keys. Both peers in a
// handshake compute an identical KeySchedule; EncryptKey/SignKey and
// DecryptKey/VerifyKey below apply the client/server role swap so each side
// picks the correct two of the four.
type KeySchedule struct {
	ClientEnc []byte
	ClientSig []byte
	ServerEnc []byte
	ServerSig []byte
}

// DeriveKeySchedule runs the full UKEY2 -> D2D key derivation chain from the
// raw ECDH shared secret and the concatenated ClientInit||ServerInit bytes
// (m1m2) both sides authenticate the handshake against.
func DeriveKeySchedule(sharedSecret, m1m2 []byte) (*KeySchedule, error) {
	dhs := sha256.Sum256(sharedSecret)

	nextSecret, err := cryptoprim.HKDFSHA256([]byte("UKEY2 v1 next"), dhs[:], m1m2, 32)
	if err != nil {
		return nil, fmt.Errorf("nearbysocket: derive next_secret: %w", err)
	}

	d2dSalt, err := hex.DecodeString(saltD2DHex)
	if err != nil {
		return nil, fmt.Errorf("nearbysocket: decode SALT_D2D: %w", err)
	}
	d2dClient, err := cryptoprim.HKDFSHA256(d2dSalt, nextSecret, []byte("client"), 32)
	if err != nil {
		return nil, fmt.Errorf("nearbysocket: derive d2d_client: %w", err)
	}
	d2dServer, err := cryptoprim.HKDFSHA256(d2dSalt, nextSecret, []byte("server"), 32)
	if err != nil {
		return nil, fmt.Errorf("nearbysocket: derive d2d_server: %w", err)
	}

	keySalt, err := hex.DecodeString(saltKeyHex)
	if err != nil {
		return nil, fmt.Errorf("nearbysocket: decode SALT_KEY: %w", err)
	}

	clientEnc, err := cryptoprim.HKDFSHA256(keySalt, d2dClient, []byte("ENC:2"), cryptoprim.AESKeySize)
	if err != nil {
		return nil, fmt.Errorf("nearbysocket: derive client_enc: %w", err)
	}
	clientSig, err := cryptoprim.HKDFSHA256(keySalt, d2dClient, []byte("SIG:1"), cryptoprim.AESKeySize)
	if err != nil {
		return nil, fmt.Errorf("nearbysocket: derive client_sig: %w", err)
	}
	serverEnc, err := cryptoprim.HKDFSHA256(keySalt, d2dServer, []byte("ENC:2"), cryptoprim.AESKeySize)
	if err != nil {
		return nil, fmt.Errorf("nearbysocket: derive server_enc: %w", err)
	}
	serverSig, err := cryptoprim.HKDFSHA256(keySalt, d2dServer, []byte("SIG:1"), cryptoprim.AESKeySize)
	if err != nil {
		return nil, fmt.Errorf("nearbysocket: derive server_sig: %w", err)
	}

	return &KeySchedule{
		ClientEnc: clientEnc,
		ClientSig: clientSig,
		ServerEnc: serverEnc,
		ServerSig: serverSig,
	}, nil
}

// AuthString derives the 32-byte auth_string from which both sides derive
// the PIN they display.
func AuthString(sharedSecret, m1m2 []byte) ([]byte, error) {
	dhs := sha256.Sum256(sharedSecret)
	authString, err := cryptoprim.HKDFSHA256([]byte("UKEY2 v1 auth"), dhs[:], m1m2, 32)
	if err != nil {
		return nil, fmt.Errorf("nearbysocket: derive auth_string: %w", err)
	}
	return authString, nil
}

// EncryptKey returns the key this side encrypts its outgoing
// DeviceToDeviceMessages with. The initiator (client) and responder
// (server) swap roles: the client encrypts under the server-labeled key
// and vice versa, so that each side's EncryptKey equals its peer's
// DecryptKey.
func (k *KeySchedule) EncryptKey(isClient bool) []byte {
	if isClient {
		return k.ServerEnc
	}
	return k.ClientEnc
}

// SignKey returns the key this side HMACs its outgoing messages with,
// subject to the same role swap as EncryptKey.
func (k *KeySchedule) SignKey(isClient bool) []byte {
	if isClient {
		return k.ServerSig
	}
	return k.ClientSig
}

// DecryptKey returns the key this side decrypts incoming messages with.
func (k *KeySchedule) DecryptKey(isClient bool) []byte {
	if isClient {
		return k.ClientEnc
	}
	return k.ServerEnc
}

// VerifyKey returns the key this side verifies incoming HMAC tags with.
func (k *KeySchedule) VerifyKey(isClient bool) []byte {
	if isClient {
		return k.ClientSig
	}
	return k.ServerSig
}
