// Package endpointinfo packs and unpacks the mDNS TXT "n" record describing
// a device's name, visibility and type, and builds the pure byte values an
// external mDNS collaborator advertises them under.
package endpointinfo

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/unicode/norm"
)

const (
	// RandomBytesSize is the width of the random blob in an EndpointInfo.
	RandomBytesSize = 16

	// MaxNameBytes is the largest UTF-8 device name that fits the
	// single-byte length prefix.
	MaxNameBytes = 255

	// serviceType is the Nearby Connections mDNS service type.
	serviceType = "_FC9F5ED42C8A._tcp"
)

// ErrTruncated is returned when there are too few bytes to decode a field.
var ErrTruncated = errors.New("endpointinfo: input truncated")

// EndpointInfo describes a device for advertisement and is exchanged in the
// ConnectionRequest offline frame.
type EndpointInfo struct {
	Version     uint8 // 3 bits
	Visible     bool  // bit 4: true when the peer should be discoverable
	DeviceType  uint8 // 3 bits, opaque taxonomy (no documented mapping beyond "3 = phone/laptop")
	Random      [RandomBytesSize]byte
	DeviceName  string
}

// NewEndpointInfo builds a local EndpointInfo with fresh random bytes.
func NewEndpointInfo(version, deviceType uint8, visible bool, deviceName string) (*EndpointInfo, error) {
	e := &EndpointInfo{
		Version:    version & 0x07,
		Visible:    visible,
		DeviceType: deviceType & 0x07,
		DeviceName: normalizeDeviceName(deviceName),
	}
	if _, err := io.ReadFull(rand.Reader, e.Random[:]); err != nil {
		return nil, fmt.Errorf("endpointinfo: random bytes: %w", err)
	}
	return e, nil
}

// normalizeDeviceName applies Unicode NFC normalization to the device name,
// guarding against name strings that are byte-distinct but visually
// identical.
func normalizeDeviceName(name string) string {
	return norm.NFC.String(name)
}

// Encode serializes the EndpointInfo to its wire byte layout:
//
//	byte 0: bits 7..5 version, bit 4 hidden (1 = not visible), bits 3..1 device type, bit 0 reserved
//	bytes 1..16: random
//	byte 17: device name length
//	bytes 18..: UTF-8 device name
func (e *EndpointInfo) Encode() ([]byte, error) {
	name := []byte(e.DeviceName)
	if len(name) > MaxNameBytes {
		return nil, fmt.Errorf("endpointinfo: device name too long: %d bytes (max %d)", len(name), MaxNameBytes)
	}

	buf := make([]byte, 1+RandomBytesSize+1+len(name))

	hidden := uint8(0)
	if !e.Visible {
		hidden = 1
	}
	buf[0] = (e.Version&0x07)<<5 | (hidden&0x01)<<4 | (e.DeviceType&0x07)<<1

	copy(buf[1:1+RandomBytesSize], e.Random[:])
	buf[1+RandomBytesSize] = uint8(len(name))
	copy(buf[1+RandomBytesSize+1:], name)

	return buf, nil
}

// Decode parses an EndpointInfo from its wire byte layout. Insufficient
// input yields ErrTruncated rather than a partially populated value.
func Decode(b []byte) (*EndpointInfo, error) {
	if len(b) < 1+RandomBytesSize+1 {
		return nil, ErrTruncated
	}

	e := &EndpointInfo{
		Version:    (b[0] >> 5) & 0x07,
		Visible:    (b[0]>>4)&0x01 == 0,
		DeviceType: (b[0] >> 1) & 0x07,
	}
	copy(e.Random[:], b[1:1+RandomBytesSize])

	nameLen := int(b[1+RandomBytesSize])
	nameStart := 1 + RandomBytesSize + 1
	if len(b) < nameStart+nameLen {
		return nil, ErrTruncated
	}
	e.DeviceName = string(b[nameStart : nameStart+nameLen])

	return e, nil
}

// ServiceType returns the Nearby Connections mDNS service type string.
func ServiceType() string {
	return serviceType
}

// BuildServiceInstanceName builds the base64-url (no padding) service
// instance name advertised over mDNS: 0x23 || 4-byte ASCII-letter random
// endpoint id || 0xFC 0x9F 0x5E || a trailing reserved zero byte, for a
// total of 9 bytes before encoding.
func BuildServiceInstanceName(endpointID [4]byte) string {
	blob := make([]byte, 9)
	blob[0] = 0x23
	copy(blob[1:5], endpointID[:])
	blob[5] = 0xFC
	blob[6] = 0x9F
	blob[7] = 0x5E
	blob[8] = 0x00
	return base64.RawURLEncoding.EncodeToString(blob)
}

// NewRandomEndpointID generates a random 4-byte ASCII-letter endpoint id
// suitable for BuildServiceInstanceName.
func NewRandomEndpointID() ([4]byte, error) {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	var raw [4]byte
	if _, err := io.ReadFull(rand.Reader, raw[:]); err != nil {
		return raw, fmt.Errorf("endpointinfo: random endpoint id: %w", err)
	}
	var id [4]byte
	for i, b := range raw {
		id[i] = letters[int(b)%len(letters)]
	}
	return id, nil
}

// EncodeTXTValue returns the base64-url (no padding) TXT record "n" value
// for an EndpointInfo.
func EncodeTXTValue(e *EndpointInfo) (string, error) {
	b, err := e.Encode()
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeTXTValue parses the base64-url (no padding) TXT record "n" value
// into an EndpointInfo.
func DecodeTXTValue(value string) (*EndpointInfo, error) {
	b, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("endpointinfo: decode TXT value: %w", err)
	}
	return Decode(b)
}
