package endpointinfo

import (
	"testing"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	cases := []struct {
		name       string
		version    uint8
		deviceType uint8
		visible    bool
		deviceName string
	}{
		{"visible laptop", 1, 3, true, "My Laptop"},
		{"hidden phone", 2, 1, false, "x"},
		{"max name length", 1, 0, true, string(make([]byte, MaxNameBytes))},
		{"unicode name", 1, 2, true, "café ☃"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, err := NewEndpointInfo(tc.version, tc.deviceType, tc.visible, tc.deviceName)
			if err != nil {
				t.Fatalf("NewEndpointInfo() error = %v", err)
			}

			encoded, err := e.Encode()
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			decoded, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}

			if decoded.Version != e.Version {
				t.Errorf("Version = %d, want %d", decoded.Version, e.Version)
			}
			if decoded.Visible != e.Visible {
				t.Errorf("Visible = %v, want %v", decoded.Visible, e.Visible)
			}
			if decoded.DeviceType != e.DeviceType {
				t.Errorf("DeviceType = %d, want %d", decoded.DeviceType, e.DeviceType)
			}
			if decoded.Random != e.Random {
				t.Errorf("Random = %x, want %x", decoded.Random, e.Random)
			}
			if decoded.DeviceName != e.DeviceName {
				t.Errorf("DeviceName = %q, want %q", decoded.DeviceName, e.DeviceName)
			}
		})
	}
}

func TestEncode_NameTooLong(t *testing.T) {
	e, _ := NewEndpointInfo(1, 1, true, "")
	e.DeviceName = string(make([]byte, MaxNameBytes+1))
	if _, err := e.Encode(); err == nil {
		t.Error("Encode() with oversize device name should fail")
	}
}

func TestDecode_Truncated(t *testing.T) {
	cases := [][]byte{
		nil,
		{0x20},
		make([]byte, 1+RandomBytesSize),        // missing length byte
		append(make([]byte, 1+RandomBytesSize), 5), // length byte says 5 but no name bytes follow
	}
	for i, b := range cases {
		if _, err := Decode(b); err == nil {
			t.Errorf("case %d: Decode() should fail on truncated input", i)
		}
	}
}

func TestVisibilityBitEncoding(t *testing.T) {
	visible, _ := NewEndpointInfo(1, 1, true, "a")
	hidden, _ := NewEndpointInfo(1, 1, false, "a")

	visibleBytes, _ := visible.Encode()
	hiddenBytes, _ := hidden.Encode()

	if visibleBytes[0]&0x10 != 0 {
		t.Error("visible record should have hidden bit clear")
	}
	if hiddenBytes[0]&0x10 == 0 {
		t.Error("hidden record should have hidden bit set")
	}
}

func TestTXTValue_RoundTrip(t *testing.T) {
	e, _ := NewEndpointInfo(1, 3, true, "Pixel 9")

	value, err := EncodeTXTValue(e)
	if err != nil {
		t.Fatalf("EncodeTXTValue() error = %v", err)
	}

	decoded, err := DecodeTXTValue(value)
	if err != nil {
		t.Fatalf("DecodeTXTValue() error = %v", err)
	}

	if decoded.DeviceName != e.DeviceName {
		t.Errorf("DeviceName = %q, want %q", decoded.DeviceName, e.DeviceName)
	}
}

func TestBuildServiceInstanceName_Stable(t *testing.T) {
	id, err := NewRandomEndpointID()
	if err != nil {
		t.Fatalf("NewRandomEndpointID() error = %v", err)
	}

	name1 := BuildServiceInstanceName(id)
	name2 := BuildServiceInstanceName(id)
	if name1 != name2 {
		t.Error("BuildServiceInstanceName should be deterministic for the same id")
	}

	for _, r := range name1 {
		if r == '+' || r == '/' || r == '=' {
			t.Errorf("service instance name contains non-URL-safe or padding character: %q", name1)
		}
	}
}

func TestServiceType(t *testing.T) {
	if ServiceType() != "_FC9F5ED42C8A._tcp" {
		t.Errorf("ServiceType() = %q", ServiceType())
	}
}
