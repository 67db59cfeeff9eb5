package wireframe

import (
	"bytes"
	"io"
	"testing"
)

func TestReadPacket_SinglePass(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 3, 'a', 'b', 'c'})
	buf.Write([]byte{0, 0, 0, 2, 'x', 'y'})

	r := NewReader(&buf)

	p1, err := r.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket() #1 error = %v", err)
	}
	if string(p1) != "abc" {
		t.Errorf("packet #1 = %q, want %q", p1, "abc")
	}

	p2, err := r.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket() #2 error = %v", err)
	}
	if string(p2) != "xy" {
		t.Errorf("packet #2 = %q, want %q", p2, "xy")
	}
}

// TestReadPacket_SplitAcrossReads feeds a two-chunk byte sequence whose
// second length prefix is split across writes: the first write ends with
// three of its four bytes, and the second write holds the last prefix byte
// and the body.
func TestReadPacket_SplitAcrossReads(t *testing.T) {
	pr, pw := io.Pipe()
	r := NewReader(pr)

	go func() {
		pw.Write([]byte{0, 0, 0, 3, 'a', 'b', 'c', 0, 0, 0})
		pw.Write([]byte{2, 'x', 'y'})
		pw.Close()
	}()

	p1, err := r.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket() #1 error = %v", err)
	}
	if string(p1) != "abc" {
		t.Errorf("packet #1 = %q, want %q", p1, "abc")
	}

	p2, err := r.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket() #2 error = %v", err)
	}
	if string(p2) != "xy" {
		t.Errorf("packet #2 = %q, want %q", p2, "xy")
	}
}

func TestReadPacket_BodySplitAcrossManyReads(t *testing.T) {
	pr, pw := io.Pipe()
	r := NewReader(pr)

	go func() {
		pw.Write([]byte{0, 0, 0, 5})
		pw.Write([]byte{'h', 'e'})
		pw.Write([]byte{'l'})
		pw.Write([]byte{'l', 'o'})
		pw.Close()
	}()

	p, err := r.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket() error = %v", err)
	}
	if string(p) != "hello" {
		t.Errorf("packet = %q, want %q", p, "hello")
	}
}

func TestReadPacket_ZeroLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0})

	r := NewReader(&buf)
	p, err := r.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket() error = %v", err)
	}
	if len(p) != 0 {
		t.Errorf("packet length = %d, want 0", len(p))
	}
}

func TestReadPacket_TooLarge(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})

	r := NewReader(&buf)
	_, err := r.ReadPacket()
	if err == nil {
		t.Fatal("ReadPacket() with oversize length should fail")
	}
}

func TestWritePacket_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	packets := [][]byte{
		[]byte("abc"),
		[]byte(""),
		[]byte("hello world"),
	}
	for _, p := range packets {
		if err := w.WritePacket(p); err != nil {
			t.Fatalf("WritePacket(%q) error = %v", p, err)
		}
	}

	r := NewReader(&buf)
	for i, want := range packets {
		got, err := r.ReadPacket()
		if err != nil {
			t.Fatalf("ReadPacket() #%d error = %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("packet #%d = %q, want %q", i, got, want)
		}
	}
}

func TestEncode_MatchesWritePacket(t *testing.T) {
	body := []byte("payload")

	encoded, err := Encode(body)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var buf bytes.Buffer
	if err := NewWriter(&buf).WritePacket(body); err != nil {
		t.Fatalf("WritePacket() error = %v", err)
	}

	if !bytes.Equal(encoded, buf.Bytes()) {
		t.Errorf("Encode() = %x, want %x", encoded, buf.Bytes())
	}
}

func TestEncode_TooLarge(t *testing.T) {
	_, err := Encode(make([]byte, MaxPacketSize+1))
	if err == nil {
		t.Fatal("Encode() with oversize body should fail")
	}
}
