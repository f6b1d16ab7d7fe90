package canbus

import (
	"bytes"
	"testing"
)

func TestFrame_Validate_Marshal_Unmarshal_String(t *testing.T) {
	cases := []struct {
		name    string
		frame   Frame
		wantStr string
	}{
		{
			name:    "standard frame with data",
			frame:   MustFrame(0x123, []byte{0xDE, 0xAD}),
			wantStr: "123 [2] DE AD",
		},
		{
			name:    "extended RTR, zero length",
			frame:   Frame{ID: 0x1ABCDEFF, Extended: true, RTR: true, Len: 0},
			wantStr: "1ABCDEFF [0] RTR",
		},
		{
			name:    "vesc pong",
			frame:   Frame{ID: 0x120A, Extended: true},
			wantStr: "0000120A [0]",
		},
	}

	for _, tc := range cases {
		if err := tc.frame.Validate(); err != nil {
			t.Fatalf("%s: Validate() error = %v", tc.name, err)
		}
		b, err := tc.frame.MarshalBinary()
		if err != nil {
			t.Fatalf("%s: MarshalBinary() error = %v", tc.name, err)
		}
		var g Frame
		if err := g.UnmarshalBinary(b); err != nil {
			t.Fatalf("%s: UnmarshalBinary() error = %v", tc.name, err)
		}
		if g != tc.frame {
			t.Fatalf("%s: roundtrip mismatch: got %+v want %+v", tc.name, g, tc.frame)
		}
		if got := g.String(); got != tc.wantStr {
			t.Fatalf("%s: String() = %q, want %q", tc.name, got, tc.wantStr)
		}
	}
}

func TestFrame_Invalid(t *testing.T) {
	if err := (Frame{ID: 0x800}).Validate(); err != ErrInvalidID {
		t.Fatalf("standard id 0x800: got %v", err)
	}
	if err := (Frame{ID: 0x20000000, Extended: true}).Validate(); err != ErrInvalidID {
		t.Fatalf("extended id 0x20000000: got %v", err)
	}
	if err := (Frame{Len: 9}).Validate(); err != ErrInvalidLen {
		t.Fatalf("len 9: got %v", err)
	}
	if _, err := (Frame{Len: 9}).MarshalBinary(); err == nil {
		t.Fatalf("marshal should reject len 9")
	}
	var f Frame
	if err := f.UnmarshalBinary(make([]byte, 8)); err == nil {
		t.Fatalf("unmarshal should reject short buffer")
	}
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("MustFrame should panic for len>8")
			}
		}()
		_ = MustFrame(0x123, make([]byte, 9))
	}()
}

func TestNewExtended(t *testing.T) {
	f, err := NewExtended(0xFFFFFFFF, []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("NewExtended: %v", err)
	}
	if !f.Extended || f.ID != MaxExtID || f.Len != 3 {
		t.Fatalf("unexpected frame %+v", f)
	}
	if !bytes.Equal(f.Payload(), []byte{1, 2, 3}) {
		t.Fatalf("payload = %x", f.Payload())
	}
	if _, err := NewExtended(1, make([]byte, 9)); err != ErrInvalidLen {
		t.Fatalf("expected ErrInvalidLen, got %v", err)
	}
}

func TestMarshalBinaryFlags(t *testing.T) {
	f := Frame{ID: 0x0838, Extended: true, Len: 4, Data: [8]byte{1, 2, 3, 4}}
	b, err := f.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := []byte{0x38, 0x08, 0x00, 0x80, 4, 0, 0, 0, 1, 2, 3, 4, 0, 0, 0, 0}
	if !bytes.Equal(b, want) {
		t.Fatalf("layout = % X, want % X", b, want)
	}
}
