package codec

import (
	"math"
	"testing"
)

func TestU8P4RoundTrip(t *testing.T) {
	for v := 0.; v <= U8P4Max; v += 0.01 {
		if got := DecodeU8P4(EncodeU8P4(v)); math.Abs(got-v) > 1./16. {
			t.Fatalf("round trip of %v yielded %v", v, got)
		}
	}
}

func TestU8P4Clamp(t *testing.T) {
	for _, c := range []struct {
		in       float64
		expected byte
	}{
		{-1., 0},
		{9., 0x90},
		{15.9375, 0xFF},
		{16., 0xFF},
		{1000., 0xFF},
		{math.NaN(), 0},
	} {
		if got := EncodeU8P4(c.in); got != c.expected {
			t.Fatalf("unexpected encoding of %v: want %#x, have %#x", c.in, c.expected, got)
		}
	}
}

func TestU8P1(t *testing.T) {
	for _, c := range []struct {
		in       float64
		expected byte
	}{
		{93., 186},
		{0., 0},
		{-3., 0},
		{127.5, 255},
		{200., 255},
		{88.3, 177},
	} {
		if got := EncodeU8P1(c.in); got != c.expected {
			t.Fatalf("unexpected encoding of %v: want %d, have %d", c.in, c.expected, got)
		}
	}
	if got := DecodeU8P1(186); got != 93. {
		t.Fatalf("unexpected decoding: %v", got)
	}
}

func TestF8_1_7(t *testing.T) {
	for _, c := range []struct {
		in       float64
		expected byte
		decoded  float64
	}{
		{0., 0, 0.},
		{2.5, 25, 2.5},
		{12.7, 127, 12.7},
		{12.75, 0x80 | 13, 13.},
		{25., 0x80 | 25, 25.},
		{127., 0xFF, 127.},
		{500., 0xFF, 127.},
		{-4., 0, 0.},
	} {
		got := EncodeF8_1_7(c.in)
		if got != c.expected {
			t.Fatalf("unexpected encoding of %v: want %#x, have %#x", c.in, c.expected, got)
		}
		if dec := DecodeF8_1_7(got); math.Abs(dec-c.decoded) > 1e-9 {
			t.Fatalf("unexpected decoding of %#x: want %v, have %v", got, c.decoded, dec)
		}
	}
}

func TestU10P0(t *testing.T) {
	for _, c := range []struct {
		in       float64
		expected [2]byte
	}{
		{0., [2]byte{0, 0}},
		{36.4, [2]byte{0, 36}},
		{500., [2]byte{0x01, 0xF4}},
		{1023., [2]byte{0x03, 0xFF}},
		{5000., [2]byte{0x03, 0xFF}},
		{-10., [2]byte{0, 0}},
	} {
		got := EncodeU10P0(c.in)
		if got != c.expected {
			t.Fatalf("unexpected encoding of %v: want %v, have %v", c.in, c.expected, got)
		}
	}
	if got := DecodeU10P0([2]byte{0x01, 0xF4}); got != 500. {
		t.Fatalf("unexpected decoding: %v", got)
	}
}

func TestXOR(t *testing.T) {
	if got := XOR(0x03, 0x0F, 0x00, 0x00, 0x00, 0x00); got != 0x0C {
		t.Fatalf("unexpected checksum: %#x", got)
	}
	if got := XOR(); got != 0 {
		t.Fatalf("unexpected checksum of empty input: %#x", got)
	}
}
