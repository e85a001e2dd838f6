package embedding

import (
	"bytes"
	"math"
	"testing"
)

func TestCodec_RoundTrip(t *testing.T) {
	vectors := []Vector{
		{1},
		{0.25, -0.5, 0, 1e-30},
		{-math.MaxFloat32, float32(math.Copysign(0, -1)), math.MaxFloat32},
	}
	for _, v := range vectors {
		got, ok := Decode(Encode(v))
		if !ok {
			t.Fatalf("Decode(Encode(%v)) reported absent", v)
		}
		if len(got) != len(v) {
			t.Fatalf("len = %d, want %d", len(got), len(v))
		}
		for i := range v {
			if math.Float32bits(got[i]) != math.Float32bits(v[i]) {
				t.Errorf("component %d: got %v, want %v", i, got[i], v[i])
			}
		}
	}
}

func TestDecode_NonFiniteIsAbsent(t *testing.T) {
	tests := []struct {
		name string
		v    Vector
	}{
		{"nan", Vector{1, math.Float32frombits(0x7fc00001)}},
		{"+inf", Vector{float32(math.Inf(1)), 0}},
		{"-inf", Vector{0, 0, float32(math.Inf(-1))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob := Encode(tt.v)
			if len(blob) != codecHeaderSize+4*len(tt.v) {
				t.Fatalf("Encode wrote %d bytes", len(blob))
			}
			if got, ok := Decode(blob); ok || got != nil {
				t.Errorf("Decode = %v, %v; want absent", got, ok)
			}
		})
	}
}

func TestEncode_Deterministic(t *testing.T) {
	v := Vector{0.1, 0.2, 0.3}
	if !bytes.Equal(Encode(v), Encode(v)) {
		t.Error("Encode is not deterministic")
	}
	if Encode(nil) != nil || Encode(Vector{}) != nil {
		t.Error("empty vector should encode to nil")
	}
}

func TestDecode_Malformed(t *testing.T) {
	valid := Encode(Vector{1, 2, 3})
	tests := []struct {
		name string
		blob []byte
	}{
		{"nil", nil},
		{"empty", []byte{}},
		{"header only", valid[:codecHeaderSize]},
		{"truncated", valid[:len(valid)-1]},
		{"trailing bytes", append(append([]byte{}, valid...), 0)},
		{"unknown version", append([]byte{0x02}, valid[1:]...)},
		{"zero count", []byte{codecVersion, 0, 0, 0, 0}},
		{"huge count", []byte{codecVersion, 0xff, 0xff, 0xff, 0xff, 0, 0, 0, 0}},
		{"pickle-like garbage", []byte("\x80\x04\x95\x00")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := Decode(tt.blob)
			if ok || v != nil {
				t.Errorf("Decode = %v, %v; want absent", v, ok)
			}
		})
	}
}
