package embedding

import (
	"encoding/binary"
	"math"
)

// Blob layout: version byte, uint32 LE component count, count float32 LE values.
const (
	codecVersion    byte = 0x01
	codecHeaderSize      = 5
)

// Encode serializes v for storage. The encoding is deterministic and keeps
// every float32 bit pattern. An empty vector encodes to nil.
func Encode(v Vector) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, codecHeaderSize+4*len(v))
	buf[0] = codecVersion
	binary.LittleEndian.PutUint32(buf[1:codecHeaderSize], uint32(len(v)))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[codecHeaderSize+4*i:], math.Float32bits(f))
	}
	return buf
}

// Decode restores a vector written by Encode. Nil, truncated, oversized or
// otherwise malformed blobs report ok=false, as do vectors holding a NaN or an
// infinity; Decode never panics.
func Decode(blob []byte) (v Vector, ok bool) {
	if len(blob) < codecHeaderSize || blob[0] != codecVersion {
		return nil, false
	}
	n := int(binary.LittleEndian.Uint32(blob[1:codecHeaderSize]))
	if n == 0 || len(blob)-codecHeaderSize != 4*n {
		return nil, false
	}
	v = make(Vector, n)
	for i := range v {
		f := math.Float32frombits(binary.LittleEndian.Uint32(blob[codecHeaderSize+4*i:]))
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return nil, false
		}
		v[i] = f
	}
	return v, true
}
