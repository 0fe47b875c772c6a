package biometric

import (
	"encoding/binary"
	"math"
)

// DefaultDim is the signature length produced by the reference embedding model.
const DefaultDim = 128

// Signature is a fixed-length face embedding. Treat it as immutable once produced.
type Signature []float64

// Bytes encodes the signature as little-endian float64 values, 8 bytes per dimension.
func (s Signature) Bytes() []byte {
	buf := make([]byte, 8*len(s))
	for i, v := range s {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// Float32 returns a float32 copy, the representation used by vector indexes.
func (s Signature) Float32() []float32 {
	out := make([]float32, len(s))
	for i, v := range s {
		out[i] = float32(v)
	}
	return out
}

// FromFloat32 widens a model output into a Signature.
func FromFloat32(v []float32) Signature {
	out := make(Signature, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// Decode parses raw stored bytes. Corrupt data yields a ComparisonError.
func Decode(raw []byte) (Signature, error) {
	if len(raw) == 0 || len(raw)%8 != 0 {
		return nil, Errorf(ReasonComparison, "corrupt signature: %d bytes is not a positive multiple of 8", len(raw))
	}
	s := make(Signature, len(raw)/8)
	for i := range s {
		v := math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, Errorf(ReasonComparison, "corrupt signature: non-finite value at dimension %d", i)
		}
		s[i] = v
	}
	return s, nil
}
