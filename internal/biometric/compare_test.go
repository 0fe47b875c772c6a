package biometric

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitSignature(dim, hot int) Signature {
	s := make(Signature, dim)
	s[hot] = 1
	return s
}

func TestCompareSelfIsPerfectMatch(t *testing.T) {
	s := unitSignature(DefaultDim, 3)
	for _, tol := range []float64{0, 0.45, 0.6} {
		match, conf, err := Compare(s, s, tol)
		require.NoError(t, err)
		assert.True(t, match, "tolerance %v: expected self match", tol)
		assert.Equal(t, 100.0, conf, "tolerance %v", tol)
	}
}

func TestDistanceEuclidean(t *testing.T) {
	d, err := Distance(Signature{0, 0, 0}, Signature{3, 4, 0})
	require.NoError(t, err)
	assert.Equal(t, 5.0, d)
}

func TestConfidenceMonotonicAndClamped(t *testing.T) {
	prev := math.Inf(1)
	for d := 0.0; d <= 3.0; d += 0.05 {
		c := Confidence(d)
		require.LessOrEqual(t, c, prev, "confidence increased at distance %v", d)
		require.GreaterOrEqual(t, c, 0.0)
		require.LessOrEqual(t, c, 100.0)
		prev = c
	}
	assert.Zero(t, Confidence(1.7), "expected clamp to 0 beyond distance 1")
}

func TestCompareToleranceBoundary(t *testing.T) {
	a := Signature{0, 0}
	match, conf, err := Compare(a, Signature{0.45, 0}, 0.45)
	require.NoError(t, err)
	assert.True(t, match, "distance equal to tolerance should match")
	assert.InDelta(t, 55.0, conf, 1e-9)

	match, _, err = Compare(a, Signature{0.46, 0}, 0.45)
	require.NoError(t, err)
	assert.False(t, match, "distance above tolerance should not match")
}

func TestCompareDimensionMismatch(t *testing.T) {
	_, _, err := Compare(make(Signature, 128), make(Signature, 64), DefaultTolerance)
	assert.ErrorIs(t, err, ErrComparison)
}

func TestDecodeRejectsCorruptBytes(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"not multiple of 8", []byte{1, 2, 3}},
		{"nan", Signature{math.NaN()}.Bytes()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw)
			assert.ErrorIs(t, err, ErrComparison)
		})
	}
}

func TestDecodeRestoresEncodedValues(t *testing.T) {
	s := Signature{0.125, -1.5, 3.25e-3}
	got, err := Decode(s.Bytes())
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestReasonOf(t *testing.T) {
	assert.Equal(t, ReasonMultipleFaces, ReasonOf(Errorf(ReasonMultipleFaces, "two faces")))
	assert.Equal(t, ReasonProcessing, ReasonOf(errors.New("boom")), "unclassified error should be processing")

	wrapped := Wrap(ReasonProcessing, "decode image", errors.New("bad header"))
	assert.ErrorIs(t, wrapped, ErrProcessing)
	assert.NotErrorIs(t, wrapped, ErrNoFaceDetected, "processing error must not match no-face sentinel")
}
