package biometric

import "math"

// DefaultTolerance is the maximum Euclidean distance accepted as a match.
const DefaultTolerance = 0.45

// Distance returns the Euclidean distance between two signatures of equal length.
func Distance(a, b Signature) (float64, error) {
	if len(a) != len(b) {
		return 0, Errorf(ReasonComparison, "signature dimension mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, Errorf(ReasonComparison, "empty signature")
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Confidence maps a distance to a display percentage in [0, 100].
// It is not a calibrated probability.
func Confidence(distance float64) float64 {
	return math.Max(0, (1-distance)*100)
}

// Compare reports whether probe matches known within tolerance along with the
// confidence score.
func Compare(known, probe Signature, tolerance float64) (bool, float64, error) {
	d, err := Distance(known, probe)
	if err != nil {
		return false, 0, err
	}
	return d <= tolerance, Confidence(d), nil
}

// CompareRaw decodes a stored signature and compares it against probe.
func CompareRaw(known []byte, probe Signature, tolerance float64) (bool, float64, error) {
	sig, err := Decode(known)
	if err != nil {
		return false, 0, err
	}
	return Compare(sig, probe, tolerance)
}
