package biometric

import (
	"errors"
	"fmt"
)

// Reason classifies why a biometric operation failed.
type Reason string

const (
	ReasonNoFace        Reason = "no_face_detected"
	ReasonMultipleFaces Reason = "multiple_faces_detected"
	ReasonProcessing    Reason = "processing_error"
	ReasonComparison    Reason = "comparison_error"
	ReasonNotFound      Reason = "not_found"
	ReasonNoRoster      Reason = "no_roster_available"
)

// Error is a classified failure. Two errors are considered equal by errors.Is
// when their reasons match, so callers can test against the sentinels below.
type Error struct {
	Reason Reason
	Detail string
	Err    error
}

var (
	ErrNoFaceDetected        = &Error{Reason: ReasonNoFace, Detail: "no face detected in image"}
	ErrMultipleFacesDetected = &Error{Reason: ReasonMultipleFaces, Detail: "multiple faces detected, use an image with a single person"}
	ErrProcessing            = &Error{Reason: ReasonProcessing, Detail: "error processing image"}
	ErrComparison            = &Error{Reason: ReasonComparison, Detail: "error comparing faces"}
	ErrNotFound              = &Error{Reason: ReasonNotFound, Detail: "client not found"}
	ErrNoRosterAvailable     = &Error{Reason: ReasonNoRoster, Detail: "signature roster unavailable"}
)

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.Err)
	}
	return e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason
}

// Errorf builds a classified error with a formatted detail message.
func Errorf(reason Reason, format string, args ...any) *Error {
	return &Error{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under reason. A nil err yields nil.
func Wrap(reason Reason, detail string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Reason: reason, Detail: detail, Err: err}
}

// ReasonOf extracts the classification of err, falling back to
// ReasonProcessing for unclassified errors.
func ReasonOf(err error) Reason {
	var be *Error
	if errors.As(err, &be) {
		return be.Reason
	}
	return ReasonProcessing
}
