package models

import (
	"time"

	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeGranted       Outcome = "granted"
	OutcomeDeniedExpired Outcome = "denied_expired"
	OutcomeDeniedNoMatch Outcome = "denied_no_match"
	// OutcomeRejected marks attempts that never reached a decision, e.g. the
	// probe image held no usable face.
	OutcomeRejected Outcome = "rejected"
)

// AccessEvent is the audit record of one verification attempt.
type AccessEvent struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	ClientID    *uuid.UUID `json:"client_id,omitempty" db:"client_id"`
	Outcome     Outcome    `json:"outcome" db:"outcome"`
	Confidence  float64    `json:"confidence" db:"confidence"`
	Reason      string     `json:"reason,omitempty" db:"reason"`
	SnapshotKey string     `json:"snapshot_key,omitempty" db:"snapshot_key"`
	DecidedAt   time.Time  `json:"decided_at" db:"decided_at"`
	// ClientName travels with live notifications only; it is not stored.
	ClientName string `json:"client_name,omitempty" db:"-"`
}

// AccessEventFilter narrows an audit log query.
type AccessEventFilter struct {
	ClientID *uuid.UUID
	Outcome  Outcome
	Limit    int
	Offset   int
}
