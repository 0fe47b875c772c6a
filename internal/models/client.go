package models

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire and storage format of membership expiration dates.
const DateLayout = "2006-01-02"

type Client struct {
	ID             uuid.UUID `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	Email          string    `json:"email" db:"email"`
	Active         bool      `json:"active" db:"active"`
	ExpirationDate time.Time `json:"expiration_date" db:"expiration_date"`
	Signature      []byte    `json:"-" db:"face_signature"`
	FaceImageKey   string    `json:"face_image_key,omitempty" db:"face_image_key"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// HasFace reports whether a signature is enrolled.
func (c *Client) HasFace() bool {
	return len(c.Signature) > 0
}

// InGoodStanding reports whether the membership is active and not expired on
// the calendar day of now.
func (c *Client) InGoodStanding(now time.Time) bool {
	if !c.Active {
		return false
	}
	return !DateOf(c.ExpirationDate).Before(DateOf(now))
}

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD expiration date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// ClientUpdate carries the optional fields of a partial client update.
type ClientUpdate struct {
	Name           *string
	Email          *string
	ExpirationDate *time.Time
	Active         *bool
}

// RosterEntry is one match candidate: a client with a stored signature.
type RosterEntry struct {
	ClientID  uuid.UUID
	Signature []byte
}
