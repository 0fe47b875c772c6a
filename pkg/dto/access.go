package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/models"
)

type VerifyAccessRequest struct {
	Image string `json:"image" binding:"required"`
}

type VerifyAccessResponse struct {
	AccessGranted bool           `json:"access_granted"`
	Outcome       models.Outcome `json:"outcome"`
	Message       string         `json:"message"`
	Client        *AccessClient  `json:"client,omitempty"`
	Confidence    float64        `json:"confidence"`
	EventID       uuid.UUID      `json:"event_id"`
}

// AccessClient is the identity disclosed with a decision.
type AccessClient struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	ExpirationDate string    `json:"expiration_date"`
}

type SearchRequest struct {
	Image string `json:"image" binding:"required"`
	Limit int    `json:"limit"`
}

type SearchResult struct {
	ClientID   uuid.UUID `json:"client_id"`
	Name       string    `json:"name"`
	Distance   float64   `json:"distance"`
	Confidence float64   `json:"confidence"`
}

type AccessEventResponse struct {
	ID          uuid.UUID      `json:"id"`
	ClientID    *uuid.UUID     `json:"client_id,omitempty"`
	ClientName  string         `json:"client_name,omitempty"`
	Outcome     models.Outcome `json:"outcome"`
	Confidence  float64        `json:"confidence"`
	Reason      string         `json:"reason,omitempty"`
	SnapshotURL string         `json:"snapshot_url,omitempty"`
	DecidedAt   string         `json:"decided_at"`
}

func NewAccessEventResponse(ev *models.AccessEvent) AccessEventResponse {
	resp := AccessEventResponse{
		ID:         ev.ID,
		ClientID:   ev.ClientID,
		ClientName: ev.ClientName,
		Outcome:    ev.Outcome,
		Confidence: ev.Confidence,
		Reason:     ev.Reason,
		DecidedAt:  ev.DecidedAt.Format(time.RFC3339),
	}
	if ev.SnapshotKey != "" {
		resp.SnapshotURL = "/api/access-events/" + ev.ID.String() + "/snapshot"
	}
	return resp
}

type AccessEventList struct {
	Events []AccessEventResponse `json:"events"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// WSEvent is pushed to websocket subscribers.
type WSEvent struct {
	Type string              `json:"type"`
	Data AccessEventResponse `json:"data"`
}
