package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/models"
)

type CreateClientRequest struct {
	Name           string `json:"name" binding:"required"`
	Email          string `json:"email" binding:"required,email"`
	ExpirationDate string `json:"expiration_date" binding:"required"`
}

type CreateClientWithFaceRequest struct {
	Name           string `json:"name" binding:"required"`
	Email          string `json:"email" binding:"required,email"`
	ExpirationDate string `json:"expiration_date" binding:"required"`
	Image          string `json:"image" binding:"required"`
}

// UpdateClientRequest is a partial update; absent fields are left as is.
type UpdateClientRequest struct {
	Name           *string `json:"name"`
	Email          *string `json:"email" binding:"omitempty,email"`
	ExpirationDate *string `json:"expiration_date"`
	Active         *bool   `json:"active"`
}

type RegisterFaceRequest struct {
	ClientID uuid.UUID `json:"client_id" binding:"required"`
	Image    string    `json:"image" binding:"required"`
}

type ClientResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Active         bool      `json:"active"`
	ExpirationDate string    `json:"expiration_date"`
	HasFace        bool      `json:"has_face"`
	CreatedAt      string    `json:"created_at"`
	UpdatedAt      string    `json:"updated_at"`
}

func NewClientResponse(c *models.Client) ClientResponse {
	return ClientResponse{
		ID:             c.ID,
		Name:           c.Name,
		Email:          c.Email,
		Active:         c.Active,
		ExpirationDate: c.ExpirationDate.Format(models.DateLayout),
		HasFace:        c.HasFace(),
		CreatedAt:      c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      c.UpdatedAt.Format(time.RFC3339),
	}
}
