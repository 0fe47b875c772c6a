package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facegate/internal/access"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/pkg/dto"
)

type AccessHandler struct {
	engine        *access.Engine
	maxImageBytes int
}

func NewAccessHandler(engine *access.Engine, maxImageBytes int) *AccessHandler {
	return &AccessHandler{engine: engine, maxImageBytes: maxImageBytes}
}

// Verify decides whether the face in the image may enter. Denials are
// regular 200 responses; only failed attempts use error statuses.
func (h *AccessHandler) Verify(c *gin.Context) {
	var req dto.VerifyAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	image, err := dto.DecodeImage(req.Image, h.maxImageBytes)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	res, err := h.engine.Identify(c.Request.Context(), image)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := dto.VerifyAccessResponse{
		AccessGranted: res.Granted(),
		Outcome:       res.Outcome,
		Message:       res.Message(),
		Confidence:    access.RoundConfidence(res.Confidence),
		EventID:       res.EventID,
	}
	if res.Client != nil {
		resp.Client = &dto.AccessClient{
			ID:             res.Client.ID,
			Name:           res.Client.Name,
			ExpirationDate: res.Client.ExpirationDate.Format(models.DateLayout),
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AccessHandler) Search(c *gin.Context) {
	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	image, err := dto.DecodeImage(req.Image, h.maxImageBytes)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	matches, err := h.engine.Search(c.Request.Context(), image, req.Limit)
	if err != nil {
		writeError(c, err)
		return
	}

	results := make([]dto.SearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, dto.SearchResult{
			ClientID:   m.ClientID,
			Name:       m.Name,
			Distance:   m.Distance,
			Confidence: access.RoundConfidence(m.Confidence),
		})
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "total": len(results)})
}
