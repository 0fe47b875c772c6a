package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/pkg/dto"
)

type EventHandler struct {
	store   storage.AccessEventStore
	archive storage.ImageArchive
}

// NewEventHandler serves the access audit log. archive may be nil.
func NewEventHandler(store storage.AccessEventStore, archive storage.ImageArchive) *EventHandler {
	return &EventHandler{store: store, archive: archive}
}

func (h *EventHandler) List(c *gin.Context) {
	var f models.AccessEventFilter
	if s := c.Query("client_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			badRequest(c, "invalid client_id")
			return
		}
		f.ClientID = &id
	}
	switch o := models.Outcome(c.Query("outcome")); o {
	case "", models.OutcomeGranted, models.OutcomeDeniedExpired, models.OutcomeDeniedNoMatch, models.OutcomeRejected:
		f.Outcome = o
	default:
		badRequest(c, "invalid outcome")
		return
	}

	var err error
	if f.Limit, err = strconv.Atoi(c.DefaultQuery("limit", "50")); err != nil || f.Limit < 0 {
		badRequest(c, "invalid limit")
		return
	}
	if f.Offset, err = strconv.Atoi(c.DefaultQuery("offset", "0")); err != nil || f.Offset < 0 {
		badRequest(c, "invalid offset")
		return
	}

	events, total, err := h.store.ListAccessEvents(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := make([]dto.AccessEventResponse, 0, len(events))
	for i := range events {
		resp = append(resp, dto.NewAccessEventResponse(&events[i]))
	}
	c.JSON(http.StatusOK, dto.AccessEventList{Events: resp, Total: total, Limit: f.Limit, Offset: f.Offset})
}

// Snapshot streams the archived probe image of an access event.
func (h *EventHandler) Snapshot(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid event id")
		return
	}

	ev, err := h.store.GetAccessEvent(c.Request.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	if ev.SnapshotKey == "" || h.archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}

	data, err := h.archive.GetObject(c.Request.Context(), ev.SnapshotKey)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}
