package handlers

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/access"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/pkg/dto"
)

const invalidDate = "Invalid date format. Use YYYY-MM-DD"

type ClientHandler struct {
	store         storage.ClientStore
	engine        *access.Engine
	maxImageBytes int
}

func NewClientHandler(store storage.ClientStore, engine *access.Engine, maxImageBytes int) *ClientHandler {
	return &ClientHandler{store: store, engine: engine, maxImageBytes: maxImageBytes}
}

// List returns all clients, or with ?active=true only those in good standing
// today (active and not expired); ?active=false returns the rest.
func (h *ClientHandler) List(c *gin.Context) {
	var (
		clients []models.Client
		err     error
	)
	now := time.Now()
	switch v := c.Query("active"); v {
	case "":
		clients, err = h.store.ListClients(c.Request.Context())
	default:
		standing, perr := strconv.ParseBool(v)
		if perr != nil {
			badRequest(c, "active must be true or false")
			return
		}
		if standing {
			clients, err = h.store.ListActiveClients(c.Request.Context(), now)
		} else {
			clients, err = h.store.ListClients(c.Request.Context())
			clients = slices.DeleteFunc(clients, func(cl models.Client) bool { return cl.InGoodStanding(now) })
		}
	}
	if err != nil {
		writeError(c, err)
		return
	}

	resp := make([]dto.ClientResponse, 0, len(clients))
	for i := range clients {
		resp = append(resp, dto.NewClientResponse(&clients[i]))
	}
	c.JSON(http.StatusOK, gin.H{"clients": resp, "total": len(resp)})
}

// Create registers a client without a face; enroll later via RegisterFace.
func (h *ClientHandler) Create(c *gin.Context) {
	var req dto.CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	client, ok := newClient(c, req.Name, req.Email, req.ExpirationDate)
	if !ok {
		return
	}

	if err := h.store.CreateClient(c.Request.Context(), client); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewClientResponse(client))
}

func (h *ClientHandler) Get(c *gin.Context) {
	id, ok := clientID(c)
	if !ok {
		return
	}
	client, err := h.store.GetClient(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewClientResponse(client))
}

func (h *ClientHandler) Update(c *gin.Context) {
	id, ok := clientID(c)
	if !ok {
		return
	}
	var req dto.UpdateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	upd := models.ClientUpdate{Email: req.Email, Active: req.Active}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			badRequest(c, "name must not be empty")
			return
		}
		upd.Name = &name
	}
	if req.ExpirationDate != nil {
		exp, err := models.ParseDate(*req.ExpirationDate)
		if err != nil {
			badRequest(c, invalidDate)
			return
		}
		upd.ExpirationDate = &exp
	}

	client, err := h.store.UpdateClient(c.Request.Context(), id, upd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewClientResponse(client))
}

// Delete deactivates the client; the record and its signature are kept.
func (h *ClientHandler) Delete(c *gin.Context) {
	id, ok := clientID(c)
	if !ok {
		return
	}
	client, err := h.store.DeactivateClient(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewClientResponse(client))
}

func (h *ClientHandler) CreateWithFace(c *gin.Context) {
	var req dto.CreateClientWithFaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	client, ok := newClient(c, req.Name, req.Email, req.ExpirationDate)
	if !ok {
		return
	}
	image, err := dto.DecodeImage(req.Image, h.maxImageBytes)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := h.engine.CreateWithFace(c.Request.Context(), client, image); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewClientResponse(client))
}

func (h *ClientHandler) RegisterFace(c *gin.Context) {
	var req dto.RegisterFaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	image, err := dto.DecodeImage(req.Image, h.maxImageBytes)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	client, err := h.engine.Enroll(c.Request.Context(), req.ClientID, image)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewClientResponse(client))
}

func newClient(c *gin.Context, name, email, expiration string) (*models.Client, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		badRequest(c, "name must not be empty")
		return nil, false
	}
	exp, err := models.ParseDate(expiration)
	if err != nil {
		badRequest(c, invalidDate)
		return nil, false
	}
	return &models.Client{
		Name:           name,
		Email:          strings.TrimSpace(email),
		Active:         true,
		ExpirationDate: exp,
	}, true
}

func clientID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid client id")
		return uuid.Nil, false
	}
	return id, true
}
