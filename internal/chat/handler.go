package chat

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"auditdocs-backend/internal/searchindex"
	"auditdocs-backend/internal/shared/server/respond"
)

// Handler exposes the chat proxy over HTTP.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches chat routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/chat", h.ask)
}

type askRequest struct {
	Question string                `json:"question"`
	History  []searchindex.Message `json:"history"`
}

func (h *Handler) ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	reply, err := h.Svc.Answer(c.Request.Context(), req.Question, req.History)
	if err != nil {
		switch {
		case errors.Is(err, ErrQuestionRequired):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		case errors.Is(err, ErrNotConfigured):
			respond.Error(c, http.StatusInternalServerError, "not_configured", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "upstream_error", "chat service failed", nil)
		}
		return
	}

	respond.OK(c, reply)
}
