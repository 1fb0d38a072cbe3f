package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/MedRecordLedger/internal/registry/model"
)

// authorityReader is satisfied by *service.RegistryService.
type authorityReader interface {
	Authorities(ctx context.Context) (*model.AuthoritiesResponse, error)
	History(ctx context.Context) (*model.HistoryResponse, error)
}

// AuthorityHandler serves the current authority lists and their history.
type AuthorityHandler struct {
	svc    authorityReader
	logger *zap.Logger
}

// NewAuthorityHandler creates an AuthorityHandler.
func NewAuthorityHandler(svc authorityReader, logger *zap.Logger) *AuthorityHandler {
	return &AuthorityHandler{svc: svc, logger: logger}
}

// Register mounts the routes on rg behind auth.
func (h *AuthorityHandler) Register(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	g := rg.Group("/authorities", auth)
	{
		g.GET("", h.List)
		g.GET("/history", h.History)
	}
}

// List handles GET /authorities.
func (h *AuthorityHandler) List(c *gin.Context) {
	resp, err := h.svc.Authorities(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// History handles GET /authorities/history.
func (h *AuthorityHandler) History(c *gin.Context) {
	resp, err := h.svc.History(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
