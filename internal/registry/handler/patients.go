package handler

import (
	"context"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/MedRecordLedger/internal/apperr"
	"github.com/jmerrifield20/MedRecordLedger/internal/identity"
	"github.com/jmerrifield20/MedRecordLedger/internal/registry/model"
)

// viewBroker is satisfied by *service.RegistryService.
type viewBroker interface {
	IssueViewToken(ctx context.Context, caller solana.PublicKey, req *model.PatientLookupRequest) (*model.ViewTokenResponse, error)
	View(ctx context.Context, token string) (*model.PatientView, error)
}

// PatientHandler issues and redeems patient view tokens.
type PatientHandler struct {
	svc    viewBroker
	logger *zap.Logger
}

// NewPatientHandler creates a PatientHandler.
func NewPatientHandler(svc viewBroker, logger *zap.Logger) *PatientHandler {
	return &PatientHandler{svc: svc, logger: logger}
}

// Register mounts the routes on rg. Issuing a token needs a session; the
// view link is its own credential.
func (h *PatientHandler) Register(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	p := rg.Group("/patients")
	{
		p.POST("/get", auth, h.IssueViewToken)
		p.GET("/view/:token", h.View)
	}
}

// IssueViewToken handles POST /patients/get.
func (h *PatientHandler) IssueViewToken(c *gin.Context) {
	var req model.PatientLookupRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}
	wallet, ok := identity.WalletFromCtx(c)
	if !ok {
		respondError(c, h.logger, apperr.Unauthorized("session required"))
		return
	}
	if req.UserPubkey != "" && req.UserPubkey != wallet.String() {
		respondError(c, h.logger, apperr.Unauthorized("user_pubkey does not match the session wallet"))
		return
	}
	resp, err := h.svc.IssueViewToken(c.Request.Context(), wallet, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	RecordViewTokenIssued()
	c.JSON(http.StatusOK, resp)
}

// View handles GET /patients/view/:token.
func (h *PatientHandler) View(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	resp, err := h.svc.View(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
