package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/MedRecordLedger/internal/apperr"
	"github.com/jmerrifield20/MedRecordLedger/internal/identity"
	"github.com/jmerrifield20/MedRecordLedger/internal/registry/model"
)

// AuthHandler exchanges a wallet signature for a session token.
type AuthHandler struct {
	sessions *identity.SessionIssuer
	skew     time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewAuthHandler creates an AuthHandler. A zero skew means
// identity.DefaultChallengeSkew.
func NewAuthHandler(sessions *identity.SessionIssuer, skew time.Duration, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, skew: skew, now: time.Now, logger: logger}
}

// SetClock overrides the clock used to check login timestamps.
func (h *AuthHandler) SetClock(now func() time.Time) {
	h.now = now
}

// Register mounts the login route on rg.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/auth", h.Login)
}

// Login handles POST /auth.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.AuthRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	wallet, err := identity.VerifyLogin(req.PublicKey, req.Signature, req.Timestamp, h.now(), h.skew)
	if err != nil {
		h.logger.Info("login rejected", zap.String("public_key", req.PublicKey), zap.Error(err))
		if errors.Is(err, identity.ErrMalformedPublicKey) || errors.Is(err, identity.ErrMalformedSignature) {
			respondError(c, h.logger, apperr.BadRequest("%v", err))
			return
		}
		respondError(c, h.logger, apperr.Unauthorized("%v", err))
		return
	}

	token, exp, err := h.sessions.Issue(wallet)
	if err != nil {
		respondError(c, h.logger, apperr.Internal(err, "failed to issue session token"))
		return
	}
	c.JSON(http.StatusOK, model.AuthResponse{
		Token:     token,
		PublicKey: wallet.String(),
		ExpiresAt: exp,
		ExpiresIn: int64(h.sessions.TTL().Seconds()),
	})
}
