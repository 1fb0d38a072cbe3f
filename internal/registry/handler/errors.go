package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/MedRecordLedger/internal/apperr"
)

// respondError writes err as {"error","kind","code"}. Server-side and
// ledger failures are logged with their cause; the cause is never returned.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	ae := apperr.From(err)
	switch ae.Kind {
	case apperr.KindInternal, apperr.KindLedger, apperr.KindInvalidConfiguration:
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("kind", string(ae.Kind)),
			zap.String("code", ae.Code),
			zap.Error(ae.Err),
		)
	}
	body := gin.H{"error": ae.Message, "kind": string(ae.Kind)}
	if ae.Code != "" {
		body["code"] = ae.Code
	}
	c.AbortWithStatusJSON(ae.Status(), body)
}

// bindJSON decodes the request body, answering 400 on failure.
func bindJSON(c *gin.Context, logger *zap.Logger, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		respondError(c, logger, apperr.BadRequest("invalid request body: %v", err))
		return false
	}
	return true
}
