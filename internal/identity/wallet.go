package identity

import (
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
)

const ctxWallet = "identity.wallet"

// RequireWallet returns a Gin middleware that enforces a valid session
// Bearer token and stores the wallet in the context.
func RequireWallet(sessions *SessionIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer session token required",
				"kind":  "unauthorized",
			})
			return
		}

		claims, err := sessions.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid session token",
				"kind":  "unauthorized",
			})
			return
		}
		wallet, _ := claims.Wallet()
		c.Set(ctxWallet, wallet)
		c.Next()
	}
}

// WalletFromCtx returns the wallet stored by RequireWallet.
func WalletFromCtx(c *gin.Context) (solana.PublicKey, bool) {
	v, ok := c.Get(ctxWallet)
	if !ok {
		return solana.PublicKey{}, false
	}
	w, ok := v.(solana.PublicKey)
	return w, ok
}
