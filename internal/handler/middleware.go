package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"merchshop/internal/auth"
	"merchshop/internal/service"
	"merchshop/pkg/logger"
	"merchshop/pkg/response"
)

const (
	ctxAccountID = "accountID"
	ctxUsername  = "username"
)

// LoggerMiddleware logs one line per request.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			path = path + "?" + q
		}

		c.Next()

		logger.Log.Info("http request",
			logger.Int("status", c.Writer.Status()),
			logger.Duration("latency", time.Since(start)),
			logger.String("client_ip", c.ClientIP()),
			logger.String("method", c.Request.Method),
			logger.String("path", path),
		)
	}
}

// RecoveryMiddleware turns a panic into a 500 response.
func RecoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered interface{}) {
		logger.Log.Error("panic recovered",
			logger.String("path", c.Request.URL.Path),
			logger.Any("panic", recovered),
		)
		response.ServerError(c)
	})
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// AuthMiddleware accepts "Authorization: Bearer <token>" and stores the
// caller's account id in the gin context. The token's username must still
// resolve to the account id it was issued for.
func AuthMiddleware(tokens *auth.TokenManager, accounts *service.AccountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			response.Unauthorized(c, "Unauthorized")
			return
		}

		id, err := tokens.Validate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			logger.Log.Warn("unauthorized request", logger.String("path", c.Request.URL.Path), logger.Error(err))
			response.Unauthorized(c, "Unauthorized")
			return
		}

		account, err := accounts.FindByUsername(c.Request.Context(), id.Username)
		if errors.Is(err, service.ErrAccountNotFound) || (err == nil && account.ID != id.AccountID) {
			logger.Log.Warn("token does not match an account",
				logger.String("username", id.Username),
				logger.Int64("account_id", id.AccountID),
			)
			response.Unauthorized(c, "Unauthorized")
			return
		}
		if err != nil {
			writeError(c, err)
			return
		}

		c.Set(ctxAccountID, account.ID)
		c.Set(ctxUsername, account.Username)
		c.Next()
	}
}

func accountID(c *gin.Context) int64 {
	return c.GetInt64(ctxAccountID)
}
