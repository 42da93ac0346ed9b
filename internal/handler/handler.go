package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"merchshop/internal/auth"
	"merchshop/internal/catalog"
	"merchshop/internal/service"
	"merchshop/pkg/logger"
	"merchshop/pkg/response"
)

// Handler exposes the ledger services over HTTP.
type Handler struct {
	accounts *service.AccountService
	ledger   *service.LedgerService
	history  *service.HistoryService
	tokens   *auth.TokenManager
}

func NewHandler(
	accounts *service.AccountService,
	ledger *service.LedgerService,
	history *service.HistoryService,
	tokens *auth.TokenManager,
) *Handler {
	return &Handler{
		accounts: accounts,
		ledger:   ledger,
		history:  history,
		tokens:   tokens,
	}
}

// ============================================================
// Auth
// ============================================================

type AuthRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string `json:"token"`
}

// Auth logs a user in, registering the account on first use.
// POST /api/auth
func (h *Handler) Auth(c *gin.Context) {
	var req AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "Invalid request body")
		return
	}

	account, _, err := h.accounts.GetOrCreate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	token, err := h.tokens.Issue(account.ID, account.Username)
	if err != nil {
		logger.Log.Error("issue token", logger.Int64("account_id", account.ID), logger.Error(err))
		response.ServerError(c)
		return
	}

	response.Success(c, AuthResponse{Token: token})
}

// ============================================================
// Ledger
// ============================================================

// Info returns the caller's balance, inventory and coin history.
// GET /api/info
func (h *Handler) Info(c *gin.Context) {
	snap, err := h.history.GetSnapshot(c.Request.Context(), accountID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, snap)
}

type SendCoinRequest struct {
	ToUser string `json:"toUser" binding:"required"`
	Amount int64  `json:"amount"`
}

// SendCoin transfers coins to another user.
// POST /api/sendCoin
func (h *Handler) SendCoin(c *gin.Context) {
	var req SendCoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "Invalid request body")
		return
	}

	if err := h.ledger.Transfer(c.Request.Context(), accountID(c), req.ToUser, req.Amount); err != nil {
		writeError(c, err)
		return
	}
	response.Detail(c, "Coins sent successfully")
}

// Buy purchases one item from the catalog.
// GET /api/buy/:item
func (h *Handler) Buy(c *gin.Context) {
	item := c.Param("item")
	if err := h.ledger.Purchase(c.Request.Context(), accountID(c), item); err != nil {
		writeError(c, err)
		return
	}
	response.Detail(c, "Successfully purchased "+catalog.Canonical(item))
}

// writeError maps a service error onto its HTTP status. Storage details are
// logged, never returned.
func writeError(c *gin.Context, err error) {
	var le *service.LedgerError
	if !errors.As(err, &le) {
		logger.Log.Error("unexpected handler error", logger.String("path", c.FullPath()), logger.Error(err))
		response.ServerError(c)
		return
	}

	switch le.Kind {
	case service.KindValidation, service.KindNotFound, service.KindInsufficientFunds:
		response.Error(c, http.StatusBadRequest, le.Message)
	case service.KindAuth:
		response.Unauthorized(c, le.Message)
	case service.KindConflict:
		response.Error(c, http.StatusConflict, le.Message)
	case service.KindCanceled:
		logger.Log.Info("request canceled", logger.String("path", c.FullPath()), logger.Error(err))
		response.Error(c, http.StatusRequestTimeout, le.Message)
	default:
		logger.Log.Error("request failed", logger.String("path", c.FullPath()), logger.Error(err))
		response.ServerError(c)
	}
}
