package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/navid-fn/tradedesk/internal/service"
)

type AccountHandler struct {
	accounts *service.AccountService
}

func NewAccountHandler(accounts *service.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type initAmountRequest struct {
	InitAmount int64 `json:"init_amount"`
}

func (h *AccountHandler) CreateProperty(c *gin.Context) {
	var in service.PropertyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.accounts.CreateProperty(c.Request.Context(), in)
	respond(c, http.StatusCreated, p, err)
}

func (h *AccountHandler) ListProperties(c *gin.Context) {
	var q service.PropertyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.accounts.ListProperties(c.Request.Context(), q)
	respond(c, http.StatusOK, res, err)
}

func (h *AccountHandler) GetProperty(c *gin.Context) {
	p, err := h.accounts.GetProperty(c.Request.Context(), c.Param("id"))
	respond(c, http.StatusOK, p, err)
}

// PropertyBalance answers ?at=<RFC3339>, defaulting to now.
func (h *AccountHandler) PropertyBalance(c *gin.Context) {
	at := time.Now()
	if raw := c.Query("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, fmt.Errorf("at: %w", err))
			return
		}
		at = parsed
	}
	balance, err := h.accounts.PropertyBalanceAt(c.Request.Context(), c.Param("id"), at)
	respond(c, http.StatusOK, gin.H{"id": c.Param("id"), "at": at, "balance": balance}, err)
}

func (h *AccountHandler) UpdatePropertyInitAmount(c *gin.Context) {
	var req initAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.accounts.UpdatePropertyInitAmount(c.Request.Context(), c.Param("id"), req.InitAmount)
	respond(c, http.StatusOK, p, err)
}

func (h *AccountHandler) CreateStock(c *gin.Context) {
	var in service.StockInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	s, err := h.accounts.CreateStock(c.Request.Context(), in)
	respond(c, http.StatusCreated, s, err)
}

func (h *AccountHandler) ListStocks(c *gin.Context) {
	var q service.StockQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.accounts.ListStocks(c.Request.Context(), q)
	respond(c, http.StatusOK, res, err)
}

func (h *AccountHandler) GetStock(c *gin.Context) {
	s, err := h.accounts.GetStock(c.Request.Context(), c.Param("id"))
	respond(c, http.StatusOK, s, err)
}

func (h *AccountHandler) UpdateStockInitAmount(c *gin.Context) {
	var req initAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, err := h.accounts.UpdateStockInitAmount(c.Request.Context(), c.Param("id"), req.InitAmount)
	respond(c, http.StatusOK, s, err)
}
