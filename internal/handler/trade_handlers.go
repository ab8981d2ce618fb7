package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/navid-fn/tradedesk/internal/models"
	"github.com/navid-fn/tradedesk/internal/service"
)

type TradeHandler struct {
	trades *service.TradeService
}

func NewTradeHandler(trades *service.TradeService) *TradeHandler {
	return &TradeHandler{trades: trades}
}

func (h *TradeHandler) Create(c *gin.Context) {
	var in service.CreateTradeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	t, err := h.trades.Create(c.Request.Context(), operator(c), in)
	respond(c, http.StatusCreated, t, err)
}

func (h *TradeHandler) List(c *gin.Context) {
	var q service.TradeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.trades.List(c.Request.Context(), q)
	respond(c, http.StatusOK, res, err)
}

func (h *TradeHandler) Get(c *gin.Context) {
	t, err := h.trades.Get(c.Request.Context(), c.Param("id"))
	respond(c, http.StatusOK, t, err)
}

type correctionsRequest struct {
	Corrections models.Corrections `json:"corrections"`
	Details     map[string]any     `json:"details"`
}

func (h *TradeHandler) UpdateCorrections(c *gin.Context) {
	var req correctionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	t, err := h.trades.UpdateCorrections(c.Request.Context(), operator(c), c.Param("id"), req.Corrections, req.Details)
	respond(c, http.StatusOK, t, err)
}

// Complete takes ?reset_time=true to move the trade to the completion time.
func (h *TradeHandler) Complete(c *gin.Context) {
	t, err := h.trades.Complete(c.Request.Context(), operator(c), c.Param("id"), queryBool(c, "reset_time"))
	respond(c, http.StatusOK, t, err)
}

func (h *TradeHandler) Check(c *gin.Context) {
	t, err := h.trades.Check(c.Request.Context(), operator(c), c.Param("id"))
	respond(c, http.StatusOK, t, err)
}

func (h *TradeHandler) Cancel(c *gin.Context) {
	t, err := h.trades.Cancel(c.Request.Context(), operator(c), c.Param("id"))
	respond(c, http.StatusOK, t, err)
}

type SplitHandler struct {
	splits *service.SplitService
}

func NewSplitHandler(splits *service.SplitService) *SplitHandler {
	return &SplitHandler{splits: splits}
}

func (h *SplitHandler) Open(c *gin.Context) {
	var in service.CreateTradeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	s, err := h.splits.Open(c.Request.Context(), operator(c), in)
	respond(c, http.StatusCreated, s, err)
}

func (h *SplitHandler) List(c *gin.Context) {
	var page service.Page
	if err := c.ShouldBindQuery(&page); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.splits.List(c.Request.Context(), page)
	respond(c, http.StatusOK, res, err)
}

func (h *SplitHandler) Get(c *gin.Context) {
	s, err := h.splits.Get(c.Request.Context(), c.Param("id"))
	respond(c, http.StatusOK, s, err)
}

type settleRequest struct {
	Money  int64 `json:"money"`
	Finish bool  `json:"finish"`
}

func (h *SplitHandler) Settle(c *gin.Context) {
	var req settleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, err := h.splits.Settle(c.Request.Context(), operator(c), c.Param("id"), req.Money, req.Finish)
	respond(c, http.StatusOK, s, err)
}

type refundRequest struct {
	Refund int64 `json:"refund"`
}

func (h *SplitHandler) Refund(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, err := h.splits.Refund(c.Request.Context(), operator(c), c.Param("id"), req.Refund)
	respond(c, http.StatusOK, s, err)
}
