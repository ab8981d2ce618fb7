package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/navid-fn/tradedesk/internal/service"
)

type ActivityHandler struct {
	activities *service.ActivityService
}

func NewActivityHandler(activities *service.ActivityService) *ActivityHandler {
	return &ActivityHandler{activities: activities}
}

func (h *ActivityHandler) Create(c *gin.Context) {
	var in service.ActivityInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	a, err := h.activities.Create(c.Request.Context(), in)
	respond(c, http.StatusCreated, a, err)
}

func (h *ActivityHandler) List(c *gin.Context) {
	var q service.ActivityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.activities.List(c.Request.Context(), q)
	respond(c, http.StatusOK, res, err)
}

func (h *ActivityHandler) Get(c *gin.Context) {
	a, err := h.activities.Get(c.Request.Context(), c.Param("id"))
	respond(c, http.StatusOK, a, err)
}

func (h *ActivityHandler) Update(c *gin.Context) {
	var in service.ActivityInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	a, err := h.activities.Update(c.Request.Context(), c.Param("id"), in)
	respond(c, http.StatusOK, a, err)
}

func (h *ActivityHandler) Delete(c *gin.Context) {
	a, err := h.activities.Delete(c.Request.Context(), c.Param("id"))
	respond(c, http.StatusOK, a, err)
}

// LotteryHandler serves operators creating draws and, on the public
// routes, customers opening and drawing them.
type LotteryHandler struct {
	lotteries *service.LotteryService
}

func NewLotteryHandler(lotteries *service.LotteryService) *LotteryHandler {
	return &LotteryHandler{lotteries: lotteries}
}

func (h *LotteryHandler) Create(c *gin.Context) {
	var in service.LotteryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	l, err := h.lotteries.Create(c.Request.Context(), operator(c), in)
	respond(c, http.StatusCreated, l, err)
}

func (h *LotteryHandler) Get(c *gin.Context) {
	l, err := h.lotteries.Get(c.Request.Context(), c.Param("id"))
	respond(c, http.StatusOK, l, err)
}

type drawRequest struct {
	ResultAward string `json:"result_award"`
}

func (h *LotteryHandler) Draw(c *gin.Context) {
	var req drawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	l, err := h.lotteries.Draw(c.Request.Context(), c.Param("id"), req.ResultAward)
	respond(c, http.StatusOK, l, err)
}

type LoginRecordHandler struct {
	records *service.LoginRecordService
}

func NewLoginRecordHandler(records *service.LoginRecordService) *LoginRecordHandler {
	return &LoginRecordHandler{records: records}
}

func (h *LoginRecordHandler) List(c *gin.Context) {
	var q service.LoginRecordQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.records.List(c.Request.Context(), q)
	respond(c, http.StatusOK, res, err)
}
