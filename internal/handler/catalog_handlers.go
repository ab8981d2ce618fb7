package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/navid-fn/tradedesk/internal/middleware"
	"github.com/navid-fn/tradedesk/internal/presence"
	"github.com/navid-fn/tradedesk/internal/service"
)

type GameHandler struct {
	games *service.GameService
}

func NewGameHandler(games *service.GameService) *GameHandler {
	return &GameHandler{games: games}
}

func (h *GameHandler) Create(c *gin.Context) {
	var in service.GameInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	g, err := h.games.Create(c.Request.Context(), in)
	respond(c, http.StatusCreated, g, err)
}

func (h *GameHandler) List(c *gin.Context) {
	var page service.Page
	if err := c.ShouldBindQuery(&page); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.games.List(c.Request.Context(), page)
	respond(c, http.StatusOK, res, err)
}

func (h *GameHandler) Get(c *gin.Context) {
	g, err := h.games.Get(c.Request.Context(), c.Param("id"))
	respond(c, http.StatusOK, g, err)
}

func (h *GameHandler) Update(c *gin.Context) {
	var in service.GameInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	g, err := h.games.Update(c.Request.Context(), c.Param("id"), in)
	respond(c, http.StatusOK, g, err)
}

type SettingHandler struct {
	settings *service.SettingService
}

func NewSettingHandler(settings *service.SettingService) *SettingHandler {
	return &SettingHandler{settings: settings}
}

func (h *SettingHandler) Fields(c *gin.Context) {
	fields, err := h.settings.FieldsOf(c.Request.Context(), c.Param("collection"))
	respond(c, http.StatusOK, fields, err)
}

func (h *SettingHandler) Field(c *gin.Context) {
	field, err := h.settings.Field(c.Request.Context(), c.Param("collection"), c.Param("field"))
	respond(c, http.StatusOK, field, err)
}

type communicationWayRequest struct {
	Way string `json:"way"`
}

func (h *SettingHandler) AddCommunicationWay(c *gin.Context) {
	var req communicationWayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, err := h.settings.AddCommunicationWay(c.Request.Context(), req.Way)
	respond(c, http.StatusOK, s, err)
}

type stageFeeRequest struct {
	Fee int64 `json:"fee"`
}

func (h *SettingHandler) SetStageFee(c *gin.Context) {
	var req stageFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, err := h.settings.SetStageFee(c.Request.Context(), c.Param("kind"), req.Fee)
	respond(c, http.StatusOK, s, err)
}

// PresenceHandler upgrades /ws. Browsers cannot set headers on a websocket
// handshake, so the bearer token travels as ?token=. Opening the socket is
// what counts as logging in to the desk.
type PresenceHandler struct {
	hub     *presence.Hub
	tokens  middleware.TokenConfig
	records *service.LoginRecordService
}

func NewPresenceHandler(hub *presence.Hub, tokens middleware.TokenConfig, records *service.LoginRecordService) *PresenceHandler {
	return &PresenceHandler{hub: hub, tokens: tokens, records: records}
}

func (h *PresenceHandler) Connect(c *gin.Context) {
	p, err := h.tokens.Parse(c.Query("token"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "could not validate credentials"})
		return
	}
	if h.records != nil {
		if _, err := h.records.Record(c.Request.Context(), p); err != nil {
			fail(c, err)
			return
		}
	}
	h.hub.ServeWS(c.Writer, c.Request, p.Username)
}

func (h *PresenceHandler) Online(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": h.hub.Online()})
}
