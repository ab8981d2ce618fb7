package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/navid-fn/tradedesk/internal/service"
)

type MemberHandler struct {
	members *service.MemberService
}

func NewMemberHandler(members *service.MemberService) *MemberHandler {
	return &MemberHandler{members: members}
}

func (h *MemberHandler) Create(c *gin.Context) {
	var in service.MemberInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.members.Create(c.Request.Context(), in)
	respond(c, http.StatusCreated, m, err)
}

func (h *MemberHandler) List(c *gin.Context) {
	var q service.MemberQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.members.List(c.Request.Context(), q)
	respond(c, http.StatusOK, res, err)
}

func (h *MemberHandler) Get(c *gin.Context) {
	m, err := h.members.Get(c.Request.Context(), c.Param("id"))
	respond(c, http.StatusOK, m, err)
}

func (h *MemberHandler) Update(c *gin.Context) {
	var in service.MemberUpdate
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.members.Update(c.Request.Context(), c.Param("id"), in)
	respond(c, http.StatusOK, m, err)
}

func (h *MemberHandler) Delete(c *gin.Context) {
	m, err := h.members.Delete(c.Request.Context(), c.Param("id"))
	respond(c, http.StatusOK, m, err)
}

type listValueRequest struct {
	Value string `json:"value"`
}

// AddValue appends to accounts, sock_puppets or phones.
func (h *MemberHandler) AddValue(c *gin.Context) {
	var req listValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.members.AddValue(c.Request.Context(), c.Param("id"), service.MemberList(c.Param("list")), req.Value)
	respond(c, http.StatusOK, m, err)
}

// RemoveValue takes the value as ?value=.
func (h *MemberHandler) RemoveValue(c *gin.Context) {
	m, err := h.members.RemoveValue(c.Request.Context(), c.Param("id"), service.MemberList(c.Param("list")), c.Query("value"))
	respond(c, http.StatusOK, m, err)
}

func (h *MemberHandler) CreatePlayer(c *gin.Context) {
	var in service.PlayerInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.members.CreatePlayer(c.Request.Context(), in)
	respond(c, http.StatusCreated, p, err)
}

func (h *MemberHandler) GetPlayer(c *gin.Context) {
	p, err := h.members.GetPlayer(c.Request.Context(), c.Param("id"))
	respond(c, http.StatusOK, p, err)
}

type renameRequest struct {
	Name string `json:"name"`
}

func (h *MemberHandler) RenamePlayer(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.members.RenamePlayer(c.Request.Context(), c.Param("id"), req.Name)
	respond(c, http.StatusOK, p, err)
}

func (h *MemberHandler) DeletePlayer(c *gin.Context) {
	p, err := h.members.DeletePlayer(c.Request.Context(), c.Param("id"))
	respond(c, http.StatusOK, p, err)
}
