package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/navid-fn/tradedesk/internal/middleware"
	"github.com/navid-fn/tradedesk/internal/models"
	"github.com/navid-fn/tradedesk/internal/service"
	"github.com/navid-fn/tradedesk/internal/storage"
)

// statusOf maps a service or storage error to its response status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrNoChange):
		return http.StatusMethodNotAllowed
	case errors.Is(err, storage.ErrDuplicate),
		errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrSplitClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as {"error": ...}. Unclassified errors are logged by the
// request logger and answered without detail.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "request_id": middleware.RequestID(c)})
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "request_id": middleware.RequestID(c)})
}

// respond writes v, or the error when err is set.
func respond(c *gin.Context, status int, v any, err error) {
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(status, v)
}

func operator(c *gin.Context) models.Principal {
	p, _ := middleware.PrincipalFrom(c)
	return p
}

func queryBool(c *gin.Context, key string) bool {
	b, _ := strconv.ParseBool(c.Query(key))
	return b
}
