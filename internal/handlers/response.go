package handlers

import (
	"net/http"
	"strconv"

	"go-pos-ledger/internal/apperr"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Every response is {success, data} or {success: false, error, code, issues}.

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": msg, "code": apperr.CodeInvalidInput})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindInvariant:
		return http.StatusUnprocessableEntity
	case apperr.KindAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	e, ok := apperr.From("request", err).(*apperr.Error)
	if !ok {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal error"})
		return
	}
	status := statusFor(e.Kind)
	body := gin.H{"success": false, "error": e.Message, "code": e.Code}
	if len(e.Issues) > 0 {
		body["issues"] = e.Issues
	}
	if status >= http.StatusInternalServerError {
		// Storage details stay in the log.
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "Invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, name string) (int, bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	return n, true, err
}
