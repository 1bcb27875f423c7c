package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lingke-net/Space.Tab/pkg/observability"
)

const internalErrorMessage = "Internal Server Error: Please contact support"

// Envelope 统一响应结构, code 与 HTTP 状态码一致
type Envelope struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func respond(c *gin.Context, code int, message string, data any) {
	status := "success"
	if code >= http.StatusBadRequest {
		status = "error"
	}
	c.JSON(code, Envelope{Status: status, Code: code, Message: message, Data: data})
}

func respondOK(c *gin.Context, message string, data any) {
	respond(c, http.StatusOK, message, data)
}

func respondError(c *gin.Context, code int, message string) {
	respond(c, code, message, nil)
}

func abortWithError(c *gin.Context, code int, message string) {
	respondError(c, code, message)
	c.Abort()
}

// respondInternal 记录错误细节, 对外只返回通用 500
func respondInternal(c *gin.Context, msg string, err error) {
	requestLogger(c).Error(msg, "error", err)
	respondError(c, http.StatusInternalServerError, internalErrorMessage)
}

func requestLogger(c *gin.Context) *slog.Logger {
	return observability.LoggerWithRequest(GetRequestID(c)).With(
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"ip", c.ClientIP(),
	)
}
