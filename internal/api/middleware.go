/**
 * @file middleware.go
 * @brief Gin 中间件
 */
package api

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lingke-net/Space.Tab/internal/auth"
	"github.com/lingke-net/Space.Tab/pkg/common"
)

// CORSMiddleware 跨域资源共享中间件, 仅放行白名单内的 Origin 并允许携带凭证
func CORSMiddleware() gin.HandlerFunc {
	allowedOrigins := loadAllowedOrigins()
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowOrigin := ""
		if origin != "" {
			if _, ok := allowedOrigins[origin]; ok {
				allowOrigin = origin
			}
		}

		if allowOrigin != "" {
			c.Header("Access-Control-Allow-Origin", allowOrigin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID, "+common.EncryptedContentHeader)
		c.Header("Access-Control-Max-Age", "86400") // 预检结果缓存 24 小时

		// 处理预检请求
		if c.Request.Method == http.MethodOptions {
			if origin != "" && allowOrigin == "" {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequestIDMiddleware 请求 ID 中间件
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 尝试从 Header 获取 (上游服务传递)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

// GetRequestID 返回中间件写入的标准化 request_id。
func GetRequestID(c *gin.Context) string {
	if ridAny, ok := c.Get("request_id"); ok {
		if rid, ok := ridAny.(string); ok && rid != "" {
			return rid
		}
	}
	return c.GetHeader("X-Request-ID")
}

// SecurityHeadersMiddleware 安全响应头; /api 下的响应禁止缓存
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "SAMEORIGIN")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("X-DNS-Prefetch-Control", "off")
		if c.Request.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=15552000; includeSubDomains")
		}
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}
		c.Next()
	}
}

// AccessLogMiddleware 记录 /api 请求的访问日志
func AccessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		requestLogger(c).Info("access",
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"bytes", c.Writer.Size(),
			"user_agent", c.Request.UserAgent(),
		)
	}
}

// RecoveryMiddleware 捕获 panic, 记录堆栈后返回统一 500
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				requestLogger(c).Error("panic recovered",
					"panic", fmt.Sprint(rec),
					"stack", string(debug.Stack()),
				)
				if !c.Writer.Written() {
					respondError(c, http.StatusInternalServerError, internalErrorMessage)
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}

// authenticate 校验 Bearer Token 并从会话缓存取出用户; 失败时已写出响应
func (h *Handler) authenticate(c *gin.Context) bool {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		abortWithError(c, http.StatusUnauthorized, "Access denied. No token provided.")
		return false
	}

	tokenString := extractBearerToken(authHeader)
	if tokenString == "" {
		abortWithError(c, http.StatusUnauthorized, "Invalid authorization header format.")
		return false
	}

	claims, err := h.tokens.Parse(tokenString)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			abortWithError(c, http.StatusUnauthorized, "Token expired.")
			return false
		}
		abortWithError(c, http.StatusUnauthorized, "Invalid token.")
		return false
	}

	user, err := h.sessions.Load(c.Request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, common.ErrSessionExpired) {
			sessionLookupsTotal.WithLabelValues("miss").Inc()
			abortWithError(c, http.StatusUnauthorized, "Session expired, please log in again.")
			return false
		}
		sessionLookupsTotal.WithLabelValues("error").Inc()
		respondInternal(c, "session lookup failed", err)
		c.Abort()
		return false
	}
	sessionLookupsTotal.WithLabelValues("hit").Inc()

	user.PasswordHash = ""
	c.Set(ctxSessionUserKey, user)
	return true
}

// AuthMiddleware 普通用户认证
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.authenticate(c) {
			return
		}
		c.Next()
	}
}

// AdminMiddleware 管理员认证, 会话中的用户必须是管理员
func (h *Handler) AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.authenticate(c) {
			return
		}
		user, _ := SessionUser(c)
		if !user.IsAdmin {
			abortWithError(c, http.StatusForbidden, "Access denied. Admin privileges required.")
			return
		}
		c.Next()
	}
}

// ClientMiddleware 校验机器客户端的 RSA-OAEP 加密载荷与时间戳
func (h *Handler) ClientMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.decrypter == nil {
			respondInternal(c, "client decrypter not configured", errors.New("missing client private key"))
			c.Abort()
			return
		}

		payload, err := h.decrypter.Open(c.GetHeader(common.EncryptedContentHeader))
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrPayloadMissing):
				abortWithError(c, http.StatusBadRequest, "Missing encrypted content header.")
			case errors.Is(err, auth.ErrPayloadEncoding):
				abortWithError(c, http.StatusUnauthorized, "Invalid encrypted content encoding.")
			case errors.Is(err, auth.ErrPayloadCiphertext):
				abortWithError(c, http.StatusBadRequest, "Invalid encrypted content.")
			case errors.Is(err, auth.ErrPayloadFormat):
				abortWithError(c, http.StatusBadRequest, "Invalid decrypted payload.")
			case errors.Is(err, auth.ErrPayloadStale):
				abortWithError(c, http.StatusUnauthorized, "Request expired or timestamp invalid.")
			default:
				respondInternal(c, "client payload decrypt failed", err)
				c.Abort()
			}
			return
		}

		c.Set(ctxClientPayloadKey, payload)
		c.Next()
	}
}

// MetricsAccessMiddleware 保护 /metrics，禁止匿名远程访问。
func MetricsAccessMiddleware() gin.HandlerFunc {
	token := strings.TrimSpace(os.Getenv("METRICS_TOKEN"))
	return func(c *gin.Context) {
		if token != "" {
			if extractBearerToken(c.GetHeader("Authorization")) != token {
				abortWithError(c, http.StatusUnauthorized, "Unauthorized")
				return
			}
			c.Next()
			return
		}

		// 安全默认值：未配置 token 时仅允许本机抓取。
		if !isLoopbackClientIP(c.ClientIP()) {
			abortWithError(c, http.StatusForbidden, "Forbidden")
			return
		}
		c.Next()
	}
}

func loadAllowedOrigins() map[string]struct{} {
	allowed := make(map[string]struct{})
	for _, origin := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		allowed[origin] = struct{}{}
	}
	return allowed
}

func extractBearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func isLoopbackClientIP(clientIP string) bool {
	ip := net.ParseIP(clientIP)
	return ip != nil && ip.IsLoopback()
}

// MetricsMiddleware 记录请求指标
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}
		status := fmt.Sprintf("%d", c.Writer.Status())
		method := c.Request.Method

		RequestTotal.WithLabelValues(method, path, status).Inc()
		RequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
	}
}
