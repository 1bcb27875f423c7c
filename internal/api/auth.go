package api

import (
	"errors"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lingke-net/Space.Tab/internal/model"
	"github.com/lingke-net/Space.Tab/pkg/common"
)

// Register 处理用户注册
func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body.")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		respondError(c, http.StatusBadRequest, "Username, email and password are required.")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid email address.")
		return
	}

	ctx := c.Request.Context()

	// 1. 检查邮箱是否已注册
	if _, err := h.users.GetUserByEmail(ctx, req.Email); err == nil {
		respondError(c, http.StatusConflict, "Email already registered.")
		return
	} else if !errors.Is(err, common.ErrNotFound) {
		respondInternal(c, "register lookup failed", err)
		return
	}

	// 2. 密码哈希
	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		respondInternal(c, "password hash failed", err)
		return
	}

	// 3. 创建用户, 唯一索引兜底并发注册
	user := &model.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
	}
	if qq := strings.TrimSpace(req.QQNum); qq != "" {
		user.QQNum = &qq
	}
	if err := h.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, common.ErrConflict) {
			respondError(c, http.StatusConflict, "Email already registered.")
			return
		}
		respondInternal(c, "create user failed", err)
		return
	}

	respondOK(c, "User created successfully.", gin.H{"userId": user.ID})
}

// Login 处理用户登录, account 可以是邮箱或数字 ID
func (h *Handler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	if !h.allowLogin(ctx, c.ClientIP()) {
		loginAttemptsTotal.WithLabelValues("rate_limited").Inc()
		respondError(c, http.StatusTooManyRequests, "Too many login attempts, please try again later.")
		return
	}

	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body.")
		return
	}
	account := strings.TrimSpace(req.Account)
	if account == "" || req.Password == "" {
		respondError(c, http.StatusBadRequest, "Account and password are required.")
		return
	}

	// 1. 查找用户
	var (
		user *model.User
		err  error
	)
	if id, convErr := strconv.ParseInt(account, 10, 64); convErr == nil && id > 0 {
		user, err = h.users.GetUserByID(ctx, id)
	} else {
		user, err = h.users.GetUserByEmail(ctx, account)
	}
	if errors.Is(err, common.ErrNotFound) {
		loginAttemptsTotal.WithLabelValues("bad_credentials").Inc()
		respondError(c, http.StatusUnauthorized, "User or email not registered.")
		return
	}
	if err != nil {
		loginAttemptsTotal.WithLabelValues("error").Inc()
		respondInternal(c, "login lookup failed", err)
		return
	}

	// 2. 封禁检查, 过期的封禁视为已解除
	if user.IsBanned && !h.banLapsed(user) {
		loginAttemptsTotal.WithLabelValues("banned").Inc()
		respond(c, http.StatusForbidden, "User is banned.", banInfo(user))
		return
	}

	// 3. 验证密码
	if !h.hasher.Compare(user.PasswordHash, req.Password) {
		loginAttemptsTotal.WithLabelValues("bad_credentials").Inc()
		respondError(c, http.StatusUnauthorized, "Invalid password.")
		return
	}

	// 4. 签发 Token 并写入会话缓存
	token, err := h.tokens.Issue(user.ID, user.Email)
	if err != nil {
		respondInternal(c, "token issue failed", err)
		return
	}
	if err := h.sessions.Save(ctx, user); err != nil {
		respondInternal(c, "session save failed", err)
		return
	}
	if err := h.users.UpdateLastLogin(ctx, user.ID); err != nil {
		requestLogger(c).Warn("update last login failed", "user_id", user.ID, "error", err)
	}

	loginAttemptsTotal.WithLabelValues("success").Inc()
	respondOK(c, "Login successful.", model.LoginResponse{Token: token, UserID: user.ID})
}

// Logout 删除当前会话
func (h *Handler) Logout(c *gin.Context) {
	user, _ := SessionUser(c)
	if err := h.sessions.Revoke(c.Request.Context(), user.ID); err != nil {
		respondInternal(c, "session revoke failed", err)
		return
	}
	respondOK(c, "Logout successful.", nil)
}

func (h *Handler) banLapsed(u *model.User) bool {
	return u.BanExpiration != nil && !u.BanExpiration.After(h.now())
}

func banInfo(u *model.User) model.BanInfo {
	info := model.BanInfo{}
	if u.BanReason != nil {
		info.BanReason = *u.BanReason
	}
	if u.BanExpiration != nil {
		info.BanExpiration = u.BanExpiration.UTC().Format(time.RFC3339)
	}
	return info
}
