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
	"github.com/lingke-net/Space.Tab/internal/repository"
	"github.com/lingke-net/Space.Tab/pkg/common"
)

const (
	defaultAvatarMaxBytes = 2 << 20
	// 封禁时长上限 (天), 超出会让到期时间溢出为过去
	maxBanDays = 36500
)

// GetUserInfo 返回脱敏后的用户资料
func (h *Handler) GetUserInfo(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "Invalid user ID.")
		return
	}
	user, err := h.users.GetUserByID(c.Request.Context(), id)
	if errors.Is(err, common.ErrNotFound) {
		respondError(c, http.StatusNotFound, "User not found.")
		return
	}
	if err != nil {
		respondInternal(c, "get user failed", err)
		return
	}
	respondOK(c, "Query user info successfully.", user.Profile())
}

// UpdateSelf 用户修改自己的资料, 只接受 UserSelfPatch 中列出的字段
func (h *Handler) UpdateSelf(c *gin.Context) {
	var patch model.UserSelfPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body.")
		return
	}
	current, _ := SessionUser(c)
	h.applyUserPatch(c, current.ID, patch.Apply)
}

// AdminUpdateUser 管理员修改用户资料
func (h *Handler) AdminUpdateUser(c *gin.Context) {
	var patch model.UserAdminPatch
	if err := c.ShouldBindJSON(&patch); err != nil || patch.ID <= 0 {
		respondError(c, http.StatusBadRequest, "Missing required fields.")
		return
	}
	h.applyUserPatch(c, patch.ID, patch.Apply)
}

// applyUserPatch 读取最新记录, 合并允许修改的字段后写回
func (h *Handler) applyUserPatch(c *gin.Context, userID int64, apply func(*model.User) bool) {
	ctx := c.Request.Context()
	user, err := h.users.GetUserByID(ctx, userID)
	if errors.Is(err, common.ErrNotFound) {
		respondError(c, http.StatusNotFound, "User not found.")
		return
	}
	if err != nil {
		respondInternal(c, "get user failed", err)
		return
	}

	if apply(user) {
		if _, err := mail.ParseAddress(user.Email); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid email address.")
			return
		}
		existing, err := h.users.GetUserByEmail(ctx, user.Email)
		if err == nil && existing.ID != user.ID {
			respondError(c, http.StatusConflict, "Email already registered.")
			return
		}
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			respondInternal(c, "email lookup failed", err)
			return
		}
	}

	if err := h.users.UpdateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, common.ErrConflict):
			respondError(c, http.StatusConflict, "Email already registered.")
		case errors.Is(err, common.ErrNotFound):
			respondError(c, http.StatusNotFound, "User not found.")
		default:
			respondInternal(c, "update user failed", err)
		}
		return
	}
	h.refreshSession(c, user)
	respondOK(c, "Update user info successfully.", user.Profile())
}

// UpdatePassword 修改密码, 成功后删除会话强制重新登录
func (h *Handler) UpdatePassword(c *gin.Context) {
	var req model.PasswordChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.OldPw == "" || req.NewPw == "" {
		respondError(c, http.StatusBadRequest, "Missing required fields.")
		return
	}
	if req.OldPw == req.NewPw {
		respondError(c, http.StatusBadRequest, "New password cannot be the same as the old password.")
		return
	}

	ctx := c.Request.Context()
	current, _ := SessionUser(c)
	user, err := h.users.GetUserByID(ctx, current.ID)
	if errors.Is(err, common.ErrNotFound) {
		respondError(c, http.StatusNotFound, "User not found.")
		return
	}
	if err != nil {
		respondInternal(c, "get user failed", err)
		return
	}
	if !h.hasher.Compare(user.PasswordHash, req.OldPw) {
		respondError(c, http.StatusBadRequest, "Old password is incorrect.")
		return
	}

	hash, err := h.hasher.Hash(req.NewPw)
	if err != nil {
		respondInternal(c, "password hash failed", err)
		return
	}
	if err := h.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		respondInternal(c, "update password failed", err)
		return
	}
	if err := h.sessions.Revoke(ctx, user.ID); err != nil {
		respondInternal(c, "session revoke failed", err)
		return
	}
	respondOK(c, "Update user password successfully.", nil)
}

// UploadAvatar 上传头像到对象存储并更新 avatar 字段
func (h *Handler) UploadAvatar(c *gin.Context) {
	if h.avatars == nil {
		respondError(c, http.StatusServiceUnavailable, "Avatar storage is not configured.")
		return
	}
	maxBytes := getEnvInt64("AVATAR_MAX_BYTES", defaultAvatarMaxBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "Missing file.")
		return
	}
	if fileHeader.Size <= 0 || fileHeader.Size > maxBytes {
		respondError(c, http.StatusBadRequest, "File size exceeds limit.")
		return
	}
	contentType := fileHeader.Header.Get("Content-Type")
	if _, ok := repository.AvatarExtension(contentType); !ok {
		respondError(c, http.StatusBadRequest, "Unsupported image type.")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		respondInternal(c, "open avatar failed", err)
		return
	}
	defer f.Close()

	ctx := c.Request.Context()
	current, _ := SessionUser(c)
	url, err := h.avatars.PutAvatar(ctx, current.ID, contentType, f, fileHeader.Size)
	if err != nil {
		respondInternal(c, "avatar upload failed", err)
		return
	}
	if err := h.users.UpdateAvatar(ctx, current.ID, url); err != nil {
		respondInternal(c, "update avatar failed", err)
		return
	}

	updated := *current
	updated.Avatar = &url
	h.refreshSession(c, &updated)
	respondOK(c, "Upload avatar successfully.", gin.H{"avatar": url})
}

// ListUsers 管理员分页查询用户
func (h *Handler) ListUsers(c *gin.Context) {
	page, size := parsePage(c.Query("page"), c.Query("size"))
	ctx := c.Request.Context()

	users, err := h.users.ListUsers(ctx, offsetOf(page, size), size)
	if err != nil {
		respondInternal(c, "list users failed", err)
		return
	}
	total, err := h.users.CountUsers(ctx)
	if err != nil {
		respondInternal(c, "count users failed", err)
		return
	}

	profiles := make([]model.Profile, 0, len(users))
	for i := range users {
		profiles = append(profiles, users[i].Profile())
	}
	respondOK(c, "Get user list successfully.", gin.H{
		"users": profiles,
		"total": total,
		"page":  page,
		"size":  size,
	})
}

// BanUser 封禁用户并立即删除其会话
func (h *Handler) BanUser(c *gin.Context) {
	var req model.BanRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID <= 0 || strings.TrimSpace(req.Reason) == "" || req.Duration <= 0 {
		respondError(c, http.StatusBadRequest, "Missing required fields.")
		return
	}

	if req.Duration > maxBanDays {
		respondError(c, http.StatusBadRequest, "Ban duration exceeds 36500 days.")
		return
	}

	ctx := c.Request.Context()
	user, ok := h.loadTargetUser(c, req.UserID)
	if !ok {
		return
	}
	if user.IsBanned && !h.banLapsed(user) {
		respondError(c, http.StatusBadRequest, "User is already banned.")
		return
	}

	reason := strings.TrimSpace(req.Reason)
	expiration := h.now().UTC().Add(time.Duration(req.Duration * float64(24*time.Hour)))
	user.IsBanned = true
	user.BanReason = &reason
	user.BanExpiration = &expiration
	if err := h.users.UpdateUser(ctx, user); err != nil {
		respondInternal(c, "ban user failed", err)
		return
	}
	if err := h.sessions.Revoke(ctx, user.ID); err != nil {
		respondInternal(c, "session revoke failed", err)
		return
	}
	respondOK(c, "Ban user successfully.", banInfo(user))
}

// UnbanUser 解除封禁
func (h *Handler) UnbanUser(c *gin.Context) {
	var req model.UserIDRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID <= 0 {
		respondError(c, http.StatusBadRequest, "Missing required fields.")
		return
	}

	user, ok := h.loadTargetUser(c, req.UserID)
	if !ok {
		return
	}
	if !user.IsBanned {
		respondError(c, http.StatusBadRequest, "User is not banned.")
		return
	}

	user.IsBanned = false
	user.BanReason = nil
	user.BanExpiration = nil
	if err := h.users.UpdateUser(c.Request.Context(), user); err != nil {
		respondInternal(c, "unban user failed", err)
		return
	}
	h.refreshSession(c, user)
	respondOK(c, "Unban user successfully.", nil)
}

// DeleteUser 删除非管理员账号
func (h *Handler) DeleteUser(c *gin.Context) {
	var req model.UserIDRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID <= 0 {
		respondError(c, http.StatusBadRequest, "Missing required fields.")
		return
	}

	ctx := c.Request.Context()
	user, ok := h.loadTargetUser(c, req.UserID)
	if !ok {
		return
	}
	if user.IsAdmin {
		respondError(c, http.StatusForbidden, "Admin accounts cannot be deleted.")
		return
	}

	if err := h.users.DeleteUser(ctx, user.ID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			respondError(c, http.StatusNotFound, "User not found.")
			return
		}
		respondInternal(c, "delete user failed", err)
		return
	}
	if err := h.sessions.Revoke(ctx, user.ID); err != nil {
		requestLogger(c).Warn("session revoke after delete failed", "user_id", user.ID, "error", err)
	}
	respondOK(c, "Delete user successfully.", nil)
}

func (h *Handler) loadTargetUser(c *gin.Context, id int64) (*model.User, bool) {
	user, err := h.users.GetUserByID(c.Request.Context(), id)
	if errors.Is(err, common.ErrNotFound) {
		respondError(c, http.StatusNotFound, "User not found.")
		return nil, false
	}
	if err != nil {
		respondInternal(c, "get user failed", err)
		return nil, false
	}
	return user, true
}

// refreshSession 更新已存在的会话; 失败只记录日志, 数据库已是最新
func (h *Handler) refreshSession(c *gin.Context, u *model.User) {
	if _, err := h.sessions.Refresh(c.Request.Context(), u); err != nil {
		requestLogger(c).Warn("session refresh failed", "user_id", u.ID, "error", err)
	}
}
