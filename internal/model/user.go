package model

import (
	"strings"
	"time"
)

// User 用户记录 (users 表)
type User struct {
	ID            int64      `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	IsBanned      bool       `json:"is_banned"`
	BanReason     *string    `json:"ban_reason"`
	BanExpiration *time.Time `json:"ban_expiration"`
	IsAdmin       bool       `json:"is_admin"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at"`
	LastLogin     *time.Time `json:"last_login"`
	Avatar        *string    `json:"avatar"`
	QQNum         *string    `json:"qq_num"`
	EmailVerified bool       `json:"email_verified"`
}

// Profile is the view returned by /user/info/:id.
type Profile struct {
	ID            int64      `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	IsBanned      bool       `json:"is_banned"`
	BanReason     *string    `json:"ban_reason"`
	BanExpiration *time.Time `json:"ban_expiration"`
	IsAdmin       bool       `json:"is_admin"`
	Avatar        *string    `json:"avatar"`
	QQNum         *string    `json:"qq_num"`
	LastLogin     *time.Time `json:"last_login"`
}

func (u *User) Profile() Profile {
	return Profile{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		IsBanned:      u.IsBanned,
		BanReason:     u.BanReason,
		BanExpiration: u.BanExpiration,
		IsAdmin:       u.IsAdmin,
		Avatar:        u.Avatar,
		QQNum:         u.QQNum,
		LastLogin:     u.LastLogin,
	}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	QQNum    string `json:"qq_num"`
}

// LoginRequest 登录请求, account 为邮箱或数字 ID
type LoginRequest struct {
	Account  string `json:"account"`
	Password string `json:"password"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token  string `json:"token"`
	UserID int64  `json:"userId"`
}

// BanInfo is attached to the 403 returned for banned accounts.
type BanInfo struct {
	BanReason     string `json:"banReason"`
	BanExpiration string `json:"banExpiration"`
}

// UserSelfPatch lists the only fields a user may change on their own record.
// Anything not named here is ignored, so new sensitive columns stay protected.
type UserSelfPatch struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	QQNum    *string `json:"qq_num"`
}

// Apply merges the patch into u and reports whether the email changed.
func (p UserSelfPatch) Apply(u *User) (emailChanged bool) {
	if p.Username != nil && strings.TrimSpace(*p.Username) != "" {
		u.Username = strings.TrimSpace(*p.Username)
	}
	if p.Email != nil && strings.TrimSpace(*p.Email) != "" {
		email := strings.TrimSpace(*p.Email)
		if email != u.Email {
			u.Email = email
			emailChanged = true
		}
	}
	if p.QQNum != nil {
		u.QQNum = nullIfBlank(*p.QQNum)
	}
	return emailChanged
}

// UserAdminPatch lists what an admin may change on another account. Password,
// ban state, timestamps and avatar have their own endpoints.
type UserAdminPatch struct {
	ID            int64   `json:"id"`
	Username      *string `json:"username"`
	Email         *string `json:"email"`
	QQNum         *string `json:"qq_num"`
	IsAdmin       *bool   `json:"is_admin"`
	EmailVerified *bool   `json:"email_verified"`
}

// Apply merges the patch into u and reports whether the email changed.
func (p UserAdminPatch) Apply(u *User) (emailChanged bool) {
	emailChanged = UserSelfPatch{Username: p.Username, Email: p.Email, QQNum: p.QQNum}.Apply(u)
	if p.IsAdmin != nil {
		u.IsAdmin = *p.IsAdmin
	}
	if p.EmailVerified != nil {
		u.EmailVerified = *p.EmailVerified
	}
	return emailChanged
}

// PasswordChangeRequest 修改密码请求
type PasswordChangeRequest struct {
	OldPw string `json:"oldPw"`
	NewPw string `json:"newPw"`
}

// BanRequest 封禁请求, Duration 单位为天
type BanRequest struct {
	UserID   int64   `json:"userId"`
	Reason   string  `json:"reason"`
	Duration float64 `json:"duration"`
}

// UserIDRequest carries a single target user id (unBan, delete).
type UserIDRequest struct {
	UserID int64 `json:"userId"`
}

func nullIfBlank(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
