package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/lingke-net/Space.Tab/pkg/common"
)

// AuditStatus 审核状态
type AuditStatus string

const (
	AuditYes  AuditStatus = "yes"  // 审核通过, 对外可见
	AuditNo   AuditStatus = "no"   // 审核未通过
	AuditLock AuditStatus = "lock" // 新建/待审核
)

// ParseAuditStatus accepts exactly yes, no or lock.
func ParseAuditStatus(raw string) (AuditStatus, error) {
	switch s := AuditStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case AuditYes, AuditNo, AuditLock:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", common.ErrInvalidAuditStatus, raw)
	}
}

// Visible reports whether rows in this state appear in public listings.
func (s AuditStatus) Visible() bool {
	return s == AuditYes
}

// ServerType 服务器类型
type ServerType string

const (
	ServerTypeVanilla ServerType = "原版服务器"
	ServerTypePlugin  ServerType = "插件服务器"
	ServerTypeMod     ServerType = "MOD服务器"
	ServerTypeHybrid  ServerType = "插件MOD混合服务器"
)

func (t ServerType) Valid() bool {
	switch t {
	case ServerTypeVanilla, ServerTypePlugin, ServerTypeMod, ServerTypeHybrid:
		return true
	}
	return false
}

// ServerOAuth 验证类型
type ServerOAuth string

const (
	ServerOAuthMojang    ServerOAuth = "mojang"
	ServerOAuthNone      ServerOAuth = "none"
	ServerOAuthYggdrasil ServerOAuth = "yggdrasil"
)

func (o ServerOAuth) Valid() bool {
	switch o {
	case ServerOAuthMojang, ServerOAuthNone, ServerOAuthYggdrasil:
		return true
	}
	return false
}

// ServerInfo 服务器信息 (server_info 表)
type ServerInfo struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	ServerIconURL   string      `json:"server_icon_url"`
	ServerAboutID   *string     `json:"server_about_id"`
	Country         string      `json:"country"`
	UserID          int64       `json:"user_id"`
	Date            time.Time   `json:"date"`
	Todo            int64       `json:"todo"`
	AuditStatus     AuditStatus `json:"audit_status"`
	AuditReason     *string     `json:"audit_reason"`
	AboutTotalCount *int64      `json:"aboutTotalCount,omitempty"`
}

// ServerAbout 服务器详细信息 (server_about 表), 一个 ServerInfo 可有多条
type ServerAbout struct {
	ID          string            `json:"id"`
	About       string            `json:"about"`
	DocsURL     *string           `json:"docs_url"`
	InfoID      string            `json:"info_id"`
	IP          map[string]string `json:"ip"`
	ServerType  ServerType        `json:"server_type"`
	ServerOAuth ServerOAuth       `json:"server_oauth"`
	QQGroup     map[string]string `json:"qq_group"`
	Date        time.Time         `json:"date"`
	AuditStatus AuditStatus       `json:"audit_status"`
	AuditReason *string           `json:"audit_reason"`
}

// ServerInfoInput is the caller-writable part of a ServerInfo. Status,
// owner, id and counters are always decided server-side.
type ServerInfoInput struct {
	Name          string `json:"name"`
	ServerIconURL string `json:"server_icon_url"`
	Country       string `json:"country"`
}

// ServerAboutInput is the caller-writable part of a ServerAbout.
type ServerAboutInput struct {
	About       string            `json:"about"`
	DocsURL     *string           `json:"docs_url"`
	InfoID      string            `json:"info_id"`
	IP          map[string]string `json:"ip"`
	ServerType  ServerType        `json:"server_type"`
	ServerOAuth ServerOAuth       `json:"server_oauth"`
	QQGroup     map[string]string `json:"qq_group"`
}

// AuditRequest 审核请求
type AuditRequest struct {
	ServerID    string  `json:"serverId"`
	AuditStatus string  `json:"audit_status"`
	AuditReason *string `json:"audit_reason"`
}

// ServerDetail pairs an info row with its about records.
type ServerDetail struct {
	Info  *ServerInfo   `json:"info"`
	About []ServerAbout `json:"about"`
}

// ServerPage is a page of info rows plus the total matching count.
type ServerPage struct {
	Total   int64        `json:"total"`
	Servers []ServerInfo `json:"servers"`
}

// AboutPage is a page of about rows plus the total matching count.
type AboutPage struct {
	Total int64         `json:"total"`
	About []ServerAbout `json:"about"`
}
