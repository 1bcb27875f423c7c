/**
 * @file handler.go
 * @brief API 请求处理器及其依赖
 */
package api

import (
	"context"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lingke-net/Space.Tab/internal/auth"
	"github.com/lingke-net/Space.Tab/internal/model"
)

// UserStore 用户持久化
type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUser(ctx context.Context, u *model.User) error
	UpdatePassword(ctx context.Context, id int64, hash string) error
	UpdateLastLogin(ctx context.Context, id int64) error
	UpdateAvatar(ctx context.Context, id int64, url string) error
	DeleteUser(ctx context.Context, id int64) error
	ListUsers(ctx context.Context, offset, limit int) ([]model.User, error)
	CountUsers(ctx context.Context) (int64, error)
}

// ServerStore 服务器列表持久化
type ServerStore interface {
	ListVisibleServers(ctx context.Context, offset, limit int) (*model.ServerPage, error)
	ListAllServers(ctx context.Context, offset, limit int) (*model.ServerPage, error)
	GetServerInfo(ctx context.Context, id string) (*model.ServerInfo, error)
	GetServerDetail(ctx context.Context, id string, visibleOnly bool) (*model.ServerDetail, error)
	ListServerAbouts(ctx context.Context, infoID string, visibleOnly bool, offset, limit int) (*model.AboutPage, error)
	CreateServerInfo(ctx context.Context, s *model.ServerInfo) error
	CreateServerAbout(ctx context.Context, a *model.ServerAbout) error
	UpdateOwnServerInfo(ctx context.Context, id string, ownerID int64, in model.ServerInfoInput) error
	UpdateServerInfo(ctx context.Context, id string, in model.ServerInfoInput) error
	SetServerInfoAudit(ctx context.Context, id string, status model.AuditStatus, reason *string) error
	SetServerAboutAudit(ctx context.Context, id string, status model.AuditStatus, reason *string) error
	IncrementServerTodo(ctx context.Context, id string) error
	DeleteServers(ctx context.Context, ids []string, ownerID int64) (int64, error)
}

// EquipmentStore 设备登记持久化
type EquipmentStore interface {
	RegisterEquipment(ctx context.Context, e *model.EquipmentInfo) error
	CreateEquipmentInfo(ctx context.Context, e *model.EquipmentInfo) error
	ListEquipmentInfo(ctx context.Context, f model.EquipmentFilter, page, pageSize int) (*model.Page[model.EquipmentInfo], error)
	CreateEquipmentDisposition(ctx context.Context, e *model.EquipmentDisposition) error
	ListEquipmentDispositions(ctx context.Context, equipmentUUID string, page, pageSize int) (*model.Page[model.EquipmentDisposition], error)
	UpdateEquipmentDisposition(ctx context.Context, e *model.EquipmentDisposition) error
}

// MirrorStore GitHub 镜像持久化
type MirrorStore interface {
	GetMirror(ctx context.Context, id int64) (*model.GithubMirror, error)
	ListMirrors(ctx context.Context) ([]model.GithubMirror, error)
	CreateMirror(ctx context.Context, name, url string) (*model.GithubMirror, error)
}

// SessionStore 会话缓存
type SessionStore interface {
	Save(ctx context.Context, u *model.User) error
	Load(ctx context.Context, userID int64) (*model.User, error)
	Refresh(ctx context.Context, u *model.User) (bool, error)
	Revoke(ctx context.Context, userID int64) error
}

// ReleaseFetcher 拉取上游 release 列表
type ReleaseFetcher interface {
	ListReleases(ctx context.Context, baseURL string, page, perPage int) ([]model.Release, error)
}

// AvatarStorage 头像对象存储
type AvatarStorage interface {
	PutAvatar(ctx context.Context, userID int64, contentType string, reader io.Reader, size int64) (string, error)
}

// Counter 限流计数器
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) (bool, error)
}

// Deps 汇总 Handler 的全部依赖. Avatars / Limiter / Decrypter 可为空, 对应功能随之关闭.
type Deps struct {
	Users     UserStore
	Servers   ServerStore
	Equipment EquipmentStore
	Mirrors   MirrorStore
	Sessions  SessionStore
	Releases  ReleaseFetcher
	Avatars   AvatarStorage
	Limiter   Counter
	Tokens    *auth.TokenManager
	Hasher    *auth.Hasher
	Decrypter *auth.ClientDecrypter
	Latest    model.LatestVersion
}

// Handler 处理 API 请求
type Handler struct {
	users     UserStore
	servers   ServerStore
	equipment EquipmentStore
	mirrors   MirrorStore
	sessions  SessionStore
	releases  ReleaseFetcher
	avatars   AvatarStorage
	limiter   Counter
	tokens    *auth.TokenManager
	hasher    *auth.Hasher
	decrypter *auth.ClientDecrypter
	latest    model.LatestVersion
	now       func() time.Time
}

// NewHandler 创建新的 Handler
func NewHandler(d Deps) *Handler {
	hasher := d.Hasher
	if hasher == nil {
		hasher = auth.NewHasher(0)
	}
	return &Handler{
		users:     d.Users,
		servers:   d.Servers,
		equipment: d.Equipment,
		mirrors:   d.Mirrors,
		sessions:  d.Sessions,
		releases:  d.Releases,
		avatars:   d.Avatars,
		limiter:   d.Limiter,
		tokens:    d.Tokens,
		hasher:    hasher,
		decrypter: d.Decrypter,
		latest:    d.Latest,
		now:       time.Now,
	}
}

// Hello 存活探针
func (h *Handler) Hello(c *gin.Context) {
	respondOK(c, "Hello, World!", nil)
}

const (
	ctxSessionUserKey   = "session_user"
	ctxClientPayloadKey = "client_payload"
)

// SessionUser 返回认证中间件注入的已脱敏用户
func SessionUser(c *gin.Context) (*model.User, bool) {
	v, ok := c.Get(ctxSessionUserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*model.User)
	return u, ok && u != nil
}

// ClientPayload 返回客户端中间件解密后的载荷
func ClientPayload(c *gin.Context) (*auth.ClientPayload, bool) {
	v, ok := c.Get(ctxClientPayloadKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*auth.ClientPayload)
	return p, ok && p != nil
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
	// offset 保持在 int32 范围内
	maxPage = math.MaxInt32 / maxPageSize
)

// parsePage 规范化分页参数: page 从 1 开始且不超过 maxPage, size 超出 [1,100] 时回落为 10
func parsePage(pageRaw, sizeRaw string) (page, size int) {
	page, err := strconv.Atoi(pageRaw)
	if err != nil || page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	size, err = strconv.Atoi(sizeRaw)
	if err != nil || size < 1 || size > maxPageSize {
		size = defaultPageSize
	}
	return page, size
}

func offsetOf(page, size int) int {
	return (page - 1) * size
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
