package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lingke-net/Space.Tab/internal/model"
	"github.com/lingke-net/Space.Tab/pkg/common"
)

// ListServers 公开列表, 只包含审核通过的记录
func (h *Handler) ListServers(c *gin.Context) {
	page, size := parsePage(c.Query("pageNum"), c.Query("pageSize"))
	result, err := h.servers.ListVisibleServers(c.Request.Context(), offsetOf(page, size), size)
	if err != nil {
		respondInternal(c, "list servers failed", err)
		return
	}
	respondOK(c, "Get server list success.", result)
}

// AdminListServers 返回全部记录并附带 about 数量
func (h *Handler) AdminListServers(c *gin.Context) {
	page, size := parsePage(c.Query("pageNum"), c.Query("pageSize"))
	result, err := h.servers.ListAllServers(c.Request.Context(), offsetOf(page, size), size)
	if err != nil {
		respondInternal(c, "admin list servers failed", err)
		return
	}
	respondOK(c, "Get server list success.", result)
}

// CreateServer 新建服务器, 审核状态固定为 lock
func (h *Handler) CreateServer(c *gin.Context) {
	var in model.ServerInfoInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body.")
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		respondError(c, http.StatusBadRequest, "Server name is required.")
		return
	}

	current, _ := SessionUser(c)
	info := &model.ServerInfo{
		ID:            uuid.NewString(),
		Name:          in.Name,
		ServerIconURL: in.ServerIconURL,
		Country:       in.Country,
		UserID:        current.ID,
		Date:          h.now().UTC(),
	}
	if err := h.servers.CreateServerInfo(c.Request.Context(), info); err != nil {
		respondInternal(c, "create server failed", err)
		return
	}
	respondOK(c, "Create server success.", info.ID)
}

// CreateServerAbout 为已有服务器添加 about, 审核状态固定为 lock
func (h *Handler) CreateServerAbout(c *gin.Context) {
	var in model.ServerAboutInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if strings.TrimSpace(in.InfoID) == "" {
		respondError(c, http.StatusBadRequest, "Server ID is required.")
		return
	}
	if !in.ServerType.Valid() || !in.ServerOAuth.Valid() {
		respondError(c, http.StatusBadRequest, "Invalid server_type or server_oauth.")
		return
	}

	ctx := c.Request.Context()
	current, _ := SessionUser(c)
	info, err := h.servers.GetServerInfo(ctx, in.InfoID)
	if errors.Is(err, common.ErrNotFound) {
		respondError(c, http.StatusNotFound, "Server not found.")
		return
	}
	if err != nil {
		respondInternal(c, "get server failed", err)
		return
	}
	if info.UserID != current.ID && !current.IsAdmin {
		respondError(c, http.StatusForbidden, "Forbidden: not the server owner.")
		return
	}

	about := &model.ServerAbout{
		ID:          uuid.NewString(),
		About:       in.About,
		DocsURL:     in.DocsURL,
		InfoID:      in.InfoID,
		IP:          in.IP,
		ServerType:  in.ServerType,
		ServerOAuth: in.ServerOAuth,
		QQGroup:     in.QQGroup,
		Date:        h.now().UTC(),
	}
	if err := h.servers.CreateServerAbout(ctx, about); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			respondError(c, http.StatusNotFound, "Server not found.")
			return
		}
		respondInternal(c, "create server about failed", err)
		return
	}
	respondOK(c, "Create server about success.", about.ID)
}

// ListServerAbouts 公开的 about 分页列表
func (h *Handler) ListServerAbouts(c *gin.Context) {
	page, size := parsePage(c.Query("pageNum"), c.Query("pageSize"))
	result, err := h.servers.ListServerAbouts(c.Request.Context(), c.Param("serverId"), true, offsetOf(page, size), size)
	if err != nil {
		respondInternal(c, "list server abouts failed", err)
		return
	}
	respondOK(c, "Get server about list success.", result)
}

// GetServer 公开详情, 同时累加访问计数
func (h *Handler) GetServer(c *gin.Context) {
	h.serveDetail(c, c.Param("serverId"), true)
}

// AdminGetServer 管理员详情, 包含全部 about
func (h *Handler) AdminGetServer(c *gin.Context) {
	h.serveDetail(c, c.Param("serverId"), false)
}

func (h *Handler) serveDetail(c *gin.Context, id string, public bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		respondError(c, http.StatusBadRequest, "Server ID is required.")
		return
	}
	ctx := c.Request.Context()
	detail, err := h.servers.GetServerDetail(ctx, id, public)
	if errors.Is(err, common.ErrNotFound) {
		respondError(c, http.StatusNotFound, "Server not found.")
		return
	}
	if err != nil {
		respondInternal(c, "get server failed", err)
		return
	}
	if public {
		if err := h.servers.IncrementServerTodo(ctx, id); err != nil {
			requestLogger(c).Warn("increment server todo failed", "server_id", id, "error", err)
		}
	}
	respondOK(c, "Get server info success.", detail)
}

// UpdateServer 所有者修改, 修改后重新进入 lock
func (h *Handler) UpdateServer(c *gin.Context) {
	in, ok := bindServerInput(c)
	if !ok {
		return
	}
	current, _ := SessionUser(c)
	err := h.servers.UpdateOwnServerInfo(c.Request.Context(), c.Param("serverId"), current.ID, in)
	h.finishServerUpdate(c, err)
}

// AdminUpdateServer 管理员修改, 保留审核状态
func (h *Handler) AdminUpdateServer(c *gin.Context) {
	in, ok := bindServerInput(c)
	if !ok {
		return
	}
	err := h.servers.UpdateServerInfo(c.Request.Context(), c.Param("serverId"), in)
	h.finishServerUpdate(c, err)
}

func bindServerInput(c *gin.Context) (model.ServerInfoInput, bool) {
	var in model.ServerInfoInput
	if strings.TrimSpace(c.Param("serverId")) == "" {
		respondError(c, http.StatusBadRequest, "Server ID is required.")
		return in, false
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body.")
		return in, false
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		respondError(c, http.StatusBadRequest, "Server name is required.")
		return in, false
	}
	return in, true
}

func (h *Handler) finishServerUpdate(c *gin.Context, err error) {
	switch {
	case err == nil:
		respondOK(c, "Update server success.", nil)
	case errors.Is(err, common.ErrNotFound):
		respondError(c, http.StatusNotFound, "Server not found.")
	default:
		respondInternal(c, "update server failed", err)
	}
}

// DeleteServer 所有者删除自己的服务器 (事务内级联删除 about)
func (h *Handler) DeleteServer(c *gin.Context) {
	id := strings.TrimSpace(c.Param("serverId"))
	if id == "" {
		respondError(c, http.StatusBadRequest, "Server ID is required.")
		return
	}
	current, _ := SessionUser(c)
	_, err := h.servers.DeleteServers(c.Request.Context(), []string{id}, current.ID)
	h.finishServerDelete(c, err)
}

type deleteServersRequest struct {
	ServerIDs []string `json:"serverIds"`
}

// AdminDeleteServers 删除路径中的服务器以及 body.serverIds 中的全部服务器
func (h *Handler) AdminDeleteServers(c *gin.Context) {
	var req deleteServersRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Invalid request body.")
			return
		}
	}

	seen := make(map[string]struct{})
	ids := make([]string, 0, len(req.ServerIDs)+1)
	for _, id := range append([]string{c.Param("serverId")}, req.ServerIDs...) {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		respondError(c, http.StatusBadRequest, "Server IDs are required.")
		return
	}

	deleted, err := h.servers.DeleteServers(c.Request.Context(), ids, 0)
	if err != nil {
		h.finishServerDelete(c, err)
		return
	}
	respondOK(c, "Delete servers success.", gin.H{"deleted": deleted})
}

func (h *Handler) finishServerDelete(c *gin.Context, err error) {
	switch {
	case err == nil:
		respondOK(c, "Delete server success.", nil)
	case errors.Is(err, common.ErrNotFound):
		respondError(c, http.StatusNotFound, "Server not found.")
	default:
		respondInternal(c, "delete server failed", err)
	}
}

// AuditServer 修改 server_info 审核状态
func (h *Handler) AuditServer(c *gin.Context) {
	h.audit(c, "info", h.servers.SetServerInfoAudit)
}

// AuditServerAbout 修改 server_about 审核状态
func (h *Handler) AuditServerAbout(c *gin.Context) {
	h.audit(c, "about", h.servers.SetServerAboutAudit)
}

type auditFunc func(ctx context.Context, id string, status model.AuditStatus, reason *string) error

func (h *Handler) audit(c *gin.Context, target string, set auditFunc) {
	id := strings.TrimSpace(firstNonEmpty(c.Param("serverId"), c.Param("aboutId")))
	var req model.AuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body.")
		return
	}
	id = firstNonEmpty(id, strings.TrimSpace(req.ServerID))
	if id == "" {
		respondError(c, http.StatusBadRequest, "Server ID is required.")
		return
	}
	status, err := model.ParseAuditStatus(req.AuditStatus)
	if err != nil {
		respondError(c, http.StatusBadRequest, "audit_status must be one of yes, no, lock.")
		return
	}

	if err := set(c.Request.Context(), id, status, req.AuditReason); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			respondError(c, http.StatusNotFound, "Server not found.")
			return
		}
		respondInternal(c, "audit failed", err)
		return
	}
	auditTransitionsTotal.WithLabelValues(target, string(status)).Inc()
	respondOK(c, "Audit server success.", nil)
}

type clientPageRequest struct {
	PageNum  json.Number `json:"pageNum"`
	PageSize json.Number `json:"pageSize"`
}

type clientServerRequest struct {
	ServerID string `json:"serverId"`
}

// ClientListServers 机器客户端获取公开列表, 分页参数来自加密载荷
func (h *Handler) ClientListServers(c *gin.Context) {
	payload, _ := ClientPayload(c)
	var req clientPageRequest
	if err := payload.Decode(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Page size and page num must be numbers.")
		return
	}
	page, size := parsePage(req.PageNum.String(), req.PageSize.String())
	result, err := h.servers.ListVisibleServers(c.Request.Context(), offsetOf(page, size), size)
	if err != nil {
		respondInternal(c, "client list servers failed", err)
		return
	}
	respondOK(c, "Get server list success.", result)
}

// ClientGetServer 机器客户端获取详情, 载荷中的 serverId 优先于路径
func (h *Handler) ClientGetServer(c *gin.Context) {
	payload, _ := ClientPayload(c)
	var req clientServerRequest
	if err := payload.Decode(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid decrypted payload.")
		return
	}
	h.serveDetail(c, firstNonEmpty(strings.TrimSpace(req.ServerID), c.Param("serverId")), true)
}
