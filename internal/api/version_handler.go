package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lingke-net/Space.Tab/internal/release"
	"github.com/lingke-net/Space.Tab/pkg/common"
)

// GetMirror 按 id 查询镜像
func (h *Handler) GetMirror(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "id is required.")
		return
	}
	mirror, err := h.mirrors.GetMirror(c.Request.Context(), id)
	if errors.Is(err, common.ErrNotFound) {
		respondError(c, http.StatusNotFound, "Mirror not found.")
		return
	}
	if err != nil {
		respondInternal(c, "get mirror failed", err)
		return
	}
	respondOK(c, "Get mirror success.", mirror)
}

// ListMirrors 返回全部镜像
func (h *Handler) ListMirrors(c *gin.Context) {
	mirrors, err := h.mirrors.ListMirrors(c.Request.Context())
	if err != nil {
		respondInternal(c, "list mirrors failed", err)
		return
	}
	respondOK(c, "Get mirror list success.", mirrors)
}

type addMirrorRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// AddMirror 新增镜像
func (h *Handler) AddMirror(c *gin.Context) {
	var req addMirrorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "name and url are required.")
		return
	}
	name, rawURL := strings.TrimSpace(req.Name), strings.TrimSpace(req.URL)
	if name == "" || rawURL == "" {
		respondError(c, http.StatusBadRequest, "name and url are required.")
		return
	}
	if u, err := url.Parse(rawURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		respondError(c, http.StatusBadRequest, "url must be an absolute http(s) URL.")
		return
	}
	mirror, err := h.mirrors.CreateMirror(c.Request.Context(), name, rawURL)
	if err != nil {
		respondInternal(c, "add mirror failed", err)
		return
	}
	respondOK(c, "Add mirror success.", mirror)
}

// GetLatestList 通过指定镜像分页拉取 release 列表
func (h *Handler) GetLatestList(c *gin.Context) {
	mirrorRaw, pageRaw, sizeRaw := c.Query("mirrorId"), c.Query("pageNum"), c.Query("pageSize")
	if mirrorRaw == "" || pageRaw == "" || sizeRaw == "" {
		respondError(c, http.StatusBadRequest, "mirrorId, pageNum, pageSize are required.")
		return
	}
	mirrorID, err1 := strconv.ParseInt(mirrorRaw, 10, 64)
	_, err2 := strconv.Atoi(pageRaw)
	_, err3 := strconv.Atoi(sizeRaw)
	if err1 != nil || err2 != nil || err3 != nil {
		respondError(c, http.StatusBadRequest, "mirrorId, pageNum, pageSize must be number.")
		return
	}
	page, size := parsePage(pageRaw, sizeRaw)

	ctx := c.Request.Context()
	mirror, err := h.mirrors.GetMirror(ctx, mirrorID)
	if errors.Is(err, common.ErrNotFound) {
		respondError(c, http.StatusNotFound, "Mirror not found.")
		return
	}
	if err != nil {
		respondInternal(c, "get mirror failed", err)
		return
	}

	start := time.Now()
	releases, err := h.releases.ListReleases(ctx, mirror.URL, page, size)
	var upstream *release.UpstreamError
	switch {
	case err == nil:
		mirrorFetchDurationSeconds.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	case errors.Is(err, release.ErrMirrorTimeout):
		mirrorFetchDurationSeconds.WithLabelValues("timeout").Observe(time.Since(start).Seconds())
		requestLogger(c).Warn("mirror timeout", "mirror_id", mirror.ID, "error", err)
		respondError(c, http.StatusGatewayTimeout, "Request mirror timeout.")
		return
	case errors.As(err, &upstream):
		mirrorFetchDurationSeconds.WithLabelValues("upstream_error").Observe(time.Since(start).Seconds())
		requestLogger(c).Warn("mirror upstream error", "mirror_id", mirror.ID, "status", upstream.Status)
		respondError(c, http.StatusBadGateway, upstream.Error())
		return
	default:
		mirrorFetchDurationSeconds.WithLabelValues("unavailable").Observe(time.Since(start).Seconds())
		requestLogger(c).Warn("mirror unavailable", "mirror_id", mirror.ID, "error", err)
		respondError(c, http.StatusBadGateway, "Mirror unavailable.")
		return
	}

	if len(releases) == 0 {
		respondError(c, http.StatusNotFound, "Not found version.")
		return
	}
	respondOK(c, "Get version list success.", releases)
}

// GetLatest 机器客户端查询最新版本
func (h *Handler) GetLatest(c *gin.Context) {
	if h.latest.Latest == "" {
		respondError(c, http.StatusNotFound, "Latest version is not configured.")
		return
	}
	respondOK(c, "Get latest version success.", h.latest)
}
