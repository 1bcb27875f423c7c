package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lingke-net/Space.Tab/internal/model"
	"github.com/lingke-net/Space.Tab/pkg/common"
)

// equipmentRequest 设备登记请求; user_id 兼容数字与字符串
type equipmentRequest struct {
	BiosID   string      `json:"bios_id"`
	Country  string      `json:"country"`
	UserID   json.Number `json:"user_id"`
	InfoUUID string      `json:"info_uuid"`
}

func (r *equipmentRequest) toInfo() (*model.EquipmentInfo, bool) {
	userID, err := strconv.ParseInt(r.UserID.String(), 10, 64)
	biosID := strings.TrimSpace(r.BiosID)
	country := strings.TrimSpace(r.Country)
	if err != nil || userID <= 0 || biosID == "" || country == "" {
		return nil, false
	}
	return &model.EquipmentInfo{BiosID: biosID, Country: country, UserID: userID}, true
}

// ListEquipmentInfo 管理员分页查询设备
func (h *Handler) ListEquipmentInfo(c *gin.Context) {
	page, size := parsePage(c.Query("page"), c.Query("pageSize"))
	filter := model.EquipmentFilter{Country: strings.TrimSpace(c.Query("country"))}
	if uid, err := strconv.ParseInt(c.Query("user_id"), 10, 64); err == nil && uid > 0 {
		filter.UserID = uid
	}
	result, err := h.equipment.ListEquipmentInfo(c.Request.Context(), filter, page, size)
	if err != nil {
		respondInternal(c, "list equipment info failed", err)
		return
	}
	respondOK(c, "Get equipment info success.", result)
}

// AddEquipmentInfo 管理员直接添加设备 (不做去重)
func (h *Handler) AddEquipmentInfo(c *gin.Context) {
	var req equipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Missing or invalid required fields.")
		return
	}
	info, ok := req.toInfo()
	if !ok {
		respondError(c, http.StatusBadRequest, "Missing or invalid required fields.")
		return
	}
	info.InfoUUID = uuid.NewString()
	info.Date = h.now().UTC()
	if err := h.equipment.CreateEquipmentInfo(c.Request.Context(), info); err != nil {
		if errors.Is(err, common.ErrConflict) {
			respondError(c, http.StatusConflict, "Equipment already registered.")
			return
		}
		respondInternal(c, "add equipment info failed", err)
		return
	}
	respondOK(c, "Add equipment info success.", gin.H{"info_uuid": info.InfoUUID})
}

// ListEquipmentDispositions 管理员分页查询设备配置
func (h *Handler) ListEquipmentDispositions(c *gin.Context) {
	page, size := parsePage(c.Query("page"), c.Query("pageSize"))
	result, err := h.equipment.ListEquipmentDispositions(c.Request.Context(), strings.TrimSpace(c.Query("equipment_uuid")), page, size)
	if err != nil {
		respondInternal(c, "list equipment dispositions failed", err)
		return
	}
	respondOK(c, "Get equipment disposition success.", result)
}

func validDisposition(d *model.EquipmentDisposition) bool {
	for _, v := range []string{d.SystemArchitecture, d.System, d.SystemID, d.RAMInfo, d.Date, d.RunFile, d.ClientVersion} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// AddEquipmentDisposition 添加设备配置快照
func (h *Handler) AddEquipmentDisposition(c *gin.Context) {
	var d model.EquipmentDisposition
	if err := c.ShouldBindJSON(&d); err != nil || strings.TrimSpace(d.EquipmentUUID) == "" || !validDisposition(&d) {
		respondError(c, http.StatusBadRequest, "Missing or invalid required fields.")
		return
	}
	d.InfoUUID = uuid.NewString()
	if err := h.equipment.CreateEquipmentDisposition(c.Request.Context(), &d); err != nil {
		respondInternal(c, "add equipment disposition failed", err)
		return
	}
	respondOK(c, "Add equipment disposition success.", gin.H{"info_uuid": d.InfoUUID})
}

// UpdateEquipmentDisposition 按 info_uuid 覆盖设备配置
func (h *Handler) UpdateEquipmentDisposition(c *gin.Context) {
	infoUUID := strings.TrimSpace(c.Param("infoUUID"))
	if infoUUID == "" {
		respondError(c, http.StatusBadRequest, "Missing info_uuid.")
		return
	}
	var d model.EquipmentDisposition
	if err := c.ShouldBindJSON(&d); err != nil || !validDisposition(&d) {
		respondError(c, http.StatusBadRequest, "Missing or invalid required fields.")
		return
	}
	d.InfoUUID = infoUUID
	if err := h.equipment.UpdateEquipmentDisposition(c.Request.Context(), &d); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			respondError(c, http.StatusNotFound, "Equipment disposition not found.")
			return
		}
		respondInternal(c, "update equipment disposition failed", err)
		return
	}
	respondOK(c, "Update equipment disposition success.", nil)
}

// AdminRegisterEquipment 管理员登记设备, 可指定 info_uuid
func (h *Handler) AdminRegisterEquipment(c *gin.Context) {
	var req equipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Missing or invalid required fields.")
		return
	}
	h.registerEquipment(c, &req, true)
}

// ClientRegisterEquipment 机器客户端通过加密载荷登记设备
func (h *Handler) ClientRegisterEquipment(c *gin.Context) {
	payload, _ := ClientPayload(c)
	var req equipmentRequest
	if err := payload.Decode(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Missing or invalid required fields.")
		return
	}
	h.registerEquipment(c, &req, false)
}

func (h *Handler) registerEquipment(c *gin.Context, req *equipmentRequest, allowCustomID bool) {
	info, ok := req.toInfo()
	if !ok {
		respondError(c, http.StatusBadRequest, "Missing or invalid required fields.")
		return
	}
	info.InfoUUID = uuid.NewString()
	if custom := strings.TrimSpace(req.InfoUUID); allowCustomID && custom != "" {
		info.InfoUUID = custom
	}
	info.Date = h.now().UTC()

	if err := h.equipment.RegisterEquipment(c.Request.Context(), info); err != nil {
		if errors.Is(err, common.ErrConflict) {
			respondError(c, http.StatusConflict, "Equipment already registered.")
			return
		}
		respondInternal(c, "register equipment failed", err)
		return
	}
	respondOK(c, "Register equipment success.", gin.H{"info_uuid": info.InfoUUID})
}
