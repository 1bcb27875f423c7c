package model

import "time"

// EquipmentInfo 设备登记记录 (equipment_info 表)
type EquipmentInfo struct {
	InfoUUID string    `json:"info_uuid"`
	BiosID   string    `json:"bios_id"`
	Country  string    `json:"country"`
	UserID   int64     `json:"user_id"`
	Date     time.Time `json:"date"`
}

// EquipmentDisposition 设备配置快照 (equipment_disposition 表)
type EquipmentDisposition struct {
	InfoUUID           string `json:"info_uuid"`
	EquipmentUUID      string `json:"equipment_uuid"`
	SystemArchitecture string `json:"system_architecture"`
	System             string `json:"system"`
	SystemID           string `json:"system_id"`
	RAMInfo            string `json:"ram_info"`
	Date               string `json:"date"`
	RunFile            string `json:"wonderlab_run_file"`
	ClientVersion      string `json:"wonderlab_v"`
}

// EquipmentFilter narrows equipment_info listings.
type EquipmentFilter struct {
	UserID  int64
	Country string
}

// Page is a generic listing envelope used by the equipment endpoints.
type Page[T any] struct {
	Data     []T   `json:"data"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
}
