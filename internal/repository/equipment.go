package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lingke-net/Space.Tab/internal/model"
	"github.com/lingke-net/Space.Tab/pkg/common"
)

const equipmentInfoColumns = `info_uuid, bios_id, country, user_id, date`

// SYSTEM 在 MySQL 8 中是保留字, 需要反引号
const equipmentDispositionColumns = "info_uuid, equipment_uuid, system_architecture, `system`, system_id, ram_info, date, wonderlab_run_file, wonderlab_v"

func scanEquipmentInfo(row rowScanner) (*model.EquipmentInfo, error) {
	var e model.EquipmentInfo
	if err := row.Scan(&e.InfoUUID, &e.BiosID, &e.Country, &e.UserID, &e.Date); err != nil {
		return nil, err
	}
	return &e, nil
}

func scanEquipmentDisposition(row rowScanner) (*model.EquipmentDisposition, error) {
	var e model.EquipmentDisposition
	if err := row.Scan(&e.InfoUUID, &e.EquipmentUUID, &e.SystemArchitecture, &e.System, &e.SystemID,
		&e.RAMInfo, &e.Date, &e.RunFile, &e.ClientVersion); err != nil {
		return nil, err
	}
	return &e, nil
}

// FindEquipmentInfo 按 (bios_id, user_id) 查找设备
func (d *MySQLDB) FindEquipmentInfo(ctx context.Context, biosID string, userID int64) (*model.EquipmentInfo, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+equipmentInfoColumns+` FROM equipment_info WHERE bios_id = ? AND user_id = ? LIMIT 1`,
		biosID, userID,
	)
	e, err := scanEquipmentInfo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find equipment info: %w", err)
	}
	return e, nil
}

// CreateEquipmentInfo 直接插入设备记录, 唯一索引冲突时返回 common.ErrConflict
func (d *MySQLDB) CreateEquipmentInfo(ctx context.Context, e *model.EquipmentInfo) error {
	if _, err := d.db.ExecContext(ctx,
		`INSERT INTO equipment_info (info_uuid, bios_id, country, user_id, date) VALUES (?, ?, ?, ?, ?)`,
		e.InfoUUID, e.BiosID, e.Country, e.UserID, e.Date,
	); err != nil {
		return mapWriteErr("create equipment info", err)
	}
	return nil
}

// RegisterEquipment 先查后插; 已存在相同 (bios_id, user_id) 时返回 common.ErrConflict.
// 并发注册由唯一索引兜底, 同样映射为 ErrConflict.
func (d *MySQLDB) RegisterEquipment(ctx context.Context, e *model.EquipmentInfo) error {
	_, err := d.FindEquipmentInfo(ctx, e.BiosID, e.UserID)
	switch {
	case err == nil:
		return fmt.Errorf("register equipment: %w", common.ErrConflict)
	case !errors.Is(err, common.ErrNotFound):
		return err
	}
	return d.CreateEquipmentInfo(ctx, e)
}

// ListEquipmentInfo 按条件分页列出设备, 按登记时间倒序
func (d *MySQLDB) ListEquipmentInfo(ctx context.Context, f model.EquipmentFilter, page, pageSize int) (*model.Page[model.EquipmentInfo], error) {
	where := `WHERE 1=1`
	args := make([]any, 0, 4)
	if f.UserID > 0 {
		where += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if f.Country != "" {
		where += ` AND country = ?`
		args = append(args, f.Country)
	}

	var total int64
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM equipment_info `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count equipment info: %w", err)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT `+equipmentInfoColumns+` FROM equipment_info `+where+` ORDER BY date DESC LIMIT ? OFFSET ?`,
		append(args, pageSize, (page-1)*pageSize)...,
	)
	if err != nil {
		return nil, fmt.Errorf("list equipment info: %w", err)
	}
	defer rows.Close()

	out := &model.Page[model.EquipmentInfo]{Data: make([]model.EquipmentInfo, 0), Total: total, Page: page, PageSize: pageSize}
	for rows.Next() {
		e, err := scanEquipmentInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("list equipment info: scan: %w", err)
		}
		out.Data = append(out.Data, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list equipment info: %w", err)
	}
	return out, nil
}

// CreateEquipmentDisposition 新增设备配置快照
func (d *MySQLDB) CreateEquipmentDisposition(ctx context.Context, e *model.EquipmentDisposition) error {
	query := "INSERT INTO equipment_disposition (" + equipmentDispositionColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"
	if _, err := d.db.ExecContext(ctx, query,
		e.InfoUUID, e.EquipmentUUID, e.SystemArchitecture, e.System, e.SystemID, e.RAMInfo, e.Date, e.RunFile, e.ClientVersion,
	); err != nil {
		return mapWriteErr("create equipment disposition", err)
	}
	return nil
}

// ListEquipmentDispositions 分页列出配置快照, 可按 equipment_uuid 过滤
func (d *MySQLDB) ListEquipmentDispositions(ctx context.Context, equipmentUUID string, page, pageSize int) (*model.Page[model.EquipmentDisposition], error) {
	where := `WHERE 1=1`
	args := make([]any, 0, 3)
	if equipmentUUID != "" {
		where += ` AND equipment_uuid = ?`
		args = append(args, equipmentUUID)
	}

	var total int64
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM equipment_disposition `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count equipment dispositions: %w", err)
	}

	rows, err := d.db.QueryContext(ctx,
		"SELECT "+equipmentDispositionColumns+" FROM equipment_disposition "+where+" ORDER BY date DESC LIMIT ? OFFSET ?",
		append(args, pageSize, (page-1)*pageSize)...,
	)
	if err != nil {
		return nil, fmt.Errorf("list equipment dispositions: %w", err)
	}
	defer rows.Close()

	out := &model.Page[model.EquipmentDisposition]{Data: make([]model.EquipmentDisposition, 0), Total: total, Page: page, PageSize: pageSize}
	for rows.Next() {
		e, err := scanEquipmentDisposition(rows)
		if err != nil {
			return nil, fmt.Errorf("list equipment dispositions: scan: %w", err)
		}
		out.Data = append(out.Data, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list equipment dispositions: %w", err)
	}
	return out, nil
}

// UpdateEquipmentDisposition 按 info_uuid 覆盖配置快照 (equipment_uuid 不可改)
func (d *MySQLDB) UpdateEquipmentDisposition(ctx context.Context, e *model.EquipmentDisposition) error {
	query := "UPDATE equipment_disposition SET system_architecture = ?, `system` = ?, system_id = ?, ram_info = ?, date = ?, " +
		"wonderlab_run_file = ?, wonderlab_v = ? WHERE info_uuid = ?"
	res, err := d.db.ExecContext(ctx, query,
		e.SystemArchitecture, e.System, e.SystemID, e.RAMInfo, e.Date, e.RunFile, e.ClientVersion, e.InfoUUID,
	)
	if err != nil {
		return fmt.Errorf("update equipment disposition: %w", err)
	}
	return mustAffect("update equipment disposition", res)
}
