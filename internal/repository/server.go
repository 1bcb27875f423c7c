package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lingke-net/Space.Tab/internal/model"
	"github.com/lingke-net/Space.Tab/pkg/common"
)

const serverInfoColumns = `id, name, server_icon_url, server_about_id, country, user_id, date, todo, audit_status, audit_reason`

const serverAboutColumns = `id, about, docs_url, info_id, ip, server_type, server_oauth, qq_group, date, audit_status, audit_reason`

func scanServerInfo(row rowScanner, extra ...any) (*model.ServerInfo, error) {
	var (
		s           model.ServerInfo
		aboutID     sql.NullString
		auditReason sql.NullString
	)
	dest := []any{&s.ID, &s.Name, &s.ServerIconURL, &aboutID, &s.Country, &s.UserID, &s.Date, &s.Todo, &s.AuditStatus, &auditReason}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	s.ServerAboutID = stringPtr(aboutID)
	s.AuditReason = stringPtr(auditReason)
	return &s, nil
}

func scanServerAbout(row rowScanner) (*model.ServerAbout, error) {
	var (
		a           model.ServerAbout
		docsURL     sql.NullString
		ip          []byte
		qqGroup     []byte
		auditReason sql.NullString
	)
	if err := row.Scan(&a.ID, &a.About, &docsURL, &a.InfoID, &ip, &a.ServerType, &a.ServerOAuth, &qqGroup, &a.Date, &a.AuditStatus, &auditReason); err != nil {
		return nil, err
	}
	a.DocsURL = stringPtr(docsURL)
	a.AuditReason = stringPtr(auditReason)
	if err := decodeJSONMap(ip, &a.IP); err != nil {
		return nil, fmt.Errorf("decode ip: %w", err)
	}
	if err := decodeJSONMap(qqGroup, &a.QQGroup); err != nil {
		return nil, fmt.Errorf("decode qq_group: %w", err)
	}
	return &a, nil
}

func decodeJSONMap(raw []byte, dst *map[string]string) error {
	if len(raw) == 0 {
		*dst = map[string]string{}
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func encodeJSONMap(m map[string]string) ([]byte, error) {
	if m == nil {
		m = map[string]string{}
	}
	return json.Marshal(m)
}

func (d *MySQLDB) queryServerInfos(ctx context.Context, query string, args ...any) ([]model.ServerInfo, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	servers := make([]model.ServerInfo, 0)
	for rows.Next() {
		s, err := scanServerInfo(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, *s)
	}
	return servers, rows.Err()
}

func (d *MySQLDB) queryServerAbouts(ctx context.Context, query string, args ...any) ([]model.ServerAbout, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	abouts := make([]model.ServerAbout, 0)
	for rows.Next() {
		a, err := scanServerAbout(rows)
		if err != nil {
			return nil, err
		}
		abouts = append(abouts, *a)
	}
	return abouts, rows.Err()
}

// ListVisibleServers 公开列表, 只返回审核通过的记录, total 也只统计可见记录
func (d *MySQLDB) ListVisibleServers(ctx context.Context, offset, limit int) (*model.ServerPage, error) {
	var total int64
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM server_info WHERE audit_status = ?`, model.AuditYes).Scan(&total); err != nil {
		return nil, fmt.Errorf("count visible servers: %w", err)
	}
	servers, err := d.queryServerInfos(ctx,
		`SELECT `+serverInfoColumns+` FROM server_info WHERE audit_status = ? ORDER BY date DESC, id LIMIT ? OFFSET ?`,
		model.AuditYes, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list visible servers: %w", err)
	}
	return &model.ServerPage{Total: total, Servers: servers}, nil
}

// ListAllServers 管理员列表, 不过滤审核状态, 附带每条记录的 about 数量
func (d *MySQLDB) ListAllServers(ctx context.Context, offset, limit int) (*model.ServerPage, error) {
	var total int64
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM server_info`).Scan(&total); err != nil {
		return nil, fmt.Errorf("count servers: %w", err)
	}

	query := `
		SELECT si.id, si.name, si.server_icon_url, si.server_about_id, si.country, si.user_id, si.date, si.todo,
		       si.audit_status, si.audit_reason, COUNT(sa.id)
		FROM server_info si
		LEFT JOIN server_about sa ON sa.info_id = si.id
		GROUP BY si.id
		ORDER BY si.date DESC, si.id
		LIMIT ? OFFSET ?
	`
	rows, err := d.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	defer rows.Close()

	servers := make([]model.ServerInfo, 0)
	for rows.Next() {
		var count int64
		s, err := scanServerInfo(rows, &count)
		if err != nil {
			return nil, fmt.Errorf("list servers: scan: %w", err)
		}
		s.AboutTotalCount = &count
		servers = append(servers, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	return &model.ServerPage{Total: total, Servers: servers}, nil
}

// GetServerInfo 查询单条服务器信息
func (d *MySQLDB) GetServerInfo(ctx context.Context, id string) (*model.ServerInfo, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+serverInfoColumns+` FROM server_info WHERE id = ?`, id)
	s, err := scanServerInfo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get server info: %w", err)
	}
	return s, nil
}

// GetServerDetail 返回服务器信息及其 about 记录; visibleOnly 时不可见的 info 视为不存在, about 也只返回可见的
func (d *MySQLDB) GetServerDetail(ctx context.Context, id string, visibleOnly bool) (*model.ServerDetail, error) {
	info, err := d.GetServerInfo(ctx, id)
	if err != nil {
		return nil, err
	}
	if visibleOnly && !info.AuditStatus.Visible() {
		return nil, fmt.Errorf("get server detail: %w", common.ErrNotFound)
	}

	query := `SELECT ` + serverAboutColumns + ` FROM server_about WHERE info_id = ? ORDER BY date DESC, id`
	args := []any{id}
	if visibleOnly {
		query = `SELECT ` + serverAboutColumns + ` FROM server_about WHERE info_id = ? AND audit_status = ? ORDER BY date DESC, id`
		args = append(args, model.AuditYes)
	}
	abouts, err := d.queryServerAbouts(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get server detail: abouts: %w", err)
	}
	return &model.ServerDetail{Info: info, About: abouts}, nil
}

// ListServerAbouts 分页列出某服务器的 about 记录; visibleOnly 时父 info 也必须可见, 否则返回空页
func (d *MySQLDB) ListServerAbouts(ctx context.Context, infoID string, visibleOnly bool, offset, limit int) (*model.AboutPage, error) {
	where := `info_id = ?`
	args := []any{infoID}
	if visibleOnly {
		where += ` AND audit_status = ? AND EXISTS (SELECT 1 FROM server_info si WHERE si.id = server_about.info_id AND si.audit_status = ?)`
		args = append(args, model.AuditYes, model.AuditYes)
	}

	var total int64
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM server_about WHERE `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count server abouts: %w", err)
	}
	abouts, err := d.queryServerAbouts(ctx,
		`SELECT `+serverAboutColumns+` FROM server_about WHERE `+where+` ORDER BY date DESC, id LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("list server abouts: %w", err)
	}
	return &model.AboutPage{Total: total, About: abouts}, nil
}

// CreateServerInfo 新建服务器, 审核状态强制为 lock
func (d *MySQLDB) CreateServerInfo(ctx context.Context, s *model.ServerInfo) error {
	s.AuditStatus = model.AuditLock
	s.AuditReason = nil
	s.Todo = 0
	query := `
		INSERT INTO server_info (id, name, server_icon_url, server_about_id, country, user_id, date, todo, audit_status, audit_reason)
		VALUES (?, ?, ?, NULL, ?, ?, ?, 0, ?, NULL)
	`
	if _, err := d.db.ExecContext(ctx, query, s.ID, s.Name, s.ServerIconURL, s.Country, s.UserID, s.Date, model.AuditLock); err != nil {
		return mapWriteErr("create server info", err)
	}
	return nil
}

// CreateServerAbout 新建 about 记录, 审核状态强制为 lock; info 不存在时返回 common.ErrNotFound
func (d *MySQLDB) CreateServerAbout(ctx context.Context, a *model.ServerAbout) error {
	a.AuditStatus = model.AuditLock
	a.AuditReason = nil
	ip, err := encodeJSONMap(a.IP)
	if err != nil {
		return fmt.Errorf("create server about: encode ip: %w", err)
	}
	qq, err := encodeJSONMap(a.QQGroup)
	if err != nil {
		return fmt.Errorf("create server about: encode qq_group: %w", err)
	}
	query := `
		INSERT INTO server_about (id, about, docs_url, info_id, ip, server_type, server_oauth, qq_group, date, audit_status, audit_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`
	if _, err := d.db.ExecContext(ctx, query,
		a.ID, a.About, nullString(a.DocsURL), a.InfoID, ip, a.ServerType, a.ServerOAuth, qq, a.Date, model.AuditLock,
	); err != nil {
		return mapWriteErr("create server about", err)
	}
	return nil
}

// UpdateOwnServerInfo 所有者修改自己的服务器, 修改后重新进入 lock 等待审核
func (d *MySQLDB) UpdateOwnServerInfo(ctx context.Context, id string, ownerID int64, in model.ServerInfoInput) error {
	query := `
		UPDATE server_info SET name = ?, server_icon_url = ?, country = ?, audit_status = ?, audit_reason = NULL
		WHERE id = ? AND user_id = ?
	`
	res, err := d.db.ExecContext(ctx, query, in.Name, in.ServerIconURL, in.Country, model.AuditLock, id, ownerID)
	if err != nil {
		return fmt.Errorf("update own server info: %w", err)
	}
	return mustAffect("update own server info", res)
}

// UpdateServerInfo 管理员修改服务器, 保留审核状态
func (d *MySQLDB) UpdateServerInfo(ctx context.Context, id string, in model.ServerInfoInput) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE server_info SET name = ?, server_icon_url = ?, country = ? WHERE id = ?`,
		in.Name, in.ServerIconURL, in.Country, id,
	)
	if err != nil {
		return fmt.Errorf("update server info: %w", err)
	}
	return mustAffect("update server info", res)
}

// SetServerInfoAudit 只修改 info 的审核状态与原因
func (d *MySQLDB) SetServerInfoAudit(ctx context.Context, id string, status model.AuditStatus, reason *string) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE server_info SET audit_status = ?, audit_reason = ? WHERE id = ?`,
		status, nullString(reason), id,
	)
	if err != nil {
		return fmt.Errorf("audit server info: %w", err)
	}
	return mustAffect("audit server info", res)
}

// SetServerAboutAudit 只修改 about 的审核状态与原因
func (d *MySQLDB) SetServerAboutAudit(ctx context.Context, id string, status model.AuditStatus, reason *string) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE server_about SET audit_status = ?, audit_reason = ? WHERE id = ?`,
		status, nullString(reason), id,
	)
	if err != nil {
		return fmt.Errorf("audit server about: %w", err)
	}
	return mustAffect("audit server about", res)
}

// IncrementServerTodo 访问计数 +1
func (d *MySQLDB) IncrementServerTodo(ctx context.Context, id string) error {
	if _, err := d.db.ExecContext(ctx, `UPDATE server_info SET todo = todo + 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("increment todo: %w", err)
	}
	return nil
}

// DeleteServers 在一个事务中删除 info 及其 about; ownerID > 0 时只删除该用户拥有的记录
func (d *MySQLDB) DeleteServers(ctx context.Context, ids []string, ownerID int64) (int64, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("delete servers: %w", common.ErrNotFound)
	}

	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	infoWhere := `id IN (` + placeholders(len(ids)) + `)`
	if ownerID > 0 {
		infoWhere += ` AND user_id = ?`
		args = append(args, ownerID)
	}

	var deleted int64
	err := d.withTx(ctx, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM server_about WHERE info_id IN (SELECT id FROM server_info WHERE `+infoWhere+`)`, args...,
		); err != nil {
			return fmt.Errorf("delete server abouts: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM server_info WHERE `+infoWhere, args...)
		if err != nil {
			return fmt.Errorf("delete server info: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete server info: rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("delete servers: %w", common.ErrNotFound)
		}
		deleted = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
