package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lingke-net/Space.Tab/internal/model"
	"github.com/lingke-net/Space.Tab/pkg/common"
)

const userColumns = `id, username, email, password, is_banned, ban_reason, ban_expiration, is_admin,
	created_at, updated_at, last_login, avatar, qq_num, email_verified`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u         model.User
		banReason sql.NullString
		banExpire sql.NullTime
		updatedAt sql.NullTime
		lastLogin sql.NullTime
		avatar    sql.NullString
		qqNum     sql.NullString
	)
	if err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsBanned, &banReason, &banExpire, &u.IsAdmin,
		&u.CreatedAt, &updatedAt, &lastLogin, &avatar, &qqNum, &u.EmailVerified,
	); err != nil {
		return nil, err
	}
	u.BanReason = stringPtr(banReason)
	u.BanExpiration = timePtr(banExpire)
	u.UpdatedAt = timePtr(updatedAt)
	u.LastLogin = timePtr(lastLogin)
	u.Avatar = stringPtr(avatar)
	u.QQNum = stringPtr(qqNum)
	return &u, nil
}

// CreateUser 创建用户, 邮箱重复时返回 common.ErrConflict
func (d *MySQLDB) CreateUser(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (username, email, password, is_banned, is_admin, qq_num, email_verified)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	res, err := d.db.ExecContext(ctx, query,
		u.Username, u.Email, u.PasswordHash, u.IsBanned, u.IsAdmin, nullString(u.QQNum), u.EmailVerified,
	)
	if err != nil {
		return mapWriteErr("create user", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create user: last insert id: %w", err)
	}
	u.ID = id
	return nil
}

func (d *MySQLDB) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where+` LIMIT 1`, arg)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByID 根据 ID 查询用户
func (d *MySQLDB) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return d.getUser(ctx, "id = ?", id)
}

// GetUserByEmail 根据邮箱查询用户
func (d *MySQLDB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return d.getUser(ctx, "email = ?", email)
}

// UpdateUser 写回除密码/创建时间外的全部字段
func (d *MySQLDB) UpdateUser(ctx context.Context, u *model.User) error {
	query := `
		UPDATE users SET
			username = ?, email = ?, is_banned = ?, ban_reason = ?, ban_expiration = ?, is_admin = ?,
			updated_at = NOW(), avatar = ?, qq_num = ?, email_verified = ?
		WHERE id = ?
	`
	res, err := d.db.ExecContext(ctx, query,
		u.Username, u.Email, u.IsBanned, nullString(u.BanReason), nullTime(u.BanExpiration), u.IsAdmin,
		nullString(u.Avatar), nullString(u.QQNum), u.EmailVerified, u.ID,
	)
	if err != nil {
		return mapWriteErr("update user", err)
	}
	return mustAffect("update user", res)
}

// UpdatePassword 更新密码哈希
func (d *MySQLDB) UpdatePassword(ctx context.Context, id int64, hash string) error {
	res, err := d.db.ExecContext(ctx, `UPDATE users SET password = ?, updated_at = NOW() WHERE id = ?`, hash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return mustAffect("update password", res)
}

// UpdateLastLogin 记录最后登录时间
func (d *MySQLDB) UpdateLastLogin(ctx context.Context, id int64) error {
	if _, err := d.db.ExecContext(ctx, `UPDATE users SET last_login = NOW() WHERE id = ?`, id); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdateAvatar 更新头像地址
func (d *MySQLDB) UpdateAvatar(ctx context.Context, id int64, url string) error {
	res, err := d.db.ExecContext(ctx, `UPDATE users SET avatar = ?, updated_at = NOW() WHERE id = ?`, url, id)
	if err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	return mustAffect("update avatar", res)
}

// DeleteUser 物理删除用户
func (d *MySQLDB) DeleteUser(ctx context.Context, id int64) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return mustAffect("delete user", res)
}

// ListUsers 分页列出用户
func (d *MySQLDB) ListUsers(ctx context.Context, offset, limit int) ([]model.User, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("list users: scan: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// CountUsers 用户总数
func (d *MySQLDB) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// LiftExpiredBans 解除已到期的封禁, 单次最多处理 limit 行
func (d *MySQLDB) LiftExpiredBans(ctx context.Context, now time.Time, limit int) (int64, error) {
	res, err := d.db.ExecContext(ctx, `
		UPDATE users SET is_banned = 0, ban_reason = NULL, ban_expiration = NULL, updated_at = NOW()
		WHERE is_banned = 1 AND ban_expiration IS NOT NULL AND ban_expiration <= ?
		LIMIT ?`, now.UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("lift expired bans: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("lift expired bans: rows affected: %w", err)
	}
	return n, nil
}
