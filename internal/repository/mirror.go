package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lingke-net/Space.Tab/internal/model"
	"github.com/lingke-net/Space.Tab/pkg/common"
)

// GetMirror 按 ID 查询镜像
func (d *MySQLDB) GetMirror(ctx context.Context, id int64) (*model.GithubMirror, error) {
	var m model.GithubMirror
	err := d.db.QueryRowContext(ctx, `SELECT id, name, url, created_at FROM github_mirror_info WHERE id = ?`, id).
		Scan(&m.ID, &m.Name, &m.URL, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get mirror: %w", err)
	}
	return &m, nil
}

// ListMirrors 列出全部镜像
func (d *MySQLDB) ListMirrors(ctx context.Context) ([]model.GithubMirror, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, name, url, created_at FROM github_mirror_info ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list mirrors: %w", err)
	}
	defer rows.Close()

	mirrors := make([]model.GithubMirror, 0)
	for rows.Next() {
		var m model.GithubMirror
		if err := rows.Scan(&m.ID, &m.Name, &m.URL, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("list mirrors: scan: %w", err)
		}
		mirrors = append(mirrors, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list mirrors: %w", err)
	}
	return mirrors, nil
}

// CreateMirror 新增镜像
func (d *MySQLDB) CreateMirror(ctx context.Context, name, url string) (*model.GithubMirror, error) {
	res, err := d.db.ExecContext(ctx, `INSERT INTO github_mirror_info (name, url) VALUES (?, ?)`, name, url)
	if err != nil {
		return nil, mapWriteErr("create mirror", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create mirror: last insert id: %w", err)
	}
	return &model.GithubMirror{ID: id, Name: name, URL: url}, nil
}
