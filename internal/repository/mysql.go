package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lingke-net/Space.Tab/pkg/common"
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = time.Hour

	mysqlErrDuplicateEntry = 1062
	mysqlErrNoReferenced   = 1452
)

// DBTX 是仓储层使用的 database/sql 子集, *sql.DB 和 *sql.Tx 均满足
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// MySQLDB 封装 MySQL 连接池
type MySQLDB struct {
	db *sql.DB
}

// MySQLConfigFromEnv 从 MYSQL_* 环境变量组装驱动配置
func MySQLConfigFromEnv() *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = getEnvString("MYSQL_USER", "root")
	cfg.Passwd = getEnvString("MYSQL_PASSWORD", "")
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(getEnvString("MYSQL_HOST", "127.0.0.1"), strconv.Itoa(getEnvInt("MYSQL_PORT", 3306)))
	cfg.DBName = getEnvString("MYSQL_DATABASE", "space_tab")
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	// 受影响行数按匹配行计算, 未变化的 UPDATE 不会被误判为不存在
	cfg.ClientFoundRows = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg
}

// NewMySQLDB 创建 MySQL 连接池并校验连通性
func NewMySQLDB(ctx context.Context, cfg *mysql.Config) (*MySQLDB, error) {
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)

	db.SetMaxOpenConns(getEnvInt("MYSQL_MAX_OPEN_CONNS", defaultMaxOpenConns))
	db.SetMaxIdleConns(getEnvInt("MYSQL_MAX_IDLE_CONNS", defaultMaxIdleConns))
	lifetimeMin := getEnvInt("MYSQL_CONN_MAX_LIFETIME_MIN", int(defaultConnMaxLifetime/time.Minute))
	db.SetConnMaxLifetime(time.Duration(lifetimeMin) * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql ping: %w", err)
	}
	return &MySQLDB{db: db}, nil
}

// NewMySQLDBFromConn 包装一个已打开的连接 (测试中传入 sqlmock)
func NewMySQLDBFromConn(db *sql.DB) *MySQLDB {
	return &MySQLDB{db: db}
}

// DB 返回底层连接池 (迁移使用)
func (d *MySQLDB) DB() *sql.DB {
	return d.db
}

// Close 关闭连接池
func (d *MySQLDB) Close() error {
	return d.db.Close()
}

// withTx 在事务中执行 fn, 出错或 panic 时回滚
func (d *MySQLDB) withTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("commit tx: %w", cerr)
		}
	}()

	return fn(ctx, tx)
}

func mysqlErrNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

// mapWriteErr 把驱动层的唯一键/外键冲突翻译成领域错误
func mapWriteErr(op string, err error) error {
	switch mysqlErrNumber(err) {
	case mysqlErrDuplicateEntry:
		return fmt.Errorf("%s: %w", op, common.ErrConflict)
	case mysqlErrNoReferenced:
		return fmt.Errorf("%s: %w", op, common.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func mustAffect(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, common.ErrNotFound)
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
