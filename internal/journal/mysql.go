package journal

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"LiquiSafe-Chain/deploy/migrations"
	xerrors "LiquiSafe-Chain/internal/errors"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore 使用 MySQL 持久化审计记录。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 连接 MySQL 并确保表结构就绪。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// initSchema 按文件名顺序执行 deploy/migrations 下的全部迁移。
// 迁移语句均为幂等写法，重复执行不会破坏既有数据。
func (s *MySQLStore) initSchema() error {
	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取迁移目录失败")
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		stmt, err := migrations.Files.ReadFile(name)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取迁移文件 "+name+" 失败")
		}
		if _, err := s.db.Exec(string(stmt)); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "执行迁移 "+name+" 失败")
		}
	}
	return nil
}

// Append 插入一条审计记录。
func (s *MySQLStore) Append(ctx context.Context, record *Record) error {
	if record == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "record 不能为空")
	}
	const stmt = `INSERT INTO period_journal (id, period_id, round, event, detail, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt,
		record.ID, record.PeriodID, record.Round, record.Event, record.Detail, record.CreatedAt)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入审计记录失败")
	}
	return nil
}

// ListByPeriod 返回指定周期的记录，按写入顺序排列。
func (s *MySQLStore) ListByPeriod(ctx context.Context, periodID string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 200
	}
	const stmt = `SELECT id, period_id, round, event, detail, created_at
        FROM period_journal WHERE period_id = ? ORDER BY created_at ASC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, stmt, periodID, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询审计记录失败")
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Recent 返回最近写入的记录，最新的在前。
func (s *MySQLStore) Recent(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	const stmt = `SELECT id, period_id, round, event, detail, created_at
        FROM period_journal ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, stmt, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询审计记录失败")
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Close 关闭数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	out := make([]*Record, 0)
	for rows.Next() {
		var r Record
		var detail sql.NullString
		if err := rows.Scan(&r.ID, &r.PeriodID, &r.Round, &r.Event, &detail, &r.CreatedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取审计记录失败")
		}
		r.Detail = detail.String
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历审计记录失败")
	}
	return out, nil
}
