package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"pagescan/internal/pipeline"
	"pagescan/pkg/contract"
)

// Store 将运行汇总持久化到 SQLite（仅计数与错误，不含页内容）。
type Store struct {
	db *sql.DB
}

var _ pipeline.Ledger = (*Store)(nil)

// Run 为一次运行的历史行。
type Run struct {
	RunID      string
	Manifest   string
	MaxRecords int
	StartedAt  time.Time
	FinishedAt time.Time
	Records    int
	Failed     int
	Totals     contract.ScanResult
	Fatal      string
}

// Open 打开（或创建）path 处的数据库并初始化表结构。
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("ledger path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// 单连接：SQLite 写入串行
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close 释放数据库资源。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS runs (
        run_id TEXT PRIMARY KEY,
        manifest TEXT NOT NULL,
        max_records INTEGER NOT NULL,
        started_at INTEGER NOT NULL,
        finished_at INTEGER NOT NULL,
        records INTEGER NOT NULL,
        failed INTEGER NOT NULL,
        pages INTEGER NOT NULL,
        short_pages INTEGER NOT NULL,
        bytes INTEGER NOT NULL,
        fatal TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS record_scans (
        run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
        seq INTEGER NOT NULL,
        folder TEXT NOT NULL,
        stem TEXT NOT NULL,
        pages INTEGER NOT NULL,
        short_pages INTEGER NOT NULL,
        bytes INTEGER NOT NULL,
        dur_ms INTEGER NOT NULL,
        code TEXT NOT NULL DEFAULT '',
        error TEXT NOT NULL DEFAULT '',
        PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

// RecordRun 在单个事务内写入运行行与全部记录行；同一 run_id 重复写入时替换。
func (s *Store) RecordRun(ctx context.Context, sum pipeline.Summary) (err error) {
	if sum.RunID == "" {
		return fmt.Errorf("%w: run id is empty", contract.ErrInvalidInput)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, sum.RunID); err != nil {
		return fmt.Errorf("replace run %s: %w", sum.RunID, err)
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO runs(run_id, manifest, max_records, started_at, finished_at, records, failed, pages, short_pages, bytes, fatal)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, sum.RunID, sum.Manifest, sum.MaxRecords, sum.StartedAt.UnixNano(), sum.FinishedAt.UnixNano(),
		len(sum.Records), sum.Failed, sum.Totals.Pages, sum.Totals.ShortPages, sum.Totals.Bytes, sum.Fatal)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", sum.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO record_scans(run_id, seq, folder, stem, pages, short_pages, bytes, dur_ms, code, error)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return fmt.Errorf("prepare record insert: %w", err)
	}
	defer stmt.Close()
	for _, r := range sum.Records {
		if _, err = stmt.ExecContext(ctx, sum.RunID, r.Seq, r.Folder, r.Stem, r.Pages, r.ShortPages, r.Bytes, r.DurMS, r.Code, r.Error); err != nil {
			return fmt.Errorf("insert record %d: %w", r.Seq, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Runs 返回最近 limit 次运行（新到旧）；limit<=0 返回全部。
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT run_id, manifest, max_records, started_at, finished_at, records, failed, pages, short_pages, bytes, fatal
FROM runs ORDER BY started_at DESC, run_id`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r               Run
			started, finish int64
		)
		if scanErr := rows.Scan(&r.RunID, &r.Manifest, &r.MaxRecords, &started, &finish, &r.Records, &r.Failed,
			&r.Totals.Pages, &r.Totals.ShortPages, &r.Totals.Bytes, &r.Fatal); scanErr != nil {
			return nil, fmt.Errorf("scan run: %w", scanErr)
		}
		r.StartedAt = time.Unix(0, started).UTC()
		r.FinishedAt = time.Unix(0, finish).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// RecordScans 返回某次运行的记录行（按 seq）。
func (s *Store) RecordScans(ctx context.Context, runID string) ([]pipeline.RecordScan, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT seq, folder, stem, pages, short_pages, bytes, dur_ms, code, error
FROM record_scans WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query record scans: %w", err)
	}
	defer rows.Close()

	var out []pipeline.RecordScan
	for rows.Next() {
		var r pipeline.RecordScan
		if scanErr := rows.Scan(&r.Seq, &r.Folder, &r.Stem, &r.Pages, &r.ShortPages, &r.Bytes, &r.DurMS, &r.Code, &r.Error); scanErr != nil {
			return nil, fmt.Errorf("scan record: %w", scanErr)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record scans: %w", err)
	}
	return out, nil
}
