package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/Ajayi-Ayomide/Scanner-Eyes/internal/models"
)

// tokenKey 是持久化访问令牌使用的固定键名。
const tokenKey = "auth_token"

// Store 封装了对本地 SQLite 数据库的持久化访问。
// 访问令牌落盘前使用会话密钥加密。
type Store struct {
	DB  *sql.DB
	key [32]byte
}

// New 根据给定的 SQLite 文件路径与 32 字节密封密钥初始化 Store。
func New(dbPath string, sealKey []byte) (*Store, error) {
	if len(sealKey) < 32 {
		return nil, fmt.Errorf("seal key must be at least 32 bytes, got %d", len(sealKey))
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite 更适合单写入，这里保持简单配置。

	s := &Store{DB: db}
	copy(s.key[:], sealKey)
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close 释放数据库资源。
func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS scan_runs (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			target TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			results TEXT NOT NULL DEFAULT '[]',
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_scan_runs_started ON scan_runs(started_at DESC);`,
	}
	for _, stmt := range schema {
		if _, err := s.DB.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// SaveToken 加密保存访问令牌，覆盖之前的值。
func (s *Store) SaveToken(ctx context.Context, token string) error {
	sealed, err := s.seal(token)
	if err != nil {
		return fmt.Errorf("seal token: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		tokenKey, sealed,
	)
	return err
}

// LoadToken 读取并解密持久化的令牌。
// 没有令牌或解密失败（例如密钥轮换后）都按无令牌处理。
func (s *Store) LoadToken(ctx context.Context) (string, error) {
	var sealed string
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, tokenKey).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	token, ok := s.open(sealed)
	if !ok {
		return "", nil
	}
	return token, nil
}

// DeleteToken 移除持久化的令牌，不存在时同样视为成功。
func (s *Store) DeleteToken(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, tokenKey)
	return err
}

func (s *Store) seal(plain string) (string, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	boxed := secretbox.Seal(nonce[:], []byte(plain), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(boxed), nil
}

func (s *Store) open(sealed string) (string, bool) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < 24 {
		return "", false
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, &s.key)
	if !ok {
		return "", false
	}
	return string(plain), true
}

// SaveRun 记录一次已结束的扫描。
func (s *Store) SaveRun(ctx context.Context, rec models.ScanRecord) error {
	results := rec.Results
	if results == nil {
		results = []models.DeviceFinding{}
	}
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO scan_runs (id, mode, target, status, message, results, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Mode, rec.Target, rec.Status, rec.Message, string(data),
		rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
	)
	return err
}

// ListRuns 按开始时间倒序返回最近的扫描记录。
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.ScanRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, mode, target, status, message, results, started_at, finished_at
		 FROM scan_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.ScanRecord
	for rows.Next() {
		var rec models.ScanRecord
		var results string
		var started, finished time.Time
		if err := rows.Scan(&rec.ID, &rec.Mode, &rec.Target, &rec.Status, &rec.Message, &results, &started, &finished); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(results), &rec.Results); err != nil {
			rec.Results = []models.DeviceFinding{}
		}
		rec.StartedAt = started
		rec.FinishedAt = finished
		records = append(records, rec)
	}
	return records, rows.Err()
}
