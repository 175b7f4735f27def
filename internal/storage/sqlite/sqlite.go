package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/georgeshao/genstudio/internal/storage"
	"github.com/georgeshao/genstudio/pkg/types"
)

//go:embed schema.sql
var schemaSQL string

const assetColumns = `id, kind, model_id, model_name, prompt, media_url, status,
	remote_task_id, created_at, elapsed_label, duration_label, config`

var _ storage.Store = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db *sql.DB
}

func New(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(schemaSQL)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) PutAsset(ctx context.Context, rec *storage.AssetRecord) error {
	config, err := json.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal request config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assets (`+assetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			kind = excluded.kind,
			model_id = excluded.model_id,
			model_name = excluded.model_name,
			prompt = excluded.prompt,
			media_url = excluded.media_url,
			status = excluded.status,
			remote_task_id = excluded.remote_task_id,
			created_at = excluded.created_at,
			elapsed_label = excluded.elapsed_label,
			duration_label = excluded.duration_label,
			config = excluded.config`,
		rec.ID, string(rec.Kind), rec.ModelID, rec.ModelName, rec.Prompt, rec.MediaURL,
		string(rec.Status), rec.RemoteTaskID, rec.CreatedAt.UnixNano(), rec.ElapsedLabel,
		rec.DurationLabel, string(config),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert asset: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (*storage.AssetRecord, error) {
	var (
		rec       storage.AssetRecord
		kind      string
		status    string
		createdAt int64
		config    string
	)
	err := row.Scan(&rec.ID, &kind, &rec.ModelID, &rec.ModelName, &rec.Prompt, &rec.MediaURL,
		&status, &rec.RemoteTaskID, &createdAt, &rec.ElapsedLabel, &rec.DurationLabel, &config)
	if err != nil {
		return nil, err
	}

	rec.Kind = types.Kind(kind)
	rec.Status = types.Status(status)
	rec.CreatedAt = time.Unix(0, createdAt)
	if err := json.Unmarshal([]byte(config), &rec.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request config: %w", err)
	}
	return &rec, nil
}

func (s *SQLiteStore) GetAsset(ctx context.Context, id string) (*storage.AssetRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	rec, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return rec, nil
}

// ListAssets returns every asset, newest first.
func (s *SQLiteStore) ListAssets(ctx context.Context) ([]*storage.AssetRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+assetColumns+` FROM assets ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var records []*storage.AssetRecord
	for rows.Next() {
		rec, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) DeleteAsset(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, rec *storage.SettingsRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, api_key, updated_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET api_key = excluded.api_key, updated_at = excluded.updated_at`,
		rec.APIKey, rec.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadSettings(ctx context.Context) (*storage.SettingsRecord, error) {
	var (
		rec       storage.SettingsRecord
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT api_key, updated_at FROM settings WHERE id = 1`).
		Scan(&rec.APIKey, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	rec.UpdatedAt = time.Unix(0, updatedAt)
	return &rec, nil
}

func (s *SQLiteStore) SavePrompt(ctx context.Context, p *storage.PromptRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prompts (id, text, created_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET text = excluded.text`,
		p.ID, p.Text, p.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save prompt: %w", err)
	}
	return nil
}

// ListPrompts returns the library, newest first.
func (s *SQLiteStore) ListPrompts(ctx context.Context) ([]*storage.PromptRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, text, created_at FROM prompts ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	defer rows.Close()

	var prompts []*storage.PromptRecord
	for rows.Next() {
		var (
			p         storage.PromptRecord
			createdAt int64
		)
		if err := rows.Scan(&p.ID, &p.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan prompt: %w", err)
		}
		p.CreatedAt = time.Unix(0, createdAt)
		prompts = append(prompts, &p)
	}
	return prompts, rows.Err()
}

func (s *SQLiteStore) DeletePrompt(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM prompts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete prompt: %w", err)
	}
	return nil
}
