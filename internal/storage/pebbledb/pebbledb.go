package pebbledb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/georgeshao/genstudio/internal/storage"
	"github.com/georgeshao/genstudio/pkg/types"
)

// Key prefixes
const (
	prefixAsset  = "asset:"  // asset:{id} → asset JSON
	prefixPrompt = "prompt:" // prompt:{id} → prompt JSON
	keySettings  = "settings"
)

var _ storage.Store = (*PebbleStore)(nil)

type PebbleStore struct {
	db          *pebble.DB
	batchWriter *BatchWriter
	useBatch    bool
}

type assetData struct {
	ID            string              `json:"id"`
	Kind          string              `json:"kind"`
	ModelID       string              `json:"model_id"`
	ModelName     string              `json:"model_name"`
	Prompt        string              `json:"prompt"`
	MediaURL      string              `json:"media_url,omitempty"`
	Status        string              `json:"status"`
	RemoteTaskID  string              `json:"remote_task_id,omitempty"`
	CreatedAt     int64               `json:"created_at"` // Unix nano
	ElapsedLabel  string              `json:"elapsed_label,omitempty"`
	DurationLabel string              `json:"duration_label,omitempty"`
	Config        types.RequestConfig `json:"config"`
}

type settingsData struct {
	APIKey    string `json:"api_key"`
	UpdatedAt int64  `json:"updated_at"` // Unix nano
}

type promptData struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at"` // Unix nano
}

// New opens (or creates) the store at dbPath. With useBatch, asset writes
// are queued to a BatchWriter and reads flush it first.
func New(dbPath string, useBatch bool, logger *slog.Logger) (*PebbleStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble database: %w", err)
	}

	store := &PebbleStore{
		db:       db,
		useBatch: useBatch,
	}

	if useBatch {
		store.batchWriter = NewBatchWriter(db, DefaultBatchWriterConfig(), logger)
	}

	return store, nil
}

func (s *PebbleStore) Close() error {
	// Close batch writer first to flush remaining writes
	if s.batchWriter != nil {
		if err := s.batchWriter.Close(); err != nil {
			return fmt.Errorf("failed to close batch writer: %w", err)
		}
	}
	return s.db.Close()
}

func assetKey(id string) []byte {
	return []byte(prefixAsset + id)
}

func promptKey(id string) []byte {
	return []byte(prefixPrompt + id)
}

func upperBound(prefix []byte) []byte {
	ub := make([]byte, len(prefix))
	copy(ub, prefix)
	for i := len(ub) - 1; i >= 0; i-- {
		if ub[i] < 0xff {
			ub[i]++
			return ub
		}
		ub[i] = 0
	}
	return append(ub, 0)
}

func (s *PebbleStore) set(key, value []byte) error {
	if s.useBatch {
		s.batchWriter.Set(key, value)
		return nil
	}
	return s.db.Set(key, value, pebble.Sync)
}

func (s *PebbleStore) delete(key []byte) error {
	if s.useBatch {
		s.batchWriter.Delete(key)
		return nil
	}
	return s.db.Delete(key, pebble.Sync)
}

// barrier makes queued batch writes visible to the read that follows.
func (s *PebbleStore) barrier() {
	if s.useBatch {
		s.batchWriter.Flush()
	}
}

func (s *PebbleStore) get(key []byte, dst any) (bool, error) {
	s.barrier()
	value, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer closer.Close()

	if err := json.Unmarshal(value, dst); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

// scan decodes every value under prefix with decode.
func (s *PebbleStore) scan(prefix []byte, decode func([]byte) error) error {
	s.barrier()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := decode(iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (s *PebbleStore) PutAsset(ctx context.Context, rec *storage.AssetRecord) error {
	value, err := json.Marshal(toAssetData(rec))
	if err != nil {
		return fmt.Errorf("failed to marshal asset: %w", err)
	}
	return s.set(assetKey(rec.ID), value)
}

func (s *PebbleStore) GetAsset(ctx context.Context, id string) (*storage.AssetRecord, error) {
	var data assetData
	found, err := s.get(assetKey(id), &data)
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	if !found {
		return nil, nil
	}
	return toAssetRecord(&data), nil
}

// ListAssets returns every asset, newest first.
func (s *PebbleStore) ListAssets(ctx context.Context) ([]*storage.AssetRecord, error) {
	var records []*storage.AssetRecord
	err := s.scan([]byte(prefixAsset), func(value []byte) error {
		var data assetData
		if err := json.Unmarshal(value, &data); err != nil {
			return fmt.Errorf("failed to unmarshal asset: %w", err)
		}
		records = append(records, toAssetRecord(&data))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

func (s *PebbleStore) DeleteAsset(ctx context.Context, id string) error {
	return s.delete(assetKey(id))
}

func (s *PebbleStore) SaveSettings(ctx context.Context, rec *storage.SettingsRecord) error {
	value, err := json.Marshal(settingsData{
		APIKey:    rec.APIKey,
		UpdatedAt: rec.UpdatedAt.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	// Settings bypass the batch writer: a saved key must survive a crash.
	s.barrier()
	return s.db.Set([]byte(keySettings), value, pebble.Sync)
}

func (s *PebbleStore) LoadSettings(ctx context.Context) (*storage.SettingsRecord, error) {
	var data settingsData
	found, err := s.get([]byte(keySettings), &data)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &storage.SettingsRecord{
		APIKey:    data.APIKey,
		UpdatedAt: time.Unix(0, data.UpdatedAt),
	}, nil
}

func (s *PebbleStore) SavePrompt(ctx context.Context, p *storage.PromptRecord) error {
	value, err := json.Marshal(promptData{
		ID:        p.ID,
		Text:      p.Text,
		CreatedAt: p.CreatedAt.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal prompt: %w", err)
	}
	return s.set(promptKey(p.ID), value)
}

// ListPrompts returns the library, newest first.
func (s *PebbleStore) ListPrompts(ctx context.Context) ([]*storage.PromptRecord, error) {
	var prompts []*storage.PromptRecord
	err := s.scan([]byte(prefixPrompt), func(value []byte) error {
		var data promptData
		if err := json.Unmarshal(value, &data); err != nil {
			return fmt.Errorf("failed to unmarshal prompt: %w", err)
		}
		prompts = append(prompts, &storage.PromptRecord{
			ID:        data.ID,
			Text:      data.Text,
			CreatedAt: time.Unix(0, data.CreatedAt),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(prompts, func(i, j int) bool {
		return prompts[i].CreatedAt.After(prompts[j].CreatedAt)
	})
	return prompts, nil
}

func (s *PebbleStore) DeletePrompt(ctx context.Context, id string) error {
	return s.delete(promptKey(id))
}

// --- Conversion helpers ---

func toAssetData(rec *storage.AssetRecord) assetData {
	return assetData{
		ID:            rec.ID,
		Kind:          string(rec.Kind),
		ModelID:       rec.ModelID,
		ModelName:     rec.ModelName,
		Prompt:        rec.Prompt,
		MediaURL:      rec.MediaURL,
		Status:        string(rec.Status),
		RemoteTaskID:  rec.RemoteTaskID,
		CreatedAt:     rec.CreatedAt.UnixNano(),
		ElapsedLabel:  rec.ElapsedLabel,
		DurationLabel: rec.DurationLabel,
		Config:        rec.Config,
	}
}

func toAssetRecord(data *assetData) *storage.AssetRecord {
	return &storage.AssetRecord{
		ID:            data.ID,
		Kind:          types.Kind(data.Kind),
		ModelID:       data.ModelID,
		ModelName:     data.ModelName,
		Prompt:        data.Prompt,
		MediaURL:      data.MediaURL,
		Status:        types.Status(data.Status),
		RemoteTaskID:  data.RemoteTaskID,
		CreatedAt:     time.Unix(0, data.CreatedAt),
		ElapsedLabel:  data.ElapsedLabel,
		DurationLabel: data.DurationLabel,
		Config:        data.Config,
	}
}
