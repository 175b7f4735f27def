package storage

import "context"

// Store persists generation records, the saved credential and the prompt
// library. Get methods return (nil, nil) when the key is absent.
type Store interface {
	PutAsset(ctx context.Context, rec *AssetRecord) error
	GetAsset(ctx context.Context, id string) (*AssetRecord, error)
	ListAssets(ctx context.Context) ([]*AssetRecord, error)
	DeleteAsset(ctx context.Context, id string) error

	SaveSettings(ctx context.Context, s *SettingsRecord) error
	LoadSettings(ctx context.Context) (*SettingsRecord, error)

	SavePrompt(ctx context.Context, p *PromptRecord) error
	ListPrompts(ctx context.Context) ([]*PromptRecord, error)
	DeletePrompt(ctx context.Context, id string) error

	Close() error
}
