package storage

import (
	"time"

	"github.com/georgeshao/genstudio/pkg/types"
)

type AssetRecord struct {
	ID            string
	Kind          types.Kind
	ModelID       string
	ModelName     string
	Prompt        string
	MediaURL      string
	Status        types.Status
	RemoteTaskID  string
	CreatedAt     time.Time
	ElapsedLabel  string
	DurationLabel string
	Config        types.RequestConfig
}

// Clone returns a copy that shares no slices with r.
func (r *AssetRecord) Clone() *AssetRecord {
	c := *r
	if r.Config.ReferenceImages != nil {
		c.Config.ReferenceImages = append([]types.ReferenceImage(nil), r.Config.ReferenceImages...)
	}
	return &c
}

type SettingsRecord struct {
	APIKey    string
	UpdatedAt time.Time
}

type PromptRecord struct {
	ID        string
	Text      string
	CreatedAt time.Time
}
