package api

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/georgeshao/genstudio/internal/storage"
	"github.com/georgeshao/genstudio/pkg/types"
)

func recordToGeneration(record *storage.AssetRecord) types.Generation {
	return types.Generation{
		ID:            record.ID,
		Kind:          record.Kind,
		ModelID:       record.ModelID,
		ModelName:     record.ModelName,
		Prompt:        record.Prompt,
		MediaURL:      record.MediaURL,
		Status:        record.Status,
		RemoteTaskID:  record.RemoteTaskID,
		ElapsedLabel:  record.ElapsedLabel,
		DurationLabel: record.DurationLabel,
		RequestConfig: record.Config,
		CreatedAt:     record.CreatedAt.Format(time.RFC3339),
	}
}

func recordsToGenerations(records []*storage.AssetRecord) []types.Generation {
	out := make([]types.Generation, 0, len(records))
	for _, r := range records {
		out = append(out, recordToGeneration(r))
	}
	return out
}

func recordToPrompt(record *storage.PromptRecord) types.SavedPrompt {
	return types.SavedPrompt{
		ID:        record.ID,
		Text:      record.Text,
		CreatedAt: record.CreatedAt.Format(time.RFC3339),
	}
}

// maskKey keeps just enough of a key to recognise it.
func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:3] + "..." + key[len(key)-4:]
}

// validationMessage flattens validator errors into one line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s validation", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
