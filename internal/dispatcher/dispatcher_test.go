package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgeshao/genstudio/internal/catalog"
	"github.com/georgeshao/genstudio/internal/config"
	"github.com/georgeshao/genstudio/internal/provider"
	"github.com/georgeshao/genstudio/pkg/types"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type captured struct {
	path string
	body map[string]any
}

// backend answers every request with reply and records what it received.
func backend(t *testing.T, status int, reply string, got *captured) config.Credential {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got.body); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, reply)
	}))
	t.Cleanup(srv.Close)
	return config.Credential{BaseURL: srv.URL, APIKey: "sk-test"}
}

func newDispatcher() *Dispatcher {
	return New(provider.NewClient(provider.Config{RequestsPerSecond: 100}, discard), discard)
}

func model(t *testing.T, id string) *catalog.Model {
	t.Helper()
	m, ok := catalog.Default().Lookup(id)
	require.True(t, ok, "model %s", id)
	return m
}

var pngRef = types.ReferenceImage{MimeType: "image/png", Data: "AAAA"}

func TestDispatchChatCompletion(t *testing.T) {
	var got captured
	cred := backend(t, http.StatusOK, `{
		"choices": [{"message": {"role": "assistant", "content": "done ![out](https://img.example.com/a.png)"}}]
	}`, &got)

	out, err := newDispatcher().Dispatch(context.Background(), cred, Request{
		Model:       model(t, "gemini-2.5-flash-image"),
		Prompt:      "a fox",
		AspectRatio: "16:9",
		References:  []types.ReferenceImage{pngRef},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://img.example.com/a.png", out.MediaURL)
	assert.Empty(t, out.JobID)

	assert.Equal(t, "/v1/chat/completions", got.path)
	assert.Equal(t, "gemini-2.5-flash-image", got.body["model"])
	assert.Equal(t, false, got.body["stream"])
	content := got.body["messages"].([]any)[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 2)
	assert.Equal(t, "a fox --aspect-ratio 16:9", content[0].(map[string]any)["text"])
	assert.Equal(t, "data:image/png;base64,AAAA", content[1].(map[string]any)["image_url"].(map[string]any)["url"])
}

func TestDispatchChatWithoutMedia(t *testing.T) {
	var got captured
	cred := backend(t, http.StatusOK, `{"choices": [{"message": {"content": "I cannot draw that."}}]}`, &got)

	_, err := newDispatcher().Dispatch(context.Background(), cred, Request{
		Model:       model(t, "gpt-image-1-all"),
		Prompt:      "p",
		AspectRatio: "1:1",
	})
	assert.ErrorIs(t, err, ErrExtraction)
	assert.Equal(t, "no image", Reason(err))
}

func TestDispatchVideoJob(t *testing.T) {
	var got captured
	cred := backend(t, http.StatusOK, `{"data": {"id": "job-42"}}`, &got)

	out, err := newDispatcher().Dispatch(context.Background(), cred, Request{
		Model:       model(t, "veo_3_1-fast"),
		Prompt:      "waves",
		AspectRatio: "9:16",
		Duration:    8,
		References:  []types.ReferenceImage{pngRef, pngRef},
	})
	require.NoError(t, err)
	assert.Equal(t, "job-42", out.JobID)

	assert.Equal(t, "/v1/video/create", got.path)
	assert.Equal(t, "waves", got.body["prompt"])
	assert.Equal(t, "9:16", got.body["aspect_ratio"])
	assert.Equal(t, float64(8), got.body["duration"])
	assert.Len(t, got.body["images"], 2)
}

func TestDispatchOmniImageJob(t *testing.T) {
	var got captured
	cred := backend(t, http.StatusOK, `{"code": 0, "data": {"task_id": "k-7", "task_status": "submitted"}}`, &got)

	out, err := newDispatcher().Dispatch(context.Background(), cred, Request{
		Model:       model(t, "kling-image-o1"),
		Prompt:      "a lighthouse",
		AspectRatio: "1:1",
		Resolution:  "2K",
	})
	require.NoError(t, err)
	assert.Equal(t, "k-7", out.JobID)
	assert.Equal(t, "/kling/v1/images/omni-image", got.path)
	assert.Equal(t, "kling-image-o1", got.body["model_name"])
	assert.Equal(t, "2k", got.body["resolution"])
}

func TestDispatchMissingJobID(t *testing.T) {
	var got captured
	cred := backend(t, http.StatusOK, `{"status": "accepted"}`, &got)

	_, err := newDispatcher().Dispatch(context.Background(), cred, Request{
		Model:       model(t, "sora-2"),
		Prompt:      "p",
		AspectRatio: "16:9",
	})
	assert.ErrorIs(t, err, ErrMissingJobID)
}

func TestDispatchBackendError(t *testing.T) {
	var got captured
	cred := backend(t, http.StatusUnauthorized, `{"error": {"message": "invalid api key"}}`, &got)

	_, err := newDispatcher().Dispatch(context.Background(), cred, Request{
		Model:       model(t, "sora-2"),
		Prompt:      "p",
		AspectRatio: "16:9",
	})
	assert.ErrorIs(t, err, ErrDispatch)

	var apiErr *provider.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "invalid api key", apiErr.Message)
	assert.Equal(t, "failed", Reason(err))
}

func TestValidate(t *testing.T) {
	sora := model(t, "sora-2")

	tests := []struct {
		name string
		req  Request
		ok   bool
	}{
		{"valid", Request{Model: sora, Prompt: "p", AspectRatio: "16:9"}, true},
		{"ratio left to default", Request{Model: sora, Prompt: "p"}, true},
		{"no model", Request{Prompt: "p"}, false},
		{"blank prompt", Request{Model: sora, Prompt: " \n"}, false},
		{"too many references", Request{Model: sora, Prompt: "p", References: []types.ReferenceImage{pngRef, pngRef}}, false},
		{"unsupported ratio", Request{Model: sora, Prompt: "p", AspectRatio: "4:3"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.req)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrValidation)
			}
		})
	}
}

func TestDispatchValidatesFirst(t *testing.T) {
	_, err := newDispatcher().Dispatch(context.Background(), config.Credential{}, Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrValidation)
}
