package dispatcher

import (
	"strings"

	"github.com/georgeshao/genstudio/pkg/types"
)

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type chatPayload struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type videoPayload struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Images      []string `json:"images"`
	AspectRatio string   `json:"aspect_ratio"`
	Duration    int      `json:"duration,omitempty"`
}

type omniImage struct {
	Image string `json:"image"`
}

type omniImagePayload struct {
	ModelName   string      `json:"model_name"`
	Prompt      string      `json:"prompt"`
	AspectRatio string      `json:"aspect_ratio,omitempty"`
	Resolution  string      `json:"resolution,omitempty"`
	ImageList   []omniImage `json:"image_list,omitempty"`
}

func buildChatPayload(req Request) chatPayload {
	parts := []contentPart{{Type: "text", Text: req.Prompt + " --aspect-ratio " + req.AspectRatio}}
	for _, ref := range req.References {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: ref.DataURI()}})
	}
	return chatPayload{
		Model:    req.Model.ID,
		Messages: []chatMessage{{Role: "user", Content: parts}},
		Stream:   false,
	}
}

func buildVideoPayload(req Request) videoPayload {
	return videoPayload{
		Model:       req.Model.ID,
		Prompt:      req.Prompt,
		Images:      dataURIs(req.References),
		AspectRatio: req.AspectRatio,
		Duration:    req.Duration,
	}
}

func buildOmniImagePayload(req Request) omniImagePayload {
	p := omniImagePayload{
		ModelName:   req.Model.ID,
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		Resolution:  strings.ToLower(req.Resolution),
	}
	for _, ref := range req.References {
		p.ImageList = append(p.ImageList, omniImage{Image: ref.DataURI()})
	}
	return p
}

func dataURIs(refs []types.ReferenceImage) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		out = append(out, ref.DataURI())
	}
	return out
}
