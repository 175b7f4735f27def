package types

type UpdateSettingsRequest struct {
	APIKey string `json:"api_key"`
}

type Settings struct {
	BaseURL    string `json:"base_url"`
	APIKeySet  bool   `json:"api_key_set"`
	APIKeyHint string `json:"api_key_hint,omitempty"`
	Source     string `json:"source,omitempty"`
}

type Balance struct {
	Remaining *string `json:"remaining,omitempty"`
	Error     string  `json:"error,omitempty"`
	UpdatedAt *string `json:"updated_at,omitempty"`
}

type SavedPrompt struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

type SavePromptRequest struct {
	Text string `json:"text"`
}

type OptimizePromptRequest struct {
	Prompt string `json:"prompt"`
}

type OptimizePromptResponse struct {
	Prompt string `json:"prompt"`
}
