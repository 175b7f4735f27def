package types

type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

type Status string

const (
	StatusLoading    Status = "loading"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type ReferenceImage struct {
	ID       string `json:"id,omitempty"`
	MimeType string `json:"mime_type" validate:"required"`
	Data     string `json:"data" validate:"required,base64"`
}

func (r ReferenceImage) DataURI() string {
	return "data:" + r.MimeType + ";base64," + r.Data
}

// RequestConfig is the parameter snapshot a generation was produced from.
type RequestConfig struct {
	ModelID         string           `json:"model_id"`
	Kind            Kind             `json:"kind"`
	Prompt          string           `json:"prompt"`
	AspectRatio     string           `json:"aspect_ratio,omitempty"`
	Resolution      string           `json:"resolution,omitempty"`
	VideoOption     int              `json:"video_option,omitempty"`
	ReferenceImages []ReferenceImage `json:"reference_images,omitempty"`
}

type Generation struct {
	ID            string        `json:"id"`
	Kind          Kind          `json:"kind"`
	ModelID       string        `json:"model_id"`
	ModelName     string        `json:"model_name"`
	Prompt        string        `json:"prompt"`
	MediaURL      string        `json:"media_url,omitempty"`
	Status        Status        `json:"status"`
	RemoteTaskID  string        `json:"remote_task_id,omitempty"`
	ElapsedLabel  string        `json:"elapsed_label,omitempty"`
	DurationLabel string        `json:"duration_label,omitempty"`
	RequestConfig RequestConfig `json:"request_config"`
	CreatedAt     string        `json:"created_at"`
}

type SubmitRequest struct {
	ModelID         string           `json:"model_id" validate:"required"`
	Prompt          string           `json:"prompt"`
	AspectRatio     string           `json:"aspect_ratio,omitempty"`
	Resolution      string           `json:"resolution,omitempty"`
	VideoOption     int              `json:"video_option,omitempty" validate:"gte=0"`
	Count           int              `json:"count,omitempty" validate:"gte=0,lte=8"`
	ReferenceImages []ReferenceImage `json:"reference_images,omitempty" validate:"dive"`
}

type SubmitResponse struct {
	Generations []Generation `json:"generations"`
}

type ListGenerationsResponse struct {
	Generations []Generation `json:"generations"`
	Total       int          `json:"total"`
}

type GenerationStats struct {
	Total      int `json:"total"`
	Loading    int `json:"loading"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

type Notice struct {
	Message  string `json:"message"`
	RaisedAt string `json:"raised_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
