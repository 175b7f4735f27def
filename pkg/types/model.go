package types

type VideoOption struct {
	Seconds int    `json:"seconds"`
	Quality string `json:"quality"`
}

type ModelInfo struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Kind          Kind          `json:"kind"`
	Async         bool          `json:"async"`
	MaxReferences int           `json:"max_references"`
	AspectRatios  []string      `json:"aspect_ratios"`
	Resolutions   []string      `json:"resolutions,omitempty"`
	VideoOptions  []VideoOption `json:"video_options,omitempty"`
}

type NormalizeDraftRequest struct {
	AspectRatio     string           `json:"aspect_ratio"`
	Resolution      string           `json:"resolution"`
	VideoOption     int              `json:"video_option"`
	ReferenceImages []ReferenceImage `json:"reference_images"`
}

type NormalizeDraftResponse struct {
	AspectRatio       string           `json:"aspect_ratio"`
	Resolution        string           `json:"resolution,omitempty"`
	VideoOption       int              `json:"video_option"`
	ReferenceImages   []ReferenceImage `json:"reference_images"`
	DroppedReferences int              `json:"dropped_references"`
}
