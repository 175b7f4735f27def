// Package catalog is the per-model capability table consulted by the
// dispatcher and the poller: endpoint shape, reference-image cap, supported
// ratios and, for asynchronous models, the status family used to poll them.
package catalog

import (
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/georgeshao/genstudio/pkg/types"
)

type Endpoint string

const (
	// EndpointChat answers synchronously with the media somewhere in the body.
	EndpointChat Endpoint = "chat"
	// EndpointImageJob and EndpointVideoJob return a job id to poll.
	EndpointImageJob Endpoint = "image_job"
	EndpointVideoJob Endpoint = "video_job"
)

type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseRunning
	PhaseSucceeded
	PhaseFailed
)

// Family describes how jobs of a group of models are observed.
type Family struct {
	Name string
	// StatusPath is joined to the base URL; {id} is replaced by the job id.
	StatusPath    string
	Interval      time.Duration
	StatusFields  [][]string
	URLFields     [][]string
	MessageFields [][]string
	Success       []string
	Failure       []string
	Running       []string
	// FailOnMissingURL turns a success without a URL into a failure instead
	// of waiting for a later poll to carry it.
	FailOnMissingURL bool
	FailureLabel     string
	MissingURLLabel  string
}

func (f *Family) StatusURL(taskID string) string {
	return strings.ReplaceAll(f.StatusPath, "{id}", url.PathEscape(taskID))
}

// Classify maps a backend status string onto the internal vocabulary.
func (f *Family) Classify(raw string) Phase {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "":
		return PhaseUnknown
	case slices.Contains(f.Success, s):
		return PhaseSucceeded
	case slices.Contains(f.Failure, s):
		return PhaseFailed
	case slices.Contains(f.Running, s):
		return PhaseRunning
	}
	return PhaseUnknown
}

type Model struct {
	ID            string
	Name          string
	Kind          types.Kind
	Endpoint      Endpoint
	CreatePath    string
	JobIDFields   [][]string
	MaxReferences int
	AspectRatios  []string
	Resolutions   []string
	VideoOptions  []types.VideoOption
	Family        *Family
}

func (m *Model) Async() bool {
	return m.Family != nil
}

func (m *Model) SupportsRatio(ratio string) bool {
	return slices.Contains(m.AspectRatios, ratio)
}

func (m *Model) SupportsResolution(res string) bool {
	return slices.Contains(m.Resolutions, res)
}

// VideoOption returns the option at idx, or the first one when idx is out
// of range.
func (m *Model) VideoOption(idx int) (types.VideoOption, bool) {
	if len(m.VideoOptions) == 0 {
		return types.VideoOption{}, false
	}
	if idx < 0 || idx >= len(m.VideoOptions) {
		return m.VideoOptions[0], true
	}
	return m.VideoOptions[idx], true
}

func (m *Model) Info() types.ModelInfo {
	return types.ModelInfo{
		ID:            m.ID,
		Name:          m.Name,
		Kind:          m.Kind,
		Async:         m.Async(),
		MaxReferences: m.MaxReferences,
		AspectRatios:  slices.Clone(m.AspectRatios),
		Resolutions:   slices.Clone(m.Resolutions),
		VideoOptions:  slices.Clone(m.VideoOptions),
	}
}

type Catalog struct {
	models []*Model
	byID   map[string]*Model
}

func New(models ...*Model) *Catalog {
	c := &Catalog{byID: make(map[string]*Model, len(models))}
	for _, m := range models {
		c.models = append(c.models, m)
		c.byID[m.ID] = m
	}
	return c
}

func (c *Catalog) Lookup(id string) (*Model, bool) {
	m, ok := c.byID[id]
	return m, ok
}

func (c *Catalog) Models() []*Model {
	return slices.Clone(c.models)
}
