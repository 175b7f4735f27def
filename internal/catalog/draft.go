package catalog

import "github.com/georgeshao/genstudio/pkg/types"

// Draft is the set of per-model parameters a user carries between models.
type Draft struct {
	AspectRatio string
	Resolution  string
	VideoOption int
	References  []types.ReferenceImage
}

// Normalize fits d to m: unsupported ratios and resolutions fall back to the
// model's first supported value and reference images beyond the cap are
// dropped. It returns how many references were dropped.
func (m *Model) Normalize(d Draft) (Draft, int) {
	out := Draft{
		AspectRatio: d.AspectRatio,
		Resolution:  d.Resolution,
		VideoOption: d.VideoOption,
	}

	if !m.SupportsRatio(out.AspectRatio) && len(m.AspectRatios) > 0 {
		out.AspectRatio = m.AspectRatios[0]
	}
	if len(m.Resolutions) > 0 && !m.SupportsResolution(out.Resolution) {
		out.Resolution = m.Resolutions[0]
	}
	if len(m.VideoOptions) > 0 && (out.VideoOption < 0 || out.VideoOption >= len(m.VideoOptions)) {
		out.VideoOption = 0
	}

	dropped := 0
	refs := d.References
	if len(refs) > m.MaxReferences {
		dropped = len(refs) - m.MaxReferences
		refs = refs[:m.MaxReferences]
	}
	out.References = append([]types.ReferenceImage(nil), refs...)

	return out, dropped
}
