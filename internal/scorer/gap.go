package scorer

import "fmt"

// GapKind classifies a configuration shortfall found during a run.
type GapKind string

const (
	GapNoActiveKPIs          GapKind = "no_active_kpis"
	GapNoMappedSubmissions   GapKind = "no_mapped_submissions"
	GapUnknownKPI            GapKind = "unknown_kpi"
	GapInactiveKPI           GapKind = "inactive_kpi"
	GapMissingKPIWeight      GapKind = "missing_kpi_weight"
	GapKPIWeightSum          GapKind = "kpi_weight_sum"
	GapNoPillarWeights       GapKind = "no_pillar_weights"
	GapPillarWeightsFallback GapKind = "pillar_weights_fallback"
	GapPillarWeightSum       GapKind = "pillar_weight_sum"
)

// Gap is a configuration shortfall the run handled with a fallback. Gaps
// are reported, never raised.
type Gap struct {
	Kind    GapKind `json:"kind"`
	KPICode string  `json:"kpi_code,omitempty"`
	Pillar  string  `json:"pillar,omitempty"`
	Detail  string  `json:"detail"`
}

func (g Gap) String() string {
	switch {
	case g.KPICode != "":
		return fmt.Sprintf("%s (%s): %s", g.Kind, g.KPICode, g.Detail)
	case g.Pillar != "":
		return fmt.Sprintf("%s (%s): %s", g.Kind, g.Pillar, g.Detail)
	}
	return fmt.Sprintf("%s: %s", g.Kind, g.Detail)
}
