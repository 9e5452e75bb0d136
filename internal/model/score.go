package model

import "time"

// KPIScore is one KPI's contribution to a scoring run.
type KPIScore struct {
	OrganizationID  int64     `json:"organization_id"`
	Period          Period    `json:"reporting_period"`
	KPICode         string    `json:"kpi_code"`
	Pillar          Pillar    `json:"pillar"`
	RawValue        Value     `json:"raw_value"`
	Weight          float64   `json:"user_weightage"`
	NormalizedScore float64   `json:"normalized_score"`
	WeightedScore   float64   `json:"weighted_score"`
	ComputedAt      time.Time `json:"computed_at"`
}

// FinalScore is the pillar roll-up and overall score of a scoring run.
type FinalScore struct {
	RunID              string    `json:"run_id"`
	OrganizationID     int64     `json:"organization_id"`
	Period             Period    `json:"reporting_period"`
	EnvironmentalScore float64   `json:"environmental_score"`
	SocialScore        float64   `json:"social_score"`
	GovernanceScore    float64   `json:"governance_score"`
	FinalESGScore      float64   `json:"final_esg_score"`
	ConfigHash         string    `json:"config_hash,omitempty"`
	ComputedAt         time.Time `json:"computed_at"`
}

// PillarScores returns the pillar columns keyed by pillar.
func (f FinalScore) PillarScores() map[Pillar]float64 {
	return map[Pillar]float64{
		PillarEnvironmental: f.EnvironmentalScore,
		PillarSocial:        f.SocialScore,
		PillarGovernance:    f.GovernanceScore,
	}
}
