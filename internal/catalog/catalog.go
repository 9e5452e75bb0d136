// Package catalog loads the administrative scoring catalog (KPI
// definitions, field mappings, and organization weights) from YAML and
// applies it to a store.
package catalog

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/esg-scorecard/internal/model"
	"github.com/sells-group/esg-scorecard/internal/store"
)

// sumTolerance is the slack allowed when checking weights sum to 100.
const sumTolerance = 1e-6

// Catalog is the top-level catalog file.
type Catalog struct {
	KPIs     []model.KPIDefinition `yaml:"kpis"`
	Mappings []Mapping             `yaml:"mappings"`
	Weights  []WeightSet           `yaml:"weights"`
}

// Mapping maps a form field to a KPI. An empty period applies to every
// period.
type Mapping struct {
	FormField         string `yaml:"form_field"`
	Period            string `yaml:"period,omitempty"`
	KPICode           string `yaml:"kpi_code"`
	AggregationMethod string `yaml:"aggregation_method"`
}

// WeightSet is one organization's weights for a period.
type WeightSet struct {
	OrganizationID int64              `yaml:"organization_id"`
	Period         string             `yaml:"period"`
	Pillars        map[string]float64 `yaml:"pillars"`
	KPIs           map[string]float64 `yaml:"kpis"`
}

// Load reads a catalog from a YAML file. The file has a top-level
// "catalog" key.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	return Parse(data)
}

// Parse decodes catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var wrapper struct {
		Catalog Catalog `yaml:"catalog"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "catalog: parse")
	}
	return &wrapper.Catalog, nil
}

// Validate checks the catalog and canonicalizes pillar names, methods,
// and periods in place. Every problem found is reported in one error.
func (c *Catalog) Validate() error {
	var errs []string
	pillarOf := make(map[string]model.Pillar, len(c.KPIs))

	for i := range c.KPIs {
		k := &c.KPIs[i]
		k.Code = strings.TrimSpace(k.Code)
		if k.Code == "" {
			errs = append(errs, fmt.Sprintf("kpis[%d]: kpi_code is required", i))
			continue
		}
		if _, dup := pillarOf[k.Code]; dup {
			errs = append(errs, fmt.Sprintf("kpis[%d]: duplicate kpi_code %q", i, k.Code))
		}
		p, ok := model.ParsePillar(string(k.Pillar))
		if !ok {
			errs = append(errs, fmt.Sprintf("kpi %s: unknown pillar %q", k.Code, k.Pillar))
		}
		k.Pillar = p
		pillarOf[k.Code] = p

		m, ok := model.ParseNormalizationMethod(string(k.NormalizationMethod))
		if !ok {
			errs = append(errs, fmt.Sprintf("kpi %s: unknown normalization_method %q", k.Code, k.NormalizationMethod))
		}
		k.NormalizationMethod = m

		switch k.Status {
		case "":
			k.Status = model.KPIStatusActive
		case model.KPIStatusActive, model.KPIStatusInactive:
		default:
			errs = append(errs, fmt.Sprintf("kpi %s: unknown status %q", k.Code, k.Status))
		}
	}

	for i := range c.Mappings {
		m := &c.Mappings[i]
		m.FormField = strings.TrimSpace(m.FormField)
		if m.FormField == "" {
			errs = append(errs, fmt.Sprintf("mappings[%d]: form_field is required", i))
			continue
		}
		if m.KPICode != "" && len(c.KPIs) > 0 {
			if _, ok := pillarOf[m.KPICode]; !ok {
				errs = append(errs, fmt.Sprintf("mapping %s: unknown kpi_code %q", m.FormField, m.KPICode))
			}
		}
		method, ok := model.ParseAggregationMethod(m.AggregationMethod)
		if !ok {
			errs = append(errs, fmt.Sprintf("mapping %s: unknown aggregation_method %q", m.FormField, m.AggregationMethod))
		}
		m.AggregationMethod = string(method)
		if m.Period != "" {
			p, err := model.ParsePeriod(m.Period)
			if err != nil {
				errs = append(errs, fmt.Sprintf("mapping %s: invalid period %q", m.FormField, m.Period))
			}
			m.Period = string(p)
		}
	}

	for i := range c.Weights {
		errs = append(errs, c.Weights[i].validate(i, pillarOf)...)
	}

	if len(errs) > 0 {
		return eris.Errorf("catalog: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (w *WeightSet) validate(i int, pillarOf map[string]model.Pillar) []string {
	var errs []string
	label := fmt.Sprintf("weights[%d]", i)

	if w.OrganizationID <= 0 {
		errs = append(errs, label+": organization_id must be positive")
	}
	p, err := model.ParsePeriod(w.Period)
	if err != nil {
		errs = append(errs, fmt.Sprintf("%s: invalid period %q", label, w.Period))
	}
	w.Period = string(p)

	if len(w.Pillars) > 0 {
		canon := make(map[string]float64, len(w.Pillars))
		var total float64
		for name, v := range w.Pillars {
			pillar, ok := model.ParsePillar(name)
			if !ok {
				errs = append(errs, fmt.Sprintf("%s: unknown pillar %q", label, name))
				continue
			}
			if v < 0 {
				errs = append(errs, fmt.Sprintf("%s: pillar %s weight is negative", label, pillar))
			}
			canon[string(pillar)] = v
			total += v
		}
		w.Pillars = canon
		if math.Abs(total-100) > sumTolerance {
			errs = append(errs, fmt.Sprintf("%s: pillar weights sum to %g, not 100", label, total))
		}
	}

	totals := make(map[model.Pillar]float64)
	for code, v := range w.KPIs {
		if v < 0 {
			errs = append(errs, fmt.Sprintf("%s: kpi %s weight is negative", label, code))
		}
		pillar, ok := pillarOf[code]
		if !ok {
			errs = append(errs, fmt.Sprintf("%s: weight for unknown kpi %q", label, code))
			continue
		}
		totals[pillar] += v
	}
	for _, pillar := range model.Pillars() {
		t, ok := totals[pillar]
		if ok && math.Abs(t-100) > sumTolerance {
			errs = append(errs, fmt.Sprintf("%s: %s KPI weights sum to %g, not 100", label, pillar, t))
		}
	}
	return errs
}

// ApplyResult counts what Apply wrote.
type ApplyResult struct {
	KPIs       int `json:"kpis"`
	Mappings   int `json:"mappings"`
	WeightSets int `json:"weight_sets"`
}

// Apply validates the catalog and writes it through w. KPI definitions are
// upserted by code; each mapping and weight set becomes the new current
// version for its key.
func (c *Catalog) Apply(ctx context.Context, w store.CatalogWriter) (*ApplyResult, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("component", "catalog"))
	res := &ApplyResult{}

	if len(c.KPIs) > 0 {
		if err := w.SaveKPIs(ctx, c.KPIs); err != nil {
			return nil, eris.Wrap(err, "catalog: save kpis")
		}
		res.KPIs = len(c.KPIs)
	}

	for _, m := range c.Mappings {
		_, err := w.SaveMapping(ctx, model.FieldMapping{
			FormField:         m.FormField,
			Period:            model.Period(m.Period),
			KPICode:           m.KPICode,
			AggregationMethod: model.AggregationMethod(m.AggregationMethod),
		})
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: save mapping %s", m.FormField)
		}
		res.Mappings++
	}

	for _, ws := range c.Weights {
		period := model.Period(ws.Period)
		if len(ws.KPIs) > 0 {
			if err := w.ReplaceKPIWeights(ctx, ws.OrganizationID, period, ws.kpiWeights()); err != nil {
				return nil, eris.Wrapf(err, "catalog: save kpi weights for org %d", ws.OrganizationID)
			}
		}
		if len(ws.Pillars) > 0 {
			if err := w.ReplacePillarWeights(ctx, ws.OrganizationID, period, ws.pillarWeights()); err != nil {
				return nil, eris.Wrapf(err, "catalog: save pillar weights for org %d", ws.OrganizationID)
			}
		}
		res.WeightSets++
	}

	log.Info("catalog: applied",
		zap.Int("kpis", res.KPIs),
		zap.Int("mappings", res.Mappings),
		zap.Int("weight_sets", res.WeightSets),
	)
	return res, nil
}

func (w WeightSet) kpiWeights() []model.KPIWeight {
	codes := make([]string, 0, len(w.KPIs))
	for code := range w.KPIs {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	out := make([]model.KPIWeight, 0, len(codes))
	for _, code := range codes {
		out = append(out, model.KPIWeight{
			OrganizationID: w.OrganizationID,
			Period:         model.Period(w.Period),
			KPICode:        code,
			Weight:         w.KPIs[code],
			IsCurrent:      true,
		})
	}
	return out
}

func (w WeightSet) pillarWeights() []model.PillarWeight {
	out := make([]model.PillarWeight, 0, len(w.Pillars))
	for _, p := range model.Pillars() {
		v, ok := w.Pillars[string(p)]
		if !ok {
			continue
		}
		out = append(out, model.PillarWeight{
			OrganizationID: w.OrganizationID,
			Period:         model.Period(w.Period),
			Pillar:         p,
			Weight:         v,
			IsCurrent:      true,
		})
	}
	return out
}
