package derive

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/esg-scorecard/internal/model"
)

// DefaultEmissionFactors returns kg CO2 per unit for each fuel and travel
// input.
func DefaultEmissionFactors() map[string]float64 {
	return map[string]float64{
		"petrol_consumption":          2.31, // per litre
		"diesel_consumption":          2.68, // per litre
		"electricity_consumption":     0.82, // per kWh
		"business_travel_distance":    0.15, // per km
		"employee_commuting_distance": 0.12, // per km
	}
}

// Kind is the combining function of a rule.
type Kind string

const (
	// KindWeightedSum multiplies each present input by its factor and sums.
	KindWeightedSum Kind = "weighted_sum"
	// KindRatio divides a numerator by the sum of a denominator alternative.
	KindRatio Kind = "ratio"
)

// Term is one factor-weighted input of a weighted-sum rule.
type Term struct {
	Field  string  `json:"field"`
	Factor float64 `json:"factor"`
}

// Rule derives one KPI field from disclosed inputs.
type Rule struct {
	Output string `json:"output"`
	Kind   Kind   `json:"kind"`

	// Terms feed KindWeightedSum.
	Terms []Term `json:"terms,omitempty"`
	// KeepZero writes a weighted sum of zero instead of skipping it.
	KeepZero bool `json:"keep_zero,omitempty"`

	// Numerator and Denominators feed KindRatio. The first alternative whose
	// fields are all present is summed to form the denominator.
	Numerator    string     `json:"numerator,omitempty"`
	Denominators [][]string `json:"denominators,omitempty"`
}

// Inputs returns every field the rule reads, sorted.
func (r Rule) Inputs() []string {
	seen := make(map[string]bool)
	add := func(f string) {
		if f != "" {
			seen[f] = true
		}
	}
	for _, t := range r.Terms {
		add(t.Field)
	}
	add(r.Numerator)
	for _, alt := range r.Denominators {
		for _, f := range alt {
			add(f)
		}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// DefaultRules builds the rule table. Entries in factors override the
// default emission factors.
func DefaultRules(factors map[string]float64) []Rule {
	f := DefaultEmissionFactors()
	for k, v := range factors {
		f[strings.ToLower(k)] = v
	}
	term := func(field string) Term { return Term{Field: field, Factor: f[field]} }

	return []Rule{
		{
			Output: "scope1_emissions",
			Kind:   KindWeightedSum,
			Terms:  []Term{term("petrol_consumption"), term("diesel_consumption")},
		},
		{
			Output:   "scope2_emissions",
			Kind:     KindWeightedSum,
			Terms:    []Term{term("electricity_consumption")},
			KeepZero: true,
		},
		{
			Output: "scope3_emissions",
			Kind:   KindWeightedSum,
			Terms:  []Term{term("business_travel_distance"), term("employee_commuting_distance")},
		},
		{
			Output:    "renewable_energy_ratio",
			Kind:      KindRatio,
			Numerator: "renewable_energy_consumption",
			Denominators: [][]string{
				{"total_energy_consumption"},
				{"renewable_energy_consumption", "nonrenewable_energy_consumption"},
			},
		},
		{
			Output:       "water_recycling_ratio",
			Kind:         KindRatio,
			Numerator:    "water_recycled",
			Denominators: [][]string{{"freshwater_withdrawal"}},
		},
		{
			Output:       "water_balance_ratio",
			Kind:         KindRatio,
			Numerator:    "water_discharged",
			Denominators: [][]string{{"freshwater_withdrawal"}},
		},
		{
			Output:       "waste_treatment_ratio",
			Kind:         KindRatio,
			Numerator:    "hazardous_waste_disposed",
			Denominators: [][]string{{"hazardous_waste_generated"}},
		},
	}
}

// errSkip signals that a rule does not apply to the inputs at hand.
type errSkip struct{}

func (errSkip) Error() string { return "inputs not present" }

// Apply evaluates the rule. It returns errSkip when the rule's inputs are
// absent or a weighted sum comes to zero without KeepZero, and a
// descriptive error when an input cannot be used.
func (r Rule) Apply(inputs map[string]model.Value) (float64, error) {
	switch r.Kind {
	case KindWeightedSum:
		return r.weightedSum(inputs)
	case KindRatio:
		return r.ratio(inputs)
	default:
		return 0, fmt.Errorf("unknown rule kind %q", r.Kind)
	}
}

func (r Rule) weightedSum(inputs map[string]model.Value) (float64, error) {
	var sum float64
	var present int
	for _, t := range r.Terms {
		v, ok := inputs[t.Field]
		if !ok {
			continue
		}
		n, err := number(t.Field, v)
		if err != nil {
			return 0, err
		}
		sum += n * t.Factor
		present++
	}
	if present == 0 || (sum <= 0 && !r.KeepZero) {
		return 0, errSkip{}
	}
	return sum, nil
}

func (r Rule) ratio(inputs map[string]model.Value) (float64, error) {
	nv, ok := inputs[r.Numerator]
	if !ok {
		return 0, errSkip{}
	}

	alt := r.denominator(inputs)
	if alt == nil {
		return 0, errSkip{}
	}

	num, err := number(r.Numerator, nv)
	if err != nil {
		return 0, err
	}
	var den float64
	for _, f := range alt {
		n, err := number(f, inputs[f])
		if err != nil {
			return 0, err
		}
		den += n
	}
	if den <= 0 {
		return 0, fmt.Errorf("denominator %s is %v", strings.Join(alt, "+"), den)
	}
	return num / den, nil
}

func (r Rule) denominator(inputs map[string]model.Value) []string {
	for _, alt := range r.Denominators {
		complete := len(alt) > 0
		for _, f := range alt {
			if _, ok := inputs[f]; !ok {
				complete = false
				break
			}
		}
		if complete {
			return alt
		}
	}
	return nil
}

func number(field string, v model.Value) (float64, error) {
	n, ok := v.Float()
	if !ok {
		return 0, fmt.Errorf("input %s is not numeric: %q", field, v.String())
	}
	return n, nil
}
