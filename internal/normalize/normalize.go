// Package normalize converts aggregated KPI values into scores in [0, 100].
package normalize

import (
	"math"

	"github.com/sells-group/esg-scorecard/internal/model"
)

// DefaultInverseThreshold is the raw value at which an inverse KPI bottoms
// out at 0.
const DefaultInverseThreshold = 1000.0

// Normalizer maps raw values to scores. The zero value is usable and uses
// DefaultInverseThreshold.
type Normalizer struct {
	InverseThreshold float64
}

// New returns a Normalizer with the given inverse threshold. A threshold
// <= 0 falls back to DefaultInverseThreshold.
func New(inverseThreshold float64) Normalizer {
	return Normalizer{InverseThreshold: inverseThreshold}
}

// Normalize scores value with the default threshold.
func Normalize(value model.Value, method model.NormalizationMethod) float64 {
	return Normalizer{}.Normalize(value, method)
}

// Normalize returns the score of value under method. It is total: every
// input, including non-numeric text and unknown methods, yields a number in
// [0, 100].
func (n Normalizer) Normalize(value model.Value, method model.NormalizationMethod) float64 {
	m, _ := model.ParseNormalizationMethod(string(method))

	if m == model.NormalizeBoolean {
		if value.Truthy() {
			return 100
		}
		return 0
	}

	v, ok := value.Float()
	if !ok {
		return 0
	}

	switch m {
	case model.NormalizePercentage:
		if v <= 1 {
			v *= 100
		}
		return clamp(v)
	case model.NormalizeInverse:
		return clamp(100 - v/n.threshold()*100)
	default:
		// absolute, index and anything unrecognized.
		return clamp(v)
	}
}

func (n Normalizer) threshold() float64 {
	if n.InverseThreshold <= 0 || math.IsInf(n.InverseThreshold, 0) || math.IsNaN(n.InverseThreshold) {
		return DefaultInverseThreshold
	}
	return n.InverseThreshold
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
