package scorer

import (
	"github.com/sells-group/esg-scorecard/internal/model"
)

// Aggregate reduces a KPI's submissions to one raw value.
//
// SUM and AVG work on the numeric reading of each value (truthy text counts
// as 1). LATEST returns the value of the most recently updated submission,
// breaking ties on creation time and then ID. FIRST, also used for any
// unrecognized method, returns the earliest submission by ID.
//
// Empty values mark a withdrawn value and are ignored. When nothing else
// remains the result is empty, which normalizes to 0.
func Aggregate(method model.AggregationMethod, facts []model.Fact) model.Value {
	facts = withValues(facts)
	if len(facts) == 0 {
		return ""
	}

	m, _ := model.ParseAggregationMethod(string(method))
	switch m {
	case model.AggregateSum:
		return model.NumberValue(sum(facts))
	case model.AggregateAvg:
		return model.NumberValue(sum(facts) / float64(len(facts)))
	case model.AggregateLatest:
		return latest(facts).Value
	default:
		return first(facts).Value
	}
}

func sum(facts []model.Fact) float64 {
	var s float64
	for _, f := range facts {
		s += f.Value.Numeric()
	}
	return s
}

func latest(facts []model.Fact) model.Fact {
	best := facts[0]
	for _, f := range facts[1:] {
		switch {
		case f.UpdatedAt.After(best.UpdatedAt):
			best = f
		case !f.UpdatedAt.Equal(best.UpdatedAt):
		case f.CreatedAt.After(best.CreatedAt):
			best = f
		case f.CreatedAt.Equal(best.CreatedAt) && f.ID > best.ID:
			best = f
		}
	}
	return best
}

func first(facts []model.Fact) model.Fact {
	best := facts[0]
	for _, f := range facts[1:] {
		if f.ID < best.ID {
			best = f
		}
	}
	return best
}

func withValues(facts []model.Fact) []model.Fact {
	out := facts[:0:0]
	for _, f := range facts {
		if f.Value != "" {
			out = append(out, f)
		}
	}
	return out
}
