package scorer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/esg-scorecard/internal/mapping"
	"github.com/sells-group/esg-scorecard/internal/model"
	"github.com/sells-group/esg-scorecard/internal/normalize"
)

// weightSumTolerance is the slack allowed when checking weights sum to 100.
const weightSumTolerance = 1e-6

// Store is what a Scorer reads and writes.
type Store interface {
	ScoreWriter
	mapping.Source

	CurrentFacts(ctx context.Context, orgID int64, period model.Period, filter model.FactFilter) ([]model.Fact, error)
	ListKPIs(ctx context.Context, activeOnly bool) ([]model.KPIDefinition, error)
	ListKPIWeights(ctx context.Context, filter model.WeightFilter) ([]model.KPIWeight, error)
	ListPillarWeights(ctx context.Context, filter model.WeightFilter) ([]model.PillarWeight, error)
}

// Result is the outcome of one scoring run.
type Result struct {
	RunID          string                   `json:"run_id"`
	OrganizationID int64                    `json:"organization_id"`
	Period         model.Period             `json:"reporting_period"`
	PillarScores   map[model.Pillar]float64 `json:"pillar_scores"`
	FinalScore     float64                  `json:"final_score"`
	KPIScores      []model.KPIScore         `json:"kpi_scores"`
	Gaps           []Gap                    `json:"gaps,omitempty"`
	ConfigHash     string                   `json:"config_hash,omitempty"`
	ComputedAt     time.Time                `json:"computed_at"`
	// Persisted is false when the run had no submissions and wrote nothing.
	Persisted bool `json:"persisted"`
}

func (r *Result) finalRecord() model.FinalScore {
	return model.FinalScore{
		RunID:              r.RunID,
		OrganizationID:     r.OrganizationID,
		Period:             r.Period,
		EnvironmentalScore: r.PillarScores[model.PillarEnvironmental],
		SocialScore:        r.PillarScores[model.PillarSocial],
		GovernanceScore:    r.PillarScores[model.PillarGovernance],
		FinalESGScore:      r.FinalScore,
		ConfigHash:         r.ConfigHash,
		ComputedAt:         r.ComputedAt,
	}
}

// Scorer computes and persists ESG scores. Runs for the same
// (organization, period) are serialized; runs for different keys proceed
// in parallel.
type Scorer struct {
	store      Store
	resolver   *mapping.Resolver
	normalizer normalize.Normalizer
	cfg        Config
	locks      *KeyedLock
	now        func() time.Time
	log        *zap.Logger
}

// NewScorer creates a Scorer over st.
func NewScorer(st Store, cfg Config) *Scorer {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Scorer{
		store:      st,
		resolver:   mapping.NewResolver(st),
		normalizer: normalize.New(cfg.InverseThreshold),
		cfg:        cfg,
		locks:      NewKeyedLock(),
		now:        func() time.Time { return time.Now().UTC() },
		log:        zap.L().With(zap.String("component", "scorer")),
	}
}

// SetClock overrides the run timestamp source.
func (s *Scorer) SetClock(now func() time.Time) { s.now = now }

// Config returns the scorer's configuration.
func (s *Scorer) Config() Config { return s.cfg }

// kpiGroup is the submissions feeding one KPI.
type kpiGroup struct {
	def    model.KPIDefinition
	method model.AggregationMethod
	weight float64
	facts  []model.Fact
}

// Run scores one organization and period and replaces any stored scores
// for that key. A period with no current submissions returns a zero result
// and writes nothing.
func (s *Scorer) Run(ctx context.Context, orgID int64, period model.Period) (*Result, error) {
	if orgID <= 0 {
		return nil, model.NewValidationError("organization_id", "must be positive, got %d", orgID)
	}
	if period.IsZero() {
		return nil, model.NewValidationError("reporting_period", "is required")
	}

	unlock, err := s.locks.Lock(ctx, lockKey(orgID, period))
	if err != nil {
		return nil, err
	}
	defer unlock()

	res := &Result{
		RunID:          uuid.NewString(),
		OrganizationID: orgID,
		Period:         period,
		PillarScores:   zeroPillars(),
		ComputedAt:     s.now(),
	}
	log := s.log.With(
		zap.String("run_id", res.RunID),
		zap.Int64("organization_id", orgID),
		zap.String("period", period.String()),
	)

	facts, err := s.store.CurrentFacts(ctx, orgID, period, model.FactFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "scorer: load submissions")
	}
	if len(facts) == 0 {
		log.Info("scorer: no submissions, nothing to score")
		return res, nil
	}

	resolved, err := s.resolver.Resolve(ctx, period)
	if err != nil {
		return nil, eris.Wrap(err, "scorer: resolve mappings")
	}

	defs, err := s.store.ListKPIs(ctx, false)
	if err != nil {
		return nil, eris.Wrap(err, "scorer: load kpis")
	}
	kpiWeights, err := s.store.ListKPIWeights(ctx, model.WeightFilter{OrganizationID: orgID, Period: period, CurrentOnly: true})
	if err != nil {
		return nil, eris.Wrap(err, "scorer: load kpi weights")
	}
	pillarWeights, err := s.pillarWeights(ctx, res)
	if err != nil {
		return nil, err
	}

	groups := s.group(res, facts, resolved, defs, kpiWeights)
	checkKPIWeightSums(res, groups)

	if err := s.scoreKPIs(ctx, res, groups); err != nil {
		return nil, err
	}
	rollUp(res, pillarWeights)

	res.ConfigHash = ConfigHash(hashInputFor(s.cfg, groups, pillarWeights))

	if err := saveScores(ctx, s.store, s.cfg.Retry, res); err != nil {
		return nil, err
	}
	res.Persisted = true

	for _, g := range res.Gaps {
		log.Warn("scorer: configuration gap", zap.String("kind", string(g.Kind)), zap.String("detail", g.String()))
	}
	log.Info("scorer: run complete",
		zap.Int("kpis", len(res.KPIScores)),
		zap.Int("gaps", len(res.Gaps)),
		zap.Float64("final_score", res.FinalScore),
	)
	return res, nil
}

// pillarWeights loads the run period's pillar weights, falling back to the
// most recent earlier period when allowed.
func (s *Scorer) pillarWeights(ctx context.Context, res *Result) (map[model.Pillar]float64, error) {
	rows, err := s.store.ListPillarWeights(ctx, model.WeightFilter{
		OrganizationID: res.OrganizationID, Period: res.Period, CurrentOnly: true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "scorer: load pillar weights")
	}

	if len(rows) == 0 && s.cfg.PillarWeightFallback {
		all, err := s.store.ListPillarWeights(ctx, model.WeightFilter{OrganizationID: res.OrganizationID, CurrentOnly: true})
		if err != nil {
			return nil, eris.Wrap(err, "scorer: load prior pillar weights")
		}
		var prior model.Period
		for _, w := range all {
			if w.Period.Before(res.Period) && prior.Before(w.Period) {
				prior = w.Period
			}
		}
		if !prior.IsZero() {
			for _, w := range all {
				if w.Period == prior {
					rows = append(rows, w)
				}
			}
			res.addGap(Gap{
				Kind:   GapPillarWeightsFallback,
				Detail: fmt.Sprintf("no pillar weights for %s, using %s", res.Period, prior),
			})
		}
	}

	if len(rows) == 0 {
		res.addGap(Gap{Kind: GapNoPillarWeights, Detail: "final score is the simple mean of pillar scores"})
		return nil, nil
	}

	out := make(map[model.Pillar]float64, len(rows))
	var total float64
	for _, w := range rows {
		out[w.Pillar] = w.Weight
		total += w.Weight
	}
	if math.Abs(total-100) > weightSumTolerance {
		res.addGap(Gap{Kind: GapPillarWeightSum, Detail: fmt.Sprintf("pillar weights sum to %g, not 100", total)})
	}
	return out, nil
}

// group collects current submissions under the active KPI each field maps
// to. Fields without a mapping are ignored.
func (s *Scorer) group(res *Result, facts []model.Fact, resolved map[string]mapping.Mapping,
	defs []model.KPIDefinition, weights []model.KPIWeight) []*kpiGroup {

	byCode := make(map[string]model.KPIDefinition, len(defs))
	active := 0
	for _, d := range defs {
		byCode[d.Code] = d
		if d.Active() {
			active++
		}
	}
	if active == 0 {
		res.addGap(Gap{Kind: GapNoActiveKPIs, Detail: "no active KPI definitions"})
	}

	weightOf := make(map[string]float64, len(weights))
	for _, w := range weights {
		weightOf[w.KPICode] = w.Weight
	}

	present := make(map[string]model.Fact, len(facts))
	for _, f := range facts {
		present[f.FieldName] = f
	}

	grouped := mapping.Group(resolved)
	var out []*kpiGroup
	for _, code := range sortedKeys(grouped) {
		fields := grouped[code]
		var members []model.Fact
		var method model.AggregationMethod
		for _, field := range fields {
			f, ok := present[field]
			if !ok {
				continue
			}
			if len(members) == 0 {
				method = resolved[field].AggregationMethod
			}
			members = append(members, f)
		}
		if len(members) == 0 {
			continue
		}

		def, ok := byCode[code]
		switch {
		case !ok:
			res.addGap(Gap{Kind: GapUnknownKPI, KPICode: code, Detail: "mapped KPI has no definition"})
			continue
		case !def.Active():
			res.addGap(Gap{Kind: GapInactiveKPI, KPICode: code, Detail: "KPI is inactive"})
			continue
		}

		w, ok := weightOf[code]
		if !ok {
			w = s.cfg.DefaultKPIWeight
			res.addGap(Gap{
				Kind: GapMissingKPIWeight, KPICode: code,
				Detail: fmt.Sprintf("no weight for period, using default %g", w),
			})
		}
		out = append(out, &kpiGroup{def: def, method: method, weight: w, facts: members})
	}

	if len(out) == 0 && active > 0 {
		res.addGap(Gap{Kind: GapNoMappedSubmissions, Detail: "no submission maps to an active KPI"})
	}
	return out
}

// scoreKPIs aggregates, normalizes, and weights each group concurrently.
func (s *Scorer) scoreKPIs(ctx context.Context, res *Result, groups []*kpiGroup) error {
	scores := make([]model.KPIScore, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, grp := range groups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			raw := Aggregate(grp.method, grp.facts)
			norm := s.normalizer.Normalize(raw, grp.def.NormalizationMethod)
			scores[i] = model.KPIScore{
				OrganizationID:  res.OrganizationID,
				Period:          res.Period,
				KPICode:         grp.def.Code,
				Pillar:          grp.def.Pillar,
				RawValue:        raw,
				Weight:          grp.weight,
				NormalizedScore: norm,
				WeightedScore:   norm * grp.weight / 100,
				ComputedAt:      res.ComputedAt,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "scorer: score kpis")
	}

	res.KPIScores = scores
	return nil
}

// rollUp sets pillar scores to the mean weighted KPI score of each pillar
// and the final score to the pillar-weighted mean. Without usable pillar
// weights the final score is the simple mean of the three pillars.
func rollUp(res *Result, pillarWeights map[model.Pillar]float64) {
	sums := make(map[model.Pillar]float64)
	counts := make(map[model.Pillar]int)
	for _, k := range res.KPIScores {
		sums[k.Pillar] += k.WeightedScore
		counts[k.Pillar]++
	}

	res.PillarScores = zeroPillars()
	for _, p := range model.Pillars() {
		if counts[p] > 0 {
			res.PillarScores[p] = sums[p] / float64(counts[p])
		}
	}

	var weighted, totalWeight, plain float64
	for _, p := range model.Pillars() {
		weighted += res.PillarScores[p] * pillarWeights[p]
		totalWeight += pillarWeights[p]
		plain += res.PillarScores[p]
	}
	if totalWeight > 0 {
		res.FinalScore = weighted / totalWeight
	} else {
		res.FinalScore = plain / float64(len(model.Pillars()))
	}
}

// checkKPIWeightSums reports pillars whose scored KPI weights do not sum
// to 100.
func checkKPIWeightSums(res *Result, groups []*kpiGroup) {
	totals := make(map[model.Pillar]float64)
	for _, g := range groups {
		totals[g.def.Pillar] += g.weight
	}
	for _, p := range model.Pillars() {
		t, ok := totals[p]
		if !ok || math.Abs(t-100) <= weightSumTolerance {
			continue
		}
		res.addGap(Gap{Kind: GapKPIWeightSum, Pillar: string(p), Detail: fmt.Sprintf("KPI weights sum to %g, not 100", t)})
	}
}

func hashInputFor(cfg Config, groups []*kpiGroup, pillarWeights map[model.Pillar]float64) hashInput {
	in := hashInput{
		Config:        cfg,
		Methods:       make(map[string]string, len(groups)),
		KPIWeights:    make(map[string]float64, len(groups)),
		PillarWeights: pillarWeights,
		Normalization: make(map[string]model.NormalizationMethod, len(groups)),
	}
	for _, g := range groups {
		in.Methods[g.def.Code] = string(g.method)
		in.KPIWeights[g.def.Code] = g.weight
		in.Normalization[g.def.Code] = g.def.NormalizationMethod
	}
	return in
}

func (r *Result) addGap(g Gap) { r.Gaps = append(r.Gaps, g) }

func zeroPillars() map[model.Pillar]float64 {
	out := make(map[model.Pillar]float64, 3)
	for _, p := range model.Pillars() {
		out[p] = 0
	}
	return out
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func lockKey(orgID int64, period model.Period) string {
	return strconv.FormatInt(orgID, 10) + "/" + period.String()
}
