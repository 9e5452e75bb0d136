package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/esg-scorecard/internal/model"
	"github.com/sells-group/esg-scorecard/internal/pipeline"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.reader.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var in model.FactInput
	if err := readJSON(w, r, &in); err != nil {
		writeErr(w, r, err)
		return
	}
	res, err := s.pipeline.Submit(r.Context(), in)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type batchRequest struct {
	OrganizationID int64          `json:"organization_id"`
	Period         model.Period   `json:"reporting_period"`
	Submissions    []batchFactRow `json:"submissions"`
}

type batchFactRow struct {
	FieldName string      `json:"form_field"`
	Value     model.Value `json:"field_value"`
	IsKPI     bool        `json:"is_kpi"`
}

func (s *Server) submitBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := readJSON(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}

	inputs := make([]model.FactInput, 0, len(req.Submissions))
	for _, row := range req.Submissions {
		inputs = append(inputs, model.FactInput{FieldName: row.FieldName, Value: row.Value, IsKPI: row.IsKPI})
	}
	res, err := s.pipeline.SubmitBatch(r.Context(), req.OrganizationID, req.Period, inputs)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) currentFacts(w http.ResponseWriter, r *http.Request) {
	orgID, period, err := keyParams(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	var filter model.FactFilter
	q := r.URL.Query()
	filter.FieldName = q.Get("field")
	filter.Provenance = model.Provenance(q.Get("provenance"))
	if v := q.Get("is_kpi"); v != "" {
		filter.IsKPI = model.Bool(model.Value(v).Truthy())
	}

	facts, err := s.reader.CurrentFacts(r.Context(), orgID, period, filter)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if facts == nil {
		facts = []model.Fact{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"facts": facts})
}

func (s *Server) factHistory(w http.ResponseWriter, r *http.Request) {
	orgID, period, err := keyParams(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	field := chi.URLParam(r, "field")

	history, err := s.reader.FactHistory(r.Context(), orgID, period, field)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if history == nil {
		history = []model.Fact{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"form_field": field, "history": history})
}

func (s *Server) derive(w http.ResponseWriter, r *http.Request) {
	orgID, period, err := keyParams(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	res, err := s.pipeline.Derive(r.Context(), orgID, period)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) score(w http.ResponseWriter, r *http.Request) {
	orgID, period, err := keyParams(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	opts := pipeline.ScoreOptions{SkipDerive: model.Value(r.URL.Query().Get("skip_derive")).Truthy()}

	res, err := s.pipeline.Score(r.Context(), orgID, period, opts)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) storedScores(w http.ResponseWriter, r *http.Request) {
	orgID, period, err := keyParams(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	final, err := s.reader.GetFinalScore(r.Context(), orgID, period)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	kpis, err := s.reader.ListKPIScores(r.Context(), orgID, period)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if kpis == nil {
		kpis = []model.KPIScore{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"final": final, "kpi_scores": kpis})
}

func (s *Server) latestPeriod(w http.ResponseWriter, r *http.Request) {
	orgID, err := orgParam(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	period, err := s.pipeline.LatestPeriod(r.Context(), orgID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"organization_id": orgID, "reporting_period": period})
}
