// Package api exposes submission, derivation, and scoring over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/esg-scorecard/internal/config"
	"github.com/sells-group/esg-scorecard/internal/derive"
	"github.com/sells-group/esg-scorecard/internal/model"
	"github.com/sells-group/esg-scorecard/internal/pipeline"
	"github.com/sells-group/esg-scorecard/internal/scorer"
)

const maxBodyBytes = 1 << 20

// Pipeline is the write and compute side the API drives.
type Pipeline interface {
	Submit(ctx context.Context, in model.FactInput) (*pipeline.SubmitResult, error)
	SubmitBatch(ctx context.Context, orgID int64, period model.Period, inputs []model.FactInput) (*pipeline.BatchResult, error)
	Derive(ctx context.Context, orgID int64, period model.Period) (*derive.Result, error)
	Score(ctx context.Context, orgID int64, period model.Period, opts pipeline.ScoreOptions) (*scorer.Result, error)
	LatestPeriod(ctx context.Context, orgID int64) (model.Period, error)
}

// Reader serves stored facts and scores.
type Reader interface {
	Ping(ctx context.Context) error
	CurrentFacts(ctx context.Context, orgID int64, period model.Period, filter model.FactFilter) ([]model.Fact, error)
	FactHistory(ctx context.Context, orgID int64, period model.Period, field string) ([]model.Fact, error)
	GetFinalScore(ctx context.Context, orgID int64, period model.Period) (*model.FinalScore, error)
	ListKPIScores(ctx context.Context, orgID int64, period model.Period) ([]model.KPIScore, error)
}

// Server holds the handlers' dependencies.
type Server struct {
	pipeline Pipeline
	reader   Reader
	limiter  *rate.Limiter
}

// NewRouter builds the HTTP handler.
func NewRouter(p Pipeline, rd Reader, cfg config.ServerConfig) http.Handler {
	limit := rate.Inf
	if cfg.RateLimitRPS > 0 {
		limit = rate.Limit(cfg.RateLimitRPS)
	}
	burst := cfg.RateLimitBurst
	if burst < 1 {
		burst = 1
	}
	s := &Server{pipeline: p, reader: rd, limiter: rate.NewLimiter(limit, burst)}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/submissions", func(r chi.Router) {
		r.Post("/", s.submit)
		r.Post("/batch", s.submitBatch)
		r.Get("/{org}/{period}/current", s.currentFacts)
		r.Get("/{org}/{period}/history/{field}", s.factHistory)
	})

	r.Post("/derive/{org}/{period}", s.derive)

	r.Route("/scores/{org}", func(r chi.Router) {
		r.Get("/latest-period", s.latestPeriod)
		r.With(s.rateLimit).Get("/{period}", s.score)
		r.Get("/{period}/stored", s.storedScores)
	})

	return r
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many scoring requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// keyParams reads and validates the {org} and {period} URL parameters.
func keyParams(r *http.Request) (int64, model.Period, error) {
	orgID, err := orgParam(r)
	if err != nil {
		return 0, "", err
	}
	period, err := model.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		return 0, "", model.NewValidationError("reporting_period", "invalid period %q", chi.URLParam(r, "period"))
	}
	return orgID, period, nil
}

func orgParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "org")
	orgID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || orgID <= 0 {
		return 0, model.NewValidationError("organization_id", "invalid organization id %q", raw)
	}
	return orgID, nil
}
