// Package api serves the dashboard data, scores and Q&A over HTTP.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/auth"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/dashboard"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/model"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/qa"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/scorer"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/store"
)

// TableSource loads the raw institution table. dataset.Loader satisfies it.
type TableSource interface {
	LoadTableIfChanged(ctx context.Context, etag string) (*model.Table, string, bool, error)
	Describe() string
}

// RunStore persists scoring passes and serves score history.
type RunStore interface {
	scorer.RunSaver
	History(ctx context.Context, institution string, limit int) ([]store.HistoryPoint, error)
}

// Authenticator checks dashboard credentials. auth.Gate satisfies it.
type Authenticator interface {
	Authenticate(email, password string) (string, error)
}

// Answerer answers questions over the report index.
type Answerer interface {
	Answer(ctx context.Context, question string) (*qa.Answer, error)
}

// Reporter writes an institution analysis report.
type Reporter interface {
	Report(ctx context.Context, sheet *dashboard.SheetView, localContext string) (string, error)
}

// Deps are the collaborators of the server. Store, Answerer and Reporter
// are optional; their routes answer 503 when unset.
type Deps struct {
	Rules          scorer.Rules
	Workers        int
	Source         TableSource
	Store          RunStore
	Gate           Authenticator
	Sessions       *auth.Sessions
	Answerer       Answerer
	Reporter       Reporter
	AllowedOrigins []string
}

// Snapshot is one complete scoring pass. It is never mutated once published.
type Snapshot struct {
	Scorer   *scorer.Scorer
	Records  []model.ScoredRecord
	Source   string
	ETag     string
	RunID    string
	LoadedAt time.Time
}

// Server holds the current snapshot and the HTTP handlers.
type Server struct {
	deps Deps

	mu   sync.RWMutex
	snap *Snapshot

	refreshMu sync.Mutex
}

// New returns a Server with no snapshot. Call Refresh before serving.
func New(d Deps) *Server {
	if len(d.AllowedOrigins) == 0 {
		d.AllowedOrigins = []string{"*"}
	}
	return &Server{deps: d}
}

// Snapshot returns the current scoring pass, or nil before the first refresh.
func (s *Server) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Refresh reloads the table when it changed, scores it with a scorer built
// from a copy of the rules and swaps the snapshot in. Readers keep the old
// snapshot until the new one is complete. It reports whether a new snapshot
// was published.
func (s *Server) Refresh(ctx context.Context) (bool, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	var etag string
	if cur := s.Snapshot(); cur != nil {
		etag = cur.ETag
	}
	tbl, newETag, changed, err := s.deps.Source.LoadTableIfChanged(ctx, etag)
	if err != nil {
		return false, eris.Wrap(err, "api: refresh")
	}
	if !changed {
		return false, nil
	}

	sc, err := scorer.New(s.deps.Rules)
	if err != nil {
		return false, eris.Wrap(err, "api: refresh")
	}
	records, err := sc.ComputeScoresConcurrent(ctx, tbl, s.deps.Workers)
	if err != nil {
		return false, eris.Wrap(err, "api: refresh")
	}

	next := &Snapshot{
		Scorer:   sc,
		Records:  records,
		Source:   s.deps.Source.Describe(),
		ETag:     newETag,
		LoadedAt: time.Now().UTC(),
	}
	if s.deps.Store != nil {
		run, err := sc.Persist(ctx, s.deps.Store, next.Source, records)
		if err != nil {
			zap.L().Warn("api: persist run failed", zap.Error(err))
		} else {
			next.RunID = run.ID
		}
	}

	s.mu.Lock()
	s.snap = next
	s.mu.Unlock()

	zap.L().Info("api: snapshot refreshed",
		zap.Int("institutions", len(records)),
		zap.String("source", next.Source),
		zap.String("run_id", next.RunID),
	)
	return true, nil
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.deps.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Length"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/auth/login", s.handleLogin)

	r.Route("/api", func(ar chi.Router) {
		ar.Use(s.deps.Sessions.Middleware)
		ar.Use(middleware.Timeout(2 * time.Minute))

		ar.Get("/weights", s.handleWeights)
		ar.Get("/methodology", s.handleMethodology)

		ar.Group(func(sr chi.Router) {
			sr.Use(s.requireSnapshot)
			sr.Get("/scores", s.handleScores)
			sr.Get("/overview", s.handleOverview)
			sr.Get("/ranking", s.handleRanking)
			sr.Get("/institutions", s.handleChoices)
			sr.Get("/institutions/{name}", s.handleSheet)
			sr.Get("/institutions/{name}/history", s.handleHistory)
			sr.Post("/institutions/{name}/report", s.handleReport)
			sr.Get("/map", s.handleMap)
		})

		ar.Post("/qa", s.handleQA)
		ar.Post("/refresh", s.handleRefresh)
	})
	return r
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

type snapKey struct{}

// requireSnapshot pins the current snapshot for the whole request.
func (s *Server) requireSnapshot(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := s.Snapshot()
		if snap == nil {
			respondError(w, http.StatusServiceUnavailable, "scores not loaded yet")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), snapKey{}, snap)))
	})
}

func snapshotFrom(r *http.Request) *Snapshot {
	snap, _ := r.Context().Value(snapKey{}).(*Snapshot)
	return snap
}
