package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/auth"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/dashboard"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/resilience"
	"github.com/MathieuBartozzi/mlf-suivi-homologation/internal/scorer"
)

const maxBodyBytes = 64 << 10

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// respondUpstreamError answers 503 while a provider breaker is open, 502
// otherwise.
func respondUpstreamError(w http.ResponseWriter, err error, msg string) {
	if eris.Is(err, resilience.ErrOpen) {
		respondError(w, http.StatusServiceUnavailable, "provider temporarily unavailable")
		return
	}
	respondError(w, http.StatusBadGateway, msg)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	name, err := s.deps.Gate.Authenticate(req.Email, req.Password)
	switch {
	case eris.Is(err, auth.ErrUnknownUser):
		respondError(w, http.StatusUnauthorized, "Adresse e-mail non autorisée.")
		return
	case eris.Is(err, auth.ErrBadPassword):
		respondError(w, http.StatusUnauthorized, "Mot de passe incorrect.")
		return
	case err != nil:
		zap.L().Error("api: login failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "login failed")
		return
	}
	token, err := s.deps.Sessions.Issue(strings.ToLower(strings.TrimSpace(req.Email)), name)
	if err != nil {
		zap.L().Error("api: issue token", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "login failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token, "name": name})
}

// currentScorer returns the snapshot scorer, or one built from the
// configured rules before the first refresh.
func (s *Server) currentScorer() (*scorer.Scorer, error) {
	if snap := s.Snapshot(); snap != nil {
		return snap.Scorer, nil
	}
	return scorer.New(s.deps.Rules)
}

func (s *Server) handleWeights(w http.ResponseWriter, _ *http.Request) {
	sc, err := s.currentScorer()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sc.Weights())
}

func (s *Server) handleMethodology(w http.ResponseWriter, _ *http.Request) {
	sc, err := s.currentScorer()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, dashboard.Methodology(sc))
}

func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	snap := snapshotFrom(r)
	rows := make([]map[string]any, len(snap.Records))
	for i, rec := range snap.Records {
		rows[i] = rec.Flatten()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"source":    snap.Source,
		"run_id":    snap.RunID,
		"loaded_at": snap.LoadedAt,
		"summary":   scorer.Summarize(snap.Records),
		"records":   rows,
	})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, dashboard.Overview(snapshotFrom(r).Records))
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, dashboard.Ranking(snapshotFrom(r).Records))
}

func (s *Server) handleChoices(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, dashboard.Choices(snapshotFrom(r).Records))
}

func (s *Server) sheet(w http.ResponseWriter, r *http.Request) (*dashboard.SheetView, bool) {
	name := chi.URLParam(r, "name")
	v, ok := dashboard.Sheet(snapshotFrom(r).Records, name)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown institution: "+name)
		return nil, false
	}
	return v, true
}

func (s *Server) handleSheet(w http.ResponseWriter, r *http.Request) {
	if v, ok := s.sheet(w, r); ok {
		respondJSON(w, http.StatusOK, v)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		respondError(w, http.StatusServiceUnavailable, "run persistence disabled")
		return
	}
	v, ok := s.sheet(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	points, err := s.deps.Store.History(r.Context(), v.Name, limit)
	if err != nil {
		zap.L().Error("api: history", zap.String("institution", v.Name), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"etablissement": v.Name, "points": points})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reporter == nil {
		respondError(w, http.StatusServiceUnavailable, "report generation not configured")
		return
	}
	var req struct {
		Context string `json:"context"`
	}
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	v, ok := s.sheet(w, r)
	if !ok {
		return
	}
	report, err := s.deps.Reporter.Report(r.Context(), v, req.Context)
	if err != nil {
		zap.L().Error("api: report", zap.String("institution", v.Name), zap.Error(err))
		respondUpstreamError(w, err, "report generation failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"etablissement": v.Name, "report": report})
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	fc, err := dashboard.Map(snapshotFrom(r).Records, r.URL.Query().Get("metric"))
	if eris.Is(err, dashboard.ErrUnknownMetric) {
		respondError(w, http.StatusBadRequest, "unknown metric, expected one of: "+strings.Join(dashboard.Metrics(), ", "))
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(fc)
}

func (s *Server) handleQA(w http.ResponseWriter, r *http.Request) {
	if s.deps.Answerer == nil {
		respondError(w, http.StatusServiceUnavailable, "question answering not configured")
		return
	}
	var req struct {
		Question string `json:"question"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		respondError(w, http.StatusBadRequest, "question is required")
		return
	}
	ans, err := s.deps.Answerer.Answer(r.Context(), req.Question)
	if err != nil {
		zap.L().Error("api: qa", zap.Error(err))
		respondUpstreamError(w, err, "answer generation failed")
		return
	}
	respondJSON(w, http.StatusOK, ans)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	changed, err := s.Refresh(r.Context())
	if err != nil {
		zap.L().Error("api: refresh", zap.Error(err))
		respondError(w, http.StatusBadGateway, "refresh failed")
		return
	}
	resp := map[string]any{"changed": changed}
	if snap := s.Snapshot(); snap != nil {
		resp["institutions"] = len(snap.Records)
		resp["run_id"] = snap.RunID
		resp["loaded_at"] = snap.LoadedAt
	}
	respondJSON(w, http.StatusOK, resp)
}
