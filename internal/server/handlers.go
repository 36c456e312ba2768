package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/hyperjump/fransearch/internal/apperr"
	"github.com/hyperjump/fransearch/internal/backup"
	"github.com/hyperjump/fransearch/internal/metrics"
	"github.com/hyperjump/fransearch/internal/model"
	"github.com/hyperjump/fransearch/internal/models"
	"github.com/hyperjump/fransearch/internal/search"
)

// recentRunsLimit bounds the runs listed in retrain status and stats.
const recentRunsLimit = 10

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.engine.Health()
	status := http.StatusOK
	if h.Status == "unavailable" {
		status = http.StatusServiceUnavailable
	}
	s.respondJSON(w, status, h)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := models.SearchQuery{
		Query: q.Get("q"),
		Filters: models.Filters{
			Sector:   strings.TrimSpace(q.Get("sector")),
			Location: strings.TrimSpace(q.Get("location")),
			Tags:     splitList(q["tags"]),
		},
	}
	var err error
	if query.TopN, err = intParam(q.Get("top_n"), 0); err != nil {
		s.respondError(w, http.StatusBadRequest, "top_n must be an integer")
		return
	}
	if raw := q.Get("semantic_weight"); raw != "" {
		weight, err := strconv.ParseFloat(raw, 64)
		if err != nil || weight < 0 || weight > 1 {
			s.respondError(w, http.StatusBadRequest, "semantic_weight must be a number between 0 and 1")
			return
		}
		query.SemanticWeight = &weight
	}

	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("top_n", query.TopN))
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		s.respondErr(w, "search", err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	topN, err := intParam(q.Get("top_n"), 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "top_n must be an integer")
		return
	}
	sameSector := true
	if raw := q.Get("sector_filter"); raw != "" {
		if sameSector, err = strconv.ParseBool(raw); err != nil {
			s.respondError(w, http.StatusBadRequest, "sector_filter must be true or false")
			return
		}
	}
	response, err := s.engine.Recommend(r.Context(), id, topN, sameSector)
	if err != nil {
		s.respondErr(w, "recommend", err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("max"), 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "max must be an integer")
		return
	}
	suggestions := s.engine.Autocomplete(q.Get("q"), limit)
	if suggestions == nil {
		suggestions = []models.Suggestion{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"query":       q.Get("q"),
		"suggestions": suggestions,
	})
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.store.Filters())
}

func (s *Server) handleListListings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		s.respondError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	s.respondJSON(w, http.StatusOK, s.store.List(offset, limit))
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}
	l, err := s.store.Get(id)
	if err != nil {
		s.respondErr(w, "get listing", err)
		return
	}
	s.respondJSON(w, http.StatusOK, l)
}

func (s *Server) handleAddListing(w http.ResponseWriter, r *http.Request) {
	var l models.Listing
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	added, err := s.store.Append(l)
	if err != nil {
		s.respondErr(w, "add listing", err)
		return
	}
	metrics.DatasetVersion.Set(float64(s.store.Version()))
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"listing":          added,
		"retrain_required": true,
	})
}

func (s *Server) handleUpdateListing(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}
	var patch models.ListingPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	updated, err := s.store.Update(id, patch)
	if err != nil {
		s.respondErr(w, "update listing", err)
		return
	}
	metrics.DatasetVersion.Set(float64(s.store.Version()))
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"listing":          updated,
		"retrain_required": true,
	})
}

func (s *Server) handleDeleteListing(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}
	if err := s.store.Delete(id); err != nil {
		s.respondErr(w, "delete listing", err)
		return
	}
	metrics.DatasetVersion.Set(float64(s.store.Version()))
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":               id,
		"status":           "deleted",
		"retrain_required": true,
	})
}

func (s *Server) handleRetrain(w http.ResponseWriter, r *http.Request) {
	done, err := s.manager.StartRetrain(context.WithoutCancel(r.Context()))
	if err != nil {
		s.respondErr(w, "retrain", err)
		return
	}
	go func() {
		if err := <-done; err != nil {
			s.logger.Error("retrain failed", zap.Error(err))
		}
	}()
	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":          "started",
		"dataset_version": s.store.Version(),
	})
}

func (s *Server) handleRetrainStatus(w http.ResponseWriter, r *http.Request) {
	runs, err := s.manager.RecentRuns(r.Context(), recentRunsLimit)
	if err != nil {
		s.logger.Warn("list training runs failed", zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"model":       s.manager.Status(),
		"recent_runs": runs,
	})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	b, err := s.manager.RestoreFromBackup(r.Context())
	if err != nil {
		s.respondErr(w, "restore", err)
		return
	}
	snap := s.store.Snapshot()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "restored",
		"bundle_id":       b.ID,
		"dataset_version": b.DatasetVersion,
		"stale":           b.Stale(snap.Version, snap.Fingerprint),
	})
}

func (s *Server) handleBackups(w http.ResponseWriter, r *http.Request) {
	sets, err := s.manager.Backups(r.Context())
	if err != nil {
		s.respondErr(w, "list backups", err)
		return
	}
	if sets == nil {
		sets = []backup.Set{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"backups": sets, "count": len(sets)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	total, failed, err := s.manager.RunCounts(ctx)
	if err != nil {
		s.logger.Warn("count training runs failed", zap.Error(err))
	}
	runs, err := s.manager.RecentRuns(ctx, recentRunsLimit)
	if err != nil {
		s.logger.Warn("list training runs failed", zap.Error(err))
	}
	filters := s.store.Filters()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"dataset": s.store.Stats(),
		"model":   s.manager.Status(),
		"filters": map[string]int{
			"sectors":   len(filters.Sectors),
			"locations": len(filters.Locations),
			"tags":      len(filters.Tags),
		},
		"training_runs": map[string]interface{}{
			"total":  total,
			"failed": failed,
			"recent": runs,
		},
		"search": map[string]interface{}{
			"default_semantic_weight": s.engine.Options().DefaultSemanticWeight,
			"default_top_n":           s.engine.Options().DefaultTopN,
			"max_top_n":               s.engine.Options().MaxTopN,
			"transform":               s.engine.Options().Transform,
		},
	})
}

func (s *Server) handleStorageInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.manager.StorageInfo(r.Context())
	if err != nil {
		s.respondErr(w, "storage info", err)
		return
	}
	s.respondJSON(w, http.StatusOK, info)
}

func (s *Server) idParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		s.respondError(w, http.StatusBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(strings.TrimSpace(raw))
}

// splitList accepts repeated and comma separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, backup.ErrNoBackup):
		return http.StatusNotFound
	case errors.Is(err, model.ErrRetrainInProgress):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrTraining):
		return http.StatusUnprocessableEntity
	case errors.Is(err, search.ErrNotReady), errors.Is(err, model.ErrBackupDisabled), errors.Is(err, apperr.ErrEncoding):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err))
	} else {
		s.logger.Debug(op+" rejected", zap.Int("status", status), zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
