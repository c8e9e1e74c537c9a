package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/veilhq/veil/internal/detect"
	"github.com/veilhq/veil/internal/pattern"
	"github.com/veilhq/veil/internal/profile"
	"github.com/veilhq/veil/internal/vault"
)

// maxBodyBytes bounds request bodies; documents past this size should be
// chunked by the caller.
const maxBodyBytes = 10 << 20

// maxSessionPage caps the audit listing page size.
const maxSessionPage = 500

type scrambleRequest struct {
	Text    string `json:"text"`
	Profile string `json:"profile"`
}

type restoreRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
}

// handleScramble runs the scramble pipeline. Failures return no scrambled
// text and a generic message: callers retry, end users never see internals.
func (s *Server) handleScramble(w http.ResponseWriter, r *http.Request) {
	var req scrambleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Text == "" || req.Profile == "" {
		respondError(w, http.StatusBadRequest, "text and profile are required")
		return
	}

	result, err := s.engine.Scramble(r.Context(), req.Text, req.Profile)
	if err != nil {
		log := s.logger.WithRequestID(requestID(r.Context()))
		var limitErr *detect.ErrDetectionLimit
		var storeErr *vault.StoreError
		switch {
		case errors.As(err, &limitErr):
			log.Warn("Scramble rejected: detection limit", zap.Int("limit", limitErr.Limit))
			respondError(w, http.StatusUnprocessableEntity, "input produced too many detections")
		case errors.As(err, &storeErr):
			log.Error("Scramble failed: mapping store", zap.Error(err))
			respondError(w, http.StatusServiceUnavailable, "processing failed, retry")
		default:
			log.Warn("Scramble failed", zap.Error(err))
			respondError(w, http.StatusBadRequest, "processing failed")
		}
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleRestore rehydrates processed text. Restore is fail-open: the
// response always carries best-effort text plus the unresolved token list,
// and the quality gate downstream decides whether to block delivery.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	result, err := s.engine.Restore(r.Context(), req.Text, req.SessionID)
	if err != nil {
		s.logger.WithRequestID(requestID(r.Context())).Error("Restore failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "processing failed, retry")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// handleListPatterns returns the active pattern set.
func (s *Server) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.registry.Snapshot().All())
}

// handleUpsertPattern adds or replaces a custom pattern.
func (s *Server) handleUpsertPattern(w http.ResponseWriter, r *http.Request) {
	var p pattern.Pattern
	if !decodeBody(w, r, &p) {
		return
	}
	if err := s.registry.Upsert(p); err != nil {
		respondPatternError(w, err)
		return
	}
	if s.catalog != nil {
		if err := s.catalog.SavePattern(r.Context(), p); err != nil {
			s.logger.Warn("Failed to persist custom pattern", zap.String("pattern", p.ID), zap.Error(err))
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "id": p.ID})
}

// handleTogglePattern enables or disables one pattern.
func (s *Server) handleTogglePattern(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Enabled == nil {
		respondError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	if err := s.registry.SetEnabled(id, *body.Enabled); err != nil {
		respondPatternError(w, err)
		return
	}
	if s.catalog != nil {
		if p, ok := s.registry.Snapshot().Get(id); ok && p.Custom {
			if err := s.catalog.SavePattern(r.Context(), *p); err != nil {
				s.logger.Warn("Failed to persist pattern toggle", zap.String("pattern", id), zap.Error(err))
			}
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "id": id, "enabled": *body.Enabled})
}

// handleDeletePattern removes a custom pattern.
func (s *Server) handleDeletePattern(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.registry.Remove(id); err != nil {
		respondPatternError(w, err)
		return
	}
	if s.catalog != nil {
		if err := s.catalog.DeletePattern(r.Context(), id); err != nil {
			s.logger.Warn("Failed to delete persisted pattern", zap.String("pattern", id), zap.Error(err))
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "id": id})
}

// handleExportPatterns serves the pattern set as a JSON array.
func (s *Server) handleExportPatterns(w http.ResponseWriter, r *http.Request) {
	data, err := pattern.Export(s.registry.Snapshot())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="patterns.json"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleImportPatterns layers an imported JSON array over the active set,
// so existing custom patterns absent from the import survive. The whole
// import is rejected on the first invalid pattern.
func (s *Server) handleImportPatterns(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	imported, err := pattern.Import(data)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	merged := s.registry.Snapshot().All()
	index := make(map[string]int, len(merged))
	for i, p := range merged {
		index[p.ID] = i
	}
	for _, p := range imported {
		if i, ok := index[p.ID]; ok {
			merged[i] = p
		} else {
			merged = append(merged, p)
		}
	}
	if err := s.registry.Load(merged); err != nil {
		respondPatternError(w, err)
		return
	}
	if s.catalog != nil {
		for _, p := range imported {
			if err := s.catalog.SavePattern(r.Context(), p); err != nil {
				s.logger.Warn("Failed to persist imported pattern", zap.String("pattern", p.ID), zap.Error(err))
			}
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "imported": len(imported)})
}

// handleTestPatterns runs detection over admin-supplied sample text and
// reports spans without storing anything.
func (s *Server) handleTestPatterns(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text    string `json:"text"`
		Profile string `json:"profile,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	var prof *profile.Profile
	if req.Profile != "" {
		var err error
		prof, err = s.profiles.Snapshot(req.Profile)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	detector := detect.New(s.config.Detection, s.logger.Logger)
	detections, err := detector.Detect(req.Text, s.registry.Snapshot().Active(prof))
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "input produced too many detections")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"detections": detections,
		"findings":   detect.Summarize(detections),
	})
}

// handleListProfiles returns all compliance profiles.
func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.profiles.List())
}

// handleGetProfile returns one profile.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	prof, err := s.profiles.Snapshot(mux.Vars(r)["name"])
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, prof)
}

// handlePutProfile creates or replaces a profile. In-flight sessions keep
// their snapshot; the change applies to new sessions only.
func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	var prof profile.Profile
	if !decodeBody(w, r, &prof) {
		return
	}
	prof.Name = mux.Vars(r)["name"]
	if err := s.profiles.Put(&prof); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.catalog != nil {
		if err := s.catalog.SaveProfile(r.Context(), &prof); err != nil {
			s.logger.Warn("Failed to persist profile", zap.String("profile", prof.Name), zap.Error(err))
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "name": prof.Name})
}

// handleDeleteProfile removes a profile.
func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.profiles.Delete(name); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "name": name})
}

// handleGetSession returns a live session's lifecycle record.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.engine.Session(mux.Vars(r)["id"])
	if !ok {
		respondError(w, http.StatusNotFound, "unknown session")
		return
	}
	respondJSON(w, http.StatusOK, session)
}

// handleRecentSessions returns the audit trail when the catalog is enabled.
func (s *Server) handleRecentSessions(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		respondError(w, http.StatusNotImplemented, "session audit requires a database")
		return
	}
	rows, err := s.catalog.RecentSessions(r.Context(), sessionPageLimit(r.URL.Query().Get("limit")))
	if err != nil {
		s.logger.Error("Failed to load session audit", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load sessions")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

// sessionPageLimit parses the audit listing page size, ignoring junk and
// capping the result.
func sessionPageLimit(raw string) int {
	limit := 50
	if raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxSessionPage {
		limit = maxSessionPage
	}
	return limit
}

// decodeBody decodes a JSON body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondPatternError(w http.ResponseWriter, err error) {
	var perr *pattern.PatternError
	if errors.As(err, &perr) {
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error":      "pattern rejected",
			"pattern_id": perr.PatternID,
			"reason":     perr.Reason,
		})
		return
	}
	respondError(w, http.StatusInternalServerError, "pattern operation failed")
}
