// Package httpapi exposes a rulestore.Store over HTTP (spec.md §6): the
// REST contract the gateway's control plane uses to read and mutate the
// active ruleset, routed with chi.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/edgelimit/gateway/configcache"
	"github.com/edgelimit/gateway/rulestore"
	"github.com/edgelimit/gateway/ruleset"
)

// Handler wraps a rulestore.Store with its HTTP surface.
type Handler struct {
	store  rulestore.Store
	cache  *configcache.Cache // optional; forced to refresh after mutations
	logger *zap.Logger
}

// New builds a Handler. cache may be nil if the caller relies on the
// Config Cache's own TTL to pick up mutations instead of an immediate
// forced refresh.
func New(store rulestore.Store, cache *configcache.Cache, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, cache: cache, logger: logger}
}

// Routes mounts the rule CRUD surface onto r, matching spec.md §6's
// literal contract.
//
//	GET    /config           fetch the whole ruleset
//	POST   /config           replace the whole ruleset (normalizes numeric fields)
//	PUT    /config/reorder   reorder rules by name, body {rules:[...]}
//	GET    /rules/{id}       fetch one rule
//	POST   /rules            create a new rule
//	PUT    /rules/{id}       replace an existing rule
//	DELETE /rules/{id}       remove a rule
func (h *Handler) Routes(r chi.Router) {
	r.Get("/config", h.getRuleset)
	r.Post("/config", h.postRuleset)
	r.Put("/config/reorder", h.reorder)
	r.Post("/rules", h.createRule)
	r.Get("/rules/{id}", h.getRule)
	r.Put("/rules/{id}", h.putRule)
	r.Delete("/rules/{id}", h.deleteRule)
}

type errorEnvelope struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: msg, Details: details})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("httpapi: failed to encode response", zap.Error(err))
	}
}

func (h *Handler) refreshCache(r *http.Request) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Refresh(r.Context()); err != nil {
		h.logger.Warn("httpapi: post-mutation cache refresh failed", zap.Error(err))
	}
}

func (h *Handler) getRuleset(w http.ResponseWriter, r *http.Request) {
	rs, err := h.store.GetRuleset(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load ruleset", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, rs)
}

// postRuleset replaces the whole ruleset (spec.md §6: "POST /config →
// replaces whole config; server normalizes numeric fields"). Numeric
// normalization happens in the store layer (rulestore/memory and
// rulestore/redisstore both call ruleset.Normalize on every write), so
// this handler only needs to decode and forward.
func (h *Handler) postRuleset(w http.ResponseWriter, r *http.Request) {
	var rs ruleset.Ruleset
	if err := json.NewDecoder(r.Body).Decode(&rs); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid ruleset JSON", err.Error())
		return
	}
	if err := h.store.PutRuleset(r.Context(), &rs); err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to save ruleset", err.Error())
		return
	}
	h.refreshCache(r)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getRule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "id")
	rule, err := h.store.GetRule(r.Context(), name)
	if errors.Is(err, rulestore.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "rule not found", "")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load rule", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, rule)
}

func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	var rule ruleset.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid rule JSON", err.Error())
		return
	}
	if rule.Name == "" {
		h.writeError(w, http.StatusBadRequest, "rule name is required", "")
		return
	}
	err := h.store.CreateRule(r.Context(), rule)
	switch {
	case errors.Is(err, rulestore.ErrAlreadyExists):
		h.writeError(w, http.StatusMethodNotAllowed, "rule already exists", "use PUT /rules/"+rule.Name+" to replace it")
	case err != nil:
		h.writeError(w, http.StatusInternalServerError, "failed to create rule", err.Error())
	default:
		h.refreshCache(r)
		h.writeJSON(w, http.StatusCreated, rule)
	}
}

func (h *Handler) putRule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "id")
	var rule ruleset.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid rule JSON", err.Error())
		return
	}
	rule.Name = name

	err := h.store.PutRule(r.Context(), rule)
	switch {
	case errors.Is(err, rulestore.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "rule not found", "")
	case err != nil:
		h.writeError(w, http.StatusInternalServerError, "failed to update rule", err.Error())
	default:
		h.refreshCache(r)
		h.writeJSON(w, http.StatusOK, rule)
	}
}

func (h *Handler) deleteRule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "id")
	err := h.store.DeleteRule(r.Context(), name)
	switch {
	case errors.Is(err, rulestore.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "rule not found", "")
	case err != nil:
		h.writeError(w, http.StatusInternalServerError, "failed to delete rule", err.Error())
	default:
		h.refreshCache(r)
		w.WriteHeader(http.StatusNoContent)
	}
}

// reorderRequest matches spec.md §6's literal wire shape for
// PUT /config/reorder: an ordered list of rule names under "rules".
type reorderRequest struct {
	Rules []string `json:"rules"`
}

func (h *Handler) reorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid reorder JSON", err.Error())
		return
	}
	if err := h.store.Reorder(r.Context(), req.Rules); err != nil {
		h.writeError(w, http.StatusBadRequest, "reorder failed", err.Error())
		return
	}
	h.refreshCache(r)
	w.WriteHeader(http.StatusNoContent)
}
