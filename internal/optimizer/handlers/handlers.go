// Package handlers provides HTTP handlers for portfolio optimization requests.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ViniHorstFer/portfolio-sub000/internal/history"
	"github.com/ViniHorstFer/portfolio-sub000/internal/optimizer"
	"github.com/ViniHorstFer/portfolio-sub000/internal/results"
)

// Handler handles optimization HTTP requests
type Handler struct {
	repo         *history.Repository
	store        *results.Store
	cfg          optimizer.Config
	lookbackDays int
	log          zerolog.Logger
}

// NewHandler creates a new optimization handler
func NewHandler(
	repo *history.Repository,
	store *results.Store,
	cfg optimizer.Config,
	lookbackDays int,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		repo:         repo,
		store:        store,
		cfg:          cfg,
		lookbackDays: lookbackDays,
		log:          log.With().Str("handler", "optimizer").Logger(),
	}
}

// RunRequest is the body of POST /api/optimizer/run.
type RunRequest struct {
	Objective         string                         `json:"objective"`
	Symbols           []string                       `json:"symbols,omitempty"`
	Constraints       optimizer.PortfolioConstraints `json:"constraints"`
	WeightConstraints optimizer.WeightConstraints    `json:"weight_constraints"`
	FullEval          bool                           `json:"full_eval"`
}

// HandleRun handles POST /api/optimizer/run
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	objective, err := parseObjective(req.Objective)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	symbols := req.Symbols
	if len(symbols) == 0 {
		symbols, err = h.repo.ListFunds()
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to list funds")
			http.Error(w, "Failed to list funds", http.StatusInternalServerError)
			return
		}
	}
	if len(symbols) == 0 {
		http.Error(w, "No funds available for optimization", http.StatusUnprocessableEntity)
		return
	}

	categories, err := h.repo.LoadCategories()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load categories")
		http.Error(w, "Failed to load categories", http.StatusInternalServerError)
		return
	}

	if err := optimizer.ValidateWeightConstraints(symbols, categories, req.WeightConstraints); err != nil {
		http.Error(w, "Invalid weight constraints: "+err.Error(), http.StatusBadRequest)
		return
	}

	returns, err := h.repo.LoadReturnMatrix(symbols, h.lookbackDays)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load return matrix")
		http.Error(w, "Failed to load return history: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}

	opt := optimizer.New(returns, categories, h.cfg, h.log)
	result := opt.Optimize(objective, req.Constraints, req.WeightConstraints, req.FullEval)

	snap, err := h.store.Save(string(objective), result)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to persist optimization result")
		// The optimization itself succeeded; report it without snapshot ID.
	}

	metadata := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
		"objective": string(objective),
		"symbols":   len(symbols),
	}
	if snap != nil {
		metadata["snapshot_id"] = snap.ID
	}
	response := map[string]interface{}{
		"data":     result,
		"metadata": metadata,
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	h.writeJSON(w, status, response)
}

// HandleLatestResult handles GET /api/optimizer/results/latest
func (h *Handler) HandleLatestResult(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.Latest()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load latest snapshot")
		http.Error(w, "Failed to load latest result", http.StatusInternalServerError)
		return
	}
	if snap == nil {
		http.Error(w, "No optimization results yet", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": snap})
}

// HandleGetResult handles GET /api/optimizer/results/{id}
func (h *Handler) HandleGetResult(w http.ResponseWriter, r *http.Request, id string) {
	snap, err := h.store.Get(id)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load snapshot")
		http.Error(w, "Failed to load result", http.StatusInternalServerError)
		return
	}
	if snap == nil {
		http.Error(w, "Result not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": snap})
}

// HandleListResults handles GET /api/optimizer/results
func (h *Handler) HandleListResults(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list snapshots")
		http.Error(w, "Failed to list results", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": ids})
}

// HandleListFunds handles GET /api/optimizer/funds
func (h *Handler) HandleListFunds(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.repo.ListFunds()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list funds")
		http.Error(w, "Failed to list funds", http.StatusInternalServerError)
		return
	}
	categories, err := h.repo.LoadCategories()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load categories")
		http.Error(w, "Failed to load categories", http.StatusInternalServerError)
		return
	}

	funds := make([]map[string]string, 0, len(symbols))
	for _, sym := range symbols {
		funds = append(funds, map[string]string{
			"symbol":   sym,
			"category": categories[sym],
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": funds})
}

func parseObjective(s string) (optimizer.Objective, error) {
	switch optimizer.Objective(s) {
	case optimizer.ObjectiveMaxReturn,
		optimizer.ObjectiveMinVolatility,
		optimizer.ObjectiveMinCVaR,
		optimizer.ObjectiveMaxOmega:
		return optimizer.Objective(s), nil
	}
	return "", fmt.Errorf("unknown objective %q (expected max_return, min_volatility, min_cvar or max_omega)", s)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
