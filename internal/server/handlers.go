package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/aristath/helmsman/internal/evaluation"
	"github.com/aristath/helmsman/internal/plan"
	"github.com/aristath/helmsman/internal/planner"
	"github.com/aristath/helmsman/internal/sequences/patterns"
)

// handleCreatePlan runs the full planning workflow.
// POST /api/v1/create-plan
func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	if s.coordinator == nil {
		http.Error(w, "planning not available on this instance", http.StatusServiceUnavailable)
		return
	}

	var req planner.PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Portfolio == nil {
		http.Error(w, "missing portfolio context", http.StatusBadRequest)
		return
	}

	resp, err := s.coordinator.CreatePlan(r.Context(), req)
	if err != nil {
		s.log.Error().Err(err).Msg("Plan creation failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if resp.Plan.Metadata == nil {
		resp.Plan.Metadata = make(map[string]string)
	}
	resp.Plan.Metadata["plan_id"] = uuid.New().String()

	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		if _, err := w.Write([]byte(plan.MarkdownReport(resp.Plan))); err != nil {
			s.log.Warn().Err(err).Msg("Failed to write markdown report")
		}
		return
	}

	s.writeJSON(w, resp)
}

// handleEvaluateSequences scores one batch of sequences.
// POST /api/v1/evaluate-sequences
func (s *Server) handleEvaluateSequences(w http.ResponseWriter, r *http.Request) {
	if s.evaluation == nil {
		http.Error(w, "evaluation not available on this instance", http.StatusServiceUnavailable)
		return
	}

	var req evaluation.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := s.evaluation.EvaluateBatch(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.writeJSON(w, resp)
}

// IdentifyRequest is the identify-opportunities payload.
type IdentifyRequest struct {
	Context *domain.OpportunityContext   `json:"context"`
	Config  *domain.PlannerConfiguration `json:"config,omitempty"`
}

// IdentifyResponse groups the identified candidates by category.
type IdentifyResponse struct {
	Opportunities domain.OpportunitiesByCategory `json:"opportunities"`
	Total         int                            `json:"total"`
}

// handleIdentifyOpportunities runs the calculators without planning.
// POST /api/v1/identify-opportunities
func (s *Server) handleIdentifyOpportunities(w http.ResponseWriter, r *http.Request) {
	if s.opportunities == nil {
		http.Error(w, "opportunity identification not available on this instance", http.StatusServiceUnavailable)
		return
	}

	var req IdentifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Context == nil {
		http.Error(w, "missing opportunity context", http.StatusBadRequest)
		return
	}
	config := req.Config
	if config == nil {
		config = domain.NewDefaultConfiguration()
	}
	config.Validate()

	opportunities, err := s.opportunities.Identify(req.Context, config)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, IdentifyResponse{
		Opportunities: opportunities,
		Total:         opportunities.Total(),
	})
}

// GenerateRequest is the generate-sequences payload.
type GenerateRequest struct {
	Opportunities domain.OpportunitiesByCategory `json:"opportunities"`
	Context       *domain.OpportunityContext     `json:"context"`
	PriceHistory  map[string][]float64           `json:"price_history,omitempty"`
	Config        *domain.PlannerConfiguration   `json:"config,omitempty"`
}

// handleGenerateSequences streams sequence batches as newline-delimited JSON,
// one SequenceBatch per line, flushed as produced.
// POST /api/v1/generate-sequences
func (s *Server) handleGenerateSequences(w http.ResponseWriter, r *http.Request) {
	if s.sequences == nil {
		http.Error(w, "sequence generation not available on this instance", http.StatusServiceUnavailable)
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Context == nil {
		http.Error(w, "missing opportunity context", http.StatusBadRequest)
		return
	}
	config := req.Config
	if config == nil {
		config = domain.NewDefaultConfiguration()
	}
	config.Validate()

	pctx := &patterns.Context{
		Opportunities: req.Opportunities,
		Portfolio:     req.Context,
		PriceHistory:  req.PriceHistory,
		MaxDepth:      config.MaxDepth,
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	enc := json.NewEncoder(w)
	for batch := range s.sequences.Stream(r.Context(), pctx, config) {
		if err := enc.Encode(batch); err != nil {
			s.log.Warn().Err(err).Msg("Sequence stream write failed, client likely gone")
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
