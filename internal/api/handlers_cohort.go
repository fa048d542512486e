// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/cohortmart/internal/cohort"
	"github.com/tomtom215/cohortmart/internal/validation"
)

// CohortResponse is the body of the cohort endpoint.
type CohortResponse struct {
	Stats   *cohort.Stats   `json:"stats"`
	Members []cohort.Member `json:"members,omitempty"`
}

// RecommendationsResponse is the body of the recommendations endpoint.
type RecommendationsResponse struct {
	BeatmapID       int64                   `json:"beatmap_id"`
	ModsKey         *string                 `json:"mods_key,omitempty"`
	Recommendations []cohort.Recommendation `json:"recommendations"`
}

// Cohort handles GET /api/v1/beatmaps/{id}/cohort.
func (h *Handler) Cohort(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	req, err := parseCohortRequest(r)
	if err != nil {
		respondParamError(rw, err)
		return
	}
	if verr := validation.ValidateStruct(req); verr != nil {
		respondValidationError(rw, verr)
		return
	}

	q := req.Query()
	stats, err := h.engine.CohortStats(r.Context(), q)
	if err != nil {
		respondQueryError(rw, r, err)
		return
	}
	resp := CohortResponse{Stats: stats}

	if req.Members && stats.Size > 0 {
		c, err := h.engine.ExtractCohort(r.Context(), q)
		if err != nil {
			respondQueryError(rw, r, err)
			return
		}
		resp.Members = c.Members
	}
	rw.Success(resp)
}

// Recommendations handles GET /api/v1/beatmaps/{id}/recommendations.
// An unknown beatmap or an empty cohort yields an empty list.
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	req, err := parseRecommendRequest(r)
	if err != nil {
		respondParamError(rw, err)
		return
	}
	if verr := validation.ValidateStruct(req); verr != nil {
		respondValidationError(rw, verr)
		return
	}

	recs, err := h.engine.Recommend(r.Context(), req.Query())
	if err != nil {
		respondQueryError(rw, r, err)
		return
	}
	if recs == nil {
		recs = []cohort.Recommendation{}
	}
	count := len(recs)
	rw.SuccessWithMeta(RecommendationsResponse{
		BeatmapID:       req.BeatmapID,
		ModsKey:         req.Mods,
		Recommendations: recs,
	}, &APIMeta{Count: &count})
}

func respondParamError(rw *ResponseWriter, err error) {
	var pe *paramError
	if errors.As(err, &pe) {
		rw.ErrorWithDetails(http.StatusBadRequest, validation.ErrorCode, pe.Error(),
			map[string]interface{}{"field": pe.name, "value": pe.value})
		return
	}
	rw.Error(http.StatusBadRequest, ErrCodeBadRequest, err.Error())
}

func respondValidationError(rw *ResponseWriter, verr *validation.RequestValidationError) {
	apiErr := verr.ToAPIError()
	rw.ErrorWithDetails(http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
}
