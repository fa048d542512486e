// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

// Package validation validates API request structs with
// go-playground/validator v10.
//
// A single validator instance is shared by every request; it caches struct
// metadata after the first use. Field names in messages come from the
// `query` struct tag so that errors name the query parameter the client
// sent:
//
//	type CohortRequest struct {
//	    Seed    int64   `query:"id" validate:"gt=0"`
//	    Variant *string `query:"mods" validate:"omitempty,modskey"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    // 400 with apiErr.Code, apiErr.Message, apiErr.Details
//	}
package validation
