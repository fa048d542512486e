// Cohortmart - Dump Ingestion and Cohort Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cohortmart

package validation

import (
	"strings"
	"testing"
)

type sampleRequest struct {
	Seed    int64    `query:"id" validate:"gt=0"`
	Mods    *string  `query:"mods" validate:"omitempty,modskey"`
	Lower   *float64 `query:"lower" validate:"omitempty,gte=0"`
	Limit   int      `query:"limit" validate:"min=1,max=1000"`
	Backend string   `validate:"omitempty,oneof=memory redis"`
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func TestGetValidator_Singleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() should return the same instance")
	}
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name      string
		req       sampleRequest
		wantField string
		wantTag   string
	}{
		{name: "valid", req: sampleRequest{Seed: 1, Limit: 10}},
		{name: "valid mods", req: sampleRequest{Seed: 1, Limit: 10, Mods: strPtr("DT,HD")}},
		{name: "empty mods", req: sampleRequest{Seed: 1, Limit: 10, Mods: strPtr("")}},
		{name: "valid lower", req: sampleRequest{Seed: 1, Limit: 10, Lower: floatPtr(0)}},
		{name: "zero seed", req: sampleRequest{Limit: 10}, wantField: "id", wantTag: "gt"},
		{name: "lower-case mods", req: sampleRequest{Seed: 1, Limit: 10, Mods: strPtr("dt")}, wantField: "mods", wantTag: "modskey"},
		{name: "spaced mods", req: sampleRequest{Seed: 1, Limit: 10, Mods: strPtr("DT, HD")}, wantField: "mods", wantTag: "modskey"},
		{name: "trailing comma", req: sampleRequest{Seed: 1, Limit: 10, Mods: strPtr("DT,")}, wantField: "mods", wantTag: "modskey"},
		{name: "negative lower", req: sampleRequest{Seed: 1, Limit: 10, Lower: floatPtr(-1)}, wantField: "lower", wantTag: "gte"},
		{name: "limit too large", req: sampleRequest{Seed: 1, Limit: 5000}, wantField: "limit", wantTag: "max"},
		{name: "unknown backend", req: sampleRequest{Seed: 1, Limit: 1, Backend: "disk"}, wantField: "Backend", wantTag: "oneof"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateStruct(&tt.req)
			if tt.wantField == "" {
				if verr != nil {
					t.Fatalf("ValidateStruct() = %v, want nil", verr)
				}
				return
			}
			if verr == nil {
				t.Fatal("ValidateStruct() = nil, want an error")
			}
			errs := verr.Errors()
			if len(errs) != 1 {
				t.Fatalf("errors = %v, want one", verr)
			}
			if errs[0].Field() != tt.wantField || errs[0].Tag() != tt.wantTag {
				t.Errorf("field %q tag %q, want %q %q", errs[0].Field(), errs[0].Tag(), tt.wantField, tt.wantTag)
			}
			if !strings.Contains(errs[0].Error(), tt.wantField) {
				t.Errorf("message %q does not name the field", errs[0].Error())
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	single := ValidateStruct(&sampleRequest{Seed: 1, Limit: 0})
	if single == nil {
		t.Fatal("expected an error")
	}
	apiErr := single.ToAPIError()
	if apiErr.Code != ErrorCode {
		t.Errorf("Code = %q", apiErr.Code)
	}
	if apiErr.Message != "limit must be at least 1" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if apiErr.Details["field"] != "limit" {
		t.Errorf("Details = %v", apiErr.Details)
	}

	multi := ValidateStruct(&sampleRequest{Limit: 0, Mods: strPtr("x")})
	if multi == nil {
		t.Fatal("expected an error")
	}
	apiErr = multi.ToAPIError()
	fields, ok := apiErr.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 3 {
		t.Fatalf("Details = %v, want three fields", apiErr.Details)
	}
	if strings.Count(apiErr.Message, ";") != 2 {
		t.Errorf("Message = %q, want three joined messages", apiErr.Message)
	}
}

func TestRequestValidationError_Empty(t *testing.T) {
	var ve RequestValidationError
	if ve.Error() != "validation failed" {
		t.Errorf("Error() = %q", ve.Error())
	}
	if ve.ToAPIError().Code != ErrorCode {
		t.Error("empty error should still carry the validation code")
	}
}
