package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidateAPIKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		provided, configured string
		want                 bool
	}{
		{"provided", "provided", true},
		{"provided", "other", false},
		{"provided", "provided-longer", false},
		{"", "configured", false},
		{"provided", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		if got := ValidateAPIKey(tt.provided, tt.configured); got != tt.want {
			t.Errorf("ValidateAPIKey(%q, %q) = %v, want %v", tt.provided, tt.configured, got, tt.want)
		}
	}
}

func TestExtractAPIKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "bearer", header: "Bearer test-key", want: "test-key"},
		{name: "surrounding space", header: "Bearer   test-key  ", want: "test-key"},
		{name: "missing", header: "", wantErr: true},
		{name: "basic", header: "Basic abc", wantErr: true},
		{name: "lowercase scheme", header: "bearer test-key", wantErr: true},
		{name: "blank key", header: "Bearer   ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://example.test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, err := ExtractAPIKey(req)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got key %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected key %q, got %q", tt.want, got)
			}
		})
	}
}
