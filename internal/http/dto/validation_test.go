package dto

import "testing"

func TestDownloadRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid https", "https://example.com/watch?v=abc", false},
		{"valid http", "http://example.com/v", false},
		{"empty", "", true},
		{"no scheme", "example.com/v", true},
		{"wrong scheme", "ftp://example.com/v", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := DownloadRequest{URL: tt.url}
			errs := req.Validate()
			if (len(errs) > 0) != tt.wantErr {
				t.Errorf("Validate() errors = %v, wantErr %v", errs, tt.wantErr)
			}
		})
	}
}

func TestStemsRequestValidate(t *testing.T) {
	req := StemsRequest{URL: "https://example.com/v", Quality: "balanced", Mode: "hiphop"}
	if errs := req.Validate(); len(errs) != 0 {
		t.Errorf("Expected no errors, got %v", errs)
	}

	req = StemsRequest{URL: "https://example.com/v", Quality: "ultra"}
	errs := req.Validate()
	if len(errs) != 1 || errs[0].Field != "quality" {
		t.Errorf("Expected quality error, got %v", errs)
	}

	req = StemsRequest{URL: "https://example.com/v", Mode: "jazz"}
	errs = req.Validate()
	if len(errs) != 1 || errs[0].Field != "mode" {
		t.Errorf("Expected mode error, got %v", errs)
	}

	req = StemsRequest{}
	if errs := req.Validate(); len(errs) == 0 {
		t.Error("Expected url error for empty request")
	}
}

func TestStemsRequestDefaults(t *testing.T) {
	req := StemsRequest{URL: "https://example.com/v"}
	if req.QualityOrDefault() != "fast" {
		t.Errorf("Expected fast default, got %s", req.QualityOrDefault())
	}
	if req.ModeOrDefault() != "full" {
		t.Errorf("Expected full default, got %s", req.ModeOrDefault())
	}
}

func TestToResponse(t *testing.T) {
	errs := []ValidationError{
		{Field: "url", Message: "is required"},
		{Field: "mode", Message: "must be 'full', 'hiphop' or 'rock'"},
	}
	got := ToResponse(errs)
	want := "url: is required; mode: must be 'full', 'hiphop' or 'rock'"
	if got != want {
		t.Errorf("ToResponse() = %q, want %q", got, want)
	}
}
