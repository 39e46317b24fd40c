package dto

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func ToResponse(errs []ValidationError) string {
	var msgs []string
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func validateMediaURL(raw string) []ValidationError {
	var errs []ValidationError
	if raw == "" {
		errs = append(errs, ValidationError{Field: "url", Message: "is required"})
		return errs
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ValidationError{Field: "url", Message: "must be an http(s) URL"})
	}
	return errs
}

func validateQuality(quality string) []ValidationError {
	var errs []ValidationError
	if quality == "" {
		return errs
	}
	valid := map[string]bool{"fast": true, "balanced": true, "high": true}
	if !valid[quality] {
		errs = append(errs, ValidationError{Field: "quality", Message: "must be 'fast', 'balanced' or 'high'"})
	}
	return errs
}

func validateMode(mode string) []ValidationError {
	var errs []ValidationError
	if mode == "" {
		return errs
	}
	valid := map[string]bool{"full": true, "hiphop": true, "rock": true}
	if !valid[mode] {
		errs = append(errs, ValidationError{Field: "mode", Message: "must be 'full', 'hiphop' or 'rock'"})
	}
	return errs
}
