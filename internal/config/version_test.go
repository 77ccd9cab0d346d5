package config

import (
	"errors"
	"strings"
	"testing"
)

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		name    string
		version int
		problem VersionProblem
	}{
		{name: "current", version: CurrentVersion},
		{name: "negative", version: -1, problem: VersionInvalid},
		{name: "zero", version: 0, problem: VersionInvalid},
		{name: "newer", version: CurrentVersion + 1, problem: VersionTooNew},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkVersion(tt.version)
			if tt.problem == "" {
				if err != nil {
					t.Fatalf("expected nil error, got %v", err)
				}
				return
			}
			var ve *VersionError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *VersionError, got %T", err)
			}
			if ve.Problem != tt.problem || ve.Found != tt.version || ve.Supported != CurrentVersion {
				t.Fatalf("unexpected error %+v", ve)
			}
		})
	}
}

func TestVersionErrorMessage(t *testing.T) {
	err := &VersionError{Found: 9, Supported: CurrentVersion, Problem: VersionTooNew}
	if !strings.Contains(err.Error(), "upgrade promptlens") {
		t.Fatalf("unexpected message %q", err.Error())
	}

	var nilErr *VersionError
	if nilErr.Error() != "" {
		t.Fatalf("expected empty message for nil error")
	}
}
