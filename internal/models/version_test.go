package models

import (
	"errors"
	"testing"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		input   string
		status  Status
		wantErr bool
	}{
		{"1.0.0", StatusRelease, false},
		{"1.0", StatusRelease, false},
		{"2.0.0-SNAPSHOT", StatusSnapshot, false},
		{"6.2-SNAPSHOT", StatusSnapshot, false},
		{"3.1.0-dev.2", StatusRelease, false},
		{"1.0.0-rc.1+build.5", StatusRelease, false},
		{"1.0.0-snapshot", StatusRelease, false},
		{" 1.2.3 ", StatusRelease, false},
		{"", "", true},
		{"1", "", true},
		{"1.x", "", true},
		{"v1.0.0", "", true},
		{"1.0.0-SNAPSHOT-", StatusRelease, false},
		{"1.0.0+", "", true},
	}

	for _, tt := range tests {
		v, err := ParseVersion(tt.input)
		if tt.wantErr {
			if !IsErrorType(err, ErrInvalidVersionFormat) {
				t.Errorf("ParseVersion(%q): expected InvalidVersionFormat, got %v", tt.input, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseVersion(%q): unexpected error %v", tt.input, err)
			continue
		}
		if v.Status != tt.status {
			t.Errorf("ParseVersion(%q): expected status %s, got %s", tt.input, tt.status, v.Status)
		}
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("FULL"); err != nil || m != ModeFull {
		t.Errorf("Expected full mode, got %v (%v)", m, err)
	}
	if m, err := ParseMode("simple"); err != nil || m != ModeSimple {
		t.Errorf("Expected simple mode, got %v (%v)", m, err)
	}
	if _, err := ParseMode("staged"); !IsErrorType(err, ErrInvalidConfig) {
		t.Errorf("Expected InvalidConfig for unknown mode, got %v", err)
	}
}

func TestPublishErrorFormatting(t *testing.T) {
	cause := errors.New("no such file")
	err := &PublishError{Type: ErrMissingArtifact, Subject: "org.example:lib:1.0", Err: cause}

	if got := err.Error(); got != "[MissingArtifact] org.example:lib:1.0: no such file" {
		t.Errorf("Unexpected message: %s", got)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Expected wrapped cause to be reachable")
	}

	wrapped := errorsWrap(err)
	if !IsErrorType(wrapped, ErrMissingArtifact) {
		t.Errorf("Expected type to survive wrapping")
	}
	if ErrorSubject(wrapped) != "org.example:lib:1.0" {
		t.Errorf("Expected subject to survive wrapping")
	}
}

func errorsWrap(err error) error {
	return errors.Join(errors.New("build failed"), err)
}

func TestCoordinatesOrdering(t *testing.T) {
	a := Coordinates{Group: "org.a", Name: "lib", Version: "1.0"}
	b := Coordinates{Group: "org.a", Name: "lib", Version: "2.0"}
	c := Coordinates{Group: "org.a", Name: "zed", Version: "0.1"}
	d := Coordinates{Group: "org.b", Name: "abc", Version: "0.1"}

	ordered := []Coordinates{a, b, c, d}
	for i := 0; i < len(ordered)-1; i++ {
		if !ordered[i].Less(ordered[i+1]) {
			t.Errorf("Expected %s < %s", ordered[i], ordered[i+1])
		}
		if ordered[i+1].Less(ordered[i]) {
			t.Errorf("Expected %s not < %s", ordered[i+1], ordered[i])
		}
	}
	if a.Key() != "org.a:lib:1.0" {
		t.Errorf("Unexpected key %s", a.Key())
	}
}
