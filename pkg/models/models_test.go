package models

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSafeID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"spaces become underscores", "Uber Eats", "Uber_Eats"},
		{"path separators stripped", "a/b\\c:d", "a_b_c_d"},
		{"punctuation dropped", "Hello, World!", "Hello_World"},
		{"kept characters", "sign-up_flow.v2", "sign-up_flow.v2"},
		{"leading and trailing space trimmed", "  Spotify  ", "Spotify"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeID(tt.input); got != tt.want {
				t.Errorf("SafeID(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSafeIDLengthCap(t *testing.T) {
	long := strings.Repeat("a", 500)
	if got := SafeID(long); len(got) != 200 {
		t.Errorf("expected 200 characters, got %d", len(got))
	}
}

func TestFlowValidate(t *testing.T) {
	valid := Flow{
		Name: "Onboarding",
		URL:  "https://example.com/flows/onboarding",
		Screens: []Screen{
			{ID: "s1", Name: "Welcome", Order: 0},
			{ID: "s2", Name: "Sign up", Order: 1},
		},
		Transitions: []Transition{
			{FromScreenID: "s1", ToScreenID: "s2", Type: "tap"},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid flow, got %v", err)
	}
	if valid.ID != "Onboarding" {
		t.Errorf("expected derived flow id, got %q", valid.ID)
	}

	missingName := Flow{URL: "https://example.com"}
	if err := missingName.Validate(); err == nil {
		t.Error("expected error for missing name")
	}

	missingURL := Flow{Name: "Checkout"}
	if err := missingURL.Validate(); err == nil {
		t.Error("expected error for missing URL")
	}

	badScreen := Flow{
		Name:    "Checkout",
		URL:     "https://example.com",
		Screens: []Screen{{Name: "no id"}},
	}
	if err := badScreen.Validate(); err == nil {
		t.Error("expected error for screen without id")
	}

	badTransition := Flow{
		Name:        "Checkout",
		URL:         "https://example.com",
		Transitions: []Transition{{FromScreenID: "s1"}},
	}
	if err := badTransition.Validate(); err == nil {
		t.Error("expected error for dangling transition")
	}
}

func TestLoadApps(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "apps.json")
	content := `[
		{"title": "Uber Eats", "url": "https://example.com/apps/uber-eats", "description": "food delivery"},
		{"title": "Spotify", "url": "https://example.com/apps/spotify"}
	]`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	apps, err := LoadApps(path)
	if err != nil {
		t.Fatalf("LoadApps failed: %v", err)
	}
	if len(apps) != 2 {
		t.Fatalf("expected 2 apps, got %d", len(apps))
	}
	if apps[0].Title != "Uber Eats" || apps[1].Title != "Spotify" {
		t.Error("listing order not preserved")
	}
	if apps[0].ID() != "Uber_Eats" {
		t.Errorf("unexpected app id %q", apps[0].ID())
	}
}

func TestLoadAppsRejectsIncompleteRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "apps.json")
	if err := os.WriteFile(path, []byte(`[{"url": "https://example.com"}]`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadApps(path); err == nil {
		t.Error("expected error for app without title")
	}
}
