package worker

import (
	"testing"

	"jobmate/orchestrator/internal/domain"
)

func TestMapStandardFieldCases(t *testing.T) {
	years := 5
	ud := domain.UserData{
		Name:         "Ada Lovelace",
		Email:        "ada@example.com",
		Phone:        "555-1234",
		LinkedInURL:  "https://linkedin.com/in/ada",
		GitHubURL:    "https://github.com/ada",
		PortfolioURL: "https://ada.dev",
		City:         "London",
		State:        "N/A",
		ZipCode:      "SW1A",
		Address:      "10 Downing St",
		ExperienceYears: &years,
	}

	cases := []struct {
		label string
		want  string
	}{
		{"Full Name", "Ada Lovelace"},
		{"First Name", "Ada"},
		{"Last Name", "Lovelace"},
		{"Email Address", "ada@example.com"},
		{"Phone Number", "555-1234"},
		{"LinkedIn Profile", "https://linkedin.com/in/ada"},
		{"GitHub", "https://github.com/ada"},
		{"Portfolio / Website", "https://ada.dev"},
		{"City", "London"},
		{"State/Region", "N/A"},
		{"Zip Code", "SW1A"},
		{"Street Address", "10 Downing St"},
	}
	for _, c := range cases {
		got, ok := mapStandardField(c.label, ud)
		if !ok {
			t.Errorf("mapStandardField(%q): expected match", c.label)
			continue
		}
		if got != c.want {
			t.Errorf("mapStandardField(%q) = %q, want %q", c.label, got, c.want)
		}
	}
}

func TestMapStandardFieldNoMatch(t *testing.T) {
	ud := domain.UserData{Name: "Ada Lovelace"}
	if _, ok := mapStandardField("Favorite color", ud); ok {
		t.Error("expected no match for an unrelated label")
	}
}

func TestMapStandardFieldMissingSourceValue(t *testing.T) {
	ud := domain.UserData{Name: "Ada Lovelace"} // no email set
	if _, ok := mapStandardField("Email", ud); ok {
		t.Error("expected no match when the source field is empty")
	}
}

func TestSplitNameSingleWord(t *testing.T) {
	first, last, ok := splitName("Cher")
	if !ok || first != "Cher" || last != "" {
		t.Errorf("splitName(Cher) = (%q, %q, %v)", first, last, ok)
	}
}

func TestSplitNameMultiWord(t *testing.T) {
	first, last, ok := splitName("Mary Jane Watson")
	if !ok || first != "Mary" || last != "Jane Watson" {
		t.Errorf("splitName = (%q, %q, %v)", first, last, ok)
	}
}

func TestSplitNameEmpty(t *testing.T) {
	if _, _, ok := splitName("  "); ok {
		t.Error("expected splitName of blank input to fail")
	}
}
