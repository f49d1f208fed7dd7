package dispatcher

import "testing"

// ── userDataFromPreferences ─────────────────────────────────────────────

func TestUserDataFromPreferences_MapsKnownFields(t *testing.T) {
	prefs := map[string]string{
		"name":             "Jamie Rivera",
		"email":            "jamie@example.com",
		"phone":            "555-0100",
		"linkedin_url":     "https://linkedin.com/in/jamie",
		"experience_years": "5",
		"skills":           "go,python,sql",
	}
	ud := userDataFromPreferences(prefs)

	if ud.Name != "Jamie Rivera" {
		t.Errorf("Name = %q, want %q", ud.Name, "Jamie Rivera")
	}
	if ud.Email != "jamie@example.com" {
		t.Errorf("Email = %q, want %q", ud.Email, "jamie@example.com")
	}
	if ud.ExperienceYears == nil || *ud.ExperienceYears != 5 {
		t.Errorf("ExperienceYears = %v, want pointer to 5", ud.ExperienceYears)
	}
	wantSkills := []string{"go", "python", "sql"}
	if len(ud.Skills) != len(wantSkills) {
		t.Fatalf("Skills = %v, want %v", ud.Skills, wantSkills)
	}
	for i, s := range wantSkills {
		if ud.Skills[i] != s {
			t.Errorf("Skills[%d] = %q, want %q", i, ud.Skills[i], s)
		}
	}
}

func TestUserDataFromPreferences_MissingExperienceYears(t *testing.T) {
	ud := userDataFromPreferences(map[string]string{"name": "No Experience Field"})
	if ud.ExperienceYears != nil {
		t.Errorf("ExperienceYears = %v, want nil when preference is absent", ud.ExperienceYears)
	}
}

func TestUserDataFromPreferences_EmptySkillsOmitted(t *testing.T) {
	ud := userDataFromPreferences(map[string]string{"skills": ""})
	if ud.Skills != nil {
		t.Errorf("Skills = %v, want nil for empty preference", ud.Skills)
	}
}

// ── hostnameOf ──────────────────────────────────────────────────────────

func TestHostnameOf(t *testing.T) {
	cases := []struct {
		rawURL string
		want   string
	}{
		{"https://jobs.example.com/posting/123", "jobs.example.com"},
		{"http://example.com", "example.com"},
		{"://not a url", ""},
	}
	for _, c := range cases {
		if got := hostnameOf(c.rawURL); got != c.want {
			t.Errorf("hostnameOf(%q) = %q, want %q", c.rawURL, got, c.want)
		}
	}
}
