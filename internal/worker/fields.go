package worker

import (
	"strings"

	"jobmate/orchestrator/internal/domain"
)

// mapStandardField resolves a form field's visible label to a value drawn
// from user_data, per the case-insensitive substring table in spec §6.3.
// Order matters: more specific labels ("first name") must be checked before
// broader ones ("name").
func mapStandardField(label string, ud domain.UserData) (string, bool) {
	l := strings.ToLower(label)

	switch {
	case strings.Contains(l, "first name"):
		if ud.FirstName != "" {
			return ud.FirstName, true
		}
		if first, _, ok := splitName(ud.Name); ok {
			return first, true
		}
	case strings.Contains(l, "last name"):
		if ud.LastName != "" {
			return ud.LastName, true
		}
		if _, last, ok := splitName(ud.Name); ok {
			return last, true
		}
	case strings.Contains(l, "name") || strings.Contains(l, "full name"):
		if ud.Name != "" {
			return ud.Name, true
		}
	case strings.Contains(l, "email"):
		if ud.Email != "" {
			return ud.Email, true
		}
	case strings.Contains(l, "phone"):
		if ud.Phone != "" {
			return ud.Phone, true
		}
	case strings.Contains(l, "zip") || strings.Contains(l, "postal"):
		if ud.ZipCode != "" {
			return ud.ZipCode, true
		}
	case strings.Contains(l, "address") || strings.Contains(l, "street"):
		if ud.Address != "" {
			return ud.Address, true
		}
	case strings.Contains(l, "city"):
		if ud.City != "" {
			return ud.City, true
		}
	case strings.Contains(l, "state") || strings.Contains(l, "region"):
		if ud.State != "" {
			return ud.State, true
		}
	case strings.Contains(l, "linkedin"):
		if ud.LinkedInURL != "" {
			return ud.LinkedInURL, true
		}
	case strings.Contains(l, "github"):
		if ud.GitHubURL != "" {
			return ud.GitHubURL, true
		}
	case strings.Contains(l, "portfolio") || strings.Contains(l, "website"):
		if ud.PortfolioURL != "" {
			return ud.PortfolioURL, true
		}
		if ud.Website != "" {
			return ud.Website, true
		}
	}
	return "", false
}

// splitName splits "First Last" on the first space. Names with more than
// two components put everything after the first space into last.
func splitName(name string) (first, last string, ok bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", false
	}
	parts := strings.SplitN(name, " ", 2)
	if len(parts) == 1 {
		return parts[0], "", true
	}
	return parts[0], parts[1], true
}
