// Package llm defines the opaque scoring/drafting contract used by the
// ranking (`/jobs/rank/{role_id}`) and résumé-generation paths. The model
// call itself is out of scope (spec §1); this package pins the shapes
// those calls return, carried over from
// original_source/app/models.py's RankResult/ResumeDraft/RoleDetails
// pydantic schemas.
package llm

import "context"

// RankResult scores how well a Profile fits a Role.
type RankResult struct {
	Score     float64 `json:"score"`     // 0.0-1.0
	Rationale string  `json:"rationale"`
}

// ResumeDraft is the generated application material for one Role.
type ResumeDraft struct {
	ResumeMarkdown      string   `json:"resume_md"`
	CoverLetterMarkdown string   `json:"cover_letter_md"`
	IdentifiedSkills    []string `json:"identified_skills"`
}

// RoleDetails is extracted from a scraped job posting body.
type RoleDetails struct {
	Title        string   `json:"title"`
	CompanyName  string   `json:"company_name"`
	Description  string   `json:"description,omitempty"`
	Location     string   `json:"location,omitempty"`
	Requirements string   `json:"requirements,omitempty"`
	SalaryRange  string   `json:"salary_range,omitempty"`
	Skills       []string `json:"skills,omitempty"`
}

// Scorer ranks a Role against a Profile summary.
type Scorer interface {
	Rank(ctx context.Context, profileSummary, roleDescription string) (RankResult, error)
}

// Drafter authors résumé and cover-letter markdown tailored to a Role.
type Drafter interface {
	Draft(ctx context.Context, profileSummary, roleDescription string) (ResumeDraft, error)
}

// Extractor parses a raw job-posting page body into structured RoleDetails.
type Extractor interface {
	Extract(ctx context.Context, pageBody string) (RoleDetails, error)
}
