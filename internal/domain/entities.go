package domain

import (
	"encoding/json"
	"time"
)

// Profile is one per user. It owns Preferences and Credentials.
type Profile struct {
	ID        string
	Headline  string
	Summary   string
	Paused    bool // gates trigger-intake; set by the "stop"/"start" HITL commands
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Preference is a unique (profile_id, key) UTF-8 value, used as a
// general-purpose key-value store (phone number, LinkedIn URL, salary
// expectation, availability, etc.).
type Preference struct {
	ID          string
	ProfileID   string
	Key         string
	Value       string
	LastUpdated time.Time
}

// Credential is unique per (profile_id, site_hostname). Password is stored
// as authenticated-ciphertext bytes (I5) and is never logged or returned by
// any query API — Ciphertext is the only representation that ever leaves
// the store layer; decryption happens in internal/security immediately
// before task publication.
type Credential struct {
	ID           string
	ProfileID    string
	SiteHostname string
	Username     string
	Ciphertext   []byte
}

// Company is deduplicated by normalized (lowercase, trimmed) name.
type Company struct {
	ID   string
	Name string
}

// Role is a job posting (spec §3). Status advances monotonically with two
// permitted regressions, enforced by IsRoleTransitionAllowed.
type Role struct {
	ID            string
	CompanyID     string
	CompanyName   string
	Title         string
	Description   string
	PostingURL    string
	UniqueHash    string
	Status        RoleStatus
	RankScore     *float64
	RankRationale *string
	Location      *string
	Requirements  *string
	SalaryRange   *string
	Skills        []string
	CreatedAt     time.Time
}

// ApprovalContext is the serialized snapshot of paused worker state
// persisted on WAITING_APPROVAL (spec §4.3). It must contain enough
// information to resume without re-scraping.
type ApprovalContext struct {
	Question      string          `json:"question"`
	PageURL       string          `json:"page_url,omitempty"`
	StateBlob     string          `json:"state_blob"`
	ScreenshotURL string          `json:"screenshot_url,omitempty"`
	Context       json.RawMessage `json:"context,omitempty"`
	RequestedAt   time.Time       `json:"requested_at"`
}

// Application is one attempt of one Profile against one Role (spec §3).
type Application struct {
	ID              string
	RoleID          string
	ProfileID       string
	Status          ApplicationStatus
	QueueTaskID     *string
	ResumeURL       *string
	CoverLetterURL  *string
	CustomAnswers   map[string]string
	ApprovalContext *ApprovalContext
	ScreenshotURL   *string
	ErrorMessage    *string
	Notes           *string
	Attempts        int
	SubmittedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsActive reports whether this Application counts toward invariant I2 (at
// most one active Application per (profile_id, role_id)).
func (a *Application) IsActive() bool { return !IsTerminal(a.Status) }
