package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskType is the enumerated set of queue names (spec §4.1). Publish
// rejects any type outside this set.
type TaskType string

const (
	TaskJobApplication  TaskType = "job_application"
	TaskUpdateJobStatus TaskType = "update_job_status"
	TaskApprovalRequest TaskType = "approval_request"
	TaskSendNotification TaskType = "send_notification"
)

// ValidTaskType reports whether t is one of the enumerated queue names.
func ValidTaskType(t TaskType) bool {
	switch t {
	case TaskJobApplication, TaskUpdateJobStatus, TaskApprovalRequest, TaskSendNotification:
		return true
	}
	return false
}

// QueueTask is the broker-side envelope (spec §3 "QueueTask", non-persistent
// in the domain store).
type QueueTask struct {
	ID        string
	Type      TaskType
	Payload   json.RawMessage
	Retries   int
	CreatedAt time.Time
	Priority  int
}

// UserData is the applicant profile snapshot embedded in a JobApplication
// payload (spec §6.2 user_data).
type UserData struct {
	Name                     string   `json:"name"`
	FirstName                string   `json:"first_name,omitempty"`
	LastName                 string   `json:"last_name,omitempty"`
	Email                    string   `json:"email"`
	Phone                    string   `json:"phone"`
	ResumeURL                string   `json:"resume_url,omitempty"`
	CoverLetterURL           string   `json:"cover_letter_url,omitempty"`
	LinkedInURL              string   `json:"linkedin_url,omitempty"`
	GitHubURL                string   `json:"github_url,omitempty"`
	PortfolioURL             string   `json:"portfolio_url,omitempty"`
	Website                  string   `json:"website,omitempty"`
	Address                  string   `json:"address,omitempty"`
	City                     string   `json:"city,omitempty"`
	State                    string   `json:"state,omitempty"`
	ZipCode                  string   `json:"zip_code,omitempty"`
	Country                  string   `json:"country,omitempty"`
	CurrentRole              string   `json:"current_role,omitempty"`
	ExperienceYears          *int     `json:"experience_years,omitempty"`
	Education                string   `json:"education,omitempty"`
	Skills                   []string `json:"skills,omitempty"`
	PreferredWorkArrangement string   `json:"preferred_work_arrangement,omitempty"` // remote|hybrid|onsite
	Availability             string   `json:"availability,omitempty"`
	SalaryExpectation        string   `json:"salary_expectation,omitempty"`
	Summary                  string   `json:"summary,omitempty"`
	Headline                 string   `json:"headline,omitempty"`
}

// Credentials is the plaintext site login carried only inside a
// job_application payload (short broker TTL — spec §5).
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AIInstructions steers tone/focus for LLM-authored custom answers. The LLM
// call itself is out of scope (spec §1); this struct is the contract.
type AIInstructions struct {
	Tone        string   `json:"tone,omitempty"`
	FocusAreas  []string `json:"focus_areas,omitempty"`
	AvoidTopics []string `json:"avoid_topics,omitempty"`
}

// JobApplicationPayload is the job_application queue message (spec §6.2).
type JobApplicationPayload struct {
	JobID         string            `json:"job_id"`
	JobURL        string            `json:"job_url"`
	Company       string            `json:"company"`
	Title         string            `json:"title"`
	ApplicationID string            `json:"application_id"`
	UserData      UserData          `json:"user_data"`
	Credentials   *Credentials      `json:"credentials,omitempty"`
	CustomAnswers map[string]string `json:"custom_answers,omitempty"`
	AIInstructions *AIInstructions  `json:"ai_instructions,omitempty"`
	ResumeFrom    string            `json:"resume_from,omitempty"`
}

// JobStatus is the enumerated status value carried by an
// UpdateJobStatusPayload.
type JobStatus string

const (
	JobStatusApplied         JobStatus = "applied"
	JobStatusFailed          JobStatus = "failed"
	JobStatusWaitingApproval JobStatus = "waiting_approval"
	JobStatusNeedsUserInfo   JobStatus = "needs_user_info"
)

// UpdateJobStatusPayload is the update_job_status queue message (spec §6.2).
type UpdateJobStatusPayload struct {
	JobID         string    `json:"job_id"`
	ApplicationID string    `json:"application_id"`
	Status        JobStatus `json:"status"`
	Notes         string    `json:"notes,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	ScreenshotURL string    `json:"screenshot_url,omitempty"`
	SubmittedAt   string    `json:"submitted_at,omitempty"`
}

// ApprovalRequestContext carries page metadata alongside the question.
type ApprovalRequestContext struct {
	PageTitle  string   `json:"page_title,omitempty"`
	PageURL    string   `json:"page_url,omitempty"`
	FormFields []string `json:"form_fields,omitempty"`
}

// ApprovalRequestPayload is the approval_request queue message (spec §6.2).
type ApprovalRequestPayload struct {
	JobID         string                  `json:"job_id"`
	ApplicationID string                  `json:"application_id"`
	Question      string                  `json:"question"`
	CurrentState  string                  `json:"current_state,omitempty"`
	ScreenshotURL string                  `json:"screenshot_url,omitempty"`
	Context       *ApprovalRequestContext `json:"context,omitempty"`
}

// SendNotificationPayload asks the notify consumer to deliver a message to
// the user. The dispatcher never sends SMS inline — always through this
// queue (spec §4.3 result drain).
type SendNotificationPayload struct {
	ProfileID string `json:"profile_id"`
	Message   string `json:"message"`
}

// DecodeJobApplicationPayload unmarshals and validates a job_application
// message body.
func DecodeJobApplicationPayload(raw json.RawMessage) (JobApplicationPayload, error) {
	var p JobApplicationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode job_application payload: %w", err)
	}
	if p.ApplicationID == "" || p.JobURL == "" {
		return p, fmt.Errorf("job_application payload missing application_id or job_url")
	}
	return p, nil
}

// DecodeUpdateJobStatusPayload unmarshals and validates an
// update_job_status message body.
func DecodeUpdateJobStatusPayload(raw json.RawMessage) (UpdateJobStatusPayload, error) {
	var p UpdateJobStatusPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode update_job_status payload: %w", err)
	}
	switch p.Status {
	case JobStatusApplied, JobStatusFailed, JobStatusWaitingApproval, JobStatusNeedsUserInfo:
	default:
		return p, fmt.Errorf("update_job_status payload has unknown status %q", p.Status)
	}
	if p.ApplicationID == "" {
		return p, fmt.Errorf("update_job_status payload missing application_id")
	}
	return p, nil
}

// DecodeApprovalRequestPayload unmarshals and validates an approval_request
// message body.
func DecodeApprovalRequestPayload(raw json.RawMessage) (ApprovalRequestPayload, error) {
	var p ApprovalRequestPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode approval_request payload: %w", err)
	}
	if p.ApplicationID == "" || p.Question == "" {
		return p, fmt.Errorf("approval_request payload missing application_id or question")
	}
	return p, nil
}
