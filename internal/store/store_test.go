package store

import (
	"errors"
	"testing"

	"jobmate/orchestrator/internal/apperrors"
	"jobmate/orchestrator/internal/domain"
)

// ── nextApplicationStatus — terminal current status is always a no-op ─────

func TestNextApplicationStatus_FromTerminal(t *testing.T) {
	terminals := []domain.ApplicationStatus{
		domain.StatusSubmitted,
		domain.StatusError,
		domain.StatusRejected,
		domain.StatusClosed,
	}
	incoming := []domain.JobStatus{
		domain.JobStatusApplied,
		domain.JobStatusFailed,
		domain.JobStatusWaitingApproval,
		domain.JobStatusNeedsUserInfo,
	}
	for _, from := range terminals {
		for _, js := range incoming {
			_, err := nextApplicationStatus(from, js)
			if !errors.Is(err, apperrors.ErrAlreadyTerminal) {
				t.Errorf("nextApplicationStatus(%s, %s) err = %v, want ErrAlreadyTerminal", from, js, err)
			}
		}
	}
}

// ── nextApplicationStatus — valid mappings from non-terminal states ───────

func TestNextApplicationStatus_ValidMappings(t *testing.T) {
	nonTerminals := []domain.ApplicationStatus{
		domain.StatusDraft,
		domain.StatusReadyToSubmit,
		domain.StatusSubmitting,
		domain.StatusWaitingApproval,
		domain.StatusNeedsUserInfo,
		domain.StatusInterview,
		domain.StatusOffer,
	}
	cases := []struct {
		jobStatus domain.JobStatus
		want      domain.ApplicationStatus
	}{
		{domain.JobStatusApplied, domain.StatusSubmitted},
		{domain.JobStatusFailed, domain.StatusError},
		{domain.JobStatusNeedsUserInfo, domain.StatusNeedsUserInfo},
	}
	for _, from := range nonTerminals {
		for _, c := range cases {
			got, err := nextApplicationStatus(from, c.jobStatus)
			if err != nil {
				t.Errorf("nextApplicationStatus(%s, %s) unexpected error: %v", from, c.jobStatus, err)
				continue
			}
			if got != c.want {
				t.Errorf("nextApplicationStatus(%s, %s) = %s, want %s", from, c.jobStatus, got, c.want)
			}
		}
	}
}

// ── nextApplicationStatus — WAITING_APPROVAL is a valid enum value but has
// no update_job_status mapping (it arrives via ApplyApprovalRequest instead) ─

func TestNextApplicationStatus_UnhandledJobStatus(t *testing.T) {
	_, err := nextApplicationStatus(domain.StatusSubmitting, domain.JobStatusWaitingApproval)
	var valErr *apperrors.ValidationError
	if !errors.As(err, &valErr) {
		t.Errorf("nextApplicationStatus(SUBMITTING, waiting_approval) err = %v, want *ValidationError", err)
	}
}

func TestNextApplicationStatus_UnknownJobStatus(t *testing.T) {
	_, err := nextApplicationStatus(domain.StatusSubmitting, domain.JobStatus("bogus"))
	var valErr *apperrors.ValidationError
	if !errors.As(err, &valErr) {
		t.Errorf("nextApplicationStatus(SUBMITTING, bogus) err = %v, want *ValidationError", err)
	}
}
