// Package domain defines the entities and state machine of the application
// orchestration engine (spec §3, §4.2).
//
// Valid status graph for Application:
//
//	DRAFT ─► READY_TO_SUBMIT ─► SUBMITTING ─┬─► SUBMITTED
//	                                          ├─► WAITING_APPROVAL ─ resume ─┐
//	                                          ├─► NEEDS_USER_INFO           │
//	                                          └─► ERROR                     │
//	WAITING_APPROVAL ──────────────────────────────────────────────────────┘
//	SUBMITTED ─► INTERVIEW ─► OFFER ─► CLOSED
//	SUBMITTED ─► REJECTED ─► CLOSED
package domain

import "fmt"

// ApplicationStatus mirrors the application_status enum in the store.
type ApplicationStatus string

const (
	StatusDraft            ApplicationStatus = "DRAFT"
	StatusReadyToSubmit    ApplicationStatus = "READY_TO_SUBMIT"
	StatusSubmitting       ApplicationStatus = "SUBMITTING"
	StatusSubmitted        ApplicationStatus = "SUBMITTED"
	StatusWaitingApproval  ApplicationStatus = "WAITING_APPROVAL"
	StatusNeedsUserInfo    ApplicationStatus = "NEEDS_USER_INFO"
	StatusError            ApplicationStatus = "ERROR"
	StatusInterview        ApplicationStatus = "INTERVIEW"
	StatusOffer            ApplicationStatus = "OFFER"
	StatusRejected         ApplicationStatus = "REJECTED"
	StatusClosed           ApplicationStatus = "CLOSED"
)

// ParseApplicationStatus converts a raw string to an ApplicationStatus,
// rejecting unknown or malformed values (case-sensitive, no padding).
func ParseApplicationStatus(s string) (ApplicationStatus, error) {
	st := ApplicationStatus(s)
	switch st {
	case StatusDraft, StatusReadyToSubmit, StatusSubmitting, StatusSubmitted,
		StatusWaitingApproval, StatusNeedsUserInfo, StatusError,
		StatusInterview, StatusOffer, StatusRejected, StatusClosed:
		return st, nil
	}
	return "", fmt.Errorf("unknown application status %q", s)
}

// IsTerminal reports whether an Application in this status has finished
// its submission attempt (non-terminal ⇒ counts toward invariant I2).
// Terminal statuses can still transition: ERROR may be retried and
// SUBMITTED moves on to INTERVIEW or REJECTED.
func IsTerminal(s ApplicationStatus) bool {
	switch s {
	case StatusSubmitted, StatusError, StatusRejected, StatusClosed:
		return true
	default:
		return false
	}
}

// applicationTransitions lists every allowed (from → to) pair for the
// dispatcher-driven part of the machine. Post-terminal user-driven moves
// (SUBMITTED → INTERVIEW → OFFER, → REJECTED → CLOSED) are listed too since
// they share the same enforcement path.
var applicationTransitions = map[ApplicationStatus][]ApplicationStatus{
	StatusDraft:           {StatusReadyToSubmit},
	StatusReadyToSubmit:   {StatusSubmitting},
	StatusSubmitting:      {StatusSubmitted, StatusWaitingApproval, StatusNeedsUserInfo, StatusError},
	StatusWaitingApproval: {StatusSubmitting},
	StatusNeedsUserInfo:   {StatusSubmitting, StatusError},
	StatusError:           {StatusReadyToSubmit}, // dispatcher-level retry re-arms the application
	StatusSubmitted:       {StatusInterview, StatusRejected},
	StatusInterview:       {StatusOffer, StatusRejected},
	StatusOffer:           {StatusRejected, StatusClosed},
	StatusRejected:        {StatusClosed},
	// CLOSED is terminal — no outgoing transitions.
}

// IsApplicationTransitionAllowed returns true when moving from → to is
// permitted by the state machine.
func IsApplicationTransitionAllowed(from, to ApplicationStatus) bool {
	allowed, ok := applicationTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// RoleStatus tracks a Role's lifecycle (spec §3). Status advances
// monotonically left-to-right with two permitted regressions.
type RoleStatus string

const (
	RoleSourced  RoleStatus = "sourced"
	RoleRanked   RoleStatus = "ranked"
	RoleApplying RoleStatus = "applying"
	RoleApplied  RoleStatus = "applied"
	RoleIgnored  RoleStatus = "ignored"
)

// ParseRoleStatus validates a raw string against the enumerated Role
// statuses.
func ParseRoleStatus(s string) (RoleStatus, error) {
	st := RoleStatus(s)
	switch st {
	case RoleSourced, RoleRanked, RoleApplying, RoleApplied, RoleIgnored:
		return st, nil
	}
	return "", fmt.Errorf("unknown role status %q", s)
}

var roleTransitions = map[RoleStatus][]RoleStatus{
	RoleSourced:  {RoleRanked, RoleIgnored},
	RoleRanked:   {RoleApplying, RoleIgnored},
	RoleApplying: {RoleApplied, RoleRanked, RoleIgnored}, // applying→ranked: terminal failure regression
	RoleApplied:  {},
	RoleIgnored:  {},
}

// IsRoleTransitionAllowed enforces the Role lifecycle, including the two
// permitted regressions named in spec §3: ranked→sourced (re-scrape) and
// applying→ranked (terminal failure).
func IsRoleTransitionAllowed(from, to RoleStatus) bool {
	if from == RoleRanked && to == RoleSourced {
		return true
	}
	allowed, ok := roleTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
