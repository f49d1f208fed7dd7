package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"jobmate/orchestrator/internal/apperrors"
	"jobmate/orchestrator/internal/domain"
)

// TriggerApplication runs trigger intake (spec §4.3.1) for an existing Role:
// upsert-or-reuse the Application (I2), decrypt credentials for the
// posting's site hostname if any are on file, assemble the job_application
// payload, publish it, and stamp the returned task_id via MarkSubmitting.
// A paused Profile is rejected without enqueuing anything.
func (d *Dispatcher) TriggerApplication(ctx context.Context, profileID, roleID string) (*domain.Application, string, error) {
	profile, err := d.Store.GetProfile(ctx, profileID)
	if err != nil {
		return nil, "", fmt.Errorf("triggerApplication: load profile: %w", err)
	}
	if profile.Paused {
		return nil, "", &apperrors.ValidationError{Msg: "profile is paused; resume with the \"start\" command"}
	}

	role, err := d.Store.GetRole(ctx, roleID)
	if err != nil {
		return nil, "", fmt.Errorf("triggerApplication: load role: %w", err)
	}

	app, created, err := d.Store.CreateOrReuseApplication(ctx, profileID, roleID)
	if err != nil {
		return nil, "", fmt.Errorf("triggerApplication: create or reuse application: %w", err)
	}
	if !created {
		slog.Info("dispatcher: reusing active application (I2)", "application_id", app.ID, "status", app.Status)
	}
	if !app.IsActive() {
		return nil, "", &apperrors.ValidationError{Msg: fmt.Sprintf("application %s is already terminal (%s)", app.ID, app.Status)}
	}
	if app.Status == domain.StatusDraft {
		// No résumé/cover-letter generation runs here, so a fresh DRAFT is
		// promoted with empty document URLs before it can enter SUBMITTING.
		app, err = d.Store.MarkReadyToSubmit(ctx, app.ID, "", "")
		if err != nil {
			return nil, "", fmt.Errorf("triggerApplication: mark ready to submit: %w", err)
		}
	}

	payload, err := d.buildJobApplicationPayload(ctx, profileID, role, app, "", nil)
	if err != nil {
		return nil, "", err
	}

	taskID, err := d.Broker.Publish(ctx, domain.TaskJobApplication, payload, 0)
	if err != nil {
		return nil, "", &apperrors.TransientInfraError{Op: "publish job_application", Err: err}
	}

	updated, err := d.Store.MarkSubmitting(ctx, app.ID, taskID)
	if err != nil {
		return nil, "", fmt.Errorf("triggerApplication: mark submitting: %w", err)
	}
	return updated, taskID, nil
}

// ResumeApplication re-publishes job_application for an Application coming
// out of WAITING_APPROVAL, folding the human's reply into custom_answers
// and resuming from the persisted state blob (spec §4.3 approval re-entry,
// §4.5 free-text routing).
func (d *Dispatcher) ResumeApplication(ctx context.Context, appID, answer string) error {
	app, err := d.Store.GetApplication(ctx, appID)
	if err != nil {
		return fmt.Errorf("resumeApplication: load application: %w", err)
	}
	if app.ApprovalContext == nil {
		return &apperrors.ValidationError{Msg: fmt.Sprintf("application %s has no open approval", appID)}
	}
	role, err := d.Store.GetRole(ctx, app.RoleID)
	if err != nil {
		return fmt.Errorf("resumeApplication: load role: %w", err)
	}

	customAnswers := map[string]string{app.ApprovalContext.Question: answer}
	payload, err := d.buildJobApplicationPayload(ctx, app.ProfileID, role, app, app.ApprovalContext.StateBlob, customAnswers)
	if err != nil {
		return err
	}

	taskID, err := d.Broker.Publish(ctx, domain.TaskJobApplication, payload, 0)
	if err != nil {
		return &apperrors.TransientInfraError{Op: "publish job_application (resume)", Err: err}
	}

	if _, err := d.Store.ResumeFromApproval(ctx, appID, taskID, app.ApprovalContext.Question, answer); err != nil {
		return fmt.Errorf("resumeApplication: mark submitting: %w", err)
	}
	return nil
}

// buildJobApplicationPayload assembles the payload spec §6.2 defines,
// merging Profile preferences into user_data and decrypting the site
// credential for the posting's hostname when one is on file. Decryption
// failures are hard SecurityErrors (I5) — never a silently empty password.
func (d *Dispatcher) buildJobApplicationPayload(ctx context.Context, profileID string, role *domain.Role, app *domain.Application, resumeFrom string, extraAnswers map[string]string) (domain.JobApplicationPayload, error) {
	var payload domain.JobApplicationPayload

	prefs, err := d.Store.GetPreferences(ctx, profileID)
	if err != nil {
		return payload, fmt.Errorf("buildJobApplicationPayload: load preferences: %w", err)
	}
	userData := userDataFromPreferences(prefs)
	if app.ResumeURL != nil {
		userData.ResumeURL = *app.ResumeURL
	}
	if app.CoverLetterURL != nil {
		userData.CoverLetterURL = *app.CoverLetterURL
	}

	var creds *domain.Credentials
	if hostname := hostnameOf(role.PostingURL); hostname != "" {
		cred, err := d.Store.GetCredential(ctx, profileID, hostname)
		if err == nil {
			plaintext, err := d.Box.Open(cred.Ciphertext)
			if err != nil {
				return payload, &apperrors.SecurityError{Msg: fmt.Sprintf("decrypt credential for %s: %v", hostname, err)}
			}
			creds = &domain.Credentials{Username: cred.Username, Password: plaintext}
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			return payload, fmt.Errorf("buildJobApplicationPayload: load credential: %w", err)
		}
	}

	customAnswers := app.CustomAnswers
	if len(extraAnswers) > 0 {
		if customAnswers == nil {
			customAnswers = make(map[string]string, len(extraAnswers))
		} else {
			merged := make(map[string]string, len(customAnswers)+len(extraAnswers))
			for k, v := range customAnswers {
				merged[k] = v
			}
			customAnswers = merged
		}
		for k, v := range extraAnswers {
			customAnswers[k] = v
		}
	}

	payload = domain.JobApplicationPayload{
		JobID:         role.ID,
		JobURL:        role.PostingURL,
		Company:       role.CompanyName,
		Title:         role.Title,
		ApplicationID: app.ID,
		UserData:      userData,
		Credentials:   creds,
		CustomAnswers: customAnswers,
		ResumeFrom:    resumeFrom,
	}
	return payload, nil
}

func userDataFromPreferences(prefs map[string]string) domain.UserData {
	ud := domain.UserData{
		Name:                     prefs["name"],
		FirstName:                prefs["first_name"],
		LastName:                 prefs["last_name"],
		Email:                    prefs["email"],
		Phone:                    prefs["phone"],
		LinkedInURL:              prefs["linkedin_url"],
		GitHubURL:                prefs["github_url"],
		PortfolioURL:             prefs["portfolio_url"],
		Website:                  prefs["website"],
		Address:                  prefs["address"],
		City:                     prefs["city"],
		State:                    prefs["state"],
		ZipCode:                  prefs["zip_code"],
		Country:                  prefs["country"],
		CurrentRole:              prefs["current_role"],
		Education:                prefs["education"],
		PreferredWorkArrangement: prefs["preferred_work_arrangement"],
		Availability:             prefs["availability"],
		SalaryExpectation:        prefs["salary_expectation"],
	}
	if years, err := strconv.Atoi(prefs["experience_years"]); err == nil {
		ud.ExperienceYears = &years
	}
	if skills := prefs["skills"]; skills != "" {
		ud.Skills = strings.Split(skills, ",")
	}
	return ud
}

func hostnameOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
