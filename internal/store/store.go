package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobmate/orchestrator/internal/apperrors"
	"jobmate/orchestrator/internal/domain"
)

// Store encapsulates all Application Store business logic. Transport
// agnostic: used by the dispatcher's HTTP handlers and result-drain loop,
// grounded on tracker-service/internal/kanban.Service.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a configured Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ─── Profiles ─────────────────────────────────────────────────────────────

func (s *Store) CreateProfile(ctx context.Context, headline, summary string) (*domain.Profile, error) {
	var p domain.Profile
	err := s.pool.QueryRow(ctx,
		`INSERT INTO profiles (headline, summary) VALUES ($1, $2)
		 RETURNING id, headline, summary, paused, created_at, updated_at`,
		headline, summary,
	).Scan(&p.ID, &p.Headline, &p.Summary, &p.Paused, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("createProfile: %w", err)
	}
	return &p, nil
}

func (s *Store) GetProfile(ctx context.Context, profileID string) (*domain.Profile, error) {
	var p domain.Profile
	err := s.pool.QueryRow(ctx,
		`SELECT id, headline, summary, paused, created_at, updated_at
		 FROM profiles WHERE id = $1`, profileID,
	).Scan(&p.ID, &p.Headline, &p.Summary, &p.Paused, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getProfile: %w", err)
	}
	return &p, nil
}

// SetProfilePaused flips the pause flag used to gate trigger intake, driven
// by the "stop"/"start" HITL commands.
func (s *Store) SetProfilePaused(ctx context.Context, profileID string, paused bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE profiles SET paused = $1, updated_at = NOW() WHERE id = $2`,
		paused, profileID,
	)
	if err != nil {
		return fmt.Errorf("setProfilePaused: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ─── Preferences ──────────────────────────────────────────────────────────

// UpsertPreference sets a (profile_id, key) value, overwriting any existing
// one — the general-purpose key-value store spec §3 describes.
func (s *Store) UpsertPreference(ctx context.Context, profileID, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO preferences (profile_id, key, value, last_updated)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (profile_id, key) DO UPDATE SET value = $3, last_updated = NOW()`,
		profileID, key, value,
	)
	if err != nil {
		return fmt.Errorf("upsertPreference: %w", err)
	}
	return nil
}

// GetPreferences returns every (key, value) pair for a profile as a map.
func (s *Store) GetPreferences(ctx context.Context, profileID string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, value FROM preferences WHERE profile_id = $1`, profileID)
	if err != nil {
		return nil, fmt.Errorf("getPreferences: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("getPreferences scan: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// GetProfileIDByPhone reverse-looks-up a Profile by its "phone" preference,
// used by the HITL controller to attribute an inbound SMS (spec §4.5).
func (s *Store) GetProfileIDByPhone(ctx context.Context, phone string) (string, error) {
	var profileID string
	err := s.pool.QueryRow(ctx,
		`SELECT profile_id FROM preferences WHERE key = 'phone' AND value = $1 LIMIT 1`,
		phone,
	).Scan(&profileID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperrors.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getProfileIDByPhone: %w", err)
	}
	return profileID, nil
}

// ─── Credentials ──────────────────────────────────────────────────────────

// UpsertCredential stores a credential's AEAD ciphertext (I5). The store
// never sees or logs the plaintext password.
func (s *Store) UpsertCredential(ctx context.Context, profileID, siteHostname, username string, ciphertext []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO credentials (profile_id, site_hostname, username, ciphertext)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (profile_id, site_hostname)
		 DO UPDATE SET username = $3, ciphertext = $4`,
		profileID, siteHostname, username, ciphertext,
	)
	if err != nil {
		return fmt.Errorf("upsertCredential: %w", err)
	}
	return nil
}

func (s *Store) GetCredential(ctx context.Context, profileID, siteHostname string) (*domain.Credential, error) {
	var c domain.Credential
	err := s.pool.QueryRow(ctx,
		`SELECT id, profile_id, site_hostname, username, ciphertext
		 FROM credentials WHERE profile_id = $1 AND site_hostname = $2`,
		profileID, siteHostname,
	).Scan(&c.ID, &c.ProfileID, &c.SiteHostname, &c.Username, &c.Ciphertext)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getCredential: %w", err)
	}
	return &c, nil
}

// ─── Companies ────────────────────────────────────────────────────────────

// GetOrCreateCompany deduplicates by normalized (lowercase, trimmed) name.
func (s *Store) GetOrCreateCompany(ctx context.Context, name string) (*domain.Company, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	var c domain.Company
	err := s.pool.QueryRow(ctx,
		`WITH ins AS (
		   INSERT INTO companies (name) VALUES ($1)
		   ON CONFLICT (name) DO NOTHING
		   RETURNING id, name
		 )
		 SELECT id, name FROM ins
		 UNION ALL
		 SELECT id, name FROM companies WHERE name = $1
		 LIMIT 1`,
		normalized,
	).Scan(&c.ID, &c.Name)
	if err != nil {
		return nil, fmt.Errorf("getOrCreateCompany: %w", err)
	}
	return &c, nil
}

// ─── Roles ────────────────────────────────────────────────────────────────

// CreateRole inserts a Role, enforcing I1 (unique_hash dedupe) by returning
// the existing row on conflict instead of erroring.
func (s *Store) CreateRole(ctx context.Context, r *domain.Role) (*domain.Role, error) {
	var out domain.Role
	err := s.pool.QueryRow(ctx,
		`WITH ins AS (
		   INSERT INTO roles (company_id, title, description, posting_url, unique_hash,
		                       status, location, requirements, salary_range, skills)
		   VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		   ON CONFLICT (unique_hash) DO NOTHING
		   RETURNING id, company_id, title, description, posting_url, unique_hash,
		             status, rank_score, rank_rationale, location, requirements,
		             salary_range, skills, created_at
		 )
		 SELECT ins.id, ins.company_id, c.name, ins.title, ins.description, ins.posting_url,
		        ins.unique_hash, ins.status, ins.rank_score, ins.rank_rationale, ins.location,
		        ins.requirements, ins.salary_range, ins.skills, ins.created_at
		 FROM ins JOIN companies c ON c.id = ins.company_id
		 UNION ALL
		 SELECT roles.id, roles.company_id, c.name, roles.title, roles.description, roles.posting_url,
		        roles.unique_hash, roles.status, roles.rank_score, roles.rank_rationale, roles.location,
		        roles.requirements, roles.salary_range, roles.skills, roles.created_at
		 FROM roles JOIN companies c ON c.id = roles.company_id
		 WHERE roles.unique_hash = $5
		 LIMIT 1`,
		r.CompanyID, r.Title, r.Description, r.PostingURL, r.UniqueHash,
		string(domain.RoleSourced), r.Location, r.Requirements, r.SalaryRange, r.Skills,
	).Scan(&out.ID, &out.CompanyID, &out.CompanyName, &out.Title, &out.Description, &out.PostingURL,
		&out.UniqueHash, &out.Status, &out.RankScore, &out.RankRationale,
		&out.Location, &out.Requirements, &out.SalaryRange, &out.Skills, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("createRole: %w", err)
	}
	return &out, nil
}

func (s *Store) GetRole(ctx context.Context, roleID string) (*domain.Role, error) {
	var r domain.Role
	err := s.pool.QueryRow(ctx,
		`SELECT roles.id, roles.company_id, c.name, roles.title, roles.description, roles.posting_url,
		        roles.unique_hash, roles.status, roles.rank_score, roles.rank_rationale, roles.location,
		        roles.requirements, roles.salary_range, roles.skills, roles.created_at
		 FROM roles JOIN companies c ON c.id = roles.company_id
		 WHERE roles.id = $1`, roleID,
	).Scan(&r.ID, &r.CompanyID, &r.CompanyName, &r.Title, &r.Description, &r.PostingURL,
		&r.UniqueHash, &r.Status, &r.RankScore, &r.RankRationale,
		&r.Location, &r.Requirements, &r.SalaryRange, &r.Skills, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getRole: %w", err)
	}
	return &r, nil
}

// UpdateRoleRank sets score/rationale produced by the ranking step and
// advances status sourced→ranked.
func (s *Store) UpdateRoleRank(ctx context.Context, roleID string, score float64, rationale string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("updateRoleRank begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var currentStr string
	if err := tx.QueryRow(ctx, `SELECT status FROM roles WHERE id = $1 FOR UPDATE`, roleID).Scan(&currentStr); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("updateRoleRank lock: %w", err)
	}
	current, err := domain.ParseRoleStatus(currentStr)
	if err != nil {
		return fmt.Errorf("updateRoleRank: %w", err)
	}
	if !domain.IsRoleTransitionAllowed(current, domain.RoleRanked) {
		return apperrors.ErrForbiddenTransition
	}

	if _, err := tx.Exec(ctx,
		`UPDATE roles SET status = $1, rank_score = $2, rank_rationale = $3 WHERE id = $4`,
		string(domain.RoleRanked), score, rationale, roleID,
	); err != nil {
		return fmt.Errorf("updateRoleRank update: %w", err)
	}
	return tx.Commit(ctx)
}

// TransitionRole enforces the Role state machine centrally.
func (s *Store) TransitionRole(ctx context.Context, roleID string, to domain.RoleStatus) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("transitionRole begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var currentStr string
	if err := tx.QueryRow(ctx, `SELECT status FROM roles WHERE id = $1 FOR UPDATE`, roleID).Scan(&currentStr); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("transitionRole lock: %w", err)
	}
	current, err := domain.ParseRoleStatus(currentStr)
	if err != nil {
		return fmt.Errorf("transitionRole: %w", err)
	}
	if !domain.IsRoleTransitionAllowed(current, to) {
		return apperrors.ErrForbiddenTransition
	}
	if _, err := tx.Exec(ctx, `UPDATE roles SET status = $1 WHERE id = $2`, string(to), roleID); err != nil {
		return fmt.Errorf("transitionRole update: %w", err)
	}
	return tx.Commit(ctx)
}

// ListRolesByStatus returns roles in a given status, oldest first — used by
// the ranking sweep and by /jobs/rank/{role_id}'s siblings listing.
func (s *Store) ListRolesByStatus(ctx context.Context, status domain.RoleStatus) ([]domain.Role, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT roles.id, roles.company_id, c.name, roles.title, roles.description, roles.posting_url,
		        roles.unique_hash, roles.status, roles.rank_score, roles.rank_rationale, roles.location,
		        roles.requirements, roles.salary_range, roles.skills, roles.created_at
		 FROM roles JOIN companies c ON c.id = roles.company_id
		 WHERE roles.status = $1 ORDER BY roles.created_at ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("listRolesByStatus: %w", err)
	}
	defer rows.Close()

	var out []domain.Role
	for rows.Next() {
		var r domain.Role
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.CompanyName, &r.Title, &r.Description, &r.PostingURL,
			&r.UniqueHash, &r.Status, &r.RankScore, &r.RankRationale,
			&r.Location, &r.Requirements, &r.SalaryRange, &r.Skills, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("listRolesByStatus scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ─── Applications ─────────────────────────────────────────────────────────

func scanApplication(row pgx.Row) (*domain.Application, error) {
	var a domain.Application
	var customAnswers []byte
	var approvalContext []byte
	err := row.Scan(&a.ID, &a.RoleID, &a.ProfileID, &a.Status, &a.QueueTaskID,
		&a.ResumeURL, &a.CoverLetterURL, &customAnswers, &approvalContext,
		&a.ScreenshotURL, &a.ErrorMessage, &a.Notes, &a.Attempts, &a.SubmittedAt,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(customAnswers) > 0 {
		if err := json.Unmarshal(customAnswers, &a.CustomAnswers); err != nil {
			return nil, fmt.Errorf("scan custom_answers: %w", err)
		}
	}
	if len(approvalContext) > 0 {
		var ac domain.ApprovalContext
		if err := json.Unmarshal(approvalContext, &ac); err != nil {
			return nil, fmt.Errorf("scan approval_context: %w", err)
		}
		a.ApprovalContext = &ac
	}
	return &a, nil
}

const applicationColumns = `id, role_id, profile_id, status, queue_task_id,
	resume_url, cover_letter_url, custom_answers, approval_context,
	screenshot_url, error_message, notes, attempts, submitted_at,
	created_at, updated_at`

// CreateOrReuseApplication enforces I2: if an active Application already
// exists for (profileID, roleID) it is returned unchanged; otherwise a new
// DRAFT Application is inserted. The dispatcher's trigger-intake handler
// calls this instead of a bare INSERT.
func (s *Store) CreateOrReuseApplication(ctx context.Context, profileID, roleID string) (*domain.Application, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("createOrReuseApplication begin: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := scanApplication(tx.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications
		 WHERE profile_id = $1 AND role_id = $2
		   AND status NOT IN ('SUBMITTED', 'ERROR', 'REJECTED', 'CLOSED')
		 FOR UPDATE`,
		profileID, roleID))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("createOrReuseApplication lookup: %w", err)
	}

	created, err := scanApplication(tx.QueryRow(ctx,
		`INSERT INTO applications (role_id, profile_id, status, custom_answers)
		 VALUES ($1, $2, $3, '{}')
		 RETURNING `+applicationColumns,
		roleID, profileID, string(domain.StatusDraft)))
	if err != nil {
		return nil, false, fmt.Errorf("createOrReuseApplication insert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("createOrReuseApplication commit: %w", err)
	}
	return created, true, nil
}

func (s *Store) GetApplication(ctx context.Context, appID string) (*domain.Application, error) {
	a, err := scanApplication(s.pool.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`, appID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getApplication: %w", err)
	}
	return a, nil
}

// ListApplicationsByProfile returns every Application for a profile, newest
// first.
func (s *Store) ListApplicationsByProfile(ctx context.Context, profileID string) ([]domain.Application, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+applicationColumns+` FROM applications
		 WHERE profile_id = $1 ORDER BY updated_at DESC`, profileID)
	if err != nil {
		return nil, fmt.Errorf("listApplicationsByProfile: %w", err)
	}
	defer rows.Close()

	var out []domain.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("listApplicationsByProfile scan: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// OldestOpenApprovalForProfile returns the oldest WAITING_APPROVAL
// Application belonging to profileID, used by the HITL free-text router
// (spec §4.5) to pick a target when an inbound SMS names no URL.
func (s *Store) OldestOpenApprovalForProfile(ctx context.Context, profileID string) (*domain.Application, error) {
	a, err := scanApplication(s.pool.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications
		 WHERE profile_id = $1 AND status = $2
		 ORDER BY updated_at ASC LIMIT 1`,
		profileID, string(domain.StatusWaitingApproval)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("oldestOpenApprovalForProfile: %w", err)
	}
	return a, nil
}

// mutation is applied to an Application row already locked by
// transitionLocked, inside the same transaction.
type mutation func(tx pgx.Tx, a *domain.Application) error

// transitionLocked is the single choke point through which every
// Application status change passes (spec §9 "state transitions centralized
// in the store layer"). It locks the row, validates the transition, lets
// the caller mutate auxiliary columns, and commits.
func (s *Store) transitionLocked(ctx context.Context, appID string, to domain.ApplicationStatus, mutate mutation) (*domain.Application, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("transition begin: %w", err)
	}
	defer tx.Rollback(ctx)

	a, err := scanApplication(tx.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1 FOR UPDATE`, appID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("transition lock: %w", err)
	}

	if !domain.IsApplicationTransitionAllowed(a.Status, to) {
		return nil, apperrors.ErrForbiddenTransition
	}
	a.Status = to

	if mutate != nil {
		if err := mutate(tx, a); err != nil {
			return nil, err
		}
	}

	customAnswers, err := json.Marshal(a.CustomAnswers)
	if err != nil {
		return nil, fmt.Errorf("marshal custom_answers: %w", err)
	}
	var approvalContext []byte
	if a.ApprovalContext != nil {
		approvalContext, err = json.Marshal(a.ApprovalContext)
		if err != nil {
			return nil, fmt.Errorf("marshal approval_context: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE applications SET
		   status = $1, queue_task_id = $2, resume_url = $3, cover_letter_url = $4,
		   custom_answers = $5, approval_context = $6, screenshot_url = $7,
		   error_message = $8, notes = $9, attempts = $10, submitted_at = $11,
		   updated_at = NOW()
		 WHERE id = $12`,
		string(a.Status), a.QueueTaskID, a.ResumeURL, a.CoverLetterURL,
		customAnswers, approvalContext, a.ScreenshotURL, a.ErrorMessage,
		a.Notes, a.Attempts, a.SubmittedAt, appID,
	); err != nil {
		return nil, fmt.Errorf("transition update: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("transition commit: %w", err)
	}
	return a, nil
}

// MarkReadyToSubmit moves DRAFT/ERROR → READY_TO_SUBMIT once résumé and
// cover letter generation succeed.
func (s *Store) MarkReadyToSubmit(ctx context.Context, appID, resumeURL, coverLetterURL string) (*domain.Application, error) {
	return s.transitionLocked(ctx, appID, domain.StatusReadyToSubmit, func(_ pgx.Tx, a *domain.Application) error {
		a.ResumeURL = &resumeURL
		a.CoverLetterURL = &coverLetterURL
		return nil
	})
}

// MarkSubmitting moves READY_TO_SUBMIT/WAITING_APPROVAL/NEEDS_USER_INFO →
// SUBMITTING and stamps the freshly-published queue_task_id (I3: never
// null during SUBMITTING).
func (s *Store) MarkSubmitting(ctx context.Context, appID, queueTaskID string) (*domain.Application, error) {
	return s.transitionLocked(ctx, appID, domain.StatusSubmitting, func(_ pgx.Tx, a *domain.Application) error {
		if queueTaskID == "" {
			return fmt.Errorf("markSubmitting: queue_task_id must not be empty (I3)")
		}
		a.QueueTaskID = &queueTaskID
		a.Attempts++
		return nil
	})
}

// nextApplicationStatus is the pure decision core of ApplyUpdateJobStatus:
// given the Application's current status and the incoming update_job_status
// payload's status, it decides the target status or reports why the update
// cannot apply. It touches no I/O, mirroring how
// tracker-service/internal/kanban/transitions.go's IsTransitionAllowed keeps
// the state-machine decision separate from the query that fetches the row.
func nextApplicationStatus(current domain.ApplicationStatus, jobStatus domain.JobStatus) (domain.ApplicationStatus, error) {
	if domain.IsTerminal(current) {
		return "", apperrors.ErrAlreadyTerminal
	}
	switch jobStatus {
	case domain.JobStatusApplied:
		return domain.StatusSubmitted, nil
	case domain.JobStatusFailed:
		return domain.StatusError, nil
	case domain.JobStatusNeedsUserInfo:
		return domain.StatusNeedsUserInfo, nil
	default:
		return "", &apperrors.ValidationError{Msg: fmt.Sprintf("update_job_status: unhandled status %q", jobStatus)}
	}
}

// ApplyUpdateJobStatus applies an update_job_status queue message,
// implementing the idempotency policy of spec §4.2: a redelivered message
// for an Application already in a terminal state is logged and dropped
// rather than erroring, and it never regresses a terminal Application.
func (s *Store) ApplyUpdateJobStatus(ctx context.Context, p domain.UpdateJobStatusPayload) (*domain.Application, error) {
	current, err := s.GetApplication(ctx, p.ApplicationID)
	if errors.Is(err, apperrors.ErrNotFound) {
		// Dead-letter: unknown application_id.
		return nil, &apperrors.ValidationError{Msg: fmt.Sprintf("update_job_status: unknown application_id %q", p.ApplicationID)}
	}
	if err != nil {
		return nil, err
	}

	target, err := nextApplicationStatus(current.Status, p.Status)
	if errors.Is(err, apperrors.ErrAlreadyTerminal) {
		slog.Warn("dropping update_job_status for already-terminal application",
			"application_id", p.ApplicationID, "status", current.Status)
		return current, apperrors.ErrAlreadyTerminal
	}
	if err != nil {
		return nil, err
	}

	return s.transitionLocked(ctx, p.ApplicationID, target, func(_ pgx.Tx, a *domain.Application) error {
		switch p.Status {
		case domain.JobStatusApplied:
			now := time.Now().UTC()
			a.SubmittedAt = &now
			a.QueueTaskID = nil
			if p.Notes != "" {
				a.Notes = &p.Notes
			}
		case domain.JobStatusFailed:
			if p.ErrorMessage != "" {
				a.ErrorMessage = &p.ErrorMessage
			}
			if p.ScreenshotURL != "" {
				a.ScreenshotURL = &p.ScreenshotURL
			}
		case domain.JobStatusNeedsUserInfo:
			if p.Notes != "" {
				a.Notes = &p.Notes
			}
		}
		return nil
	})
}

// ApplyApprovalRequest moves an Application to WAITING_APPROVAL and stores
// the resumable state blob (spec §4.3).
func (s *Store) ApplyApprovalRequest(ctx context.Context, p domain.ApprovalRequestPayload, stateBlob string) (*domain.Application, error) {
	return s.transitionLocked(ctx, p.ApplicationID, domain.StatusWaitingApproval, func(_ pgx.Tx, a *domain.Application) error {
		ac := domain.ApprovalContext{
			Question:      p.Question,
			StateBlob:     stateBlob,
			ScreenshotURL: p.ScreenshotURL,
			RequestedAt:   time.Now().UTC(),
		}
		if p.Context != nil {
			ac.PageURL = p.Context.PageURL
			ctxJSON, err := json.Marshal(p.Context)
			if err != nil {
				return fmt.Errorf("marshal approval context: %w", err)
			}
			ac.Context = ctxJSON
		}
		a.ApprovalContext = &ac
		return nil
	})
}

// ResumeFromApproval clears the stored approval context and moves
// WAITING_APPROVAL → SUBMITTING with a fresh queue_task_id, folding the
// human's answer into custom_answers.
func (s *Store) ResumeFromApproval(ctx context.Context, appID, queueTaskID, question, answer string) (*domain.Application, error) {
	return s.transitionLocked(ctx, appID, domain.StatusSubmitting, func(_ pgx.Tx, a *domain.Application) error {
		if queueTaskID == "" {
			return fmt.Errorf("resumeFromApproval: queue_task_id must not be empty (I3)")
		}
		a.QueueTaskID = &queueTaskID
		a.ApprovalContext = nil
		if a.CustomAnswers == nil {
			a.CustomAnswers = make(map[string]string)
		}
		a.CustomAnswers[question] = answer
		return nil
	})
}

// RetryFromError moves ERROR → READY_TO_SUBMIT, used by the maintenance
// loop when the retry budget is not yet exhausted (spec §4.4.4).
func (s *Store) RetryFromError(ctx context.Context, appID string) (*domain.Application, error) {
	return s.transitionLocked(ctx, appID, domain.StatusReadyToSubmit, nil)
}

// FailPermanently moves the Application to ERROR with reason recorded,
// without arming a retry itself — the maintenance sweep calls it for each
// abandoned SUBMITTING Application and then decides whether to follow up
// with RetryFromError.
func (s *Store) FailPermanently(ctx context.Context, appID, reason string) (*domain.Application, error) {
	return s.transitionLocked(ctx, appID, domain.StatusError, func(_ pgx.Tx, a *domain.Application) error {
		a.ErrorMessage = &reason
		return nil
	})
}

// FindStaleSubmitting returns Applications in SUBMITTING whose row has not
// been updated since cutoff — candidates for the maintenance loop's
// abandon/retry sweep, which checks the worker heartbeat itself (spec §4.4.5).
func (s *Store) FindStaleSubmitting(ctx context.Context, cutoff time.Time) ([]domain.Application, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+applicationColumns+` FROM applications
		 WHERE status = $1 AND updated_at < $2
		 ORDER BY updated_at ASC`,
		string(domain.StatusSubmitting), cutoff)
	if err != nil {
		return nil, fmt.Errorf("findStaleSubmitting: %w", err)
	}
	defer rows.Close()

	var out []domain.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("findStaleSubmitting scan: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
