package dispatcher

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"jobmate/orchestrator/internal/apperrors"
	"jobmate/orchestrator/internal/domain"
)

// SMSWebhook is implemented by internal/hitl.Controller. Kept as a narrow
// interface here so this package never imports internal/hitl directly.
type SMSWebhook interface {
	HandleWebhook(w http.ResponseWriter, r *http.Request)
}

// Handler exposes the HTTP surface of spec §6.1 plus the SUPPLEMENTED
// FEATURES detail endpoints, grounded on
// tracker-service/internal/kanban/handler.go's manual path-split dispatch.
type Handler struct {
	d       *Dispatcher
	webhook SMSWebhook // may be nil; /webhooks/sms then 404s
	limiter *ipRateLimiter
}

// NewHandler returns a configured Handler. webhook may be nil if the HITL
// controller is wired separately (e.g. mounted on its own mux).
func NewHandler(d *Dispatcher, webhook SMSWebhook) *Handler {
	return &Handler{d: d, webhook: webhook, limiter: newIPRateLimiter(5, time.Minute)}
}

// RegisterRoutes mounts every dispatcher route on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ingest/profile", h.requireAPIKey(h.handleIngestProfile))
	mux.HandleFunc("/jobs/apply/", h.requireAPIKey(h.handleJobsApply))
	mux.HandleFunc("/jobs/rank/", h.requireAPIKey(h.handleJobsRank))
	mux.HandleFunc("/applications", h.requireAPIKey(h.handleApplications))
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/health/queues", h.handleHealthQueues)
	mux.HandleFunc("/health/node-service", h.handleHealthNodeService)
	if h.webhook != nil {
		mux.HandleFunc("/webhooks/sms", h.webhook.HandleWebhook)
	}
}

// requireAPIKey enforces the X-API-Key precondition on every authenticated
// endpoint (spec §6.1).
func (h *Handler) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.d.Cfg.APIKey)) != 1 {
			jsonError(w, "forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// ─── /ingest/profile ────────────────────────────────────────────────────

func (h *Handler) handleIngestProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.limiter.Allow(clientIP(r)) {
		jsonError(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	var body struct {
		Headline    string            `json:"headline"`
		Summary     string            `json:"summary"`
		Preferences map[string]string `json:"preferences"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	profile, err := h.d.Store.CreateProfile(r.Context(), body.Headline, body.Summary)
	if err != nil {
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	for k, v := range body.Preferences {
		if err := h.d.Store.UpsertPreference(r.Context(), profile.ID, k, v); err != nil {
			jsonError(w, "database error", http.StatusInternalServerError)
			return
		}
	}

	jsonOK(w, map[string]string{"status": "ok", "profile_id": profile.ID})
}

// ─── /jobs/apply/{role_id} ──────────────────────────────────────────────

func (h *Handler) handleJobsApply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	roleID, ok := pathSuffix(r.URL.Path, "/jobs/apply/")
	if !ok {
		jsonError(w, "role_id is required", http.StatusBadRequest)
		return
	}

	var body struct {
		ProfileID string `json:"profile_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.ProfileID == "" {
		jsonError(w, "profile_id is required", http.StatusBadRequest)
		return
	}

	app, taskID, err := h.d.TriggerApplication(r.Context(), body.ProfileID, roleID)
	writeTriggerResult(w, app, taskID, err)
}

func writeTriggerResult(w http.ResponseWriter, app *domain.Application, taskID string, err error) {
	if err != nil {
		var valErr *apperrors.ValidationError
		if errors.As(err, &valErr) {
			jsonError(w, valErr.Msg, http.StatusBadRequest)
		} else {
			jsonError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	jsonOK(w, map[string]string{"status": "ok", "task_id": taskID, "application_id": app.ID})
}

// ─── /jobs/rank/{role_id} ───────────────────────────────────────────────

// handleJobsRank schedules re-ranking of a stored Role (SUPPLEMENTED
// FEATURES: the LLM backend itself is out of scope, spec §1): it runs
// Scorer.Rank in the background and stores the result through
// UpdateRoleRank, answering 501 when no Scorer is wired.
func (h *Handler) handleJobsRank(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	roleID, ok := pathSuffix(r.URL.Path, "/jobs/rank/")
	if !ok {
		jsonError(w, "role_id is required", http.StatusBadRequest)
		return
	}
	role, err := h.d.Store.GetRole(r.Context(), roleID)
	if err != nil {
		jsonError(w, "role not found", http.StatusNotFound)
		return
	}
	if h.d.Scorer == nil {
		jsonError(w, "no scoring backend configured", http.StatusNotImplemented)
		return
	}

	var body struct {
		ProfileID string `json:"profile_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	var profileSummary string
	if body.ProfileID != "" {
		if profile, err := h.d.Store.GetProfile(r.Context(), body.ProfileID); err == nil {
			profileSummary = profile.Summary
		}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		result, err := h.d.Scorer.Rank(ctx, profileSummary, role.Description)
		if err != nil {
			return
		}
		_ = h.d.Store.UpdateRoleRank(ctx, roleID, result.Score, result.Rationale)
	}()
	jsonOK(w, map[string]string{"status": "ranking_scheduled", "role_id": roleID})
}

// ─── GET /applications?status= ─────────────────────────────────────────

func (h *Handler) handleApplications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	profileID := r.URL.Query().Get("profile_id")
	if profileID == "" {
		jsonError(w, "profile_id is required", http.StatusBadRequest)
		return
	}
	var filter domain.ApplicationStatus
	if s := r.URL.Query().Get("status"); s != "" {
		parsed, err := domain.ParseApplicationStatus(s)
		if err != nil {
			jsonError(w, fmt.Sprintf("invalid status %q", s), http.StatusBadRequest)
			return
		}
		filter = parsed
	}

	apps, err := h.d.Store.ListApplicationsByProfile(r.Context(), profileID)
	if err != nil {
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}

	out := make([]applicationSummary, 0, len(apps))
	for _, a := range apps {
		if filter != "" && a.Status != filter {
			continue
		}
		role, err := h.d.Store.GetRole(r.Context(), a.RoleID)
		if err != nil {
			continue
		}
		out = append(out, applicationSummary{
			ID:          a.ID,
			RoleTitle:   role.Title,
			CompanyName: role.CompanyName,
			Status:      string(a.Status),
			CreatedAt:   a.CreatedAt,
			SubmittedAt: a.SubmittedAt,
		})
	}
	jsonOK(w, out)
}

type applicationSummary struct {
	ID          string     `json:"id"`
	RoleTitle   string     `json:"role_title"`
	CompanyName string     `json:"company_name"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

// ─── /health ────────────────────────────────────────────────────────────

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	services := map[string]string{"broker": "ok", "store": "ok", "blob": "ok", "sms": "ok"}
	status := http.StatusOK
	overall := "ok"

	if err := h.d.Broker.Ping(r.Context()); err != nil {
		services["broker"] = "down"
		status = http.StatusPartialContent
		overall = "degraded"
	}
	if _, err := h.d.Store.GetProfile(r.Context(), "00000000-0000-0000-0000-000000000000"); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		services["store"] = "down"
		status = http.StatusServiceUnavailable
		overall = "critical"
	}
	if h.d.Blob == nil {
		services["blob"] = "unconfigured"
	}
	if h.d.SMS == nil {
		services["sms"] = "unconfigured"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"status": overall, "services": services})
}

// handleHealthQueues reports per-queue depth with the degraded/unhealthy
// thresholds from SUPPLEMENTED FEATURES.
func (h *Handler) handleHealthQueues(w http.ResponseWriter, r *http.Request) {
	stats, err := h.d.Broker.QueueStats(r.Context())
	if err != nil {
		jsonError(w, "broker unavailable", http.StatusServiceUnavailable)
		return
	}
	pending := stats[domain.TaskJobApplication]
	status := "ok"
	switch {
	case pending > 50:
		status = "unhealthy"
	case pending > 10:
		status = "degraded"
	}
	jsonOK(w, map[string]any{"status": status, "queues": stats})
}

// handleHealthNodeService reports worker liveness via the automation
// heartbeat channel.
func (h *Handler) handleHealthNodeService(w http.ResponseWriter, r *http.Request) {
	hb, err := h.d.Broker.LastHeartbeat(r.Context(), "automation")
	if err != nil {
		jsonError(w, "broker unavailable", http.StatusServiceUnavailable)
		return
	}
	if hb == nil {
		jsonOK(w, map[string]string{"status": "unknown"})
		return
	}
	status := "ok"
	if time.Since(hb.Timestamp) > heartbeatFreshness {
		status = "stale"
	}
	jsonOK(w, map[string]any{"status": status, "last_heartbeat": hb})
}

// ─── helpers ────────────────────────────────────────────────────────────

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func pathSuffix(path, prefix string) (string, bool) {
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	suffix := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if suffix == "" {
		return "", false
	}
	return suffix, true
}

func clientIP(r *http.Request) string {
	if idx := strings.LastIndex(r.RemoteAddr, ":"); idx != -1 {
		return r.RemoteAddr[:idx]
	}
	return r.RemoteAddr
}

// ipRateLimiter is a fixed-window per-IP limiter (spec §6.1 "rate-limited
// to 5/min per IP" on /ingest/profile).
type ipRateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	seen   map[string]*windowState
}

type windowState struct {
	start time.Time
	count int
}

func newIPRateLimiter(limit int, window time.Duration) *ipRateLimiter {
	return &ipRateLimiter{limit: limit, window: window, seen: make(map[string]*windowState)}
}

func (l *ipRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.seen[ip]
	if !ok || now.Sub(w.start) > l.window {
		l.seen[ip] = &windowState{start: now, count: 1}
		return true
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}
