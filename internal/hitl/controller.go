// Package hitl implements the Human-In-The-Loop Controller (spec §4.5,
// C5): parses inbound SMS bodies into one of three intents (URL, command,
// free text), validates the Twilio webhook signature before touching
// anything else, and routes each intent to the dispatcher.
package hitl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"jobmate/orchestrator/internal/broker"
	"jobmate/orchestrator/internal/dispatcher"
	"jobmate/orchestrator/internal/domain"
	"jobmate/orchestrator/internal/notify"
	"jobmate/orchestrator/internal/store"
)

const helpText = `Commands: reply with a job posting URL to apply, "status" for a summary, "report" for today's activity, "stop" to pause, "start" to resume. Any other text answers your most recent pending question.`

// Controller wires the store, broker, SMS gateway, and dispatcher intake
// path together to satisfy dispatcher.SMSWebhook.
type Controller struct {
	store      *store.Store
	broker     *broker.Broker
	gateway    *notify.SMSGateway
	dispatcher *dispatcher.Dispatcher
	publicURL  string // base URL Twilio was configured to POST to; signature validation input
}

// New constructs a Controller. publicURL is the externally-visible webhook
// URL (e.g. "https://api.example.com/webhooks/sms") used to reconstruct
// the signed request URL — Twilio signs the full URL it called, which may
// differ from what net/http sees behind a proxy.
func New(st *store.Store, b *broker.Broker, gateway *notify.SMSGateway, d *dispatcher.Dispatcher, publicURL string) *Controller {
	return &Controller{store: st, broker: b, gateway: gateway, dispatcher: d, publicURL: publicURL}
}

// HandleWebhook implements dispatcher.SMSWebhook.
func (c *Controller) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	from := r.PostForm.Get("From")

	signature := r.Header.Get("X-Twilio-Signature")
	if !c.gateway.ValidateSignature(c.publicURL, r.PostForm, signature) {
		slog.Warn("hitl: rejecting webhook with invalid signature", "from", redactPhone(from))
		w.WriteHeader(http.StatusForbidden)
		return
	}

	body := strings.TrimSpace(r.PostForm.Get("Body"))
	w.WriteHeader(http.StatusNoContent)

	ctx := context.Background()
	c.route(ctx, from, body)
}

// route classifies body per spec §4.5's ordered intents and dispatches to
// the matching handler.
func (c *Controller) route(ctx context.Context, from, body string) {
	profileID, err := c.store.GetProfileIDByPhone(ctx, from)
	if err != nil {
		slog.Warn("hitl: inbound SMS from unknown number", "from", redactPhone(from))
		return
	}

	switch {
	case isURL(body):
		c.handleURL(ctx, profileID, body)
	case isCommand(body):
		c.handleCommand(ctx, profileID, strings.ToLower(body))
	default:
		c.handleFreeText(ctx, profileID, body)
	}
}

func isURL(s string) bool {
	u, err := url.ParseRequestURI(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

var knownCommands = map[string]bool{
	"help": true, "status": true, "report": true, "stop": true, "start": true,
}

func isCommand(s string) bool {
	return knownCommands[strings.ToLower(strings.TrimSpace(s))]
}

// handleURL ingests a job posting URL as a new sourced Role (company name
// is a placeholder derived from the hostname until an extraction step
// enriches it — extraction itself is out of scope, spec §1) and replies
// with a confirmation.
func (c *Controller) handleURL(ctx context.Context, profileID, rawURL string) {
	hostname := hostnameOf(rawURL)
	company, err := c.store.GetOrCreateCompany(ctx, hostname)
	if err != nil {
		slog.Error("hitl: get or create company failed", "err", err)
		c.reply(ctx, profileID, "Sorry, that link could not be processed.")
		return
	}

	// I1 defines unique_hash as sha256(company+title), but every SMS-ingested
	// Role shares the placeholder title "(pending extraction)" until an
	// out-of-scope extraction step fills it in — hashing company+title here
	// would collide every pending role from the same company into one row.
	// Hash the posting URL instead until extraction assigns a real title, at
	// which point the hash should be recomputed per the spec formula.
	role, err := c.store.CreateRole(ctx, &domain.Role{
		CompanyID:  company.ID,
		Title:      "(pending extraction)",
		PostingURL: rawURL,
		UniqueHash: hashURL(rawURL),
		Skills:     []string{},
	})
	if err != nil {
		slog.Error("hitl: create role failed", "err", err)
		c.reply(ctx, profileID, "Sorry, that link could not be processed.")
		return
	}

	c.reply(ctx, profileID, fmt.Sprintf("Got it — queued %s for review (role %s).", rawURL, role.ID))
}

func hashURL(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

func hostnameOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}

func (c *Controller) handleCommand(ctx context.Context, profileID, cmd string) {
	switch cmd {
	case "help":
		c.reply(ctx, profileID, helpText)
	case "status":
		c.handleStatus(ctx, profileID)
	case "report":
		c.handleReport(ctx, profileID)
	case "stop":
		if err := c.store.SetProfilePaused(ctx, profileID, true); err != nil {
			slog.Error("hitl: pause failed", "err", err)
			return
		}
		c.reply(ctx, profileID, "Paused. New applications will not be started until you reply \"start\".")
	case "start":
		if err := c.store.SetProfilePaused(ctx, profileID, false); err != nil {
			slog.Error("hitl: resume failed", "err", err)
			return
		}
		c.reply(ctx, profileID, "Resumed. New applications will be started as roles are ready.")
	}
}

func (c *Controller) handleStatus(ctx context.Context, profileID string) {
	apps, err := c.store.ListApplicationsByProfile(ctx, profileID)
	if err != nil {
		slog.Error("hitl: list applications failed", "err", err)
		return
	}
	counts := make(map[domain.ApplicationStatus]int)
	for _, a := range apps {
		counts[a.Status]++
	}
	c.reply(ctx, profileID, fmt.Sprintf(
		"Status: %d submitted, %d in progress, %d waiting on you, %d errored.",
		counts[domain.StatusSubmitted]+counts[domain.StatusInterview]+counts[domain.StatusOffer],
		counts[domain.StatusSubmitting]+counts[domain.StatusReadyToSubmit],
		counts[domain.StatusWaitingApproval]+counts[domain.StatusNeedsUserInfo],
		counts[domain.StatusError],
	))
}

// handleReport summarizes today's activity (SUPPLEMENTED FEATURES: daily
// report command).
func (c *Controller) handleReport(ctx context.Context, profileID string) {
	apps, err := c.store.ListApplicationsByProfile(ctx, profileID)
	if err != nil {
		slog.Error("hitl: list applications failed", "err", err)
		return
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	submittedToday, errorsToday := 0, 0
	for _, a := range apps {
		if a.UpdatedAt.Before(today) {
			continue
		}
		switch a.Status {
		case domain.StatusSubmitted:
			submittedToday++
		case domain.StatusError:
			errorsToday++
		}
	}
	c.reply(ctx, profileID, fmt.Sprintf("Today: %d applications submitted, %d errors.", submittedToday, errorsToday))
}

// handleFreeText resolves the reply against the oldest open approval for
// this profile (spec §4.5 intent 3) and re-triggers the paused
// application. Unmatched inbound text (no open approval) still gets the
// help text (spec B3).
func (c *Controller) handleFreeText(ctx context.Context, profileID, body string) {
	app, err := c.store.OldestOpenApprovalForProfile(ctx, profileID)
	if err != nil {
		c.reply(ctx, profileID, helpText)
		return
	}

	if err := c.dispatcher.ResumeApplication(ctx, app.ID, body); err != nil {
		slog.Error("hitl: resume application failed", "application_id", app.ID, "err", err)
		c.reply(ctx, profileID, "Sorry, something went wrong resuming that application.")
		return
	}
	c.reply(ctx, profileID, "Thanks, resuming your application with that answer.")
}

// reply enqueues a send_notification task rather than calling the SMS
// gateway inline, matching the dispatcher's result-drain policy (spec
// §4.3).
func (c *Controller) reply(ctx context.Context, profileID, message string) {
	if _, err := c.broker.Publish(ctx, domain.TaskSendNotification, domain.SendNotificationPayload{
		ProfileID: profileID,
		Message:   message,
	}, 0); err != nil {
		slog.Error("hitl: enqueue reply failed", "profile_id", profileID, "err", err)
	}
}

func redactPhone(phone string) string {
	if len(phone) <= 4 {
		return "***"
	}
	return "***" + phone[len(phone)-4:]
}
