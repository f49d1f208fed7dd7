package notify

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"
	"testing"
)

func signForTest(authToken, requestURL string, form url.Values) string {
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
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(sb.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestValidateSignatureAcceptsCorrectSignature(t *testing.T) {
	g := NewSMSGateway("AC123", "secret-token", "+15551234567")
	form := url.Values{"From": {"+15559876543"}, "Body": {"120k"}}
	requestURL := "https://dispatcher.example.com/webhooks/sms"

	sig := signForTest("secret-token", requestURL, form)
	if !g.ValidateSignature(requestURL, form, sig) {
		t.Fatal("expected valid signature to be accepted")
	}
}

func TestValidateSignatureRejectsTamperedBody(t *testing.T) {
	g := NewSMSGateway("AC123", "secret-token", "+15551234567")
	requestURL := "https://dispatcher.example.com/webhooks/sms"
	form := url.Values{"From": {"+15559876543"}, "Body": {"120k"}}
	sig := signForTest("secret-token", requestURL, form)

	tampered := url.Values{"From": {"+15559876543"}, "Body": {"999k"}}
	if g.ValidateSignature(requestURL, tampered, sig) {
		t.Fatal("expected tampered body to fail signature validation")
	}
}

func TestValidateSignatureRejectsWrongToken(t *testing.T) {
	g := NewSMSGateway("AC123", "wrong-token", "+15551234567")
	requestURL := "https://dispatcher.example.com/webhooks/sms"
	form := url.Values{"From": {"+15559876543"}, "Body": {"120k"}}
	sig := signForTest("secret-token", requestURL, form)

	if g.ValidateSignature(requestURL, form, sig) {
		t.Fatal("expected signature signed with a different token to be rejected")
	}
}

func TestValidateSignatureRejectsEmptySignature(t *testing.T) {
	g := NewSMSGateway("AC123", "secret-token", "+15551234567")
	if g.ValidateSignature("https://x", url.Values{}, "") {
		t.Fatal("expected empty signature to be rejected")
	}
}

func TestRedactPhone(t *testing.T) {
	got := redactPhone("+15559876543")
	if got != "***6543" {
		t.Errorf("redactPhone = %q, want ***6543", got)
	}
	if redactPhone("12") != "***" {
		t.Errorf("redactPhone of short input should fully mask")
	}
}
