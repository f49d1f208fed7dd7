// Package browser defines the page-classification/action contract the
// automation loop drives (spec §4.4.1). The concrete driver
// (playwright.go) is grounded on
// dquang0504-openclaw-job-hunter's internal/browser.PlaywrightManager, but
// the loop in internal/worker only ever depends on the Session interface —
// what a real page-interaction backend does internally is out of scope
// (spec §1).
package browser

import "context"

// PageKind is the worker's classification of the page currently loaded.
type PageKind string

const (
	PageJobDescription PageKind = "job_description"
	PageApplicationForm PageKind = "application_form"
	PageLogin           PageKind = "login"
	PageMultiStep       PageKind = "multi_step"
	PageConfirmation    PageKind = "confirmation"
	PageUnknown         PageKind = "unknown"
)

// Field is one detected input on an application_form page.
type Field struct {
	Label      string // visible label text, used by the §6.3 mapping table
	Name       string // DOM name/id, opaque handle passed back to Fill
	Kind       string // text|email|tel|file|select|textarea|checkbox|radio
	Required   bool
	IsPassword bool // gates credential-hygiene screenshot suppression
}

// Session is one browser tab driving one job_application task end to end.
// Sessions are not reused across tasks (spec §4.4.3 "worker MUST NOT retain
// the page session after publishing").
type Session interface {
	// Navigate loads url and returns once the page has settled.
	Navigate(ctx context.Context, url string) error

	// Classify inspects the current page and returns its PageKind.
	Classify(ctx context.Context) (PageKind, error)

	// Fields enumerates the interactive fields on an application_form page.
	Fields(ctx context.Context) ([]Field, error)

	// Fill sets a text-like field's value by its Field.Name handle.
	Fill(ctx context.Context, fieldName, value string) error

	// UploadFile attaches content under fieldName (résumé/cover-letter
	// upload widgets).
	UploadFile(ctx context.Context, fieldName, filename string, content []byte) error

	// Select chooses an option on a select/radio-group field.
	Select(ctx context.Context, fieldName, value string) error

	// ClickApply activates the initial "apply" affordance on a
	// job_description page.
	ClickApply(ctx context.Context) error

	// Authenticate fills and submits a login form.
	Authenticate(ctx context.Context, username, password string) error

	// Advance clicks whatever next/submit control is present.
	Advance(ctx context.Context) error

	// ExtractConfirmation reads the confirmation reference text on a
	// confirmation page.
	ExtractConfirmation(ctx context.Context) (string, error)

	// Screenshot captures the current page. Callers are responsible for
	// suppressing this on password-entry pages (spec §4.4.6).
	Screenshot(ctx context.Context) ([]byte, error)

	// Serialize produces an opaque state blob sufficient to resume this
	// session's logical position without re-scraping (spec §4.3).
	Serialize(ctx context.Context) (string, error)

	// Close releases the underlying page/browser context.
	Close(ctx context.Context) error
}

// Factory opens a fresh Session, optionally resuming from a previously
// serialized state blob (resume_from, spec §4.3). An empty resumeFrom
// starts clean.
type Factory interface {
	Open(ctx context.Context, resumeFrom string) (Session, error)
}
