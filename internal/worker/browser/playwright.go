package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightFactory launches one Chromium instance per worker process and
// hands out a fresh browser context (and therefore a fresh Session) per
// task, mirroring
// dquang0504-openclaw-job-hunter/internal/browser.PlaywrightManager's
// pw/browser split.
type PlaywrightFactory struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

// NewPlaywrightFactory starts the Playwright driver and launches a headless
// Chromium browser shared by every task this process handles.
func NewPlaywrightFactory() (*PlaywrightFactory, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("playwright.Run: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("chromium launch: %w", err)
	}
	return &PlaywrightFactory{pw: pw, browser: browser}, nil
}

// Close stops the browser and the Playwright driver process.
func (f *PlaywrightFactory) Close() error {
	if err := f.browser.Close(); err != nil {
		return err
	}
	return f.pw.Stop()
}

// Open starts a fresh, isolated browser context and page for one task.
func (f *PlaywrightFactory) Open(ctx context.Context, resumeFrom string) (Session, error) {
	bctx, err := f.browser.NewContext()
	if err != nil {
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	session := &playwrightSession{ctx: bctx, page: page}
	if resumeFrom != "" {
		if err := session.Navigate(ctx, resumeFrom); err != nil {
			session.Close(ctx)
			return nil, fmt.Errorf("resume navigate: %w", err)
		}
	}
	return session, nil
}

// playwrightSession implements Session over one playwright.Page.
type playwrightSession struct {
	ctx  playwright.BrowserContext
	page playwright.Page
}

func (s *playwrightSession) Navigate(ctx context.Context, url string) error {
	_, err := s.page.Goto(url)
	return err
}

// Classify uses simple structural heuristics (form field density, URL and
// title keywords) rather than a model call — the AI-backed classifier is
// out of scope (spec §1); this is the deterministic fallback path a real
// implementation would call before escalating to an LLM.
func (s *playwrightSession) Classify(ctx context.Context) (PageKind, error) {
	title, err := s.page.Title()
	if err != nil {
		return PageUnknown, fmt.Errorf("classify title: %w", err)
	}
	url := s.page.URL()
	lowerTitle := strings.ToLower(title)
	lowerURL := strings.ToLower(url)

	passwordFields, err := s.page.Locator("input[type=password]").Count()
	if err != nil {
		return PageUnknown, fmt.Errorf("classify password fields: %w", err)
	}
	if passwordFields > 0 {
		return PageLogin, nil
	}

	for _, kw := range []string{"thank you", "confirmation", "application received", "submitted"} {
		if strings.Contains(lowerTitle, kw) || strings.Contains(lowerURL, kw) {
			return PageConfirmation, nil
		}
	}

	formFields, err := s.page.Locator("form input, form textarea, form select").Count()
	if err != nil {
		return PageUnknown, fmt.Errorf("classify form fields: %w", err)
	}
	if formFields >= 3 {
		return PageApplicationForm, nil
	}

	applyButtons, err := s.page.Locator("text=/apply now/i").Count()
	if err != nil {
		return PageUnknown, fmt.Errorf("classify apply buttons: %w", err)
	}
	if applyButtons > 0 {
		return PageJobDescription, nil
	}

	return PageUnknown, nil
}

func (s *playwrightSession) Fields(ctx context.Context) ([]Field, error) {
	locator := s.page.Locator("form input, form textarea, form select")
	count, err := locator.Count()
	if err != nil {
		return nil, fmt.Errorf("fields count: %w", err)
	}

	fields := make([]Field, 0, count)
	for i := 0; i < count; i++ {
		el := locator.Nth(i)
		name, _ := el.GetAttribute("name")
		typ, _ := el.GetAttribute("type")
		label, _ := el.GetAttribute("aria-label")
		if label == "" {
			label, _ = el.GetAttribute("placeholder")
		}
		required, _ := el.GetAttribute("required")

		fields = append(fields, Field{
			Label:      label,
			Name:       name,
			Kind:       typ,
			Required:   required != "",
			IsPassword: typ == "password",
		})
	}
	return fields, nil
}

func (s *playwrightSession) Fill(ctx context.Context, fieldName, value string) error {
	return s.page.Locator(fmt.Sprintf("[name=%q]", fieldName)).Fill(value)
}

func (s *playwrightSession) UploadFile(ctx context.Context, fieldName, filename string, content []byte) error {
	return s.page.Locator(fmt.Sprintf("[name=%q]", fieldName)).SetInputFiles(playwright.InputFile{
		Name:     filename,
		MimeType: "application/octet-stream",
		Buffer:   content,
	})
}

func (s *playwrightSession) Select(ctx context.Context, fieldName, value string) error {
	_, err := s.page.Locator(fmt.Sprintf("[name=%q]", fieldName)).SelectOption(playwright.SelectOptionValues{
		Values: &[]string{value},
	})
	return err
}

func (s *playwrightSession) ClickApply(ctx context.Context) error {
	return s.page.Locator("text=/apply now/i").First().Click()
}

func (s *playwrightSession) Authenticate(ctx context.Context, username, password string) error {
	if err := s.page.Locator("input[type=email], input[name=username], input[name=email]").First().Fill(username); err != nil {
		return fmt.Errorf("fill username: %w", err)
	}
	if err := s.page.Locator("input[type=password]").First().Fill(password); err != nil {
		return fmt.Errorf("fill password: %w", err)
	}
	return s.page.Locator("button[type=submit]").First().Click()
}

func (s *playwrightSession) Advance(ctx context.Context) error {
	return s.page.Locator("button[type=submit], text=/next|continue|submit/i").First().Click()
}

func (s *playwrightSession) ExtractConfirmation(ctx context.Context) (string, error) {
	return s.page.Locator("body").InnerText()
}

func (s *playwrightSession) Screenshot(ctx context.Context) ([]byte, error) {
	return s.page.Screenshot()
}

func (s *playwrightSession) Serialize(ctx context.Context) (string, error) {
	return s.page.URL(), nil
}

func (s *playwrightSession) Close(ctx context.Context) error {
	return s.ctx.Close()
}
