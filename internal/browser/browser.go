package browser

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Browser owns one playwright instance, browser context and page for the
// duration of a single scrape run.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Stealth        bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	// StorageState is a previously saved session snapshot to restore into
	// the new context. Nil starts an unauthenticated context.
	StorageState json.RawMessage
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Stealth:        true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "en-US,en;q=0.9",
		TimezoneID:     "America/New_York",
		Locale:         "en-US",
	}
}

const stealthInitScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
window.chrome = window.chrome || { runtime: {} };
`

// New launches a browser, creates a context (restoring session state when
// provided) and opens the page used for the whole run.
func New(opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	args := []string{
		"--disable-dev-shm-usage",
		"--no-sandbox",
		"--disable-setuid-sandbox",
	}
	if opts.Stealth {
		args = append(args,
			"--disable-blink-features=AutomationControlled",
			"--window-size=1920,1080",
		)
	}

	br, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     args,
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            playwright.String(opts.Locale),
		TimezoneId:        playwright.String(opts.TimezoneID),
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: map[string]string{
			"Accept-Language": opts.AcceptLanguage,
		},
	}
	if opts.Stealth {
		contextOpts.UserAgent = playwright.String(opts.UserAgent)
	}
	if len(opts.StorageState) > 0 {
		var state playwright.OptionalStorageState
		if err := json.Unmarshal(opts.StorageState, &state); err != nil {
			br.Close()
			pw.Stop()
			return nil, fmt.Errorf("failed to decode storage state: %w", err)
		}
		contextOpts.StorageState = &state
	}

	context, err := br.NewContext(contextOpts)
	if err != nil {
		br.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	if opts.Stealth {
		if err := context.AddInitScript(playwright.Script{
			Content: playwright.String(stealthInitScript),
		}); err != nil {
			context.Close()
			br.Close()
			pw.Stop()
			return nil, fmt.Errorf("failed to add stealth script: %w", err)
		}
	}

	page, err := context.NewPage()
	if err != nil {
		context.Close()
		br.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(float64(opts.Timeout.Milliseconds()))

	return &Browser{
		pw:      pw,
		browser: br,
		context: context,
		page:    page,
		logger:  slog.Default().With("component", "browser"),
	}, nil
}

func (b *Browser) Page() playwright.Page {
	return b.page
}

func (b *Browser) Context() playwright.BrowserContext {
	return b.context
}

// StorageState serializes the context's current cookies and origin storage
// for handing off to the session store.
func (b *Browser) StorageState() (json.RawMessage, error) {
	state, err := b.context.StorageState()
	if err != nil {
		return nil, fmt.Errorf("failed to read storage state: %w", err)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal storage state: %w", err)
	}

	return data, nil
}

// Close tears down page, context, browser and the playwright driver. Safe to
// call on a partially failed run; every handle is closed independently.
func (b *Browser) Close() error {
	var errs []error

	if b.page != nil {
		if err := b.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close page: %w", err))
		}
	}
	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}
	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}

// NavigateWithRetry loads a URL, backing off linearly between attempts.
func (b *Browser) NavigateWithRetry(page playwright.Page, url string, maxRetries int) error {
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			b.logger.Info("retrying navigation", "attempt", i+1, "url", url)
			time.Sleep(time.Duration(i+1) * time.Second)
		}

		_, err := page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(30000),
		})
		if err == nil {
			return nil
		}

		lastErr = err
		b.logger.Error("navigation failed", "error", err, "attempt", i+1)
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

// IsLoginWall reports whether the page has been redirected to the site's
// login or authwall surface.
func IsLoginWall(page playwright.Page) bool {
	url := page.URL()
	return strings.Contains(url, "/authwall") ||
		strings.Contains(url, "/login") ||
		strings.Contains(url, "/checkpoint/")
}
