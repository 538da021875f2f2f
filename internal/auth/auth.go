package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

const (
	loginURL = "https://www.linkedin.com/login"

	// DefaultLoginTimeout bounds how long WaitForLogin polls for the
	// success signal while the operator completes credentials and any
	// second factor by hand.
	DefaultLoginTimeout = 5 * time.Minute

	pollInterval = 2 * time.Second
)

// ErrLoginTimeout is returned when no login success signal appears within
// the configured wait.
var ErrLoginTimeout = errors.New("timed out waiting for login")

// Flow drives the interactive login. It never submits credentials itself;
// a human completes the form in a headed browser window.
type Flow struct {
	logger *slog.Logger
}

func NewFlow(logger *slog.Logger) *Flow {
	return &Flow{logger: logger.With("component", "auth")}
}

// NavigateToLogin loads the login surface.
func (f *Flow) NavigateToLogin(page playwright.Page) error {
	_, err := page.Goto(loginURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(30000),
	})
	if err != nil {
		return fmt.Errorf("failed to load login page: %w", err)
	}
	return nil
}

// WaitForLogin polls the page until an authenticated signal appears: the
// feed URL after the post-login redirect, or the authenticated-only global
// nav. Fails with ErrLoginTimeout once the timeout elapses.
func (f *Flow) WaitForLogin(ctx context.Context, page playwright.Page, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultLoginTimeout
	}

	f.logger.Info("waiting for login", "timeout", timeout)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}

		if loggedIn(page) {
			f.logger.Info("login detected", "url", page.URL())
			return nil
		}
	}

	return ErrLoginTimeout
}

func loggedIn(page playwright.Page) bool {
	url := page.URL()
	if strings.Contains(url, "/feed") || strings.Contains(url, "/mynetwork") {
		return true
	}

	nav := page.Locator("#global-nav")
	if count, err := nav.Count(); err == nil && count > 0 {
		return true
	}
	return false
}
