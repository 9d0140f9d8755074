package browser

import (
	"context"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/valpere/ListingScout/internal/utils"
)

// loginRetryDelay is the fixed wait before the single login retry. Login has
// its own narrow retry-once policy, independent of the page-level
// exponential backoff.
const loginRetryDelay = 5 * time.Second

// Login signs in to the target site. It is non-fatal by design: missing
// credentials or a failed attempt return false and the pipeline continues
// unauthenticated. The logged-in flag is set only after a verified
// post-login check.
func (s *Session) Login(ctx context.Context) bool {
	if s.cfg.Username == "" || s.cfg.Password == "" {
		s.log.Warn("no login credentials configured, continuing unauthenticated")
		return false
	}

	if s.LoggedIn() {
		return true
	}

	if !s.Start(ctx) {
		return false
	}

	if err := s.attemptLogin(ctx); err != nil {
		s.log.Warnf("login attempt failed, retrying once in %s: %v", loginRetryDelay, err)
		select {
		case <-time.After(loginRetryDelay):
		case <-ctx.Done():
			return false
		}
		if err := s.attemptLogin(ctx); err != nil {
			s.log.Errorf("%v", utils.NewError(utils.ErrCodeAuthFailed, "login failed after retry").WithCause(err))
			return false
		}
	}

	s.mu.Lock()
	s.loggedIn = true
	s.mu.Unlock()
	s.log.Info("login verified")
	return true
}

// attemptLogin drives the two-step sign-in form and verifies the browser
// left the sign-in flow.
func (s *Session) attemptLogin(ctx context.Context) error {
	tab, cancel, err := s.NewTab()
	if err != nil {
		return err
	}
	defer cancel()

	navCtx, cancelNav := context.WithTimeout(tab, s.cfg.NavigationTimeout)
	defer cancelNav()

	var location string
	err = chromedp.Run(navCtx,
		chromedp.Navigate(s.cfg.BaseURL+"/signin/"),
		chromedp.WaitVisible("#userid", chromedp.ByID),
		chromedp.SendKeys("#userid", s.cfg.Username, chromedp.ByID),
		chromedp.Click("#signin-continue-btn", chromedp.ByID),
		chromedp.WaitVisible("#pass", chromedp.ByID),
		chromedp.SendKeys("#pass", s.cfg.Password, chromedp.ByID),
		chromedp.Click("#sgnBt", chromedp.ByID),
		chromedp.WaitReady("body"),
		chromedp.Location(&location),
	)
	if err != nil {
		return utils.NewError(utils.ErrCodeAuthFailed, "sign-in flow failed").WithCause(err)
	}

	// Still on a sign-in URL means the credentials were rejected or a
	// challenge was presented.
	if strings.Contains(location, "signin") {
		s.CaptureScreenshot(tab, "login_rejected")
		return utils.NewError(utils.ErrCodeAuthFailed, "sign-in not verified, still on "+location)
	}
	return nil
}
