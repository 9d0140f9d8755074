// Package browser owns the single Chrome process and context used by the
// acquisition pipeline, including anti-automation launch configuration,
// fingerprint randomization and the login session state.
package browser

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/valpere/ListingScout/internal/identity"
	"github.com/valpere/ListingScout/internal/utils"
)

// Config defines browser session configuration.
type Config struct {
	Headless           bool
	ProxyURL           string
	BaseURL            string
	NavigationTimeout  time.Duration
	EvasionProbability float64
	Username           string
	Password           string
	CaptureScreenshots bool
	ScreenshotDir      string
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() *Config {
	return &Config{
		Headless:           true,
		NavigationTimeout:  30 * time.Second,
		EvasionProbability: 0.7,
		ScreenshotDir:      "logs/screenshots",
	}
}

// Session owns one browser process and context. Start and Stop are
// idempotent; the logged-in flag is explicit session state: false at
// construction, true only after a verified post-login check, reset on Stop.
type Session struct {
	cfg *Config
	log utils.Logger
	rng *rand.Rand
	id  string

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	browserCtx    context.Context
	started       bool
	loggedIn      bool
	fingerprint   Fingerprint
	scripts       []string
}

// NewSession creates an unstarted session. rng may be nil; tests inject a
// seeded source to pin fingerprint and evasion selection.
func NewSession(cfg *Config, log utils.Logger, rng *rand.Rand) *Session {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	id := uuid.NewString()
	return &Session{
		cfg: cfg,
		log: log.WithField("session", id),
		rng: rng,
		id:  id,
	}
}

// ID returns the session correlation identifier.
func (s *Session) ID() string { return s.id }

// Started reports whether the browser process is up.
func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// LoggedIn reports whether a login has been verified on this session.
func (s *Session) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

// Start launches the browser with a randomized fingerprint and
// anti-automation flags. Calling Start on a started session is a no-op
// returning true. Failure is reported as false, never an error or panic,
// after tearing down any partially created resources.
func (s *Session) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return true
	}

	fp := randomFingerprint(s.rng)

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.NoSandbox, // Required for Docker environments
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("lang", fp.Locale),
		chromedp.WindowSize(fp.ViewportWidth, fp.ViewportHeight),
	}
	if s.cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if s.cfg.ProxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(s.cfg.ProxyURL))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s.allocCancel = allocCancel
	s.browserCancel = browserCancel
	s.browserCtx = browserCtx
	s.fingerprint = fp
	s.scripts = s.pickEvasions(fp)

	tasks := []chromedp.Action{
		chromedp.EmulateViewport(int64(fp.ViewportWidth), int64(fp.ViewportHeight)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetTimezoneOverride(fp.Timezone).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetLocaleOverride().WithLocale(fp.Locale).Do(ctx)
		}),
	}
	tasks = append(tasks, injectScripts(s.scripts))

	if err := chromedp.Run(browserCtx, tasks...); err != nil {
		s.log.Errorf("browser start failed: %v", err)
		s.teardownLocked()
		return false
	}

	s.started = true
	s.log.WithFields(map[string]interface{}{
		"viewport": fp.ViewportWidth,
		"locale":   fp.Locale,
		"timezone": fp.Timezone,
		"evasions": len(s.scripts),
	}).Info("browser session started")
	return true
}

// Stop closes the browser. Safe to call multiple times and on any exit path;
// the logged-in flag is reset.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.log.Info("browser session stopped")
	}
	s.teardownLocked()
}

// teardownLocked releases partially or fully created resources. Callers hold
// the mutex.
func (s *Session) teardownLocked() {
	if s.browserCancel != nil {
		s.browserCancel()
		s.browserCancel = nil
	}
	if s.allocCancel != nil {
		s.allocCancel()
		s.allocCancel = nil
	}
	s.browserCtx = nil
	s.started = false
	s.loggedIn = false
}

// NewTab opens a fresh tab in the shared browser context with the session's
// evasion scripts installed. The caller must cancel the returned context.
func (s *Session) NewTab() (context.Context, context.CancelFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil, nil, utils.NewError(utils.ErrCodeBrowserFailed, "session not started")
	}

	tabCtx, cancel := chromedp.NewContext(s.browserCtx)
	if err := chromedp.Run(tabCtx, injectScripts(s.scripts)); err != nil {
		cancel()
		return nil, nil, utils.NewError(utils.ErrCodeBrowserFailed, "failed to open tab").WithCause(err)
	}
	return tabCtx, cancel, nil
}

// ApplyIdentity installs the identity's user agent and headers on a tab.
func (s *Session) ApplyIdentity(ctx context.Context, id identity.Identity) error {
	headers := network.Headers{}
	for key := range id.Headers {
		headers[key] = id.Headers.Get(key)
	}
	if id.Referrer != "" {
		headers["Referer"] = id.Referrer
	}

	s.mu.Lock()
	platform := s.fingerprint.Platform
	s.mu.Unlock()

	return chromedp.Run(ctx,
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
		chromedp.ActionFunc(func(ctx context.Context) error {
			p := emulation.SetUserAgentOverride(id.UserAgent).WithPlatform(platform)
			if al := id.Headers.Get("Accept-Language"); al != "" {
				p = p.WithAcceptLanguage(al)
			}
			return p.Do(ctx)
		}),
	)
}

// CaptureScreenshot saves a full-page screenshot for debugging failed
// navigations. Best effort; disabled unless configured.
func (s *Session) CaptureScreenshot(ctx context.Context, label string) {
	if !s.cfg.CaptureScreenshots {
		return
	}

	var buf []byte
	if err := chromedp.Run(ctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		s.log.Warnf("screenshot capture failed: %v", err)
		return
	}

	if err := os.MkdirAll(s.cfg.ScreenshotDir, 0o755); err != nil {
		s.log.Warnf("screenshot dir: %v", err)
		return
	}
	name := label + "_" + time.Now().Format("20060102_150405") + ".png"
	path := filepath.Join(s.cfg.ScreenshotDir, name)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		s.log.Warnf("screenshot write failed: %v", err)
		return
	}
	s.log.Infof("saved debug screenshot: %s", path)
}
