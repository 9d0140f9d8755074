package browser

import (
	"context"
	"io"
	"testing"

	"github.com/valpere/ListingScout/internal/utils"
)

func quietLogger() utils.Logger {
	return utils.NewLoggerWithOutput(utils.ErrorLevel, io.Discard)
}

func TestNewSessionDefaults(t *testing.T) {
	s := NewSession(nil, quietLogger(), nil)
	if s.cfg.NavigationTimeout <= 0 {
		t.Error("default navigation timeout not applied")
	}
	if s.ID() == "" {
		t.Error("session id not assigned")
	}
	if s.Started() {
		t.Error("session reports started before Start")
	}
	if s.LoggedIn() {
		t.Error("fresh session reports logged in")
	}
}

func TestNewTabRequiresStartedSession(t *testing.T) {
	s := NewSession(DefaultConfig(), quietLogger(), nil)
	if _, _, err := s.NewTab(); err == nil {
		t.Fatal("NewTab on an unstarted session must fail")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := NewSession(DefaultConfig(), quietLogger(), nil)
	s.Stop()
	s.Stop()
	if s.Started() || s.LoggedIn() {
		t.Error("stopped session reports active state")
	}
}

func TestLoginWithoutCredentials(t *testing.T) {
	cfg := DefaultConfig()
	s := NewSession(cfg, quietLogger(), nil)

	// Missing credentials short-circuit before any browser work, so no
	// Chrome process is needed here.
	if s.Login(context.Background()) {
		t.Fatal("Login without credentials must report false")
	}
	if s.LoggedIn() {
		t.Error("logged-in flag set without a verified login")
	}
}
