package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Fingerprint is the browser surface presented to the target site: viewport,
// locale, timezone, platform and WebGL identity. A fresh one is drawn per
// session so repeated runs do not share a uniform signature.
type Fingerprint struct {
	ViewportWidth  int
	ViewportHeight int
	Locale         string
	Timezone       string
	Platform       string
	Languages      []string
	WebGLVendor    string
	WebGLRenderer  string
}

// Evasion is one independently toggleable fingerprint-spoofing technique.
// Probability gates whether the technique is active for a given session once
// the session-level evasion gate has passed.
type Evasion struct {
	Name        string
	Probability float64
	Script      func(fp Fingerprint) string
}

// DefaultEvasions returns the built-in technique set.
func DefaultEvasions() []Evasion {
	return []Evasion{
		{
			Name:        "navigator-webdriver",
			Probability: 0.95,
			Script: func(Fingerprint) string {
				return `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`
			},
		},
		{
			Name:        "navigator-plugins",
			Probability: 0.85,
			Script: func(Fingerprint) string {
				return `Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});`
			},
		},
		{
			Name:        "navigator-languages",
			Probability: 0.85,
			Script: func(fp Fingerprint) string {
				langs, _ := json.Marshal(fp.Languages)
				return fmt.Sprintf(`Object.defineProperty(navigator, 'languages', {get: () => %s});`, langs)
			},
		},
		{
			Name:        "navigator-platform",
			Probability: 0.8,
			Script: func(fp Fingerprint) string {
				return fmt.Sprintf(`Object.defineProperty(navigator, 'platform', {get: () => %q});`, fp.Platform)
			},
		},
		{
			Name:        "webgl-vendor",
			Probability: 0.75,
			Script: func(fp Fingerprint) string {
				return fmt.Sprintf(`
const getParameter = WebGLRenderingContext.prototype.getParameter;
WebGLRenderingContext.prototype.getParameter = function(parameter) {
  if (parameter === 37445) { return %q; }
  if (parameter === 37446) { return %q; }
  return getParameter.call(this, parameter);
};`, fp.WebGLVendor, fp.WebGLRenderer)
			},
		},
	}
}

// pickEvasions rolls the session-level activation gate, then a per-technique
// coin flip, and returns the scripts to install.
func (s *Session) pickEvasions(fp Fingerprint) []string {
	return SelectEvasions(DefaultEvasions(), fp, s.cfg.EvasionProbability, s.rng)
}

// SelectEvasions applies the activation gate and per-technique probabilities.
// Exposed for tests; rng may be nil for the shared source.
func SelectEvasions(techniques []Evasion, fp Fingerprint, activation float64, rng *rand.Rand) []string {
	roll := func() float64 {
		if rng != nil {
			return rng.Float64()
		}
		return rand.Float64()
	}

	if roll() >= activation {
		return nil
	}

	var scripts []string
	for _, t := range techniques {
		if roll() < t.Probability {
			scripts = append(scripts, t.Script(fp))
		}
	}
	return scripts
}

// injectScripts registers the scripts to run before every document in the
// target, so overrides are in place before any site script executes.
func injectScripts(scripts []string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for _, script := range scripts {
			if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// locale/timezone/platform combinations kept coherent: a Tokyo timezone with
// an en-US locale is itself a detection signal.
type localeProfile struct {
	locale    string
	timezone  string
	platform  string
	languages []string
}

var localeProfiles = []localeProfile{
	{"en-US", "America/New_York", "Win32", []string{"en-US", "en"}},
	{"en-US", "America/Los_Angeles", "MacIntel", []string{"en-US", "en"}},
	{"en-GB", "Europe/London", "Win32", []string{"en-GB", "en"}},
	{"ja-JP", "Asia/Tokyo", "MacIntel", []string{"ja-JP", "ja", "en"}},
	{"de-DE", "Europe/Berlin", "Linux x86_64", []string{"de-DE", "de", "en"}},
}

type viewport struct {
	width  int
	height int
}

var viewports = []viewport{
	{1920, 1080}, {1366, 768}, {1536, 864}, {1440, 900}, {1280, 800},
}

type webglProfile struct {
	vendor   string
	renderer string
}

var webglProfiles = []webglProfile{
	{"Google Inc. (Intel)", "ANGLE (Intel, Intel(R) UHD Graphics 620 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
	{"Google Inc. (NVIDIA)", "ANGLE (NVIDIA, NVIDIA GeForce GTX 1660 Ti Direct3D11 vs_5_0 ps_5_0, D3D11)"},
	{"ATI Technologies Inc.", "AMD Radeon RX 580 Series"},
}

// randomFingerprint draws a coherent fingerprint from the preset pools.
func randomFingerprint(rng *rand.Rand) Fingerprint {
	intn := func(n int) int {
		if rng != nil {
			return rng.Intn(n)
		}
		return rand.Intn(n)
	}

	vp := viewports[intn(len(viewports))]
	lp := localeProfiles[intn(len(localeProfiles))]
	gl := webglProfiles[intn(len(webglProfiles))]

	return Fingerprint{
		ViewportWidth:  vp.width,
		ViewportHeight: vp.height,
		Locale:         lp.locale,
		Timezone:       lp.timezone,
		Platform:       lp.platform,
		Languages:      lp.languages,
		WebGLVendor:    gl.vendor,
		WebGLRenderer:  gl.renderer,
	}
}
