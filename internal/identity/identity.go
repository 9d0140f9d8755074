// Package identity supplies randomized but bounded request identities:
// user agent, headers and referrer combinations presented to the target site.
package identity

import (
	"math/rand"
	"net/http"
	"sync"
)

// Identity is the user-agent/header combination presented to the target site.
// Identities are ephemeral and never persisted.
type Identity struct {
	UserAgent string
	Headers   http.Header
	Referrer  string
}

// candidate pairs an identity template with its selection weight.
type candidate struct {
	userAgent string
	referrer  string
	weight    int
}

// Pool selects identities by weighted random draw from a fixed candidate
// list, with a small fixed probability of returning the configured default
// identity instead.
type Pool struct {
	candidates  []candidate
	totalWeight int
	def         Identity
	defProb     float64
	rng         *rand.Rand
	mu          sync.Mutex
}

// Config parameterizes the pool.
type Config struct {
	// DefaultUserAgent is returned with probability DefaultProbability.
	DefaultUserAgent string
	// DefaultProbability in [0,1]; 0 disables the default short-circuit.
	DefaultProbability float64
}

// NewPool creates a pool over the built-in candidate list. rng may be nil,
// in which case the shared source is used; tests inject a seeded one.
func NewPool(cfg Config, rng *rand.Rand) *Pool {
	p := &Pool{
		candidates: defaultCandidates(),
		def: Identity{
			UserAgent: cfg.DefaultUserAgent,
			Headers:   baseHeaders(),
		},
		defProb: cfg.DefaultProbability,
		rng:     rng,
	}
	if p.def.UserAgent == "" {
		p.def.UserAgent = p.candidates[0].userAgent
	}
	for _, c := range p.candidates {
		p.totalWeight += c.weight
	}
	return p
}

// Get returns the next identity. Weighted random selection; side effect is
// none beyond randomness consumption.
func (p *Pool) Get() Identity {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.defProb > 0 && p.float64() < p.defProb {
		return p.def
	}

	n := p.intn(p.totalWeight)
	for _, c := range p.candidates {
		if n < c.weight {
			return p.build(c)
		}
		n -= c.weight
	}
	return p.build(p.candidates[len(p.candidates)-1])
}

// build assembles a full identity from a candidate template, randomizing the
// negotiation headers so repeated draws of the same agent still vary.
func (p *Pool) build(c candidate) Identity {
	headers := baseHeaders()
	headers.Set("Accept", accepts[p.intn(len(accepts))])
	headers.Set("Accept-Language", acceptLanguages[p.intn(len(acceptLanguages))])
	return Identity{
		UserAgent: c.userAgent,
		Headers:   headers,
		Referrer:  c.referrer,
	}
}

func (p *Pool) float64() float64 {
	if p.rng != nil {
		return p.rng.Float64()
	}
	return rand.Float64()
}

func (p *Pool) intn(n int) int {
	if p.rng != nil {
		return p.rng.Intn(n)
	}
	return rand.Intn(n)
}

func baseHeaders() http.Header {
	headers := make(http.Header)
	headers.Set("Accept", accepts[0])
	headers.Set("Accept-Language", acceptLanguages[0])
	headers.Set("Accept-Encoding", "gzip, deflate, br")
	headers.Set("Upgrade-Insecure-Requests", "1")
	return headers
}

// defaultCandidates weights Chrome variants heaviest to match real-world
// browser share; a uniform distribution is itself a fingerprint.
func defaultCandidates() []candidate {
	return []candidate{
		{
			userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			referrer:  "https://www.google.com/",
			weight:    5,
		},
		{
			userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			referrer:  "https://www.google.com/",
			weight:    4,
		},
		{
			userAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			weight:    2,
		},
		{
			userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
			referrer:  "https://www.bing.com/",
			weight:    2,
		},
		{
			userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
			weight:    1,
		},
	}
}

var accepts = []string{
	"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8",
	"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
}

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.9",
	"en-US,en;q=0.9,ja;q=0.8",
	"ja-JP,ja;q=0.9,en;q=0.8",
}
