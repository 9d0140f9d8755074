package identity

import (
	"math/rand"
	"testing"
)

func TestGetAlwaysReturnsUsableIdentity(t *testing.T) {
	pool := NewPool(Config{}, rand.New(rand.NewSource(1)))

	for i := 0; i < 100; i++ {
		id := pool.Get()
		if id.UserAgent == "" {
			t.Fatal("empty user agent")
		}
		if id.Headers.Get("Accept") == "" {
			t.Fatal("missing Accept header")
		}
		if id.Headers.Get("Accept-Language") == "" {
			t.Fatal("missing Accept-Language header")
		}
	}
}

func TestGetDefaultShortCircuit(t *testing.T) {
	const ua = "pinned-agent/1.0"
	pool := NewPool(Config{
		DefaultUserAgent:   ua,
		DefaultProbability: 1.0,
	}, rand.New(rand.NewSource(1)))

	for i := 0; i < 20; i++ {
		if got := pool.Get().UserAgent; got != ua {
			t.Fatalf("UserAgent = %q, want the pinned default", got)
		}
	}
}

func TestGetWeightedDistribution(t *testing.T) {
	pool := NewPool(Config{}, rand.New(rand.NewSource(42)))

	counts := make(map[string]int)
	for i := 0; i < 2000; i++ {
		counts[pool.Get().UserAgent]++
	}

	if len(counts) < 3 {
		t.Fatalf("only %d distinct agents drawn, rotation not working", len(counts))
	}

	// The heaviest candidate should dominate the lightest by a wide margin.
	var max, min int
	for _, n := range counts {
		if n > max {
			max = n
		}
		if min == 0 || n < min {
			min = n
		}
	}
	if max <= min*2 {
		t.Errorf("distribution looks uniform: max=%d min=%d", max, min)
	}
}

func TestGetZeroDefaultProbabilityNeverShortCircuits(t *testing.T) {
	const ua = "pinned-agent/1.0"
	pool := NewPool(Config{
		DefaultUserAgent:   ua,
		DefaultProbability: 0,
	}, rand.New(rand.NewSource(7)))

	for i := 0; i < 200; i++ {
		if pool.Get().UserAgent == ua {
			t.Fatal("default identity drawn despite zero probability")
		}
	}
}
