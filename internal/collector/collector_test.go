package collector

import (
	"sync"
	"testing"
	"time"

	"github.com/rawblock/memecoin-radar/internal/cache"
	"github.com/rawblock/memecoin-radar/pkg/models"
)

func testCollector() *Collector {
	chains := []ChainConfig{{Chain: models.ChainSolana, Keywords: []string{"trending"}}}
	return New(chains, nil, cache.NewLocal(), 0, time.Minute)
}

// TestCollector_StatsRaceFree exercises bumpDropped, setLastTick and Health
// concurrently (run with -race) to confirm statsMu actually serializes access
// to the dropped/lastTick maps.
func TestCollector_StatsRaceFree(t *testing.T) {
	c := testCollector()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.bumpDropped("poll_error")
			c.setLastTick(models.ChainSolana, time.Now())
		}()
	}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Health()
		}()
	}
	wg.Wait()

	got := c.Health()
	if got.DroppedPairs["poll_error"] != 20 {
		t.Errorf("expected 20 recorded drops, got %d", got.DroppedPairs["poll_error"])
	}
}
