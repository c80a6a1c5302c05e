package collector

import (
	"math"
	"testing"
	"time"

	"github.com/rawblock/memecoin-radar/pkg/models"
)

func TestOlsSlope_InsufficientPoints(t *testing.T) {
	if got := olsSlope(nil); got != 0 {
		t.Errorf("expected 0 slope with no points, got %v", got)
	}
	if got := olsSlope([]models.PricePoint{{Price: 1}}); got != 0 {
		t.Errorf("expected 0 slope with one point, got %v", got)
	}
}

func TestOlsSlope_RisingPrices(t *testing.T) {
	points := []models.PricePoint{{Price: 1}, {Price: 2}, {Price: 3}, {Price: 4}}
	got := olsSlope(points)
	if math.Abs(got-1.0) > 0.0001 {
		t.Errorf("expected slope 1.0 for a perfectly linear rise, got %v", got)
	}
}

func TestBaselineStore_EwmaSeedsOnFirstObservation(t *testing.T) {
	s := newBaselineStore()
	now := time.Now()
	b := s.update("tok", 1.0, 5000, now)
	if b.Vol15Ewma != 5000 {
		t.Errorf("expected ewma to seed at first observation value, got %v", b.Vol15Ewma)
	}
}

func TestBaselineStore_EwmaSmoothsSubsequentObservations(t *testing.T) {
	s := newBaselineStore()
	now := time.Now()
	s.update("tok", 1.0, 1000, now)
	b := s.update("tok", 1.0, 2000, now.Add(time.Second))
	expected := 0.9*1000 + 0.1*2000
	if math.Abs(b.Vol15Ewma-expected) > 0.0001 {
		t.Errorf("expected ewma %v, got %v", expected, b.Vol15Ewma)
	}
}

func TestBaselineStore_PrunesOldHistory(t *testing.T) {
	s := newBaselineStore()
	old := time.Now().Add(-time.Hour)
	s.update("tok", 1.0, 1000, old)
	b := s.update("tok", 2.0, 1500, time.Now())
	if len(b.PriceHistory) != 1 {
		t.Errorf("expected stale history entries to be pruned, got %d entries", len(b.PriceHistory))
	}
}

func TestBaselineStore_EvictStale(t *testing.T) {
	s := newBaselineStore()
	s.update("tok", 1.0, 1000, time.Now().Add(-2*time.Hour))
	s.evictStale(time.Now(), time.Hour)
	if _, ok := s.get("tok"); ok {
		t.Errorf("expected baseline to be evicted once stale")
	}
}
