package collector

import (
	"sync"
	"time"

	"github.com/rawblock/memecoin-radar/pkg/models"
)

const volEwmaAlpha = 0.1

// baselineStore holds the rolling per-token Baseline state. Exclusively
// owned by its parent Collector.
type baselineStore struct {
	mu   sync.Mutex
	data map[string]*models.Baseline
}

func newBaselineStore() *baselineStore {
	return &baselineStore{data: make(map[string]*models.Baseline)}
}

// update folds a new (price, vol15) observation into the token's baseline,
// pruning history older than models.HistoryWindow and recomputing the 1m/5m
// OLS slopes plus the volume EWMA. Returns a copy of the updated baseline.
func (s *baselineStore) update(key string, price, vol15 float64, now time.Time) models.Baseline {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.data[key]
	if !ok {
		b = &models.Baseline{}
		s.data[key] = b
	}

	b.PriceHistory = append(b.PriceHistory, models.PricePoint{Price: price, Ts: now})
	b.VolHistory = append(b.VolHistory, models.VolumePoint{Vol15: vol15, Ts: now})
	b.Prune(now)

	b.PriceSlope1m = olsSlope(pricesSince(b.PriceHistory, now.Add(-time.Minute)))
	b.PriceSlope5m = olsSlope(pricesSince(b.PriceHistory, now.Add(-5*time.Minute)))

	if len(b.VolHistory) == 1 {
		b.Vol15Ewma = vol15
	} else {
		b.Vol15Ewma = (1-volEwmaAlpha)*b.Vol15Ewma + volEwmaAlpha*vol15
	}
	b.LastUpdated = now

	cp := *b
	cp.PriceHistory = append([]models.PricePoint(nil), b.PriceHistory...)
	cp.VolHistory = append([]models.VolumePoint(nil), b.VolHistory...)
	return cp
}

func (s *baselineStore) get(key string) (models.Baseline, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data[key]
	if !ok {
		return models.Baseline{}, false
	}
	return *b, true
}

// evictStale drops a token's baseline once it has not been updated in maxAge.
func (s *baselineStore) evictStale(now time.Time, maxAge time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, b := range s.data {
		if now.Sub(b.LastUpdated) > maxAge {
			delete(s.data, key)
		}
	}
}

func pricesSince(history []models.PricePoint, cutoff time.Time) []models.PricePoint {
	var out []models.PricePoint
	for _, p := range history {
		if !p.Ts.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

// olsSlope computes an ordinary-least-squares slope of price against sample
// index (not wall-clock time) over the given points.
// Fewer than 2 points yields a slope of 0.
func olsSlope(points []models.PricePoint) float64 {
	n := len(points)
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, p := range points {
		x := float64(i)
		y := p.Price
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	nf := float64(n)
	denom := nf*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (nf*sumXY - sumX*sumY) / denom
}
