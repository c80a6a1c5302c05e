package models

import "time"

// PricePoint is one sample in a Baseline's rolling price history.
type PricePoint struct {
	Price float64
	Ts    time.Time
}

// VolumePoint is one sample in a Baseline's rolling 15-minute-volume history.
type VolumePoint struct {
	Vol15 float64
	Ts    time.Time
}

// Baseline tracks the rolling statistics the collector needs to detect
// momentum for a single (ChainId, Address) pair. It is owned exclusively by
// the DataCollector; no other package may mutate it.
type Baseline struct {
	Vol15Ewma    float64
	PriceSlope1m float64
	PriceSlope5m float64
	PriceHistory []PricePoint
	VolHistory   []VolumePoint
	LastUpdated  time.Time
}

// HistoryWindow bounds how far back price/volume samples are retained.
const HistoryWindow = 30 * time.Minute

// Prune drops history entries older than HistoryWindow relative to now.
func (b *Baseline) Prune(now time.Time) {
	cutoff := now.Add(-HistoryWindow)
	b.PriceHistory = prunePrices(b.PriceHistory, cutoff)
	b.VolHistory = pruneVolumes(b.VolHistory, cutoff)
}

func prunePrices(pts []PricePoint, cutoff time.Time) []PricePoint {
	i := 0
	for i < len(pts) && pts[i].Ts.Before(cutoff) {
		i++
	}
	if i == 0 {
		return pts
	}
	return append([]PricePoint(nil), pts[i:]...)
}

func pruneVolumes(pts []VolumePoint, cutoff time.Time) []VolumePoint {
	i := 0
	for i < len(pts) && pts[i].Ts.Before(cutoff) {
		i++
	}
	if i == 0 {
		return pts
	}
	return append([]VolumePoint(nil), pts[i:]...)
}
