// Package sentinel implements the CEX Sentinel: one staggered, ticker-driven
// task per monitored exchange that scrapes an announcement index, classifies
// new-listing announcements, deduplicates against the last-seen announcement,
// and emits CEXListingEvent onto a shared channel. Its per-source ticking
// task plus idle/fetching/parsing/dedup/emitting state machine is the same
// ticking-loop shape internal/collector's discovery task builds on.
package sentinel

import (
	"context"
	"time"

	"github.com/rawblock/memecoin-radar/internal/obs"
	"github.com/rawblock/memecoin-radar/pkg/models"
)

// DefaultExchanges is the fixed set of monitored exchanges.
var DefaultExchanges = []string{"kucoin", "bybit", "mexc", "gate", "lbank", "bitmart"}

type taskState int

const (
	stateIdle taskState = iota
	stateFetching
	stateParsing
	stateDedup
	stateEmitting
)

// perExchange tracks dedup identity and error counters, owned exclusively by
// that exchange's task goroutine.
type perExchange struct {
	lastIdentity string
	firstRun     bool
	state        taskState
	errorCount   int64
}

// Sentinel runs one task per exchange and publishes CEXListingEvent on
// Listings().
type Sentinel struct {
	sources   []ExchangeSource
	directory AddressDirectory
	refresh   time.Duration

	events chan models.CEXListingEvent

	tasks map[string]*perExchange
}

// New constructs a Sentinel. refresh is the full polling interval;
// individual exchange tasks are staggered within it.
func New(sources []ExchangeSource, directory AddressDirectory, refresh time.Duration) *Sentinel {
	tasks := make(map[string]*perExchange, len(sources))
	for _, s := range sources {
		tasks[s.Exchange()] = &perExchange{firstRun: true}
	}
	return &Sentinel{
		sources:   sources,
		directory: directory,
		refresh:   refresh,
		events:    make(chan models.CEXListingEvent, 64),
		tasks:     tasks,
	}
}

// Listings returns the channel CEXListingEvent values are published on.
func (s *Sentinel) Listings() <-chan models.CEXListingEvent {
	return s.events
}

// Run starts one staggered task per exchange, blocking until ctx is
// cancelled.
func (s *Sentinel) Run(ctx context.Context) {
	n := len(s.sources)
	if n == 0 {
		return
	}
	stagger := s.refresh / time.Duration(n)

	for i, src := range s.sources {
		src := src
		offset := time.Duration(i) * stagger
		go s.runTask(ctx, src, offset)
	}
	<-ctx.Done()
}

func (s *Sentinel) runTask(ctx context.Context, src ExchangeSource, startOffset time.Duration) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(startOffset):
	}

	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()

	s.cycle(ctx, src)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cycle(ctx, src)
		}
	}
}

// cycle runs one idle→fetching→parsing→dedup→emitting→idle pass for a
// single exchange. Any terminal failure returns the task to idle and bumps
// its error counter; it never stops permanently.
func (s *Sentinel) cycle(ctx context.Context, src ExchangeSource) {
	exchange := src.Exchange()
	task := s.tasks[exchange]
	logger := obs.Component("sentinel").With().Str("exchange", exchange).Logger()

	task.state = stateFetching
	announcements, err := src.FetchAnnouncements(ctx)
	if err != nil {
		task.errorCount++
		task.state = stateIdle
		logger.Warn().Err(err).Msg("announcement fetch failed")
		return
	}

	task.state = stateParsing
	listings := make([]Announcement, 0, len(announcements))
	for _, a := range announcements {
		if isListing(a.Title, a.Content) {
			listings = append(listings, a)
		}
	}

	task.state = stateDedup
	toEmit := s.dedup(task, listings)

	task.state = stateEmitting
	for _, a := range toEmit {
		s.emit(ctx, a)
	}
	task.state = stateIdle
}

// dedup applies the "process only the newest on first run, then everything
// newer than the last-seen identity" rule. announcements are assumed
// newest-first, matching the order a real index page renders them in.
func (s *Sentinel) dedup(task *perExchange, announcements []Announcement) []Announcement {
	if len(announcements) == 0 {
		return nil
	}

	if task.firstRun {
		task.firstRun = false
		task.lastIdentity = announcements[0].identity()
		return announcements[:1]
	}

	var fresh []Announcement
	for _, a := range announcements {
		if a.identity() == task.lastIdentity {
			break
		}
		fresh = append(fresh, a)
	}
	if len(fresh) > 0 {
		task.lastIdentity = fresh[0].identity()
	}
	return fresh
}

func (s *Sentinel) emit(ctx context.Context, a Announcement) {
	if len(a.Tokens) == 0 {
		return
	}
	for _, symbol := range a.Tokens {
		event := models.CEXListingEvent{
			Source:       "cex_listing",
			Exchange:     a.Exchange,
			Markets:      a.Markets,
			Urls:         []string{a.Url},
			Token:        models.ListingTokenRef{Symbol: symbol},
			Confirmation: "symbol_only",
			RadarScore:   75,
			Ts:           a.PublishedAt.UnixMilli(),
		}
		if addr, chain, found := s.directory.Lookup(ctx, symbol); found {
			event.Token.Address = addr
			event.Token.ChainId = chain
			event.Confirmation = "address"
		}

		select {
		case s.events <- event:
		default:
			<-s.events
			s.events <- event
		}
	}
}
