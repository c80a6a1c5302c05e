package sentinel

import (
	"context"
	"testing"
	"time"

	"github.com/rawblock/memecoin-radar/pkg/models"
)

type fakeSource struct {
	exchange string
	batches  [][]Announcement
	calls    int
}

func (f *fakeSource) Exchange() string { return f.exchange }

func (f *fakeSource) FetchAnnouncements(ctx context.Context) ([]Announcement, error) {
	if f.calls >= len(f.batches) {
		return f.batches[len(f.batches)-1], nil
	}
	b := f.batches[f.calls]
	f.calls++
	return b, nil
}

func TestDedup_FirstRunOnlyProcessesNewest(t *testing.T) {
	s := New(nil, NullDirectory{}, time.Minute)
	task := &perExchange{firstRun: true}
	announcements := []Announcement{
		{Title: "A", PublishedAt: time.Unix(300, 0)},
		{Title: "B", PublishedAt: time.Unix(200, 0)},
		{Title: "C", PublishedAt: time.Unix(100, 0)},
	}

	got := s.dedup(task, announcements)
	if len(got) != 1 || got[0].Title != "A" {
		t.Errorf("expected only the newest announcement on first run, got %v", got)
	}
	if task.firstRun {
		t.Error("expected firstRun to be cleared")
	}
}

func TestDedup_SubsequentRunStopsAtLastIdentity(t *testing.T) {
	s := New(nil, NullDirectory{}, time.Minute)
	task := &perExchange{firstRun: false, lastIdentity: Announcement{Title: "B", PublishedAt: time.Unix(200, 0)}.identity()}
	announcements := []Announcement{
		{Title: "D", PublishedAt: time.Unix(400, 0)},
		{Title: "C", PublishedAt: time.Unix(300, 0)},
		{Title: "B", PublishedAt: time.Unix(200, 0)},
		{Title: "A", PublishedAt: time.Unix(100, 0)},
	}

	got := s.dedup(task, announcements)
	if len(got) != 2 || got[0].Title != "D" || got[1].Title != "C" {
		t.Errorf("expected [D, C], got %v", got)
	}
}

func TestDedup_NothingNewerThanLastIdentity(t *testing.T) {
	s := New(nil, NullDirectory{}, time.Minute)
	task := &perExchange{firstRun: false, lastIdentity: Announcement{Title: "A", PublishedAt: time.Unix(100, 0)}.identity()}
	announcements := []Announcement{
		{Title: "A", PublishedAt: time.Unix(100, 0)},
	}

	got := s.dedup(task, announcements)
	if len(got) != 0 {
		t.Errorf("expected no fresh announcements, got %v", got)
	}
}

func TestEmit_NoTokensSkipsEvent(t *testing.T) {
	s := New(nil, NullDirectory{}, time.Minute)
	s.emit(context.Background(), Announcement{Exchange: "kucoin", Title: "generic update"})
	select {
	case ev := <-s.Listings():
		t.Errorf("expected no event for a token-less announcement, got %v", ev)
	default:
	}
}

type fakeDirectory struct {
	address string
	chain   models.ChainId
	found   bool
}

func (f fakeDirectory) Lookup(ctx context.Context, symbol string) (string, models.ChainId, bool) {
	return f.address, f.chain, f.found
}

func TestEmit_AddressConfirmationWhenDirectoryResolves(t *testing.T) {
	dir := fakeDirectory{address: "0xabc", chain: models.ChainEthereum, found: true}
	s := New(nil, dir, time.Minute)
	s.emit(context.Background(), Announcement{
		Exchange: "kucoin",
		Title:    "PEPE listing",
		Tokens:   []string{"PEPE"},
		Markets:  []string{"PEPE/USDT"},
		Url:      "https://kucoin.com/news/1",
	})

	select {
	case ev := <-s.Listings():
		if ev.Confirmation != "address" || ev.Token.Address != "0xabc" {
			t.Errorf("expected address confirmation, got %+v", ev)
		}
		if ev.RadarScore != 75 {
			t.Errorf("expected base radarScore of 75, got %v", ev.RadarScore)
		}
	default:
		t.Error("expected an event to be emitted")
	}
}

func TestCycle_FetchListingsFilterThenEmit(t *testing.T) {
	src := &fakeSource{
		exchange: "gate",
		batches: [][]Announcement{
			{
				{Title: "PEPE (PEPE) listing now live", PublishedAt: time.Unix(100, 0), Tokens: []string{"PEPE"}},
				{Title: "Scheduled maintenance window", PublishedAt: time.Unix(90, 0)},
			},
		},
	}
	s := New([]ExchangeSource{src}, NullDirectory{}, time.Minute)
	s.cycle(context.Background(), src)

	select {
	case ev := <-s.Listings():
		if ev.Exchange != "gate" || ev.Token.Symbol != "PEPE" {
			t.Errorf("expected a PEPE listing event for gate, got %+v", ev)
		}
	default:
		t.Error("expected the listing announcement to produce an event")
	}

	select {
	case ev := <-s.Listings():
		t.Errorf("expected the maintenance announcement to be filtered out, got %v", ev)
	default:
	}
}

func TestEmit_SymbolOnlyWhenDirectoryMisses(t *testing.T) {
	s := New(nil, NullDirectory{}, time.Minute)
	s.emit(context.Background(), Announcement{
		Exchange: "bybit",
		Title:    "WOJAK listing",
		Tokens:   []string{"WOJAK"},
	})

	select {
	case ev := <-s.Listings():
		if ev.Confirmation != "symbol_only" {
			t.Errorf("expected symbol_only confirmation, got %v", ev.Confirmation)
		}
	default:
		t.Error("expected an event to be emitted")
	}
}
