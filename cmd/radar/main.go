package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rawblock/memecoin-radar/internal/alerting"
	"github.com/rawblock/memecoin-radar/internal/api"
	"github.com/rawblock/memecoin-radar/internal/cache"
	"github.com/rawblock/memecoin-radar/internal/collector"
	"github.com/rawblock/memecoin-radar/internal/config"
	"github.com/rawblock/memecoin-radar/internal/db"
	"github.com/rawblock/memecoin-radar/internal/httpfetch"
	"github.com/rawblock/memecoin-radar/internal/obs"
	"github.com/rawblock/memecoin-radar/internal/orchestrator"
	"github.com/rawblock/memecoin-radar/internal/ratelimit"
	"github.com/rawblock/memecoin-radar/internal/security"
	"github.com/rawblock/memecoin-radar/internal/sentinel"
)

var exchangeIndexes = map[string]string{
	"kucoin":  "https://www.kucoin.com/announcement/new-listings",
	"bybit":   "https://announcements.bybit.com/en/?category=new_crypto",
	"mexc":    "https://www.mexc.com/support/articles/360058966811",
	"gate":    "https://www.gate.io/announcements/newlisted",
	"lbank":   "https://www.lbank.com/en-US/announcement/new-coin-listings/",
	"bitmart": "https://support.bitmart.com/hc/en-us/categories/360003384132",
}

func main() {
	snap, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}
	obs.Init(snap.LogPretty, snap.LogLevel)
	log := obs.Component("main")
	log.Info().Strs("chains", snap.Chains).Msg("starting memecoin radar")

	if snap.GinMode == "release" && snap.APIAuthToken == "" {
		snap.APIAuthToken = config.RequireEnv("API_AUTH_TOKEN")
	}
	configStore := config.NewStore(snap)

	var cacheStore cache.Store
	if snap.RedisURL != "" {
		redisCache, err := cache.NewRedis(snap.RedisURL, "", 0)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, falling back to in-process cache")
			cacheStore = cache.NewLocal()
		} else {
			cacheStore = redisCache
		}
	} else {
		cacheStore = cache.NewLocal()
	}

	var dbStore *db.Store
	if snap.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		dbStore, err = db.Connect(ctx, snap.DatabaseURL)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("postgres unavailable, continuing without alert/listing history")
		} else {
			if schemaBytes, rerr := os.ReadFile("internal/db/schema.sql"); rerr != nil {
				log.Warn().Err(rerr).Msg("failed to read schema.sql, history tables not initialized")
			} else if ierr := dbStore.InitSchema(context.Background(), string(schemaBytes)); ierr != nil {
				log.Warn().Err(ierr).Msg("history schema init failed")
			}
		}
	}

	var dispatchers alerting.MultiDispatcher
	if webhookURL := os.Getenv("ALERT_WEBHOOK_URL"); webhookURL != "" {
		dispatchers = append(dispatchers, alerting.NewWebhookDispatcher(webhookURL, nil))
	}
	if dbStore != nil {
		dispatchers = append(dispatchers, dbStore)
	}
	var dispatcher alerting.Dispatcher
	if len(dispatchers) > 0 {
		dispatcher = dispatchers
	}
	alertMgr := alerting.NewManager(dispatcher, 50)

	limiter := ratelimit.New()
	fetcher := httpfetch.New(limiter)

	chains := make([]collector.ChainConfig, 0, len(collector.DefaultChainConfigs))
	for _, cc := range collector.DefaultChainConfigs {
		for _, chain := range snap.Chains {
			if string(cc.Chain) == chain {
				chains = append(chains, cc)
				break
			}
		}
	}
	if len(chains) == 0 {
		chains = collector.DefaultChainConfigs
	}

	source := &collector.DexscreenerSource{Fetcher: fetcher, Cache: cacheStore}
	coll := collector.New(chains, source, cacheStore, snap.Thresholds.MinLiqList, snap.Cadences.RefreshInterval)

	var directory sentinel.AddressDirectory = &sentinel.HTTPAddressDirectory{
		Fetcher: fetcher, BaseURL: "https://api.coingecko.com/api/v3",
	}
	sources := make([]sentinel.ExchangeSource, 0, len(exchangeIndexes))
	for name, url := range exchangeIndexes {
		sources = append(sources, &sentinel.HTMLExchangeSource{ExchangeName: name, IndexURL: url, Fetcher: fetcher})
	}
	sent := sentinel.New(sources, directory, snap.Cadences.SentinelRefreshInterval)

	auditor := security.New(&security.HTTPUpstreams{Fetcher: fetcher}, cacheStore)

	orch := orchestrator.New(configStore, auditor, alertMgr, cacheStore, coll.Baseline, coll.Updates(), sent.Listings())
	orch.SetRateLimiter(limiter)

	orch.RegisterHealthCheck("cache", func() (string, string) {
		if cacheStore.GetStats().HitRatio < 0.2 {
			return "degraded", "cache hit ratio below 20%"
		}
		return "up", ""
	})
	orch.RegisterHealthCheck("collector", func() (string, string) {
		counters := coll.Health()
		for chain, last := range counters.LastTick {
			if last.IsZero() {
				continue
			}
			if time.Since(last) > 3*snap.Cadences.RefreshInterval {
				return "degraded", "stale poll tick on " + string(chain)
			}
		}
		return "up", ""
	})
	if dbStore != nil {
		orch.RegisterHealthCheck("database", func() (string, string) {
			if err := dbStore.GetPool().Ping(context.Background()); err != nil {
				return "down", err.Error()
			}
			return "up", ""
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go coll.Run(ctx)
	go sent.Run(ctx)
	go orch.Run(ctx)

	router := api.SetupRouter(orch, configStore)

	srv := &http.Server{Addr: ":" + snap.Port, Handler: router}
	go func() {
		log.Info().Str("port", snap.Port).Msg("radar API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown did not complete cleanly")
	}
	if dbStore != nil {
		dbStore.Close()
	}
}
