// Package db provides optional durable history for the radar: dispatched
// alerts, confirmed CEX listing events, and periodic leaderboard snapshots.
// Nothing in the live scoring or hotlist path depends on this package — the
// orchestrator and cache carry all state needed to serve traffic even if the
// database is unreachable. A Store is just another alerting.Dispatcher plus
// a couple of append-and-query helpers for operators who want history beyond
// the in-memory alert ring.
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawblock/memecoin-radar/internal/alerting"
	"github.com/rawblock/memecoin-radar/internal/obs"
	"github.com/rawblock/memecoin-radar/pkg/models"
)

// Store wraps a pgx connection pool. It is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(ctx context.Context, connStr string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	obs.Component("db").Info().Msg("connected to postgres")
	return &Store{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes schema.sql, creating the history tables if they don't
// already exist. Callers read the file themselves (cmd/radar reads
// internal/db/schema.sql from disk) so
// this package stays free of any working-directory assumption.
func (s *Store) InitSchema(ctx context.Context, schemaSQL string) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}
	obs.Component("db").Info().Msg("history schema initialized")
	return nil
}

// Dispatch implements alerting.Dispatcher, persisting the alert as history.
// Manager treats a Dispatch error as a delivery failure for that alert only;
// it never blocks or retries dispatch on the Store's behalf.
func (s *Store) Dispatch(ctx context.Context, alert alerting.Alert) error {
	return s.SaveAlert(ctx, alert)
}

// SaveAlert upserts a dispatched alert by ID, so saving the same alert ID
// again updates the existing row instead of adding a duplicate.
func (s *Store) SaveAlert(ctx context.Context, alert alerting.Alert) error {
	summary, err := json.Marshal(alert.Summary)
	if err != nil {
		return fmt.Errorf("marshal alert summary: %w", err)
	}
	const sql = `
		INSERT INTO alerts (id, kind, chain_id, address, exchange, score, reason, summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET score = EXCLUDED.score, reason = EXCLUDED.reason, summary = EXCLUDED.summary;
	`
	_, err = s.pool.Exec(ctx, sql,
		alert.ID, alert.Kind, string(alert.ChainId), alert.Address, alert.Exchange,
		alert.Score, alert.Reason, summary, alert.Ts,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// RecentAlerts returns up to limit alerts ordered newest first. limit <= 0
// or > 500 is clamped to 50, matching the default limit of GET /alerts/recent.
func (s *Store) RecentAlerts(ctx context.Context, limit int) ([]alerting.Alert, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	const sql = `
		SELECT id, kind, chain_id, address, exchange, score, reason, summary, created_at
		FROM alerts
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := make([]alerting.Alert, 0, limit)
	for rows.Next() {
		var a alerting.Alert
		var chainStr string
		var summary []byte
		if err := rows.Scan(&a.ID, &a.Kind, &chainStr, &a.Address, &a.Exchange, &a.Score, &a.Reason, &summary, &a.Ts); err != nil {
			return nil, err
		}
		a.ChainId = models.ChainId(chainStr)
		if err := json.Unmarshal(summary, &a.Summary); err != nil {
			return nil, fmt.Errorf("unmarshal alert summary: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// SaveListingEvent records a CEX listing announcement, confirmed or not, for
// later audit of the sentinel's classification.
func (s *Store) SaveListingEvent(ctx context.Context, ev models.CEXListingEvent) error {
	const sql = `
		INSERT INTO listing_events
		(exchange, chain_id, address, symbol, confirmation, radar_score, liquidity_usd, announced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`
	announced := time.UnixMilli(ev.Ts)
	_, err := s.pool.Exec(ctx, sql,
		ev.Exchange, string(ev.Token.ChainId), ev.Token.Address, ev.Token.Symbol,
		ev.Confirmation, ev.RadarScore, ev.LiquidityUsd, announced,
	)
	if err != nil {
		return fmt.Errorf("failed to insert listing event: %w", err)
	}
	return nil
}

// ListingHistory returns a page of recorded listing events, newest first,
// alongside the total row count for pagination.
func (s *Store) ListingHistory(ctx context.Context, page, limit int) ([]models.CEXListingEvent, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM listing_events`).Scan(&total); err != nil {
		return nil, 0, err
	}

	const sql = `
		SELECT exchange, chain_id, address, symbol, confirmation, radar_score, liquidity_usd, announced_at
		FROM listing_events
		ORDER BY announced_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := s.pool.Query(ctx, sql, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := make([]models.CEXListingEvent, 0, limit)
	for rows.Next() {
		var ev models.CEXListingEvent
		var chain string
		var announced time.Time
		if err := rows.Scan(&ev.Exchange, &chain, &ev.Token.Address, &ev.Token.Symbol,
			&ev.Confirmation, &ev.RadarScore, &ev.LiquidityUsd, &announced); err != nil {
			return nil, 0, err
		}
		ev.Source = "cex_listing"
		ev.Token.ChainId = models.ChainId(chain)
		ev.Ts = announced.UnixMilli()
		events = append(events, ev)
	}
	return events, total, rows.Err()
}

// SaveLeaderboardSnapshot persists the current ranking for one category as a
// point-in-time row, letting operators chart leaderboard churn over time
// without replaying the live cache.
func (s *Store) SaveLeaderboardSnapshot(ctx context.Context, category models.LeaderboardCategory, tokens []models.TokenSummary, takenAt time.Time) error {
	payload, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("marshal leaderboard snapshot: %w", err)
	}
	const sql = `
		INSERT INTO leaderboard_snapshots (category, tokens, taken_at)
		VALUES ($1, $2, $3);
	`
	if _, err := s.pool.Exec(ctx, sql, string(category), payload, takenAt); err != nil {
		return fmt.Errorf("failed to insert leaderboard snapshot: %w", err)
	}
	return nil
}

// LatestLeaderboardSnapshot returns the most recently saved snapshot for a
// category, or ok=false if none has been recorded yet.
func (s *Store) LatestLeaderboardSnapshot(ctx context.Context, category models.LeaderboardCategory) (tokens []models.TokenSummary, takenAt time.Time, ok bool, err error) {
	const sql = `
		SELECT tokens, taken_at FROM leaderboard_snapshots
		WHERE category = $1
		ORDER BY taken_at DESC
		LIMIT 1
	`
	var payload []byte
	row := s.pool.QueryRow(ctx, sql, string(category))
	if scanErr := row.Scan(&payload, &takenAt); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, time.Time{}, false, nil
		}
		return nil, time.Time{}, false, scanErr
	}
	if unmarshalErr := json.Unmarshal(payload, &tokens); unmarshalErr != nil {
		return nil, time.Time{}, false, fmt.Errorf("unmarshal leaderboard snapshot: %w", unmarshalErr)
	}
	return tokens, takenAt, true, nil
}

// GetPool exposes the connection pool for callers that need a transaction or
// a query shape this package doesn't provide.
func (s *Store) GetPool() *pgxpool.Pool {
	return s.pool
}
