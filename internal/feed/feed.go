// Package feed maintains the tracked market set and polls the venue for
// top-of-book quotes, emitting one PriceUpdate per surviving market each
// tick. Expired markets are dropped; when the tracked set runs low, the
// feed asks market discovery for replacements.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"quarterbinary/internal/ratelimit"
	"quarterbinary/pkg/types"
)

// clobPrice is the venue's per-token price response shape.
type clobPrice struct {
	TokenID string `json:"token_id"`
	Mid     string `json:"mid"`
	Bid     string `json:"bid"`
	Ask     string `json:"ask"`
}

// store is the subset of persistence the feed needs.
type store interface {
	AppendPrice(p types.PriceUpdate) error
}

// discoverer supplies newly discovered markets when the tracked set runs
// low, mirroring MarketDiscovery's on-demand refill contract.
type discoverer interface {
	Discover(ctx context.Context) ([]types.Market, error)
}

// Feed polls the venue for price updates on every tracked market.
type Feed struct {
	http    *resty.Client
	limiter *ratelimit.Bucket
	store   store
	disc    discoverer
	book    *BookStream
	logger  *slog.Logger

	pollInterval time.Duration
	minTracked   int

	mu      sync.Mutex
	markets map[string]types.Market // conditionId -> Market

	invalidDropped atomic.Int64

	out chan types.PriceUpdate
}

// New builds a Feed. baseURL points at the venue's CLOB price endpoint.
func New(baseURL string, pollInterval time.Duration, disc discoverer, st store, logger *slog.Logger) *Feed {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)

	return &Feed{
		http:         client,
		limiter:      ratelimit.New(30, 6),
		store:        st,
		disc:         disc,
		logger:       logger.With("component", "feed"),
		pollInterval: pollInterval,
		minTracked:   3,
		markets:      make(map[string]types.Market),
		out:          make(chan types.PriceUpdate, 64),
	}
}

// WithBookStream attaches an optional websocket top-of-book augmentation.
// When set, tick() prefers BookStream's bid/ask over the polled REST
// values whenever the stream holds a quote for that token — the stream
// drops its quotes on disconnect, so the feed degrades cleanly to pure
// polling until it reconnects.
func (f *Feed) WithBookStream(b *BookStream) *Feed {
	f.book = b
	return f
}

// Updates returns the channel DecisionEngine consumes.
func (f *Feed) Updates() <-chan types.PriceUpdate {
	return f.out
}

// InvalidDropped reports how many out-of-range quotes the feed has
// discarded instead of emitting.
func (f *Feed) InvalidDropped() int64 {
	return f.invalidDropped.Load()
}

// TokenIDs returns the yes/no token ids for a tracked market. DecisionEngine
// needs these to place orders; PriceUpdate intentionally carries only the
// conditionId.
func (f *Feed) TokenIDs(conditionID string) (yes, no string, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, exists := f.markets[conditionID]
	if !exists {
		return "", "", false
	}
	return m.YesTokenID, m.NoTokenID, true
}

// Run polls at pollInterval until ctx is cancelled, closing Updates() on exit.
// If a BookStream is attached, its reconnect loop is started alongside the
// polling loop so tick() can start preferring its fresher quotes as soon as
// subscriptions land.
func (f *Feed) Run(ctx context.Context) {
	defer close(f.out)

	if f.book != nil {
		go f.book.Run(ctx)
	}

	f.refillIfLow(ctx)
	f.tick(ctx)

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.refillIfLow(ctx)
			f.tick(ctx)
		}
	}
}

func (f *Feed) refillIfLow(ctx context.Context) {
	f.mu.Lock()
	n := len(f.markets)
	f.mu.Unlock()
	if n >= f.minTracked {
		return
	}

	discovered, err := f.disc.Discover(ctx)
	if err != nil {
		f.logger.Error("refill discover failed", "error", err)
		return
	}

	var newTokens []string
	f.mu.Lock()
	for _, m := range discovered {
		if _, exists := f.markets[m.ConditionID]; !exists {
			f.markets[m.ConditionID] = m
			newTokens = append(newTokens, m.YesTokenID, m.NoTokenID)
		}
	}
	f.mu.Unlock()

	if f.book != nil && len(newTokens) > 0 {
		if err := f.book.Subscribe(ctx, newTokens); err != nil {
			f.logger.Warn("book stream subscribe failed", "error", err)
		}
	}
}

// tick refreshes every tracked market's prices in one batched call, drops
// expired markets, and emits a PriceUpdate for every survivor.
func (f *Feed) tick(ctx context.Context) {
	f.mu.Lock()
	tracked := make([]types.Market, 0, len(f.markets))
	for _, m := range f.markets {
		tracked = append(tracked, m)
	}
	f.mu.Unlock()

	if len(tracked) == 0 {
		return
	}

	tokenIDs := make([]string, 0, len(tracked)*2)
	for _, m := range tracked {
		tokenIDs = append(tokenIDs, m.YesTokenID, m.NoTokenID)
	}

	prices, err := f.fetchPrices(ctx, tokenIDs)
	if err != nil {
		f.logger.Error("price refresh failed", "error", err)
		return
	}

	now := time.Now()
	sort.Slice(tracked, func(i, j int) bool { return tracked[i].ConditionID < tracked[j].ConditionID })

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, m := range tracked {
		if !m.ResolutionDeadline.After(now) {
			delete(f.markets, m.ConditionID)
			continue
		}

		yes, yesOK := prices[m.YesTokenID]
		no, noOK := prices[m.NoTokenID]
		if !yesOK || !noOK {
			// Transient error on this market's quote: keep last-known values.
			continue
		}

		yesMid, yesMidOK := parseFloat(yes.Mid)
		noMid, noMidOK := parseFloat(no.Mid)
		yesBid, yesBidOK := parseFloat(yes.Bid)
		yesAsk, yesAskOK := parseFloat(yes.Ask)
		noBid, noBidOK := parseFloat(no.Bid)
		noAsk, noAskOK := parseFloat(no.Ask)

		updated := m
		updated.YesPrice = orFallback(yesMid, yesMidOK, m.YesPrice)
		updated.NoPrice = orFallback(noMid, noMidOK, m.NoPrice)
		updated.YesBid = orFallback(yesBid, yesBidOK, m.YesBid)
		updated.YesAsk = orFallback(yesAsk, yesAskOK, m.YesAsk)
		updated.NoBid = orFallback(noBid, noBidOK, m.NoBid)
		updated.NoAsk = orFallback(noAsk, noAskOK, m.NoAsk)

		if f.book != nil {
			if bid, ask, ok := f.book.BestBidAsk(updated.YesTokenID); ok {
				updated.YesBid, updated.YesAsk = bid, ask
			}
			if bid, ask, ok := f.book.BestBidAsk(updated.NoTokenID); ok {
				updated.NoBid, updated.NoAsk = bid, ask
			}
		}

		f.markets[m.ConditionID] = updated

		u := types.PriceUpdate{
			ConditionID:          updated.ConditionID,
			Asset:                updated.Asset,
			YesPrice:             updated.YesPrice,
			NoPrice:              updated.NoPrice,
			YesBid:               updated.YesBid,
			YesAsk:               updated.YesAsk,
			NoBid:                updated.NoBid,
			NoAsk:                updated.NoAsk,
			TimeRemainingSeconds: updated.TimeRemaining(now),
			ObservedAt:           now,
		}
		if !u.Valid() {
			dropped := f.invalidDropped.Add(1)
			f.logger.Warn("dropping invalid price update", "condition_id", u.ConditionID, "invalid_dropped_total", dropped)
			continue
		}

		if err := f.store.AppendPrice(u); err != nil {
			f.logger.Error("append price failed", "error", err)
		}

		select {
		case f.out <- u:
		case <-ctx.Done():
			return
		}
	}
}

func (f *Feed) fetchPrices(ctx context.Context, tokenIDs []string) (map[string]clobPrice, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("fetch prices: %w", err)
	}

	var page []clobPrice
	resp, err := f.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"token_ids": tokenIDs}).
		SetResult(&page).
		Post("/prices")
	if err != nil {
		return nil, fmt.Errorf("fetch prices: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("fetch prices: status %d", resp.StatusCode())
	}

	out := make(map[string]clobPrice, len(page))
	for _, p := range page {
		out[p.TokenID] = p
	}
	return out, nil
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func orFallback(v float64, ok bool, fallback float64) float64 {
	if ok {
		return v
	}
	return fallback
}
