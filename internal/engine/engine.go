// Package engine implements the decision loop: every observed PriceUpdate
// is evaluated against the full strategy set in a stable deterministic
// order, exits before entries, gated by the position manager and sized by
// the Kelly sizer. Evaluation is a single synchronous pass per update, so
// strategies that qualify on the same tick are handled one after another
// in id order (each may open its own position) rather than by N
// goroutines racing the same market.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"quarterbinary/internal/clocklib"
	"quarterbinary/internal/executor"
	"quarterbinary/internal/sizer"
	"quarterbinary/internal/vault"
	"quarterbinary/pkg/types"
)

// Entry window constants. Never open a position that is about to be
// force-closed by the resolution exit, and require the observed price to
// sit inside a direction-specific band around the strategy's entry
// threshold.
const (
	minEntryTimeRemainingSeconds = 180
	normalEntryBandWidth         = 0.05
	fadeEntryWideBandWidth       = 0.10
	fadeEntryWideBandFloor       = 0.90
	fadeEntryNarrowBandWidth     = 0.05
)

// registry is the subset of StrategyRegistry the engine needs.
type registry interface {
	Ordered() []types.Strategy
	RecordTrade(id string, pnl float64, isWin bool)
}

// positions is the subset of the position manager the engine needs. The
// engine touches openTrades/cooldown/spend state only through these
// gates.
type positions interface {
	Open(key types.Key) (*types.Trade, bool)
	OnCooldown(key types.Key, now time.Time) bool
	EverTraded(key types.Key) (bool, error)
	AdmitSpend(stake float64, now time.Time) bool
	OpenTrade(t *types.Trade) error
	CloseTrade(t *types.Trade, now time.Time) error
}

// tokenLookup resolves a market's order-book token ids; PriceUpdate
// intentionally carries only the conditionId, so the engine asks the
// feed's market cache for the ids it needs to place orders.
type tokenLookup interface {
	TokenIDs(conditionID string) (yes, no string, ok bool)
}

// Config tunes the exit/entry thresholds not otherwise derivable from a
// Strategy record.
type Config struct {
	ResolutionExitThreshold time.Duration
	IsPaper                 bool
}

// Engine is the DecisionEngine: for every PriceUpdate it runs exit checks
// for open positions, then entry checks for flat strategies, in the
// registry's stable id order.
type Engine struct {
	cfg      Config
	clock    clocklib.Clock
	registry registry
	pos      positions
	sizer    *sizer.Sizer
	exec     executor.OrderExecutor
	tokens   tokenLookup
	logger   *slog.Logger

	bankrollSrc *vault.Bankroll

	mu           sync.Mutex
	lastObserved map[string]time.Time // conditionId -> last accepted observedAt

	invalidDropped atomic.Int64
}

// New builds an Engine wired to its collaborators.
func New(cfg Config, clock clocklib.Clock, reg registry, pos positions, sz *sizer.Sizer, exec executor.OrderExecutor, tokens tokenLookup, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:          cfg,
		clock:        clock,
		registry:     reg,
		pos:          pos,
		sizer:        sz,
		exec:         exec,
		tokens:       tokens,
		logger:       logger.With("component", "engine"),
		lastObserved: make(map[string]time.Time),
	}
}

// Run consumes updates from ch until it closes, ctx is cancelled, or a
// store write fails. A store-write failure is fatal — continuing past one
// would desynchronize the openTrades cache from the database and risk
// phantom double-buys — so it is returned to the caller rather than
// swallowed.
func (e *Engine) Run(ctx context.Context, ch <-chan types.PriceUpdate) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-ch:
			if !ok {
				return nil
			}
			if err := e.Tick(ctx, u); err != nil {
				return err
			}
		}
	}
}

// Tick evaluates one PriceUpdate against every strategy in stable order:
// exits before entries, per strategy, so a strategy that just closed
// cannot re-enter on the same tick. The returned error is non-nil only
// for store failures, which the caller must treat as fatal.
func (e *Engine) Tick(ctx context.Context, u types.PriceUpdate) error {
	if !u.Valid() {
		dropped := e.invalidDropped.Add(1)
		e.logger.Warn("dropping invalid price update", "condition_id", u.ConditionID, "invalid_dropped_total", dropped)
		return nil
	}
	if !e.acceptObservedAt(u) {
		e.logger.Debug("dropping out-of-order tick", "condition_id", u.ConditionID, "observed_at", u.ObservedAt)
		return nil
	}

	for _, s := range e.registry.Ordered() {
		key := types.Key{StrategyID: s.ID, ConditionID: u.ConditionID}

		if trade, open := e.pos.Open(key); open {
			if err := e.evaluateExit(ctx, s, trade, u); err != nil {
				return err
			}
			continue
		}

		if err := e.evaluateEntry(ctx, s, u); err != nil {
			return err
		}
	}
	return nil
}

// InvalidDropped reports how many malformed updates the engine has
// discarded since start.
func (e *Engine) InvalidDropped() int64 {
	return e.invalidDropped.Load()
}

// acceptObservedAt enforces the non-decreasing observedAt contract per
// market: an out-of-order tick (possible if the feed races itself across
// assets) is dropped rather than evaluated.
func (e *Engine) acceptObservedAt(u types.PriceUpdate) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	last, ok := e.lastObserved[u.ConditionID]
	if ok && u.ObservedAt.Before(last) {
		return false
	}
	e.lastObserved[u.ConditionID] = u.ObservedAt
	return true
}

// evaluateExit decides TAKE_PROFIT over RESOLUTION_EXIT over HOLD. Order
// placement failure never blocks persisting the close — the engine
// records intent; reconciling residual venue-side state is an external
// concern. A failure to persist the close itself is returned as fatal.
func (e *Engine) evaluateExit(ctx context.Context, s types.Strategy, trade *types.Trade, u types.PriceUpdate) error {
	currentPrice := exitSidePrice(trade.Side, u)
	exitTarget := s.ExitTarget()

	var reason types.ExitReason
	switch {
	case currentPrice >= exitTarget && currentPrice > trade.EntryPrice:
		reason = types.ExitTakeProfit
	case u.TimeRemainingSeconds < e.cfg.ResolutionExitThreshold.Seconds():
		reason = types.ExitResolution
	default:
		return nil
	}

	now := e.clock.Now()
	tokenID := tradeTokenID(trade, e.tokens)
	if _, err := e.exec.Sell(ctx, trade.Side, tokenID, currentPrice, trade.Shares); err != nil {
		e.logger.Error("exit order failed, recording intent anyway", "strategy", s.ID, "condition_id", u.ConditionID, "error", err)
	}

	trade.Close(currentPrice, now, reason)
	if err := e.pos.CloseTrade(trade, now); err != nil {
		return fmt.Errorf("engine: persist close for %s/%s: %w", s.ID, u.ConditionID, err)
	}

	e.registry.RecordTrade(s.ID, trade.PnL, trade.IsWin)
	if e.bankrollSrc != nil {
		e.bankrollSrc.ProcessTrade(trade.PnL, trade.IsWin)
	}
	e.logger.Info("position closed",
		"strategy", s.ID, "condition_id", u.ConditionID, "side", trade.Side,
		"exit_price", trade.ExitPrice, "exit_reason", trade.ExitReason,
		"pnl", trade.PnL, "pnl_pct", trade.PnLPct, "is_win", trade.IsWin)
	return nil
}

// evaluateEntry gates, in order: enabled, not on
// cooldown, never traded, minimum time remaining, then the direction's
// trigger band. A Sizer stake of 0 or a PositionManager rejection both
// abort without placing an order. Store failures are returned as fatal.
func (e *Engine) evaluateEntry(ctx context.Context, s types.Strategy, u types.PriceUpdate) error {
	if !s.Admits() {
		return nil
	}

	key := types.Key{StrategyID: s.ID, ConditionID: u.ConditionID}
	now := e.clock.Now()

	if e.pos.OnCooldown(key, now) {
		return nil
	}
	traded, err := e.pos.EverTraded(key)
	if err != nil {
		return fmt.Errorf("engine: everTraded check for %s/%s: %w", s.ID, u.ConditionID, err)
	}
	if traded {
		return nil
	}
	if u.TimeRemainingSeconds < minEntryTimeRemainingSeconds {
		return nil
	}

	side, buyPrice, fires := entrySignal(s, u)
	if !fires {
		return nil
	}

	bet := e.sizer.Size(e.currentBankroll(), buyPrice, s.ExitTarget(), 0)
	if bet.Amount <= 0 {
		return nil
	}

	if !e.pos.AdmitSpend(bet.Amount, now) {
		e.logger.Debug("entry rejected by spend budget", "strategy", s.ID, "condition_id", u.ConditionID, "stake", bet.Amount)
		return nil
	}

	tokenID := sideTokenID(side, u.ConditionID, e.tokens)
	if _, err := e.exec.Buy(ctx, side, tokenID, buyPrice, bet.Amount/buyPrice); err != nil {
		e.logger.Error("entry order failed, aborting before persistence", "strategy", s.ID, "condition_id", u.ConditionID, "error", err)
		return nil
	}

	trade := &types.Trade{
		StrategyID:           s.ID,
		ConditionID:          u.ConditionID,
		Asset:                u.Asset,
		Side:                 side,
		EntryPrice:           buyPrice,
		EntryTime:            now,
		Shares:               bet.Amount / buyPrice,
		TimeRemainingAtEntry: u.TimeRemainingSeconds,
		HourOfDay:            now.Hour(),
		DayOfWeek:            int(now.Weekday()),
		IsPaper:              e.cfg.IsPaper,
	}
	if err := e.pos.OpenTrade(trade); err != nil {
		return fmt.Errorf("engine: persist open for %s/%s: %w", s.ID, u.ConditionID, err)
	}

	e.logger.Info("position opened",
		"strategy", s.ID, "condition_id", u.ConditionID, "side", side,
		"entry_price", buyPrice, "shares", trade.Shares, "stake", bet.Amount, "rationale", bet.Rationale)
	return nil
}

// currentBankroll returns the attached vault's available bankroll, or 0
// when no vault has been attached via WithBankroll (as in unit tests).
func (e *Engine) currentBankroll() float64 {
	if e.bankrollSrc == nil {
		return 0
	}
	return e.bankrollSrc.Available()
}

// WithBankroll attaches the profit-protection vault Sizer reads
// available bankroll from, and that every closed trade's P&L is applied
// to.
func (e *Engine) WithBankroll(b *vault.Bankroll) *Engine {
	e.bankrollSrc = b
	return e
}

// exitSidePrice implements the "realistic sell-side execution" rule:
// sell at the bid, not the mid, falling back to mid if the bid is absent.
func exitSidePrice(side types.Side, u types.PriceUpdate) float64 {
	if side == types.SideYES {
		if u.YesBid > 0 {
			return u.YesBid
		}
		return u.YesPrice
	}
	if u.NoBid > 0 {
		return u.NoBid
	}
	return u.NoPrice
}

// entrySignal evaluates the two trigger bands. normal strategies
// buy YES as the ask falls into (entry-0.05, entry]; fade strategies buy
// NO as the YES bid rises into [entry, entry+width), width widening to
// 0.10 once the entry threshold itself is at/above 0.90.
func entrySignal(s types.Strategy, u types.PriceUpdate) (side types.Side, buyPrice float64, fires bool) {
	if s.Direction == types.DirectionFade {
		trigger := u.YesBid
		if trigger == 0 {
			trigger = u.YesPrice
		}
		width := fadeEntryNarrowBandWidth
		if s.EntryThreshold >= fadeEntryWideBandFloor {
			width = fadeEntryWideBandWidth
		}
		if trigger < s.EntryThreshold || trigger >= s.EntryThreshold+width {
			return "", 0, false
		}
		price := u.NoAsk
		if price == 0 {
			price = u.NoPrice
		}
		return types.SideNO, price, true
	}

	price := u.YesAsk
	if price == 0 {
		price = u.YesPrice
	}
	if price <= s.EntryThreshold-normalEntryBandWidth || price > s.EntryThreshold {
		return "", 0, false
	}
	return types.SideYES, price, true
}

func sideTokenID(side types.Side, conditionID string, tokens tokenLookup) string {
	yes, no, ok := tokens.TokenIDs(conditionID)
	if !ok {
		return ""
	}
	if side == types.SideYES {
		return yes
	}
	return no
}

func tradeTokenID(t *types.Trade, tokens tokenLookup) string {
	return sideTokenID(t.Side, t.ConditionID, tokens)
}
