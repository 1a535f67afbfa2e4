// Package types defines the shared vocabulary used across every layer of the
// trading daemon: assets, markets, price observations, strategies, and
// trades. It has no dependency on any internal package so it can be imported
// from the bottom (Store) up to the top (cmd/trader).
package types

import "time"

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side identifies which binary outcome token a trade holds.
type Side string

const (
	SideYES Side = "YES"
	SideNO  Side = "NO"
)

// Direction selects how a strategy reads its entry/exit thresholds.
// "normal" buys YES as price approaches the entry threshold from below;
// "fade" buys NO as YES price approaches the entry threshold from above.
type Direction string

const (
	DirectionNormal Direction = "normal"
	DirectionFade   Direction = "fade"
)

// ExitReason records why a trade was closed. The engine only ever
// produces TAKE_PROFIT and RESOLUTION_EXIT; RESOLUTION_WIN,
// RESOLUTION_LOSS, and MANUAL exist so rows written by external tooling
// (settlement reconcilers, operator closes) still round-trip through the
// store.
type ExitReason string

const (
	ExitTakeProfit     ExitReason = "TAKE_PROFIT"
	ExitResolution     ExitReason = "RESOLUTION_EXIT"
	ExitResolutionWin  ExitReason = "RESOLUTION_WIN"
	ExitResolutionLoss ExitReason = "RESOLUTION_LOSS"
	ExitManual         ExitReason = "MANUAL"
)

// IsWin reports whether this exit reason counts as a winning close.
func (r ExitReason) IsWin() bool {
	return r == ExitTakeProfit || r == ExitResolutionWin
}

// TradeStatus is the lifecycle state of a Position/Trade row.
type TradeStatus string

const (
	TradeOpen   TradeStatus = "open"
	TradeClosed TradeStatus = "closed"
)

// StrategyStatus is the persisted activation state of a Strategy.
// Only StrategyActive admits new entries; StrategyTesting and
// StrategyDisabled never do. Promotion between states is left to an
// operator — the core never writes this column itself.
type StrategyStatus string

const (
	StrategyTesting  StrategyStatus = "testing"
	StrategyActive   StrategyStatus = "active"
	StrategyDisabled StrategyStatus = "disabled"
)

// Mode selects how OrderExecutor calls are fulfilled.
type Mode string

const (
	ModePaper   Mode = "paper"
	ModeLive    Mode = "live"
	ModeTestnet Mode = "testnet"
)

// ————————————————————————————————————————————————————————————————————————
// Market data
// ————————————————————————————————————————————————————————————————————————

// Market is the in-memory cache entry for one tracked binary outcome
// market. Populated by MarketDiscovery, refreshed by QuoteFeed, and
// carries no back-pointers into price history — PriceUpdate references it
// only by ConditionID.
type Market struct {
	ConditionID        string
	Asset              string
	ResolutionDeadline time.Time
	YesTokenID         string
	NoTokenID          string

	YesPrice float64
	NoPrice  float64
	YesBid   float64
	YesAsk   float64
	NoBid    float64
	NoAsk    float64
}

// Expired reports whether this market's resolution deadline has passed
// relative to now.
func (m Market) Expired(now time.Time) bool {
	return !m.ResolutionDeadline.After(now)
}

// TimeRemaining returns the seconds until resolution, floored at 0.
func (m Market) TimeRemaining(now time.Time) float64 {
	d := m.ResolutionDeadline.Sub(now).Seconds()
	if d < 0 {
		return 0
	}
	return d
}

// PriceUpdate is an immutable observation emitted once per tracked market
// per QuoteFeed tick.
type PriceUpdate struct {
	ConditionID          string
	Asset                string
	YesPrice             float64
	NoPrice              float64
	YesBid               float64
	YesAsk               float64
	NoBid                float64
	NoAsk                float64
	TimeRemainingSeconds float64
	ObservedAt           time.Time
}

// Valid reports whether prices are within the admissible [0,1] range.
// QuoteFeed must never emit an update that fails this check.
func (p PriceUpdate) Valid() bool {
	for _, v := range []float64{p.YesPrice, p.NoPrice, p.YesBid, p.YesAsk, p.NoBid, p.NoAsk} {
		if v < 0 || v > 1 {
			return false
		}
	}
	return true
}

// ————————————————————————————————————————————————————————————————————————
// Strategies
// ————————————————————————————————————————————————————————————————————————

// StrategyConfig is the shape read from configuration for one strategy.
type StrategyConfig struct {
	ID             string    `mapstructure:"id" yaml:"id"`
	Tier           string    `mapstructure:"tier" yaml:"tier"`
	EntryThreshold float64   `mapstructure:"entry" yaml:"entry"`
	ExitThreshold  float64   `mapstructure:"exit" yaml:"exit"`
	Direction      Direction `mapstructure:"direction" yaml:"direction"`
	Enabled        bool      `mapstructure:"enabled" yaml:"enabled"`
}

// Strategy is the live, registry-resolved view of a strategy: config
// merged with its persisted Store status and running performance cache.
type Strategy struct {
	ID             string
	Tier           string
	EntryThreshold float64
	ExitThreshold  float64
	Direction      Direction
	Status         StrategyStatus

	TotalTrades int
	Wins        int
	TotalPnL    float64
}

// Admits reports whether this strategy is allowed to open new positions.
func (s Strategy) Admits() bool {
	return s.Status == StrategyActive
}

// ExitTarget returns the price level that triggers TAKE_PROFIT for this
// strategy's direction, expressed in the price of the token the strategy
// holds: a YES price for normal strategies, a NO price for fade strategies.
func (s Strategy) ExitTarget() float64 {
	if s.Direction == DirectionFade {
		return 1 - s.ExitThreshold
	}
	return s.ExitThreshold
}

// BreakEvenWinRate is the win rate at which this strategy's risk/reward
// profile nets to zero expected value.
func (s Strategy) BreakEvenWinRate() float64 {
	profit := s.ProfitIfWinPct()
	return 1 / (1 + profit)
}

// ProfitIfWinPct is the fractional return on a winning trade, mirrored
// for fade strategies by flipping entry/exit into NO-price terms.
func (s Strategy) ProfitIfWinPct() float64 {
	entry, exit := s.EntryThreshold, s.ExitThreshold
	if s.Direction == DirectionFade {
		entry, exit = 1-entry, 1-exit
	}
	if entry == 0 {
		return 0
	}
	return (exit - entry) / entry
}

// ————————————————————————————————————————————————————————————————————————
// Trades
// ————————————————————————————————————————————————————————————————————————

// Trade is a Position across its two phases (open, then closed). The
// entry fields are set at open and never change; the exit fields are
// populated exactly once, at close.
type Trade struct {
	ID          int64
	StrategyID  string
	ConditionID string
	Asset       string
	Side        Side

	EntryPrice           float64
	EntryTime            time.Time
	Shares               float64
	TimeRemainingAtEntry float64
	HourOfDay            int
	DayOfWeek            int

	Status  TradeStatus
	IsPaper bool

	ExitPrice  float64
	ExitTime   time.Time
	ExitReason ExitReason
	PnL        float64
	PnLPct     float64
	IsWin      bool
}

// Close mutates the trade into its closed phase, computing P&L per the
// fixed law: pnlPct = (exitPrice - entryPrice) / entryPrice,
// pnl = shares * entryPrice * pnlPct. IsWin is true iff the exit reason
// is TAKE_PROFIT — a resolution-deadline exit is never a win even if the
// price happened to rise above entry.
func (t *Trade) Close(exitPrice float64, exitTime time.Time, reason ExitReason) {
	t.ExitPrice = exitPrice
	t.ExitTime = exitTime
	t.ExitReason = reason
	if t.EntryPrice != 0 {
		t.PnLPct = (exitPrice - t.EntryPrice) / t.EntryPrice
	}
	t.PnL = t.Shares * t.EntryPrice * t.PnLPct
	t.IsWin = reason == ExitTakeProfit
	t.Status = TradeClosed
}

// Key identifies the (strategyId, conditionId) pair this trade occupies.
// At most one open Trade may exist per Key at any time.
type Key struct {
	StrategyID  string
	ConditionID string
}
