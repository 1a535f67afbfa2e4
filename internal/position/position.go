// Package position owns the in-memory openTrades cache, cooldowns, and
// rolling spend window that gate every entry/exit decision. The cache is
// rehydrated from the store's open rows at startup; the store stays the
// source of truth.
package position

import (
	"fmt"
	"sync"
	"time"

	"quarterbinary/pkg/types"
)

// store is the subset of persistence the manager needs.
type store interface {
	LoadOpenTrades() ([]types.Trade, error)
	HasAnyTrade(key types.Key) (bool, error)
	OpenTrade(t *types.Trade) error
	CloseTrade(t *types.Trade) error
}

// Config tunes cooldown duration and the rolling spend window.
type Config struct {
	CooldownDuration    time.Duration
	SpendWindowDuration time.Duration
	SpendCap            float64
}

// Manager is the single owner of position-gating state. DecisionEngine
// must only touch this state through the gate methods below.
type Manager struct {
	cfg   Config
	store store

	mu         sync.Mutex
	openTrades map[types.Key]*types.Trade
	cooldowns  map[types.Key]time.Time

	windowStart time.Time
	spentSoFar  float64
}

// New constructs a Manager. Rehydrate must be called before use.
func New(cfg Config, st store) *Manager {
	return &Manager{
		cfg:        cfg,
		store:      st,
		openTrades: make(map[types.Key]*types.Trade),
		cooldowns:  make(map[types.Key]time.Time),
	}
}

// Rehydrate loads every open trade from Store into the in-memory cache.
// Failing here is fatal: proceeding without it risks a phantom double-buy.
func (m *Manager) Rehydrate() error {
	open, err := m.store.LoadOpenTrades()
	if err != nil {
		return fmt.Errorf("position: rehydrate: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range open {
		t := open[i]
		key := types.Key{StrategyID: t.StrategyID, ConditionID: t.ConditionID}
		m.openTrades[key] = &t
	}
	return nil
}

// HasOpen reports whether key currently has an open trade.
func (m *Manager) HasOpen(key types.Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.openTrades[key]
	return ok
}

// Open returns the open trade for key, if any.
func (m *Manager) Open(key types.Key) (*types.Trade, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.openTrades[key]
	return t, ok
}

// OnCooldown reports whether key is suppressed from re-entry right now.
func (m *Manager) OnCooldown(key types.Key, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.cooldowns[key]
	return ok && until.After(now)
}

// EverTraded implements the one-shot-per-market rule by delegating to Store.
func (m *Manager) EverTraded(key types.Key) (bool, error) {
	return m.store.HasAnyTrade(key)
}

// AdmitSpend implements the rolling spend window: resets if the window has
// elapsed, then admits stake iff the running total would not exceed the
// cap. On admission, stake is added to the running total.
func (m *Manager) AdmitSpend(stake float64, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.windowStart.IsZero() || now.Sub(m.windowStart) > m.cfg.SpendWindowDuration {
		m.windowStart = now
		m.spentSoFar = 0
	}

	if m.spentSoFar+stake > m.cfg.SpendCap {
		return false
	}
	m.spentSoFar += stake
	return true
}

// OpenTrade persists and caches a newly opened trade.
func (m *Manager) OpenTrade(t *types.Trade) error {
	key := types.Key{StrategyID: t.StrategyID, ConditionID: t.ConditionID}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.OpenTrade(t); err != nil {
		return err
	}
	m.openTrades[key] = t
	return nil
}

// CloseTrade persists the close and evicts the key from cache. If the
// close was a RESOLUTION_EXIT, arms a cooldown on the same key.
func (m *Manager) CloseTrade(t *types.Trade, now time.Time) error {
	key := types.Key{StrategyID: t.StrategyID, ConditionID: t.ConditionID}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.CloseTrade(t); err != nil {
		return err
	}
	delete(m.openTrades, key)

	if t.ExitReason == types.ExitResolution {
		m.cooldowns[key] = now.Add(m.cfg.CooldownDuration)
	}
	return nil
}
