// Package registry holds the live set of strategies: loaded from config,
// reconciled against the store on startup, and exposed to the decision
// loop in a stable id order.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"quarterbinary/pkg/types"
)

// store is the subset of the durable store the registry needs.
type store interface {
	UpsertStrategy(cfg types.StrategyConfig) error
	LoadStrategies() ([]types.Strategy, error)
}

// Registry is the reconciled, query-ready strategy set.
type Registry struct {
	mu         sync.RWMutex
	byID       map[string]types.Strategy
	orderedIDs []string
}

// Load reconciles cfgs against the store: every configured strategy is
// upserted (Store's persisted status always wins over Config's enabled
// default), then the full persisted set is read back so status changes
// made out-of-band (e.g. promoted via an operator tool) are honored too.
func Load(s store, cfgs []types.StrategyConfig) (*Registry, error) {
	for _, cfg := range cfgs {
		if err := s.UpsertStrategy(cfg); err != nil {
			return nil, fmt.Errorf("registry: upsert %s: %w", cfg.ID, err)
		}
	}

	loaded, err := s.LoadStrategies()
	if err != nil {
		return nil, fmt.Errorf("registry: load strategies: %w", err)
	}

	r := &Registry{byID: make(map[string]types.Strategy, len(loaded))}
	for _, st := range loaded {
		r.byID[st.ID] = st
		r.orderedIDs = append(r.orderedIDs, st.ID)
	}
	sort.Strings(r.orderedIDs)
	return r, nil
}

// Ordered returns every strategy in stable id order, the order
// DecisionEngine must use to break ties within a single tick.
func (r *Registry) Ordered() []types.Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.Strategy, 0, len(r.orderedIDs))
	for _, id := range r.orderedIDs {
		out = append(out, r.byID[id])
	}
	return out
}

// Get returns a single strategy by id.
func (r *Registry) Get(id string) (types.Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.byID[id]
	return st, ok
}

// RecordTrade updates the in-memory performance cache after a trade
// closes, keeping the registry's view consistent with what Store just
// persisted without requiring a full reload.
func (r *Registry) RecordTrade(id string, pnl float64, isWin bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.byID[id]
	if !ok {
		return
	}
	st.TotalTrades++
	if isWin {
		st.Wins++
	}
	st.TotalPnL += pnl
	r.byID[id] = st
}
