package registry

import (
	"testing"

	"quarterbinary/pkg/types"
)

type fakeStore struct {
	upserted []types.StrategyConfig
	rows     []types.Strategy
}

func (f *fakeStore) UpsertStrategy(cfg types.StrategyConfig) error {
	f.upserted = append(f.upserted, cfg)
	status := types.StrategyTesting
	if cfg.Enabled {
		status = types.StrategyActive
	}
	for i, r := range f.rows {
		if r.ID == cfg.ID {
			f.rows[i].Tier = cfg.Tier
			f.rows[i].EntryThreshold = cfg.EntryThreshold
			f.rows[i].ExitThreshold = cfg.ExitThreshold
			f.rows[i].Direction = cfg.Direction
			return nil
		}
	}
	f.rows = append(f.rows, types.Strategy{
		ID: cfg.ID, Tier: cfg.Tier, EntryThreshold: cfg.EntryThreshold,
		ExitThreshold: cfg.ExitThreshold, Direction: cfg.Direction, Status: status,
	})
	return nil
}

func (f *fakeStore) LoadStrategies() ([]types.Strategy, error) {
	return f.rows, nil
}

func TestLoadReconcilesAndOrdersStably(t *testing.T) {
	t.Parallel()
	s := &fakeStore{}
	cfgs := []types.StrategyConfig{
		{ID: "zeta", EntryThreshold: 0.1, ExitThreshold: 0.2, Direction: types.DirectionNormal, Enabled: true},
		{ID: "alpha", EntryThreshold: 0.1, ExitThreshold: 0.2, Direction: types.DirectionNormal, Enabled: true},
	}

	r, err := Load(s, cfgs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ordered := r.Ordered()
	if len(ordered) != 2 || ordered[0].ID != "alpha" || ordered[1].ID != "zeta" {
		t.Fatalf("expected stable alpha-before-zeta order, got %+v", ordered)
	}
}

func TestLoadHonorsPersistedStatusOverConfigDefault(t *testing.T) {
	t.Parallel()
	s := &fakeStore{rows: []types.Strategy{
		{ID: "deep_10_20", Status: types.StrategyDisabled},
	}}
	cfgs := []types.StrategyConfig{
		{ID: "deep_10_20", EntryThreshold: 0.1, ExitThreshold: 0.2, Direction: types.DirectionNormal, Enabled: true},
	}

	r, err := Load(s, cfgs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	st, ok := r.Get("deep_10_20")
	if !ok {
		t.Fatalf("expected strategy to be present")
	}
	if st.Status != types.StrategyDisabled {
		t.Fatalf("expected persisted disabled status to win, got %s", st.Status)
	}
	if st.Admits() {
		t.Fatalf("expected disabled strategy not to admit entries")
	}
}

func TestRecordTradeUpdatesCache(t *testing.T) {
	t.Parallel()
	s := &fakeStore{}
	r, err := Load(s, []types.StrategyConfig{
		{ID: "deep_10_20", EntryThreshold: 0.1, ExitThreshold: 0.2, Direction: types.DirectionNormal, Enabled: true},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	r.RecordTrade("deep_10_20", 5.0, true)
	st, _ := r.Get("deep_10_20")
	if st.TotalTrades != 1 || st.Wins != 1 || st.TotalPnL != 5.0 {
		t.Fatalf("unexpected strategy state after RecordTrade: %+v", st)
	}
}
