package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"quarterbinary/pkg/types"
)

// fixture mirrors the YAML shape Config.Load expects. Building fixtures as
// structs and marshaling them with yaml.v3, rather than hand-editing string
// literals, keeps every test config syntactically valid and lets a single
// field change (e.g. a bad direction) stay obvious at the call site.
type fixture struct {
	Mode       string            `yaml:"mode"`
	Collection fixtureCollection `yaml:"collection"`
	Strategies []fixtureStrategy `yaml:"strategies"`
	Bankroll   fixtureBankroll   `yaml:"bankroll"`
	Store      fixtureStore      `yaml:"store"`
}

type fixtureCollection struct {
	PollInterval int      `yaml:"pollInterval"`
	Assets       []string `yaml:"assets"`
}

type fixtureStrategy struct {
	ID        string  `yaml:"id"`
	Tier      string  `yaml:"tier,omitempty"`
	Entry     float64 `yaml:"entry"`
	Exit      float64 `yaml:"exit"`
	Direction string  `yaml:"direction"`
	Enabled   bool    `yaml:"enabled,omitempty"`
}

type fixtureBankroll struct {
	Initial       float64 `yaml:"initial"`
	KellyFraction float64 `yaml:"kellyFraction"`
	MinBetPct     float64 `yaml:"minBetPct"`
	MaxBetPct     float64 `yaml:"maxBetPct"`
}

type fixtureStore struct {
	DatabasePath string `yaml:"databasePath"`
}

// defaultFixture is the baseline valid configuration every test starts from
// and mutates in place.
func defaultFixture() fixture {
	return fixture{
		Mode: "paper",
		Collection: fixtureCollection{
			PollInterval: 5,
			Assets:       []string{"BTC", "ETH"},
		},
		Strategies: []fixtureStrategy{
			{ID: "deep_10_20", Tier: "deep", Entry: 0.10, Exit: 0.20, Direction: "normal", Enabled: true},
		},
		Bankroll: fixtureBankroll{Initial: 100, KellyFraction: 0.5, MinBetPct: 0.03, MaxBetPct: 0.15},
		Store:    fixtureStore{DatabasePath: "test.db"},
	}
}

// writeFixture marshals f to YAML and writes it to a temp config file,
// returning the path Load() should read.
func writeFixture(t *testing.T, f fixture) string {
	t.Helper()

	body, err := yaml.Marshal(f)
	if err != nil {
		t.Fatalf("yaml.Marshal fixture: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAndValidate(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, defaultFixture())
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Exits.ResolutionExitThresholdSeconds != 120 {
		t.Fatalf("expected default resolutionExitThreshold 120, got %d", cfg.Exits.ResolutionExitThresholdSeconds)
	}
	if len(cfg.Strategies) != 1 || cfg.Strategies[0].ID != "deep_10_20" {
		t.Fatalf("unexpected strategies: %+v", cfg.Strategies)
	}
}

func TestValidateRejectsBadDirection(t *testing.T) {
	t.Parallel()

	f := defaultFixture()
	f.Strategies = []fixtureStrategy{
		{ID: "bad", Entry: 0.20, Exit: 0.10, Direction: "normal"},
	}
	path := writeFixture(t, f)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected Validate() to reject normal direction with exit <= entry")
	}
}

func TestValidateRequiresLiveCredentials(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, defaultFixture())
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.Mode = types.ModeLive
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected Validate() to require credentials in live mode")
	}
}
