package vault

import (
	"encoding/json"
	"fmt"
	"os"
)

// state is the on-disk shape of a Bankroll snapshot.
type state struct {
	Bankroll     float64 `json:"bankroll"`
	Vault        float64 `json:"vault"`
	PeakEquity   float64 `json:"peak_equity"`
	PeakBankroll float64 `json:"peak_bankroll"`
}

// saveSnapshot atomically persists s to path: write to a .tmp file, then
// rename over the target, so a crash mid-write never leaves a corrupt
// snapshot. A blank path disables snapshotting.
func saveSnapshot(path string, s state) error {
	if path == "" {
		return nil
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("vault: marshal snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("vault: write snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

// loadSnapshot restores a previously saved state from path. ok is false if
// no snapshot exists yet (fresh start) or snapshotting is disabled.
func loadSnapshot(path string) (s state, ok bool, err error) {
	if path == "" {
		return state{}, false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return state{}, false, nil
		}
		return state{}, false, fmt.Errorf("vault: read snapshot: %w", err)
	}

	if err := json.Unmarshal(data, &s); err != nil {
		return state{}, false, fmt.Errorf("vault: unmarshal snapshot: %w", err)
	}
	return s, true, nil
}
