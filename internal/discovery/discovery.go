// Package discovery finds currently active short-duration binary markets
// for a configured asset set by polling the venue's Gamma market-listing
// API and filtering on resolution deadline, orderability, and the
// presence of both outcome token ids.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"quarterbinary/internal/ratelimit"
	"quarterbinary/pkg/types"
)

// gammaMarket is the JSON shape returned by the venue's market-listing API.
type gammaMarket struct {
	ID              string `json:"id"`
	Question        string `json:"question"`
	ConditionID     string `json:"conditionId"`
	Slug            string `json:"slug"`
	Active          bool   `json:"active"`
	Closed          bool   `json:"closed"`
	AcceptingOrders bool   `json:"acceptingOrders"`
	EnableOrderBook bool   `json:"enableOrderBook"`
	EndDate         string `json:"endDate"`
	ClobTokenIds    string `json:"clobTokenIds"`
}

// Discovery queries the venue for active markets matching the configured
// asset set and tags each with its resolution deadline and token ids.
type Discovery struct {
	http       *resty.Client
	limiter    *ratelimit.Bucket
	assets     []string
	marketType string
	logger     *slog.Logger
}

// New builds a Discovery pointed at baseURL for the given asset tags.
// Listing calls are throttled to a modest burst/refill so a large asset
// set never floods the venue's market-listing endpoint on a refill.
func New(baseURL string, assets []string, marketType string, logger *slog.Logger) *Discovery {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)

	return &Discovery{
		http:       client,
		limiter:    ratelimit.New(10, 2),
		assets:     assets,
		marketType: marketType,
		logger:     logger.With("component", "discovery"),
	}
}

// Discover returns every currently active market, across the configured
// asset set, whose resolution deadline is strictly in the future and
// which carries both token ids. Stale listings (deadline already passed)
// and markets missing token ids are rejected silently.
func (d *Discovery) Discover(ctx context.Context) ([]types.Market, error) {
	var out []types.Market
	now := time.Now()

	for _, asset := range d.assets {
		raw, err := d.fetchMarketsForAsset(ctx, asset)
		if err != nil {
			d.logger.Error("discover failed", "asset", asset, "error", err)
			continue
		}

		for _, gm := range raw {
			m, ok := d.toMarket(gm, asset, now)
			if !ok {
				continue
			}
			out = append(out, m)
		}
	}

	return out, nil
}

func (d *Discovery) fetchMarketsForAsset(ctx context.Context, asset string) ([]gammaMarket, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("fetch markets for %s: %w", asset, err)
	}

	var page []gammaMarket
	resp, err := d.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"active":      "true",
			"closed":      "false",
			"series_type": d.marketType,
			"tag":         strings.ToLower(asset),
			"limit":       "100",
		}).
		SetResult(&page).
		Get("/markets")
	if err != nil {
		return nil, fmt.Errorf("fetch markets for %s: %w", asset, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("fetch markets for %s: status %d", asset, resp.StatusCode())
	}
	return page, nil
}

func (d *Discovery) toMarket(gm gammaMarket, asset string, now time.Time) (types.Market, bool) {
	if !gm.Active || gm.Closed || !gm.AcceptingOrders || !gm.EnableOrderBook {
		return types.Market{}, false
	}

	deadline, err := time.Parse(time.RFC3339, gm.EndDate)
	if err != nil || !deadline.After(now) {
		return types.Market{}, false
	}

	yesToken, noToken, ok := parseTokenIDs(gm.ClobTokenIds)
	if !ok {
		return types.Market{}, false
	}

	return types.Market{
		ConditionID:        gm.ConditionID,
		Asset:              asset,
		ResolutionDeadline: deadline,
		YesTokenID:         yesToken,
		NoTokenID:          noToken,
	}, true
}

func parseTokenIDs(raw string) (yes, no string, ok bool) {
	if raw == "" {
		return "", "", false
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil || len(ids) < 2 {
		return "", "", false
	}
	return ids[0], ids[1], true
}
