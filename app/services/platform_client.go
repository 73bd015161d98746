// Package services contains the engine's outward-facing adapters: the ad
// platform HTTP client, the session store, and the Telegram sender.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tokopulse/tokopulse/config"
	"github.com/tokopulse/tokopulse/engine"
)

// HTTPPlatformClient implements engine.PlatformClient against the seller ads
// API. Every call authenticates with the shop's session cookie; the platform
// has no server-side API keys for this surface.
type HTTPPlatformClient struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
}

func NewHTTPPlatformClient(cfg config.PlatformConfig) *HTTPPlatformClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPPlatformClient{
		BaseURL:    strings.TrimRight(cfg.APIDomain, "/"),
		UserAgent:  cfg.UserAgent,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// ----- dashboard read -----

type dashboardRequest struct {
	ShopID int64 `json:"shop_id"`
	Page   int   `json:"page"`
	Limit  int   `json:"limit"`
}

type campaignVM struct {
	CampaignID  int64   `json:"campaign_id"`
	Name        string  `json:"name"`
	State       string  `json:"state"`
	DailyBudget int64   `json:"daily_budget"`
	Cost        float64 `json:"cost"`
	Impressions float64 `json:"impression"`
	Clicks      float64 `json:"click"`
	CTR         float64 `json:"ctr"`
	CPC         float64 `json:"cpc"`
	ROAS        float64 `json:"roas"`
	Conversions float64 `json:"conversion"`
	Balance     float64 `json:"balance"`
}

type dashboardResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		Campaigns []campaignVM `json:"campaigns"`
		Total     int          `json:"total"`
	} `json:"data"`
}

const dashboardPageSize = 50

// FetchAllCampaigns reads the shop's full ads dashboard, paging until the
// platform reports no more rows. The result keys by campaign id.
func (c *HTTPPlatformClient) FetchAllCampaigns(ctx context.Context, session *engine.TokoSession) (map[int64]engine.CampaignSnapshot, error) {
	snaps := make(map[int64]engine.CampaignSnapshot)

	for page := 1; ; page++ {
		var dr dashboardResponse
		req := dashboardRequest{ShopID: session.TokoID, Page: page, Limit: dashboardPageSize}
		if err := c.postJSON(ctx, session, "/v2/ads/dashboard", req, &dr); err != nil {
			return nil, err
		}
		if !dr.Success {
			return nil, fmt.Errorf("platform: dashboard error: %s", dr.Message)
		}

		for _, vm := range dr.Data.Campaigns {
			snaps[vm.CampaignID] = engine.CampaignSnapshot{
				CampaignID:  vm.CampaignID,
				Name:        vm.Name,
				State:       vm.State,
				DailyBudget: vm.DailyBudget,
				Cost:        vm.Cost,
				Impressions: vm.Impressions,
				Clicks:      vm.Clicks,
				CTR:         vm.CTR,
				CPC:         vm.CPC,
				ROAS:        vm.ROAS,
				Conversions: vm.Conversions,
				Balance:     vm.Balance,
			}
		}

		if len(dr.Data.Campaigns) < dashboardPageSize {
			return snaps, nil
		}
	}
}

// ----- mutations -----

type mutationRequest struct {
	ShopID     int64  `json:"shop_id"`
	CampaignID int64  `json:"campaign_id"`
	Budget     *int64 `json:"daily_budget,omitempty"`
}

type mutationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Mutate applies one budget or state change to one campaign. A reachable
// platform answering success=false is NOT a transport error: the refusal and
// its message come back in the MutationResult so the caller can retry and log
// the platform's own words.
func (c *HTTPPlatformClient) Mutate(ctx context.Context, session *engine.TokoSession, op engine.MutationOp, campaignID int64, params engine.MutationParams) (engine.MutationResult, error) {
	path, err := mutationPath(op)
	if err != nil {
		return engine.MutationResult{}, err
	}

	req := mutationRequest{ShopID: session.TokoID, CampaignID: campaignID}
	if op == engine.OpEditBudget {
		if params.Budget == nil {
			return engine.MutationResult{}, fmt.Errorf("platform: %s requires a budget", op)
		}
		req.Budget = params.Budget
	}

	var mr mutationResponse
	if err := c.postJSON(ctx, session, path, req, &mr); err != nil {
		return engine.MutationResult{}, err
	}
	return engine.MutationResult{Success: mr.Success, Message: mr.Message}, nil
}

func mutationPath(op engine.MutationOp) (string, error) {
	switch op {
	case engine.OpEditBudget:
		return "/v2/ads/budget", nil
	case engine.OpPause:
		return "/v2/ads/pause", nil
	case engine.OpResume:
		return "/v2/ads/resume", nil
	default:
		return "", fmt.Errorf("platform: unsupported mutation %q", op)
	}
}

// ----- HTTP helpers -----

func (c *HTTPPlatformClient) postJSON(ctx context.Context, session *engine.TokoSession, path string, payload any, out any) error {
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", session.Cookie)
	ua := session.UserAgent
	if ua == "" {
		ua = c.UserAgent
	}
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("platform: status %d for %s", resp.StatusCode, path)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
