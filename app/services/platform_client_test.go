package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokopulse/tokopulse/config"
	"github.com/tokopulse/tokopulse/engine"
)

func testPlatformClient(url string) *HTTPPlatformClient {
	return NewHTTPPlatformClient(config.PlatformConfig{APIDomain: url, UserAgent: "tokopulse-test"})
}

func sessionFor(tokoID int64) *engine.TokoSession {
	return &engine.TokoSession{TokoID: tokoID, Cookie: "sid=secret"}
}

func TestFetchAllCampaigns(t *testing.T) {
	t.Run("SingleSmallPage", func(t *testing.T) {
		var gotCookie string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/v2/ads/dashboard", r.URL.Path)
			gotCookie = r.Header.Get("Cookie")

			fmt.Fprint(w, `{"success":true,"data":{"campaigns":[
				{"campaign_id":1001,"name":"promo","state":"ongoing","daily_budget":3000000000,"roas":0.8},
				{"campaign_id":1002,"name":"brand","state":"paused","cost":150000}
			],"total":2}}`)
		}))
		defer srv.Close()

		snaps, err := testPlatformClient(srv.URL).FetchAllCampaigns(context.Background(), sessionFor(42))
		require.NoError(t, err)
		require.Len(t, snaps, 2)
		assert.Equal(t, "sid=secret", gotCookie, "session cookie must authenticate the call")
		assert.Equal(t, int64(3000000000), snaps[1001].DailyBudget)
		assert.Equal(t, 0.8, snaps[1001].ROAS)
		assert.Equal(t, "paused", snaps[1002].State)
	})

	t.Run("PagesUntilShortPage", func(t *testing.T) {
		var pages []int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Page  int `json:"page"`
				Limit int `json:"limit"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			pages = append(pages, req.Page)

			n := req.Limit // full first page
			if req.Page == 2 {
				n = 3 // short second page ends the loop
			}
			campaigns := make([]map[string]any, 0, n)
			for i := 0; i < n; i++ {
				campaigns = append(campaigns, map[string]any{"campaign_id": (req.Page * 1000) + i})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"data":    map[string]any{"campaigns": campaigns},
			})
		}))
		defer srv.Close()

		snaps, err := testPlatformClient(srv.URL).FetchAllCampaigns(context.Background(), sessionFor(42))
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, pages)
		assert.Len(t, snaps, 53)
	})

	t.Run("PlatformRefusalIsError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"success":false,"message":"session expired"}`)
		}))
		defer srv.Close()

		_, err := testPlatformClient(srv.URL).FetchAllCampaigns(context.Background(), sessionFor(42))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "session expired")
	})

	t.Run("HTTPErrorStatus", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := testPlatformClient(srv.URL).FetchAllCampaigns(context.Background(), sessionFor(42))
		assert.Error(t, err)
	})
}

func TestMutate(t *testing.T) {
	t.Run("EditBudgetSendsMinorUnits", func(t *testing.T) {
		var gotPath string
		var gotBudget int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			var req struct {
				CampaignID int64 `json:"campaign_id"`
				Budget     int64 `json:"daily_budget"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			gotBudget = req.Budget
			fmt.Fprint(w, `{"success":true}`)
		}))
		defer srv.Close()

		budget := int64(3000000000)
		result, err := testPlatformClient(srv.URL).Mutate(context.Background(), sessionFor(42),
			engine.OpEditBudget, 1001, engine.MutationParams{Budget: &budget})
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "/v2/ads/budget", gotPath)
		assert.Equal(t, budget, gotBudget)
	})

	t.Run("RefusalReturnsResultNotError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"success":false,"message":"insufficient balance"}`)
		}))
		defer srv.Close()

		result, err := testPlatformClient(srv.URL).Mutate(context.Background(), sessionFor(42),
			engine.OpPause, 1001, engine.MutationParams{})
		require.NoError(t, err, "a reachable platform saying no is not a transport error")
		assert.False(t, result.Success)
		assert.Equal(t, "insufficient balance", result.Message)
	})

	t.Run("EditBudgetRequiresBudget", func(t *testing.T) {
		_, err := testPlatformClient("http://unused").Mutate(context.Background(), sessionFor(42),
			engine.OpEditBudget, 1001, engine.MutationParams{})
		assert.Error(t, err)
	})

	t.Run("UnsupportedOp", func(t *testing.T) {
		_, err := testPlatformClient("http://unused").Mutate(context.Background(), sessionFor(42),
			engine.MutationOp("archive"), 1001, engine.MutationParams{})
		assert.Error(t, err)
	})
}
