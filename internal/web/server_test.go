package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldvault/internal/state"
	"github.com/elys-network/yieldvault/internal/types"
)

type stubVault struct {
	summaryErr error
}

func (s stubVault) Summary(context.Context) (types.VaultSummary, error) {
	if s.summaryErr != nil {
		return types.VaultSummary{}, s.summaryErr
	}
	return types.VaultSummary{
		Asset:         "USDC",
		TotalAssets:   sdkmath.NewInt(10_063),
		Reserve:       sdkmath.NewInt(1_000),
		TotalDeposits: sdkmath.NewInt(10_000),
		TotalShares:   sdkmath.NewInt(10_000),
		SharePrice:    sdkmath.LegacyMustNewDecFromStr("1.0063"),
	}, nil
}

func (stubVault) GetAllStrategiesInfo(context.Context) []types.StrategyInfo {
	return []types.StrategyInfo{
		{ID: 1, Name: "lendA", TotalAssets: sdkmath.NewInt(6_363), APY: 500, IsActive: true},
		{ID: 2, Name: "lendB", TotalAssets: sdkmath.NewInt(2_700), APY: 300, Error: "market down"},
	}
}

func newStore(t *testing.T) *state.Store {
	t.Helper()
	ctx := context.Background()
	store, err := state.Open(ctx, state.DBConfig{Driver: state.DriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.EnsureSchema(ctx))
	return store
}

func saveCycle(t *testing.T, store *state.Store, n uint64, errMsg string) {
	t.Helper()
	_, err := store.SaveCycleSnapshot(context.Background(), types.CycleSnapshot{
		CycleNumber:  n,
		CycleID:      "cycle-" + strconv.FormatUint(n, 10),
		Timestamp:    time.Now(),
		HarvestYield: sdkmath.NewInt(int64(n) * 10),
		Error:        errMsg,
	})
	require.NoError(t, err)
}

func get(t *testing.T, ws *WebServer, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestStrategiesEndpoint(t *testing.T) {
	ws := NewWebServer("", stubVault{}, nil)

	rec, body := get(t, ws, "/api/strategies")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, float64(2), body["count"])
	strategies := body["strategies"].([]interface{})
	first := strategies[0].(map[string]interface{})
	assert.Equal(t, "lendA", first["name"])
	assert.Equal(t, "6363", first["total_assets"])
	second := strategies[1].(map[string]interface{})
	assert.Equal(t, "market down", second["error"])

	rec, body = get(t, ws, "/api/strategies/2")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "lendB", body["name"])

	rec, _ = get(t, ws, "/api/strategies/9")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVaultSummaryEndpoint(t *testing.T) {
	rec, body := get(t, NewWebServer("", stubVault{}, nil), "/api/vault/summary")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "USDC", body["asset"])
	assert.Equal(t, "10063", body["total_assets"])
	assert.Equal(t, "1.006300000000000000", body["share_price"])

	rec, body = get(t, NewWebServer("", stubVault{summaryErr: errors.New("token down")}, nil), "/api/vault/summary")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, true, body["error"])
}

func TestCyclesEndpoints(t *testing.T) {
	store := newStore(t)
	for n := uint64(1); n <= 3; n++ {
		saveCycle(t, store, n, "")
	}
	ws := NewWebServer("", stubVault{}, store)

	rec, body := get(t, ws, "/api/cycles?limit=2")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["count"])
	cycles := body["cycles"].([]interface{})
	assert.Equal(t, float64(3), cycles[0].(map[string]interface{})["cycle_number"])

	rec, _ = get(t, ws, "/api/cycles?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = get(t, ws, "/api/cycles?limit=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = get(t, ws, "/api/cycles/latest")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cycle-3", body["cycle_id"])

	rec, body = get(t, ws, "/api/performance")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), body["total_cycles"])
	assert.Equal(t, "60", body["total_yield"])
}

func TestCyclesWithoutStore(t *testing.T) {
	ws := NewWebServer("", stubVault{}, nil)
	for _, path := range []string{"/api/cycles", "/api/cycles/latest", "/api/performance"} {
		rec, _ := get(t, ws, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestHealth(t *testing.T) {
	store := newStore(t)
	saveCycle(t, store, 1, "")
	ws := NewWebServer("", stubVault{}, store)

	rec, body := get(t, ws, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", body["status"])
	status := body["vault_status"].(map[string]interface{})
	assert.Equal(t, true, status["database_healthy"])
	assert.Equal(t, float64(1), status["cycle_info"].(map[string]interface{})["current_cycle"])

	saveCycle(t, store, 2, "harvest: token down")
	rec, body = get(t, ws, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "DEGRADED", body["status"])

	rec, body = get(t, NewWebServer("", stubVault{summaryErr: errors.New("down")}, nil), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, body["vault_status"].(map[string]interface{})["vault_healthy"])
}

func TestCORSPreflight(t *testing.T) {
	ws := NewWebServer("", stubVault{}, nil)
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/strategies", nil))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
