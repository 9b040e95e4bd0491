package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gauntletlabs/gauntlet/config/features"
	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/audit"
	"github.com/gauntletlabs/gauntlet/platform/backtest"
	"github.com/gauntletlabs/gauntlet/platform/db/iface"
	dbtest "github.com/gauntletlabs/gauntlet/platform/db/testing"
	"github.com/gauntletlabs/gauntlet/platform/evolution"
	"github.com/gauntletlabs/gauntlet/platform/idempotency"
	"github.com/gauntletlabs/gauntlet/platform/risk"
	"github.com/gauntletlabs/gauntlet/platform/stage"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/gauntletlabs/gauntlet/testutil/assert"
	"github.com/gauntletlabs/gauntlet/testutil/require"
	"github.com/shopspring/decimal"
)

func setupService(t *testing.T) (iface.Database, *Service) {
	t.Helper()
	database := dbtest.SetupDB(t)
	audits := audit.New(database)
	engine := stage.NewEngine(database)
	svc := NewService(&Config{
		Addr:        "127.0.0.1:0",
		Database:    database,
		Audit:       audits,
		Executor:    backtest.NewExecutor(database, nil, nil),
		Evolution:   evolution.NewEngine(database, audits, nil),
		Governance:  stage.NewGovernance(database, engine, audits),
		Fleet:       risk.NewFleetEngine(database, audits, nil),
		Idempotency: idempotency.NewMemoryStore(),
	})
	return database, svc
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

const createBody = `{
	"name": "MES Breakout Alpha",
	"symbol": "MES",
	"riskConfig": {"stopLossTicks": 8, "maxPositionSize": 1},
	"requestedBy": "u1"
}`

func TestCreateBot_IdempotentRetry(t *testing.T) {
	database, svc := setupService(t)
	router := svc.Router()

	headers := map[string]string{idempotency.HeaderKey: "k1"}
	first := doJSON(t, router, http.MethodPost, "/api/bots/create", createBody, headers)
	require.Equal(t, http.StatusCreated, first.Code)
	var created createBotResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &created))
	assert.Equal(t, types.StageTrials, created.Stage)

	// Same key, same body: replay, no second bot.
	second := doJSON(t, router, http.MethodPost, "/api/bots/create", createBody, headers)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(idempotency.HeaderReplayed))
	var replayed createBotResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &replayed))
	assert.Equal(t, created.ID, replayed.ID)

	bots, err := database.Bots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, len(bots), "the effect must happen exactly once")

	// Same key, different body: conflict.
	third := doJSON(t, router, http.MethodPost, "/api/bots/create",
		strings.Replace(createBody, "Alpha", "Beta", 1), headers)
	assert.Equal(t, http.StatusUnprocessableEntity, third.Code)
}

func TestCreateBot_ValidationBlocks(t *testing.T) {
	_, svc := setupService(t)
	body := `{"name": "Zephyr Strategy 42", "symbol": "BTC", "riskConfig": {}}`
	w := doJSON(t, svc.Router(), http.MethodPost, "/api/bots/create", body, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var failure validationFailure
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &failure))
	assert.NotEqual(t, 0, len(failure.Findings))
}

func TestCreateBot_AppendsAuditEntry(t *testing.T) {
	database, svc := setupService(t)
	w := doJSON(t, svc.Router(), http.MethodPost, "/api/bots/create", createBody, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	entry, err := database.LatestAuditEntry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, audit.EventBotCreated, entry.EventType)
	assert.Equal(t, "u1", entry.ActorID)
}

func TestGovernance_DualControlOverHTTP(t *testing.T) {
	database, svc := setupService(t)
	router := svc.Router()
	ctx := context.Background()
	now := time.Now().UTC()

	wr, pf, sh, dd := 55.0, 1.6, 1.2, 8.0
	exp := decimal.NewFromInt(25)
	gen := &types.Generation{
		ID: "b42-g1", BotID: "b42", Number: 1, StrategyConfig: types.Config{},
		BaselineValid: true, CreatedAt: now,
		PerformanceSnapshot: &types.BaselineMetrics{
			TotalTrades: 80, WinRate: &wr, ProfitFactor: &pf, Sharpe: &sh, MaxDrawdownPct: &dd, Expectancy: &exp,
		},
	}
	require.NoError(t, database.SaveGeneration(ctx, gen))
	require.NoError(t, database.SaveBot(ctx, &types.Bot{
		ID: "b42", Name: "MES Breakout 42", Symbol: "MES", Stage: types.StageCanary,
		SessionMode: types.SessionRTH, CurrentGenerationID: gen.ID,
		StageEnteredAt: now.Add(-10 * 24 * time.Hour), CreatedAt: now, UpdatedAt: now,
	}))

	w := doJSON(t, router, http.MethodPost, "/api/governance/request",
		`{"botId": "b42", "requestedBy": "u1", "justification": "ready"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var row types.GovernanceApproval
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &row))

	// The requester cannot approve their own request.
	w = doJSON(t, router, http.MethodPost, "/api/governance/"+row.ID+"/approve",
		`{"userId": "u1"}`, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/governance/"+row.ID+"/approve",
		`{"userId": "u2", "notes": "verified"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	bot, err := database.Bot(ctx, "b42")
	require.NoError(t, err)
	assert.Equal(t, types.StageLive, bot.Stage)
}

func TestRunBacktest_OverHTTP(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	params.UseMinimalConfig()
	resetCfg := features.InitWithReset(&features.Flags{AllowSimFallback: true})
	defer resetCfg()

	_, svc := setupService(t)
	router := svc.Router()
	w := doJSON(t, router, http.MethodPost, "/api/bots/create", createBody, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var created createBotResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, router, http.MethodPost, "/api/bots/"+created.ID+"/backtest",
		`{"timeframe": "5m", "start": "2024-01-02", "end": "2024-01-06"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// The endpoint answers with the persisted row whether the run produced
	// trades or failed closed; either way the session must be attributable.
	var sess types.BacktestSession
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.Equal(t, created.ID, sess.BotID)
	assert.NotEqual(t, "", sess.ID)
	if sess.Status != types.SessionCompleted {
		require.Equal(t, types.SessionFailed, sess.Status)
		require.NotNil(t, sess.ErrorClassification)
	}
}

func TestEvolveBot_OverHTTP(t *testing.T) {
	database, svc := setupService(t)
	router := svc.Router()
	ctx := context.Background()
	now := time.Now().UTC()

	// A losing generation with enough trades to judge lands HIGH on the
	// decision ladder and must breed a successor.
	sh, pf, wr, dd := -0.3, 0.8, 30.0, 9.0
	gen := &types.Generation{
		ID: "b7-g1", BotID: "b7", Number: 1, StrategyConfig: types.Config{},
		CreatedAt: now,
		PerformanceSnapshot: &types.BaselineMetrics{
			TotalTrades: 60, Sharpe: &sh, ProfitFactor: &pf, WinRate: &wr, MaxDrawdownPct: &dd,
		},
	}
	require.NoError(t, database.SaveGeneration(ctx, gen))
	require.NoError(t, database.SaveBot(ctx, &types.Bot{
		ID: "b7", Name: "MES Breakout 7", Symbol: "MES", ArchetypeID: "breakout",
		Stage: types.StagePaper, SessionMode: types.SessionRTH,
		CurrentGenerationID: gen.ID, CreatedAt: now, UpdatedAt: now,
	}))

	w := doJSON(t, router, http.MethodPost, "/api/bots/b7/evolve", "{}", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out evolution.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, evolution.PriorityHigh, out.Decision.Priority)
	require.NotNil(t, out.Generation)
	assert.Equal(t, 2, out.Generation.Number)
	assert.Equal(t, true, len(out.Changed) > 0)

	// The bot now points at the bred generation.
	bot, err := database.Bot(ctx, "b7")
	require.NoError(t, err)
	assert.Equal(t, out.Generation.ID, bot.CurrentGenerationID)

	w = doJSON(t, router, http.MethodPost, "/api/bots/missing/evolve", "{}", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestFleetStatus(t *testing.T) {
	_, svc := setupService(t)
	w := doJSON(t, svc.Router(), http.MethodGet, "/api/fleet/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "NORMAL", out["tier"])
	assert.Equal(t, true, out["canOpen"])
}
