package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tiergate/internal/middleware"
	"tiergate/internal/models"
	"tiergate/internal/pipeline"
	"tiergate/internal/pipeline/pipelinetest"
	"tiergate/internal/providers"
	"tiergate/internal/router"
	"tiergate/internal/routing"
	"tiergate/internal/store"
	"tiergate/internal/usage"
	"tiergate/internal/util"
)

const adminToken = "admin-secret"

// adminStore backs the admin handlers with the same in-memory policies the
// pipeline reads.
type adminStore struct {
	mu       sync.Mutex
	policies *pipelinetest.Policies
	logs     *pipelinetest.Logs
}

func (a *adminStore) ListUserPolicies(_ context.Context) ([]models.UserPolicy, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.UserPolicy
	for _, u := range a.policies.Users {
		out = append(out, *u)
	}
	return out, nil
}

func (a *adminStore) GetUserPolicy(ctx context.Context, userID string) (*models.UserPolicy, error) {
	u, err := a.policies.GetUserPolicy(ctx, userID)
	if err != nil {
		return nil, err
	}
	cp := *u
	return &cp, nil
}

func (a *adminStore) CreateUserPolicy(_ context.Context, p *models.UserPolicy) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.policies.Users[p.UserID]; ok {
		return store.ErrConflict
	}
	cp := *p
	a.policies.Users[p.UserID] = &cp
	return nil
}

func (a *adminStore) UpdateUserPolicy(_ context.Context, p *models.UserPolicy) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.policies.Users[p.UserID]; !ok {
		return store.ErrNotFound
	}
	cp := *p
	a.policies.Users[p.UserID] = &cp
	return nil
}

func (a *adminStore) UpdateUserTokenHash(_ context.Context, userID, hash string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.policies.Users[userID]
	if !ok {
		return store.ErrNotFound
	}
	u.TokenHash = hash
	return nil
}

func (a *adminStore) DeleteUserPolicy(_ context.Context, userID string, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.policies.Users[userID]; !ok {
		return store.ErrNotFound
	}
	delete(a.policies.Users, userID)
	return nil
}

func (a *adminStore) UpsertSystemPolicy(_ context.Context, p *models.SystemPolicy) error {
	cp := *p
	a.policies.System = &cp
	return nil
}

func (a *adminStore) ListRequestLogsPaginated(_ context.Context, page, pageSize int, f store.RequestLogFilters) (*store.PaginatedRequestLogs, error) {
	var data []models.RequestRecord
	for _, r := range a.logs.All() {
		if f.UserID != "" && r.UserID != f.UserID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		data = append(data, r)
	}
	return &store.PaginatedRequestLogs{Data: data, Total: len(data), Page: 1, PageSize: 100}, nil
}

type systemPolicies struct {
	*pipelinetest.Policies
	invalidated int
}

func (s *systemPolicies) Invalidate(context.Context) { s.invalidated++ }

type apiHarness struct {
	handler  http.Handler
	policies *pipelinetest.Policies
	system   *systemPolicies
	counters *usage.MemoryStore
	logs     *pipelinetest.Logs
	premium  *pipelinetest.Adapter
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	sys := &models.SystemPolicy{Key: "system", WarningThresholdPct: 80, CriticalThresholdPct: 95}
	cheapUser := &models.UserPolicy{
		UserID:            "alice",
		TokenHash:         util.HashString("usr_alice"),
		AllowedTiers:      []models.Tier{models.TierCheap},
		DefaultTier:       models.TierCheap,
		DailyRequestLimit: models.TierLimits{Cheap: 2},
	}
	policies := pipelinetest.NewPolicies(sys, cheapUser)
	counters := usage.NewMemoryStore()
	acct := usage.NewAccountant(counters)
	logs := &pipelinetest.Logs{}
	cheap := &pipelinetest.Adapter{Tier: models.TierCheap, Output: "hi from cheap", Usage: models.Usage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7}}
	premium := &pipelinetest.Adapter{Tier: models.TierPremium, Output: "hi from premium", Usage: models.Usage{PromptTokens: 3, CompletionTokens: 9, TotalTokens: 12}}
	names := map[models.Tier]string{models.TierCheap: "gemini-1.5-flash", models.TierPremium: "gemini-1.5-pro"}
	rt := router.New(providers.Table{models.TierCheap: cheap, models.TierPremium: premium}, names, acct, true, nil, nil)

	p := &pipeline.Pipeline{
		Users:      policies,
		System:     policies,
		Accountant: acct,
		Router:     rt,
		Logs:       logs,
		Alerts:     &pipelinetest.Alerts{},
		Auto:       routing.AutoConfig{PremiumCharsOver: 500},
		Location:   time.UTC,
		Logger:     zap.NewNop(),
	}
	system := &systemPolicies{Policies: policies}
	srv := &Server{
		Pipeline:          p,
		Store:             &adminStore{policies: policies, logs: logs},
		System:            system,
		Counters:          counters,
		Health:            rt,
		Location:          time.UTC,
		Logger:            zap.NewNop(),
		DefaultThresholds: models.Thresholds{WarningPct: 80, CriticalPct: 95},
	}
	r := chi.NewRouter()
	srv.Mount(r, middleware.WithUserToken(policies, zap.NewNop()), middleware.AdminToken(adminToken))
	return &apiHarness{handler: r, policies: policies, system: system, counters: counters, logs: logs, premium: premium}
}

func (h *apiHarness) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

// sseEvents returns the payload of every "data:" line.
func sseEvents(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	var out []string
	sc := bufio.NewScanner(rec.Body)
	for sc.Scan() {
		if line := sc.Text(); strings.HasPrefix(line, "data: ") {
			out = append(out, strings.TrimPrefix(line, "data: "))
		}
	}
	return out
}

var hello = []models.Message{{Role: "user", Content: "hello"}}

func TestChat_RequiresToken(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(http.MethodPost, "/v1/chat", "", models.ChatRequest{Messages: hello})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodPost, "/v1/chat", "usr_wrong", models.ChatRequest{Messages: hello})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChat_DowngradesCheapOnlyUser(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(http.MethodPost, "/v1/chat", "usr_alice", models.ChatRequest{Messages: hello, Tier: models.TierPremium})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp models.ChatResponse
	decode(t, rec, &resp)
	assert.Equal(t, "alice", resp.UserID)
	assert.Equal(t, models.TierCheap, resp.TierUsed)
	assert.Equal(t, models.ReasonDowngradeNotAllowed, resp.RoutingReason)
	assert.Equal(t, "hi from cheap", resp.Output)
	assert.Equal(t, int64(1), resp.UsageSnapshot.User.Day.Requests)
	assert.Equal(t, int64(2), resp.LimitsSnapshot.User.DailyRequestLimit)
	assert.Equal(t, 0, h.premium.Calls)
}

func TestChat_LimitDescriptorOn429(t *testing.T) {
	h := newAPIHarness(t)
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/chat", "usr_alice", models.ChatRequest{Messages: hello}).Code)
	}
	rec := h.do(http.MethodPost, "/v1/chat", "usr_alice", models.ChatRequest{Messages: hello})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, "limit_exceeded", body["error"])
	assert.Equal(t, "user", body["scope"])
	assert.Equal(t, "day", body["periodType"])
	assert.Equal(t, "requests", body["limitType"])
	assert.Equal(t, map[string]interface{}{"dailyRequestLimit": float64(2)}, body["limits"])
}

func TestChat_ValidationError(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(http.MethodPost, "/v1/chat", "usr_alice", models.ChatRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body models.ErrorBody
	decode(t, rec, &body)
	assert.NotEmpty(t, body.Message)
	assert.Empty(t, h.logs.All())
}

func TestChat_Stream(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(http.MethodPost, "/v1/chat", "usr_alice", models.ChatRequest{Messages: hello, Stream: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := sseEvents(t, rec)
	require.Len(t, events, 3)
	var chunk outputChunk
	require.NoError(t, json.Unmarshal([]byte(events[0]), &chunk))
	assert.Equal(t, "hi from cheap", chunk.Output)
	var resp models.ChatResponse
	require.NoError(t, json.Unmarshal([]byte(events[1]), &resp))
	assert.Equal(t, chunk.RequestID, resp.RequestID)
	assert.Equal(t, "[DONE]", events[2])
}

func TestChatCompletions_NonStream(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(http.MethodPost, "/v1/chat/completions", "usr_alice", models.ChatCompletionRequest{Model: "premium", Messages: hello})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp models.ChatCompletionResponse
	decode(t, rec, &resp)
	assert.Equal(t, "chat.completion", resp.Object)
	assert.True(t, strings.HasPrefix(resp.ID, "chatcmpl-req_"))
	assert.Equal(t, "downgrade_not_allowed", resp.SystemFingerprint)
	assert.Equal(t, "gemini-1.5-flash", resp.Model)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "assistant", resp.Choices[0].Message.Role)
	assert.Equal(t, "hi from cheap", resp.Choices[0].Message.Content)
	assert.Equal(t, "stop", resp.Choices[0].Finish)
	assert.Equal(t, models.OpenAIUsage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7}, resp.Usage)
}

func TestChatCompletions_AcceptsToolRole(t *testing.T) {
	h := newAPIHarness(t)
	msgs := []models.Message{{Role: "user", Content: "hi"}, {Role: "tool", Content: "x"}}
	rec := h.do(http.MethodPost, "/v1/chat/completions", "usr_alice", models.ChatCompletionRequest{Model: "cheap", Messages: msgs})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp models.ChatCompletionResponse
	decode(t, rec, &resp)
	assert.Equal(t, "hi from cheap", resp.Choices[0].Message.Content)
}

func TestChatCompletions_StreamSendsTwoChunks(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(http.MethodPost, "/v1/chat/completions", "usr_alice", models.ChatCompletionRequest{Model: "cheap", Messages: hello, Stream: true})
	require.Equal(t, http.StatusOK, rec.Code)

	events := sseEvents(t, rec)
	require.Len(t, events, 3)
	assert.Equal(t, "[DONE]", events[2])

	var first, second models.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(events[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(events[1]), &second))
	assert.Equal(t, "chat.completion.chunk", first.Object)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "assistant", first.Choices[0].Delta.Role)
	assert.Equal(t, "hi from cheap", first.Choices[0].Delta.Content)
	assert.Nil(t, first.Choices[0].Finish)
	assert.Nil(t, first.Usage)
	require.NotNil(t, second.Choices[0].Finish)
	assert.Equal(t, "stop", *second.Choices[0].Finish)
	require.NotNil(t, second.Usage)
	assert.Equal(t, int64(7), second.Usage.TotalTokens)
}

func TestChatCompletions_RateLimitShape(t *testing.T) {
	h := newAPIHarness(t)
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/chat/completions", "usr_alice", models.ChatCompletionRequest{Model: "cheap", Messages: hello}).Code)
	}
	rec := h.do(http.MethodPost, "/v1/chat/completions", "usr_alice", models.ChatCompletionRequest{Model: "cheap", Messages: hello})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var body models.ErrorResponse
	decode(t, rec, &body)
	assert.Equal(t, "rate_limit_error", body.Error.Type)
	require.NotNil(t, body.Error.Code)
	assert.Equal(t, "rate_limit_exceeded", *body.Error.Code)
	assert.Contains(t, body.Error.Message, "daily request limit")
}

func TestAdmin_RequiresAdminToken(t *testing.T) {
	h := newAPIHarness(t)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/admin/api/system", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/admin/api/system", "usr_alice", nil).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/admin/api/system", adminToken, nil).Code)
}

func TestAdmin_CreateUserReturnsWorkingToken(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(http.MethodPost, "/admin/api/users", adminToken, map[string]interface{}{"userId": "bob"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var created struct {
		UserPolicy models.UserPolicy `json:"userPolicy"`
	}
	decode(t, rec, &created)
	assert.True(t, strings.HasPrefix(created.UserPolicy.Token, "usr_"))
	assert.Equal(t, []models.Tier{models.TierCheap}, created.UserPolicy.AllowedTiers)
	assert.Equal(t, int64(100), created.UserPolicy.DailyRequestLimit.Cheap)
	assert.Equal(t, int64(3000000), created.UserPolicy.MonthlyTokenLimit.Cheap)

	chat := h.do(http.MethodPost, "/v1/chat", created.UserPolicy.Token, models.ChatRequest{Messages: hello})
	assert.Equal(t, http.StatusOK, chat.Code, chat.Body.String())

	dup := h.do(http.MethodPost, "/admin/api/users", adminToken, map[string]interface{}{"userId": "bob"})
	assert.Equal(t, http.StatusBadRequest, dup.Code)

	bad := h.do(http.MethodPost, "/admin/api/users", adminToken, map[string]interface{}{"userId": "carol", "allowedTiers": []string{"gold"}})
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestAdmin_RegenerateTokenInvalidatesOld(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(http.MethodPost, "/admin/api/users/alice/regenerate-token", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		UserPolicy models.UserPolicy `json:"userPolicy"`
	}
	decode(t, rec, &out)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/v1/chat", "usr_alice", models.ChatRequest{Messages: hello}).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/chat", out.UserPolicy.Token, models.ChatRequest{Messages: hello}).Code)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/admin/api/users/nobody/regenerate-token", adminToken, nil).Code)
}

func TestAdmin_UpdateAndDeleteUser(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(http.MethodPut, "/admin/api/users/alice", adminToken, map[string]interface{}{
		"allowedTiers": []string{"cheap", "premium"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	chat := h.do(http.MethodPost, "/v1/chat", "usr_alice", models.ChatRequest{Messages: hello, Tier: models.TierPremium})
	require.Equal(t, http.StatusOK, chat.Code)
	var resp models.ChatResponse
	decode(t, chat, &resp)
	assert.Equal(t, models.TierPremium, resp.TierUsed)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPut, "/admin/api/users/nobody", adminToken, map[string]interface{}{}).Code)

	del := h.do(http.MethodDelete, "/admin/api/users/alice?deleteUsageData=true", adminToken, nil)
	require.Equal(t, http.StatusOK, del.Code)
	rows, err := h.counters.List(context.Background(), usage.Filter{Scope: models.ScopeUser, UserID: "alice"})
	require.NoError(t, err)
	assert.Empty(t, rows)
	global, err := h.counters.List(context.Background(), usage.Filter{Scope: models.ScopeGlobal})
	require.NoError(t, err)
	assert.NotEmpty(t, global)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, "/admin/api/users/alice", adminToken, nil).Code)
}

func TestAdmin_UpdateSystemInvalidatesCache(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(http.MethodPut, "/admin/api/system", adminToken, map[string]interface{}{
		"globalDailyRequestLimit": map[string]int64{"cheap": 1},
		"warningThresholdPct":     70,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, h.system.invalidated)
	assert.Equal(t, int64(1), h.policies.System.GlobalDailyRequestLimit.Cheap)
	assert.Equal(t, 70.0, h.policies.System.WarningThresholdPct)
	assert.Equal(t, 95.0, h.policies.System.CriticalThresholdPct)

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/chat", "usr_alice", models.ChatRequest{Messages: hello}).Code)
	denied := h.do(http.MethodPost, "/v1/chat", "usr_alice", models.ChatRequest{Messages: hello})
	require.Equal(t, http.StatusTooManyRequests, denied.Code)
	var body map[string]interface{}
	decode(t, denied, &body)
	assert.Equal(t, "global", body["scope"])

	bad := h.do(http.MethodPut, "/admin/api/system", adminToken, map[string]interface{}{"warningThresholdPct": 99})
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	equal := h.do(http.MethodPut, "/admin/api/system", adminToken, map[string]interface{}{"warningThresholdPct": 95})
	assert.Equal(t, http.StatusBadRequest, equal.Code)
	assert.Equal(t, 70.0, h.policies.System.WarningThresholdPct)
}

func TestAdmin_SystemReportsGlobalUsage(t *testing.T) {
	h := newAPIHarness(t)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/chat", "usr_alice", models.ChatRequest{Messages: hello}).Code)

	rec := h.do(http.MethodGet, "/admin/api/system", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		GlobalUsage tierUsage `json:"globalUsage"`
	}
	decode(t, rec, &out)
	assert.Equal(t, int64(1), out.GlobalUsage.Day[models.TierCheap].Requests)
	assert.Equal(t, int64(7), out.GlobalUsage.Month[models.TierCheap].TotalTokens)
	assert.Equal(t, int64(0), out.GlobalUsage.Day[models.TierPremium].Requests)
}

func TestAdmin_ListUsersWithStatus(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(http.MethodGet, "/admin/api/users", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Users []userView `json:"users"`
	}
	decode(t, rec, &out)
	require.Len(t, out.Users, 1)
	assert.Equal(t, "alice", out.Users[0].Policy.UserID)
	assert.Equal(t, "ok", out.Users[0].Status.Day[models.TierCheap])
	assert.NotContains(t, rec.Body.String(), util.HashString("usr_alice"))
}

func TestAdmin_ResetAndUsage(t *testing.T) {
	h := newAPIHarness(t)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/chat", "usr_alice", models.ChatRequest{Messages: hello}).Code)
	today, _ := util.Periods(time.Now(), time.UTC)

	rec := h.do(http.MethodGet, "/admin/api/usage", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Usage []models.UsageRollup `json:"usage"`
	}
	decode(t, rec, &listed)
	assert.Len(t, listed.Usage, 2)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/admin/api/usage?day=17-10-2026", adminToken, nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/admin/api/reset", adminToken, map[string]string{"scope": "planet"}).Code)

	rec = h.do(http.MethodPost, "/admin/api/reset", adminToken, map[string]string{
		"scope": "user", "userId": "alice", "periodType": "day", "period": today,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var reset struct {
		DeletedCount int64 `json:"deletedCount"`
	}
	decode(t, rec, &reset)
	assert.Equal(t, int64(1), reset.DeletedCount)

	rec = h.do(http.MethodPost, "/admin/api/reset", adminToken, map[string]string{"scope": "all"})
	decode(t, rec, &reset)
	assert.Equal(t, int64(3), reset.DeletedCount)
}

func TestAdmin_LogsAndProviders(t *testing.T) {
	h := newAPIHarness(t)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/chat", "usr_alice", models.ChatRequest{Messages: hello}).Code)

	rec := h.do(http.MethodGet, "/admin/api/logs?userId=alice&status=ok", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page store.PaginatedRequestLogs
	decode(t, rec, &page)
	require.Len(t, page.Data, 1)
	assert.Equal(t, models.TierCheap, page.Data[0].TierUsed)

	rec = h.do(http.MethodGet, "/admin/api/providers", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health struct {
		Providers map[models.Tier]string `json:"providers"`
	}
	decode(t, rec, &health)
	assert.Equal(t, "unknown", health.Providers[models.TierCheap])
}

func TestHealthz(t *testing.T) {
	h := newAPIHarness(t)
	rec := h.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
