package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"challengeEngineAPI/internal/cache"
	"challengeEngineAPI/internal/fasting"
	"challengeEngineAPI/internal/identity"
	"challengeEngineAPI/internal/store"
	"challengeEngineAPI/middleware"
	"challengeEngineAPI/services"
)

const (
	testJWTSecret     = "test-secret-key-for-testing-only"
	testWebhookSecret = "whsec_dGVzdC13ZWJob29rLXNlY3JldA=="
)

type testServer struct {
	router *mux.Router
	svc    *services.ChallengeService
	store  *store.MemoryStore
	now    time.Time
}

// newTestServer runs on 2024-01-03 with "admin" configured as an admin.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zap.NewNop()
	st := store.NewMemoryStore()
	agg := services.NewAggregator(st, cache.NewMemoryCache(time.Minute), identity.Static{
		"user_alice": {DisplayName: "alice"},
	}, log)
	disp := services.NewSideEffectDispatcher(fasting.NewLogActivator(log), 0, 0, log)

	ts := &testServer{
		store: st,
		now:   time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC),
	}
	ts.svc = services.NewChallengeService(st, agg, disp, services.NewAccessPolicy([]string{"admin"}), log)
	ts.svc.SetClock(func() time.Time { return ts.now })

	ts.router = NewRouter(RouterConfig{
		ChallengeService: ts.svc,
		Auth:             middleware.NewAuthenticator(false, testJWTSecret, log),
		WebhookSecret:    testWebhookSecret,
		Health:           st.Ping,
		Log:              log,
	})
	return ts
}

// mintToken signs an HS256 token the way the dev authenticator expects.
func mintToken(t *testing.T, clerkID string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": clerkID,
		"iss": "https://clerk.test",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
		"sid": "sess_test123",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(t *testing.T, method, path, clerkID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if clerkID != "" {
		req.Header.Set("Authorization", "Bearer "+mintToken(t, clerkID))
	}

	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[errorResponse](t, rr).Code
}

func requireStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equal(t, want, rr.Code, rr.Body.String())
}

func newChallengeBody(start string) map[string]any {
	return map[string]any{
		"name":       "January hydration",
		"type":       "water",
		"goal":       20,
		"duration":   7,
		"start_date": start,
	}
}

func (ts *testServer) doRaw(t *testing.T, method, path, authHeader string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", authHeader)

	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}
