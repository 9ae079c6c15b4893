package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"admissions-portal/portal-backend/internal/datasource"
	"admissions-portal/portal-backend/internal/retry"
	"admissions-portal/portal-backend/internal/session"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *session.Store) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := session.NewStore()
	client := NewClient(Config{BaseURL: server.URL, AnonKey: "anon-key", RateLimit: 1000, RateBurst: 100}, store, zap.NewNop())
	return client, store
}

func TestRESTSource_SelectRendersChain(t *testing.T) {
	var gotQuery map[string][]string
	var gotAuth, gotKey string
	client, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/students", r.URL.Path)
		gotQuery = r.URL.Query()
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("apikey")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"first_name":"Ada","program":"Nursing"}]`))
	})
	store.Set(&session.Session{AccessToken: "user-token", ExpiresAt: time.Now().Add(time.Hour)})

	rows, err := NewRESTSource(client).Select(context.Background(), datasource.Query{
		Table:   "students",
		Columns: []string{"first_name", "program"},
		Where: datasource.Chain(
			datasource.Link{Pred: datasource.Comparison{Field: "program", Op: datasource.OpEquals, Value: "Nursing"}},
			datasource.Link{Logic: datasource.LogicAnd, Pred: datasource.Comparison{Field: "gpa", Op: datasource.OpGreaterEq, Value: 3.5}},
			datasource.Link{Logic: datasource.LogicOr, Pred: datasource.Comparison{Field: "advisor_id", Op: datasource.OpIsNull}},
		),
		OrderBy: []datasource.Order{{Field: "first_name", Descending: true}},
		Limit:   25,
	})

	require.NoError(t, err)
	assert.Equal(t, []datasource.Row{{"first_name": "Ada", "program": "Nursing"}}, rows)
	assert.Equal(t, []string{"first_name,program"}, gotQuery["select"])
	assert.Equal(t, []string{`(and(program.eq.Nursing,gpa.gte."3.5"),advisor_id.is.null)`}, gotQuery["or"])
	assert.Equal(t, []string{"first_name.desc"}, gotQuery["order"])
	assert.Equal(t, []string{"25"}, gotQuery["limit"])
	assert.Equal(t, "Bearer user-token", gotAuth)
	assert.Equal(t, "anon-key", gotKey)
}

func TestRESTSource_UpdateSendsFilter(t *testing.T) {
	var gotMethod, gotFilter, gotPrefer string
	var gotBody map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotFilter = r.URL.Query().Get("agent")
		gotPrefer = r.Header.Get("Prefer")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"agent":"outreach","enabled":false}]`))
	})

	rows, err := NewRESTSource(client).Update(context.Background(), "agent_policies",
		datasource.Row{"enabled": false},
		datasource.Comparison{Field: "agent", Op: datasource.OpEquals, Value: "outreach"})

	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "eq.outreach", gotFilter)
	assert.Equal(t, "return=representation", gotPrefer)
	assert.Equal(t, map[string]any{"enabled": false}, gotBody)
}

func TestRESTSource_UpdateRequiresFilter(t *testing.T) {
	called := false
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := NewRESTSource(client).Update(context.Background(), "agent_policies", datasource.Row{"enabled": false}, nil)

	assert.ErrorContains(t, err, "refusing to update without a filter")
	assert.False(t, called)
}

func TestSelectParams_TopLevelComparisons(t *testing.T) {
	params, err := SelectParams(datasource.Query{
		Table: "leads",
		Where: datasource.Comparison{Field: "source", Op: datasource.OpIn, Value: []string{"web", "fair, spring"}},
	})
	require.NoError(t, err)
	assert.Equal(t, `in.(web,"fair, spring")`, params.Get("source"))
	assert.Equal(t, "*", params.Get("select"))

	params, err = SelectParams(datasource.Query{
		Table: "leads",
		Where: datasource.Comparison{Field: "score", Op: datasource.OpBetween, Value: []any{10, 20}},
	})
	require.NoError(t, err)
	assert.Equal(t, "(score.gte.10,score.lte.20)", params.Get("and"))

	params, err = SelectParams(datasource.Query{
		Table: "leads",
		Where: datasource.Comparison{Field: "email", Op: datasource.OpIsNotNull},
	})
	require.NoError(t, err)
	assert.Equal(t, "not.is.null", params.Get("email"))
}

func TestClient_JWTExpiredIsAuthExpired(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"PGRST301","details":null,"hint":null,"message":"JWT expired"}`))
	})

	_, err := NewRESTSource(client).Select(context.Background(), datasource.Query{Table: "leads"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "PGRST301", apiErr.ErrorCode())
	assert.True(t, retry.IsAuthExpired(err))
}

func TestClient_OtherErrorsAreNotAuthExpired(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"23505","message":"duplicate key value violates unique constraint"}`))
	})

	_, err := NewRESTSource(client).Insert(context.Background(), "leads", []datasource.Row{{"email": "a@b.c"}})

	require.Error(t, err)
	assert.False(t, retry.IsAuthExpired(err))
}

func TestParseAPIError_AuthShapes(t *testing.T) {
	e := parseAPIError(400, []byte(`{"error":"invalid_grant","error_description":"Invalid Refresh Token: Already Used"}`))
	assert.Equal(t, "invalid_grant", e.Code)
	assert.Equal(t, "Invalid Refresh Token: Already Used", e.Message)

	e = parseAPIError(401, []byte(`{"code":401,"error_code":"bad_jwt","msg":"invalid JWT: unable to parse or verify signature"}`))
	assert.Equal(t, "bad_jwt", e.Code)
	assert.True(t, retry.IsAuthExpired(e))

	e = parseAPIError(502, []byte("upstream down"))
	assert.Equal(t, "upstream down", e.Message)
}

func TestAuth_RefreshSessionUpdatesStore(t *testing.T) {
	var gotBody map[string]string
	var gotGrant, gotAuth string
	client, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		gotGrant = r.URL.Query().Get("grant_type")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":3600,"user":{"id":"u-1","email":"ops@college.edu"}}`))
	})
	store.Set(&session.Session{AccessToken: "old-access", RefreshToken: "old-refresh", ExpiresAt: time.Now().Add(-time.Minute)})

	sess, err := NewAuth(client, store).RefreshSession(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "refresh_token", gotGrant)
	assert.Equal(t, "old-refresh", gotBody["refresh_token"])
	assert.Equal(t, "Bearer anon-key", gotAuth)
	assert.Equal(t, "new-access", sess.AccessToken)
	assert.Equal(t, "new-access", store.AccessToken())
	assert.Equal(t, "new-refresh", store.RefreshToken())
	assert.True(t, store.Valid())
}

func TestAuth_RefreshWithoutSession(t *testing.T) {
	client, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := NewAuth(client, store).RefreshSession(context.Background())

	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestFunctions_Invoke(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/functions/v1/execute-campaign", r.URL.Path)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "c-42", body["campaign_id"])
		_, _ = w.Write([]byte(`{"queued":12}`))
	})

	var out struct {
		Queued int `json:"queued"`
	}
	err := NewFunctions(client).Invoke(context.Background(), "execute-campaign", map[string]string{"campaign_id": "c-42"}, &out)

	require.NoError(t, err)
	assert.Equal(t, 12, out.Queued)
}
