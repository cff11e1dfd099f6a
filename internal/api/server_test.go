package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/frontdesk/internal/assistant"
	"github.com/xaenox/frontdesk/internal/connections"
	"github.com/xaenox/frontdesk/internal/identity"
	"github.com/xaenox/frontdesk/internal/knowledge"
	"github.com/xaenox/frontdesk/internal/knowledge/knowledgetest"
	"github.com/xaenox/frontdesk/internal/models"
	"github.com/xaenox/frontdesk/internal/storage"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubAssistant struct {
	reply assistant.Reply
	err   error
	got   []assistant.Request
}

func (s *stubAssistant) Handle(_ context.Context, req assistant.Request) (assistant.Reply, error) {
	s.got = append(s.got, req)
	return s.reply, s.err
}

type stubVerifier map[string]identity.Identity

func (v stubVerifier) Verify(_ context.Context, token string) (identity.Identity, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return identity.Identity{}, identity.ErrUnauthenticated
}

type failingConnections struct {
	*connections.Service
	err error
}

func (f failingConnections) Complete(context.Context, string, string) (*models.Connection, error) {
	return nil, f.err
}

type fixture struct {
	server    *Server
	handler   http.Handler
	assistant *stubAssistant
	store     *storage.MemoryStorage
}

func newFixture(t *testing.T, opts Options, override func(*fixture)) *fixture {
	t.Helper()
	store := storage.NewMemoryStorage()
	configs := map[models.Provider]*oauth2.Config{}
	for _, p := range models.Providers {
		configs[p] = connections.OAuthConfig("client-id", "secret", "http://localhost/google/oauth/callback", p)
	}

	f := &fixture{
		assistant: &stubAssistant{reply: assistant.Reply{Text: "Hello!"}},
		store:     store,
	}
	f.server = New(
		f.assistant,
		connections.NewService(configs, store, nil, zap.NewNop()),
		knowledge.NewIndexer(knowledgetest.New(), store, "test", zap.NewNop()),
		store,
		stubVerifier{"good-token": {UserID: "uid-9", TenantID: "t1", Email: "ana@example.com", Name: "Ana"}},
		opts,
		zap.NewNop(),
	)
	if override != nil {
		override(f)
	}
	f.handler = f.server.Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestTurn_EmptyText(t *testing.T) {
	f := newFixture(t, Options{}, nil)

	for _, body := range []any{map[string]string{"text": "  ", "userId": "u1"}, map[string]string{"userId": "u1"}, nil} {
		rec := f.do(t, http.MethodPost, "/turn", "", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, map[string]any{"text": "Please send a message to begin."}, decode(t, rec))
	}
	assert.Empty(t, f.assistant.got)
}

func TestTurn_Reply(t *testing.T) {
	f := newFixture(t, Options{}, nil)

	rec := f.do(t, http.MethodPost, "/turn", "", map[string]string{"text": "hi", "userId": "u1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"text": "Hello!"}, decode(t, rec))
	require.Len(t, f.assistant.got, 1)
	assert.Equal(t, assistant.Request{UserID: "u1", Text: "hi"}, f.assistant.got[0])
}

func TestTurn_BearerIdentityWins(t *testing.T) {
	f := newFixture(t, Options{}, nil)

	rec := f.do(t, http.MethodPost, "/turn", "good-token", map[string]string{"text": "hi", "userId": "u1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, assistant.Request{UserID: "uid-9", TenantID: "t1", Email: "ana@example.com", Name: "Ana", Text: "hi"}, f.assistant.got[0])
}

func TestTurn_Authentication(t *testing.T) {
	f := newFixture(t, Options{RequireAuth: true}, nil)

	rec := f.do(t, http.MethodPost, "/turn", "", map[string]string{"text": "hi", "userId": "u1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/turn", "forged", map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.assistant.got)

	open := newFixture(t, Options{}, nil)
	rec = open.do(t, http.MethodPost, "/turn", "", map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTurn_InternalErrorIsGeneric(t *testing.T) {
	f := newFixture(t, Options{}, func(f *fixture) {
		f.assistant.err = errors.New("pq: connection refused")
	})

	rec := f.do(t, http.MethodPost, "/turn", "", map[string]string{"text": "hi", "userId": "u1"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, assistant.GenericFailure, decode(t, rec)["text"])
}

func TestConnectionStatus(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	require.NoError(t, f.store.SaveConnection(context.Background(), &models.Connection{
		UserID:       "uid-9",
		Provider:     models.ProviderCalendar,
		RefreshToken: "refresh",
		Scopes:       []string{"https://www.googleapis.com/auth/calendar"},
	}))

	rec := f.do(t, http.MethodGet, "/connections/status", "good-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{
		"calendar": map[string]any{"connected": true, "scopes": []any{"https://www.googleapis.com/auth/calendar"}},
		"gmail":    map[string]any{"connected": false, "scopes": []any{}},
	}, decode(t, rec))
	assert.NotContains(t, rec.Body.String(), "refresh")

	rec = f.do(t, http.MethodGet, "/connections/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOAuthURL(t *testing.T) {
	f := newFixture(t, Options{}, nil)

	rec := f.do(t, http.MethodGet, "/google/oauth/url?provider=gmail", "good-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	u, err := url.Parse(decode(t, rec)["url"].(string))
	require.NoError(t, err)
	assert.Equal(t, "offline", u.Query().Get("access_type"))

	state, err := connections.DecodeState(u.Query().Get("state"))
	require.NoError(t, err)
	assert.Equal(t, connections.State{Provider: models.ProviderGmail, UID: "uid-9", TenantID: "t1"}, state)

	rec = f.do(t, http.MethodGet, "/google/oauth/url?provider=dropbox", "good-token", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOAuthCallbackErrors(t *testing.T) {
	f := newFixture(t, Options{}, nil)

	rec := f.do(t, http.MethodGet, "/google/oauth/callback?code=abc&state=not-base64!", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/google/oauth/callback?state=x", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	g := newFixture(t, Options{}, func(f *fixture) {
		f.server.connections = failingConnections{err: connections.ErrMissingRefreshToken}
	})
	rec = g.do(t, http.MethodGet, "/google/oauth/callback?code=abc&state=xyz", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "refresh token")
}

func TestKnowledgeUploadAndStatus(t *testing.T) {
	f := newFixture(t, Options{}, nil)

	rec := f.do(t, http.MethodPost, "/knowledge/upload", "good-token", map[string]string{"text": "We are open 9 to 5.", "filename": "hours.md"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "hours.md", decode(t, rec)["filename"])

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "parking.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("Free parking behind the building."))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/knowledge/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer good-token")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/knowledge/status?refresh=true", "good-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var record models.KnowledgeRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.NotEmpty(t, record.IndexID)
	require.Len(t, record.Files, 2)
	assert.Equal(t, "hours.md", record.Files[0].Filename)
	assert.Equal(t, "parking.txt", record.Files[1].Filename)

	rec = f.do(t, http.MethodPost, "/knowledge/upload", "good-token", map[string]string{"text": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKnowledgeUploadTooLarge(t *testing.T) {
	f := newFixture(t, Options{MaxUploadBytes: 16}, nil)

	rec := f.do(t, http.MethodPost, "/knowledge/upload", "good-token", map[string]string{"text": strings.Repeat("x", 64)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestAgentSettings(t *testing.T) {
	f := newFixture(t, Options{}, nil)

	rec := f.do(t, http.MethodPut, "/agent/settings", "good-token", map[string]string{
		"schedulingPrompt":  "No meetings on Fridays.",
		"informationPrompt": " ",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/agent/settings", "good-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode(t, rec)
	assert.Equal(t, "No meetings on Fridays.", got["schedulingPrompt"])
	assert.Equal(t, "", got["informationPrompt"])

	settings, err := f.store.GetSettings(context.Background(), "uid-9")
	require.NoError(t, err)
	assert.Equal(t, "No meetings on Fridays.", settings.SchedulingPrompt)
}

func TestHealthAndCORS(t *testing.T) {
	f := newFixture(t, Options{}, nil)

	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = f.do(t, http.MethodOptions, "/turn", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Serve(ctx, ln) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}, Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestUnconfiguredFeatures(t *testing.T) {
	s := New(&stubAssistant{}, nil, nil, storage.NewMemoryStorage(), nil, Options{}, zap.NewNop())
	h := s.Handler()

	for _, target := range []string{"/connections/status?userId=u1", "/knowledge/status?userId=u1", "/google/oauth/url?userId=u1"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
	}
}
