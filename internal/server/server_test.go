package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptmaster-nano/internal/analyzer"
	"promptmaster-nano/internal/media"
	"promptmaster-nano/internal/model"
	"promptmaster-nano/internal/session"
	"promptmaster-nano/internal/store"
	"promptmaster-nano/internal/workshop"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAnalyzer struct {
	err  error
	last analyzer.Request
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req analyzer.Request) (model.PromptResult, error) {
	f.last = req
	if f.err != nil {
		return model.PromptResult{}, f.err
	}
	return model.PromptResult{PositivePrompt: "a red fox", DescriptionZh: "一只红狐狸"}, nil
}

type testEnv struct {
	handler  http.Handler
	analyzer *fakeAnalyzer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := store.Open(store.Options{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "api.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(db) })

	users := store.NewUserRepository(db)
	history := store.NewHistoryRepository(db)
	fa := &fakeAnalyzer{}

	srv := New(Options{
		Sessions: session.NewManager(session.Options{
			Users:   users,
			History: history,
			Secret:  []byte("secret"),
		}),
		Workshop: workshop.New(workshop.Options{Analyzer: fa, History: history, HistoryLimit: 1}),
		Limits:   media.Limits{MaxItems: 3, MaxBytes: 1 << 20},
		Static: fstest.MapFS{
			"index.html": {Data: []byte("<html>promptmaster</html>")},
			"app.js":     {Data: []byte("console.log(1)")},
		},
		Now: func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	return &testEnv{handler: srv.Handler(), analyzer: fa}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()

	w := e.do(t, http.MethodPost, "/api/auth/login", gin.H{"method": "guest"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var tk session.Ticket
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tk))
	require.Equal(t, session.StageDone, tk.Stage)
	require.NotEmpty(t, tk.Token)
	return tk.Token
}

type upload struct {
	name, mime string
	data       []byte
}

func (e *testEnv) analyze(t *testing.T, token string, fields map[string]string, files ...upload) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="media"; filename="`+f.name+`"`)
		h.Set("Content-Type", f.mime)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/api/history", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"error"`)
}

func TestGuestLoginAndMe(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	w := env.do(t, http.MethodGet, "/api/me", nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	var u model.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &u))
	assert.Equal(t, "访客", u.Name)
	assert.True(t, u.IsLoggedIn)
	assert.Equal(t, model.LoginGuest, u.LoginType)
}

func TestPhoneLoginSteps(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/auth/login", gin.H{"method": "phone"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var tk session.Ticket
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tk))
	assert.Equal(t, session.StageInput, tk.Stage)

	w = env.do(t, http.MethodPost, "/api/auth/login/"+tk.ID+"/phone", gin.H{"phone": ""}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/auth/login/"+tk.ID+"/phone", gin.H{"phone": "13912345678", "code": "0000"}, "")
	require.Equal(t, http.StatusOK, w.Code)

	// zero delay: the next poll finishes the login
	w = env.do(t, http.MethodGet, "/api/auth/login/"+tk.ID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var done session.Ticket
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &done))
	assert.Equal(t, session.StageDone, done.Stage)
	assert.Equal(t, "手机用户 5678", done.User.Name)

	w = env.do(t, http.MethodGet, "/api/auth/login/"+tk.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLoginRejectsUnknownMethod(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/auth/login", gin.H{"method": "github"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/auth/login", gin.H{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginBackConflict(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/auth/login", gin.H{"method": "wechat"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var tk session.Ticket
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tk))

	w = env.do(t, http.MethodPost, "/api/auth/login/"+tk.ID+"/back", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAnalyzeAndHistory(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	w := env.analyze(t, token, map[string]string{"instructions": "融合成海报", "target": "auto"},
		upload{"a.png", "image/png", []byte("\x89PNG\r\n\x1a\nfake")},
		upload{"b.mp4", "video/mp4", []byte("fake-video")},
	)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rec model.PromptRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "a red fox", rec.PositivePrompt)
	assert.Equal(t, model.MediaTypeFusion, rec.MediaType)
	assert.Equal(t, model.TargetSora2, rec.TargetModel)

	require.Len(t, env.analyzer.last.Media, 2)
	assert.Equal(t, "a.png", env.analyzer.last.Media[0].Name)
	assert.Equal(t, "融合成海报", env.analyzer.last.Instructions)

	w = env.do(t, http.MethodGet, "/api/history?limit=10", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Items []model.PromptRecord `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, rec.ID, list.Items[0].ID)

	w = env.do(t, http.MethodGet, "/api/history/export", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="promptmaster-history-20250102-030405.json"`, w.Header().Get("Content-Disposition"))
	var exported []model.PromptRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exported))
	assert.Len(t, exported, 1)

	w = env.do(t, http.MethodDelete, "/api/history/"+rec.ID, nil, token)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, http.MethodDelete, "/api/history/"+rec.ID, nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalyzeValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	w := env.analyze(t, token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.analyze(t, token, map[string]string{"target": "midjourney"}, upload{"a.png", "image/png", []byte("x")})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.analyze(t, token, nil, upload{"a.txt", "text/plain", []byte("hello")})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.analyze(t, token, nil,
		upload{"1.png", "image/png", []byte("1")},
		upload{"2.png", "image/png", []byte("2")},
		upload{"3.png", "image/png", []byte("3")},
		upload{"4.png", "image/png", []byte("4")},
	)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyzeFailureMessage(t *testing.T) {
	env := newTestEnv(t)
	env.analyzer.err = errors.New("dial tcp: timeout")
	token := env.login(t)

	w := env.analyze(t, token, nil, upload{"a.png", "image/png", []byte("x")})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"error":"`+workshop.FailureMessage+`"}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/history", nil, token)
	assert.JSONEq(t, `{"items":[]}`, w.Body.String())
}

func TestLogoutClearsHistoryAndRevokesToken(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	w := env.analyze(t, token, nil, upload{"a.png", "image/png", []byte("x")})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/auth/logout", nil, token)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/api/history", nil, token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHistoryLimitAndClear(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	for range 2 {
		w := env.analyze(t, token, nil, upload{"a.png", "image/png", []byte("x")})
		require.Equal(t, http.StatusOK, w.Code)
	}

	count := func(query string) int {
		t.Helper()
		w := env.do(t, http.MethodGet, "/api/history"+query, nil, token)
		require.Equal(t, http.StatusOK, w.Code)
		var list struct {
			Items []model.PromptRecord `json:"items"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
		return len(list.Items)
	}
	assert.Equal(t, 1, count(""))
	assert.Equal(t, 2, count("?limit=0"))
	assert.Equal(t, 2, count("?limit=5"))

	w := env.do(t, http.MethodGet, "/api/history?limit=abc", nil, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/history?limit=-1", nil, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodDelete, "/api/history", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":2}`, w.Body.String())
}

func TestStaticFallback(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "promptmaster")

	w = env.do(t, http.MethodGet, "/app.js", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "console.log")

	w = env.do(t, http.MethodGet, "/history/some-page", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "promptmaster")

	w = env.do(t, http.MethodGet, "/api/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodOptions, "/api/analyze", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
