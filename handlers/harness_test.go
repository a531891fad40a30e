package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/corestack/corestack/internal/accounts"
	"github.com/corestack/corestack/internal/archive"
	"github.com/corestack/corestack/internal/config"
	"github.com/corestack/corestack/internal/password"
	"github.com/corestack/corestack/internal/sessions"
	"github.com/corestack/corestack/internal/store"
	"github.com/corestack/corestack/internal/tokens"
	"github.com/corestack/corestack/pkg/middleware"
)

const testGateKey = "handlers-test-gate-secret"

// fakeObjects is an in-memory archive.ObjectStore.
type fakeObjects struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (f *fakeObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = b
	return nil
}

func (f *fakeObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.data[key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeObjects) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeObjects) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://objects.test/" + key, nil
}

// testEnv wires the full route surface the way main does, on the
// in-memory repositories.
type testEnv struct {
	t        *testing.T
	router   *gin.Engine
	storeSvc *store.Service
	accounts *accounts.Service
	sessions *sessions.Service
	objects  *fakeObjects
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.Server.Environment = "test"
	cfg.Auth.Secret = testGateKey
	cfg.Auth.GateHeader = "X-API-Key"
	cfg.Auth.TokenTTL = time.Hour
	cfg.Auth.SessionTTL = time.Hour
	cfg.Auth.AccountCollection = "accounts"

	storeSvc := store.NewService(store.NewMemoryRepository(), time.Second)
	codec := tokens.NewCodec(cfg.Auth.Secret)
	accountsSvc := accounts.NewService(storeSvc, password.NewHasher(bcrypt.MinCost), codec, cfg.Auth.TokenTTL)

	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	sessionsSvc := sessions.NewService(sessions.NewRedisRepository(client, "session:"), cfg.Auth.SessionTTL)

	auth := &middleware.Authenticator{
		Tokens:     codec,
		Sessions:   sessionsSvc,
		Accounts:   accountsSvc,
		Collection: cfg.Auth.AccountCollection,
	}

	objects := &fakeObjects{data: map[string][]byte{}}

	r := gin.New()
	service := r.Group("/service", middleware.Protected(cfg.Auth.GateHeader, cfg.Auth.Secret))
	NewAuthHandler(cfg, accountsSvc, sessionsSvc, auth).Register(service)
	NewStorageHandler(storeSvc).Register(service)
	NewArchiveHandler(archive.NewService(objects, storeSvc, "archive"), auth).Register(service)
	RegisterSwagger(r)

	return &testEnv{t: t, router: r, storeSvc: storeSvc, accounts: accountsSvc, sessions: sessionsSvc, objects: objects}
}

// do sends a request with the gate header set; decorate can add
// cookies or auth headers.
func (e *testEnv) do(method, path string, body any, decorate ...func(*http.Request)) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", testGateKey)
	for _, d := range decorate {
		d(req)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) parse(w *httptest.ResponseRecorder) map[string]any {
	e.t.Helper()
	var out map[string]any
	require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func withBearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withSession(collection, sid string) func(*http.Request) {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: middleware.SessionCookieName(collection), Value: sid})
	}
}

// signupAndSignin registers an account and returns its token plus the
// session id the signin response set.
func (e *testEnv) signupAndSignin(collection, key, pw string) (token, sid string) {
	e.t.Helper()
	w := e.do("POST", "/service/auth/v1/signup/"+collection, gin.H{"key": key, "password": pw})
	require.Equal(e.t, http.StatusCreated, w.Code)

	w = e.do("POST", "/service/auth/v1/signin/"+collection, gin.H{"key": key, "password": pw})
	require.Equal(e.t, http.StatusOK, w.Code)
	body := e.parse(w)
	token, _ = body["token"].(string)
	require.NotEmpty(e.t, token)
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookieName(collection) {
			sid = c.Value
		}
	}
	require.NotEmpty(e.t, sid)
	return token, sid
}

// multipartBody builds a multipart form with one file part.
func multipartBody(t *testing.T, filename, contentType string, payload []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}
