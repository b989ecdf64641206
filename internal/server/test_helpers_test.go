package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/lumina/internal/auth"
	"github.com/MarcoPoloResearchLab/lumina/internal/gate"
	"github.com/MarcoPoloResearchLab/lumina/internal/notes"
	"github.com/MarcoPoloResearchLab/lumina/internal/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	testPassword   = "correct horse"
	testCookieName = "lumina_session"
)

type testStack struct {
	handler    http.Handler
	service    *notes.Service
	gate       *gate.Gate
	store      *storage.MemoryStore
	dispatcher *RealtimeDispatcher
}

type steppingClock struct {
	mu      sync.Mutex
	current time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(time.Second)
	return c.current
}

func newTestStack(t *testing.T, editDelay time.Duration) *testStack {
	t.Helper()
	return newTestStackWithOrigins(t, editDelay, nil)
}

func newTestStackWithOrigins(t *testing.T, editDelay time.Duration, allowedOrigins []string) *testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storage.NewMemoryStore()
	adapter, err := storage.NewAdapter(storage.AdapterConfig{Store: store})
	if err != nil {
		t.Fatalf("failed to build adapter: %v", err)
	}

	dispatcher := NewRealtimeDispatcher()
	clock := &steppingClock{current: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	service, err := notes.NewService(notes.ServiceConfig{
		Persister:  adapter,
		Clock:      clock.Now,
		IDProvider: notes.NewUUIDProvider(),
		EditDelay:  editDelay,
		OnChange:   dispatcher.PublishChange,
	})
	if err != nil {
		t.Fatalf("failed to build notes service: %v", err)
	}
	service.Open(context.Background())
	t.Cleanup(service.Close)

	accessGate, err := gate.NewGate(gate.GateConfig{Store: store, Session: gate.NewSession(nil)})
	if err != nil {
		t.Fatalf("failed to build gate: %v", err)
	}

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        auth.DefaultIssuer,
		Audience:      auth.DefaultAudience,
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		Issuer:     issuer,
		CookieName: testCookieName,
		IsActive:   accessGate.IsSessionActive,
	})
	if err != nil {
		t.Fatalf("failed to build session validator: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Gate:              accessGate,
		TokenManager:      issuer,
		Authenticator:     validator,
		NotesService:      service,
		Realtime:          dispatcher,
		Logger:            zap.NewNop(),
		AllowedOrigins:    allowedOrigins,
		HeartbeatInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	return &testStack{
		handler:    handler,
		service:    service,
		gate:       accessGate,
		store:      store,
		dispatcher: dispatcher,
	}
}

func (s *testStack) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

// setup stores testPassword through the API and returns the issued token.
func (s *testStack) setup(t *testing.T) string {
	t.Helper()
	recorder := s.do(t, http.MethodPost, "/session/password", `{"password":"`+testPassword+`","confirmation":"`+testPassword+`"}`, "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("setup failed with %d: %s", recorder.Code, recorder.Body.String())
	}
	return decodeToken(t, recorder)
}

func decodeToken(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	var payload sessionTokenPayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode token payload: %v", err)
	}
	if payload.AccessToken == "" || payload.TokenType != tokenTypeBearer || payload.ExpiresIn <= 0 {
		t.Fatalf("unexpected token payload %+v", payload)
	}
	return payload.AccessToken
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var payload T
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode body %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func listIDs(t *testing.T, recorder *httptest.ResponseRecorder) []string {
	t.Helper()
	payload := decodeBody[noteListPayload](t, recorder)
	ids := make([]string, 0, len(payload.Notes))
	for _, note := range payload.Notes {
		ids = append(ids, note.ID.String())
	}
	return ids
}

func newPreflightRequest(path, method string) *http.Request {
	request := httptest.NewRequest(http.MethodOptions, path, http.NoBody)
	request.Header.Set("Origin", "http://localhost:5173")
	request.Header.Set("Access-Control-Request-Method", method)
	request.Header.Set("Access-Control-Request-Headers", "Authorization")
	return request
}

func serve(handler http.Handler, request *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}
