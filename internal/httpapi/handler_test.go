package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/manojawesome/AQueueMan/internal/auth"
	authfile "github.com/manojawesome/AQueueMan/internal/auth/file"
	"github.com/manojawesome/AQueueMan/internal/models"
	"github.com/manojawesome/AQueueMan/internal/queue"
	snapfile "github.com/manojawesome/AQueueMan/internal/snapshot/file"
)

type fakeAuth struct {
	registerFn     func(ctx context.Context, input auth.RegisterInput) (models.User, error)
	loginFn        func(ctx context.Context, input auth.LoginInput) (auth.LoginResult, error)
	getSessionFn   func(ctx context.Context, sessionID string) (models.Session, models.User, error)
	deleteFn       func(ctx context.Context, sessionID string) error
	listClientsFn  func(ctx context.Context) ([]models.Client, error)
	createClientFn func(ctx context.Context, client models.Client) (models.Client, error)
	updateClientFn func(ctx context.Context, client models.Client) (models.Client, error)
	deleteClientFn func(ctx context.Context, clientID string) error
}

func (f fakeAuth) Register(ctx context.Context, input auth.RegisterInput) (models.User, error) {
	if f.registerFn == nil {
		return models.User{}, nil
	}
	return f.registerFn(ctx, input)
}

func (f fakeAuth) Login(ctx context.Context, input auth.LoginInput) (auth.LoginResult, error) {
	if f.loginFn == nil {
		return auth.LoginResult{}, auth.ErrInvalidCredentials
	}
	return f.loginFn(ctx, input)
}

func (f fakeAuth) GetSession(ctx context.Context, sessionID string) (models.Session, models.User, error) {
	if f.getSessionFn == nil {
		return models.Session{}, models.User{}, auth.ErrSessionNotFound
	}
	return f.getSessionFn(ctx, sessionID)
}

func (f fakeAuth) DeleteSession(ctx context.Context, sessionID string) error {
	if f.deleteFn == nil {
		return nil
	}
	return f.deleteFn(ctx, sessionID)
}

func (f fakeAuth) ListClients(ctx context.Context) ([]models.Client, error) {
	if f.listClientsFn == nil {
		return nil, nil
	}
	return f.listClientsFn(ctx)
}

func (f fakeAuth) CreateClient(ctx context.Context, client models.Client) (models.Client, error) {
	if f.createClientFn == nil {
		return client, nil
	}
	return f.createClientFn(ctx, client)
}

func (f fakeAuth) UpdateClient(ctx context.Context, client models.Client) (models.Client, error) {
	if f.updateClientFn == nil {
		return client, nil
	}
	return f.updateClientFn(ctx, client)
}

func (f fakeAuth) DeleteClient(ctx context.Context, clientID string) error {
	if f.deleteClientFn == nil {
		return nil
	}
	return f.deleteClientFn(ctx, clientID)
}

func staffSession(tenantID string) fakeAuth {
	return fakeAuth{
		getSessionFn: func(ctx context.Context, sessionID string) (models.Session, models.User, error) {
			if sessionID != "sess-1" {
				return models.Session{}, models.User{}, auth.ErrSessionNotFound
			}
			return models.Session{SessionID: sessionID, UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)},
				models.User{UserID: "user-1", TenantID: tenantID, Name: "Staff", Email: "staff@example.com"},
				nil
		},
	}
}

func newTestServer(t *testing.T, authStore auth.Store) http.Handler {
	t.Helper()
	snapStore, err := snapfile.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("snapshot store: %v", err)
	}
	handler := NewHandler(queue.NewManager(snapStore), authStore)
	return AuthMiddleware(authStore, handler.Routes())
}

func doJSON(t *testing.T, handler http.Handler, method, path, session string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewBuffer(data)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set("Authorization", "Bearer "+session)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func decodeToken(t *testing.T, recorder *httptest.ResponseRecorder) models.Token {
	t.Helper()
	var token models.Token
	if err := json.Unmarshal(recorder.Body.Bytes(), &token); err != nil {
		t.Fatalf("decode token: %v (body %s)", err, recorder.Body.String())
	}
	return token
}

func TestCreateToken(t *testing.T) {
	server := newTestServer(t, staffSession("org-1"))

	recorder := doJSON(t, server, http.MethodPost, "/api/tokens", "", map[string]string{
		"tenant_id":     "org-1",
		"customer_name": "Alice",
		"department_id": "general",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	token := decodeToken(t, recorder)
	if token.ID != "GEN-001" || token.Status != models.StatusWaiting {
		t.Fatalf("token = %+v", token)
	}
}

func TestCreateTokenValidation(t *testing.T) {
	server := newTestServer(t, staffSession("org-1"))

	cases := []struct {
		name    string
		payload map[string]string
		code    string
	}{
		{"missing name", map[string]string{"tenant_id": "org-1", "department_id": "general"}, "invalid_request"},
		{"missing department", map[string]string{"tenant_id": "org-1", "customer_name": "Alice"}, "invalid_request"},
		{"bad priority", map[string]string{"tenant_id": "org-1", "customer_name": "Alice", "department_id": "general", "priority": "urgent"}, "invalid_request"},
	}

	for _, tt := range cases {
		recorder := doJSON(t, server, http.MethodPost, "/api/tokens", "", tt.payload)
		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", tt.name, recorder.Code)
		}
		var resp errorResponse
		if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s: decode error: %v", tt.name, err)
		}
		if resp.Error.Code != tt.code {
			t.Fatalf("%s: code = %s, want %s", tt.name, resp.Error.Code, tt.code)
		}
	}
}

func TestCreateTokenUnknownDepartment(t *testing.T) {
	server := newTestServer(t, staffSession("org-1"))

	recorder := doJSON(t, server, http.MethodPost, "/api/tokens", "", map[string]string{
		"tenant_id":     "org-1",
		"customer_name": "Alice",
		"department_id": "missing",
	})
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", recorder.Code)
	}
}

func TestCreateTokenRejectsUnknownFields(t *testing.T) {
	server := newTestServer(t, staffSession("org-1"))

	recorder := doJSON(t, server, http.MethodPost, "/api/tokens", "", map[string]string{
		"tenant_id":     "org-1",
		"customer_name": "Alice",
		"department_id": "general",
		"bogus":         "field",
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
}

func TestCallNextRequiresSession(t *testing.T) {
	server := newTestServer(t, staffSession("org-1"))

	recorder := doJSON(t, server, http.MethodPost, "/api/tokens/actions/call-next", "", map[string]string{
		"tenant_id":     "org-1",
		"department_id": "general",
	})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", recorder.Code)
	}
}

func TestCallNextFlow(t *testing.T) {
	server := newTestServer(t, staffSession("org-1"))

	doJSON(t, server, http.MethodPost, "/api/tokens", "", map[string]string{
		"tenant_id":     "org-1",
		"customer_name": "Alice",
		"department_id": "general",
	})

	recorder := doJSON(t, server, http.MethodPost, "/api/tokens/actions/call-next", "sess-1", map[string]string{
		"tenant_id":     "org-1",
		"department_id": "general",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	token := decodeToken(t, recorder)
	if token.Status != models.StatusServing {
		t.Fatalf("token = %+v", token)
	}

	recorder = doJSON(t, server, http.MethodPost, "/api/tokens/actions/call-next", "sess-1", map[string]string{
		"tenant_id":     "org-1",
		"department_id": "general",
	})
	if recorder.Code != http.StatusConflict {
		t.Fatalf("empty queue status = %d, want 409", recorder.Code)
	}
}

func TestTenantMismatchDenied(t *testing.T) {
	server := newTestServer(t, staffSession("org-2"))

	recorder := doJSON(t, server, http.MethodPost, "/api/tokens/actions/call-next", "sess-1", map[string]string{
		"tenant_id":     "org-1",
		"department_id": "general",
	})
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", recorder.Code)
	}
}

func TestCompleteAndCancelToken(t *testing.T) {
	server := newTestServer(t, staffSession("org-1"))

	created := decodeToken(t, doJSON(t, server, http.MethodPost, "/api/tokens", "", map[string]string{
		"tenant_id":     "org-1",
		"customer_name": "Alice",
		"department_id": "general",
	}))
	doJSON(t, server, http.MethodPost, "/api/tokens/actions/call-next", "sess-1", map[string]string{
		"tenant_id":     "org-1",
		"department_id": "general",
	})

	recorder := doJSON(t, server, http.MethodPost, "/api/tokens/"+created.ID+"/actions/complete", "sess-1", map[string]string{
		"tenant_id": "org-1",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("complete status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	if got := decodeToken(t, recorder); got.Status != models.StatusCompleted {
		t.Fatalf("completed token = %+v", got)
	}

	// Completing again reports not found.
	recorder = doJSON(t, server, http.MethodPost, "/api/tokens/"+created.ID+"/actions/complete", "sess-1", map[string]string{
		"tenant_id": "org-1",
	})
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("repeat complete status = %d, want 404", recorder.Code)
	}

	second := decodeToken(t, doJSON(t, server, http.MethodPost, "/api/tokens", "", map[string]string{
		"tenant_id":     "org-1",
		"customer_name": "Bob",
		"department_id": "general",
	}))
	recorder = doJSON(t, server, http.MethodPost, "/api/tokens/"+second.ID+"/actions/cancel", "sess-1", map[string]string{
		"tenant_id": "org-1",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", recorder.Code)
	}
}

func TestTokenPositionPublic(t *testing.T) {
	server := newTestServer(t, staffSession("org-1"))

	doJSON(t, server, http.MethodPost, "/api/tokens", "", map[string]string{
		"tenant_id":     "org-1",
		"customer_name": "Alice",
		"department_id": "general",
	})
	bob := decodeToken(t, doJSON(t, server, http.MethodPost, "/api/tokens", "", map[string]string{
		"tenant_id":     "org-1",
		"customer_name": "Bob",
		"department_id": "general",
		"priority":      "high",
	}))

	recorder := doJSON(t, server, http.MethodGet, "/api/tokens/"+bob.ID+"/position?tenant_id=org-1", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	var resp positionResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode position: %v", err)
	}
	if resp.Position != 1 {
		t.Fatalf("position = %d, want 1", resp.Position)
	}
}

func TestTokenSearch(t *testing.T) {
	server := newTestServer(t, staffSession("org-1"))

	doJSON(t, server, http.MethodPost, "/api/tokens", "", map[string]string{
		"tenant_id":     "org-1",
		"customer_name": "Alice",
		"department_id": "general",
	})

	recorder := doJSON(t, server, http.MethodGet, "/api/tokens/search?tenant_id=org-1&q=gen-001", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if token := decodeToken(t, recorder); token.ID != "GEN-001" {
		t.Fatalf("token = %+v", token)
	}

	recorder = doJSON(t, server, http.MethodGet, "/api/tokens/search?tenant_id=org-1&q=zzz", "", nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("miss status = %d, want 404", recorder.Code)
	}
}

func TestStats(t *testing.T) {
	server := newTestServer(t, staffSession("org-1"))

	doJSON(t, server, http.MethodPost, "/api/tokens", "", map[string]string{
		"tenant_id":     "org-1",
		"customer_name": "Alice",
		"department_id": "general",
	})

	recorder := doJSON(t, server, http.MethodGet, "/api/stats?tenant_id=org-1", "sess-1", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	var stats models.QueueStats
	if err := json.Unmarshal(recorder.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalWaiting != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	// Default departments average: (15+5+25+20+18+10)/6 rounds to 16.
	if stats.AvgWaitTime != 16 {
		t.Fatalf("avg wait = %d, want 16", stats.AvgWaitTime)
	}
}

func TestDepartmentLifecycle(t *testing.T) {
	server := newTestServer(t, staffSession("org-1"))

	recorder := doJSON(t, server, http.MethodPost, "/api/departments", "sess-1", map[string]interface{}{
		"tenant_id":     "org-1",
		"name":          "Radiology",
		"color":         "#8b5cf6",
		"avg_wait_time": 30,
		"token_prefix":  "RAD",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("create status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	var dept models.Department
	if err := json.Unmarshal(recorder.Body.Bytes(), &dept); err != nil {
		t.Fatalf("decode department: %v", err)
	}

	recorder = doJSON(t, server, http.MethodPatch, "/api/departments/"+dept.ID, "sess-1", map[string]interface{}{
		"tenant_id":     "org-1",
		"avg_wait_time": 45,
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", recorder.Code, recorder.Body.String())
	}

	recorder = doJSON(t, server, http.MethodDelete, "/api/departments/"+dept.ID+"?tenant_id=org-1", "sess-1", nil)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", recorder.Code)
	}

	recorder = doJSON(t, server, http.MethodDelete, "/api/departments/"+dept.ID+"?tenant_id=org-1", "sess-1", nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("repeat delete status = %d, want 404", recorder.Code)
	}
}

func TestUpdateConfig(t *testing.T) {
	server := newTestServer(t, staffSession("org-1"))

	recorder := doJSON(t, server, http.MethodPut, "/api/config", "sess-1", map[string]string{
		"tenant_id":     "org-1",
		"name":          "City Bank",
		"theme_color":   "#0ea5e9",
		"business_type": "bank",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	var config models.BusinessConfig
	if err := json.Unmarshal(recorder.Body.Bytes(), &config); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if config.BusinessType != models.BusinessTypeBank {
		t.Fatalf("config = %+v", config)
	}
	// Switching type swaps in the bank defaults.
	if len(config.TypeSpecificSettings.ServiceTypes) == 0 || config.TypeSpecificSettings.ServiceTypes[0] != "Deposit" {
		t.Fatalf("service types = %v", config.TypeSpecificSettings.ServiceTypes)
	}

	recorder = doJSON(t, server, http.MethodPut, "/api/config", "sess-1", map[string]string{
		"tenant_id":     "org-1",
		"name":          "City Bank",
		"business_type": "casino",
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("invalid type status = %d, want 400", recorder.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	server := newTestServer(t, fakeAuth{})

	recorder := doJSON(t, server, http.MethodPost, "/api/auth/register", "", map[string]string{
		"tenant_id": "org-1",
		"name":      "Alice",
		"email":     "alice@example.com",
		"password":  "short",
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("short password status = %d, want 400", recorder.Code)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	server := newTestServer(t, fakeAuth{
		registerFn: func(ctx context.Context, input auth.RegisterInput) (models.User, error) {
			return models.User{}, auth.ErrEmailTaken
		},
	})

	recorder := doJSON(t, server, http.MethodPost, "/api/auth/register", "", map[string]string{
		"tenant_id": "org-1",
		"name":      "Alice",
		"email":     "alice@example.com",
		"password":  "secret123",
	})
	if recorder.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", recorder.Code)
	}
}

func TestLogin(t *testing.T) {
	server := newTestServer(t, fakeAuth{
		loginFn: func(ctx context.Context, input auth.LoginInput) (auth.LoginResult, error) {
			if input.Email != "alice@example.com" || input.Password != "secret123" {
				return auth.LoginResult{}, auth.ErrInvalidCredentials
			}
			return auth.LoginResult{
				User:    models.User{UserID: "user-1", TenantID: "org-1", Email: input.Email},
				Session: models.Session{SessionID: "sess-1", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)},
			}, nil
		},
	})

	recorder := doJSON(t, server, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "secret123",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	var resp loginResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if resp.SessionID != "sess-1" {
		t.Fatalf("login response = %+v", resp)
	}

	recorder = doJSON(t, server, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong",
	})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("bad credentials status = %d, want 401", recorder.Code)
	}
}

func TestClientsRequireAdmin(t *testing.T) {
	server := newTestServer(t, staffSession("org-1"))

	recorder := doJSON(t, server, http.MethodGet, "/api/saas/clients", "sess-1", nil)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", recorder.Code)
	}
}

func TestBootstrappedAdminReachesClients(t *testing.T) {
	authStore, err := authfile.NewStore(t.TempDir(), time.Hour, "saas_admin@mqsystem.com")
	if err != nil {
		t.Fatalf("auth store: %v", err)
	}
	server := newTestServer(t, authStore)

	recorder := doJSON(t, server, http.MethodPost, "/api/auth/register", "", map[string]string{
		"tenant_id": "platform",
		"name":      "Platform Admin",
		"email":     "saas_admin@mqsystem.com",
		"password":  "secret123",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("register status = %d, body %s", recorder.Code, recorder.Body.String())
	}

	recorder = doJSON(t, server, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "saas_admin@mqsystem.com",
		"password": "secret123",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	var login loginResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if !login.User.IsAdmin {
		t.Fatalf("admin account not flagged: %+v", login.User)
	}

	recorder = doJSON(t, server, http.MethodGet, "/api/saas/clients", login.SessionID, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("clients status = %d, body %s", recorder.Code, recorder.Body.String())
	}
}

func TestClientsCRUDAsAdmin(t *testing.T) {
	adminAuth := fakeAuth{
		getSessionFn: func(ctx context.Context, sessionID string) (models.Session, models.User, error) {
			return models.Session{SessionID: sessionID, UserID: "admin-1", ExpiresAt: time.Now().Add(time.Hour)},
				models.User{UserID: "admin-1", Email: "saas_admin@mqsystem.com", IsAdmin: true},
				nil
		},
		listClientsFn: func(ctx context.Context) ([]models.Client, error) {
			return []models.Client{{ClientID: "client-1", Name: "Acme", AdminEmail: "ops@acme.test", Plan: models.PlanPro}}, nil
		},
	}
	server := newTestServer(t, adminAuth)

	recorder := doJSON(t, server, http.MethodGet, "/api/saas/clients", "sess-admin", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("list status = %d", recorder.Code)
	}
	var clients []models.Client
	if err := json.Unmarshal(recorder.Body.Bytes(), &clients); err != nil {
		t.Fatalf("decode clients: %v", err)
	}
	if len(clients) != 1 || clients[0].Name != "Acme" {
		t.Fatalf("clients = %+v", clients)
	}

	recorder = doJSON(t, server, http.MethodPost, "/api/saas/clients", "sess-admin", map[string]string{
		"name":        "Globex",
		"admin_email": "it@globex.test",
		"plan":        "enterprise",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("create status = %d, body %s", recorder.Code, recorder.Body.String())
	}

	recorder = doJSON(t, server, http.MethodPost, "/api/saas/clients", "sess-admin", map[string]string{
		"name":        "Globex",
		"admin_email": "it@globex.test",
		"plan":        "platinum",
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("bad plan status = %d, want 400", recorder.Code)
	}
}
