package file

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/manojawesome/AQueueMan/internal/auth"
	"github.com/manojawesome/AQueueMan/internal/models"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(dir, time.Hour, "admin@example.com")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, dir
}

func register(t *testing.T, store *Store) models.User {
	t.Helper()
	user, err := store.Register(context.Background(), auth.RegisterInput{
		TenantID: "org-1",
		Name:     "Alice",
		Email:    "Alice@Example.com",
		Password: "secret123",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return user
}

func TestRegisterAndLogin(t *testing.T) {
	store, _ := newTestStore(t)
	user := register(t, store)

	if user.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %q", user.Email)
	}

	result, err := store.Login(context.Background(), auth.LoginInput{
		Email:    "alice@example.com",
		Password: "secret123",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.User.UserID != user.UserID {
		t.Fatalf("login user = %+v", result.User)
	}
	if !result.Session.ExpiresAt.After(time.Now()) {
		t.Fatalf("session already expired: %v", result.Session.ExpiresAt)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	store, _ := newTestStore(t)
	register(t, store)

	_, err := store.Login(context.Background(), auth.LoginInput{
		Email:    "alice@example.com",
		Password: "nope",
	})
	if !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	store, _ := newTestStore(t)
	register(t, store)

	_, err := store.Register(context.Background(), auth.RegisterInput{
		TenantID: "org-2",
		Name:     "Other",
		Email:    "ALICE@example.com",
		Password: "secret456",
	})
	if !errors.Is(err, auth.ErrEmailTaken) {
		t.Fatalf("err = %v, want ErrEmailTaken", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	store, _ := newTestStore(t)
	user := register(t, store)

	result, err := store.Login(context.Background(), auth.LoginInput{
		Email:    "alice@example.com",
		Password: "secret123",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	_, got, err := store.GetSession(context.Background(), result.Session.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.UserID != user.UserID {
		t.Fatalf("session user = %+v", got)
	}

	if err := store.DeleteSession(context.Background(), result.Session.SessionID); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, _, err := store.GetSession(context.Background(), result.Session.SessionID); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestExpiredSessionRejected(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, time.Nanosecond, "admin@example.com")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	register(t, store)

	result, err := store.Login(context.Background(), auth.LoginInput{
		Email:    "alice@example.com",
		Password: "secret123",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	time.Sleep(time.Millisecond)
	if _, _, err := store.GetSession(context.Background(), result.Session.SessionID); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestAdminEmailRegistersAsAdmin(t *testing.T) {
	store, _ := newTestStore(t)

	admin, err := store.Register(context.Background(), auth.RegisterInput{
		TenantID: "org-1",
		Name:     "Root",
		Email:    "Admin@Example.com",
		Password: "secret123",
	})
	if err != nil {
		t.Fatalf("register admin: %v", err)
	}
	if !admin.IsAdmin {
		t.Fatalf("admin account not flagged: %+v", admin)
	}

	result, err := store.Login(context.Background(), auth.LoginInput{
		Email:    "admin@example.com",
		Password: "secret123",
	})
	if err != nil {
		t.Fatalf("login admin: %v", err)
	}
	_, user, err := store.GetSession(context.Background(), result.Session.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !user.IsAdmin {
		t.Fatalf("session user not admin: %+v", user)
	}

	regular := register(t, store)
	if regular.IsAdmin {
		t.Fatalf("regular account flagged admin: %+v", regular)
	}
}

func TestExpiredSessionsPruned(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, time.Nanosecond, "admin@example.com")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	register(t, store)

	result, err := store.Login(context.Background(), auth.LoginInput{
		Email:    "alice@example.com",
		Password: "secret123",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	time.Sleep(time.Millisecond)
	if _, _, err := store.GetSession(context.Background(), result.Session.SessionID); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "directory.json"))
	if err != nil {
		t.Fatalf("read directory: %v", err)
	}
	var data struct {
		Sessions []models.Session `json:"sessions"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("decode directory: %v", err)
	}
	if len(data.Sessions) != 0 {
		t.Fatalf("expired sessions still on disk: %+v", data.Sessions)
	}
}

func TestDirectorySurvivesReload(t *testing.T) {
	store, dir := newTestStore(t)
	register(t, store)

	reloaded, err := NewStore(dir, time.Hour, "admin@example.com")
	if err != nil {
		t.Fatalf("reload store: %v", err)
	}
	if _, err := reloaded.Login(context.Background(), auth.LoginInput{
		Email:    "alice@example.com",
		Password: "secret123",
	}); err != nil {
		t.Fatalf("login after reload: %v", err)
	}
}

func TestCorruptDirectoryStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "directory.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	store, err := NewStore(dir, time.Hour, "admin@example.com")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	clients, err := store.ListClients(context.Background())
	if err != nil {
		t.Fatalf("list clients: %v", err)
	}
	if len(clients) != 0 {
		t.Fatalf("clients = %+v", clients)
	}
}

func TestClientRegistry(t *testing.T) {
	store, _ := newTestStore(t)

	created, err := store.CreateClient(context.Background(), models.Client{
		Name:       "Acme",
		AdminEmail: "ops@acme.test",
	})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	if created.ClientID == "" || created.Plan != models.PlanBasic {
		t.Fatalf("created = %+v", created)
	}

	created.Plan = models.PlanEnterprise
	if _, err := store.UpdateClient(context.Background(), created); err != nil {
		t.Fatalf("update client: %v", err)
	}

	clients, err := store.ListClients(context.Background())
	if err != nil {
		t.Fatalf("list clients: %v", err)
	}
	if len(clients) != 1 || clients[0].Plan != models.PlanEnterprise {
		t.Fatalf("clients = %+v", clients)
	}

	if err := store.DeleteClient(context.Background(), created.ClientID); err != nil {
		t.Fatalf("delete client: %v", err)
	}
	if err := store.DeleteClient(context.Background(), created.ClientID); !errors.Is(err, auth.ErrClientNotFound) {
		t.Fatalf("err = %v, want ErrClientNotFound", err)
	}
	if _, err := store.UpdateClient(context.Background(), created); !errors.Is(err, auth.ErrClientNotFound) {
		t.Fatalf("err = %v, want ErrClientNotFound", err)
	}
}
