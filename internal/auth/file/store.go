package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/manojawesome/AQueueMan/internal/auth"
	"github.com/manojawesome/AQueueMan/internal/models"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type record struct {
	Users    []userRecord     `json:"users"`
	Sessions []models.Session `json:"sessions"`
	Clients  []models.Client  `json:"clients"`
}

type userRecord struct {
	models.User
	PasswordHash string `json:"password_hash"`
}

// Store keeps users, sessions, and the client registry in a single JSON
// file, mirroring the flat lists the system uses for snapshots.
type Store struct {
	mu         sync.Mutex
	path       string
	sessionTTL time.Duration
	adminEmail string
	data       record
}

// NewStore opens the directory file. The account registered with adminEmail
// becomes the platform admin, which is the only way the client registry
// endpoints open up.
func NewStore(dir string, sessionTTL time.Duration, adminEmail string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create auth dir: %w", err)
	}
	if sessionTTL <= 0 {
		sessionTTL = 8 * time.Hour
	}
	s := &Store{
		path:       filepath.Join(dir, "directory.json"),
		sessionTTL: sessionTTL,
		adminEmail: strings.ToLower(strings.TrimSpace(adminEmail)),
	}
	if raw, err := os.ReadFile(s.path); err == nil {
		// A corrupt directory file starts empty rather than failing startup.
		_ = json.Unmarshal(raw, &s.data)
	}
	return s, nil
}

func (s *Store) Register(ctx context.Context, input auth.RegisterInput) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(input.Email)
	for _, user := range s.data.Users {
		if user.Email == email {
			return models.User{}, auth.ErrEmailTaken
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	user := userRecord{
		User: models.User{
			UserID:   uuid.NewString(),
			TenantID: input.TenantID,
			Name:     input.Name,
			Email:    email,
			IsAdmin:  email != "" && email == s.adminEmail,
			Created:  time.Now().UTC(),
		},
		PasswordHash: string(hash),
	}
	s.data.Users = append(s.data.Users, user)

	if err := s.flush(); err != nil {
		return models.User{}, err
	}
	return user.User, nil
}

func (s *Store) Login(ctx context.Context, input auth.LoginInput) (auth.LoginResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(input.Email))
	for _, user := range s.data.Users {
		if user.Email != email {
			continue
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
			return auth.LoginResult{}, auth.ErrInvalidCredentials
		}
		session := models.Session{
			SessionID: uuid.NewString(),
			UserID:    user.UserID,
			ExpiresAt: time.Now().UTC().Add(s.sessionTTL),
		}
		s.pruneExpiredLocked(time.Now().UTC())
		s.data.Sessions = append(s.data.Sessions, session)
		if err := s.flush(); err != nil {
			return auth.LoginResult{}, err
		}
		return auth.LoginResult{User: user.User, Session: session}, nil
	}
	return auth.LoginResult{}, auth.ErrInvalidCredentials
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (models.Session, models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if s.pruneExpiredLocked(now) {
		_ = s.flush()
	}
	for _, session := range s.data.Sessions {
		if session.SessionID != sessionID {
			continue
		}
		for _, user := range s.data.Users {
			if user.UserID == session.UserID {
				return session, user.User, nil
			}
		}
	}
	return models.Session{}, models.User{}, auth.ErrSessionNotFound
}

// pruneExpiredLocked drops sessions past their expiry so the directory file
// does not accumulate dead rows. Caller holds the mutex.
func (s *Store) pruneExpiredLocked(now time.Time) bool {
	kept := s.data.Sessions[:0]
	for _, session := range s.data.Sessions {
		if session.ExpiresAt.After(now) {
			kept = append(kept, session)
		}
	}
	pruned := len(kept) != len(s.data.Sessions)
	s.data.Sessions = kept
	return pruned
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.data.Sessions[:0]
	for _, session := range s.data.Sessions {
		if session.SessionID != sessionID {
			kept = append(kept, session)
		}
	}
	s.data.Sessions = kept
	return s.flush()
}

func (s *Store) ListClients(ctx context.Context) ([]models.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clients := append([]models.Client(nil), s.data.Clients...)
	sort.Slice(clients, func(i, j int) bool { return clients[i].Name < clients[j].Name })
	return clients, nil
}

func (s *Store) CreateClient(ctx context.Context, client models.Client) (models.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if client.ClientID == "" {
		client.ClientID = uuid.NewString()
	}
	if client.Plan == "" {
		client.Plan = models.PlanBasic
	}
	s.data.Clients = append(s.data.Clients, client)
	if err := s.flush(); err != nil {
		return models.Client{}, err
	}
	return client, nil
}

func (s *Store) UpdateClient(ctx context.Context, client models.Client) (models.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.data.Clients {
		if s.data.Clients[i].ClientID == client.ClientID {
			s.data.Clients[i] = client
			if err := s.flush(); err != nil {
				return models.Client{}, err
			}
			return client, nil
		}
	}
	return models.Client{}, auth.ErrClientNotFound
}

func (s *Store) DeleteClient(ctx context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.data.Clients {
		if s.data.Clients[i].ClientID == clientID {
			s.data.Clients = append(s.data.Clients[:i], s.data.Clients[i+1:]...)
			return s.flush()
		}
	}
	return auth.ErrClientNotFound
}

func (s *Store) flush() error {
	data, err := json.Marshal(s.data)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
