package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/manojawesome/AQueueMan/internal/auth"
	"github.com/manojawesome/AQueueMan/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

type Store struct {
	pool       *pgxpool.Pool
	sessionTTL time.Duration
	adminEmail string
}

// NewStore wraps the pool. The account registered with adminEmail becomes
// the platform admin, which is the only way the client registry endpoints
// open up.
func NewStore(pool *pgxpool.Pool, sessionTTL time.Duration, adminEmail string) *Store {
	if sessionTTL <= 0 {
		sessionTTL = 8 * time.Hour
	}
	return &Store{
		pool:       pool,
		sessionTTL: sessionTTL,
		adminEmail: strings.ToLower(strings.TrimSpace(adminEmail)),
	}
}

// EnsureSchema creates the auth tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			expires_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS clients (
			client_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			admin_email TEXT NOT NULL,
			plan TEXT NOT NULL DEFAULT 'basic'
		);
	`)
	return err
}

func (s *Store) Register(ctx context.Context, input auth.RegisterInput) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		UserID:   uuid.NewString(),
		TenantID: input.TenantID,
		Name:     input.Name,
		Email:    strings.ToLower(input.Email),
		Created:  time.Now().UTC(),
	}
	user.IsAdmin = user.Email != "" && user.Email == s.adminEmail

	var exists bool
	row := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = $1)
	`, user.Email)
	if err := row.Scan(&exists); err != nil {
		return models.User{}, err
	}
	if exists {
		return models.User{}, auth.ErrEmailTaken
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (user_id, tenant_id, name, email, password_hash, is_admin, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.UserID, user.TenantID, user.Name, user.Email, string(hash), user.IsAdmin, user.Created)
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *Store) Login(ctx context.Context, input auth.LoginInput) (auth.LoginResult, error) {
	var user models.User
	var passwordHash string
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, tenant_id, name, email, password_hash, is_admin, created_at
		FROM users
		WHERE lower(email) = lower($1)
	`, input.Email)
	if err := row.Scan(&user.UserID, &user.TenantID, &user.Name, &user.Email, &passwordHash, &user.IsAdmin, &user.Created); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.LoginResult{}, auth.ErrInvalidCredentials
		}
		return auth.LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(input.Password)); err != nil {
		return auth.LoginResult{}, auth.ErrInvalidCredentials
	}

	session := models.Session{
		SessionID: uuid.NewString(),
		UserID:    user.UserID,
		ExpiresAt: time.Now().UTC().Add(s.sessionTTL),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, session.SessionID, session.UserID, session.ExpiresAt)
	if err != nil {
		return auth.LoginResult{}, err
	}

	return auth.LoginResult{User: user, Session: session}, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (models.Session, models.User, error) {
	var session models.Session
	var user models.User
	row := s.pool.QueryRow(ctx, `
		SELECT s.session_id, s.user_id, s.expires_at,
		       u.user_id, u.tenant_id, u.name, u.email, u.is_admin, u.created_at
		FROM sessions s
		JOIN users u ON u.user_id = s.user_id
		WHERE s.session_id = $1 AND s.expires_at > NOW()
	`, sessionID)
	if err := row.Scan(&session.SessionID, &session.UserID, &session.ExpiresAt,
		&user.UserID, &user.TenantID, &user.Name, &user.Email, &user.IsAdmin, &user.Created); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, models.User{}, auth.ErrSessionNotFound
		}
		return models.Session{}, models.User{}, err
	}
	return session, user, nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	return err
}

func (s *Store) ListClients(ctx context.Context) ([]models.Client, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT client_id, name, admin_email, plan
		FROM clients
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []models.Client
	for rows.Next() {
		var client models.Client
		if err := rows.Scan(&client.ClientID, &client.Name, &client.AdminEmail, &client.Plan); err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}

func (s *Store) CreateClient(ctx context.Context, client models.Client) (models.Client, error) {
	if client.ClientID == "" {
		client.ClientID = uuid.NewString()
	}
	if client.Plan == "" {
		client.Plan = models.PlanBasic
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO clients (client_id, name, admin_email, plan)
		VALUES ($1, $2, $3, $4)
	`, client.ClientID, client.Name, client.AdminEmail, client.Plan)
	if err != nil {
		return models.Client{}, err
	}
	return client, nil
}

func (s *Store) UpdateClient(ctx context.Context, client models.Client) (models.Client, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE clients
		SET name = $2, admin_email = $3, plan = $4
		WHERE client_id = $1
	`, client.ClientID, client.Name, client.AdminEmail, client.Plan)
	if err != nil {
		return models.Client{}, err
	}
	if tag.RowsAffected() == 0 {
		return models.Client{}, auth.ErrClientNotFound
	}
	return client, nil
}

func (s *Store) DeleteClient(ctx context.Context, clientID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM clients WHERE client_id = $1`, clientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrClientNotFound
	}
	return nil
}
