package auth

import (
	"context"

	"github.com/manojawesome/AQueueMan/internal/models"
)

type RegisterInput struct {
	TenantID string
	Name     string
	Email    string
	Password string
}

type LoginInput struct {
	Email    string
	Password string
}

type LoginResult struct {
	User    models.User
	Session models.Session
}

// Store holds users, sessions, and the flat SaaS client registry. None of it
// touches queue state; the queue engine is consumed only through its own API.
type Store interface {
	Register(ctx context.Context, input RegisterInput) (models.User, error)
	Login(ctx context.Context, input LoginInput) (LoginResult, error)
	GetSession(ctx context.Context, sessionID string) (models.Session, models.User, error)
	DeleteSession(ctx context.Context, sessionID string) error

	ListClients(ctx context.Context) ([]models.Client, error)
	CreateClient(ctx context.Context, client models.Client) (models.Client, error)
	UpdateClient(ctx context.Context, client models.Client) (models.Client, error)
	DeleteClient(ctx context.Context, clientID string) error
}
