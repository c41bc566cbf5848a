package models

import "time"

type User struct {
	UserID   string    `json:"user_id"`
	TenantID string    `json:"tenant_id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	IsAdmin  bool      `json:"is_admin"`
	Created  time.Time `json:"created_at"`
}

type Session struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Client is one organization in the flat SaaS registry.
type Client struct {
	ClientID   string `json:"client_id"`
	Name       string `json:"name"`
	AdminEmail string `json:"admin_email"`
	Plan       string `json:"plan"`
}

const (
	PlanBasic      = "basic"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

func ValidPlan(plan string) bool {
	switch plan {
	case PlanBasic, PlanPro, PlanEnterprise:
		return true
	default:
		return false
	}
}
