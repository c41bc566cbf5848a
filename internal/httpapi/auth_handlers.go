package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/manojawesome/AQueueMan/internal/auth"
	"github.com/manojawesome/AQueueMan/internal/models"
)

type registerRequest struct {
	TenantID        string `json:"tenant_id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionID string   `json:"session_id"`
	ExpiresAt string   `json:"expires_at"`
	User      userInfo `json:"user"`
}

type userInfo struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"is_admin"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.TenantID = strings.TrimSpace(req.TenantID)
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)

	if req.TenantID == "" || req.Name == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "tenant_id, name, email, and password are required")
		return
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		writeError(w, http.StatusBadRequest, "invalid_request", "passwords do not match")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "invalid_request", "password must be at least 6 characters")
		return
	}

	user, err := h.auth.Register(r.Context(), auth.RegisterInput{
		TenantID: req.TenantID,
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email_taken", "an account with this email already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toUserInfo(user))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	result, err := h.auth.Login(r.Context(), auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		SessionID: result.Session.SessionID,
		ExpiresAt: result.Session.ExpiresAt.Format(time.RFC3339),
		User:      toUserInfo(result.User),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sessionID := sessionIDFromRequest(r)
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing session")
		return
	}
	if err := h.auth.DeleteSession(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sessionID := sessionIDFromRequest(r)
	if sessionID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	_, user, err := h.auth.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, auth.ErrSessionNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid session")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toUserInfo(user))
}

type clientRequest struct {
	Name       string `json:"name"`
	AdminEmail string `json:"admin_email"`
	Plan       string `json:"plan"`
}

func (h *Handler) handleClients(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		clients, err := h.auth.ListClients(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		if clients == nil {
			clients = []models.Client{}
		}
		writeJSON(w, http.StatusOK, clients)
	case http.MethodPost:
		var req clientRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		req.AdminEmail = strings.TrimSpace(req.AdminEmail)
		req.Plan = strings.TrimSpace(req.Plan)
		if req.Name == "" || req.AdminEmail == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "name and admin_email are required")
			return
		}
		if req.Plan != "" && !models.ValidPlan(req.Plan) {
			writeError(w, http.StatusBadRequest, "invalid_request", "plan must be basic, pro, or enterprise")
			return
		}

		client, err := h.auth.CreateClient(r.Context(), models.Client{
			Name:       req.Name,
			AdminEmail: req.AdminEmail,
			Plan:       req.Plan,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, client)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleClient(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	clientID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/saas/clients/"), "/")
	if clientID == "" || strings.Contains(clientID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req clientRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		req.AdminEmail = strings.TrimSpace(req.AdminEmail)
		req.Plan = strings.TrimSpace(req.Plan)
		if req.Name == "" || req.AdminEmail == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "name and admin_email are required")
			return
		}
		if !models.ValidPlan(req.Plan) {
			writeError(w, http.StatusBadRequest, "invalid_request", "plan must be basic, pro, or enterprise")
			return
		}

		client, err := h.auth.UpdateClient(r.Context(), models.Client{
			ClientID:   clientID,
			Name:       req.Name,
			AdminEmail: req.AdminEmail,
			Plan:       req.Plan,
		})
		if err != nil {
			if errors.Is(err, auth.ErrClientNotFound) {
				writeError(w, http.StatusNotFound, "client_not_found", "client not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, client)
	case http.MethodDelete:
		if err := h.auth.DeleteClient(r.Context(), clientID); err != nil {
			if errors.Is(err, auth.ErrClientNotFound) {
				writeError(w, http.StatusNotFound, "client_not_found", "client not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func toUserInfo(user models.User) userInfo {
	return userInfo{
		UserID:   user.UserID,
		TenantID: user.TenantID,
		Name:     user.Name,
		Email:    user.Email,
		IsAdmin:  user.IsAdmin,
	}
}
