package httpapi

import (
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strings"
	"time"

	"github.com/manojawesome/AQueueMan/internal/auth"
	"github.com/manojawesome/AQueueMan/internal/models"
	"github.com/manojawesome/AQueueMan/internal/queue"
)

type Handler struct {
	engines *queue.Manager
	auth    auth.Store
}

func NewHandler(engines *queue.Manager, authStore auth.Store) *Handler {
	return &Handler{engines: engines, auth: authStore}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/auth/register", h.handleRegister)
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/logout", h.handleLogout)
	mux.HandleFunc("/api/auth/me", h.handleMe)
	mux.HandleFunc("/api/tokens", h.handleTokens)
	mux.HandleFunc("/api/tokens/actions/call-next", h.handleCallNext)
	mux.HandleFunc("/api/tokens/search", h.handleTokenSearch)
	mux.HandleFunc("/api/tokens/", h.handleTokenSubpaths)
	mux.HandleFunc("/api/queue", h.handleDepartmentQueue)
	mux.HandleFunc("/api/queue/completed", h.handleCompletedTokens)
	mux.HandleFunc("/api/stats", h.handleStats)
	mux.HandleFunc("/api/config", h.handleConfig)
	mux.HandleFunc("/api/departments", h.handleDepartments)
	mux.HandleFunc("/api/departments/", h.handleDepartment)
	mux.HandleFunc("/api/saas/clients", h.handleClients)
	mux.HandleFunc("/api/saas/clients/", h.handleClient)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type createTokenRequest struct {
	TenantID        string `json:"tenant_id"`
	CustomerName    string `json:"customer_name"`
	DepartmentID    string `json:"department_id"`
	Priority        string `json:"priority"`
	AppointmentTime string `json:"appointment_time"`
	ServiceType     string `json:"service_type"`
}

func (h *Handler) handleTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req createTokenRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	req.TenantID = strings.TrimSpace(req.TenantID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.DepartmentID = strings.TrimSpace(req.DepartmentID)
	req.Priority = strings.TrimSpace(req.Priority)
	req.ServiceType = strings.TrimSpace(req.ServiceType)

	if req.TenantID == "" || req.CustomerName == "" || req.DepartmentID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "tenant_id, customer_name, and department_id are required")
		return
	}
	if req.Priority != "" && !models.ValidPriority(req.Priority) {
		writeError(w, http.StatusBadRequest, "invalid_request", "priority must be high, medium, or low")
		return
	}

	var appointment *time.Time
	if raw := strings.TrimSpace(req.AppointmentTime); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "appointment_time must be RFC3339 timestamp")
			return
		}
		appointment = &parsed
	}

	engine, ok := h.engine(w, r, req.TenantID)
	if !ok {
		return
	}

	token, err := engine.GenerateToken(r.Context(), queue.GenerateTokenInput{
		CustomerName:    req.CustomerName,
		DepartmentID:    req.DepartmentID,
		Priority:        req.Priority,
		AppointmentTime: appointment,
		ServiceType:     req.ServiceType,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, token)
}

type callNextRequest struct {
	TenantID     string `json:"tenant_id"`
	DepartmentID string `json:"department_id"`
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req callNextRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.TenantID = strings.TrimSpace(req.TenantID)
	req.DepartmentID = strings.TrimSpace(req.DepartmentID)
	if req.TenantID == "" || req.DepartmentID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "tenant_id and department_id are required")
		return
	}
	if !requireTenant(w, r, req.TenantID) {
		return
	}

	engine, ok := h.engine(w, r, req.TenantID)
	if !ok {
		return
	}

	token, err := engine.CallNext(r.Context(), req.DepartmentID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, token)
}

// handleTokenSubpaths dispatches /api/tokens/{id}/actions/{action} and
// /api/tokens/{id}/position.
func (h *Handler) handleTokenSubpaths(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/tokens/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 2 && parts[1] == "position":
		h.handleTokenPosition(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "actions":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		switch parts[2] {
		case "complete":
			h.handleCompleteToken(w, r, parts[0])
		case "cancel":
			h.handleCancelToken(w, r, parts[0])
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type tokenActionRequest struct {
	TenantID string `json:"tenant_id"`
}

func (h *Handler) handleCompleteToken(w http.ResponseWriter, r *http.Request, tokenID string) {
	var req tokenActionRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.TenantID = strings.TrimSpace(req.TenantID)
	if req.TenantID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "tenant_id is required")
		return
	}
	if !requireTenant(w, r, req.TenantID) {
		return
	}

	engine, ok := h.engine(w, r, req.TenantID)
	if !ok {
		return
	}

	token, err := engine.CompleteToken(r.Context(), tokenID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, token)
}

func (h *Handler) handleCancelToken(w http.ResponseWriter, r *http.Request, tokenID string) {
	var req tokenActionRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.TenantID = strings.TrimSpace(req.TenantID)
	if req.TenantID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "tenant_id is required")
		return
	}
	if !requireTenant(w, r, req.TenantID) {
		return
	}

	engine, ok := h.engine(w, r, req.TenantID)
	if !ok {
		return
	}

	token, err := engine.CancelToken(r.Context(), tokenID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, token)
}

type positionResponse struct {
	TokenID  string `json:"token_id"`
	Position int    `json:"position"`
}

func (h *Handler) handleTokenPosition(w http.ResponseWriter, r *http.Request, tokenID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "tenant_id is required")
		return
	}

	engine, ok := h.engine(w, r, tenantID)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, positionResponse{
		TokenID:  tokenID,
		Position: engine.GetTokenPosition(tokenID),
	})
}

func (h *Handler) handleTokenSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if tenantID == "" || query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "tenant_id and q are required")
		return
	}

	engine, ok := h.engine(w, r, tenantID)
	if !ok {
		return
	}

	token, found := engine.FindToken(query)
	if !found {
		writeError(w, http.StatusNotFound, "token_not_found", "no token matches the query")
		return
	}

	writeJSON(w, http.StatusOK, token)
}

func (h *Handler) handleDepartmentQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
	departmentID := strings.TrimSpace(r.URL.Query().Get("department_id"))
	if tenantID == "" || departmentID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "tenant_id and department_id are required")
		return
	}
	if !requireTenant(w, r, tenantID) {
		return
	}

	engine, ok := h.engine(w, r, tenantID)
	if !ok {
		return
	}

	tokens := engine.GetDepartmentQueue(departmentID)
	if tokens == nil {
		tokens = []models.Token{}
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) handleCompletedTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "tenant_id is required")
		return
	}
	if !requireTenant(w, r, tenantID) {
		return
	}

	engine, ok := h.engine(w, r, tenantID)
	if !ok {
		return
	}

	tokens := engine.CompletedTokens()
	if tokens == nil {
		tokens = []models.Token{}
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "tenant_id is required")
		return
	}
	if !requireTenant(w, r, tenantID) {
		return
	}

	engine, ok := h.engine(w, r, tenantID)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, engine.GetQueueStats())
}

type updateConfigRequest struct {
	TenantID     string                       `json:"tenant_id"`
	Name         string                       `json:"name"`
	LogoURL      string                       `json:"logo_url"`
	ThemeColor   string                       `json:"theme_color"`
	BusinessType string                       `json:"business_type"`
	Settings     *models.TypeSpecificSettings `json:"type_specific_settings"`
}

func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
		if tenantID == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "tenant_id is required")
			return
		}
		if !requireTenant(w, r, tenantID) {
			return
		}
		engine, ok := h.engine(w, r, tenantID)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, engine.BusinessConfig())
	case http.MethodPut:
		var req updateConfigRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		req.TenantID = strings.TrimSpace(req.TenantID)
		req.Name = strings.TrimSpace(req.Name)
		req.BusinessType = strings.TrimSpace(req.BusinessType)
		if req.TenantID == "" || req.Name == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "tenant_id and name are required")
			return
		}
		if !models.ValidBusinessType(req.BusinessType) {
			writeError(w, http.StatusBadRequest, "invalid_request", "business_type must be hospital, store, or bank")
			return
		}
		if !requireTenant(w, r, req.TenantID) {
			return
		}

		engine, ok := h.engine(w, r, req.TenantID)
		if !ok {
			return
		}

		config := models.BusinessConfig{
			Name:         req.Name,
			LogoURL:      strings.TrimSpace(req.LogoURL),
			ThemeColor:   strings.TrimSpace(req.ThemeColor),
			BusinessType: req.BusinessType,
		}
		if req.Settings != nil {
			config.TypeSpecificSettings = *req.Settings
		} else {
			// Switching business type swaps in that type's stock labels.
			config.TypeSpecificSettings = models.TypeSpecificSettings{
				ServiceTypes: models.DefaultServiceTypes(req.BusinessType),
			}
		}
		if err := engine.UpdateBusinessConfig(r.Context(), config); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, config)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type departmentRequest struct {
	TenantID    string `json:"tenant_id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	AvgWaitTime int    `json:"avg_wait_time"`
	TokenPrefix string `json:"token_prefix"`
}

func (h *Handler) handleDepartments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
		if tenantID == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "tenant_id is required")
			return
		}
		if !requireTenant(w, r, tenantID) {
			return
		}
		engine, ok := h.engine(w, r, tenantID)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, engine.Departments())
	case http.MethodPost:
		var req departmentRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		req.TenantID = strings.TrimSpace(req.TenantID)
		req.Name = strings.TrimSpace(req.Name)
		req.TokenPrefix = strings.TrimSpace(req.TokenPrefix)
		if req.TenantID == "" || req.Name == "" || req.TokenPrefix == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "tenant_id, name, and token_prefix are required")
			return
		}
		if req.AvgWaitTime < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "avg_wait_time must not be negative")
			return
		}
		if !requireTenant(w, r, req.TenantID) {
			return
		}

		engine, ok := h.engine(w, r, req.TenantID)
		if !ok {
			return
		}

		dept, err := engine.AddDepartment(r.Context(), queue.DepartmentSpec{
			Name:        req.Name,
			Color:       strings.TrimSpace(req.Color),
			AvgWaitTime: req.AvgWaitTime,
			TokenPrefix: req.TokenPrefix,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, dept)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type updateDepartmentRequest struct {
	TenantID    string  `json:"tenant_id"`
	Name        *string `json:"name"`
	Color       *string `json:"color"`
	AvgWaitTime *int    `json:"avg_wait_time"`
	TokenPrefix *string `json:"token_prefix"`
}

func (h *Handler) handleDepartment(w http.ResponseWriter, r *http.Request) {
	departmentID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/departments/"), "/")
	if departmentID == "" || strings.Contains(departmentID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var req updateDepartmentRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		req.TenantID = strings.TrimSpace(req.TenantID)
		if req.TenantID == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "tenant_id is required")
			return
		}
		if req.AvgWaitTime != nil && *req.AvgWaitTime < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "avg_wait_time must not be negative")
			return
		}
		if !requireTenant(w, r, req.TenantID) {
			return
		}

		engine, ok := h.engine(w, r, req.TenantID)
		if !ok {
			return
		}

		dept, err := engine.UpdateDepartment(r.Context(), departmentID, queue.DepartmentUpdate{
			Name:        req.Name,
			Color:       req.Color,
			AvgWaitTime: req.AvgWaitTime,
			TokenPrefix: req.TokenPrefix,
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, dept)
	case http.MethodDelete:
		tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
		if tenantID == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "tenant_id is required")
			return
		}
		if !requireTenant(w, r, tenantID) {
			return
		}

		engine, ok := h.engine(w, r, tenantID)
		if !ok {
			return
		}

		if err := engine.RemoveDepartment(r.Context(), departmentID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) engine(w http.ResponseWriter, r *http.Request, tenantID string) (*queue.Engine, bool) {
	engine, err := h.engines.Engine(r.Context(), tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return nil, false
	}
	return engine, true
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, queue.ErrDepartmentNotFound):
		return http.StatusNotFound, "department_not_found", "department not found"
	case errors.Is(err, queue.ErrTokenNotFound):
		return http.StatusNotFound, "token_not_found", "token not found"
	case errors.Is(err, queue.ErrNoToken):
		return http.StatusConflict, "queue_empty", "no tokens waiting"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
