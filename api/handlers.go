/*
handlers.go - HTTP API handlers for the capital works portal

PURPOSE:
  Exposes the works engine via REST API. Handles HTTP request/response,
  JSON serialization, authorization and auditing, and delegates to the
  works.Service for everything else.

ENDPOINTS:
  Auth:
    POST   /auth/login                 Exchange credentials for a token

  Tasks (any signed-in user):
    GET    /tasks                      List own tasks (admins: all tasks)
    POST   /tasks                      Create task
    GET    /tasks/{sno}                Get task (owner or admin)
    PATCH  /tasks/{sno}                Update task (owner or admin)
    DELETE /tasks/{sno}                Delete task (owner or admin)

  Meta:
    GET    /meta/subdivisions          Configured sub-division names
    GET    /meta/templates             Configured entry templates

  Health:
    GET    /healthz                    Liveness and store ping

  Admin endpoints live in admin.go.

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Service: task validation, persistence and queries
  - Users, Audit: account store and audit log
  - Auth: credential check, token issue/parse, login rate limiting
  - Backups: snapshot before export (optional)

REQUEST FLOW:
  1. Parse HTTP request (query parameters are rejected with 400 when malformed)
  2. Check ownership / role
  3. Call the works service
  4. Record an audit event for mutations
  5. Serialize response, or map the error (errors.go)

SEE ALSO:
  - dto.go: Request/response data structures
  - admin.go: Admin handlers
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rkv/capital-works/auth"
	"github.com/rkv/capital-works/backup"
	"github.com/rkv/capital-works/config"
	"github.com/rkv/capital-works/works"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports whether the record store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *works.Service
	Users   works.UserStore
	Audit   works.AuditLog
	Auth    *auth.Authenticator

	// Backups, when set, takes a snapshot before every export.
	Backups *backup.Manager

	// Pinger, when set, is checked by /healthz.
	Pinger Pinger

	Portal     config.PortalConfig
	BcryptCost int

	Now func() time.Time
}

// NewHandler creates a handler over the given service, stores and authenticator.
func NewHandler(svc *works.Service, users works.UserStore, audit works.AuditLog, authn *auth.Authenticator) *Handler {
	return &Handler{
		Service:    svc,
		Users:      users,
		Audit:      audit,
		Auth:       authn,
		BcryptCost: 12,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// Login exchanges a username and password for a bearer token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, badRequest("Invalid request body.", err))
		return
	}
	if err := requireFields(map[string]string{"username": req.Username, "password": req.Password}); err != nil {
		writeError(w, r, err)
		return
	}

	session, user, err := h.Auth.Login(r.Context(), req.Username, req.Password, clientIP(r))
	if err != nil {
		var rlErr *auth.RateLimitError
		switch {
		case errors.As(err, &rlErr):
			h.record(r, works.AuditLoginFailed, req.Username, "", works.AuditRateLimited,
				map[string]any{"reason": rlErr.Reason})
		case errors.Is(err, auth.ErrInvalidCredentials):
			h.record(r, works.AuditLoginFailed, req.Username, "", works.AuditFailed,
				map[string]any{"reason": "invalid_credentials"})
		case errors.Is(err, auth.ErrInactiveUser):
			h.record(r, works.AuditLoginFailed, req.Username, user.Role, works.AuditFailed,
				map[string]any{"reason": "inactive"})
		default:
			h.record(r, works.AuditLoginFailed, req.Username, user.Role, works.AuditError,
				map[string]any{"error": err.Error()})
		}
		writeError(w, r, err)
		return
	}

	h.record(r, works.AuditLoginSuccess, session.Username, session.Role, works.AuditSuccess, nil)

	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken: session.Token,
		TokenType:   "bearer",
		Role:        string(session.Role),
		Username:    session.Username,
		ExpiresAt:   session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// =============================================================================
// TASK HANDLERS
// =============================================================================

// ListTasks returns one page of tasks. Non-admins only see their own.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerIdentity(r.Context())

	q, err := parseListQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !caller.IsAdmin() {
		q.Filter.Owner = caller.Username
	}
	h.writePage(w, r, q)
}

func (h *Handler) writePage(w http.ResponseWriter, r *http.Request, q works.ListQuery) {
	page, err := h.Service.List(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, TaskListResponse{
		Items:      toTaskDTOs(page.Items),
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalItems: page.TotalItems,
		TotalPages: page.TotalPages,
	})
}

// CreateTask validates and stores a new task owned by the caller.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerIdentity(r.Context())

	var raw works.RawTask
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, r, badRequest("Invalid request body.", err))
		return
	}

	task, err := h.Service.Create(r.Context(), raw, caller.Username)
	if err != nil {
		h.recordTaskFailure(r, caller, works.AuditTaskCreate, 0, err)
		writeError(w, r, err)
		return
	}

	h.record(r, works.AuditTaskCreate, caller.Username, caller.Role, works.AuditSuccess,
		map[string]any{"sno": task.SNo})
	writeJSON(w, http.StatusCreated, toTaskDTO(task))
}

// GetTask returns one task.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerIdentity(r.Context())

	task, err := h.ownedTask(r, caller, "view")
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskDTO(task))
}

// UpdateTask merges the submitted fields over the stored task and re-validates.
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerIdentity(r.Context())

	existing, err := h.ownedTask(r, caller, "edit")
	if err != nil {
		if errors.Is(err, errForbidden) {
			h.recordTaskFailure(r, caller, works.AuditTaskUpdate, existing.SNo, err)
		}
		writeError(w, r, err)
		return
	}

	var patch works.RawTask
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, r, badRequest("Invalid request body.", err))
		return
	}

	task, err := h.Service.Update(r.Context(), existing.SNo, patch)
	if err != nil {
		h.recordTaskFailure(r, caller, works.AuditTaskUpdate, existing.SNo, err)
		writeError(w, r, err)
		return
	}

	h.record(r, works.AuditTaskUpdate, caller.Username, caller.Role, works.AuditSuccess,
		map[string]any{"sno": task.SNo})
	writeJSON(w, http.StatusOK, toTaskDTO(task))
}

// DeleteTask removes a task.
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerIdentity(r.Context())

	existing, err := h.ownedTask(r, caller, "delete")
	if err != nil {
		if errors.Is(err, errForbidden) {
			h.recordTaskFailure(r, caller, works.AuditTaskDelete, existing.SNo, err)
		}
		writeError(w, r, err)
		return
	}

	if err := h.Service.Delete(r.Context(), existing.SNo); err != nil {
		h.recordTaskFailure(r, caller, works.AuditTaskDelete, existing.SNo, err)
		writeError(w, r, err)
		return
	}

	h.record(r, works.AuditTaskDelete, caller.Username, caller.Role, works.AuditSuccess,
		map[string]any{"sno": existing.SNo})
	w.WriteHeader(http.StatusNoContent)
}

// ownedTask loads the task named in the URL and checks the caller may act on
// it. A missing task is reported before a foreign one. On a forbidden error
// the returned task is still the stored one.
func (h *Handler) ownedTask(r *http.Request, caller auth.Identity, verb string) (works.Task, error) {
	sno, err := strconv.ParseInt(chi.URLParam(r, "sno"), 10, 64)
	if err != nil || sno < 1 {
		return works.Task{}, works.ErrTaskNotFound
	}

	task, err := h.Service.Get(r.Context(), sno)
	if err != nil {
		return works.Task{}, err
	}
	if !caller.IsAdmin() && task.CreatedBy != caller.Username {
		return task, forbidden("Not allowed to " + verb + " this task.")
	}
	return task, nil
}

func (h *Handler) recordTaskFailure(r *http.Request, caller auth.Identity, action works.AuditAction, sno int64, err error) {
	status := works.AuditFailed
	metadata := map[string]any{}
	if sno > 0 {
		metadata["sno"] = sno
	}

	var verrs works.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		metadata["field_errors"] = verrs.Fields()
	case errors.Is(err, errForbidden):
		metadata["reason"] = "not_owner"
	case works.IsNotFound(err):
		metadata["reason"] = "not_found"
	default:
		status = works.AuditError
		metadata["error"] = err.Error()
	}
	h.record(r, action, caller.Username, caller.Role, status, metadata)
}

// =============================================================================
// META HANDLERS
// =============================================================================

// ListSubDivisions returns the configured sub-division names.
func (h *Handler) ListSubDivisions(w http.ResponseWriter, r *http.Request) {
	subs := h.Portal.SubDivisions
	if subs == nil {
		subs = []string{}
	}
	writeJSON(w, http.StatusOK, SubDivisionsResponse{SubDivisions: subs})
}

// ListTemplates returns the configured entry templates.
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates := h.Portal.Templates
	if templates == nil {
		templates = []config.Template{}
	}
	writeJSON(w, http.StatusOK, templates)
}

// Health reports liveness and, when a pinger is set, store reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Pinger.Ping(ctx); err != nil {
			writeError(w, r, works.Backend("ping", err))
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   h.Now().UTC().Format(time.RFC3339),
	})
}

// =============================================================================
// QUERY PARAMETERS
// =============================================================================

// parseFilter reads sub_division, account_code, date_from and date_to.
func parseFilter(q url.Values) (works.Filter, error) {
	f := works.Filter{SubDivision: strings.TrimSpace(q.Get("sub_division"))}

	if code := strings.TrimSpace(q.Get("account_code")); code != "" {
		ac, ok := works.ParseAccountCode(code)
		if !ok {
			return works.Filter{}, invalidQuery("account_code")
		}
		f.AccountCode = ac
	}

	for _, bound := range []struct {
		param string
		end   bool
		dst   **time.Time
	}{
		{"date_from", false, &f.From},
		{"date_to", true, &f.To},
	} {
		value := strings.TrimSpace(q.Get(bound.param))
		if value == "" {
			continue
		}
		t, err := works.ParseDateBound(value, bound.end)
		if err != nil {
			return works.Filter{}, invalidQuery(bound.param)
		}
		*bound.dst = &t
	}
	return f, nil
}

// parseSort reads sort_by and order. An unknown sort_by falls back to sno.
func parseSort(q url.Values) (string, string, error) {
	order := strings.ToLower(strings.TrimSpace(q.Get("order")))
	switch order {
	case "":
		order = works.OrderAsc
	case works.OrderAsc, works.OrderDesc:
	default:
		return "", "", invalidQuery("order")
	}
	return strings.TrimSpace(q.Get("sort_by")), order, nil
}

// parseListQuery reads the filter, sort and page parameters.
func parseListQuery(q url.Values) (works.ListQuery, error) {
	f, err := parseFilter(q)
	if err != nil {
		return works.ListQuery{}, err
	}
	sortBy, order, err := parseSort(q)
	if err != nil {
		return works.ListQuery{}, err
	}

	lq := works.ListQuery{Filter: f, SortBy: sortBy, Order: order}
	for _, p := range []struct {
		param string
		dst   *int
	}{
		{"page", &lq.Page},
		{"page_size", &lq.PageSize},
	} {
		value := strings.TrimSpace(q.Get(p.param))
		if value == "" {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return works.ListQuery{}, invalidQuery(p.param)
		}
		*p.dst = n
	}
	return lq, nil
}

// requireFields returns a ValidationErrors naming every empty field, or nil.
func requireFields(fields map[string]string) error {
	var verrs works.ValidationErrors
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if strings.TrimSpace(fields[name]) == "" {
			verrs = append(verrs, works.FieldError{Field: name, Message: works.MsgRequired})
		}
	}
	if len(verrs) == 0 {
		return nil
	}
	return verrs
}

// =============================================================================
// AUDIT
// =============================================================================

// record appends an audit event. Failures are logged, never returned: the
// audited operation has already happened.
func (h *Handler) record(r *http.Request, action works.AuditAction, actor string, role works.Role, status works.AuditStatus, metadata map[string]any) {
	if h.Audit == nil {
		return
	}
	e := works.AuditEvent{
		ID:        uuid.NewString(),
		At:        h.Now(),
		Action:    action,
		Actor:     actor,
		Role:      role,
		Status:    status,
		Metadata:  metadata,
		TraceID:   TraceID(r.Context()),
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
	if err := h.Audit.Append(r.Context(), e); err != nil {
		log.Printf("[Audit] Failed to record %s for %s: %v", action, actor, err)
	}
}
