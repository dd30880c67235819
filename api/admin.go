/*
admin.go - Admin-only HTTP handlers

ENDPOINTS:
  Reporting:
    GET    /admin/tasks                          List all tasks
    GET    /admin/summary                        Grand / sub-division / account-code totals
    GET    /admin/export                         XLSX of the filtered rows and totals

  Users:
    GET    /admin/users                          List users (q, role, is_active)
    POST   /admin/users                          Create user
    PATCH  /admin/users/{username}/status        Enable / disable
    POST   /admin/users/{username}/reset-password

  Audit:
    GET    /admin/audit                          Recent audit events (actor, limit)

All routes sit behind RequireAdmin (server.go).

EXPORT:
  A database snapshot is taken first. If it fails the export is refused with
  500 and the failure is audited; no workbook is produced without a backup.
*/
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rkv/capital-works/auth"
	"github.com/rkv/capital-works/backup"
	"github.com/rkv/capital-works/export"
	"github.com/rkv/capital-works/works"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// =============================================================================
// REPORTING
// =============================================================================

// AdminListTasks returns one page over every task.
func (h *Handler) AdminListTasks(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writePage(w, r, q)
}

// Summary returns the grouped totals of the filtered tasks.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	summary, err := h.Service.Summarize(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(summary))
}

// Export streams an XLSX workbook of the filtered, sorted tasks and their
// totals.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerIdentity(r.Context())

	query := r.URL.Query()
	f, err := parseFilter(query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sortBy, order, err := parseSort(query)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if h.Backups != nil {
		if _, err := h.Backups.Snapshot(r.Context(), backup.LabelExport); err != nil {
			h.record(r, works.AuditExport, caller.Username, caller.Role, works.AuditFailed,
				map[string]any{"reason": "backup_failed", "error": err.Error()})
			writeError(w, r, &apiError{
				Status:  http.StatusInternalServerError,
				Code:    CodeInternal,
				Message: "Backup failed before export.",
				Err:     err,
			})
			return
		}
	}

	tasks, err := h.Service.Select(r.Context(), f, sortBy, order)
	if err != nil {
		h.record(r, works.AuditExport, caller.Username, caller.Role, works.AuditError,
			map[string]any{"error": err.Error()})
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, tasks, works.Summarize(tasks, works.Filter{})); err != nil {
		h.record(r, works.AuditExport, caller.Username, caller.Role, works.AuditError,
			map[string]any{"error": err.Error()})
		writeError(w, r, err)
		return
	}

	h.record(r, works.AuditExport, caller.Username, caller.Role, works.AuditSuccess,
		map[string]any{"total_items": len(tasks)})

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", export.Filename(h.Now())))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

// =============================================================================
// USERS
// =============================================================================

// ListUsers returns accounts filtered by q (username substring), role and
// is_active (0/1 or true/false).
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	f := works.UserFilter{Query: strings.TrimSpace(query.Get("q"))}

	if role := strings.TrimSpace(query.Get("role")); role != "" {
		f.Role = works.Role(role)
		if !f.Role.Valid() {
			writeError(w, r, invalidQuery("role"))
			return
		}
	}
	if active := strings.TrimSpace(query.Get("is_active")); active != "" {
		b, err := strconv.ParseBool(active)
		if err != nil {
			writeError(w, r, invalidQuery("is_active"))
			return
		}
		f.IsActive = &b
	}

	users, err := h.Users.ListUsers(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}

	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateUser adds an active account.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerIdentity(r.Context())

	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, badRequest("Invalid request body.", err))
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Role == "" {
		req.Role = string(works.RoleUser)
	}

	var verrs works.ValidationErrors
	if req.Username == "" {
		verrs = append(verrs, works.FieldError{Field: "username", Message: works.MsgRequired})
	}
	if len(req.Password) < auth.MinPasswordLength {
		verrs = append(verrs, works.FieldError{Field: "password", Message: auth.ErrPasswordTooShort.Error()})
	}
	if !works.Role(req.Role).Valid() {
		verrs = append(verrs, works.FieldError{Field: "role", Message: "Must be admin or user"})
	}
	if len(verrs) > 0 {
		writeError(w, r, verrs)
		return
	}

	hash, err := auth.HashPassword(req.Password, h.BcryptCost)
	if err != nil {
		writeError(w, r, err)
		return
	}

	user := works.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: hash,
		Role:         works.Role(req.Role),
		IsActive:     true,
		CreatedAt:    h.Now(),
	}
	if err := h.Users.CreateUser(r.Context(), user); err != nil {
		h.record(r, works.AuditUserCreate, caller.Username, caller.Role, works.AuditFailed,
			map[string]any{"reason": err.Error(), "target_username": user.Username})
		writeError(w, r, err)
		return
	}

	h.record(r, works.AuditUserCreate, caller.Username, caller.Role, works.AuditSuccess,
		map[string]any{"target_username": user.Username, "role": string(user.Role)})

	writeJSON(w, http.StatusCreated, CreateUserResponse{
		UserID:   user.ID,
		Username: user.Username,
		Role:     string(user.Role),
	})
}

// SetUserStatus enables or disables an account.
func (h *Handler) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerIdentity(r.Context())
	target := chi.URLParam(r, "username")

	var req UserStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, badRequest("Invalid request body.", err))
		return
	}
	if req.IsActive == nil {
		writeError(w, r, works.ValidationErrors{{Field: "is_active", Message: works.MsgRequired}})
		return
	}

	active := bool(*req.IsActive)
	if err := h.Users.SetUserActive(r.Context(), target, active); err != nil {
		h.recordUserFailure(r, caller, works.AuditUserStatus, target, err)
		writeError(w, r, err)
		return
	}

	h.record(r, works.AuditUserStatus, caller.Username, caller.Role, works.AuditSuccess,
		map[string]any{"target_username": target, "is_active": active})
	writeJSON(w, http.StatusOK, StatusResponse{Status: "success"})
}

// ResetPassword replaces an account's password.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerIdentity(r.Context())
	target := chi.URLParam(r, "username")

	var req PasswordResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, badRequest("Invalid request body.", err))
		return
	}

	hash, err := auth.HashPassword(req.NewPassword, h.BcryptCost)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			err = works.ValidationErrors{{Field: "new_password", Message: err.Error()}}
		}
		writeError(w, r, err)
		return
	}

	if err := h.Users.SetUserPassword(r.Context(), target, hash); err != nil {
		h.recordUserFailure(r, caller, works.AuditPasswordReset, target, err)
		writeError(w, r, err)
		return
	}

	h.record(r, works.AuditPasswordReset, caller.Username, caller.Role, works.AuditSuccess,
		map[string]any{"target_username": target})
	writeJSON(w, http.StatusOK, StatusResponse{Status: "success"})
}

func (h *Handler) recordUserFailure(r *http.Request, caller auth.Identity, action works.AuditAction, target string, err error) {
	if works.IsNotFound(err) {
		h.record(r, action, caller.Username, caller.Role, works.AuditFailed,
			map[string]any{"reason": "user_not_found", "target_username": target})
		return
	}
	h.record(r, action, caller.Username, caller.Role, works.AuditError,
		map[string]any{"error": err.Error(), "target_username": target})
}

// =============================================================================
// AUDIT
// =============================================================================

// ListAudit returns recent audit events, newest first.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := defaultAuditLimit
	if v := strings.TrimSpace(query.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, r, invalidQuery("limit"))
			return
		}
		limit = min(n, maxAuditLimit)
	}

	events, err := h.Audit.Recent(r.Context(), strings.TrimSpace(query.Get("actor")), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	dtos := make([]AuditEventDTO, len(events))
	for i, e := range events {
		dtos[i] = toAuditEventDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}
