/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Tasks:
    TaskDTO, TaskListResponse
    (task submissions decode straight into works.RawTask)

  Totals:
    TotalsDTO, SummaryDTO, SubDivisionTotalsDTO, AccountCodeTotalsDTO

  Auth / users:
    LoginRequest, TokenResponse, UserDTO, CreateUserRequest,
    CreateUserResponse, UserStatusRequest, PasswordResetRequest

  Audit:
    AuditEventDTO

AMOUNTS:
  Amounts are stored as exact decimals and rendered as JSON numbers rounded
  to 2 decimal places.

SEE ALSO:
  - handlers.go: Uses these types
  - works/types.go: Domain types
*/
package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rkv/capital-works/works"
)

// =============================================================================
// TASKS
// =============================================================================

// TaskDTO is one stored task row.
type TaskDTO struct {
	SNo                int64   `json:"sno"`
	SubDivision        string  `json:"sub_division"`
	AccountCode        string  `json:"account_code"`
	NumberOfWorks      int64   `json:"number_of_works"`
	EstimateAmount     float64 `json:"estimate_amount"`
	AgreementAmount    float64 `json:"agreement_amount"`
	ExpUpto31032025    float64 `json:"exp_upto_31_03_2025"`
	BalanceAmount      float64 `json:"balance_amount_as_on_01_04_2025"`
	ExpUptoLastMonth   float64 `json:"exp_upto_last_month"`
	ExpDuringThisMonth float64 `json:"exp_during_this_month"`
	TotalExpDuringYear float64 `json:"total_exp_during_year"`
	TotalValueWorkDone float64 `json:"total_value_work_done_from_beginning"`
	WorksCompleted     int64   `json:"works_completed"`
	BalanceWorks       int64   `json:"balance_works"`
	CreatedBy          string  `json:"created_by"`
	CreatedAt          string  `json:"created_at"`
}

// TaskListResponse is one page of tasks.
type TaskListResponse struct {
	Items      []TaskDTO `json:"items"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	TotalItems int       `json:"total_items"`
	TotalPages int       `json:"total_pages"`
}

// =============================================================================
// TOTALS
// =============================================================================

// TotalsDTO holds the summed columns of a group of tasks.
type TotalsDTO struct {
	NumberOfWorks      int64   `json:"number_of_works"`
	EstimateAmount     float64 `json:"estimate_amount"`
	AgreementAmount    float64 `json:"agreement_amount"`
	ExpUpto31032025    float64 `json:"exp_upto_31_03_2025"`
	BalanceAmount      float64 `json:"balance_amount_as_on_01_04_2025"`
	ExpUptoLastMonth   float64 `json:"exp_upto_last_month"`
	ExpDuringThisMonth float64 `json:"exp_during_this_month"`
	TotalExpDuringYear float64 `json:"total_exp_during_year"`
	TotalValueWorkDone float64 `json:"total_value_work_done_from_beginning"`
	WorksCompleted     int64   `json:"works_completed"`
	BalanceWorks       int64   `json:"balance_works"`
}

// AccountCodeTotalsDTO is the totals of one account code in a sub-division.
type AccountCodeTotalsDTO struct {
	AccountCode string    `json:"account_code"`
	Totals      TotalsDTO `json:"totals"`
}

// SubDivisionTotalsDTO is the totals of one sub-division.
type SubDivisionTotalsDTO struct {
	SubDivision   string                 `json:"sub_division"`
	Totals        TotalsDTO              `json:"totals"`
	ByAccountCode []AccountCodeTotalsDTO `json:"by_account_code"`
}

// SummaryDTO is the grouped totals of a filtered task set.
type SummaryDTO struct {
	GrandTotals   TotalsDTO              `json:"grand_totals"`
	BySubDivision []SubDivisionTotalsDTO `json:"by_sub_division"`
}

// =============================================================================
// AUTH AND USERS
// =============================================================================

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is returned by a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Role        string `json:"role"`
	Username    string `json:"username"`
	ExpiresAt   string `json:"expires_at"`
}

// UserDTO is an account without its password hash.
type UserDTO struct {
	UserID      string  `json:"user_id"`
	Username    string  `json:"username"`
	Role        string  `json:"role"`
	IsActive    bool    `json:"is_active"`
	CreatedAt   string  `json:"created_at"`
	LastLoginAt *string `json:"last_login_at"`
}

// CreateUserRequest is the body of POST /admin/users.
type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// CreateUserResponse confirms a new account.
type CreateUserResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// UserStatusRequest is the body of PATCH /admin/users/{username}/status.
type UserStatusRequest struct {
	IsActive *Flag `json:"is_active"`
}

// Flag is a boolean that also accepts 0 and 1.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	switch strings.TrimSpace(string(b)) {
	case "true", "1":
		*f = true
	case "false", "0":
		*f = false
	default:
		return fmt.Errorf("invalid flag %s", b)
	}
	return nil
}

// PasswordResetRequest is the body of POST /admin/users/{username}/reset-password.
type PasswordResetRequest struct {
	NewPassword string `json:"new_password"`
}

// StatusResponse is a bare acknowledgement.
type StatusResponse struct {
	Status string `json:"status"`
}

// =============================================================================
// AUDIT, META, HEALTH
// =============================================================================

// AuditEventDTO is one audit log entry.
type AuditEventDTO struct {
	ID        string         `json:"id"`
	At        string         `json:"ts"`
	Action    string         `json:"action"`
	Actor     string         `json:"actor"`
	Role      string         `json:"role"`
	Status    string         `json:"status"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	TraceID   string         `json:"trace_id"`
	IP        string         `json:"ip"`
	UserAgent string         `json:"user_agent"`
}

// SubDivisionsResponse lists the configured sub-division names.
type SubDivisionsResponse struct {
	SubDivisions []string `json:"subdivisions"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

// amount renders a decimal for JSON.
func amount(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func toTaskDTO(t works.Task) TaskDTO {
	return TaskDTO{
		SNo:                t.SNo,
		SubDivision:        t.SubDivision,
		AccountCode:        string(t.AccountCode),
		NumberOfWorks:      t.NumberOfWorks,
		EstimateAmount:     amount(t.EstimateAmount),
		AgreementAmount:    amount(t.AgreementAmount),
		ExpUpto31032025:    amount(t.ExpUpto31032025),
		BalanceAmount:      amount(t.BalanceAmount),
		ExpUptoLastMonth:   amount(t.ExpUptoLastMonth),
		ExpDuringThisMonth: amount(t.ExpDuringThisMonth),
		TotalExpDuringYear: amount(t.TotalExpDuringYear),
		TotalValueWorkDone: amount(t.TotalValueWorkDone),
		WorksCompleted:     t.WorksCompleted,
		BalanceWorks:       t.BalanceWorks,
		CreatedBy:          t.CreatedBy,
		CreatedAt:          t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toTaskDTOs(tasks []works.Task) []TaskDTO {
	dtos := make([]TaskDTO, len(tasks))
	for i, t := range tasks {
		dtos[i] = toTaskDTO(t)
	}
	return dtos
}

func toTotalsDTO(s works.Totals) TotalsDTO {
	return TotalsDTO{
		NumberOfWorks:      s.NumberOfWorks,
		EstimateAmount:     amount(s.EstimateAmount),
		AgreementAmount:    amount(s.AgreementAmount),
		ExpUpto31032025:    amount(s.ExpUpto31032025),
		BalanceAmount:      amount(s.BalanceAmount),
		ExpUptoLastMonth:   amount(s.ExpUptoLastMonth),
		ExpDuringThisMonth: amount(s.ExpDuringThisMonth),
		TotalExpDuringYear: amount(s.TotalExpDuringYear),
		TotalValueWorkDone: amount(s.TotalValueWorkDone),
		WorksCompleted:     s.WorksCompleted,
		BalanceWorks:       s.BalanceWorks,
	}
}

func toSummaryDTO(s works.Summary) SummaryDTO {
	out := SummaryDTO{
		GrandTotals:   toTotalsDTO(s.GrandTotals),
		BySubDivision: make([]SubDivisionTotalsDTO, len(s.BySubDivision)),
	}
	for i, sub := range s.BySubDivision {
		codes := make([]AccountCodeTotalsDTO, len(sub.ByAccountCode))
		for j, c := range sub.ByAccountCode {
			codes[j] = AccountCodeTotalsDTO{AccountCode: string(c.AccountCode), Totals: toTotalsDTO(c.Totals)}
		}
		out.BySubDivision[i] = SubDivisionTotalsDTO{
			SubDivision:   sub.SubDivision,
			Totals:        toTotalsDTO(sub.Totals),
			ByAccountCode: codes,
		}
	}
	return out
}

func toUserDTO(u works.User) UserDTO {
	dto := UserDTO{
		UserID:    u.ID,
		Username:  u.Username,
		Role:      string(u.Role),
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
	if u.LastLoginAt != nil {
		s := u.LastLoginAt.UTC().Format(time.RFC3339)
		dto.LastLoginAt = &s
	}
	return dto
}

func toAuditEventDTO(e works.AuditEvent) AuditEventDTO {
	return AuditEventDTO{
		ID:        e.ID,
		At:        e.At.UTC().Format(time.RFC3339),
		Action:    string(e.Action),
		Actor:     e.Actor,
		Role:      string(e.Role),
		Status:    string(e.Status),
		Metadata:  e.Metadata,
		TraceID:   e.TraceID,
		IP:        e.IP,
		UserAgent: e.UserAgent,
	}
}
