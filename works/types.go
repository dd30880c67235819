/*
Package works provides the capital-works record engine.

PURPOSE:
  This package holds the domain types and the two pure components of the
  portal: the record validator/deriver and the query engine. Everything here
  is storage-agnostic; persistence is reached through the interfaces in
  store.go.

KEY CONCEPTS IN THIS FILE (types.go):
  - AccountCode: Spill (carried-over work) or New
  - Inputs:      The user-entered fields of one task, parsed and typed
  - Derived:     Fields computed from Inputs, never entered by a user
  - Task:        One stored row (identity + inputs + derived + provenance)
  - User:        A portal account

PRECISION:
  Amounts use decimal.Decimal and are stored at full precision. Rounding to
  two places happens only when a value is presented (see api/dto.go).

SEE ALSO:
  - validate.go: RawTask parsing, validation and derivation
  - query.go:    Filter / sort / paginate / summarize
  - service.go:  Create / update / delete orchestration over a Store
*/
package works

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CLASSIFICATION
// =============================================================================

// AccountCode classifies a task as carried-over or new work.
type AccountCode string

const (
	AccountSpill AccountCode = "Spill"
	AccountNew   AccountCode = "New"
)

// Valid reports whether c is one of the known account codes.
func (c AccountCode) Valid() bool {
	return c == AccountSpill || c == AccountNew
}

// AccountCodes lists the account codes in presentation order.
var AccountCodes = []AccountCode{AccountNew, AccountSpill}

// ParseAccountCode returns the account code for s. Matching is exact.
func ParseAccountCode(s string) (AccountCode, bool) {
	c := AccountCode(s)
	return c, c.Valid()
}

// =============================================================================
// TASK RECORD
// =============================================================================

// Inputs are the user-entered fields of a task after parsing.
type Inputs struct {
	SubDivision        string
	AccountCode        AccountCode
	NumberOfWorks      int64
	EstimateAmount     decimal.Decimal
	AgreementAmount    decimal.Decimal
	ExpUpto31032025    decimal.Decimal
	ExpUptoLastMonth   decimal.Decimal
	ExpDuringThisMonth decimal.Decimal
	WorksCompleted     int64
}

// Derived holds the computed fields of a task.
type Derived struct {
	// BalanceAmount is the balance as on 01-04-2025.
	BalanceAmount      decimal.Decimal
	TotalExpDuringYear decimal.Decimal
	// TotalValueWorkDone is the total value of work done from the beginning.
	TotalValueWorkDone decimal.Decimal
	BalanceWorks       int64
}

// Derive computes the derived fields from in. It does not validate; callers
// go through ValidateAndDerive.
func Derive(in Inputs) Derived {
	totalYear := in.ExpUptoLastMonth.Add(in.ExpDuringThisMonth)
	return Derived{
		BalanceAmount:      in.AgreementAmount.Sub(in.ExpUpto31032025),
		TotalExpDuringYear: totalYear,
		TotalValueWorkDone: in.ExpUpto31032025.Add(totalYear),
		BalanceWorks:       in.NumberOfWorks - in.WorksCompleted,
	}
}

// Task is one capital-works row.
type Task struct {
	SNo int64
	Inputs
	Derived
	CreatedBy string
	CreatedAt time.Time
}

// =============================================================================
// USERS
// =============================================================================

// Role is a portal role.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User is a portal account. Users are never deleted, only deactivated.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         Role
	IsActive     bool
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// UserFilter narrows ListUsers. Zero values match everything.
type UserFilter struct {
	// Query is a case-insensitive substring of the username.
	Query    string
	Role     Role
	IsActive *bool
}

// Match reports whether u passes the filter.
func (f UserFilter) Match(u User) bool {
	if f.Query != "" && !containsFold(u.Username, f.Query) {
		return false
	}
	if f.Role != "" && u.Role != f.Role {
		return false
	}
	if f.IsActive != nil && u.IsActive != *f.IsActive {
		return false
	}
	return true
}

// =============================================================================
// AUDIT
// =============================================================================

// AuditEvent records who did what when.
type AuditEvent struct {
	ID        string
	At        time.Time
	Action    AuditAction
	Actor     string
	Role      Role
	Status    AuditStatus
	Metadata  map[string]any
	TraceID   string
	IP        string
	UserAgent string
}

type AuditAction string

const (
	AuditLoginSuccess  AuditAction = "auth.login_success"
	AuditLoginFailed   AuditAction = "auth.login_failed"
	AuditTaskCreate    AuditAction = "tasks.create"
	AuditTaskUpdate    AuditAction = "tasks.update"
	AuditTaskDelete    AuditAction = "tasks.delete"
	AuditUserCreate    AuditAction = "admin.user_create"
	AuditUserStatus    AuditAction = "admin.user_disable_enable"
	AuditPasswordReset AuditAction = "admin.password_reset"
	AuditExport        AuditAction = "admin.export"
)

type AuditStatus string

const (
	AuditSuccess     AuditStatus = "success"
	AuditFailed      AuditStatus = "failed"
	AuditError       AuditStatus = "error"
	AuditRateLimited AuditStatus = "rate_limited"
)
