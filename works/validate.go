/*
validate.go - Record validation and derivation

PURPOSE:
  Turns the raw, user-entered fields of one task into typed Inputs plus the
  Derived fields, or into the complete list of violated rules.

PIPELINE:
  RawTask ──parse/check each field──► Inputs ──cross-field checks──► Derive
                 │                                   │
                 └──────────── ValidationErrors ◄────┘

  Every per-field check runs regardless of earlier failures, so a caller can
  show every problem at once. Cross-field checks only run when both of their
  operands parsed. Derivation only runs when nothing failed.

PER-FIELD CHECKS (first failure wins for a field):
  1. Presence        blank after trim            -> "Required"
  2. Parse           not a whole / valid number  -> "Enter a whole number" / "Enter a valid number"
  3. Non-negativity  value < 0                   -> "Must be non-negative"
  4. sub_division    trimmed, must be non-empty
  5. account_code    exactly Spill or New        -> "Must be Spill or New"

CROSS-FIELD CHECKS:
  6. works_completed > number_of_works         -> error on works_completed
  7. exp_upto_31_03_2025 > agreement_amount    -> error on exp_upto_31_03_2025

UPDATES:
  Updates carry only the fields being changed. They are merged over the stored
  task's raw fields (Task.Raw + RawTask.Merge) and the merged set goes through
  the same pipeline as a create.
*/
package works

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FIELD NAMES
// =============================================================================

const (
	FieldSNo                = "sno"
	FieldSubDivision        = "sub_division"
	FieldAccountCode        = "account_code"
	FieldNumberOfWorks      = "number_of_works"
	FieldEstimateAmount     = "estimate_amount"
	FieldAgreementAmount    = "agreement_amount"
	FieldExpUpto31032025    = "exp_upto_31_03_2025"
	FieldBalanceAmount      = "balance_amount_as_on_01_04_2025"
	FieldExpUptoLastMonth   = "exp_upto_last_month"
	FieldExpDuringThisMonth = "exp_during_this_month"
	FieldTotalExpDuringYear = "total_exp_during_year"
	FieldTotalValueWorkDone = "total_value_work_done_from_beginning"
	FieldWorksCompleted     = "works_completed"
	FieldBalanceWorks       = "balance_works"
	FieldCreatedBy          = "created_by"
	FieldCreatedAt          = "created_at"
)

// Validation messages.
const (
	MsgRequired              = "Required"
	MsgWholeNumber           = "Enter a whole number"
	MsgValidNumber           = "Enter a valid number"
	MsgNonNegative           = "Must be non-negative"
	MsgCountTooLarge         = "Must not exceed 1000000000"
	MsgText                  = "Enter text"
	MsgAccountCode           = "Must be Spill or New"
	MsgCompletedExceedsWorks = "Cannot exceed Number of Works"
	MsgExpExceedsAgreement   = "Cannot exceed Agreement Amount"
)

// MaxCount bounds number_of_works and works_completed, so count totals stay
// exact in int64 for any realistic number of tasks.
const MaxCount int64 = 1_000_000_000

// =============================================================================
// RAW INPUT
// =============================================================================

// RawValue is one user-entered field as received, before parsing.
// Set is false when the field was absent from the submission. Malformed
// marks a JSON object, array or boolean, which no field accepts.
type RawValue struct {
	Text      string
	Set       bool
	Malformed bool
}

// Raw returns a present RawValue holding s.
func Raw(s string) RawValue {
	return RawValue{Text: s, Set: true}
}

// UnmarshalJSON accepts a JSON string, a number literal or null. Numbers keep
// their literal text so no precision is lost before parsing. Any other
// token is kept as Malformed and rejected by ValidateAndDerive.
func (v *RawValue) UnmarshalJSON(b []byte) error {
	*v = RawValue{Set: true}
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v.Text = s
	case len(b) > 0 && (b[0] == '-' || ('0' <= b[0] && b[0] <= '9')):
		v.Text = string(b)
	default:
		v.Malformed = true
	}
	return nil
}

// RawTask is a task submission: every user-enterable field, unparsed.
type RawTask struct {
	SubDivision        RawValue `json:"sub_division"`
	AccountCode        RawValue `json:"account_code"`
	NumberOfWorks      RawValue `json:"number_of_works"`
	EstimateAmount     RawValue `json:"estimate_amount"`
	AgreementAmount    RawValue `json:"agreement_amount"`
	ExpUpto31032025    RawValue `json:"exp_upto_31_03_2025"`
	ExpUptoLastMonth   RawValue `json:"exp_upto_last_month"`
	ExpDuringThisMonth RawValue `json:"exp_during_this_month"`
	WorksCompleted     RawValue `json:"works_completed"`
}

type namedValue struct {
	field string
	value *RawValue
}

// fields returns the raw fields in canonical order.
func (r *RawTask) fields() []namedValue {
	return []namedValue{
		{FieldSubDivision, &r.SubDivision},
		{FieldAccountCode, &r.AccountCode},
		{FieldNumberOfWorks, &r.NumberOfWorks},
		{FieldEstimateAmount, &r.EstimateAmount},
		{FieldAgreementAmount, &r.AgreementAmount},
		{FieldExpUpto31032025, &r.ExpUpto31032025},
		{FieldExpUptoLastMonth, &r.ExpUptoLastMonth},
		{FieldExpDuringThisMonth, &r.ExpDuringThisMonth},
		{FieldWorksCompleted, &r.WorksCompleted},
	}
}

// Merge returns r with every field that is Set in patch replaced by the
// patch value. Fields absent from the patch keep r's value.
func (r RawTask) Merge(patch RawTask) RawTask {
	base := r.fields()
	over := patch.fields()
	for i := range base {
		if over[i].value.Set {
			*base[i].value = *over[i].value
		}
	}
	return r
}

// Empty reports whether no field is set.
func (r RawTask) Empty() bool {
	for _, f := range r.fields() {
		if f.value.Set {
			return false
		}
	}
	return true
}

// Raw renders the stored inputs of t back into a RawTask, at full precision.
func (t Task) Raw() RawTask {
	in := t.Inputs
	return RawTask{
		SubDivision:        Raw(in.SubDivision),
		AccountCode:        Raw(string(in.AccountCode)),
		NumberOfWorks:      Raw(strconv.FormatInt(in.NumberOfWorks, 10)),
		EstimateAmount:     Raw(in.EstimateAmount.String()),
		AgreementAmount:    Raw(in.AgreementAmount.String()),
		ExpUpto31032025:    Raw(in.ExpUpto31032025.String()),
		ExpUptoLastMonth:   Raw(in.ExpUptoLastMonth.String()),
		ExpDuringThisMonth: Raw(in.ExpDuringThisMonth.String()),
		WorksCompleted:     Raw(strconv.FormatInt(in.WorksCompleted, 10)),
	}
}

// =============================================================================
// VALIDATE AND DERIVE
// =============================================================================

// ValidateAndDerive parses and checks raw, and computes the derived fields.
// On failure the error is a ValidationErrors listing every violated rule.
func ValidateAndDerive(raw RawTask) (Inputs, Derived, error) {
	var (
		in   Inputs
		errs = make(map[string]string)
		ok   bool
	)

	fail := func(field, msg string) {
		if _, seen := errs[field]; !seen {
			errs[field] = msg
		}
	}

	in.SubDivision = strings.TrimSpace(raw.SubDivision.Text)
	switch {
	case raw.SubDivision.Malformed:
		fail(FieldSubDivision, MsgText)
	case in.SubDivision == "":
		fail(FieldSubDivision, MsgRequired)
	}

	// account_code must match exactly; only a blank value is "Required"
	switch {
	case raw.AccountCode.Malformed:
		fail(FieldAccountCode, MsgAccountCode)
	case strings.TrimSpace(raw.AccountCode.Text) == "":
		fail(FieldAccountCode, MsgRequired)
	default:
		if in.AccountCode, ok = ParseAccountCode(raw.AccountCode.Text); !ok {
			fail(FieldAccountCode, MsgAccountCode)
		}
	}

	counts := []struct {
		field string
		raw   RawValue
		dst   *int64
	}{
		{FieldNumberOfWorks, raw.NumberOfWorks, &in.NumberOfWorks},
		{FieldWorksCompleted, raw.WorksCompleted, &in.WorksCompleted},
	}
	parsed := make(map[string]bool)
	for _, c := range counts {
		v, msg := parseCount(c.raw)
		if msg != "" {
			fail(c.field, msg)
			continue
		}
		*c.dst = v
		parsed[c.field] = true
	}

	amounts := []struct {
		field string
		raw   RawValue
		dst   *decimal.Decimal
	}{
		{FieldEstimateAmount, raw.EstimateAmount, &in.EstimateAmount},
		{FieldAgreementAmount, raw.AgreementAmount, &in.AgreementAmount},
		{FieldExpUpto31032025, raw.ExpUpto31032025, &in.ExpUpto31032025},
		{FieldExpUptoLastMonth, raw.ExpUptoLastMonth, &in.ExpUptoLastMonth},
		{FieldExpDuringThisMonth, raw.ExpDuringThisMonth, &in.ExpDuringThisMonth},
	}
	for _, a := range amounts {
		v, msg := parseAmount(a.raw)
		if msg != "" {
			fail(a.field, msg)
			continue
		}
		*a.dst = v
		parsed[a.field] = true
	}

	if parsed[FieldNumberOfWorks] && parsed[FieldWorksCompleted] &&
		in.WorksCompleted > in.NumberOfWorks {
		fail(FieldWorksCompleted, MsgCompletedExceedsWorks)
	}
	if parsed[FieldAgreementAmount] && parsed[FieldExpUpto31032025] &&
		in.ExpUpto31032025.GreaterThan(in.AgreementAmount) {
		fail(FieldExpUpto31032025, MsgExpExceedsAgreement)
	}

	if len(errs) > 0 {
		return Inputs{}, Derived{}, collect(errs)
	}
	return in, Derive(in), nil
}

// collect orders errs canonically.
func collect(errs map[string]string) ValidationErrors {
	var raw RawTask
	out := make(ValidationErrors, 0, len(errs))
	for _, f := range raw.fields() {
		if msg, ok := errs[f.field]; ok {
			out = append(out, FieldError{Field: f.field, Message: msg})
		}
	}
	return out
}

func parseCount(v RawValue) (int64, string) {
	if v.Malformed {
		return 0, MsgWholeNumber
	}
	text := strings.TrimSpace(v.Text)
	if text == "" {
		return 0, MsgRequired
	}
	d, err := decimal.NewFromString(text)
	if err != nil || !d.IsInteger() {
		return 0, MsgWholeNumber
	}
	if d.IsNegative() {
		return 0, MsgNonNegative
	}
	if d.GreaterThan(decimal.NewFromInt(MaxCount)) {
		return 0, MsgCountTooLarge
	}
	return d.IntPart(), ""
}

func parseAmount(v RawValue) (decimal.Decimal, string) {
	if v.Malformed {
		return decimal.Zero, MsgValidNumber
	}
	text := strings.TrimSpace(v.Text)
	if text == "" {
		return decimal.Zero, MsgRequired
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, MsgValidNumber
	}
	if d.IsNegative() {
		return decimal.Zero, MsgNonNegative
	}
	return d, ""
}
