package accounts

import (
	"errors"
	"strings"
	"time"
)

// Plan is the billing tier of an account
type Plan string

const (
	PlanFree     Plan = "free"
	PlanPro      Plan = "pro"
	PlanBusiness Plan = "business"
)

// Valid reports whether p is a known plan
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanBusiness:
		return true
	}
	return false
}

// IsPaid reports whether the plan is exempt from the free quota
func (p Plan) IsPaid() bool {
	return p == PlanPro || p == PlanBusiness
}

// Account is the persisted metering and billing record for one user
type Account struct {
	ID                 string    `json:"id"`
	ExternalIdentityID string    `json:"externalIdentityId,omitempty"`
	Email              string    `json:"email"`
	Plan               Plan      `json:"plan"`
	QuoteCount         int       `json:"quoteCount"`
	QuotaResetDate     time.Time `json:"quotaResetDate"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

var (
	// ErrNotFound is returned when no account matches the lookup
	ErrNotFound = errors.New("account not found")

	// ErrLimitReached is returned by IncrementQuoteCount when a free
	// account is already at the limit
	ErrLimitReached = errors.New("quote limit reached")

	// ErrInvalidPlan is returned when assigning an unknown plan
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrEmailInUse is returned by UpsertByExternalID when another account
	// already holds the email
	ErrEmailInUse = errors.New("email already belongs to another account")
)

// NormalizeEmail trims and lowercases an address so lookups from billing
// providers and identity providers agree
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
