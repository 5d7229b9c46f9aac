package signup

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// VerificationStatus is the account's email verification state
type VerificationStatus = string

const (
	// StatusUnverified is the initial state of every account
	StatusUnverified VerificationStatus = "unverified"
	// StatusVerified is terminal: once verified, an account never reverts
	StatusVerified VerificationStatus = "verified"
)

// Account is the credential record, one per normalized email.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`
	ID            uuid.UUID          `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string             `bun:"email,notnull,unique" json:"email,omitempty"`
	FullName      string             `bun:"full_name" json:"full_name,omitempty"`
	Phone         string             `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash  string             `bun:"password_hash" json:"-"`
	Status        VerificationStatus `bun:"verification_status,notnull" json:"verification_status,omitempty"`
	VerifiedAt    *time.Time         `bun:"verified_at,nullzero" json:"verified_at,omitempty"`
	CreatedAt     *time.Time         `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time         `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time         `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus backfills the zero value so legacy rows behave as unverified.
func (a *Account) EnsureStatus() {
	if a.Status == "" {
		a.Status = StatusUnverified
	}
}

// IsVerified reports whether the account completed email verification.
func (a *Account) IsVerified() bool {
	return a != nil && a.Status == StatusVerified
}

// Sanitize returns a copy safe to hand to transport layers; the password
// hash never leaves the core.
func (a *Account) Sanitize() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.PasswordHash = ""
	return &out
}

// NormalizeEmail lowercases and trims an email address. Uniqueness and every
// lookup go through the normalized form, so "Ann@X.com" and "ann@x.com" are
// the same account.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
