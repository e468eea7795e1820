package identity

import "time"

// Verification tiers. Higher tiers carry higher transaction ceilings.
const (
	TierZero  = "tier0"
	TierOne   = "tier1"
	TierTwo   = "tier2"
	TierThree = "tier3"
)

// User represents a registered account holder.
type User struct {
	ID           string
	Email        string
	Phone        string
	Tier         string
	PINHash      []byte
	DeviceID     string
	Active       bool
	TokenVersion int
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// Credentials request structure.
type Credentials struct {
	Email    string
	Phone    string
	PIN      string
	DeviceID string
}

// KYCStatus is the identity-verification view other packages consume.
type KYCStatus struct {
	UserID     string
	Tier       string
	IsApproved bool
}
