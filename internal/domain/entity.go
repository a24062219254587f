package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Nonce is a one-time token accompanying a signing challenge.
type Nonce struct {
	Token     string     `json:"token"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the nonce is no longer usable at t.
// A nonce is invalid exactly at its deadline.
func (n Nonce) Expired(t time.Time) bool {
	return n.ExpiresAt != nil && !t.Before(*n.ExpiresAt)
}

// Session ties a bearer token to the signer it authenticated and the nonce
// consumed doing so. Submitted credentials must commit to that nonce.
type Session struct {
	Address string `json:"address"`
	Nonce   string `json:"nonce"`
}

// Stamp is a cached credential bound to an address. Tombstoned rows keep
// their DeletedAt timestamp instead of being removed, preserving history.
type Stamp struct {
	ID               int64      `json:"id"`
	Address          string     `json:"address"`
	Provider         string     `json:"provider"`
	Hash             string     `json:"hash"`
	ProofFingerprint string     `json:"proofFingerprint"`
	IssuanceDate     time.Time  `json:"issuanceDate"`
	ExpirationDate   time.Time  `json:"expirationDate"`
	Credential       string     `json:"credential"`
	CreatedAt        time.Time  `json:"createdAt"`
	DeletedAt        *time.Time `json:"deletedAt,omitempty"`
}

// Community is an account-owned scoring configuration.
type Community struct {
	ID      int64         `json:"id"`
	Account string        `json:"account"`
	Name    string        `json:"name"`
	Rule    Rule          `json:"rule"`
	Variant ScorerVariant `json:"variant"`
	// WeightConfigID pins a specific configuration; nil follows the
	// currently active one.
	WeightConfigID *int64     `json:"weightConfigID,omitempty"`
	HardDedup      bool       `json:"hardDedup"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty"`
}

// WeightConfiguration is a versioned provider→weight mapping with a pass
// threshold. At most one configuration is active at a time.
type WeightConfiguration struct {
	ID        int64                      `json:"id"`
	Version   string                     `json:"version"`
	Weights   map[string]decimal.Decimal `json:"weights"`
	Threshold decimal.Decimal            `json:"threshold"`
	Active    bool                       `json:"active"`
	CreatedAt time.Time                  `json:"createdAt"`
}

// HashOwner records which (community, address) currently holds credit for a
// content commitment within a dedup scope.
type HashOwner struct {
	Hash        string `json:"hash"`
	CommunityID int64  `json:"communityID"`
	Address     string `json:"address"`
	StampID     int64  `json:"stampID"`
}

// StampScore is one provider's contribution line in a score breakdown.
// Excluded stamps stay visible with a zero weight and the excluding flag set.
type StampScore struct {
	Weight  decimal.Decimal `json:"weight"`
	Deduped bool            `json:"deduped,omitempty"`
	Expired bool            `json:"expired,omitempty"`
	Revoked bool            `json:"revoked,omitempty"`
}

// ScoreResult is the outcome of one scoring computation.
type ScoreResult struct {
	Score     decimal.Decimal       `json:"score"`
	Threshold decimal.Decimal       `json:"threshold"`
	Passing   bool                  `json:"passing"`
	Breakdown map[string]StampScore `json:"breakdown"`
}

// Score is the persisted per (community, address) result.
type Score struct {
	CommunityID int64                 `json:"communityID"`
	Address     string                `json:"address"`
	Status      ScoreStatus           `json:"status"`
	Score       decimal.Decimal       `json:"score"`
	Threshold   decimal.Decimal       `json:"threshold"`
	Passing     bool                  `json:"passing"`
	Breakdown   map[string]StampScore `json:"breakdown,omitempty"`
	Error       string                `json:"error,omitempty"`
	Stale       bool                  `json:"-"`
	ComputedAt  *time.Time            `json:"computedAt,omitempty"`
}

// RescoreJob is one unit of queued recomputation work.
type RescoreJob struct {
	CommunityID int64  `json:"communityID"`
	Address     string `json:"address"`
}
