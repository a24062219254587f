package models

import (
	"time"
)

// Stamp rows are tombstoned via DeletedAt. The partial unique index keeps at
// most one live row per (address, provider) slot while preserving history.
// Proof-less credentials store an empty fingerprint, which the stamp_proof
// index ignores so they never collide with each other.
type Stamp struct {
	ID               int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	Address          string     `json:"address" gorm:"type:text;not null;index;index:stamp_slot,unique,where:deleted_at IS NULL"`
	Provider         string     `json:"provider" gorm:"type:text;not null;index:stamp_slot,unique,where:deleted_at IS NULL"`
	Hash             string     `json:"hash" gorm:"type:text;not null;index"`
	ProofFingerprint string     `json:"proofFingerprint" gorm:"type:text;not null;index:stamp_proof,unique,where:proof_fingerprint <> ''"`
	IssuanceDate     time.Time  `json:"issuanceDate" gorm:"type:timestamp with time zone;not null"`
	ExpirationDate   time.Time  `json:"expirationDate" gorm:"type:timestamp with time zone;not null"`
	Credential       string     `json:"credential" gorm:"type:text"`
	CDate            time.Time  `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	DeletedAt        *time.Time `json:"deletedAt" gorm:"type:timestamp with time zone;index"`
}

// HashOwner is the materialized ownership index for deduplication. One row
// per (scope, hash); the row records who currently holds credit.
type HashOwner struct {
	Scope       string    `json:"scope" gorm:"primaryKey;type:text"`
	Hash        string    `json:"hash" gorm:"primaryKey;type:text"`
	CommunityID int64     `json:"communityID" gorm:"not null"`
	Address     string    `json:"address" gorm:"type:text;not null;index"`
	StampID     int64     `json:"stampID" gorm:"not null"`
	UDate       time.Time `json:"udate" gorm:"type:timestamp with time zone;not null;default:clock_timestamp()"`
}

type Revocation struct {
	ProofFingerprint string    `json:"proofFingerprint" gorm:"primaryKey;type:text"`
	Reason           string    `json:"reason" gorm:"type:text"`
	CDate            time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}
