package models

import (
	"time"
)

type Community struct {
	ID      int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	Account string `json:"account" gorm:"type:text;not null;index;index:community_slot,unique,where:deleted_at IS NULL"`
	Name    string `json:"name" gorm:"type:text;not null;index:community_slot,unique,where:deleted_at IS NULL"`
	Rule    string `json:"rule" gorm:"type:text;not null"`
	Variant string `json:"variant" gorm:"type:text;not null"`
	// WeightConfigID pins a configuration; NULL follows the active one.
	WeightConfigID *int64     `json:"weightConfigID" gorm:"index"`
	HardDedup      bool       `json:"hardDedup" gorm:"not null;default:false"`
	CDate          time.Time  `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	DeletedAt      *time.Time `json:"deletedAt" gorm:"type:timestamp with time zone;index"`
}

// WeightConfiguration stores weights as a JSON object of provider to decimal
// string, and the threshold as a decimal string. The partial unique index
// enforces the single-active invariant at the storage layer.
type WeightConfiguration struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Version   string    `json:"version" gorm:"type:text;not null;index:weight_version,unique"`
	Weights   string    `json:"weights" gorm:"type:text;not null"`
	Threshold string    `json:"threshold" gorm:"type:text;not null"`
	Active    bool      `json:"active" gorm:"not null;default:false;index:weight_active,unique,where:active"`
	CDate     time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}

// Score is the lifecycle record, keyed by (community, address). Value fields
// hold the last completed computation and survive ERROR transitions.
type Score struct {
	CommunityID int64      `json:"communityID" gorm:"primaryKey"`
	Address     string     `json:"address" gorm:"primaryKey;type:text"`
	Status      string     `json:"status" gorm:"type:text;not null"`
	Score       string     `json:"score" gorm:"type:text;not null;default:'0'"`
	Threshold   string     `json:"threshold" gorm:"type:text;not null;default:'0'"`
	Passing     bool       `json:"passing" gorm:"not null;default:false"`
	Breakdown   string     `json:"breakdown" gorm:"type:text"`
	Error       string     `json:"error" gorm:"type:text"`
	Stale       bool       `json:"stale" gorm:"not null;default:false"`
	ComputedAt  *time.Time `json:"computedAt" gorm:"type:timestamp with time zone"`
	UDate       time.Time  `json:"udate" gorm:"type:timestamp with time zone;not null;default:clock_timestamp()"`
}
