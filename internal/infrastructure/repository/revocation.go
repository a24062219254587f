package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/passportlabs/scorer/internal/infrastructure/database/models"
)

// RevocationRepository answers revocation checks with a short in-process
// cache in front of the DB, keyed by a compact hash of the fingerprint.
type RevocationRepository struct {
	db    *gorm.DB
	cache *cache.Cache
}

func NewRevocationRepository(db *gorm.DB) *RevocationRepository {
	return &RevocationRepository{
		db:    db,
		cache: cache.New(time.Minute, 5*time.Minute),
	}
}

func revocationCacheKey(fingerprint string) string {
	return fmt.Sprintf("revoked:%x", xxh3.HashString(fingerprint))
}

func (r *RevocationRepository) IsRevoked(ctx context.Context, fingerprint string) (bool, error) {

	if fingerprint == "" {
		return false, nil
	}

	key := revocationCacheKey(fingerprint)
	if cached, found := r.cache.Get(key); found {
		return cached.(bool), nil
	}

	var row models.Revocation
	err := r.db.WithContext(ctx).First(&row, "proof_fingerprint = ?", fingerprint).Error
	revoked := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	r.cache.Set(key, revoked, cache.DefaultExpiration)
	return revoked, nil
}

// Revoke records a fingerprint as revoked. Idempotent.
func (r *RevocationRepository) Revoke(ctx context.Context, fingerprint string, reason string) error {

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Revocation{
			ProofFingerprint: fingerprint,
			Reason:           reason,
		}).Error
	if err != nil {
		return err
	}

	r.cache.Set(revocationCacheKey(fingerprint), true, cache.DefaultExpiration)
	return nil
}
