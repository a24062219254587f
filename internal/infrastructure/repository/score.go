package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/passportlabs/scorer/internal/domain"
	"github.com/passportlabs/scorer/internal/infrastructure/database/models"
)

// scoreCacheTTL bounds staleness for reads served from memcached; every
// lifecycle transition also invalidates the entry explicitly.
const scoreCacheTTL = 30

type ScoreRepository struct {
	db *gorm.DB
	mc *memcache.Client
}

func NewScoreRepository(db *gorm.DB, mc *memcache.Client) *ScoreRepository {
	return &ScoreRepository{db: db, mc: mc}
}

func scoreCacheKey(communityID int64, address string) string {
	return fmt.Sprintf("score:%d:%s", communityID, address)
}

func (r *ScoreRepository) Get(ctx context.Context, communityID int64, address string) (domain.Score, error) {

	key := scoreCacheKey(communityID, address)
	if r.mc != nil {
		if item, err := r.mc.Get(key); err == nil {
			var cached domain.Score
			if err := json.Unmarshal(item.Value, &cached); err == nil {
				return cached, nil
			}
		}
	}

	var row models.Score
	err := r.db.WithContext(ctx).
		First(&row, "community_id = ? AND address = ?", communityID, address).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Score{}, domain.NotFoundError{Resource: "score"}
		}
		return domain.Score{}, err
	}

	score, err := scoreToDomain(row)
	if err != nil {
		return domain.Score{}, err
	}

	if r.mc != nil {
		if encoded, err := json.Marshal(score); err == nil {
			r.mc.Set(&memcache.Item{Key: key, Value: encoded, Expiration: scoreCacheTTL})
		}
	}

	return score, nil
}

// Claim moves the record into PROCESSING, creating it if absent. The
// conditional update is what makes concurrent triggers coalesce: only one
// caller observes a row transition.
func (r *ScoreRepository) Claim(ctx context.Context, communityID int64, address string) (bool, error) {

	claimed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		result := tx.Model(&models.Score{}).
			Where("community_id = ? AND address = ? AND status <> ?",
				communityID, address, string(domain.ScoreProcessing)).
			Updates(map[string]any{
				"status": string(domain.ScoreProcessing),
				"stale":  false,
				"u_date": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			claimed = true
			return nil
		}

		created := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Score{
			CommunityID: communityID,
			Address:     address,
			Status:      string(domain.ScoreProcessing),
			Score:       "0",
			Threshold:   "0",
			UDate:       time.Now(),
		})
		if created.Error != nil {
			return created.Error
		}
		claimed = created.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, domain.TransientStorageError{Err: err}
	}

	if claimed {
		r.invalidate(communityID, address)
	}
	return claimed, nil
}

func (r *ScoreRepository) MarkStale(ctx context.Context, communityID int64, address string) error {

	err := r.db.WithContext(ctx).Model(&models.Score{}).
		Where("community_id = ? AND address = ? AND status = ?",
			communityID, address, string(domain.ScoreProcessing)).
		Update("stale", true).Error
	if err != nil {
		return domain.TransientStorageError{Err: err}
	}
	return nil
}

func (r *ScoreRepository) Complete(ctx context.Context, communityID int64, address string, result domain.ScoreResult) (bool, error) {

	breakdown, err := json.Marshal(result.Breakdown)
	if err != nil {
		return false, err
	}

	wasStale := false
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		var row models.Score
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("community_id = ? AND address = ?", communityID, address).
			Take(&row).Error
		if err != nil {
			return err
		}
		wasStale = row.Stale

		now := time.Now()
		return tx.Model(&models.Score{}).
			Where("community_id = ? AND address = ?", communityID, address).
			Updates(map[string]any{
				"status":      string(domain.ScoreDone),
				"score":       result.Score.String(),
				"threshold":   result.Threshold.String(),
				"passing":     result.Passing,
				"breakdown":   string(breakdown),
				"error":       "",
				"stale":       false,
				"computed_at": now,
				"u_date":      now,
			}).Error
	})
	if err != nil {
		return false, domain.TransientStorageError{Err: err}
	}

	r.invalidate(communityID, address)
	return wasStale, nil
}

// Fail transitions to ERROR keeping the last completed score value intact.
func (r *ScoreRepository) Fail(ctx context.Context, communityID int64, address string, message string) (bool, error) {

	wasStale := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		var row models.Score
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("community_id = ? AND address = ?", communityID, address).
			Take(&row).Error
		if err != nil {
			return err
		}
		wasStale = row.Stale

		return tx.Model(&models.Score{}).
			Where("community_id = ? AND address = ?", communityID, address).
			Updates(map[string]any{
				"status": string(domain.ScoreError),
				"error":  message,
				"stale":  false,
				"u_date": time.Now(),
			}).Error
	})
	if err != nil {
		return false, domain.TransientStorageError{Err: err}
	}

	r.invalidate(communityID, address)
	return wasStale, nil
}

func (r *ScoreRepository) AddressesInCommunity(ctx context.Context, communityID int64) ([]string, error) {

	var addresses []string
	err := r.db.WithContext(ctx).Model(&models.Score{}).
		Where("community_id = ?", communityID).
		Pluck("address", &addresses).Error
	if err != nil {
		return nil, err
	}
	return addresses, nil
}

func (r *ScoreRepository) CommunitiesForAddress(ctx context.Context, address string) ([]int64, error) {

	var ids []int64
	err := r.db.WithContext(ctx).Model(&models.Score{}).
		Where("address = ?", address).
		Pluck("community_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *ScoreRepository) invalidate(communityID int64, address string) {
	if r.mc == nil {
		return
	}
	r.mc.Delete(scoreCacheKey(communityID, address))
}

func scoreToDomain(row models.Score) (domain.Score, error) {

	scoreValue, err := decimal.NewFromString(row.Score)
	if err != nil {
		return domain.Score{}, errors.Wrap(err, "corrupt score value")
	}
	threshold, err := decimal.NewFromString(row.Threshold)
	if err != nil {
		return domain.Score{}, errors.Wrap(err, "corrupt threshold value")
	}

	var breakdown map[string]domain.StampScore
	if row.Breakdown != "" {
		if err := json.Unmarshal([]byte(row.Breakdown), &breakdown); err != nil {
			return domain.Score{}, errors.Wrap(err, "corrupt breakdown")
		}
	}

	return domain.Score{
		CommunityID: row.CommunityID,
		Address:     row.Address,
		Status:      domain.ScoreStatus(row.Status),
		Score:       scoreValue,
		Threshold:   threshold,
		Passing:     row.Passing,
		Breakdown:   breakdown,
		Error:       row.Error,
		Stale:       row.Stale,
		ComputedAt:  row.ComputedAt,
	}, nil
}
