package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/passportlabs/scorer/internal/domain"
	"github.com/passportlabs/scorer/internal/infrastructure/database/models"
	"github.com/passportlabs/scorer/internal/usecase"
)

type DedupIndexRepository struct {
	db *gorm.DB
}

func NewDedupIndexRepository(db *gorm.DB) *DedupIndexRepository {
	return &DedupIndexRepository{db: db}
}

// Resolve locks the owner rows for the given hashes, hands the current view
// to fn, and applies the returned claims in the same transaction. Two
// concurrent passes over overlapping hashes serialize on the row locks.
func (r *DedupIndexRepository) Resolve(ctx context.Context, scope string, hashes []string, fn func(owners map[string]domain.HashOwner) (usecase.DedupMutation, error)) error {

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		owners := make(map[string]domain.HashOwner)
		if len(hashes) > 0 {
			var rows []models.HashOwner
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("scope = ? AND hash IN ?", scope, hashes).
				Find(&rows).Error
			if err != nil {
				return err
			}
			for _, row := range rows {
				owners[row.Hash] = domain.HashOwner{
					Hash:        row.Hash,
					CommunityID: row.CommunityID,
					Address:     row.Address,
					StampID:     row.StampID,
				}
			}
		}

		mutation, err := fn(owners)
		if err != nil {
			return err
		}

		for _, claim := range mutation.Claims {
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "scope"}, {Name: "hash"}},
				DoUpdates: clause.Assignments(map[string]any{
					"community_id": claim.CommunityID,
					"address":      claim.Address,
					"stamp_id":     claim.StampID,
				}),
			}).Create(&models.HashOwner{
				Scope:       scope,
				Hash:        claim.Hash,
				CommunityID: claim.CommunityID,
				Address:     claim.Address,
				StampID:     claim.StampID,
			}).Error
			if err != nil {
				return err
			}
		}

		return nil
	})
}
