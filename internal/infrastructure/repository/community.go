package repository

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/passportlabs/scorer/internal/domain"
	"github.com/passportlabs/scorer/internal/infrastructure/database/models"
)

type CommunityRepository struct {
	db *gorm.DB
}

func NewCommunityRepository(db *gorm.DB) *CommunityRepository {
	return &CommunityRepository{db: db}
}

func (r *CommunityRepository) Get(ctx context.Context, id int64) (domain.Community, error) {

	var row models.Community
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Community{}, domain.NotFoundError{Resource: "community"}
		}
		return domain.Community{}, err
	}

	return communityToDomain(row), nil
}

func (r *CommunityRepository) Create(ctx context.Context, community domain.Community) (domain.Community, error) {

	row := models.Community{
		Account:        community.Account,
		Name:           community.Name,
		Rule:           string(community.Rule),
		Variant:        string(community.Variant),
		WeightConfigID: community.WeightConfigID,
		HardDedup:      community.HardDedup,
	}

	err := r.db.WithContext(ctx).Create(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.Community{}, domain.DuplicateError{Resource: "community"}
		}
		return domain.Community{}, err
	}

	return communityToDomain(row), nil
}

func (r *CommunityRepository) UsingDefaultWeights(ctx context.Context) ([]domain.Community, error) {

	var rows []models.Community
	err := r.db.WithContext(ctx).
		Where("weight_config_id IS NULL AND deleted_at IS NULL").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	communities := make([]domain.Community, 0, len(rows))
	for _, row := range rows {
		communities = append(communities, communityToDomain(row))
	}
	return communities, nil
}

func communityToDomain(row models.Community) domain.Community {
	return domain.Community{
		ID:             row.ID,
		Account:        row.Account,
		Name:           row.Name,
		Rule:           domain.Rule(row.Rule),
		Variant:        domain.ScorerVariant(row.Variant),
		WeightConfigID: row.WeightConfigID,
		HardDedup:      row.HardDedup,
		DeletedAt:      row.DeletedAt,
	}
}
