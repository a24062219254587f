package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/passportlabs/scorer/internal/domain"
	"github.com/passportlabs/scorer/internal/infrastructure/database/models"
)

type StampRepository struct {
	db *gorm.DB
}

func NewStampRepository(db *gorm.DB) *StampRepository {
	return &StampRepository{db: db}
}

func (r *StampRepository) Active(ctx context.Context, address string) ([]domain.Stamp, error) {

	var rows []models.Stamp
	err := r.db.WithContext(ctx).
		Where("address = ? AND deleted_at IS NULL", address).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	stamps := make([]domain.Stamp, 0, len(rows))
	for _, row := range rows {
		stamps = append(stamps, stampToDomain(row))
	}
	return stamps, nil
}

func (r *StampRepository) Save(ctx context.Context, stamp domain.Stamp) (domain.Stamp, error) {

	row := models.Stamp{
		Address:          stamp.Address,
		Provider:         stamp.Provider,
		Hash:             stamp.Hash,
		ProofFingerprint: stamp.ProofFingerprint,
		IssuanceDate:     stamp.IssuanceDate,
		ExpirationDate:   stamp.ExpirationDate,
		Credential:       stamp.Credential,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// tombstone whatever currently occupies the slot
		err := tx.Model(&models.Stamp{}).
			Where("address = ? AND provider = ? AND deleted_at IS NULL", stamp.Address, stamp.Provider).
			Update("deleted_at", time.Now()).Error
		if err != nil {
			return err
		}

		return tx.Create(&row).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.Stamp{}, domain.DuplicateError{Resource: "credential"}
		}
		return domain.Stamp{}, err
	}

	return stampToDomain(row), nil
}

func (r *StampRepository) SoftDelete(ctx context.Context, address, provider string) error {

	result := r.db.WithContext(ctx).Model(&models.Stamp{}).
		Where("address = ? AND provider = ? AND deleted_at IS NULL", address, provider).
		Update("deleted_at", time.Now())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NotFoundError{Resource: "stamp"}
	}
	return nil
}

func (r *StampRepository) History(ctx context.Context, address string, limit, offset int) ([]domain.Stamp, error) {

	if limit <= 0 {
		limit = 50
	}

	var rows []models.Stamp
	err := r.db.WithContext(ctx).
		Where("address = ?", address).
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	stamps := make([]domain.Stamp, 0, len(rows))
	for _, row := range rows {
		stamps = append(stamps, stampToDomain(row))
	}
	return stamps, nil
}

func stampToDomain(row models.Stamp) domain.Stamp {
	return domain.Stamp{
		ID:               row.ID,
		Address:          row.Address,
		Provider:         row.Provider,
		Hash:             row.Hash,
		ProofFingerprint: row.ProofFingerprint,
		IssuanceDate:     row.IssuanceDate,
		ExpirationDate:   row.ExpirationDate,
		Credential:       row.Credential,
		CreatedAt:        row.CDate,
		DeletedAt:        row.DeletedAt,
	}
}
