package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/passportlabs/scorer/internal/domain"
	"github.com/passportlabs/scorer/internal/infrastructure/database/models"
)

const activeWeightsKey = "weights:active"

// WeightConfigRepository resolves weight configurations, keeping a short
// in-process snapshot of the active one since every scoring pass reads it.
type WeightConfigRepository struct {
	db    *gorm.DB
	cache *cache.Cache

	onActivate []func(cfg domain.WeightConfiguration)
}

func NewWeightConfigRepository(db *gorm.DB) *WeightConfigRepository {
	return &WeightConfigRepository{
		db:    db,
		cache: cache.New(10*time.Second, time.Minute),
	}
}

// OnActivate registers a callback invoked after a successful activation.
// Registration is not synchronized; wire callbacks during startup.
func (r *WeightConfigRepository) OnActivate(fn func(cfg domain.WeightConfiguration)) {
	r.onActivate = append(r.onActivate, fn)
}

func (r *WeightConfigRepository) Active(ctx context.Context) (domain.WeightConfiguration, error) {

	if cached, found := r.cache.Get(activeWeightsKey); found {
		return cached.(domain.WeightConfiguration), nil
	}

	var row models.WeightConfiguration
	err := r.db.WithContext(ctx).First(&row, "active = ?", true).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.WeightConfiguration{}, domain.NotFoundError{Resource: "active weight configuration"}
		}
		return domain.WeightConfiguration{}, err
	}

	cfg, err := weightConfigToDomain(row)
	if err != nil {
		return domain.WeightConfiguration{}, err
	}

	r.cache.Set(activeWeightsKey, cfg, cache.DefaultExpiration)
	return cfg, nil
}

func (r *WeightConfigRepository) Get(ctx context.Context, id int64) (domain.WeightConfiguration, error) {

	var row models.WeightConfiguration
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.WeightConfiguration{}, domain.NotFoundError{Resource: "weight configuration"}
		}
		return domain.WeightConfiguration{}, err
	}

	return weightConfigToDomain(row)
}

// Create stores a new inactive configuration.
func (r *WeightConfigRepository) Create(ctx context.Context, cfg domain.WeightConfiguration) (domain.WeightConfiguration, error) {

	weights, err := json.Marshal(cfg.Weights)
	if err != nil {
		return domain.WeightConfiguration{}, err
	}

	row := models.WeightConfiguration{
		Version:   cfg.Version,
		Weights:   string(weights),
		Threshold: cfg.Threshold.String(),
	}

	err = r.db.WithContext(ctx).Create(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.WeightConfiguration{}, domain.DuplicateError{Resource: "weight configuration version"}
		}
		return domain.WeightConfiguration{}, err
	}

	return weightConfigToDomain(row)
}

// Activate atomically swaps the active configuration. The deactivate and
// activate updates run in one transaction so readers never observe zero or
// two active rows.
func (r *WeightConfigRepository) Activate(ctx context.Context, id int64) (domain.WeightConfiguration, error) {

	var activated models.WeightConfiguration
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		err := tx.First(&activated, "id = ?", id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NotFoundError{Resource: "weight configuration"}
			}
			return err
		}

		err = tx.Model(&models.WeightConfiguration{}).
			Where("active = ?", true).
			Update("active", false).Error
		if err != nil {
			return err
		}

		err = tx.Model(&models.WeightConfiguration{}).
			Where("id = ?", id).
			Update("active", true).Error
		if err != nil {
			return err
		}

		activated.Active = true
		return nil
	})
	if err != nil {
		return domain.WeightConfiguration{}, err
	}

	cfg, err := weightConfigToDomain(activated)
	if err != nil {
		return domain.WeightConfiguration{}, err
	}

	r.cache.Set(activeWeightsKey, cfg, cache.DefaultExpiration)
	for _, fn := range r.onActivate {
		fn(cfg)
	}

	return cfg, nil
}

func weightConfigToDomain(row models.WeightConfiguration) (domain.WeightConfiguration, error) {

	var weights map[string]decimal.Decimal
	if err := json.Unmarshal([]byte(row.Weights), &weights); err != nil {
		return domain.WeightConfiguration{}, errors.Wrap(err, "corrupt weight map")
	}

	threshold, err := decimal.NewFromString(row.Threshold)
	if err != nil {
		return domain.WeightConfiguration{}, errors.Wrap(err, "corrupt threshold")
	}

	return domain.WeightConfiguration{
		ID:        row.ID,
		Version:   row.Version,
		Weights:   weights,
		Threshold: threshold,
		Active:    row.Active,
		CreatedAt: row.CDate,
	}, nil
}
