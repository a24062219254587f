package service

import (
	"context"

	"github.com/passportlabs/scorer/internal/domain"
)

// WeightConfigAdmin covers the mutating side of weight configuration
// storage. Activation side effects run through the store's callbacks.
type WeightConfigAdmin interface {
	Create(ctx context.Context, cfg domain.WeightConfiguration) (domain.WeightConfiguration, error)
	Activate(ctx context.Context, id int64) (domain.WeightConfiguration, error)
}

type CommunityAdmin interface {
	Create(ctx context.Context, community domain.Community) (domain.Community, error)
}

type RevocationAdmin interface {
	Revoke(ctx context.Context, fingerprint string, reason string) error
}

// AdminService groups the operator-facing mutations behind one surface.
type AdminService struct {
	weights     WeightConfigAdmin
	communities CommunityAdmin
	revocations RevocationAdmin
}

func NewAdminService(
	weights WeightConfigAdmin,
	communities CommunityAdmin,
	revocations RevocationAdmin,
) *AdminService {
	return &AdminService{
		weights:     weights,
		communities: communities,
		revocations: revocations,
	}
}

func (s *AdminService) CreateWeights(ctx context.Context, cfg domain.WeightConfiguration) (domain.WeightConfiguration, error) {
	ctx, span := tracer.Start(ctx, "Admin.Service.CreateWeights")
	defer span.End()

	if len(cfg.Weights) == 0 {
		err := domain.ValidationError{Reason: "weight map is empty"}
		span.RecordError(err)
		return domain.WeightConfiguration{}, err
	}
	if cfg.Version == "" {
		err := domain.ValidationError{Reason: "version is required"}
		span.RecordError(err)
		return domain.WeightConfiguration{}, err
	}

	created, err := s.weights.Create(ctx, cfg)
	if err != nil {
		span.RecordError(err)
		return domain.WeightConfiguration{}, err
	}
	return created, nil
}

func (s *AdminService) ActivateWeights(ctx context.Context, id int64) (domain.WeightConfiguration, error) {
	ctx, span := tracer.Start(ctx, "Admin.Service.ActivateWeights")
	defer span.End()

	cfg, err := s.weights.Activate(ctx, id)
	if err != nil {
		span.RecordError(err)
		return domain.WeightConfiguration{}, err
	}
	return cfg, nil
}

// CreateCommunity registers a scoring community owned by account.
func (s *AdminService) CreateCommunity(ctx context.Context, community domain.Community) (domain.Community, error) {
	ctx, span := tracer.Start(ctx, "Admin.Service.CreateCommunity")
	defer span.End()

	if community.Account == "" || community.Name == "" {
		err := domain.ValidationError{Reason: "account and name are required"}
		span.RecordError(err)
		return domain.Community{}, err
	}
	switch community.Rule {
	case domain.RuleFIFO, domain.RuleLIFO:
	default:
		err := domain.ValidationError{Reason: "unknown dedup rule"}
		span.RecordError(err)
		return domain.Community{}, err
	}
	switch community.Variant {
	case domain.ScorerWeighted, domain.ScorerBinaryWeighted:
	default:
		err := domain.ValidationError{Reason: "unknown scorer variant"}
		span.RecordError(err)
		return domain.Community{}, err
	}

	created, err := s.communities.Create(ctx, community)
	if err != nil {
		span.RecordError(err)
		return domain.Community{}, err
	}
	return created, nil
}

func (s *AdminService) Revoke(ctx context.Context, fingerprint string, reason string) error {
	ctx, span := tracer.Start(ctx, "Admin.Service.Revoke")
	defer span.End()

	if fingerprint == "" {
		err := domain.ValidationError{Reason: "fingerprint is required"}
		span.RecordError(err)
		return err
	}

	if err := s.revocations.Revoke(ctx, fingerprint, reason); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}
