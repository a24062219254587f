package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/passportlabs/scorer"
	"github.com/passportlabs/scorer/internal/domain"
)

const (
	// bounded recompute rounds when triggers keep arriving mid-computation;
	// anything left over goes back through the queue
	maxRecomputeRounds = 3

	storageRetries    = 3
	storageRetryDelay = 100 * time.Millisecond
)

// ScoringUsecase drives the score lifecycle: PROCESSING→DONE/ERROR with
// at most one computation in flight per (community, address).
type ScoringUsecase struct {
	stamps      StampRepository
	scores      ScoreRepository
	communities CommunityRepository
	weights     WeightConfigStore
	revocations RevocationList
	dedup       *DedupUsecase
	queue       JobQueue
	events      EventPublisher

	now func() time.Time
}

func NewScoringUsecase(
	stamps StampRepository,
	scores ScoreRepository,
	communities CommunityRepository,
	weights WeightConfigStore,
	revocations RevocationList,
	dedup *DedupUsecase,
	queue JobQueue,
	events EventPublisher,
) *ScoringUsecase {
	return &ScoringUsecase{
		stamps:      stamps,
		scores:      scores,
		communities: communities,
		weights:     weights,
		revocations: revocations,
		dedup:       dedup,
		queue:       queue,
		events:      events,
		now:         time.Now,
	}
}

// GetScore reads the persisted score. Callers get the last-known-good value
// with the error field populated for ERROR records; only a never-computed
// pair fails with NotFoundError.
func (uc *ScoringUsecase) GetScore(ctx context.Context, communityID int64, address string) (domain.Score, error) {
	return uc.scores.Get(ctx, communityID, scorer.NormalizeAddress(address))
}

// DedupAndScore recomputes the score for one (community, address) pair.
// Concurrent triggers coalesce: a caller that cannot claim PROCESSING marks
// the record stale and returns the current value, and the claim holder runs
// once more before finishing.
func (uc *ScoringUsecase) DedupAndScore(ctx context.Context, address string, communityID int64) (domain.Score, error) {

	address = scorer.NormalizeAddress(address)

	community, err := uc.communities.Get(ctx, communityID)
	if err != nil {
		return domain.Score{}, err
	}
	if community.DeletedAt != nil {
		return domain.Score{}, domain.NotFoundError{Resource: "community"}
	}

	claimed, err := uc.claim(ctx, communityID, address)
	if err != nil {
		return domain.Score{}, err
	}

	if !claimed {
		if err := uc.scores.MarkStale(ctx, communityID, address); err != nil {
			return domain.Score{}, err
		}
		return uc.scores.Get(ctx, communityID, address)
	}

	for round := 0; ; round++ {
		result, computeErr := uc.computeOnce(ctx, address, community)

		var stale bool
		if computeErr != nil {
			stale, err = uc.scores.Fail(ctx, communityID, address, computeErr.Error())
		} else {
			stale, err = uc.scores.Complete(ctx, communityID, address, result)
		}
		if err != nil {
			return domain.Score{}, err
		}

		if !stale {
			break
		}
		if round >= maxRecomputeRounds {
			_ = uc.queue.Enqueue(ctx, domain.RescoreJob{CommunityID: communityID, Address: address})
			break
		}

		claimed, err = uc.scores.Claim(ctx, communityID, address)
		if err != nil {
			return domain.Score{}, err
		}
		if !claimed {
			break
		}
	}

	if uc.events != nil {
		_ = uc.events.Publish(ctx, scorer.Event{
			Type:        domain.EventScoreUpdated,
			CommunityID: communityID,
			Address:     address,
			Timestamp:   uc.now().UTC(),
		})
	}

	return uc.scores.Get(ctx, communityID, address)
}

// computeOnce gathers stamps, resolves dedup ownership, applies exclusions
// and sums weights. Any failure here is recovered by the caller into the
// ERROR state; the stored score keeps its last-good value.
func (uc *ScoringUsecase) computeOnce(ctx context.Context, address string, community domain.Community) (domain.ScoreResult, error) {

	stamps, err := uc.stamps.Active(ctx, address)
	if err != nil {
		return domain.ScoreResult{}, err
	}

	var cfg domain.WeightConfiguration
	if community.WeightConfigID != nil {
		cfg, err = uc.weights.Get(ctx, *community.WeightConfigID)
	} else {
		cfg, err = uc.weights.Active(ctx)
	}
	if err != nil {
		return domain.ScoreResult{}, err
	}

	partition, err := uc.dedup.Dedup(ctx, stamps, community)
	if err != nil {
		return domain.ScoreResult{}, err
	}

	// owners demoted by a LIFO claim lose credit elsewhere; rescore them
	for _, owner := range partition.Demoted {
		if owner.CommunityID == community.ID && owner.Address == address {
			continue
		}
		_ = uc.queue.Enqueue(ctx, domain.RescoreJob{CommunityID: owner.CommunityID, Address: owner.Address})
	}

	revoked := make(map[string]bool)
	for _, stamp := range stamps {
		if stamp.ProofFingerprint == "" {
			continue
		}
		if _, ok := revoked[stamp.ProofFingerprint]; ok {
			continue
		}
		isRevoked, err := uc.revocations.IsRevoked(ctx, stamp.ProofFingerprint)
		if err != nil {
			return domain.ScoreResult{}, err
		}
		revoked[stamp.ProofFingerprint] = isRevoked
	}

	evaluated := Evaluate(partition, revoked, uc.now().UTC())

	return ComputeScore(evaluated, community, cfg), nil
}

// OnWeightConfigActivated fans out rescore jobs for every scored address in
// communities that follow the active configuration.
func (uc *ScoringUsecase) OnWeightConfigActivated(ctx context.Context, cfg domain.WeightConfiguration) error {

	communities, err := uc.communities.UsingDefaultWeights(ctx)
	if err != nil {
		return err
	}

	for _, community := range communities {
		addresses, err := uc.scores.AddressesInCommunity(ctx, community.ID)
		if err != nil {
			return err
		}
		for _, address := range addresses {
			err := uc.queue.Enqueue(ctx, domain.RescoreJob{CommunityID: community.ID, Address: address})
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// RescoreAddress enqueues recomputation in every community that has scored
// the address before, typically after a stamp write.
func (uc *ScoringUsecase) RescoreAddress(ctx context.Context, address string) error {

	address = scorer.NormalizeAddress(address)

	communityIDs, err := uc.scores.CommunitiesForAddress(ctx, address)
	if err != nil {
		return err
	}

	for _, id := range communityIDs {
		err := uc.queue.Enqueue(ctx, domain.RescoreJob{CommunityID: id, Address: address})
		if err != nil {
			return err
		}
	}

	return nil
}

// ProcessJob executes one queued rescore unit.
func (uc *ScoringUsecase) ProcessJob(ctx context.Context, job domain.RescoreJob) error {
	_, err := uc.DedupAndScore(ctx, job.Address, job.CommunityID)
	return err
}

// claim retries the PROCESSING claim on transient storage failures before
// giving up.
func (uc *ScoringUsecase) claim(ctx context.Context, communityID int64, address string) (bool, error) {

	var claimed bool
	var err error

	for attempt := 0; attempt < storageRetries; attempt++ {
		claimed, err = uc.scores.Claim(ctx, communityID, address)
		if err == nil || !errors.Is(err, domain.ErrTransientStorage) {
			return claimed, err
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * storageRetryDelay):
		}
	}

	return claimed, err
}
