package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/passportlabs/scorer/internal/domain"
)

// DedupResult partitions a candidate stamp set into fresh claims and
// duplicates, and lists previous owners demoted by LIFO claims.
type DedupResult struct {
	Accepted []domain.Stamp
	Deduped  []domain.Stamp
	Demoted  []domain.HashOwner
}

// DedupScope returns the ownership scope for a community. Hard-dedup
// communities pool the scope across all siblings of the owning account;
// soft ones are scoped to themselves.
func DedupScope(c domain.Community) string {
	if c.HardDedup {
		return "account:" + c.Account
	}
	return fmt.Sprintf("community:%d", c.ID)
}

type DedupUsecase struct {
	index DedupIndex
}

func NewDedupUsecase(index DedupIndex) *DedupUsecase {
	return &DedupUsecase{index: index}
}

// Dedup resolves ownership for every candidate hash under the community's
// rule. Re-running on an unchanged stamp set against unchanged owner state
// is a no-op: accepted claims already owned produce no mutation.
func (uc *DedupUsecase) Dedup(ctx context.Context, candidates []domain.Stamp, community domain.Community) (DedupResult, error) {

	if len(candidates) == 0 {
		return DedupResult{}, nil
	}

	seen := make(map[string]struct{})
	hashes := make([]string, 0, len(candidates))
	for _, stamp := range candidates {
		if stamp.Hash == "" {
			continue
		}
		if _, ok := seen[stamp.Hash]; ok {
			continue
		}
		seen[stamp.Hash] = struct{}{}
		hashes = append(hashes, stamp.Hash)
	}

	var result DedupResult
	err := uc.index.Resolve(ctx, DedupScope(community), hashes, func(owners map[string]domain.HashOwner) (DedupMutation, error) {
		res, mutation := partition(candidates, owners, community)
		result = res
		return mutation, nil
	})
	if err != nil {
		return DedupResult{}, err
	}

	return result, nil
}

// partition decides each candidate's fate against the owner snapshot.
// Candidates are processed in submission order (id ascending, the total
// order the store assigns) so batch-internal duplicates resolve the same
// way as historical ones.
func partition(candidates []domain.Stamp, owners map[string]domain.HashOwner, community domain.Community) (DedupResult, DedupMutation) {

	ordered := make([]domain.Stamp, len(candidates))
	copy(ordered, candidates)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	live := make(map[int64]struct{}, len(ordered))
	for _, stamp := range ordered {
		live[stamp.ID] = struct{}{}
	}

	// local view so claims within one batch are visible to later candidates
	view := make(map[string]domain.HashOwner, len(owners))
	for k, v := range owners {
		view[k] = v
	}

	var result DedupResult
	var mutation DedupMutation

	for _, stamp := range ordered {
		if stamp.Hash == "" {
			// no content commitment, nothing to dedup against
			result.Accepted = append(result.Accepted, stamp)
			continue
		}

		owner, claimed := view[stamp.Hash]
		if !claimed {
			result.Accepted = append(result.Accepted, stamp)
			next := domain.HashOwner{
				Hash:        stamp.Hash,
				CommunityID: community.ID,
				Address:     stamp.Address,
				StampID:     stamp.ID,
			}
			mutation.Claims = append(mutation.Claims, next)
			view[stamp.Hash] = next
			continue
		}

		if owner.CommunityID == community.ID && owner.Address == stamp.Address {
			if owner.StampID == stamp.ID {
				// already holds the credit; nothing to write
				result.Accepted = append(result.Accepted, stamp)
				continue
			}
			if _, stillLive := live[owner.StampID]; stillLive {
				// another live stamp of this address already counts the
				// commitment; a second one must not double-count
				result.Deduped = append(result.Deduped, stamp)
				continue
			}
			// resubmission: the owning row was tombstoned, carry the
			// ownership over to the fresh stamp
			result.Accepted = append(result.Accepted, stamp)
			next := domain.HashOwner{
				Hash:        stamp.Hash,
				CommunityID: community.ID,
				Address:     stamp.Address,
				StampID:     stamp.ID,
			}
			mutation.Claims = append(mutation.Claims, next)
			view[stamp.Hash] = next
			continue
		}

		switch community.Rule {
		case domain.RuleLIFO:
			if stamp.ID > owner.StampID {
				// latest claim wins, previous owner loses credit
				result.Accepted = append(result.Accepted, stamp)
				result.Demoted = append(result.Demoted, owner)
				next := domain.HashOwner{
					Hash:        stamp.Hash,
					CommunityID: community.ID,
					Address:     stamp.Address,
					StampID:     stamp.ID,
				}
				mutation.Claims = append(mutation.Claims, next)
				view[stamp.Hash] = next
			} else {
				result.Deduped = append(result.Deduped, stamp)
			}
		default: // FIFO
			result.Deduped = append(result.Deduped, stamp)
		}
	}

	return result, mutation
}
