package usecase

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/passportlabs/scorer/internal/domain"
)

// EvaluatedStamp is a stamp with its exclusion flags resolved.
type EvaluatedStamp struct {
	domain.Stamp
	Deduped bool
	Expired bool
	Revoked bool
}

// ComputeScore applies a weight configuration to an evaluated stamp set.
// Excluded stamps (deduped, expired, revoked) contribute zero but stay in
// the breakdown for audit display. Providers absent from the configuration
// contribute zero without being an error. Decimal addition keeps the result
// independent of summation order.
func ComputeScore(stamps []EvaluatedStamp, community domain.Community, cfg domain.WeightConfiguration) domain.ScoreResult {

	breakdown := make(map[string]domain.StampScore, len(stamps))
	total := decimal.Zero

	for _, stamp := range stamps {
		entry := domain.StampScore{
			Weight:  decimal.Zero,
			Deduped: stamp.Deduped,
			Expired: stamp.Expired,
			Revoked: stamp.Revoked,
		}
		if !stamp.Deduped && !stamp.Expired && !stamp.Revoked {
			if weight, ok := cfg.Weights[stamp.Provider]; ok {
				entry.Weight = weight
				total = total.Add(weight)
			}
		}
		breakdown[stamp.Provider] = entry
	}

	passing := total.GreaterThanOrEqual(cfg.Threshold)

	score := total
	if community.Variant == domain.ScorerBinaryWeighted {
		if passing {
			score = decimal.NewFromInt(1)
		} else {
			score = decimal.Zero
		}
	}

	return domain.ScoreResult{
		Score:     score,
		Threshold: cfg.Threshold,
		Passing:   passing,
		Breakdown: breakdown,
	}
}

// Evaluate resolves exclusion flags for the dedup partition. A stamp is
// expired when its expiration date is strictly before now.
func Evaluate(partition DedupResult, revoked map[string]bool, now time.Time) []EvaluatedStamp {

	out := make([]EvaluatedStamp, 0, len(partition.Accepted)+len(partition.Deduped))

	for _, stamp := range partition.Accepted {
		out = append(out, EvaluatedStamp{
			Stamp:   stamp,
			Expired: stamp.ExpirationDate.Before(now),
			Revoked: revoked[stamp.ProofFingerprint],
		})
	}
	for _, stamp := range partition.Deduped {
		out = append(out, EvaluatedStamp{
			Stamp:   stamp,
			Deduped: true,
			Expired: stamp.ExpirationDate.Before(now),
			Revoked: revoked[stamp.ProofFingerprint],
		})
	}

	return out
}
