package usecase

import (
	"context"
	"time"

	"github.com/passportlabs/scorer"
	"github.com/passportlabs/scorer/internal/domain"
)

// StampRepository defines storage operations for cached credentials.
// Rows are tombstoned, never physically deleted.
type StampRepository interface {
	// Active returns non-tombstoned stamps in submission order (id ascending).
	Active(ctx context.Context, address string) ([]domain.Stamp, error)
	// Save replaces the (address, provider) slot, tombstoning any previous
	// row. A reused proof fingerprint fails with DuplicateError.
	Save(ctx context.Context, stamp domain.Stamp) (domain.Stamp, error)
	SoftDelete(ctx context.Context, address, provider string) error
	History(ctx context.Context, address string, limit, offset int) ([]domain.Stamp, error)
}

// DedupMutation is the set of ownership claims produced by one dedup pass.
type DedupMutation struct {
	Claims []domain.HashOwner
}

// DedupIndex is the hash→owner materialized view. Resolve runs fn with the
// current owners of the given hashes, holding them locked until fn returns;
// the returned mutation is applied in the same transaction.
type DedupIndex interface {
	Resolve(ctx context.Context, scope string, hashes []string, fn func(owners map[string]domain.HashOwner) (DedupMutation, error)) error
}

// ScoreRepository defines persistence for score lifecycle records.
type ScoreRepository interface {
	Get(ctx context.Context, communityID int64, address string) (domain.Score, error)
	// Claim atomically moves the record into PROCESSING, creating it if
	// absent. Returns false when a computation is already in flight.
	Claim(ctx context.Context, communityID int64, address string) (bool, error)
	// MarkStale flags an in-flight record so the holder recomputes once more.
	MarkStale(ctx context.Context, communityID int64, address string) error
	// Complete transitions PROCESSING→DONE and reports whether the record
	// went stale while computing.
	Complete(ctx context.Context, communityID int64, address string, result domain.ScoreResult) (bool, error)
	// Fail transitions PROCESSING→ERROR keeping the last-good score value.
	Fail(ctx context.Context, communityID int64, address string, message string) (bool, error)
	AddressesInCommunity(ctx context.Context, communityID int64) ([]string, error)
	CommunitiesForAddress(ctx context.Context, address string) ([]int64, error)
}

// CommunityRepository defines lookup for scoring communities.
type CommunityRepository interface {
	Get(ctx context.Context, id int64) (domain.Community, error)
	// UsingDefaultWeights lists non-deleted communities following the
	// active weight configuration.
	UsingDefaultWeights(ctx context.Context) ([]domain.Community, error)
}

// WeightConfigStore resolves weight configurations.
type WeightConfigStore interface {
	Active(ctx context.Context) (domain.WeightConfiguration, error)
	Get(ctx context.Context, id int64) (domain.WeightConfiguration, error)
}

// RevocationList answers whether a proof fingerprint has been revoked.
type RevocationList interface {
	IsRevoked(ctx context.Context, fingerprint string) (bool, error)
}

// NonceStore issues and consumes one-time tokens.
type NonceStore interface {
	// Create issues a nonce; ttl <= 0 stores no expiry metadata.
	Create(ctx context.Context, ttl time.Duration) (domain.Nonce, error)
	// Validate is a read-only check; missing or consumed nonces fail with
	// NotFoundError.
	Validate(ctx context.Context, token string) (domain.Nonce, error)
	// Use atomically consumes the nonce. True at most once per token.
	Use(ctx context.Context, token string) (bool, error)
}

// JobQueue dispatches asynchronous rescore work, fire-and-forget.
type JobQueue interface {
	Enqueue(ctx context.Context, job domain.RescoreJob) error
}

// EventPublisher emits score events to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event scorer.Event) error
}
