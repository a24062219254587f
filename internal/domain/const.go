package domain

// Rule decides which address keeps credit when the same content commitment
// is claimed more than once.
type Rule string

const (
	// RuleFIFO: the first claim wins, later claims are deduped.
	RuleFIFO Rule = "FIFO"
	// RuleLIFO: the latest claim wins, earlier claims are demoted.
	RuleLIFO Rule = "LIFO"
)

// ScorerVariant selects the scoring dispatch for a community.
type ScorerVariant string

const (
	ScorerWeighted       ScorerVariant = "WEIGHTED"
	ScorerBinaryWeighted ScorerVariant = "WEIGHTED_BINARY"
)

// ScoreStatus is the lifecycle state of a (community, address) score record.
type ScoreStatus string

const (
	ScoreProcessing ScoreStatus = "PROCESSING"
	ScoreDone       ScoreStatus = "DONE"
	ScoreError      ScoreStatus = "ERROR"
)

type ctxKey string

// RequesterAddressCtxKey carries the authenticated address through a request.
const RequesterAddressCtxKey ctxKey = "requesterAddress"

// SessionNonceCtxKey carries the nonce bound to the requester's session.
const SessionNonceCtxKey ctxKey = "sessionNonce"

const (
	// EventChannel is the redis pub/sub channel for score events.
	EventChannel = "scorer:events"
	// RescoreQueue is the redis list backing the rescore job queue.
	RescoreQueue = "scorer:rescore"

	EventScoreUpdated = "score.updated"
)
