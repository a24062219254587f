package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/passportlabs/scorer"
	"github.com/passportlabs/scorer/internal/domain"
)

// --- mocks ---

type mockStamps struct {
	stamps []domain.Stamp
	err    error
}

func (m *mockStamps) Active(ctx context.Context, address string) ([]domain.Stamp, error) {
	return m.stamps, m.err
}
func (m *mockStamps) Save(ctx context.Context, stamp domain.Stamp) (domain.Stamp, error) {
	return stamp, nil
}
func (m *mockStamps) SoftDelete(ctx context.Context, address, provider string) error { return nil }
func (m *mockStamps) History(ctx context.Context, address string, limit, offset int) ([]domain.Stamp, error) {
	return m.stamps, nil
}

type mockScores struct {
	mu        sync.Mutex
	records   map[string]*domain.Score
	completes int
	fails     int
	// staleOnComplete injects one stale signal per queued value
	staleOnComplete []bool
}

func newMockScores() *mockScores {
	return &mockScores{records: make(map[string]*domain.Score)}
}

func scoreKey(communityID int64, address string) string {
	return fmt.Sprintf("%d/%s", communityID, address)
}

func (m *mockScores) Get(ctx context.Context, communityID int64, address string) (domain.Score, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[scoreKey(communityID, address)]
	if !ok {
		return domain.Score{}, domain.NotFoundError{Resource: "score"}
	}
	return *record, nil
}

func (m *mockScores) Claim(ctx context.Context, communityID int64, address string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := scoreKey(communityID, address)
	record, ok := m.records[key]
	if !ok {
		m.records[key] = &domain.Score{
			CommunityID: communityID,
			Address:     address,
			Status:      domain.ScoreProcessing,
		}
		return true, nil
	}
	if record.Status == domain.ScoreProcessing {
		return false, nil
	}
	record.Status = domain.ScoreProcessing
	record.Stale = false
	return true, nil
}

func (m *mockScores) MarkStale(ctx context.Context, communityID int64, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record, ok := m.records[scoreKey(communityID, address)]; ok {
		record.Stale = true
	}
	return nil
}

func (m *mockScores) Complete(ctx context.Context, communityID int64, address string, result domain.ScoreResult) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completes++
	record := m.records[scoreKey(communityID, address)]
	now := time.Now().UTC()
	record.Status = domain.ScoreDone
	record.Score = result.Score
	record.Threshold = result.Threshold
	record.Passing = result.Passing
	record.Breakdown = result.Breakdown
	record.Error = ""
	record.ComputedAt = &now

	stale := record.Stale
	if len(m.staleOnComplete) > 0 {
		stale = stale || m.staleOnComplete[0]
		m.staleOnComplete = m.staleOnComplete[1:]
	}
	record.Stale = false
	return stale, nil
}

func (m *mockScores) Fail(ctx context.Context, communityID int64, address string, message string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fails++
	record := m.records[scoreKey(communityID, address)]
	record.Status = domain.ScoreError
	record.Error = message
	stale := record.Stale
	record.Stale = false
	return stale, nil
}

func (m *mockScores) AddressesInCommunity(ctx context.Context, communityID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, record := range m.records {
		if record.CommunityID == communityID {
			out = append(out, record.Address)
		}
	}
	return out, nil
}

func (m *mockScores) CommunitiesForAddress(ctx context.Context, address string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int64
	for _, record := range m.records {
		if record.Address == address {
			out = append(out, record.CommunityID)
		}
	}
	return out, nil
}

type mockCommunities struct {
	communities map[int64]domain.Community
}

func (m *mockCommunities) Get(ctx context.Context, id int64) (domain.Community, error) {
	community, ok := m.communities[id]
	if !ok {
		return domain.Community{}, domain.NotFoundError{Resource: "community"}
	}
	return community, nil
}

func (m *mockCommunities) UsingDefaultWeights(ctx context.Context) ([]domain.Community, error) {
	var out []domain.Community
	for _, community := range m.communities {
		if community.WeightConfigID == nil && community.DeletedAt == nil {
			out = append(out, community)
		}
	}
	return out, nil
}

type mockWeights struct {
	cfg domain.WeightConfiguration
	err error
}

func (m *mockWeights) Active(ctx context.Context) (domain.WeightConfiguration, error) {
	return m.cfg, m.err
}
func (m *mockWeights) Get(ctx context.Context, id int64) (domain.WeightConfiguration, error) {
	return m.cfg, m.err
}

type mockRevocations struct {
	revoked map[string]bool
}

func (m *mockRevocations) IsRevoked(ctx context.Context, fingerprint string) (bool, error) {
	return m.revoked[fingerprint], nil
}

type mockQueue struct {
	mu   sync.Mutex
	jobs []domain.RescoreJob
}

func (m *mockQueue) Enqueue(ctx context.Context, job domain.RescoreJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
	return nil
}

type mockEvents struct {
	events []scorer.Event
}

func (m *mockEvents) Publish(ctx context.Context, event scorer.Event) error {
	m.events = append(m.events, event)
	return nil
}

// --- helpers ---

func newScoringFixture(scores *mockScores, stamps []domain.Stamp, weights *mockWeights) (*ScoringUsecase, *mockQueue, *mockEvents) {
	queue := &mockQueue{}
	events := &mockEvents{}
	communities := &mockCommunities{communities: map[int64]domain.Community{
		1: {ID: 1, Account: "acct", Rule: domain.RuleFIFO, Variant: domain.ScorerWeighted},
	}}
	uc := NewScoringUsecase(
		&mockStamps{stamps: stamps},
		scores,
		communities,
		weights,
		&mockRevocations{},
		NewDedupUsecase(&memIndex{}),
		queue,
		events,
	)
	return uc, queue, events
}

// --- tests ---

func TestDedupAndScoreHappyPath(t *testing.T) {
	now := time.Now().UTC()
	scores := newMockScores()
	stamps := []domain.Stamp{
		{ID: 1, Address: "0xaa", Provider: "ProviderX", Hash: "HX", ExpirationDate: now.Add(time.Hour)},
		{ID: 2, Address: "0xaa", Provider: "ProviderY", Hash: "HY", ExpirationDate: now.Add(-time.Hour)},
	}
	uc, _, events := newScoringFixture(scores, stamps, &mockWeights{cfg: weightConfig()})

	score, err := uc.DedupAndScore(context.Background(), "0xAA", 1)
	if err != nil {
		t.Fatalf("dedup and score: %v", err)
	}
	if score.Status != domain.ScoreDone {
		t.Errorf("status = %s, want DONE", score.Status)
	}
	if !score.Score.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("score = %s, want 2.5", score.Score)
	}
	if score.Passing {
		t.Errorf("2.5 < 3.0 must not pass")
	}
	if score.ComputedAt == nil {
		t.Errorf("computed timestamp missing")
	}
	if len(events.events) != 1 || events.events[0].Type != domain.EventScoreUpdated {
		t.Errorf("expected one score.updated event, got %+v", events.events)
	}
}

func TestDedupAndScoreRoundTripIdentical(t *testing.T) {
	now := time.Now().UTC()
	scores := newMockScores()
	stamps := []domain.Stamp{
		{ID: 1, Address: "0xaa", Provider: "ProviderX", Hash: "HX", ExpirationDate: now.Add(time.Hour)},
	}
	uc, _, _ := newScoringFixture(scores, stamps, &mockWeights{cfg: weightConfig()})

	first, err := uc.DedupAndScore(context.Background(), "0xaa", 1)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := uc.DedupAndScore(context.Background(), "0xaa", 1)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if !first.Score.Equal(second.Score) || first.Passing != second.Passing {
		t.Errorf("results differ: %s/%v vs %s/%v", first.Score, first.Passing, second.Score, second.Passing)
	}
	if len(first.Breakdown) != len(second.Breakdown) {
		t.Errorf("breakdowns differ: %+v vs %+v", first.Breakdown, second.Breakdown)
	}
	for provider, entry := range first.Breakdown {
		other := second.Breakdown[provider]
		if !entry.Weight.Equal(other.Weight) || entry.Deduped != other.Deduped {
			t.Errorf("breakdown entry %s differs: %+v vs %+v", provider, entry, other)
		}
	}
}

func TestDedupAndScoreCoalescesConcurrentTrigger(t *testing.T) {
	scores := newMockScores()
	scores.records[scoreKey(1, "0xaa")] = &domain.Score{
		CommunityID: 1,
		Address:     "0xaa",
		Status:      domain.ScoreProcessing,
		Score:       decimal.RequireFromString("1.5"),
	}
	uc, _, _ := newScoringFixture(scores, nil, &mockWeights{cfg: weightConfig()})

	score, err := uc.DedupAndScore(context.Background(), "0xaa", 1)
	if err != nil {
		t.Fatalf("coalesced trigger: %v", err)
	}
	if scores.completes != 0 {
		t.Errorf("coalesced trigger must not compute, completes = %d", scores.completes)
	}
	if !score.Stale {
		t.Errorf("in-flight record must be marked stale")
	}
	if !score.Score.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("caller must see the current value, got %s", score.Score)
	}
}

func TestDedupAndScoreStaleTriggersRecompute(t *testing.T) {
	now := time.Now().UTC()
	scores := newMockScores()
	scores.staleOnComplete = []bool{true, false}
	stamps := []domain.Stamp{
		{ID: 1, Address: "0xaa", Provider: "ProviderX", Hash: "HX", ExpirationDate: now.Add(time.Hour)},
	}
	uc, _, _ := newScoringFixture(scores, stamps, &mockWeights{cfg: weightConfig()})

	if _, err := uc.DedupAndScore(context.Background(), "0xaa", 1); err != nil {
		t.Fatalf("dedup and score: %v", err)
	}
	if scores.completes != 2 {
		t.Errorf("stale record must recompute once more, completes = %d", scores.completes)
	}
}

func TestDedupAndScoreErrorKeepsLastGoodValue(t *testing.T) {
	scores := newMockScores()
	scores.records[scoreKey(1, "0xaa")] = &domain.Score{
		CommunityID: 1,
		Address:     "0xaa",
		Status:      domain.ScoreDone,
		Score:       decimal.RequireFromString("2.5"),
	}
	uc, _, _ := newScoringFixture(scores, nil, &mockWeights{err: errors.New("weights unavailable")})

	score, err := uc.DedupAndScore(context.Background(), "0xaa", 1)
	if err != nil {
		t.Fatalf("scoring failures must be recovered, got %v", err)
	}
	if score.Status != domain.ScoreError {
		t.Errorf("status = %s, want ERROR", score.Status)
	}
	if score.Error == "" {
		t.Errorf("error message missing")
	}
	if !score.Score.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("last-good score corrupted: %s", score.Score)
	}
}

func TestDedupAndScoreUnknownCommunity(t *testing.T) {
	scores := newMockScores()
	uc, _, _ := newScoringFixture(scores, nil, &mockWeights{cfg: weightConfig()})

	_, err := uc.DedupAndScore(context.Background(), "0xaa", 42)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetScoreNeverComputed(t *testing.T) {
	scores := newMockScores()
	uc, _, _ := newScoringFixture(scores, nil, &mockWeights{cfg: weightConfig()})

	_, err := uc.GetScore(context.Background(), 1, "0xaa")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOnWeightConfigActivatedFansOut(t *testing.T) {
	scores := newMockScores()
	scores.records[scoreKey(1, "0xaa")] = &domain.Score{CommunityID: 1, Address: "0xaa", Status: domain.ScoreDone}
	scores.records[scoreKey(1, "0xbb")] = &domain.Score{CommunityID: 1, Address: "0xbb", Status: domain.ScoreDone}
	uc, queue, _ := newScoringFixture(scores, nil, &mockWeights{cfg: weightConfig()})

	if err := uc.OnWeightConfigActivated(context.Background(), weightConfig()); err != nil {
		t.Fatalf("fan-out: %v", err)
	}
	if len(queue.jobs) != 2 {
		t.Errorf("expected a job per scored address, got %d", len(queue.jobs))
	}
}

func TestRescoreAddressEnqueuesAllCommunities(t *testing.T) {
	scores := newMockScores()
	scores.records[scoreKey(1, "0xaa")] = &domain.Score{CommunityID: 1, Address: "0xaa", Status: domain.ScoreDone}
	uc, queue, _ := newScoringFixture(scores, nil, &mockWeights{cfg: weightConfig()})

	if err := uc.RescoreAddress(context.Background(), "0xAA"); err != nil {
		t.Fatalf("rescore address: %v", err)
	}
	if len(queue.jobs) != 1 || queue.jobs[0].CommunityID != 1 {
		t.Errorf("expected one job for community 1, got %+v", queue.jobs)
	}
}
