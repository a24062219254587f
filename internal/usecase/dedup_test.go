package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/passportlabs/scorer/internal/domain"
)

// memIndex is an in-memory DedupIndex mirroring the repository contract.
type memIndex struct {
	owners map[string]map[string]domain.HashOwner
}

func (m *memIndex) Resolve(ctx context.Context, scope string, hashes []string, fn func(map[string]domain.HashOwner) (DedupMutation, error)) error {
	if m.owners == nil {
		m.owners = make(map[string]map[string]domain.HashOwner)
	}
	scoped, ok := m.owners[scope]
	if !ok {
		scoped = make(map[string]domain.HashOwner)
		m.owners[scope] = scoped
	}

	snapshot := make(map[string]domain.HashOwner)
	for _, h := range hashes {
		if owner, ok := scoped[h]; ok {
			snapshot[h] = owner
		}
	}

	mutation, err := fn(snapshot)
	if err != nil {
		return err
	}
	for _, claim := range mutation.Claims {
		scoped[claim.Hash] = claim
	}
	return nil
}

func stampFor(id int64, address, provider, hash string) domain.Stamp {
	return domain.Stamp{
		ID:             id,
		Address:        address,
		Provider:       provider,
		Hash:           hash,
		IssuanceDate:   time.Now().UTC().Add(-time.Hour),
		ExpirationDate: time.Now().UTC().Add(24 * time.Hour),
	}
}

func TestDedupFIFOFirstClaimStands(t *testing.T) {
	index := &memIndex{}
	uc := NewDedupUsecase(index)
	community := domain.Community{ID: 1, Account: "acct", Rule: domain.RuleFIFO}

	first, err := uc.Dedup(context.Background(), []domain.Stamp{stampFor(1, "0xaa", "Github", "H")}, community)
	if err != nil {
		t.Fatalf("dedup: %v", err)
	}
	if len(first.Accepted) != 1 || len(first.Deduped) != 0 {
		t.Fatalf("expected first claim accepted, got %+v", first)
	}

	second, err := uc.Dedup(context.Background(), []domain.Stamp{stampFor(2, "0xbb", "Github", "H")}, community)
	if err != nil {
		t.Fatalf("dedup: %v", err)
	}
	if len(second.Accepted) != 0 || len(second.Deduped) != 1 {
		t.Fatalf("expected later claim deduped, got %+v", second)
	}
	if len(second.Demoted) != 0 {
		t.Errorf("FIFO must never demote, got %+v", second.Demoted)
	}
}

func TestDedupLIFOLatestClaimWins(t *testing.T) {
	index := &memIndex{}
	uc := NewDedupUsecase(index)
	community := domain.Community{ID: 1, Account: "acct", Rule: domain.RuleLIFO}

	if _, err := uc.Dedup(context.Background(), []domain.Stamp{stampFor(1, "0xaa", "Github", "H")}, community); err != nil {
		t.Fatalf("dedup: %v", err)
	}

	second, err := uc.Dedup(context.Background(), []domain.Stamp{stampFor(2, "0xbb", "Github", "H")}, community)
	if err != nil {
		t.Fatalf("dedup: %v", err)
	}
	if len(second.Accepted) != 1 {
		t.Fatalf("expected newest claim accepted, got %+v", second)
	}
	if len(second.Demoted) != 1 || second.Demoted[0].Address != "0xaa" {
		t.Fatalf("expected previous owner demoted, got %+v", second.Demoted)
	}

	// the demoted address now loses the hash on its next scoring pass
	rescore, err := uc.Dedup(context.Background(), []domain.Stamp{stampFor(1, "0xaa", "Github", "H")}, community)
	if err != nil {
		t.Fatalf("dedup: %v", err)
	}
	if len(rescore.Deduped) != 1 {
		t.Fatalf("expected demoted claim to dedupe on rescore, got %+v", rescore)
	}
}

func TestDedupIdempotent(t *testing.T) {
	index := &memIndex{}
	uc := NewDedupUsecase(index)
	community := domain.Community{ID: 1, Account: "acct", Rule: domain.RuleLIFO}

	stamps := []domain.Stamp{
		stampFor(1, "0xaa", "Github", "H1"),
		stampFor(2, "0xaa", "Twitter", "H2"),
	}

	first, err := uc.Dedup(context.Background(), stamps, community)
	if err != nil {
		t.Fatalf("dedup: %v", err)
	}
	second, err := uc.Dedup(context.Background(), stamps, community)
	if err != nil {
		t.Fatalf("dedup: %v", err)
	}

	if len(first.Accepted) != len(second.Accepted) || len(first.Deduped) != len(second.Deduped) {
		t.Fatalf("partitions differ across identical runs: %+v vs %+v", first, second)
	}
	if len(second.Demoted) != 0 {
		t.Errorf("second run must not re-demote, got %+v", second.Demoted)
	}
}

func TestDedupHardScopePoolsSiblings(t *testing.T) {
	index := &memIndex{}
	uc := NewDedupUsecase(index)

	hardA := domain.Community{ID: 1, Account: "acct", Rule: domain.RuleFIFO, HardDedup: true}
	hardB := domain.Community{ID: 2, Account: "acct", Rule: domain.RuleFIFO, HardDedup: true}
	soft := domain.Community{ID: 3, Account: "acct", Rule: domain.RuleFIFO}

	if _, err := uc.Dedup(context.Background(), []domain.Stamp{stampFor(1, "0xaa", "Github", "H")}, hardA); err != nil {
		t.Fatalf("dedup: %v", err)
	}

	// sibling in the pooled scope sees the claim
	res, err := uc.Dedup(context.Background(), []domain.Stamp{stampFor(2, "0xbb", "Github", "H")}, hardB)
	if err != nil {
		t.Fatalf("dedup: %v", err)
	}
	if len(res.Deduped) != 1 {
		t.Fatalf("expected pooled dedup across hard siblings, got %+v", res)
	}

	// a soft sibling has its own scope and is unaffected
	res, err = uc.Dedup(context.Background(), []domain.Stamp{stampFor(3, "0xbb", "Github", "H")}, soft)
	if err != nil {
		t.Fatalf("dedup: %v", err)
	}
	if len(res.Accepted) != 1 {
		t.Fatalf("soft community must not consult the pooled scope, got %+v", res)
	}
}

func TestDedupNoCommitmentAlwaysAccepted(t *testing.T) {
	index := &memIndex{}
	uc := NewDedupUsecase(index)
	community := domain.Community{ID: 1, Account: "acct", Rule: domain.RuleFIFO}

	res, err := uc.Dedup(context.Background(), []domain.Stamp{stampFor(1, "0xaa", "Github", "")}, community)
	if err != nil {
		t.Fatalf("dedup: %v", err)
	}
	if len(res.Accepted) != 1 {
		t.Fatalf("stamp without commitment must be accepted, got %+v", res)
	}
}

func TestDedupBatchInternalDuplicates(t *testing.T) {
	index := &memIndex{}
	uc := NewDedupUsecase(index)
	community := domain.Community{ID: 1, Account: "acct", Rule: domain.RuleFIFO}

	res, err := uc.Dedup(context.Background(), []domain.Stamp{
		stampFor(2, "0xaa", "Twitter", "H"),
		stampFor(1, "0xaa", "Github", "H"),
	}, community)
	if err != nil {
		t.Fatalf("dedup: %v", err)
	}
	// submission order decides: id 1 claims, id 2 dedupes
	if len(res.Accepted) != 1 || res.Accepted[0].ID != 1 {
		t.Fatalf("expected earliest submission to win, got %+v", res)
	}
	if len(res.Deduped) != 1 || res.Deduped[0].ID != 2 {
		t.Fatalf("expected later submission deduped, got %+v", res)
	}
}
