package proposal_test

import (
	"context"
	"errors"
	"testing"

	"procurement/internal/proposal"
	"procurement/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankByLineItem_OrdersByUnitPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.create(t, f.s1, line(f.l1, "10.00"))
	p2 := f.create(t, f.s2, line(f.l1, "8.00"))
	_, err := f.mgr.Submit(ctx, p1.ID)
	require.NoError(t, err)
	_, err = f.mgr.Submit(ctx, p2.ID)
	require.NoError(t, err)

	ranking, err := f.ranking.RankByLineItem(ctx, f.l1)
	require.NoError(t, err)
	require.Len(t, ranking, 2)

	assert.Equal(t, 1, ranking[0].Position)
	assert.Equal(t, f.s2, ranking[0].SupplierID)
	assert.Equal(t, "ИП Васильев", ranking[0].SupplierName)
	assert.True(t, ranking[0].UnitPrice.Equal(dec("8")))
	assert.True(t, ranking[0].LineTotal.Equal(dec("40")))
	assert.Equal(t, 2, ranking[1].Position)
	assert.Equal(t, f.s1, ranking[1].SupplierID)
	assert.True(t, ranking[1].UnitPrice.Equal(dec("10")))
	assert.False(t, ranking[0].Tied || ranking[1].Tied)

	_, err = f.mgr.Disqualify(ctx, p2.ID, "non-conforming sample")
	require.NoError(t, err)

	ranking, err = f.ranking.RankByLineItem(ctx, f.l1)
	require.NoError(t, err)
	require.Len(t, ranking, 1)
	assert.Equal(t, 1, ranking[0].Position)
	assert.Equal(t, f.s1, ranking[0].SupplierID)
}

func TestRankByLineItem_ExcludesCancelledAndOtherLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cancelled := f.create(t, f.s1, line(f.l1, "1"))
	f.create(t, f.s2, line(f.l2, "3"))
	_, err := f.mgr.Cancel(ctx, cancelled.ID)
	require.NoError(t, err)

	ranking, err := f.ranking.RankByLineItem(ctx, f.l1)
	require.NoError(t, err)
	assert.Empty(t, ranking)

	ranking, err = f.ranking.RankByLineItem(ctx, f.l2)
	require.NoError(t, err)
	require.Len(t, ranking, 1)
	assert.Equal(t, f.s2, ranking[0].SupplierID)
}

type stubCandidates struct {
	candidates []models.RankingCandidate
	err        error
}

func (s stubCandidates) RankingCandidates(context.Context, uuid.UUID) ([]models.RankingCandidate, error) {
	return s.candidates, s.err
}

type stubNames map[uuid.UUID]string

func (s stubNames) SupplierNames(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, len(ids))
	for _, id := range ids {
		out[id] = s[id]
	}
	return out, nil
}

func candidate(price string, status models.ProposalStatus) models.RankingCandidate {
	return models.RankingCandidate{
		ProposalID:     uuid.New(),
		SupplierID:     uuid.New(),
		ProposalStatus: status,
		LineItemID:     uuid.New(),
		UnitPrice:      dec(price),
	}
}

func TestRankByLineItem_TiesSharePosition(t *testing.T) {
	cands := []models.RankingCandidate{
		candidate("7", models.StatusSubmitted),
		candidate("5", models.StatusQualified),
		candidate("7.00", models.StatusUnderReview),
		candidate("5", models.StatusReceived),
		candidate("9", models.StatusDraft),
	}
	engine := proposal.NewRankingEngine(stubCandidates{candidates: cands}, stubNames{})

	ranking, err := engine.RankByLineItem(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, ranking, 5)

	positions := make([]int, len(ranking))
	tied := make([]bool, len(ranking))
	for i, r := range ranking {
		positions[i] = r.Position
		tied[i] = r.Tied
	}
	assert.Equal(t, []int{1, 1, 3, 3, 5}, positions)
	assert.Equal(t, []bool{true, true, true, true, false}, tied)

	// Равные цены сохраняют порядок выборки.
	assert.Equal(t, cands[1].ProposalID, ranking[0].ProposalID)
	assert.Equal(t, cands[3].ProposalID, ranking[1].ProposalID)
	assert.Equal(t, cands[0].ProposalID, ranking[2].ProposalID)
	assert.Equal(t, cands[2].ProposalID, ranking[3].ProposalID)
}

func TestRankByLineItem_SourceError(t *testing.T) {
	boom := errors.New("connection reset")
	engine := proposal.NewRankingEngine(stubCandidates{err: boom}, stubNames{})

	_, err := engine.RankByLineItem(context.Background(), uuid.New())
	require.ErrorIs(t, err, boom)
}
