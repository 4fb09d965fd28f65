package proposal

import (
	"context"
	"fmt"
	"sort"

	"procurement/models"

	"github.com/google/uuid"
)

// RankingEngine строит рейтинг поставщиков по одной позиции тендера.
// Только читает данные и не берёт блокировок.
type RankingEngine struct {
	source    RankingSource
	suppliers SupplierDirectory
}

func NewRankingEngine(source RankingSource, suppliers SupplierDirectory) *RankingEngine {
	return &RankingEngine{source: source, suppliers: suppliers}
}

// RankByLineItem сортирует предложения по возрастанию цены за единицу.
// Порядок равных цен не определён правилами закупки: такие строки делят
// одну позицию и помечаются Tied, а между собой идут в порядке выборки.
func (e *RankingEngine) RankByLineItem(ctx context.Context, tenderLineItemID uuid.UUID) ([]models.RankingEntry, error) {
	candidates, err := e.source.RankingCandidates(ctx, tenderLineItemID)
	if err != nil {
		return nil, fmt.Errorf("load ranking candidates for %s: %w", tenderLineItemID, err)
	}

	eligible := make([]models.RankingCandidate, 0, len(candidates))
	for _, c := range candidates {
		if !c.ProposalStatus.ExcludedFromRanking() {
			eligible = append(eligible, c)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].UnitPrice.LessThan(eligible[j].UnitPrice)
	})

	names, err := e.supplierNames(ctx, eligible)
	if err != nil {
		return nil, err
	}

	ranking := make([]models.RankingEntry, len(eligible))
	for i, c := range eligible {
		position := i + 1
		if i > 0 && c.UnitPrice.Equal(eligible[i-1].UnitPrice) {
			position = ranking[i-1].Position
			ranking[i-1].Tied = true
		}
		ranking[i] = models.RankingEntry{
			Position:     position,
			Tied:         i > 0 && position == ranking[i-1].Position,
			ProposalID:   c.ProposalID,
			SupplierID:   c.SupplierID,
			SupplierName: names[c.SupplierID],
			UnitPrice:    c.UnitPrice,
			LineTotal:    c.LineTotal,
			Brand:        c.Brand,
			Model:        c.Model,
		}
	}
	return ranking, nil
}

func (e *RankingEngine) supplierNames(ctx context.Context, candidates []models.RankingCandidate) (map[uuid.UUID]string, error) {
	if len(candidates) == 0 {
		return map[uuid.UUID]string{}, nil
	}
	ids := make([]uuid.UUID, 0, len(candidates))
	seen := make(map[uuid.UUID]bool, len(candidates))
	for _, c := range candidates {
		if !seen[c.SupplierID] {
			seen[c.SupplierID] = true
			ids = append(ids, c.SupplierID)
		}
	}
	names, err := e.suppliers.SupplierNames(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve supplier names: %w", err)
	}
	return names, nil
}
