package handlers

import (
	"context"

	"procurement/internal/proposal"
	"procurement/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProposalService описывает операции жизненного цикла, которые нужны HTTP-слою.
// Реализуется proposal.Manager.
type ProposalService interface {
	Create(ctx context.Context, in proposal.CreateInput) (*models.Proposal, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Proposal, error)
	Update(ctx context.Context, id uuid.UUID, in proposal.UpdateInput) (*models.Proposal, error)
	Submit(ctx context.Context, id uuid.UUID) (*models.Proposal, error)
	Remove(ctx context.Context, id, supplierID uuid.UUID) error

	AddLineItem(ctx context.Context, proposalID uuid.UUID, in proposal.LineItemInput, discardOverride bool) (*models.ProposalLineItem, error)
	UpdateLineItem(ctx context.Context, itemID uuid.UUID, in proposal.UpdateLineItemInput) (*models.ProposalLineItem, error)
	RemoveLineItem(ctx context.Context, itemID uuid.UUID, discardOverride bool) (*models.Proposal, error)

	MarkReceived(ctx context.Context, id uuid.UUID) (*models.Proposal, error)
	StartReview(ctx context.Context, id uuid.UUID) (*models.Proposal, error)
	Qualify(ctx context.Context, id uuid.UUID) (*models.Proposal, error)
	Disqualify(ctx context.Context, id uuid.UUID, reason string) (*models.Proposal, error)
	Award(ctx context.Context, id uuid.UUID) (*models.Proposal, error)
	Cancel(ctx context.Context, id uuid.UUID) (*models.Proposal, error)
	OverrideAggregateTotal(ctx context.Context, id uuid.UUID, value decimal.Decimal) (*models.Proposal, error)

	ListByTender(ctx context.Context, tenderID uuid.UUID, limit, offset int) ([]models.Proposal, error)
	ListBySupplier(ctx context.Context, supplierID uuid.UUID, limit, offset int) ([]models.Proposal, error)
}

type Ranker interface {
	RankByLineItem(ctx context.Context, tenderLineItemID uuid.UUID) ([]models.RankingEntry, error)
}

var (
	_ ProposalService = (*proposal.Manager)(nil)
	_ Ranker          = (*proposal.RankingEngine)(nil)
)
