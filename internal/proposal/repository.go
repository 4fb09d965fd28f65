package proposal

import (
	"context"
	"time"

	"procurement/models"

	"github.com/google/uuid"
)

// TenderLineItemProvider даёт доступ к данным тендера, которыми владеет
// подсистема управления тендерами.
type TenderLineItemProvider interface {
	SessionOpeningTime(ctx context.Context, tenderID uuid.UUID) (*time.Time, error)
	TenderLineItem(ctx context.Context, tenderLineItemID uuid.UUID) (*models.TenderLineItem, error)
}

// SupplierDirectory отдаёт отображаемые имена поставщиков.
type SupplierDirectory interface {
	SupplierNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

// RankingSource отдаёт выборку позиций для ранжирования, без блокировок.
type RankingSource interface {
	RankingCandidates(ctx context.Context, tenderLineItemID uuid.UUID) ([]models.RankingCandidate, error)
}

// Repository хранит агрегат «предложение + позиции».
// Чтения вне транзакции допускают устаревшие данные.
type Repository interface {
	RankingSource

	// InTx выполняет fn в одной транзакции: ошибка fn откатывает всё.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetProposal(ctx context.Context, id uuid.UUID) (*models.Proposal, error)
	FindProposalID(ctx context.Context, tenderID, supplierID uuid.UUID) (uuid.UUID, error)
	ListByTender(ctx context.Context, tenderID uuid.UUID, limit, offset int) ([]models.Proposal, error)
	ListBySupplier(ctx context.Context, supplierID uuid.UUID, limit, offset int) ([]models.Proposal, error)
}

// Tx описывает операции внутри транзакции. LockProposal блокирует строку предложения
// до конца транзакции, так что изменения одного предложения идут по очереди.
type Tx interface {
	LockProposal(ctx context.Context, id uuid.UUID) (*models.Proposal, error)
	ProposalIDForLineItem(ctx context.Context, lineItemID uuid.UUID) (uuid.UUID, error)
	FindProposalID(ctx context.Context, tenderID, supplierID uuid.UUID) (uuid.UUID, error)

	InsertProposal(ctx context.Context, p *models.Proposal) error
	UpdateProposal(ctx context.Context, p *models.Proposal) error
	DeleteProposal(ctx context.Context, id uuid.UUID) error

	InsertLineItem(ctx context.Context, item *models.ProposalLineItem) error
	UpdateLineItem(ctx context.Context, item *models.ProposalLineItem) error
	DeleteLineItem(ctx context.Context, id uuid.UUID) error
}
