package proposal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"procurement/internal/clock"
	"procurement/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItemInput описывает позицию, которую поставщик добавляет в предложение.
type LineItemInput struct {
	TenderLineItemID uuid.UUID
	UnitPrice        decimal.Decimal
	Brand            string
	Model            string
	Manufacturer     string
	Description      string
	DeliveryDays     *int
	WarrantyMonths   *int
}

type CreateInput struct {
	TenderID     uuid.UUID
	SupplierID   uuid.UUID
	Declarations models.Declarations
	Delivery     models.DeliveryAddress
	ValidityDays int // 0 означает значение по умолчанию
	DeliveryDays *int
	Items        []LineItemInput
}

// UpdateInput задаёт частичное изменение шапки предложения; nil-поля не трогаются.
type UpdateInput struct {
	Declarations *models.Declarations
	Delivery     *models.DeliveryAddress
	ValidityDays *int
	DeliveryDays *int
}

// UpdateLineItemInput задаёт частичное изменение позиции. DiscardOverride
// подтверждает, что ручная сумма предложения будет заменена вычисленной.
type UpdateLineItemInput struct {
	UnitPrice       *decimal.Decimal
	Brand           *string
	Model           *string
	Manufacturer    *string
	Description     *string
	DeliveryDays    *int
	WarrantyMonths  *int
	DiscardOverride bool
}

// Manager проводит предложения по жизненному циклу. Каждая изменяющая
// операция выполняется в одной транзакции репозитория.
type Manager struct {
	repo    Repository
	tenders TenderLineItemProvider
	gate    *SessionGate
	clock   clock.Clock
	log     *slog.Logger
	newID   func() uuid.UUID
}

func NewManager(repo Repository, tenders TenderLineItemProvider, clk clock.Clock, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		repo:    repo,
		tenders: tenders,
		gate:    NewSessionGate(tenders, clk),
		clock:   clk,
		log:     logger,
		newID:   uuid.New,
	}
}

func (m *Manager) Create(ctx context.Context, in CreateInput) (*models.Proposal, error) {
	if err := m.gate.AssertMutable(ctx, in.TenderID); err != nil {
		return nil, err
	}
	if missing := in.Declarations.Missing(); len(missing) > 0 {
		return nil, missingDeclarations(uuid.Nil, missing)
	}
	if in.ValidityDays < 0 {
		return nil, invalid("proposalValidityDays must be positive")
	}
	if in.ValidityDays == 0 {
		in.ValidityDays = models.DefaultValidityDays
	}

	now := m.clock.Now()
	p := &models.Proposal{
		ID:              m.newID(),
		TenderID:        in.TenderID,
		SupplierID:      in.SupplierID,
		Status:          models.StatusDraft,
		Declarations:    in.Declarations,
		DeliveryAddress: in.Delivery,
		ValidityDays:    in.ValidityDays,
		DeliveryDays:    in.DeliveryDays,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
		Items:           []models.ProposalLineItem{},
	}
	for _, li := range in.Items {
		if p.HasTenderLineItem(li.TenderLineItemID) {
			return nil, invalid("tender line item %s is listed more than once", li.TenderLineItemID)
		}
		item, err := m.newLineItem(ctx, p, li, now)
		if err != nil {
			return nil, err
		}
		p.Items = append(p.Items, *item)
	}
	Recompute(p)

	err := m.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		// Быстрая проверка; гарантию даёт уникальный индекс хранилища.
		existing, err := tx.FindProposalID(ctx, in.TenderID, in.SupplierID)
		switch {
		case err == nil:
			return conflict(in.TenderID, existing)
		case !errors.Is(err, ErrRecordNotFound):
			return fmt.Errorf("check existing proposal: %w", err)
		}

		if err := tx.InsertProposal(ctx, p); err != nil {
			return err
		}
		for i := range p.Items {
			if err := tx.InsertLineItem(ctx, &p.Items[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ErrUniqueViolation) {
		return nil, m.conflictAfterRace(ctx, in.TenderID, in.SupplierID, err)
	}
	if err != nil {
		return nil, err
	}

	m.log.InfoContext(ctx, "proposal created",
		"proposal_id", p.ID, "tender_id", p.TenderID, "supplier_id", p.SupplierID,
		"items", len(p.Items), "aggregate_total", p.AggregateTotal.Value.String())
	return p, nil
}

// conflictAfterRace вызывается, когда параллельный запрос успел вставить
// предложение для той же пары (тендер, поставщик) между проверкой и вставкой.
func (m *Manager) conflictAfterRace(ctx context.Context, tenderID, supplierID uuid.UUID, cause error) error {
	existing, err := m.repo.FindProposalID(ctx, tenderID, supplierID)
	if err != nil {
		return &Error{Kind: KindConflict, Message: "supplier already has a proposal for this tender", TenderID: tenderID, Err: cause}
	}
	m.log.WarnContext(ctx, "concurrent proposal creation rejected by storage",
		"tender_id", tenderID, "supplier_id", supplierID, "existing_proposal_id", existing)
	return conflict(tenderID, existing)
}

func (m *Manager) Submit(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	var out *models.Proposal
	err := m.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		p, err := m.lockMutable(ctx, tx, id)
		if err != nil {
			return err
		}
		next, err := Next(p.Status, ActionSubmit)
		if err != nil {
			return withProposal(err, p.ID)
		}
		if len(p.Items) == 0 {
			return &Error{Kind: KindEmptyProposal, Message: "proposal has no line items", ProposalID: p.ID, Status: p.Status}
		}
		if missing := p.Declarations.Missing(); len(missing) > 0 {
			return missingDeclarations(p.ID, missing)
		}

		now := m.clock.Now()
		p.Status = next
		p.SubmittedAt = &now
		if err := m.save(ctx, tx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.log.InfoContext(ctx, "proposal submitted", "proposal_id", out.ID, "tender_id", out.TenderID)
	return out, nil
}

func (m *Manager) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*models.Proposal, error) {
	if in.ValidityDays != nil && *in.ValidityDays <= 0 {
		return nil, invalid("proposalValidityDays must be positive")
	}
	return m.edit(ctx, byProposal(id), func(_ context.Context, _ Tx, p *models.Proposal) error {
		if in.Declarations != nil {
			// В черновике проверку делает Submit, после подачи отзывать декларации нельзя.
			if missing := in.Declarations.Missing(); len(missing) > 0 && p.Status != models.StatusDraft {
				e := missingDeclarations(p.ID, missing)
				e.Status = p.Status
				return e
			}
			p.Declarations = *in.Declarations
		}
		if in.Delivery != nil {
			p.DeliveryAddress = *in.Delivery
		}
		if in.ValidityDays != nil {
			p.ValidityDays = *in.ValidityDays
		}
		if in.DeliveryDays != nil {
			p.DeliveryDays = in.DeliveryDays
		}
		return nil
	})
}

func (m *Manager) AddLineItem(ctx context.Context, proposalID uuid.UUID, in LineItemInput, discardOverride bool) (*models.ProposalLineItem, error) {
	var added models.ProposalLineItem
	_, err := m.edit(ctx, byProposal(proposalID), func(ctx context.Context, tx Tx, p *models.Proposal) error {
		if err := m.checkOverride(p, discardOverride); err != nil {
			return err
		}
		if p.HasTenderLineItem(in.TenderLineItemID) {
			return invalid("proposal already has a line for tender line item %s", in.TenderLineItemID)
		}
		item, err := m.newLineItem(ctx, p, in, m.clock.Now())
		if err != nil {
			return err
		}
		p.Items = append(p.Items, *item)
		m.recompute(ctx, p)
		if err := tx.InsertLineItem(ctx, item); err != nil {
			if errors.Is(err, ErrUniqueViolation) {
				return invalid("proposal already has a line for tender line item %s", in.TenderLineItemID)
			}
			return err
		}
		added = *item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &added, nil
}

func (m *Manager) UpdateLineItem(ctx context.Context, itemID uuid.UUID, in UpdateLineItemInput) (*models.ProposalLineItem, error) {
	if in.UnitPrice != nil {
		if err := ValidateUnitPrice(*in.UnitPrice); err != nil {
			return nil, err
		}
	}
	var updated models.ProposalLineItem
	_, err := m.edit(ctx, byLineItem(itemID), func(ctx context.Context, tx Tx, p *models.Proposal) error {
		if err := m.checkOverride(p, in.DiscardOverride); err != nil {
			return err
		}
		item, ok := p.Item(itemID)
		if !ok {
			return notFound("line item", itemID)
		}
		tli, err := m.tenders.TenderLineItem(ctx, item.TenderLineItemID)
		if err != nil {
			return translateLookup(err, "tender line item", item.TenderLineItemID)
		}
		item.Quantity = tli.Quantity
		if in.UnitPrice != nil {
			item.UnitPrice = *in.UnitPrice
		}
		if in.Brand != nil {
			item.Brand = *in.Brand
		}
		if in.Model != nil {
			item.Model = *in.Model
		}
		if in.Manufacturer != nil {
			item.Manufacturer = *in.Manufacturer
		}
		if in.Description != nil {
			item.Description = *in.Description
		}
		if in.DeliveryDays != nil {
			item.DeliveryDays = in.DeliveryDays
		}
		if in.WarrantyMonths != nil {
			item.WarrantyMonths = in.WarrantyMonths
		}
		item.UpdatedAt = m.clock.Now()
		m.recompute(ctx, p)
		if err := tx.UpdateLineItem(ctx, item); err != nil {
			return err
		}
		updated = *item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (m *Manager) RemoveLineItem(ctx context.Context, itemID uuid.UUID, discardOverride bool) (*models.Proposal, error) {
	return m.edit(ctx, byLineItem(itemID), func(ctx context.Context, tx Tx, p *models.Proposal) error {
		if err := m.checkOverride(p, discardOverride); err != nil {
			return err
		}
		if _, ok := p.Item(itemID); !ok {
			return notFound("line item", itemID)
		}
		if len(p.Items) == 1 && p.Status != models.StatusDraft {
			return &Error{Kind: KindEmptyProposal, Message: "cannot remove the last line item of a submitted proposal", ProposalID: p.ID, Status: p.Status}
		}
		kept := p.Items[:0]
		for _, item := range p.Items {
			if item.ID != itemID {
				kept = append(kept, item)
			}
		}
		p.Items = kept
		m.recompute(ctx, p)
		return tx.DeleteLineItem(ctx, itemID)
	})
}

// MarkReceived отмечает получение отправленного предложения.
func (m *Manager) MarkReceived(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	return m.transition(ctx, id, ActionReceive, nil)
}

func (m *Manager) StartReview(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	return m.transition(ctx, id, ActionStartReview, m.stampReview)
}

func (m *Manager) Qualify(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	return m.transition(ctx, id, ActionQualify, m.stampReview)
}

func (m *Manager) Disqualify(ctx context.Context, id uuid.UUID, reason string) (*models.Proposal, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &Error{Kind: KindMissingReason, Message: "disqualification requires a reason", ProposalID: id}
	}
	return m.transition(ctx, id, ActionDisqualify, func(p *models.Proposal) {
		m.stampReview(p)
		p.DisqualificationReason = reason
	})
}

// Award допускается только для допущенного (Qualified) предложения.
func (m *Manager) Award(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	return m.transition(ctx, id, ActionAward, nil)
}

func (m *Manager) Cancel(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	return m.transition(ctx, id, ActionCancel, nil)
}

// Remove физически удаляет черновик вместе с позициями. Удалить может
// только поставщик-владелец и только до открытия сессии.
func (m *Manager) Remove(ctx context.Context, id, supplierID uuid.UUID) error {
	err := m.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		p, err := tx.LockProposal(ctx, id)
		if err != nil {
			return translateLookup(err, "proposal", id)
		}
		if err := m.gate.AssertMutable(ctx, p.TenderID); err != nil {
			return withProposal(err, p.ID)
		}
		if p.SupplierID != supplierID {
			return &Error{Kind: KindForbidden, Message: fmt.Sprintf("supplier %s does not own this proposal", supplierID), ProposalID: p.ID, Status: p.Status}
		}
		if p.Status != models.StatusDraft {
			return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf("only draft proposals can be removed (status %s)", p.Status), ProposalID: p.ID, Status: p.Status}
		}
		return tx.DeleteProposal(ctx, p.ID)
	})
	if err != nil {
		return err
	}
	m.log.InfoContext(ctx, "proposal removed", "proposal_id", id, "supplier_id", supplierID)
	return nil
}

// OverrideAggregateTotal выставляет сумму предложения вручную (сверка).
// Последующие изменения позиций потребуют явного сброса ручного значения.
func (m *Manager) OverrideAggregateTotal(ctx context.Context, id uuid.UUID, value decimal.Decimal) (*models.Proposal, error) {
	if value.IsNegative() {
		return nil, invalid("aggregate total cannot be negative")
	}
	var out *models.Proposal
	err := m.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		p, err := tx.LockProposal(ctx, id)
		if err != nil {
			return translateLookup(err, "proposal", id)
		}
		computed := SumLineTotals(p.Items)
		p.AggregateTotal = models.Overridden(value)
		if err := m.save(ctx, tx, p); err != nil {
			return err
		}
		m.log.InfoContext(ctx, "aggregate total overridden",
			"proposal_id", p.ID, "value", value.String(), "computed", computed.String())
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	p, err := m.repo.GetProposal(ctx, id)
	if err != nil {
		return nil, translateLookup(err, "proposal", id)
	}
	return p, nil
}

func (m *Manager) ListByTender(ctx context.Context, tenderID uuid.UUID, limit, offset int) ([]models.Proposal, error) {
	proposals, err := m.repo.ListByTender(ctx, tenderID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list proposals for tender %s: %w", tenderID, err)
	}
	return proposals, nil
}

func (m *Manager) ListBySupplier(ctx context.Context, supplierID uuid.UUID, limit, offset int) ([]models.Proposal, error) {
	proposals, err := m.repo.ListBySupplier(ctx, supplierID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list proposals for supplier %s: %w", supplierID, err)
	}
	return proposals, nil
}

type resolveFunc func(ctx context.Context, tx Tx) (uuid.UUID, error)

func byProposal(id uuid.UUID) resolveFunc {
	return func(context.Context, Tx) (uuid.UUID, error) { return id, nil }
}

func byLineItem(itemID uuid.UUID) resolveFunc {
	return func(ctx context.Context, tx Tx) (uuid.UUID, error) {
		id, err := tx.ProposalIDForLineItem(ctx, itemID)
		if err != nil {
			return uuid.Nil, translateLookup(err, "line item", itemID)
		}
		return id, nil
	}
}

// edit реализует общий путь изменений со стороны поставщика: блокировка, окно
// сессии, проверка статуса, изменение и сохранение шапки.
func (m *Manager) edit(ctx context.Context, resolve resolveFunc, fn func(ctx context.Context, tx Tx, p *models.Proposal) error) (*models.Proposal, error) {
	var out *models.Proposal
	err := m.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		id, err := resolve(ctx, tx)
		if err != nil {
			return err
		}
		p, err := m.lockMutable(ctx, tx, id)
		if err != nil {
			return err
		}
		if !p.Status.Editable() {
			return &Error{Kind: KindForbidden, Message: fmt.Sprintf("proposal in status %s cannot be edited", p.Status), ProposalID: p.ID, Status: p.Status}
		}
		if err := fn(ctx, tx, p); err != nil {
			return withProposal(err, p.ID)
		}
		if err := m.save(ctx, tx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// lockMutable блокирует предложение и проверяет, что сессия ещё не открыта.
func (m *Manager) lockMutable(ctx context.Context, tx Tx, id uuid.UUID) (*models.Proposal, error) {
	p, err := tx.LockProposal(ctx, id)
	if err != nil {
		return nil, translateLookup(err, "proposal", id)
	}
	if err := m.gate.AssertMutable(ctx, p.TenderID); err != nil {
		return nil, withProposal(err, p.ID)
	}
	return p, nil
}

// transition выполняет административную смену статуса, окно сессии не проверяется.
func (m *Manager) transition(ctx context.Context, id uuid.UUID, action Action, apply func(p *models.Proposal)) (*models.Proposal, error) {
	var out *models.Proposal
	err := m.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		p, err := tx.LockProposal(ctx, id)
		if err != nil {
			return translateLookup(err, "proposal", id)
		}
		next, err := Next(p.Status, action)
		if err != nil {
			return withProposal(err, p.ID)
		}
		from := p.Status
		p.Status = next
		if apply != nil {
			apply(p)
		}
		if err := m.save(ctx, tx, p); err != nil {
			return err
		}
		m.log.InfoContext(ctx, "proposal status changed",
			"proposal_id", p.ID, "action", string(action), "from", string(from), "to", string(next))
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Manager) save(ctx context.Context, tx Tx, p *models.Proposal) error {
	p.UpdatedAt = m.clock.Now()
	if err := tx.UpdateProposal(ctx, p); err != nil {
		return fmt.Errorf("save proposal %s: %w", p.ID, err)
	}
	return nil
}

func (m *Manager) stampReview(p *models.Proposal) {
	now := m.clock.Now()
	p.ReviewedAt = &now
}

func (m *Manager) checkOverride(p *models.Proposal, discard bool) error {
	if p.AggregateTotal.Overridden && !discard {
		return &Error{
			Kind:       KindOverrideActive,
			Message:    fmt.Sprintf("aggregate total was set manually to %s; repeat with discardOverride to recompute it", p.AggregateTotal.Value),
			ProposalID: p.ID,
			Status:     p.Status,
		}
	}
	return nil
}

// recompute пересчитывает сумму и пишет в лог, если при этом теряется
// ручное значение.
func (m *Manager) recompute(ctx context.Context, p *models.Proposal) {
	previous := p.AggregateTotal
	Recompute(p)
	if previous.Overridden {
		m.log.WarnContext(ctx, "manual aggregate total discarded",
			"proposal_id", p.ID, "override", previous.Value.String(), "computed", p.AggregateTotal.Value.String())
	}
}

func (m *Manager) newLineItem(ctx context.Context, p *models.Proposal, in LineItemInput, now time.Time) (*models.ProposalLineItem, error) {
	if err := ValidateUnitPrice(in.UnitPrice); err != nil {
		return nil, err
	}
	tli, err := m.tenders.TenderLineItem(ctx, in.TenderLineItemID)
	if err != nil {
		return nil, translateLookup(err, "tender line item", in.TenderLineItemID)
	}
	if tli.TenderID != p.TenderID {
		return nil, &Error{
			Kind:     KindNotFound,
			Message:  fmt.Sprintf("tender line item %s does not belong to tender %s", tli.ID, p.TenderID),
			TenderID: p.TenderID,
		}
	}
	return &models.ProposalLineItem{
		ID:               m.newID(),
		ProposalID:       p.ID,
		TenderLineItemID: tli.ID,
		UnitPrice:        in.UnitPrice,
		Quantity:         tli.Quantity,
		LineTotal:        LineTotal(in.UnitPrice, tli.Quantity),
		Brand:            in.Brand,
		Model:            in.Model,
		Manufacturer:     in.Manufacturer,
		Description:      in.Description,
		DeliveryDays:     in.DeliveryDays,
		WarrantyMonths:   in.WarrantyMonths,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

func conflict(tenderID, existing uuid.UUID) *Error {
	return &Error{
		Kind:          KindConflict,
		Message:       "supplier already has a proposal for this tender",
		TenderID:      tenderID,
		ConflictingID: existing,
	}
}

func missingDeclarations(id uuid.UUID, missing []string) *Error {
	return &Error{
		Kind:       KindMissingDeclaration,
		Message:    "mandatory declarations not accepted: " + strings.Join(missing, ", "),
		ProposalID: id,
	}
}

// withProposal дописывает идентификатор предложения в ошибку движка.
func withProposal(err error, id uuid.UUID) error {
	var e *Error
	if errors.As(err, &e) && e.ProposalID == uuid.Nil {
		e.ProposalID = id
	}
	return err
}
