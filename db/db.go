package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"procurement/internal/proposal"
	"procurement/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation pq.ErrorCode = "23505"

var proposalColumns = []string{
	"id", "tender_id", "supplier_id", "status",
	"accepts_terms", "no_impediments", "no_minor_employment", "small_business", "reserved_positions",
	"delivery_street", "delivery_city", "delivery_state", "delivery_postal_code",
	"aggregate_total", "aggregate_overridden",
	"validity_days", "delivery_days", "disqualification_reason",
	"submitted_at", "reviewed_at", "version", "created_at", "updated_at",
}

var lineItemColumns = []string{
	"id", "proposal_id", "tender_line_item_id", "unit_price", "quantity", "line_total",
	"brand", "model", "manufacturer", "description", "delivery_days", "warranty_months",
	"created_at", "updated_at",
}

// Storage хранит предложения в PostgreSQL. Таблицы тендеров, их
// позиций и поставщиков принадлежат другим подсистемам и только читаются.
type Storage struct {
	db *sqlx.DB
	sq squirrel.StatementBuilderType
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{
		db: db,
		sq: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var (
	_ proposal.Repository             = (*Storage)(nil)
	_ proposal.TenderLineItemProvider = (*Storage)(nil)
	_ proposal.SupplierDirectory      = (*Storage)(nil)
)

// translate приводит ошибки драйвера к ошибкам хранилища движка.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return proposal.ErrRecordNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", pqErr.Constraint, proposal.ErrUniqueViolation)
	}
	return err
}

func (s *Storage) InTx(ctx context.Context, fn func(ctx context.Context, tx proposal.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(ctx, &storageTx{tx: sqlTx, sq: s.sq}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", translate(err))
	}
	return nil
}

func (s *Storage) GetProposal(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	return loadProposal(ctx, s.db, s.sq, id, false)
}

func (s *Storage) FindProposalID(ctx context.Context, tenderID, supplierID uuid.UUID) (uuid.UUID, error) {
	return findProposalID(ctx, s.db, s.sq, tenderID, supplierID)
}

func (s *Storage) ListByTender(ctx context.Context, tenderID uuid.UUID, limit, offset int) ([]models.Proposal, error) {
	return s.list(ctx, squirrel.Expr("tender_id = ?", tenderID), limit, offset)
}

func (s *Storage) ListBySupplier(ctx context.Context, supplierID uuid.UUID, limit, offset int) ([]models.Proposal, error) {
	return s.list(ctx, squirrel.Expr("supplier_id = ?", supplierID), limit, offset)
}

func (s *Storage) list(ctx context.Context, filter squirrel.Sqlizer, limit, offset int) ([]models.Proposal, error) {
	query, args, err := s.sq.
		Select(proposalColumns...).
		From("proposal").
		Where(filter).
		OrderBy("created_at DESC", "id").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, err
	}

	proposals := []models.Proposal{}
	if err := sqlx.SelectContext(ctx, s.db, &proposals, query, args...); err != nil {
		return nil, err
	}
	if len(proposals) == 0 {
		return proposals, nil
	}

	ids := make([]uuid.UUID, len(proposals))
	for i := range proposals {
		ids[i] = proposals[i].ID
		proposals[i].Items = []models.ProposalLineItem{}
	}
	items, err := selectLineItems(ctx, s.db, s.sq, squirrel.Eq{"proposal_id": ids})
	if err != nil {
		return nil, err
	}
	byProposal := make(map[uuid.UUID]int, len(proposals))
	for i := range proposals {
		byProposal[proposals[i].ID] = i
	}
	for _, item := range items {
		i := byProposal[item.ProposalID]
		proposals[i].Items = append(proposals[i].Items, item)
	}
	return proposals, nil
}

// RankingCandidates читает позиции всех предложений по строке тендера
// без блокировок. Отклонённые и отозванные отсекаются уже в запросе.
func (s *Storage) RankingCandidates(ctx context.Context, tenderLineItemID uuid.UUID) ([]models.RankingCandidate, error) {
	query, args, err := s.sq.
		Select(
			"p.id AS proposal_id", "p.supplier_id", "p.status",
			"i.id AS line_item_id", "i.unit_price", "i.line_total", "i.brand", "i.model",
		).
		From("proposal_item i").
		InnerJoin("proposal p ON p.id = i.proposal_id").
		Where("i.tender_line_item_id = ?", tenderLineItemID).
		Where(squirrel.NotEq{"p.status": []string{
			string(models.StatusDisqualified), string(models.StatusCancelled),
		}}).
		OrderBy("i.created_at", "i.id").
		ToSql()
	if err != nil {
		return nil, err
	}

	candidates := []models.RankingCandidate{}
	if err := sqlx.SelectContext(ctx, s.db, &candidates, query, args...); err != nil {
		return nil, err
	}
	return candidates, nil
}

func (s *Storage) SessionOpeningTime(ctx context.Context, tenderID uuid.UUID) (*time.Time, error) {
	var opening sql.NullTime
	err := s.db.QueryRowxContext(ctx, `SELECT session_opening_time FROM tender WHERE id = $1`, tenderID).Scan(&opening)
	if err != nil {
		return nil, translate(err)
	}
	if !opening.Valid {
		return nil, nil
	}
	return &opening.Time, nil
}

func (s *Storage) TenderLineItem(ctx context.Context, id uuid.UUID) (*models.TenderLineItem, error) {
	tli := &models.TenderLineItem{}
	query := `SELECT id, tender_id, quantity, unit_of_measure FROM tender_line_item WHERE id = $1`
	if err := s.db.GetContext(ctx, tli, query, id); err != nil {
		return nil, translate(err)
	}
	return tli, nil
}

func (s *Storage) SupplierNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	names := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	query, args, err := s.sq.
		Select("id", "name").
		From("supplier").
		Where(squirrel.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return nil, err
	}

	suppliers := []models.Supplier{}
	if err := sqlx.SelectContext(ctx, s.db, &suppliers, query, args...); err != nil {
		return nil, err
	}
	for _, sup := range suppliers {
		names[sup.ID] = sup.Name
	}
	return names, nil
}

// storageTx реализует proposal.Tx поверх одной транзакции.
type storageTx struct {
	tx *sqlx.Tx
	sq squirrel.StatementBuilderType
}

func (t *storageTx) LockProposal(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	return loadProposal(ctx, t.tx, t.sq, id, true)
}

func (t *storageTx) ProposalIDForLineItem(ctx context.Context, lineItemID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := sqlx.GetContext(ctx, t.tx, &id, `SELECT proposal_id FROM proposal_item WHERE id = $1`, lineItemID)
	if err != nil {
		return uuid.Nil, translate(err)
	}
	return id, nil
}

func (t *storageTx) FindProposalID(ctx context.Context, tenderID, supplierID uuid.UUID) (uuid.UUID, error) {
	return findProposalID(ctx, t.tx, t.sq, tenderID, supplierID)
}

func (t *storageTx) InsertProposal(ctx context.Context, p *models.Proposal) error {
	query, args, err := t.sq.
		Insert("proposal").
		Columns(proposalColumns...).
		Values(
			p.ID, p.TenderID, p.SupplierID, p.Status,
			p.AcceptsTerms, p.NoImpediments, p.NoMinorEmployment, p.SmallBusiness, p.ReservedPositions,
			p.Street, p.City, p.State, p.PostalCode,
			p.AggregateTotal.Value, p.AggregateTotal.Overridden,
			p.ValidityDays, p.DeliveryDays, p.DisqualificationReason,
			p.SubmittedAt, p.ReviewedAt, p.Version, p.CreatedAt, p.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert proposal: %w", translate(err))
	}
	return nil
}

// UpdateProposal сохраняет шапку с проверкой версии и увеличивает её.
func (t *storageTx) UpdateProposal(ctx context.Context, p *models.Proposal) error {
	query, args, err := t.sq.
		Update("proposal").
		SetMap(map[string]any{
			"status":                  p.Status,
			"accepts_terms":           p.AcceptsTerms,
			"no_impediments":          p.NoImpediments,
			"no_minor_employment":     p.NoMinorEmployment,
			"small_business":          p.SmallBusiness,
			"reserved_positions":      p.ReservedPositions,
			"delivery_street":         p.Street,
			"delivery_city":           p.City,
			"delivery_state":          p.State,
			"delivery_postal_code":    p.PostalCode,
			"aggregate_total":         p.AggregateTotal.Value,
			"aggregate_overridden":    p.AggregateTotal.Overridden,
			"validity_days":           p.ValidityDays,
			"delivery_days":           p.DeliveryDays,
			"disqualification_reason": p.DisqualificationReason,
			"submitted_at":            p.SubmittedAt,
			"reviewed_at":             p.ReviewedAt,
			"updated_at":              p.UpdatedAt,
			"version":                 squirrel.Expr("version + 1"),
		}).
		Where("id = ?", p.ID).
		Where("version = ?", p.Version).
		ToSql()
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update proposal: %w", translate(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return proposal.ErrStaleVersion
	}
	p.Version++
	return nil
}

// DeleteProposal удаляет предложение; позиции уходят каскадом.
func (t *storageTx) DeleteProposal(ctx context.Context, id uuid.UUID) error {
	return t.deleteByID(ctx, "proposal", id)
}

func (t *storageTx) InsertLineItem(ctx context.Context, item *models.ProposalLineItem) error {
	query, args, err := t.sq.
		Insert("proposal_item").
		Columns(lineItemColumns...).
		Values(
			item.ID, item.ProposalID, item.TenderLineItemID, item.UnitPrice, item.Quantity, item.LineTotal,
			item.Brand, item.Model, item.Manufacturer, item.Description, item.DeliveryDays, item.WarrantyMonths,
			item.CreatedAt, item.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert line item: %w", translate(err))
	}
	return nil
}

func (t *storageTx) UpdateLineItem(ctx context.Context, item *models.ProposalLineItem) error {
	query, args, err := t.sq.
		Update("proposal_item").
		SetMap(map[string]any{
			"unit_price":      item.UnitPrice,
			"quantity":        item.Quantity,
			"line_total":      item.LineTotal,
			"brand":           item.Brand,
			"model":           item.Model,
			"manufacturer":    item.Manufacturer,
			"description":     item.Description,
			"delivery_days":   item.DeliveryDays,
			"warranty_months": item.WarrantyMonths,
			"updated_at":      item.UpdatedAt,
		}).
		Where("id = ?", item.ID).
		ToSql()
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update line item: %w", translate(err))
	}
	return requireRow(res)
}

func (t *storageTx) DeleteLineItem(ctx context.Context, id uuid.UUID) error {
	return t.deleteByID(ctx, "proposal_item", id)
}

func (t *storageTx) deleteByID(ctx context.Context, table string, id uuid.UUID) error {
	query, args, err := t.sq.Delete(table).Where("id = ?", id).ToSql()
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return proposal.ErrRecordNotFound
	}
	return nil
}

func findProposalID(ctx context.Context, q sqlx.QueryerContext, sq squirrel.StatementBuilderType, tenderID, supplierID uuid.UUID) (uuid.UUID, error) {
	query, args, err := sq.
		Select("id").
		From("proposal").
		Where("tender_id = ?", tenderID).
		Where("supplier_id = ?", supplierID).
		ToSql()
	if err != nil {
		return uuid.Nil, err
	}
	var id uuid.UUID
	if err := sqlx.GetContext(ctx, q, &id, query, args...); err != nil {
		return uuid.Nil, translate(err)
	}
	return id, nil
}

func loadProposal(ctx context.Context, q sqlx.QueryerContext, sq squirrel.StatementBuilderType, id uuid.UUID, forUpdate bool) (*models.Proposal, error) {
	b := sq.Select(proposalColumns...).From("proposal").Where("id = ?", id)
	if forUpdate {
		b = b.Suffix("FOR UPDATE")
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	p := &models.Proposal{}
	if err := sqlx.GetContext(ctx, q, p, query, args...); err != nil {
		return nil, translate(err)
	}
	items, err := selectLineItems(ctx, q, sq, squirrel.Expr("proposal_id = ?", id))
	if err != nil {
		return nil, err
	}
	p.Items = items
	return p, nil
}

func selectLineItems(ctx context.Context, q sqlx.QueryerContext, sq squirrel.StatementBuilderType, filter squirrel.Sqlizer) ([]models.ProposalLineItem, error) {
	query, args, err := sq.
		Select(lineItemColumns...).
		From("proposal_item").
		Where(filter).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, err
	}
	items := []models.ProposalLineItem{}
	if err := sqlx.SelectContext(ctx, q, &items, query, args...); err != nil {
		return nil, fmt.Errorf("load line items: %w", err)
	}
	return items, nil
}
