// Package proposaltest содержит хранилище в памяти для тестов движка
// предложений и HTTP-слоя. Транзакции сериализуются одним мьютексом и
// откатываются восстановлением снимка.
package proposaltest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"procurement/internal/proposal"
	"procurement/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type storedItem struct {
	item models.ProposalLineItem
	seq  int
}

type Store struct {
	mu        sync.Mutex
	proposals map[uuid.UUID]models.Proposal
	items     map[uuid.UUID]storedItem
	seq       int

	// HidePrecheck скрывает существующие предложения от проверки внутри
	// транзакции, как если бы параллельный create закоммитился между
	// проверкой и вставкой.
	HidePrecheck bool
	// HideLockedItems отдаёт из LockProposal предложение без позиций, чтобы
	// дубликат строки тендера поймал только уникальный индекс позиций.
	HideLockedItems bool

	catalogMu   sync.RWMutex
	tenders     map[uuid.UUID]models.Tender
	tenderItems map[uuid.UUID]models.TenderLineItem
	suppliers   map[uuid.UUID]string
}

func NewStore() *Store {
	return &Store{
		proposals:   make(map[uuid.UUID]models.Proposal),
		items:       make(map[uuid.UUID]storedItem),
		tenders:     make(map[uuid.UUID]models.Tender),
		tenderItems: make(map[uuid.UUID]models.TenderLineItem),
		suppliers:   make(map[uuid.UUID]string),
	}
}

var (
	_ proposal.Repository             = (*Store)(nil)
	_ proposal.TenderLineItemProvider = (*Store)(nil)
	_ proposal.SupplierDirectory      = (*Store)(nil)
)

// AddTender регистрирует тендер; opening может быть nil.
func (s *Store) AddTender(name string, opening *time.Time) uuid.UUID {
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()
	id := uuid.New()
	s.tenders[id] = models.Tender{ID: id, Name: name, SessionOpeningTime: opening}
	return id
}

func (s *Store) SetSessionOpening(tenderID uuid.UUID, opening *time.Time) {
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()
	t := s.tenders[tenderID]
	t.SessionOpeningTime = opening
	s.tenders[tenderID] = t
}

func (s *Store) AddTenderLineItem(tenderID uuid.UUID, quantity, unit string) uuid.UUID {
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()
	id := uuid.New()
	s.tenderItems[id] = models.TenderLineItem{
		ID:            id,
		TenderID:      tenderID,
		Quantity:      decimal.RequireFromString(quantity),
		UnitOfMeasure: unit,
	}
	return id
}

func (s *Store) SetTenderLineItemQuantity(id uuid.UUID, quantity string) {
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()
	tli := s.tenderItems[id]
	tli.Quantity = decimal.RequireFromString(quantity)
	s.tenderItems[id] = tli
}

func (s *Store) AddSupplier(name string) uuid.UUID {
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()
	id := uuid.New()
	s.suppliers[id] = name
	return id
}

// CountFor возвращает число предложений пары (тендер, поставщик).
func (s *Store) CountFor(tenderID, supplierID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.proposals {
		if p.TenderID == tenderID && p.SupplierID == supplierID {
			n++
		}
	}
	return n
}

// ItemCount возвращает число позиций во всём хранилище.
func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) SessionOpeningTime(_ context.Context, tenderID uuid.UUID) (*time.Time, error) {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	t, ok := s.tenders[tenderID]
	if !ok {
		return nil, proposal.ErrRecordNotFound
	}
	return t.SessionOpeningTime, nil
}

func (s *Store) TenderLineItem(_ context.Context, id uuid.UUID) (*models.TenderLineItem, error) {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	tli, ok := s.tenderItems[id]
	if !ok {
		return nil, proposal.ErrRecordNotFound
	}
	return &tli, nil
}

func (s *Store) SupplierNames(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	names := make(map[uuid.UUID]string, len(ids))
	for _, id := range ids {
		if name, ok := s.suppliers[id]; ok {
			names[id] = name
		}
	}
	return names, nil
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx proposal.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	proposals := make(map[uuid.UUID]models.Proposal, len(s.proposals))
	for k, v := range s.proposals {
		proposals[k] = v
	}
	items := make(map[uuid.UUID]storedItem, len(s.items))
	for k, v := range s.items {
		items[k] = v
	}
	seq := s.seq

	if err := fn(ctx, &tx{s: s}); err != nil {
		s.proposals, s.items, s.seq = proposals, items, seq
		return err
	}
	return nil
}

func (s *Store) GetProposal(_ context.Context, id uuid.UUID) (*models.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assemble(id)
}

func (s *Store) FindProposalID(_ context.Context, tenderID, supplierID uuid.UUID) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(tenderID, supplierID)
}

func (s *Store) ListByTender(_ context.Context, tenderID uuid.UUID, limit, offset int) ([]models.Proposal, error) {
	return s.list(func(p models.Proposal) bool { return p.TenderID == tenderID }, limit, offset)
}

func (s *Store) ListBySupplier(_ context.Context, supplierID uuid.UUID, limit, offset int) ([]models.Proposal, error) {
	return s.list(func(p models.Proposal) bool { return p.SupplierID == supplierID }, limit, offset)
}

func (s *Store) RankingCandidates(_ context.Context, tenderLineItemID uuid.UUID) ([]models.RankingCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]storedItem, 0)
	for _, si := range s.items {
		if si.item.TenderLineItemID == tenderLineItemID {
			stored = append(stored, si)
		}
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].seq < stored[j].seq })

	candidates := make([]models.RankingCandidate, 0, len(stored))
	for _, si := range stored {
		p := s.proposals[si.item.ProposalID]
		candidates = append(candidates, models.RankingCandidate{
			ProposalID:     p.ID,
			SupplierID:     p.SupplierID,
			ProposalStatus: p.Status,
			LineItemID:     si.item.ID,
			UnitPrice:      si.item.UnitPrice,
			LineTotal:      si.item.LineTotal,
			Brand:          si.item.Brand,
			Model:          si.item.Model,
		})
	}
	return candidates, nil
}

func (s *Store) list(match func(models.Proposal) bool, limit, offset int) ([]models.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uuid.UUID
	for id, p := range s.proposals {
		if match(p) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.proposals[ids[i]], s.proposals[ids[j]]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})

	out := []models.Proposal{}
	for i := offset; i < len(ids) && len(out) < limit; i++ {
		p, err := s.assemble(ids[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *Store) find(tenderID, supplierID uuid.UUID) (uuid.UUID, error) {
	for id, p := range s.proposals {
		if p.TenderID == tenderID && p.SupplierID == supplierID {
			return id, nil
		}
	}
	return uuid.Nil, proposal.ErrRecordNotFound
}

func (s *Store) assemble(id uuid.UUID) (*models.Proposal, error) {
	p, ok := s.proposals[id]
	if !ok {
		return nil, proposal.ErrRecordNotFound
	}
	stored := make([]storedItem, 0)
	for _, si := range s.items {
		if si.item.ProposalID == id {
			stored = append(stored, si)
		}
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].seq < stored[j].seq })
	p.Items = make([]models.ProposalLineItem, 0, len(stored))
	for _, si := range stored {
		p.Items = append(p.Items, si.item)
	}
	return &p, nil
}

// tx работает под уже взятым s.mu.
type tx struct {
	s *Store
}

func (t *tx) LockProposal(_ context.Context, id uuid.UUID) (*models.Proposal, error) {
	p, err := t.s.assemble(id)
	if err == nil && t.s.HideLockedItems {
		p.Items = nil
	}
	return p, err
}

func (t *tx) ProposalIDForLineItem(_ context.Context, lineItemID uuid.UUID) (uuid.UUID, error) {
	si, ok := t.s.items[lineItemID]
	if !ok {
		return uuid.Nil, proposal.ErrRecordNotFound
	}
	return si.item.ProposalID, nil
}

func (t *tx) FindProposalID(_ context.Context, tenderID, supplierID uuid.UUID) (uuid.UUID, error) {
	if t.s.HidePrecheck {
		return uuid.Nil, proposal.ErrRecordNotFound
	}
	return t.s.find(tenderID, supplierID)
}

func (t *tx) InsertProposal(_ context.Context, p *models.Proposal) error {
	if _, err := t.s.find(p.TenderID, p.SupplierID); err == nil {
		return fmt.Errorf("insert proposal: %w", proposal.ErrUniqueViolation)
	}
	header := *p
	header.Items = nil
	t.s.proposals[p.ID] = header
	return nil
}

func (t *tx) UpdateProposal(_ context.Context, p *models.Proposal) error {
	current, ok := t.s.proposals[p.ID]
	if !ok {
		return proposal.ErrRecordNotFound
	}
	if current.Version != p.Version {
		return proposal.ErrStaleVersion
	}
	p.Version++
	header := *p
	header.Items = nil
	t.s.proposals[p.ID] = header
	return nil
}

func (t *tx) DeleteProposal(_ context.Context, id uuid.UUID) error {
	if _, ok := t.s.proposals[id]; !ok {
		return proposal.ErrRecordNotFound
	}
	delete(t.s.proposals, id)
	for itemID, si := range t.s.items {
		if si.item.ProposalID == id {
			delete(t.s.items, itemID)
		}
	}
	return nil
}

func (t *tx) InsertLineItem(_ context.Context, item *models.ProposalLineItem) error {
	if _, ok := t.s.proposals[item.ProposalID]; !ok {
		return proposal.ErrRecordNotFound
	}
	for _, si := range t.s.items {
		if si.item.ProposalID == item.ProposalID && si.item.TenderLineItemID == item.TenderLineItemID {
			return fmt.Errorf("insert line item: %w", proposal.ErrUniqueViolation)
		}
	}
	t.s.seq++
	t.s.items[item.ID] = storedItem{item: *item, seq: t.s.seq}
	return nil
}

func (t *tx) UpdateLineItem(_ context.Context, item *models.ProposalLineItem) error {
	si, ok := t.s.items[item.ID]
	if !ok {
		return proposal.ErrRecordNotFound
	}
	si.item = *item
	t.s.items[item.ID] = si
	return nil
}

func (t *tx) DeleteLineItem(_ context.Context, id uuid.UUID) error {
	if _, ok := t.s.items[id]; !ok {
		return proposal.ErrRecordNotFound
	}
	delete(t.s.items, id)
	return nil
}
