package handlers

import (
	"context"
	"net/http"

	"procurement/internal/proposal"
	"procurement/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type lineItemRequest struct {
	TenderLineItemID string          `json:"tenderLineItemId" validate:"required,uuid"`
	UnitPrice        decimal.Decimal `json:"unitPrice"`
	Brand            string          `json:"brand" validate:"max=100"`
	Model            string          `json:"model" validate:"max=100"`
	Manufacturer     string          `json:"manufacturer" validate:"max=100"`
	Description      string          `json:"description" validate:"max=500"`
	DeliveryDays     *int            `json:"deliveryDays" validate:"omitempty,gte=0"`
	WarrantyMonths   *int            `json:"warrantyMonths" validate:"omitempty,gte=0"`
}

func (l lineItemRequest) input() proposal.LineItemInput {
	return proposal.LineItemInput{
		TenderLineItemID: uuid.MustParse(l.TenderLineItemID),
		UnitPrice:        l.UnitPrice,
		Brand:            l.Brand,
		Model:            l.Model,
		Manufacturer:     l.Manufacturer,
		Description:      l.Description,
		DeliveryDays:     l.DeliveryDays,
		WarrantyMonths:   l.WarrantyMonths,
	}
}

type addressRequest struct {
	Street     string `json:"street" validate:"max=255"`
	City       string `json:"city" validate:"max=100"`
	State      string `json:"state" validate:"max=100"`
	PostalCode string `json:"postalCode" validate:"max=20"`
}

func (a addressRequest) model() models.DeliveryAddress {
	return models.DeliveryAddress{Street: a.Street, City: a.City, State: a.State, PostalCode: a.PostalCode}
}

type createProposalRequest struct {
	TenderID        string              `json:"tenderId" validate:"required,uuid"`
	SupplierID      string              `json:"supplierId" validate:"required,uuid"`
	Declarations    models.Declarations `json:"declarations"`
	DeliveryAddress addressRequest      `json:"deliveryAddress"`
	ValidityDays    int                 `json:"proposalValidityDays" validate:"gte=0,lte=365"`
	DeliveryDays    *int                `json:"deliveryDays" validate:"omitempty,gte=0"`
	Items           []lineItemRequest   `json:"items" validate:"max=500,dive"`
}

type editProposalRequest struct {
	Declarations    *models.Declarations `json:"declarations"`
	DeliveryAddress *addressRequest      `json:"deliveryAddress"`
	ValidityDays    *int                 `json:"proposalValidityDays" validate:"omitempty,gte=1,lte=365"`
	DeliveryDays    *int                 `json:"deliveryDays" validate:"omitempty,gte=0"`
}

type disqualifyRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

type overrideTotalRequest struct {
	Value *decimal.Decimal `json:"value" validate:"required"`
}

// CreateProposalHandler обрабатывает POST /api/proposals/new
func (h *Handler) CreateProposalHandler(w http.ResponseWriter, r *http.Request) {
	var req createProposalRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	in := proposal.CreateInput{
		TenderID:     uuid.MustParse(req.TenderID),
		SupplierID:   uuid.MustParse(req.SupplierID),
		Declarations: req.Declarations,
		Delivery:     req.DeliveryAddress.model(),
		ValidityDays: req.ValidityDays,
		DeliveryDays: req.DeliveryDays,
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, item.input())
	}

	p, err := h.proposals.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) GetProposalHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "proposalId")
	if !ok {
		return
	}
	p, err := h.proposals.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// EditProposalHandler меняет шапку предложения (декларации, доставка, срок действия)
func (h *Handler) EditProposalHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "proposalId")
	if !ok {
		return
	}
	var req editProposalRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	in := proposal.UpdateInput{
		Declarations: req.Declarations,
		ValidityDays: req.ValidityDays,
		DeliveryDays: req.DeliveryDays,
	}
	if req.DeliveryAddress != nil {
		addr := req.DeliveryAddress.model()
		in.Delivery = &addr
	}

	p, err := h.proposals.Update(r.Context(), id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// RemoveProposalHandler удаляет черновик; supplierId подтверждает владельца.
func (h *Handler) RemoveProposalHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "proposalId")
	if !ok {
		return
	}
	supplierID, err := uuid.Parse(r.URL.Query().Get("supplierId"))
	if err != nil {
		badRequest(w, r, "Missing or invalid supplierId parameter")
		return
	}

	if err := h.proposals.Remove(r.Context(), id, supplierID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SubmitProposalHandler(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.proposals.Submit)
}

func (h *Handler) ReceiveProposalHandler(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.proposals.MarkReceived)
}

func (h *Handler) StartReviewHandler(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.proposals.StartReview)
}

func (h *Handler) QualifyProposalHandler(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.proposals.Qualify)
}

func (h *Handler) AwardProposalHandler(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.proposals.Award)
}

func (h *Handler) CancelProposalHandler(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.proposals.Cancel)
}

func (h *Handler) DisqualifyProposalHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "proposalId")
	if !ok {
		return
	}
	var req disqualifyRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	p, err := h.proposals.Disqualify(r.Context(), id, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// OverrideTotalHandler выставляет сумму предложения вручную
func (h *Handler) OverrideTotalHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "proposalId")
	if !ok {
		return
	}
	var req overrideTotalRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	p, err := h.proposals.OverrideAggregateTotal(r.Context(), id, *req.Value)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uuid.UUID) (*models.Proposal, error)) {
	id, ok := pathID(w, r, "proposalId")
	if !ok {
		return
	}
	p, err := fn(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) GetTenderProposalsHandler(w http.ResponseWriter, r *http.Request) {
	h.listProposals(w, r, "tenderId", h.proposals.ListByTender)
}

func (h *Handler) GetSupplierProposalsHandler(w http.ResponseWriter, r *http.Request) {
	h.listProposals(w, r, "supplierId", h.proposals.ListBySupplier)
}

func (h *Handler) listProposals(w http.ResponseWriter, r *http.Request, param string,
	list func(ctx context.Context, id uuid.UUID, limit, offset int) ([]models.Proposal, error)) {
	params := parsePaginationParams(r)

	id, ok := pathID(w, r, param)
	if !ok {
		return
	}
	proposals, err := list(r.Context(), id, params.Limit, params.Offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proposals)
}

// GetRankingHandler возвращает рейтинг поставщиков по позиции тендера
func (h *Handler) GetRankingHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "tenderLineItemId")
	if !ok {
		return
	}
	ranking, err := h.ranking.RankByLineItem(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ranking)
}
