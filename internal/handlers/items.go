package handlers

import (
	"net/http"

	"procurement/internal/proposal"

	"github.com/shopspring/decimal"
)

type updateLineItemRequest struct {
	UnitPrice       *decimal.Decimal `json:"unitPrice"`
	Brand           *string          `json:"brand" validate:"omitempty,max=100"`
	Model           *string          `json:"model" validate:"omitempty,max=100"`
	Manufacturer    *string          `json:"manufacturer" validate:"omitempty,max=100"`
	Description     *string          `json:"description" validate:"omitempty,max=500"`
	DeliveryDays    *int             `json:"deliveryDays" validate:"omitempty,gte=0"`
	WarrantyMonths  *int             `json:"warrantyMonths" validate:"omitempty,gte=0"`
	DiscardOverride bool             `json:"discardOverride"`
}

// AddLineItemHandler добавляет позицию в предложение
func (h *Handler) AddLineItemHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "proposalId")
	if !ok {
		return
	}
	discard, ok := queryBool(w, r, "discardOverride")
	if !ok {
		return
	}
	var req lineItemRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	item, err := h.proposals.AddLineItem(r.Context(), id, req.input(), discard)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) UpdateLineItemHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "itemId")
	if !ok {
		return
	}
	discard, ok := queryBool(w, r, "discardOverride")
	if !ok {
		return
	}
	var req updateLineItemRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	item, err := h.proposals.UpdateLineItem(r.Context(), id, proposal.UpdateLineItemInput{
		UnitPrice:       req.UnitPrice,
		Brand:           req.Brand,
		Model:           req.Model,
		Manufacturer:    req.Manufacturer,
		Description:     req.Description,
		DeliveryDays:    req.DeliveryDays,
		WarrantyMonths:  req.WarrantyMonths,
		DiscardOverride: req.DiscardOverride || discard,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// RemoveLineItemHandler удаляет позицию и возвращает обновлённое предложение
func (h *Handler) RemoveLineItemHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "itemId")
	if !ok {
		return
	}
	discard, ok := queryBool(w, r, "discardOverride")
	if !ok {
		return
	}

	p, err := h.proposals.RemoveLineItem(r.Context(), id, discard)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
