package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"procurement/internal/proposal"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Problem описывает ответ об ошибке в формате RFC 7807 с полями предметной области.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"traceId,omitempty"`

	Kind               proposal.Kind `json:"kind,omitempty"`
	ProposalID         *uuid.UUID    `json:"proposalId,omitempty"`
	ExistingProposalID *uuid.UUID    `json:"existingProposalId,omitempty"`
	TenderID           *uuid.UUID    `json:"tenderId,omitempty"`
	ProposalStatus     string        `json:"proposalStatus,omitempty"`
	SessionOpeningTime *time.Time    `json:"sessionOpeningTime,omitempty"`
}

var kindStatus = map[proposal.Kind]int{
	proposal.KindNotFound:           http.StatusNotFound,
	proposal.KindConflict:           http.StatusConflict,
	proposal.KindSessionClosed:      http.StatusLocked,
	proposal.KindInvalidTransition:  http.StatusConflict,
	proposal.KindOverrideActive:     http.StatusConflict,
	proposal.KindForbidden:          http.StatusForbidden,
	proposal.KindMissingDeclaration: http.StatusUnprocessableEntity,
	proposal.KindEmptyProposal:      http.StatusUnprocessableEntity,
	proposal.KindMissingReason:      http.StatusUnprocessableEntity,
	proposal.KindInvalid:            http.StatusBadRequest,
}

// StatusFor возвращает HTTP-статус для вида ошибки движка.
func StatusFor(kind proposal.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeProblem(w http.ResponseWriter, r *http.Request, p Problem) {
	p.Type = fmt.Sprintf("https://procurement.local/problems/%d", p.Status)
	if p.Title == "" {
		p.Title = http.StatusText(p.Status)
	}
	p.Instance = r.URL.Path
	p.TraceID = middleware.GetReqID(r.Context())

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func badRequest(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, r, Problem{Status: http.StatusBadRequest, Detail: detail})
}

// writeError переводит ошибку сервиса в ответ. Неизвестные ошибки
// логируются, а клиенту уходит только 500 без подробностей.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var e *proposal.Error
	if !errors.As(err, &e) {
		h.log.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		writeProblem(w, r, Problem{Status: http.StatusInternalServerError, Detail: "internal error"})
		return
	}

	p := Problem{
		Status:             StatusFor(e.Kind),
		Title:              string(e.Kind),
		Detail:             e.Message,
		Kind:               e.Kind,
		ProposalID:         optionalID(e.ProposalID),
		ExistingProposalID: optionalID(e.ConflictingID),
		TenderID:           optionalID(e.TenderID),
		ProposalStatus:     string(e.Status),
		SessionOpeningTime: e.OpeningTime,
	}
	writeProblem(w, r, p)
}

func optionalID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
