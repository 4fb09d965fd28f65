package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

// Handler связывает HTTP-маршруты с движком предложений
type Handler struct {
	proposals ProposalService
	ranking   Ranker
	validate  *validator.Validate
	log       *slog.Logger
}

// NewHandler создает новый Handler
func NewHandler(proposals ProposalService, ranking Ranker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		proposals: proposals,
		ranking:   ranking,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		log:       logger,
	}
}

// Routes регистрирует маршруты относительно префикса /api.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/ping", h.PingHandler)

	r.Post("/proposals/new", h.CreateProposalHandler)
	r.Route("/proposals/{proposalId}", func(r chi.Router) {
		r.Get("/", h.GetProposalHandler)
		r.Delete("/", h.RemoveProposalHandler)
		r.Patch("/edit", h.EditProposalHandler)
		r.Put("/submit", h.SubmitProposalHandler)
		r.Put("/receive", h.ReceiveProposalHandler)
		r.Put("/review", h.StartReviewHandler)
		r.Put("/qualify", h.QualifyProposalHandler)
		r.Put("/disqualify", h.DisqualifyProposalHandler)
		r.Put("/award", h.AwardProposalHandler)
		r.Put("/cancel", h.CancelProposalHandler)
		r.Put("/total-override", h.OverrideTotalHandler)
		r.Post("/items", h.AddLineItemHandler)
	})
	r.Patch("/proposal-items/{itemId}", h.UpdateLineItemHandler)
	r.Delete("/proposal-items/{itemId}", h.RemoveLineItemHandler)

	r.Get("/tenders/{tenderId}/proposals", h.GetTenderProposalsHandler)
	r.Get("/suppliers/{supplierId}/proposals", h.GetSupplierProposalsHandler)
	r.Get("/tender-items/{tenderLineItemId}/ranking", h.GetRankingHandler)
}

// PingHandler отвечает "ok" для проверки сервера
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// decodeBody читает JSON с ограничением размера и проверяет его валидатором.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		badRequest(w, r, "Failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		badRequest(w, r, "Invalid JSON format")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		badRequest(w, r, validationDetail(err))
		return false
	}
	return true
}

func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	if fe.Param() != "" {
		return fmt.Sprintf("field %s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("field %s failed %s", fe.Namespace(), fe.Tag())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// pathID разбирает идентификатор из пути; при ошибке уже ответил 400.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		badRequest(w, r, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func queryBool(w http.ResponseWriter, r *http.Request, name string) (bool, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		badRequest(w, r, "Invalid "+name)
		return false, false
	}
	return v, true
}
