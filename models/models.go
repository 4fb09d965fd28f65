package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Статус предложения
type ProposalStatus string

const (
	StatusDraft        ProposalStatus = "Draft"        // Черновик, можно редактировать
	StatusSubmitted    ProposalStatus = "Submitted"    // Отправлено поставщиком
	StatusReceived     ProposalStatus = "Received"     // Принято к учёту
	StatusUnderReview  ProposalStatus = "UnderReview"  // На рассмотрении комиссии
	StatusQualified    ProposalStatus = "Qualified"    // Допущено
	StatusDisqualified ProposalStatus = "Disqualified" // Отклонено с указанием причины
	StatusAwarded      ProposalStatus = "Awarded"      // Признано победителем
	StatusCancelled    ProposalStatus = "Cancelled"    // Отозвано из черновика
)

func (s ProposalStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusReceived, StatusUnderReview,
		StatusQualified, StatusDisqualified, StatusAwarded, StatusCancelled:
		return true
	default:
		return false
	}
}

// ExcludedFromRanking сообщает, что предложения в этом статусе не участвуют в ранжировании.
func (s ProposalStatus) ExcludedFromRanking() bool {
	return s == StatusDisqualified || s == StatusCancelled
}

// Editable сообщает, может ли поставщик ещё менять предложение и его позиции.
func (s ProposalStatus) Editable() bool {
	switch s {
	case StatusDisqualified, StatusCancelled, StatusAwarded:
		return false
	default:
		return true
	}
}

// Декларации поставщика. Первые три обязательны для выхода из черновика.
type Declarations struct {
	AcceptsTerms      bool `db:"accepts_terms" json:"acceptsTerms"`
	NoImpediments     bool `db:"no_impediments" json:"noImpediments"`
	NoMinorEmployment bool `db:"no_minor_employment" json:"noMinorEmployment"`
	SmallBusiness     bool `db:"small_business" json:"smallBusiness"`
	ReservedPositions bool `db:"reserved_positions" json:"reservedPositions"`
}

// Missing возвращает имена обязательных деклараций, которые не подтверждены.
func (d Declarations) Missing() []string {
	var missing []string
	if !d.AcceptsTerms {
		missing = append(missing, "acceptsTerms")
	}
	if !d.NoImpediments {
		missing = append(missing, "noImpediments")
	}
	if !d.NoMinorEmployment {
		missing = append(missing, "noMinorEmployment")
	}
	return missing
}

// Адрес доставки, если отличается от указанного в тендере
type DeliveryAddress struct {
	Street     string `db:"delivery_street" json:"street,omitempty"`
	City       string `db:"delivery_city" json:"city,omitempty"`
	State      string `db:"delivery_state" json:"state,omitempty"`
	PostalCode string `db:"delivery_postal_code" json:"postalCode,omitempty"`
}

// AggregateTotal хранит сумму предложения вместе с её происхождением:
// вычислена по позициям или выставлена администратором вручную.
type AggregateTotal struct {
	Value      decimal.Decimal `db:"aggregate_total" json:"value"`
	Overridden bool            `db:"aggregate_overridden" json:"overridden"`
}

func Computed(v decimal.Decimal) AggregateTotal   { return AggregateTotal{Value: v} }
func Overridden(v decimal.Decimal) AggregateTotal { return AggregateTotal{Value: v, Overridden: true} }

const DefaultValidityDays = 60

// Сущность Предложения
type Proposal struct {
	ID         uuid.UUID      `db:"id" json:"id"`
	TenderID   uuid.UUID      `db:"tender_id" json:"tenderId"`
	SupplierID uuid.UUID      `db:"supplier_id" json:"supplierId"`
	Status     ProposalStatus `db:"status" json:"status"`

	Declarations    `json:"declarations"`
	DeliveryAddress `json:"deliveryAddress"`
	AggregateTotal  `json:"aggregateTotal"`

	ValidityDays           int        `db:"validity_days" json:"proposalValidityDays"`
	DeliveryDays           *int       `db:"delivery_days" json:"deliveryDays,omitempty"`
	DisqualificationReason string     `db:"disqualification_reason" json:"disqualificationReason,omitempty"`
	SubmittedAt            *time.Time `db:"submitted_at" json:"submittedAt,omitempty"`
	ReviewedAt             *time.Time `db:"reviewed_at" json:"reviewedAt,omitempty"`
	Version                int        `db:"version" json:"version"`
	CreatedAt              time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt              time.Time  `db:"updated_at" json:"-"`

	Items []ProposalLineItem `db:"-" json:"items"`
}

// Item ищет позицию предложения по её идентификатору.
func (p *Proposal) Item(id uuid.UUID) (*ProposalLineItem, bool) {
	for i := range p.Items {
		if p.Items[i].ID == id {
			return &p.Items[i], true
		}
	}
	return nil, false
}

// HasTenderLineItem проверяет, есть ли уже позиция на эту строку тендера.
func (p *Proposal) HasTenderLineItem(tenderLineItemID uuid.UUID) bool {
	for i := range p.Items {
		if p.Items[i].TenderLineItemID == tenderLineItemID {
			return true
		}
	}
	return false
}

// Сущность Позиции предложения
type ProposalLineItem struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	ProposalID       uuid.UUID       `db:"proposal_id" json:"proposalId"`
	TenderLineItemID uuid.UUID       `db:"tender_line_item_id" json:"tenderLineItemId"`
	UnitPrice        decimal.Decimal `db:"unit_price" json:"unitPrice"`
	Quantity         decimal.Decimal `db:"quantity" json:"quantity"`
	LineTotal        decimal.Decimal `db:"line_total" json:"lineTotal"`
	Brand            string          `db:"brand" json:"brand,omitempty"`
	Model            string          `db:"model" json:"model,omitempty"`
	Manufacturer     string          `db:"manufacturer" json:"manufacturer,omitempty"`
	Description      string          `db:"description" json:"description,omitempty"`
	DeliveryDays     *int            `db:"delivery_days" json:"deliveryDays,omitempty"`
	WarrantyMonths   *int            `db:"warranty_months" json:"warrantyMonths,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time       `db:"updated_at" json:"-"`
}

// Сущность Тендера (из БД, только чтение)
type Tender struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	Name               string     `db:"name" json:"name"`
	SessionOpeningTime *time.Time `db:"session_opening_time" json:"sessionOpeningTime,omitempty"`
}

// Сущность Позиции тендера (из БД, только чтение)
type TenderLineItem struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	TenderID      uuid.UUID       `db:"tender_id" json:"tenderId"`
	Quantity      decimal.Decimal `db:"quantity" json:"quantity"`
	UnitOfMeasure string          `db:"unit_of_measure" json:"unitOfMeasure"`
}

// Сущность Поставщика (из БД, только чтение)
type Supplier struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Name string    `db:"name" json:"name"`
}

// RankingCandidate хранит позицию предложения вместе со статусом родителя.
type RankingCandidate struct {
	ProposalID     uuid.UUID       `db:"proposal_id"`
	SupplierID     uuid.UUID       `db:"supplier_id"`
	ProposalStatus ProposalStatus  `db:"status"`
	LineItemID     uuid.UUID       `db:"line_item_id"`
	UnitPrice      decimal.Decimal `db:"unit_price"`
	LineTotal      decimal.Decimal `db:"line_total"`
	Brand          string          `db:"brand"`
	Model          string          `db:"model"`
}

// Строка ранжирования по позиции тендера
type RankingEntry struct {
	Position     int             `json:"position"`
	Tied         bool            `json:"tied"`
	ProposalID   uuid.UUID       `json:"proposalId"`
	SupplierID   uuid.UUID       `json:"supplierId"`
	SupplierName string          `json:"supplierName"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	LineTotal    decimal.Decimal `json:"lineTotal"`
	Brand        string          `json:"brand,omitempty"`
	Model        string          `json:"model,omitempty"`
}
