package proposal

import (
	"procurement/models"

	"github.com/shopspring/decimal"
)

// UnitPriceScale задаёт число знаков после запятой, которое хранит колонка unit_price.
const UnitPriceScale = 4

var (
	// MinUnitPrice задаёт минимальную допустимую цену за единицу.
	MinUnitPrice = decimal.RequireFromString("0.0001")
	// MaxUnitPrice соответствует NUMERIC(20, 4).
	MaxUnitPrice = decimal.RequireFromString("9999999999999999.9999")
)

// LineTotal = цена за единицу × количество, без округления.
func LineTotal(unitPrice, quantity decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(quantity)
}

// SumLineTotals складывает итоги всех позиций.
func SumLineTotals(items []models.ProposalLineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.LineTotal)
	}
	return sum
}

func ValidateUnitPrice(price decimal.Decimal) error {
	if price.LessThan(MinUnitPrice) {
		return invalid("unitPrice must be at least %s, got %s", MinUnitPrice, price)
	}
	if price.GreaterThan(MaxUnitPrice) {
		return invalid("unitPrice must not exceed %s, got %s", MaxUnitPrice, price)
	}
	if !price.Equal(price.Truncate(UnitPriceScale)) {
		return invalid("unitPrice must have at most %d decimal places, got %s", UnitPriceScale, price)
	}
	return nil
}

// Recompute пересчитывает итоги позиций и возвращает сумму предложения
// в режим вычисленного значения.
func Recompute(p *models.Proposal) {
	for i := range p.Items {
		p.Items[i].LineTotal = LineTotal(p.Items[i].UnitPrice, p.Items[i].Quantity)
	}
	p.AggregateTotal = models.Computed(SumLineTotals(p.Items))
}
