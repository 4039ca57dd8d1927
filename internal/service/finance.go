package service

import (
	"github.com/shopspring/decimal"

	"kaspi-sync/internal/models"
)

// Fee constants for the marketplace settlement model. A weight-tiered tariff
// table and alternate fee percentages exist in older reports; the flat
// quantized model below is the authoritative one.
var (
	marketplaceFeePercent = decimal.NewFromInt(15)
	factoringFeePercent   = decimal.RequireFromString("8.5")
	oneHundred            = decimal.NewFromInt(100)
)

// Delivery tariff bands, flat fee per total-price bracket.
var (
	band1000  = decimal.NewFromInt(1000)
	band3000  = decimal.NewFromInt(3000)
	band5000  = decimal.NewFromInt(5000)
	band10000 = decimal.NewFromInt(10000)

	deliveryUnder1000  = decimal.RequireFromString("49.14")
	deliveryUnder3000  = decimal.RequireFromString("149.14")
	deliveryUnder5000  = decimal.RequireFromString("199.14")
	deliveryUnder10000 = decimal.RequireFromString("799.14")
	deliveryOver10000  = decimal.RequireFromString("1299.14")
)

// DeliveryCost returns the flat delivery fee for a total-price bracket.
// The 799.14 band is inclusive of 10000 itself.
func DeliveryCost(totalPrice decimal.Decimal) decimal.Decimal {
	switch {
	case totalPrice.LessThan(band1000):
		return deliveryUnder1000
	case totalPrice.LessThan(band3000):
		return deliveryUnder3000
	case totalPrice.LessThan(band5000):
		return deliveryUnder5000
	case totalPrice.LessThanOrEqual(band10000):
		return deliveryUnder10000
	default:
		return deliveryOver10000
	}
}

// FactoringFee returns the factoring outflow for an order total, rounded
// half-up to two decimal places.
func FactoringFee(totalPrice decimal.Decimal) decimal.Decimal {
	return totalPrice.Mul(factoringFeePercent).Div(oneHundred).Round(2)
}

// CalculateOrderFinance recomputes the full finance snapshot for an order
// from its current item set. Every step is quantized to two decimal places
// with round-half-up; intermediates are never truncated with binary-float
// rounding.
func CalculateOrderFinance(order *models.Order, items []models.OrderItem) models.OrderFinanceSnapshot {
	purchaseCost := decimal.Zero
	for _, item := range items {
		purchaseCost = purchaseCost.Add(
			item.PurchasePrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	totalPrice := order.TotalPrice

	marketplaceFee := totalPrice.Mul(marketplaceFeePercent).Div(oneHundred).Round(2)
	factoringFee := FactoringFee(totalPrice)
	deliveryCost := DeliveryCost(totalPrice)

	grossProfit := totalPrice.Sub(purchaseCost).Round(2)
	netProfit := totalPrice.
		Sub(purchaseCost).
		Sub(marketplaceFee).
		Sub(factoringFee).
		Sub(deliveryCost).
		Round(2)

	margin := decimal.Zero
	if !totalPrice.IsZero() {
		margin = netProfit.Div(totalPrice).Mul(oneHundred).Round(2)
	}

	return models.OrderFinanceSnapshot{
		OrderID:        order.ID,
		PurchaseCost:   purchaseCost,
		MarketplaceFee: marketplaceFee,
		FactoringFee:   factoringFee,
		DeliveryCost:   deliveryCost,
		GrossProfit:    grossProfit,
		NetProfit:      netProfit,
		Margin:         margin,
	}
}
