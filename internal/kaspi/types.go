package kaspi

import (
	"time"

	"github.com/shopspring/decimal"
)

// Marketplace state and status strings observed on the wire. The vendor's
// documented enum is unreliable; the resolver treats these as raw facts.
const (
	StateArchive = "ARCHIVE"

	StatusCompleted      = "COMPLETED"
	StatusCancelled      = "CANCELLED"
	StatusCancelling     = "CANCELLING"
	StatusReturned       = "RETURNED"
	StatusDeliveryReturn = "KASPI_DELIVERY_RETURN_REQUESTED"
	StatusApprovedByBank = "APPROVED_BY_BANK"
	StatusAcceptedByShop = "ACCEPTED_BY_MERCHANT"
)

// OrderPayload is one order resource from the orders endpoint. Raw keeps the
// untouched JSON for replay and debugging.
type OrderPayload struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Attributes OrderAttributes `json:"attributes"`
	Raw        []byte          `json:"-"`
}

// OrderAttributes are the mapped fields of an order resource.
type OrderAttributes struct {
	Code                string               `json:"code"`
	Status              string               `json:"status"`
	State               string               `json:"state"`
	TotalPrice          decimal.Decimal      `json:"totalPrice"`
	DeliveryCost        decimal.Decimal      `json:"deliveryCost"`
	PaymentMode         string               `json:"paymentMode"`
	DeliveryMode        string               `json:"deliveryMode"`
	PreOrder            bool                 `json:"preOrder"`
	SignatureRequired   bool                 `json:"signatureRequired"`
	CreationDate        *int64               `json:"creationDate"`
	ApprovedByBankDate  *int64               `json:"approvedByBankDate"`
	PlannedDeliveryDate *int64               `json:"plannedDeliveryDate"`
	KaspiDelivery       *KaspiDelivery       `json:"kaspiDelivery"`
	Customer            *CustomerAttributes  `json:"customer"`
	OriginAddress       *OriginAddress       `json:"originAddress"`
	Entries             []EntryPayload       `json:"entries"`
}

// KaspiDelivery carries delivery-transfer evidence for an order.
type KaspiDelivery struct {
	Express                 bool    `json:"express"`
	WaybillNumber           *string `json:"waybillNumber"`
	CourierTransmissionDate *int64  `json:"courierTransmissionDate"`
}

// CustomerAttributes is the nested customer object, when present.
type CustomerAttributes struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	CellPhone string `json:"cellPhone"`
}

// OriginAddress is the nested delivery origin object, when present.
type OriginAddress struct {
	DisplayName string `json:"displayName"`
	City        struct {
		Name string `json:"name"`
	} `json:"city"`
	Address struct {
		FormattedAddress string   `json:"formattedAddress"`
		Latitude         *float64 `json:"latitude"`
		Longitude        *float64 `json:"longitude"`
	} `json:"address"`
}

// EntryPayload is one line entry resource.
type EntryPayload struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Attributes EntryAttributes `json:"attributes"`
	Raw        []byte          `json:"-"`
}

// EntryAttributes are the mapped fields of an entry resource.
type EntryAttributes struct {
	Quantity   int                 `json:"quantity"`
	BasePrice  decimal.NullDecimal `json:"basePrice"`
	TotalPrice decimal.NullDecimal `json:"totalPrice"`
	Offer      struct {
		Code string `json:"code"`
		Name string `json:"name"`
	} `json:"offer"`
	Category struct {
		Title string `json:"title"`
	} `json:"category"`
}

// ProductPayload is the product resource linked to one entry.
type ProductPayload struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes ProductAttributes `json:"attributes"`
	Raw        []byte            `json:"-"`
}

// ProductAttributes are the mapped fields of a product resource.
type ProductAttributes struct {
	Code      string              `json:"code"`
	Name      string              `json:"name"`
	Category  string              `json:"category"`
	Price     decimal.NullDecimal `json:"price"`
	BasePrice decimal.NullDecimal `json:"basePrice"`
}

// UnitPrice returns price when set, falling back to basePrice.
func (p ProductAttributes) UnitPrice() decimal.NullDecimal {
	if p.Price.Valid {
		return p.Price
	}
	return p.BasePrice
}

// IsTransferred reports delivery-transfer evidence: a waybill number or a
// courier-transmission timestamp.
func IsTransferred(attrs OrderAttributes) bool {
	kd := attrs.KaspiDelivery
	if kd == nil {
		return false
	}
	return kd.WaybillNumber != nil || kd.CourierTransmissionDate != nil
}

// MillisToTime converts a millisecond Unix epoch to a UTC instant. Returns
// nil for absent timestamps.
func MillisToTime(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}

// TimeToMillis converts an instant to the millisecond epoch used by request
// filters.
func TimeToMillis(t time.Time) int64 {
	return t.UnixMilli()
}
