// Package confirmation defines the wire schema for supplier-confirmation
// documents extracted by OCR, plus the validation pass that turns a raw JSON
// payload into a validated document with attached status flags.
//
// Decoding is deliberately lenient: every leaf type coerces malformed input
// to its zero value instead of failing, so that a single unreadable field
// never aborts the whole document. Hard constraints are enforced afterwards
// by Validate.
package confirmation

import (
	"encoding/json"
	"time"

	"confirmation-backend/internal/coerce"
)

// Money is an amount in document currency, rounded to two decimals on decode.
type Money float64

func (m *Money) UnmarshalJSON(b []byte) error {
	var v any
	_ = json.Unmarshal(b, &v)
	*m = Money(coerce.Round2(coerce.Float(v)))
	return nil
}

// Quantity is an ordered amount of units.
type Quantity int

func (q *Quantity) UnmarshalJSON(b []byte) error {
	var v any
	_ = json.Unmarshal(b, &v)
	*q = Quantity(coerce.Int(v))
	return nil
}

// FlexInt tolerates numbers arriving as strings or placeholders.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	var v any
	_ = json.Unmarshal(b, &v)
	*f = FlexInt(coerce.Int(v))
	return nil
}

// DateValue keeps both the raw extracted token and its parsed form. Raw is
// retained so Validate can distinguish "not found" from "found but garbled".
type DateValue struct {
	Raw  string
	Time *time.Time
}

func (d *DateValue) UnmarshalJSON(b []byte) error {
	var v any
	_ = json.Unmarshal(b, &v)
	if v == nil {
		*d = DateValue{}
		return nil
	}
	raw, _ := v.(string)
	*d = DateValue{Raw: raw, Time: coerce.SmartDate(v)}
	return nil
}

func (d DateValue) MarshalJSON() ([]byte, error) {
	if d.Time == nil {
		return []byte("null"), nil
	}
	return json.Marshal(d.Time.Format(coerce.DateLayout))
}

// IsZero reports whether no usable date was extracted.
func (d DateValue) IsZero() bool { return d.Time == nil }

// DiscountValue normalizes "10 %", "25,00" or a structured object into
// {isPercent, value}.
type DiscountValue coerce.Discount

func (d *DiscountValue) UnmarshalJSON(b []byte) error {
	var obj struct {
		IsPercent *bool    `json:"isPercent"`
		Value     *float64 `json:"value"`
	}
	if err := json.Unmarshal(b, &obj); err == nil && obj.Value != nil {
		dv := DiscountValue{Value: *obj.Value}
		if obj.IsPercent != nil {
			dv.IsPercent = *obj.IsPercent
		}
		*d = dv
		return nil
	}
	var v any
	_ = json.Unmarshal(b, &v)
	*d = DiscountValue(coerce.ParseDiscount(v))
	return nil
}

func (d DiscountValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(coerce.Discount(d))
}

// CurrencyCode is a 3-letter ISO code, defaulting to EUR.
type CurrencyCode struct {
	ISOCode string `json:"isoCode"`
}

func (c *CurrencyCode) UnmarshalJSON(b []byte) error {
	var obj struct {
		ISOCode any `json:"isoCode"`
	}
	if err := json.Unmarshal(b, &obj); err == nil && obj.ISOCode != nil {
		c.ISOCode = coerce.Currency(obj.ISOCode, "EUR")
		return nil
	}
	var v any
	_ = json.Unmarshal(b, &v)
	c.ISOCode = coerce.Currency(v, "EUR")
	return nil
}

// ReferenceValue is a business reference, placeholder-normalized on decode.
type ReferenceValue string

func (r *ReferenceValue) UnmarshalJSON(b []byte) error {
	var v any
	_ = json.Unmarshal(b, &v)
	*r = ReferenceValue(coerce.Reference(v))
	return nil
}

// Found reports whether the reference was actually extracted.
func (r ReferenceValue) Found() bool { return string(r) != coerce.NotFound }

// --- wire structs ---

// Envelope is the root payload: a batch of one or more confirmations.
type Envelope struct {
	Documents []DocumentItem `json:"documents"`
}

// DocumentItem wraps one confirmation in the batch.
type DocumentItem struct {
	SupplierConfirmation Confirmation `json:"SupplierConfirmation"`
}

// Confirmation is one supplier order confirmation.
type Confirmation struct {
	Reasoning                string         `json:"reasoning"`
	SupplierConfirmationData HeaderData     `json:"supplierConfirmationData"`
	InvoiceSupplierData      SupplierData   `json:"invoiceSupplierData"`
	InvoicingData            InvoicingData  `json:"invoicingData"`
	Correspondence           Correspondence `json:"Correspondence"`
	DocType                  DocType        `json:"Type"`
	NetTotal                 *GrossPrice    `json:"netTotal,omitempty"`
	Details                  []LineItem     `json:"Details"`

	// Status flags computed by Validate; soft findings the scorer weighs.
	DocTypeStatus          string `json:"docTypeStatus,omitempty"`
	DatePlausibilityStatus string `json:"datePlausibilityStatus,omitempty"`
	SumValidationStatus    string `json:"sumValidationStatus,omitempty"`
}

// HeaderData carries the confirmation number and document date.
type HeaderData struct {
	SalesConfirmation ReferenceValue `json:"salesConfirmation"`
	Date              HeaderDate     `json:"date"`
}

// HeaderDate wraps the document date value.
type HeaderDate struct {
	Value DateValue `json:"value"`
}

// SupplierData identifies the issuing supplier.
type SupplierData struct {
	SupplierPartner SupplierPartner `json:"SupplierPartner"`
}

// SupplierPartner is the supplier's partner number.
type SupplierPartner struct {
	Number FlexInt `json:"number"`
}

// InvoicingData carries payment terms; may be empty.
type InvoicingData struct {
	PaymentTerms string `json:"PaymentTerms"`
}

// Correspondence holds the procurement order reference the confirmation
// answers to.
type Correspondence struct {
	Number ReferenceValue `json:"number"`
}

// DocType is the document type code or label.
type DocType struct {
	Code string `json:"code"`
}

// GrossPrice is an amount with its currency.
type GrossPrice struct {
	Amount   Money        `json:"amount"`
	Currency CurrencyCode `json:"Currency"`
}

// TotalQuantity is the ordered quantity with its unit of measure.
type TotalQuantity struct {
	Amount Quantity `json:"amount"`
	Uom    Uom      `json:"Uom"`
}

// Uom is the unit of measure, "Stk" unless stated otherwise.
type Uom struct {
	Code string `json:"code"`
}

// DeliveryDate carries the confirmed delivery date for a position.
type DeliveryDate struct {
	SpecialValue string    `json:"specialValue"`
	Date         DateValue `json:"date"`
}

// CorrespondenceDetail mirrors the position number in the external
// numbering convention.
type CorrespondenceDetail struct {
	Number string `json:"number"`
}

// LineItem is one confirmed position.
type LineItem struct {
	Sequence             int                  `json:"sequence"`
	Number               FlexInt              `json:"number"`
	TotalQuantity        TotalQuantity        `json:"totalQuantity"`
	DeliveryDate         DeliveryDate         `json:"deliveryDate"`
	GrossPrice           GrossPrice           `json:"grossPrice"`
	Discount             DiscountValue        `json:"discount"`
	LineTotalAmount      Money                `json:"lineTotalAmount"`
	CorrespondenceDetail CorrespondenceDetail `json:"CorrespondenceDetail"`

	// MathStatus is computed by Validate; "OK" when the line arithmetic is
	// consistent with the extracted total.
	MathStatus string `json:"mathStatus,omitempty"`
}
