package model

// LineItem is a single purchased item on a receipt.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity,omitempty"`
	UnitPrice   float64 `json:"unit_price,omitempty"`
	Total       float64 `json:"total,omitempty"`
}

// Receipt is one structured receipt record, either produced by an extraction
// strategy or hand-verified as ground truth. Pointer fields distinguish an
// absent value from a genuine zero/empty one; absence is a data point, not an
// error.
type Receipt struct {
	MerchantName   *string    `json:"merchant_name,omitempty"`
	Date           *string    `json:"date,omitempty"`
	PaymentMethod  *string    `json:"payment_method,omitempty"`
	TotalAmount    *float64   `json:"total_amount,omitempty"`
	SubtotalAmount *float64   `json:"subtotal_amount,omitempty"`
	TaxAmount      *float64   `json:"tax_amount,omitempty"`
	Items          []LineItem `json:"items,omitempty"`
}

// Scored receipt fields. Tax is carried on the record for the math-validation
// check but is not scored on its own.
const (
	FieldMerchantName   = "merchant_name"
	FieldDate           = "date"
	FieldPaymentMethod  = "payment_method"
	FieldTotalAmount    = "total_amount"
	FieldSubtotalAmount = "subtotal_amount"
	FieldItems          = "items"
)

// FieldNames returns the scored schema field names in report order.
func FieldNames() []string {
	return []string{
		FieldMerchantName,
		FieldDate,
		FieldPaymentMethod,
		FieldTotalAmount,
		FieldSubtotalAmount,
		FieldItems,
	}
}

// ItemCount returns the number of line items and whether the items field was
// present at all. An explicit empty list counts as present with zero items.
func (r Receipt) ItemCount() (int, bool) {
	if r.Items == nil {
		return 0, false
	}
	return len(r.Items), true
}

// Field returns the value of a scored field, or nil when the field is absent.
// String-class fields yield string, money fields float64, items an int count.
// Unknown names yield nil.
func (r Receipt) Field(name string) any {
	switch name {
	case FieldMerchantName:
		if r.MerchantName != nil {
			return *r.MerchantName
		}
	case FieldDate:
		if r.Date != nil {
			return *r.Date
		}
	case FieldPaymentMethod:
		if r.PaymentMethod != nil {
			return *r.PaymentMethod
		}
	case FieldTotalAmount:
		if r.TotalAmount != nil {
			return *r.TotalAmount
		}
	case FieldSubtotalAmount:
		if r.SubtotalAmount != nil {
			return *r.SubtotalAmount
		}
	case FieldItems:
		if n, ok := r.ItemCount(); ok {
			return n
		}
	}
	return nil
}
