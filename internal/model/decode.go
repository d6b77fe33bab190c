package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DecodeReceipt builds a Receipt from a loosely-typed JSON object. Model
// output is not trusted: wrong types are coerced where possible and treated
// as absent otherwise, so a malformed field never fails a whole record.
func DecodeReceipt(raw map[string]any) Receipt {
	var r Receipt

	if s, ok := CoerceString(raw["merchant_name"]); ok {
		r.MerchantName = &s
	}
	if s, ok := CoerceString(raw["date"]); ok {
		r.Date = &s
	}
	if s, ok := CoerceString(raw["payment_method"]); ok {
		r.PaymentMethod = &s
	}
	if f, ok := CoerceFloat(raw["total_amount"]); ok {
		r.TotalAmount = &f
	}
	if f, ok := CoerceFloat(raw["subtotal_amount"]); ok {
		r.SubtotalAmount = &f
	}
	if f, ok := CoerceFloat(raw["tax_amount"]); ok {
		r.TaxAmount = &f
	}

	if items, ok := raw["items"].([]any); ok {
		r.Items = make([]LineItem, 0, len(items))
		for _, it := range items {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			r.Items = append(r.Items, decodeLineItem(m))
		}
	}

	return r
}

func decodeLineItem(m map[string]any) LineItem {
	var li LineItem
	if s, ok := CoerceString(m["description"]); ok {
		li.Description = s
	} else if s, ok := CoerceString(m["name"]); ok {
		li.Description = s
	}
	if f, ok := CoerceFloat(m["quantity"]); ok {
		li.Quantity = f
	}
	if f, ok := CoerceFloat(m["unit_price"]); ok {
		li.UnitPrice = f
	} else if f, ok := CoerceFloat(m["price"]); ok {
		li.UnitPrice = f
	}
	if f, ok := CoerceFloat(m["total"]); ok {
		li.Total = f
	}
	return li
}

// CoerceString converts a loosely-typed value to a trimmed string. Empty
// strings count as absent.
func CoerceString(v any) (string, bool) {
	switch s := v.(type) {
	case nil:
		return "", false
	case string:
		trimmed := strings.TrimSpace(s)
		return trimmed, trimmed != ""
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int:
		return strconv.Itoa(s), true
	case bool:
		return strconv.FormatBool(s), true
	default:
		return "", false
	}
}

// currencyMarkers are stripped from numeric strings before parsing. OCR and
// model output routinely prefix or suffix amounts with a currency.
var currencyMarkers = []string{"$", "€", "£", "zł", "PLN", "USD", "EUR"}

// CoerceFloat converts a loosely-typed value to a float64. Strings are
// cleaned of currency markers; a lone comma is accepted as the decimal
// separator ("53,94"), otherwise commas are thousands separators.
func CoerceFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		cleaned := strings.TrimSpace(n)
		for _, m := range currencyMarkers {
			cleaned = strings.ReplaceAll(cleaned, m, "")
		}
		cleaned = strings.TrimSpace(cleaned)
		if strings.Contains(cleaned, ",") && !strings.Contains(cleaned, ".") {
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		}
		cleaned = strings.ReplaceAll(cleaned, ",", "")
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// CoerceBool converts a loosely-typed value to a bool.
func CoerceBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "1":
			return true, true
		case "false", "no", "0":
			return false, true
		}
		return false, false
	case float64:
		return b != 0, true
	case int:
		return b != 0, true
	default:
		return false, false
	}
}

// CoerceCount converts a loosely-typed value to a non-negative integer count.
func CoerceCount(v any) (int, bool) {
	f, ok := CoerceFloat(v)
	if !ok || f < 0 {
		return 0, false
	}
	return int(math.Round(f)), true
}

// FormatValue renders a field value for reports: numbers with two decimals,
// everything else via Sprintf.
func FormatValue(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(n, 'f', 2, 64)
	default:
		return fmt.Sprintf("%v", n)
	}
}
