package groundtruth

import (
	"fmt"
	"math"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/sells-group/receipt-eval/internal/model"
)

// GenerateOptions configures synthetic fixture generation.
type GenerateOptions struct {
	Count   int     // default 10
	Seed    uint64  // same seed, same fixtures
	TaxRate float64 // default 0.20
}

var itemPool = []string{
	"Milk", "Bread", "Butter", "Eggs", "Coffee", "Cheese", "Apples",
	"Bananas", "Pasta", "Rice", "Chicken Breast", "Orange Juice",
	"Yogurt", "Tomatoes", "Chocolate",
}

// Generate produces synthetic ground-truth records for exercising the
// evaluation pipeline without hand-labeled receipts. Amounts are built so
// that subtotal + tax lands on total, so generated fixtures always pass
// math validation.
func Generate(opts GenerateOptions) []Record {
	if opts.Count <= 0 {
		opts.Count = 10
	}
	if opts.TaxRate <= 0 {
		opts.TaxRate = 0.20
	}
	faker := gofakeit.New(opts.Seed)

	records := make([]Record, 0, opts.Count)
	for i := 0; i < opts.Count; i++ {
		itemCount := faker.Number(2, 6)
		items := make([]model.LineItem, 0, itemCount)
		var subtotal float64
		for j := 0; j < itemCount; j++ {
			qty := float64(faker.Number(1, 4))
			price := round2(faker.Price(0.5, 25))
			lineTotal := round2(qty * price)
			subtotal = round2(subtotal + lineTotal)
			items = append(items, model.LineItem{
				Description: faker.RandomString(itemPool),
				Quantity:    qty,
				UnitPrice:   price,
				Total:       lineTotal,
			})
		}

		merchant := faker.Company()
		date := faker.DateRange(time.Now().AddDate(0, 0, -30), time.Now()).Format("2006-01-02")
		payment := faker.RandomString([]string{"card", "cash"})
		sub := subtotal
		tax := round2(subtotal * opts.TaxRate)
		total := round2(subtotal + tax)

		records = append(records, Record{
			ReceiptID: fmt.Sprintf("receipt_%03d", i+1),
			Receipt: model.Receipt{
				MerchantName:   &merchant,
				Date:           &date,
				PaymentMethod:  &payment,
				TotalAmount:    &total,
				SubtotalAmount: &sub,
				TaxAmount:      &tax,
				Items:          items,
			},
		})
	}
	return records
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
