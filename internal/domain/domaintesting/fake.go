package domaintesting

import (
	"math/rand"
	"strconv"

	"github.com/go-faker/faker/v4"
	"github.com/samber/lo"

	"catalog-service/internal/domain"
)

// FakeProduct returns a valid domain.Product with fake data: price never exceeds mrp
// and quantity is never negative.
func FakeProduct(ops ...func(p *domain.Product)) domain.Product {
	mrp := rand.Int63n(10_000) + 1
	product := domain.Product{
		SKU:      "SKU-" + faker.UUIDDigit(),
		Name:     faker.Word(),
		Brand:    faker.Word(),
		Color:    lo.ToPtr(faker.Word()),
		Size:     lo.ToPtr(faker.Word()),
		MRP:      mrp,
		Price:    rand.Int63n(mrp) + 1,
		Quantity: rand.Int63n(1_000),
	}

	for _, op := range ops {
		op(&product)
	}

	return product
}

// FakeRow returns the normalized CSV row for p, keyed by column name.
func FakeRow(p domain.Product) map[string]string {
	return map[string]string{
		"sku":      p.SKU,
		"name":     p.Name,
		"brand":    p.Brand,
		"color":    lo.FromPtr(p.Color),
		"size":     lo.FromPtr(p.Size),
		"mrp":      strconv.FormatInt(p.MRP, 10),
		"price":    strconv.FormatInt(p.Price, 10),
		"quantity": strconv.FormatInt(p.Quantity, 10),
	}
}
