package repo

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cajadev/caja/internal/models"
)

func setupSales(t *testing.T) (*Sales, *Products, *harness) {
	t.Helper()
	h := setup(t, false)
	products := h.products()
	products.Initialize(context.Background())
	sales := NewSales(h.store, h.gw, h.mon, func() { h.kicks.Add(1) }, products)
	sales.Initialize(context.Background())
	return sales, products, h
}

func TestRecordSaleAdjustsStockAndQueuesFIFO(t *testing.T) {
	sales, products, h := setupSales(t)
	if err := products.Add(testProduct("p1", 10)); err != nil {
		t.Fatalf("add product: %v", err)
	}

	err := sales.Record(models.Sale{
		Items:  []models.SaleItem{{ProductID: "p1", Quantity: 2}},
		UserID: "user-caja",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	p, _ := products.Get("p1")
	if p.Stock != 8 {
		t.Errorf("stock after sale: got %d, want 8", p.Stock)
	}
	got := sales.Read()
	if len(got) != 1 {
		t.Fatalf("sales snapshot: got %d, want 1", len(got))
	}
	if got[0].Total != 24 {
		t.Errorf("sale total: got %v, want 24", got[0].Total)
	}
	if got[0].Items[0].UnitPrice != 12 || got[0].Items[0].Name == "" {
		t.Errorf("line not filled from product: %+v", got[0].Items[0])
	}

	// The stock adjustment must enter the queue before the sale itself.
	items, _ := h.store.ListQueue()
	if len(items) != 3 {
		t.Fatalf("queue length: got %d, want 3", len(items))
	}
	if items[1].EntityType != models.EntityProduct || items[1].Action != models.ActionUpdate {
		t.Errorf("item 2: got %s/%s, want product/update", items[1].EntityType, items[1].Action)
	}
	if items[2].EntityType != models.EntitySale || items[2].Action != models.ActionCreate {
		t.Errorf("item 3: got %s/%s, want sale/create", items[2].EntityType, items[2].Action)
	}
}

func TestSequentialSalesQueueInOrder(t *testing.T) {
	sales, products, h := setupSales(t)
	products.Add(testProduct("p1", 10))

	for _, qty := range []int{2, 3} {
		err := sales.Record(models.Sale{
			Items: []models.SaleItem{{ProductID: "p1", Quantity: qty}},
		})
		if err != nil {
			t.Fatalf("record qty=%d: %v", qty, err)
		}
	}

	p, _ := products.Get("p1")
	if p.Stock != 5 {
		t.Errorf("stock after two sales: got %d, want 5", p.Stock)
	}

	// 1 create + 2×(stock update, sale create); stock updates carry 8 then 5.
	items, _ := h.store.ListQueue()
	if len(items) != 5 {
		t.Fatalf("queue length: got %d, want 5", len(items))
	}
	var stocks []int
	for _, item := range items {
		if item.EntityType != models.EntityProduct || item.Action != models.ActionUpdate {
			continue
		}
		var p models.Product
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			t.Fatalf("decode queue payload: %v", err)
		}
		stocks = append(stocks, p.Stock)
	}
	if len(stocks) != 2 || stocks[0] != 8 || stocks[1] != 5 {
		t.Errorf("queued stock updates: got %v, want [8 5]", stocks)
	}
}

func TestSaleRejectedWhenStockInsufficient(t *testing.T) {
	sales, products, h := setupSales(t)
	products.Add(testProduct("p1", 1))
	before := h.queueCount(t)

	err := sales.Record(models.Sale{
		Items: []models.SaleItem{{ProductID: "p1", Quantity: 3}},
	})
	var saleErr *SaleError
	if !errors.As(err, &saleErr) {
		t.Fatalf("got %v, want *SaleError", err)
	}
	if !errors.Is(err, ErrValidation) {
		t.Error("SaleError should match ErrValidation")
	}
	line := saleErr.Lines[0]
	if line.ProductID != "p1" || line.Requested != 3 || line.Available != 1 {
		t.Errorf("stock error line: %+v", line)
	}

	p, _ := products.Get("p1")
	if p.Stock != 1 {
		t.Errorf("stock touched by rejected sale: got %d", p.Stock)
	}
	if len(sales.Read()) != 0 {
		t.Error("rejected sale entered the snapshot")
	}
	if h.queueCount(t) != before {
		t.Error("rejected sale enqueued items")
	}
}

func TestMultiLineSaleIsAllOrNothing(t *testing.T) {
	sales, products, h := setupSales(t)
	products.Add(testProduct("p1", 10))
	products.Add(testProduct("p2", 1))
	before := h.queueCount(t)

	err := sales.Record(models.Sale{
		Items: []models.SaleItem{
			{ProductID: "p1", Quantity: 2}, // fine on its own
			{ProductID: "p2", Quantity: 5}, // short by 4
			{ProductID: "p3", Quantity: 1}, // unknown product
		},
	})
	var saleErr *SaleError
	if !errors.As(err, &saleErr) {
		t.Fatalf("got %v, want *SaleError", err)
	}
	if len(saleErr.Lines) != 2 {
		t.Fatalf("offending lines: got %+v, want p2 and p3", saleErr.Lines)
	}

	// The sellable line must not have been committed either.
	p, _ := products.Get("p1")
	if p.Stock != 10 {
		t.Errorf("p1 stock after rejected sale: got %d, want 10", p.Stock)
	}
	if h.queueCount(t) != before {
		t.Error("partially-validated sale enqueued items")
	}
}

func TestRecordStampsIDAndTimes(t *testing.T) {
	sales, products, _ := setupSales(t)
	products.Add(testProduct("p1", 10))

	err := sales.Record(models.Sale{
		Items: []models.SaleItem{{ProductID: "p1", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	got := sales.Read()[0]
	if got.ID == "" {
		t.Error("sale id not generated")
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("sale timestamps not stamped")
	}
	if time.Since(got.CreatedAt) > time.Minute {
		t.Errorf("createdAt implausible: %v", got.CreatedAt)
	}
}

func TestSaleValidationRules(t *testing.T) {
	sales, products, _ := setupSales(t)
	products.Add(testProduct("p1", 10))

	cases := []struct {
		name string
		sale models.Sale
	}{
		{"no items", models.Sale{}},
		{"zero quantity", models.Sale{Items: []models.SaleItem{{ProductID: "p1", Quantity: 0}}}},
		{"negative quantity", models.Sale{Items: []models.SaleItem{{ProductID: "p1", Quantity: -2}}}},
		{"missing product id", models.Sale{Items: []models.SaleItem{{Quantity: 1}}}},
	}
	for _, tc := range cases {
		if err := sales.Record(tc.sale); !errors.Is(err, ErrValidation) {
			t.Errorf("%s: got %v, want ErrValidation", tc.name, err)
		}
	}
}
