package repo

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cajadev/caja/internal/connectivity"
	"github.com/cajadev/caja/internal/gateway"
	"github.com/cajadev/caja/internal/models"
	"github.com/cajadev/caja/internal/store"
)

// StockError describes one sale line item whose stock adjustment was
// rejected.
type StockError struct {
	ProductID string
	Requested int
	Available int
}

func (e StockError) String() string {
	return fmt.Sprintf("%s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// SaleError reports every line item that made a sale unsellable. No stock is
// touched when it is returned.
type SaleError struct {
	Lines []StockError
}

func (e *SaleError) Error() string {
	lines := make([]string, len(e.Lines))
	for i, l := range e.Lines {
		lines[i] = l.String()
	}
	return "insufficient stock: " + strings.Join(lines, "; ")
}

// Is marks SaleError as a validation failure.
func (e *SaleError) Is(target error) bool { return target == ErrValidation }

// Sales is the sale repository. Recording a sale adjusts product stock
// through the product repository, so each adjustment rides its own queue
// item.
type Sales struct {
	*Repo[models.Sale]
	products *Products
}

// NewSales creates the sale repository.
func NewSales(st *store.Store, gw gateway.Gateway, mon *connectivity.Monitor, kick func(), products *Products) *Sales {
	r := newRepo[models.Sale](models.EntitySale, st, gw, mon, kick)
	r.validate = validateSale
	return &Sales{Repo: r, products: products}
}

func validateSale(action models.SyncAction, s models.Sale) error {
	if s.ID == "" {
		return fmt.Errorf("%w: sale id is required", ErrValidation)
	}
	if action == models.ActionDelete {
		return nil
	}
	if len(s.Items) == 0 {
		return fmt.Errorf("%w: sale needs at least one line item", ErrValidation)
	}
	for _, item := range s.Items {
		if item.ProductID == "" {
			return fmt.Errorf("%w: line item missing product id", ErrValidation)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: line item quantity must be positive", ErrValidation)
		}
	}
	return nil
}

// Record validates a sale against current product stock and commits it.
// All line items are checked before any stock is adjusted; if any would drive
// stock negative the whole sale is rejected with a SaleError naming the
// offending lines.
func (r *Sales) Record(sale models.Sale) error {
	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	sale.UpdatedAt = now

	if err := validateSale(models.ActionCreate, sale); err != nil {
		return err
	}

	// Phase 1: validate every line against the product snapshot.
	var saleErr SaleError
	adjusted := make([]models.Product, 0, len(sale.Items))
	total := 0.0
	for i, item := range sale.Items {
		p, ok := r.products.Get(item.ProductID)
		if !ok {
			saleErr.Lines = append(saleErr.Lines, StockError{ProductID: item.ProductID, Requested: item.Quantity})
			continue
		}
		if p.Stock < item.Quantity {
			saleErr.Lines = append(saleErr.Lines, StockError{
				ProductID: p.ID,
				Requested: item.Quantity,
				Available: p.Stock,
			})
			continue
		}
		if item.UnitPrice == 0 {
			sale.Items[i].UnitPrice = p.Price
		}
		if sale.Items[i].Name == "" {
			sale.Items[i].Name = p.Name
		}
		p.Stock -= item.Quantity
		p.UpdatedAt = now
		adjusted = append(adjusted, p)
		total += float64(item.Quantity) * sale.Items[i].UnitPrice
	}
	if len(saleErr.Lines) > 0 {
		return &saleErr
	}
	if sale.Total == 0 {
		sale.Total = total
	}

	// Phase 2: all lines passed, commit every adjustment then the sale.
	for _, p := range adjusted {
		if err := r.products.Write(models.ActionUpdate, p); err != nil {
			return fmt.Errorf("adjust stock for %s: %w", p.ID, err)
		}
	}
	return r.Write(models.ActionCreate, sale)
}
