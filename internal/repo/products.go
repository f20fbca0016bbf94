package repo

import (
	"fmt"
	"strings"
	"time"

	"github.com/cajadev/caja/internal/connectivity"
	"github.com/cajadev/caja/internal/gateway"
	"github.com/cajadev/caja/internal/models"
	"github.com/cajadev/caja/internal/store"
)

// Products is the product repository.
type Products struct {
	*Repo[models.Product]
}

// NewProducts creates the product repository. kick signals the queue
// processor after each write; pass nil when there is no processor.
func NewProducts(st *store.Store, gw gateway.Gateway, mon *connectivity.Monitor, kick func()) *Products {
	r := newRepo[models.Product](models.EntityProduct, st, gw, mon, kick)
	r.validate = validateProduct
	r.bootstrap = defaultProducts
	return &Products{Repo: r}
}

func validateProduct(action models.SyncAction, p models.Product) error {
	if p.ID == "" {
		return fmt.Errorf("%w: product id is required", ErrValidation)
	}
	if action == models.ActionDelete {
		return nil
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product name is required", ErrValidation)
	}
	if p.Price < 0 {
		return fmt.Errorf("%w: product price cannot be negative", ErrValidation)
	}
	if p.Stock < 0 {
		return fmt.Errorf("%w: product stock cannot be negative", ErrValidation)
	}
	return nil
}

// Add creates a product, stamping timestamps.
func (r *Products) Add(p models.Product) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	return r.Write(models.ActionCreate, p)
}

// SetStock updates a product's absolute stock level.
func (r *Products) SetStock(id string, stock int) error {
	p, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("%w: unknown product %q", ErrValidation, id)
	}
	p.Stock = stock
	p.UpdatedAt = time.Now().UTC()
	return r.Write(models.ActionUpdate, p)
}

// AdjustStock applies a relative stock delta, rejecting negative results.
func (r *Products) AdjustStock(id string, delta int) error {
	p, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("%w: unknown product %q", ErrValidation, id)
	}
	return r.SetStock(id, p.Stock+delta)
}
