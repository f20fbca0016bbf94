package models

import (
	"encoding/json"
	"time"
)

// EntityType identifies which repository owns a record.
type EntityType string

const (
	EntityProduct EntityType = "product"
	EntitySale    EntityType = "sale"
	EntityUser    EntityType = "user"
)

// Table returns the remote table name for the entity type.
func (t EntityType) Table() string {
	switch t {
	case EntityProduct:
		return "productos"
	case EntitySale:
		return "ventas"
	case EntityUser:
		return "usuarios"
	}
	return string(t)
}

// Valid reports whether the entity type is one the sync engine supports.
func (t EntityType) Valid() bool {
	switch t {
	case EntityProduct, EntitySale, EntityUser:
		return true
	}
	return false
}

// SyncAction is the kind of mutation carried by a queue item.
type SyncAction string

const (
	ActionCreate SyncAction = "create"
	ActionUpdate SyncAction = "update"
	ActionDelete SyncAction = "delete"
)

// Product is a sellable item with tracked stock.
type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category,omitempty"`
	Price     float64   `json:"price"`
	Stock     int       `json:"stock"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntityID implements repo.Entity.
func (p Product) EntityID() string { return p.ID }

// SaleItem is a single line of a sale.
type SaleItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Sale is a completed checkout with one or more line items.
type Sale struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id,omitempty"`
	Items     []SaleItem `json:"items"`
	Total     float64    `json:"total"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// EntityID implements repo.Entity.
func (s Sale) EntityID() string { return s.ID }

// User is an operator account.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntityID implements repo.Entity.
func (u User) EntityID() string { return u.ID }

// SyncQueueItem is one durable pending mutation awaiting push to the remote
// store. The payload is the full entity record for create/update, or
// {"id": ...} for delete, tagged by EntityType so replay never guesses shapes.
type SyncQueueItem struct {
	ID         string          `json:"id"`
	EntityType EntityType      `json:"entity_type"`
	Action     SyncAction      `json:"action"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
	Retries    int             `json:"retries"`
}

// DeletePayload is the payload shape for delete actions.
type DeletePayload struct {
	ID string `json:"id"`
}
