package repo

import (
	"time"

	"github.com/cajadev/caja/internal/models"
)

// Bootstrap datasets installed when both the remote table and the local
// snapshot are empty, so a first run never starts from a blank screen.

func defaultProducts() []models.Product {
	now := time.Now().UTC()
	mk := func(id, name, category string, price float64, stock int) models.Product {
		return models.Product{
			ID: id, Name: name, Category: category,
			Price: price, Stock: stock,
			CreatedAt: now, UpdatedAt: now,
		}
	}
	return []models.Product{
		mk("prod-agua-600", "Agua embotellada 600ml", "bebidas", 12, 48),
		mk("prod-refresco-600", "Refresco de cola 600ml", "bebidas", 19, 36),
		mk("prod-papas-45", "Papas fritas 45g", "botanas", 17, 24),
		mk("prod-galletas", "Galletas de chocolate", "botanas", 15.5, 30),
		mk("prod-jabon", "Jabón de tocador", "limpieza", 22, 18),
		mk("prod-detergente-1k", "Detergente en polvo 1kg", "limpieza", 39.9, 12),
	}
}

func defaultUsers() []models.User {
	now := time.Now().UTC()
	return []models.User{
		{ID: "user-admin", Name: "Administrador", Role: "admin", CreatedAt: now, UpdatedAt: now},
		{ID: "user-caja", Name: "Cajero", Role: "cashier", CreatedAt: now, UpdatedAt: now},
	}
}
