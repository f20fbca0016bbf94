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

// Users is the operator account repository.
type Users struct {
	*Repo[models.User]
}

// NewUsers creates the user repository.
func NewUsers(st *store.Store, gw gateway.Gateway, mon *connectivity.Monitor, kick func()) *Users {
	r := newRepo[models.User](models.EntityUser, st, gw, mon, kick)
	r.validate = validateUser
	r.bootstrap = defaultUsers
	return &Users{Repo: r}
}

func validateUser(action models.SyncAction, u models.User) error {
	if u.ID == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if action == models.ActionDelete {
		return nil
	}
	if strings.TrimSpace(u.Name) == "" {
		return fmt.Errorf("%w: user name is required", ErrValidation)
	}
	return nil
}

// Add creates a user, stamping timestamps.
func (r *Users) Add(u models.User) error {
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	return r.Write(models.ActionCreate, u)
}
