package status

import (
	"github.com/asso-tools/assobot/internal/errs"
	"github.com/asso-tools/assobot/internal/models"
)

// Catalog indexes the configured roles and resolves the singleton roles
// the precedence chain relies on.
type Catalog struct {
	roles []*models.AssoRole
	byID  map[int64]*models.AssoRole
}

// NewCatalog builds a catalog over roles
func NewCatalog(roles []*models.AssoRole) *Catalog {
	c := &Catalog{roles: roles, byID: make(map[int64]*models.AssoRole, len(roles))}
	for _, r := range roles {
		c.byID[r.ID] = r
	}
	return c
}

// Roles returns every role of the catalog
func (c *Catalog) Roles() []*models.AssoRole {
	return c.roles
}

// ByID returns the role with the given id, or nil
func (c *Catalog) ByID(id int64) *models.AssoRole {
	return c.byID[id]
}

// Subscriber returns the unique role flagged is-subscriber
func (c *Catalog) Subscriber() (*models.AssoRole, error) {
	return c.unique("is-subscriber", (*models.AssoRole).Subscriber)
}

// PastSubscriber returns the unique role flagged is-past-subscriber
func (c *Catalog) PastSubscriber() (*models.AssoRole, error) {
	return c.unique("is-past-subscriber", (*models.AssoRole).PastSubscriber)
}

// Default returns the unique baseline member role
func (c *Catalog) Default() (*models.AssoRole, error) {
	return c.unique("is-member and not subscriber/past-subscriber/manager/owner", (*models.AssoRole).IsDefault)
}

func (c *Catalog) unique(what string, match func(*models.AssoRole) bool) (*models.AssoRole, error) {
	var found *models.AssoRole
	count := 0
	for _, r := range c.roles {
		if match(r) {
			found = r
			count++
		}
	}
	if count != 1 {
		return nil, &errs.ConfigError{What: "expected exactly one role flagged " + what, Count: count}
	}
	return found, nil
}
