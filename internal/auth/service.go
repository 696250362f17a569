package auth

import (
	"errors"
	"sort"

	"adminbot/internal/models"
)

// ErrNoPrincipals is returned when the allow-set is empty; the process must not start.
var ErrNoPrincipals = errors.New("no authorized principals configured")

// Gate decides whether a principal may trigger any privileged operation.
type Gate struct {
	allowed map[models.Principal]struct{}
}

// NewGate builds a gate from the configured admin ids.
func NewGate(ids []int64) (*Gate, error) {
	allowed := make(map[models.Principal]struct{}, len(ids))
	for _, id := range ids {
		allowed[models.Principal(id)] = struct{}{}
	}
	if len(allowed) == 0 {
		return nil, ErrNoPrincipals
	}
	return &Gate{allowed: allowed}, nil
}

// Allowed reports whether p is in the allow-set.
func (g *Gate) Allowed(p models.Principal) bool {
	if g == nil {
		return false
	}
	_, ok := g.allowed[p]
	return ok
}

// Principals returns the allow-set in ascending order.
func (g *Gate) Principals() []models.Principal {
	if g == nil {
		return nil
	}
	out := make([]models.Principal, 0, len(g.allowed))
	for p := range g.allowed {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
