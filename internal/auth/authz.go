// Package auth holds the authentication and authorization primitives: password
// hashing, JWT issuance, the refresh-token allow-list, and the role checks the
// handlers call before touching the store.
package auth

import "github.com/safar/go-commerce-api/internal/models"

const (
	RoleManager  = "Manager"
	RoleCustomer = "Customer"
)

// Actor is the authenticated caller as established by the token middleware.
// A zero Actor is unauthenticated.
type Actor struct {
	UserID        int64
	Username      string
	Roles         []string
	Authenticated bool
}

// Authorize reports whether the actor is authenticated and holds at least one
// of the required roles.
func Authorize(actor Actor, requiredRoles ...string) bool {
	if !actor.Authenticated {
		return false
	}
	for _, have := range actor.Roles {
		for _, want := range requiredRoles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// CanAccessOrder layers ownership on top of the role check: the order's owner
// may always read it, otherwise Manager is required.
func CanAccessOrder(actor Actor, order *models.Order) bool {
	if !actor.Authenticated {
		return false
	}
	if actor.UserID == order.UserID {
		return true
	}
	return Authorize(actor, RoleManager)
}
