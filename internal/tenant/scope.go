// Package tenant carries the caller's tenant through every data access path.
//
// A Scope can only be obtained from a non-empty tenant id, and repositories
// accept nothing else, so there is no way to issue a document or version
// query without a tenant predicate.
package tenant

import (
	"errors"
	"strings"
)

// ErrMissingTenant is returned when a Scope is requested for an empty tenant id.
var ErrMissingTenant = errors.New("tenant: missing tenant id")

// Scope identifies the tenant that owns every row a query may touch.
// The zero value is invalid and rejected by repositories.
type Scope struct {
	id string
}

// NewScope returns a Scope for tenantID.
func NewScope(tenantID string) (Scope, error) {
	id := strings.TrimSpace(tenantID)
	if id == "" {
		return Scope{}, ErrMissingTenant
	}
	return Scope{id: id}, nil
}

// MustScope is NewScope for fixed ids in tests and tooling. It panics on empty input.
func MustScope(tenantID string) Scope {
	s, err := NewScope(tenantID)
	if err != nil {
		panic(err)
	}
	return s
}

// ID returns the tenant id bound into query predicates.
func (s Scope) ID() string {
	return s.id
}

// Valid reports whether the scope was built through NewScope.
func (s Scope) Valid() bool {
	return s.id != ""
}

// Owns reports whether a row stamped with tenantID belongs to this scope.
func (s Scope) Owns(tenantID string) bool {
	return s.Valid() && s.id == tenantID
}

func (s Scope) String() string {
	return s.id
}
