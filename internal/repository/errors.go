package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/noah-isme/docvault-api/internal/tenant"
)

// ErrVersionConflict signals that another writer claimed the same version number.
var ErrVersionConflict = errors.New("document version number already taken")

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// requireScope fails closed: an unscoped query behaves as if nothing matched.
func requireScope(scope tenant.Scope) error {
	if !scope.Valid() {
		return sql.ErrNoRows
	}
	return nil
}
