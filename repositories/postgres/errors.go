package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/upb/refdata-portal/repositories"
)

const uniqueViolation = pq.ErrorCode("23505")

// mapError converts driver errors into repository sentinels
func mapError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, repositories.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %s: %w", op, pqErr.Constraint, repositories.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// nullableJSON passes JSONB as text; lib/pq encodes []byte as bytea
func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
