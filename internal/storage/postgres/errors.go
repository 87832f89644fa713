package postgres

import (
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xenking/storefront/internal/domain/apperr"
)

// SQLSTATE codes the repositories react to.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeSerialization       = "40001"
	codeDeadlock            = "40P01"
	codeLockNotAvailable    = "55P03"
	codeQueryCanceled       = "57014"
)

// pgError returns the server error wrapped in err, if any.
func pgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func hasCode(err error, code string) bool {
	pgErr, ok := pgError(err)
	return ok && pgErr.Code == code
}

// classify turns retryable database failures into apperr.TransientError and
// wraps everything else with op.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if pgErr, ok := pgError(err); ok {
		switch pgErr.Code {
		case codeSerialization, codeDeadlock, codeLockNotAvailable, codeQueryCanceled:
			return &apperr.TransientError{Op: op, Err: err}
		}
		// Class 08: connection exception.
		if len(pgErr.Code) == 5 && pgErr.Code[:2] == "08" {
			return &apperr.TransientError{Op: op, Err: err}
		}
		return errors.Wrap(err, op)
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return &apperr.TransientError{Op: op, Err: err}
	}
	return errors.Wrap(err, op)
}
