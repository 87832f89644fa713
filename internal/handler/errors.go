package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/predictor"
)

var (
	errUnauthorized     = errors.New("not authenticated")
	errForbidden        = errors.New("admin privileges required")
	errRouteNotFound    = errors.New("route not found")
	errMethodNotAllowed = errors.New("method not allowed")
)

func routeNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, errRouteNotFound)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, errMethodNotAllowed)
}

// writeError maps err to a status code and writes
// {"code":...,"message":...,"details":{...}}.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message, details := classify(err)

	lg := zctx.From(r.Context())
	switch {
	case status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable:
		lg.Error("Request failed", zap.Error(err))
	case status == http.StatusServiceUnavailable:
		lg.Warn("Request failed, retry is safe", zap.Error(err))
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}

	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
			if details != nil {
				e.Field("details", func(e *jx.Encoder) { e.Obj(details) })
			}
		})
	})
}

func classify(err error) (status int, message string, details func(e *jx.Encoder)) {
	var (
		validation *apperr.ValidationError
		stock      *apperr.InsufficientStockError
		empty      *apperr.EmptyOrderError
		notFound   *apperr.NotFoundError
		conflict   *apperr.ConflictError
		transient  *apperr.TransientError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Error(), func(e *jx.Encoder) {
			strField(e, "field", validation.Field)
			strField(e, "reason", validation.Reason)
		}
	case errors.As(err, &stock):
		return http.StatusBadRequest, stock.Error(), func(e *jx.Encoder) {
			strField(e, "product_id", stock.ProductID)
			strField(e, "product_name", stock.Name)
			intField(e, "available", stock.Available)
			intField(e, "requested", stock.Requested)
		}
	case errors.As(err, &empty):
		return http.StatusBadRequest, empty.Error(), func(e *jx.Encoder) {
			strField(e, "order_id", empty.OrderID)
		}
	case errors.As(err, &notFound):
		return http.StatusNotFound, notFound.Error(), func(e *jx.Encoder) {
			strField(e, "entity", notFound.Entity)
			if notFound.ID != "" {
				strField(e, "id", notFound.ID)
			}
		}
	case errors.As(err, &conflict):
		return http.StatusConflict, conflict.Error(), func(e *jx.Encoder) {
			strField(e, "entity", conflict.Entity)
			if conflict.ID != "" {
				strField(e, "id", conflict.ID)
			}
		}
	case errors.As(err, &transient):
		return http.StatusServiceUnavailable, "temporarily unavailable, retry the request", nil
	case errors.Is(err, errUnauthorized),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, rootMessage(err), nil
	case errors.Is(err, errForbidden),
		errors.Is(err, auth.ErrInactive):
		return http.StatusForbidden, rootMessage(err), nil
	case errors.Is(err, errRouteNotFound):
		return http.StatusNotFound, rootMessage(err), nil
	case errors.Is(err, errMethodNotAllowed):
		return http.StatusMethodNotAllowed, rootMessage(err), nil
	case errors.Is(err, predictor.ErrNotTrained):
		return http.StatusServiceUnavailable, "prediction model is not trained", nil
	default:
		return http.StatusInternalServerError, "internal server error", nil
	}
}

// rootMessage strips wrapping context added for logs from sentinel errors.
func rootMessage(err error) string {
	for _, sentinel := range []error{
		errUnauthorized,
		errForbidden,
		errRouteNotFound,
		errMethodNotAllowed,
		auth.ErrInvalidToken,
		auth.ErrInvalidCredentials,
		auth.ErrInactive,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
