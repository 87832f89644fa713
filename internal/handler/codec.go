package handler

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
)

// decoder is implemented by request bodies.
type decoder interface {
	Decode(d *jx.Decoder) error
}

// readJSON decodes the request body into v. Malformed or oversized bodies
// become validation errors.
func (h *Handler) readJSON(w http.ResponseWriter, r *http.Request, v decoder) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Invalid("body", "is too large")
		}
		return errors.Wrap(err, "read body")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return apperr.Invalid("body", "is required")
	}
	if err := v.Decode(jx.DecodeBytes(body)); err != nil {
		var ve *apperr.ValidationError
		if errors.As(err, &ve) {
			return ve
		}
		return apperr.Invalid("body", "is not valid JSON: "+err.Error())
	}
	return nil
}

// writeJSON writes the object produced by fn with the given status.
func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeObject writes a JSON object whose fields are produced by fn.
func writeObject(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	writeJSON(w, status, func(e *jx.Encoder) { e.Obj(fn) })
}

func strField(e *jx.Encoder, name, v string) {
	e.Field(name, func(e *jx.Encoder) { e.Str(v) })
}

// optStrField writes v, or null when v is empty.
func optStrField(e *jx.Encoder, name, v string) {
	e.Field(name, func(e *jx.Encoder) {
		if v == "" {
			e.Null()
			return
		}
		e.Str(v)
	})
}

func intField(e *jx.Encoder, name string, v int) {
	e.Field(name, func(e *jx.Encoder) { e.Int(v) })
}

func boolField(e *jx.Encoder, name string, v bool) {
	e.Field(name, func(e *jx.Encoder) { e.Bool(v) })
}

func floatField(e *jx.Encoder, name string, v float64) {
	e.Field(name, func(e *jx.Encoder) { e.Float64(v) })
}

// moneyField writes an amount rounded to cents as a JSON number.
func moneyField(e *jx.Encoder, name string, v decimal.Decimal) {
	e.Field(name, func(e *jx.Encoder) { e.Float64(v.Round(2).InexactFloat64()) })
}

func timeField(e *jx.Encoder, name string, t time.Time) {
	e.Field(name, func(e *jx.Encoder) {
		if t.IsZero() {
			e.Null()
			return
		}
		e.Str(t.UTC().Format(time.RFC3339))
	})
}

func messageBody(msg string) func(e *jx.Encoder) {
	return func(e *jx.Encoder) { strField(e, "message", msg) }
}

// decodeID reads an identifier given either as a string or a number.
func decodeID(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Number {
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	}
	return d.Str()
}

// decodeDecimal reads a number or a numeric string.
func decodeDecimal(d *jx.Decoder, field string) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = n.String()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = s
	default:
		return decimal.Decimal{}, apperr.Invalid(field, "must be a number")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, apperr.Invalid(field, "must be a number")
	}
	return v, nil
}

// decodeOptStr reads a string that may be null. Null yields nil.
func decodeOptStr(d *jx.Decoder) (*string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// decodeStr reads a string and treats null as empty.
func decodeStr(d *jx.Decoder) (string, error) {
	s, err := decodeOptStr(d)
	if err != nil || s == nil {
		return "", err
	}
	return *s, nil
}
