package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/customer"
)

func encodeCustomer(e *jx.Encoder, c customer.Customer) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", c.ID)
		strField(e, "user_id", c.AccountID)
		strField(e, "first_name", c.FirstName)
		strField(e, "last_name", c.LastName)
		optStrField(e, "email", c.Email)
		optStrField(e, "phone", c.Phone)
		optStrField(e, "address", c.Address)
		timeField(e, "created_at", c.CreatedAt)
	})
}

func writeCustomer(w http.ResponseWriter, status int, c *customer.Customer) {
	writeJSON(w, status, func(e *jx.Encoder) { encodeCustomer(e, *c) })
}

type profileRequest struct {
	customer.Profile
}

func (req *profileRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "first_name":
			req.FirstName, err = decodeStr(d)
		case "last_name":
			req.LastName, err = decodeStr(d)
		case "email":
			req.Email, err = decodeStr(d)
		case "phone":
			req.Phone, err = decodeStr(d)
		case "address":
			req.Address, err = decodeStr(d)
		default:
			err = d.Skip()
		}
		return err
	})
}

type shippingRequest struct {
	customer.ShippingUpdate
}

func (req *shippingRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "first_name":
			req.FirstName, err = decodeOptStr(d)
		case "last_name":
			req.LastName, err = decodeOptStr(d)
		case "phone":
			req.Phone, err = decodeOptStr(d)
		case "address":
			req.Address, err = decodeOptStr(d)
		default:
			err = d.Skip()
		}
		return err
	})
}

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.Customers.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, c := range customers {
				encodeCustomer(e, c)
			}
		})
	})
}

// createCustomer registers an account with its profile on behalf of a user.
func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	_, c, err := h.Customers.Register(r.Context(), req.registration())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCustomer(w, http.StatusCreated, c)
}

func (h *Handler) getOwnCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.Customers.GetByAccount(r.Context(), principal(r).AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCustomer(w, http.StatusOK, c)
}

func (h *Handler) updateShipping(w http.ResponseWriter, r *http.Request) {
	var req shippingRequest
	if err := h.readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Customers.UpdateShipping(r.Context(), principal(r).AccountID, req.ShippingUpdate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCustomer(w, http.StatusOK, c)
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.Customers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCustomer(w, http.StatusOK, c)
}

func (h *Handler) updateCustomer(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := h.readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Customers.Update(r.Context(), chi.URLParam(r, "id"), req.Profile)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCustomer(w, http.StatusOK, c)
}

func (h *Handler) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := h.Customers.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
