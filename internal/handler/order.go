package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/order"
)

func encodeOrder(e *jx.Encoder, o order.Order) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", o.ID)
		strField(e, "customer_id", o.CustomerID)
		strField(e, "status", string(o.Status))
		moneyField(e, "total_amount", o.Total)
		timeField(e, "order_date", o.OrderDate)
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						strField(e, "id", it.ID)
						strField(e, "order_id", it.OrderID)
						strField(e, "product_id", it.ProductID)
						intField(e, "quantity", it.Quantity)
						moneyField(e, "price_at_order", it.PriceAtOrder)
						moneyField(e, "subtotal", it.Subtotal())
					})
				}
			})
		})
		e.Field("customer_info", func(e *jx.Encoder) {
			if o.Customer == nil {
				e.Null()
				return
			}
			e.Obj(func(e *jx.Encoder) {
				strField(e, "name", o.Customer.Name)
				optStrField(e, "phone", o.Customer.Phone)
				optStrField(e, "address", o.Customer.Address)
			})
		})
	})
}

func writeOrder(w http.ResponseWriter, status int, o *order.Order) {
	writeJSON(w, status, func(e *jx.Encoder) { encodeOrder(e, *o) })
}

func writeOrders(w http.ResponseWriter, orders []order.Order) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, o := range orders {
				encodeOrder(e, o)
			}
		})
	})
}

// writeDraftResult answers the draft mutations with {"success":true,"order":...}.
// A nil order means the draft was removed.
func writeDraftResult(w http.ResponseWriter, o *order.Order) {
	writeObject(w, http.StatusOK, func(e *jx.Encoder) {
		boolField(e, "success", true)
		e.Field("order", func(e *jx.Encoder) {
			if o == nil {
				e.Null()
				return
			}
			encodeOrder(e, *o)
		})
	})
}

type lineRequest struct {
	ProductID string
	Quantity  int
	hasQty    bool
}

func (req *lineRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "product_id":
			req.ProductID, err = decodeID(d)
		case "quantity":
			req.Quantity, err = d.Int()
			req.hasQty = true
		default:
			err = d.Skip()
		}
		return err
	})
}

func (req *lineRequest) validate(needQty bool) error {
	if req.ProductID == "" {
		return apperr.Invalid("product_id", "is required")
	}
	if needQty && !req.hasQty {
		return apperr.Invalid("quantity", "is required")
	}
	return nil
}

type placeOrderRequest struct {
	CustomerID string
	Items      []lineRequest
}

func (req *placeOrderRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "customer_id":
			id, err := decodeID(d)
			req.CustomerID = id
			return err
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				var line lineRequest
				if err := line.Decode(d); err != nil {
					return err
				}
				req.Items = append(req.Items, line)
				return nil
			})
		default:
			return d.Skip()
		}
	})
}

func (req *placeOrderRequest) toDomain() (order.PlaceOrderRequest, error) {
	if req.CustomerID == "" {
		return order.PlaceOrderRequest{}, apperr.Invalid("customer_id", "is required")
	}
	out := order.PlaceOrderRequest{CustomerID: req.CustomerID}
	for i := range req.Items {
		if err := req.Items[i].validate(true); err != nil {
			return order.PlaceOrderRequest{}, err
		}
		out.Items = append(out.Items, order.LineRequest{
			ProductID: req.Items[i].ProductID,
			Quantity:  req.Items[i].Quantity,
		})
	}
	return out, nil
}

type statusRequest struct {
	Status string
}

func (req *statusRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "status" {
			return d.Skip()
		}
		s, err := decodeStr(d)
		req.Status = s
		return err
	})
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var req lineRequest
	if err := h.readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.validate(true); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Orders.AddItem(r.Context(), principal(r).AccountID, req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeDraftResult(w, o)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	var req lineRequest
	if err := h.readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.validate(false); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Orders.RemoveItem(r.Context(), principal(r).AccountID, req.ProductID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeDraftResult(w, o)
}

func (h *Handler) closeOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Close(r.Context(), principal(r).AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeDraftResult(w, o)
}

func (h *Handler) getOpenOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Open(r.Context(), principal(r).AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

func (h *Handler) deleteOpenOrder(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.Orders.DeleteOpen(r.Context(), principal(r).AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeObject(w, http.StatusOK, func(e *jx.Encoder) { boolField(e, "success", deleted) })
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Orders.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrders(w, orders)
}

func (h *Handler) listOwnOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Orders.ListForAccount(r.Context(), principal(r).AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrders(w, orders)
}

// getOrder answers 404 for orders of other customers so ids cannot be
// enumerated.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	o, err := h.Orders.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if p := principal(r); !p.IsAdmin {
		owned, err := h.Orders.OwnedBy(r.Context(), o, p.AccountID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !owned {
			writeError(w, r, apperr.NotFound("order", id))
			return
		}
	}
	writeOrder(w, http.StatusOK, o)
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := h.readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.toDomain()
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Orders.PlaceOrder(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusCreated, o)
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := h.readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.Orders.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
