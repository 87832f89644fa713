package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/product"
)

type productRequest struct {
	product.Draft
	hasPrice bool
	hasStock bool
}

func (req *productRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "name":
			req.Name, err = decodeStr(d)
		case "description":
			req.Description, err = decodeStr(d)
		case "price":
			req.Price, err = decodeDecimal(d, "price")
			req.hasPrice = true
		case "stock_quantity":
			req.StockQuantity, err = d.Int()
			req.hasStock = true
		case "category":
			req.Category, err = decodeStr(d)
		case "brand":
			req.Brand, err = decodeStr(d)
		case "image_url":
			req.Image.URL, err = decodeStr(d)
		case "image_alt_text":
			req.Image.AltText, err = decodeStr(d)
		default:
			err = d.Skip()
		}
		return err
	})
}

// validate checks required fields. Updates may omit stock_quantity to leave
// the stored level untouched.
func (req *productRequest) validate(create bool) error {
	if !req.hasPrice {
		return apperr.Invalid("price", "is required")
	}
	if create && !req.hasStock {
		return apperr.Invalid("stock_quantity", "is required")
	}
	return nil
}

func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", p.ID)
		strField(e, "name", p.Name)
		optStrField(e, "description", p.Description)
		moneyField(e, "price", p.Price)
		intField(e, "stock_quantity", p.StockQuantity)
		optStrField(e, "category", p.Category)
		optStrField(e, "brand", p.Brand)
		optStrField(e, "image_url", h.imageURL(p.Image.URL))
		optStrField(e, "image_alt_text", p.Image.AltText)
		timeField(e, "created_at", p.CreatedAt)
		timeField(e, "updated_at", p.UpdatedAt)
	})
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Catalog.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, p := range products {
				h.encodeProduct(e, p)
			}
		})
	})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, *p) })
}

func (h *Handler) readProduct(w http.ResponseWriter, r *http.Request, create bool) (*productRequest, error) {
	var req productRequest
	if err := h.readJSON(w, r, &req); err != nil {
		return nil, err
	}
	if err := req.validate(create); err != nil {
		return nil, err
	}
	return &req, nil
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	req, err := h.readProduct(w, r, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Catalog.Create(r.Context(), req.Draft)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { h.encodeProduct(e, *p) })
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	req, err := h.readProduct(w, r, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Catalog.Update(r.Context(), chi.URLParam(r, "id"), product.Edit{
		Draft:    req.Draft,
		SetStock: req.hasStock,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, *p) })
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
