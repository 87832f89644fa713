package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/favorite"
)

func (h *Handler) encodeCartEntry(e *jx.Encoder, c cart.Entry) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "product_id", c.ProductID)
		intField(e, "quantity", c.Quantity)
		moneyField(e, "subtotal", c.Product.Price.Mul(decimalInt(c.Quantity)))
		timeField(e, "added_at", c.CreatedAt)
		e.Field("product", func(e *jx.Encoder) { h.encodeProduct(e, c.Product) })
	})
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Cart.List(r.Context(), principal(r).AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeObject(w, http.StatusOK, func(e *jx.Encoder) {
		boolField(e, "success", true)
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, c := range entries {
					h.encodeCartEntry(e, c)
				}
			})
		})
	})
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	var req lineRequest
	if err := h.readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.validate(false); err != nil {
		writeError(w, r, err)
		return
	}
	if !req.hasQty {
		req.Quantity = 1
	}
	if err := h.Cart.Add(r.Context(), principal(r).AccountID, req.ProductID, req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, "Item added to cart")
}

func (h *Handler) updateCart(w http.ResponseWriter, r *http.Request) {
	var req lineRequest
	if err := h.readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.validate(true); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Cart.Update(r.Context(), principal(r).AccountID, req.ProductID, req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, "Cart updated")
}

func (h *Handler) removeFromCart(w http.ResponseWriter, r *http.Request) {
	removed, err := h.Cart.Remove(r.Context(), principal(r).AccountID, chi.URLParam(r, "product_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !removed {
		writeError(w, r, cartItemNotFound(chi.URLParam(r, "product_id")))
		return
	}
	writeSuccess(w, "Item removed from cart")
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.Cart.Clear(r.Context(), principal(r).AccountID); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, "Cart cleared")
}

func (h *Handler) cartCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.Cart.Count(r.Context(), principal(r).AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeObject(w, http.StatusOK, func(e *jx.Encoder) { intField(e, "count", n) })
}

func (h *Handler) cartTotal(w http.ResponseWriter, r *http.Request) {
	total, err := h.Cart.Total(r.Context(), principal(r).AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeObject(w, http.StatusOK, func(e *jx.Encoder) { moneyField(e, "total", total) })
}

func (h *Handler) encodeFavorite(e *jx.Encoder, f favorite.Entry) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "product_id", f.ProductID)
		timeField(e, "added_at", f.CreatedAt)
		e.Field("product", func(e *jx.Encoder) { h.encodeProduct(e, f.Product) })
	})
}

func (h *Handler) listFavorites(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Favorites.List(r.Context(), principal(r).AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeObject(w, http.StatusOK, func(e *jx.Encoder) {
		boolField(e, "success", true)
		e.Field("favorites", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, f := range entries {
					h.encodeFavorite(e, f)
				}
			})
		})
	})
}

func (h *Handler) addFavorite(w http.ResponseWriter, r *http.Request) {
	added, err := h.Favorites.Add(r.Context(), principal(r).AccountID, chi.URLParam(r, "product_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !added {
		writeSuccess(w, "Product already in favorites")
		return
	}
	writeObject(w, http.StatusCreated, func(e *jx.Encoder) {
		boolField(e, "success", true)
		strField(e, "message", "Added to favorites")
	})
}

func (h *Handler) removeFavorite(w http.ResponseWriter, r *http.Request) {
	removed, err := h.Favorites.Remove(r.Context(), principal(r).AccountID, chi.URLParam(r, "product_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !removed {
		writeError(w, r, favoriteNotFound(chi.URLParam(r, "product_id")))
		return
	}
	writeSuccess(w, "Removed from favorites")
}

func (h *Handler) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	on, err := h.Favorites.Toggle(r.Context(), principal(r).AccountID, chi.URLParam(r, "product_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeObject(w, http.StatusOK, func(e *jx.Encoder) {
		boolField(e, "success", true)
		boolField(e, "is_favorite", on)
	})
}

func (h *Handler) checkFavorite(w http.ResponseWriter, r *http.Request) {
	on, err := h.Favorites.Check(r.Context(), principal(r).AccountID, chi.URLParam(r, "product_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeObject(w, http.StatusOK, func(e *jx.Encoder) { boolField(e, "is_favorite", on) })
}

func (h *Handler) favoriteCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.Favorites.Count(r.Context(), principal(r).AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeObject(w, http.StatusOK, func(e *jx.Encoder) { intField(e, "count", n) })
}

func (h *Handler) clearFavorites(w http.ResponseWriter, r *http.Request) {
	if err := h.Favorites.Clear(r.Context(), principal(r).AccountID); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, "Favorites cleared")
}

func decimalInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}

func cartItemNotFound(productID string) error {
	return apperr.NotFound("cart item", productID)
}

func favoriteNotFound(productID string) error {
	return apperr.NotFound("favorite", productID)
}

func writeSuccess(w http.ResponseWriter, msg string) {
	writeObject(w, http.StatusOK, func(e *jx.Encoder) {
		boolField(e, "success", true)
		strField(e, "message", msg)
	})
}
