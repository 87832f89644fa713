//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestListProducts(t *testing.T) {
	products := expect[[]productResponse](t, doGet(t, apiPrefix+"/products"), http.StatusOK)
	if len(products) < seededCount {
		t.Fatalf("expected at least %d products, got %d", seededCount, len(products))
	}
}

func TestGetProduct(t *testing.T) {
	p := getProduct(t, "ms-wl-pro")
	if p.Name != "Wireless Mouse Pro" {
		t.Errorf("name: got %q, want %q", p.Name, "Wireless Mouse Pro")
	}
	if p.Price != 49.5 {
		t.Errorf("price: got %v, want 49.5", p.Price)
	}
	if p.Category == nil || *p.Category != "Peripherals" {
		t.Errorf("category: got %v, want Peripherals", p.Category)
	}
	if p.ImageURL == nil || *p.ImageURL == "" {
		t.Error("image_url is empty")
	}
}

func TestGetProduct_NotFound(t *testing.T) {
	body := expect[errorResponse](t, doGet(t, apiPrefix+"/products/does-not-exist"), http.StatusNotFound)
	if body.Code != http.StatusNotFound {
		t.Errorf("code: got %d, want 404", body.Code)
	}
}

func TestCreateProduct_RequiresAdmin(t *testing.T) {
	token, _ := newUser(t)
	resp := doRequest(t, http.MethodPost, apiPrefix+"/products", token, map[string]any{
		"name": "Nope", "price": 1, "stock_quantity": 1,
	})
	expect[errorResponse](t, resp, http.StatusForbidden)

	resp = doRequest(t, http.MethodPost, apiPrefix+"/products", "", map[string]any{
		"name": "Nope", "price": 1, "stock_quantity": 1,
	})
	expect[errorResponse](t, resp, http.StatusUnauthorized)
}

func TestProductAdminLifecycle(t *testing.T) {
	admin := adminToken(t)
	p := newProduct(t, "12.345", 3)
	if p.Price != 12.35 {
		t.Errorf("price: got %v, want 12.35", p.Price)
	}

	resp := doRequest(t, http.MethodPut, apiPrefix+"/products/"+p.ID, admin, map[string]any{
		"name": "Renamed", "price": "10.00", "stock_quantity": 7,
	})
	updated := expect[productResponse](t, resp, http.StatusOK)
	if updated.Name != "Renamed" || updated.StockQuantity != 7 {
		t.Errorf("update not applied: %+v", updated)
	}

	resp = doRequest(t, http.MethodPut, apiPrefix+"/products/"+p.ID, admin, map[string]any{
		"name": "Renamed", "price": "-1", "stock_quantity": 7,
	})
	body := expect[errorResponse](t, resp, http.StatusBadRequest)
	if body.Details["field"] != "price" {
		t.Errorf("details.field: got %v, want price", body.Details["field"])
	}

	resp = doRequest(t, http.MethodDelete, apiPrefix+"/products/"+p.ID, admin, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.StatusCode)
	}
	expect[errorResponse](t, doGet(t, apiPrefix+"/products/"+p.ID), http.StatusNotFound)
}
