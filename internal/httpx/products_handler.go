package httpx

import (
	"net/http"
	"strconv"

	"github.com/ariefcatur/furniture-orders/internal/orders"
	"github.com/ariefcatur/furniture-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
)

type ProductsHandler struct {
	Service  *orders.Service
	Auth     *Auth
	LowStock *redisx.LowStockSet // optional
}

func (h *ProductsHandler) Register(r chi.Router) {
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Group(func(r chi.Router) {
			r.Use(h.Auth.RequireAuth, RequireAdmin)
			r.Get("/low-stock", h.lowStock)
			r.Post("/", h.createProduct)
			r.Put("/{id}", h.updateProduct)
		})
		r.Get("/{id}", h.getProduct)
	})
}

func (h *ProductsHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	res, err := h.Service.ListProducts(r.Context(), orders.ProductFilter{
		Query:  q.Get("q"),
		Status: orders.StockStatus(q.Get("status")),
		Sort:   q.Get("sort"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ProductsHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var in orders.ProductInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	p, err := h.Service.CreateProduct(r.Context(), in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProductsHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var in orders.ProductInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	p, err := h.Service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// lowStock lists the products the stock watcher has flagged.
func (h *ProductsHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	if h.LowStock == nil {
		writeJSON(w, http.StatusOK, map[string]any{"products": []orders.Product{}})
		return
	}
	ids, err := h.LowStock.Members(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	ps, err := h.Service.ProductsIn(r.Context(), ids)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": ps})
}
