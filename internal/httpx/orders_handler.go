package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/furniture-orders/internal/logging"
	"github.com/ariefcatur/furniture-orders/internal/orders"
	"github.com/ariefcatur/furniture-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type OrdersHandler struct {
	Service *orders.Service
	Auth    *Auth
	Cache   *redisx.StatusCache // optional
	Idem    *redisx.Idempotency // optional
	Timeout time.Duration
}

type CreateOrderReq struct {
	Items           []orders.ItemInput   `json:"items"`
	Payment         orders.PaymentInput  `json:"payment"`
	PaymentMethod   orders.PaymentMethod `json:"paymentMethod"`
	ShippingAddress orders.Address       `json:"shippingAddress"`
	Pricing         orders.PricingInput  `json:"pricing"`
	Notes           string               `json:"notes"`
	AgreedToTerms   bool                 `json:"agreedToTerms"`
}

type UpdateStatusReq struct {
	OrderStatus orders.Status `json:"orderStatus"`
	Notes       string        `json:"notes"`
}

type UpdatePaymentReq struct {
	Status        orders.PaymentStatus `json:"status"`
	TransactionID string               `json:"transactionId"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(h.Auth.RequireAuth)
		r.Post("/", h.createOrder)
		r.Get("/my", h.myOrders)
		r.Get("/{id}", h.getOrder)
		r.Get("/{id}/track", h.trackOrder)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/", h.listOrders)
			r.Put("/{id}/status", h.updateStatus)
			r.Put("/{id}/payment", h.updatePayment)
			r.Delete("/{id}", h.deleteOrder)
		})
	})
}

func (h *OrdersHandler) ctx(r *http.Request) (context.Context, context.CancelFunc) {
	d := h.Timeout
	if d <= 0 {
		d = 5 * time.Second
	}
	return context.WithTimeout(r.Context(), d)
}

const idemSettleTimeout = 2 * time.Second

// settleCtx outlives the request deadline so a timed-out create can still release its key.
func settleCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), idemSettleTimeout)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	who, _ := PrincipalFrom(r.Context())
	var req CreateOrderReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Payment.Method == "" {
		req.Payment.Method = req.PaymentMethod
	}

	ctx, cancel := h.ctx(r)
	defer cancel()

	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.Idem != nil {
		stored, claimed, err := h.Idem.Claim(ctx, who.UserID, idemKey)
		switch {
		case errors.Is(err, redisx.ErrInFlight):
			writeError(w, http.StatusConflict, "A request with this Idempotency-Key is still in progress")
			return
		case err != nil:
			// Redis is an optimisation here; carry on without it
			logging.FromContext(ctx).Warn("idempotency_unavailable", zap.Error(err))
			idemKey = ""
		case !claimed:
			w.Header().Set("Idempotent-Replayed", "true")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write(stored)
			return
		}
	} else {
		idemKey = ""
	}

	res, err := h.Service.CreateOrder(ctx, orders.CreateOrderInput{
		UserID:          who.UserID,
		TraceID:         middleware.GetReqID(r.Context()),
		Items:           req.Items,
		Payment:         req.Payment,
		ShippingAddress: req.ShippingAddress,
		Pricing:         req.Pricing,
		Notes:           req.Notes,
		AgreedToTerms:   req.AgreedToTerms,
	})
	if err != nil {
		if idemKey != "" {
			sctx, scancel := settleCtx(ctx)
			if rerr := h.Idem.Release(sctx, who.UserID, idemKey); rerr != nil {
				logging.FromContext(ctx).Warn("idempotency_release_failed", zap.Error(rerr))
			}
			scancel()
		}
		writeDomainError(w, r, err)
		return
	}

	body, err := json.Marshal(res)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if idemKey != "" {
		sctx, scancel := settleCtx(ctx)
		if err := h.Idem.Complete(sctx, who.UserID, idemKey, body); err != nil {
			logging.FromContext(ctx).Warn("idempotency_store_failed", zap.Error(err))
		}
		scancel()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

func (h *OrdersHandler) myOrders(w http.ResponseWriter, r *http.Request) {
	who, _ := PrincipalFrom(r.Context())
	ctx, cancel := h.ctx(r)
	defer cancel()

	page, err := h.Service.ListOrders(ctx, orders.Principal{UserID: who.UserID}, orderFilter(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	who, _ := PrincipalFrom(r.Context())
	ctx, cancel := h.ctx(r)
	defer cancel()

	f := orderFilter(r)
	f.UserID = r.URL.Query().Get("user")
	f.IncludeDeleted = r.URL.Query().Get("includeDeleted") == "true"
	page, err := h.Service.ListOrders(ctx, who, f)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func orderFilter(r *http.Request) orders.OrderFilter {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return orders.OrderFilter{
		Status:        orders.Status(q.Get("status")),
		PaymentMethod: orders.PaymentMethod(q.Get("paymentMethod")),
		Sort:          q.Get("sort"),
		Page:          page,
		Limit:         limit,
	}
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	who, _ := PrincipalFrom(r.Context())
	ctx, cancel := h.ctx(r)
	defer cancel()

	o, err := h.Service.GetOrder(ctx, who, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// trackOrder answers from the status cache and falls back to the store.
func (h *OrdersHandler) trackOrder(w http.ResponseWriter, r *http.Request) {
	who, _ := PrincipalFrom(r.Context())
	ref := chi.URLParam(r, "id")
	ctx, cancel := h.ctx(r)
	defer cancel()

	if h.Cache != nil {
		ts, ok, err := h.Cache.GetStatus(ctx, ref)
		if err == nil && ok && (who.Admin || (ts.UserID == who.UserID && !ts.Deleted)) {
			w.Header().Set("X-Cache", "hit")
			writeJSON(w, http.StatusOK, ts)
			return
		}
	}

	o, err := h.Service.GetOrder(ctx, who, ref)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if h.Cache != nil {
		if err := h.Cache.SetStatus(ctx, o); err != nil {
			logging.FromContext(ctx).Warn("order_status_cache_failed", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, redisx.TrackedStatus{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		Status:      o.Status,
		Deleted:     o.IsDeleted,
		UpdatedAt:   o.UpdatedAt,
	})
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.OrderStatus == "" {
		writeError(w, http.StatusBadRequest, "orderStatus is required")
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	o, err := h.Service.UpdateStatus(ctx, chi.URLParam(r, "id"), req.OrderStatus, req.Notes, middleware.GetReqID(r.Context()))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) updatePayment(w http.ResponseWriter, r *http.Request) {
	var req UpdatePaymentReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	o, err := h.Service.UpdatePayment(ctx, chi.URLParam(r, "id"), req.Status, req.TransactionID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	if err := h.Service.DeleteOrder(ctx, chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Order deleted"})
}
