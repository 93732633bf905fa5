package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/furniture-orders/internal/metrics"
	"github.com/ariefcatur/furniture-orders/internal/orders"
	"github.com/ariefcatur/furniture-orders/internal/redisx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	srv   *httptest.Server
	store *orders.MemStore
	auth  *Auth
	low   *redisx.LowStockSet
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := orders.NewMemStore()
	cache := redisx.NewStatusCache(rdb)
	svc := orders.NewService(store, nil, cache, m, "order-api-test")
	auth := NewAuth("test-secret", "furniture-orders")
	low := redisx.NewLowStockSet(rdb)

	r := NewRouter(RouterConfig{Metrics: m, Gatherer: reg, Timeout: 5 * time.Second})
	(&OrdersHandler{Service: svc, Auth: auth, Cache: cache, Idem: redisx.NewIdempotency(rdb)}).Register(r)
	(&ProductsHandler{Service: svc, Auth: auth, LowStock: low}).Register(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testAPI{srv: srv, store: store, auth: auth, low: low}
}

func (a *testAPI) token(t *testing.T, user, role string) string {
	t.Helper()
	tok, err := a.auth.Issue(user, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any, headers ...string) (*http.Response, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (a *testAPI) seed(t *testing.T, p orders.Product) string {
	t.Helper()
	if p.Price.IsZero() {
		p.Price = decimal.NewFromInt(1200)
	}
	require.NoError(t, a.store.CreateProduct(context.Background(), &p))
	return p.ID
}

func (a *testAPI) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := a.store.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func orderBody(method string, items ...map[string]any) map[string]any {
	return map[string]any{
		"items":   items,
		"payment": map[string]any{"method": method},
		"shippingAddress": map[string]any{
			"fullName": "Ravi K", "phone": "9876543210", "addressLine1": "4 MG Road", "city": "Bengaluru", "pincode": "560001",
		},
		"agreedToTerms": true,
	}
}

func TestCreateOrderFlow(t *testing.T) {
	api := newTestAPI(t)
	pid := api.seed(t, orders.Product{Name: "Oak Table", Stock: 10})
	user := api.token(t, "u1", RoleUser)
	admin := api.token(t, "a1", RoleAdmin)

	resp, body := api.do(t, http.MethodPost, "/api/orders", user, orderBody("cod", map[string]any{"product": pid, "quantity": 3}))
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Regexp(t, `^DSF\d{4}\d{5}$`, body["orderNumber"])
	assert.Equal(t, "3600", body["total"])
	id := body["id"].(string)
	assert.Equal(t, 7, api.stock(t, pid))

	resp, body = api.do(t, http.MethodGet, "/api/orders/"+id, user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending", body["orderStatus"])

	resp, _ = api.do(t, http.MethodGet, "/api/orders/"+id, api.token(t, "u2", RoleUser), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPut, "/api/orders/"+id+"/status", user, map[string]any{"orderStatus": "cancelled"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = api.do(t, http.MethodPut, "/api/orders/"+id+"/status", admin, map[string]any{"orderStatus": "cancelled", "notes": "out of area"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, 10, api.stock(t, pid))

	resp, body = api.do(t, http.MethodGet, "/api/orders/"+id+"/track", user, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hit", resp.Header.Get("X-Cache"))
	assert.Equal(t, "cancelled", body["orderStatus"])

	resp, body = api.do(t, http.MethodPut, "/api/orders/"+id+"/status", admin, map[string]any{"orderStatus": "processing"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, 7, api.stock(t, pid))

	resp, body = api.do(t, http.MethodPut, "/api/orders/"+id+"/status", admin, map[string]any{"orderStatus": "delivered"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "delivered", body["orderStatus"])
	assert.Equal(t, 7, api.stock(t, pid))

	resp, body = api.do(t, http.MethodPut, "/api/orders/"+id+"/status", admin, map[string]any{"orderStatus": "lost"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, body["message"])
}

func TestCreateOrderErrors(t *testing.T) {
	api := newTestAPI(t)
	pid := api.seed(t, orders.Product{Name: "Sofa", Stock: 2})
	user := api.token(t, "u1", RoleUser)

	resp, body := api.do(t, http.MethodPost, "/api/orders", "", orderBody("cod", map[string]any{"product": pid, "quantity": 1}))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, body["message"])

	resp, _ = api.do(t, http.MethodPost, "/api/orders", "garbage", orderBody("cod", map[string]any{"product": pid, "quantity": 1}))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = api.do(t, http.MethodPost, "/api/orders", user, orderBody("cod",
		map[string]any{"product": pid, "quantity": 1, "fulfillmentType": "made_to_order"}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["message"], "online payment required")

	resp, body = api.do(t, http.MethodPost, "/api/orders", user, orderBody("online", map[string]any{"product": pid, "quantity": 3}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["message"], "Insufficient stock for Sofa")

	resp, body = api.do(t, http.MethodPost, "/api/orders", user, orderBody("online", map[string]any{"product": "ghost", "quantity": 1}))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Product not found: ghost", body["message"])

	assert.Equal(t, 2, api.stock(t, pid))

	req, err := http.NewRequest(http.MethodPost, api.srv.URL+"/api/orders", strings.NewReader("{"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+user)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestCreateOrderIdempotencyKey(t *testing.T) {
	api := newTestAPI(t)
	pid := api.seed(t, orders.Product{Name: "Chair", Stock: 5})
	user := api.token(t, "u1", RoleUser)
	body := orderBody("cod", map[string]any{"product": pid, "quantity": 2})

	resp, first := api.do(t, http.MethodPost, "/api/orders", user, body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, second := api.do(t, http.MethodPost, "/api/orders", user, body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("Idempotent-Replayed"))
	assert.Equal(t, first["id"], second["id"])
	assert.Equal(t, 3, api.stock(t, pid))

	// a failed request frees the key
	bad := orderBody("cod", map[string]any{"product": pid, "quantity": 9})
	resp, _ = api.do(t, http.MethodPost, "/api/orders", user, bad, "Idempotency-Key", "k-2")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = api.do(t, http.MethodPost, "/api/orders", user, body, "Idempotency-Key", "k-2")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 1, api.stock(t, pid))
}

func TestListAndDeleteOrders(t *testing.T) {
	api := newTestAPI(t)
	pid := api.seed(t, orders.Product{Name: "Lamp", Stock: 20})
	u1 := api.token(t, "u1", RoleUser)
	u2 := api.token(t, "u2", RoleUser)
	admin := api.token(t, "a1", RoleAdmin)

	var ids []string
	for _, tok := range []string{u1, u1, u2} {
		resp, body := api.do(t, http.MethodPost, "/api/orders", tok, orderBody("online", map[string]any{"product": pid, "quantity": 1}))
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		ids = append(ids, body["id"].(string))
	}

	resp, body := api.do(t, http.MethodGet, "/api/orders/my", u1, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["total"])

	resp, _ = api.do(t, http.MethodGet, "/api/orders", u1, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = api.do(t, http.MethodGet, "/api/orders?limit=2", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, body["total"])
	assert.EqualValues(t, 2, body["pages"])

	resp, _ = api.do(t, http.MethodDelete, "/api/orders/"+ids[0], admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 17, api.stock(t, pid))

	resp, _ = api.do(t, http.MethodGet, "/api/orders/"+ids[0], u1, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = api.do(t, http.MethodGet, "/api/orders/"+ids[0]+"/track", u1, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = api.do(t, http.MethodGet, "/api/orders?includeDeleted=true", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, body["total"])

	resp, body = api.do(t, http.MethodPut, "/api/orders/"+ids[1]+"/payment", admin, map[string]any{"status": "paid", "transactionId": "txn_9"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "paid", body["payment"].(map[string]any)["status"])
}

func TestProductEndpoints(t *testing.T) {
	api := newTestAPI(t)
	admin := api.token(t, "a1", RoleAdmin)
	user := api.token(t, "u1", RoleUser)

	create := map[string]any{"name": "Bookshelf", "price": "5499", "colors": []map[string]any{{"name": "White", "stock": 2}, {"name": "Teak", "stock": 9}}}
	resp, _ := api.do(t, http.MethodPost, "/api/products", user, create)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := api.do(t, http.MethodPost, "/api/products", admin, create)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.EqualValues(t, 11, body["stock"])
	assert.Equal(t, "In Stock", body["status"])
	id := body["id"].(string)

	resp, body = api.do(t, http.MethodGet, "/api/products/"+id, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bookshelf", body["name"])

	resp, body = api.do(t, http.MethodGet, "/api/products?q=book", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["total"])

	resp, _ = api.do(t, http.MethodGet, "/api/products/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	update := map[string]any{"name": "Bookshelf", "price": "4999", "stock": 3}
	resp, body = api.do(t, http.MethodPut, "/api/products/"+id, admin, update)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "Low Stock", body["status"])

	_, err := api.low.Flag(context.Background(), id)
	require.NoError(t, err)
	resp, body = api.do(t, http.MethodGet, "/api/products/low-stock", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := body["products"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].(map[string]any)["id"])
}

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t)

	resp, err := http.Get(api.srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(api.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	assert.Contains(t, buf.String(), `http_request_duration_seconds_count{method="GET",route="/healthz",status="200"} 1`)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(&orders.StockError{}))
	assert.Equal(t, http.StatusBadRequest, statusFor(&orders.TransitionError{}))
	assert.Equal(t, http.StatusNotFound, statusFor(&orders.ProductMissingError{}))
	assert.Equal(t, http.StatusConflict, statusFor(orders.ErrConflict))
	assert.Equal(t, http.StatusConflict, statusFor(orders.ErrDuplicateSKU))
	assert.Equal(t, http.StatusForbidden, statusFor(orders.ErrForbidden))
	assert.Equal(t, http.StatusInternalServerError, statusFor(context.DeadlineExceeded))
}

func TestAuthRejectsForeignSignature(t *testing.T) {
	other := NewAuth("other-secret", "furniture-orders")
	tok, err := other.Issue("u1", RoleAdmin, time.Hour)
	require.NoError(t, err)

	_, err = NewAuth("test-secret", "furniture-orders").Parse(tok)
	assert.Error(t, err)

	expired, err := NewAuth("test-secret", "furniture-orders").Issue("u1", RoleUser, -time.Minute)
	require.NoError(t, err)
	_, err = NewAuth("test-secret", "furniture-orders").Parse(expired)
	assert.Error(t, err)
}

func TestIdempotencyKeyReleasedAfterRequestTimeout(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	idem := redisx.NewIdempotency(rdb)

	reqCtx, cancel := context.WithCancel(context.Background())
	_, claimed, err := idem.Claim(reqCtx, "u1", "k-timeout")
	require.NoError(t, err)
	require.True(t, claimed)
	cancel()

	sctx, scancel := settleCtx(reqCtx)
	defer scancel()
	require.NoError(t, sctx.Err())
	require.NoError(t, idem.Release(sctx, "u1", "k-timeout"))

	_, claimed, err = idem.Claim(context.Background(), "u1", "k-timeout")
	require.NoError(t, err)
	assert.True(t, claimed)
}
