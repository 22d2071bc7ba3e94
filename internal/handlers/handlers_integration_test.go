package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"storefront/internal/cache"
	"storefront/internal/database"
	"storefront/internal/handlers"
	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/repositories"
	"storefront/internal/services"
)

const (
	jwtSecret  = "test_jwt_secret"
	adminKey   = "test_admin_key"
	gatewayKey = "test_gateway_key"
)

type testServer struct {
	app *fiber.App
	db  *gorm.DB
}

// setupApp sets up a Fiber app for testing with in-memory SQLite and all handlers/services.
func setupApp(t *testing.T) *testServer {
	t.Helper()
	db, err := database.OpenMemory(uuid.NewString())
	require.NoError(t, err)

	store := repositories.NewStore(db)
	calc := pricing.NewCalculator(pricing.DefaultOptions())

	productService := services.NewProductService(store, nil)
	cartService := services.NewCartService(store, cache.NopCartCache{}, calc, services.CartConfig{}, nil)
	checkoutService := services.NewCheckoutService(store, nil, calc, nil, services.CheckoutConfig{}, nil)
	orderService := services.NewOrderService(store, nil, nil)
	paymentService := services.NewPaymentService(store, map[models.PaymentMethod]services.PaymentGateway{
		models.PaymentMethodStub: services.StubGateway{},
	}, nil, nil)
	authService := services.NewAuthService(store, jwtSecret, nil)

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler(nil)})
	apiV1 := app.Group("/api/v1")

	protect := middleware.AuthRequired(authService, nil)
	owner := []fiber.Handler{middleware.OptionalAuth(authService, nil), middleware.CartOwner()}

	handlers.NewAuthHandler(authService, nil).RegisterRoutes(apiV1)
	handlers.NewProductHandler(productService, nil).RegisterRoutes(apiV1, protect)
	handlers.NewCartHandler(cartService, nil).RegisterRoutes(apiV1, protect, owner...)
	handlers.NewCheckoutHandler(checkoutService, nil).RegisterRoutes(apiV1, protect, owner...)
	handlers.NewOrderHandler(orderService, paymentService, nil).RegisterRoutes(apiV1, protect)
	handlers.NewAdminHandler(orderService, nil).RegisterRoutes(apiV1, middleware.APIKeyRequired(adminKey, nil))
	handlers.NewPaymentHandler(paymentService, nil).RegisterRoutes(apiV1, middleware.APIKeyRequired(gatewayKey, nil))

	return &testServer{app: app, db: db}
}

type request struct {
	method  string
	path    string
	token   string
	session string
	apiKey  string
	body    interface{}
}

// do sends r and returns the response with its body read.
func (s *testServer) do(t *testing.T, r request) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(r.method, r.path, reader)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if r.session != "" {
		req.Header.Set(middleware.SessionHeader, r.session)
	}
	if r.apiKey != "" {
		req.Header.Set(middleware.APIKeyHeader, r.apiKey)
	}

	resp, err := s.app.Test(req, -1) // -1 for no timeout
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func (s *testServer) seedProduct(t *testing.T, name, price string, stock int) *models.Product {
	t.Helper()
	product := &models.Product{
		SKU:           "SKU-" + uuid.NewString()[:8],
		Name:          name,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		TrackStock:    true,
	}
	require.NoError(t, s.db.Create(product).Error)
	return product
}

func (s *testServer) stock(t *testing.T, id uint) int {
	t.Helper()
	var product models.Product
	require.NoError(t, s.db.First(&product, id).Error)
	return product.StockQuantity
}

// login registers a user and returns its access token.
func (s *testServer) login(t *testing.T, username, email string) string {
	t.Helper()
	resp, _ := s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/register", body: map[string]string{
		"username": username,
		"email":    email,
		"password": "password123",
	}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]string{
		"username": username,
		"password": "password123",
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var loginResp map[string]string
	require.NoError(t, json.Unmarshal(body, &loginResp))
	require.NotEmpty(t, loginResp["token"])
	return loginResp["token"]
}

func decode(t *testing.T, body []byte, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(body, v), string(body))
}

func requireMoney(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(expected).Equal(actual), "expected %s, got %s", expected, actual.String())
}

func idPath(prefix string, id uint, suffix string) string {
	return prefix + "/" + strconv.FormatUint(uint64(id), 10) + suffix
}

var shippingAddress = map[string]string{
	"line1":       "1 Analytical Way",
	"city":        "London",
	"postal_code": "N1 9GU",
	"country":     "GB",
}

func TestAuthRegisterAndLogin(t *testing.T) {
	s := setupApp(t)

	userToRegister := map[string]string{
		"username": "testuser",
		"email":    "test@example.com",
		"password": "password123",
	}
	resp, body := s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/register", body: userToRegister})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var registerResp map[string]interface{}
	decode(t, body, &registerResp)
	assert.Equal(t, "User registered successfully", registerResp["message"])
	user := registerResp["user"].(map[string]interface{})
	assert.NotContains(t, user, "password")

	// Duplicate registration
	resp, _ = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/register", body: userToRegister})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/register", body: map[string]string{
		"username": "x",
		"email":    "not-an-email",
		"password": "1",
	}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var validationResp struct {
		Errors map[string]string `json:"errors"`
	}
	decode(t, body, &validationResp)
	assert.Contains(t, validationResp.Errors, "username")
	assert.Contains(t, validationResp.Errors, "email")
	assert.Contains(t, validationResp.Errors, "password")

	resp, body = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]string{
		"username": "testuser",
		"password": "password123",
	}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var loginResp map[string]string
	decode(t, body, &loginResp)
	assert.NotEmpty(t, loginResp["token"])

	resp, _ = s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/login", body: map[string]string{
		"username": "testuser",
		"password": "wrongpassword",
	}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProductEndpoints(t *testing.T) {
	s := setupApp(t)
	token := s.login(t, "authuser", "auth@example.com")
	s.seedProduct(t, "Test Laptop", "1000.00", 5)

	resp, body := s.do(t, request{method: http.MethodPost, path: "/api/v1/products", token: token, body: map[string]interface{}{
		"sku":                "PHN-1",
		"name":               "Smartphone",
		"description":        "Latest model smartphone",
		"price":              "799.99",
		"stock_quantity":     50,
		"min_stock_quantity": 5,
		"track_stock":        true,
	}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var created models.Product
	decode(t, body, &created)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "Smartphone", created.Name)

	resp, body = s.do(t, request{method: http.MethodGet, path: "/api/v1/products"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var products []models.Product
	decode(t, body, &products)
	assert.Len(t, products, 2)

	resp, body = s.do(t, request{method: http.MethodPut, path: idPath("/api/v1/products", created.ID, ""), token: token, body: map[string]interface{}{
		"sku":                "PHN-1",
		"name":               "Smartphone Pro",
		"price":              "899.99",
		"stock_quantity":     4,
		"min_stock_quantity": 5,
		"track_stock":        true,
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var updated models.Product
	decode(t, body, &updated)
	assert.Equal(t, "Smartphone Pro", updated.Name)
	requireMoney(t, "899.99", updated.Price)

	resp, body = s.do(t, request{method: http.MethodGet, path: "/api/v1/products/low-stock", token: token})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, body, &products)
	require.Len(t, products, 1)
	assert.Equal(t, created.ID, products[0].ID)

	resp, body = s.do(t, request{method: http.MethodPost, path: idPath("/api/v1/products", created.ID, "/restock"), token: token, body: map[string]int{"quantity": 10}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, 14, s.stock(t, created.ID))

	resp, _ = s.do(t, request{method: http.MethodPost, path: idPath("/api/v1/products", created.ID, "/restock"), token: token, body: map[string]int{"quantity": 0}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, body = s.do(t, request{method: http.MethodDelete, path: idPath("/api/v1/products", created.ID, ""), token: token})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var deleteResp map[string]string
	decode(t, body, &deleteResp)
	assert.Contains(t, deleteResp["message"], "deleted successfully")

	resp, _ = s.do(t, request{method: http.MethodGet, path: idPath("/api/v1/products", created.ID, "")})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = s.do(t, request{method: http.MethodGet, path: "/api/v1/products/abc"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestProductEndpointsWithoutAuth(t *testing.T) {
	s := setupApp(t)

	resp, _ := s.do(t, request{method: http.MethodGet, path: "/api/v1/products"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(t, request{method: http.MethodPost, path: "/api/v1/products", body: map[string]interface{}{
		"sku":   "NOPE",
		"name":  "Unauthorized Product",
		"price": "100.00",
	}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.do(t, request{method: http.MethodGet, path: "/api/v1/orders"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGuestCartCheckout(t *testing.T) {
	s := setupApp(t)
	widget := s.seedProduct(t, "Widget", "25.00", 10)

	resp, body := s.do(t, request{method: http.MethodPost, path: "/api/v1/cart/items", body: map[string]interface{}{
		"product_id": widget.ID,
		"quantity":   1,
	}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	session := resp.Header.Get(middleware.SessionHeader)
	require.NotEmpty(t, session)

	resp, body = s.do(t, request{method: http.MethodPost, path: "/api/v1/cart/items", session: session, body: map[string]interface{}{
		"product_id": widget.ID,
		"quantity":   1,
	}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.Equal(t, session, resp.Header.Get(middleware.SessionHeader))

	resp, body = s.do(t, request{method: http.MethodGet, path: "/api/v1/cart", session: session})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cart models.Cart
	decode(t, body, &cart)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)
	requireMoney(t, "64.99", cart.Total)

	resp, body = s.do(t, request{method: http.MethodPost, path: "/api/v1/cart/items", session: session, body: map[string]interface{}{
		"product_id": widget.ID,
		"quantity":   20,
	}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var stockResp map[string]interface{}
	decode(t, body, &stockResp)
	assert.EqualValues(t, 10, stockResp["available"])

	resp, body = s.do(t, request{method: http.MethodPost, path: "/api/v1/checkout", session: session, body: map[string]interface{}{
		"customer": map[string]string{
			"first_name": "Ada",
			"last_name":  "Lovelace",
			"email":      "ada@example.com",
		},
		"shipping_address": shippingAddress,
		"payment_method":   "stub",
	}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var order models.Order
	decode(t, body, &order)
	assert.Regexp(t, `^ORD-[0-9A-Z]{10}$`, order.OrderNumber)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	requireMoney(t, "50", order.Subtotal)
	requireMoney(t, "5", order.TaxAmount)
	requireMoney(t, "9.99", order.ShippingAmount)
	requireMoney(t, "64.99", order.Total)
	assert.Equal(t, order.ShippingAddressID, order.BillingAddressID)
	assert.Equal(t, 8, s.stock(t, widget.ID))

	resp, body = s.do(t, request{method: http.MethodGet, path: "/api/v1/cart", session: session})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, body, &cart)
	assert.Empty(t, cart.Items)

	// The converted cart cannot be checked out again.
	resp, _ = s.do(t, request{method: http.MethodPost, path: "/api/v1/checkout", session: session, body: map[string]interface{}{
		"customer":         map[string]string{"first_name": "Ada", "last_name": "Lovelace", "email": "ada@example.com"},
		"shipping_address": shippingAddress,
		"payment_method":   "stub",
	}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestCheckoutFailures(t *testing.T) {
	s := setupApp(t)
	scarce := s.seedProduct(t, "Scarce", "10.00", 1)
	plenty := s.seedProduct(t, "Plenty", "10.00", 10)

	checkout := func(items ...map[string]interface{}) (*http.Response, []byte) {
		return s.do(t, request{method: http.MethodPost, path: "/api/v1/checkout", body: map[string]interface{}{
			"items":            items,
			"customer":         map[string]string{"first_name": "Ada", "last_name": "Lovelace", "email": "ada@example.com"},
			"shipping_address": shippingAddress,
			"payment_method":   "stub",
		}})
	}

	resp, body := checkout(
		map[string]interface{}{"product_id": plenty.ID, "quantity": 2},
		map[string]interface{}{"product_id": scarce.ID, "quantity": 3},
	)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var stockResp map[string]interface{}
	decode(t, body, &stockResp)
	assert.EqualValues(t, scarce.ID, stockResp["product_id"])
	assert.EqualValues(t, 3, stockResp["requested"])
	assert.EqualValues(t, 1, stockResp["available"])
	assert.Equal(t, 10, s.stock(t, plenty.ID))

	resp, _ = checkout(map[string]interface{}{"product_id": 9999, "quantity": 1})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = checkout(map[string]interface{}{"product_id": plenty.ID, "quantity": 0})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = s.do(t, request{method: http.MethodPost, path: "/api/v1/checkout", body: map[string]interface{}{
		"items":          []map[string]interface{}{{"product_id": plenty.ID, "quantity": 1}},
		"customer":       map[string]string{"first_name": "Ada", "last_name": "Lovelace", "email": "ada@example.com"},
		"payment_method": "stub",
	}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var orders int64
	require.NoError(t, s.db.Model(&models.Order{}).Count(&orders).Error)
	assert.Zero(t, orders)
}

func TestOrderLifecycle(t *testing.T) {
	s := setupApp(t)
	token := s.login(t, "ada", "ada@example.com")
	widget := s.seedProduct(t, "Widget", "60.00", 5)

	resp, body := s.do(t, request{method: http.MethodPost, path: "/api/v1/checkout", token: token, body: map[string]interface{}{
		"items":            []map[string]interface{}{{"product_id": widget.ID, "quantity": 2, "unit_price_hint": "0.01"}},
		"shipping_address": shippingAddress,
		"payment_method":   "stub",
	}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var order models.Order
	decode(t, body, &order)
	requireMoney(t, "120", order.Subtotal)
	requireMoney(t, "0", order.ShippingAmount)
	requireMoney(t, "132", order.Total)
	require.NotNil(t, order.Customer)
	assert.Equal(t, "ada@example.com", order.Customer.Email)

	resp, body = s.do(t, request{method: http.MethodGet, path: "/api/v1/orders", token: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Orders []models.Order `json:"orders"`
		Total  int64          `json:"total"`
	}
	decode(t, body, &list)
	assert.EqualValues(t, 1, list.Total)
	require.Len(t, list.Orders, 1)
	assert.Equal(t, order.ID, list.Orders[0].ID)

	other := s.login(t, "grace", "grace@example.com")
	resp, _ = s.do(t, request{method: http.MethodGet, path: idPath("/api/v1/orders", order.ID, ""), token: other})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = s.do(t, request{method: http.MethodPost, path: idPath("/api/v1/orders", order.ID, "/payments"), token: token, body: map[string]string{"method": "stub"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var payment models.Payment
	decode(t, body, &payment)
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
	requireMoney(t, "132", payment.Amount)

	resp, _ = s.do(t, request{method: http.MethodPost, path: idPath("/api/v1/orders", order.ID, "/payments"), token: token, body: map[string]string{"method": "stub"}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = s.do(t, request{method: http.MethodGet, path: idPath("/api/v1/orders", order.ID, "/payments"), token: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var payments struct {
		Payments  []models.Payment `json:"payments"`
		FullyPaid bool             `json:"fully_paid"`
	}
	decode(t, body, &payments)
	assert.Len(t, payments.Payments, 1)
	assert.True(t, payments.FullyPaid)

	resp, body = s.do(t, request{method: http.MethodGet, path: idPath("/api/v1/orders", order.ID, ""), token: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, body, &order)
	assert.Equal(t, models.OrderStatusProcessing, order.Status)

	shipped := map[string]string{"status": "shipped", "tracking_number": "1Z999"}
	resp, _ = s.do(t, request{method: http.MethodPatch, path: idPath("/api/v1/admin/orders", order.ID, "/status"), token: token, body: shipped})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = s.do(t, request{method: http.MethodPatch, path: idPath("/api/v1/admin/orders", order.ID, "/status"), apiKey: adminKey, body: shipped})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	decode(t, body, &order)
	assert.Equal(t, models.OrderStatusShipped, order.Status)
	require.NotNil(t, order.TrackingNumber)
	assert.Equal(t, "1Z999", *order.TrackingNumber)
	assert.NotNil(t, order.ShippedAt)

	resp, _ = s.do(t, request{method: http.MethodPost, path: idPath("/api/v1/orders", order.ID, "/cancel"), token: token})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, 3, s.stock(t, widget.ID))

	resp, _ = s.do(t, request{method: http.MethodPatch, path: idPath("/api/v1/admin/orders", order.ID, "/status"), apiKey: adminKey, body: map[string]string{"status": "lost"}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestCancelRestoresStock(t *testing.T) {
	s := setupApp(t)
	token := s.login(t, "ada", "ada@example.com")
	widget := s.seedProduct(t, "Widget", "10.00", 5)

	resp, body := s.do(t, request{method: http.MethodPost, path: "/api/v1/checkout", token: token, body: map[string]interface{}{
		"items":            []map[string]interface{}{{"product_id": widget.ID, "quantity": 3}},
		"shipping_address": shippingAddress,
		"payment_method":   "stub",
	}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var order models.Order
	decode(t, body, &order)
	assert.Equal(t, 2, s.stock(t, widget.ID))

	resp, body = s.do(t, request{method: http.MethodPost, path: idPath("/api/v1/orders", order.ID, "/cancel"), token: token})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	decode(t, body, &order)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, 5, s.stock(t, widget.ID))

	resp, _ = s.do(t, request{method: http.MethodPost, path: idPath("/api/v1/orders", order.ID, "/cancel"), token: token})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, 5, s.stock(t, widget.ID))
}

func TestPaymentSettlement(t *testing.T) {
	s := setupApp(t)
	token := s.login(t, "ada", "ada@example.com")
	widget := s.seedProduct(t, "Widget", "10.00", 5)

	resp, body := s.do(t, request{method: http.MethodPost, path: "/api/v1/checkout", token: token, body: map[string]interface{}{
		"items":            []map[string]interface{}{{"product_id": widget.ID, "quantity": 1}},
		"shipping_address": shippingAddress,
		"payment_method":   "card",
	}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var order models.Order
	decode(t, body, &order)

	resp, _ = s.do(t, request{method: http.MethodPost, path: idPath("/api/v1/orders", order.ID, "/payments"), token: token, body: map[string]string{"method": "card"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	attempt := map[string]string{
		"method":          "card",
		"transaction_ref": "ch_1",
		"amount":          order.Total.String(),
		"status":          "pending",
	}
	resp, _ = s.do(t, request{method: http.MethodPost, path: idPath("/api/v1/gateway/orders", order.ID, "/payments"), token: token, body: attempt})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = s.do(t, request{method: http.MethodPost, path: idPath("/api/v1/gateway/orders", order.ID, "/payments"), apiKey: gatewayKey, body: attempt})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var payment models.Payment
	decode(t, body, &payment)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)

	resp, _ = s.do(t, request{method: http.MethodPost, path: idPath("/api/v1/gateway/payments", payment.ID, "/complete"), token: token})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = s.do(t, request{method: http.MethodPost, path: idPath("/api/v1/gateway/payments", payment.ID, "/complete"), apiKey: adminKey})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = s.do(t, request{method: http.MethodPost, path: idPath("/api/v1/gateway/payments", payment.ID, "/fail"), apiKey: gatewayKey, body: map[string]string{"reason": "card declined"}})
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	var failResp struct {
		Payment models.Payment `json:"payment"`
	}
	decode(t, body, &failResp)
	assert.Equal(t, models.PaymentStatusFailed, failResp.Payment.Status)
	assert.Equal(t, "card declined", failResp.Payment.FailureReason)

	resp, body = s.do(t, request{method: http.MethodPost, path: idPath("/api/v1/gateway/payments", payment.ID, "/complete"), apiKey: gatewayKey})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	decode(t, body, &payment)
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)

	resp, body = s.do(t, request{method: http.MethodGet, path: idPath("/api/v1/orders", order.ID, ""), token: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, body, &order)
	assert.Equal(t, models.OrderStatusProcessing, order.Status)

	resp, _ = s.do(t, request{method: http.MethodPost, path: "/api/v1/gateway/payments/999/complete", apiKey: gatewayKey})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCustomerCannotReportPaymentOutcome(t *testing.T) {
	s := setupApp(t)
	token := s.login(t, "ada", "ada@example.com")
	widget := s.seedProduct(t, "Widget", "50.00", 5)

	resp, body := s.do(t, request{method: http.MethodPost, path: "/api/v1/checkout", token: token, body: map[string]interface{}{
		"items":            []map[string]interface{}{{"product_id": widget.ID, "quantity": 2}},
		"shipping_address": shippingAddress,
		"payment_method":   "card",
	}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var order models.Order
	decode(t, body, &order)

	resp, body = s.do(t, request{method: http.MethodPost, path: idPath("/api/v1/orders", order.ID, "/payments"), token: token, body: map[string]string{
		"method":          "card",
		"transaction_ref": "made-up",
		"status":          "completed",
		"amount":          order.Total.String(),
	}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var validationResp struct {
		Errors map[string]string `json:"errors"`
	}
	decode(t, body, &validationResp)
	assert.Contains(t, validationResp.Errors, "transaction_ref")
	assert.Contains(t, validationResp.Errors, "status")

	resp, body = s.do(t, request{method: http.MethodGet, path: idPath("/api/v1/orders", order.ID, "/payments"), token: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var payments struct {
		Payments  []models.Payment `json:"payments"`
		FullyPaid bool             `json:"fully_paid"`
	}
	decode(t, body, &payments)
	assert.Empty(t, payments.Payments)
	assert.False(t, payments.FullyPaid)

	resp, body = s.do(t, request{method: http.MethodGet, path: idPath("/api/v1/orders", order.ID, ""), token: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, body, &order)
	assert.Equal(t, models.OrderStatusPending, order.Status)
}

func TestCheckoutIgnoresClientDiscount(t *testing.T) {
	s := setupApp(t)
	widget := s.seedProduct(t, "Widget", "50.00", 5)

	resp, body := s.do(t, request{method: http.MethodPost, path: "/api/v1/checkout", body: map[string]interface{}{
		"items":            []map[string]interface{}{{"product_id": widget.ID, "quantity": 2}},
		"customer":         map[string]string{"first_name": "Ada", "last_name": "Lovelace", "email": "ada@example.com"},
		"shipping_address": shippingAddress,
		"payment_method":   "stub",
		"discount_amount":  "500",
	}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var order models.Order
	decode(t, body, &order)
	requireMoney(t, "100", order.Subtotal)
	requireMoney(t, "0", order.DiscountAmount)
	requireMoney(t, "119.99", order.Total)
}

func TestGuestCannotCheckoutAsAccount(t *testing.T) {
	s := setupApp(t)
	token := s.login(t, "ada", "ada@example.com")
	widget := s.seedProduct(t, "Widget", "10.00", 5)

	secret := map[string]string{"line1": "42 Secret Lane", "city": "London", "postal_code": "N1 1AA", "country": "GB"}
	resp, body := s.do(t, request{method: http.MethodPost, path: "/api/v1/checkout", token: token, body: map[string]interface{}{
		"items":            []map[string]interface{}{{"product_id": widget.ID, "quantity": 1}},
		"shipping_address": secret,
		"payment_method":   "stub",
	}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var order models.Order
	decode(t, body, &order)

	resp, body = s.do(t, request{method: http.MethodGet, path: "/api/v1/addresses", token: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var saved struct {
		Addresses []models.Address `json:"addresses"`
	}
	decode(t, body, &saved)
	require.Len(t, saved.Addresses, 1)
	assert.Equal(t, order.ShippingAddressID, saved.Addresses[0].ID)
	assert.Equal(t, "42 Secret Lane", saved.Addresses[0].Line1)

	resp, _ = s.do(t, request{method: http.MethodGet, path: "/api/v1/addresses"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = s.do(t, request{method: http.MethodPost, path: "/api/v1/checkout", body: map[string]interface{}{
		"items":               []map[string]interface{}{{"product_id": widget.ID, "quantity": 1}},
		"customer":            map[string]string{"first_name": "Eve", "last_name": "Dropper", "email": "ada@example.com"},
		"shipping_address_id": order.ShippingAddressID,
		"payment_method":      "stub",
	}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.NotContains(t, string(body), "Secret Lane")

	// The saved address is ignored for any guest, whatever the email.
	resp, _ = s.do(t, request{method: http.MethodPost, path: "/api/v1/checkout", body: map[string]interface{}{
		"items":               []map[string]interface{}{{"product_id": widget.ID, "quantity": 1}},
		"customer":            map[string]string{"first_name": "Eve", "last_name": "Dropper", "email": "eve@example.com"},
		"shipping_address_id": order.ShippingAddressID,
		"payment_method":      "stub",
	}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var orders int64
	require.NoError(t, s.db.Model(&models.Order{}).Count(&orders).Error)
	assert.Equal(t, int64(1), orders)
	assert.Equal(t, 4, s.stock(t, widget.ID))
}

func TestAdminOrderEndpoints(t *testing.T) {
	s := setupApp(t)
	widget := s.seedProduct(t, "Widget", "10.00", 5)

	var placed []models.Order
	for _, email := range []string{"ada@example.com", "grace@example.com"} {
		resp, body := s.do(t, request{method: http.MethodPost, path: "/api/v1/checkout", body: map[string]interface{}{
			"items":            []map[string]interface{}{{"product_id": widget.ID, "quantity": 1}},
			"customer":         map[string]string{"first_name": "Test", "last_name": "Buyer", "email": email},
			"shipping_address": shippingAddress,
			"payment_method":   "stub",
		}})
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
		var order models.Order
		decode(t, body, &order)
		placed = append(placed, order)
	}

	resp, _ := s.do(t, request{method: http.MethodGet, path: "/api/v1/admin/orders"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = s.do(t, request{method: http.MethodGet, path: "/api/v1/admin/orders", apiKey: gatewayKey})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := s.do(t, request{method: http.MethodGet, path: "/api/v1/admin/orders?limit=1", apiKey: adminKey})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Orders []models.Order `json:"orders"`
		Total  int64          `json:"total"`
	}
	decode(t, body, &list)
	assert.EqualValues(t, 2, list.Total)
	assert.Len(t, list.Orders, 1)

	resp, body = s.do(t, request{method: http.MethodGet, path: "/api/v1/admin/orders/number/" + placed[1].OrderNumber, apiKey: adminKey})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var found models.Order
	decode(t, body, &found)
	assert.Equal(t, placed[1].ID, found.ID)

	resp, _ = s.do(t, request{method: http.MethodGet, path: "/api/v1/admin/orders/number/ORD-NOPE", apiKey: adminKey})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = s.do(t, request{method: http.MethodGet, path: idPath("/api/v1/admin/orders", placed[0].ID, ""), apiKey: adminKey})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, body, &found)
	assert.Equal(t, placed[0].OrderNumber, found.OrderNumber)

	resp, body = s.do(t, request{method: http.MethodPatch, path: idPath("/api/v1/admin/orders", placed[0].ID, "/status"), apiKey: adminKey, body: map[string]string{"status": "cancelled"}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, 4, s.stock(t, widget.ID))
}

func TestCartMergeOnLogin(t *testing.T) {
	s := setupApp(t)
	widget := s.seedProduct(t, "Widget", "10.00", 5)

	resp, _ := s.do(t, request{method: http.MethodPost, path: "/api/v1/cart/items", session: "guest-1", body: map[string]interface{}{
		"product_id": widget.ID,
		"quantity":   2,
	}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	token := s.login(t, "ada", "ada@example.com")

	resp, _ = s.do(t, request{method: http.MethodPost, path: "/api/v1/cart/merge", session: "guest-1"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := s.do(t, request{method: http.MethodPost, path: "/api/v1/cart/merge", token: token, body: map[string]string{"session_id": "guest-1"}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var cart models.Cart
	decode(t, body, &cart)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)

	resp, body = s.do(t, request{method: http.MethodGet, path: "/api/v1/cart", token: token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, body, &cart)
	require.NotNil(t, cart.UserID)
	require.Len(t, cart.Items, 1)

	resp, body = s.do(t, request{method: http.MethodPatch, path: idPath("/api/v1/cart/items", cart.Items[0].ID, ""), token: token, body: map[string]int{"quantity": 4}})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	decode(t, body, &cart)
	assert.Equal(t, 4, cart.Items[0].Quantity)

	resp, body = s.do(t, request{method: http.MethodDelete, path: idPath("/api/v1/cart/items", cart.Items[0].ID, ""), token: token})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	decode(t, body, &cart)
	assert.Empty(t, cart.Items)

	resp, _ = s.do(t, request{method: http.MethodDelete, path: "/api/v1/cart/items/12345", token: token})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
