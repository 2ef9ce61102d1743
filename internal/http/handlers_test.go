package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/abcretail/order-service/internal/config"
	"github.com/abcretail/order-service/internal/model"
	"github.com/abcretail/order-service/internal/obs"
	"github.com/abcretail/order-service/internal/order"
	"github.com/abcretail/order-service/internal/queue"
	"github.com/abcretail/order-service/internal/table"
)

func TestMain(m *testing.M) {
	obs.InitLogger()
	os.Exit(m.Run())
}

func setupApp(t *testing.T) (*App, http.Handler) {
	t.Helper()
	cfg := config.Load()
	tables := table.NewMemory()
	orderQ := queue.New(cfg.QueueOrder, 50*time.Millisecond, cfg.MaxDequeueCount)
	stockQ := queue.New(cfg.QueueStock, 50*time.Millisecond, cfg.MaxDequeueCount)

	app := NewApp(cfg,
		tables,
		order.NewIntake(cfg, tables, orderQ),
		order.NewStatus(cfg, tables, orderQ),
		order.NewQueries(cfg, tables),
		orderQ, stockQ,
	)
	return app, NewRouter(app)
}

func seedCatalog(t *testing.T, app *App) {
	t.Helper()
	p := model.Product{
		ID:             "prod-1",
		ProductName:    "Espresso Machine",
		Price:          decimal.RequireFromString("249.90"),
		StockAvailable: 50,
	}
	e, err := table.Marshal(app.Cfg.TableProduct, p.ID, p)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := app.Tables.Insert(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	c := model.Customer{ID: "cust-1", Name: "Ada", Surname: "Okafor"}
	e, err = table.Marshal(app.Cfg.TableCustomer, c.ID, c)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := app.Tables.Insert(context.Background(), e); err != nil {
		t.Fatal(err)
	}
}

func doJSON(t *testing.T, mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, r)
	return rr
}

func TestHealthzOK(t *testing.T) {
	_, mux := setupApp(t)
	rr := doJSON(t, mux, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestOpenAPIServed(t *testing.T) {
	_, mux := setupApp(t)
	rr := doJSON(t, mux, http.MethodGet, "/openapi.yaml", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("openapi:")) {
		t.Fatalf("expected openapi content")
	}
}

func TestDocsServed(t *testing.T) {
	_, mux := setupApp(t)
	rr := doJSON(t, mux, http.MethodGet, "/docs", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("swagger-ui")) {
		t.Fatalf("expected swagger-ui in docs body")
	}
}

func TestCreateOrderReturnsQueued(t *testing.T) {
	app, mux := setupApp(t)
	seedCatalog(t, app)

	rr := doJSON(t, mux, http.MethodPost, "/orders", `{"CustomerId":"cust-1","ProductId":"prod-1","Quantity":5}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var view model.OrderView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.Status != model.StatusQueued {
		t.Fatalf("expected Queued, got %s", view.Status)
	}
	if view.ID == "" {
		t.Fatalf("expected an order id")
	}
	if app.OrderQueue.Len() != 1 {
		t.Fatalf("expected one queued message")
	}
	// The record does not exist until the consumer runs.
	rr = doJSON(t, mux, http.MethodGet, "/orders/"+view.ID, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before fulfillment, got %d", rr.Code)
	}
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	app, mux := setupApp(t)
	seedCatalog(t, app)

	rr := doJSON(t, mux, http.MethodPost, "/orders", `{"CustomerId":"cust-1","ProductId":"prod-1","Quantity":51}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("insufficient_stock")) {
		t.Fatalf("expected insufficient_stock error, got %s", rr.Body.String())
	}
	if app.OrderQueue.Len() != 0 {
		t.Fatalf("rejected order must not be queued")
	}
}

func TestCreateOrderValidation(t *testing.T) {
	app, mux := setupApp(t)
	seedCatalog(t, app)

	rr := doJSON(t, mux, http.MethodPost, "/orders", `{"CustomerId":"cust-1","ProductId":"prod-1","Quantity":0}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	rr = doJSON(t, mux, http.MethodPost, "/orders", `not json`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid json, got %d", rr.Code)
	}
	rr = doJSON(t, mux, http.MethodPost, "/orders", `{"CustomerId":"cust-1","ProductId":"ghost","Quantity":1}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown product, got %d", rr.Code)
	}
}

func TestOrderLifecycleAfterFulfillment(t *testing.T) {
	app, mux := setupApp(t)
	seedCatalog(t, app)

	rr := doJSON(t, mux, http.MethodPost, "/orders", `{"CustomerId":"cust-1","ProductId":"prod-1","Quantity":5}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	var view model.OrderView
	_ = json.Unmarshal(rr.Body.Bytes(), &view)

	// Run the consumer step directly.
	f := order.NewFulfiller(app.Cfg, app.Tables, app.StockQueue)
	m, ok := app.OrderQueue.TryDequeue()
	if !ok {
		t.Fatalf("expected queued message")
	}
	if err := f.Handle(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	app.OrderQueue.Delete(m.ID, m.Receipt)

	rr = doJSON(t, mux, http.MethodGet, "/orders/"+view.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var got model.OrderView
	_ = json.Unmarshal(rr.Body.Bytes(), &got)
	if got.Status != model.StatusSubmitted {
		t.Fatalf("expected Submitted, got %s", got.Status)
	}

	rr = doJSON(t, mux, http.MethodPost, "/orders/"+view.ID+"/status", `{"Status":"Shipped"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &got)
	if got.Status != "Shipped" {
		t.Fatalf("expected Shipped, got %s", got.Status)
	}

	rr = doJSON(t, mux, http.MethodGet, "/orders", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var list []model.OrderView
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != view.ID {
		t.Fatalf("unexpected list: %+v", list)
	}

	rr = doJSON(t, mux, http.MethodDelete, "/orders/"+view.ID, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	rr = doJSON(t, mux, http.MethodGet, "/orders/"+view.ID, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rr.Code)
	}
}

func TestStatusUpdateErrors(t *testing.T) {
	app, mux := setupApp(t)
	seedCatalog(t, app)

	rr := doJSON(t, mux, http.MethodPost, "/orders/ghost/status", `{"Status":"Shipped"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	rr = doJSON(t, mux, http.MethodGet, "/orders/ghost/status", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestProductCRUD(t *testing.T) {
	_, mux := setupApp(t)

	rr := doJSON(t, mux, http.MethodPost, "/products", `{"ProductName":"Burr Grinder","Price":"89.50","StockAvailable":12}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var p model.Product
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.ID == "" {
		t.Fatalf("expected generated product id")
	}

	rr = doJSON(t, mux, http.MethodGet, "/products/"+p.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	rr = doJSON(t, mux, http.MethodGet, "/products", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	rr = doJSON(t, mux, http.MethodDelete, "/products/"+p.ID, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	rr = doJSON(t, mux, http.MethodGet, "/products/"+p.ID, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	rr = doJSON(t, mux, http.MethodPost, "/products", `{"Price":"1.00"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing name, got %d", rr.Code)
	}
}

func TestCustomerCRUD(t *testing.T) {
	_, mux := setupApp(t)

	rr := doJSON(t, mux, http.MethodPost, "/customers", `{"Id":"cust-9","Name":"Jonas","Surname":"Meyer"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	rr = doJSON(t, mux, http.MethodPost, "/customers", `{"Id":"cust-9","Name":"Jonas","Surname":"Meyer"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate, got %d", rr.Code)
	}
	rr = doJSON(t, mux, http.MethodGet, "/customers/cust-9", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestShutdownRejectsIntake(t *testing.T) {
	app, mux := setupApp(t)
	seedCatalog(t, app)
	app.StartShutdown()

	rr := doJSON(t, mux, http.MethodPost, "/orders", `{"CustomerId":"cust-1","ProductId":"prod-1","Quantity":1}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestShutdownRacesWithIntake(t *testing.T) {
	app, mux := setupApp(t)
	seedCatalog(t, app)

	// Requests in flight while the signal goroutine starts the shutdown:
	// each one must settle cleanly as either 201 or 503.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				r := httptest.NewRequest(http.MethodPost, "/orders",
					bytes.NewBufferString(`{"CustomerId":"cust-1","ProductId":"prod-1","Quantity":1}`))
				r.Header.Set("Content-Type", "application/json")
				rr := httptest.NewRecorder()
				mux.ServeHTTP(rr, r)
			}
		}()
	}
	app.StartShutdown()
	wg.Wait()

	rr := doJSON(t, mux, http.MethodPost, "/orders", `{"CustomerId":"cust-1","ProductId":"prod-1","Quantity":1}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after shutdown, got %d", rr.Code)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	_, mux := setupApp(t)
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set("X-Request-Id", "req-42")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, r)
	if got := rr.Header().Get("X-Request-Id"); got != "req-42" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
}
