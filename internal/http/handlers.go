package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abcretail/order-service/internal/config"
	httpopenapi "github.com/abcretail/order-service/internal/http/openapi"
	"github.com/abcretail/order-service/internal/model"
	"github.com/abcretail/order-service/internal/order"
	"github.com/abcretail/order-service/internal/queue"
	"github.com/abcretail/order-service/internal/table"
)

// App wires the synchronous boundary to the pipeline services and the
// record store.
type App struct {
	Cfg        config.Config
	Tables     table.Client
	Intake     *order.Intake
	Status     *order.Status
	Queries    *order.Queries
	OrderQueue *queue.Queue
	StockQueue *queue.Queue

	started time.Time
}

// NewApp constructs the HTTP application state.
func NewApp(cfg config.Config, tables table.Client, intake *order.Intake,
	status *order.Status, queries *order.Queries, orderQ, stockQ *queue.Queue) *App {
	return &App{
		Cfg:        cfg,
		Tables:     tables,
		Intake:     intake,
		Status:     status,
		Queries:    queries,
		OrderQueue: orderQ,
		StockQueue: stockQ,
		started:    time.Now(),
	}
}

// StartShutdown closes queue intake so in-flight work can drain. Safe to
// call from the signal goroutine while requests are in flight.
func (a *App) StartShutdown() {
	a.OrderQueue.CloseIntake()
	a.StockQueue.CloseIntake()
}

func decodeJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return errors.New("expected application/json")
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ordersHandler serves /orders: list on GET, intake on POST.
func (a *App) ordersHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		views, err := a.Queries.ListOrders(r.Context())
		if err != nil {
			WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, views)
	case http.MethodPost:
		if a.OrderQueue.IsShuttingDown() {
			WriteJSONError(w, http.StatusServiceUnavailable, "shutting_down", "")
			return
		}
		var req order.CreateRequest
		if err := decodeJSON(r, &req); err != nil {
			WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
		view, err := a.Intake.Create(r.Context(), req)
		if err != nil {
			WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, view)
	default:
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
	}
}

// orderItemHandler serves /orders/{id} and /orders/{id}/status.
func (a *App) orderItemHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/orders/")
	if rest == "" {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
		return
	}
	if id, ok := strings.CutSuffix(rest, "/status"); ok {
		a.updateStatusHandler(w, r, id)
		return
	}
	if strings.Contains(rest, "/") {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
		return
	}
	switch r.Method {
	case http.MethodGet:
		view, err := a.Queries.GetOrder(r.Context(), rest)
		if err != nil {
			WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodDelete:
		if err := a.Queries.DeleteOrder(r.Context(), rest); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
	}
}

type statusUpdate struct {
	Status string `json:"Status"`
}

func (a *App) updateStatusHandler(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	var in statusUpdate
	if err := decodeJSON(r, &in); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	view, err := a.Status.Update(r.Context(), id, in.Status)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// productsHandler serves the thin inventory CRUD surface.
func (a *App) productsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listEntities(w, r, a.Cfg.TableProduct, func() any { return &model.Product{} })
	case http.MethodPost:
		var p model.Product
		if err := decodeJSON(r, &p); err != nil {
			WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
		if p.ProductName == "" {
			WriteJSONError(w, http.StatusBadRequest, "validation_error", "ProductName is required")
			return
		}
		if p.StockAvailable < 0 {
			WriteJSONError(w, http.StatusBadRequest, "validation_error", "StockAvailable must be >= 0")
			return
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		a.insertEntity(w, r, a.Cfg.TableProduct, p.ID, p)
	default:
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
	}
}

func (a *App) productItemHandler(w http.ResponseWriter, r *http.Request) {
	a.entityItemHandler(w, r, "/products/", a.Cfg.TableProduct, func() any { return &model.Product{} })
}

// customersHandler serves the thin customer CRUD surface.
func (a *App) customersHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listEntities(w, r, a.Cfg.TableCustomer, func() any { return &model.Customer{} })
	case http.MethodPost:
		var c model.Customer
		if err := decodeJSON(r, &c); err != nil {
			WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
		if c.Name == "" {
			WriteJSONError(w, http.StatusBadRequest, "validation_error", "Name is required")
			return
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		a.insertEntity(w, r, a.Cfg.TableCustomer, c.ID, c)
	default:
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
	}
}

func (a *App) customerItemHandler(w http.ResponseWriter, r *http.Request) {
	a.entityItemHandler(w, r, "/customers/", a.Cfg.TableCustomer, func() any { return &model.Customer{} })
}

func (a *App) listEntities(w http.ResponseWriter, r *http.Request, partition string, alloc func() any) {
	entities, err := a.Tables.List(r.Context(), partition)
	if err != nil {
		WriteError(w, err)
		return
	}
	out := make([]any, 0, len(entities))
	for _, e := range entities {
		v := alloc()
		if err := e.Into(v); err != nil {
			WriteError(w, err)
			return
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) insertEntity(w http.ResponseWriter, r *http.Request, partition, row string, v any) {
	e, err := table.Marshal(partition, row, v)
	if err != nil {
		WriteError(w, err)
		return
	}
	if _, err := a.Tables.Insert(r.Context(), e); err != nil {
		if errors.Is(err, table.ErrEntityExists) {
			WriteJSONError(w, http.StatusConflict, "already_exists", "")
			return
		}
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (a *App) entityItemHandler(w http.ResponseWriter, r *http.Request, prefix, partition string, alloc func() any) {
	id := strings.TrimPrefix(r.URL.Path, prefix)
	if id == "" || strings.Contains(id, "/") {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
		return
	}
	switch r.Method {
	case http.MethodGet:
		e, err := a.Tables.Get(r.Context(), partition, id)
		if errors.Is(err, table.ErrNotFound) {
			WriteJSONError(w, http.StatusNotFound, "not_found", "")
			return
		}
		if err != nil {
			WriteError(w, err)
			return
		}
		v := alloc()
		if err := e.Into(v); err != nil {
			WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	case http.MethodDelete:
		if err := a.Tables.Delete(r.Context(), partition, id); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
	}
}

func (a *App) openapiHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(httpopenapi.YAML)
}

func (a *App) docsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>`
	_, _ = w.Write([]byte(html))
}

func (a *App) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// debugHandler exposes queue counters alongside the Prometheus endpoint.
func (a *App) debugHandler(w http.ResponseWriter, _ *http.Request) {
	oEnq, oDel, oPoison, oPending := a.OrderQueue.Metrics()
	sEnq, sDel, sPoison, sPending := a.StockQueue.Metrics()
	writeJSON(w, http.StatusOK, map[string]any{
		"order_queue": map[string]any{
			"enqueued": oEnq, "deleted": oDel, "poisoned": oPoison, "pending": oPending,
		},
		"stock_queue": map[string]any{
			"enqueued": sEnq, "deleted": sDel, "poisoned": sPoison, "pending": sPending,
		},
		"uptime_sec": time.Since(a.started).Seconds(),
	})
}
