package httpapi

import (
	"expvar"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter registers HTTP routes and returns the handler with middleware.
func NewRouter(app *App) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/orders", app.ordersHandler)
	mux.HandleFunc("/orders/", app.orderItemHandler)
	mux.HandleFunc("/products", app.productsHandler)
	mux.HandleFunc("/products/", app.productItemHandler)
	mux.HandleFunc("/customers", app.customersHandler)
	mux.HandleFunc("/customers/", app.customerItemHandler)
	mux.HandleFunc("/healthz", app.healthHandler)
	mux.HandleFunc("/debug/queues", app.debugHandler)
	mux.Handle("/debug/vars", expvar.Handler())
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/openapi.yaml", app.openapiHandler)
	mux.HandleFunc("/docs", app.docsHandler)
	return WithRequestID(WithLogging(mux))
}
