// Package config provides runtime configuration values for the service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds configuration knobs for the HTTP server, the record store,
// the queues, and the consumer workers. It is built once at startup and
// passed by reference; there is no ambient global configuration.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration

	// DataDir selects the pebble-backed store; empty keeps records in memory.
	DataDir string

	TableOrder        string
	TableProduct      string
	TableCustomer     string
	TableStockApplied string

	QueueOrder string
	QueueStock string

	VisibilityTimeout time.Duration
	MaxDequeueCount   int

	InitialWorkerCount      int
	WorkerMin               int
	WorkerMax               int
	ScaleInterval           time.Duration
	ScaleUpBacklogPerWorker int
	ScaleDownIdleTicks      int
	QueueHighWatermark      int
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durenvms(key string, defMs int) time.Duration {
	ms := atoienv(key, defMs)
	return time.Duration(ms) * time.Millisecond
}

func durenvs(key string, defSec int) time.Duration {
	sec := atoienv(key, defSec)
	return time.Duration(sec) * time.Second
}

// Load collects configuration from environment with defaults.
func Load() Config {
	minWorkers := atoienv("WORKER_MIN", 2)
	maxWorkers := atoienv("WORKER_MAX", 8)
	initialWorkers := atoienv("WORKER_COUNT", minWorkers)
	return Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		ShutdownTimeout: durenvs("SHUTDOWN_TIMEOUT", 15),

		DataDir: getenv("DATA_DIR", ""),

		TableOrder:        getenv("TABLE_ORDER", "Order"),
		TableProduct:      getenv("TABLE_PRODUCT", "Product"),
		TableCustomer:     getenv("TABLE_CUSTOMER", "Customer"),
		TableStockApplied: getenv("TABLE_STOCK_APPLIED", "StockApplied"),

		QueueOrder: getenv("QUEUE_ORDER_NOTIFICATIONS", "order-notifications"),
		QueueStock: getenv("QUEUE_STOCK_UPDATES", "stock-updates"),

		VisibilityTimeout: durenvms("VISIBILITY_TIMEOUT_MS", 30000),
		MaxDequeueCount:   atoienv("MAX_DEQUEUE_COUNT", 5),

		InitialWorkerCount:      initialWorkers,
		WorkerMin:               minWorkers,
		WorkerMax:               maxWorkers,
		ScaleInterval:           durenvms("SCALE_INTERVAL_MS", 500),
		ScaleUpBacklogPerWorker: atoienv("SCALE_UP_BACKLOG_PER_WORKER", 100),
		ScaleDownIdleTicks:      atoienv("SCALE_DOWN_IDLE_TICKS", 6),
		QueueHighWatermark:      atoienv("QUEUE_HIGH_WATERMARK", 5000),
	}
}
