package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CoinGecko adapter metrics
	GeckoFetchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coinapi_gecko_fetch_latency_seconds",
			Help:    "Time to fetch one quote batch from CoinGecko",
			Buckets: prometheus.DefBuckets,
		})
	GeckoFetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinapi_gecko_fetch_errors_total",
			Help: "Quote fetch failures by kind",
		},
		[]string{"kind"},
	)
	GeckoQuotesFetched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coinapi_gecko_quotes_total",
			Help: "Total quotes parsed from CoinGecko responses",
		})
	GeckoSymbolsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coinapi_gecko_symbols_skipped_total",
			Help: "Symbols dropped from a batch due to missing or malformed fields",
		})

	// Sync cycle metrics
	SyncCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinapi_sync_cycles_total",
			Help: "Completed refresh cycles by outcome",
		},
		[]string{"outcome"},
	)
	SyncCycleLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coinapi_sync_cycle_latency_seconds",
			Help:    "Duration of one fetch-reconcile-apply cycle",
			Buckets: prometheus.DefBuckets,
		})
	SyncCoinsInserted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coinapi_sync_coins_inserted_total",
			Help: "Coins created by reconciliation",
		})
	SyncCoinsUpdated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coinapi_sync_coins_updated_total",
			Help: "Coins updated by reconciliation",
		})
	SyncCoinsUnchanged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coinapi_sync_coins_unchanged_total",
			Help: "Coins left untouched by reconciliation",
		})
	SyncApplyErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coinapi_sync_apply_errors_total",
			Help: "Per-coin persistence failures during a cycle",
		})
	CacheEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coinapi_cache_evictions_total",
			Help: "Coin cache invalidations after applied cycles",
		})
	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coinapi_cache_hits_total",
			Help: "Coin cache read hits",
		})
	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coinapi_cache_misses_total",
			Help: "Coin cache read misses",
		})

	// API metrics
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
	APIRequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Redis metrics
	RedisOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
	RedisErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_errors_total",
			Help: "Total Redis errors",
		},
		[]string{"operation"},
	)

	// Database metrics
	DatabaseHealthCheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "database_health_check_duration_seconds",
			Help:    "Database health check duration",
			Buckets: prometheus.DefBuckets,
		})
	DatabaseHealthCheckSuccess = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "database_health_check_success_total",
			Help: "Total successful database health checks",
		})
	DatabaseHealthCheckErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "database_health_check_errors_total",
			Help: "Total database health check errors",
		})
	DatabaseOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_operation_duration_seconds",
			Help:    "Database operation duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
	DatabaseOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_operations_total",
			Help: "Total database operations",
		},
		[]string{"operation", "status"},
	)
	DatabaseErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_errors_total",
			Help: "Total database errors",
		},
		[]string{"operation"},
	)

	// Authentication metrics
	AuthOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auth_operation_duration_seconds",
			Help:    "Authentication operation duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
	AuthOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_operations_total",
			Help: "Total authentication operations",
		},
		[]string{"operation", "status"},
	)
	AuthErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_errors_total",
			Help: "Total authentication errors",
		},
		[]string{"operation"},
	)
	AuthMiddlewareDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auth_middleware_duration_seconds",
			Help:    "Authentication middleware duration",
			Buckets: prometheus.DefBuckets,
		})
	AuthMiddlewareSuccess = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_middleware_success_total",
			Help: "Total successful authentication middleware calls",
		})
	AuthMiddlewareErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_middleware_errors_total",
			Help: "Total authentication middleware errors",
		},
		[]string{"error_type"},
	)

	// Email metrics
	EmailsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coinapi_emails_sent_total",
			Help: "Registration emails delivered",
		})
	EmailErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coinapi_email_errors_total",
			Help: "Registration email delivery failures",
		})
)

func init() {
	// MustRegister panics if registration fails (e.g. duplicate)
	prometheus.MustRegister(
		GeckoFetchLatency, GeckoFetchErrors, GeckoQuotesFetched, GeckoSymbolsSkipped,
		SyncCycles, SyncCycleLatency, SyncCoinsInserted, SyncCoinsUpdated,
		SyncCoinsUnchanged, SyncApplyErrors,
		CacheEvictions, CacheHits, CacheMisses,
		APIRequestDuration, APIRequestTotal,
		RedisOperationDuration, RedisErrors,
		DatabaseHealthCheckDuration, DatabaseHealthCheckSuccess, DatabaseHealthCheckErrors,
		DatabaseOperationDuration, DatabaseOperations, DatabaseErrors,
		AuthOperationDuration, AuthOperations, AuthErrors,
		AuthMiddlewareDuration, AuthMiddlewareSuccess, AuthMiddlewareErrors,
		EmailsSent, EmailErrors,
	)
}

// Handler exposes the default registry for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
