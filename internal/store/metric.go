package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	"github.com/ngrok/sqlmw"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	driverPgx    = "pgx"
	driverSqlite = "sqlite3"
)

var (
	opRegex     = regexp.MustCompile(`^(\w)+`)
	dbOpLatency *prometheus.HistogramVec
	dbOpTotal   *prometheus.CounterVec

	instrumentedMu      sync.Mutex
	instrumentedDrivers = map[string]string{}
)

type metricInterceptor struct {
	sqlmw.NullInterceptor
}

func init() {
	dbOpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:      "db_op_duration_milliseconds",
		Help:      "Time spent on a job store database operation",
		Subsystem: "ugc_pipeline",
		Buckets:   []float64{1, 10, 100, 500, 1000, 5000},
	},
		[]string{"op", "method"},
	)
	dbOpTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:      "db_op_total",
		Help:      "Number of job store database operations",
		Subsystem: "ugc_pipeline",
	},
		[]string{"op"},
	)

	prometheus.MustRegister(dbOpLatency)
	prometheus.MustRegister(dbOpTotal)
}

// instrumentedDriver registers, once per process, a copy of the named driver
// wrapped with the metric interceptor and returns the name it is registered under.
func instrumentedDriver(name string) (string, error) {
	instrumentedMu.Lock()
	defer instrumentedMu.Unlock()

	if wrapped, found := instrumentedDrivers[name]; found {
		return wrapped, nil
	}

	var base driver.Driver
	switch name {
	case driverPgx:
		base = stdlib.GetDefaultDriver()
	case driverSqlite:
		base = &sqlite3.SQLiteDriver{}
	default:
		return "", fmt.Errorf("no instrumentation for driver %q", name)
	}

	wrapped := name + "-instrumented"
	sql.Register(wrapped, sqlmw.Driver(base, &metricInterceptor{}))
	instrumentedDrivers[name] = wrapped
	return wrapped, nil
}

func (mi *metricInterceptor) ConnBeginTx(ctx context.Context, conn driver.ConnBeginTx, opts driver.TxOptions) (context.Context, driver.Tx, error) {
	start := time.Now()
	defer mi.measure("conn-begin-tx", "conn-begin-tx", start)

	tx, err := conn.BeginTx(ctx, opts)
	return ctx, tx, err
}

func (mi *metricInterceptor) ConnExecContext(ctx context.Context, conn driver.ExecerContext, query string, args []driver.NamedValue) (driver.Result, error) {
	start := time.Now()
	defer mi.measure("conn-exec-context", statementMethod(query, "conn-exec-context"), start)

	return conn.ExecContext(ctx, query, args)
}

func (mi *metricInterceptor) ConnQueryContext(ctx context.Context, conn driver.QueryerContext, query string, args []driver.NamedValue) (context.Context, driver.Rows, error) {
	start := time.Now()
	defer mi.measure("conn-query-context", statementMethod(query, "conn-query-context"), start)

	rows, err := conn.QueryContext(ctx, query, args)
	return ctx, rows, err
}

func (mi *metricInterceptor) TxCommit(ctx context.Context, conn driver.Tx) error {
	start := time.Now()
	defer mi.measure("tx-commit", "tx-commit", start)
	return conn.Commit()
}

func (mi *metricInterceptor) TxRollback(ctx context.Context, conn driver.Tx) error {
	start := time.Now()
	defer mi.measure("tx-rollback", "tx-rollback", start)
	return conn.Rollback()
}

// statementMethod returns the sql verb of the query, like select or update.
func statementMethod(query, fallback string) string {
	matches := opRegex.FindString(strings.TrimSpace(query))
	if matches == "" {
		return fallback
	}
	return strings.ToLower(matches)
}

func (mi *metricInterceptor) measure(op, method string, start time.Time) {
	dbOpTotal.With(prometheus.Labels{"op": op}).Inc()

	since := float64(time.Since(start).Milliseconds())
	dbOpLatency.With(prometheus.Labels{
		"op":     op,
		"method": method,
	}).Observe(since)
}
