package otel

import (
	"database/sql"
	"fmt"

	"github.com/XSAM/otelsql"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// dbAttributes tag every SQL span and pool metric with the store they
// belong to, so ledger and workflow-run queries are distinguishable from
// other SQLite traffic in a shared collector.
var dbAttributes = []attribute.KeyValue{
	semconv.DBSystemSqlite,
	attribute.String("db.namespace", "provisiq"),
}

// OpenDB opens the provisioning store with OpenTelemetry instrumentation:
// a span per statement plus connection-pool metrics.
func OpenDB(dataSourceName string) (*sql.DB, error) {
	db, err := otelsql.Open("sqlite", dataSourceName,
		otelsql.WithAttributes(dbAttributes...),
	)
	if err != nil {
		return nil, fmt.Errorf("opening instrumented database: %w", err)
	}

	// The store and the River notification queue share this handle; a single
	// connection keeps SQLite to one writer and avoids SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("applying %s: %w", pragma, err)
		}
	}

	if _, err := otelsql.RegisterDBStatsMetrics(db,
		otelsql.WithAttributes(dbAttributes...),
	); err != nil {
		return nil, fmt.Errorf("registering db stats metrics: %w", err)
	}

	return db, nil
}
