// Package telemetry provides OpenTelemetry metrics wiring and attribute conventions for
// the ledger core.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by every ledger metric.
const (
	// AttrEnvironment specifies the deployment environment (dev/staging/prod) for every metric.
	AttrEnvironment = attribute.Key("environment")
	// AttrOperation names the computation or query being measured.
	AttrOperation = attribute.Key("operation")
	// AttrResult records the outcome of an operation.
	AttrResult = attribute.Key("result")
	// AttrPoolName labels database pool gauges (primary, replica).
	AttrPoolName = attribute.Key("db_pool")
	// AttrStore identifies the table-level store issuing a query.
	AttrStore = attribute.Key("store")
	// AttrMigrationsPath records where migrations were sourced from.
	AttrMigrationsPath = attribute.Key("migrations_path")
)

// Result values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// ResultOf maps an error to a result label.
func ResultOf(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

// OperationAttributes returns attributes for a measured computation.
func OperationAttributes(operation string, err error) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(Environment()),
		AttrOperation.String(operation),
		AttrResult.String(ResultOf(err)),
	}
}

// PoolAttributes returns attributes for database pool gauges.
func PoolAttributes(poolName string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(Environment()),
		AttrPoolName.String(poolName),
	}
}

// StoreAttributes returns attributes for store-level query metrics.
func StoreAttributes(store, operation string, err error) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(Environment()),
		AttrStore.String(store),
		AttrOperation.String(operation),
		AttrResult.String(ResultOf(err)),
	}
}
