// Package domain defines the shapes the sync pipeline exchanges with its
// callers: requests, per-stage outcomes and the aggregated run result.
package domain

import (
	"fmt"

	connectiondomain "github.com/metricdock/metricdock/internal/connection/domain"
	"gorm.io/datatypes"
)

// Collections written by the pipeline. Full mode wipes exactly these.
const (
	CollectionPayments       = "stripe_payments"
	CollectionPaymentIntents = "stripe_payment_intents"
	CollectionSubscriptions  = "stripe_subscriptions"
	CollectionProducts       = "stripe_products"
	CollectionPrices         = "stripe_prices"
	CollectionInvoices       = "stripe_invoices"
	CollectionCustomers      = "stripe_customers"
)

// Collections lists every synced collection.
var Collections = []string{
	CollectionPayments,
	CollectionPaymentIntents,
	CollectionSubscriptions,
	CollectionProducts,
	CollectionPrices,
	CollectionInvoices,
	CollectionCustomers,
}

// DocID builds the tenant-scoped document identifier.
func DocID(orgID fmt.Stringer, externalID string) string {
	return orgID.String() + "_" + externalID
}

// SyncRequest parameterizes one pipeline run. CreatedAfter/CreatedBefore
// and MaxPages scope only the charge stage; they exist for chunked
// historical backfills of the highest-volume entity.
type SyncRequest struct {
	SyncType      connectiondomain.SyncType
	MaxPages      int
	CreatedAfter  int64
	CreatedBefore int64
}

// StageResult is the outcome of one entity stage. Err is nil on success;
// a failed stage still reports the count committed before the failure.
type StageResult struct {
	Entity string
	Count  int
	Err    error
}

// OK reports whether the stage completed without error.
func (r StageResult) OK() bool { return r.Err == nil }

// SyncResult aggregates the run. Success is true iff no stage errored.
type SyncResult struct {
	Success        bool     `json:"success"`
	Payments       int      `json:"payments"`
	PaymentIntents int      `json:"paymentIntents"`
	Subscriptions  int      `json:"subscriptions"`
	Customers      int      `json:"customers"`
	Products       int      `json:"products"`
	Prices         int      `json:"prices"`
	Invoices       int      `json:"invoices"`
	CleanedRecords int      `json:"cleanedRecords"`
	Errors         []string `json:"errors"`
}

// Stats flattens the per-entity counts for persistence on the sync run.
func (r SyncResult) Stats() datatypes.JSONMap {
	return datatypes.JSONMap{
		"payments":       r.Payments,
		"paymentIntents": r.PaymentIntents,
		"subscriptions":  r.Subscriptions,
		"customers":      r.Customers,
		"products":       r.Products,
		"prices":         r.Prices,
		"invoices":       r.Invoices,
		"cleanedRecords": r.CleanedRecords,
	}
}

// RunStatus derives the terminal run state from the stage outcomes.
func (r SyncResult) RunStatus() connectiondomain.RunStatus {
	if len(r.Errors) == 0 {
		return connectiondomain.RunStatusSucceeded
	}
	if r.Payments+r.PaymentIntents+r.Subscriptions+r.Customers+r.Products+r.Prices+r.Invoices > 0 {
		return connectiondomain.RunStatusPartial
	}
	return connectiondomain.RunStatusFailed
}
