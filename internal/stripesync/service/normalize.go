package service

import (
	"math"

	"github.com/metricdock/metricdock/internal/stripesync/domain"
	"gorm.io/datatypes"
)

// catalog is the in-run product name index. The products stage fills it;
// later stages consult it. Stages that run earlier simply miss, which is
// tolerated: IDs are always stored, names are best-effort.
type catalog struct {
	productNames map[string]string
}

func newCatalog() *catalog {
	return &catalog{productNames: make(map[string]string)}
}

func (c *catalog) remember(productID string, name any) {
	if productID == "" {
		return
	}
	if s, ok := name.(string); ok && s != "" {
		c.productNames[productID] = s
	}
}

func (c *catalog) productName(productID any) any {
	id, ok := productID.(string)
	if !ok {
		return nil
	}
	if name, ok := c.productNames[id]; ok {
		return name
	}
	return nil
}

// metadataProductHints are the metadata keys checked, in order, when a
// charge has no invoice to attribute products from.
var metadataProductHints = struct {
	names []string
	ids   []string
}{
	names: []string{"product_name", "productName"},
	ids:   []string{"product_id", "productId"},
}

// normalizePayment flattens one charge. Product attribution walks the
// expanded invoice's line items first, then metadata hints, then gives up
// with an empty list.
func (c *catalog) normalizePayment(rec domain.Record, orgID string) datatypes.JSONMap {
	invoice := rec.Map("invoice")

	var lineItems []datatypes.JSONMap
	switch {
	case invoice != nil:
		lineItems = c.normalizeLineItems(invoice.Map("lines").Slice("data"))
	default:
		lineItems = c.lineItemsFromMetadata(rec)
	}

	var subscriptionID any
	if invoice != nil {
		subscriptionID = c.resolveInvoiceSubscription(invoice)
	}

	return datatypes.JSONMap{
		"organizationId":  orgID,
		"externalId":      rec.ID(),
		"amount":          rec.Num("amount"),
		"amountRefunded":  rec.Num("amount_refunded"),
		"currency":        rec.Str("currency"),
		"status":          rec.Str("status"),
		"description":     rec.Str("description"),
		"customerId":      rec.RefID("customer"),
		"paymentIntentId": rec.RefID("payment_intent"),
		"invoiceId":       rec.RefID("invoice"),
		"subscriptionId":  subscriptionID,
		"refunded":        rec.Bool("refunded"),
		"lineItems":       lineItems,
		"createdAt":       rec.Ts("created"),
	}
}

func (c *catalog) lineItemsFromMetadata(rec domain.Record) []datatypes.JSONMap {
	metadata := rec.Map("metadata")
	if metadata == nil {
		return []datatypes.JSONMap{}
	}

	var name, id any
	for _, key := range metadataProductHints.names {
		if v := metadata.Str(key); v != nil {
			name = v
			break
		}
	}
	for _, key := range metadataProductHints.ids {
		if v := metadata.Str(key); v != nil {
			id = v
			break
		}
	}
	if name == nil && id == nil {
		return []datatypes.JSONMap{}
	}

	return []datatypes.JSONMap{{
		"description": name,
		"amount":      rec.Num("amount"),
		"quantity":    float64(1),
		"priceId":     nil,
		"productId":   id,
		"productName": name,
		"type":        "metadata",
	}}
}

// normalizeLineItems maps invoice lines from either of the vendor's two
// generations of line shapes to one flat form. Every field is explicitly
// present; absent values are nil (or 0 for amounts).
func (c *catalog) normalizeLineItems(lines []domain.Record) []datatypes.JSONMap {
	items := make([]datatypes.JSONMap, 0, len(lines))
	for _, line := range lines {
		items = append(items, c.normalizeLineItem(line))
	}
	return items
}

func (c *catalog) normalizeLineItem(line domain.Record) datatypes.JSONMap {
	var priceID, productID any

	// New-style lines nest price/product under pricing.price_details.
	if pricing := line.Map("pricing"); pricing != nil {
		if details := pricing.Map("price_details"); details != nil {
			priceID = details.RefID("price")
			productID = details.RefID("product")
		}
	}

	// Legacy lines carry a price (or plan) object directly.
	if priceID == nil {
		if price := line.Map("price"); price != nil {
			if id := price.ID(); id != "" {
				priceID = id
			}
			if productID == nil {
				productID = price.RefID("product")
			}
		}
	}
	if priceID == nil {
		if plan := line.Map("plan"); plan != nil {
			if id := plan.ID(); id != "" {
				priceID = id
			}
			if productID == nil {
				productID = plan.RefID("product")
			}
		}
	}

	productName := c.productName(productID)

	return datatypes.JSONMap{
		"description": line.Str("description"),
		"amount":      line.Num("amount"),
		"quantity":    line.IntOrNil("quantity"),
		"priceId":     priceID,
		"productId":   productID,
		"productName": productName,
		"type":        line.Str("type"),
	}
}

// resolveInvoiceSubscription tries the known homes of an invoice's
// subscription reference in fixed precedence order: the direct field, the
// parent subscription-details object, then any line item's parent
// subscription reference.
func (c *catalog) resolveInvoiceSubscription(rec domain.Record) any {
	if id := rec.RefID("subscription"); id != nil {
		return id
	}

	if parent := rec.Map("parent"); parent != nil {
		if details := parent.Map("subscription_details"); details != nil {
			if id := details.RefID("subscription"); id != nil {
				return id
			}
		}
	}

	for _, line := range rec.Map("lines").Slice("data") {
		if id := line.RefID("subscription"); id != nil {
			return id
		}
		if parent := line.Map("parent"); parent != nil {
			if details := parent.Map("subscription_item_details"); details != nil {
				if id := details.RefID("subscription"); id != nil {
					return id
				}
			}
		}
	}

	return nil
}

func (c *catalog) normalizeInvoice(rec domain.Record, orgID string) datatypes.JSONMap {
	return datatypes.JSONMap{
		"organizationId": orgID,
		"externalId":     rec.ID(),
		"chargeId":       rec.RefID("charge"),
		"subscriptionId": c.resolveInvoiceSubscription(rec),
		"customerId":     rec.RefID("customer"),
		"amountPaid":     rec.Num("amount_paid"),
		"amountDue":      rec.Num("amount_due"),
		"total":          rec.Num("total"),
		"subtotal":       rec.Num("subtotal"),
		"status":         rec.Str("status"),
		"billingReason":  rec.Str("billing_reason"),
		"currency":       rec.Str("currency"),
		"periodStart":    rec.Ts("period_start"),
		"periodEnd":      rec.Ts("period_end"),
		"lineItems":      c.normalizeLineItems(rec.Map("lines").Slice("data")),
		"createdAt":      rec.Ts("created"),
	}
}

func (c *catalog) normalizePaymentIntent(rec domain.Record, orgID string) datatypes.JSONMap {
	return datatypes.JSONMap{
		"organizationId": orgID,
		"externalId":     rec.ID(),
		"amount":         rec.Num("amount"),
		"amountReceived": rec.Num("amount_received"),
		"currency":       rec.Str("currency"),
		"status":         rec.Str("status"),
		"description":    rec.Str("description"),
		"customerId":     rec.RefID("customer"),
		"invoiceId":      rec.RefID("invoice"),
		"latestChargeId": rec.RefID("latest_charge"),
		"createdAt":      rec.Ts("created"),
	}
}

func (c *catalog) normalizeSubscription(rec domain.Record, orgID string) datatypes.JSONMap {
	rawItems := rec.Map("items").Slice("data")
	items := make([]datatypes.JSONMap, 0, len(rawItems))
	mrr := 0.0

	for _, rawItem := range rawItems {
		item, contribution := c.normalizeSubscriptionItem(rawItem)
		items = append(items, item)
		mrr += contribution
	}

	return datatypes.JSONMap{
		"organizationId":     orgID,
		"externalId":         rec.ID(),
		"customerId":         rec.RefID("customer"),
		"status":             rec.Str("status"),
		"currentPeriodStart": rec.Ts("current_period_start"),
		"currentPeriodEnd":   rec.Ts("current_period_end"),
		"cancelAtPeriodEnd":  rec.Bool("cancel_at_period_end"),
		"canceledAt":         rec.Ts("canceled_at"),
		"items":              items,
		"mrr":                roundCents(mrr),
		"createdAt":          rec.Ts("created"),
	}
}

// normalizeSubscriptionItem flattens one subscription item and computes its
// monthly-normalized revenue contribution in major units. Yearly amounts
// divide by twelve, weekly amounts multiply by four, and a missing interval
// is treated as monthly.
func (c *catalog) normalizeSubscriptionItem(item domain.Record) (datatypes.JSONMap, float64) {
	price := item.Map("price")
	if price == nil {
		price = item.Map("plan")
	}

	var priceID, productID, currency, interval any
	unitAmount := 0.0
	if price != nil {
		if id := price.ID(); id != "" {
			priceID = id
		}
		productID = price.RefID("product")
		currency = price.Str("currency")
		unitAmount = price.Num("unit_amount")
		if unitAmount == 0 {
			unitAmount = price.Num("amount") // legacy plan shape
		}
		if recurring := price.Map("recurring"); recurring != nil {
			interval = recurring.Str("interval")
		}
		if interval == nil {
			interval = price.Str("interval")
		}
	}

	// A missing quantity means a single seat for the revenue math, but the
	// stored field keeps the vendor's absence.
	quantity := item.Num("quantity")
	if quantity == 0 {
		quantity = 1
	}

	monthlyMinor := unitAmount * quantity
	switch interval {
	case "year":
		monthlyMinor = monthlyMinor / 12
	case "week":
		monthlyMinor = monthlyMinor * 4
	}

	normalized := datatypes.JSONMap{
		"priceId":         priceID,
		"productId":       productID,
		"productName":     c.productName(productID),
		"quantity":        item.IntOrNil("quantity"),
		"unitAmount":      unitAmount,
		"currency":        currency,
		"billingInterval": intervalOrMonth(interval),
	}
	return normalized, monthlyMinor / 100
}

func (c *catalog) normalizeProduct(rec domain.Record, orgID string) datatypes.JSONMap {
	c.remember(rec.ID(), rec.Str("name"))

	return datatypes.JSONMap{
		"organizationId": orgID,
		"externalId":     rec.ID(),
		"name":           rec.Str("name"),
		"description":    rec.Str("description"),
		"active":         rec.Bool("active"),
		"defaultPriceId": rec.RefID("default_price"),
		"createdAt":      rec.Ts("created"),
	}
}

func (c *catalog) normalizePrice(rec domain.Record, orgID string) datatypes.JSONMap {
	var interval, intervalCount any
	if recurring := rec.Map("recurring"); recurring != nil {
		interval = recurring.Str("interval")
		intervalCount = recurring.IntOrNil("interval_count")
	}

	productID := rec.RefID("product")

	return datatypes.JSONMap{
		"organizationId": orgID,
		"externalId":     rec.ID(),
		"productId":      productID,
		"productName":    c.productName(productID),
		"currency":       rec.Str("currency"),
		"unitAmount":     rec.Num("unit_amount"),
		"active":         rec.Bool("active"),
		"type":           rec.Str("type"),
		"interval":       interval,
		"intervalCount":  intervalCount,
		"createdAt":      rec.Ts("created"),
	}
}

func (c *catalog) normalizeCustomer(rec domain.Record, orgID string) datatypes.JSONMap {
	return datatypes.JSONMap{
		"organizationId": orgID,
		"externalId":     rec.ID(),
		"email":          rec.Str("email"),
		"name":           rec.Str("name"),
		"phone":          rec.Str("phone"),
		"currency":       rec.Str("currency"),
		"createdAt":      rec.Ts("created"),
	}
}

func intervalOrMonth(interval any) any {
	if interval == nil {
		return "month"
	}
	return interval
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
