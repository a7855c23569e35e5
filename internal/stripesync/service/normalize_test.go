package service

import (
	"encoding/json"
	"testing"

	"github.com/metricdock/metricdock/internal/stripesync/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func record(t *testing.T, raw string) domain.Record {
	t.Helper()
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	return domain.Record(rec)
}

func TestSubscriptionMRRNormalization(t *testing.T) {
	tests := []struct {
		name string
		item string
		want float64
	}{
		{
			name: "yearly divides by twelve",
			item: `{"quantity": 2, "price": {"id": "price_1", "unit_amount": 1200, "currency": "usd", "recurring": {"interval": "year"}}}`,
			want: 2.00,
		},
		{
			name: "weekly multiplies by four",
			item: `{"quantity": 1, "price": {"id": "price_2", "unit_amount": 500, "currency": "usd", "recurring": {"interval": "week"}}}`,
			want: 20.00,
		},
		{
			name: "missing interval treated as monthly",
			item: `{"quantity": 3, "price": {"id": "price_3", "unit_amount": 1000, "currency": "usd"}}`,
			want: 30.00,
		},
		{
			name: "missing quantity bills a single seat",
			item: `{"price": {"id": "price_4", "unit_amount": 700, "currency": "usd", "recurring": {"interval": "month"}}}`,
			want: 7.00,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := newCatalog()
			sub := record(t, `{"id": "sub_1", "customer": "cus_1", "status": "active", "items": {"data": [`+tt.item+`]}}`)

			body := cat.normalizeSubscription(sub, "org1")
			assert.Equal(t, tt.want, body["mrr"])
		})
	}
}

func TestSubscriptionMRRSumsAcrossItems(t *testing.T) {
	cat := newCatalog()
	sub := record(t, `{
		"id": "sub_1",
		"status": "active",
		"items": {"data": [
			{"quantity": 2, "price": {"id": "p1", "unit_amount": 1200, "recurring": {"interval": "year"}}},
			{"quantity": 1, "price": {"id": "p2", "unit_amount": 500, "recurring": {"interval": "week"}}}
		]}
	}`)

	body := cat.normalizeSubscription(sub, "org1")
	assert.Equal(t, 22.00, body["mrr"])

	items, ok := body["items"].([]datatypes.JSONMap)
	require.True(t, ok)
	require.Len(t, items, 2)
	assert.Equal(t, "year", items[0]["billingInterval"])
	assert.Equal(t, "week", items[1]["billingInterval"])
}

func TestSubscriptionLegacyPlanShape(t *testing.T) {
	cat := newCatalog()
	sub := record(t, `{
		"id": "sub_1",
		"status": "active",
		"items": {"data": [
			{"quantity": 1, "plan": {"id": "plan_1", "amount": 1000, "interval": "month", "product": "prod_1"}}
		]}
	}`)

	body := cat.normalizeSubscription(sub, "org1")
	assert.Equal(t, 10.00, body["mrr"])
}

func TestInvoiceSubscriptionPrecedence(t *testing.T) {
	cat := newCatalog()

	t.Run("direct field wins over line item", func(t *testing.T) {
		invoice := record(t, `{
			"id": "in_1",
			"subscription": "sub_direct",
			"lines": {"data": [{"subscription": "sub_from_line"}]}
		}`)
		assert.Equal(t, "sub_direct", cat.resolveInvoiceSubscription(invoice))
	})

	t.Run("parent subscription details beats line item", func(t *testing.T) {
		invoice := record(t, `{
			"id": "in_2",
			"parent": {"subscription_details": {"subscription": "sub_parent"}},
			"lines": {"data": [{"subscription": "sub_from_line"}]}
		}`)
		assert.Equal(t, "sub_parent", cat.resolveInvoiceSubscription(invoice))
	})

	t.Run("line item used when nothing else present", func(t *testing.T) {
		invoice := record(t, `{
			"id": "in_3",
			"lines": {"data": [
				{"parent": {"subscription_item_details": {"subscription": "sub_item_parent"}}}
			]}
		}`)
		assert.Equal(t, "sub_item_parent", cat.resolveInvoiceSubscription(invoice))
	})

	t.Run("nil when all sources exhausted", func(t *testing.T) {
		invoice := record(t, `{"id": "in_4", "lines": {"data": [{"description": "x"}]}}`)
		assert.Nil(t, cat.resolveInvoiceSubscription(invoice))
	})
}

func TestLineItemNewStylePricingShape(t *testing.T) {
	cat := newCatalog()
	cat.remember("prod_1", "Starter Plan")

	line := record(t, `{
		"description": "Starter",
		"amount": 900,
		"quantity": 2,
		"pricing": {"price_details": {"price": "price_1", "product": "prod_1"}},
		"type": "subscription"
	}`)

	item := cat.normalizeLineItem(line)
	assert.Equal(t, "price_1", item["priceId"])
	assert.Equal(t, "prod_1", item["productId"])
	assert.Equal(t, "Starter Plan", item["productName"])
	assert.Equal(t, float64(900), item["amount"])
	assert.Equal(t, int64(2), item["quantity"])
	assert.Equal(t, "subscription", item["type"])
}

func TestLineItemLegacyPriceShape(t *testing.T) {
	cat := newCatalog()

	line := record(t, `{
		"description": "Pro",
		"amount": 4900,
		"quantity": 1,
		"price": {"id": "price_9", "product": "prod_9"}
	}`)

	item := cat.normalizeLineItem(line)
	assert.Equal(t, "price_9", item["priceId"])
	assert.Equal(t, "prod_9", item["productId"])
	assert.Nil(t, item["productName"]) // catalog miss is tolerated
	assert.Nil(t, item["type"])
}

func TestLineItemNullSafety(t *testing.T) {
	cat := newCatalog()
	item := cat.normalizeLineItem(record(t, `{}`))

	for _, key := range []string{"description", "quantity", "priceId", "productId", "productName", "type"} {
		value, present := item[key]
		assert.True(t, present, "key %s must exist", key)
		assert.Nil(t, value, "key %s must be nil", key)
	}
	assert.Equal(t, float64(0), item["amount"])
}

func TestPaymentAttributionFromExpandedInvoice(t *testing.T) {
	cat := newCatalog()
	charge := record(t, `{
		"id": "ch_1",
		"amount": 2500,
		"currency": "usd",
		"status": "succeeded",
		"customer": "cus_1",
		"invoice": {
			"id": "in_1",
			"subscription": "sub_1",
			"lines": {"data": [
				{"description": "Starter", "amount": 2500, "quantity": 1, "price": {"id": "price_1", "product": "P1"}}
			]}
		}
	}`)

	body := cat.normalizePayment(charge, "org1")
	assert.Equal(t, "in_1", body["invoiceId"])
	assert.Equal(t, "sub_1", body["subscriptionId"])

	items := lineItemsOf(t, body)
	require.Len(t, items, 1)
	assert.Equal(t, "P1", items[0]["productId"])
	assert.Equal(t, "price_1", items[0]["priceId"])
}

func TestPaymentAttributionChain(t *testing.T) {
	cat := newCatalog()

	t.Run("metadata hints when no invoice", func(t *testing.T) {
		charge := record(t, `{
			"id": "ch_2",
			"amount": 5000,
			"metadata": {"product_name": "Consulting Pack", "product_id": "prod_c"}
		}`)
		body := cat.normalizePayment(charge, "org1")

		items := lineItemsOf(t, body)
		require.Len(t, items, 1)
		assert.Equal(t, "Consulting Pack", items[0]["productName"])
		assert.Equal(t, "prod_c", items[0]["productId"])
		assert.Equal(t, float64(5000), items[0]["amount"])
	})

	t.Run("camelCase metadata hints", func(t *testing.T) {
		charge := record(t, `{
			"id": "ch_3",
			"amount": 100,
			"metadata": {"productName": "Addon"}
		}`)
		body := cat.normalizePayment(charge, "org1")

		items := lineItemsOf(t, body)
		require.Len(t, items, 1)
		assert.Equal(t, "Addon", items[0]["productName"])
		assert.Nil(t, items[0]["productId"])
	})

	t.Run("empty without invoice or hints", func(t *testing.T) {
		charge := record(t, `{"id": "ch_4", "amount": 900, "description": "Consulting"}`)
		body := cat.normalizePayment(charge, "org1")
		assert.Empty(t, lineItemsOf(t, body))
	})
}

func TestPaymentNullSafety(t *testing.T) {
	cat := newCatalog()
	body := cat.normalizePayment(record(t, `{"id": "ch_min"}`), "org1")

	for _, key := range []string{"currency", "status", "description", "customerId", "paymentIntentId", "invoiceId", "subscriptionId", "createdAt"} {
		value, present := body[key]
		assert.True(t, present, "key %s must exist", key)
		assert.Nil(t, value, "key %s must be nil", key)
	}
	assert.Equal(t, float64(0), body["amount"])
	assert.Equal(t, float64(0), body["amountRefunded"])
	assert.Equal(t, false, body["refunded"])
	assert.Empty(t, lineItemsOf(t, body))
}

func TestPriceNormalizationResolvesCatalogName(t *testing.T) {
	cat := newCatalog()
	cat.remember("prod_1", "Starter Plan")

	price := record(t, `{
		"id": "price_1",
		"product": "prod_1",
		"currency": "usd",
		"unit_amount": 1500,
		"active": true,
		"type": "recurring",
		"recurring": {"interval": "month", "interval_count": 1}
	}`)

	body := cat.normalizePrice(price, "org1")
	assert.Equal(t, "Starter Plan", body["productName"])
	assert.Equal(t, "month", body["interval"])
	assert.Equal(t, int64(1), body["intervalCount"])
	assert.Equal(t, float64(1500), body["unitAmount"])
}

func TestPriceOneTimeHasNilInterval(t *testing.T) {
	cat := newCatalog()
	price := record(t, `{"id": "price_ot", "product": "prod_x", "currency": "usd", "unit_amount": 700, "type": "one_time"}`)

	body := cat.normalizePrice(price, "org1")
	assert.Nil(t, body["interval"])
	assert.Nil(t, body["intervalCount"])
	assert.Nil(t, body["productName"])
}

func TestCustomerNormalization(t *testing.T) {
	cat := newCatalog()
	body := cat.normalizeCustomer(record(t, `{"id": "cus_1", "email": "a@b.co", "created": 1700000000}`), "org1")

	assert.Equal(t, "org1", body["organizationId"])
	assert.Equal(t, "cus_1", body["externalId"])
	assert.Equal(t, "a@b.co", body["email"])
	assert.Equal(t, int64(1700000000), body["createdAt"])
	assert.Nil(t, body["name"])
	assert.Nil(t, body["phone"])
	assert.Nil(t, body["currency"])
}

func lineItemsOf(t *testing.T, body map[string]any) []datatypes.JSONMap {
	t.Helper()
	raw, present := body["lineItems"]
	require.True(t, present)

	items, ok := raw.([]datatypes.JSONMap)
	require.True(t, ok)
	return items
}
