// Package stripeclient is a thin REST client for the Stripe list APIs the
// sync pipeline consumes. It only knows how to page through collections;
// interpreting the records is the caller's job.
package stripeclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/metricdock/metricdock/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	EntityCharges        = "charges"
	EntityPaymentIntents = "payment_intents"
	EntitySubscriptions  = "subscriptions"
	EntityProducts       = "products"
	EntityPrices         = "prices"
	EntityInvoices       = "invoices"
	EntityCustomers      = "customers"
)

var entityPaths = map[string]string{
	EntityCharges:        "/v1/charges",
	EntityPaymentIntents: "/v1/payment_intents",
	EntitySubscriptions:  "/v1/subscriptions",
	EntityProducts:       "/v1/products",
	EntityPrices:         "/v1/prices",
	EntityInvoices:       "/v1/invoices",
	EntityCustomers:      "/v1/customers",
}

// ListParams shapes one list request. Zero values are omitted from the
// query string.
type ListParams struct {
	Entity        string
	PageSize      int
	StartingAfter string
	CreatedGTE    int64
	CreatedLTE    int64
	Expand        []string
}

// Page is one page of raw records plus the cursor signal.
type Page struct {
	Items   []map[string]any
	HasMore bool
}

// APIError is a non-2xx response from the vendor API.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stripe api error %d: %s", e.StatusCode, e.Message)
}

// IsAuthError reports whether the error is a credential rejection.
func IsAuthError(err error) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}

type Params struct {
	fx.In

	Cfg config.Config
	Log *zap.Logger
}

// Client lists vendor collections over HTTP.
type Client struct {
	cfg      config.StripeConfig
	log      *zap.Logger
	http     *http.Client
	pageSize int
}

func New(p Params) *Client {
	pageSize := p.Cfg.Stripe.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	return &Client{
		cfg:      p.Cfg.Stripe,
		log:      p.Log.Named("stripe.client"),
		http:     &http.Client{Timeout: 30 * time.Second},
		pageSize: pageSize,
	}
}

type listResponse struct {
	Object  string           `json:"object"`
	Data    []map[string]any `json:"data"`
	HasMore bool             `json:"has_more"`
}

// List fetches one page of an entity collection.
func (c *Client) List(ctx context.Context, creds Credentials, params ListParams) (Page, error) {
	path, ok := entityPaths[params.Entity]
	if !ok {
		return Page{}, fmt.Errorf("unknown entity %q", params.Entity)
	}

	query := url.Values{}
	pageSize := params.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = c.pageSize
	}
	query.Set("limit", strconv.Itoa(pageSize))
	if params.StartingAfter != "" {
		query.Set("starting_after", params.StartingAfter)
	}
	if params.CreatedGTE > 0 {
		query.Set("created[gte]", strconv.FormatInt(params.CreatedGTE, 10))
	}
	if params.CreatedLTE > 0 {
		query.Set("created[lte]", strconv.FormatInt(params.CreatedLTE, 10))
	}
	for _, expand := range params.Expand {
		query.Add("expand[]", expand)
	}
	if params.Entity == EntitySubscriptions {
		query.Set("status", "all")
	}

	body, err := c.get(ctx, path, query, creds)
	if err != nil {
		return Page{}, err
	}

	var parsed listResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Page{}, fmt.Errorf("decode %s list: %w", params.Entity, err)
	}
	return Page{Items: parsed.Data, HasMore: parsed.HasMore}, nil
}

// VerifyCredentials makes a cheap authenticated call so callers can reject
// bad keys before mutating any state.
func (c *Client) VerifyCredentials(ctx context.Context, creds Credentials) error {
	_, err := c.get(ctx, "/v1/account", url.Values{}, creds)
	return err
}

func (c *Client) get(ctx context.Context, path string, query url.Values, creds Credentials) ([]byte, error) {
	if strings.TrimSpace(creds.SecretKey) == "" {
		return nil, ErrNoCredentials
	}

	endpoint := strings.TrimRight(c.cfg.APIBaseURL, "/") + path
	if len(query) > 0 {
		endpoint = endpoint + "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+creds.SecretKey)
	req.Header.Set("Accept", "application/json")
	if creds.AccountHeader != "" {
		req.Header.Set("Stripe-Account", creds.AccountHeader)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
			RequestID:  resp.Header.Get("Request-Id"),
		}
		c.log.Warn("stripe api error",
			zap.String("path", path),
			zap.Int("status", apiErr.StatusCode),
			zap.String("request_id", apiErr.RequestID),
		)
		return nil, apiErr
	}
	return body, nil
}

func errorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(body))
}

var Module = fx.Module("stripe.client",
	fx.Provide(New),
)
