package stripeclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/metricdock/metricdock/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(baseURL string, stripe config.StripeConfig) *Client {
	stripe.APIBaseURL = baseURL
	return New(Params{
		Cfg: config.Config{Stripe: stripe},
		Log: zap.NewNop(),
	})
}

func TestResolvePrefersPlatformKeyWithConnectedAccount(t *testing.T) {
	client := newTestClient("http://localhost", config.StripeConfig{
		PlatformSecretKey: "sk_platform",
		LegacyAPIKey:      "sk_legacy",
	})

	creds, err := client.Resolve(CredentialSource{
		PlatformAccountID: "acct_1",
		AccessToken:       "sk_oauth",
		LegacyAPIKey:      "sk_conn_legacy",
	})
	require.NoError(t, err)
	assert.Equal(t, "sk_platform", creds.SecretKey)
	assert.Equal(t, "acct_1", creds.AccountHeader)
}

func TestResolveFallsBackToAccessToken(t *testing.T) {
	client := newTestClient("http://localhost", config.StripeConfig{
		LegacyAPIKey: "sk_legacy",
	})

	creds, err := client.Resolve(CredentialSource{
		PlatformAccountID: "acct_1", // useless without a platform key
		AccessToken:       "sk_oauth",
		LegacyAPIKey:      "sk_conn_legacy",
	})
	require.NoError(t, err)
	assert.Equal(t, "sk_oauth", creds.SecretKey)
	assert.Empty(t, creds.AccountHeader)
}

func TestResolveFallsBackToLegacyKeys(t *testing.T) {
	client := newTestClient("http://localhost", config.StripeConfig{
		LegacyAPIKey: "sk_env_legacy",
	})

	creds, err := client.Resolve(CredentialSource{LegacyAPIKey: "sk_conn_legacy"})
	require.NoError(t, err)
	assert.Equal(t, "sk_conn_legacy", creds.SecretKey)

	creds, err = client.Resolve(CredentialSource{})
	require.NoError(t, err)
	assert.Equal(t, "sk_env_legacy", creds.SecretKey)
}

func TestResolveFailsWithoutAnyStrategy(t *testing.T) {
	client := newTestClient("http://localhost", config.StripeConfig{})

	_, err := client.Resolve(CredentialSource{})
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestListBuildsQueryAndParsesPage(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	var gotAuth, gotAccount string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		gotAuth = r.Header.Get("Authorization")
		gotAccount = r.Header.Get("Stripe-Account")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"ch_1","amount":2500},{"id":"ch_2","amount":900}],"has_more":true}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, config.StripeConfig{PageSize: 100})

	page, err := client.List(context.Background(), Credentials{SecretKey: "sk_platform", AccountHeader: "acct_1"}, ListParams{
		Entity:        EntityCharges,
		PageSize:      50,
		StartingAfter: "ch_0",
		CreatedGTE:    1700000000,
		Expand:        []string{"data.invoice"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1/charges", gotPath)
	assert.Equal(t, []string{"50"}, gotQuery["limit"])
	assert.Equal(t, []string{"ch_0"}, gotQuery["starting_after"])
	assert.Equal(t, []string{"1700000000"}, gotQuery["created[gte]"])
	assert.Equal(t, []string{"data.invoice"}, gotQuery["expand[]"])
	assert.Equal(t, "Bearer sk_platform", gotAuth)
	assert.Equal(t, "acct_1", gotAccount)

	assert.True(t, page.HasMore)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "ch_1", page.Items[0]["id"])
}

func TestListSubscriptionsRequestsAllStatuses(t *testing.T) {
	var gotStatus string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStatus = r.URL.Query().Get("status")
		_, _ = w.Write([]byte(`{"object":"list","data":[],"has_more":false}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, config.StripeConfig{})
	_, err := client.List(context.Background(), Credentials{SecretKey: "sk_test"}, ListParams{Entity: EntitySubscriptions})
	require.NoError(t, err)
	assert.Equal(t, "all", gotStatus)
}

func TestListSurfacesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Request-Id", "req_123")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid API Key provided","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, config.StripeConfig{})
	_, err := client.List(context.Background(), Credentials{SecretKey: "sk_bad"}, ListParams{Entity: EntityCustomers})
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid API Key provided", apiErr.Message)
	assert.Equal(t, "req_123", apiErr.RequestID)
	assert.True(t, IsAuthError(err))
}

func TestVerifyCredentialsHitsAccountEndpoint(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"id":"acct_1"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, config.StripeConfig{})
	err := client.VerifyCredentials(context.Background(), Credentials{SecretKey: "sk_test"})
	require.NoError(t, err)
	assert.Equal(t, "/v1/account", gotPath)
}
