package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	connectiondomain "github.com/metricdock/metricdock/internal/connection/domain"
	"github.com/metricdock/metricdock/internal/orgcontext"
	"github.com/metricdock/metricdock/internal/stripeclient"
	stripesyncdomain "github.com/metricdock/metricdock/internal/stripesync/domain"
	"gorm.io/datatypes"
)

type connectStripeRequest struct {
	PlatformAccountID string `json:"platformAccountId"`
	AccessToken       string `json:"accessToken"`
	APIKey            string `json:"apiKey"`
}

// connectionView is the wire shape of a connection. Credential material
// never leaves the service.
type connectionView struct {
	Provider        string            `json:"provider"`
	Status          string            `json:"status"`
	HasCredentials  bool              `json:"hasCredentials"`
	LastSyncAt      *time.Time        `json:"lastSyncAt"`
	LastSyncResults datatypes.JSONMap `json:"lastSyncResults,omitempty"`
	ErrorMessage    *string           `json:"errorMessage,omitempty"`
}

func viewOf(conn connectiondomain.Connection) connectionView {
	return connectionView{
		Provider:        string(conn.Provider),
		Status:          string(conn.Status),
		HasCredentials:  conn.PlatformAccountID != nil || conn.AccessToken != nil || conn.LegacyAPIKey != nil,
		LastSyncAt:      conn.LastSyncAt,
		LastSyncResults: conn.LastSyncResults,
		ErrorMessage:    conn.ErrorMessage,
	}
}

// presentStatus downgrades a syncing connection whose lease has expired
// to error, so pollers are not shown a run that died with its replica.
func (s *Server) presentStatus(conn connectiondomain.Connection) connectionView {
	view := viewOf(conn)
	if conn.Status == connectiondomain.StatusSyncing && conn.SyncStartedAt != nil {
		lease := time.Duration(s.cfg.SyncLeaseSeconds) * time.Second
		if lease > 0 && s.clock.Now().Sub(*conn.SyncStartedAt) >= lease {
			view.Status = string(connectiondomain.StatusError)
			stale := "sync lease expired"
			view.ErrorMessage = &stale
		}
	}
	return view
}

func (s *Server) ConnectStripe(c *gin.Context) {
	var req connectStripeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	// Check the credentials against the vendor before persisting them so a
	// typo'd key is a 400 here rather than a failed run later.
	creds, err := s.client.Resolve(stripeclient.CredentialSource{
		PlatformAccountID: strings.TrimSpace(req.PlatformAccountID),
		AccessToken:       strings.TrimSpace(req.AccessToken),
		LegacyAPIKey:      strings.TrimSpace(req.APIKey),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.client.VerifyCredentials(c.Request.Context(), creds); err != nil {
		if stripeclient.IsAuthError(err) {
			AbortWithError(c, stripesyncdomain.ErrCredentialsRejected)
			return
		}
		AbortWithError(c, err)
		return
	}

	conn, err := s.connSvc.Connect(c.Request.Context(), connectiondomain.ConnectRequest{
		Provider:          connectiondomain.ProviderStripe,
		PlatformAccountID: strings.TrimSpace(req.PlatformAccountID),
		AccessToken:       strings.TrimSpace(req.AccessToken),
		LegacyAPIKey:      strings.TrimSpace(req.APIKey),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": viewOf(conn)})
}

func (s *Server) DisconnectStripe(c *gin.Context) {
	ctx := c.Request.Context()

	if err := s.connSvc.Disconnect(ctx, connectiondomain.ProviderStripe); err != nil {
		AbortWithError(c, err)
		return
	}

	// Synced documents go with the connection, so a later reconnect
	// starts clean instead of resurrecting stale data.
	orgID, _ := orgcontext.OrgIDFromContext(ctx)
	var purged int64
	for _, collection := range stripesyncdomain.Collections {
		n, err := s.store.PurgeOrganization(ctx, collection, orgID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		purged += n
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"disconnected":  true,
		"purgedRecords": purged,
	}})
}

func (s *Server) GetStripeStatus(c *gin.Context) {
	ctx := c.Request.Context()

	conn, err := s.connSvc.Get(ctx, connectiondomain.ProviderStripe)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	orgID, _ := orgcontext.OrgIDFromContext(ctx)
	documents := make(map[string]int64, len(stripesyncdomain.Collections))
	for _, collection := range stripesyncdomain.Collections {
		count, err := s.store.CountByOrganization(ctx, collection, orgID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		documents[collection] = count
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"connection": s.presentStatus(conn),
		"documents":  documents,
	}})
}

func (s *Server) ListStripeSyncRuns(c *gin.Context) {
	var query struct {
		Limit int `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	runs, err := s.connSvc.ListRuns(c.Request.Context(), connectiondomain.ListRunsRequest{
		Provider: connectiondomain.ProviderStripe,
		Limit:    query.Limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": runs})
}

type triggerSyncRequest struct {
	SyncType      string `json:"syncType"`
	MaxPages      int    `json:"maxPages"`
	CreatedAfter  int64  `json:"createdAfter"`
	CreatedBefore int64  `json:"createdBefore"`
}

func (s *Server) TriggerStripeSync(c *gin.Context) {
	req := triggerSyncRequest{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	syncType := connectiondomain.SyncType(strings.TrimSpace(req.SyncType))
	switch syncType {
	case "", connectiondomain.SyncTypeFull, connectiondomain.SyncTypeIncremental:
	default:
		AbortWithError(c, newValidationError("syncType", "invalid_sync_type", "invalid sync type"))
		return
	}

	result, err := s.syncSvc.Sync(c.Request.Context(), stripesyncdomain.SyncRequest{
		SyncType:      syncType,
		MaxPages:      req.MaxPages,
		CreatedAfter:  req.CreatedAfter,
		CreatedBefore: req.CreatedBefore,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// The run may have partially failed; that is still a 200 with
	// success=false and the stage errors inline.
	c.JSON(http.StatusOK, gin.H{"data": result})
}
