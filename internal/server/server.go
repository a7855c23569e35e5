package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/metricdock/metricdock/internal/clock"
	"github.com/metricdock/metricdock/internal/config"
	"github.com/metricdock/metricdock/internal/connection"
	connectiondomain "github.com/metricdock/metricdock/internal/connection/domain"
	"github.com/metricdock/metricdock/internal/docstore"
	docstoredomain "github.com/metricdock/metricdock/internal/docstore/domain"
	"github.com/metricdock/metricdock/internal/observability"
	obslogger "github.com/metricdock/metricdock/internal/observability/logger"
	obstracing "github.com/metricdock/metricdock/internal/observability/tracing"
	"github.com/metricdock/metricdock/internal/stripeclient"
	"github.com/metricdock/metricdock/internal/stripesync"
	stripesyncdomain "github.com/metricdock/metricdock/internal/stripesync/domain"
	"github.com/metricdock/metricdock/internal/synclock"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	config.Module,
	connection.Module,
	docstore.Module,
	stripeclient.Module,
	synclock.Module,
	stripesync.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// credentialVerifier is the slice of the vendor client the connect
// handler needs to check credentials before persisting them.
type credentialVerifier interface {
	Resolve(src stripeclient.CredentialSource) (stripeclient.Credentials, error)
	VerifyCredentials(ctx context.Context, creds stripeclient.Credentials) error
}

type Server struct {
	engine  *gin.Engine
	cfg     config.Config
	log     *zap.Logger
	clock   clock.Clock
	connSvc connectiondomain.Service
	syncSvc stripesyncdomain.Service
	store   docstoredomain.Store
	client  credentialVerifier
}

type ServerParams struct {
	fx.In

	Gin     *gin.Engine
	Cfg     config.Config
	Log     *zap.Logger
	Clock   clock.Clock
	ConnSvc connectiondomain.Service
	SyncSvc stripesyncdomain.Service
	Store   docstoredomain.Store
	Client  *stripeclient.Client
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:  p.Gin,
		cfg:     p.Cfg,
		log:     p.Log.Named("http.server"),
		clock:   p.Clock,
		connSvc: p.ConnSvc,
		syncSvc: p.SyncSvc,
		store:   p.Store,
		client:  p.Client,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	org := s.engine.Group("/v1/organizations/:org_id")
	org.Use(s.OrgContext())

	// -------- Stripe integration --------
	org.POST("/integrations/stripe/connect", s.ConnectStripe)
	org.DELETE("/integrations/stripe", s.DisconnectStripe)
	org.GET("/integrations/stripe/status", s.GetStripeStatus)
	org.GET("/integrations/stripe/runs", s.ListStripeSyncRuns)
	org.POST("/integrations/stripe/sync", s.TriggerStripeSync)
}
