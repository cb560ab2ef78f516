package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/goalgrid/goalgrid-gateway/internal/authapi"
	"github.com/goalgrid/goalgrid-gateway/internal/config"
	"github.com/goalgrid/goalgrid-gateway/internal/credentials"
	"github.com/goalgrid/goalgrid-gateway/internal/gateway"
	"github.com/goalgrid/goalgrid-gateway/internal/metrics"
	"github.com/goalgrid/goalgrid-gateway/internal/server"
	"github.com/goalgrid/goalgrid-gateway/internal/sessions"
	"github.com/goalgrid/goalgrid-gateway/internal/tokenrefresher"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

func main() {
	// Logging setup
	slog.SetDefault(jsonLogger)
	// A .env file is optional, the variables it sets are picked up by the config handler
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("loading the .env file failed", "error", err)
		os.Exit(1)
	}
	// Load configuration
	ch := config.NewConfigHandler()
	gwConfig, err := ch.Config()
	if err != nil {
		slog.Error("loading the configuration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("loaded config", "config", gwConfig)
	// Set log level to "debug" if activated
	setLogLevel(gwConfig.DebugMode)
	ch.HandleChanges(func(newConfig config.Config, err error) {
		if err != nil {
			slog.Error("the changed configuration is invalid, keeping the current one", "error", err)
			return
		}
		// only the log level is applied without a restart
		setLogLevel(newConfig.DebugMode)
	})
	ch.Watch()
	// Setup
	e := echo.New()
	e.Pre(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}), middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	// The banner and the port do not respect the logger formatting we set below so we remove them
	// the port will be logged further down when the server starts.
	e.HideBanner = true
	e.HidePort = true
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	// Version endpoint
	buildInfo, ok := debug.ReadBuildInfo()
	version := ""
	if ok && buildInfo != nil {
		version = buildInfo.Main.Version
	}
	e.GET("/version", func(c echo.Context) error {
		return c.String(http.StatusOK, version)
	})
	// Initialize the credential and session storage
	stores, err := newStorage(gwConfig)
	if err != nil {
		slog.Error("storage initialization failed", "error", err)
		os.Exit(1)
	}
	defer stores.Close()
	// Create session store
	sessionStore, err := sessions.NewSessionStore(
		sessions.WithSessionRepository(stores.sessions),
		sessions.WithCredentialRemover(stores.credentials),
		sessions.WithConfig(gwConfig.Sessions),
	)
	if err != nil {
		slog.Error("failed to initialize sessions", "error", err)
		os.Exit(1)
	}
	// Backend auth API client
	authClient, err := authapi.NewClient(
		authapi.WithBaseURL(gwConfig.API.BaseURL),
		authapi.WithTimeout(gwConfig.API.RequestTimeout),
	)
	if err != nil {
		slog.Error("auth API client initialization failed", "error", err)
		os.Exit(1)
	}
	// Authenticated request gateway
	gwOptions := []gateway.GatewayOption{
		gateway.WithHTTPClient(&http.Client{Timeout: gwConfig.API.RequestTimeout}),
		gateway.WithCredentialStore(stores.credentials),
		gateway.WithRefreshEndpoint(authClient),
		gateway.WithCookieMirror(credentials.ContextMirror{FallbackTTL: gwConfig.Cookie.FallbackTTL}),
		gateway.WithSessionTerminator(sessionStore),
		gateway.WithRefreshTimeout(gwConfig.Refresh.Timeout),
		gateway.WithWaitTimeout(gwConfig.Refresh.WaitTimeout),
	}
	if gwConfig.Monitoring.Prometheus.Enabled {
		gatewayMetrics, err := metrics.NewGatewayMetrics(prometheus.DefaultRegisterer)
		if err != nil {
			slog.Error("gateway metrics initialization failed", "error", err)
			os.Exit(1)
		}
		gwOptions = append(gwOptions, gateway.WithMetrics(gatewayMetrics))
	}
	gw, err := gateway.NewGateway(gwOptions...)
	if err != nil {
		slog.Error("gateway initialization failed", "error", err)
		os.Exit(1)
	}
	// Initialize the backend-for-frontend handlers
	serverOptions := []server.ServerOption{
		server.WithAPIURL(gwConfig.API.BaseURL),
		server.WithGateway(gw),
		server.WithAuthClient(authClient),
		server.WithSessionStore(sessionStore),
	}
	if gwConfig.Server.UIServerURL != nil {
		serverOptions = append(serverOptions, server.WithUIServerURL(gwConfig.Server.UIServerURL))
	}
	bff, err := server.NewServer(serverOptions...)
	if err != nil {
		slog.Error("server handlers initialization failed", "error", err)
		os.Exit(1)
	}
	bff.RegisterHandlers(e, commonMiddlewares...)
	// Proactive refresh of the credentials that expire soon
	if gwConfig.Refresh.Proactive {
		if stores.expiring == nil {
			slog.Warn("proactive refresh requires the redis credential store, it is disabled", "store", gwConfig.Credentials.Type)
		} else {
			refresher, err := tokenrefresher.NewTokenRefresher(
				tokenrefresher.WithExpiresSoonMinutes(gwConfig.Refresh.ExpiresSoonMinutes),
				tokenrefresher.WithCredentials(stores.expiring),
				tokenrefresher.WithSessions(stores.sessions),
				tokenrefresher.WithRefresher(gw),
			)
			if err != nil {
				slog.Error("token refresher initialization failed", "error", err)
				os.Exit(1)
			}
			scheduler, err := refresher.GetScheduler()
			if err != nil {
				slog.Error("token refresher scheduling failed", "error", err)
				os.Exit(1)
			}
			scheduler.StartAsync()
			defer scheduler.Stop()
		}
	}
	// Rate limiting
	if gwConfig.Server.RateLimits.Enabled {
		e.Use(middleware.RateLimiter(
			middleware.NewRateLimiterMemoryStoreWithConfig(
				middleware.RateLimiterMemoryStoreConfig{
					Rate:      rate.Limit(gwConfig.Server.RateLimits.Rate),
					Burst:     gwConfig.Server.RateLimits.Burst,
					ExpiresIn: 3 * time.Minute,
				}),
		),
		)
	}
	// CORS
	if len(gwConfig.Server.AllowOrigin) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: gwConfig.Server.AllowOrigin, AllowCredentials: true}))
	}
	// Sentry
	if gwConfig.Monitoring.Sentry.Enabled {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              string(gwConfig.Monitoring.Sentry.Dsn),
			TracesSampleRate: gwConfig.Monitoring.Sentry.SampleRate,
			Environment:      gwConfig.Monitoring.Sentry.Environment,
		})
		if err != nil {
			slog.Error("sentry initialization failed", "error", err)
		}
		e.Use(sentryecho.New(sentryecho.Options{}))
	}
	// Prometheus
	if gwConfig.Monitoring.Prometheus.Enabled {
		e.Use(echoprometheus.NewMiddleware("goalgrid_gateway"))
		go func() {
			metricsServer := echo.New()
			metricsServer.HideBanner = true
			metricsServer.HidePort = true
			metricsServer.GET("/metrics", echoprometheus.NewHandler())
			err := metricsServer.Start(fmt.Sprintf(":%d", gwConfig.Monitoring.Prometheus.Port))
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("prometheus server failed to start", "error", err)
				os.Exit(1)
			}
		}()
	}
	// Start server
	address := fmt.Sprintf("%s:%d", gwConfig.Server.Host, gwConfig.Server.Port)
	slog.Info("starting the server on address " + address)
	go func() {
		err := e.Start(address)
		if err != nil && err != http.ErrServerClosed {
			slog.Error("shutting down the server gracefuly failed", "error", err)
			os.Exit(1)
		}
	}()
	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 10 seconds.
	// Use a buffered channel to avoid missing signals as recommended for signal.Notify
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	slog.Info("received signal to shut down the server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		slog.Error("shutting down the server gracefully failed", "error", err)
		os.Exit(1)
	}
}
