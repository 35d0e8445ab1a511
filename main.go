package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/tidewell/agentdeck/api"
	"github.com/tidewell/agentdeck/config"
	"github.com/tidewell/agentdeck/db"
	"github.com/tidewell/agentdeck/log"
	"github.com/tidewell/agentdeck/notifications"
	"github.com/tidewell/agentdeck/workers/search"
	"github.com/tidewell/agentdeck/workers/title"
	"github.com/tidewell/agentdeck/workspace"
)

func main() {
	cfg := config.Get()

	// Initialize database
	_ = db.GetDB()
	log.Info().Str("path", cfg.DatabasePath).Msg("database initialized")

	// Load settings and apply log level
	settings, err := db.LoadUserSettings()
	if err == nil && settings.Preferences.LogLevel != "" {
		log.SetLevel(settings.Preferences.LogLevel)
		log.Info().Str("level", settings.Preferences.LogLevel).Msg("log level set from settings")
	}

	// Set Gin to release mode to disable its default debug logging
	// We use our own zerolog-based request logger instead
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.Recovery())

	// Request logging middleware (uses zerolog)
	r.Use(log.GinLogger())

	// CORS for development
	if cfg.IsDevelopment() {
		r.Use(corsMiddleware())
	}

	// Security headers (production only)
	if !cfg.IsDevelopment() {
		r.Use(securityHeadersMiddleware())
	}

	// Gzip compression, skipping endpoints that stream or are already
	// compressed
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{
			"/api/notifications/stream", // SSE - needs streaming
		}),
		gzip.WithExcludedPathsRegexs([]string{
			`^/api/sessions/[^/]+/subscribe$`, // WebSocket - protocol upgrade
			`^/api/sessions/[^/]+/export$`,    // gzip archive
		}),
	))

	// Trust proxy headers
	r.SetTrustedProxies(nil)

	// Ignore .well-known requests (Chrome DevTools, etc.)
	r.GET("/.well-known/*path", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	// Runtime client and console manager
	api.InitChatManager()

	// Workspace directory for attachments and shared files
	ws, err := workspace.NewService(cfg.WorkspaceDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.WorkspaceDir).Msg("failed to initialize workspace")
	}
	ws.SetChangeHandler(func(event workspace.ChangeEvent) {
		notifications.GetService().NotifyWorkspaceChanged(event.Path, event.Op.String())
	})
	if err := ws.Start(); err != nil {
		log.Error().Err(err).Msg("workspace watcher failed to start")
	}
	api.SetWorkspace(ws)

	// Setup API routes
	api.SetupRoutes(r)

	// Start background workers
	log.Info().Msg("starting background workers")
	searchWorker := search.NewSyncWorker()
	searchWorker.Start()
	titleWorker := title.NewWorker()
	titleWorker.Start()

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{
		Addr:     addr,
		Handler:  r,
		ErrorLog: log.StdErrorLogger(),
	}

	// Start server
	go func() {
		log.Info().
			Str("addr", addr).
			Str("env", cfg.Env).
			Msg("server starting")

		// Print network addresses
		printNetworkAddresses(cfg.Port)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Stop workers first (they may hold db connections)
	searchWorker.Stop()
	titleWorker.Stop()

	// Cancel in-flight turns and close console subscribers
	chatCtx, cancelChat := context.WithTimeout(context.Background(), 10*time.Second)
	if err := api.ShutdownChatManager(chatCtx); err != nil {
		log.Error().Err(err).Msg("chat manager shutdown error")
	}
	cancelChat()

	// Stop the workspace watcher
	if err := ws.Stop(); err != nil {
		log.Error().Err(err).Msg("workspace stop error")
	}

	// Shutdown notification service to close all SSE connections
	notifications.GetService().Shutdown()

	// Shutdown server with timeout to close remaining HTTP connections
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	// Close database
	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("database close error")
	}

	log.Info().Msg("server stopped")
}

// corsMiddleware creates a CORS middleware for Gin
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:5173": true, // vite dev server
			"http://localhost:8710": true,
		}

		if allowedOrigins[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, Upload-Offset, Upload-Length, Upload-Metadata, Tus-Resumable, X-Requested-With, X-Refresh-Token")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Upload-Offset, Upload-Length, Location, Tus-Resumable")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func printNetworkAddresses(port int) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return
	}

	var addresses []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok {
				if ip4 := ipnet.IP.To4(); ip4 != nil {
					addresses = append(addresses, fmt.Sprintf("http://%s:%d", ip4.String(), port))
				}
			}
		}
	}

	for _, addr := range addresses {
		log.Info().Str("url", addr).Msg("network")
	}
}

// securityHeadersMiddleware adds security headers to all responses
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// HSTS - enforce HTTPS for 1 year, include subdomains
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")

		// Prevent MIME type sniffing
		c.Header("X-Content-Type-Options", "nosniff")

		// XSS protection (legacy, but still useful for older browsers)
		c.Header("X-XSS-Protection", "1; mode=block")

		// Clickjacking protection
		c.Header("X-Frame-Options", "SAMEORIGIN")

		// Cross-Origin-Opener-Policy for origin isolation
		c.Header("Cross-Origin-Opener-Policy", "same-origin")

		// Referrer policy - don't leak full URLs to other origins
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Permissions policy - disable unnecessary features
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		c.Next()
	}
}
