package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/duydn-dev/identityserver/pkg/api"
	"github.com/duydn-dev/identityserver/pkg/clientauth"
	grantsqlite "github.com/duydn-dev/identityserver/pkg/grants/sqlite"
	"github.com/duydn-dev/identityserver/pkg/keys"
	keycache "github.com/duydn-dev/identityserver/pkg/keys/cache"
	keysqlite "github.com/duydn-dev/identityserver/pkg/keys/sqlite"
	"github.com/duydn-dev/identityserver/pkg/logger"
	"github.com/duydn-dev/identityserver/pkg/revocation"
	"github.com/duydn-dev/identityserver/pkg/sessions"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the trust service API server",
	Long: `Start the API server for key pair administration, grant and session
revocation, and the signature-authenticated external surface.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 65 * time.Second // must exceed the request timeout middleware
	serverIdleTimeout      = 60 * time.Second
)

func init() {
	serveCmd.Flags().String("address", ":8080", "Address to listen on")
	serveCmd.Flags().String("keys-db", "keys.db", "Path to the client key pair database")
	serveCmd.Flags().String("grants-db", "grants.db", "Path to the persisted grant database")
	serveCmd.Flags().String("redis-url", "", "Redis URL for the signature cache (empty disables caching)")
	serveCmd.Flags().String("static-api-key", "", "Static shared API key accepted on the external surface")

	for _, flag := range []string{"address", "keys-db", "grants-db", "redis-url", "static-api-key"} {
		if err := viper.BindPFlag(flag, serveCmd.Flags().Lookup(flag)); err != nil {
			logger.Fatalf("Failed to bind %s flag: %v", flag, err)
		}
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	address := viper.GetString("address")
	keysDB := viper.GetString("keys-db")
	grantsDB := viper.GetString("grants-db")
	redisURL := viper.GetString("redis-url")
	staticAPIKey := viper.GetString("static-api-key")

	logger.Infof("Starting trust service on %s", address)

	keyStore, err := keysqlite.Open(ctx, keysDB)
	if err != nil {
		return fmt.Errorf("failed to open key store: %w", err)
	}
	defer func() { _ = keyStore.Close() }()

	grantStore, err := grantsqlite.Open(ctx, grantsDB)
	if err != nil {
		return fmt.Errorf("failed to open grant store: %w", err)
	}
	defer func() { _ = grantStore.Close() }()

	var cache keys.Cache
	if redisURL != "" {
		redisCache, err := keycache.NewFromURL(ctx, redisURL)
		if err != nil {
			return fmt.Errorf("failed to connect signature cache: %w", err)
		}
		defer func() { _ = redisCache.Close() }()
		cache = redisCache
		logger.Info("Signature cache connected")
	} else {
		logger.Warn("No redis URL configured; key lookups go straight to the durable store")
	}

	keyService := keys.NewService(keyStore, cache, logger.Get())
	authenticator := clientauth.NewAuthenticator(keyService, staticAPIKey, logger.Get())

	router := api.NewRouter(api.Deps{
		Keys:       keyService,
		Grants:     grantStore,
		Sessions:   sessions.NewAggregator(grantStore, logger.Get()),
		Revocation: revocation.NewCoordinator(grantStore, logger.Get()),
		ClientAuth: authenticator,
	})

	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Server listening on %s", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
		return err
	}

	logger.Info("Server shutdown complete")
	return nil
}
