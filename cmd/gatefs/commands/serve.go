package commands

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatefs/gatefs/internal/logger"
	"github.com/gatefs/gatefs/pkg/api"
	"github.com/gatefs/gatefs/pkg/config"
	"github.com/gatefs/gatefs/pkg/gateway/authz"
	"github.com/gatefs/gatefs/pkg/gateway/dircache"
	"github.com/gatefs/gatefs/pkg/gateway/fs"
	"github.com/gatefs/gatefs/pkg/gateway/metrics"
	"github.com/gatefs/gatefs/pkg/gateway/models"
	"github.com/gatefs/gatefs/pkg/gateway/s3driver"
	"github.com/gatefs/gatefs/pkg/gateway/secret"
	"github.com/gatefs/gatefs/pkg/gateway/store"
	"github.com/gatefs/gatefs/pkg/gateway/webdav"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gatefs server",
	Long: `Start the gatefs server with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/gatefs/config.yaml.

Examples:
  # Start with default config location
  gatefs serve

  # Start with custom config
  gatefs serve --config /etc/gatefs/config.yaml

  # Start with environment variable overrides
  GATEFS_LOGGING_LEVEL=DEBUG gatefs serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if err := config.WatchLogLevel(GetConfigFile()); err != nil {
		logger.Warn("config watch unavailable", "error", err)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics enabled", "endpoint", "/metrics")
	}

	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize metadata store: %w", err)
	}
	defer st.Close()

	if err := ensureAdminUser(ctx, st, cfg); err != nil {
		return err
	}

	encryptor, err := secret.NewFromEnv()
	if err != nil {
		return fmt.Errorf("storage credential encryption unavailable: %w "+
			"(set %s to a strong secret)", err, secret.EnvEncryptionSecret)
	}

	drivers := s3driver.NewCache(encryptor)
	drivers.SetObserver(metrics.NewStorageMetrics())

	cache := dircache.New(0)
	metrics.RegisterCacheMetrics(cache)

	fsys := fs.New(st, fs.NewDriverSource(drivers), cache)

	jwtSvc, err := authz.NewJWTService(authz.JWTConfig{
		Secret:        cfg.Auth.JWTSecret,
		TokenDuration: cfg.Auth.TokenDuration,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	locks := webdav.NewLockManager()
	defer locks.Close()

	server := api.NewServer(cfg.Server, api.Deps{
		FS:          fsys,
		Store:       st,
		Resolver:    authz.NewResolver(st, jwtSvc),
		JWT:         jwtSvc,
		Secrets:     encryptor,
		Drivers:     drivers,
		Locks:       locks,
		HTTPMetrics: metrics.NewHTTPMetrics(),
		Version:     Version,
	})

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}

// ensureAdminUser creates the bootstrap admin on first run. A password hash
// from the config file wins; otherwise a random password is generated and
// printed once.
func ensureAdminUser(ctx context.Context, st store.Store, cfg *config.Config) error {
	_, err := st.GetAdminByUsername(ctx, cfg.Admin.Username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrAdminNotFound) {
		return fmt.Errorf("failed to look up admin user: %w", err)
	}

	passwordHash := cfg.Admin.PasswordHash
	var generated string
	if passwordHash == "" {
		buf := make([]byte, 16)
		rand.Read(buf)
		generated = hex.EncodeToString(buf)

		hash, err := bcrypt.GenerateFromPassword([]byte(generated), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash admin password: %w", err)
		}
		passwordHash = string(hash)
	}

	if _, err := st.CreateAdmin(ctx, &models.AdminUser{
		Username:     cfg.Admin.Username,
		PasswordHash: passwordHash,
	}); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	logger.Info("Admin user created", "username", cfg.Admin.Username)

	if generated != "" {
		fmt.Printf("\n*** IMPORTANT: Admin user %q created with password: %s ***\n", cfg.Admin.Username, generated)
		fmt.Println("Please save this password. It will not be shown again.")
		fmt.Println()
	}
	return nil
}
