package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raagalabs/swarasheet/backend/internal/auth"
	"github.com/raagalabs/swarasheet/backend/internal/collections"
	"github.com/raagalabs/swarasheet/backend/internal/config"
	"github.com/raagalabs/swarasheet/backend/internal/database"
	"github.com/raagalabs/swarasheet/backend/internal/logging"
	"github.com/raagalabs/swarasheet/backend/internal/server"
	"github.com/raagalabs/swarasheet/backend/internal/songs"
	"github.com/raagalabs/swarasheet/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "swarasheet-api",
		Short: "Swarasheet song sheet backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Bearer token TTL in minutes")
	cmd.PersistentFlags().Bool("allow-signup", defaults.GetBool("auth.allow_signup"), "Auto-provision accounts on first OTP verification")
	cmd.PersistentFlags().String("otp-fixed-code", defaults.GetString("otp.fixed_code"), "Pin the OTP code (development only; empty means random codes)")
	cmd.PersistentFlags().Int("otp-ttl-minutes", defaults.GetInt("otp.ttl_minutes"), "OTP code TTL in minutes")
	cmd.PersistentFlags().Bool("public-listing", defaults.GetBool("listing.public"), "List songs and collections across all owners")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "auth.allow_signup", "allow-signup")
	bindFlag(cmd, "otp.fixed_code", "otp-fixed-code")
	bindFlag(cmd, "otp.ttl_minutes", "otp-ttl-minutes")
	bindFlag(cmd, "listing.public", "public-listing")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenManager, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "swarasheet-auth",
		Audience:      "swarasheet-api",
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	codeSource := auth.CodeSource(auth.NewRandomCodeSource())
	if appConfig.FixedOTPCode != "" {
		codeSource, err = auth.NewFixedCodeSource(appConfig.FixedOTPCode)
		if err != nil {
			return err
		}
		logger.Warn("otp codes are pinned to a fixed value; do not use in production")
	}

	idProvider := songs.NewUUIDProvider()

	userService, err := users.NewService(users.ServiceConfig{
		Database:    db,
		IDProvider:  idProvider,
		Codes:       codeSource,
		Deliverer:   auth.NewLogDeliverer(logger),
		OTPTTL:      appConfig.OTPTTL,
		AllowSignup: appConfig.AllowSignup,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	songService, err := songs.NewService(songs.ServiceConfig{
		Database:        db,
		IDProvider:      idProvider,
		Logger:          logger,
		PublicListing:   appConfig.PublicListing,
		DefaultPageSize: appConfig.DefaultPageSize,
		MaxPageSize:     appConfig.MaxPageSize,
	})
	if err != nil {
		return err
	}

	collectionService, err := collections.NewService(collections.ServiceConfig{
		Database:        db,
		IDProvider:      idProvider,
		Logger:          logger,
		PublicListing:   appConfig.PublicListing,
		DefaultPageSize: appConfig.DefaultPageSize,
		MaxPageSize:     appConfig.MaxPageSize,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Tokens:      tokenManager,
		Songs:       songService,
		Users:       userService,
		Collections: collectionService,
		Database:    db,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
