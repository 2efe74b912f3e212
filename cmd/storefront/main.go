package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prudhvinik1/storefront/internal/app"
	"github.com/prudhvinik1/storefront/internal/config"
	"github.com/prudhvinik1/storefront/internal/database"
	"github.com/prudhvinik1/storefront/internal/logging"
	"github.com/prudhvinik1/storefront/internal/repositories"
	"github.com/prudhvinik1/storefront/internal/securestore"
	"github.com/prudhvinik1/storefront/internal/services"
	"github.com/prudhvinik1/storefront/internal/utils"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	email     string
	password  string
	register  bool
	direction string
)

var rootCmd = &cobra.Command{
	Use:   "storefront",
	Short: "Storefront device client and tooling",
	Long:  `Storefront - a catalog client that allows one signed-in device per account`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	},
	SilenceUsage: true,
}

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Sign in and browse the catalog from this device",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDevice(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := database.Migrate(cfg.DatabaseURL, direction); err != nil {
			return err
		}
		fmt.Printf("Migrations %s complete\n", direction)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("storefront v%s\n", version)
	},
}

func init() {
	deviceCmd.Flags().StringVar(&email, "email", "", "account email (prompted when empty)")
	deviceCmd.Flags().StringVar(&password, "password", "", "account password (prompted when empty)")
	deviceCmd.Flags().BoolVar(&register, "register", false, "create the account before signing in")

	migrateCmd.Flags().StringVar(&direction, "direction", "up", "migration direction: up or down")

	rootCmd.AddCommand(deviceCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDevice(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, logger)
	if err != nil {
		return err
	}
	defer postgresPool.Close()

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL, logger)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	local, err := securestore.NewFileStore(cfg.SecureStoreDir, cfg.SecureStoreSecret)
	if err != nil {
		return err
	}

	catalogURL, err := url.Parse(cfg.CatalogBaseURL)
	if err != nil {
		return fmt.Errorf("invalid CATALOG_BASE_URL: %w", err)
	}

	authService := services.NewAuthService(
		repositories.NewPostgresAccountRepository(postgresPool),
		repositories.NewRedisCredentialRepository(redisClient, logger),
		cfg.JWTSecret, cfg.JWTExpiry, cfg.BcryptCost,
	)
	catalog := services.NewCatalogService(
		repositories.NewHTTPCatalogRepository(&http.Client{Timeout: cfg.HTTPClientTimeout}, *catalogURL),
		cfg.CatalogPageSize,
	)

	term := app.NewTerminal(os.Stdin, os.Stdout)
	device := app.New(authService, local,
		repositories.NewRedisSessionRecordRepository(redisClient, logger),
		term, catalog,
		app.Options{
			AckTimeout: cfg.SessionAckTimeout,
			DeviceInfo: utils.DeviceInfo(ctx),
			Logger:     logger,
		})
	defer device.Close()

	if err := signIn(ctx, term, device); err != nil {
		return err
	}

	err = term.Run(ctx, device)
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func signIn(ctx context.Context, term *app.Terminal, device *app.App) error {
	var err error
	if email == "" {
		if email, err = term.Prompt(ctx, "Email"); err != nil {
			return err
		}
	}
	if password == "" {
		if password, err = term.Prompt(ctx, "Password"); err != nil {
			return err
		}
	}

	if register {
		err = device.Register(ctx, email, password, password)
	} else {
		err = device.Login(ctx, email, password)
	}
	if err != nil {
		switch {
		case errors.Is(err, app.ErrPasswordMismatch):
			return err
		case errors.Is(err, services.ErrMissingFields),
			errors.Is(err, services.ErrInvalidCredentials),
			errors.Is(err, services.ErrEmailExists),
			utils.IsWeakPassword(err):
			return errors.New(services.AuthErrorMessage(err))
		default:
			return fmt.Errorf("sign in failed: %w", err)
		}
	}

	term.Printf("Signed in as %s\n", email)
	return nil
}
