package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/strivehq/hookgate/internal/api"
	"github.com/strivehq/hookgate/internal/auth"
	"github.com/strivehq/hookgate/internal/config"
	"github.com/strivehq/hookgate/internal/delivery"
	"github.com/strivehq/hookgate/internal/dispatch"
	"github.com/strivehq/hookgate/internal/models"
	"github.com/strivehq/hookgate/internal/ratelimit"
	"github.com/strivehq/hookgate/internal/storage"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "hookgate",
		Short: "HookGate — API key authentication and webhook fan-out",
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(keyCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HookGate server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			store, err := setupStorage(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup storage: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("database migrations completed")

			limiter, err := setupLimiter(cfg.RateLimit, log)
			if err != nil {
				return fmt.Errorf("failed to setup rate limiter: %w", err)
			}

			authn := auth.NewAuthenticator(store, log)
			engine := delivery.NewEngine(cfg.Delivery, log)
			auditor := dispatch.NewAuditor(store, log)
			orchestrator := dispatch.NewOrchestrator(store, engine, auditor, log)

			server := api.NewServer(cfg.Server, store, authn, limiter, orchestrator, log)
			go func() {
				if err := server.Start(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("server error")
				}
			}()

			log.Info().
				Str("version", version).
				Int("port", cfg.Server.Port).
				Str("ratelimit", cfg.RateLimit.Driver).
				Str("storage", cfg.Storage.Driver).
				Msg("HookGate is running")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Info().Msg("shutting down...")

			if err := server.Shutdown(10 * time.Second); err != nil {
				log.Error().Err(err).Msg("server shutdown error")
			}

			log.Info().Msg("HookGate stopped")
			return nil
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			store, err := setupStorage(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup storage: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			log.Info().Msg("migrations completed successfully")
			return nil
		},
	}
}

func keyCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage API keys",
	}

	// key create
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a new API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			name, _ := cmd.Flags().GetString("name")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if userID == "" {
				return fmt.Errorf("--user is required")
			}

			store, cleanup, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			rawKey := models.NewAPIKey()
			now := time.Now().UTC()
			cred := &models.Credential{
				ID:        models.NewID("key"),
				UserID:    userID,
				Name:      name,
				KeyDigest: auth.HashKey(rawKey),
				CreatedAt: now,
			}
			if ttl > 0 {
				expires := now.Add(ttl)
				cred.ExpiresAt = &expires
			}

			if err := store.CreateCredential(context.Background(), cred); err != nil {
				return fmt.Errorf("failed to create credential: %w", err)
			}

			out, _ := json.MarshalIndent(map[string]interface{}{
				"credential": cred,
				"api_key":    rawKey,
			}, "", "  ")
			fmt.Println(string(out))
			fmt.Fprintln(os.Stderr, "store the api_key now: only its digest is persisted and it cannot be recovered")
			return nil
		},
	}
	createCmd.Flags().String("user", "", "owning user id")
	createCmd.Flags().String("name", "", "human-readable key name")
	createCmd.Flags().Duration("ttl", 0, "optional key lifetime, e.g. 720h (default: no expiry)")

	// key list
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			if userID == "" {
				return fmt.Errorf("--user is required")
			}

			store, cleanup, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			creds, err := store.ListCredentials(context.Background(), userID)
			if err != nil {
				return fmt.Errorf("failed to list credentials: %w", err)
			}

			if len(creds) == 0 {
				fmt.Println("No API keys found.")
				return nil
			}

			for _, cred := range creds {
				line := fmt.Sprintf("  %s  %s  (created %s", cred.ID, cred.Name, cred.CreatedAt.Format(time.RFC3339))
				if cred.ExpiresAt != nil {
					line += fmt.Sprintf(", expires %s", cred.ExpiresAt.Format(time.RFC3339))
				}
				fmt.Println(line + ")")
			}
			return nil
		},
	}
	listCmd.Flags().String("user", "", "owning user id")

	cmd.AddCommand(createCmd, listCmd)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("HookGate v%s\n", version)
		},
	}
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func setupStorage(cfg config.StorageConfig, log zerolog.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case "sqlite":
		log.Info().Str("path", cfg.SQLite.Path).Msg("using SQLite storage")
		return storage.NewSQLite(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

func setupLimiter(cfg config.RateLimitConfig, log zerolog.Logger) (ratelimit.Limiter, error) {
	switch cfg.Driver {
	case "memory":
		return ratelimit.NewMemoryLimiter(cfg.Limit, cfg.Window), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using Redis rate limiting")
		return ratelimit.NewRedisLimiter(client, cfg.Limit, cfg.Window), nil
	default:
		return nil, fmt.Errorf("unsupported ratelimit driver: %s", cfg.Driver)
	}
}

func storeFromConfig(configPath string) (storage.Storage, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg.Logging)
	store, err := setupStorage(cfg.Storage, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, func() { store.Close() }, nil
}
