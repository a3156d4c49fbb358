package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pmwedding/invitation/internal/changefeed"
	"github.com/pmwedding/invitation/internal/config"
	"github.com/pmwedding/invitation/internal/database"
	"github.com/pmwedding/invitation/internal/guests"
	"github.com/pmwedding/invitation/internal/logging"
	"github.com/pmwedding/invitation/internal/server"
	"github.com/pmwedding/invitation/internal/session"
	"github.com/pmwedding/invitation/internal/wedding"
	"github.com/pmwedding/invitation/internal/wishes"
)

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "wedding-api",
		Short:        "Wedding invitation site and live wishes feed",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newGuestsCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before reading the environment")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("environment", defaults.GetString("environment"), "Deployment environment (development, production)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", "", "Postgres connection string")
	cmd.PersistentFlags().Duration("feed-poll-interval", defaults.GetDuration("feed.poll_interval"), "Fallback refetch interval of the live wishes feed")
	cmd.PersistentFlags().String("changefeed-backend", defaults.GetString("changefeed.backend"), "Change notification backend (local, redis, postgres)")
	cmd.PersistentFlags().String("redis-url", "", "Redis URL for the redis changefeed backend")
	cmd.PersistentFlags().String("site-base-url", defaults.GetString("site.base_url"), "Public base URL used for invite links")
	cmd.PersistentFlags().StringSlice("allowed-origins", nil, "Origins allowed to call the JSON API cross-site")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "environment", "environment")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "feed.poll_interval", "feed-poll-interval")
	bindFlag(cmd, "changefeed.backend", "changefeed-backend")
	bindFlag(cmd, "redis.url", "redis-url")
	bindFlag(cmd, "site.base_url", "site-base-url")
	bindFlag(cmd, "cors.allowed_origins", "allowed-origins")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

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

// loadRuntime reads the configuration and builds the logger shared by every command.
func loadRuntime() (config.AppConfig, *zap.Logger, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.Environment == config.EnvironmentDevelopment)
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	return appConfig, logger, nil
}

func runServer(ctx context.Context) error {
	appConfig, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher := changefeed.NewDispatcher()
	plugins, err := startChangefeed(signalCtx, appConfig, dispatcher, logger)
	if err != nil {
		return err
	}

	db, err := database.Open(database.Options{
		Driver:  appConfig.DatabaseDriver,
		Path:    appConfig.DatabasePath,
		DSN:     appConfig.DatabaseDSN,
		Plugins: plugins,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer database.Close(db) //nolint:errcheck

	directory, err := guests.NewDirectory(guests.DirectoryConfig{
		Database: db,
		Logger:   logger,
		Clock:    time.Now,
	})
	if err != nil {
		return err
	}

	wishService, err := wishes.NewService(wishes.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Directory:        directory,
		Sessions:         session.NewEstablisher(session.EstablisherConfig{Secure: appConfig.SecureCookies()}),
		Wishes:           wishService,
		Changes:          dispatcher,
		Wedding:          wedding.NewDetails(appConfig.WeddingCouple, appConfig.WeddingVenue, appConfig.WeddingDate),
		FeedPollInterval: appConfig.FeedPollInterval,
		AllowedOrigins:   appConfig.AllowedOrigins,
		Clock:            time.Now,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

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

// startChangefeed wires the configured change backend into the local dispatcher and
// returns the GORM plugins that publish committed writes.
func startChangefeed(ctx context.Context, appConfig config.AppConfig, dispatcher *changefeed.Dispatcher, logger *zap.Logger) ([]gorm.Plugin, error) {
	watched := []string{wishes.TableName}

	switch appConfig.ChangefeedBackend {
	case config.ChangefeedBackendRedis:
		options, err := redis.ParseURL(appConfig.RedisURL)
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(options)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		bridge, err := changefeed.NewRedisBridge(changefeed.RedisBridgeConfig{
			Client:        client,
			ChannelPrefix: appConfig.RedisChannelPrefix,
			Local:         dispatcher,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		go func() {
			defer client.Close() //nolint:errcheck
			if err := bridge.Run(ctx, watched...); err != nil {
				logger.Error("redis change bridge stopped", zap.Error(err))
			}
		}()
		return []gorm.Plugin{changefeed.NewGormPlugin(changefeed.GormPluginConfig{
			Publisher: bridge,
			Tables:    watched,
			Logger:    logger,
		})}, nil

	case config.ChangefeedBackendPostgres:
		listener, err := changefeed.NewPostgresListener(changefeed.PostgresListenerConfig{
			DSN:    appConfig.DatabaseDSN,
			Local:  dispatcher,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		go func() {
			if err := listener.Run(ctx); err != nil {
				logger.Error("postgres change listener stopped", zap.Error(err))
			}
		}()
		// The database trigger is the only source; a plugin would publish every write twice.
		return nil, nil

	default:
		return []gorm.Plugin{changefeed.NewGormPlugin(changefeed.GormPluginConfig{
			Publisher: dispatcher,
			Tables:    watched,
			Logger:    logger,
		})}, nil
	}
}
