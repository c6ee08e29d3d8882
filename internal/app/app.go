// Package app assembles the bot from configuration: lot store, image
// resolver, feed client, archive, notifier and the HTTP trigger server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gcppubsub "cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/everylotbot/everylot/internal/api"
	"github.com/everylotbot/everylot/internal/archive"
	gcsarchive "github.com/everylotbot/everylot/internal/archive/gcs"
	localarchive "github.com/everylotbot/everylot/internal/archive/local"
	"github.com/everylotbot/everylot/internal/bluesky"
	"github.com/everylotbot/everylot/internal/bot"
	"github.com/everylotbot/everylot/internal/clock/system"
	"github.com/everylotbot/everylot/internal/config"
	"github.com/everylotbot/everylot/internal/everylot"
	"github.com/everylotbot/everylot/internal/id/uuid"
	"github.com/everylotbot/everylot/internal/logging"
	"github.com/everylotbot/everylot/internal/notify"
	memorynotify "github.com/everylotbot/everylot/internal/notify/memory"
	pubsubnotify "github.com/everylotbot/everylot/internal/notify/pubsub"
	rabbitnotify "github.com/everylotbot/everylot/internal/notify/rabbit"
	memorystore "github.com/everylotbot/everylot/internal/store/memory"
	pgstore "github.com/everylotbot/everylot/internal/store/postgres"
	sqlitestore "github.com/everylotbot/everylot/internal/store/sqlite"
	"github.com/everylotbot/everylot/internal/streetview"
)

// App contains the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	store      everylot.Store
	notifier   notify.Notifier
	controller *bot.Controller
	apiServer  *api.Server

	// gcsClient is held for shutdown; the archive does not own it.
	gcsClient *storage.Client
}

// Build creates the application's dependencies from configuration.
func Build(ctx context.Context, cfg *config.Config, verbose bool) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, verbose)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app := &App{cfg: cfg, logger: logger}
	app.logger.Debug("building application dependencies",
		zap.String("database", cfg.Database.Provider),
		zap.String("archive", cfg.Archive.Provider),
		zap.String("notify", cfg.Notify.Provider),
	)

	app.store, err = setupStore(ctx, app)
	if err != nil {
		return nil, err
	}

	archiver, err := setupArchive(ctx, app)
	if err != nil {
		return nil, err
	}

	app.notifier, err = setupNotifier(ctx, app)
	if err != nil {
		return nil, err
	}

	clk := system.New()
	images := streetview.NewClient(streetview.Config{
		APIKey:  cfg.Streetview.APIKey,
		BaseURL: cfg.Streetview.BaseURL,
		Size:    cfg.Streetview.Size,
		FOV:     cfg.Streetview.FOV,
		Pitch:   cfg.Streetview.Pitch,
		City:    cfg.Streetview.City,
		State:   cfg.Streetview.State,
		Timeout: cfg.StreetviewTimeout(),
	}, logger.Named("streetview"))

	feed := bluesky.NewClient(bluesky.Config{
		Host:          cfg.Bluesky.Host,
		Identifier:    cfg.Bluesky.Identifier,
		Password:      cfg.Bluesky.Password,
		MaxPostLength: cfg.Caption.MaxLength,
		Timeout:       cfg.BlueskyTimeout(),
	}, clk, logger.Named("bluesky"))

	retry := bot.NewRetryPolicy(
		cfg.Publish.MaxRetries,
		cfg.Publish.BackoffInitial(),
		cfg.Publish.BackoffMax(),
	)

	app.controller = bot.New(
		app.store,
		images,
		feed,
		archiver,
		app.notifier,
		clk,
		uuid.New(),
		retry,
		bot.Config{CaptionMaxLength: cfg.Caption.MaxLength},
		logger.Named("bot"),
	)

	app.apiServer = api.NewServer(
		app.controller,
		app.store,
		api.Config{APIKey: cfg.Serve.APIKey},
		logger.Named("api"),
	)

	return app, nil
}

// Controller returns the publication controller.
func (a *App) Controller() *bot.Controller { return a.controller }

// Store returns the lot store.
func (a *App) Store() everylot.Store { return a.store }

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Run serves the HTTP trigger interface and blocks until the context is
// canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Serve.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Serve.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return nil
}

// Close gracefully releases the application's resources.
func (a *App) Close() {
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			a.logger.Warn("notifier close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("lot store close failed", zap.Error(err))
		}
	}
	// Best effort; syncing stderr fails on some platforms.
	_ = a.logger.Sync()
}

// setupStore selects the lot store backend. Unlike the side-effect
// providers there is no silent fallback here: posting state lives in the
// store, and an accidental empty one would report the dataset exhausted.
func setupStore(ctx context.Context, app *App) (everylot.Store, error) {
	cfg := app.cfg
	switch cfg.Database.Provider {
	case "sqlite":
		var opts []sqlitestore.Option
		if cfg.Select.RequireImprovement {
			opts = append(opts, sqlitestore.WithRequireImprovement())
		}
		st, err := sqlitestore.Open(cfg.Database.SQLite.Path, cfg.Database.SQLite.Table, opts...)
		if err != nil {
			return nil, fmt.Errorf("sqlite store init failed: %w", err)
		}
		app.logger.Info("using sqlite lot store",
			zap.String("path", cfg.Database.SQLite.Path),
			zap.String("table", cfg.Database.SQLite.Table),
		)
		return st, nil
	case "postgres":
		var opts []pgstore.Option
		if cfg.Select.RequireImprovement {
			opts = append(opts, pgstore.WithRequireImprovement())
		}
		st, err := pgstore.NewStore(ctx, pgstore.StoreConfig{
			DSN:      cfg.Database.Postgres.DSN,
			Table:    cfg.Database.Postgres.Table,
			MaxConns: int32(cfg.Database.Postgres.MaxConns),
		}, opts...)
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		app.logger.Info("using postgres lot store",
			zap.String("table", cfg.Database.Postgres.Table),
		)
		return st, nil
	case "memory":
		var opts []memorystore.Option
		if cfg.Select.RequireImprovement {
			opts = append(opts, memorystore.WithRequireImprovement())
		}
		app.logger.Warn("using in-memory lot store; posting state will not persist")
		return memorystore.NewStore(nil, opts...), nil
	default:
		return nil, fmt.Errorf("unknown database provider %q", cfg.Database.Provider)
	}
}

func setupArchive(ctx context.Context, app *App) (archive.Archive, error) {
	cfg := app.cfg
	switch cfg.Archive.Provider {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.gcsClient = client
		arch, err := gcsarchive.New(client, gcsarchive.Config{
			Bucket: cfg.Archive.GCS.Bucket,
			Prefix: cfg.Archive.GCS.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		app.logger.Info("archiving images to GCS",
			zap.String("bucket", cfg.Archive.GCS.Bucket),
			zap.String("prefix", cfg.Archive.GCS.Prefix),
		)
		return arch, nil
	case "local":
		arch, err := localarchive.New(localarchive.Config{Dir: cfg.Archive.Local.Dir})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		app.logger.Info("archiving images locally", zap.String("dir", cfg.Archive.Local.Dir))
		return arch, nil
	default:
		app.logger.Debug("image archiving disabled")
		return archive.NoOp{}, nil
	}
}

func setupNotifier(ctx context.Context, app *App) (notify.Notifier, error) {
	cfg := app.cfg
	switch cfg.Notify.Provider {
	case "pubsub":
		client, err := gcppubsub.NewClient(ctx, cfg.Notify.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		n, err := pubsubnotify.New(ctx, client, pubsubnotify.Config{
			ProjectID: cfg.Notify.PubSub.ProjectID,
			TopicID:   cfg.Notify.PubSub.TopicID,
		}, app.logger.Named("pubsub"))
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("pubsub notifier init failed: %w", err)
		}
		app.logger.Info("publishing post events to Pub/Sub",
			zap.String("project", cfg.Notify.PubSub.ProjectID),
			zap.String("topic", cfg.Notify.PubSub.TopicID),
		)
		return n, nil
	case "rabbit":
		n, err := rabbitnotify.New(rabbitnotify.Config{
			URL:        cfg.Notify.Rabbit.URL,
			Exchange:   cfg.Notify.Rabbit.Exchange,
			RoutingKey: cfg.Notify.Rabbit.RoutingKey,
		}, app.logger.Named("rabbit"))
		if err != nil {
			return nil, fmt.Errorf("rabbit notifier init failed: %w", err)
		}
		app.logger.Info("publishing post events to RabbitMQ",
			zap.String("exchange", cfg.Notify.Rabbit.Exchange),
			zap.String("routing_key", cfg.Notify.Rabbit.RoutingKey),
		)
		return n, nil
	case "memory":
		app.logger.Warn("using in-memory post event notifier")
		return memorynotify.NewNotifier(), nil
	default:
		app.logger.Debug("post event notifications disabled")
		return notify.NoOp{}, nil
	}
}
