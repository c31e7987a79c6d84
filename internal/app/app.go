package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	httpapp "inspirations/internal/app/http"
	"inspirations/internal/config"
	"inspirations/internal/lib/logger/sl"
	"inspirations/internal/repository"
	"inspirations/internal/scrape/linkpreview"
	"inspirations/internal/scrape/netguard"
	"inspirations/internal/scrape/twitter"
	itemsvc "inspirations/internal/services/item_service"
	viewsvc "inspirations/internal/services/view_service"
	filestorage "inspirations/internal/storage/filestorage"
	"inspirations/internal/storage/objectstore"
	"inspirations/internal/storage/postgresql"
	redisapp "inspirations/internal/storage/redis"
	httprouters "inspirations/internal/transport/http"
	"inspirations/internal/view"
)

type App struct {
	HTTPServer  *httpapp.Server
	ViewService *viewsvc.ViewService

	log     *slog.Logger
	storage *postgresql.Storage
	redis   *redisapp.Client
	cancel  context.CancelFunc
}

func New(ctx context.Context, log *slog.Logger, cfg *config.Config) (*App, error) {
	const op = "app.New"

	storage, err := postgresql.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := storage.Migrate(ctx); err != nil {
		storage.Stop()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	redisClient := redisapp.NewClient(cfg.Redis.RedisAddr, cfg.Redis.RedisPassword, cfg.Redis.RedisDB)
	if err := redisClient.HealthCheck(ctx); err != nil {
		// listings fall back to postgres while the cache is down
		log.Warn("redis is not reachable", sl.Err(err))
	}

	repo := repository.NewRepository(storage.Pool(), redisClient, cfg.Redis.TTL)

	media, localMedia, err := newMediaStore(ctx, cfg)
	if err != nil {
		storage.Stop()
		_ = redisClient.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	httpClient := &http.Client{Timeout: cfg.Scrape.Timeout}

	tweets := twitter.New(log, httpClient, twitter.Options{
		BaseURL:       cfg.Scrape.SyndicationURL,
		RatePerSecond: cfg.Scrape.RatePerSecond,
		CacheTTL:      cfg.Scrape.TweetCacheTTL,
	})

	links := linkpreview.New(log, netguard.New(nil), httpClient, linkpreview.Options{
		UserAgent:     cfg.Scrape.UserAgent,
		MaxPageBytes:  cfg.Scrape.MaxPageBytes,
		MaxImageBytes: cfg.Scrape.MaxImageBytes,
		FallbackURL:   cfg.Scrape.FallbackURL,
		RatePerSecond: cfg.Scrape.RatePerSecond,
	})

	itemService := itemsvc.NewItemService(log, repo.Item, repo.Cache, media, tweets, links)

	viewService := viewsvc.NewViewService(
		log,
		itemService,
		itemService,
		view.NewHTTPUploader(httpClient),
		view.Options{DeleteGrace: cfg.View.DeleteGrace},
		cfg.View.IdleTTL,
	)

	routers := httprouters.NewRouter(log, itemService, viewService, localMedia)

	server := httpapp.New(log, cfg.HTTP.SessionSecret, cfg.HTTP.Host, cfg.HTTP.Port, cfg.HTTP.ShutdownTimeout, routers,
		map[string]httpapp.HealthChecker{
			"postgres": storage,
			"redis":    redisClient,
		},
	)

	return &App{
		HTTPServer:  server,
		ViewService: viewService,
		log:         log,
		storage:     storage,
		redis:       redisClient,
	}, nil
}

// newMediaStore picks the media store driver. The local driver is also
// returned as the upload target the http server serves.
func newMediaStore(ctx context.Context, cfg *config.Config) (filestorage.MediaStore, httprouters.LocalMedia, error) {
	switch cfg.Media.Driver {
	case "r2":
		store, err := objectstore.New(ctx, objectstore.Options{
			Endpoint:        cfg.Media.Endpoint,
			Region:          cfg.Media.Region,
			AccessKeyID:     cfg.Media.AccessKeyID,
			SecretAccessKey: cfg.Media.SecretAccessKey,
			Bucket:          cfg.Media.Bucket,
			PublicURL:       cfg.Media.PublicURL,
			PresignTTL:      cfg.Media.PresignTTL,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil

	case "local":
		store, err := filestorage.NewLocalFileStorage(
			cfg.Media.BaseDir,
			cfg.Media.PublicURL,
			cfg.HTTP.SessionSecret,
			cfg.Media.PresignTTL,
			cfg.Media.MaxSize,
		)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	}

	return nil, nil, fmt.Errorf("unknown media driver %q", cfg.Media.Driver)
}

// Run starts the http server and the idle view sweeper.
func (a *App) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go a.ViewService.Run(ctx)
	go func() {
		a.HTTPServer.BuildRouters()
		a.HTTPServer.MustRun()
	}()
}

func (a *App) Stop() {
	const op = "app.Stop"

	log := a.log.With(slog.String("op", op))

	if err := a.HTTPServer.Stop(); err != nil {
		log.Error("http server stop failed", sl.Err(err))
	}

	if a.cancel != nil {
		a.cancel()
	}
	a.ViewService.CloseAll()

	if err := a.redis.Close(); err != nil {
		log.Error("redis close failed", sl.Err(err))
	}
	a.storage.Stop()
}
