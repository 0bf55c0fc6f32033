package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"local.dev/socialfeed/internal/cloud"
	"local.dev/socialfeed/internal/config"
	"local.dev/socialfeed/internal/feed"
	"local.dev/socialfeed/internal/httpx"
	"local.dev/socialfeed/internal/observability"
	"local.dev/socialfeed/internal/session"
	"local.dev/socialfeed/internal/store"
)

type backends struct {
	docs       feed.Documents
	objects    feed.Objects
	identity   feed.Identity
	uploadsDir string
	close      func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		observability.GlobalLogger.Error("config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := observability.NewLogger(os.Stdout, cfg.LogLevel)
	observability.GlobalLogger = logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		logger.Error("backend init", slog.String("backend", cfg.Backend), slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer b.close()

	sess := session.New()
	feedStore := feed.New(b.docs, b.objects, b.identity, sess, feed.Options{
		PageSize: cfg.PageSize,
		Logger:   logger,
	})
	defer feedStore.Close()

	app := &httpx.AppCtx{
		Feed:          feedStore,
		Log:           logger,
		NoAuth:        cfg.NoAuth,
		SurfaceErrors: cfg.SurfaceErrors,
		UploadsDir:    b.uploadsDir,
		AllowedOrigin: cfg.AllowedOrigin(),
	}
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           httpx.NewRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", slog.String("error", err.Error()))
		}
	}()

	logger.Info("server listening",
		slog.String("addr", srv.Addr),
		slog.String("backend", cfg.Backend),
		slog.String("allowed_origin", app.AllowedOrigin),
		slog.Bool("no_auth", cfg.NoAuth),
		slog.String("data_dir", cfg.DataDir),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// openBackends builds the document, object and identity backends. With
// NO_AUTH the local identity is used whatever the document backend is.
func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	paths := cfg.Paths()
	var localIdentity *store.Identity
	if cfg.NoAuth || cfg.Backend == config.BackendLocal {
		if err := config.EnsureDir(paths.DataDir); err != nil {
			return nil, err
		}
		localIdentity = store.NewIdentity(paths.UsersFile)
		if err := localIdentity.Load(); err != nil {
			return nil, err
		}
	}

	if cfg.Backend == config.BackendLocal {
		if err := config.EnsureDir(paths.UploadsDir); err != nil {
			return nil, err
		}
		docs := store.NewStore(paths.PostsFile, paths.ProfilesFile)
		if err := docs.LoadAll(); err != nil {
			return nil, err
		}
		if n, err := store.SeedDemo(ctx, docs, cfg.SeedPosts, time.Now().UnixNano()); err != nil {
			return nil, err
		} else if n > 0 {
			observability.GlobalLogger.Info("seeded demo posts", slog.Int("posts", n))
		}
		return &backends{
			docs:       docs,
			objects:    store.NewObjects(paths.UploadsDir, cfg.PublicURL),
			identity:   localIdentity,
			uploadsDir: paths.UploadsDir,
			close:      func() {},
		}, nil
	}

	fbApp, err := cfg.NewFirebaseApp(ctx)
	if err != nil {
		return nil, err
	}
	cb, err := cloud.New(ctx, fbApp, cfg.StorageBucket)
	if err != nil {
		return nil, err
	}
	b := &backends{
		docs:     cb.Documents,
		objects:  cb.Objects,
		identity: cb.Identity,
		close:    func() { _ = cb.Close() },
	}
	if localIdentity != nil {
		b.identity = localIdentity
	}
	return b, nil
}
