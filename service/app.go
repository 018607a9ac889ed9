package service

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"postingapp/app/config"
	"postingapp/app/repositories"
	"postingapp/app/routes"
	"postingapp/app/services"
	"postingapp/app/session"
)

// App holds the opened stores and the services built on them.
type App struct {
	log      *zap.Logger
	repos    *repositories.Repositories
	sessions *session.Manager
	posts    *services.PostService
	users    *services.UserService
	closers  []func() error
}

// NewApp opens the post store and the session backend named in cfg.
func NewApp(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	repos, err := repositories.Open(cfg.Store, log)
	if err != nil {
		return nil, err
	}
	app := &App{
		log:     log,
		repos:   repos,
		posts:   services.NewPostService(repos.Posts),
		users:   services.NewUserService(repos.Users),
		closers: []func() error{repos.Close},
	}

	store, closeStore, err := openSessionStore(ctx, cfg.Session, log)
	if err != nil {
		return nil, multierr.Append(err, app.Close())
	}
	app.closers = append(app.closers, closeStore)
	if cfg.Session.Secret == "" {
		log.Warn("session.secret is not set; sessions will not survive a restart")
	}
	app.sessions, err = session.NewManager(store, cfg.Session)
	if err != nil {
		return nil, multierr.Append(err, app.Close())
	}

	return app, nil
}

func openSessionStore(ctx context.Context, cfg config.SessionConfig, log *zap.Logger) (session.Store, func() error, error) {
	if cfg.Backend == config.SessionRedis {
		store, err := session.NewRedisStore(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect session store: %w", err)
		}
		return store, store.Close, nil
	}

	// Sessions get their own badger directory; one badger database cannot be
	// opened twice, and the post store may not be badger at all.
	db, err := repositories.OpenBadger(cfg.Path, cfg.InMemory, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session store: %w", err)
	}
	return session.NewBadgerStore(db), db.Close, nil
}

// Handler builds the HTTP router.
func (a *App) Handler() (http.Handler, error) {
	return routes.SetupRoutes(routes.Dependencies{
		Posts:    a.posts,
		Users:    a.users,
		Sessions: a.sessions,
		Log:      a.log,
	})
}

// Close releases everything NewApp opened, in reverse order.
func (a *App) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	a.closers = nil
	return err
}
