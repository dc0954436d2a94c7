package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"caseline/internal/cache"
	"caseline/internal/config"
	"caseline/internal/db"
	"caseline/internal/engine"
	"caseline/internal/metrics"
	"caseline/internal/migrate"
	"caseline/internal/repo"
)

// Context is everything a command needs to run operations against one workspace.
type Context struct {
	DB      *sql.DB
	Store   repo.Repo
	Config  *config.Config
	Engine  engine.Engine
	Metrics *metrics.Metrics
	Log     logrus.FieldLogger

	redis *redis.Client
}

// Open prepares the workspace database, applies migrations, loads
// caseline.yml and seeds the category catalog on first use.
func Open(ctx context.Context, workspace string, log logrus.FieldLogger) (*Context, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := migrate.Migrate(ctx, conn, log); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	store := repo.Repo{DB: conn}
	m := metrics.New()
	eng := engine.New(store, cfg)
	eng.Log = log
	eng.Metrics = m

	c := &Context{DB: conn, Store: store, Config: cfg, Metrics: m, Log: log}
	if cfg.Cache.Addr != "" {
		c.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := c.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.WithError(err).WithField("addr", cfg.Cache.Addr).Warn("status cache unavailable, deriving live")
			c.redis.Close()
			c.redis = nil
		} else {
			eng.Cache = cache.NewRedis(c.redis, cfg.Cache.Prefix, cfg.Cache.TTL())
		}
	}
	if _, err := eng.SeedCategories(ctx, cfg.Categories); err != nil {
		c.Close()
		return nil, fmt.Errorf("seed categories: %w", err)
	}
	c.Engine = eng
	return c, nil
}

func (c *Context) Close() error {
	if c.redis != nil {
		c.redis.Close()
	}
	return c.DB.Close()
}
