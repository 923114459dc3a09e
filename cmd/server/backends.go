package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-recipe-auth/internal/config"
	"github.com/jrsteele09/go-recipe-auth/internal/database"
	"github.com/jrsteele09/go-recipe-auth/server"
	"github.com/jrsteele09/go-recipe-auth/sessions"
	"github.com/jrsteele09/go-recipe-auth/sessions/redisstore"
	fakesessionstore "github.com/jrsteele09/go-recipe-auth/sessions/repofakes"
	"github.com/jrsteele09/go-recipe-auth/users"
	"github.com/jrsteele09/go-recipe-auth/users/postgres"
	fakeuserrepo "github.com/jrsteele09/go-recipe-auth/users/repofake"
)

// backends holds the storage chosen by USER_BACKEND and SESSION_BACKEND
type backends struct {
	Users    users.Repo
	Sessions sessions.Store

	pool  *pgxpool.Pool
	redis *redis.Client
}

func openBackends(ctx context.Context, c config.Config, logger zerolog.Logger) (*backends, error) {
	var err error
	b := &backends{}
	opened := false
	defer func() {
		if !opened {
			b.Close()
		}
	}()

	switch c.GetUserBackend() {
	case config.BackendPostgres:
		if c.GetMigrateOnStart() {
			if err := database.RunMigrations(c.GetDatabaseURL(), logger); err != nil {
				return nil, err
			}
		}
		b.pool, err = database.Connect(ctx, c.GetDatabaseURL(), c.GetDBMaxConns(), logger)
		if err != nil {
			return nil, err
		}
		b.Users = postgres.NewUserRepo(b.pool)
	case config.BackendMemory:
		logger.Warn().Msg("using in-memory user directory, users are lost on restart")
		b.Users = fakeuserrepo.NewFakeUserRepo()
	default:
		return nil, errors.Errorf("[openBackends] unknown user backend %q", c.GetUserBackend())
	}

	switch c.GetSessionBackend() {
	case config.BackendRedis:
		b.redis, err = redisstore.Connect(ctx, c.GetRedisURL())
		if err != nil {
			return nil, err
		}
		b.Sessions = redisstore.New(b.redis)
	case config.BackendMemory:
		logger.Warn().Msg("using in-memory session store, sessions are lost on restart")
		b.Sessions = fakesessionstore.NewFakeSessionStore()
	default:
		return nil, errors.Errorf("[openBackends] unknown session backend %q", c.GetSessionBackend())
	}

	opened = true
	return b, nil
}

// HealthChecks returns a /healthz check for every network backend
func (b *backends) HealthChecks() []server.Option {
	var opts []server.Option
	if b.pool != nil {
		opts = append(opts, server.WithHealthCheck("postgres", b.pool.Ping))
	}
	if b.redis != nil {
		client := b.redis
		opts = append(opts, server.WithHealthCheck("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
	}
	return opts
}

func (b *backends) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
}
