// Package app wires the teamdash CLI: config, logging, token storage, the API
// client, and the commands built on top of them.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"teamdash/cmd/internal/apiclient"
	"teamdash/cmd/internal/auth/session"
	"teamdash/cmd/internal/notify"
	"teamdash/cmd/internal/teams"
	"teamdash/cmd/internal/tokenstore"
	"teamdash/cmd/security/password"
	"teamdash/cmd/security/vault"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Store is a small app-level lifecycle abstraction for token store backends
// that hold connections.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for the file and memory backends.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

type redisStore struct{ rs *tokenstore.RedisStore }

func (s redisStore) Close(_ context.Context) error { return s.rs.Close() }

// dbStore owns the pool backing the postgres token store.
type dbStore struct{ pool *pgxpool.Pool }

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// App is one CLI invocation: it owns the token store, the API client and the
// session, team and notification state built on it.
type App struct {
	cfg Config
	log Logger

	in  io.Reader
	out io.Writer

	store  Store
	tokens tokenstore.Store
	dbPool *pgxpool.Pool

	reg     *prometheus.Registry
	client  *apiclient.Client
	session *session.Controller
	teams   *teams.Directory
	stream  *notify.Stream

	unsubscribe func()
}

// New constructs a fully wired App from config and logger. A nil log uses
// NewLogger; nil in and out use the process stdin and stdout.
func New(ctx context.Context, cfg Config, log Logger, in io.Reader, out io.Writer) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}
	policy, err := password.FromEnv()
	if err != nil {
		return nil, err
	}

	st, tokens, pool, err := newStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	client, err := apiclient.New(cfg.APIBaseURL, tokens,
		apiclient.WithLogger(log),
		apiclient.WithMetrics(apiclient.NewMetrics(reg)),
		apiclient.WithTimeout(cfg.HTTPTimeout),
		apiclient.WithRefreshTimeout(cfg.RefreshTimeout),
		apiclient.WithUserAgent(cfg.UserAgent),
	)
	if err != nil {
		_ = st.Close(ctx)
		return nil, err
	}

	sess := session.New(client, session.WithLogger(log), session.WithPolicy(policy))
	dir := teams.NewDirectory(teams.NewService(client))
	stream := notify.New(cfg.APIBaseURL, tokens,
		notify.WithLogger(log),
		notify.WithMetrics(notify.NewMetrics(reg)),
		notify.WithHeartbeat(cfg.Heartbeat),
		notify.WithPingFormat(cfg.PingFormat),
		notify.WithFeedSize(cfg.FeedSize),
	)

	a := &App{
		cfg:     cfg,
		log:     log,
		in:      in,
		out:     out,
		store:   st,
		tokens:  tokens,
		dbPool:  pool,
		reg:     reg,
		client:  client,
		session: sess,
		teams:   dir,
		stream:  stream,
	}

	// Cached teams belong to the signed-in user.
	a.unsubscribe = sess.Subscribe(func(s session.State) {
		if !s.Authenticated {
			dir.Reset()
		}
	})

	return a, nil
}

// Close stops the notification stream and releases the token store.
func (a *App) Close(ctx context.Context) error {
	a.unsubscribe()
	a.stream.Close()
	a.session.Close()

	if err := a.store.Close(ctx); err != nil {
		a.log.Error("store.close.fail", "err", err)
		return err
	}
	return nil
}

// ready backs /readyz: the token store must be reachable.
func (a *App) ready(ctx context.Context) error {
	if a.dbPool != nil {
		return PingDB(ctx, a.dbPool, time.Second)
	}
	_, err := a.tokens.Load(ctx)
	return err
}

// newStore builds the token store selected by cfg.TokenStore.
func newStore(ctx context.Context, cfg Config, log Logger) (Store, tokenstore.Store, *pgxpool.Pool, error) {
	switch cfg.TokenStore {
	case StoreMemory:
		log.Debug("tokens.store.memory")
		return nopStore{}, tokenstore.NewMemoryStore(), nil, nil

	case StoreFile:
		var sealer tokenstore.Sealer
		if cfg.VaultPassphrase != "" {
			params, err := vault.ParamsFromEnv()
			if err != nil {
				return nil, nil, nil, err
			}
			v, err := vault.New(cfg.VaultPassphrase, params)
			if err != nil {
				return nil, nil, nil, err
			}
			sealer = v
		} else {
			log.Debug("tokens.store.plaintext", "path", cfg.TokenFile)
		}
		fs, err := tokenstore.NewFileStore(cfg.TokenFile, sealer)
		if err != nil {
			return nil, nil, nil, err
		}
		return nopStore{}, fs, nil, nil

	case StoreRedis:
		rs, err := tokenstore.NewRedisStore(ctx, tokenstore.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix + cfg.TokenProfile + ":",
		})
		if err != nil {
			return nil, nil, nil, err
		}
		log.Debug("tokens.store.redis", "addr", cfg.RedisAddr, "profile", cfg.TokenProfile)
		return redisStore{rs: rs}, rs, nil, nil

	case StorePostgres:
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		ps, err := tokenstore.NewPostgresStore(pool, cfg.TokenProfile)
		if err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		if err := ps.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		log.Debug("tokens.store.postgres", "profile", cfg.TokenProfile)
		return dbStore{pool: pool}, ps, pool, nil
	}

	return nil, nil, nil, fmt.Errorf("%w: unknown token store %q", ErrConfig, cfg.TokenStore)
}
